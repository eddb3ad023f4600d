package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"marine_leads_backend/internal/leads/domain"
	"marine_leads_backend/internal/leads/pipeline"
	vendordomain "marine_leads_backend/internal/vendors/domain"
	"marine_leads_backend/platform/apperr"
	"marine_leads_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "whk_0123456789abcdef"

type fakeKeys struct{ keys map[string]APIKey }

func (f fakeKeys) GetByHash(_ context.Context, hash string) (APIKey, error) {
	k, ok := f.keys[hash]
	if !ok {
		return APIKey{}, ErrAPIKeyNotFound
	}
	return k, nil
}

type fakeIngester struct {
	got pipeline.Submission
	out pipeline.Outcome
	err error
}

func (f *fakeIngester) Ingest(_ context.Context, sub pipeline.Submission) (pipeline.Outcome, error) {
	f.got = sub
	return f.out, f.err
}

func newEngine(tenantID uuid.UUID, domains []string, ing *fakeIngester) *gin.Engine {
	gin.SetMode(gin.TestMode)
	keys := fakeKeys{keys: map[string]APIKey{
		HashKey(testKey): {ID: uuid.New(), TenantID: tenantID, AllowedDomains: domains, IsActive: true},
	}}
	h := NewHandler(ing, nil, validator.New())
	engine := gin.New()
	group := engine.Group("/api/v1/webhook", APIKeyAuthMiddleware(keys))
	group.POST("/leads", h.HandleLeadSubmission)
	return engine
}

func post(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestLeadSubmissionRequiresAPIKey(t *testing.T) {
	engine := newEngine(uuid.New(), nil, &fakeIngester{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/leads", strings.NewReader(`{"fields":{"a":"b"}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := post(engine, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing API key"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhook/leads", strings.NewReader(`{"fields":{"a":"b"}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, "whk_wrong")
	assert.Equal(t, http.StatusUnauthorized, post(engine, req).Code)
}

type unavailableKeys struct{}

func (unavailableKeys) GetByHash(context.Context, string) (APIKey, error) {
	return APIKey{}, errors.New("connection refused")
}

func TestLeadSubmissionKeyStoreOutageIsNotUnauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	ing := &fakeIngester{}
	engine.Group("/api/v1/webhook", APIKeyAuthMiddleware(unavailableKeys{})).
		POST("/leads", NewHandler(ing, nil, validator.New()).HandleLeadSubmission)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/leads", strings.NewReader(`{"fields":{"a":"b"}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, testKey)
	rec := post(engine, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Empty(t, ing.got.Fields)
}

func TestLeadSubmissionRejectsEmptyForm(t *testing.T) {
	engine := newEngine(uuid.New(), nil, &fakeIngester{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/leads", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(apiKeyHeader, testKey)
	rec := post(engine, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), errNoFormData)
}

func TestLeadSubmissionEnforcesAllowedDomains(t *testing.T) {
	engine := newEngine(uuid.New(), []string{"*.miamiboats.example"}, &fakeIngester{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/leads", strings.NewReader(`{"fields":{"a":"b"}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, testKey)
	req.Header.Set("Origin", "https://evil.example")
	rec := post(engine, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "domain not allowed")
}

func TestLeadSubmissionReturnsRoutingResult(t *testing.T) {
	tenantID := uuid.New()
	vendor := vendordomain.Vendor{ID: uuid.New(), Name: "Biscayne Marine Care", Contact: vendordomain.Contact{Email: "ops@biscayne.example"}}
	lead := domain.Lead{ID: uuid.New(), Status: domain.StatusSynced, RoutingMethod: vendordomain.MethodPerformance}
	ing := &fakeIngester{out: pipeline.Outcome{Lead: lead, Vendor: &vendor, Elapsed: 42 * time.Millisecond}}
	engine := newEngine(tenantID, []string{"*.miamiboats.example"}, ing)

	body := `{"formId":"service-request","fields":{"firstName":"John","zipCode":"33139","boatLength":26}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/leads", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, testKey)
	req.Header.Set("Origin", "https://www.miamiboats.example")
	rec := post(engine, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, tenantID, ing.got.TenantID)
	assert.Equal(t, "service-request", ing.got.FormID)
	assert.Equal(t, "www.miamiboats.example", ing.got.SourceDomain)
	assert.Equal(t, float64(26), ing.got.Fields["boatLength"])

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "synced", resp["status"])
	assert.Equal(t, lead.ID.String(), resp["leadId"])
	assert.Equal(t, "performance_based", resp["routingMethod"])
	assert.Equal(t, float64(42), resp["processingMs"])
	assert.Equal(t, "Biscayne Marine Care", resp["vendor"].(map[string]any)["name"])
}

func TestLeadSubmissionAcceptsFormPosts(t *testing.T) {
	ing := &fakeIngester{out: pipeline.Outcome{Lead: domain.Lead{ID: uuid.New(), Status: domain.StatusAssigned}}}
	engine := newEngine(uuid.New(), nil, ing)

	form := url.Values{"Full Name": {"Mary Smith"}, "Phone Number": {"(305) 673-7000"}, "form_id": {"contact-us"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/leads", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(apiKeyHeader, testKey)
	rec := post(engine, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "contact-us", ing.got.FormID)
	assert.Equal(t, "Mary Smith", ing.got.Fields["Full Name"])
}

func TestLeadSubmissionReportsFailureDescriptor(t *testing.T) {
	leadID := uuid.New()
	failure := pipeline.Failure{LeadID: leadID, Status: domain.StatusFailed, Reason: "no_vendor", Detail: "no eligible vendor"}
	ing := &fakeIngester{err: apperr.Unprocessable("no vendor can take this lead").WithDetails(failure)}
	engine := newEngine(uuid.New(), nil, ing)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/leads", strings.NewReader(`{"fields":{"email":"a@b.com"}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, testKey)
	rec := post(engine, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp struct {
		Error   string         `json:"error"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, leadID.String(), resp.Details["leadId"])
	assert.Equal(t, "no_vendor", resp.Details["reason"])
}

func TestLeadSubmissionDuplicateIsOK(t *testing.T) {
	ing := &fakeIngester{out: pipeline.Outcome{Lead: domain.Lead{ID: uuid.New(), Status: domain.StatusSynced}, Duplicate: true}}
	engine := newEngine(uuid.New(), nil, ing)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/leads", strings.NewReader(`{"fields":{"email":"a@b.com"}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, testKey)
	rec := post(engine, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"duplicate":true`)
}

func TestIsDomainAllowed(t *testing.T) {
	assert.True(t, isDomainAllowed("https://miamiboats.example", []string{"miamiboats.example"}))
	assert.True(t, isDomainAllowed("https://a.miamiboats.example/form", []string{"*.miamiboats.example"}))
	assert.True(t, isDomainAllowed("https://miamiboats.example", []string{"*.miamiboats.example"}))
	assert.True(t, isDomainAllowed("https://anything.example", []string{"*"}))
	assert.False(t, isDomainAllowed("", []string{"*"}))
	assert.False(t, isDomainAllowed("https://notmiamiboats.example", []string{"miamiboats.example"}))
}
