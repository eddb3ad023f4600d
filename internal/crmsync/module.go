// Package crmsync provides the CRM synchronisation bounded context module.
package crmsync

import (
	"context"
	"fmt"

	"marine_leads_backend/internal/crmsync/advisor"
	"marine_leads_backend/internal/crmsync/client"
	"marine_leads_backend/internal/crmsync/handler"
	"marine_leads_backend/internal/crmsync/repository"
	"marine_leads_backend/internal/crmsync/service"
	apphttp "marine_leads_backend/internal/http"
	"marine_leads_backend/platform/ai/moonshot"
	"marine_leads_backend/platform/config"
	"marine_leads_backend/platform/db"
	"marine_leads_backend/platform/logger"

	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Module is the crmsync bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule wires the CRM client, the advisor chain and the attempt log.
// Without a CRM base URL calls are accepted by a dry-run client.
func NewModule(
	ctx context.Context,
	pool db.Pool,
	mappings service.MappingSource,
	crmCfg config.CRMConfig,
	advCfg config.AdvisorConfig,
	log *logger.Logger,
) (*Module, error) {
	var crm client.CRM
	if crmCfg.IsCRMEnabled() {
		crm = client.New(client.Config{
			BaseURL:   crmCfg.GetCRMBaseURL(),
			APIKey:    crmCfg.GetCRMAPIKey(),
			RateLimit: crmCfg.GetCRMRateLimit(),
			Timeout:   crmCfg.GetCRMTimeout(),
		}, log)
	} else {
		log.Warn("CRM not configured, sync runs in dry-run mode")
		crm = client.NewDryRun(log)
	}

	var modelAdvisor advisor.Advisor
	if advCfg.IsModelAdvisorEnabled() {
		llm, err := newLLM(ctx, advCfg)
		if err != nil {
			return nil, err
		}
		modelAdvisor = advisor.NewModelAdvisor(llm)
		log.Info("model advisor enabled", "provider", advCfg.GetAdvisorProvider(), "model", llm.Name())
	}
	threshold := crmCfg.GetCRMConfidenceThreshold()
	chain := advisor.NewChainAdvisor(advisor.NewRulesAdvisor(), modelAdvisor, threshold, log)

	svc := service.New(crm, repository.New(pool), chain, mappings, service.Config{
		LocationID:          crmCfg.GetCRMLocationID(),
		PipelineID:          crmCfg.GetCRMPipelineID(),
		PipelineStageID:     crmCfg.GetCRMPipelineStageID(),
		CallTimeout:         crmCfg.GetCRMTimeout(),
		AdvisorTimeout:      advCfg.GetAdvisorTimeout(),
		MaxRetries:          crmCfg.GetCRMMaxCorrectedAttempts(),
		ConfidenceThreshold: threshold,
	}, log)

	return &Module{handler: handler.New(svc), service: svc}, nil
}

func newLLM(ctx context.Context, cfg config.AdvisorConfig) (model.LLM, error) {
	switch cfg.GetAdvisorProvider() {
	case "gemini":
		name := cfg.GetAdvisorModel()
		if name == "" {
			name = defaultGeminiModel
		}
		llm, err := gemini.NewModel(ctx, name, &genai.ClientConfig{
			APIKey:  cfg.GetAdvisorAPIKey(),
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini model: %w", err)
		}
		return llm, nil
	default:
		return moonshot.NewModel(moonshot.Config{
			APIKey:  cfg.GetAdvisorAPIKey(),
			BaseURL: cfg.GetAdvisorBaseURL(),
			Model:   cfg.GetAdvisorModel(),
			Timeout: cfg.GetAdvisorTimeout(),
		}), nil
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "crmsync"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts sync admin routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
