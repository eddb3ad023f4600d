// Package leads provides the lead bounded context module: intake,
// assignment and the routing pipeline.
package leads

import (
	"marine_leads_backend/internal/events"
	"marine_leads_backend/internal/fieldmap"
	apphttp "marine_leads_backend/internal/http"
	"marine_leads_backend/internal/leads/assignment"
	"marine_leads_backend/internal/leads/handler"
	"marine_leads_backend/internal/leads/intake"
	"marine_leads_backend/internal/leads/pipeline"
	"marine_leads_backend/internal/leads/repository"
	"marine_leads_backend/internal/taxonomy"
	"marine_leads_backend/platform/config"
	"marine_leads_backend/platform/db"
	"marine_leads_backend/platform/logger"
	"marine_leads_backend/platform/validator"
)

// Deps are the collaborators owned by other modules.
type Deps struct {
	Taxonomy taxonomy.Source
	Mappings fieldmap.Source
	Matcher  assignment.Matcher
	Vendors  assignment.VendorReader
	Syncer   pipeline.Syncer
	Bus      events.Bus
	// Dedupe and Archive are optional.
	Dedupe  pipeline.Deduper
	Archive pipeline.Archive
}

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler  *handler.Handler
	repo     *repository.Repository
	pipeline *pipeline.Pipeline
}

// NewModule creates the leads module. A reroute scheduler is attached later
// with SetRerouter.
func NewModule(pool db.Pool, deps Deps, cfg config.RoutingConfig, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	coordinator := assignment.New(repo, deps.Matcher, deps.Vendors, deps.Bus, cfg.GetAssignmentMaxAttempts(), log)

	p := pipeline.New(pipeline.Deps{
		Store:      repo,
		Normalizer: intake.NewNormalizer(val),
		Classifier: taxonomy.NewKeywordClassifier(deps.Taxonomy),
		Resolver:   fieldmap.NewResolver(deps.Mappings),
		Assigner:   coordinator,
		Vendors:    deps.Vendors,
		Syncer:     deps.Syncer,
		Bus:        deps.Bus,
		Dedupe:     deps.Dedupe,
		Archive:    deps.Archive,
	}, log)

	return &Module{
		handler:  handler.New(p, repo, val),
		repo:     repo,
		pipeline: p,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Pipeline returns the lead pipeline for the webhook and scheduler.
func (m *Module) Pipeline() *pipeline.Pipeline {
	return m.pipeline
}

// Repository returns the lead repository for the reconciler.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// SetRerouter attaches the scheduler used for delayed rerouting.
func (m *Module) SetRerouter(r pipeline.Rerouter) {
	m.pipeline.Rerouter = r
}

// RegisterRoutes mounts lead admin routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
