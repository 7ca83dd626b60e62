// Package calcservice runs calculation templates end to end: it keeps the
// template catalog and its compiled compliance rules in memory, validates and
// executes requests, and persists, recommends and compares results.
package calcservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/calcengine/calculations"
)

const (
	DefaultRecommendationLimit = 5
	MaxRecommendationLimit     = 20
)

// ExecuteRequest is one calculation run
type ExecuteRequest struct {
	TemplateID string         `json:"templateId"`
	Parameters map[string]any `json:"parameters"`
	ProjectID  string         `json:"projectId,omitempty"`
}

// RecommendationRequest selects templates to suggest next
type RecommendationRequest struct {
	TemplateID string
	ProjectID  string
	Limit      int
}

// Options configures a Service. Zero fields get defaults.
type Options struct {
	Logger   *zap.Logger
	Registry *calculations.Registry
	Cache    calculations.TemplatesCache
}

// Service orchestrates validation, execution, compliance and persistence
type Service struct {
	templates  calculations.TemplateStore
	results    calculations.ResultStore
	registry   *calculations.Registry
	compliance *calculations.ComplianceEngine
	cache      calculations.TemplatesCache
	logger     *zap.Logger

	now   func() time.Time
	newID func() string
}

// New creates a service over the given stores
func New(templates calculations.TemplateStore, results calculations.ResultStore, opts Options) (*Service, error) {
	compliance, err := calculations.NewComplianceEngine()
	if err != nil {
		return nil, err
	}

	s := &Service{
		templates:  templates,
		results:    results,
		registry:   opts.Registry,
		compliance: compliance,
		cache:      opts.Cache,
		logger:     opts.Logger,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
	if s.registry == nil {
		s.registry = calculations.DefaultRegistry()
	}
	if s.cache == nil {
		s.cache = calculations.NewInMemoryTemplatesCache(calculations.DefaultCacheConfig())
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

// LoadTemplates compiles the compliance rules of every active template and
// warms the listing cache
func (s *Service) LoadTemplates(ctx context.Context) error {
	active, err := s.templates.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	for _, t := range active {
		if err := s.compliance.CompileTemplate(t); err != nil {
			return fmt.Errorf("failed to compile compliance rules of %s@%s: %w", t.ID, t.Version, err)
		}
	}
	s.cache.Set(active)

	s.logger.Info("templates loaded",
		zap.String("op", "calcservice.LoadTemplates"),
		zap.Int("count", len(active)))
	return nil
}

// SeedCatalog adds templates missing from the store and upgrades those whose
// stored version is older. It returns how many templates were written.
func (s *Service) SeedCatalog(ctx context.Context, catalog []*calculations.Template) (int, error) {
	written := 0
	for _, t := range catalog {
		existing, err := s.templates.Get(ctx, t.ID)
		switch {
		case errors.Is(err, calculations.ErrTemplateNotFound):
			if err := s.templates.Add(ctx, t); err != nil {
				return written, fmt.Errorf("failed to seed %s: %w", t.ID, err)
			}
		case err != nil:
			return written, err
		case calculations.IsNewerVersion(t.Version, existing.Version):
			if err := s.templates.Update(ctx, t); err != nil {
				return written, fmt.Errorf("failed to upgrade %s: %w", t.ID, err)
			}
			s.compliance.Forget(existing)
		default:
			continue
		}
		written++
		s.logger.Debug("template seeded",
			zap.String("op", "calcservice.SeedCatalog"),
			zap.String("template", t.ID),
			zap.String("version", t.Version))
	}

	if written > 0 {
		s.cache.Invalidate()
	}
	return written, nil
}

// Templates lists the active templates matching the filter, ordered by name
func (s *Service) Templates(ctx context.Context, filter calculations.TemplateFilter) ([]*calculations.Template, error) {
	active, err := s.activeTemplates(ctx)
	if err != nil {
		return nil, err
	}
	return calculations.FilterTemplates(active, filter), nil
}

func (s *Service) activeTemplates(ctx context.Context) ([]*calculations.Template, error) {
	if cached := s.cache.Get(); cached != nil {
		return cached, nil
	}

	active, err := s.templates.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(active)
	return active, nil
}

// Template returns one template by ID
func (s *Service) Template(ctx context.Context, id string) (*calculations.Template, error) {
	return s.templates.Get(ctx, id)
}

// PublishTemplate validates a definition, compiles its compliance rules and
// stores it. Republishing requires a newer semver than the stored version.
func (s *Service) PublishTemplate(ctx context.Context, t *calculations.Template) (*calculations.Template, error) {
	if err := calculations.ValidateTemplate(t); err != nil {
		return nil, err
	}
	formula, _ := t.ResolveFormula()
	if !s.hasFormula(formula) {
		return nil, fmt.Errorf("%w %s: no executor registered for formula %q", calculations.ErrInvalidTemplateDef, t.ID, formula)
	}

	existing, err := s.templates.Get(ctx, t.ID)
	if err != nil && !errors.Is(err, calculations.ErrTemplateNotFound) {
		return nil, err
	}
	if existing != nil && !calculations.IsNewerVersion(t.Version, existing.Version) {
		return nil, fmt.Errorf("%w: %s version %s is not newer than %s",
			calculations.ErrTemplateConflict, t.ID, t.Version, existing.Version)
	}

	if err := s.compliance.CompileTemplate(t); err != nil {
		return nil, fmt.Errorf("%w %s: %v", calculations.ErrInvalidTemplateDef, t.ID, err)
	}

	if existing == nil {
		err = s.templates.Add(ctx, t)
	} else {
		err = s.templates.Update(ctx, t)
	}
	if err != nil {
		s.compliance.Forget(t)
		return nil, err
	}
	if existing != nil {
		s.compliance.Forget(existing)
	}

	s.cache.Invalidate()
	s.logger.Info("template published",
		zap.String("op", "calcservice.PublishTemplate"),
		zap.String("template", t.ID),
		zap.String("version", t.Version))

	return s.templates.Get(ctx, t.ID)
}

func (s *Service) hasFormula(f calculations.Formula) bool {
	for _, known := range s.registry.Formulas() {
		if known == f {
			return true
		}
	}
	return false
}

// Execute validates the raw parameters, runs the template's formula, applies its
// compliance rules and stores the unsaved result
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*calculations.Result, error) {
	if strings.TrimSpace(req.TemplateID) == "" {
		return nil, &calculations.ValidationError{Fields: calculations.FieldErrors{"templateId": "templateId es requerido"}}
	}

	t, err := s.templates.Get(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, fmt.Errorf("%w: %s is inactive", calculations.ErrTemplateNotFound, t.ID)
	}

	start := s.now()
	in, err := calculations.Validate(t, req.Parameters)
	if err != nil {
		s.logger.Debug("validation failed",
			zap.String("op", "calcservice.Execute"),
			zap.String("template", t.ID),
			zap.Error(err))
		return nil, err
	}

	out, err := s.registry.ExecuteTemplate(t, in)
	if err != nil {
		s.logger.Warn("computation failed",
			zap.String("op", "calcservice.Execute"),
			zap.String("template", t.ID),
			zap.Error(err))
		return nil, err
	}
	if err := s.compliance.Apply(t, in, out); err != nil {
		return nil, err
	}

	r := &calculations.Result{
		ID:              s.newID(),
		TemplateID:      t.ID,
		TemplateVersion: t.Version,
		Name:            t.Name,
		ProjectID:       req.ProjectID,
		CreatedAt:       s.now().UTC(),
		Inputs:          in,
		Parameters:      t.ParameterRefs(),
		Primary:         out.Primary,
		Secondary:       out.Secondary,
		Compliance:      out.Compliance,
	}
	if err := s.results.Add(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to store result: %w", err)
	}

	if err := s.templates.IncrementUsage(ctx, t.ID); err != nil {
		s.logger.Warn("failed to record template usage",
			zap.String("op", "calcservice.Execute"),
			zap.String("template", t.ID),
			zap.Error(err))
	}

	s.logger.Debug("calculation executed",
		zap.String("op", "calcservice.Execute"),
		zap.String("template", t.ID),
		zap.String("result", r.ID),
		zap.Bool("compliant", r.Compliance.IsCompliant),
		zap.Duration("duration", s.now().Sub(start)))

	return r, nil
}

// SaveResult stores a named, saved copy of an executed result. The computed
// values are never touched.
func (s *Service) SaveResult(ctx context.Context, req calculations.SaveRequest) (*calculations.Result, error) {
	fields := calculations.FieldErrors{}
	if strings.TrimSpace(req.ID) == "" {
		fields["id"] = "id es requerido"
	}
	if strings.TrimSpace(req.Name) == "" {
		fields["name"] = "Nombre es requerido"
	}
	if len(fields) > 0 {
		return nil, &calculations.ValidationError{Fields: fields}
	}

	existing, err := s.results.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	saved := existing.Clone()
	saved.Name = strings.TrimSpace(req.Name)
	saved.Notes = req.Notes
	saved.UsedInProject = req.UsedInProject
	if req.ProjectID != "" {
		saved.ProjectID = req.ProjectID
	}
	saved.Saved = true
	savedAt := s.now().UTC()
	saved.SavedAt = &savedAt

	if err := s.results.Replace(ctx, saved); err != nil {
		return nil, fmt.Errorf("failed to save result: %w", err)
	}
	return saved, nil
}

// Saved lists saved results newest first, optionally restricted to a project
func (s *Service) Saved(ctx context.Context, projectID string) ([]*calculations.Result, error) {
	if projectID != "" {
		return s.results.ListByProject(ctx, projectID)
	}
	return s.results.ListSaved(ctx)
}

// Result returns one stored result
func (s *Service) Result(ctx context.Context, id string) (*calculations.Result, error) {
	return s.results.Get(ctx, id)
}

// Recommendations suggests active templates related to the one in use and to
// the templates already used in the project
func (s *Service) Recommendations(ctx context.Context, req RecommendationRequest) ([]*calculations.Template, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultRecommendationLimit
	}
	if limit > MaxRecommendationLimit {
		limit = MaxRecommendationLimit
	}

	active, err := s.activeTemplates(ctx)
	if err != nil {
		return nil, err
	}

	var reference *calculations.Template
	if req.TemplateID != "" {
		for _, t := range active {
			if t.ID == req.TemplateID {
				reference = t
				break
			}
		}
		if reference == nil {
			reference = &calculations.Template{ID: req.TemplateID}
		}
	}

	used := map[string]bool{}
	if req.ProjectID != "" {
		projectResults, err := s.results.ListByProject(ctx, req.ProjectID)
		if err != nil {
			return nil, err
		}
		for _, r := range projectResults {
			used[r.TemplateID] = true
		}
	}

	return calculations.RankRecommendations(active, reference, used, limit), nil
}

// Compare loads 2 to 4 stored results concurrently and builds their comparison table
func (s *Service) Compare(ctx context.Context, ids []string) (*calculations.ComparisonTable, error) {
	if len(ids) < calculations.MinCompareResults || len(ids) > calculations.MaxCompareResults {
		return nil, fmt.Errorf("%w: need between %d and %d results, got %d",
			calculations.ErrInvalidComparison, calculations.MinCompareResults, calculations.MaxCompareResults, len(ids))
	}

	results := make([]*calculations.Result, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			r, err := s.results.Get(gctx, id)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return calculations.Compare(results)
}
