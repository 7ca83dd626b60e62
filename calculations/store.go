package calculations

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// TemplateStore manages template persistence and retrieval.
// A store keeps one (the latest) version per template ID.
type TemplateStore interface {
	// Add a new template
	Add(ctx context.Context, t *Template) error

	// Get a template by ID
	Get(ctx context.Context, id string) (*Template, error)

	// List all active templates
	ListActive(ctx context.Context) ([]*Template, error)

	// Update replaces an existing template
	Update(ctx context.Context, t *Template) error

	// Delete a template
	Delete(ctx context.Context, id string) error

	// IncrementUsage bumps the usage counter after a successful run
	IncrementUsage(ctx context.Context, id string) error
}

// ResultStore persists calculation results. Stored results are never modified in
// place: Replace stores a new copy under the same ID.
type ResultStore interface {
	Add(ctx context.Context, r *Result) error
	Get(ctx context.Context, id string) (*Result, error)
	Replace(ctx context.Context, r *Result) error
	ListSaved(ctx context.Context) ([]*Result, error)
	ListByProject(ctx context.Context, projectID string) ([]*Result, error)
}

// InMemoryTemplateStore implements TemplateStore using an in-memory map
type InMemoryTemplateStore struct {
	templates map[string]*Template
	mu        sync.RWMutex
}

// NewInMemoryTemplateStore creates a new in-memory template store
func NewInMemoryTemplateStore() *InMemoryTemplateStore {
	return &InMemoryTemplateStore{
		templates: make(map[string]*Template),
	}
}

// Add stores a new template and stamps CreatedAt/UpdatedAt
func (s *InMemoryTemplateStore) Add(_ context.Context, t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[t.ID]; exists {
		return fmt.Errorf("%w: %s", ErrTemplateConflict, t.ID)
	}

	c := cloneTemplate(t)
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.templates[t.ID] = c
	return nil
}

func (s *InMemoryTemplateStore) Get(_ context.Context, id string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.templates[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return cloneTemplate(t), nil
}

// ListActive returns active templates ordered by name
func (s *InMemoryTemplateStore) ListActive(_ context.Context) ([]*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Template
	for _, t := range s.templates {
		if t.IsActive {
			active = append(active, cloneTemplate(t))
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Name < active[j].Name })
	return active, nil
}

// Update replaces a template, preserving CreatedAt and usage stats
func (s *InMemoryTemplateStore) Update(_ context.Context, t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.templates[t.ID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, t.ID)
	}

	c := cloneTemplate(t)
	c.CreatedAt = existing.CreatedAt
	c.UsageCount = existing.UsageCount
	c.UpdatedAt = time.Now()
	s.templates[t.ID] = c
	return nil
}

func (s *InMemoryTemplateStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[id]; !exists {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	delete(s.templates, id)
	return nil
}

func (s *InMemoryTemplateStore) IncrementUsage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.templates[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	t.UsageCount++
	return nil
}

// InMemoryResultStore implements ResultStore using an in-memory map
type InMemoryResultStore struct {
	results map[string]*Result
	mu      sync.RWMutex
}

// NewInMemoryResultStore creates a new in-memory result store
func NewInMemoryResultStore() *InMemoryResultStore {
	return &InMemoryResultStore{
		results: make(map[string]*Result),
	}
}

func (s *InMemoryResultStore) Add(_ context.Context, r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.results[r.ID]; exists {
		return fmt.Errorf("result with ID %s already exists", r.ID)
	}
	s.results[r.ID] = r.Clone()
	return nil
}

func (s *InMemoryResultStore) Get(_ context.Context, id string) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.results[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, id)
	}
	return r.Clone(), nil
}

func (s *InMemoryResultStore) Replace(_ context.Context, r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.results[r.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrResultNotFound, r.ID)
	}
	s.results[r.ID] = r.Clone()
	return nil
}

// ListSaved returns saved results, newest first
func (s *InMemoryResultStore) ListSaved(_ context.Context) ([]*Result, error) {
	return s.list(func(r *Result) bool { return r.Saved }), nil
}

// ListByProject returns saved results recorded against a project, newest first
func (s *InMemoryResultStore) ListByProject(_ context.Context, projectID string) ([]*Result, error) {
	return s.list(func(r *Result) bool { return r.Saved && r.ProjectID == projectID }), nil
}

func (s *InMemoryResultStore) list(keep func(*Result) bool) []*Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*Result{}
	for _, r := range s.results {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(results []*Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
}

func cloneTemplate(t *Template) *Template {
	c := *t
	c.Parameters = make([]Parameter, len(t.Parameters))
	for i, p := range t.Parameters {
		cp := p
		cp.Options = append([]string(nil), p.Options...)
		if p.Min != nil {
			v := *p.Min
			cp.Min = &v
		}
		if p.Max != nil {
			v := *p.Max
			cp.Max = &v
		}
		if p.DefaultValue != nil {
			v := *p.DefaultValue
			cp.DefaultValue = &v
		}
		c.Parameters[i] = cp
	}
	c.ComplianceRules = append([]ComplianceRule(nil), t.ComplianceRules...)
	c.TargetProfessions = append([]string(nil), t.TargetProfessions...)
	c.Tags = append([]string(nil), t.Tags...)
	return &c
}
