package calculations

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Executor computes the outcome of one formula from validated inputs.
// Implementations are pure: no I/O, no shared mutable state.
type Executor interface {
	Formula() Formula
	Execute(in Inputs) (*Outcome, error)
}

// Registry maps formulas to executors. Safe for concurrent use.
type Registry struct {
	executors map[Formula]Executor
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{executors: make(map[Formula]Executor)}
}

// DefaultRegistry returns a registry holding every built-in executor
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(ResidentialDemandExecutor{})
	r.MustRegister(BeamDesignExecutor{})
	return r
}

// Register adds an executor; a formula can only be registered once
func (r *Registry) Register(e Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[e.Formula()]; exists {
		return fmt.Errorf("executor for formula %s already registered", e.Formula())
	}
	r.executors[e.Formula()] = e
	return nil
}

// MustRegister is Register for package initialization; a duplicate is a programming error
func (r *Registry) MustRegister(e Executor) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Formulas lists the registered formula keys
func (r *Registry) Formulas() []Formula {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Formula, 0, len(r.executors))
	for f := range r.executors {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Execute runs the executor registered for formula. An unknown formula and any
// non-finite metric are reported as *ComputationError.
func (r *Registry) Execute(formula Formula, in Inputs) (*Outcome, error) {
	r.mu.RLock()
	e, ok := r.executors[formula]
	r.mu.RUnlock()

	if !ok {
		return nil, newComputationError(formula, "unknown calculation category", nil)
	}

	out, err := e.Execute(in)
	if err != nil {
		return nil, err
	}
	if err := checkFinite(formula, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExecuteTemplate resolves the template's formula and runs it
func (r *Registry) ExecuteTemplate(t *Template, in Inputs) (*Outcome, error) {
	formula, ok := t.ResolveFormula()
	if !ok {
		return nil, newComputationError(Formula(t.Category), "unknown calculation category", nil)
	}
	return r.Execute(formula, in)
}

func checkFinite(formula Formula, out *Outcome) error {
	for _, m := range append([]Metric{out.Primary}, out.Secondary...) {
		if m.Value.Kind() != KindNumber {
			continue
		}
		f, _ := m.Value.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return newComputationError(formula, fmt.Sprintf("metric %q is not finite", m.Label), nil)
		}
	}
	return nil
}

// round rounds f to the given number of decimals
func round(f float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(f*p) / p
}
