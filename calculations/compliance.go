package calculations

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// complianceCostLimit bounds the work a single rule expression may do
const complianceCostLimit = 1000000

// ComplianceEngine compiles and evaluates the CEL compliance rules attached to templates.
// Programs are cached per template version; safe for concurrent use.
type ComplianceEngine struct {
	env      *cel.Env
	programs map[string][]compiledRule // templateKey -> rules in declaration order
	mu       sync.RWMutex
}

type compiledRule struct {
	rule    ComplianceRule
	program cel.Program
}

// NewComplianceEngine creates an engine exposing `inputs` and `metrics` to rule expressions
func NewComplianceEngine() (*ComplianceEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("inputs", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("metrics", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &ComplianceEngine{
		env:      env,
		programs: make(map[string][]compiledRule),
	}, nil
}

func templateKey(t *Template) string {
	return t.ID + "@" + t.Version
}

// CompileRule compiles one expression and checks that it yields a boolean
func (ce *ComplianceEngine) CompileRule(r ComplianceRule) (cel.Program, error) {
	ast, issues := ce.env.Compile(r.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error in rule %s: %w", r.Name, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("rule %s must evaluate to bool, got %s", r.Name, ast.OutputType())
	}

	prog, err := ce.env.Program(ast, cel.CostLimit(complianceCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error in rule %s: %w", r.Name, err)
	}
	return prog, nil
}

// CompileTemplate compiles every rule of the template and swaps them in atomically.
// A failing rule leaves the previously compiled set untouched.
func (ce *ComplianceEngine) CompileTemplate(t *Template) error {
	compiled := make([]compiledRule, 0, len(t.ComplianceRules))
	for _, r := range t.ComplianceRules {
		prog, err := ce.CompileRule(r)
		if err != nil {
			return err
		}
		compiled = append(compiled, compiledRule{rule: r, program: prog})
	}

	ce.mu.Lock()
	ce.programs[templateKey(t)] = compiled
	ce.mu.Unlock()

	return nil
}

// Forget drops the compiled rules of a template version
func (ce *ComplianceEngine) Forget(t *Template) {
	ce.mu.Lock()
	delete(ce.programs, templateKey(t))
	ce.mu.Unlock()
}

// Apply evaluates the template's rules against the inputs and outcome. Each rule
// that evaluates to false appends its message and clears IsCompliant. Evaluation
// failures abort with a *ComputationError.
func (ce *ComplianceEngine) Apply(t *Template, in Inputs, out *Outcome) error {
	if len(t.ComplianceRules) == 0 {
		return nil
	}

	ce.mu.RLock()
	rules, ok := ce.programs[templateKey(t)]
	ce.mu.RUnlock()

	if !ok {
		if err := ce.CompileTemplate(t); err != nil {
			return newComputationError(Formula(t.ID), "compliance rules do not compile", err)
		}
		ce.mu.RLock()
		rules = ce.programs[templateKey(t)]
		ce.mu.RUnlock()
	}

	activation := map[string]any{
		"inputs":  in.Raw(),
		"metrics": out.Metrics(),
	}

	for _, cr := range rules {
		val, _, err := cr.program.Eval(activation)
		if err != nil {
			return newComputationError(Formula(t.ID), fmt.Sprintf("compliance rule %s failed", cr.rule.Name), err)
		}
		passed, isBool := val.Value().(bool)
		if !isBool {
			return newComputationError(Formula(t.ID), fmt.Sprintf("compliance rule %s returned %T, want bool", cr.rule.Name, val.Value()), nil)
		}
		if !passed {
			out.Compliance.IsCompliant = false
			msg := cr.rule.Message
			if msg == "" {
				msg = fmt.Sprintf("No cumple la regla %s.", cr.rule.Name)
			}
			out.Compliance.Notes = append(out.Compliance.Notes, msg)
		}
	}

	return nil
}
