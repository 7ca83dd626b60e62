package calculations

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrTemplateNotFound   = errors.New("template not found")
	ErrResultNotFound     = errors.New("result not found")
	ErrInvalidComparison  = errors.New("invalid comparison")
	ErrTemplateConflict   = errors.New("template already exists")
	ErrInvalidTemplateDef = errors.New("invalid template definition")
)

// FieldErrors maps a parameter name to its validation message
type FieldErrors map[string]string

// ValidationError reports one or more invalid inputs. It never reaches an executor.
type ValidationError struct {
	TemplateID string
	Fields     FieldErrors
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return fmt.Sprintf("validation failed for template %s: %s", e.TemplateID, strings.Join(parts, "; "))
}

// ComputationError reports a degenerate input detected after validation passed,
// or an unknown formula. No partial result accompanies it.
type ComputationError struct {
	Formula Formula
	Reason  string
	Cause   error
}

func (e *ComputationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("computation failed (%s): %s: %v", e.Formula, e.Reason, e.Cause)
	}
	return fmt.Sprintf("computation failed (%s): %s", e.Formula, e.Reason)
}

func (e *ComputationError) Unwrap() error {
	return e.Cause
}

func newComputationError(formula Formula, reason string, cause error) *ComputationError {
	return &ComputationError{Formula: formula, Reason: reason, Cause: cause}
}

// AccessError reports an unreachable or failing template/result store.
// StatusCode is set when the failure came from an HTTP response.
type AccessError struct {
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *AccessError) Error() string {
	msg := fmt.Sprintf("access %s failed", e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *AccessError) Unwrap() error {
	return e.Cause
}

// NewAccessError wraps a store or transport failure
func NewAccessError(op string, cause error) *AccessError {
	return &AccessError{Op: op, Cause: cause}
}
