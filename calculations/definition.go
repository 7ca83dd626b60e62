package calculations

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const (
	maxParameters     = 100
	maxIdentifierSize = 100
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateTemplate checks a template definition before it is published.
// All problems are collected into one error wrapping ErrInvalidTemplateDef.
func ValidateTemplate(t *Template) error {
	var problems []string

	if strings.TrimSpace(t.ID) == "" {
		problems = append(problems, "template id is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		problems = append(problems, "template name is required")
	}
	if _, err := semver.StrictNewVersion(t.Version); err != nil {
		problems = append(problems, fmt.Sprintf("version %q is not valid semver: %v", t.Version, err))
	}
	if !knownCategories[t.Category] {
		problems = append(problems, fmt.Sprintf("unknown category %q", t.Category))
	}
	if _, ok := t.ResolveFormula(); !ok {
		problems = append(problems, fmt.Sprintf("category %q has no default formula; set one explicitly", t.Category))
	}

	if len(t.Parameters) == 0 {
		problems = append(problems, "template must declare at least one parameter")
	}
	if len(t.Parameters) > maxParameters {
		problems = append(problems, fmt.Sprintf("template declares %d parameters, maximum allowed is %d", len(t.Parameters), maxParameters))
	}

	seen := make(map[string]bool, len(t.Parameters))
	for i, p := range t.Parameters {
		if err := validateParameter(p); err != nil {
			problems = append(problems, fmt.Sprintf("parameter %d (%s): %v", i, p.Name, err))
		}
		if seen[p.Name] {
			problems = append(problems, fmt.Sprintf("duplicate parameter name %q", p.Name))
		}
		seen[p.Name] = true
	}

	ruleNames := make(map[string]bool, len(t.ComplianceRules))
	for i, r := range t.ComplianceRules {
		if r.Name == "" || r.Expression == "" {
			problems = append(problems, fmt.Sprintf("compliance rule %d: name and expression are required", i))
		}
		if ruleNames[r.Name] {
			problems = append(problems, fmt.Sprintf("duplicate compliance rule %q", r.Name))
		}
		ruleNames[r.Name] = true
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w %s:\n  - %s", ErrInvalidTemplateDef, t.ID, strings.Join(problems, "\n  - "))
	}
	return nil
}

func validateParameter(p Parameter) error {
	if err := validateIdentifier(p.Name); err != nil {
		return err
	}

	switch p.Type {
	case ParamNumber:
		if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
			return fmt.Errorf("min %s is greater than max %s", formatNumber(*p.Min), formatNumber(*p.Max))
		}
		if p.DefaultValue != nil && !p.DefaultValue.IsZero() {
			f, ok := p.DefaultValue.Float()
			if !ok {
				return fmt.Errorf("default %q is not a number", p.DefaultValue.Str())
			}
			if (p.Min != nil && f < *p.Min) || (p.Max != nil && f > *p.Max) {
				return fmt.Errorf("default %s is outside bounds", formatNumber(f))
			}
		}
	case ParamSelect:
		if len(p.Options) == 0 {
			return fmt.Errorf("select parameter must list at least one option")
		}
		if p.DefaultValue != nil && !p.DefaultValue.IsZero() {
			if _, msg := ValidateField(p, *p.DefaultValue); msg != "" {
				return fmt.Errorf("default %q is not one of the options", p.DefaultValue.Str())
			}
		}
	case ParamText, ParamBoolean:
	default:
		return fmt.Errorf("invalid type %q (must be one of: number, select, text, boolean)", p.Type)
	}
	return nil
}

// validateIdentifier keeps parameter names usable as CEL map keys and form field ids
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxIdentifierSize {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), maxIdentifierSize)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$")
	}
	if reservedKeywords[name] {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}
	return nil
}

var reservedKeywords = map[string]bool{
	"true": true, "false": true, "null": true,
	"in": true, "as": true, "break": true, "const": true, "continue": true,
	"else": true, "for": true, "function": true, "if": true, "import": true,
	"let": true, "loop": true, "package": true, "namespace": true,
	"return": true, "var": true, "void": true, "while": true,
}

// IsNewerVersion reports whether candidate is a later semver than current
func IsNewerVersion(candidate, current string) bool {
	c, err := semver.NewVersion(candidate)
	if err != nil {
		return false
	}
	cur, err := semver.NewVersion(current)
	if err != nil {
		return true
	}
	return c.GreaterThan(cur)
}
