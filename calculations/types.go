package calculations

import (
	"time"
)

// Category is the engineering discipline a template belongs to
type Category string

const (
	CategoryStructural    Category = "structural"
	CategoryElectrical    Category = "electrical"
	CategoryArchitectural Category = "architectural"
	CategoryHydraulic     Category = "hydraulic"
)

// knownCategories lists the disciplines accepted in template definitions
var knownCategories = map[Category]bool{
	CategoryStructural:    true,
	CategoryElectrical:    true,
	CategoryArchitectural: true,
	CategoryHydraulic:     true,
}

// Formula identifies the executor that computes a template's result
type Formula string

const (
	FormulaResidentialDemand Formula = "electrical.residential-demand"
	FormulaBeamDesign        Formula = "structural.rc-beam-design"
)

// defaultFormulas maps a category to the executor used when a template names none
var defaultFormulas = map[Category]Formula{
	CategoryElectrical: FormulaResidentialDemand,
	CategoryStructural: FormulaBeamDesign,
}

// ParameterType is the declared type of one template input slot
type ParameterType string

const (
	ParamNumber  ParameterType = "number"
	ParamSelect  ParameterType = "select"
	ParamText    ParameterType = "text"
	ParamBoolean ParameterType = "boolean"
)

// Parameter describes one input slot of a template
type Parameter struct {
	Name         string        `json:"name" yaml:"name"`
	Label        string        `json:"label" yaml:"label"`
	Type         ParameterType `json:"type" yaml:"type"`
	Unit         string        `json:"unit,omitempty" yaml:"unit,omitempty"`
	Required     bool          `json:"required" yaml:"required"`
	Min          *float64      `json:"min,omitempty" yaml:"min,omitempty"`
	Max          *float64      `json:"max,omitempty" yaml:"max,omitempty"`
	Options      []string      `json:"options,omitempty" yaml:"options,omitempty"`
	DefaultValue *Value        `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	HelpText     string        `json:"helpText,omitempty" yaml:"helpText,omitempty"`
}

// ComplianceRule is an extra normative check evaluated after the executor runs.
// Expression is a CEL boolean over `inputs` and `metrics`.
type ComplianceRule struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
	Message    string `json:"message" yaml:"message"`
}

// Template is a named, versioned definition of a parameterized calculation
type Template struct {
	ID                string           `json:"id" yaml:"id"`
	Version           string           `json:"version" yaml:"version"`
	Name              string           `json:"name" yaml:"name"`
	Description       string           `json:"description,omitempty" yaml:"description,omitempty"`
	Category          Category         `json:"category" yaml:"category"`
	Subcategory       string           `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
	Formula           Formula          `json:"formula,omitempty" yaml:"formula,omitempty"`
	NECReference      string           `json:"necReference,omitempty" yaml:"necReference,omitempty"`
	Difficulty        string           `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	TargetProfessions []string         `json:"targetProfessions,omitempty" yaml:"targetProfessions,omitempty"`
	Tags              []string         `json:"tags,omitempty" yaml:"tags,omitempty"`
	Parameters        []Parameter      `json:"parameters" yaml:"parameters"`
	ComplianceRules   []ComplianceRule `json:"complianceRules,omitempty" yaml:"complianceRules,omitempty"`
	UsageCount        int              `json:"usageCount" yaml:"usageCount,omitempty"`
	AverageRating     float64          `json:"averageRating" yaml:"averageRating,omitempty"`
	IsActive          bool             `json:"isActive" yaml:"isActive"`
	CreatedAt         time.Time        `json:"createdAt" yaml:"-"`
	UpdatedAt         time.Time        `json:"updatedAt" yaml:"-"`
}

// Parameter returns the parameter with the given name
func (t *Template) Parameter(name string) (Parameter, bool) {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// ResolveFormula returns the executor key for the template, falling back to
// the default formula of its category
func (t *Template) ResolveFormula() (Formula, bool) {
	if t.Formula != "" {
		return t.Formula, true
	}
	f, ok := defaultFormulas[t.Category]
	return f, ok
}

// DefaultInputs returns the raw defaults declared by the template, used to prefill forms
func (t *Template) DefaultInputs() map[string]any {
	raw := make(map[string]any, len(t.Parameters))
	for _, p := range t.Parameters {
		if p.DefaultValue != nil && !p.DefaultValue.IsZero() {
			raw[p.Name] = p.DefaultValue.Interface()
		}
	}
	return raw
}

// Metric is one labelled output value. Label is the join key used by the comparator.
type Metric struct {
	Label string `json:"label"`
	Value Value  `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// Compliance is the normative verdict of a result
type Compliance struct {
	IsCompliant bool     `json:"isCompliant"`
	Notes       []string `json:"notes"`
}

// Outcome is what an executor produces before it is stamped into a Result
type Outcome struct {
	Primary    Metric     `json:"primary"`
	Secondary  []Metric   `json:"secondary"`
	Compliance Compliance `json:"compliance"`
}

// Metrics returns the numeric value of every metric keyed by label
func (o *Outcome) Metrics() map[string]any {
	out := make(map[string]any, len(o.Secondary)+1)
	for _, m := range append([]Metric{o.Primary}, o.Secondary...) {
		if f, ok := m.Value.Float(); ok {
			out[m.Label] = f
		} else {
			out[m.Label] = m.Value.Interface()
		}
	}
	return out
}

// ParameterRef records how a template declared one input at execution time,
// so results keep their display order and labels without the template
type ParameterRef struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
	Unit  string `json:"unit,omitempty"`
}

// ParameterRefs lists the template parameters in declaration order
func (t *Template) ParameterRefs() []ParameterRef {
	refs := make([]ParameterRef, len(t.Parameters))
	for i, p := range t.Parameters {
		refs[i] = ParameterRef{Name: p.Name, Label: p.Label, Unit: p.Unit}
	}
	return refs
}

// Result is the immutable output of one successful calculation run
type Result struct {
	ID              string         `json:"id"`
	TemplateID      string         `json:"templateId"`
	TemplateVersion string         `json:"templateVersion,omitempty"`
	Name            string         `json:"name"`
	Notes           string         `json:"notes,omitempty"`
	ProjectID       string         `json:"projectId,omitempty"`
	UsedInProject   bool           `json:"usedInProject"`
	Saved           bool           `json:"saved"`
	CreatedAt       time.Time      `json:"createdAt"`
	SavedAt         *time.Time     `json:"savedAt,omitempty"`
	Inputs          Inputs         `json:"inputs"`
	Parameters      []ParameterRef `json:"parameters,omitempty"`
	Primary         Metric         `json:"primary"`
	Secondary       []Metric       `json:"secondary"`
	Compliance      Compliance     `json:"compliance"`
}

// Clone returns a deep copy so callers can derive new results without touching stored ones
func (r *Result) Clone() *Result {
	c := *r
	c.Inputs = make(Inputs, len(r.Inputs))
	for k, v := range r.Inputs {
		c.Inputs[k] = v
	}
	c.Parameters = append([]ParameterRef(nil), r.Parameters...)
	c.Secondary = append([]Metric(nil), r.Secondary...)
	c.Compliance.Notes = append([]string(nil), r.Compliance.Notes...)
	if r.SavedAt != nil {
		t := *r.SavedAt
		c.SavedAt = &t
	}
	return &c
}

// SaveRequest carries the metadata attached when a result is saved
type SaveRequest struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Notes         string `json:"notes,omitempty"`
	UsedInProject bool   `json:"usedInProject,omitempty"`
	ProjectID     string `json:"projectId,omitempty"`
}

// TemplateFilter narrows a template listing. Empty fields match everything.
type TemplateFilter struct {
	Types             []Category
	TargetProfessions []string
	SearchTerm        string
}
