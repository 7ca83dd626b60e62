package calculations

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

const (
	MinCompareResults = 2
	MaxCompareResults = 4

	// MissingCell is displayed for a result that lacks a row's label
	MissingCell = "—"
)

// Tag ranks one cell against the other cells of its row
type Tag string

const (
	TagNone    Tag = "" // missing or non-numeric: excluded from ranking
	TagHighest Tag = "highest"
	TagLowest  Tag = "lowest"
	TagEqual   Tag = "equal"
)

// Column identifies one compared result
type Column struct {
	ResultID   string `json:"resultId"`
	Name       string `json:"name"`
	TemplateID string `json:"templateId"`
}

// Cell is one result's value for a row
type Cell struct {
	Present bool    `json:"present"`
	Display string  `json:"display"`
	Numeric bool    `json:"numeric"`
	Value   float64 `json:"value,omitempty"`
	Tag     Tag     `json:"tag,omitempty"`
}

// Row aligns one label across every compared result. Name is the input name
// for parameter rows and empty for metric rows.
type Row struct {
	Name  string `json:"name,omitempty"`
	Label string `json:"label"`
	Unit  string `json:"unit,omitempty"`
	Cells []Cell `json:"cells"`
}

// ComparisonTable is the derived side-by-side view of 2 to 4 results
type ComparisonTable struct {
	Columns    []Column `json:"columns"`
	Parameters []Row    `json:"parameters"`
	Metrics    []Row    `json:"metrics"`
}

// Compare aligns inputs and metrics of the given results by label and tags the
// extremes of every numeric row. The results are never modified.
func Compare(results []*Result) (*ComparisonTable, error) {
	if len(results) < MinCompareResults || len(results) > MaxCompareResults {
		return nil, fmt.Errorf("%w: need between %d and %d results, got %d",
			ErrInvalidComparison, MinCompareResults, MaxCompareResults, len(results))
	}
	for i, r := range results {
		if r == nil {
			return nil, fmt.Errorf("%w: result %d is nil", ErrInvalidComparison, i)
		}
	}

	table := &ComparisonTable{
		Columns: make([]Column, len(results)),
	}
	for i, r := range results {
		table.Columns[i] = Column{ResultID: r.ID, Name: r.Name, TemplateID: r.TemplateID}
	}

	table.Parameters = parameterRows(results)
	table.Metrics = metricRows(results)

	return table, nil
}

// parameterRows builds one row per input in first-seen order across results.
// Each result contributes its inputs in template declaration order; inputs the
// result has no declaration for follow in sorted order.
func parameterRows(results []*Result) []Row {
	var names []string
	refs := map[string]ParameterRef{}
	for _, r := range results {
		for _, ref := range declaredInputs(r) {
			known, seen := refs[ref.Name]
			if !seen {
				names = append(names, ref.Name)
			}
			if !seen || known.Label == "" {
				refs[ref.Name] = ref
			}
		}
	}

	rows := make([]Row, 0, len(names))
	for _, name := range names {
		ref := refs[name]
		row := Row{Name: name, Label: ref.Label, Unit: ref.Unit, Cells: make([]Cell, len(results))}
		if row.Label == "" {
			row.Label = name
		}
		for i, r := range results {
			v, ok := r.Inputs[name]
			row.Cells[i] = newCell(v, ok && !v.IsZero())
		}
		rankRow(row.Cells)
		rows = append(rows, row)
	}
	return rows
}

// declaredInputs returns the inputs of r, declared ones first
func declaredInputs(r *Result) []ParameterRef {
	refs := make([]ParameterRef, 0, len(r.Inputs))
	listed := map[string]bool{}
	for _, ref := range r.Parameters {
		if _, ok := r.Inputs[ref.Name]; ok && !listed[ref.Name] {
			listed[ref.Name] = true
			refs = append(refs, ref)
		}
	}
	for _, name := range r.Inputs.Names() {
		if !listed[name] {
			refs = append(refs, ParameterRef{Name: name})
		}
	}
	return refs
}

func metricRows(results []*Result) []Row {
	var labels []string
	units := map[string]string{}
	seen := map[string]bool{}
	for _, r := range results {
		for _, m := range append([]Metric{r.Primary}, r.Secondary...) {
			if !seen[m.Label] {
				seen[m.Label] = true
				labels = append(labels, m.Label)
				units[m.Label] = m.Unit
			}
		}
	}

	rows := make([]Row, 0, len(labels))
	for _, label := range labels {
		row := Row{Label: label, Unit: units[label], Cells: make([]Cell, len(results))}
		for i, r := range results {
			m, ok := findMetric(r, label)
			row.Cells[i] = newCell(m.Value, ok)
		}
		rankRow(row.Cells)
		rows = append(rows, row)
	}
	return rows
}

func findMetric(r *Result, label string) (Metric, bool) {
	if r.Primary.Label == label {
		return r.Primary, true
	}
	for _, m := range r.Secondary {
		if m.Label == label {
			return m, true
		}
	}
	return Metric{}, false
}

func newCell(v Value, present bool) Cell {
	if !present {
		return Cell{Display: MissingCell}
	}
	c := Cell{Present: true, Display: v.Str()}
	if f, ok := NumericValue(v); ok {
		c.Numeric = true
		c.Value = f
	}
	return c
}

var numberToken = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// NumericValue extracts a number for ranking. Numbers are taken as-is. Text is
// best-effort: it counts only when it holds exactly one number, as in "28.5 A".
// Text with several numbers ("4φ20 + 2φ16") or none is excluded from ranking,
// never coerced to zero.
func NumericValue(v Value) (float64, bool) {
	switch v.Kind() {
	case KindNumber:
		f, _ := v.Float()
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	case KindText:
		tokens := numberToken.FindAllString(v.Str(), -1)
		if len(tokens) != 1 {
			return 0, false
		}
		f, err := strconv.ParseFloat(tokens[0], 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// rankRow tags numeric cells: all equal when every value matches, otherwise each
// cell holding the maximum is highest, each holding the minimum lowest and the rest equal
func rankRow(cells []Cell) {
	var ranked []int
	for i, c := range cells {
		if c.Present && c.Numeric {
			ranked = append(ranked, i)
		}
	}
	if len(ranked) == 0 {
		return
	}

	lo, hi := cells[ranked[0]].Value, cells[ranked[0]].Value
	for _, i := range ranked[1:] {
		lo = math.Min(lo, cells[i].Value)
		hi = math.Max(hi, cells[i].Value)
	}

	for _, i := range ranked {
		switch {
		case lo == hi:
			cells[i].Tag = TagEqual
		case cells[i].Value == hi:
			cells[i].Tag = TagHighest
		case cells[i].Value == lo:
			cells[i].Tag = TagLowest
		default:
			cells[i].Tag = TagEqual
		}
	}
}
