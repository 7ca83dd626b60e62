package calculations

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is the runtime type carried by a Value
type Kind string

const (
	KindNumber Kind = "number"
	KindText   Kind = "text"
	KindBool   Kind = "boolean"
)

// Value is a typed scalar: a validated input or a metric output.
// The zero Value is "absent".
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
}

// Number wraps a float
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Text wraps a string
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsZero() bool { return v.kind == "" }

// Float returns the numeric content of v. Text values holding a number parse too,
// which is how numeric select options reach executors.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Str returns the text content, or the formatted scalar for non-text kinds
func (v Value) Str() string {
	switch v.kind {
	case KindText:
		return v.str
	case KindNumber:
		return formatNumber(v.num)
	case KindBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// Truth returns the boolean content of v
func (v Value) Truth() (bool, bool) {
	if v.kind == KindBool {
		return v.b, true
	}
	return false, false
}

func (v Value) String() string { return v.Str() }

// Interface returns v as a plain Go value (float64, string, bool or nil)
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindText:
		return v.str
	case KindBool:
		return v.b
	}
	return nil
}

func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.num == o.num && v.str == o.str && v.b == o.b
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := valueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) MarshalYAML() (any, error) {
	return v.Interface(), nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := valueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// valueOf converts a decoded JSON/YAML scalar into a Value
func valueOf(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return x, nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(f), nil
	case string:
		return Text(x), nil
	case bool:
		return Bool(x), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", raw)
}

// formatNumber prints a float without trailing zeros
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Inputs is the typed parameter map produced by the validator
type Inputs map[string]Value

// Number returns a required numeric input
func (in Inputs) Number(name string) (float64, error) {
	v, ok := in[name]
	if !ok || v.IsZero() {
		return 0, fmt.Errorf("missing input %q", name)
	}
	f, ok := v.Float()
	if !ok {
		return 0, fmt.Errorf("input %q is not numeric: %q", name, v.Str())
	}
	return f, nil
}

// OptionalNumber returns a numeric input and whether it was supplied
func (in Inputs) OptionalNumber(name string) (float64, bool, error) {
	v, ok := in[name]
	if !ok || v.IsZero() {
		return 0, false, nil
	}
	f, ok := v.Float()
	if !ok {
		return 0, false, fmt.Errorf("input %q is not numeric: %q", name, v.Str())
	}
	return f, true, nil
}

// Raw converts the typed map back into plain values, suitable for re-validation or CEL
func (in Inputs) Raw() map[string]any {
	raw := make(map[string]any, len(in))
	for k, v := range in {
		raw[k] = v.Interface()
	}
	return raw
}

// Names returns the input names in sorted order
func (in Inputs) Names() []string {
	names := make([]string, 0, len(in))
	for k := range in {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
