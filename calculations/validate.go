package calculations

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Validation messages shown next to the offending field
const (
	msgRequired      = "%s es requerido"
	msgInvalidNumber = "Debe ser un número válido"
	msgMinimum       = "Valor mínimo: %s"
	msgMaximum       = "Valor máximo: %s"
	msgInvalidOption = "Opción inválida"
	msgInvalidBool   = "Debe ser verdadero o falso"
)

// Validate checks raw inputs against the template's parameters, in declaration order.
// On success every present value is coerced to its declared type; on failure the
// returned error is a *ValidationError and no inputs are returned.
func Validate(t *Template, raw map[string]any) (Inputs, error) {
	typed := make(Inputs, len(t.Parameters))
	fields := FieldErrors{}

	for _, p := range t.Parameters {
		v, msg := ValidateField(p, raw[p.Name])
		if msg != "" {
			fields[p.Name] = msg
			continue
		}
		if !v.IsZero() {
			typed[p.Name] = v
		}
	}

	if len(fields) > 0 {
		return nil, &ValidationError{TemplateID: t.ID, Fields: fields}
	}
	return typed, nil
}

// ValidateField checks one raw value against its parameter. It returns the coerced
// value (zero when absent and optional) or a non-empty message.
func ValidateField(p Parameter, raw any) (Value, string) {
	if isEmpty(raw) {
		if p.Required {
			return Value{}, fmt.Sprintf(msgRequired, displayName(p))
		}
		return Value{}, ""
	}

	switch p.Type {
	case ParamNumber:
		f, ok := toNumber(raw)
		if !ok {
			return Value{}, msgInvalidNumber
		}
		var msgs []string
		if p.Min != nil && f < *p.Min {
			msgs = append(msgs, fmt.Sprintf(msgMinimum, formatNumber(*p.Min)))
		}
		if p.Max != nil && f > *p.Max {
			msgs = append(msgs, fmt.Sprintf(msgMaximum, formatNumber(*p.Max)))
		}
		if len(msgs) > 0 {
			return Value{}, strings.Join(msgs, "; ")
		}
		return Number(f), ""

	case ParamSelect:
		s := toText(raw)
		for _, opt := range p.Options {
			if opt == s {
				return Text(s), ""
			}
		}
		return Value{}, msgInvalidOption

	case ParamBoolean:
		b, ok := toBool(raw)
		if !ok {
			return Value{}, msgInvalidBool
		}
		return Bool(b), ""
	}

	// text and untyped parameters accept any non-empty value
	return Text(toText(raw)), ""
}

func displayName(p Parameter) string {
	if p.Label != "" {
		return p.Label
	}
	return p.Name
}

func isEmpty(raw any) bool {
	switch x := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case Value:
		if x.IsZero() {
			return true
		}
		return x.Kind() == KindText && strings.TrimSpace(x.Str()) == ""
	}
	return false
}

func toNumber(raw any) (float64, bool) {
	var f float64
	switch x := raw.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case Value:
		parsed, ok := x.Float()
		if !ok {
			return 0, false
		}
		f = parsed
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		return 0, false
	default:
		v, err := valueOf(raw)
		if err != nil || v.Kind() != KindNumber {
			return 0, false
		}
		f = v.num
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toText(raw any) string {
	switch x := raw.(type) {
	case string:
		return strings.TrimSpace(x)
	case Value:
		return strings.TrimSpace(x.Str())
	case json.Number:
		return x.String()
	}
	v, err := valueOf(raw)
	if err != nil {
		return fmt.Sprint(raw)
	}
	return v.Str()
}

func toBool(raw any) (bool, bool) {
	switch x := raw.(type) {
	case bool:
		return x, true
	case Value:
		if b, ok := x.Truth(); ok {
			return b, true
		}
		return toBool(x.Str())
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "si", "sí", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
	}
	return false, false
}
