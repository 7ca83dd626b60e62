package calculations

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func ptr(f float64) *float64 { return &f }

func numberParam(name string, min, max float64, required bool) Parameter {
	return Parameter{Name: name, Label: name, Type: ParamNumber, Required: required, Min: ptr(min), Max: ptr(max)}
}

func electricalTemplate() *Template {
	return &Template{
		ID:       "electrical-residential-demand",
		Version:  "1.0.0",
		Name:     "Demanda Eléctrica Residencial",
		Category: CategoryElectrical,
		Formula:  FormulaResidentialDemand,
		IsActive: true,
		Parameters: []Parameter{
			numberParam("areaVivienda", 30, 1000, true),
			numberParam("circuitosIluminacion", 1, 20, true),
			numberParam("puntosIluminacion", 1, 30, true),
			numberParam("circuitosTomacorrientes", 1, 20, true),
			numberParam("puntosTomacorriente", 1, 20, true),
			numberParam("cantidadCargasEspeciales", 0, 20, false),
			numberParam("sumaCargasEspeciales", 0, 50000, false),
			{Name: "voltajeNominal", Label: "Voltaje nominal", Type: ParamSelect, Required: true,
				Options: []string{"120", "127", "208", "220", "240"}},
		},
	}
}

func beamTemplate() *Template {
	return &Template{
		ID:       "rc-beam-design",
		Version:  "1.0.0",
		Name:     "Diseño de Viga",
		Category: CategoryStructural,
		IsActive: true,
		Parameters: []Parameter{
			numberParam("length", 1, 15, true),
			numberParam("load", 100, 200000, true),
			{Name: "concreteStrength", Type: ParamSelect, Required: true, Options: []string{"21", "24", "28"}},
			{Name: "steelStrength", Type: ParamSelect, Required: true, Options: []string{"280", "420"}},
			numberParam("beamHeight", 0, 2, false),
			numberParam("beamWidth", 0, 1, false),
			{Name: "barDiameter", Type: ParamSelect, Required: true, Options: []string{"12", "16", "20"}},
		},
	}
}

func electricalDefaults() map[string]any {
	return map[string]any{
		"areaVivienda":             150,
		"circuitosIluminacion":     4,
		"puntosIluminacion":        6,
		"circuitosTomacorrientes":  3,
		"puntosTomacorriente":      4,
		"cantidadCargasEspeciales": 2,
		"sumaCargasEspeciales":     5000,
		"voltajeNominal":           "240",
	}
}

func beamDefaults() map[string]any {
	return map[string]any{
		"length":           6.0,
		"load":             15000,
		"concreteStrength": "21",
		"steelStrength":    "420",
		"beamHeight":       0.60,
		"beamWidth":        0.30,
		"barDiameter":      "16",
	}
}

func TestValidateBelowMinimum(t *testing.T) {
	tmpl := &Template{ID: "t", Parameters: []Parameter{numberParam("areaVivienda", 30, 1000, true)}}

	_, err := Validate(tmpl, map[string]any{"areaVivienda": "10"})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}
	if len(verr.Fields) != 1 {
		t.Fatalf("got %d field errors, want 1: %v", len(verr.Fields), verr.Fields)
	}
	if msg := verr.Fields["areaVivienda"]; !strings.Contains(msg, "mínimo") {
		t.Errorf("message = %q, want it to mention mínimo", msg)
	}
}

func TestValidateField(t *testing.T) {
	tests := []struct {
		name    string
		param   Parameter
		raw     any
		want    Value
		wantMsg string
	}{
		{"required missing", numberParam("area", 0, 10, true), nil, Value{}, "area es requerido"},
		{"required blank", numberParam("area", 0, 10, true), "   ", Value{}, "area es requerido"},
		{"required checked before range", numberParam("area", 30, 1000, true), "", Value{}, "area es requerido"},
		{"optional missing", numberParam("area", 0, 10, false), nil, Value{}, ""},
		{"numeric string", numberParam("area", 0, 10, true), " 7.5 ", Number(7.5), ""},
		{"int", numberParam("area", 0, 10, true), 3, Number(3), ""},
		{"not a number", numberParam("area", 0, 10, true), "abc", Value{}, "Debe ser un número válido"},
		{"bool is not a number", numberParam("area", 0, 10, true), true, Value{}, "Debe ser un número válido"},
		{"above maximum", numberParam("area", 0, 10, true), 11, Value{}, "Valor máximo: 10"},
		{"below minimum", numberParam("area", 30, 1000, true), 10, Value{}, "Valor mínimo: 30"},
		{"bound is inclusive", numberParam("area", 30, 1000, true), 1000, Number(1000), ""},
		{
			"select member",
			Parameter{Name: "v", Type: ParamSelect, Options: []string{"120", "240"}},
			240, Text("240"), "",
		},
		{
			"select non member",
			Parameter{Name: "v", Type: ParamSelect, Options: []string{"120", "240"}},
			"230", Value{}, "Opción inválida",
		},
		{"boolean sí", Parameter{Name: "b", Type: ParamBoolean}, "sí", Bool(true), ""},
		{"boolean false", Parameter{Name: "b", Type: ParamBoolean}, false, Bool(false), ""},
		{"boolean invalid", Parameter{Name: "b", Type: ParamBoolean}, "quizás", Value{}, "Debe ser verdadero o falso"},
		{"text trimmed", Parameter{Name: "s", Type: ParamText}, "  losa  ", Text("losa"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, msg := ValidateField(tt.param, tt.raw)
			if msg != tt.wantMsg {
				t.Errorf("message = %q, want %q", msg, tt.wantMsg)
			}
			if !got.Equal(tt.want) {
				t.Errorf("value = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestValidateReportsEveryInvalidField(t *testing.T) {
	raw := electricalDefaults()
	raw["areaVivienda"] = 5
	raw["voltajeNominal"] = "999"
	delete(raw, "circuitosIluminacion")

	_, err := Validate(electricalTemplate(), raw)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}
	want := []string{"areaVivienda", "circuitosIluminacion", "voltajeNominal"}
	for _, name := range want {
		if _, ok := verr.Fields[name]; !ok {
			t.Errorf("missing field error for %s", name)
		}
	}
	if len(verr.Fields) != len(want) {
		t.Errorf("got %d field errors, want %d: %v", len(verr.Fields), len(want), verr.Fields)
	}
}

func TestValidateIgnoresUndeclaredInputs(t *testing.T) {
	raw := electricalDefaults()
	raw["unexpected"] = "value"

	in, err := Validate(electricalTemplate(), raw)
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if _, ok := in["unexpected"]; ok {
		t.Error("undeclared input should not be carried into typed inputs")
	}
}

func TestValidateIsDeterministicAndIdempotent(t *testing.T) {
	tmpl := electricalTemplate()

	first, err := Validate(tmpl, electricalDefaults())
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	second, err := Validate(tmpl, electricalDefaults())
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Validate() is not deterministic:\n%v\n%v", first, second)
	}

	again, err := Validate(tmpl, first.Raw())
	if err != nil {
		t.Fatalf("re-validating typed inputs failed: %v", err)
	}
	if !reflect.DeepEqual(first, again) {
		t.Errorf("Validate() is not idempotent:\n%v\n%v", first, again)
	}
}

func TestValidateErrorMessageIsSorted(t *testing.T) {
	err := &ValidationError{TemplateID: "t", Fields: FieldErrors{"b": "x", "a": "y"}}
	want := "validation failed for template t: a: y; b: x"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
