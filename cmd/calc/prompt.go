package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/liamcoop/calcengine/calculations"
)

// parameterForm prompts for every template parameter, prefilled with the
// values collected so far
type parameterForm struct {
	form  *huh.Form
	text  map[string]*string
	bools map[string]*bool
}

func newParameterForm(t *calculations.Template, initial map[string]any) *parameterForm {
	pf := &parameterForm{
		text:  map[string]*string{},
		bools: map[string]*bool{},
	}

	fields := make([]huh.Field, 0, len(t.Parameters))
	for _, p := range t.Parameters {
		title := p.Label
		if p.Unit != "" {
			title = fmt.Sprintf("%s (%s)", p.Label, p.Unit)
		}

		switch p.Type {
		case calculations.ParamBoolean:
			b := initialBool(initial[p.Name])
			pf.bools[p.Name] = &b
			fields = append(fields, huh.NewConfirm().
				Title(title).
				Description(p.HelpText).
				Affirmative("Sí").
				Negative("No").
				Value(pf.bools[p.Name]))

		case calculations.ParamSelect:
			s := initialText(initial[p.Name])
			pf.text[p.Name] = &s
			fields = append(fields, huh.NewSelect[string]().
				Title(title).
				Description(p.HelpText).
				Options(huh.NewOptions(p.Options...)...).
				Value(pf.text[p.Name]))

		default:
			s := initialText(initial[p.Name])
			pf.text[p.Name] = &s
			fields = append(fields, huh.NewInput().
				Title(title).
				Description(p.HelpText).
				Placeholder(describeRange(p)).
				Value(pf.text[p.Name]).
				Validate(fieldValidator(p)))
		}
	}

	pf.form = huh.NewForm(huh.NewGroup(fields...))
	return pf
}

func (pf *parameterForm) Run() error {
	return pf.form.Run()
}

// values returns the answers as raw parameters. Blank answers are left out so
// optional parameters stay absent.
func (pf *parameterForm) values() map[string]any {
	raw := make(map[string]any, len(pf.text)+len(pf.bools))
	for name, s := range pf.text {
		if v := strings.TrimSpace(*s); v != "" {
			raw[name] = v
		}
	}
	for name, b := range pf.bools {
		raw[name] = *b
	}
	return raw
}

// fieldValidator runs the engine's per-field check while the user types
func fieldValidator(p calculations.Parameter) func(string) error {
	return func(s string) error {
		if _, msg := calculations.ValidateField(p, strings.TrimSpace(s)); msg != "" {
			return errors.New(msg)
		}
		return nil
	}
}

func initialText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func initialBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	}
	return false
}
