package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/calcengine/calculations"
)

func TestLoad(t *testing.T) {
	templates, err := Load()
	require.NoError(t, err)
	require.Len(t, templates, 2)

	assert.Equal(t, "electrical-residential-demand", templates[0].ID)
	assert.Equal(t, "rc-beam-design", templates[1].ID)

	for _, tmpl := range templates {
		assert.True(t, tmpl.IsActive, tmpl.ID)
		assert.NotEmpty(t, tmpl.ComplianceRules, tmpl.ID)
		_, ok := tmpl.ResolveFormula()
		assert.True(t, ok, tmpl.ID)
	}
}

func TestLoadedDefaultsValidateAndExecute(t *testing.T) {
	templates, err := Load()
	require.NoError(t, err)

	registry := calculations.DefaultRegistry()
	for _, tmpl := range templates {
		t.Run(tmpl.ID, func(t *testing.T) {
			in, err := calculations.Validate(tmpl, tmpl.DefaultInputs())
			require.NoError(t, err)

			out, err := registry.ExecuteTemplate(tmpl, in)
			require.NoError(t, err)
			assert.NotEmpty(t, out.Primary.Label)
			assert.True(t, out.Compliance.IsCompliant, out.Compliance.Notes)
		})
	}
}

func TestElectricalTemplateParameters(t *testing.T) {
	templates, err := Load()
	require.NoError(t, err)

	p, ok := templates[0].Parameter("areaVivienda")
	require.True(t, ok)
	require.NotNil(t, p.Min)
	require.NotNil(t, p.Max)
	assert.Equal(t, 30.0, *p.Min)
	assert.Equal(t, 1000.0, *p.Max)
	assert.True(t, p.Required)

	v, ok := templates[0].Parameter("voltajeNominal")
	require.True(t, ok)
	assert.Equal(t, calculations.ParamSelect, v.Type)
	assert.Contains(t, v.Options, "240")
	require.NotNil(t, v.DefaultValue)
	assert.Equal(t, calculations.Text("240"), *v.DefaultValue)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name: "valid json",
			doc:  `{"id": "losa", "version": "1.0.0", "name": "Losa", "category": "structural", "parameters": [{"name": "length", "label": "Luz", "type": "number", "required": true, "min": 1}]}`,
		},
		{
			name:    "unknown field",
			doc:     "id: losa\nversion: 1.0.0\nname: Losa\ncategory: structural\ncolor: red\nparameters:\n  - {name: a, label: A, type: number}\n",
			wantErr: "additional",
		},
		{
			name:    "select without options",
			doc:     "id: losa\nversion: 1.0.0\nname: Losa\ncategory: structural\nparameters:\n  - {name: a, label: A, type: select}\n",
			wantErr: "options",
		},
		{
			name:    "bad category",
			doc:     "id: losa\nversion: 1.0.0\nname: Losa\ncategory: mechanical\nparameters:\n  - {name: a, label: A, type: number}\n",
			wantErr: "category",
		},
		{
			name:    "definition rule",
			doc:     "id: losa\nversion: \"1\"\nname: Losa\ncategory: structural\nparameters:\n  - {name: a, label: A, type: number}\n",
			wantErr: "semver",
		},
		{
			name:    "not yaml",
			doc:     "id: [unterminated",
			wantErr: "invalid template definition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Decode([]byte(tt.doc))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "losa", tmpl.ID)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, calculations.ErrInvalidTemplateDef), err.Error())
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
