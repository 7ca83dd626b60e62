// Package catalog ships the built-in calculation templates and decodes
// user-supplied template definitions.
package catalog

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/calcengine/calculations"
)

//go:embed templates/*.yaml
var templateFS embed.FS

//go:embed template.schema.json
var schemaJSON []byte

const schemaURL = "template.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("failed to add template schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("failed to compile template schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// Load returns every built-in template, ordered by ID
func Load() ([]*calculations.Template, error) {
	entries, err := fs.ReadDir(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded templates: %w", err)
	}

	var templates []*calculations.Template
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".yaml" {
			continue
		}
		data, err := templateFS.ReadFile(path.Join("templates", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		t, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		templates = append(templates, t)
	}

	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

// Decode parses a YAML or JSON template definition, checks it against the
// template schema and then against the definition rules.
func Decode(data []byte) (*calculations.Template, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", calculations.ErrInvalidTemplateDef, err)
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	var t calculations.Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", calculations.ErrInvalidTemplateDef, err)
	}
	if err := calculations.ValidateTemplate(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// validateSchema round-trips the YAML document through JSON so the validator
// sees the same value shapes it would for a JSON request body
func validateSchema(doc any) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", calculations.ErrInvalidTemplateDef, err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("%w: %v", calculations.ErrInvalidTemplateDef, err)
	}

	if err := s.Validate(instance); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return formatSchemaError(verr)
		}
		return fmt.Errorf("%w: %v", calculations.ErrInvalidTemplateDef, err)
	}
	return nil
}

func formatSchemaError(err *jsonschema.ValidationError) error {
	var messages []string

	var collect func(*jsonschema.ValidationError)
	collect = func(e *jsonschema.ValidationError) {
		if e.Message != "" && len(e.Causes) == 0 {
			location := e.InstanceLocation
			if location == "" {
				location = "(root)"
			}
			messages = append(messages, fmt.Sprintf("%s: %s", location, e.Message))
		}
		for _, cause := range e.Causes {
			collect(cause)
		}
	}
	collect(err)

	if len(messages) == 0 {
		return fmt.Errorf("%w: schema validation failed", calculations.ErrInvalidTemplateDef)
	}
	return fmt.Errorf("%w:\n  - %s", calculations.ErrInvalidTemplateDef, strings.Join(messages, "\n  - "))
}
