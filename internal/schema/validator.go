package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/fulmenhq/bundlepress/internal/assets"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ManifestSchema is the schema every asset manifest is checked against.
const ManifestSchema = "asset-manifest-v1.0.0"

// ValidationError represents a single validation error.
type ValidationError struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Result holds the validation result.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Summary joins all errors into one line.
func (r *Result) Summary() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Path, e.Message))
	}
	return strings.Join(parts, "; ")
}

var (
	registryOnce sync.Once
	registry     map[string]*gojsonschema.Schema
	registryErr  error
)

// loadRegistry compiles every known embedded schema once. Schemas are authored
// in YAML and converted to JSON for gojsonschema.
func loadRegistry() {
	registry = make(map[string]*gojsonschema.Schema, len(assets.KnownSchemas))
	for name, path := range assets.KnownSchemas {
		schemaBytes, ok := assets.GetSchema(path)
		if !ok || len(schemaBytes) == 0 {
			registryErr = fmt.Errorf("embedded schema %s missing at %s", name, path)
			return
		}

		var schemaData interface{}
		if err := yaml.Unmarshal(schemaBytes, &schemaData); err != nil {
			registryErr = fmt.Errorf("schema %s is not valid YAML: %w", name, err)
			return
		}
		jsonBytes, err := json.Marshal(schemaData)
		if err != nil {
			registryErr = fmt.Errorf("schema %s cannot be converted to JSON: %w", name, err)
			return
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(jsonBytes))
		if err != nil {
			registryErr = fmt.Errorf("schema %s does not compile: %w", name, err)
			return
		}
		registry[name] = compiled
	}
}

// Validate validates data (interface{}) against the named schema.
func Validate(data interface{}, schemaName string) (*Result, error) {
	return validate(gojsonschema.NewGoLoader(data), schemaName)
}

// ValidateBytes validates a JSON document against the named schema.
func ValidateBytes(doc []byte, schemaName string) (*Result, error) {
	return validate(gojsonschema.NewBytesLoader(doc), schemaName)
}

func validate(loader gojsonschema.JSONLoader, schemaName string) (*Result, error) {
	registryOnce.Do(loadRegistry)
	if registryErr != nil {
		return nil, registryErr
	}
	compiled, ok := registry[schemaName]
	if !ok {
		return nil, fmt.Errorf("schema %s not found in registry", schemaName)
	}

	result, err := compiled.Validate(loader)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	res := &Result{Valid: result.Valid()}
	if !result.Valid() {
		for _, verr := range result.Errors() {
			field := verr.Field()
			if field == "" || field == "(root)" {
				field = "root"
			}
			res.Errors = append(res.Errors, ValidationError{
				Path:    field,
				Message: verr.Description(),
			})
		}
	}
	return res, nil
}
