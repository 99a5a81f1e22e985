package provider

import (
	"bytes"
	"embed"
	"fmt"

	"provider-sync/internal/models"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var schemaFiles = map[models.Provider]string{
	models.ProviderUberEats: "schemas/uber_eats.json",
	models.ProviderDoorDash: "schemas/doordash.json",
}

// compileSchemas loads the webhook schema of every provider
func compileSchemas() (map[models.Provider]*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	out := make(map[models.Provider]*jsonschema.Schema, len(schemaFiles))

	for p, file := range schemaFiles {
		raw, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", file, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", file, err)
		}
		if err := c.AddResource(file, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", file, err)
		}
		schema, err := c.Compile(file)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", file, err)
		}
		out[p] = schema
	}
	return out, nil
}

// validateShape parses body and checks it against the provider schema
func validateShape(schema *jsonschema.Schema, body []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return &models.ValidationError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := schema.Validate(inst); err != nil {
		return &models.ValidationError{Reason: err.Error()}
	}
	return nil
}
