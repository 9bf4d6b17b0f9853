package engine

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// ToolDeclaration describes a tool the model may invoke. InputSchema is a
// JSON schema object.
type ToolDeclaration struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema" yaml:"input_schema"`
}

// NewToolDeclarationFromType reflects the struct v into the input schema.
func NewToolDeclarationFromType(name string, description string, v interface{}) (ToolDeclaration, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	return NewToolDeclarationFromSchema(name, description, reflector.Reflect(v))
}

func NewToolDeclarationFromSchema(name string, description string, schema *jsonschema.Schema) (ToolDeclaration, error) {
	if name == "" {
		return ToolDeclaration{}, errors.New("tool name cannot be empty")
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return ToolDeclaration{}, errors.Wrapf(err, "could not marshal schema for tool %s", name)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(b, &schemaMap); err != nil {
		return ToolDeclaration{}, errors.Wrapf(err, "could not unmarshal schema for tool %s", name)
	}
	delete(schemaMap, "$schema")
	delete(schemaMap, "$id")
	if _, ok := schemaMap["type"]; !ok {
		schemaMap["type"] = "object"
	}
	if description == "" {
		description = schema.Description
	}

	return ToolDeclaration{
		Name:        name,
		Description: description,
		InputSchema: schemaMap,
	}, nil
}
