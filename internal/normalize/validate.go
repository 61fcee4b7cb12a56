package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrSchemaViolation wraps output that does not conform to the type's JSON Schema.
var ErrSchemaViolation = errors.New("normalized fields violate schema")

type validator struct {
	schema *jsonschema.Schema
}

// jsonSchemaFor builds the JSON Schema every normalized result of a type must satisfy.
func jsonSchemaFor(ts TypeSchema) map[string]any {
	props := map[string]any{}
	var required []string
	for _, f := range ts.Fields {
		props[f.Name] = propertyFor(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	if ts.VAT != nil {
		props["tax_derived"] = map[string]any{"type": "boolean"}
	}
	schema := map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func propertyFor(f FieldSpec) map[string]any {
	switch f.Type {
	case TypeDecimal:
		return map[string]any{"type": "number"}
	case TypeInteger:
		return map[string]any{"type": "integer"}
	case TypeDate:
		return map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`}
	case TypeCurrency:
		return map[string]any{"type": "string", "pattern": `^[A-Z]{3}$`}
	case TypePlate:
		return map[string]any{"type": "string", "pattern": `^[A-Z0-9]{6,}$`}
	default:
		return map[string]any{"type": "string", "minLength": 1}
	}
}

func compileValidator(typeName string, ts TypeSchema) (*validator, error) {
	b, err := json.Marshal(jsonSchemaFor(ts))
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", typeName, err)
	}
	url := typeName + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", typeName, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", typeName, err)
	}
	return &validator{schema: schema}, nil
}

// validate round-trips fields through JSON so the validator sees the stored representation.
func (v *validator) validate(fields map[string]any) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}

// Validate checks already-normalized fields of documentType, for records loaded from storage.
func (n *Normalizer) Validate(documentType string, fields map[string]any) error {
	v, ok := n.validators[documentType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, documentType)
	}
	return v.validate(fields)
}
