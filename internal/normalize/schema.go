package normalize

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed schemas.yaml
var defaultSchemas []byte

// FieldType is the target type of a normalized field.
type FieldType string

const (
	TypeDate     FieldType = "date"
	TypeDecimal  FieldType = "decimal"
	TypeInteger  FieldType = "integer"
	TypeText     FieldType = "text"
	TypeCurrency FieldType = "currency"
	TypePlate    FieldType = "plate"
)

// FieldSpec describes one canonical field.
type FieldSpec struct {
	Name     string    `yaml:"name"`
	Type     FieldType `yaml:"type"`
	Sources  []string  `yaml:"sources"`
	Required bool      `yaml:"required"`
	Scale    int       `yaml:"scale"`
	From     string    `yaml:"from"`
}

// VATRule derives net and tax amounts from a gross amount when the tax is missing.
type VATRule struct {
	Rate  float64 `yaml:"rate"`
	Gross string  `yaml:"gross"`
	Net   string  `yaml:"net"`
	Tax   string  `yaml:"tax"`
}

// TypeSchema is the field set for one document type.
type TypeSchema struct {
	Fields []FieldSpec `yaml:"fields"`
	VAT    *VATRule    `yaml:"vat"`
}

// Schemas maps document types to their field sets.
type Schemas struct {
	Version int                   `yaml:"version"`
	Types   map[string]TypeSchema `yaml:"types"`
}

// LoadSchemas reads schemas from path, or the embedded defaults when path is empty.
func LoadSchemas(path string) (*Schemas, error) {
	data := defaultSchemas
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read schema file: %w", err)
		}
		data = raw
	}
	return ParseSchemas(data)
}

// ParseSchemas decodes and checks a YAML schema document. Unknown keys are rejected.
func ParseSchemas(data []byte) (*Schemas, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Schemas
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode schemas: %w", err)
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return &s, nil
}

// TypeNames returns the configured document types in sorted order.
func (s *Schemas) TypeNames() []string {
	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Schemas) check() error {
	if len(s.Types) == 0 {
		return fmt.Errorf("schemas: no document types defined")
	}
	for typeName, ts := range s.Types {
		if len(ts.Fields) == 0 {
			return fmt.Errorf("schemas: %s has no fields", typeName)
		}
		byName := make(map[string]FieldSpec, len(ts.Fields))
		for _, f := range ts.Fields {
			if f.Name == "" {
				return fmt.Errorf("schemas: %s has a field without a name", typeName)
			}
			if _, dup := byName[f.Name]; dup {
				return fmt.Errorf("schemas: %s.%s defined twice", typeName, f.Name)
			}
			switch f.Type {
			case TypeDate, TypeDecimal, TypeInteger, TypeText, TypeCurrency, TypePlate:
			default:
				return fmt.Errorf("schemas: %s.%s has unknown type %q", typeName, f.Name, f.Type)
			}
			if len(f.Sources) == 0 && f.From == "" {
				return fmt.Errorf("schemas: %s.%s has no sources", typeName, f.Name)
			}
			if f.Scale < 0 || f.Scale > 6 {
				return fmt.Errorf("schemas: %s.%s scale out of range", typeName, f.Name)
			}
			byName[f.Name] = f
		}
		for _, f := range ts.Fields {
			if f.From == "" {
				continue
			}
			if f.Type != TypeCurrency {
				return fmt.Errorf("schemas: %s.%s: from is only valid on currency fields", typeName, f.Name)
			}
			if _, ok := byName[f.From]; !ok {
				return fmt.Errorf("schemas: %s.%s: from references unknown field %q", typeName, f.Name, f.From)
			}
		}
		if v := ts.VAT; v != nil {
			if v.Rate <= 0 || v.Rate >= 1 {
				return fmt.Errorf("schemas: %s vat rate must be between 0 and 1", typeName)
			}
			for _, ref := range []string{v.Gross, v.Net, v.Tax} {
				if f, ok := byName[ref]; !ok || f.Type != TypeDecimal {
					return fmt.Errorf("schemas: %s vat references %q which is not a decimal field", typeName, ref)
				}
			}
		}
	}
	return nil
}
