package normalize

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType is returned for a document type with no schema.
var ErrUnknownType = errors.New("unknown document type")

// FieldIssue reports a field that was present but could not be coerced, or that was
// kept only after rounding away digits.
type FieldIssue struct {
	Field  string `json:"field"`
	Raw    string `json:"raw,omitempty"`
	Reason string `json:"reason"`
}

// Result is the typed output for one document.
type Result struct {
	Fields map[string]any `json:"fields"`
	Issues []FieldIssue   `json:"issues,omitempty"`
}

// NormalizationError lists required fields that were absent or could not be coerced.
type NormalizationError struct {
	DocumentType string
	Missing      []string
	Partial      Result
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("missing required fields for %s: %s", e.DocumentType, strings.Join(e.Missing, ", "))
}

// Normalizer applies the per-type schemas. It holds no mutable state and is safe for
// concurrent use.
type Normalizer struct {
	schemas    *Schemas
	validators map[string]*validator
}

// New compiles a validator for every configured type.
func New(schemas *Schemas) (*Normalizer, error) {
	if schemas == nil {
		return nil, fmt.Errorf("normalize: schemas are required")
	}
	validators := make(map[string]*validator, len(schemas.Types))
	for name, ts := range schemas.Types {
		v, err := compileValidator(name, ts)
		if err != nil {
			return nil, err
		}
		validators[name] = v
	}
	return &Normalizer{schemas: schemas, validators: validators}, nil
}

// NewDefault builds a normalizer from the schema file at path, or the embedded defaults.
func NewDefault(path string) (*Normalizer, error) {
	schemas, err := LoadSchemas(path)
	if err != nil {
		return nil, err
	}
	return New(schemas)
}

// Supports reports whether a schema exists for documentType.
func (n *Normalizer) Supports(documentType string) bool {
	_, ok := n.schemas.Types[documentType]
	return ok
}

// RequiredFields lists the required field names of documentType in schema order.
func (n *Normalizer) RequiredFields(documentType string) []string {
	var out []string
	for _, f := range n.schemas.Types[documentType].Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// Normalize maps a raw payload into the canonical fields of documentType.
// The same input always produces the same output.
func (n *Normalizer) Normalize(raw map[string]any, documentType string) (Result, error) {
	ts, ok := n.schemas.Types[documentType]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownType, documentType)
	}

	res := Result{Fields: make(map[string]any, len(ts.Fields))}
	rawByField := make(map[string]any, len(ts.Fields))
	var missing []string

	// Currency fields may read another field's raw value, so resolve them last.
	ordered := make([]FieldSpec, 0, len(ts.Fields))
	var currencies []FieldSpec
	for _, f := range ts.Fields {
		if f.From != "" {
			currencies = append(currencies, f)
			continue
		}
		ordered = append(ordered, f)
	}
	ordered = append(ordered, currencies...)

	for _, f := range ordered {
		rawVal, found := lookupFirst(raw, f.Sources)
		if found {
			rawByField[f.Name] = rawVal
		}

		var (
			value any
			err   error
		)
		switch {
		case found:
			value, err = coerce(f, rawVal)
			if err != nil && f.From != "" {
				if fromRaw, ok := rawByField[f.From]; ok {
					value, err = coerce(f, fromRaw)
				}
			}
		case f.From != "":
			// Inferred only when the referenced raw value carries a code or symbol.
			if fromRaw, ok := rawByField[f.From]; ok {
				if v, cerr := coerce(f, fromRaw); cerr == nil {
					found, value = true, v
				}
			}
		}

		if !found {
			if f.Required {
				missing = append(missing, f.Name)
			}
			continue
		}
		var lossy *precisionLossError
		if errors.As(err, &lossy) {
			// The rounded value stands; the issue lets the panel double-check it.
			res.Fields[f.Name] = lossy.Value
			res.Issues = append(res.Issues, FieldIssue{Field: f.Name, Raw: truncate(describe(rawVal), 80), Reason: err.Error()})
			continue
		}
		if err != nil {
			if f.Required {
				missing = append(missing, f.Name)
			}
			res.Issues = append(res.Issues, FieldIssue{Field: f.Name, Raw: truncate(describe(rawVal), 80), Reason: err.Error()})
			continue
		}
		res.Fields[f.Name] = value
	}

	applyVAT(ts.VAT, res.Fields)
	res.Issues = orderIssues(ts.Fields, res.Issues)

	if len(missing) > 0 {
		missing = orderNames(ts.Fields, missing)
		return Result{}, &NormalizationError{DocumentType: documentType, Missing: missing, Partial: res}
	}

	if v := n.validators[documentType]; v != nil {
		if err := v.validate(res.Fields); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

func coerce(f FieldSpec, raw any) (any, error) {
	switch f.Type {
	case TypeDecimal:
		return coerceDecimal(raw, f.Scale)
	case TypeInteger:
		return coerceInteger(raw)
	case TypeDate:
		return coerceDate(raw)
	case TypeCurrency:
		return coerceCurrency(raw)
	case TypePlate:
		return coercePlate(raw)
	default:
		return coerceText(raw)
	}
}

// applyVAT fills net and tax from gross at the configured rate when no tax was extracted.
func applyVAT(rule *VATRule, fields map[string]any) {
	if rule == nil {
		return
	}
	gross, ok := fields[rule.Gross].(float64)
	if !ok {
		return
	}
	if _, hasTax := fields[rule.Tax]; hasTax {
		return
	}
	net := round(gross/(1+rule.Rate), 2)
	fields[rule.Net] = net
	fields[rule.Tax] = round(gross-net, 2)
	fields["tax_derived"] = true
}

// lookupFirst returns the first source path that resolves to a non-empty value.
func lookupFirst(raw map[string]any, sources []string) (any, bool) {
	for _, src := range sources {
		if v, ok := lookup(raw, src); ok {
			return v, true
		}
	}
	return nil, false
}

func lookup(raw map[string]any, path string) (any, bool) {
	var cur any = raw
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	if isEmpty(cur) {
		return nil, false
	}
	return cur, true
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s == "" || s == "null" || s == "none" || s == "n/a"
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func orderNames(fields []FieldSpec, names []string) []string {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	out := make([]string, 0, len(names))
	for _, f := range fields {
		if set[f.Name] {
			out = append(out, f.Name)
		}
	}
	return out
}

func orderIssues(fields []FieldSpec, issues []FieldIssue) []FieldIssue {
	if len(issues) < 2 {
		return issues
	}
	byField := make(map[string]FieldIssue, len(issues))
	for _, is := range issues {
		byField[is.Field] = is
	}
	out := make([]FieldIssue, 0, len(issues))
	for _, f := range fields {
		if is, ok := byField[f.Name]; ok {
			out = append(out, is)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
