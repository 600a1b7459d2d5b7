package consensus

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldKind classifies a verdict field for fallback purposes.
type FieldKind string

const (
	KindBool   FieldKind = "bool"
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
	KindAny    FieldKind = "any"
)

// Validate rejects kinds outside the known set.
func (k FieldKind) Validate() error {
	switch k {
	case KindBool, KindString, KindNumber, KindAny:
		return nil
	}
	return fmt.Errorf("unknown field kind %q", k)
}

// Field describes one entry of the verdict the judge must produce.
type Field struct {
	Name        string    `json:"name" yaml:"name"`
	Kind        FieldKind `json:"kind" yaml:"kind"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// Schema is the shape of the judge's final verdict.
type Schema struct {
	Fields []Field `json:"fields" yaml:"fields"`
}

// DefaultSchema is the standard consensus verdict shape.
func DefaultSchema() Schema {
	return Schema{Fields: []Field{
		{Name: "consensus_reached", Kind: KindBool, Description: "whether the models converged on one answer"},
		{Name: "answer", Kind: KindString, Description: "the agreed answer, or the best supported one"},
		{Name: "reasoning", Kind: KindString, Description: "how the verdict was reached, noting dissent"},
	}}
}

// Validate checks field names and kinds.
func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema field has no name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate schema field %q", f.Name)
		}
		seen[f.Name] = true
		if err := f.Kind.Validate(); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return nil
}

// ParseSchemaSpec parses a comma-separated "name:kind" schema description,
// the format the --schema flag uses. A field without a kind defaults to any.
func ParseSchemaSpec(spec string) (Schema, error) {
	var s Schema
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, kind, _ := strings.Cut(part, ":")
		f := Field{Name: strings.TrimSpace(name), Kind: KindAny}
		if kind = strings.TrimSpace(kind); kind != "" {
			f.Kind = FieldKind(kind)
		}
		s.Fields = append(s.Fields, f)
	}
	if len(s.Fields) == 0 {
		return Schema{}, fmt.Errorf("empty schema spec")
	}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// Describe renders the schema as instructions for the judge prompt.
func (s Schema) Describe() string {
	var b strings.Builder
	for _, f := range s.Fields {
		fmt.Fprintf(&b, "- %s (%s): %s\n", f.Name, f.Kind, f.Description)
	}
	return b.String()
}

// Verdict is the judge's structured final answer keyed by field name.
type Verdict map[string]any

// Fallback builds a degraded verdict when the judge could not finish.
// Booleans default to false so an exhausted run never claims consensus,
// strings carry the failure explanation, and anything else gets an
// "unknown" sentinel.
func (s Schema) Fallback(reason string) Verdict {
	v := make(Verdict, len(s.Fields))
	for _, f := range s.Fields {
		switch f.Kind {
		case KindBool:
			v[f.Name] = false
		case KindString:
			v[f.Name] = fmt.Sprintf("no consensus reached: %s", reason)
		default:
			v[f.Name] = "unknown"
		}
	}
	return v
}

// Conform coerces a parsed verdict to exactly the schema's field set.
// Fields the judge invented are dropped and fields it omitted get a
// neutral per-kind default, so callers always see a well-formed record.
func (s Schema) Conform(v Verdict) Verdict {
	out := make(Verdict, len(s.Fields))
	for _, f := range s.Fields {
		if val, ok := v[f.Name]; ok {
			out[f.Name] = val
			continue
		}
		switch f.Kind {
		case KindBool:
			out[f.Name] = false
		case KindString:
			out[f.Name] = ""
		case KindNumber:
			out[f.Name] = 0.0
		default:
			out[f.Name] = nil
		}
	}
	return out
}

// ParseVerdict extracts the judge's structured verdict from raw model
// output. Fenced ```json / ```yaml blocks are unwrapped first; JSON is
// tried before YAML since it is stricter.
func ParseVerdict(raw string) (Verdict, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("empty verdict output")
	}

	content := extractFencedContent(raw)

	var v Verdict
	if err := json.Unmarshal([]byte(content), &v); err == nil && len(v) > 0 {
		return v, nil
	}
	if err := yaml.Unmarshal([]byte(content), &v); err == nil && len(v) > 0 {
		return v, nil
	}
	return nil, fmt.Errorf("failed to parse verdict as JSON or YAML")
}

// extractFencedContent unwraps ```json / ```yaml / bare ``` code blocks.
// Without a fence, the raw text is returned unchanged.
func extractFencedContent(raw string) string {
	lower := strings.ToLower(raw)
	for _, marker := range []string{"```json", "```yaml", "```"} {
		start := strings.Index(lower, marker)
		if start == -1 {
			continue
		}
		contentStart := start + len(marker)
		if contentStart < len(raw) && raw[contentStart] == '\n' {
			contentStart++
		}
		remaining := raw[contentStart:]
		if end := strings.Index(remaining, "```"); end != -1 {
			return remaining[:end]
		}
		return remaining
	}
	return raw
}
