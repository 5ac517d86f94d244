package pipeline

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dossier-cli/internal/resilience"
)

// answer is a structured reasoning response that can check its own
// required fields after decoding.
type answer interface {
	validate() error
}

// schemaOf reflects an answer type into the JSON schema embedded in prompts
// and sent as the provider response format.
func schemaOf(v any) json.RawMessage {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(v)
	s.Version = ""
	b, err := json.Marshal(s)
	if err != nil {
		panic(eris.Wrap(err, "pipeline: marshal schema"))
	}
	return b
}

// decodeAnswer extracts, decodes and validates a structured answer. Every
// failure is a MalformedError so the stage retry budget applies to it.
func decodeAnswer[T any, PT interface {
	*T
	answer
}](text string) (*T, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" || !strings.HasPrefix(cleaned, "{") {
		return nil, resilience.NewMalformedError(eris.New("pipeline: no JSON object in response"), text)
	}

	var out T
	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	if err := dec.Decode(&out); err != nil {
		return nil, resilience.NewMalformedError(eris.Wrap(err, "pipeline: decode structured response"), text)
	}
	if err := PT(&out).validate(); err != nil {
		return nil, resilience.NewMalformedError(err, text)
	}
	return &out, nil
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// requireConfidence validates a required confidence field.
func requireConfidence(c *float64, field string) error {
	if c == nil {
		return eris.Errorf("pipeline: missing required field %s", field)
	}
	if math.IsNaN(*c) || *c < 0 || *c > 1 {
		return eris.Errorf("pipeline: %s %v outside [0,1]", field, *c)
	}
	return nil
}

// flexAmount accepts a USD amount as a JSON number, a string such as
// "$12.5M" or "2.3 billion", or null.
type flexAmount struct {
	Value *float64
}

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		a.Value = nil
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		a.Value = ParseAmount(str)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return eris.Wrapf(err, "pipeline: parse amount %s", s)
	}
	if f > 0 {
		a.Value = &f
	}
	return nil
}

// JSONSchema describes flexAmount as a number or string.
func (flexAmount) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		AnyOf: []*jsonschema.Schema{
			{Type: "number"},
			{Type: "string"},
			{Type: "null"},
		},
		Description: "Amount in USD, as a number or a string like \"$12.5M\"",
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
