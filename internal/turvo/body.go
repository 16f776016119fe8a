package turvo

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Body is an upstream response payload: the parsed JSON document when the
// response declared a JSON content type, the raw text otherwise.
type Body struct {
	JSON json.RawMessage
	Text string
}

// JSONBody wraps raw JSON bytes.
func JSONBody(raw []byte) Body {
	return Body{JSON: json.RawMessage(raw)}
}

// TextBody wraps a plain-text payload.
func TextBody(s string) Body {
	return Body{Text: s}
}

// IsJSON reports whether the body holds a JSON document.
func (b Body) IsJSON() bool {
	return b.JSON != nil
}

// Kind is "json" or "text".
func (b Body) Kind() string {
	if b.IsJSON() {
		return "json"
	}
	return "text"
}

// Bytes returns the payload as written to disk: the JSON document verbatim,
// or the text.
func (b Body) Bytes() []byte {
	if b.IsJSON() {
		return []byte(b.JSON)
	}
	return []byte(b.Text)
}

// Value decodes the body for callers that work on generic values.
// Text bodies are returned as strings.
func (b Body) Value() any {
	if !b.IsJSON() {
		return b.Text
	}
	var v any
	if err := json.Unmarshal(b.JSON, &v); err != nil {
		return nil
	}
	return v
}

// MarshalJSON emits the document itself for JSON bodies and a JSON string for text.
func (b Body) MarshalJSON() ([]byte, error) {
	if b.IsJSON() {
		return b.JSON, nil
	}
	return json.Marshal(b.Text)
}

// UnmarshalJSON is the inverse of MarshalJSON. A JSON string literal is read
// back as a text body.
func (b *Body) UnmarshalJSON(p []byte) error {
	trimmed := bytes.TrimSpace(p)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*b = TextBody(s)
		return nil
	}
	*b = JSONBody(append([]byte(nil), trimmed...))
	return nil
}

func isJSONContentType(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "application/json")
}
