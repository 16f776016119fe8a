package ops

import (
	"github.com/hpungsan/shiplens/internal/email"
	"github.com/hpungsan/shiplens/internal/summary"
	"github.com/hpungsan/shiplens/internal/turvo"
)

// SummaryOutput contains the result of the Summarize operation.
type SummaryOutput struct {
	ShipmentID string         `json:"shipmentId,omitempty"`
	Fields     summary.Fields `json:"fields"`
	Markdown   string         `json:"markdown"`
}

// Summarize extracts the display fields of a shipment payload. Text payloads
// are parsed as JSON; anything unreadable yields empty fields.
func Summarize(shipmentID string, body turvo.Body) *SummaryOutput {
	fields := summary.Extract(body.Bytes())
	return &SummaryOutput{
		ShipmentID: shipmentID,
		Fields:     fields,
		Markdown:   summary.Markdown(fields),
	}
}

// EmailInput selects the fields included in a draft. Only, when non-empty,
// replaces the defaults; Exclude and Set are applied after it, in that order.
type EmailInput struct {
	Only    []string        `json:"only,omitempty"`
	Exclude []string        `json:"exclude,omitempty"`
	Set     map[string]bool `json:"set,omitempty"`
}

// EmailOutput contains the result of the ComposeEmail operation.
type EmailOutput struct {
	Text    string        `json:"text"`
	Toggles email.Toggles `json:"toggles"`
}

// ComposeEmail builds the draft for fields. Unit toggles are forced off
// whenever their value toggle is off.
func ComposeEmail(fields summary.Fields, input EmailInput) (*EmailOutput, error) {
	toggles := email.DefaultToggles(fields)

	if len(input.Only) > 0 {
		only, err := parseFields(input.Only)
		if err != nil {
			return nil, err
		}
		toggles = email.Only(only...)
	}

	exclude, err := parseFields(input.Exclude)
	if err != nil {
		return nil, err
	}
	for _, f := range exclude {
		toggles.Set(f, false)
	}

	for _, name := range sortedKeys(input.Set) {
		f, err := email.ParseField(name)
		if err != nil {
			return nil, err
		}
		toggles.Set(f, input.Set[name])
	}
	toggles.Enforce()

	return &EmailOutput{
		Text:    email.Compose(fields, toggles),
		Toggles: toggles,
	}, nil
}

func parseFields(names []string) ([]email.Field, error) {
	out := make([]email.Field, 0, len(names))
	for _, n := range names {
		f, err := email.ParseField(n)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// sortedKeys orders toggle names in draft order, unknown names last so they
// are reported by ParseField.
func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, f := range email.AllFields {
		if _, ok := m[string(f)]; ok {
			keys = append(keys, string(f))
			seen[string(f)] = true
		}
	}
	for k := range m {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	return keys
}
