// Package email composes the outbound email draft from summary fields.
package email

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/hpungsan/shiplens/internal/errors"
	"github.com/hpungsan/shiplens/internal/summary"
)

// Greeting opens every draft.
const Greeting = "Shipment details can be found below."

// Field names one include checkbox.
type Field string

const (
	Locations       Field = "shipLocations"
	Commodity       Field = "commodity"
	Weight          Field = "weight"
	WeightUnit      Field = "weightUnit"
	Temperature     Field = "temperature"
	TemperatureUnit Field = "temperatureUnit"
	Services        Field = "services"
	Rate            Field = "rate"
)

// AllFields lists every field in draft order.
var AllFields = []Field{Locations, Commodity, Weight, WeightUnit, Temperature, TemperatureUnit, Services, Rate}

// parentOf maps a unit toggle to the value toggle it depends on.
var parentOf = map[Field]Field{
	WeightUnit:      Weight,
	TemperatureUnit: Temperature,
}

// ParseField validates a field name.
func ParseField(s string) (Field, error) {
	f := Field(strings.TrimSpace(s))
	if !lo.Contains(AllFields, f) {
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown email field %q (valid: %s)", s, strings.Join(fieldNames(), ", ")))
	}
	return f, nil
}

func fieldNames() []string {
	return lo.Map(AllFields, func(f Field, _ int) string { return string(f) })
}

// Toggles are the include flags of a draft. A unit toggle is never on while
// its parent is off.
type Toggles map[Field]bool

// DefaultToggles turns on every field that resolved to a value.
func DefaultToggles(f summary.Fields) Toggles {
	t := Toggles{
		Locations:       len(lo.Filter(f.Locations, func(s string, _ int) bool { return summary.Present(s) })) > 0,
		Commodity:       summary.Present(f.Commodity),
		Weight:          summary.Present(f.Weight),
		WeightUnit:      summary.Present(f.WeightUnit),
		Temperature:     summary.Present(f.Temperature),
		TemperatureUnit: summary.Present(f.TemperatureUnit),
		Services:        summary.Present(f.Services),
		Rate:            summary.Present(f.Rate),
	}
	t.Enforce()
	return t
}

// Only returns toggles with just the named fields on, dependencies applied.
func Only(fields ...Field) Toggles {
	t := Toggles{}
	for _, f := range fields {
		t[f] = true
	}
	t.Enforce()
	return t
}

// Set changes one toggle. Turning a value field off also turns its unit off.
func (t Toggles) Set(field Field, on bool) {
	t[field] = on
	if !on {
		for child, parent := range parentOf {
			if parent == field {
				t[child] = false
			}
		}
	}
}

// On reports whether field is included.
func (t Toggles) On(field Field) bool {
	return t[field]
}

// Enforce turns off every unit whose value toggle is off.
func (t Toggles) Enforce() {
	for child, parent := range parentOf {
		if !t[parent] {
			t[child] = false
		}
	}
}

// Compose renders the draft: the greeting, a blank line, then each included
// non-empty field in draft order.
func Compose(f summary.Fields, t Toggles) string {
	lines := []string{Greeting, ""}

	locs := lo.Filter(f.Locations, func(s string, _ int) bool { return summary.Present(s) })
	if t.On(Locations) && len(locs) > 0 {
		lines = append(lines, "Ship Locations:")
		lines = append(lines, lo.Map(locs, func(s string, _ int) string { return strings.TrimSpace(s) })...)
	}
	if t.On(Commodity) && summary.Present(f.Commodity) {
		lines = append(lines, "Commodity: "+f.Commodity)
	}
	if t.On(Weight) && summary.Present(f.Weight) {
		lines = append(lines, "Weight: "+f.Weight+unitSuffix(t.On(WeightUnit), f.WeightUnit))
	}
	if t.On(Temperature) && summary.Present(f.Temperature) {
		lines = append(lines, "Temperature: "+f.Temperature+unitSuffix(t.On(TemperatureUnit), f.TemperatureUnit))
	}
	if t.On(Services) && summary.Present(f.Services) {
		lines = append(lines, "Services: "+f.Services)
	}
	if t.On(Rate) && summary.Present(f.Rate) {
		lines = append(lines, "Rate: "+f.Rate)
	}
	return strings.Join(lines, "\n")
}

func unitSuffix(on bool, unit string) string {
	if on && summary.Present(unit) {
		return " " + unit
	}
	return ""
}
