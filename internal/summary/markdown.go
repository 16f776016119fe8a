package summary

import (
	"strings"
)

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "<", `\<`, ">", `\>`, "#", `\#`, "|", `\|`,
)

// Markdown renders f as a short markdown document. Empty fields show the
// placeholder.
func Markdown(f Fields) string {
	var b strings.Builder

	b.WriteString("**Ship Locations**\n\n")
	if len(f.Locations) == 0 {
		b.WriteString(Placeholder + "\n")
	}
	for _, line := range f.Locations {
		b.WriteString("- " + markdownEscaper.Replace(line) + "\n")
	}
	b.WriteString("\n")

	rows := []struct{ label, value string }{
		{"Weight", joinUnit(f.Weight, f.WeightUnit)},
		{"Commodity", f.Commodity},
		{"Temperature", joinUnit(f.Temperature, f.TemperatureUnit)},
		{"Services", f.Services},
		{"Rate", f.Rate},
	}
	for _, r := range rows {
		b.WriteString("- **" + r.label + ":** " + markdownEscaper.Replace(Display(r.value)) + "\n")
	}
	return b.String()
}

func joinUnit(value, unit string) string {
	if !Present(value) {
		return ""
	}
	if Present(unit) {
		return value + " " + unit
	}
	return value
}
