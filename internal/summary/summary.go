// Package summary turns a raw shipment document into display fields.
//
// Missing, null or differently shaped values degrade to empty fields;
// extraction never fails.
package summary

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// Placeholder is shown for fields that resolved to nothing.
const Placeholder = "—"

// Fields are the summary values of one shipment document.
type Fields struct {
	Locations       []string `json:"locations"`
	Weight          string   `json:"weight"`
	WeightUnit      string   `json:"weightUnit"`
	Commodity       string   `json:"commodity"`
	Temperature     string   `json:"temperature"`
	TemperatureUnit string   `json:"temperatureUnit"`
	Services        string   `json:"services"`
	Rate            string   `json:"rate"`
}

// Display returns s, or Placeholder when s is blank.
func Display(s string) string {
	if !Present(s) {
		return Placeholder
	}
	return s
}

// Present reports whether s carries a value worth showing.
func Present(s string) bool {
	return strings.TrimSpace(s) != ""
}

// Extract reads the summary fields from a JSON shipment document. Input that
// is not a JSON object yields empty fields.
func Extract(doc []byte) Fields {
	if !gjson.ValidBytes(doc) {
		return Fields{}
	}
	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return Fields{}
	}
	return extract(root.Get("details"))
}

// ExtractValue is Extract for already-decoded data. Strings are parsed as
// JSON documents.
func ExtractValue(v any) Fields {
	switch t := v.(type) {
	case nil:
		return Fields{}
	case string:
		return Extract([]byte(t))
	case []byte:
		return Extract(t)
	case json.RawMessage:
		return Extract(t)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Fields{}
	}
	return Extract(raw)
}

func extract(details gjson.Result) Fields {
	var f Fields

	f.Locations = locationLines(details)

	attrs := details.Get("equipment.0.attributes")
	weight := readMeasure(attrs.Get("weight"), "weight", "value", "Value", "name", "label")
	f.Weight, f.WeightUnit = weight.value, weight.unit
	temp := readMeasure(attrs.Get("temp"), "temp", "Value", "value", "name", "label")
	f.Temperature, f.TemperatureUnit = temp.value, temp.unit

	f.Commodity = commodity(details)
	f.Services = services(details)
	f.Rate = scalarText(details.Get("margin.minCarrierPay"))

	return f
}

// measure is a value with an optional unit. The source is either a bare
// scalar, or an object carrying the value under its own name or "value" and
// the unit under "units" as a string or a labeled object.
type measure struct {
	value string
	unit  string
}

func readMeasure(r gjson.Result, valueKey string, unitKeys ...string) measure {
	if !r.Exists() || r.Type == gjson.Null {
		return measure{}
	}
	if !r.IsObject() {
		return measure{value: scalarText(r)}
	}
	m := measure{value: scalarText(coalesce(r, valueKey, "value"))}
	units := r.Get("units")
	switch {
	case units.Type == gjson.String:
		m.unit = units.Str
	case units.IsObject():
		m.unit = scalarText(coalesce(units, unitKeys...))
	}
	return m
}

func commodity(details gjson.Result) string {
	var names []string
	for _, order := range arrayOf(details.Get("customer_orders")) {
		for _, item := range arrayOf(order.Get("items")) {
			if name := item.Get("name"); truthy(name) {
				names = append(names, scalarText(name))
			}
		}
	}
	return strings.Join(lo.Uniq(names), ", ")
}

func services(details gjson.Result) string {
	var out []string
	for _, s := range arrayOf(details.Get("services")) {
		if v := firstTruthy(s, "value", "name", "key", "id"); v.Exists() {
			out = append(out, scalarText(v))
		}
	}
	return strings.Join(lo.Filter(out, func(s string, _ int) bool { return s != "" }), ", ")
}

// waypoint is one ship location with its resolved sort key.
type waypoint struct {
	loc  gjson.Result
	when time.Time
	ok   bool
}

func locationLines(details gjson.Result) []string {
	route := details.Get("global_route")
	if !truthy(route) {
		route = details.Get("gloabl_route")
	}
	var wps []waypoint
	for _, loc := range arrayOf(route.Get("ship_locations")) {
		when, ok := parseDate(locationDate(loc))
		wps = append(wps, waypoint{loc: loc, when: when, ok: ok})
	}
	sort.SliceStable(wps, func(i, j int) bool {
		a, b := wps[i], wps[j]
		if !a.ok || !b.ok {
			return a.ok && !b.ok
		}
		return a.when.Before(b.when)
	})

	var lines []string
	for _, wp := range wps {
		if line := locationLine(wp); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// locationDate resolves the waypoint's date string: appointment.date (a
// string, or an object with date/value), else date (a string, or an object
// with date/value/start/end).
func locationDate(loc gjson.Result) string {
	if d := dateText(loc.Get("appointment.date"), "date", "value"); d != "" {
		return d
	}
	return dateText(loc.Get("date"), "date", "value", "start", "end")
}

func dateText(r gjson.Result, keys ...string) string {
	switch {
	case r.Type == gjson.String:
		return r.Str
	case r.IsObject():
		v := coalesce(r, keys...)
		switch v.Type {
		case gjson.String:
			return v.Str
		case gjson.Number:
			// Epoch milliseconds inside a date object.
			return "@" + v.Raw
		}
	}
	return ""
}

func locationLine(wp waypoint) string {
	loc := wp.loc

	typ := ""
	if t := loc.Get("type"); truthy(t) {
		if t.IsObject() {
			typ = scalarText(coalesce(t, "value", "name"))
		} else {
			typ = scalarText(t)
		}
	}

	addr := loc.Get("address")
	city := nameOrText(addr.Get("city"))
	state := nameOrText(addr.Get("state"))

	label := ""
	if st := loc.Get("schedulingType"); st.IsObject() {
		label = scalarText(coalesce(st, "shortName", "name", "value"))
	}

	var parts []string
	cityState := strings.Join(lo.Compact([]string{city, state}), ", ")
	switch {
	case typ != "" && cityState != "":
		parts = append(parts, typ+": "+cityState)
	case typ != "":
		parts = append(parts, typ)
	case cityState != "":
		parts = append(parts, cityState)
	}

	if dt := formatWhen(wp, label); dt != "" {
		parts = append(parts, dt)
	}
	if label != "" {
		parts = append(parts, "("+label+")")
	}
	return strings.Join(parts, " | ")
}

func formatWhen(wp waypoint, label string) string {
	if !wp.ok {
		return ""
	}
	zone := loadLocation(TimeZone(wp.loc))
	start := wp.when.In(zone)

	flex := flexSeconds(wp.loc.Get("appointment.flex"))
	if flex > 0 && !strings.Contains(strings.ToLower(label), "appt") {
		end := start.Add(time.Duration(flex * float64(time.Second))).In(zone)
		if sameDay(start, end) {
			return start.Format("Jan 2") + " (" + start.Format("15:04") + " - " + end.Format("15:04") + ")"
		}
		return compact(start, "(%s)") + " to " + compact(end, "(%s)")
	}
	return compact(start, "- (%s)")
}

func compact(t time.Time, timeFmt string) string {
	return t.Format("Jan 2") + " " + strings.Replace(timeFmt, "%s", t.Format("15:04"), 1)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func flexSeconds(r gjson.Result) float64 {
	var f float64
	switch r.Type {
	case gjson.Number:
		f = r.Num
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		if s == "" {
			return 0
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = v
	case gjson.True:
		f = 1
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// TimeZone resolves the IANA zone of a waypoint: an explicit zone on the
// waypoint, its address, or its date object, else one inferred from the
// address state. Returns "" when nothing resolves.
func TimeZone(loc gjson.Result) string {
	candidates := []gjson.Result{
		loc.Get("timeZone"), loc.Get("timezone"), loc.Get("tz"),
		loc.Get("address.timeZone"), loc.Get("address.timezone"), loc.Get("address.time_zone"),
	}
	if d := loc.Get("date"); d.IsObject() {
		candidates = append(candidates, firstTruthy(d, "timeZone", "timezone"))
	}
	for _, c := range candidates {
		if z := ZoneForName(scalarText(c)); z != "" {
			return z
		}
	}

	state := loc.Get("address.state")
	stateName := scalarText(state)
	if state.IsObject() {
		stateName = scalarText(firstTruthy(state, "abbrev", "abbr", "code", "value", "name"))
	}
	return ZoneForState(stateName)
}

// parseDate accepts the ISO 8601 shapes the upstream emits. Strings without
// a zone offset are read as host local time. "@<ms>" is epoch milliseconds.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if strings.HasPrefix(s, "@") {
		ms, err := strconv.ParseFloat(s[1:], 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)), true
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.UTC); err == nil {
		return t, true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	time.RFC1123Z,
	time.RFC1123,
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
}

// scalarText renders strings verbatim and numbers and booleans the way a
// browser would print them. Objects, arrays, and null yield "".
func scalarText(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		return numberText(r)
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	}
	return ""
}

func numberText(r gjson.Result) string {
	f := math.Abs(r.Num)
	if f < 1e21 && (f == 0 || f >= 1e-6) {
		return strconv.FormatFloat(r.Num, 'f', -1, 64)
	}
	return r.Raw
}

// nameOrText reads a value that is either a plain string or an object
// carrying a name.
func nameOrText(r gjson.Result) string {
	if r.IsObject() {
		return scalarText(r.Get("name"))
	}
	if !truthy(r) {
		return ""
	}
	return scalarText(r)
}

// arrayOf returns the elements of r, or nil when r is not an array.
func arrayOf(r gjson.Result) []gjson.Result {
	if !r.IsArray() {
		return nil
	}
	return r.Array()
}

// coalesce returns the first of keys on r that is present and not null.
func coalesce(r gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// firstTruthy returns the first of keys on r whose value is truthy.
func firstTruthy(r gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); truthy(v) {
			return v
		}
	}
	return gjson.Result{}
}

func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.String:
		return r.Str != ""
	case gjson.Number:
		return r.Num != 0 && !math.IsNaN(r.Num)
	case gjson.True:
		return true
	case gjson.JSON:
		return true
	}
	return false
}
