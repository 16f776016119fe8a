package summary

import (
	"strings"
	"sync"
	"time"

	// Zone data is embedded so formatting does not depend on the host's zoneinfo.
	_ "time/tzdata"
)

var zoneAbbreviations = map[string]string{
	"ET": "America/New_York", "EST": "America/New_York", "EDT": "America/New_York",
	"CT": "America/Chicago", "CST": "America/Chicago", "CDT": "America/Chicago",
	"MT": "America/Denver", "MST": "America/Denver", "MDT": "America/Denver",
	"PT": "America/Los_Angeles", "PST": "America/Los_Angeles", "PDT": "America/Los_Angeles",
	"AKST": "America/Anchorage", "AKDT": "America/Anchorage",
	"HST": "Pacific/Honolulu", "HAST": "Pacific/Honolulu", "HADT": "Pacific/Honolulu",
	"PHOENIX": "America/Phoenix", "ARIZONA": "America/Phoenix",
}

var stateZones = func() map[string]string {
	m := map[string]string{
		"AZ": "America/Phoenix",
		"AK": "America/Anchorage",
		"HI": "Pacific/Honolulu",
	}
	groups := map[string][]string{
		"America/New_York":    {"CT", "DE", "FL", "GA", "ME", "MD", "MA", "MI", "NH", "NJ", "NY", "NC", "OH", "PA", "RI", "SC", "VT", "VA", "WV", "DC", "IN"},
		"America/Chicago":     {"AL", "AR", "IL", "IA", "LA", "MN", "MS", "MO", "OK", "WI", "KS", "NE", "SD", "ND", "TN", "KY", "TX"},
		"America/Denver":      {"CO", "ID", "MT", "NM", "UT", "WY"},
		"America/Los_Angeles": {"CA", "OR", "WA", "NV"},
	}
	for zone, states := range groups {
		for _, s := range states {
			m[s] = zone
		}
	}
	return m
}()

var stateNames = map[string]string{
	"ALABAMA": "AL", "ALASKA": "AK", "ARIZONA": "AZ", "ARKANSAS": "AR", "CALIFORNIA": "CA",
	"COLORADO": "CO", "CONNECTICUT": "CT", "DELAWARE": "DE", "FLORIDA": "FL", "GEORGIA": "GA",
	"HAWAII": "HI", "IDAHO": "ID", "ILLINOIS": "IL", "INDIANA": "IN", "IOWA": "IA",
	"KANSAS": "KS", "KENTUCKY": "KY", "LOUISIANA": "LA", "MAINE": "ME", "MARYLAND": "MD",
	"MASSACHUSETTS": "MA", "MICHIGAN": "MI", "MINNESOTA": "MN", "MISSISSIPPI": "MS", "MISSOURI": "MO",
	"MONTANA": "MT", "NEBRASKA": "NE", "NEVADA": "NV", "NEW HAMPSHIRE": "NH", "NEW JERSEY": "NJ",
	"NEW MEXICO": "NM", "NEW YORK": "NY", "NORTH CAROLINA": "NC", "NORTH DAKOTA": "ND", "OHIO": "OH",
	"OKLAHOMA": "OK", "OREGON": "OR", "PENNSYLVANIA": "PA", "RHODE ISLAND": "RI", "SOUTH CAROLINA": "SC",
	"SOUTH DAKOTA": "SD", "TENNESSEE": "TN", "TEXAS": "TX", "UTAH": "UT", "VERMONT": "VT",
	"VIRGINIA": "VA", "WASHINGTON": "WA", "WEST VIRGINIA": "WV", "WISCONSIN": "WI", "WYOMING": "WY",
	"DISTRICT OF COLUMBIA": "DC",
}

// ZoneForName maps a US zone abbreviation (ET, PST, AKDT, ...) or the names
// Phoenix/Arizona to an IANA zone. Any other non-empty name is returned
// unchanged on the assumption that it already is an IANA zone.
func ZoneForName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if zone, ok := zoneAbbreviations[strings.ToUpper(name)]; ok {
		return zone
	}
	return name
}

// StateCode normalizes a US state abbreviation or full name to its
// two-letter code, or "" when it is not a US state.
func StateCode(state string) string {
	upper := strings.ToUpper(strings.TrimSpace(state))
	if upper == "" {
		return ""
	}
	if _, ok := stateZones[upper]; ok {
		return upper
	}
	return stateNames[upper]
}

// ZoneForState returns the IANA zone most of a US state observes, or "".
func ZoneForState(state string) string {
	code := StateCode(state)
	if code == "" {
		return ""
	}
	return stateZones[code]
}

var locations sync.Map // zone name -> *time.Location

// loadLocation resolves zone, falling back to host local time when the zone
// is empty or unknown.
func loadLocation(zone string) *time.Location {
	if zone == "" {
		return time.Local
	}
	if loc, ok := locations.Load(zone); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil || strings.EqualFold(zone, "local") {
		return time.Local
	}
	locations.Store(zone, loc)
	return loc
}
