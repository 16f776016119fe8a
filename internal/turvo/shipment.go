package turvo

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var shipmentPathPattern = regexp.MustCompile(`(^|/)shipments/(\d+)(/|$)`)

// ShipmentIDFromURL returns the shipment id of a shipments page URL.
// The fragment path is checked in preference to the URL path, since the web
// application routes inside the hash.
func ShipmentIDFromURL(raw string) (string, bool) {
	var path string
	if u, err := url.Parse(raw); err == nil {
		if u.Fragment != "" {
			path = u.Fragment
		} else {
			path = u.Path
		}
	} else if i := strings.IndexByte(raw, '#'); i >= 0 {
		path = raw[i+1:]
	} else {
		path = raw
	}

	if path != "" && path[0] != '/' {
		path = "/" + path
	}
	m := shipmentPathPattern.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	return m[2], true
}

// CustomID returns details.custom_id of a shipment document, or "" when the
// body is not JSON or the field is absent. Numbers are returned as written.
func CustomID(b Body) string {
	if !b.IsJSON() {
		return ""
	}
	r := gjson.GetBytes(b.JSON, "details.custom_id")
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		return r.Raw
	default:
		return ""
	}
}

// ShipmentListPrefix starts every shipment list file name.
const ShipmentListPrefix = "shipment-list-"

// ShipmentListFilename names a downloaded shipment list the way the
// extension does: shipment-list-<customId>-<unix ms>.json.
func ShipmentListFilename(customID string, ms int64) string {
	return fmt.Sprintf("%s%s-%d.json", ShipmentListPrefix, customID, ms)
}

// ShipmentFilename names a downloaded shipment document.
func ShipmentFilename(shipmentID string) string {
	return shipmentID + ".json"
}
