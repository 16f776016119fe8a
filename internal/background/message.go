package background

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/hpungsan/shiplens/internal/cache"
	"github.com/hpungsan/shiplens/internal/observer"
	"github.com/hpungsan/shiplens/internal/turvo"
)

// Kind is the "type" of a background message.
type Kind string

// ClientHeader names the header callers of the extension endpoints set.
// Its value starts with ClientPrefix, e.g. "shiplens-extension".
const (
	ClientHeader = "X-Shiplens-Client"
	ClientPrefix = "shiplens-"
	ClientCLI    = "shiplens-cli"
)

const (
	KindGetLastBearer     Kind = "GET_LAST_BEARER"
	KindGetLastShipment   Kind = "GET_LAST_SHIPMENT"
	KindFetchShipment     Kind = "FETCH_SHIPMENT"
	KindFetchShipmentList Kind = "FETCH_SHIPMENT_LIST"
	KindObserveRequest    Kind = "OBSERVE_REQUEST"
	KindTabLoading        Kind = "TAB_LOADING"
	KindResetSession      Kind = "RESET_SESSION"
	KindGetTokenInfo      Kind = "GET_TOKEN_INFO"
)

// FlexString accepts a JSON string or number. The extension sends shipment
// ids parsed from the URL as strings and timestamps as numbers.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(p []byte) error {
	p = bytes.TrimSpace(p)
	if bytes.Equal(p, []byte("null")) {
		*f = ""
		return nil
	}
	if len(p) > 0 && p[0] == '"' {
		var s string
		if err := json.Unmarshal(p, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(p, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// GetLastShipmentRequest asks for the cached shipment of a tab.
type GetLastShipmentRequest struct {
	TabID *int64 `json:"tabId"`
}

// FetchShipmentRequest asks for a fresh shipment fetch, cached under TabID
// when one is given.
type FetchShipmentRequest struct {
	ShipmentID FlexString `json:"shipmentId"`
	QueryTypes []string   `json:"queryTypes,omitempty"`
	Event      string     `json:"event,omitempty"`
	TabID      *int64     `json:"tabId,omitempty"`
	BustTS     FlexString `json:"bustTs,omitempty"`
}

// FetchShipmentListRequest asks for the shipments sharing a custom id.
// An empty BearerToken uses the captured token.
type FetchShipmentListRequest struct {
	BearerToken string     `json:"bearerToken,omitempty"`
	CustomID    FlexString `json:"customId"`
}

// ObserveRequest reports the headers of one outbound browser request.
type ObserveRequest struct {
	URL            string            `json:"url"`
	TabID          *int64            `json:"tabId,omitempty"`
	RequestHeaders []observer.Header `json:"requestHeaders"`
}

// TabLoadingRequest reports that a tab started loading a new page.
type TabLoadingRequest struct {
	TabID *int64 `json:"tabId"`
}

// BearerReply answers GET_LAST_BEARER. Token is null when none was captured.
type BearerReply struct {
	Token *string `json:"token"`
}

// ShipmentReply answers GET_LAST_SHIPMENT.
type ShipmentReply struct {
	OK    bool          `json:"ok"`
	Data  *cache.Record `json:"data"`
	Error string        `json:"error,omitempty"`
	Code  string        `json:"code,omitempty"`
}

// FetchReply answers FETCH_SHIPMENT and FETCH_SHIPMENT_LIST.
type FetchReply struct {
	OK     bool        `json:"ok"`
	Status int         `json:"status,omitempty"`
	Data   *turvo.Body `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
	Code   string      `json:"code,omitempty"`
}

// ObserveReply answers OBSERVE_REQUEST.
type ObserveReply struct {
	OK       bool `json:"ok"`
	Captured bool `json:"captured"`
}

// AckReply answers TAB_LOADING and RESET_SESSION.
type AckReply struct {
	OK      bool   `json:"ok"`
	Removed int    `json:"removed,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// TokenInfoReply answers GET_TOKEN_INFO.
type TokenInfoReply struct {
	OK   bool               `json:"ok"`
	Info observer.TokenInfo `json:"info"`
}

func tabIDString(id *int64) string {
	if id == nil {
		return "none"
	}
	return strconv.FormatInt(*id, 10)
}
