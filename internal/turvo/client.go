// Package turvo fetches shipment documents from the logistics web
// application's API using a bearer token observed from the browser.
package turvo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/hpungsan/shiplens/internal/config"
	"github.com/hpungsan/shiplens/internal/errors"
	"github.com/hpungsan/shiplens/internal/logging"
)

const acceptHeader = "application/json, text/plain, */*"

// Client issues shipment detail and shipment list requests against one origin.
type Client struct {
	origin       string
	http         *http.Client
	types        []string
	event        string
	pageSize     int
	closedStatus int64
	log          *logging.Logger
}

// NewClient builds a client from cfg. The cookie jar carries any cookies the
// upstream sets across calls, standing in for browser credential inclusion.
func NewClient(cfg *config.Config, log *logging.Logger) *Client {
	if log == nil {
		log = logging.Nop()
	}
	jar, _ := cookiejar.New(nil)
	types := cfg.QueryTypes
	if len(types) == 0 {
		types = config.DefaultQueryTypes
	}
	event := cfg.Event
	if event == "" {
		event = "join"
	}
	return &Client{
		origin:       strings.TrimRight(cfg.Origin, "/"),
		http:         &http.Client{Jar: jar, Timeout: cfg.HTTPTimeout()},
		types:        types,
		event:        event,
		pageSize:     cfg.ListPageSize,
		closedStatus: cfg.ClosedStatusCode,
		log:          log,
	}
}

// Origin returns the upstream origin this client talks to.
func (c *Client) Origin() string {
	return c.origin
}

// ShipmentQuery parameterizes a shipment detail fetch.
type ShipmentQuery struct {
	ShipmentID string
	Types      []string // nil or empty uses the configured defaults
	Event      string   // empty uses the configured default
	BustTS     string   // appended as the "_" parameter when non-empty
}

// Result is the outcome of a request that reached the upstream.
// OK mirrors a 2xx status; non-2xx responses are results, not errors.
type Result struct {
	OK     bool `json:"ok"`
	Status int  `json:"status"`
	Data   Body `json:"data"`
}

// FetchShipment retrieves the detail document for q.ShipmentID.
//
// A missing token or shipment id fails with PRECONDITION_FAILED before any
// request is made. Transport failures and JSON-declared bodies that do not
// parse fail with UPSTREAM_FAILED.
func (c *Client) FetchShipment(ctx context.Context, token string, q ShipmentQuery) (*Result, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(q.ShipmentID) == "" {
		return nil, errors.NewPrecondition("Missing token or shipmentId", missing(
			"token", token, "shipmentId", q.ShipmentID)...)
	}

	u, err := c.ShipmentURL(q)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	c.log.Infof("fetching shipment %s", q.ShipmentID)
	return c.get(ctx, token, u)
}

// ShipmentURL builds the detail URL for q with parameters in the order
// types, event, _.
func (c *Client) ShipmentURL(q ShipmentQuery) (string, error) {
	types := q.Types
	if len(types) == 0 {
		types = c.types
	}
	event := q.Event
	if event == "" {
		event = c.event
	}
	typesJSON, err := marshalCompact(types)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(c.origin)
	b.WriteString("/api/shipments/")
	b.WriteString(url.PathEscape(strings.TrimSpace(q.ShipmentID)))
	b.WriteString("?types=")
	b.WriteString(url.QueryEscape(string(typesJSON)))
	b.WriteString("&event=")
	b.WriteString(url.QueryEscape(event))
	if q.BustTS != "" {
		b.WriteString("&_=")
		b.WriteString(url.QueryEscape(q.BustTS))
	}
	return b.String(), nil
}

// FetchShipmentList retrieves the open shipments sharing customID.
// Error policy matches FetchShipment.
func (c *Client) FetchShipmentList(ctx context.Context, token, customID string) (*Result, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(customID) == "" {
		return nil, errors.NewPrecondition("Missing bearerToken or customId", missing(
			"bearerToken", token, "customId", customID)...)
	}

	u, err := c.ShipmentListURL(customID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	c.log.Infof("fetching shipment list for custom_id %s", customID)
	return c.get(ctx, token, u)
}

// ShipmentListURL builds the list URL for customID.
func (c *Client) ShipmentListURL(customID string) (string, error) {
	filter, err := ListFilter(customID, c.pageSize, c.closedStatus)
	if err != nil {
		return "", err
	}
	return c.origin + "/api/shipments/list?filter=" + url.QueryEscape(string(filter)) +
		"&extendedAttributes=true&card=allFiltered", nil
}

type criterion struct {
	Key      string `json:"key"`
	Function string `json:"function"`
	Values   []any  `json:"values"`
}

type listFilter struct {
	PageSize      int         `json:"pageSize"`
	Start         int         `json:"start"`
	Criteria      []criterion `json:"criteria"`
	SortBy        string      `json:"sortBy"`
	SortDirection string      `json:"sortDirection"`
}

// ListFilter encodes the server-side filter selecting up to pageSize
// shipments with custom_id customID whose status is not closedStatus, newest
// first. Zero values fall back to 24 and 100173.
func ListFilter(customID string, pageSize int, closedStatus int64) ([]byte, error) {
	if pageSize <= 0 {
		pageSize = 24
	}
	if closedStatus == 0 {
		closedStatus = 100173
	}
	return marshalCompact(listFilter{
		PageSize: pageSize,
		Start:    0,
		Criteria: []criterion{
			{Key: "custom_id", Function: "in", Values: []any{customID}},
			{Key: "status.code.id", Function: "nin", Values: []any{closedStatus}},
		},
		SortBy:        "lastUpdatedOn",
		SortDirection: "desc",
	})
}

func (c *Client) get(ctx context.Context, token, u string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Referer", c.origin+"/")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warnf("request failed: %v", err)
		return nil, errors.NewUpstream(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Warnf("reading response body: %v", err)
		return nil, errors.NewUpstream(err)
	}

	body, err := decodeBody(resp.Header.Get("Content-Type"), raw)
	if err != nil {
		c.log.Warnf("decoding response (status %d): %v", resp.StatusCode, err)
		return nil, err
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		c.log.Infof("upstream returned status %d", resp.StatusCode)
	}
	return &Result{OK: ok, Status: resp.StatusCode, Data: body}, nil
}

func decodeBody(contentType string, raw []byte) (Body, error) {
	if !isJSONContentType(contentType) {
		return TextBody(string(raw)), nil
	}
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) {
		return Body{}, errors.NewUpstream(fmt.Errorf("response declared %s but body is not valid JSON", contentType))
	}
	return JSONBody(trimmed), nil
}

// marshalCompact encodes v without HTML escaping and without a trailing newline.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// missing returns the names from name/value pairs whose value is blank.
func missing(pairs ...string) []string {
	var out []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			out = append(out, pairs[i])
		}
	}
	return out
}
