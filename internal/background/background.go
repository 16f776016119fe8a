// Package background answers the extension's background messages: token
// lookups, cached shipment lookups, shipment fetches, and the browser events
// that keep the token and the per-tab cache current.
package background

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonschema"
	"github.com/tidwall/gjson"

	"github.com/hpungsan/shiplens/internal/cache"
	"github.com/hpungsan/shiplens/internal/errors"
	"github.com/hpungsan/shiplens/internal/logging"
	"github.com/hpungsan/shiplens/internal/observer"
	"github.com/hpungsan/shiplens/internal/turvo"
)

//go:embed message.schema.json
var messageSchema []byte

// Background owns the observer, the cache, and the upstream client.
type Background struct {
	obs    *observer.Observer
	cache  *cache.Cache
	client *turvo.Client
	log    *logging.Logger
	schema *jsonschema.Schema
}

// New wires a dispatcher.
func New(obs *observer.Observer, c *cache.Cache, client *turvo.Client, log *logging.Logger) (*Background, error) {
	if log == nil {
		log = logging.Nop()
	}
	schema, err := jsonschema.NewCompiler().Compile(messageSchema)
	if err != nil {
		return nil, fmt.Errorf("compile message schema: %w", err)
	}
	return &Background{obs: obs, cache: c, client: client, log: log, schema: schema}, nil
}

// Observer returns the token observer.
func (b *Background) Observer() *observer.Observer { return b.obs }

// Cache returns the per-tab cache.
func (b *Background) Cache() *cache.Cache { return b.cache }

// Client returns the upstream client.
func (b *Background) Client() *turvo.Client { return b.client }

// Dispatch validates one message envelope and routes it by type. Errors are
// returned only for envelopes that are malformed or of unknown type; every
// other failure is reported inside the reply as {ok:false, error}.
func (b *Background) Dispatch(ctx context.Context, raw []byte) (any, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.NewInvalidRequest("message is not valid JSON")
	}
	if result := b.schema.ValidateJSON(raw); !result.IsValid() {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid message: %v", result.Errors))
	}

	kind := Kind(gjson.GetBytes(raw, "type").String())
	b.log.Debugf("message %s", kind)

	switch kind {
	case KindGetLastBearer:
		return b.replyBearer(), nil

	case KindGetLastShipment:
		var m GetLastShipmentRequest
		if err := decode(raw, &m); err != nil {
			return nil, err
		}
		return b.replyLastShipment(ctx, m), nil

	case KindFetchShipment:
		var m FetchShipmentRequest
		if err := decode(raw, &m); err != nil {
			return nil, err
		}
		res, err := b.FetchShipment(ctx, m)
		return fetchReply(res, err), nil

	case KindFetchShipmentList:
		var m FetchShipmentListRequest
		if err := decode(raw, &m); err != nil {
			return nil, err
		}
		res, err := b.FetchShipmentList(ctx, m)
		return fetchReply(res, err), nil

	case KindObserveRequest:
		var m ObserveRequest
		if err := decode(raw, &m); err != nil {
			return nil, err
		}
		return ObserveReply{OK: true, Captured: b.Observe(m)}, nil

	case KindTabLoading:
		var m TabLoadingRequest
		if err := decode(raw, &m); err != nil {
			return nil, err
		}
		if err := b.TabLoading(ctx, m.TabID); err != nil {
			return AckReply{OK: false, Error: errors.Message(err), Code: string(errors.CodeOf(err))}, nil
		}
		return AckReply{OK: true}, nil

	case KindResetSession:
		n, err := b.ResetSession(ctx)
		if err != nil {
			return AckReply{OK: false, Error: errors.Message(err), Code: string(errors.CodeOf(err))}, nil
		}
		return AckReply{OK: true, Removed: n}, nil

	case KindGetTokenInfo:
		return TokenInfoReply{OK: true, Info: b.obs.Info()}, nil
	}
	return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown message type %q", kind))
}

func (b *Background) replyBearer() BearerReply {
	if tok, ok := b.obs.Token(); ok {
		return BearerReply{Token: &tok}
	}
	return BearerReply{}
}

func (b *Background) replyLastShipment(ctx context.Context, m GetLastShipmentRequest) ShipmentReply {
	rec, err := b.CachedShipment(ctx, m.TabID)
	if err != nil {
		return ShipmentReply{OK: false, Error: errors.Message(err), Code: string(errors.CodeOf(err))}
	}
	return ShipmentReply{OK: true, Data: rec}
}

func fetchReply(res *turvo.Result, err error) FetchReply {
	if err != nil {
		return FetchReply{OK: false, Error: errors.Message(err), Code: string(errors.CodeOf(err))}
	}
	data := res.Data
	return FetchReply{OK: res.OK, Status: res.Status, Data: &data}
}

// CachedShipment returns the cached record of tabID, or nil when the tab has
// none. A nil tabID is a precondition failure.
func (b *Background) CachedShipment(ctx context.Context, tabID *int64) (*cache.Record, error) {
	if tabID == nil {
		return nil, errors.NewPrecondition("Missing tabId", "tabId")
	}
	return b.cache.Get(ctx, *tabID)
}

// RequireShipment is CachedShipment for callers that need a record:
// a tab without one is NOT_FOUND.
func (b *Background) RequireShipment(ctx context.Context, tabID int64) (*cache.Record, error) {
	rec, err := b.cache.Get(ctx, tabID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.NewNotFound(fmt.Sprintf("tab %d", tabID))
	}
	return rec, nil
}

// FetchShipment fetches with the captured token and, when m names a tab,
// writes the response to that tab's cache entry.
//
// The fetch is detached from ctx: once dispatched it runs to completion even
// if the caller goes away. Its cache write is fenced by a ticket taken at
// dispatch, so a navigation or a later fetch for the same tab wins over it.
func (b *Background) FetchShipment(ctx context.Context, m FetchShipmentRequest) (*turvo.Result, error) {
	token, _ := b.obs.Token()
	shipmentID := strings.TrimSpace(string(m.ShipmentID))

	ctx = context.WithoutCancel(ctx)
	var ticket int64
	if m.TabID != nil && token != "" && shipmentID != "" {
		ticket = b.cache.Ticket()
	}

	res, err := b.client.FetchShipment(ctx, token, turvo.ShipmentQuery{
		ShipmentID: shipmentID,
		Types:      m.QueryTypes,
		Event:      m.Event,
		BustTS:     string(m.BustTS),
	})
	if err != nil {
		return nil, err
	}

	if m.TabID != nil {
		_, applied, err := b.cache.Put(ctx, ticket, *m.TabID, shipmentID, res.Data)
		switch {
		case err != nil:
			b.log.Warnf("tab %d: caching shipment %s failed: %v", *m.TabID, shipmentID, err)
		case applied:
			b.log.Infof("tab %d: cached shipment %s (status %d)", *m.TabID, shipmentID, res.Status)
		}
	}
	return res, nil
}

// FetchShipmentList fetches the shipments sharing m.CustomID. The request's
// bearer token is used when given, the captured token otherwise.
func (b *Background) FetchShipmentList(ctx context.Context, m FetchShipmentListRequest) (*turvo.Result, error) {
	token := m.BearerToken
	if strings.TrimSpace(token) == "" {
		token, _ = b.obs.Token()
	}
	return b.client.FetchShipmentList(context.WithoutCancel(ctx), token, strings.TrimSpace(string(m.CustomID)))
}

// ListForTab fetches the shipment list related to the shipment cached for
// tabID. Returns the custom id used.
func (b *Background) ListForTab(ctx context.Context, tabID int64) (string, *turvo.Result, error) {
	rec, err := b.RequireShipment(ctx, tabID)
	if err != nil {
		return "", nil, err
	}
	customID := turvo.CustomID(rec.Data)
	if customID == "" {
		return "", nil, errors.NewPrecondition("custom_id not found in shipment data", "customId")
	}
	res, err := b.FetchShipmentList(ctx, FetchShipmentListRequest{CustomID: FlexString(customID)})
	if err != nil {
		return customID, nil, err
	}
	return customID, res, nil
}

// Observe feeds one outbound browser request to the token observer.
func (b *Background) Observe(m ObserveRequest) bool {
	captured := b.obs.Observe(m.URL, m.RequestHeaders)
	if captured {
		b.log.Debugf("captured bearer token from tab %s", tabIDString(m.TabID))
	}
	return captured
}

// TabLoading evicts the cache entry of a tab that started a new page load.
func (b *Background) TabLoading(ctx context.Context, tabID *int64) error {
	if tabID == nil {
		return errors.NewPrecondition("Missing tabId", "tabId")
	}
	if err := b.cache.Remove(ctx, *tabID); err != nil {
		return err
	}
	b.log.Debugf("tab %d: navigation started, cache entry evicted", *tabID)
	return nil
}

// ResetSession clears the cache at the start of a browser session.
func (b *Background) ResetSession(ctx context.Context) (int, error) {
	n, err := b.cache.Clear(ctx)
	if err != nil {
		return 0, err
	}
	b.log.Infof("session reset: %d cached shipments cleared", n)
	return n, nil
}

func decode(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid message: %v", err))
	}
	return nil
}
