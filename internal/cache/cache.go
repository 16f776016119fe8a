// Package cache keeps the last fetched shipment per browser tab.
//
// Every mutation carries a sequence number. A fetch reserves its sequence
// with Ticket when it is dispatched and writes with Put; the write is dropped
// if a later write, eviction, or reset for that tab has already been applied.
package cache

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/shiplens/internal/db"
	"github.com/hpungsan/shiplens/internal/errors"
	"github.com/hpungsan/shiplens/internal/logging"
	"github.com/hpungsan/shiplens/internal/turvo"
)

// Record is one cached shipment response.
type Record struct {
	ID         string     `json:"id"`
	TabID      int64      `json:"tabId"`
	ShipmentID string     `json:"shipmentId"`
	Data       turvo.Body `json:"data"`
	CapturedAt int64      `json:"ts"` // unix milliseconds
	Digest     string     `json:"digest,omitempty"`
}

// Cache is the per-tab shipment store.
type Cache struct {
	db  *sql.DB
	log *logging.Logger
	now func() time.Time

	seq atomic.Int64

	// resetMu orders Clear against in-flight Puts; resetFence is the sequence
	// of the last Clear.
	resetMu    sync.RWMutex
	resetFence int64

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// New opens a cache over an initialized database, resuming the sequence
// from the highest one stored.
func New(ctx context.Context, sqlDB *sql.DB, log *logging.Logger) (*Cache, error) {
	if log == nil {
		log = logging.Nop()
	}
	maxSeq, err := db.MaxSeq(ctx, sqlDB)
	if err != nil {
		return nil, err
	}
	c := &Cache{
		db:      sqlDB,
		log:     log,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	c.seq.Store(maxSeq)
	return c, nil
}

// Ticket reserves the next mutation sequence.
func (c *Cache) Ticket() int64 {
	return c.seq.Add(1)
}

// Get returns the live record for tabID, or nil when there is none.
func (c *Cache) Get(ctx context.Context, tabID int64) (*Record, error) {
	row, err := db.GetShipment(ctx, c.db, tabID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return fromRow(row), nil
}

// Set stores a response for tabID unconditionally (with a fresh ticket).
func (c *Cache) Set(ctx context.Context, tabID int64, shipmentID string, body turvo.Body) (*Record, error) {
	rec, _, err := c.Put(ctx, c.Ticket(), tabID, shipmentID, body)
	return rec, err
}

// Put stores a response for tabID under ticket. It reports false, and stores
// nothing, when something newer than ticket was already applied to the tab.
func (c *Cache) Put(ctx context.Context, ticket, tabID int64, shipmentID string, body turvo.Body) (*Record, bool, error) {
	rec := &Record{
		ID:         c.newID(),
		TabID:      tabID,
		ShipmentID: shipmentID,
		Data:       body,
		CapturedAt: c.now().UnixMilli(),
	}
	if body.IsJSON() {
		d, err := Digest(body.JSON)
		if err != nil {
			c.log.Debugf("tab %d: digest skipped: %v", tabID, err)
		}
		rec.Digest = d
	}

	c.resetMu.RLock()
	defer c.resetMu.RUnlock()

	if ticket <= c.resetFence {
		c.log.Infof("tab %d: dropped write %d dispatched before session reset", tabID, ticket)
		return rec, false, nil
	}

	applied, err := db.PutShipment(ctx, c.db, db.ShipmentRow{
		TabID:       tabID,
		RecordID:    rec.ID,
		ShipmentID:  shipmentID,
		ContentType: body.Kind(),
		Data:        string(body.Bytes()),
		Digest:      rec.Digest,
		CapturedAt:  rec.CapturedAt,
		Seq:         ticket,
	})
	if err != nil {
		return nil, false, err
	}
	if !applied {
		c.log.Infof("tab %d: dropped stale write %d", tabID, ticket)
	}
	return rec, applied, nil
}

// Remove evicts tabID's entry. Writes dispatched before the eviction are
// dropped when they land.
func (c *Cache) Remove(ctx context.Context, tabID int64) error {
	_, err := db.EvictShipment(ctx, c.db, tabID, c.Ticket(), c.now().UnixMilli())
	return err
}

// Clear drops every entry and fences off all writes dispatched before it.
// Returns the number of live entries removed.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	c.resetMu.Lock()
	defer c.resetMu.Unlock()

	c.resetFence = c.Ticket()
	return db.ClearShipments(ctx, c.db)
}

// List returns every live record, most recent first.
func (c *Cache) List(ctx context.Context) ([]Record, error) {
	rows, err := db.ListShipments(ctx, c.db)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for i := range rows {
		out = append(out, *fromRow(&rows[i]))
	}
	return out, nil
}

// Digest returns the sha256 hex digest of the RFC 8785 canonical form of raw.
func Digest(raw []byte) (string, error) {
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func (c *Cache) newID() string {
	c.entropyMu.Lock()
	defer c.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(c.now()), c.entropy).String()
}

func fromRow(row *db.ShipmentRow) *Record {
	body := turvo.TextBody(row.Data)
	if row.ContentType == "json" {
		body = turvo.JSONBody([]byte(row.Data))
	}
	return &Record{
		ID:         row.RecordID,
		TabID:      row.TabID,
		ShipmentID: row.ShipmentID,
		Data:       body,
		CapturedAt: row.CapturedAt,
		Digest:     row.Digest,
	}
}
