package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hpungsan/shiplens/internal/errors"
)

// ShipmentRow is one live per-tab cache entry as stored.
type ShipmentRow struct {
	TabID       int64
	RecordID    string
	ShipmentID  string
	ContentType string
	Data        string
	Digest      string
	CapturedAt  int64 // unix milliseconds
	Seq         int64
}

// PutShipment writes row for its tab if row.Seq is newer than whatever was
// last written or evicted for that tab. Returns false when the write was fenced off.
func PutShipment(ctx context.Context, db *sql.DB, row ShipmentRow) (bool, error) {
	query := `
		INSERT INTO tab_shipments (
			tab_id, record_id, shipment_id, content_type, data, digest, captured_at, seq, evicted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(tab_id) DO UPDATE SET
			record_id    = excluded.record_id,
			shipment_id  = excluded.shipment_id,
			content_type = excluded.content_type,
			data         = excluded.data,
			digest       = excluded.digest,
			captured_at  = excluded.captured_at,
			seq          = excluded.seq,
			evicted_at   = NULL
		WHERE excluded.seq > tab_shipments.seq
	`

	res, err := db.ExecContext(ctx, query,
		row.TabID, row.RecordID, row.ShipmentID, row.ContentType,
		row.Data, toNullString(row.Digest), row.CapturedAt, row.Seq,
	)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

// EvictShipment replaces the tab's entry with a tombstone at seq.
// Returns false when a newer write already exists for the tab.
func EvictShipment(ctx context.Context, db *sql.DB, tabID, seq, evictedAt int64) (bool, error) {
	query := `
		INSERT INTO tab_shipments (tab_id, seq, evicted_at) VALUES (?, ?, ?)
		ON CONFLICT(tab_id) DO UPDATE SET
			record_id    = NULL,
			shipment_id  = NULL,
			content_type = NULL,
			data         = NULL,
			digest       = NULL,
			captured_at  = NULL,
			seq          = excluded.seq,
			evicted_at   = excluded.evicted_at
		WHERE excluded.seq > tab_shipments.seq
	`

	res, err := db.ExecContext(ctx, query, tabID, seq, evictedAt)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

// GetShipment returns the live entry for tabID.
// Returns a NOT_FOUND error if the tab has no entry or was evicted.
func GetShipment(ctx context.Context, db *sql.DB, tabID int64) (*ShipmentRow, error) {
	query := `
		SELECT tab_id, record_id, shipment_id, content_type, data, digest, captured_at, seq
		FROM tab_shipments
		WHERE tab_id = ? AND evicted_at IS NULL
	`

	row, err := scanShipment(db.QueryRowContext(ctx, query, tabID))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(fmt.Sprintf("tab %d", tabID))
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return row, nil
}

// ListShipments returns all live entries, most recently captured first.
func ListShipments(ctx context.Context, db *sql.DB) ([]ShipmentRow, error) {
	query := `
		SELECT tab_id, record_id, shipment_id, content_type, data, digest, captured_at, seq
		FROM tab_shipments
		WHERE evicted_at IS NULL
		ORDER BY captured_at DESC, tab_id ASC
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var result []ShipmentRow
	for rows.Next() {
		r, err := scanShipment(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return result, nil
}

// ClearShipments deletes every entry and tombstone.
// Returns the number of live entries that were removed.
func ClearShipments(ctx context.Context, db *sql.DB) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	defer tx.Rollback()

	var live int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM tab_shipments WHERE evicted_at IS NULL").Scan(&live); err != nil {
		return 0, errors.NewInternal(err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tab_shipments"); err != nil {
		return 0, errors.NewInternal(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.NewInternal(err)
	}
	return live, nil
}

// MaxSeq returns the highest fencing sequence recorded, or 0.
func MaxSeq(ctx context.Context, db *sql.DB) (int64, error) {
	var seq int64
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM tab_shipments").Scan(&seq); err != nil {
		return 0, errors.NewInternal(err)
	}
	return seq, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanShipment(s rowScanner) (*ShipmentRow, error) {
	var (
		r           ShipmentRow
		recordID    sql.NullString
		shipmentID  sql.NullString
		contentType sql.NullString
		data        sql.NullString
		digest      sql.NullString
		capturedAt  sql.NullInt64
	)
	if err := s.Scan(&r.TabID, &recordID, &shipmentID, &contentType, &data, &digest, &capturedAt, &r.Seq); err != nil {
		return nil, err
	}
	r.RecordID = recordID.String
	r.ShipmentID = shipmentID.String
	r.ContentType = contentType.String
	r.Data = data.String
	r.Digest = digest.String
	r.CapturedAt = capturedAt.Int64
	return &r, nil
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
