// Package devserver implements the local record-store backend: a SQLite
// database of daily records and push subscriptions, fronted by a chi REST
// router compatible with the recordstore client.
package devserver

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/perch/daybook/internal/apperr"
	"github.com/perch/daybook/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS daily_records (
	date       TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	submitted  INTEGER NOT NULL DEFAULT 0,
	checksum   TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS push_subscriptions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	caregiver_id INTEGER NOT NULL,
	platform     TEXT NOT NULL DEFAULT 'web_push',
	endpoint     TEXT NOT NULL,
	keys         TEXT NOT NULL DEFAULT '{}',
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(caregiver_id, endpoint)
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_caregiver ON push_subscriptions(caregiver_id);
`

// DB wraps a sql.DB with record-store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("devserver: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("devserver: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("devserver: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// UpsertRecord inserts or replaces a daily record. checksum tracks the
// fixture file the record came from; records created through the API keep
// an empty checksum.
func (db *DB) UpsertRecord(rec *models.DailyRecord, checksum string) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("devserver: marshal record: %w", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO daily_records (date, payload, submitted, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			payload    = excluded.payload,
			submitted  = excluded.submitted,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, rec.Date, string(payload), boolToInt(rec.Diary.Submitted), checksum, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("devserver: upsert record: %w", err)
	}
	return nil
}

// GetRecord returns the record for the given date, or apperr.ErrNotFound.
func (db *DB) GetRecord(date string) (*models.DailyRecord, error) {
	var payload string
	err := db.conn.QueryRow(`SELECT payload FROM daily_records WHERE date = ?`, date).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("devserver: get record: %w", err)
	}
	var rec models.DailyRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("devserver: decode record %s: %w", date, err)
	}
	return &rec, nil
}

// ListRecords returns every record in chronological order.
func (db *DB) ListRecords() ([]*models.DailyRecord, error) {
	rows, err := db.conn.Query(`SELECT payload FROM daily_records ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("devserver: list records: %w", err)
	}
	defer rows.Close()

	var out []*models.DailyRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec models.DailyRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("devserver: decode record: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// DeleteRecord removes the record for the given date.
func (db *DB) DeleteRecord(date string) error {
	_, err := db.conn.Exec(`DELETE FROM daily_records WHERE date = ?`, date)
	if err != nil {
		return fmt.Errorf("devserver: delete record: %w", err)
	}
	return nil
}

// Checksums returns the fixture checksum for every stored date.
func (db *DB) Checksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT date, checksum FROM daily_records`)
	if err != nil {
		return nil, fmt.Errorf("devserver: checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var date, cs string
		if err := rows.Scan(&date, &cs); err != nil {
			return nil, err
		}
		out[date] = cs
	}
	return out, rows.Err()
}

// SubscriptionRow is a stored push subscription.
type SubscriptionRow struct {
	ID          int64           `json:"id"`
	CaregiverID int             `json:"caregiver_id"`
	Platform    string          `json:"platform"`
	Endpoint    string          `json:"endpointOrToken"`
	Keys        json.RawMessage `json:"keys"`
}

// CreateSubscription inserts a subscription and returns its id. An existing
// row for the same caregiver and endpoint is replaced in place.
func (db *DB) CreateSubscription(sub *SubscriptionRow) (int64, error) {
	keys := sub.Keys
	if len(keys) == 0 {
		keys = json.RawMessage(`{}`)
	}
	res, err := db.conn.Exec(`
		INSERT INTO push_subscriptions (caregiver_id, platform, endpoint, keys, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(caregiver_id, endpoint) DO UPDATE SET
			platform   = excluded.platform,
			keys       = excluded.keys,
			updated_at = excluded.updated_at
	`, sub.CaregiverID, sub.Platform, sub.Endpoint, string(keys), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("devserver: create subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("devserver: subscription id: %w", err)
	}
	// Upsert on conflict reuses the existing row id.
	var stored int64
	if err := db.conn.QueryRow(
		`SELECT id FROM push_subscriptions WHERE caregiver_id = ? AND endpoint = ?`,
		sub.CaregiverID, sub.Endpoint,
	).Scan(&stored); err == nil {
		id = stored
	}
	return id, nil
}

// UpdateSubscription replaces the subscription with the given id, or returns
// apperr.ErrNotFound when no such row exists.
func (db *DB) UpdateSubscription(id int64, sub *SubscriptionRow) error {
	keys := sub.Keys
	if len(keys) == 0 {
		keys = json.RawMessage(`{}`)
	}
	res, err := db.conn.Exec(`
		UPDATE push_subscriptions
		SET caregiver_id = ?, platform = ?, endpoint = ?, keys = ?, updated_at = ?
		WHERE id = ?
	`, sub.CaregiverID, sub.Platform, sub.Endpoint, string(keys), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("devserver: update subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("devserver: update subscription: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// SubscriptionsByCaregiver returns every subscription for a caregiver.
func (db *DB) SubscriptionsByCaregiver(caregiverID int) ([]SubscriptionRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, caregiver_id, platform, endpoint, keys
		FROM push_subscriptions WHERE caregiver_id = ? ORDER BY id
	`, caregiverID)
	if err != nil {
		return nil, fmt.Errorf("devserver: list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []SubscriptionRow
	for rows.Next() {
		var row SubscriptionRow
		var keys string
		if err := rows.Scan(&row.ID, &row.CaregiverID, &row.Platform, &row.Endpoint, &keys); err != nil {
			return nil, err
		}
		row.Keys = json.RawMessage(keys)
		out = append(out, row)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
