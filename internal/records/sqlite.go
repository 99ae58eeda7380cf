package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS client_records (
	id TEXT PRIMARY KEY,
	name TEXT,
	organization TEXT,
	event_name TEXT,
	pic TEXT,
	contact_first TEXT,
	contact_second TEXT,
	event_instagram TEXT,
	organizer_instagram TEXT,
	pricing_scheme TEXT,
	capacity INTEGER,
	ticket_price INTEGER,
	active INTEGER NOT NULL DEFAULT 1,
	meeting_at DATETIME,
	meeting_event_id TEXT,
	meeting_notes TEXT,
	ticket_sale_at DATETIME,
	ticket_sale_event_id TEXT,
	ticket_sale_notes TEXT,
	event_day_at DATETIME,
	event_day_event_id TEXT,
	event_day_notes TEXT,
	event_day_venue TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_client_records_active ON client_records(active);

CREATE TABLE IF NOT EXISTS reminder_markers (
	record_id TEXT NOT NULL REFERENCES client_records(id) ON DELETE CASCADE,
	marker_key TEXT NOT NULL,
	sent_at DATETIME NOT NULL,
	PRIMARY KEY (record_id, marker_key)
);
`

// SQLiteStore persists records in a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path in WAL mode and
// applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// One connection serializes writers and avoids "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) GetOrCreate(ctx context.Context, id string) (ClientRecord, error) {
	if id == "" {
		return ClientRecord{}, ErrEmptyID
	}

	now := s.now()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO client_records (id, active, created_at, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, id, now, now); err != nil {
		return ClientRecord{}, fmt.Errorf("failed to create record: %w", err)
	}

	return s.load(ctx, s.db, id)
}

func (s *SQLiteStore) Update(ctx context.Context, id string, patch Patch) (ClientRecord, error) {
	if id == "" {
		return ClientRecord{}, ErrEmptyID
	}
	if err := patch.Validate(); err != nil {
		return ClientRecord{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ClientRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	record, err := s.load(ctx, tx, id)
	if err != nil {
		return ClientRecord{}, err
	}

	patch.Apply(&record, s.now())

	if err := writeSQLiteRecord(ctx, tx, record); err != nil {
		return ClientRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return ClientRecord{}, fmt.Errorf("failed to commit record update: %w", err)
	}
	return record, nil
}

func (s *SQLiteStore) ListActive(ctx context.Context) ([]ClientRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM client_records WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []ClientRecord
	index := make(map[string]int)
	for rows.Next() {
		r, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	markers, err := s.db.QueryContext(ctx, `
		SELECT m.record_id, m.marker_key, m.sent_at
		FROM reminder_markers m
		JOIN client_records r ON r.id = m.record_id
		WHERE r.active = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminder markers: %w", err)
	}
	defer markers.Close()

	for markers.Next() {
		var recordID, key string
		var at time.Time
		if err := markers.Scan(&recordID, &key, &at); err != nil {
			return nil, fmt.Errorf("failed to scan reminder marker: %w", err)
		}
		if i, ok := index[recordID]; ok {
			if out[i].RemindersSent == nil {
				out[i].RemindersSent = make(map[ReminderKey]time.Time)
			}
			out[i].RemindersSent[ReminderKey(key)] = at
		}
	}
	return out, markers.Err()
}

func (s *SQLiteStore) RecordReminder(ctx context.Context, id string, key ReminderKey, at time.Time) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM client_records WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to check record: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO reminder_markers (record_id, marker_key, sent_at)
		VALUES (?, ?, ?)
		ON CONFLICT (record_id, marker_key) DO NOTHING
	`, id, string(key), at)
	if err != nil {
		return false, fmt.Errorf("failed to write reminder marker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read marker result: %w", err)
	}
	if n == 1 {
		if _, err := tx.ExecContext(ctx, `UPDATE client_records SET updated_at = ? WHERE id = ?`, s.now(), id); err != nil {
			return false, fmt.Errorf("failed to touch record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit reminder marker: %w", err)
	}
	return n == 1, nil
}

// Upsert writes the record fields and merges its reminder markers.
func (s *SQLiteStore) Upsert(ctx context.Context, record ClientRecord) error {
	if record.ID == "" {
		return ErrEmptyID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO client_records (id, active, created_at, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, record.ID, record.CreatedAt, now); err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	if err := writeSQLiteRecord(ctx, tx, record); err != nil {
		return err
	}
	for key, at := range record.RemindersSent {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reminder_markers (record_id, marker_key, sent_at)
			VALUES (?, ?, ?)
			ON CONFLICT (record_id, marker_key) DO NOTHING
		`, record.ID, string(key), at); err != nil {
			return fmt.Errorf("failed to import reminder marker: %w", err)
		}
	}
	return tx.Commit()
}

type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) load(ctx context.Context, q sqlQuerier, id string) (ClientRecord, error) {
	record, err := scanSQLiteRecord(q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM client_records WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ClientRecord{}, ErrNotFound
	}
	if err != nil {
		return ClientRecord{}, err
	}

	rows, err := q.QueryContext(ctx, `SELECT marker_key, sent_at FROM reminder_markers WHERE record_id = ?`, id)
	if err != nil {
		return ClientRecord{}, fmt.Errorf("failed to load reminder markers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var at time.Time
		if err := rows.Scan(&key, &at); err != nil {
			return ClientRecord{}, fmt.Errorf("failed to scan reminder marker: %w", err)
		}
		if record.RemindersSent == nil {
			record.RemindersSent = make(map[ReminderKey]time.Time)
		}
		record.RemindersSent[ReminderKey(key)] = at
	}
	return record, rows.Err()
}

func scanSQLiteRecord(row interface{ Scan(dest ...any) error }) (ClientRecord, error) {
	var (
		r                      ClientRecord
		name, org, eventName   sql.NullString
		pic, cp1, cp2          sql.NullString
		igEvent, igOrg         sql.NullString
		pricing                sql.NullString
		capacity, price        sql.NullInt64
		active                 int64
		meetingAt, saleAt      sql.NullTime
		dayAt                  sql.NullTime
		meetingID, meetingNote sql.NullString
		saleID, saleNote       sql.NullString
		dayID, dayNote         sql.NullString
		dayVenue               sql.NullString
	)

	err := row.Scan(
		&r.ID, &name, &org, &eventName, &pic, &cp1, &cp2, &igEvent, &igOrg, &pricing,
		&capacity, &price, &active,
		&meetingAt, &meetingID, &meetingNote,
		&saleAt, &saleID, &saleNote,
		&dayAt, &dayID, &dayNote, &dayVenue,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ClientRecord{}, err
		}
		return ClientRecord{}, fmt.Errorf("failed to scan record: %w", err)
	}

	r.Name, r.Organization, r.EventName, r.PIC = nullString(name), nullString(org), nullString(eventName), nullString(pic)
	r.ContactFirst, r.ContactSecond = nullString(cp1), nullString(cp2)
	r.EventInstagram, r.OrganizerInstagram, r.PricingScheme = nullString(igEvent), nullString(igOrg), nullString(pricing)
	r.Capacity, r.TicketPrice = nullInt(capacity), nullInt(price)
	r.Active = active != 0
	r.Meeting = FlowState{ScheduledAt: nullTime(meetingAt), ExternalEventID: nullString(meetingID), Notes: nullString(meetingNote)}
	r.TicketSale = FlowState{ScheduledAt: nullTime(saleAt), ExternalEventID: nullString(saleID), Notes: nullString(saleNote)}
	r.EventDay = FlowState{ScheduledAt: nullTime(dayAt), ExternalEventID: nullString(dayID), Notes: nullString(dayNote), Venue: nullString(dayVenue)}
	return r, nil
}

func writeSQLiteRecord(ctx context.Context, tx *sql.Tx, r ClientRecord) error {
	active := 0
	if r.Active {
		active = 1
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE client_records SET
			name = ?, organization = ?, event_name = ?, pic = ?, contact_first = ?, contact_second = ?,
			event_instagram = ?, organizer_instagram = ?, pricing_scheme = ?, capacity = ?, ticket_price = ?,
			active = ?,
			meeting_at = ?, meeting_event_id = ?, meeting_notes = ?,
			ticket_sale_at = ?, ticket_sale_event_id = ?, ticket_sale_notes = ?,
			event_day_at = ?, event_day_event_id = ?, event_day_notes = ?, event_day_venue = ?,
			updated_at = ?
		WHERE id = ?
	`,
		r.Name, r.Organization, r.EventName, r.PIC, r.ContactFirst, r.ContactSecond,
		r.EventInstagram, r.OrganizerInstagram, r.PricingScheme, r.Capacity, r.TicketPrice,
		active,
		r.Meeting.ScheduledAt, r.Meeting.ExternalEventID, r.Meeting.Notes,
		r.TicketSale.ScheduledAt, r.TicketSale.ExternalEventID, r.TicketSale.Notes,
		r.EventDay.ScheduledAt, r.EventDay.ExternalEventID, r.EventDay.Notes, r.EventDay.Venue,
		r.UpdatedAt,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}
