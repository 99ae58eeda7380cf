package records

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps records in PostgreSQL. The pool is owned by the caller
// and is never closed by the store.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	now    func() time.Time
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the tables (default "milestonesync").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("records: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore wraps pool. Call EnsureSchema before first use.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "milestonesync", now: time.Now}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("records: nil pool")
	}
	return st, nil
}

// OpenPostgres parses url, connects and pings.
func OpenPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

func (s *PostgresStore) table(name string) string {
	return `"` + s.schema + `"."` + name + `"`
}

// EnsureSchema creates the schema and tables if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE SCHEMA IF NOT EXISTS "` + s.schema + `";

CREATE TABLE IF NOT EXISTS ` + s.table("client_records") + ` (
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
	capacity BIGINT,
	ticket_price BIGINT,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	meeting_at TIMESTAMPTZ,
	meeting_event_id TEXT,
	meeting_notes TEXT,
	ticket_sale_at TIMESTAMPTZ,
	ticket_sale_event_id TEXT,
	ticket_sale_notes TEXT,
	event_day_at TIMESTAMPTZ,
	event_day_event_id TEXT,
	event_day_notes TEXT,
	event_day_venue TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ` + s.table("reminder_markers") + ` (
	record_id TEXT NOT NULL REFERENCES ` + s.table("client_records") + `(id) ON DELETE CASCADE,
	marker_key TEXT NOT NULL,
	sent_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (record_id, marker_key)
);
`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to apply records schema: %w", err)
	}
	return nil
}

// Ping checks the pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, id string) (ClientRecord, error) {
	if id == "" {
		return ClientRecord{}, ErrEmptyID
	}
	now := s.now()
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table("client_records")+` (id, active, created_at, updated_at)
		VALUES ($1, TRUE, $2, $2)
		ON CONFLICT (id) DO NOTHING
	`, id, now); err != nil {
		return ClientRecord{}, fmt.Errorf("failed to create record: %w", err)
	}
	return s.load(ctx, s.pool, id, false)
}

func (s *PostgresStore) Update(ctx context.Context, id string, patch Patch) (ClientRecord, error) {
	if id == "" {
		return ClientRecord{}, ErrEmptyID
	}
	if err := patch.Validate(); err != nil {
		return ClientRecord{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return ClientRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	record, err := s.load(ctx, tx, id, true)
	if err != nil {
		return ClientRecord{}, err
	}
	patch.Apply(&record, s.now())

	if err := s.write(ctx, tx, record); err != nil {
		return ClientRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ClientRecord{}, fmt.Errorf("failed to commit record update: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]ClientRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+recordColumns+` FROM `+s.table("client_records")+` WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []ClientRecord
	index := make(map[string]int)
	for rows.Next() {
		r, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, err
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	markers, err := s.pool.Query(ctx, `
		SELECT m.record_id, m.marker_key, m.sent_at
		FROM `+s.table("reminder_markers")+` m
		JOIN `+s.table("client_records")+` r ON r.id = m.record_id
		WHERE r.active
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

func (s *PostgresStore) RecordReminder(ctx context.Context, id string, key ReminderKey, at time.Time) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var one int
	err = tx.QueryRow(ctx, `SELECT 1 FROM `+s.table("client_records")+` WHERE id = $1 FOR UPDATE`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to check record: %w", err)
	}

	ct, err := tx.Exec(ctx, `
		INSERT INTO `+s.table("reminder_markers")+` (record_id, marker_key, sent_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (record_id, marker_key) DO NOTHING
	`, id, string(key), at)
	if err != nil {
		return false, fmt.Errorf("failed to write reminder marker: %w", err)
	}
	wrote := ct.RowsAffected() == 1
	if wrote {
		if _, err := tx.Exec(ctx, `UPDATE `+s.table("client_records")+` SET updated_at = $1 WHERE id = $2`, s.now(), id); err != nil {
			return false, fmt.Errorf("failed to touch record: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit reminder marker: %w", err)
	}
	return wrote, nil
}

// Upsert writes the record fields and merges its reminder markers.
func (s *PostgresStore) Upsert(ctx context.Context, record ClientRecord) error {
	if record.ID == "" {
		return ErrEmptyID
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if _, err := tx.Exec(ctx, `
		INSERT INTO `+s.table("client_records")+` (id, active, created_at, updated_at)
		VALUES ($1, TRUE, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, record.ID, record.CreatedAt, now); err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	if err := s.write(ctx, tx, record); err != nil {
		return err
	}
	for key, at := range record.RemindersSent {
		if _, err := tx.Exec(ctx, `
			INSERT INTO `+s.table("reminder_markers")+` (record_id, marker_key, sent_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (record_id, marker_key) DO NOTHING
		`, record.ID, string(key), at); err != nil {
			return fmt.Errorf("failed to import reminder marker: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit record import: %w", err)
	}
	return nil
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PostgresStore) load(ctx context.Context, q pgQuerier, id string, forUpdate bool) (ClientRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM ` + s.table("client_records") + ` WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	record, err := scanPostgresRecord(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ClientRecord{}, ErrNotFound
	}
	if err != nil {
		return ClientRecord{}, err
	}

	rows, err := q.Query(ctx, `SELECT marker_key, sent_at FROM `+s.table("reminder_markers")+` WHERE record_id = $1`, id)
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

func scanPostgresRecord(row pgx.Row) (ClientRecord, error) {
	var r ClientRecord
	err := row.Scan(
		&r.ID, &r.Name, &r.Organization, &r.EventName, &r.PIC, &r.ContactFirst, &r.ContactSecond,
		&r.EventInstagram, &r.OrganizerInstagram, &r.PricingScheme, &r.Capacity, &r.TicketPrice, &r.Active,
		&r.Meeting.ScheduledAt, &r.Meeting.ExternalEventID, &r.Meeting.Notes,
		&r.TicketSale.ScheduledAt, &r.TicketSale.ExternalEventID, &r.TicketSale.Notes,
		&r.EventDay.ScheduledAt, &r.EventDay.ExternalEventID, &r.EventDay.Notes, &r.EventDay.Venue,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClientRecord{}, err
		}
		return ClientRecord{}, fmt.Errorf("failed to scan record: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) write(ctx context.Context, tx pgx.Tx, r ClientRecord) error {
	_, err := tx.Exec(ctx, `
		UPDATE `+s.table("client_records")+` SET
			name = $2, organization = $3, event_name = $4, pic = $5, contact_first = $6, contact_second = $7,
			event_instagram = $8, organizer_instagram = $9, pricing_scheme = $10, capacity = $11, ticket_price = $12,
			active = $13,
			meeting_at = $14, meeting_event_id = $15, meeting_notes = $16,
			ticket_sale_at = $17, ticket_sale_event_id = $18, ticket_sale_notes = $19,
			event_day_at = $20, event_day_event_id = $21, event_day_notes = $22, event_day_venue = $23,
			updated_at = $24
		WHERE id = $1
	`,
		r.ID,
		r.Name, r.Organization, r.EventName, r.PIC, r.ContactFirst, r.ContactSecond,
		r.EventInstagram, r.OrganizerInstagram, r.PricingScheme, r.Capacity, r.TicketPrice,
		r.Active,
		r.Meeting.ScheduledAt, r.Meeting.ExternalEventID, r.Meeting.Notes,
		r.TicketSale.ScheduledAt, r.TicketSale.ExternalEventID, r.TicketSale.Notes,
		r.EventDay.ScheduledAt, r.EventDay.ExternalEventID, r.EventDay.Notes, r.EventDay.Venue,
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}
