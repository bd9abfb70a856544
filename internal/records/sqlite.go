package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Newrona-pi/textgame-chatapp/internal/affection"
	"github.com/Newrona-pi/textgame-chatapp/internal/policy"
)

// SQLiteStore persists tag records in an embedded SQLite file.
type SQLiteStore struct {
	db       *sql.DB
	redactor policy.Redactor
}

// NewSQLiteStore opens (or creates) the database at path with WAL journaling.
func NewSQLiteStore(ctx context.Context, path string, redactor policy.Redactor) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Serialize writers; SQLite allows one at a time.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := initSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, redactor: redactor}, nil
}

func initSQLiteSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tag_records (
			id TEXT PRIMARY KEY,
			character_id TEXT NOT NULL,
			tag_id TEXT NOT NULL,
			last_location_lat REAL,
			last_location_lon REAL,
			last_location_time TEXT,
			affection_level INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (character_id, tag_id)
		);`,
		`CREATE TABLE IF NOT EXISTS tag_conversations (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			record_id TEXT NOT NULL REFERENCES tag_records(id) ON DELETE CASCADE,
			message TEXT NOT NULL,
			sender TEXT NOT NULL CHECK (sender IN ('user', 'character')),
			pii_redacted INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tag_conversations_record ON tag_conversations (record_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const sqliteTimeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(sqliteTimeLayout) }

const selectSQLiteRecordSQL = `SELECT id, character_id, tag_id, last_location_lat, last_location_lon,
	last_location_time, affection_level, created_at, updated_at
	FROM tag_records WHERE character_id=? AND tag_id=?`

func (s *SQLiteStore) Append(ctx context.Context, req AppendRequest) (History, error) {
	req, entries, err := prepare(req, s.redactor)
	if err != nil {
		return History{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return History{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(req.At)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tag_records (id, character_id, tag_id, affection_level, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (character_id, tag_id) DO NOTHING`,
		uuid.NewString(), req.CharacterID, req.TagID, affection.Default, now, now,
	); err != nil {
		return History{}, fmt.Errorf("create record: %w", err)
	}

	rec, err := scanSQLiteRecord(tx.QueryRowContext(ctx, selectSQLiteRecordSQL, req.CharacterID, req.TagID))
	if err != nil {
		return History{}, fmt.Errorf("load record: %w", err)
	}
	apply(&rec, req)

	var locTime sql.NullString
	if rec.LastLocationAt != nil {
		locTime = sql.NullString{String: formatTime(*rec.LastLocationAt), Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tag_records SET last_location_lat=?, last_location_lon=?, last_location_time=?,
		 affection_level=?, updated_at=? WHERE id=?`,
		nullFloat(rec.LastLat), nullFloat(rec.LastLon), locTime, rec.Affection, formatTime(rec.UpdatedAt), rec.ID,
	); err != nil {
		return History{}, fmt.Errorf("update record: %w", err)
	}

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tag_conversations (id, record_id, message, sender, pii_redacted, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), rec.ID, e.Message, string(e.Sender), e.PIIRedacted, formatTime(e.Timestamp),
		); err != nil {
			return History{}, fmt.Errorf("append conversation: %w", err)
		}
	}

	out, err := loadSQLiteEntries(ctx, tx, rec)
	if err != nil {
		return History{}, err
	}
	if err := tx.Commit(); err != nil {
		return History{}, fmt.Errorf("commit append: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) History(ctx context.Context, characterID, tagID string) (History, error) {
	rec, err := scanSQLiteRecord(s.db.QueryRowContext(ctx, selectSQLiteRecordSQL, characterID, tagID))
	if errors.Is(err, sql.ErrNoRows) {
		return History{}, ErrNotFound
	}
	if err != nil {
		return History{}, fmt.Errorf("query record: %w", err)
	}
	return loadSQLiteEntries(ctx, s.db, rec)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, s)
}

func scanSQLiteRecord(row *sql.Row) (Record, error) {
	var (
		r                Record
		lat, lon         sql.NullFloat64
		locTime          sql.NullString
		created, updated string
	)
	if err := row.Scan(&r.ID, &r.CharacterID, &r.TagID, &lat, &lon, &locTime, &r.Affection, &created, &updated); err != nil {
		return Record{}, err
	}
	if lat.Valid && lon.Valid {
		la, lo := lat.Float64, lon.Float64
		r.LastLat, r.LastLon = &la, &lo
	}
	if locTime.Valid {
		t, err := parseTime(locTime.String)
		if err != nil {
			return Record{}, fmt.Errorf("parse last_location_time: %w", err)
		}
		r.LastLocationAt = &t
	}
	var err error
	if r.CreatedAt, err = parseTime(created); err != nil {
		return Record{}, fmt.Errorf("parse created_at: %w", err)
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return Record{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return r, nil
}

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadSQLiteEntries(ctx context.Context, q sqlQuerier, rec Record) (History, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, message, sender, pii_redacted, created_at
		 FROM tag_conversations WHERE record_id=? ORDER BY seq`,
		rec.ID,
	)
	if err != nil {
		return History{}, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	out := History{Record: rec, Entries: []LogEntry{}}
	for rows.Next() {
		var (
			e       LogEntry
			sender  string
			created string
		)
		if err := rows.Scan(&e.ID, &e.Message, &sender, &e.PIIRedacted, &created); err != nil {
			return History{}, fmt.Errorf("scan conversation row: %w", err)
		}
		e.Sender = Sender(sender)
		if e.Timestamp, err = parseTime(created); err != nil {
			return History{}, fmt.Errorf("parse conversation time: %w", err)
		}
		out.Entries = append(out.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return History{}, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return out, nil
}
