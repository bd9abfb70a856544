package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Newrona-pi/textgame-chatapp/internal/affection"
	"github.com/Newrona-pi/textgame-chatapp/internal/policy"
)

// PostgresStore persists tag records in PostgreSQL.
type PostgresStore struct {
	pool     *pgxpool.Pool
	redactor policy.Redactor
}

func NewPostgresStore(ctx context.Context, databaseURL string, redactor policy.Redactor) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, redactor: redactor}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tag_records (
			id TEXT PRIMARY KEY,
			character_id TEXT NOT NULL,
			tag_id TEXT NOT NULL,
			last_location_lat DOUBLE PRECISION,
			last_location_lon DOUBLE PRECISION,
			last_location_time TIMESTAMPTZ,
			affection_level INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (character_id, tag_id)
		);`,
		`CREATE TABLE IF NOT EXISTS tag_conversations (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			record_id TEXT NOT NULL REFERENCES tag_records(id) ON DELETE CASCADE,
			message TEXT NOT NULL,
			sender TEXT NOT NULL CHECK (sender IN ('user', 'character')),
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tag_conversations_record ON tag_conversations (record_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const selectRecordSQL = `SELECT id, character_id, tag_id, last_location_lat, last_location_lon,
	last_location_time, affection_level, created_at, updated_at
	FROM tag_records WHERE character_id=$1 AND tag_id=$2`

func (s *PostgresStore) Append(ctx context.Context, req AppendRequest) (History, error) {
	req, entries, err := prepare(req, s.redactor)
	if err != nil {
		return History{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return History{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO tag_records (id, character_id, tag_id, affection_level, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (character_id, tag_id) DO NOTHING`,
		uuid.NewString(), req.CharacterID, req.TagID, affection.Default, req.At,
	); err != nil {
		return History{}, fmt.Errorf("create record: %w", err)
	}

	rec, err := scanRecord(tx.QueryRow(ctx, selectRecordSQL+" FOR UPDATE", req.CharacterID, req.TagID))
	if err != nil {
		return History{}, fmt.Errorf("lock record: %w", err)
	}
	apply(&rec, req)

	if _, err := tx.Exec(ctx,
		`UPDATE tag_records SET last_location_lat=$2, last_location_lon=$3, last_location_time=$4,
		 affection_level=$5, updated_at=$6 WHERE id=$1`,
		rec.ID, rec.LastLat, rec.LastLon, rec.LastLocationAt, rec.Affection, rec.UpdatedAt,
	); err != nil {
		return History{}, fmt.Errorf("update record: %w", err)
	}

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO tag_conversations (id, record_id, message, sender, pii_redacted, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), rec.ID, e.Message, string(e.Sender), e.PIIRedacted, e.Timestamp,
		); err != nil {
			return History{}, fmt.Errorf("append conversation: %w", err)
		}
	}

	out, err := loadEntries(ctx, tx, rec)
	if err != nil {
		return History{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return History{}, fmt.Errorf("commit append: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) History(ctx context.Context, characterID, tagID string) (History, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, selectRecordSQL, characterID, tagID))
	if errors.Is(err, pgx.ErrNoRows) {
		return History{}, ErrNotFound
	}
	if err != nil {
		return History{}, fmt.Errorf("query record: %w", err)
	}
	return loadEntries(ctx, s.pool, rec)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.CharacterID, &r.TagID, &r.LastLat, &r.LastLon,
		&r.LastLocationAt, &r.Affection, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func loadEntries(ctx context.Context, q querier, rec Record) (History, error) {
	rows, err := q.Query(ctx,
		`SELECT id, message, sender, pii_redacted, created_at
		 FROM tag_conversations WHERE record_id=$1 ORDER BY seq`,
		rec.ID,
	)
	if err != nil {
		return History{}, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	out := History{Record: rec, Entries: []LogEntry{}}
	for rows.Next() {
		var e LogEntry
		var sender string
		if err := rows.Scan(&e.ID, &e.Message, &sender, &e.PIIRedacted, &e.Timestamp); err != nil {
			return History{}, fmt.Errorf("scan conversation row: %w", err)
		}
		e.Sender = Sender(sender)
		out.Entries = append(out.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return History{}, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return out, nil
}
