// Package postgres provides a PostgreSQL-backed implementation of
// [store.Store].
//
// Sessions live in a single sessions table: scalar listing columns plus JSONB
// payloads for the transcript log, summary, meeting context, and extraction
// results. [New] runs [Migrate] on startup so a fresh database needs no
// manual schema setup.
//
// Usage:
//
//	st, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//
//	_ = st.Save(ctx, rec)
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kaigi-app/kaigi/pkg/store"
	"github.com/kaigi-app/kaigi/pkg/types"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id                   TEXT         PRIMARY KEY,
    title                TEXT         NOT NULL DEFAULT '',
    status               TEXT         NOT NULL DEFAULT 'completed',
    started_at           TIMESTAMPTZ  NOT NULL,
    ended_at             TIMESTAMPTZ  NOT NULL,
    duration_ns          BIGINT       NOT NULL DEFAULT 0,
    participant_count    INTEGER      NOT NULL DEFAULT 0,
    transcription_count  INTEGER      NOT NULL DEFAULT 0,
    has_summary          BOOLEAN      NOT NULL DEFAULT false,
    has_materials        BOOLEAN      NOT NULL DEFAULT false,
    transcriptions       JSONB        NOT NULL DEFAULT '[]',
    summary_data         JSONB,
    meeting_context      JSONB,
    decisions            JSONB        NOT NULL DEFAULT '[]',
    action_items         JSONB        NOT NULL DEFAULT '[]',
    created_at           TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at           TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_started_at
    ON sessions (started_at DESC);
`

// Store is the PostgreSQL session store. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, and runs [Migrate] to ensure the sessions table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("session store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("session store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("session store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate creates the sessions table and its indexes if they do not exist.
// It is idempotent and safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlSessions); err != nil {
		return fmt.Errorf("sessions DDL: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the database connection, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Save implements [store.Store]. Saving an existing ID replaces the row.
func (s *Store) Save(ctx context.Context, rec store.Record) error {
	transcriptions, err := json.Marshal(rec.Transcriptions)
	if err != nil {
		return fmt.Errorf("session store: marshal transcriptions: %w", err)
	}
	decisions, err := json.Marshal(rec.Decisions)
	if err != nil {
		return fmt.Errorf("session store: marshal decisions: %w", err)
	}
	actionItems, err := json.Marshal(rec.ActionItems)
	if err != nil {
		return fmt.Errorf("session store: marshal action items: %w", err)
	}

	var summary, meetingCtx []byte
	if rec.Summary != nil {
		if summary, err = json.Marshal(rec.Summary); err != nil {
			return fmt.Errorf("session store: marshal summary: %w", err)
		}
	}
	if rec.Context != nil {
		if meetingCtx, err = json.Marshal(rec.Context); err != nil {
			return fmt.Errorf("session store: marshal meeting context: %w", err)
		}
	}

	const q = `
		INSERT INTO sessions
		    (id, title, status, started_at, ended_at, duration_ns,
		     participant_count, transcription_count, has_summary, has_materials,
		     transcriptions, summary_data, meeting_context, decisions, action_items)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
		    title               = EXCLUDED.title,
		    status              = EXCLUDED.status,
		    started_at          = EXCLUDED.started_at,
		    ended_at            = EXCLUDED.ended_at,
		    duration_ns         = EXCLUDED.duration_ns,
		    participant_count   = EXCLUDED.participant_count,
		    transcription_count = EXCLUDED.transcription_count,
		    has_summary         = EXCLUDED.has_summary,
		    has_materials       = EXCLUDED.has_materials,
		    transcriptions      = EXCLUDED.transcriptions,
		    summary_data        = EXCLUDED.summary_data,
		    meeting_context     = EXCLUDED.meeting_context,
		    decisions           = EXCLUDED.decisions,
		    action_items        = EXCLUDED.action_items,
		    updated_at          = now()`

	_, err = s.pool.Exec(ctx, q,
		rec.ID,
		rec.Title,
		rec.Status,
		rec.StartedAt,
		rec.EndedAt,
		rec.Duration.Nanoseconds(),
		rec.ParticipantCount,
		len(rec.Transcriptions),
		rec.Summary != nil,
		rec.HasMaterials,
		transcriptions,
		summary,
		meetingCtx,
		decisions,
		actionItems,
	)
	if err != nil {
		return fmt.Errorf("session store: save %s: %w", rec.ID, err)
	}
	return nil
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, id string) (store.Record, error) {
	const q = `
		SELECT id, title, status, started_at, ended_at, duration_ns,
		       participant_count, has_materials,
		       transcriptions, summary_data, meeting_context, decisions, action_items
		FROM   sessions
		WHERE  id = $1`

	var (
		rec        store.Record
		durationNS int64

		transcriptions, decisions, actionItems []byte
		summary, meetingCtx                    []byte
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&rec.ID,
		&rec.Title,
		&rec.Status,
		&rec.StartedAt,
		&rec.EndedAt,
		&durationNS,
		&rec.ParticipantCount,
		&rec.HasMaterials,
		&transcriptions,
		&summary,
		&meetingCtx,
		&decisions,
		&actionItems,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Record{}, fmt.Errorf("session store: get %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("session store: get %s: %w", id, err)
	}

	rec.Duration = time.Duration(durationNS)
	if err := json.Unmarshal(transcriptions, &rec.Transcriptions); err != nil {
		return store.Record{}, fmt.Errorf("session store: unmarshal transcriptions: %w", err)
	}
	if err := json.Unmarshal(decisions, &rec.Decisions); err != nil {
		return store.Record{}, fmt.Errorf("session store: unmarshal decisions: %w", err)
	}
	if err := json.Unmarshal(actionItems, &rec.ActionItems); err != nil {
		return store.Record{}, fmt.Errorf("session store: unmarshal action items: %w", err)
	}
	if len(summary) > 0 {
		rec.Summary = &types.Summary{}
		if err := json.Unmarshal(summary, rec.Summary); err != nil {
			return store.Record{}, fmt.Errorf("session store: unmarshal summary: %w", err)
		}
	}
	if len(meetingCtx) > 0 {
		rec.Context = &types.MeetingContext{}
		if err := json.Unmarshal(meetingCtx, rec.Context); err != nil {
			return store.Record{}, fmt.Errorf("session store: unmarshal meeting context: %w", err)
		}
	}
	rec.HasSummary = rec.Summary != nil
	return rec, nil
}

// List implements [store.Store]. Sessions are returned newest first.
func (s *Store) List(ctx context.Context) ([]store.ListEntry, error) {
	const q = `
		SELECT id, title, status, started_at, duration_ns,
		       transcription_count, has_summary, has_materials
		FROM   sessions
		ORDER  BY started_at DESC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("session store: list: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.ListEntry, error) {
		var (
			e          store.ListEntry
			durationNS int64
		)
		if err := row.Scan(
			&e.ID,
			&e.Title,
			&e.Status,
			&e.StartedAt,
			&durationNS,
			&e.TranscriptionCount,
			&e.HasSummary,
			&e.HasMaterials,
		); err != nil {
			return store.ListEntry{}, err
		}
		e.Duration = time.Duration(durationNS)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("session store: collect list rows: %w", err)
	}
	return entries, nil
}
