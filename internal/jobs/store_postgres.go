package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/docvoice/internal/session"
)

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore writes job rows into two tables, one per flow. It works
// against any Postgres, including Supabase.
type PostgresStore struct {
	db     pgExecer
	close  func()
	tables Tables
}

func NewPostgresStore(ctx context.Context, databaseURL string, tables Tables) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{db: pool, close: pool.Close, tables: tables}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	tts := pgx.Identifier{s.tables.StandardTTS}.Sanitize()
	clone := pgx.Identifier{s.tables.VoiceClone}.Sanitize()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + tts + ` (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			document_url TEXT NOT NULL DEFAULT '',
			voice_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{"idx_" + s.tables.StandardTTS + "_user"}.Sanitize() +
			` ON ` + tts + ` (user_id);`,
		`CREATE TABLE IF NOT EXISTS ` + clone + ` (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			document_url TEXT NOT NULL DEFAULT '',
			reference_audio_url TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{"idx_" + s.tables.VoiceClone + "_user"}.Sanitize() +
			` ON ` + clone + ` (user_id);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init job schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) InsertJob(ctx context.Context, rec Record) error {
	table, err := s.tables.For(rec.Flow)
	if err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	ident := pgx.Identifier{table}.Sanitize()

	switch rec.Flow {
	case session.FlowStandardTTS:
		_, err = s.db.Exec(ctx,
			`INSERT INTO `+ident+` (id, user_id, document_url, voice_id, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ID, rec.UserID, rec.DocumentURL, rec.VoiceID, string(rec.Status), rec.CreatedAt,
		)
	default:
		_, err = s.db.Exec(ctx,
			`INSERT INTO `+ident+` (id, user_id, document_url, reference_audio_url, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ID, rec.UserID, rec.DocumentURL, rec.ReferenceAudioURL, string(rec.Status), rec.CreatedAt,
		)
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJob only carries a voice patch; voice-clone rows have no voice column.
func (s *PostgresStore) UpdateJob(ctx context.Context, flow session.Flow, userID string, patch Patch) error {
	if flow != session.FlowStandardTTS || patch.VoiceID == "" {
		return nil
	}
	ident := pgx.Identifier{s.tables.StandardTTS}.Sanitize()
	if _, err := s.db.Exec(ctx,
		`UPDATE `+ident+` SET voice_id=$1 WHERE user_id=$2 AND status <> $3`,
		patch.VoiceID, userID, string(StatusQueued),
	); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
