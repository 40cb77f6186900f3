// Package buildlog keeps a history of index builds in PostgreSQL: when each
// build ran, what it produced and how many records it rejected.
package buildlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/builder"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	"github.com/google/uuid"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS index_builds (
		id            UUID PRIMARY KEY,
		started_at    TIMESTAMPTZ NOT NULL,
		finished_at   TIMESTAMPTZ NOT NULL,
		output        TEXT NOT NULL,
		generation    TEXT NOT NULL DEFAULT '',
		records       INTEGER NOT NULL,
		accepted      INTEGER NOT NULL,
		duplicates    INTEGER NOT NULL,
		rejected      INTEGER NOT NULL,
		entries       INTEGER NOT NULL,
		partitions    INTEGER NOT NULL,
		reject_reasons JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS index_builds_started_at_idx ON index_builds (started_at DESC)`,
}

// Build is one recorded build.
type Build struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Output     string         `json:"output"`
	Generation string         `json:"generation,omitempty"`
	Report     builder.Report `json:"report"`
}

// Duration is how long the build took.
func (b Build) Duration() time.Duration { return b.FinishedAt.Sub(b.StartedAt) }

// NewBuild starts a record for a build writing to output.
func NewBuild(output string, startedAt time.Time) Build {
	return Build{ID: uuid.NewString(), StartedAt: startedAt.UTC(), Output: output}
}

// Store persists builds.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{db: db, logger: slog.Default().With("component", "build-log")}
}

// EnsureSchema creates the history table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.db.Migrate(ctx, schema...); err != nil {
		return fmt.Errorf("creating build history schema: %w", err)
	}
	return nil
}

// Record stores b.
func (s *Store) Record(ctx context.Context, b Build) error {
	reasons, err := json.Marshal(b.Report.RejectReasons)
	if err != nil {
		return fmt.Errorf("encoding reject reasons: %w", err)
	}
	if b.Report.RejectReasons == nil {
		reasons = []byte("{}")
	}
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO index_builds
			(id, started_at, finished_at, output, generation, records, accepted, duplicates, rejected, entries, partitions, reject_reasons)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			b.ID, b.StartedAt, b.FinishedAt, b.Output, b.Generation,
			b.Report.Records, b.Report.Accepted, b.Report.Duplicates, b.Report.Rejected,
			b.Report.Entries, b.Report.Partitions, string(reasons),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("recording build %s: %w", b.ID, err)
	}
	s.logger.Info("build recorded",
		"build_id", b.ID,
		"output", b.Output,
		"rejected", b.Report.Rejected,
	)
	return nil
}

// List returns the most recent builds, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Build, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, started_at, finished_at, output, generation, records, accepted, duplicates, rejected, entries, partitions, reject_reasons
		FROM index_builds ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying builds: %w", err)
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating builds: %w", err)
	}
	return builds, nil
}

// Latest returns the most recent build, or ok=false when none was recorded.
func (s *Store) Latest(ctx context.Context) (Build, bool, error) {
	builds, err := s.List(ctx, 1)
	if err != nil || len(builds) == 0 {
		return Build{}, false, err
	}
	return builds[0], true, nil
}

func scanBuild(rows *sql.Rows) (Build, error) {
	var b Build
	var reasons []byte
	err := rows.Scan(&b.ID, &b.StartedAt, &b.FinishedAt, &b.Output, &b.Generation,
		&b.Report.Records, &b.Report.Accepted, &b.Report.Duplicates, &b.Report.Rejected,
		&b.Report.Entries, &b.Report.Partitions, &reasons)
	if err != nil {
		return Build{}, fmt.Errorf("scanning build: %w", err)
	}
	if err := json.Unmarshal(reasons, &b.Report.RejectReasons); err != nil {
		return Build{}, fmt.Errorf("decoding reject reasons of build %s: %w", b.ID, err)
	}
	return b, nil
}

// Completed is published on the index-complete topic when a build has been
// written, so running search services can reload.
type Completed struct {
	BuildID     string    `json:"build_id"`
	Output      string    `json:"output"`
	Generation  string    `json:"generation,omitempty"`
	Entries     int       `json:"entries"`
	Partitions  int       `json:"partitions"`
	Rejected    int       `json:"rejected"`
	CompletedAt time.Time `json:"completed_at"`
}

// Completed returns the announcement for b.
func (b Build) Completed() Completed {
	return Completed{
		BuildID:     b.ID,
		Output:      b.Output,
		Generation:  b.Generation,
		Entries:     b.Report.Entries,
		Partitions:  b.Report.Partitions,
		Rejected:    b.Report.Rejected,
		CompletedAt: b.FinishedAt,
	}
}
