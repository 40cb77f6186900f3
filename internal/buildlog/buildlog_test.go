package buildlog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/builder"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

func TestNewBuild(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	b := NewBuild("html/search", start)
	if b.ID == "" || b.Output != "html/search" {
		t.Errorf("unexpected build %+v", b)
	}
	if b.StartedAt.Location() != time.UTC {
		t.Error("start time should be stored in UTC")
	}
	b.FinishedAt = b.StartedAt.Add(1500 * time.Millisecond)
	if b.Duration() != 1500*time.Millisecond {
		t.Errorf("Duration = %v", b.Duration())
	}
	if NewBuild("x", start).ID == b.ID {
		t.Error("build ids must be unique")
	}
}

// TestStoreRoundTrip needs a database; set DOCSEARCH_TEST_POSTGRES=1 and the
// usual DOCSEARCH_POSTGRES_* variables to run it.
func TestStoreRoundTrip(t *testing.T) {
	if os.Getenv("DOCSEARCH_TEST_POSTGRES") == "" {
		t.Skip("DOCSEARCH_TEST_POSTGRES not set")
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	store := NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	b := NewBuild(t.TempDir(), time.Now())
	b.FinishedAt = b.StartedAt.Add(time.Second)
	b.Report = builder.Report{Records: 10, Accepted: 7, Duplicates: 1, Rejected: 2,
		RejectReasons: map[string]int{"empty_name": 2}, Entries: 5, Partitions: 3}
	if err := store.Record(ctx, b); err != nil {
		t.Fatalf("Record: %v", err)
	}
	defer db.DB.ExecContext(ctx, `DELETE FROM index_builds WHERE id = $1`, b.ID)

	latest, ok, err := store.Latest(ctx)
	if err != nil || !ok {
		t.Fatalf("Latest: %v, %v", ok, err)
	}
	if latest.ID != b.ID || latest.Report.RejectReasons["empty_name"] != 2 {
		t.Errorf("latest = %+v", latest)
	}
}
