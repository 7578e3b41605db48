package storage

import (
	"context"
	"testing"
	"time"

	"guidechat/internal/config"
)

func newTestStore(t *testing.T) *TurnStore {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// migrations are idempotent
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	return NewTurnStore(db)
}

func TestRecordTurnAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	records := []TurnRecord{
		{TurnID: "typing-1", Outcome: "answered", SourceCount: 2, Duration: 1200 * time.Millisecond, StartedAt: base, FinishedAt: base.Add(time.Second)},
		{TurnID: "typing-2", Outcome: "failed", ErrorKind: "network", Duration: 300 * time.Millisecond, StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute + time.Second)},
	}
	for _, rec := range records {
		if err := store.RecordTurn(ctx, rec); err != nil {
			t.Fatalf("record %s: %v", rec.TurnID, err)
		}
	}
	// duplicate ids are ignored
	if err := store.RecordTurn(ctx, records[0]); err != nil {
		t.Fatalf("record duplicate: %v", err)
	}

	got, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].TurnID != "typing-2" || got[1].TurnID != "typing-1" {
		t.Fatalf("expected newest first, got %s then %s", got[0].TurnID, got[1].TurnID)
	}
	if got[0].ErrorKind != "network" {
		t.Fatalf("error kind mismatch: %q", got[0].ErrorKind)
	}
	if got[1].Duration != 1200*time.Millisecond {
		t.Fatalf("duration mismatch: %v", got[1].Duration)
	}
	if got[1].SourceCount != 2 {
		t.Fatalf("source count mismatch: %d", got[1].SourceCount)
	}
	if !got[1].StartedAt.Equal(base) {
		t.Fatalf("started_at mismatch: %v", got[1].StartedAt)
	}

	limited, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestSummaryGroupsByOutcome(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	durations := map[string][]time.Duration{
		"answered":  {time.Second, 3 * time.Second},
		"timed_out": {30 * time.Second},
	}
	n := 0
	for outcome, ds := range durations {
		for _, d := range ds {
			n++
			rec := TurnRecord{
				TurnID:     "typing-" + outcome + "-" + d.String(),
				Outcome:    outcome,
				Duration:   d,
				StartedAt:  now,
				FinishedAt: now.Add(d),
			}
			if err := store.RecordTurn(ctx, rec); err != nil {
				t.Fatalf("record: %v", err)
			}
		}
	}

	summary, err := store.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(summary))
	}
	answered := summary[0]
	if answered.Outcome != "answered" || answered.Count != 2 {
		t.Fatalf("unexpected answered summary %+v", answered)
	}
	if answered.AvgDuration != 2*time.Second || answered.MaxDuration != 3*time.Second {
		t.Fatalf("unexpected answered durations %+v", answered)
	}
	if summary[1].Outcome != "timed_out" || summary[1].Count != 1 {
		t.Fatalf("unexpected timed_out summary %+v", summary[1])
	}
}

func TestRecordTurnRequiresID(t *testing.T) {
	store := newTestStore(t)
	if err := store.RecordTurn(context.Background(), TurnRecord{Outcome: "answered"}); err == nil {
		t.Fatalf("expected error for empty turn id")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"postgres": {}}}
	if _, err := Open("postgres", cfg); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := Open("sqlite3", cfg); err == nil {
		t.Fatalf("expected missing config error")
	}
}

func TestMySQLDSNAddsParseTime(t *testing.T) {
	dsn := mysqlDSN(config.DatabaseConfig{Username: "u", Password: "p", Host: "db", Port: 3306, DBName: "guide", Params: "charset=utf8mb4"})
	want := "u:p@tcp(db:3306)/guide?charset=utf8mb4&parseTime=true"
	if dsn != want {
		t.Fatalf("dsn mismatch: want %s got %s", want, dsn)
	}
}
