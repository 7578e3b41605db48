package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TurnRecord is the journal entry for one finished turn. It never carries
// question or answer text.
type TurnRecord struct {
	TurnID      string        `json:"turn_id"`
	Outcome     string        `json:"outcome"`
	ErrorKind   string        `json:"error_kind,omitempty"`
	SourceCount int           `json:"source_count"`
	Duration    time.Duration `json:"duration"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// OutcomeSummary aggregates journal entries sharing an outcome.
type OutcomeSummary struct {
	Outcome     string        `json:"outcome"`
	Count       int           `json:"count"`
	AvgDuration time.Duration `json:"avg_duration"`
	MaxDuration time.Duration `json:"max_duration"`
}

// TurnStore reads and writes the turns table.
type TurnStore struct {
	db *sql.DB
}

func NewTurnStore(db *sql.DB) *TurnStore {
	return &TurnStore{db: db}
}

// RecordTurn inserts rec. Recording the same turn twice is a no-op.
func (s *TurnStore) RecordTurn(ctx context.Context, rec TurnRecord) error {
	if s == nil || s.db == nil {
		return errors.New("turn store not initialized")
	}
	if rec.TurnID == "" {
		return errors.New("turn id required")
	}
	exists, err := s.exists(ctx, rec.TurnID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (turn_id, outcome, error_kind, source_count, duration_ms, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.TurnID, rec.Outcome, rec.ErrorKind, rec.SourceCount,
		rec.Duration.Milliseconds(), rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert turn %s: %w", rec.TurnID, err)
	}
	return nil
}

func (s *TurnStore) exists(ctx context.Context, turnID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM turns WHERE turn_id = ?`, turnID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup turn %s: %w", turnID, err)
	}
	return n > 0, nil
}

// Recent returns up to limit entries, newest first.
func (s *TurnStore) Recent(ctx context.Context, limit int) ([]TurnRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("turn store not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_id, outcome, error_kind, source_count, duration_ms, started_at, finished_at
		 FROM turns ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var (
			rec        TurnRecord
			durationMS int64
		)
		if err := rows.Scan(&rec.TurnID, &rec.Outcome, &rec.ErrorKind, &rec.SourceCount,
			&durationMS, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summary groups the journal by outcome, ordered by outcome name.
func (s *TurnStore) Summary(ctx context.Context) ([]OutcomeSummary, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("turn store not initialized")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(1), AVG(duration_ms), MAX(duration_ms)
		 FROM turns GROUP BY outcome ORDER BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("query turn summary: %w", err)
	}
	defer rows.Close()

	var out []OutcomeSummary
	for rows.Next() {
		var (
			sum   OutcomeSummary
			avgMS float64
			maxMS int64
		)
		if err := rows.Scan(&sum.Outcome, &sum.Count, &avgMS, &maxMS); err != nil {
			return nil, fmt.Errorf("scan turn summary: %w", err)
		}
		sum.AvgDuration = time.Duration(avgMS * float64(time.Millisecond))
		sum.MaxDuration = time.Duration(maxMS) * time.Millisecond
		out = append(out, sum)
	}
	return out, rows.Err()
}
