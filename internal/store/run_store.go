package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vbonduro/snackcheck/internal/domain"
)

// RunStore persists run metadata for the optional run log.
type RunStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Start records a run in the running state.
func (s *RunStore) Start(ctx context.Context, requestID, provider string) (*domain.Run, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (request_id, provider, status, started_at) VALUES (?, ?, ?, ?)
	`, requestID, provider, domain.RunStatusRunning, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// Finish closes a run with its outcome. errorKind is empty on success.
func (s *RunStore) Finish(ctx context.Context, requestID, status, errorKind string, extractedLen int, ocr, gen time.Duration) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, error_kind = ?, extracted_len = ?, ocr_ms = ?, gen_ms = ?, finished_at = ?
		WHERE request_id = ?
	`, status, errorKind, extractedLen, ocr.Milliseconds(), gen.Milliseconds(), s.now(), requestID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("run not found")
	}
	return nil
}

const runColumns = `id, request_id, provider, status, error_kind, extracted_len, ocr_ms, gen_ms, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.Run, error) {
	run := &domain.Run{}
	var finished sql.NullTime
	if err := row.Scan(&run.ID, &run.RequestID, &run.Provider, &run.Status, &run.ErrorKind,
		&run.ExtractedLen, &run.OCRMillis, &run.GenMillis, &run.StartedAt, &finished); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}

func (s *RunStore) GetByID(ctx context.Context, id int64) (*domain.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRecent returns up to limit runs, newest first.
func (s *RunStore) ListRecent(ctx context.Context, limit int) ([]*domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}
