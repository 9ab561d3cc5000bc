package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrRunNotFound is returned when a run ID has no ledger row
var ErrRunNotFound = errors.New("recording run not found")

// Recording is one ledger row: a single pipeline run for one delivery
type Recording struct {
	RunID           string       `db:"run_id"`
	VideoID         string       `db:"video_id"`
	SourceURL       string       `db:"source_url"`
	DurationSeconds int          `db:"duration_seconds"`
	Status          string       `db:"status"`
	FailedStage     string       `db:"failed_stage"`
	ErrorMessage    string       `db:"error_message"`
	StartedAt       time.Time    `db:"started_at"`
	CompletedAt     sql.NullTime `db:"completed_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

// RunFilter narrows ListRuns
type RunFilter struct {
	VideoID  string
	Status   string
	PageSize int
	Cursor   *RunCursor
}

// RunCursor is the keyset position after the last returned row
type RunCursor struct {
	StartedAt time.Time
	RunID     string
}

// Storage reads and writes the recordings ledger
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// StartRun inserts a RUNNING row for a run that passed decoding
func (s *Storage) StartRun(ctx context.Context, rec *Recording) error {
	query := `
		INSERT INTO recordings (
			run_id, video_id, source_url, duration_seconds,
			status, started_at, updated_at
		) VALUES (
			:run_id, :video_id, :source_url, :duration_seconds,
			:status, :started_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to insert recording run: %w", err)
	}

	s.logger.Debug("Recording run started",
		slog.String("run_id", rec.RunID),
		slog.String("video_id", rec.VideoID),
	)

	return nil
}

// FinishRun moves a run to a terminal status
func (s *Storage) FinishRun(ctx context.Context, runID, status, failedStage, errorMsg string) error {
	query := `
		UPDATE recordings
		SET status = $1,
			failed_stage = $2,
			error_message = $3,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE run_id = $4
	`

	result, err := s.db.ExecContext(ctx, query, status, failedStage, errorMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to update recording run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRunNotFound
	}

	s.logger.Debug("Recording run finished",
		slog.String("run_id", runID),
		slog.String("status", status),
	)

	return nil
}

// GetRun returns one ledger row
func (s *Storage) GetRun(ctx context.Context, runID string) (*Recording, error) {
	query := `
		SELECT run_id, video_id, source_url, duration_seconds, status,
			failed_stage, error_message, started_at, completed_at, updated_at
		FROM recordings
		WHERE run_id = $1
	`

	var rec Recording
	if err := s.db.GetContext(ctx, &rec, query, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get recording run: %w", err)
	}

	return &rec, nil
}

// ListRuns returns up to PageSize+1 rows, newest first, so callers can tell
// whether another page exists
func (s *Storage) ListRuns(ctx context.Context, filter RunFilter) ([]Recording, error) {
	query := `
		SELECT run_id, video_id, source_url, duration_seconds, status,
			failed_stage, error_message, started_at, completed_at, updated_at
		FROM recordings
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.VideoID != "" {
		query += fmt.Sprintf(" AND video_id = $%d", argIdx)
		args = append(args, filter.VideoID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (started_at, run_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.StartedAt, filter.Cursor.RunID)
		argIdx += 2
	}

	query += " ORDER BY started_at DESC, run_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var runs []Recording
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list recording runs: %w", err)
	}

	return runs, nil
}
