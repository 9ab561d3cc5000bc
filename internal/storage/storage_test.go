package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB connects to RECORDINGS_TEST_DATABASE_URL and applies the schema
func openTestDB(t *testing.T) *Storage {
	t.Helper()

	dsn := os.Getenv("RECORDINGS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("RECORDINGS_TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("../../migrations/001_create_recordings.up.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	return NewStorage(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStorage_RunLifecycle(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := &Recording{
		RunID:           uuid.NewString(),
		VideoID:         "vid-" + uuid.NewString(),
		SourceURL:       "https://host/play?x",
		DurationSeconds: 59,
		Status:          "RUNNING",
		StartedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, s.StartRun(ctx, rec))

	got, err := s.GetRun(ctx, rec.RunID)
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", got.Status)
	assert.False(t, got.CompletedAt.Valid)

	require.NoError(t, s.FinishRun(ctx, rec.RunID, "FAILED", "upload", "status 502"))

	got, err = s.GetRun(ctx, rec.RunID)
	require.NoError(t, err)
	assert.Equal(t, "FAILED", got.Status)
	assert.Equal(t, "upload", got.FailedStage)
	assert.True(t, got.CompletedAt.Valid)

	runs, err := s.ListRuns(ctx, RunFilter{VideoID: rec.VideoID, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rec.RunID, runs[0].RunID)
}

func TestStorage_MissingRun(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	_, err := s.GetRun(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = s.FinishRun(ctx, uuid.NewString(), "COMPLETED", "", "")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
