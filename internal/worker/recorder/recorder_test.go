package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/recording-worker/internal/worker/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// shellRecorder runs script through /bin/sh with the positional arguments
// as $1, $2, $3
func shellRecorder(t *testing.T, script string, timeout time.Duration) (*Recorder, string) {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	r, err := New(Config{
		Dir:       dir,
		Command:   "sh",
		Args:      []string{"-c", script, "export.js"},
		OutputDir: filepath.Join(dir, "out"),
		Timeout:   timeout,
	}, discardLogger())
	require.NoError(t, err)
	return r, dir
}

func TestRecord_PassesPositionalArgumentsInRecorderDir(t *testing.T) {
	r, dir := shellRecorder(t, `printf '%s\n' "$1" "$2" "$3" > args.txt`, 0)

	path, err := r.Record(context.Background(), "https://host/play?x", 59)
	require.NoError(t, err)

	args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, "https://host/play?x\nexport.webm\n59\n", string(args))
	assert.Equal(t, filepath.Join(dir, "out", "export.webm"), path)
}

func TestRecord_NoShellInterpolation(t *testing.T) {
	r, dir := shellRecorder(t, `printf '%s' "$1" > args.txt`, 0)

	hostile := "https://host/p?a=1'; touch pwned; echo '"
	_, err := r.Record(context.Background(), hostile, 5)
	require.NoError(t, err)

	args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, hostile, string(args))
	assert.NoFileExists(t, filepath.Join(dir, "pwned"))
}

func TestRecord_NonZeroExit(t *testing.T) {
	r, _ := shellRecorder(t, `echo "browser crashed" >&2; exit 3`, 0)

	path, err := r.Record(context.Background(), "https://host/play", 10)
	require.Error(t, err)
	assert.Empty(t, path)

	var recErr *domain.RecordingError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, "browser crashed", recErr.Output)

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode())
}

func TestRecord_SpawnFailure(t *testing.T) {
	r, err := New(Config{
		Dir:       t.TempDir(),
		Command:   "definitely-not-a-recorder-binary",
		OutputDir: t.TempDir(),
	}, discardLogger())
	require.NoError(t, err)

	_, err = r.Record(context.Background(), "https://host/play", 10)
	var recErr *domain.RecordingError
	assert.True(t, errors.As(err, &recErr))
}

func TestRecord_Timeout(t *testing.T) {
	r, _ := shellRecorder(t, `sleep 5`, 50*time.Millisecond)

	start := time.Now()
	_, err := r.Record(context.Background(), "https://host/play", 1)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestNew(t *testing.T) {
	_, err := New(Config{}, discardLogger())
	assert.Error(t, err)

	r, err := New(Config{Command: "node", OutputDir: "relative/dir", OutputFile: "clip.webm"}, discardLogger())
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(r.ArtifactPath()))
	assert.Equal(t, "clip.webm", filepath.Base(r.ArtifactPath()))
}
