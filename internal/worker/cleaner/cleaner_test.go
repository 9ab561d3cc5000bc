package cleaner

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/recording-worker/internal/worker/domain"
)

func TestClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unit-test.webm")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.NoError(t, Clean(path))
	assert.NoFileExists(t, path)
}

func TestClean_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never-recorded.webm")

	err := Clean(path)
	require.Error(t, err)

	var cleanupErr *domain.CleanupError
	require.True(t, errors.As(err, &cleanupErr))
	assert.Equal(t, path, cleanupErr.Path)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
