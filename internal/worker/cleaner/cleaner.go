package cleaner

import (
	"os"

	"github.com/cuongbtq/recording-worker/internal/worker/domain"
)

// Clean removes the artifact at path. A missing file is an error.
func Clean(path string) error {
	if err := os.Remove(path); err != nil {
		return &domain.CleanupError{Path: path, Err: err}
	}
	return nil
}
