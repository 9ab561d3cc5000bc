package domain

import (
	"errors"
	"fmt"
	"os"
)

// ErrDecode is returned when a message body is not a valid job
var ErrDecode = errors.New("invalid job message")

// RecordingError reports a failed recorder subprocess
type RecordingError struct {
	Output string
	Err    error
}

func (e *RecordingError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("recording failed: %v", e.Err)
	}
	return fmt.Sprintf("recording failed: %v: %s", e.Err, e.Output)
}

func (e *RecordingError) Unwrap() error {
	return e.Err
}

// UploadError reports a failed upload; StatusCode is set when the
// destination answered with a non-success status
type UploadError struct {
	Destination string
	StatusCode  int
	Err         error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload to %s failed with status %d: %v", e.Destination, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upload to %s failed: %v", e.Destination, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// CleanupError reports a failed artifact removal
type CleanupError struct {
	Path string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("failed to remove %s: %v", e.Path, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// ShutdownError reports a failed broker close after a termination signal
type ShutdownError struct {
	Signal os.Signal
	Err    error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("shutdown after %v failed: %v", e.Signal, e.Err)
}

func (e *ShutdownError) Unwrap() error {
	return e.Err
}

// FailedStage names the pipeline stage that produced err
func FailedStage(err error) string {
	var (
		recErr     *RecordingError
		uploadErr  *UploadError
		cleanupErr *CleanupError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecode):
		return StageDecode
	case errors.As(err, &recErr):
		return StageRecord
	case errors.As(err, &uploadErr):
		return StageUpload
	case errors.As(err, &cleanupErr):
		return StageClean
	default:
		return "unknown"
	}
}
