package uploader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cuongbtq/recording-worker/internal/worker/domain"
)

// Uploader streams artifacts to the upload endpoint
type Uploader struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an Uploader. A zero timeout leaves transfers unbounded.
// Redirects are not followed: a 3xx is returned as-is and fails the upload.
func New(timeout time.Duration, logger *slog.Logger) *Uploader {
	return &Uploader{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Upload POSTs the file at path to destination with a bearer token signed
// from destination and secret. The body is streamed from disk.
func (u *Uploader) Upload(ctx context.Context, path, destination, secret string) error {
	token, err := SignURL(destination, secret)
	if err != nil {
		return &domain.UploadError{Destination: destination, Err: err}
	}

	file, err := os.Open(path)
	if err != nil {
		return &domain.UploadError{Destination: destination, Err: err}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return &domain.UploadError{Destination: destination, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, file)
	if err != nil {
		return &domain.UploadError{Destination: destination, Err: err}
	}
	req.ContentLength = info.Size()
	req.Header.Set("Authorization", "Bearer "+token)

	u.logger.Info("Uploading artifact",
		slog.String("path", path),
		slog.String("destination", destination),
		slog.Int64("size_bytes", info.Size()),
	)

	start := time.Now()
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return &domain.UploadError{Destination: destination, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &domain.UploadError{
			Destination: destination,
			StatusCode:  resp.StatusCode,
			Err:         fmt.Errorf("unexpected response: %q", detail),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	u.logger.Info("Artifact uploaded",
		slog.String("destination", destination),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	return nil
}
