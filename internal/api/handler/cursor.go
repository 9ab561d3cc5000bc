package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/recording-worker/internal/storage"
)

// DecodeRunCursor parses an opaque "startedAtNanos|runID" cursor
func DecodeRunCursor(cursorStr string) (*storage.RunCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var startedAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &startedAt); err != nil {
		return nil, fmt.Errorf("invalid started_at in cursor: %w", err)
	}

	return &storage.RunCursor{
		StartedAt: time.Unix(0, startedAt).UTC(),
		RunID:     parts[1],
	}, nil
}

func EncodeRunCursor(cursor *storage.RunCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.StartedAt.UnixNano(), cursor.RunID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
