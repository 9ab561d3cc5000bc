package dto

// CreateRecordingRequest is the body of POST /api/v1/recordings. It carries
// the same fields the worker decodes from the queue.
type CreateRecordingRequest struct {
	URL      string `json:"url" binding:"required,http_url"`
	Duration int    `json:"duration" binding:"gt=0"`
	VideoID  string `json:"vid" binding:"required"`
}

type CreateRecordingResponse struct {
	VideoID string `json:"vid"`
	Queue   string `json:"queue"`
	Status  string `json:"status"`
}

type ListRecordingsRequest struct {
	VideoID  string `form:"vid"`
	Status   string `form:"status" binding:"omitempty,oneof=RUNNING COMPLETED FAILED"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListRecordingsResponse struct {
	Recordings []RecordingDTO `json:"recordings"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type RecordingDTO struct {
	RunID           string `json:"run_id"`
	VideoID         string `json:"vid"`
	SourceURL       string `json:"url"`
	DurationSeconds int    `json:"duration"`
	Status          string `json:"status"`
	FailedStage     string `json:"failed_stage,omitempty"`
	StartedAt       string `json:"started_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
	UpdatedAt       string `json:"updated_at"`
}
