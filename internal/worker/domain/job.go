package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Job is the decoded body of one queue message
type Job struct {
	SourceURL       string `json:"url" validate:"required,http_url"`
	DurationSeconds int    `json:"duration" validate:"gt=0"`
	VideoID         string `json:"vid" validate:"required"`
}

// DecodeJob parses and validates a message body. Every failure wraps ErrDecode.
func DecodeJob(body []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if err := validate.Struct(job); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return job, nil
}

// Destination substitutes the job's video ID into an upload URI template
func (j Job) Destination(template, placeholder string) string {
	return strings.ReplaceAll(template, placeholder, j.VideoID)
}
