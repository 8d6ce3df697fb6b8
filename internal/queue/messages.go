package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProcessRequest is the message the serving application publishes to a
// media class request queue.
type ProcessRequest struct {
	MediaID          string          `json:"media_id"`
	UserID           string          `json:"user_id"`
	MediaClass       string          `json:"media_class"`
	SourceKey        string          `json:"source_key"`
	OriginalFilename string          `json:"original_filename"`
	MimeType         string          `json:"mime_type"`
	Options          json.RawMessage `json:"options,omitempty"`
}

// legacyProcessRequest covers the camelCase field names still emitted by
// older publishers. Translated here and nowhere else.
type legacyProcessRequest struct {
	MediaID          string          `json:"mediaId"`
	UserID           string          `json:"userId"`
	MediaClass       string          `json:"mediaClass"`
	SourceKey        string          `json:"sourceKey"`
	OriginalFilename string          `json:"originalFilename"`
	MimeType         string          `json:"mimeType"`
	Options          json.RawMessage `json:"options,omitempty"`
}

// DecodeProcessRequest parses a request message, accepting both the
// canonical snake_case schema and the legacy camelCase one.
func DecodeProcessRequest(body []byte) (*ProcessRequest, error) {
	var req ProcessRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("queue: malformed request: %w", err)
	}
	if req.MediaID == "" && req.SourceKey == "" {
		var legacy legacyProcessRequest
		if err := json.Unmarshal(body, &legacy); err != nil {
			return nil, fmt.Errorf("queue: malformed request: %w", err)
		}
		req = ProcessRequest{
			MediaID:          legacy.MediaID,
			UserID:           legacy.UserID,
			MediaClass:       legacy.MediaClass,
			SourceKey:        legacy.SourceKey,
			OriginalFilename: legacy.OriginalFilename,
			MimeType:         legacy.MimeType,
			Options:          legacy.Options,
		}
	}
	if req.MediaID == "" {
		return nil, fmt.Errorf("queue: request missing media_id")
	}
	if req.SourceKey == "" {
		return nil, fmt.Errorf("queue: request missing source_key")
	}
	return &req, nil
}

// ProgressUpdate is emitted to the updates queue while a job is running.
type ProgressUpdate struct {
	JobID     string    `json:"job_id"`
	MediaID   string    `json:"media_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Step      string    `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

// OutputRecord is the wire form of one derived artifact in a result message.
type OutputRecord struct {
	Kind           string `json:"kind"`
	Quality        string `json:"quality"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	DestinationKey string `json:"destination_key"`
	ByteSize       int64  `json:"byte_size"`
	MimeType       string `json:"mime_type"`
}

// Result is the terminal message for a job.
type Result struct {
	JobID     string         `json:"job_id"`
	MediaID   string         `json:"media_id"`
	Status    string         `json:"status"`
	Outputs   []OutputRecord `json:"outputs,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)
