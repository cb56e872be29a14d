package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CaptureError is an error attached to a captured exchange.
type CaptureError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// QueryInput is one SQL statement observed while serving a request.
type QueryInput struct {
	SQL        string    `json:"sql"`
	DurationMs float64   `json:"duration"`
	ExecutedAt time.Time `json:"executedAt"`
}

// CaptureInput is the raw record handed from the middleware (or the ingestion
// endpoint) to the capture pipeline.
type CaptureInput struct {
	Method       string            `json:"method"`
	Path         string            `json:"path"`
	Controller   string            `json:"controller,omitempty"`
	StatusCode   int               `json:"statusCode"`
	RequestBody  json.RawMessage   `json:"requestBody,omitempty"`
	ResponseBody json.RawMessage   `json:"responseBody,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	IPAddress    string            `json:"ipAddress,omitempty"`
	ResponseTime float64           `json:"responseTime"`
	UserID       string            `json:"userId,omitempty"`
	UUID         string            `json:"uuid,omitempty"`
	Error        *CaptureError     `json:"error,omitempty"`

	// Byte counts observed by the capture writer when the buffered body was
	// cut short; zero means the body field holds everything.
	RequestBodySize  int `json:"-"`
	ResponseBodySize int `json:"-"`

	Queries []QueryInput `json:"-"`
}

// NormalizedBody is a validated JSON document plus the byte length of the
// body it was derived from.
type NormalizedBody struct {
	JSON      datatypes.JSON
	Size      int
	Truncated bool
}

// NormalizedCapture is a CaptureInput that passed validation.
type NormalizedCapture struct {
	ID           uuid.UUID // zero when the store should generate one
	Method       string
	Path         string
	Controller   string
	StatusCode   int
	RequestBody  *NormalizedBody
	ResponseBody *NormalizedBody
	Headers      map[string]string // lower-case names
	IPAddress    string
	DurationMs   int64
	UserID       *uuid.UUID
	Error        *CaptureError
	Queries      []QueryInput
}

// CaptureResult is what the capture transaction committed.
type CaptureResult struct {
	Request *Request
	Method  *Method
	Status  *Status
}

const (
	TopicNewRequest   = "new_request"
	TopicErrorRequest = "error_request"
)

// Event is the compact notification published after a capture commits.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"statusCode"`
	Duration   int64     `json:"duration"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewEvent builds the notification payload for a committed capture.
func NewEvent(res *CaptureResult) Event {
	return Event{
		ID:         res.Request.ID,
		Method:     res.Method.Name,
		Path:       res.Request.Path,
		StatusCode: res.Status.Code,
		Duration:   res.Request.Duration,
		Timestamp:  res.Request.Happened,
	}
}

// IsError reports whether the event also belongs on the error topic.
func (e Event) IsError() bool {
	return e.StatusCode >= 400
}
