package model

import "time"

// Pagination is a validated page request.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// RequestFilter narrows dashboard listings and stats.
type RequestFilter struct {
	Method     string
	StatusCode int
	Search     string
	From       *time.Time
	To         *time.Time
}

type RequestPage struct {
	Items      []Request `json:"items"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	Total      int64     `json:"total"`
	TotalPages int       `json:"total_pages"`
}

type CountByKey struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

type SlowPath struct {
	Path        string  `json:"path"`
	AvgDuration float64 `json:"avg_duration"`
	Count       int64   `json:"count"`
}

type Stats struct {
	TotalRequests int64        `json:"total_requests"`
	ErrorRequests int64        `json:"error_requests"`
	ErrorRate     float64      `json:"error_rate"` // percent
	AvgDuration   float64      `json:"avg_duration"`
	Exceptions    int64        `json:"exceptions"`
	ByMethod      []CountByKey `json:"by_method"`
	ByStatus      []CountByKey `json:"by_status"`
	SlowestPaths  []SlowPath   `json:"slowest_paths"`
}

// CleanupCriteria selects requests for bulk deletion. Exactly one of the
// selectors is expected to be set.
type CleanupCriteria struct {
	OlderThanDays int
	StatusCode    int
	Method        string
}

type CleanupResult struct {
	Criteria  string    `json:"criteria"`
	Cutoff    time.Time `json:"cutoff"`
	Requests  int64     `json:"requests"`
	Payloads  int64     `json:"payloads"`
	Responses int64     `json:"responses"`
	DryRun    bool      `json:"dry_run"`
}
