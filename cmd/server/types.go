package main

import (
	"github.com/himanishpuri/DeepQuery/pkg/models"
)

// DeepQueryRequest is the JSON body for POST /api/deep-query. Exactly one
// source is given: a path under the server's library root or a YouTube URL.
type DeepQueryRequest struct {
	Path       string `json:"path" validate:"required_without=YouTubeURL,excluded_with=YouTubeURL"`
	YouTubeURL string `json:"youtube_url" validate:"omitempty,url"`

	// Unset fields fall back to the server defaults.
	SegmentLength *float64 `json:"segment_length" validate:"omitempty,gt=0"`
	Overlap       *float64 `json:"overlap" validate:"omitempty,gte=0"`
	MinSegments   *int     `json:"min_segments" validate:"omitempty,gte=0"`
}

// Params overlays the request's window settings on base.
func (r *DeepQueryRequest) Params(base models.Params) models.Params {
	p := base
	if r.SegmentLength != nil {
		p.SegmentLength = *r.SegmentLength
	}
	if r.Overlap != nil {
		p.Overlap = *r.Overlap
	}
	if r.MinSegments != nil {
		p.MinSegments = *r.MinSegments
	}
	return p
}

// DeepQueryResponse wraps a report; Cached is set when an identical query was
// answered from memory.
type DeepQueryResponse struct {
	*models.Report
	Cached bool `json:"cached"`
}

// ListRunsResponse is the response for GET /api/runs
type ListRunsResponse struct {
	Runs  []models.RunSummary `json:"runs"`
	Count int                 `json:"count"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
