package main

import (
	"github.com/liamcoop/calcengine/calculations"
	"github.com/liamcoop/calcengine/internal/logger"
)

// Envelope wraps every successful response body
type Envelope struct {
	Data any `json:"data"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string                   `json:"error"`
	Details string                   `json:"details,omitempty"`
	Fields  calculations.FieldErrors `json:"fields,omitempty"`
}

// TemplatesResponse is the data of GET /templates
type TemplatesResponse struct {
	Templates []*calculations.Template `json:"templates"`
}

// CompareRequest is the body of POST /compare
type CompareRequest struct {
	ResultIDs []string `json:"resultIds"`
}

// HealthResponse is the body of GET /api/health
type HealthResponse struct {
	Status          string       `json:"status"`
	Storage         string       `json:"storage"`
	TemplatesLoaded int          `json:"templatesLoaded"`
	Error           string       `json:"error,omitempty"`
	Counters        logger.Stats `json:"counters"`
}
