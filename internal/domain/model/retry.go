package model

import "time"

// MaxBulkRetryIDs bounds the size of one bulk retry request.
const MaxBulkRetryIDs = 50

// Classification is the caller-facing interpretation of a failure.
type Classification struct {
	Code        string `json:"code"`
	Retryable   bool   `json:"retryable"`
	UserMessage string `json:"userMessage"`
}

// RetryMetadata describes whether and when a failed analysis can be retried.
type RetryMetadata struct {
	LastError   *string        `json:"lastError"`
	ErrorCode   *string        `json:"errorCode,omitempty"`
	UserMessage string         `json:"userMessage,omitempty"`
	RetryCount  int            `json:"retryCount"`
	MaxRetries  int            `json:"maxRetries"`
	NextRetryAt *time.Time     `json:"nextRetryAt"`
	IsRetryable bool           `json:"isRetryable"`
	Status      AnalysisStatus `json:"status"`
}

// BulkRetryRequest is the body of the bulk retry endpoint.
type BulkRetryRequest struct {
	AnalysisIDs    []string `json:"analysisIds"`
	OrganizationID *string  `json:"organizationId,omitempty"`
}

// BulkRetryFailure records why one id was not retried.
type BulkRetryFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkRetryResult partitions the requested ids.
type BulkRetryResult struct {
	Successful []string           `json:"successful"`
	Failed     []BulkRetryFailure `json:"failed"`
}
