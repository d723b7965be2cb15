package model

import "errors"

// Lookup and state errors shared by repositories, services and transport.
var (
	ErrAnalysisNotFound = errors.New("analysis job not found")
	// ErrNotInQueue is returned for jobs that have already reached a terminal state.
	ErrNotInQueue = errors.New("analysis job is not queued")
	// ErrJobNotRequeueable is returned when a requeue finds the job outside the failed state.
	ErrJobNotRequeueable = errors.New("analysis job is not in a requeueable state")

	ErrWebhookNotFound  = errors.New("webhook not found")
	ErrDeliveryNotFound = errors.New("webhook delivery not found")
)
