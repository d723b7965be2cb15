package data

import "github.com/target/mmk-analysis-api/internal/domain/model"

// Sentinel errors returned by the repositories in this package. They alias the
// model errors so callers outside the data layer can match them with errors.Is.
var (
	ErrAnalysisNotFound  = model.ErrAnalysisNotFound
	ErrNotInQueue        = model.ErrNotInQueue
	ErrJobNotRequeueable = model.ErrJobNotRequeueable
	ErrWebhookNotFound   = model.ErrWebhookNotFound
	ErrDeliveryNotFound  = model.ErrDeliveryNotFound
)
