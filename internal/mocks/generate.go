// Package mocks provides mock implementations for testing the analysis queue and webhook services.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	mockRepo := mocks.NewMockAnalysisJobRepository(ctrl)
//	mockRepo.EXPECT().ReserveNext(gomock.Any()).Return(job, nil)
//
// Small collaborators (validator, analyzer, event publisher, idempotency store)
// have hand-written doubles in the fakes subpackage.
package mocks

// Repository ports from internal/core:
// AnalysisJobRepository, DeliveryRepository, RetentionRepository, WebhookRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=mock_repositories.go github.com/target/mmk-analysis-api/internal/core AnalysisJobRepository,DeliveryRepository,RetentionRepository,WebhookRepository
