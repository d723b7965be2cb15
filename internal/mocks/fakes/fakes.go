// Package fakes contains simple hand-written test doubles for the small core ports.
// These are lightweight and suitable for unit tests without codegen.
package fakes

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/target/mmk-analysis-api/internal/core"
	"github.com/target/mmk-analysis-api/internal/domain/model"
)

// Ensure compile-time conformance to core ports.
var (
	_ core.RepositoryValidator = (*Validator)(nil)
	_ core.Analyzer            = (*Analyzer)(nil)
	_ core.EventPublisher      = (*Publisher)(nil)
	_ core.IdempotencyStore    = (*MemoryIdempotencyStore)(nil)
)

// DefaultCommitSHA is reported by Validator when ValidateFunc is nil.
const DefaultCommitSHA = "3f786850e387550fdab836ed7e6dc881de23001b"

// Validator accepts every repository unless ValidateFunc says otherwise.
type Validator struct {
	ValidateFunc func(ctx context.Context, ref model.RepositoryRef, branch *string) (*model.RepositoryMetadata, error)

	mu    sync.Mutex
	calls []model.RepositoryRef
}

func (v *Validator) Validate(ctx context.Context, ref model.RepositoryRef, branch *string) (*model.RepositoryMetadata, error) {
	v.mu.Lock()
	v.calls = append(v.calls, ref)
	v.mu.Unlock()

	if v.ValidateFunc != nil {
		return v.ValidateFunc(ctx, ref, branch)
	}
	b := "main"
	if branch != nil {
		b = *branch
	}
	return &model.RepositoryMetadata{FullName: ref.FullPath(), DefaultBranch: b, CommitSHA: DefaultCommitSHA}, nil
}

// Calls returns the repositories validated so far.
func (v *Validator) Calls() []model.RepositoryRef {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]model.RepositoryRef(nil), v.calls...)
}

// Analyzer returns Result unless AnalyzeFunc is set.
type Analyzer struct {
	AnalyzeFunc func(ctx context.Context, req core.AnalyzeRequest) (json.RawMessage, error)
	Result      json.RawMessage
}

func (a *Analyzer) Analyze(ctx context.Context, req core.AnalyzeRequest) (json.RawMessage, error) {
	if a.AnalyzeFunc != nil {
		return a.AnalyzeFunc(ctx, req)
	}
	if a.Result != nil {
		return a.Result, nil
	}
	return json.RawMessage(`{"summary":"ok"}`), nil
}

// Publisher records every event it is asked to trigger.
type Publisher struct {
	Err error

	mu       sync.Mutex
	payloads []model.WebhookPayload
}

func (p *Publisher) TriggerEvent(_ context.Context, _ string, payload model.WebhookPayload) ([]*model.WebhookDelivery, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil, p.Err
}

// Events returns the event names published so far, in order.
func (p *Publisher) Events() []model.WebhookEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.WebhookEvent, 0, len(p.payloads))
	for _, pl := range p.payloads {
		out = append(out, pl.Event)
	}
	return out
}

// Payloads returns a copy of every published payload.
func (p *Publisher) Payloads() []model.WebhookPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.WebhookPayload(nil), p.payloads...)
}

// MemoryIdempotencyStore is an in-memory IdempotencyStore. TTLs are ignored.
type MemoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]string
}

// NewMemoryIdempotencyStore creates an empty store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{keys: make(map[string]string)}
}

func (m *MemoryIdempotencyStore) Claim(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.keys[key]; ok {
		return existing, false, nil
	}
	m.keys[key] = ""
	return "", true, nil
}

func (m *MemoryIdempotencyStore) Complete(_ context.Context, key, jobID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = jobID
	return nil
}

func (m *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}
