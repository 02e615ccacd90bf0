// Package service is the application facade: it owns the wiring
// between classification input, the deadline calculator, the plan
// builder, the review policy, the plan store, and the executor, and
// records every state-changing operation on the audit trail.
package service

import (
	"log/slog"

	"github.com/vento-labs/lexops/pkg/audit"
	"github.com/vento-labs/lexops/pkg/deadline"
	"github.com/vento-labs/lexops/pkg/executor"
	"github.com/vento-labs/lexops/pkg/observability"
	"github.com/vento-labs/lexops/pkg/plan"
	"github.com/vento-labs/lexops/pkg/policy"
)

// Service exposes the deadline and plan workflows.
type Service struct {
	calc    *deadline.Calculator
	builder *plan.Builder
	store   plan.Store
	policy  *policy.Engine
	exec    *executor.Executor
	trail   *audit.Log
	obs     *observability.Provider
	clock   deadline.Clock
	logger  *slog.Logger
}

// New creates the service. Policy, audit and observability may each be
// nil, which disables that concern.
func New(calc *deadline.Calculator, builder *plan.Builder, store plan.Store, exec *executor.Executor, opts ...Option) *Service {
	s := &Service{
		calc:    calc,
		builder: builder,
		store:   store,
		exec:    exec,
		logger:  slog.Default().With("component", "service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option customizes the service.
type Option func(*Service)

// WithPolicy enables CEL auto-approval on plan creation.
func WithPolicy(eng *policy.Engine) Option {
	return func(s *Service) { s.policy = eng }
}

// WithAudit enables the hash-chained audit trail.
func WithAudit(trail *audit.Log) Option {
	return func(s *Service) { s.trail = trail }
}

// WithObservability enables tracing and RED metrics.
func WithObservability(obs *observability.Provider) Option {
	return func(s *Service) { s.obs = obs }
}

// WithClock overrides the transition clock (tests).
func WithClock(clock deadline.Clock) Option {
	return func(s *Service) { s.clock = clock }
}
