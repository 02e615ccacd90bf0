package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vento-labs/lexops/pkg/audit"
	"github.com/vento-labs/lexops/pkg/classification"
	"github.com/vento-labs/lexops/pkg/deadline"
	"github.com/vento-labs/lexops/pkg/executor"
	"github.com/vento-labs/lexops/pkg/plan"
)

// ComputeDeadline runs one deadline calculation and records it on the
// audit trail.
func (s *Service) ComputeDeadline(ctx context.Context, actorID string, req deadline.Request) (*deadline.Result, error) {
	ctx, done := s.track(ctx, "deadline.compute",
		attribute.String("scope", req.Scope),
		attribute.Int("day_count", req.DayCount))
	result, err := s.calc.Compute(ctx, req)
	done(err)
	if err != nil {
		return nil, err
	}

	s.record(ctx, actorID, audit.EventDeadline, "deadline.compute", req.Scope, map[string]any{
		"day_count":     req.DayCount,
		"day_kind":      string(req.DayKind),
		"deadline_date": result.DeadlineDate,
		"urgent":        result.Urgent,
	})
	return result, nil
}

// CreatePlan derives a plan from a classification, persists it, and
// immediately proposes it. Creation is all-or-nothing: a builder or
// store failure leaves no partial plan behind.
//
// When a policy engine is configured and no review rule triggers, the
// plan is auto-approved on the spot; otherwise it stays PROPOSED for a
// human pass.
func (s *Service) CreatePlan(ctx context.Context, actorID string, cls *classification.Result, docs []classification.Document) (*plan.Plan, error) {
	ctx, done := s.track(ctx, "plan.create",
		attribute.String("notification", cls.NotificationID),
		attribute.String("act_type", string(cls.ActType)))

	p, err := s.createPlan(ctx, actorID, cls, docs)
	done(err)
	return p, err
}

func (s *Service) createPlan(ctx context.Context, actorID string, cls *classification.Result, docs []classification.Document) (*plan.Plan, error) {
	proposal, err := s.builder.Build(ctx, cls, docs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &plan.Plan{
		ID:        uuid.New().String(),
		SubjectID: proposal.SubjectID,
		Status:    plan.StatusDraft,
		Actions:   proposal.Actions,
	}
	if err := p.Propose("system", now); err != nil {
		return nil, err
	}

	autoApproved := false
	if s.policy != nil {
		dec, err := s.policy.Evaluate(ctx, p, cls)
		if err != nil {
			// Fail closed: an unevaluable policy routes to review.
			s.logger.WarnContext(ctx, "policy evaluation failed, requiring review",
				"plan", p.ID, "error", err)
		} else if dec.AutoApprove {
			if err := p.Approve("policy", now); err != nil {
				return nil, err
			}
			autoApproved = true
		} else {
			s.logger.InfoContext(ctx, "plan routed to review",
				"plan", p.ID, "rules", dec.Matched)
		}
	}

	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}

	s.record(ctx, actorID, audit.EventTransition, "plan.create", p.ID, map[string]any{
		"subject_id":    p.SubjectID,
		"status":        string(p.Status),
		"action_count":  len(p.Actions),
		"auto_approved": autoApproved,
	})
	s.logger.InfoContext(ctx, "plan created",
		"plan", p.ID, "subject", p.SubjectID, "actions", len(p.Actions), "status", p.Status)
	return p, nil
}

// GetPlan returns one plan.
func (s *Service) GetPlan(ctx context.Context, id string) (*plan.Plan, error) {
	return s.store.Get(ctx, id)
}

// ListPlans returns plans, optionally filtered by status.
func (s *Service) ListPlans(ctx context.Context, status plan.Status) ([]*plan.Plan, error) {
	return s.store.List(ctx, status)
}

// ApprovePlan moves a plan to APPROVED on behalf of a reviewer.
func (s *Service) ApprovePlan(ctx context.Context, actorID, planID string) (*plan.Plan, error) {
	return s.transition(ctx, actorID, planID, "plan.approve", func(p *plan.Plan) error {
		return p.Approve(actorID, s.now())
	})
}

// CancelPlan abandons a plan. The reason is mandatory.
func (s *Service) CancelPlan(ctx context.Context, actorID, planID, reason string) (*plan.Plan, error) {
	return s.transition(ctx, actorID, planID, "plan.cancel", func(p *plan.Plan) error {
		return p.Cancel(actorID, reason, s.now())
	})
}

// EditAction rewrites one proposed action's title, description and
// config before approval.
func (s *Service) EditAction(ctx context.Context, actorID, planID string, order int, title, description string, cfg plan.ActionConfig) (*plan.Plan, error) {
	return s.transition(ctx, actorID, planID, "plan.edit_action", func(p *plan.Plan) error {
		return p.EditAction(order, title, description, cfg, s.now())
	})
}

// ExecutePlan runs an approved plan and audits the per-action results.
func (s *Service) ExecutePlan(ctx context.Context, actorID, planID string) (*executor.RunReport, error) {
	ctx, done := s.track(ctx, "plan.execute", attribute.String("plan", planID))
	report, err := s.exec.Execute(ctx, planID)
	done(err)
	if err != nil {
		s.record(ctx, actorID, audit.EventExecution, "plan.execute", planID, map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	s.record(ctx, actorID, audit.EventExecution, "plan.execute", planID, map[string]any{
		"status": string(report.PlanStatus),
		"failed": report.Failed(),
	})
	return report, nil
}

// AuditTrail exports the audit chain, or nil when auditing is
// disabled.
func (s *Service) AuditTrail() ([]json.RawMessage, error) {
	if s.trail == nil {
		return nil, nil
	}
	raw, err := s.trail.Export()
	if err != nil {
		return nil, err
	}
	var events []json.RawMessage
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("decode audit export: %w", err)
	}
	return events, nil
}

// transition applies one mutation under optimistic concurrency and
// audits the resulting status.
func (s *Service) transition(ctx context.Context, actorID, planID, action string, mutate func(*plan.Plan) error) (*plan.Plan, error) {
	ctx, done := s.track(ctx, action, attribute.String("plan", planID))
	p, err := s.applyTransition(ctx, planID, mutate)
	done(err)
	if err != nil {
		return nil, err
	}

	s.record(ctx, actorID, audit.EventTransition, action, planID, map[string]any{
		"status": string(p.Status),
	})
	s.logger.InfoContext(ctx, "plan transition", "plan", planID, "action", action, "status", p.Status)
	return p, nil
}

func (s *Service) applyTransition(ctx context.Context, planID string, mutate func(*plan.Plan) error) (*plan.Plan, error) {
	p, err := s.store.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if err := mutate(p); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now()
}

func (s *Service) record(ctx context.Context, actorID string, typ audit.EventType, action, resource string, metadata map[string]any) {
	if s.trail == nil {
		return
	}
	if _, err := s.trail.Record(ctx, actorID, typ, action, resource, metadata); err != nil {
		s.logger.ErrorContext(ctx, "audit record failed", "action", action, "error", err)
	}
}

func (s *Service) track(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if s.obs == nil {
		return ctx, func(error) {}
	}
	return s.obs.TrackOperation(ctx, name, attrs...)
}
