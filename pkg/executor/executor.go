// Package executor walks an approved plan's actions in order and
// dispatches each to the handler registered for its type.
//
// One action's failure never blocks its siblings and never demotes the
// plan: a partially failed run still ends EXECUTED. Only a run-level
// fault (a store failure mid-run) aborts the pass and moves the plan
// to ERROR.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vento-labs/lexops/pkg/plan"
)

// Clock abstracts "now" for outcome timestamps.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Handler performs the side effect for one action type. Handlers are
// external collaborators: document store, calendar/mail provider, case
// resolver. The returned payload is recorded verbatim as the action's
// result. There is no internal timeout here; a hung handler is the
// caller's availability concern.
type Handler interface {
	Handle(ctx context.Context, action plan.ActionSpec) (json.RawMessage, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, action plan.ActionSpec) (json.RawMessage, error)

func (f HandlerFunc) Handle(ctx context.Context, action plan.ActionSpec) (json.RawMessage, error) {
	return f(ctx, action)
}

// Registry maps action types to handlers.
type Registry struct {
	handlers map[plan.ActionType]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[plan.ActionType]Handler)}
}

// Register binds a handler to an action type, replacing any previous
// binding.
func (r *Registry) Register(typ plan.ActionType, h Handler) {
	r.handlers[typ] = h
}

// Lookup returns the handler for a type, if any.
func (r *Registry) Lookup(typ plan.ActionType) (Handler, bool) {
	h, ok := r.handlers[typ]
	return h, ok
}

// ActionResult is one action's outcome within a run report.
type ActionResult struct {
	Order  int               `json:"order"`
	Type   plan.ActionType   `json:"type"`
	Status plan.ActionStatus `json:"status"`
	Error  string            `json:"error,omitempty"`
}

// RunReport summarizes one executor pass. PlanStatus EXECUTED never
// implies every action succeeded; callers must inspect the per-action
// results.
type RunReport struct {
	PlanID     string         `json:"plan_id"`
	PlanStatus plan.Status    `json:"plan_status"`
	Results    []ActionResult `json:"results"`
}

// Failed returns the orders of all FAILED actions in the report.
func (r *RunReport) Failed() []int {
	var out []int
	for _, res := range r.Results {
		if res.Status == plan.ActionFailed {
			out = append(out, res.Order)
		}
	}
	return out
}

// Executor runs approved plans. Distinct plans may run concurrently;
// within one plan actions run strictly sequentially by Order.
type Executor struct {
	store    plan.Store
	registry *Registry
	clock    Clock
	logger   *slog.Logger
}

// New creates an executor. A nil clock defaults to the wall clock.
func New(store plan.Store, registry *Registry, clock Clock) *Executor {
	if clock == nil {
		clock = wallClock{}
	}
	return &Executor{
		store:    store,
		registry: registry,
		clock:    clock,
		logger:   slog.Default().With("component", "executor"),
	}
}

// Execute runs the plan with the given id. The plan must be APPROVED,
// otherwise ErrState. Re-running after a partial pass only touches
// actions still in PENDING or APPROVED, so a resume is idempotent.
func (e *Executor) Execute(ctx context.Context, planID string) (*RunReport, error) {
	p, err := e.store.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if err := p.StartRun(e.clock.Now()); err != nil {
		return nil, err
	}
	// Claiming the plan via the version check also fences out any
	// concurrent approve/cancel/execute.
	if err := e.store.Update(ctx, p); err != nil {
		return nil, err
	}

	ordered := make([]*plan.ActionSpec, 0, len(p.Actions))
	for i := range p.Actions {
		ordered = append(ordered, &p.Actions[i])
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	report := &RunReport{PlanID: p.ID}
	for _, a := range ordered {
		if a.Status != plan.ActionPending && a.Status != plan.ActionApproved {
			report.Results = append(report.Results, ActionResult{Order: a.Order, Type: a.Type, Status: a.Status})
			continue
		}

		e.dispatch(ctx, p, a)
		res := ActionResult{Order: a.Order, Type: a.Type, Status: a.Status}
		if a.Outcome != nil {
			res.Error = a.Outcome.ErrorMessage
		}
		report.Results = append(report.Results, res)

		// Persist each outcome as it lands so the audit trail reflects
		// the exact execution order even across a crash.
		if err := e.store.Update(ctx, p); err != nil {
			return nil, e.failRun(ctx, p, report, fmt.Errorf("persist outcome of action %d: %w", a.Order, err))
		}
	}

	if err := p.FinishRun(e.clock.Now()); err != nil {
		return nil, e.failRun(ctx, p, report, err)
	}
	if err := e.store.Update(ctx, p); err != nil {
		return nil, e.failRun(ctx, p, report, fmt.Errorf("persist run completion: %w", err))
	}

	report.PlanStatus = p.Status
	return report, nil
}

// dispatch runs one action's handler and records the outcome on the
// action. Handler errors and panics become FAILED outcomes; they never
// propagate.
func (e *Executor) dispatch(ctx context.Context, p *plan.Plan, a *plan.ActionSpec) {
	now := e.clock.Now()

	handler, ok := e.registry.Lookup(a.Type)
	if !ok {
		a.Status = plan.ActionFailed
		a.Outcome = &plan.Outcome{
			ErrorMessage: fmt.Sprintf("no handler registered for %s", a.Type),
			ExecutedAt:   now,
		}
		e.logger.WarnContext(ctx, "action has no handler", "plan", p.ID, "order", a.Order, "type", a.Type)
		return
	}

	result, err := e.safeHandle(ctx, handler, *a)
	if err != nil {
		a.Status = plan.ActionFailed
		a.Outcome = &plan.Outcome{ErrorMessage: err.Error(), ExecutedAt: now}
		e.logger.ErrorContext(ctx, "action failed", "plan", p.ID, "order", a.Order, "type", a.Type, "error", err)
		return
	}

	a.Status = plan.ActionExecuted
	a.Outcome = &plan.Outcome{Success: true, Result: result, ExecutedAt: now}
	e.logger.InfoContext(ctx, "action executed", "plan", p.ID, "order", a.Order, "type", a.Type)
}

func (e *Executor) safeHandle(ctx context.Context, h Handler, a plan.ActionSpec) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, a)
}

// failRun marks a run-level fault: the plan moves to ERROR (best
// effort persisted) and the fault propagates to the caller.
func (e *Executor) failRun(ctx context.Context, p *plan.Plan, report *RunReport, cause error) error {
	e.logger.ErrorContext(ctx, "run aborted", "plan", p.ID, "error", cause)
	if err := p.FailRun(e.clock.Now()); err == nil {
		if err := e.store.Update(ctx, p); err != nil {
			e.logger.ErrorContext(ctx, "could not persist ERROR state", "plan", p.ID, "error", err)
		}
	}
	report.PlanStatus = plan.StatusError
	return fmt.Errorf("plan %s run aborted: %w", p.ID, cause)
}
