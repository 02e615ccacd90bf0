package plan

import (
	"fmt"
	"time"
)

// The transition methods below mutate the plan in memory only. Every
// one performs an optimistic pre-state check and returns ErrState on
// mismatch, leaving the plan untouched. Persisting the mutation (and
// detecting concurrent writers via Version) is the store's job.

// Propose advances a freshly built plan DRAFT→PROPOSED. It happens
// automatically on a successful build; a failed build persists
// nothing.
func (p *Plan) Propose(proposedBy string, now time.Time) error {
	if p.Status != StatusDraft {
		return fmt.Errorf("%w: propose requires DRAFT, plan %s is %s", ErrState, p.ID, p.Status)
	}
	p.Status = StatusProposed
	p.ProposedBy = proposedBy
	p.ProposedAt = now
	return nil
}

// Approve records human (or policy) approval. Only PROPOSED and
// IN_REVIEW plans can be approved. All non-terminal actions advance to
// APPROVED.
func (p *Plan) Approve(approverID string, now time.Time) error {
	if p.Status != StatusProposed && p.Status != StatusInReview {
		return fmt.Errorf("%w: approve requires PROPOSED or IN_REVIEW, plan %s is %s", ErrState, p.ID, p.Status)
	}
	p.Status = StatusApproved
	p.ApprovedBy = approverID
	p.ApprovedAt = &now
	for i := range p.Actions {
		switch p.Actions[i].Status {
		case ActionProposed, ActionEdited, ActionPending:
			p.Actions[i].Status = ActionApproved
		}
	}
	return nil
}

// Cancel aborts a plan before or during review. It never undoes
// already-executed actions; every action not yet run is marked
// SKIPPED. A reason is required.
func (p *Plan) Cancel(actorID, reason string, now time.Time) error {
	if reason == "" {
		return fmt.Errorf("%w: cancellation requires a reason", ErrState)
	}
	switch p.Status {
	case StatusDraft, StatusProposed, StatusInReview, StatusApproved:
	default:
		return fmt.Errorf("%w: cannot cancel plan %s in %s", ErrState, p.ID, p.Status)
	}
	p.Status = StatusCancelled
	p.CancelledBy = actorID
	p.CancelledAt = &now
	p.CancellationReason = reason
	for i := range p.Actions {
		if !p.Actions[i].Status.Terminal() {
			p.Actions[i].Status = ActionSkipped
		}
	}
	return nil
}

// StartRun moves an APPROVED plan into the executor-internal IN_REVIEW
// state. Not a human-facing transition.
func (p *Plan) StartRun(now time.Time) error {
	if p.Status != StatusApproved {
		return fmt.Errorf("%w: execute requires APPROVED, plan %s is %s", ErrState, p.ID, p.Status)
	}
	p.Status = StatusInReview
	p.RunStartedAt = &now
	return nil
}

// FinishRun marks the run complete. Individual FAILED actions do not
// demote the plan: a partially failed run is still EXECUTED.
func (p *Plan) FinishRun(now time.Time) error {
	if p.Status != StatusInReview {
		return fmt.Errorf("%w: finish requires a running plan, plan %s is %s", ErrState, p.ID, p.Status)
	}
	p.Status = StatusExecuted
	p.FinishedAt = &now
	return nil
}

// FailRun marks a run-level fault that aborted before every action was
// attempted. ERROR is absorbing.
func (p *Plan) FailRun(now time.Time) error {
	if p.Status.Terminal() {
		return fmt.Errorf("%w: plan %s already terminal (%s)", ErrState, p.ID, p.Status)
	}
	p.Status = StatusError
	p.FinishedAt = &now
	return nil
}

// EditAction replaces an action's title, description and config before
// approval, moving it to the EDITED sub-state. Auto-derived actions
// are editable like any other.
func (p *Plan) EditAction(order int, title, description string, cfg ActionConfig, _ time.Time) error {
	if p.Status != StatusProposed && p.Status != StatusInReview {
		return fmt.Errorf("%w: edits require PROPOSED or IN_REVIEW, plan %s is %s", ErrState, p.ID, p.Status)
	}
	a := p.Action(order)
	if a == nil {
		return fmt.Errorf("%w: plan %s has no action %d", ErrNotFound, p.ID, order)
	}
	if a.Status != ActionProposed && a.Status != ActionEdited {
		return fmt.Errorf("%w: action %d is %s, not editable", ErrState, order, a.Status)
	}
	if err := cfg.Validate(a.Type); err != nil {
		return fmt.Errorf("%w: %v", ErrState, err)
	}
	a.Title = title
	a.Description = description
	a.Config = cfg
	a.Status = ActionEdited
	return nil
}

// MarkActionPending moves a reviewed action PROPOSED/EDITED→PENDING.
func (p *Plan) MarkActionPending(order int) error {
	if p.Status != StatusProposed && p.Status != StatusInReview {
		return fmt.Errorf("%w: review requires PROPOSED or IN_REVIEW, plan %s is %s", ErrState, p.ID, p.Status)
	}
	a := p.Action(order)
	if a == nil {
		return fmt.Errorf("%w: plan %s has no action %d", ErrNotFound, p.ID, order)
	}
	if a.Status != ActionProposed && a.Status != ActionEdited {
		return fmt.Errorf("%w: action %d is %s", ErrState, order, a.Status)
	}
	a.Status = ActionPending
	return nil
}

// StartReview moves PROPOSED→IN_REVIEW when a human picks the plan up.
func (p *Plan) StartReview() error {
	if p.Status != StatusProposed {
		return fmt.Errorf("%w: review requires PROPOSED, plan %s is %s", ErrState, p.ID, p.Status)
	}
	p.Status = StatusInReview
	return nil
}
