package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vento-labs/lexops/pkg/holiday"
)

func newTestPlan(status Status) *Plan {
	return &Plan{
		ID:        "plan-1",
		SubjectID: "LEXNET-20240520-0001",
		Status:    status,
		Actions: []ActionSpec{
			{Order: 1, Type: ActionUploadDocument, Status: ActionProposed,
				Config: ActionConfig{Upload: &UploadDocumentConfig{}}},
			{Order: 2, Type: ActionCreateNote, Status: ActionProposed,
				Config: ActionConfig{Note: &CreateNoteConfig{Body: "note"}}},
		},
	}
}

var testNow = time.Date(2024, time.May, 20, 12, 0, 0, 0, time.UTC)

func TestPropose(t *testing.T) {
	p := newTestPlan(StatusDraft)
	require.NoError(t, p.Propose("system", testNow))
	assert.Equal(t, StatusProposed, p.Status)
	assert.Equal(t, "system", p.ProposedBy)
	assert.Equal(t, testNow, p.ProposedAt)

	assert.ErrorIs(t, p.Propose("system", testNow), ErrState)
}

func TestApprove_FromProposedAndInReview(t *testing.T) {
	for _, from := range []Status{StatusProposed, StatusInReview} {
		p := newTestPlan(from)
		require.NoError(t, p.Approve("lawyer-7", testNow))
		assert.Equal(t, StatusApproved, p.Status)
		assert.Equal(t, "lawyer-7", p.ApprovedBy)
		require.NotNil(t, p.ApprovedAt)
		for _, a := range p.Actions {
			assert.Equal(t, ActionApproved, a.Status)
		}
	}
}

func TestApprove_RejectedElsewhere_LeavesPlanUnchanged(t *testing.T) {
	for _, from := range []Status{StatusDraft, StatusApproved, StatusExecuted, StatusCancelled, StatusError} {
		p := newTestPlan(from)
		err := p.Approve("lawyer-7", testNow)
		require.ErrorIs(t, err, ErrState, "from %s", from)
		assert.Equal(t, from, p.Status)
		assert.Empty(t, p.ApprovedBy)
		for _, a := range p.Actions {
			assert.Equal(t, ActionProposed, a.Status, "actions untouched on rejection")
		}
	}
}

func TestCancel_RequiresReasonAndMarksSkipped(t *testing.T) {
	p := newTestPlan(StatusProposed)
	assert.ErrorIs(t, p.Cancel("lawyer-7", "", testNow), ErrState)

	require.NoError(t, p.Cancel("lawyer-7", "duplicate notification", testNow))
	assert.Equal(t, StatusCancelled, p.Status)
	assert.Equal(t, "duplicate notification", p.CancellationReason)
	for _, a := range p.Actions {
		assert.Equal(t, ActionSkipped, a.Status)
	}
}

func TestCancel_KeepsExecutedActions(t *testing.T) {
	p := newTestPlan(StatusApproved)
	p.Actions[0].Status = ActionExecuted
	p.Actions[0].Outcome = &Outcome{Success: true, ExecutedAt: testNow}

	require.NoError(t, p.Cancel("lawyer-7", "client withdrew", testNow))
	assert.Equal(t, ActionExecuted, p.Actions[0].Status, "history is never rewritten")
	assert.Equal(t, ActionSkipped, p.Actions[1].Status)
}

func TestCancel_TerminalStatesRejected(t *testing.T) {
	for _, from := range []Status{StatusExecuted, StatusCancelled, StatusError} {
		p := newTestPlan(from)
		assert.ErrorIs(t, p.Cancel("x", "reason", testNow), ErrState, "from %s", from)
	}
}

func TestRunTransitions(t *testing.T) {
	p := newTestPlan(StatusApproved)
	require.NoError(t, p.StartRun(testNow))
	assert.Equal(t, StatusInReview, p.Status)

	require.NoError(t, p.FinishRun(testNow))
	assert.Equal(t, StatusExecuted, p.Status)
	require.NotNil(t, p.FinishedAt)

	assert.ErrorIs(t, p.StartRun(testNow), ErrState, "EXECUTED is terminal")
}

func TestFailRun(t *testing.T) {
	p := newTestPlan(StatusInReview)
	require.NoError(t, p.FailRun(testNow))
	assert.Equal(t, StatusError, p.Status)

	assert.ErrorIs(t, p.FailRun(testNow), ErrState, "ERROR is absorbing")
}

func TestEditAction(t *testing.T) {
	p := newTestPlan(StatusProposed)

	cfg := ActionConfig{Note: &CreateNoteConfig{Body: "edited note"}}
	require.NoError(t, p.EditAction(2, "New title", "new description", cfg, testNow))

	a := p.Action(2)
	assert.Equal(t, ActionEdited, a.Status)
	assert.Equal(t, "New title", a.Title)
	assert.Equal(t, "edited note", a.Config.Note.Body)

	// Editing again from EDITED is allowed.
	require.NoError(t, p.EditAction(2, "Another", "", cfg, testNow))

	// Config variant must match the action type.
	bad := ActionConfig{Event: &CreateEventConfig{Title: "x", StartsAt: holiday.Date(2024, time.June, 1)}}
	assert.ErrorIs(t, p.EditAction(2, "t", "", bad, testNow), ErrState)

	// Unknown order.
	assert.ErrorIs(t, p.EditAction(99, "t", "", cfg, testNow), ErrNotFound)

	// Approved plans are no longer editable.
	require.NoError(t, p.Approve("lawyer-7", testNow))
	assert.ErrorIs(t, p.EditAction(2, "t", "", cfg, testNow), ErrState)
}

func TestActionSubStateChain(t *testing.T) {
	p := newTestPlan(StatusProposed)

	require.NoError(t, p.MarkActionPending(1))
	assert.Equal(t, ActionPending, p.Action(1).Status)

	assert.ErrorIs(t, p.MarkActionPending(1), ErrState, "PENDING cannot be re-marked")

	require.NoError(t, p.Approve("lawyer-7", testNow))
	assert.Equal(t, ActionApproved, p.Action(1).Status)
	assert.Equal(t, ActionApproved, p.Action(2).Status)
}

func TestStartReview(t *testing.T) {
	p := newTestPlan(StatusProposed)
	require.NoError(t, p.StartReview())
	assert.Equal(t, StatusInReview, p.Status)
	assert.ErrorIs(t, p.StartReview(), ErrState)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, ActionConfig{}.Validate(ActionCreateNote), "empty union")
	assert.Error(t, ActionConfig{
		Note:  &CreateNoteConfig{},
		Event: &CreateEventConfig{},
	}.Validate(ActionCreateNote), "two variants")
	assert.NoError(t, ActionConfig{Email: &EmailConfig{}}.Validate(ActionSendEmailClient))
	assert.Error(t, ActionConfig{Email: &EmailConfig{}}.Validate(ActionCreateEvent))
}
