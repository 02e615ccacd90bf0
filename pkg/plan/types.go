// Package plan models the execution plan derived from one classified
// notification: its ordered actions, the plan and action state
// machines, the deterministic plan builder, and the plan stores.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrState marks an operation requested against an incompatible
	// plan or action state. Rejected with no partial mutation.
	ErrState = errors.New("incompatible plan state")
	// ErrConflict marks a lost optimistic-concurrency race: another
	// transition landed first. It is a StateError-class failure.
	ErrConflict = fmt.Errorf("%w: concurrent transition detected", ErrState)
	// ErrNotFound marks a missing plan.
	ErrNotFound = errors.New("plan not found")
)

// Status is the plan lifecycle state.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusProposed  Status = "PROPOSED"
	StatusInReview  Status = "IN_REVIEW"
	StatusApproved  Status = "APPROVED"
	StatusExecuted  Status = "EXECUTED"
	StatusCancelled Status = "CANCELLED"
	StatusError     Status = "ERROR"
)

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled || s == StatusError
}

// ActionStatus is the per-action sub-state.
type ActionStatus string

const (
	ActionProposed ActionStatus = "PROPOSED"
	ActionEdited   ActionStatus = "EDITED"
	ActionPending  ActionStatus = "PENDING"
	ActionApproved ActionStatus = "APPROVED"
	ActionExecuted ActionStatus = "EXECUTED"
	ActionFailed   ActionStatus = "FAILED"
	ActionSkipped  ActionStatus = "SKIPPED"
)

// Terminal reports whether the action reached a final status.
func (s ActionStatus) Terminal() bool {
	return s == ActionExecuted || s == ActionFailed || s == ActionSkipped
}

// ActionType identifies the kind of side effect an action performs.
type ActionType string

const (
	ActionUploadDocument  ActionType = "UPLOAD_DOCUMENT"
	ActionCreateNote      ActionType = "CREATE_NOTE"
	ActionCreateEvent     ActionType = "CREATE_EVENT"
	ActionSendEmailLawyer ActionType = "SEND_EMAIL_LAWYER"
	ActionSendEmailClient ActionType = "SEND_EMAIL_CLIENT"
	ActionRequestPower    ActionType = "REQUEST_POWER"
	ActionDownloadLink    ActionType = "DOWNLOAD_LINK"
	ActionDetectCollision ActionType = "DETECT_COLLISION"
)

// FileRename maps one source document to its archival target name.
type FileRename struct {
	SourcePath string `json:"source_path"`
	TargetName string `json:"target_name"`
}

// UploadDocumentConfig bundles all notification documents for filing.
type UploadDocumentConfig struct {
	Files        []FileRename `json:"files"`
	TargetFolder string       `json:"target_folder,omitempty"`
	CaseID       *string      `json:"case_id,omitempty"`
}

// CreateNoteConfig records a free-text note on the case.
type CreateNoteConfig struct {
	Body string `json:"body"`
}

// CreateEventConfig creates one calendar event. DerivedFrom names the
// source fact for auto-derived reminder events ("hearing") and is
// empty for primary events.
type CreateEventConfig struct {
	Title       string    `json:"title"`
	StartsAt    time.Time `json:"starts_at"`
	AllDay      bool      `json:"all_day"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	DerivedFrom string    `json:"derived_from,omitempty"`
}

// EmailConfig sends one email through the mail provider.
type EmailConfig struct {
	To          string   `json:"to"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	Attachments []string `json:"attachments,omitempty"`
}

// RequestPowerConfig asks the client for a power of attorney.
type RequestPowerConfig struct {
	ProcedureNumber string `json:"procedure_number"`
}

// DownloadLinkConfig shares a download link for the source package.
type DownloadLinkConfig struct {
	Paths []string `json:"paths"`
}

// DetectCollisionConfig checks the calendar for conflicting hearings.
type DetectCollisionConfig struct {
	Court     string    `json:"court"`
	HearingAt time.Time `json:"hearing_at"`
}

// ActionConfig is a tagged union keyed by the action type: exactly one
// variant must be set, and it must match the ActionSpec's Type.
type ActionConfig struct {
	Upload    *UploadDocumentConfig  `json:"upload,omitempty"`
	Note      *CreateNoteConfig      `json:"note,omitempty"`
	Event     *CreateEventConfig     `json:"event,omitempty"`
	Email     *EmailConfig           `json:"email,omitempty"`
	Power     *RequestPowerConfig    `json:"power,omitempty"`
	Link      *DownloadLinkConfig    `json:"link,omitempty"`
	Collision *DetectCollisionConfig `json:"collision,omitempty"`
}

// Validate checks that exactly one variant is set and matches typ.
func (c ActionConfig) Validate(typ ActionType) error {
	set := 0
	var match bool
	if c.Upload != nil {
		set++
		match = typ == ActionUploadDocument
	}
	if c.Note != nil {
		set++
		match = typ == ActionCreateNote
	}
	if c.Event != nil {
		set++
		match = typ == ActionCreateEvent
	}
	if c.Email != nil {
		set++
		match = typ == ActionSendEmailLawyer || typ == ActionSendEmailClient
	}
	if c.Power != nil {
		set++
		match = typ == ActionRequestPower
	}
	if c.Link != nil {
		set++
		match = typ == ActionDownloadLink
	}
	if c.Collision != nil {
		set++
		match = typ == ActionDetectCollision
	}
	if set != 1 {
		return fmt.Errorf("action config must set exactly one variant, got %d", set)
	}
	if !match {
		return fmt.Errorf("action config variant does not match type %s", typ)
	}
	return nil
}

func (c ActionConfig) clone() ActionConfig {
	out := ActionConfig{}
	if c.Upload != nil {
		u := *c.Upload
		u.Files = append([]FileRename(nil), c.Upload.Files...)
		if c.Upload.CaseID != nil {
			id := *c.Upload.CaseID
			u.CaseID = &id
		}
		out.Upload = &u
	}
	if c.Note != nil {
		n := *c.Note
		out.Note = &n
	}
	if c.Event != nil {
		e := *c.Event
		out.Event = &e
	}
	if c.Email != nil {
		e := *c.Email
		e.Attachments = append([]string(nil), c.Email.Attachments...)
		out.Email = &e
	}
	if c.Power != nil {
		p := *c.Power
		out.Power = &p
	}
	if c.Link != nil {
		l := *c.Link
		l.Paths = append([]string(nil), c.Link.Paths...)
		out.Link = &l
	}
	if c.Collision != nil {
		col := *c.Collision
		out.Collision = &col
	}
	return out
}

// Outcome is the execution result of one action: at most one per
// action, kept verbatim for audit.
type Outcome struct {
	Success      bool            `json:"success"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ExecutedAt   time.Time       `json:"executed_at"`
}

// ActionSpec is one discrete, independently executable step within a
// plan. Order is unique and positive within the plan and defines the
// execution sequence.
type ActionSpec struct {
	Order       int             `json:"order"`
	Type        ActionType      `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Config      ActionConfig    `json:"config"`
	PreviewData json.RawMessage `json:"preview_data,omitempty"`
	Status      ActionStatus    `json:"status"`
	Outcome     *Outcome        `json:"outcome,omitempty"`
}

// Proposal is the builder's output: the ordered action list for one
// notification, not yet persisted.
type Proposal struct {
	SubjectID string       `json:"subject_id"`
	Actions   []ActionSpec `json:"actions"`
}

// Plan is the persisted, versioned set of actions for one
// notification, carried through review and approval before execution.
// Version backs the optimistic concurrency check on every transition.
type Plan struct {
	ID                 string       `json:"id"`
	SubjectID          string       `json:"subject_id"`
	Status             Status       `json:"status"`
	Version            int64        `json:"version"`
	ProposedBy         string       `json:"proposed_by"`
	ProposedAt         time.Time    `json:"proposed_at"`
	ApprovedBy         string       `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time   `json:"approved_at,omitempty"`
	CancelledBy        string       `json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time   `json:"cancelled_at,omitempty"`
	CancellationReason string       `json:"cancellation_reason,omitempty"`
	RunStartedAt       *time.Time   `json:"run_started_at,omitempty"`
	FinishedAt         *time.Time   `json:"finished_at,omitempty"`
	Actions            []ActionSpec `json:"actions"`
}

// Action returns the action with the given order, or nil.
func (p *Plan) Action(order int) *ActionSpec {
	for i := range p.Actions {
		if p.Actions[i].Order == order {
			return &p.Actions[i]
		}
	}
	return nil
}

// Clone deep-copies the plan so callers never share mutable state with
// a store.
func (p *Plan) Clone() *Plan {
	cp := *p
	cp.Actions = make([]ActionSpec, len(p.Actions))
	copy(cp.Actions, p.Actions)
	for i := range cp.Actions {
		if o := p.Actions[i].Outcome; o != nil {
			oc := *o
			if o.Result != nil {
				oc.Result = append(json.RawMessage(nil), o.Result...)
			}
			cp.Actions[i].Outcome = &oc
		}
		if pd := p.Actions[i].PreviewData; pd != nil {
			cp.Actions[i].PreviewData = append(json.RawMessage(nil), pd...)
		}
		cp.Actions[i].Config = p.Actions[i].Config.clone()
	}
	if p.ApprovedAt != nil {
		t := *p.ApprovedAt
		cp.ApprovedAt = &t
	}
	if p.CancelledAt != nil {
		t := *p.CancelledAt
		cp.CancelledAt = &t
	}
	if p.RunStartedAt != nil {
		t := *p.RunStartedAt
		cp.RunStartedAt = &t
	}
	if p.FinishedAt != nil {
		t := *p.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
