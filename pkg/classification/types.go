// Package classification holds the classification facts produced
// upstream for one notification. The facts are consumed as-is: this
// package validates and decodes them, it never re-classifies.
package classification

import (
	"time"

	"github.com/vento-labs/lexops/pkg/deadline"
)

// ActType is the procedural act category assigned by the classifier.
type ActType string

const (
	ActCitation     ActType = "CITACION"
	ActSummons      ActType = "EMPLAZAMIENTO"
	ActHearing      ActType = "SENALAMIENTO"
	ActRuling       ActType = "PROVIDENCIA"
	ActJudgment     ActType = "SENTENCIA"
	ActInjunction   ActType = "REQUERIMIENTO"
	ActNotification ActType = "NOTIFICACION"
)

// IsHearingAct reports whether the act schedules an appearance or
// hearing, which makes the plan carry a hearing note.
func (a ActType) IsHearingAct() bool {
	return a == ActHearing || a == ActCitation || a == ActSummons
}

// IsCitation reports whether the act is a citation or summons, which
// requires notifying the client directly.
func (a ActType) IsCitation() bool {
	return a == ActCitation || a == ActSummons
}

// Party is one litigant as extracted from the notification.
type Party struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// DeadlineFact is one raw day-count deadline extracted from the text.
// Resolution into calendar dates happens in the deadline calculator,
// never upstream.
type DeadlineFact struct {
	DayCount    int              `json:"day_count"`
	DayKind     deadline.DayKind `json:"day_kind"`
	Description string           `json:"description"`
}

// Contact is the responsible-party contact, when one could be resolved.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Result carries everything the classifier extracted from one
// notification. Optional sub-structures stay typed and nullable so
// field optionality is preserved exactly.
type Result struct {
	NotificationID  string         `json:"notification_id"`
	Court           string         `json:"court"`
	ProcedureNumber string         `json:"procedure_number"`
	ProcedureType   string         `json:"procedure_type,omitempty"`
	ActType         ActType        `json:"act_type"`
	Urgent          bool           `json:"urgent,omitempty"`
	Scope           string         `json:"scope,omitempty"`
	ReceivedAt      time.Time      `json:"received_at"`
	Hearing         *time.Time     `json:"hearing,omitempty"`
	HearingLocation string         `json:"hearing_location,omitempty"`
	Parties         []Party        `json:"parties,omitempty"`
	Deadlines       []DeadlineFact `json:"deadlines,omitempty"`
	Contact         *Contact       `json:"contact,omitempty"`
	SuggestedCaseID *string        `json:"suggested_case_id,omitempty"`
}

// Document is one file from the downloaded notification package.
type Document struct {
	Path string `json:"path"`
	Type string `json:"type"`
}
