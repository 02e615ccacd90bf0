package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/vento-labs/lexops/pkg/classification"
	"github.com/vento-labs/lexops/pkg/deadline"
)

// derivedFromHearing tags the auto-derived reminder events.
const derivedFromHearing = "hearing"

// Builder derives a deterministic ordered action list from a
// classification result and a document list. Identical inputs always
// produce a byte-identical proposal, which is what makes regeneration
// after edits and golden testing possible.
type Builder struct {
	calc *deadline.Calculator
}

// NewBuilder creates a builder backed by the given deadline calculator.
func NewBuilder(calc *deadline.Calculator) *Builder {
	return &Builder{calc: calc}
}

// Build derives the proposal for one notification. Any day-count
// deadline fact is resolved through the deadline calculator; a
// calculator failure aborts the whole build.
func (b *Builder) Build(ctx context.Context, cls *classification.Result, docs []classification.Document) (*Proposal, error) {
	if cls == nil {
		return nil, fmt.Errorf("%w: classification is required", ErrState)
	}

	actions := make([]ActionSpec, 0, 8)
	order := 0
	next := func() int {
		order++
		return order
	}

	// 1. File the whole document package, renamed for the archive.
	actions = append(actions, buildUploadAction(next(), cls, docs))

	// 2. Hearing-type acts get a summary note.
	if cls.ActType.IsHearingAct() {
		actions = append(actions, buildHearingNote(next(), cls))
	}

	// 3. Calendar facts: the hearing event plus its derived reminders,
	// then one deadline event per day-count fact.
	if cls.Hearing != nil {
		actions = append(actions, buildHearingEvents(next, cls)...)
	}
	for _, fact := range cls.Deadlines {
		act, err := b.buildDeadlineEvent(ctx, next(), cls, fact)
		if err != nil {
			return nil, err
		}
		actions = append(actions, act)
	}

	// 4. Notify the responsible party when one could be resolved.
	if cls.Contact != nil && cls.Contact.Email != "" {
		actions = append(actions, buildLawyerEmail(next(), cls, docs))
	}

	// 5. Citations and summonses also notify the client.
	if cls.ActType.IsCitation() {
		actions = append(actions, buildClientEmail(next(), cls))
	}

	return &Proposal{SubjectID: cls.NotificationID, Actions: actions}, nil
}

func buildUploadAction(order int, cls *classification.Result, docs []classification.Document) ActionSpec {
	files := make([]FileRename, 0, len(docs))
	for i, doc := range docs {
		files = append(files, FileRename{
			SourcePath: doc.Path,
			TargetName: archiveName(i+1, doc),
		})
	}
	cfg := UploadDocumentConfig{
		Files:        files,
		TargetFolder: cls.ProcedureNumber,
		CaseID:       cls.SuggestedCaseID,
	}
	preview, _ := json.Marshal(cfg.Files)
	return ActionSpec{
		Order:       order,
		Type:        ActionUploadDocument,
		Title:       fmt.Sprintf("File %d document(s) for %s", len(files), cls.ProcedureNumber),
		Description: fmt.Sprintf("Archive the notification package from %s", cls.Court),
		Config:      ActionConfig{Upload: &cfg},
		PreviewData: preview,
		Status:      ActionProposed,
	}
}

// archiveName renames a document to "{2-digit seq} {sanitized
// UPPERCASE type}.{ext}".
func archiveName(seq int, doc classification.Document) string {
	ext := path.Ext(doc.Path)
	return fmt.Sprintf("%02d %s%s", seq, sanitizeType(doc.Type), ext)
}

// sanitizeType strips diacritics (court document types are Spanish),
// uppercases, and drops anything outside letters, digits, spaces and
// hyphens.
func sanitizeType(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	upper := strings.ToUpper(stripped)
	var sb strings.Builder
	for _, r := range upper {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ', r == '-':
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}

func buildHearingNote(order int, cls *classification.Result) ActionSpec {
	when := "pending date"
	if cls.Hearing != nil {
		when = cls.Hearing.UTC().Format("2006-01-02 15:04")
	}
	body := fmt.Sprintf("Hearing for %s at %s: %s", cls.ProcedureNumber, cls.Court, when)
	return ActionSpec{
		Order:       order,
		Type:        ActionCreateNote,
		Title:       "Hearing summary",
		Description: body,
		Config:      ActionConfig{Note: &CreateNoteConfig{Body: body}},
		Status:      ActionProposed,
	}
}

// buildHearingEvents emits the hearing event itself plus the three
// derived all-day reminders: evidence at −15 days, client meeting at
// −1 month, trial preparation at −45 days.
func buildHearingEvents(next func() int, cls *classification.Result) []ActionSpec {
	hearing := cls.Hearing.UTC()
	title := fmt.Sprintf("Hearing %s — %s", cls.ProcedureNumber, partiesSummary(cls.Parties))

	events := []ActionSpec{{
		Order: next(),
		Type:  ActionCreateEvent,
		Title: title,
		Config: ActionConfig{Event: &CreateEventConfig{
			Title:       title,
			StartsAt:    hearing,
			AllDay:      false,
			Location:    cls.Court,
			Description: fmt.Sprintf("Procedure %s (%s)", cls.ProcedureNumber, cls.ProcedureType),
		}},
		Status: ActionProposed,
	}}

	reminders := []struct {
		label    string
		startsAt time.Time
	}{
		{"Prepare/submit evidence", hearing.AddDate(0, 0, -15)},
		{"Client meeting", hearing.AddDate(0, -1, 0)},
		{"Trial preparation", hearing.AddDate(0, 0, -45)},
	}
	for _, r := range reminders {
		t := fmt.Sprintf("%s — %s", r.label, cls.ProcedureNumber)
		events = append(events, ActionSpec{
			Order: next(),
			Type:  ActionCreateEvent,
			Title: t,
			Config: ActionConfig{Event: &CreateEventConfig{
				Title:       t,
				StartsAt:    dateOnly(r.startsAt),
				AllDay:      true,
				DerivedFrom: derivedFromHearing,
				Description: fmt.Sprintf("Derived from hearing on %s", hearing.Format("2006-01-02")),
			}},
			Status: ActionProposed,
		})
	}
	return events
}

func (b *Builder) buildDeadlineEvent(ctx context.Context, order int, cls *classification.Result, fact classification.DeadlineFact) (ActionSpec, error) {
	res, err := b.calc.Compute(ctx, deadline.Request{
		StartDate: cls.ReceivedAt,
		DayCount:  fact.DayCount,
		DayKind:   fact.DayKind,
		Scope:     cls.Scope,
	})
	if err != nil {
		return ActionSpec{}, fmt.Errorf("resolve deadline %q: %w", fact.Description, err)
	}

	title := fmt.Sprintf("Deadline (%d %s days): %s", fact.DayCount, strings.ToLower(string(fact.DayKind)), fact.Description)
	// Only the dates persist. Remaining days and urgency depend on when
	// they are read, so they are recomputed at read time, never stored.
	preview, _ := json.Marshal(struct {
		DeadlineDate   time.Time `json:"deadline_date"`
		GracePeriodEnd time.Time `json:"grace_period_end"`
	}{res.DeadlineDate, res.GracePeriodEnd})
	return ActionSpec{
		Order: order,
		Type:  ActionCreateEvent,
		Title: title,
		Config: ActionConfig{Event: &CreateEventConfig{
			Title:    title,
			StartsAt: res.DeadlineDate,
			AllDay:   true,
			Description: fmt.Sprintf("Grace period ends %s at 15:00:59",
				res.GracePeriodEnd.Format("2006-01-02")),
		}},
		PreviewData: preview,
		Status:      ActionProposed,
	}, nil
}

func buildLawyerEmail(order int, cls *classification.Result, docs []classification.Document) ActionSpec {
	attachments := make([]string, 0, len(docs))
	for _, d := range docs {
		attachments = append(attachments, d.Path)
	}
	subject := fmt.Sprintf("[%s] %s — new notification", cls.Court, cls.ProcedureNumber)
	return ActionSpec{
		Order: order,
		Type:  ActionSendEmailLawyer,
		Title: fmt.Sprintf("Notify %s", cls.Contact.Name),
		Config: ActionConfig{Email: &EmailConfig{
			To:          cls.Contact.Email,
			Subject:     subject,
			Body:        fmt.Sprintf("A %s was received for procedure %s.", cls.ActType, cls.ProcedureNumber),
			Attachments: attachments,
		}},
		Status: ActionProposed,
	}
}

func buildClientEmail(order int, cls *classification.Result) ActionSpec {
	subject := fmt.Sprintf("Citation received — procedure %s", cls.ProcedureNumber)
	return ActionSpec{
		Order: order,
		Type:  ActionSendEmailClient,
		Title: "Inform client of citation",
		Config: ActionConfig{Email: &EmailConfig{
			Subject: subject,
			Body: fmt.Sprintf("You have been cited in procedure %s before %s. Your lawyer will contact you with next steps.",
				cls.ProcedureNumber, cls.Court),
		}},
		Status: ActionProposed,
	}
}

func partiesSummary(parties []classification.Party) string {
	if len(parties) == 0 {
		return "parties pending"
	}
	names := make([]string, 0, len(parties))
	for _, p := range parties {
		names = append(names, p.Name)
	}
	return strings.Join(names, " v ")
}

func dateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
