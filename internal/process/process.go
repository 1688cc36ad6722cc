// Package process holds the role-scoped working records opened against a document.
//
// A Process is one struct for every role; the role's row in the capability table
// decides whether it may edit, which field an edit lands in and which status
// projection it exposes.
//
// Methods with the Locked suffix, and the mutators, expect the caller to hold the
// process lock (Lock/Unlock). Snapshot and Status acquire it themselves.
package process

import (
	"sync"
	"time"

	"transline/internal/domain"
)

type Process struct {
	mu sync.Mutex

	role   domain.Role
	caps   Capabilities
	userID string
	doc    *Document

	editable   bool
	translated string
	history    []domain.TextVersion
	modifiedAt time.Time
	modifiedBy string
}

func newProcess(role domain.Role, caps Capabilities, userID string) *Process {
	return &Process{role: role, caps: caps, userID: userID, editable: caps.Editable}
}

// FromRecord rebuilds a process from a persisted snapshot.
func FromRecord(rec domain.ActorProcess, doc *Document) (*Process, error) {
	caps, err := CapabilitiesFor(rec.Role)
	if err != nil {
		return nil, err
	}
	p := newProcess(rec.Role, caps, rec.UserID)
	p.doc = doc
	p.editable = rec.Editable
	p.translated = rec.TranslatedText
	p.history = append([]domain.TextVersion(nil), rec.History...)
	p.modifiedBy = rec.LastModifiedBy
	if rec.LastModifiedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, rec.LastModifiedAt); err == nil {
			p.modifiedAt = ts
		}
	}
	return p, nil
}

func (p *Process) Lock()   { p.mu.Lock() }
func (p *Process) Unlock() { p.mu.Unlock() }

func (p *Process) Role() domain.Role          { return p.role }
func (p *Process) Capabilities() Capabilities { return p.caps }
func (p *Process) UserID() string             { return p.userID }
func (p *Process) Document() *Document        { return p.doc }
func (p *Process) ActivityID() string         { return p.doc.ActivityID() }

// Attach sets the document back-reference. It is a no-op once a document is attached.
func (p *Process) Attach(doc *Document) {
	if p.doc == nil {
		p.doc = doc
	}
}

func (p *Process) Editable() bool { return p.editable }

func (p *Process) TranslatedText() string { return p.translated }

// SetTranslatedText overwrites the translated text without touching history.
func (p *Process) SetTranslatedText(text string) { p.translated = text }

// ChangeText applies an already validated edit to the role's text target.
func (p *Process) ChangeText(input string) bool {
	switch p.caps.Target {
	case TargetDocument:
		p.doc.setText(input)
	default:
		p.translated = input
	}
	return true
}

// Stamp records who changed the process and when.
func (p *Process) Stamp(at time.Time, by string) {
	p.modifiedAt = at.UTC()
	p.modifiedBy = by
}

func (p *Process) LastModified() (time.Time, string) { return p.modifiedAt, p.modifiedBy }

// PushVersion appends v to the tail of the history.
func (p *Process) PushVersion(v domain.TextVersion) { p.history = append(p.history, v) }

// PopVersion removes and returns the most recent version.
func (p *Process) PopVersion() (domain.TextVersion, bool) {
	if len(p.history) == 0 {
		return domain.TextVersion{}, false
	}
	last := p.history[len(p.history)-1]
	p.history = p.history[:len(p.history)-1]
	return last, true
}

func (p *Process) HistoryLen() int { return len(p.history) }

// Complete locks the process and moves its document to completed.
func (p *Process) Complete() {
	p.editable = false
	p.doc.complete()
}

// Checkpoint is the mutable state of a process and its document at one point in time.
type Checkpoint struct {
	editable   bool
	translated string
	history    []domain.TextVersion
	modifiedAt time.Time
	modifiedBy string
	doc        domain.Document
}

// CheckpointLocked captures the state RollbackLocked returns to.
func (p *Process) CheckpointLocked() Checkpoint {
	return Checkpoint{
		editable:   p.editable,
		translated: p.translated,
		history:    append([]domain.TextVersion(nil), p.history...),
		modifiedAt: p.modifiedAt,
		modifiedBy: p.modifiedBy,
		doc:        p.doc.Snapshot(),
	}
}

// RollbackLocked undoes every change made since c was captured, including
// document text and status.
func (p *Process) RollbackLocked(c Checkpoint) {
	p.editable = c.editable
	p.translated = c.translated
	p.history = append([]domain.TextVersion(nil), c.history...)
	p.modifiedAt = c.modifiedAt
	p.modifiedBy = c.modifiedBy
	p.doc.reset(c.doc)
}

// SnapshotLocked returns a value copy of the process.
func (p *Process) SnapshotLocked() domain.ActorProcess {
	rec := domain.ActorProcess{
		ActivityID:     p.ActivityID(),
		Role:           p.role,
		UserID:         p.userID,
		Editable:       p.editable,
		TranslatedText: p.translated,
		History:        append([]domain.TextVersion(nil), p.history...),
		LastModifiedBy: p.modifiedBy,
	}
	if !p.modifiedAt.IsZero() {
		rec.LastModifiedAt = p.modifiedAt.Format(time.RFC3339Nano)
	}
	return rec
}

func (p *Process) Snapshot() domain.ActorProcess {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.SnapshotLocked()
}

// Status projects the role's view of the process and its document.
func (p *Process) Status() domain.DeployStatus {
	doc := p.doc.Snapshot()
	switch p.caps.View {
	case ViewReviewer:
		// reviewers never see the document status
		return domain.DeployStatus{Text: doc.Text, Instructions: doc.Instructions, Status: ""}
	case ViewTranslator:
		p.mu.Lock()
		translated := p.translated
		p.mu.Unlock()
		return domain.DeployStatus{
			Text:           doc.Text,
			Instructions:   doc.Instructions,
			TranslatedText: translated,
			Status:         string(doc.Status),
		}
	default:
		return domain.DeployStatus{Text: doc.Text, Status: string(doc.Status)}
	}
}
