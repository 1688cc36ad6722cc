package process

import (
	"sync"

	"transline/internal/domain"
)

// Document is the live, shared document record. Processes of every role hold
// the same *Document; its fields are guarded by its own lock.
type Document struct {
	mu  sync.RWMutex
	rec domain.Document
}

func NewDocument(rec domain.Document) *Document {
	if rec.Status == "" {
		rec.Status = domain.StatusOpen
	}
	return &Document{rec: rec}
}

func (d *Document) ID() int64 { return d.rec.ID }

func (d *Document) ActivityID() string { return d.rec.ActivityID }

// Snapshot returns a copy of the document record.
func (d *Document) Snapshot() domain.Document {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rec
}

func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rec.Text
}

func (d *Document) Status() domain.DocumentStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rec.Status
}

func (d *Document) Completed() bool {
	return d.Status() == domain.StatusCompleted
}

func (d *Document) setText(text string) {
	d.mu.Lock()
	d.rec.Text = text
	d.mu.Unlock()
}

// complete moves the document to its terminal state.
func (d *Document) complete() {
	d.mu.Lock()
	d.rec.Status = domain.StatusCompleted
	d.mu.Unlock()
}

// reset returns text and status to those of rec.
func (d *Document) reset(rec domain.Document) {
	d.mu.Lock()
	d.rec.Text = rec.Text
	d.rec.Status = rec.Status
	d.mu.Unlock()
}
