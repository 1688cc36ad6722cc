// Package history captures and restores snapshots of a process's translated text.
//
// Versions form a LIFO stack per process. Every call assumes the caller holds the
// process lock.
package history

import (
	"time"

	"transline/internal/domain"
	"transline/internal/process"
)

type Manager struct {
	Now func() time.Time
}

func (m Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Save captures the current translated text of p and appends it to p's history.
func (m Manager) Save(p *process.Process) domain.TextVersion {
	v := domain.TextVersion{
		Text:       p.TranslatedText(),
		CapturedAt: m.now().UTC().Format(time.RFC3339Nano),
	}
	p.PushVersion(v)
	return v
}

// Restore overwrites p's translated text with v. The history is left untouched.
func (m Manager) Restore(p *process.Process, v domain.TextVersion) {
	p.SetTranslatedText(v.Text)
}

// RestoreLast pops the most recent version and restores it. It reports false when
// the history is empty.
func (m Manager) RestoreLast(p *process.Process) bool {
	v, ok := p.PopVersion()
	if !ok {
		return false
	}
	m.Restore(p, v)
	return true
}
