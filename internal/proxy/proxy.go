// Package proxy validates and audits every operation before it reaches the engine.
//
// Text mutations run through an ordered middleware pipeline under the process
// lock: input, editability and completion checks, the audit stamp, sanitization,
// the history capture and finally the engine. Rejections never touch the process
// beyond the checks themselves.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"transline/internal/domain"
	"transline/internal/engine"
	"transline/internal/events"
	"transline/internal/logger"
	"transline/internal/metrics"
	"transline/internal/process"
)

// Journal receives one audit record per operation.
type Journal interface {
	Write(ctx context.Context, rec events.Record) error
}

const (
	opCreateDocument = "create_document"
	opOpenProcess    = "open_process"
	opChangeText     = "change_text"
	opRestore        = "restore"
	opComplete       = "complete"
)

type Proxy struct {
	engine       *engine.Engine
	journal      Journal
	metrics      *metrics.Metrics
	log          *slog.Logger
	now          func() time.Time
	defaultActor string

	changeText Handler
	complete   Handler
}

var _ engine.Service = (*Proxy)(nil)

type Option func(*Proxy)

func WithJournal(j Journal) Option { return func(p *Proxy) { p.journal = j } }

func WithMetrics(m *metrics.Metrics) Option { return func(p *Proxy) { p.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(p *Proxy) { p.log = l } }

func WithNow(now func() time.Time) Option { return func(p *Proxy) { p.now = now } }

// WithDefaultActor sets the identity stamped when the context carries none.
func WithDefaultActor(actor string) Option { return func(p *Proxy) { p.defaultActor = actor } }

func New(e *engine.Engine, opts ...Option) *Proxy {
	p := &Proxy{
		engine:       e,
		log:          logger.Discard(),
		now:          time.Now,
		defaultActor: "user",
	}
	for _, opt := range opts {
		opt(p)
	}
	p.changeText = Chain(
		func(ctx context.Context, m *Mutation) (bool, error) {
			return p.engine.ApplyText(ctx, m.Process, m.Input)
		},
		RequireInput(),
		RequireEditable(),
		RequireOpen(),
		StampAudit(p.now, p.defaultActor),
		Sanitize(p.metrics.AddStripped),
		SaveVersion(e.Versions),
	)
	p.complete = Chain(
		func(ctx context.Context, m *Mutation) (bool, error) {
			return p.engine.ApplyComplete(ctx, m.Process)
		},
		currentText,
		RequireInput(),
		RequireEditable(),
		RequireOpen(),
		StampAudit(p.now, p.defaultActor),
	)
	return p
}

func (p *Proxy) actor(ctx context.Context) string {
	if a, ok := ActorFrom(ctx); ok {
		return a
	}
	return p.defaultActor
}

func (p *Proxy) CreateDocument(ctx context.Context, req engine.DeployRequest) (domain.Document, error) {
	doc, err := p.engine.CreateDocument(ctx, req)
	if err != nil {
		p.metrics.IncrementMutation(opCreateDocument, "", "error")
		return doc, err
	}
	p.metrics.IncrementMutation(opCreateDocument, "", "ok")
	p.write(ctx, events.Record{
		Type:       "document.created",
		ActivityID: doc.ActivityID,
		ActorID:    p.actor(ctx),
		Payload: events.EventPayload{
			"id":            doc.ID,
			"language_from": doc.LanguageFrom,
			"language_to":   doc.LanguageTo,
			"reviewer_key":  req.ReviewerAPIKey != "",
		},
	})
	return doc, nil
}

func (p *Proxy) GetOrCreateProcess(ctx context.Context, activityID string, role domain.Role, userIdentifier string) (*process.Process, error) {
	proc, created, err := p.engine.OpenProcess(ctx, activityID, role, userIdentifier)
	if err != nil {
		p.metrics.IncrementMutation(opOpenProcess, string(role), "error")
		return nil, err
	}
	p.metrics.IncrementMutation(opOpenProcess, string(role), "ok")
	if created {
		p.write(ctx, events.Record{
			Type:       "process.created",
			ActivityID: activityID,
			Role:       string(role),
			ActorID:    p.actor(ctx),
			Payload:    events.EventPayload{"user_id": proc.UserID()},
		})
	}
	return proc, nil
}

func (p *Proxy) find(activityID string, role domain.Role) (*process.Process, error) {
	proc, ok := p.engine.Store.Find(activityID, role)
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", activityID, role, domain.ErrProcessNotFound)
	}
	return proc, nil
}

// ChangeText validates, stamps, sanitizes and versions input before applying it.
func (p *Proxy) ChangeText(ctx context.Context, activityID string, role domain.Role, input string) (bool, error) {
	proc, err := p.find(activityID, role)
	if err != nil {
		p.metrics.IncrementMutation(opChangeText, string(role), "error")
		return false, err
	}
	return p.run(ctx, opChangeText, proc, input, p.changeText)
}

// CompleteProcess validates the current translated text and completes the document.
func (p *Proxy) CompleteProcess(ctx context.Context, activityID string, role domain.Role) (bool, error) {
	proc, err := p.find(activityID, role)
	if err != nil {
		p.metrics.IncrementMutation(opComplete, string(role), "error")
		return false, err
	}
	return p.run(ctx, opComplete, proc, "", p.complete)
}

// currentText validates completion against the translated text held at lock time.
func currentText(next Handler) Handler {
	return func(ctx context.Context, m *Mutation) (bool, error) {
		m.Input = m.Process.TranslatedText()
		return next(ctx, m)
	}
}

func (p *Proxy) RestoreLastVersion(ctx context.Context, activityID string, role domain.Role) (bool, error) {
	proc, err := p.find(activityID, role)
	if err != nil {
		p.metrics.IncrementMutation(opRestore, string(role), "error")
		return false, err
	}
	return p.run(ctx, opRestore, proc, "", func(ctx context.Context, m *Mutation) (bool, error) {
		m.Actor = p.actor(ctx)
		return p.engine.ApplyRestore(ctx, m.Process)
	})
}

func (p *Proxy) Status(ctx context.Context, activityID string, role domain.Role) *domain.DeployStatus {
	st := p.engine.Status(ctx, activityID, role)
	p.log.Debug("status read", "activity_id", activityID, "role", role, "found", st != nil)
	return st
}

func (p *Proxy) GetProcess(ctx context.Context, activityID string) *process.Process {
	return p.engine.GetProcess(ctx, activityID)
}

func (p *Proxy) History(ctx context.Context, activityID string, role domain.Role) ([]domain.TextVersion, error) {
	return p.engine.History(ctx, activityID, role)
}

// run executes h under the process lock and records the outcome.
func (p *Proxy) run(ctx context.Context, op string, proc *process.Process, input string, h Handler) (bool, error) {
	start := time.Now()
	m := &Mutation{Process: proc, Input: input}
	proc.Lock()
	cp := proc.CheckpointLocked()
	ok, err := h(ctx, m)
	if err != nil {
		// undo the audit stamp and saved version along with the engine change
		proc.RollbackLocked(cp)
	}
	var translated string
	if ok {
		translated = proc.TranslatedText()
	}
	proc.Unlock()
	p.metrics.ObserveLatency(op, time.Since(start))

	role := string(proc.Role())
	actor := m.Actor
	if actor == "" {
		actor = p.actor(ctx)
	}
	rec := events.Record{ActivityID: proc.ActivityID(), Role: role, ActorID: actor}

	var verr domain.ValidationError
	switch {
	case errors.As(err, &verr):
		p.metrics.IncrementMutation(op, role, "rejected")
		p.log.Info("mutation rejected", "op", op, "activity_id", rec.ActivityID, "role", role, "reason", verr.Reason)
		rec.Type = "text.rejected"
		rec.Payload = events.EventPayload{"op": op, "reason": verr.Reason}
		p.write(ctx, rec)
	case err != nil:
		p.metrics.IncrementMutation(op, role, "error")
		p.log.Error("mutation failed", "op", op, "activity_id", rec.ActivityID, "role", role, "err", err)
	case !ok:
		p.metrics.IncrementMutation(op, role, "noop")
	default:
		p.metrics.IncrementMutation(op, role, "ok")
		switch op {
		case opChangeText:
			rec.Type = "text.changed"
			rec.Payload = events.EventPayload{"text": m.Input}
		case opRestore:
			rec.Type = "text.restored"
			rec.Payload = events.EventPayload{"translated_text": translated}
		case opComplete:
			rec.Type = "process.completed"
		}
		p.write(ctx, rec)
	}
	return ok, err
}

func (p *Proxy) write(ctx context.Context, rec events.Record) {
	if p.journal == nil {
		return
	}
	if err := p.journal.Write(ctx, rec); err != nil {
		p.log.Error("journal write failed", "type", rec.Type, "activity_id", rec.ActivityID, "err", err)
	}
}
