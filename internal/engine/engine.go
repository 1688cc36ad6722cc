package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"transline/internal/domain"
	"transline/internal/history"
	"transline/internal/logger"
	"transline/internal/process"
	"transline/internal/store"
)

// Service is the document and process surface shared by the engine and the
// validating proxy in front of it.
type Service interface {
	CreateDocument(ctx context.Context, req DeployRequest) (domain.Document, error)
	GetOrCreateProcess(ctx context.Context, activityID string, role domain.Role, userIdentifier string) (*process.Process, error)
	ChangeText(ctx context.Context, activityID string, role domain.Role, input string) (bool, error)
	RestoreLastVersion(ctx context.Context, activityID string, role domain.Role) (bool, error)
	Status(ctx context.Context, activityID string, role domain.Role) *domain.DeployStatus
	CompleteProcess(ctx context.Context, activityID string, role domain.Role) (bool, error)
	GetProcess(ctx context.Context, activityID string) *process.Process
	History(ctx context.Context, activityID string, role domain.Role) ([]domain.TextVersion, error)
}

// DeployRequest are parameters for registering a document.
type DeployRequest struct {
	ActivityID       string
	Text             string
	Instructions     string
	LanguageFrom     string
	LanguageTo       string
	TimeLimitMinutes int
	TranslatorCount  int
	ReviewerAPIKey   string
}

// KeyRegistrar issues the reviewer API key of an activity.
type KeyRegistrar interface {
	Register(ctx context.Context, activityID, rawKey string) (domain.APIKey, error)
}

// Engine applies mutations without validation. Every state change is written
// through to Persist when one is configured.
type Engine struct {
	Store    *store.Memory
	Versions history.Manager
	Persist  store.Persister
	Keys     KeyRegistrar
	Logger   *slog.Logger
	Now      func() time.Time
}

var _ Service = (*Engine)(nil)

func New(st *store.Memory, persist store.Persister) *Engine {
	e := &Engine{
		Store:   st,
		Persist: persist,
		Logger:  logger.Discard(),
		Now:     time.Now,
	}
	e.Versions = history.Manager{Now: e.now}
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) log() *slog.Logger {
	if e.Logger == nil {
		return logger.Discard()
	}
	return e.Logger
}

func (e *Engine) CreateDocument(ctx context.Context, req DeployRequest) (domain.Document, error) {
	if req.TimeLimitMinutes < 0 || req.TranslatorCount < 0 {
		return domain.Document{}, fmt.Errorf("%w: time limit and translator count must not be negative", domain.ErrInvalidArgument)
	}
	if req.ReviewerAPIKey != "" && e.Keys == nil {
		return domain.Document{}, fmt.Errorf("%w: reviewer keys are not configured", domain.ErrInvalidArgument)
	}
	if req.ReviewerAPIKey != "" && strings.TrimSpace(req.ReviewerAPIKey) == "" {
		return domain.Document{}, fmt.Errorf("%w: reviewer api key is blank", domain.ErrInvalidArgument)
	}
	doc, err := e.Store.CreateDocument(domain.Document{
		ActivityID:       strings.TrimSpace(req.ActivityID),
		Text:             req.Text,
		Instructions:     req.Instructions,
		LanguageFrom:     req.LanguageFrom,
		LanguageTo:       req.LanguageTo,
		TimeLimitMinutes: req.TimeLimitMinutes,
		TranslatorCount:  req.TranslatorCount,
		CreatedAt:        e.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return domain.Document{}, err
	}
	rec := doc.Snapshot()
	// Register is idempotent per activity, so the key goes first and a failed
	// document write can be retried with it.
	if req.ReviewerAPIKey != "" {
		if _, err := e.Keys.Register(ctx, rec.ActivityID, req.ReviewerAPIKey); err != nil {
			e.Store.RemoveDocument(rec.ActivityID)
			return domain.Document{}, fmt.Errorf("register reviewer key: %w", err)
		}
	}
	if e.Persist != nil {
		if err := e.Persist.SaveDocument(ctx, rec); err != nil {
			e.Store.RemoveDocument(rec.ActivityID)
			return domain.Document{}, fmt.Errorf("persist document: %w", err)
		}
	}
	e.log().Debug("document created", "activity_id", rec.ActivityID, "id", rec.ID)
	return rec, nil
}

func (e *Engine) GetOrCreateProcess(ctx context.Context, activityID string, role domain.Role, userIdentifier string) (*process.Process, error) {
	p, _, err := e.OpenProcess(ctx, activityID, role, userIdentifier)
	return p, err
}

// OpenProcess is GetOrCreateProcess that also reports whether the process was
// created by this call.
func (e *Engine) OpenProcess(ctx context.Context, activityID string, role domain.Role, userIdentifier string) (*process.Process, bool, error) {
	p, created, err := e.Store.GetOrCreate(ctx, activityID, role, userIdentifier)
	if err != nil {
		return nil, false, err
	}
	if created {
		p.Lock()
		err := e.save(ctx, p)
		p.Unlock()
		if err != nil {
			e.Store.Remove(activityID, role, p)
			return nil, false, err
		}
		e.log().Debug("process created", "activity_id", activityID, "role", role)
	}
	return p, created, nil
}

// ChangeText applies input to the role's text target. It reports false when the
// process does not exist.
func (e *Engine) ChangeText(ctx context.Context, activityID string, role domain.Role, input string) (bool, error) {
	p, ok := e.Store.Find(activityID, role)
	if !ok {
		return false, nil
	}
	p.Lock()
	defer p.Unlock()
	return e.ApplyText(ctx, p, input)
}

// ApplyText is ChangeText for a process whose lock the caller holds.
func (e *Engine) ApplyText(ctx context.Context, p *process.Process, input string) (bool, error) {
	cp := p.CheckpointLocked()
	if !p.ChangeText(input) {
		return false, nil
	}
	if err := e.commit(ctx, p, cp); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) RestoreLastVersion(ctx context.Context, activityID string, role domain.Role) (bool, error) {
	p, ok := e.Store.Find(activityID, role)
	if !ok {
		return false, nil
	}
	p.Lock()
	defer p.Unlock()
	return e.ApplyRestore(ctx, p)
}

// ApplyRestore pops the latest version of a locked process. Completed documents
// are never rolled back.
func (e *Engine) ApplyRestore(ctx context.Context, p *process.Process) (bool, error) {
	if p.Document().Completed() {
		return false, nil
	}
	cp := p.CheckpointLocked()
	if !e.Versions.RestoreLast(p) {
		return false, nil
	}
	if err := e.commit(ctx, p, cp); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) Status(_ context.Context, activityID string, role domain.Role) *domain.DeployStatus {
	p, ok := e.Store.Find(activityID, role)
	if !ok {
		return nil
	}
	st := p.Status()
	return &st
}

func (e *Engine) CompleteProcess(ctx context.Context, activityID string, role domain.Role) (bool, error) {
	p, ok := e.Store.Find(activityID, role)
	if !ok {
		return false, nil
	}
	p.Lock()
	defer p.Unlock()
	return e.ApplyComplete(ctx, p)
}

// ApplyComplete locks the process and completes its document. The caller holds
// the process lock.
func (e *Engine) ApplyComplete(ctx context.Context, p *process.Process) (bool, error) {
	cp := p.CheckpointLocked()
	p.Complete()
	if err := e.commit(ctx, p, cp); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) GetProcess(_ context.Context, activityID string) *process.Process {
	p, ok := e.Store.FindAny(activityID)
	if !ok {
		return nil
	}
	return p
}

func (e *Engine) History(_ context.Context, activityID string, role domain.Role) ([]domain.TextVersion, error) {
	p, ok := e.Store.Find(activityID, role)
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", activityID, role, domain.ErrProcessNotFound)
	}
	return p.Snapshot().History, nil
}

// save writes the document and the locked process through to the persister.
func (e *Engine) save(ctx context.Context, p *process.Process) error {
	if e.Persist == nil {
		return nil
	}
	if err := e.Persist.SaveState(ctx, p.Document().Snapshot(), p.SnapshotLocked()); err != nil {
		return fmt.Errorf("persist process: %w", err)
	}
	return nil
}

// commit saves p and, when the write fails, returns it to cp so memory keeps
// matching what is durable.
func (e *Engine) commit(ctx context.Context, p *process.Process, cp process.Checkpoint) error {
	if err := e.save(ctx, p); err != nil {
		p.RollbackLocked(cp)
		e.log().Error("write-through failed, change rolled back", "activity_id", p.ActivityID(), "role", p.Role(), "err", err)
		return err
	}
	return nil
}
