package proxy

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"transline/internal/domain"
	"transline/internal/history"
	"transline/internal/process"
)

// Mutation carries one text operation through the pipeline. The process lock is
// held for the whole run.
type Mutation struct {
	Process *process.Process
	Input   string
	Actor   string
	At      time.Time
}

// Handler runs a mutation. The bool result mirrors the process contract.
type Handler func(ctx context.Context, m *Mutation) (bool, error)

// Middleware wraps a Handler with one pipeline step.
type Middleware func(Handler) Handler

// Chain wraps h so that mws run in the order given, the first outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func reject(reason string) Handler {
	return func(context.Context, *Mutation) (bool, error) {
		return false, domain.ValidationError{Reason: reason}
	}
}

// RequireInput rejects blank input.
func RequireInput() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, m *Mutation) (bool, error) {
			if strings.TrimSpace(m.Input) == "" {
				return reject(domain.ReasonEmptyInput)(ctx, m)
			}
			return next(ctx, m)
		}
	}
}

// RequireEditable rejects processes whose role may not edit.
func RequireEditable() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, m *Mutation) (bool, error) {
			if !m.Process.Editable() {
				return reject(domain.ReasonNotEditable)(ctx, m)
			}
			return next(ctx, m)
		}
	}
}

// RequireOpen rejects mutations against completed documents.
func RequireOpen() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, m *Mutation) (bool, error) {
			if m.Process.Document().Completed() {
				return reject(domain.ReasonAlreadyCompleted)(ctx, m)
			}
			return next(ctx, m)
		}
	}
}

// StampAudit records the time and actor of the mutation on the process. The actor
// comes from the context, falling back to defaultActor.
func StampAudit(now func() time.Time, defaultActor string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, m *Mutation) (bool, error) {
			m.At = now().UTC()
			m.Actor = defaultActor
			if actor, ok := ActorFrom(ctx); ok {
				m.Actor = actor
			}
			m.Process.Stamp(m.At, m.Actor)
			return next(ctx, m)
		}
	}
}

var disallowed = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// SanitizeText trims s and removes every character outside [A-Za-z0-9_.].
func SanitizeText(s string) string {
	return disallowed.ReplaceAllString(strings.TrimSpace(s), "")
}

// Sanitize rewrites the input with SanitizeText. stripped, when set, receives the
// number of characters removed.
func Sanitize(stripped func(n int)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, m *Mutation) (bool, error) {
			clean := SanitizeText(m.Input)
			if stripped != nil {
				stripped(utf8.RuneCountInString(m.Input) - utf8.RuneCountInString(clean))
			}
			m.Input = clean
			return next(ctx, m)
		}
	}
}

// SaveVersion captures the current translated text before the edit lands.
func SaveVersion(h history.Manager) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, m *Mutation) (bool, error) {
			h.Save(m.Process)
			return next(ctx, m)
		}
	}
}
