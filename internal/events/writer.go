package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends audit events to the events table.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Record is one audit entry to append.
type Record struct {
	Type       string
	ActivityID string
	Role       string
	ActorID    string
	Payload    EventPayload
}

// Append writes the record inside tx when given, otherwise directly on the DB.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec Record) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	payload := rec.Payload
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	const query = `INSERT INTO events(ts,type,activity_id,role,actor_id,payload_json) VALUES (?,?,?,?,?,?)`
	args := []any{ts, rec.Type, nullable(rec.ActivityID), nullable(rec.Role), rec.ActorID, string(data)}
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	}
	_, err = w.DB.ExecContext(ctx, query, args...)
	return err
}

// Write appends rec outside of any caller transaction.
func (w Writer) Write(ctx context.Context, rec Record) error {
	return w.Append(ctx, nil, rec)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
