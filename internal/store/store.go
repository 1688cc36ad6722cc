// Package store keeps the live documents and processes for the lifetime of the service.
//
// A single mutex guards both maps, so the check, construct and insert steps of
// GetOrCreate and the document id assignment are atomic with respect to each other.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"transline/internal/domain"
	"transline/internal/process"
)

// Factory constructs unattached processes.
type Factory interface {
	New(ctx context.Context, activityID string, role domain.Role, userIdentifier string) (*process.Process, error)
}

// Persister is the durable side of the store. Repo implements it.
type Persister interface {
	SaveDocument(ctx context.Context, d domain.Document) error
	SaveProcess(ctx context.Context, p domain.ActorProcess) error
	// SaveState writes a document and one of its processes atomically.
	SaveState(ctx context.Context, d domain.Document, p domain.ActorProcess) error
	LoadDocuments(ctx context.Context) ([]domain.Document, error)
	LoadProcesses(ctx context.Context) ([]domain.ActorProcess, error)
}

type key struct {
	activityID string
	role       domain.Role
}

type Memory struct {
	mu      sync.Mutex
	factory Factory
	docs    map[string]*process.Document
	procs   map[key]*process.Process
}

func NewMemory(factory Factory) *Memory {
	return &Memory{
		factory: factory,
		docs:    map[string]*process.Document{},
		procs:   map[key]*process.Process{},
	}
}

// Load rehydrates documents and processes from p. Existing entries are replaced.
func (m *Memory) Load(ctx context.Context, p Persister) error {
	docs, err := p.LoadDocuments(ctx)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	procs, err := p.LoadProcesses(ctx)
	if err != nil {
		return fmt.Errorf("load processes: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		m.docs[d.ActivityID] = process.NewDocument(d)
	}
	for _, rec := range procs {
		doc, ok := m.docs[rec.ActivityID]
		if !ok {
			return fmt.Errorf("process %s/%s: %w", rec.ActivityID, rec.Role, domain.ErrDocumentNotFound)
		}
		proc, err := process.FromRecord(rec, doc)
		if err != nil {
			return fmt.Errorf("process %s/%s: %w", rec.ActivityID, rec.Role, err)
		}
		m.procs[key{rec.ActivityID, rec.Role}] = proc
	}
	return nil
}

// CreateDocument registers a new document. The id is one more than the largest
// existing id, or 1 for the first document.
func (m *Memory) CreateDocument(rec domain.Document) (*process.Document, error) {
	if strings.TrimSpace(rec.ActivityID) == "" {
		return nil, fmt.Errorf("%w: activity id is required", domain.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[rec.ActivityID]; ok {
		return nil, fmt.Errorf("%w: activity %s already has a document", domain.ErrInvalidArgument, rec.ActivityID)
	}
	var maxID int64
	for _, d := range m.docs {
		if d.ID() > maxID {
			maxID = d.ID()
		}
	}
	rec.ID = maxID + 1
	rec.Status = domain.StatusOpen
	doc := process.NewDocument(rec)
	m.docs[rec.ActivityID] = doc
	return doc, nil
}

// RemoveDocument drops a document that failed to be registered durably, along
// with any process already opened against it.
func (m *Memory) RemoveDocument(activityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, activityID)
	for _, role := range domain.Roles {
		delete(m.procs, key{activityID, role})
	}
}

func (m *Memory) FindDocument(activityID string) (*process.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[activityID]
	return d, ok
}

// Documents returns snapshots of every document ordered by id.
func (m *Memory) Documents() []domain.Document {
	m.mu.Lock()
	out := make([]domain.Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d.Snapshot())
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetOrCreate returns the process of (activityID, role), constructing it through
// the factory when absent. created reports whether this call inserted it.
func (m *Memory) GetOrCreate(ctx context.Context, activityID string, role domain.Role, userIdentifier string) (p *process.Process, created bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.procs[key{activityID, role}]; ok {
		return p, false, nil
	}
	doc, ok := m.docs[activityID]
	if !ok {
		return nil, false, fmt.Errorf("activity %s: %w", activityID, domain.ErrDocumentNotFound)
	}
	p, err = m.factory.New(ctx, activityID, role, userIdentifier)
	if err != nil {
		return nil, false, err
	}
	p.Attach(doc)
	m.procs[key{activityID, role}] = p
	return p, true, nil
}

// Remove drops the process of (activityID, role) if it is still p.
func (m *Memory) Remove(activityID string, role domain.Role, p *process.Process) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.procs[key{activityID, role}] == p {
		delete(m.procs, key{activityID, role})
	}
}

func (m *Memory) Find(activityID string, role domain.Role) (*process.Process, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[key{activityID, role}]
	return p, ok
}

// FindAny returns a process of the activity regardless of role, the first one
// found in role order.
func (m *Memory) FindAny(activityID string) (*process.Process, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range domain.Roles {
		if p, ok := m.procs[key{activityID, role}]; ok {
			return p, true
		}
	}
	return nil, false
}

// Processes returns the processes opened against activityID in role order.
func (m *Memory) Processes(activityID string) []*process.Process {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*process.Process
	for _, role := range domain.Roles {
		if p, ok := m.procs[key{activityID, role}]; ok {
			out = append(out, p)
		}
	}
	return out
}
