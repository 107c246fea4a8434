// Package journal records the lifecycle of every orchestrated operation so a
// crash between the approval and the primary transaction leaves an
// observable state behind.
package journal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// State is a position in the operation lifecycle.
type State string

const (
	StatePlanned                     State = "Planned"
	StateAwaitingApproval            State = "AwaitingApproval"
	StateAwaitingPrimaryConfirmation State = "AwaitingPrimaryConfirmation"
	StateSettled                     State = "Settled"
	StateFailed                      State = "Failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSettled || s == StateFailed
}

var transitions = map[State][]State{
	StatePlanned:                     {StateAwaitingApproval, StateAwaitingPrimaryConfirmation, StateSettled, StateFailed},
	StateAwaitingApproval:            {StateAwaitingPrimaryConfirmation, StateFailed},
	StateAwaitingPrimaryConfirmation: {StateSettled, StateFailed},
}

// CanTransition reports whether from → to is a legal step.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrNotFound is returned when no record exists for an id.
var ErrNotFound = errors.New("journal: record not found")

// Record is the persisted view of one operation.
type Record struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	State        State     `json:"state"`
	Network      string    `json:"network,omitempty"`
	Token        string    `json:"token,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	ApprovalHash string    `json:"approvalHash,omitempty"`
	PrimaryHash  string    `json:"primaryHash,omitempty"`
	Error        string    `json:"error,omitempty"`
	ErrorKind    string    `json:"errorKind,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store persists records.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	// Pending lists records that have not reached a terminal state.
	Pending(ctx context.Context) ([]Record, error)
}

// Tracker drives one record through the state machine.
type Tracker struct {
	store Store
	now   func() time.Time

	mu  sync.Mutex
	rec Record
}

// Begin writes the Planned record for a new operation.
func Begin(ctx context.Context, store Store, rec Record) (*Tracker, error) {
	t := &Tracker{store: store, now: time.Now}
	now := t.now().UTC()
	rec.State = StatePlanned
	rec.CreatedAt = now
	rec.UpdatedAt = now
	t.rec = rec
	if err := store.Put(ctx, rec); err != nil {
		return t, fmt.Errorf("journal %s: %w", rec.ID, err)
	}
	return t, nil
}

// Record returns a copy of the current record.
func (t *Tracker) Record() Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rec
}

// Advance moves the record to state after applying mutate. Illegal
// transitions are rejected without touching the store.
func (t *Tracker) Advance(ctx context.Context, to State, mutate func(*Record)) error {
	t.mu.Lock()
	if !CanTransition(t.rec.State, to) {
		from := t.rec.State
		t.mu.Unlock()
		return fmt.Errorf("journal %s: illegal transition %s -> %s", t.rec.ID, from, to)
	}
	if mutate != nil {
		mutate(&t.rec)
	}
	t.rec.State = to
	t.rec.UpdatedAt = t.now().UTC()
	rec := t.rec
	t.mu.Unlock()

	if err := t.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("journal %s: %w", rec.ID, err)
	}
	return nil
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Put(_ context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("journal: record without id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) Pending(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, rec := range m.records {
		if !rec.State.Terminal() {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
