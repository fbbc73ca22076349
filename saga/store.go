package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// ErrStateNotFound is returned by Store.Load for unknown sagas.
var ErrStateNotFound = errors.New("saga state not found")

// Store is the saga journal. It holds enough state to roll a saga back after
// the process that ran it is gone.
type Store[T any] interface {
	Save(ctx context.Context, sagaID string, state State[T]) error
	Load(ctx context.Context, sagaID string) (*State[T], error)
	Delete(ctx context.Context, sagaID string) error
}

// State is one journal entry.
type State[T any] struct {
	SagaID           string            `json:"saga_id"`
	SagaName         string            `json:"saga_name"`
	Status           string            `json:"status"`
	Context          T                 `json:"context"`
	CompletedActions []CompletedAction `json:"completed_actions"`
	Events           []*SagaNodeEvent  `json:"events,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// CompletedAction records an action whose effect is still in place, with the
// output its undo needs.
type CompletedAction struct {
	Name      string          `json:"name"`
	Output    json.RawMessage `json:"output,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
}

const (
	SagaStatusRunning     = "running"
	SagaStatusCompleted   = "completed"
	SagaStatusFailed      = "failed"
	SagaStatusRollingBack = "rolling_back"
	SagaStatusRolledBack  = "rolled_back"
)

// MemoryStore keeps the journal in memory. Entries are stored as JSON, like
// FileStore does, so only the serializable part of the context is kept and a
// loaded entry never aliases the running saga.
type MemoryStore[T any] struct {
	mu     sync.Mutex
	limit  int
	seq    uint64
	states map[string]*memEntry
	// order indexes entries by save sequence, oldest first.
	order *btree.Map[uint64, string]
}

type memEntry struct {
	seq    uint64
	status string
	data   []byte
}

type MemoryStoreOption func(*memoryStoreOptions)

type memoryStoreOptions struct {
	limit int
}

// WithLimit bounds the number of entries kept. Once it is exceeded the
// oldest entry that needs no further work is dropped, or the oldest entry
// when every one is still pending.
func WithLimit(n int) MemoryStoreOption {
	return func(o *memoryStoreOptions) { o.limit = n }
}

func NewMemoryStore[T any](opts ...MemoryStoreOption) *MemoryStore[T] {
	var o memoryStoreOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore[T]{
		limit:  o.limit,
		states: make(map[string]*memEntry),
		order:  btree.NewMap[uint64, string](0),
	}
}

func (m *MemoryStore[T]) Save(_ context.Context, sagaID string, state State[T]) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.states[sagaID]; ok {
		m.order.Delete(old.seq)
	}
	m.seq++
	m.states[sagaID] = &memEntry{seq: m.seq, status: state.Status, data: data}
	m.order.Set(m.seq, sagaID)

	if m.limit > 0 && len(m.states) > m.limit {
		m.evict(sagaID)
	}
	return nil
}

// evict drops one entry other than keep.
func (m *MemoryStore[T]) evict(keep string) {
	var victim, oldest string
	m.order.Scan(func(_ uint64, id string) bool {
		if id == keep {
			return true
		}
		if oldest == "" {
			oldest = id
		}
		if settled(m.states[id].status) {
			victim = id
			return false
		}
		return true
	})
	if victim == "" {
		victim = oldest
	}
	if e, ok := m.states[victim]; ok {
		m.order.Delete(e.seq)
		delete(m.states, victim)
	}
}

// settled reports whether an entry with status needs no further work. A
// completed saga can still be rolled back, but it is not waiting on anything.
func settled(status string) bool {
	switch status {
	case SagaStatusCompleted, SagaStatusRolledBack:
		return true
	}
	return false
}

func (m *MemoryStore[T]) Load(_ context.Context, sagaID string) (*State[T], error) {
	m.mu.Lock()
	e, exists := m.states[sagaID]
	m.mu.Unlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStateNotFound, sagaID)
	}

	var state State[T]
	if err := json.Unmarshal(e.data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

func (m *MemoryStore[T]) Delete(_ context.Context, sagaID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.states[sagaID]; ok {
		m.order.Delete(e.seq)
		delete(m.states, sagaID)
	}
	return nil
}

// Len returns the number of entries kept.
func (m *MemoryStore[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}
