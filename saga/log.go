package saga

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// SagaNodeID is the graph index of a saga node.
type SagaNodeID int64

// SagaNodeEvent is one entry in the saga log.
type SagaNodeEvent struct {
	SagaID    SagaID            `json:"saga_id"`
	NodeID    SagaNodeID        `json:"node_id"`
	EventType SagaNodeEventType `json:"event"`
	At        time.Time         `json:"at"`
}

func (e *SagaNodeEvent) String() string {
	return fmt.Sprintf("N%03d %s", e.NodeID, e.EventType)
}

type SagaNodeEventType int

const (
	EventStarted SagaNodeEventType = iota
	EventSucceeded
	EventFailed
	EventUndoStarted
	EventUndoFinished
	EventUndoFailed
)

var eventTypeNames = []string{
	EventStarted:      "started",
	EventSucceeded:    "succeeded",
	EventFailed:       "failed",
	EventUndoStarted:  "undo_started",
	EventUndoFinished: "undo_finished",
	EventUndoFailed:   "undo_failed",
}

func (t SagaNodeEventType) String() string {
	if t < 0 || int(t) >= len(eventTypeNames) {
		return fmt.Sprintf("event(%d)", int(t))
	}
	return eventTypeNames[t]
}

func (t SagaNodeEventType) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(eventTypeNames) {
		return nil, fmt.Errorf("unknown saga event type %d", int(t))
	}
	return []byte(eventTypeNames[t]), nil
}

func (t *SagaNodeEventType) UnmarshalText(text []byte) error {
	i, err := indexOf(eventTypeNames, string(text))
	if err != nil {
		return fmt.Errorf("saga event type: %w", err)
	}
	*t = SagaNodeEventType(i)
	return nil
}

// SagaNodeLoadStatus is the status of a node as derived from the log.
type SagaNodeLoadStatus int

const (
	LoadNeverStarted SagaNodeLoadStatus = iota
	LoadStarted
	LoadSucceeded
	LoadFailed
	LoadUndoStarted
	LoadUndoFinished
	LoadUndoFailed
)

var loadStatusNames = []string{
	LoadNeverStarted: "NeverStarted",
	LoadStarted:      "Started",
	LoadSucceeded:    "Succeeded",
	LoadFailed:       "Failed",
	LoadUndoStarted:  "UndoStarted",
	LoadUndoFinished: "UndoFinished",
	LoadUndoFailed:   "UndoFailed",
}

func (s SagaNodeLoadStatus) String() string {
	if s < 0 || int(s) >= len(loadStatusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return loadStatusNames[s]
}

func (s SagaNodeLoadStatus) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(loadStatusNames) {
		return nil, fmt.Errorf("unknown load status %d", int(s))
	}
	return []byte(loadStatusNames[s]), nil
}

func (s *SagaNodeLoadStatus) UnmarshalText(text []byte) error {
	i, err := indexOf(loadStatusNames, string(text))
	if err != nil {
		return fmt.Errorf("load status: %w", err)
	}
	*s = SagaNodeLoadStatus(i)
	return nil
}

func indexOf(names []string, name string) (int, error) {
	for i, n := range names {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown name %q", name)
}

type transition struct {
	from  SagaNodeLoadStatus
	event SagaNodeEventType
}

// transitions is the node state machine. An undo that failed may be started
// again, so a later Rollback can retry it.
var transitions = map[transition]SagaNodeLoadStatus{
	{LoadNeverStarted, EventStarted}:     LoadStarted,
	{LoadStarted, EventSucceeded}:        LoadSucceeded,
	{LoadStarted, EventFailed}:           LoadFailed,
	{LoadSucceeded, EventUndoStarted}:    LoadUndoStarted,
	{LoadUndoFailed, EventUndoStarted}:   LoadUndoStarted,
	{LoadUndoStarted, EventUndoFinished}: LoadUndoFinished,
	{LoadUndoStarted, EventUndoFailed}:   LoadUndoFailed,
}

func (s SagaNodeLoadStatus) nextStatus(event SagaNodeEventType) (SagaNodeLoadStatus, error) {
	next, ok := transitions[transition{s, event}]
	if !ok {
		return s, fmt.Errorf("illegal event %s in status %s", event, s)
	}
	return next, nil
}

// SagaLog is the event log of one saga run. It is safe for concurrent use.
type SagaLog struct {
	mu        sync.Mutex
	sagaID    SagaID
	unwinding bool
	events    []*SagaNodeEvent
	status    map[SagaNodeID]SagaNodeLoadStatus
}

func NewEmptySagaLog(sagaID SagaID) *SagaLog {
	return &SagaLog{
		sagaID: sagaID,
		status: make(map[SagaNodeID]SagaNodeLoadStatus),
	}
}

// NewSagaLogRecover replays events into a new log in the order they were
// recorded. Every event must belong to sagaID.
func NewSagaLogRecover(sagaID SagaID, events []*SagaNodeEvent) (*SagaLog, error) {
	l := NewEmptySagaLog(sagaID)
	for i, event := range events {
		if event.SagaID != sagaID {
			return nil, fmt.Errorf("event %d belongs to a different saga (%s) than requested (%s)", i, event.SagaID, sagaID)
		}
		if err := l.Record(event); err != nil {
			return nil, fmt.Errorf("recover saga log: %w", err)
		}
	}
	return l, nil
}

// Record appends event if it is a legal transition for its node.
func (l *SagaLog) Record(event *SagaNodeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := l.status[event.NodeID].nextStatus(event.EventType)
	if err != nil {
		return fmt.Errorf("node %d: %w", event.NodeID, err)
	}
	if next >= LoadFailed {
		l.unwinding = true
	}
	l.status[event.NodeID] = next
	l.events = append(l.events, event)
	return nil
}

// Unwinding reports whether the saga has started to compensate.
func (l *SagaLog) Unwinding() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unwinding
}

// Status returns the load status of nodeID. Unknown nodes have never started.
func (l *SagaLog) Status(nodeID SagaNodeID) SagaNodeLoadStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status[nodeID]
}

// Events returns a copy of the recorded events.
func (l *SagaLog) Events() []*SagaNodeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*SagaNodeEvent(nil), l.events...)
}

// SagaLogPretty renders a SagaLog for humans, when printed.
type SagaLogPretty struct {
	Log *SagaLog
}

func (p *SagaLogPretty) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *SagaLogPretty) String() string {
	l := p.Log
	l.mu.Lock()
	defer l.mu.Unlock()

	direction := "forward"
	if l.unwinding {
		direction = "unwinding"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "SAGA LOG:\nsaga id:   %s\ndirection: %s\nevents (%d total):\n\n", l.sagaID, direction, len(l.events))
	for i, event := range l.events {
		fmt.Fprintf(&sb, "%03d %s\n", i+1, event)
	}
	return sb.String()
}
