package event

import (
	"sync"
	"time"
)

// subscriberBuffer is the per-subscriber channel capacity. A slow
// subscriber that falls behind this far loses events — for that subscriber
// only, never from the underlying Log — per spec §4.1.
const subscriberBuffer = 256

// Log is an append-only, thread-safe event sequence with broadcast fan-out.
// The id counter and the event slice share one mutex so concurrent Emit
// calls are linearized and each gets a unique, contiguous id; the lock is
// held only for the append, never across a subscriber send (sends are
// non-blocking), so nothing awaits while holding it (spec §5).
type Log struct {
	mu     sync.RWMutex
	start  time.Time
	nextID uint64
	events []Event
	subs   map[int]chan Event
	subSeq int
}

// New creates an empty Log whose elapsed-time clock starts now.
func New() *Log {
	return &Log{start: time.Now(), subs: make(map[int]chan Event)}
}

// NewWithBroadcast creates a Log and immediately opens one subscription,
// convenient for a caller that wants to observe its own run.
func NewWithBroadcast() (*Log, <-chan Event) {
	l := New()
	return l, l.Subscribe()
}

// Emit assigns the next id, stamps elapsed time since the log's creation,
// appends the event, and publishes it to every live subscriber. It returns
// the assigned id.
func (l *Log) Emit(kind Kind, data map[string]any) uint64 {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	ev := Event{ID: id, Timestamp: elapsedMs(l.start), Kind: kind, Data: data}
	l.events = append(l.events, ev)
	subs := make([]chan Event, 0, len(l.subs))
	for _, ch := range l.subs {
		subs = append(subs, ch)
	}
	l.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full: drop for this subscriber only.
		}
	}
	return id
}

// Events returns a snapshot copy of the current event sequence.
func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// WithEvents holds the read lock briefly and passes the current slice to f.
// f must not retain the slice beyond the call or mutate it.
func (l *Log) WithEvents(f func([]Event)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f(l.events)
}

// FilterTask returns every event whose "task_id" field equals taskID, in id
// order.
func (l *Log) FilterTask(taskID string) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, ev := range l.events {
		if id, ok := ev.TaskID(); ok && id == taskID {
			out = append(out, ev)
		}
	}
	return out
}

// WorkflowEvents returns every workflow.* event, in id order.
func (l *Log) WorkflowEvents() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, ev := range l.events {
		switch ev.Kind {
		case KindWorkflowStarted, KindWorkflowCompleted, KindWorkflowFailed:
			out = append(out, ev)
		}
	}
	return out
}

// Subscribe opens a new broadcast channel; the Log may have many concurrent
// subscribers. Callers should drain the channel promptly — a lagging
// subscriber silently drops events once its buffer fills.
func (l *Log) Subscribe() <-chan Event {
	ch, _ := l.subscribeWithHandle()
	return ch
}

// subscribeWithHandle is like Subscribe but also returns the internal
// handle Unsubscribe needs; kept unexported since most callers never need
// to unsubscribe (the Log and its subscribers share the run's lifetime).
func (l *Log) subscribeWithHandle() (chan Event, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	id := l.subSeq
	l.subSeq++
	l.subs[id] = ch
	return ch, id
}
