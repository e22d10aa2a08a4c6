// Package progress implements the Progress/Cancellation Bus (spec.md
// §4.9): thread-safe publish/subscribe of progress and terminal events
// keyed by opaque job id, with ordered per-subscriber delivery, plus a
// cancellation token per job that any component performing I/O checks at
// natural suspension points. The teacher ships no equivalent (it reports
// progress with direct fmt.Printf); this is modeled on the
// Producer/Consumer pub-sub shape of
// _examples/Tangerg-lynx/core/broker/broker.go and the Worker lifecycle of
// _examples/Tangerg-lynx/core/worker/worker.go, generalized from
// message-queue delivery to an in-process, per-job fan-out bus.
package progress

import (
	"sync"
	"time"

	"briefly/internal/core"
)

// Event is anything the Bus can publish: ProgressEvent or TerminalEvent.
type Event interface {
	EventJobID() string
}

// ProgressEvent reports sub-phase progress within a non-terminal phase,
// e.g. "12/47 pages fetched".
type ProgressEvent struct {
	JobID     string
	Phase     core.Phase
	Message   string
	Current   int
	Total     int
	Timestamp time.Time
}

func (e ProgressEvent) EventJobID() string { return e.JobID }

// TerminalEvent reports a ResearchJob reaching a terminal state. Exactly
// one TerminalEvent is published per job.
type TerminalEvent struct {
	JobID        string
	State        core.JobState
	ErrorKind    core.Kind
	ErrorMessage string
	Timestamp    time.Time
}

func (e TerminalEvent) EventJobID() string { return e.JobID }

// subscriberBuffer bounds how many undelivered events a slow subscriber
// may accumulate before the oldest is dropped to keep the bus non-blocking
// for publishers; delivery remains ordered, just best-effort under load.
const subscriberBuffer = 64

// Bus is the process-wide Progress/Cancellation Bus. The zero value is not
// usable; construct with NewBus.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string][]chan Event
	cancels     map[string]*CancelToken
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan Event),
		cancels:     make(map[string]*CancelToken),
	}
}

// Subscribe registers a new subscriber for jobID and returns a receive-only
// channel plus an unsubscribe function the caller must call when done.
func (b *Bus) Subscribe(jobID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[jobID] = append(b.subscribers[jobID], ch)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[jobID]
		for i, s := range subs {
			if s == ch {
				b.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, unsubscribe
}

// Publish delivers evt to every current subscriber of its JobID, in the
// order Publish is called. Delivery is best-effort: a subscriber channel
// at capacity has its oldest event dropped to make room, so one stalled
// subscriber never blocks the publisher or other subscribers.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	subs := append([]chan Event(nil), b.subscribers[evt.EventJobID()]...)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}
}

// CancelToken lets any long-running phase check for cooperative
// cancellation at suspension points (between fetches, between LLM calls).
type CancelToken struct {
	done chan struct{}
	once sync.Once
}

func newCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel marks the token cancelled. Safe to call more than once.
func (c *CancelToken) Cancel() {
	c.once.Do(func() { close(c.done) })
}

// Done returns a channel that closes when Cancel is called, for use in
// select statements alongside I/O suspension points.
func (c *CancelToken) Done() <-chan struct{} {
	return c.done
}

// Cancelled reports whether Cancel has been called.
func (c *CancelToken) Cancelled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// TokenFor returns jobID's cancellation token, creating it on first use.
func (b *Bus) TokenFor(jobID string) *CancelToken {
	b.mu.Lock()
	defer b.mu.Unlock()
	tok, ok := b.cancels[jobID]
	if !ok {
		tok = newCancelToken()
		b.cancels[jobID] = tok
	}
	return tok
}

// Cancel marks jobID's cancellation token cancelled, creating the token
// first if none exists yet. It reports nothing; callers combine this with
// the orchestrator's own job-state check to return
// {cancelled|already_terminal} per spec.md §6.
func (b *Bus) Cancel(jobID string) {
	b.TokenFor(jobID).Cancel()
}

// Release drops jobID's cancellation token and closes any remaining
// subscriber channels, once the orchestrator has delivered the job's
// TerminalEvent and no further events will be published for it.
func (b *Bus) Release(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cancels, jobID)
	for _, ch := range b.subscribers[jobID] {
		close(ch)
	}
	delete(b.subscribers, jobID)
}
