// ABOUTME: Stream dispatcher state machine for a single conversation turn
// ABOUTME: Accumulates fragments into a ConversationDetail with exactly-one terminal callback

package stream

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/loomchat/loom/internal/dedupe"
	"github.com/loomchat/loom/internal/store"
)

// State is the dispatcher lifecycle state for one conversation turn.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateFailed
	StateAbandoned
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// ErrTerminal is returned by Apply once the dispatcher has reached a
// terminal state and no longer accepts fragments.
var ErrTerminal = errors.New("stream already terminal")

// defaultDedupeWindow bounds the seen-marker cache per stream.
const defaultDedupeWindow = 4096

// FragmentMessage is the per-message portion of a stream fragment.
type FragmentMessage struct {
	ID          string
	Role        store.Role
	ContentType string
	CreatedAt   time.Time // backend timestamp; first fragment wins
	Delta       string    // content appended to the message's running part
}

// Fragment is one incremental unit of a streamed conversation turn.
// Seq is an optional transport-provided sequence marker used for
// de-duplication; fragments without one are applied append-only.
type Fragment struct {
	Seq            string
	ConversationID string
	Title          string
	Message        FragmentMessage
}

// Dispatcher drives a single conversation turn through
// Idle -> Streaming -> {Completed | Failed}. Fragments accumulate into a
// running ConversationDetail; exactly one terminal callback fires, and no
// callbacks fire after Abandon.
//
// Callbacks are invoked on the goroutine that feeds the dispatcher (the
// stream-reading goroutine), never on the caller's goroutine.
type Dispatcher struct {
	mu      sync.Mutex
	state   State
	handler Handler
	detail  *store.ConversationDetail
	seen    *dedupe.Cache
	logger  *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithInitial seeds the running detail, e.g. with the user message of the
// turn or the messages of a continued conversation.
func WithInitial(d *store.ConversationDetail) Option {
	return func(disp *Dispatcher) {
		if d != nil {
			disp.detail = d
		}
	}
}

// WithDedupeWindow sets the size of the seen-marker window.
func WithDedupeWindow(n int) Option {
	return func(disp *Dispatcher) {
		disp.seen = dedupe.New(n)
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(disp *Dispatcher) {
		if l != nil {
			disp.logger = l
		}
	}
}

// New creates a Dispatcher delivering to handler.
func New(handler Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		state:   StateIdle,
		handler: handler,
		detail:  &store.ConversationDetail{},
		seen:    dedupe.New(defaultDedupeWindow),
		logger:  slog.Default().With("component", "stream"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Seed replaces the running detail before streaming starts, e.g. with the
// fetched messages of a continued conversation plus the new user message.
// Returns false once the dispatcher has left Idle.
func (d *Dispatcher) Seed(detail *store.ConversationDetail) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateIdle || detail == nil {
		return false
	}
	d.detail = detail
	return true
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Apply folds one fragment into the running detail. Duplicate fragments
// (same non-empty Seq) are dropped silently. Returns ErrTerminal if the
// dispatcher has already completed, failed, or been abandoned.
func (d *Dispatcher) Apply(f Fragment) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateIdle:
		d.state = StateStreaming
	case StateStreaming:
		// accumulating
	default:
		return ErrTerminal
	}

	if f.Seq != "" && d.seen.CheckAndMark(f.Seq) {
		d.logger.Debug("dropped duplicate fragment", "seq", f.Seq)
		return nil
	}

	if f.ConversationID != "" {
		d.detail.ID = f.ConversationID
	}
	if f.Title != "" {
		d.detail.Title = f.Title
	}
	if f.Message.ID != "" {
		d.applyMessageLocked(f.Message)
	}
	return nil
}

// applyMessageLocked appends a message delta. Must be called with mu held.
func (d *Dispatcher) applyMessageLocked(m FragmentMessage) {
	// Deltas for a known message append to its running part; a new message
	// id starts a new entry. The sequence itself is append-only.
	for i := range d.detail.Messages {
		if d.detail.Messages[i].ID == m.ID {
			msg := &d.detail.Messages[i]
			if len(msg.Content.Parts) == 0 {
				msg.Content.Parts = []string{m.Delta}
			} else {
				msg.Content.Parts[len(msg.Content.Parts)-1] += m.Delta
			}
			if msg.CreatedAt.IsZero() {
				msg.CreatedAt = m.CreatedAt
			}
			return
		}
	}

	contentType := m.ContentType
	if contentType == "" {
		contentType = store.ContentTypeText
	}
	role := m.Role
	if role == "" {
		role = store.RoleAssistant
	}
	d.detail.Messages = append(d.detail.Messages, store.Message{
		ID:        m.ID,
		Role:      role,
		CreatedAt: m.CreatedAt,
		Content: store.Content{
			Type:  contentType,
			Parts: []string{m.Delta},
		},
	})
}

// Complete transitions to Completed and invokes OnConversationComplete
// exactly once with the accumulated detail. The conversation timestamps are
// stamped here when the transport did not supply them. No-op if already
// terminal.
func (d *Dispatcher) Complete() {
	d.mu.Lock()
	if d.state != StateIdle && d.state != StateStreaming {
		d.mu.Unlock()
		return
	}
	d.state = StateCompleted
	now := time.Now().UTC()
	if d.detail.CreatedAt.IsZero() {
		d.detail.CreatedAt = now
	}
	d.detail.UpdatedAt = &now
	detail := d.detail
	handler := d.handler
	d.mu.Unlock()

	handler.OnConversationComplete(detail)
}

// Fail transitions to Failed and invokes OnError exactly once.
// No-op if already terminal.
func (d *Dispatcher) Fail(err error) {
	d.mu.Lock()
	if d.state != StateIdle && d.state != StateStreaming {
		d.mu.Unlock()
		return
	}
	d.state = StateFailed
	handler := d.handler
	d.mu.Unlock()

	handler.OnError(err)
}

// Abandon stops the stream without callbacks: any later Apply, Complete,
// or Fail is suppressed.
func (d *Dispatcher) Abandon() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateIdle || d.state == StateStreaming {
		d.state = StateAbandoned
		d.handler = nil
		d.seen = nil
	}
}

// Detail returns a snapshot of the accumulated conversation detail.
func (d *Dispatcher) Detail() *store.ConversationDetail {
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := *d.detail
	snapshot.Messages = append([]store.Message(nil), d.detail.Messages...)
	return &snapshot
}
