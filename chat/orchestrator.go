// Package chat coordinates chat turns: it owns the per-conversation send
// state machine and the handful of operations the presentation layer may
// invoke. All conversation data lives in the store; this package only holds
// transient per-turn state (live-preview buffer, cancellation handle) and
// hands out read-only projections of it.
package chat

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/kgchat/agents"
	"github.com/hrygo/kgchat/internal/metrics"
	"github.com/hrygo/kgchat/store"
	"github.com/hrygo/kgchat/stream"
)

// Phase is the send state of one conversation.
type Phase int

const (
	// PhaseIdle means no turn is outstanding.
	PhaseIdle Phase = iota
	// PhaseSending means the request is issued but no token has arrived.
	PhaseSending
	// PhaseStreaming means tokens are arriving.
	PhaseStreaming
)

func (p Phase) String() string {
	switch p {
	case PhaseSending:
		return "sending"
	case PhaseStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

// session is the transient state of one in-flight turn.
type session struct {
	phase    Phase
	buffer   strings.Builder
	thinking string
	routing  *stream.Routing
	cancel   context.CancelFunc
}

// Orchestrator drives at most one outstanding turn per conversation.
type Orchestrator struct {
	mu       sync.Mutex
	store    *store.Store
	streamer stream.Streamer
	sessions map[string]*session

	input       string
	searchQuery string
	agent       string
	editingID   string
	editTitle   string

	now         func() time.Time
	turnTimeout time.Duration
	onUpdate    func()
	onError     func(conversationID string, err error)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithUpdateListener registers a callback invoked after every state change
// the presentation layer should re-render for. It must return quickly.
func WithUpdateListener(fn func()) Option {
	return func(o *Orchestrator) { o.onUpdate = fn }
}

// WithErrorListener registers the user-visible failure notification hook.
// Cancellation never reaches it.
func WithErrorListener(fn func(conversationID string, err error)) Option {
	return func(o *Orchestrator) { o.onError = fn }
}

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithTurnTimeout bounds each turn with a deadline. Zero means no deadline;
// streaming turns can legitimately run long. A turn that hits the deadline is
// surfaced as a failure, not a cancellation.
func WithTurnTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) { o.turnTimeout = timeout }
}

// New creates an Orchestrator over the given store and streaming strategy.
func New(st *store.Store, streamer stream.Streamer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    st,
		streamer: streamer,
		sessions: map[string]*session{},
		agent:    agents.Auto,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Store exposes the underlying conversation store for read access.
func (o *Orchestrator) Store() *store.Store {
	return o.store
}

func (o *Orchestrator) notify() {
	if o.onUpdate != nil {
		o.onUpdate()
	}
}

// SetInput replaces the draft input text.
func (o *Orchestrator) SetInput(text string) {
	o.mu.Lock()
	o.input = text
	o.mu.Unlock()
}

// Input returns the draft input text.
func (o *Orchestrator) Input() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.input
}

// SetSearchQuery updates the conversation list filter.
func (o *Orchestrator) SetSearchQuery(query string) {
	o.mu.Lock()
	o.searchQuery = query
	o.mu.Unlock()
	o.notify()
}

// FilteredConversations returns the conversation list under the current
// search query.
func (o *Orchestrator) FilteredConversations() []*store.Conversation {
	o.mu.Lock()
	query := o.searchQuery
	o.mu.Unlock()
	return o.store.Search(query)
}

// SelectAgent switches the agent used for subsequent turns. Unknown values
// are ignored.
func (o *Orchestrator) SelectAgent(value string) {
	if _, ok := agents.Lookup(value); !ok {
		slog.Warn("ignoring unknown agent", "agent", value)
		return
	}
	o.mu.Lock()
	o.agent = value
	o.mu.Unlock()
	o.notify()
}

// Agent returns the currently selected agent value.
func (o *Orchestrator) Agent() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.agent
}

// CreateConversation creates and activates a new conversation.
func (o *Orchestrator) CreateConversation() string {
	id := o.store.CreateConversation()
	o.notify()
	return id
}

// DeleteConversation removes a conversation. An in-flight turn for it keeps
// running; its completion events degrade to no-ops in the store.
func (o *Orchestrator) DeleteConversation(id string) {
	o.store.DeleteConversation(id)
	o.notify()
}

// SelectConversation activates a conversation.
func (o *Orchestrator) SelectConversation(id string) {
	o.store.SetActive(id)
	o.notify()
}

// StartEdit begins renaming a conversation, seeding the edit buffer with the
// current title.
func (o *Orchestrator) StartEdit(id string) {
	conversation, ok := o.store.Get(id)
	if !ok {
		return
	}
	o.mu.Lock()
	o.editingID = id
	o.editTitle = conversation.Title
	o.mu.Unlock()
	o.notify()
}

// SetEditTitle updates the rename buffer.
func (o *Orchestrator) SetEditTitle(title string) {
	o.mu.Lock()
	o.editTitle = title
	o.mu.Unlock()
}

// FinishEdit commits the rename. A blank title keeps the previous one.
func (o *Orchestrator) FinishEdit() {
	o.mu.Lock()
	id, title := o.editingID, o.editTitle
	o.editingID, o.editTitle = "", ""
	o.mu.Unlock()

	if id != "" {
		o.store.RenameConversation(id, title)
	}
	o.notify()
}

// EditingID returns the conversation currently being renamed, or "".
func (o *Orchestrator) EditingID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.editingID
}

// Send issues one turn for the active conversation using the draft input.
// It is a silent no-op when the input is blank, no conversation is active,
// or a turn is already outstanding for that conversation.
func (o *Orchestrator) Send() {
	o.mu.Lock()
	text := strings.TrimSpace(o.input)
	agent := o.agent
	o.mu.Unlock()

	conversationID := o.store.ActiveID()
	if text == "" || conversationID == "" {
		return
	}
	if o.startTurn(conversationID, text, agent) {
		o.mu.Lock()
		o.input = ""
		o.mu.Unlock()
	}
}

// startTurn runs the busy guard and, when clear, commits the user message
// and launches the consumer goroutine. Returns false when the conversation
// is already sending or streaming.
func (o *Orchestrator) startTurn(conversationID, text, agent string) bool {
	o.mu.Lock()
	if existing, ok := o.sessions[conversationID]; ok && existing.phase != PhaseIdle {
		o.mu.Unlock()
		return false
	}
	var ctx context.Context
	var cancel context.CancelFunc
	if o.turnTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), o.turnTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	sess := &session{phase: PhaseSending, cancel: cancel}
	o.sessions[conversationID] = sess
	o.mu.Unlock()

	// The user message renders before any network activity.
	o.store.AppendMessage(conversationID, store.Message{
		Role:      store.RoleUser,
		Content:   text,
		Timestamp: store.FormatTime(o.now()),
	})
	metrics.StreamsStarted.Inc()
	o.notify()

	go o.consume(ctx, conversationID, text, agent, sess)
	return true
}

// consume drives one stream to completion, folding its events into the
// session and the store.
func (o *Orchestrator) consume(ctx context.Context, conversationID, text, agent string, sess *session) {
	source, err := o.streamer.Stream(ctx, stream.NewSendRequest(text, agent, conversationID))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			o.finishCancelled(conversationID, sess)
			return
		}
		o.fail(conversationID, sess, err)
		return
	}
	defer source.Close()

loop:
	for {
		event, err := source.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, context.Canceled) {
				o.finishCancelled(conversationID, sess)
				return
			}
			o.fail(conversationID, sess, err)
			return
		}

		switch event := event.(type) {
		case stream.Token:
			if event.Trace != nil {
				// Traces are committed incrementally, independent of
				// message completion.
				o.store.AppendTrace(conversationID, *event.Trace)
			}
			if event.Content != "" {
				o.mu.Lock()
				sess.buffer.WriteString(event.Content)
				sess.phase = PhaseStreaming
				o.mu.Unlock()
				metrics.StreamTokens.Inc()
				o.notify()
			}
		case stream.Thinking:
			o.mu.Lock()
			sess.thinking = event.Content
			o.mu.Unlock()
			o.notify()
		case stream.Routing:
			o.mu.Lock()
			sess.routing = &event
			o.mu.Unlock()
			slog.Debug("turn routed", "conversation", conversationID, "agent", event.SelectedAgent, "reason", event.Reason)
		case stream.ExecutionLog:
			slog.Debug("upstream execution log", "conversation", conversationID, "content", event.Content)
		case stream.Done:
			if event.SelectedAgent != "" {
				o.mu.Lock()
				sess.routing = &stream.Routing{SelectedAgent: event.SelectedAgent, Reason: event.Reason, Scores: event.Scores}
				o.mu.Unlock()
			}
			break loop
		case stream.ServerError:
			o.fail(conversationID, sess, errors.New(event.Message))
			return
		case stream.EndOfStream:
			// Completion is noted but iteration continues: data buffered
			// behind the sentinel still flushes.
		}
	}

	o.commit(conversationID, sess)
}

// commit finalizes a successful turn: the accumulated buffer becomes one
// assistant message, timestamped now. If the turn was cancelled while the
// final events raced in, nothing is committed.
func (o *Orchestrator) commit(conversationID string, sess *session) {
	o.mu.Lock()
	content := sess.buffer.String()
	owned := o.takeSessionLocked(conversationID, sess)
	o.mu.Unlock()
	if !owned {
		return
	}

	o.store.AppendMessage(conversationID, store.Message{
		Role:      store.RoleAssistant,
		Content:   content,
		Timestamp: store.FormatTime(o.now()),
	})
	o.notify()
}

// fail surfaces the error and discards the partial turn.
func (o *Orchestrator) fail(conversationID string, sess *session, err error) {
	o.mu.Lock()
	owned := o.takeSessionLocked(conversationID, sess)
	o.mu.Unlock()
	if !owned {
		return
	}

	metrics.StreamErrors.Inc()
	slog.Error("chat turn failed", "conversation", conversationID, "error", err)
	if o.onError != nil {
		o.onError(conversationID, err)
	}
	o.notify()
}

// finishCancelled discards the partial turn without surfacing an error:
// cancellation is not a failure.
func (o *Orchestrator) finishCancelled(conversationID string, sess *session) {
	o.mu.Lock()
	owned := o.takeSessionLocked(conversationID, sess)
	o.mu.Unlock()
	if !owned {
		// Cancel already cleared the session and counted the
		// cancellation.
		return
	}

	metrics.StreamsCancelled.Inc()
	o.notify()
}

// takeSessionLocked removes the session if it is still the registered one
// for the conversation, reporting whether the caller owns turn completion.
func (o *Orchestrator) takeSessionLocked(conversationID string, sess *session) bool {
	current, ok := o.sessions[conversationID]
	if !ok || current != sess {
		return false
	}
	sess.cancel()
	delete(o.sessions, conversationID)
	return true
}

// Cancel aborts the outstanding turn for a conversation, if any. No partial
// message is committed and no error is surfaced.
func (o *Orchestrator) Cancel(conversationID string) {
	o.mu.Lock()
	sess, ok := o.sessions[conversationID]
	if ok {
		sess.cancel()
		delete(o.sessions, conversationID)
	}
	o.mu.Unlock()

	if ok {
		metrics.StreamsCancelled.Inc()
		o.notify()
	}
}

// State returns the send phase and live-preview text for a conversation.
func (o *Orchestrator) State(conversationID string) (Phase, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess, ok := o.sessions[conversationID]
	if !ok {
		return PhaseIdle, ""
	}
	return sess.phase, sess.buffer.String()
}

// IsBusy reports whether a turn is outstanding for the conversation.
func (o *Orchestrator) IsBusy(conversationID string) bool {
	phase, _ := o.State(conversationID)
	return phase != PhaseIdle
}

// Thinking returns the latest intermediate reasoning text for an in-flight
// turn.
func (o *Orchestrator) Thinking(conversationID string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if sess, ok := o.sessions[conversationID]; ok {
		return sess.thinking
	}
	return ""
}

// Routing returns the routing decision reported for the in-flight turn, if
// any.
func (o *Orchestrator) Routing(conversationID string) *stream.Routing {
	o.mu.Lock()
	defer o.mu.Unlock()
	if sess, ok := o.sessions[conversationID]; ok && sess.routing != nil {
		copied := *sess.routing
		return &copied
	}
	return nil
}
