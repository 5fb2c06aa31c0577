// Package stream implements the wire protocol of the remote inference
// service: a line-oriented event stream of blank-line separated blocks, each
// a "data: " prefixed JSON envelope or the [DONE] sentinel. It provides the
// incremental decoder, the live HTTP transport and the simulated offline
// strategy, all yielding the same closed set of typed events.
package stream

import "github.com/hrygo/kgchat/store"

// Event is one decoded protocol event. The set of implementations is closed;
// consumers dispatch with a type switch.
type Event interface {
	isEvent()
}

// Token carries one fragment of assistant output, plus an optional trace the
// server attached to the fragment.
type Token struct {
	Content string
	Trace   *store.Trace
}

// Thinking carries intermediate reasoning text, shown but never committed.
type Thinking struct {
	Content string
}

// Routing reports which agent the upstream router selected and why.
type Routing struct {
	SelectedAgent string
	Reason        string
	Scores        map[string]float64
}

// ExecutionLog carries server-side debug output.
type ExecutionLog struct {
	Content string
}

// Done terminates a successful turn. It repeats the routing decision so
// clients that missed the routing block still learn the selected agent.
type Done struct {
	SelectedAgent string
	Reason        string
	Scores        map[string]float64
}

// ServerError terminates a failed turn with the server-supplied message.
type ServerError struct {
	Message string
}

// EndOfStream is the [DONE] sentinel. It signals completion but does not end
// decoding: data buffered behind it is still flushed.
type EndOfStream struct{}

func (Token) isEvent()        {}
func (Thinking) isEvent()     {}
func (Routing) isEvent()      {}
func (ExecutionLog) isEvent() {}
func (Done) isEvent()         {}
func (ServerError) isEvent()  {}
func (EndOfStream) isEvent()  {}

// Envelope is the wire representation of one protocol block. Status drives
// dispatch; the remaining fields are populated per status.
type Envelope struct {
	Status        string             `json:"status"`
	Content       string             `json:"content,omitempty"`
	Trace         *store.Trace       `json:"trace,omitempty"`
	SelectedAgent string             `json:"selected_agent,omitempty"`
	RoutingReason string             `json:"routing_reason,omitempty"`
	RoutingScores map[string]float64 `json:"routing_scores,omitempty"`
	Message       string             `json:"message,omitempty"`
}
