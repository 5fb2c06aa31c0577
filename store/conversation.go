package store

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one committed chat turn. In-flight assistant output is never a
// Message; it lives in the orchestrator's live-preview buffer until the turn
// completes.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Trace records the processing pipeline exercised for one assistant turn.
type Trace struct {
	ID                 string   `json:"id"`
	Time               string   `json:"time"`
	Agent              string   `json:"agent"`
	UsedKnowledgeGraph bool     `json:"usedKG"`
	InputText          string   `json:"inputText"`
	Steps              []string `json:"steps"`
}

// Conversation is one chat thread. Messages are chronological and
// append-only; traces are newest-first.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages"`
	Traces    []Trace   `json:"traces"`
}

// Clone returns a deep copy so snapshots handed to readers never alias the
// store's internal state.
func (c *Conversation) Clone() *Conversation {
	copied := &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
	}
	if len(c.Messages) > 0 {
		copied.Messages = make([]Message, len(c.Messages))
		copy(copied.Messages, c.Messages)
	}
	if len(c.Traces) > 0 {
		copied.Traces = make([]Trace, len(c.Traces))
		for i, trace := range c.Traces {
			copied.Traces[i] = trace
			if len(trace.Steps) > 0 {
				copied.Traces[i].Steps = append([]string(nil), trace.Steps...)
			}
		}
	}
	return copied
}
