package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/hrygo/kgchat/agents"
)

// ChatStreamPath is the upstream chat endpoint.
const ChatStreamPath = "/chat/stream"

// SendRequest is the outbound body of one chat turn.
type SendRequest struct {
	Message       string `json:"message"`
	SessionID     string `json:"session_id"`
	Debug         bool   `json:"debug"`
	UseDeeperTool bool   `json:"use_deeper_tool"`
	ShowThinking  bool   `json:"show_thinking"`
	// AgentType is omitted for "auto": the upstream router decides.
	AgentType string `json:"agent_type,omitempty"`
}

// NewSendRequest builds the request for one turn with the client's standard
// defaults.
func NewSendRequest(message, agent, conversationID string) SendRequest {
	req := SendRequest{
		Message:       message,
		SessionID:     conversationID,
		Debug:         false,
		UseDeeperTool: true,
		ShowThinking:  false,
	}
	if agent != "" && agent != agents.Auto {
		req.AgentType = agent
	}
	return req
}

// EventSource is a pull-based sequence of decoded events. Recv returns
// io.EOF once the stream is exhausted and the context's error once the turn
// is cancelled.
type EventSource interface {
	Recv() (Event, error)
	Close() error
}

// Streamer issues one chat turn and exposes its events. The live Client and
// the Simulated strategy both implement it.
type Streamer interface {
	Stream(ctx context.Context, req SendRequest) (EventSource, error)
}

// Client is the live streaming transport to the remote inference service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a transport against the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream POSTs one chat turn and returns its event source. Cancelling ctx
// aborts the request and the read loop.
func (c *Client) Stream(ctx context.Context, req SendRequest) (EventSource, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode chat request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ChatStreamPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build chat request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(err, "failed to reach chat upstream")
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		resp.Body.Close()
		return nil, errors.Errorf("chat upstream returned status %d", resp.StatusCode)
	}

	return &httpEventSource{
		ctx:     ctx,
		body:    resp.Body,
		decoder: NewDecoder(),
		buf:     make([]byte, 4096),
	}, nil
}

type httpEventSource struct {
	ctx     context.Context
	body    io.ReadCloser
	decoder *Decoder
	buf     []byte
	pending []Event
	drained bool
}

func (s *httpEventSource) Recv() (Event, error) {
	for {
		if len(s.pending) > 0 {
			event := s.pending[0]
			s.pending = s.pending[1:]
			return event, nil
		}
		if s.drained {
			return nil, io.EOF
		}
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}

		n, err := s.body.Read(s.buf)
		if n > 0 {
			s.pending = s.decoder.Feed(string(s.buf[:n]))
		}
		if err != nil {
			s.drained = true
			if errors.Is(err, io.EOF) {
				s.pending = append(s.pending, s.decoder.Flush()...)
				continue
			}
			if s.ctx.Err() != nil {
				return nil, s.ctx.Err()
			}
			return nil, errors.Wrap(err, "chat stream read failed")
		}
	}
}

func (s *httpEventSource) Close() error {
	return s.body.Close()
}
