package stream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain pulls events until the source reports EOF or fails.
func drain(t *testing.T, source EventSource) []Event {
	t.Helper()
	var events []Event
	for {
		event, err := source.Recv()
		if err == io.EOF {
			return events
		}
		require.NoError(t, err)
		events = append(events, event)
	}
}

func TestClientStreamsDecodedEvents(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ChatStreamPath, r.URL.Path)

		var req SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "部門預算怎麼編？", req.Message)
		assert.Equal(t, "conv-1", req.SessionID)
		assert.True(t, req.UseDeeperTool)
		assert.Equal(t, "graph_agent", req.AgentType)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, block := range []string{
			`data: {"status":"routing","selected_agent":"graph_agent"}` + "\n\n",
			`data: {"status":"token","content":"預算"}` + "\n\n",
			`data: {"status":"token","content":"建議"}` + "\n\n",
			`data: {"status":"done","selected_agent":"graph_agent"}` + "\n\n",
			"data: [DONE]\n\n",
		} {
			_, _ = io.WriteString(w, block)
			flusher.Flush()
		}
	}))
	defer upstream.Close()

	client := NewClient(upstream.URL, WithHTTPClient(upstream.Client()))
	source, err := client.Stream(context.Background(), NewSendRequest("部門預算怎麼編？", "graph_agent", "conv-1"))
	require.NoError(t, err)
	defer source.Close()

	events := drain(t, source)
	require.Len(t, events, 5)
	assert.Equal(t, Routing{SelectedAgent: "graph_agent"}, events[0])
	assert.Equal(t, Token{Content: "預算"}, events[1])
	assert.Equal(t, Token{Content: "建議"}, events[2])
	assert.Equal(t, Done{SelectedAgent: "graph_agent"}, events[3])
	assert.Equal(t, EndOfStream{}, events[4])
}

func TestClientRejectsNon2xxResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer upstream.Close()

	client := NewClient(upstream.URL)
	_, err := client.Stream(context.Background(), NewSendRequest("hi", "", "conv-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClientCancellationAbortsStream(t *testing.T) {
	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = io.WriteString(w, `data: {"status":"token","content":"第一"}`+"\n\n")
		flusher.Flush()
		// Hold the connection open until the client gives up.
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer upstream.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(upstream.URL)
	source, err := client.Stream(ctx, NewSendRequest("hi", "", "conv-1"))
	require.NoError(t, err)
	defer source.Close()

	event, err := source.Recv()
	require.NoError(t, err)
	assert.Equal(t, Token{Content: "第一"}, event)

	cancel()
	_, err = source.Recv()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientRecoversTrailingTokenOnDisconnect(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// The connection drops before the last block's blank line.
		_, _ = io.WriteString(w, `data: {"status":"token","content":"完整"}`+"\n\n"+`data: {"status":"token","content":"殘段"}`)
	}))
	defer upstream.Close()

	client := NewClient(upstream.URL)
	source, err := client.Stream(context.Background(), NewSendRequest("hi", "", "conv-1"))
	require.NoError(t, err)
	defer source.Close()

	events := drain(t, source)
	require.Len(t, events, 2)
	assert.Equal(t, Token{Content: "完整"}, events[0])
	assert.Equal(t, Token{Content: "殘段"}, events[1])
}

func TestNewSendRequestOmitsAutoAgent(t *testing.T) {
	body, err := json.Marshal(NewSendRequest("hi", "auto", "conv-1"))
	require.NoError(t, err)
	assert.NotContains(t, string(body), "agent_type")

	body, err = json.Marshal(NewSendRequest("hi", "naive_rag_agent", "conv-1"))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"agent_type":"naive_rag_agent"`)
}
