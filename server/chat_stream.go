package server

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/hrygo/kgchat/agents"
	"github.com/hrygo/kgchat/stream"
)

// routable are the agents the mock router may select for auto requests.
var routable = []string{"graph_agent", "hybrid_agent", "naive_rag_agent", "deep_research_agent", "fusion_agent"}

// handleChatStream emits one synthesized turn as a block stream:
// routing → (thinking) → paced tokens → done → [DONE].
func (s *Server) handleChatStream(c echo.Context) error {
	var req stream.SendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	response := c.Response()
	response.Header().Set(echo.HeaderContentType, "text/event-stream")
	response.Header().Set(echo.HeaderCacheControl, "no-cache")
	response.Header().Set(echo.HeaderConnection, "keep-alive")
	response.WriteHeader(http.StatusOK)

	selected, reason := s.route(req.AgentType)
	usedKG := s.usesKnowledgeGraph(selected)
	scores := s.routingScores(selected)

	writeBlock(response, stream.Envelope{
		Status:        "routing",
		SelectedAgent: selected,
		RoutingReason: reason,
		RoutingScores: scores,
	})

	if req.ShowThinking {
		writeBlock(response, stream.Envelope{
			Status:  "thinking",
			Content: fmt.Sprintf("正在以 %s 策略處理您的問題…", agents.DisplayName(selected)),
		})
	}

	content := stream.CannedResponse(req.Message, agents.DisplayName(selected), usedKG)
	trace := stream.CannedTrace(time.Now(), selected, req.Message, usedKG)

	ctx := c.Request().Context()
	limiter := rate.NewLimiter(rate.Every(s.tokenInterval), 1)
	runes := []rune(content)
	const chunk = 16
	for start := 0; start < len(runes); start += chunk {
		if err := limiter.Wait(ctx); err != nil {
			// Client went away mid-stream; nothing to clean up.
			return nil
		}
		end := start + chunk
		if end > len(runes) {
			end = len(runes)
		}
		envelope := stream.Envelope{Status: "token", Content: string(runes[start:end])}
		if start == 0 {
			envelope.Trace = &trace
		}
		writeBlock(response, envelope)
	}

	writeBlock(response, stream.Envelope{
		Status:        "done",
		SelectedAgent: selected,
		RoutingReason: reason,
		RoutingScores: scores,
	})
	fmt.Fprintf(response, "%s%s\n\n", stream.DataPrefix, stream.DoneSentinel)
	response.Flush()
	return nil
}

// route picks the agent for a turn: an explicit agent_type wins, otherwise
// the mock router selects one at random.
func (s *Server) route(agentType string) (selected, reason string) {
	if agentType != "" && agentType != agents.Auto {
		return agentType, "使用者指定代理"
	}
	return routable[rand.IntN(len(routable))], "自動路由選擇最高分代理"
}

// usesKnowledgeGraph mirrors the real service's retrieval split: the graph
// agents always hit the knowledge graph, the rest do 35% of the time.
func (s *Server) usesKnowledgeGraph(selected string) bool {
	if selected == "graph_agent" || selected == "hybrid_agent" {
		return true
	}
	return rand.Float64() < 0.35
}

func (s *Server) routingScores(selected string) map[string]float64 {
	scores := make(map[string]float64, len(routable))
	for _, agent := range routable {
		scores[agent] = 0.1 + rand.Float64()*0.5
	}
	scores[selected] = 0.85 + rand.Float64()*0.1
	return scores
}

// writeBlock emits one protocol block and flushes it so clients see tokens
// as they are produced.
func writeBlock(response *echo.Response, envelope stream.Envelope) {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	fmt.Fprintf(response, "%s%s\n\n", stream.DataPrefix, raw)
	response.Flush()
}
