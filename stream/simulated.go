package stream

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/hrygo/kgchat/agents"
	"github.com/hrygo/kgchat/store"
)

// Step labels for the two retrieval pipelines, as shown in the trace panel.
var (
	knowledgeGraphSteps = []string{
		"分析查詢意圖",
		"檢索知識圖譜",
		"整合多源資料",
		"生成結構化回覆",
		"品質驗證",
	}
	documentRetrievalSteps = []string{
		"分析查詢意圖",
		"文件向量檢索",
		"語意排序",
		"生成回覆",
	}
)

// CannedResponse synthesizes the offline assistant reply for input.
func CannedResponse(input, agentName string, usedKG bool) string {
	retrieval := "已從文件庫中檢索相關資料"
	footer := "📄 本次回應基於文件檢索"
	if usedKG {
		retrieval = "已從知識圖譜中檢索相關資訊"
		footer = "📊 本次回應使用了知識圖譜增強"
	}
	return fmt.Sprintf(`針對您的問題「%s」，系統分析結果如下：

根據 %s 代理分析，%s。

建議採取以下行動方案：
• 優先處理核心需求
• 整合現有資源
• 建立追蹤機制

%s`, input, agentName, retrieval, footer)
}

// CannedTrace builds the diagnostic trace for one synthesized turn.
func CannedTrace(now time.Time, agent, input string, usedKG bool) store.Trace {
	steps := documentRetrievalSteps
	if usedKG {
		steps = knowledgeGraphSteps
	}
	return store.Trace{
		ID:                 uuid.NewString(),
		Time:               now.Format("15:04"),
		Agent:              agent,
		UsedKnowledgeGraph: usedKG,
		InputText:          input,
		Steps:              append([]string(nil), steps...),
	}
}

// Simulated is the offline response strategy: same Streamer contract as the
// live Client, but it waits 1.0–2.0 s and synthesizes a canned reply with a
// 35% chance of flagging knowledge-graph retrieval. Used in demo mode and in
// tests; never conflated with the live transport.
type Simulated struct {
	delay         func() time.Duration
	kgProbability float64
	now           func() time.Time
}

// SimulatedOption customizes the simulated strategy, mainly for tests.
type SimulatedOption func(*Simulated)

func WithDelay(delay func() time.Duration) SimulatedOption {
	return func(s *Simulated) { s.delay = delay }
}

func WithKGProbability(p float64) SimulatedOption {
	return func(s *Simulated) { s.kgProbability = p }
}

func WithSimulatedClock(now func() time.Time) SimulatedOption {
	return func(s *Simulated) { s.now = now }
}

func NewSimulated(opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		delay: func() time.Duration {
			return time.Second + time.Duration(rand.Float64()*float64(time.Second))
		},
		kgProbability: 0.35,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// tokenChunkRunes is how much of the canned reply each synthetic token
// carries.
const tokenChunkRunes = 24

func (s *Simulated) Stream(ctx context.Context, req SendRequest) (EventSource, error) {
	agent := req.AgentType
	if agent == "" {
		agent = agents.Auto
	}
	usedKG := rand.Float64() < s.kgProbability

	content := CannedResponse(req.Message, agents.DisplayName(agent), usedKG)
	trace := CannedTrace(s.now(), agent, req.Message, usedKG)

	events := []Event{
		Routing{SelectedAgent: agent, Reason: "模擬模式"},
	}
	runes := []rune(content)
	for start := 0; start < len(runes); start += tokenChunkRunes {
		end := start + tokenChunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		events = append(events, Token{Content: string(runes[start:end])})
	}
	events = append(events,
		Token{Trace: &trace},
		Done{SelectedAgent: agent, Reason: "模擬模式"},
	)

	return &simulatedSource{ctx: ctx, delay: s.delay(), events: events}, nil
}

type simulatedSource struct {
	ctx    context.Context
	delay  time.Duration
	waited bool
	events []Event
	next   int
	closed bool
}

// Recv waits out the synthetic delay before the first event, honoring
// cancellation the same way the live transport does.
func (s *simulatedSource) Recv() (Event, error) {
	// The delay is applied lazily so Stream itself never blocks; the
	// consumer's context governs the wait.
	if !s.waited {
		s.waited = true
		if s.delay > 0 {
			timer := time.NewTimer(s.delay)
			defer timer.Stop()
			select {
			case <-s.ctx.Done():
				return nil, s.ctx.Err()
			case <-timer.C:
			}
		}
	}
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed || s.next >= len(s.events) {
		return nil, io.EOF
	}
	event := s.events[s.next]
	s.next++
	return event, nil
}

func (s *simulatedSource) Close() error {
	s.closed = true
	return nil
}
