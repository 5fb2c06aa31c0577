package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/kgchat/store"
)

// feedAll runs a complete stream through a fresh decoder and returns every
// event including the flush.
func feedAll(fragments ...string) []Event {
	d := NewDecoder()
	var events []Event
	for _, fragment := range fragments {
		events = append(events, d.Feed(fragment)...)
	}
	return append(events, d.Flush()...)
}

func TestDecodeCompleteStream(t *testing.T) {
	raw := "data: {\"status\":\"routing\",\"selected_agent\":\"graph_agent\",\"routing_reason\":\"圖譜查詢\"}\n\n" +
		"data: {\"status\":\"thinking\",\"content\":\"分析中\"}\n\n" +
		"data: {\"status\":\"token\",\"content\":\"你好\"}\n\n" +
		"data: {\"status\":\"token\",\"content\":\"世界\"}\n\n" +
		"data: {\"status\":\"done\",\"selected_agent\":\"graph_agent\"}\n\n" +
		"data: [DONE]\n\n"

	events := feedAll(raw)
	require.Len(t, events, 6)
	assert.Equal(t, Routing{SelectedAgent: "graph_agent", Reason: "圖譜查詢"}, events[0])
	assert.Equal(t, Thinking{Content: "分析中"}, events[1])
	assert.Equal(t, Token{Content: "你好"}, events[2])
	assert.Equal(t, Token{Content: "世界"}, events[3])
	assert.Equal(t, Done{SelectedAgent: "graph_agent"}, events[4])
	assert.Equal(t, EndOfStream{}, events[5])
}

func TestDecodeIsChunkingInvariant(t *testing.T) {
	raw := "data: {\"status\":\"token\",\"content\":\"第一段\"}\n\n" +
		"data: {\"status\":\"token\",\"content\":\"第二段\"}\n\n" +
		"data: {\"status\":\"done\"}\n\n" +
		"data: [DONE]\n\n"

	whole := feedAll(raw)
	require.NotEmpty(t, whole)

	// Splitting the stream at any byte boundary must yield the same ordered
	// event sequence, multi-byte runes included.
	for cut := 1; cut < len(raw); cut++ {
		split := feedAll(raw[:cut], raw[cut:])
		assert.Equal(t, whole, split, "split at byte %d diverges", cut)
	}
}

func TestDecodeNormalizesDoubleEncodedContent(t *testing.T) {
	// Upstream sometimes JSON-encodes token content an extra time; the
	// escaped quotes inside the envelope are part of the content field.
	events := feedAll("data: {\"status\":\"token\",\"content\":\"\\\"hello\\\"\"}\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, Token{Content: "hello"}, events[0])
}

func TestDecodeNormalizationDepthIsBounded(t *testing.T) {
	// A payload quoted more times than the cap keeps its residual quoting
	// instead of spinning the decoder.
	content := "deep"
	for i := 0; i < maxContentDecodeDepth+2; i++ {
		encoded, err := json.Marshal(content)
		require.NoError(t, err)
		content = string(encoded)
	}

	normalized := normalizeContent(content)
	assert.NotEqual(t, "deep", normalized)
	assert.Equal(t, `"\"deep\""`, normalized, "exactly the capped number of layers is removed")
}

func TestDecodeSkipsMalformedBlock(t *testing.T) {
	events := feedAll("data: {\"status\":\"token\",\"content\":\"before\"}\n\n" +
		"data: {not json at all\n\n" +
		"data: {\"status\":\"token\",\"content\":\"after\"}\n\n")

	require.Len(t, events, 2, "one bad block never aborts the stream")
	assert.Equal(t, Token{Content: "before"}, events[0])
	assert.Equal(t, Token{Content: "after"}, events[1])
}

func TestDecodeSkipsUnknownStatus(t *testing.T) {
	events := feedAll("data: {\"status\":\"telemetry\",\"content\":\"x\"}\n\n" +
		"data: {\"status\":\"token\",\"content\":\"ok\"}\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, Token{Content: "ok"}, events[0])
}

func TestDecodeErrorBlockDefaultsMessage(t *testing.T) {
	events := feedAll("data: {\"status\":\"error\",\"message\":\"服務暫時不可用\"}\n\n" +
		"data: {\"status\":\"error\"}\n\n")
	require.Len(t, events, 2)
	assert.Equal(t, ServerError{Message: "服務暫時不可用"}, events[0])
	assert.Equal(t, ServerError{Message: "未知錯誤"}, events[1])
}

func TestDecodeTokenCarriesTrace(t *testing.T) {
	events := feedAll("data: {\"status\":\"token\",\"content\":\"\",\"trace\":{\"id\":\"t1\",\"agent\":\"hybrid_agent\",\"usedKG\":true}}\n\n")
	require.Len(t, events, 1)
	token, ok := events[0].(Token)
	require.True(t, ok)
	require.NotNil(t, token.Trace)
	assert.Equal(t, store.Trace{ID: "t1", Agent: "hybrid_agent", UsedKnowledgeGraph: true}, *token.Trace)
}

func TestFlushRecoversTrailingToken(t *testing.T) {
	d := NewDecoder()
	// The final block arrives without its terminating blank line before the
	// connection closes.
	assert.Empty(t, d.Feed("data: {\"status\":\"token\",\"content\":\"尾段\"}"))

	events := d.Flush()
	require.Len(t, events, 1)
	assert.Equal(t, Token{Content: "尾段"}, events[0])
}

func TestFlushDiscardsGarbage(t *testing.T) {
	d := NewDecoder()
	d.Feed("half a line with no prefix")
	assert.Empty(t, d.Flush())

	d = NewDecoder()
	d.Feed("data: [DONE]")
	assert.Empty(t, d.Flush(), "a trailing sentinel yields no event at flush")

	d = NewDecoder()
	d.Feed("data: {\"status\":\"done\"}")
	assert.Empty(t, d.Flush(), "only trailing tokens are recovered at flush")
}

func TestDecodeContinuesPastSentinel(t *testing.T) {
	events := feedAll("data: [DONE]\n\ndata: {\"status\":\"token\",\"content\":\"late\"}\n\n")
	require.Len(t, events, 2)
	assert.Equal(t, EndOfStream{}, events[0])
	assert.Equal(t, Token{Content: "late"}, events[1])
}
