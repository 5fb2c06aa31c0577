package stream

import (
	"encoding/json"
	"log/slog"
	"strings"
)

const (
	// DataPrefix marks the payload line of a protocol block.
	DataPrefix = "data: "
	// DoneSentinel is the literal end-of-stream marker sent in place of a
	// JSON envelope.
	DoneSentinel = "[DONE]"

	// maxContentDecodeDepth bounds the double-encoded content
	// normalization. Upstream has been observed to JSON-encode token
	// content more than once; the cap keeps a pathological payload from
	// spinning this loop forever.
	maxContentDecodeDepth = 5
)

// Decoder reassembles protocol blocks from arbitrarily-chunked text
// fragments. A single fragment may contain several blocks and a block may
// span several fragments; incomplete trailing data is carried over to the
// next Feed call.
type Decoder struct {
	buffer string
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes one fragment and returns the events completed by it, in
// block order.
func (d *Decoder) Feed(fragment string) []Event {
	d.buffer += fragment

	blocks := strings.Split(d.buffer, "\n\n")
	d.buffer = blocks[len(blocks)-1]

	var events []Event
	for _, block := range blocks[:len(blocks)-1] {
		if event, ok := decodeBlock(block); ok {
			events = append(events, event)
		}
	}
	return events
}

// Flush handles stream end. A leftover buffer that still looks like a block
// gets one last decode attempt and may yield a final token; anything else is
// discarded silently.
func (d *Decoder) Flush() []Event {
	block := d.buffer
	d.buffer = ""

	if strings.TrimSpace(block) == "" || !strings.HasPrefix(block, DataPrefix) {
		return nil
	}
	payload := block[len(DataPrefix):]
	if strings.TrimSpace(payload) == DoneSentinel {
		return nil
	}
	var envelope Envelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		return nil
	}
	if envelope.Status == "token" && envelope.Content != "" {
		return []Event{Token{Content: normalizeContent(envelope.Content), Trace: envelope.Trace}}
	}
	return nil
}

// decodeBlock parses one complete block. Malformed blocks are skipped so a
// single bad payload never aborts the stream.
func decodeBlock(block string) (Event, bool) {
	if !strings.HasPrefix(block, DataPrefix) {
		return nil, false
	}
	payload := block[len(DataPrefix):]

	if strings.TrimSpace(payload) == DoneSentinel {
		return EndOfStream{}, true
	}

	var envelope Envelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		slog.Warn("skipping malformed stream block", "error", err)
		return nil, false
	}

	switch envelope.Status {
	case "token":
		return Token{Content: normalizeContent(envelope.Content), Trace: envelope.Trace}, true
	case "thinking":
		return Thinking{Content: envelope.Content}, true
	case "routing":
		return Routing{
			SelectedAgent: envelope.SelectedAgent,
			Reason:        envelope.RoutingReason,
			Scores:        envelope.RoutingScores,
		}, true
	case "execution_log":
		return ExecutionLog{Content: envelope.Content}, true
	case "done":
		return Done{
			SelectedAgent: envelope.SelectedAgent,
			Reason:        envelope.RoutingReason,
			Scores:        envelope.RoutingScores,
		}, true
	case "error":
		message := envelope.Message
		if message == "" {
			message = "未知錯誤"
		}
		return ServerError{Message: message}, true
	default:
		slog.Warn("skipping stream block with unknown status", "status", envelope.Status)
		return nil, false
	}
}

// normalizeContent undoes upstream double-encoding: content that is itself a
// JSON-encoded string is re-parsed until a parse fails, keeping the last
// successfully parsed value. A parse failure is not an error, it means the
// value is already plain text.
func normalizeContent(content string) string {
	for i := 0; i < maxContentDecodeDepth; i++ {
		var inner string
		if err := json.Unmarshal([]byte(content), &inner); err != nil {
			break
		}
		content = inner
	}
	return content
}
