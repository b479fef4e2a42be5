// Package session wraps one external reasoning-backend invocation with retry,
// incremental response parsing, duration measurement and rate-limit-window
// detection.
package session

import (
	"encoding/json"
	"strings"
)

// EntryKind classifies one observed stream entry.
type EntryKind string

// Stream entry kinds.
const (
	EntryStatus     EntryKind = "status"
	EntryThinking   EntryKind = "thinking"
	EntryText       EntryKind = "text"
	EntryToolUse    EntryKind = "tool_use"
	EntryToolResult EntryKind = "tool_result"
)

// Entry is one observable unit of backend output, emitted to the launch
// options' OnLogEntry observer as it is parsed.
type Entry struct {
	Kind EntryKind
	Text string
}

type streamEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Message struct {
		Content []contentBlock `json:"content"`
	} `json:"message"`
	Result       string  `json:"result"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	DurationMS   int64   `json:"duration_ms"`
}

type contentBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	Thinking string          `json:"thinking"`
	Name     string          `json:"name"`
	Content  json.RawMessage `json:"content"`
}

// StreamParser consumes newline-delimited JSON backend events arriving in
// arbitrary chunks. Partial lines are buffered until their newline appears;
// lines that are not JSON become opaque status entries. Parsing never fails:
// a malformed or unexpected event must not crash the launch.
type StreamParser struct {
	onEntry    func(Entry)
	remainder  string
	text       strings.Builder
	finalText  string
	haveFinal  bool
	costUSD    float64
	reportedMS int64
}

// NewStreamParser creates a parser. The observer may be nil.
func NewStreamParser(onEntry func(Entry)) *StreamParser {
	return &StreamParser{onEntry: onEntry}
}

// Feed consumes one chunk of stdout.
func (p *StreamParser) Feed(chunk string) {
	data := p.remainder + chunk
	for {
		i := strings.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		p.parseLine(data[:i])
		data = data[i+1:]
	}
	p.remainder = data
}

// Flush parses any trailing partial line at end of stream.
func (p *StreamParser) Flush() {
	if strings.TrimSpace(p.remainder) != "" {
		p.parseLine(p.remainder)
	}
	p.remainder = ""
}

// FinalText returns the launch's textual output: the terminal result event's
// payload when one was seen, otherwise the accumulated assistant text.
func (p *StreamParser) FinalText() string {
	if p.haveFinal {
		return p.finalText
	}
	return p.text.String()
}

// CostUSD returns the cost reported by the terminal result event, if any.
func (p *StreamParser) CostUSD() float64 {
	return p.costUSD
}

// ReportedDurationMS returns the backend-reported duration, if any.
func (p *StreamParser) ReportedDurationMS() int64 {
	return p.reportedMS
}

func (p *StreamParser) emit(e Entry) {
	if p.onEntry != nil {
		p.onEntry(e)
	}
}

func (p *StreamParser) parseLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	var ev streamEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Type == "" {
		p.emit(Entry{Kind: EntryStatus, Text: line})
		return
	}

	switch ev.Type {
	case "system":
		status := "backend session event"
		if ev.Subtype != "" {
			status = "backend session " + ev.Subtype
		}
		p.emit(Entry{Kind: EntryStatus, Text: status})
	case "assistant":
		for _, block := range ev.Message.Content {
			p.parseBlock(block)
		}
	case "result":
		if ev.Result != "" {
			p.finalText = ev.Result
			p.haveFinal = true
		}
		if ev.TotalCostUSD > 0 {
			p.costUSD = ev.TotalCostUSD
		}
		if ev.DurationMS > 0 {
			p.reportedMS = ev.DurationMS
		}
	default:
		p.emit(Entry{Kind: EntryStatus, Text: line})
	}
}

func (p *StreamParser) parseBlock(block contentBlock) {
	switch block.Type {
	case "text":
		p.text.WriteString(block.Text)
		p.emit(Entry{Kind: EntryText, Text: block.Text})
	case "thinking":
		p.emit(Entry{Kind: EntryThinking, Text: block.Thinking})
	case "tool_use":
		p.emit(Entry{Kind: EntryToolUse, Text: block.Name})
	case "tool_result":
		p.emit(Entry{Kind: EntryToolResult, Text: compactRaw(block.Content)})
	}
}

func compactRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
