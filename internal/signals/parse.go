package signals

import (
	"bytes"
	"encoding/json"
	"strings"
)

type ParseStatus int

const (
	ParseOK ParseStatus = iota
	// ParseRecovered means the reply was not JSON as a whole but a JSON
	// value could be cut out of it.
	ParseRecovered
	ParseFailed
)

func (s ParseStatus) String() string {
	switch s {
	case ParseOK:
		return "ok"
	case ParseRecovered:
		return "recovered"
	default:
		return "failed"
	}
}

// RawSignal is one untrusted result entry as the oracle produced it.
type RawSignal map[string]any

type ParseResult struct {
	Status  ParseStatus
	Entries []RawSignal
}

// Parse reads an oracle reply. It accepts {"results": [...]} or a bare
// array of entries. When the reply is not valid JSON, the largest balanced
// {...} or [...] span is tried once and must itself be a results container.
func Parse(reply string) ParseResult {
	text := strings.TrimSpace(reply)
	if entries, ok := decodeEntries(text, false); ok {
		return ParseResult{Status: ParseOK, Entries: entries}
	}

	span := largestBalancedSpan(text)
	if span == "" {
		return ParseResult{Status: ParseFailed}
	}
	if entries, ok := decodeEntries(span, true); ok {
		return ParseResult{Status: ParseRecovered, Entries: entries}
	}
	return ParseResult{Status: ParseFailed}
}

// decodeEntries unmarshals a results container. With requireResults set, an
// object lacking a "results" list is rejected.
func decodeEntries(text string, requireResults bool) ([]RawSignal, bool) {
	if text == "" {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}

	var list []any
	switch t := v.(type) {
	case map[string]any:
		results, ok := t["results"].([]any)
		if !ok && requireResults {
			return nil, false
		}
		list = results
	case []any:
		list = t
	default:
		return nil, false
	}

	entries := make([]RawSignal, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			entries = append(entries, RawSignal(m))
		}
	}
	return entries, true
}

// largestBalancedSpan returns the longest top-level bracketed span whose
// braces and brackets nest correctly, ignoring brackets inside strings.
func largestBalancedSpan(text string) string {
	best := ""
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		end := matchClose(text, i)
		if end < 0 {
			continue
		}
		if end-i+1 > len(best) {
			best = text[i : end+1]
		}
		i = end
	}
	return best
}

func matchClose(text string, start int) int {
	var stack bytes.Buffer
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack.WriteByte('}')
		case '[':
			stack.WriteByte(']')
		case '}', ']':
			n := stack.Len()
			if n == 0 || stack.Bytes()[n-1] != c {
				return -1
			}
			stack.Truncate(n - 1)
			if n == 1 {
				return i
			}
		}
	}
	return -1
}
