// Package roles implements the four cognitive role policies: plan-and-dispatch,
// execute-and-reconsider, audit-and-escalate and idle-detect-and-propose-goals.
// Each role turn gathers permitted context, launches one backend session,
// parses the reply as a structured JSON object extracted from free-form text,
// and applies its policy with conservative defaults on any failure.
package roles

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ParseError reports that a model reply did not contain a usable JSON object.
// It feeds the conservative-default path; it is never allowed to crash a turn.
type ParseError struct {
	Reason string
	Raw    string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model reply: %s", e.Reason)
}

const rawSnippetLen = 120

func snippet(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > rawSnippetLen {
		raw = raw[:rawSnippetLen] + "..."
	}
	return raw
}

// ExtractJSON pulls the first JSON object out of free-form model output.
// Exact JSON is accepted as-is; otherwise the text is scanned for the first
// balanced {...} block, with string contents excluded from brace counting.
func ExtractJSON(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return []byte(trimmed), nil
	}

	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
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
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				candidate := trimmed[start : i+1]
				if json.Valid([]byte(candidate)) {
					return []byte(candidate), nil
				}
				start = -1
			}
		}
	}

	return nil, &ParseError{Reason: "no JSON object found", Raw: snippet(raw)}
}

// decodeReply extracts, schema-validates and unmarshals a model reply.
func decodeReply(raw, schema string, out any) error {
	doc, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	if err := validateReply(schema, doc); err != nil {
		return &ParseError{Reason: err.Error(), Raw: snippet(raw)}
	}
	if err := json.Unmarshal(doc, out); err != nil {
		return &ParseError{Reason: err.Error(), Raw: snippet(raw)}
	}
	return nil
}

func validateReply(schema string, doc []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("validate reply schema: %w", err)
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, schemaErr := range result.Errors() {
		errs = append(errs, schemaErr.String())
	}
	sort.Strings(errs)
	return fmt.Errorf("reply schema validation failed: %s", strings.Join(errs, "; "))
}
