package client

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Pattern families tried in order; within a family the first match
// that parses wins. Transcripts with several well-formed candidates
// resolve to the earliest occurrence of the earliest family.
var artifactPatterns = []*regexp.Regexp{
	regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```"),
	regexp.MustCompile("(?s)```\\s*(\\{.*?\\})\\s*```"),
	regexp.MustCompile(`(?s)cat > \w+\.json << 'EOF'\s*(\{.*?\})\s*EOF`),
}

// ExtractArtifact locates and decodes a JSON object embedded in
// free-form transcript text: fenced code blocks, shell heredocs, or
// loose inline text. The second return value is false when no artifact
// is present, which is a normal outcome, not an error.
func ExtractArtifact(content string) (map[string]any, bool) {
	for _, pattern := range artifactPatterns {
		for _, match := range pattern.FindAllStringSubmatch(content, -1) {
			if artifact, ok := parseCandidate(match[1]); ok {
				return artifact, true
			}
		}
	}

	if candidate, ok := scanBracedObject(content); ok {
		if artifact, ok := parseCandidate(candidate); ok {
			return artifact, true
		}
	}
	return nil, false
}

// parseCandidate tries the text as-is first; transcripts that carry
// the object through an escaping layer get one round of unescaping
// (\" and literal \n) before the second attempt.
func parseCandidate(text string) (map[string]any, bool) {
	var artifact map[string]any
	if err := json.Unmarshal([]byte(text), &artifact); err == nil && artifact != nil {
		return artifact, true
	}
	unescaped := strings.ReplaceAll(text, `\"`, `"`)
	unescaped = strings.ReplaceAll(unescaped, `\n`, "\n")
	artifact = nil
	if err := json.Unmarshal([]byte(unescaped), &artifact); err == nil && artifact != nil {
		return artifact, true
	}
	return nil, false
}

// scanBracedObject finds the first balanced {...} span, counting brace
// depth only outside string literals. A backslash escapes the next
// character regardless of what it is.
func scanBracedObject(content string) (string, bool) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escapeNext := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		if ch == '\\' {
			escapeNext = true
			continue
		}
		if ch == '"' {
			inString = !inString
		}
		if inString {
			continue
		}
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1], true
			}
		}
	}
	return "", false
}
