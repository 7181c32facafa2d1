package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Parser turns raw model output into a structured mapping. The models are
// instructed to emit JSON only but frequently wrap it in markdown fences,
// prepend prose, or leave literal newlines inside string values. Parse
// degrades through an ordered sequence of recovery strategies and never
// fails: every input terminates in either a mapping or the sentinel
// failure mapping.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a parser. A nil logger disables logging.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log}
}

// rawSnippetLimit bounds the diagnostic copy kept in the sentinel mapping.
const rawSnippetLimit = 200

// expectedFields are the string fields the manual-extraction fallback
// looks for, across both the detection and explanation response shapes.
var expectedFields = []string{
	"description",
	"impact",
	"recommendation",
	"fixed_code",
	"summary",
	"brief_reason",
	"vulnerable_code",
}

// codeFields additionally get "\n" unescaped to real line breaks.
var codeFields = map[string]bool{
	"fixed_code":      true,
	"vulnerable_code": true,
}

var (
	// fieldPatterns matches `"field": "<value>"` where the value may
	// contain escaped quotes.
	fieldPatterns = func() map[string]*regexp.Regexp {
		m := make(map[string]*regexp.Regexp, len(expectedFields))
		for _, f := range expectedFields {
			m[f] = regexp.MustCompile(`"` + f + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
		}
		return m
	}()

	spaceRuns = regexp.MustCompile(` {2,}`)
)

// Parse applies the recovery strategies in order, stopping at the first
// that yields a JSON object.
func (p *Parser) Parse(raw string) map[string]any {
	p.log.Debug("parsing model response", zap.String("raw", truncate(raw, rawSnippetLimit)))

	// 1. strip markdown fences and try a direct parse
	stripped := stripFences(raw)
	if m, ok := tryJSON(stripped); ok {
		p.log.Debug("parsed model response", zap.String("strategy", "direct"))
		return m
	}

	// 2. strip control characters, collapse whitespace, retry
	cleaned := cleanText(stripped)
	if m, ok := tryJSON(cleaned); ok {
		p.log.Debug("parsed model response", zap.String("strategy", "cleaned"))
		return m
	}

	// 3. parse only the first {...last } of the cleaned text
	if start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); start >= 0 && end > start {
		if m, ok := tryJSON(cleaned[start : end+1]); ok {
			p.log.Debug("parsed model response", zap.String("strategy", "substring"))
			return m
		}
	}

	// 4. field-by-field regex extraction over the raw text
	if m := extractFields(raw); len(m) > 0 {
		p.log.Warn("model response recovered by field extraction",
			zap.Int("fields", len(m)))
		return m
	}

	// 5. sentinel failure mapping
	p.log.Warn("failed to parse model response",
		zap.String("raw", truncate(raw, rawSnippetLimit)))
	return map[string]any{
		"error": "failed to parse model response",
		"raw":   truncate(raw, rawSnippetLimit),
	}
}

// IsFailure reports whether m is the sentinel failure mapping.
func IsFailure(m map[string]any) bool {
	_, ok := m["error"]
	return ok
}

// RawSnippet returns the truncated raw text carried by a sentinel mapping.
func RawSnippet(m map[string]any) string {
	s, _ := m["raw"].(string)
	return s
}

func tryJSON(s string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// stripFences removes a leading/trailing triple-backtick marker,
// optionally tagged `json`.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-len("```")]
	}
	return strings.TrimSpace(s)
}

// cleanText drops control characters (0x00-0x1F, 0x7F-0x9F), turning
// newlines, tabs and carriage returns into single spaces, then collapses
// runs of spaces. Literal newlines inside JSON string values are the most
// common reason strict parsing fails.
func cleanText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			b.WriteByte(' ')
		case r < 0x20 || (r >= 0x7f && r <= 0x9f):
			// drop
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(spaceRuns.ReplaceAllString(b.String(), " "))
}

// extractFields collects whatever expected fields match their pattern.
func extractFields(s string) map[string]any {
	out := map[string]any{}
	for _, f := range expectedFields {
		match := fieldPatterns[f].FindStringSubmatch(s)
		if match == nil {
			continue
		}
		v := strings.ReplaceAll(match[1], `\"`, `"`)
		if codeFields[f] {
			v = strings.ReplaceAll(v, `\n`, "\n")
		}
		out[f] = v
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
