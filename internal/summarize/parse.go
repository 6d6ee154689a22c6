package summarize

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Stage records which step of ParseAnalysis produced the result.
type Stage string

const (
	StageDirect  Stage = "direct"
	StageFenced  Stage = "fenced"
	StageScan    Stage = "scan"
	StageRepair  Stage = "repair"
	StageDefault Stage = "default"
)

// RegimeUnknown is used when the model reply could not be read.
const RegimeUnknown = "unknown"

const maxFallbackSummary = 280

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// trailingComma matches a comma directly before a closing bracket.
var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// danglingKey matches an object key left without a value at the end.
var danglingKey = regexp.MustCompile(`,?\s*"(?:[^"\\]|\\.)*"\s*$`)

// ParseAnalysis reads a model reply that should contain an Analysis. It
// tries progressively looser readings and never fails: when nothing parses
// the reply text itself becomes the summary.
func ParseAnalysis(text string) (Analysis, Stage) {
	text = strings.TrimSpace(text)

	if a, ok := decode(text); ok {
		return a, StageDirect
	}

	if m := fencePattern.FindStringSubmatch(text); m != nil {
		if a, ok := decode(strings.TrimSpace(m[1])); ok {
			return a, StageFenced
		}
	}

	start := strings.IndexByte(text, '{')
	if start >= 0 {
		if obj, ok := balancedObject(text[start:]); ok {
			if a, ok := decode(obj); ok {
				return a, StageScan
			}
		}
		if a, ok := decode(repair(text[start:])); ok {
			return a, StageRepair
		}
	}

	return fallback(text), StageDefault
}

func decode(s string) (Analysis, bool) {
	var a Analysis
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return Analysis{}, false
	}
	a.Summary = strings.TrimSpace(a.Summary)
	if a.Summary == "" {
		return Analysis{}, false
	}
	if a.Regime == "" {
		a.Regime = RegimeUnknown
	}
	return a, true
}

// balancedObject returns the prefix of s, which starts with '{', up to the
// brace that closes it. Braces inside strings are ignored.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString, escaped := false, false
	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case inString:
		case r == '{':
			depth++
		case r == '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// repair closes an unterminated string, drops trailing commas and closes
// any brackets left open, as happens when a reply is cut off.
func repair(s string) string {
	var stack []rune
	inString, escaped := false, false
	end := len(s)
	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case inString:
		case r == '{':
			stack = append(stack, '}')
		case r == '[':
			stack = append(stack, ']')
		case r == '}' || r == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				end = i + 1
			}
		}
		if len(stack) == 0 && end != len(s) {
			break
		}
	}

	var b strings.Builder
	b.WriteString(s[:end])
	if inString && end == len(s) {
		b.WriteByte('"')
	}
	out := strings.TrimRight(b.String(), " \t\r\n,")
	if strings.HasSuffix(out, ":") {
		out = danglingKey.ReplaceAllString(strings.TrimSuffix(out, ":"), "")
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return trailingComma.ReplaceAllString(out, "$1")
}

func fallback(text string) Analysis {
	summary := strings.Join(strings.Fields(text), " ")
	if r := []rune(summary); len(r) > maxFallbackSummary {
		summary = string(r[:maxFallbackSummary]) + "…"
	}
	return Analysis{Summary: summary, Regime: RegimeUnknown}
}
