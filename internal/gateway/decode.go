package gateway

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// turnPayload is the JSON shape providers are instructed to emit.
// interest_change is kept raw so that string-encoded numbers ("-5") coerce
// instead of failing the whole parse.
type turnPayload struct {
	Response       string          `json:"response"`
	InterestChange json.RawMessage `json:"interest_change"`
	IsDealbreaker  bool            `json:"is_dealbreaker"`
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\n?```")

// ExtractJSON pulls the best JSON candidate out of messy model output.
// A fenced code block wins; otherwise the slice between the first '{' and the
// last '}' (inclusive); otherwise the input unchanged.
func ExtractJSON(raw string) string {
	if m := fenceRe.FindStringSubmatch(raw); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

// StripFences removes residual markdown fence markers, used when the reply is
// passed through verbatim on decode failure.
func StripFences(raw string) string {
	raw = strings.ReplaceAll(raw, "```json", "")
	raw = strings.ReplaceAll(raw, "```", "")
	return strings.TrimSpace(raw)
}

// DecodeTurn converts raw provider output into a TurnResult. The degraded
// return is true when the output could not be parsed as the expected JSON and
// the cleaned raw text was used verbatim with a zero delta. DecodeTurn never
// fails: a conversation must not crash on malformed model output.
func DecodeTurn(raw string) (result TurnResult, degraded bool) {
	candidate := ExtractJSON(raw)

	var payload turnPayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil || payload.Response == "" {
		return TurnResult{
			Reply:       StripFences(raw),
			Delta:       0,
			Dealbreaker: false,
		}, true
	}

	return TurnResult{
		Reply:       payload.Response,
		Delta:       clampDelta(coerceInt(payload.InterestChange)),
		Dealbreaker: payload.IsDealbreaker,
	}, false
}

// coerceInt reads interest_change as a number, a string-encoded number, or
// anything else (which yields 0).
func coerceInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return int(f)
		}
	}
	return 0
}

func clampDelta(d int) int {
	if d > MaxDelta {
		return MaxDelta
	}
	if d < -MaxDelta {
		return -MaxDelta
	}
	return d
}
