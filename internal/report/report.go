// Package report synthesizes the end-of-pitch verdict from a finished
// transcript. Generation is best effort: when the provider is unreachable or
// keeps answering garbage, a deterministic fallback verdict is produced
// instead of an error, so a finished session can always be closed out.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/apresai/pitchroom/internal/gateway"
)

// Decision is the counterpart's final call on the startup.
type Decision string

const (
	DecisionFunded  Decision = "FUNDED"
	DecisionPassed  Decision = "PASSED"
	DecisionGhosted Decision = "GHOSTED"
)

// Report is the structured verdict attached to a terminated session.
type Report struct {
	Score      int      `json:"score"`
	Feedback   string   `json:"feedback"`
	Decision   Decision `json:"funding_decision"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	// Fallback marks a verdict produced without the model, after generation
	// failed. Kept on the record so the UI can soften its framing.
	Fallback bool `json:"fallback,omitempty"`
}

// Line is one rendered transcript entry fed to the generator.
type Line struct {
	Speaker string
	Text    string
}

// Completer is the one-shot generation surface the generator needs. Satisfied
// by *gateway.Gateway.
type Completer interface {
	Complete(ctx context.Context, providerID, systemPrompt, input string, temperature float64) (string, error)
}

// Generator builds reports through a text provider.
type Generator struct {
	completer Completer
	log       *slog.Logger
}

func NewGenerator(completer Completer, log *slog.Logger) *Generator {
	return &Generator{completer: completer, log: log}
}

// reportTemperature is lower than the conversational setting; the verdict
// should be an assessment, not a performance.
const reportTemperature = 0.3

// generateAttempts bounds how many completions Generate tries before falling
// back.
const generateAttempts = 2

const reportSystemPrompt = `You are an experienced startup analyst writing a post-meeting debrief of an investor pitch.
You are given the meeting transcript and the final interest score (0-100) the investor ended on.
Write the debrief in the same language the founder used in the transcript.

Respond with raw JSON only, no markdown fences, exactly this shape:
{"score": <number 0-100>, "feedback": "<2-4 sentences of direct, actionable feedback>", "funding_decision": "<Funded|Passed|Ghosted>", "strengths": ["<short phrase>", ...], "weaknesses": ["<short phrase>", ...]}

Decision guidance: Funded only when the final score is high and no dealbreaker occurred. Ghosted when the meeting ended on a dealbreaker or a collapsed score. Passed otherwise.`

// Generate produces a report for a finished session. It never returns an
// error; when every attempt fails it returns the deterministic fallback built
// from the final score.
func (g *Generator) Generate(ctx context.Context, providerID string, transcript []Line, finalScore int) *Report {
	input := renderTranscript(transcript, finalScore)

	for attempt := 1; attempt <= generateAttempts; attempt++ {
		raw, err := g.completer.Complete(ctx, providerID, reportSystemPrompt, input, reportTemperature)
		if err != nil {
			if g.log != nil {
				g.log.WarnContext(ctx, "Report generation call failed",
					"provider", providerID, "attempt", attempt, "error", err)
			}
			continue
		}
		if r, ok := decode(raw, finalScore); ok {
			return r
		}
		if g.log != nil {
			g.log.WarnContext(ctx, "Report reply did not decode",
				"provider", providerID, "attempt", attempt, "raw_len", len(raw))
		}
	}

	if g.log != nil {
		g.log.WarnContext(ctx, "Falling back to deterministic report", "provider", providerID)
	}
	return Fallback(finalScore)
}

// Fallback is the verdict used when generation is impossible. Always Passed:
// the neutral outcome that neither rewards nor punishes a session the model
// never judged.
func Fallback(finalScore int) *Report {
	return &Report{
		Score:      finalScore,
		Feedback:   "The meeting ended before a full debrief could be written. Judging by the interest level alone, the pitch had moments but did not close the room.",
		Decision:   DecisionPassed,
		Strengths:  []string{"Showed up and pitched"},
		Weaknesses: []string{"Meeting ended without a complete assessment"},
		Fallback:   true,
	}
}

func renderTranscript(transcript []Line, finalScore int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Final interest score: %d\n\nTranscript:\n", finalScore)
	for _, line := range transcript {
		fmt.Fprintf(&b, "%s: %s\n", line.Speaker, line.Text)
	}
	return b.String()
}

// reportPayload tolerates the loose typing providers produce; score may come
// back as a string, the decision in any case.
type reportPayload struct {
	Score      json.RawMessage `json:"score"`
	Feedback   string          `json:"feedback"`
	Decision   string          `json:"funding_decision"`
	Strengths  []string        `json:"strengths"`
	Weaknesses []string        `json:"weaknesses"`
}

func decode(raw string, finalScore int) (*Report, bool) {
	candidate := gateway.ExtractJSON(raw)

	var payload reportPayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return nil, false
	}
	if payload.Feedback == "" {
		return nil, false
	}

	score := coerceScore(payload.Score, finalScore)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &Report{
		Score:      score,
		Feedback:   payload.Feedback,
		Decision:   normalizeDecision(payload.Decision),
		Strengths:  payload.Strengths,
		Weaknesses: payload.Weaknesses,
	}, true
}

func coerceScore(raw json.RawMessage, fallback int) int {
	if len(raw) == 0 {
		return fallback
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f); err == nil {
			return int(f)
		}
	}
	return fallback
}

func normalizeDecision(s string) Decision {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FUNDED":
		return DecisionFunded
	case "GHOSTED":
		return DecisionGhosted
	default:
		return DecisionPassed
	}
}
