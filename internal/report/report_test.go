package report

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type scriptedCompleter struct {
	replies []string
	err     error
	calls   int
}

func (s *scriptedCompleter) Complete(ctx context.Context, providerID, systemPrompt, input string, temperature float64) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func TestGenerateDecodesVerdict(t *testing.T) {
	c := &scriptedCompleter{replies: []string{
		"```json\n{\"score\": 72, \"feedback\": \"Strong traction story, weak unit economics.\", \"funding_decision\": \"Funded\", \"strengths\": [\"traction\"], \"weaknesses\": [\"CAC\"]}\n```",
	}}
	g := NewGenerator(c, nil)

	r := g.Generate(context.Background(), "claude", []Line{{Speaker: "Founder", Text: "We grew 40% MoM."}}, 72)
	assert.Equal(t, 72, r.Score)
	assert.Equal(t, DecisionFunded, r.Decision)
	assert.Equal(t, []string{"traction"}, r.Strengths)
	assert.False(t, r.Fallback)
}

func TestGenerateRetriesOnceThenSucceeds(t *testing.T) {
	c := &scriptedCompleter{replies: []string{
		"total garbage",
		`{"score": 30, "feedback": "Too vague.", "funding_decision": "ghosted", "strengths": [], "weaknesses": ["no numbers"]}`,
	}}
	g := NewGenerator(c, nil)

	r := g.Generate(context.Background(), "gemini", nil, 30)
	assert.Equal(t, 2, c.calls)
	assert.Equal(t, DecisionGhosted, r.Decision)
	assert.False(t, r.Fallback)
}

func TestGenerateNeverFails(t *testing.T) {
	c := &scriptedCompleter{err: errors.New("connection refused")}
	g := NewGenerator(c, nil)

	r := g.Generate(context.Background(), "nova", nil, 8)
	assert.NotNil(t, r)
	assert.True(t, r.Fallback)
	assert.Equal(t, 8, r.Score)
	assert.Equal(t, DecisionPassed, r.Decision)
	assert.Equal(t, generateAttempts, c.calls)
}

func TestDecodeClampsAndNormalizes(t *testing.T) {
	r, ok := decode(`{"score": 250, "feedback": "ok", "funding_decision": "FuNdEd"}`, 50)
	assert.True(t, ok)
	assert.Equal(t, 100, r.Score)
	assert.Equal(t, DecisionFunded, r.Decision)

	r, ok = decode(`{"score": "88", "feedback": "ok", "funding_decision": "unknown"}`, 50)
	assert.True(t, ok)
	assert.Equal(t, 88, r.Score)
	assert.Equal(t, DecisionPassed, r.Decision)

	_, ok = decode(`{"score": 10}`, 50)
	assert.False(t, ok, "missing feedback should not decode")
}

func TestFallbackUsesFinalScore(t *testing.T) {
	r := Fallback(41)
	assert.Equal(t, 41, r.Score)
	assert.Equal(t, DecisionPassed, r.Decision)
	assert.NotEmpty(t, r.Feedback)
}
