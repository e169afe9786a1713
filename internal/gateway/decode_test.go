package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeTurnBareJSON(t *testing.T) {
	raw := `{"response": "Show me the numbers.", "interest_change": -8, "is_dealbreaker": false}`

	result, degraded := DecodeTurn(raw)
	assert.False(t, degraded)
	assert.Equal(t, TurnResult{Reply: "Show me the numbers.", Delta: -8, Dealbreaker: false}, result)
}

func TestDecodeTurnFencedBlockEqualsBareJSON(t *testing.T) {
	bare := `{"response": "Interesting. Go on.", "interest_change": 5, "is_dealbreaker": false}`
	fenced := "Sure, here is my reply:\n```json\n" + bare + "\n```\nHope that helps!"

	fromBare, _ := DecodeTurn(bare)
	fromFenced, degraded := DecodeTurn(fenced)
	assert.False(t, degraded)
	assert.Equal(t, fromBare, fromFenced)
}

func TestDecodeTurnBraceSlice(t *testing.T) {
	raw := `The model says: {"response": "Next question.", "interest_change": 2, "is_dealbreaker": false} end of output`

	result, degraded := DecodeTurn(raw)
	assert.False(t, degraded)
	assert.Equal(t, "Next question.", result.Reply)
	assert.Equal(t, 2, result.Delta)
}

func TestDecodeTurnGarbageNeverFails(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain prose", "I refuse to answer in JSON today.", "I refuse to answer in JSON today."},
		{"fence leftovers", "```json\nnot json at all\n```", "not json at all"},
		{"empty", "", ""},
		{"lone braces", "{not valid}", "{not valid}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, degraded := DecodeTurn(tt.raw)
			assert.True(t, degraded)
			assert.Equal(t, tt.want, result.Reply)
			assert.Equal(t, 0, result.Delta)
			assert.False(t, result.Dealbreaker)
		})
	}
}

func TestDecodeTurnCoercesStringDelta(t *testing.T) {
	result, degraded := DecodeTurn(`{"response": "Fine.", "interest_change": "-5", "is_dealbreaker": false}`)
	assert.False(t, degraded)
	assert.Equal(t, -5, result.Delta)

	result, _ = DecodeTurn(`{"response": "Fine.", "interest_change": "lots", "is_dealbreaker": false}`)
	assert.Equal(t, 0, result.Delta)

	result, _ = DecodeTurn(`{"response": "Fine."}`)
	assert.Equal(t, 0, result.Delta)
	assert.False(t, result.Dealbreaker)
}

func TestDecodeTurnClampsDelta(t *testing.T) {
	result, _ := DecodeTurn(`{"response": "I love it!", "interest_change": 90, "is_dealbreaker": false}`)
	assert.Equal(t, MaxDelta, result.Delta)

	result, _ = DecodeTurn(`{"response": "Get out.", "interest_change": -90, "is_dealbreaker": true}`)
	assert.Equal(t, -MaxDelta, result.Delta)
	assert.True(t, result.Dealbreaker)
}

func TestDecodeTurnEmptyResponseDegrades(t *testing.T) {
	result, degraded := DecodeTurn(`{"response": "", "interest_change": 10}`)
	assert.True(t, degraded)
	assert.Equal(t, 0, result.Delta)
}

func TestExtractJSONPrefersFence(t *testing.T) {
	raw := "{\"outer\": 1}\n```json\n{\"inner\": 2}\n```"
	assert.Equal(t, `{"inner": 2}`, ExtractJSON(raw))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "hello", StripFences("```json\nhello\n```"))
	assert.Equal(t, "hello", StripFences("hello"))
}
