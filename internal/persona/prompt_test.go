package persona

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var petUber = Startup{Name: "PetUber", Description: "Uber for dogs"}

func TestBuildSystemPromptSelectsTemplateByTag(t *testing.T) {
	inv := BuildSystemPrompt(Shark, petUber, "")
	assert.Contains(t, inv, "ruthless")
	assert.Contains(t, inv, "-20 to +15")

	men := BuildSystemPrompt(Mentor, petUber, "")
	assert.Contains(t, men, "Teach the founder")
	assert.Contains(t, men, "-10 to +10")
	assert.NotContains(t, men, "mercilessly")
}

func TestBuildSystemPromptEmbedsPersonaAndStartup(t *testing.T) {
	for _, p := range All() {
		got := BuildSystemPrompt(p, petUber, "")
		assert.Contains(t, got, p.Name)
		assert.Contains(t, got, p.Role)
		assert.Contains(t, got, "PetUber")
		assert.Contains(t, got, "Uber for dogs")
	}
}

func TestBuildSystemPromptCommonRules(t *testing.T) {
	for _, p := range All() {
		got := BuildSystemPrompt(p, petUber, "")
		assert.Contains(t, got, "NEVER acknowledge being an automated counterpart")
		assert.Contains(t, got, "same human language")
		assert.Contains(t, got, `"interest_change"`)
		assert.Contains(t, got, "Output raw JSON only")
	}
}

func TestBuildSystemPromptLocale(t *testing.T) {
	assert.Contains(t, BuildSystemPrompt(Shark, petUber, ""), "reply in English")
	assert.Contains(t, BuildSystemPrompt(Shark, petUber, "Chinese"), "reply in Chinese")
}

func TestBuildSystemPromptIsDeterministic(t *testing.T) {
	a := BuildSystemPrompt(Visionary, petUber, "German")
	b := BuildSystemPrompt(Visionary, petUber, "German")
	assert.Equal(t, a, b)
}

func TestLookup(t *testing.T) {
	p, ok := Lookup("mentor")
	assert.True(t, ok)
	assert.Equal(t, TagMentor, p.Tag)

	_, ok = Lookup("nonexistent")
	assert.False(t, ok)

	ids := make([]string, 0, len(All()))
	for _, p := range All() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"shark", "visionary", "skeptic", "mentor"}, ids)
	assert.False(t, strings.Contains(strings.Join(ids, ","), " "))
}
