package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyClampsResult(t *testing.T) {
	tests := []struct {
		name  string
		seed  int
		delta int
		want  int
	}{
		{"upper clamp", 50, 1000, 100},
		{"lower clamp", 50, -1000, 0},
		{"in range positive", 50, 12, 62},
		{"in range negative", 50, -18, 32},
		{"zero delta", 50, 0, 50},
		{"exact upper bound", 90, 10, 100},
		{"exact lower bound", 10, -10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewWithSeed(tt.seed)
			got := tr.Apply(tt.delta)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, tr.Score())
		})
	}
}

func TestTrajectoryGrowsByOnePerApply(t *testing.T) {
	tr := New()
	require.Equal(t, []int{50}, tr.Trajectory())

	deltas := []int{-18, 12, 5, -1000, 7, 2000}
	for i, d := range deltas {
		tr.Apply(d)
		assert.Len(t, tr.Trajectory(), i+2)
	}
	assert.Equal(t, []int{50, 32, 44, 49, 0, 7, 100}, tr.Trajectory())
}

func TestScoreAlwaysWithinBounds(t *testing.T) {
	tr := New()
	deltas := []int{-20, -20, -20, 15, 15, 15, 15, 15, 15, 15, 15, -100, 300}
	for _, d := range deltas {
		got := tr.Apply(d)
		assert.GreaterOrEqual(t, got, MinScore)
		assert.LessOrEqual(t, got, MaxScore)
	}
}

func TestSeedIsClamped(t *testing.T) {
	assert.Equal(t, 100, NewWithSeed(250).Score())
	assert.Equal(t, 0, NewWithSeed(-3).Score())
}

func TestResume(t *testing.T) {
	tr := Resume([]int{50, 32, 44})
	assert.Equal(t, 44, tr.Score())

	tr.Apply(6)
	assert.Equal(t, []int{50, 32, 44, 50}, tr.Trajectory())

	empty := Resume(nil)
	assert.Equal(t, DefaultSeed, empty.Score())
	assert.Equal(t, []int{DefaultSeed}, empty.Trajectory())
}

func TestTrajectoryIsACopy(t *testing.T) {
	tr := New()
	tr.Apply(5)

	got := tr.Trajectory()
	got[0] = 999
	assert.Equal(t, []int{50, 55}, tr.Trajectory())
}
