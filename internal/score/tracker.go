// Package score maintains the bounded interest score for a pitch session
// and the trajectory of values it has passed through.
package score

const (
	// MinScore and MaxScore bound the interest meter.
	MinScore = 0
	MaxScore = 100

	// DefaultSeed is the interest level a counterpart starts a session with.
	DefaultSeed = 50
)

// Tracker holds the current interest score and its full history. Applied
// deltas are clamped on the result, never rejected: an extreme delta simply
// pins the score to a bound. The trajectory grows by exactly one entry per
// Apply call and is never rewritten.
type Tracker struct {
	score      int
	trajectory []int
}

// New creates a tracker seeded at DefaultSeed.
func New() *Tracker {
	return NewWithSeed(DefaultSeed)
}

// NewWithSeed creates a tracker with an explicit starting score. The seed
// itself is clamped into range and becomes the first trajectory entry.
func NewWithSeed(seed int) *Tracker {
	seed = clamp(seed)
	return &Tracker{
		score:      seed,
		trajectory: []int{seed},
	}
}

// Resume rebuilds a tracker from a persisted trajectory. Used when a session
// is reloaded from a snapshot; an empty trajectory falls back to DefaultSeed.
func Resume(trajectory []int) *Tracker {
	if len(trajectory) == 0 {
		return New()
	}
	t := &Tracker{trajectory: make([]int, len(trajectory))}
	copy(t.trajectory, trajectory)
	t.score = clamp(t.trajectory[len(t.trajectory)-1])
	return t
}

// Apply adds delta to the current score, clamps the result into
// [MinScore, MaxScore], records it in the trajectory, and returns the new
// score.
func (t *Tracker) Apply(delta int) int {
	t.score = clamp(t.score + delta)
	t.trajectory = append(t.trajectory, t.score)
	return t.score
}

// Score returns the current interest level.
func (t *Tracker) Score() int {
	return t.score
}

// Trajectory returns a copy of the score history, oldest first. The first
// entry is always the seed value.
func (t *Tracker) Trajectory() []int {
	out := make([]int, len(t.trajectory))
	copy(out, t.trajectory)
	return out
}

func clamp(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
