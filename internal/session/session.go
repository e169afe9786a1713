// Package session implements the pitch session lifecycle: a founder pitches
// an AI counterpart, each answer moves an interest score, and the session
// terminates on a dealbreaker, a collapsed score, or the founder walking out.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apresai/pitchroom/internal/persona"
	"github.com/apresai/pitchroom/internal/report"
)

// Status is the lifecycle phase of a session.
type Status string

const (
	// StatusSetup exists between creation and the first successful provider
	// round-trip. A failed start leaves the session here, retryable.
	StatusSetup Status = "SETUP"
	// StatusActive accepts founder turns.
	StatusActive Status = "ACTIVE"
	// StatusTerminated no longer accepts turns; a report may be attached.
	StatusTerminated Status = "TERMINATED"
	// StatusReported is final.
	StatusReported Status = "REPORTED"
)

// Role identifies who spoke a transcript turn.
type Role string

const (
	RoleFounder     Role = "user"
	RoleCounterpart Role = "counterpart"
)

// TerminationReason records why a session stopped accepting turns.
type TerminationReason string

const (
	ReasonDealbreaker TerminationReason = "DEALBREAKER"
	ReasonScoreFloor  TerminationReason = "SCORE_FLOOR"
	ReasonUserEnded   TerminationReason = "USER_ENDED"
)

// OpeningCue is the synthetic founder turn that seeds every conversation. The
// counterpart's reply to it opens the meeting; the cue itself carries no
// score delta.
const OpeningCue = "The founder has entered the room. Start the meeting."

// Turn is one transcript entry. Delta is set only on scored counterpart
// turns; the opening counterpart turn and all founder turns leave it nil.
type Turn struct {
	Role  Role   `json:"role"`
	Text  string `json:"text"`
	Delta *int   `json:"delta,omitempty"`
}

// Snapshot is the complete persistable state of a session. Resuming from a
// snapshot reproduces a machine indistinguishable from the one that wrote it.
type Snapshot struct {
	ID         string            `json:"id"`
	Owner      string            `json:"owner,omitempty"`
	Title      string            `json:"title,omitempty"`
	Pinned     bool              `json:"pinned,omitempty"`
	Status     Status            `json:"status"`
	Provider   string            `json:"provider"`
	Persona    persona.Persona   `json:"persona"`
	Startup    persona.Startup   `json:"startup"`
	Locale     string            `json:"locale,omitempty"`
	Transcript []Turn            `json:"transcript"`
	Score      int               `json:"score"`
	Trajectory []int             `json:"trajectory"`
	Reason     TerminationReason `json:"termination_reason,omitempty"`
	Report     *report.Report    `json:"report,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// SnapshotStore persists snapshots after every accepted state change. A store
// failure loses at most the in-flight turn; it never fails the turn itself.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	LoadSnapshot(ctx context.Context, id string) (Snapshot, error)
}

// ErrTurnInFlight rejects a founder turn submitted while a previous one is
// still waiting on the provider.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// ErrSessionNotFound is returned by registries and stores for unknown IDs.
var ErrSessionNotFound = errors.New("session not found")

// ValidationError rejects caller input without touching session state.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
