package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/apresai/pitchroom/internal/gateway"
	"github.com/apresai/pitchroom/internal/persona"
	"github.com/apresai/pitchroom/internal/report"
	"github.com/apresai/pitchroom/internal/score"
)

// scoreFloor terminates the session once the interest score falls to it or
// below. A room at 10 has already checked out.
const scoreFloor = 10

// Conversation is the slice of the gateway handle the machine needs.
// Satisfied by *gateway.Conversation.
type Conversation interface {
	Converse(ctx context.Context, text string) (gateway.TurnResult, error)
	ProviderID() string
}

// Dialer opens provider conversations. Satisfied by *gateway.Gateway through
// gatewayDialer.
type Dialer interface {
	Open(ctx context.Context, providerID, systemPrompt string) (Conversation, error)
	OpenWithHistory(ctx context.Context, providerID, systemPrompt string, history []gateway.Message) (Conversation, error)
}

// NewDialer adapts a *gateway.Gateway to the Dialer interface.
func NewDialer(g *gateway.Gateway) Dialer { return gatewayDialer{g} }

type gatewayDialer struct {
	g *gateway.Gateway
}

func (d gatewayDialer) Open(ctx context.Context, providerID, systemPrompt string) (Conversation, error) {
	return d.g.Open(ctx, providerID, systemPrompt)
}

func (d gatewayDialer) OpenWithHistory(ctx context.Context, providerID, systemPrompt string, history []gateway.Message) (Conversation, error) {
	return d.g.OpenWithHistory(ctx, providerID, systemPrompt, history)
}

// TurnOutcome is what a founder turn produced.
type TurnOutcome struct {
	Reply      string            `json:"reply"`
	Delta      int               `json:"delta"`
	Score      int               `json:"score"`
	Terminated bool              `json:"terminated"`
	Reason     TerminationReason `json:"termination_reason,omitempty"`
}

// Machine is one session's state machine. All mutation happens under the
// mutex; the provider round-trip itself runs outside it, guarded by the
// in-flight flag so only one turn can be pending at a time.
type Machine struct {
	mu       sync.Mutex
	inFlight bool

	id       string
	owner    string
	title    string
	pinned   bool
	status   Status
	provider string
	persona  persona.Persona
	startup  persona.Startup
	locale   string

	transcript []Turn
	tracker    *score.Tracker
	reason     TerminationReason
	report     *report.Report
	createdAt  time.Time
	updatedAt  time.Time

	dialer Dialer
	conv   Conversation
	now    func() time.Time
}

// NewMachine creates a session in SETUP. It holds no conversation until
// Start succeeds.
func NewMachine(id string, dialer Dialer, providerID string, p persona.Persona, s persona.Startup, locale, owner string) *Machine {
	if locale == "" {
		locale = persona.DefaultLocale
	}
	m := &Machine{
		id:       id,
		owner:    owner,
		title:    s.Name,
		status:   StatusSetup,
		provider: providerID,
		persona:  p,
		startup:  s,
		locale:   locale,
		tracker:  score.New(),
		dialer:   dialer,
		now:      time.Now,
	}
	m.createdAt = m.now().UTC()
	m.updatedAt = m.createdAt
	return m
}

func (m *Machine) ID() string { return m.id }

// Owner returns the session's owner, fixed at creation.
func (m *Machine) Owner() string { return m.owner }

// Start opens the provider conversation and plays the synthetic opening cue.
// The counterpart's reply becomes the first transcript turn; its delta, if
// any, is discarded. On any failure the session stays in SETUP and Start may
// be called again.
func (m *Machine) Start(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.status != StatusSetup {
		m.mu.Unlock()
		return "", validationf("session %s already started (status %s)", m.id, m.status)
	}
	if m.inFlight {
		m.mu.Unlock()
		return "", ErrTurnInFlight
	}
	m.inFlight = true
	m.mu.Unlock()
	defer m.clearInFlight()

	prompt := persona.BuildSystemPrompt(m.persona, m.startup, m.locale)
	conv, err := m.dialer.Open(ctx, m.provider, prompt)
	if err != nil {
		return "", err
	}

	result, err := conv.Converse(ctx, OpeningCue)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.conv = conv
	m.transcript = append(m.transcript,
		Turn{Role: RoleFounder, Text: OpeningCue},
		Turn{Role: RoleCounterpart, Text: result.Reply},
	)
	m.status = StatusActive
	m.updatedAt = m.now().UTC()
	return result.Reply, nil
}

// SubmitTurn sends one founder answer and applies the counterpart's scored
// reply. A transport error leaves the session untouched; resubmitting the
// same text is safe. Only one turn may be in flight at a time.
func (m *Machine) SubmitTurn(ctx context.Context, text string) (TurnOutcome, error) {
	text = strings.TrimSpace(text)

	m.mu.Lock()
	if m.status != StatusActive {
		m.mu.Unlock()
		return TurnOutcome{}, validationf("session %s is not active (status %s)", m.id, m.status)
	}
	if m.inFlight {
		m.mu.Unlock()
		return TurnOutcome{}, ErrTurnInFlight
	}
	if text == "" {
		m.mu.Unlock()
		return TurnOutcome{}, validationf("turn text is empty")
	}
	m.inFlight = true
	conv := m.conv
	m.mu.Unlock()
	defer m.clearInFlight()

	// The founder turn is committed together with the reply, after the
	// round-trip succeeds. A transport failure therefore rolls back to the
	// pre-submit transcript for free, and a concurrent Snapshot never sees a
	// founder turn with no counterpart answer.
	result, err := conv.Converse(ctx, text)
	if err != nil {
		return TurnOutcome{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// EndEarly may have raced the round-trip. The session's terminal state
	// wins; the late reply is discarded.
	if m.status != StatusActive {
		return TurnOutcome{}, validationf("session %s ended while the turn was in flight", m.id)
	}

	newScore := m.tracker.Apply(result.Delta)
	delta := result.Delta
	m.transcript = append(m.transcript,
		Turn{Role: RoleFounder, Text: text},
		Turn{Role: RoleCounterpart, Text: result.Reply, Delta: &delta},
	)

	outcome := TurnOutcome{Reply: result.Reply, Delta: result.Delta, Score: newScore}

	// Dealbreaker outranks the floor: a fatal answer ends the meeting even
	// if the score would survive it.
	switch {
	case result.Dealbreaker:
		m.status = StatusTerminated
		m.reason = ReasonDealbreaker
	case newScore <= scoreFloor:
		m.status = StatusTerminated
		m.reason = ReasonScoreFloor
	}
	if m.status == StatusTerminated {
		outcome.Terminated = true
		outcome.Reason = m.reason
	}
	m.updatedAt = m.now().UTC()
	return outcome, nil
}

// EndEarly terminates an active session at the founder's request. Legal even
// while a turn is in flight; the late reply is then discarded.
func (m *Machine) EndEarly() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusActive {
		return validationf("session %s is not active (status %s)", m.id, m.status)
	}
	m.status = StatusTerminated
	m.reason = ReasonUserEnded
	m.updatedAt = m.now().UTC()
	return nil
}

// AttachReport moves a terminated session to REPORTED. Attaching twice is
// rejected; the first report stands.
func (m *Machine) AttachReport(r *report.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusTerminated {
		return validationf("session %s cannot take a report (status %s)", m.id, m.status)
	}
	m.report = r
	m.status = StatusReported
	m.updatedAt = m.now().UTC()
	return nil
}

// Report returns the attached report, if any.
func (m *Machine) Report() *report.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report
}

// Status returns the current lifecycle phase.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SetTitle renames the session.
func (m *Machine) SetTitle(title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.title = title
	m.updatedAt = m.now().UTC()
}

// SetPinned marks or unmarks the session as pinned.
func (m *Machine) SetPinned(pinned bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned = pinned
	m.updatedAt = m.now().UTC()
}

// Snapshot returns a deep copy of the session state. Safe to call in any
// state, including while a turn is in flight; the copy never contains a
// half-committed turn.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	transcript := make([]Turn, len(m.transcript))
	for i, t := range m.transcript {
		transcript[i] = t
		if t.Delta != nil {
			d := *t.Delta
			transcript[i].Delta = &d
		}
	}

	var rep *report.Report
	if m.report != nil {
		r := *m.report
		r.Strengths = append([]string{}, m.report.Strengths...)
		r.Weaknesses = append([]string{}, m.report.Weaknesses...)
		rep = &r
	}

	return Snapshot{
		ID:         m.id,
		Owner:      m.owner,
		Title:      m.title,
		Pinned:     m.pinned,
		Status:     m.status,
		Provider:   m.provider,
		Persona:    m.persona,
		Startup:    m.startup,
		Locale:     m.locale,
		Transcript: transcript,
		Score:      m.tracker.Score(),
		Trajectory: m.tracker.Trajectory(),
		Reason:     m.reason,
		Report:     rep,
		CreatedAt:  m.createdAt,
		UpdatedAt:  m.updatedAt,
	}
}

// Resume rebuilds a machine from a persisted snapshot. An ACTIVE session gets
// a fresh conversation primed with the stored transcript; providers replay
// statelessly, so the rebuilt handle picks up exactly where the old one
// stopped.
func Resume(ctx context.Context, dialer Dialer, snap Snapshot) (*Machine, error) {
	m := &Machine{
		id:         snap.ID,
		owner:      snap.Owner,
		title:      snap.Title,
		pinned:     snap.Pinned,
		status:     snap.Status,
		provider:   snap.Provider,
		persona:    snap.Persona,
		startup:    snap.Startup,
		locale:     snap.Locale,
		transcript: append([]Turn{}, snap.Transcript...),
		tracker:    score.Resume(snap.Trajectory),
		reason:     snap.Reason,
		report:     snap.Report,
		createdAt:  snap.CreatedAt,
		updatedAt:  snap.UpdatedAt,
		dialer:     dialer,
		now:        time.Now,
	}
	if m.locale == "" {
		m.locale = persona.DefaultLocale
	}

	if snap.Status == StatusActive {
		prompt := persona.BuildSystemPrompt(snap.Persona, snap.Startup, m.locale)
		history := make([]gateway.Message, 0, len(snap.Transcript))
		for _, t := range snap.Transcript {
			history = append(history, gateway.Message{FromUser: t.Role == RoleFounder, Text: t.Text})
		}
		conv, err := dialer.OpenWithHistory(ctx, snap.Provider, prompt, history)
		if err != nil {
			return nil, err
		}
		m.conv = conv
	}
	return m, nil
}

func (m *Machine) clearInFlight() {
	m.mu.Lock()
	m.inFlight = false
	m.mu.Unlock()
}
