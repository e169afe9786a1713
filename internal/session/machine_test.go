package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/pitchroom/internal/gateway"
	"github.com/apresai/pitchroom/internal/persona"
)

// scriptedConversation replays canned TurnResults. A nil err entry with a
// zero result blocks until released, for in-flight tests.
type scriptedTurn struct {
	result gateway.TurnResult
	err    error
	block  chan struct{}
}

type scriptedConversation struct {
	mu       sync.Mutex
	provider string
	turns    []scriptedTurn
	sent     []string
	entered  chan struct{}
}

func (c *scriptedConversation) ProviderID() string { return c.provider }

func (c *scriptedConversation) Converse(ctx context.Context, text string) (gateway.TurnResult, error) {
	c.mu.Lock()
	if len(c.turns) == 0 {
		c.mu.Unlock()
		return gateway.TurnResult{}, fmt.Errorf("no scripted turn for %q", text)
	}
	turn := c.turns[0]
	c.turns = c.turns[1:]
	c.sent = append(c.sent, text)
	c.mu.Unlock()

	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if turn.block != nil {
		<-turn.block
	}
	return turn.result, turn.err
}

type scriptedDialer struct {
	conv    *scriptedConversation
	openErr error
	opens   int
	history []gateway.Message
}

func (d *scriptedDialer) Open(ctx context.Context, providerID, systemPrompt string) (Conversation, error) {
	d.opens++
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.conv, nil
}

func (d *scriptedDialer) OpenWithHistory(ctx context.Context, providerID, systemPrompt string, history []gateway.Message) (Conversation, error) {
	d.history = append([]gateway.Message{}, history...)
	return d.Open(ctx, providerID, systemPrompt)
}

func reply(text string, delta int, dealbreaker bool) scriptedTurn {
	return scriptedTurn{result: gateway.TurnResult{Reply: text, Delta: delta, Dealbreaker: dealbreaker}}
}

func newTestMachine(t *testing.T, turns ...scriptedTurn) (*Machine, *scriptedDialer) {
	t.Helper()
	shark, ok := persona.Lookup("shark")
	require.True(t, ok)

	dialer := &scriptedDialer{conv: &scriptedConversation{provider: "fake", turns: turns}}
	m := NewMachine("01TEST", dialer, "fake",
		shark, persona.Startup{Name: "PetUber", Description: "Uber for pets"}, "", "founder-1")
	return m, dialer
}

func startedMachine(t *testing.T, turns ...scriptedTurn) *Machine {
	t.Helper()
	all := append([]scriptedTurn{reply("So. Pitch me.", 0, false)}, turns...)
	m, _ := newTestMachine(t, all...)
	opening, err := m.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, "So. Pitch me.", opening)
	return m
}

func TestStartSeedsSessionAtFifty(t *testing.T) {
	m := startedMachine(t)

	snap := m.Snapshot()
	assert.Equal(t, StatusActive, snap.Status)
	assert.Equal(t, 50, snap.Score)
	assert.Equal(t, []int{50}, snap.Trajectory)
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, RoleFounder, snap.Transcript[0].Role)
	assert.Equal(t, OpeningCue, snap.Transcript[0].Text)
	assert.Equal(t, RoleCounterpart, snap.Transcript[1].Role)
	assert.Nil(t, snap.Transcript[1].Delta, "opening turn carries no delta")
}

func TestStartOpeningDeltaIsDiscarded(t *testing.T) {
	m, _ := newTestMachine(t, reply("Impress me.", 12, false))

	_, err := m.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, m.Snapshot().Score)
	assert.Equal(t, []int{50}, m.Snapshot().Trajectory)
}

func TestStartFailureStaysInSetup(t *testing.T) {
	m, dialer := newTestMachine(t)
	dialer.conv.turns = []scriptedTurn{
		{err: &gateway.TransportError{Provider: "fake", Err: fmt.Errorf("down")}},
		reply("Fine, talk.", 0, false),
	}

	_, err := m.Start(context.Background())
	require.Error(t, err)
	assert.True(t, gateway.IsTransport(err))
	assert.Equal(t, StatusSetup, m.Snapshot().Status)
	assert.Empty(t, m.Snapshot().Transcript)

	// Retryable: the second attempt succeeds.
	opening, err := m.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Fine, talk.", opening)
	assert.Equal(t, StatusActive, m.Snapshot().Status)
}

func TestSubmitTurnAppliesClampedDelta(t *testing.T) {
	m := startedMachine(t,
		reply("No revenue? Seriously?", -18, false),
		reply("Better.", 12, false),
	)

	out, err := m.SubmitTurn(context.Background(), "We have no revenue yet")
	require.NoError(t, err)
	assert.Equal(t, -18, out.Delta)
	assert.Equal(t, 32, out.Score)
	assert.False(t, out.Terminated)

	out, err = m.SubmitTurn(context.Background(), "But we signed three enterprise pilots")
	require.NoError(t, err)
	assert.Equal(t, 44, out.Score)

	snap := m.Snapshot()
	assert.Equal(t, []int{50, 32, 44}, snap.Trajectory)
	require.Len(t, snap.Transcript, 6)
	require.NotNil(t, snap.Transcript[3].Delta)
	assert.Equal(t, -18, *snap.Transcript[3].Delta)
}

func TestSubmitTurnEmptyTextRejectedWithoutMutation(t *testing.T) {
	m := startedMachine(t)
	before := m.Snapshot()

	_, err := m.SubmitTurn(context.Background(), "   \n\t ")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, before, m.Snapshot())
}

func TestSubmitTurnTransportErrorRollsBack(t *testing.T) {
	m := startedMachine(t,
		scriptedTurn{err: &gateway.TransportError{Provider: "fake", Err: fmt.Errorf("timeout")}},
		reply("Go on.", 3, false),
	)
	before := m.Snapshot()

	_, err := m.SubmitTurn(context.Background(), "Our CAC is $40")
	require.Error(t, err)
	assert.True(t, gateway.IsTransport(err))
	assert.Equal(t, before, m.Snapshot(), "failed turn must leave no trace")

	// Resubmitting the same turn works.
	out, err := m.SubmitTurn(context.Background(), "Our CAC is $40")
	require.NoError(t, err)
	assert.Equal(t, 53, out.Score)
}

func TestSubmitTurnDealbreakerTerminatesRegardlessOfScore(t *testing.T) {
	m := startedMachine(t, reply("We're done here.", 15, true))

	out, err := m.SubmitTurn(context.Background(), "Honestly we made the numbers up")
	require.NoError(t, err)
	assert.True(t, out.Terminated)
	assert.Equal(t, ReasonDealbreaker, out.Reason)
	assert.Equal(t, 65, out.Score, "positive delta still applies before termination")
	assert.Equal(t, StatusTerminated, m.Snapshot().Status)
}

func TestSubmitTurnScoreFloorBoundary(t *testing.T) {
	// Lands exactly on 11: survives.
	m := startedMachine(t, reply("Hm.", -15, false), reply("Hm.", -15, false), reply("Hm.", -9, false))
	out, err := m.SubmitTurn(context.Background(), "a")
	require.NoError(t, err)
	out, err = m.SubmitTurn(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 20, out.Score)
	out, err = m.SubmitTurn(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, 11, out.Score)
	assert.False(t, out.Terminated)

	// Lands exactly on 10: terminates with SCORE_FLOOR.
	m = startedMachine(t, reply("Hm.", -15, false), reply("Hm.", -15, false), reply("Out.", -10, false))
	_, err = m.SubmitTurn(context.Background(), "a")
	require.NoError(t, err)
	_, err = m.SubmitTurn(context.Background(), "b")
	require.NoError(t, err)
	out, err = m.SubmitTurn(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, 10, out.Score)
	assert.True(t, out.Terminated)
	assert.Equal(t, ReasonScoreFloor, out.Reason)
}

func TestSubmitTurnRejectedWhileInFlight(t *testing.T) {
	block := make(chan struct{})
	m, dialer := newTestMachine(t,
		reply("So. Pitch me.", 0, false),
		scriptedTurn{result: gateway.TurnResult{Reply: "Slow answer.", Delta: 1}, block: block},
	)
	_, err := m.Start(context.Background())
	require.NoError(t, err)
	dialer.conv.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := m.SubmitTurn(context.Background(), "first")
		done <- err
	}()
	<-dialer.conv.entered

	_, err = m.SubmitTurn(context.Background(), "second")
	assert.ErrorIs(t, err, ErrTurnInFlight)

	close(block)
	require.NoError(t, <-done)
	assert.Equal(t, 51, m.Snapshot().Score)
}

func TestEndEarlyDiscardsInFlightReply(t *testing.T) {
	block := make(chan struct{})
	m, dialer := newTestMachine(t,
		reply("So. Pitch me.", 0, false),
		scriptedTurn{result: gateway.TurnResult{Reply: "Too late.", Delta: 9}, block: block},
	)
	_, err := m.Start(context.Background())
	require.NoError(t, err)
	dialer.conv.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := m.SubmitTurn(context.Background(), "wait for it")
		done <- err
	}()
	<-dialer.conv.entered

	require.NoError(t, m.EndEarly())
	close(block)

	err = <-done
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	snap := m.Snapshot()
	assert.Equal(t, StatusTerminated, snap.Status)
	assert.Equal(t, ReasonUserEnded, snap.Reason)
	assert.Equal(t, 50, snap.Score, "late reply must not score")
	assert.Len(t, snap.Transcript, 2, "late reply must not land in the transcript")
}

func TestTerminatedSessionRejectsTurns(t *testing.T) {
	m := startedMachine(t, reply("Get out.", -15, true))

	_, err := m.SubmitTurn(context.Background(), "our TAM is huge")
	require.NoError(t, err)

	_, err = m.SubmitTurn(context.Background(), "wait, one more thing")
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	err = m.EndEarly()
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	m := startedMachine(t, reply("Fine.", 5, false))
	_, err := m.SubmitTurn(context.Background(), "numbers attached")
	require.NoError(t, err)

	snap := m.Snapshot()
	snap.Trajectory[0] = 999
	*snap.Transcript[3].Delta = 999
	snap.Transcript[0].Text = "tampered"

	fresh := m.Snapshot()
	assert.Equal(t, []int{50, 55}, fresh.Trajectory)
	assert.Equal(t, 5, *fresh.Transcript[3].Delta)
	assert.Equal(t, OpeningCue, fresh.Transcript[0].Text)
}

func TestResumeRebuildsActiveSession(t *testing.T) {
	m := startedMachine(t, reply("Hm, go on.", -7, false))
	_, err := m.SubmitTurn(context.Background(), "We charge per walk")
	require.NoError(t, err)
	snap := m.Snapshot()

	dialer := &scriptedDialer{conv: &scriptedConversation{
		provider: "fake",
		turns:    []scriptedTurn{reply("Now we're talking.", 10, false)},
	}}
	resumed, err := Resume(context.Background(), dialer, snap)
	require.NoError(t, err)

	got := resumed.Snapshot()
	assert.Equal(t, snap.Trajectory, got.Trajectory)
	assert.Equal(t, snap.Transcript, got.Transcript)
	require.Len(t, dialer.history, 4, "conversation must be primed with the stored transcript")
	assert.True(t, dialer.history[0].FromUser)
	assert.Equal(t, OpeningCue, dialer.history[0].Text)

	out, err := resumed.SubmitTurn(context.Background(), "Margins are 60%")
	require.NoError(t, err)
	assert.Equal(t, 53, out.Score)
}

func TestResumeTerminatedSessionOpensNoConversation(t *testing.T) {
	m := startedMachine(t)
	require.NoError(t, m.EndEarly())

	dialer := &scriptedDialer{conv: &scriptedConversation{provider: "fake"}}
	resumed, err := Resume(context.Background(), dialer, m.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, 0, dialer.opens)
	assert.Equal(t, StatusTerminated, resumed.Status())
}
