package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider scripts raw replies and errors for tests.
type fakeProvider struct {
	id         string
	configured bool
	replies    []string
	sendErr    error
	opened     int
	sent       []string
}

func (f *fakeProvider) ID() string       { return f.id }
func (f *fakeProvider) Configured() bool { return f.configured }

func (f *fakeProvider) open(ctx context.Context, systemPrompt string) (conversation, error) {
	f.opened++
	return &fakeConversation{provider: f}, nil
}

func (f *fakeProvider) complete(ctx context.Context, systemPrompt, input string, temperature float64) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return f.next()
}

func (f *fakeProvider) next() (string, error) {
	if len(f.replies) == 0 {
		return "", fmt.Errorf("no scripted reply")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

type fakeConversation struct {
	provider *fakeProvider
	primed   []Message
}

func (c *fakeConversation) prime(history []Message) {
	c.primed = append([]Message{}, history...)
}

func (c *fakeConversation) send(ctx context.Context, text string) (string, error) {
	if c.provider.sendErr != nil {
		return "", c.provider.sendErr
	}
	c.provider.sent = append(c.provider.sent, text)
	return c.provider.next()
}

func newTestGateway(p *fakeProvider) *Gateway {
	g := New(nil)
	g.Register(p)
	return g
}

func TestOpenUnknownProvider(t *testing.T) {
	g := newTestGateway(&fakeProvider{id: "fake", configured: true})

	_, err := g.Open(context.Background(), "nope", "prompt")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestOpenUnconfiguredProviderIsConfigError(t *testing.T) {
	g := newTestGateway(&fakeProvider{id: "fake", configured: false})

	_, err := g.Open(context.Background(), "fake", "prompt")
	require.Error(t, err)
	assert.True(t, IsConfig(err))
	assert.False(t, IsTransport(err))
}

func TestConverseDecodesStructuredReply(t *testing.T) {
	p := &fakeProvider{
		id:         "fake",
		configured: true,
		replies:    []string{`{"response": "Numbers?", "interest_change": -18, "is_dealbreaker": false}`},
	}
	g := newTestGateway(p)

	conv, err := g.Open(context.Background(), "fake", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "fake", conv.ProviderID())

	result, err := conv.Converse(context.Background(), "We have no revenue model yet")
	require.NoError(t, err)
	assert.Equal(t, "Numbers?", result.Reply)
	assert.Equal(t, -MaxDelta, result.Delta) // clamped from -18
	assert.Equal(t, []string{"We have no revenue model yet"}, p.sent)
}

func TestConverseDegradesOnGarbage(t *testing.T) {
	p := &fakeProvider{id: "fake", configured: true, replies: []string{"``` total nonsense ```"}}
	g := newTestGateway(p)

	conv, err := g.Open(context.Background(), "fake", "prompt")
	require.NoError(t, err)

	result, err := conv.Converse(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "total nonsense", result.Reply)
	assert.Equal(t, 0, result.Delta)
	assert.False(t, result.Dealbreaker)
}

func TestConverseWrapsTransportError(t *testing.T) {
	p := &fakeProvider{id: "fake", configured: true, sendErr: errors.New("connection refused")}
	g := newTestGateway(p)

	conv, err := g.Open(context.Background(), "fake", "prompt")
	require.NoError(t, err)

	_, err = conv.Converse(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, IsTransport(err))

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "fake", te.Provider)
}

func TestCompleteRoutesToProvider(t *testing.T) {
	p := &fakeProvider{id: "fake", configured: true, replies: []string{`{"score": 44}`}}
	g := newTestGateway(p)

	raw, err := g.Complete(context.Background(), "fake", "sys", "transcript", 0.3)
	require.NoError(t, err)
	assert.Equal(t, `{"score": 44}`, raw)

	_, err = g.Complete(context.Background(), "missing", "sys", "in", 0.3)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestAvailable(t *testing.T) {
	g := New(nil)
	g.Register(&fakeProvider{id: "a", configured: true})
	g.Register(&fakeProvider{id: "b", configured: false})

	assert.Equal(t, map[string]bool{"a": true, "b": false}, g.Available())
	assert.Equal(t, []string{"a", "b"}, g.ProviderIDs())
}
