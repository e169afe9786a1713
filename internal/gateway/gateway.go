// Package gateway adapts the pitch session machine to interchangeable
// text-generation providers. Provider responses are untrusted free text that
// is supposed to encode structured data, so every conversational turn runs
// through a decode-with-degradation pipeline: a malformed reply becomes a
// neutral turn instead of an error, while transport failures stay visible and
// retryable.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("pitchroom-gateway")

// MaxDelta bounds the model-reported interest change to ±15, regardless of
// what the model claims. This is independent of the score tracker's own
// [0,100] clamp — a second bound specifically against malformed or
// adversarial provider output claiming extreme swings.
const MaxDelta = 15

// callTimeout caps a single provider round-trip. A call that exceeds it is a
// transport error, not a hang.
const callTimeout = 30 * time.Second

// TurnResult is the structured outcome of one counterpart turn.
type TurnResult struct {
	Reply       string
	Delta       int
	Dealbreaker bool
}

// TransportError reports a provider that could not be reached or answered
// with a non-2xx status. It is retryable: the caller resubmits the same turn
// and no session state has changed.
type TransportError struct {
	Provider string
	Status   int // HTTP status when known, 0 otherwise
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s provider transport error (status %d): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s provider transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ConfigError reports a provider that cannot be used because its credentials
// or client configuration are missing. Fatal for session start.
type ConfigError struct {
	Provider string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s provider not configured: %s", e.Provider, e.Reason)
}

// IsConfig reports whether err is (or wraps) a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ErrUnknownProvider is returned by Open for a provider ID that was never
// registered.
var ErrUnknownProvider = errors.New("unknown provider")

// Message is one prior exchange unit used to rebuild a conversation from a
// persisted transcript.
type Message struct {
	FromUser bool
	Text     string
}

// conversation is the provider-side contract: send one user turn, get raw
// text back. Adapters decide internally whether to carry server-side state or
// replay the accumulated transcript on every call; callers never see the
// difference.
type conversation interface {
	send(ctx context.Context, text string) (string, error)
	// prime seeds the adapter's local history, replacing whatever it held.
	prime(history []Message)
}

// Provider is one text-generation backend.
type Provider interface {
	// ID is the stable identifier sessions are bound to (e.g. "claude").
	ID() string
	// Configured reports whether the provider has usable credentials
	// without making a network call.
	Configured() bool
	// open establishes a conversation seeded with the system prompt.
	open(ctx context.Context, systemPrompt string) (conversation, error)
	// complete is a one-shot generation used for report synthesis.
	complete(ctx context.Context, systemPrompt, input string, temperature float64) (string, error)
}

// Gateway routes conversations to registered providers. It is safe for
// concurrent use across sessions; the only shared state is each provider's
// outbound HTTP client.
type Gateway struct {
	providers map[string]Provider
	order     []string
	log       *slog.Logger
}

// New creates an empty gateway.
func New(log *slog.Logger) *Gateway {
	return &Gateway{
		providers: make(map[string]Provider),
		log:       log,
	}
}

// Default creates a gateway with the three built-in providers registered.
func Default(log *slog.Logger) *Gateway {
	g := New(log)
	g.Register(NewClaudeProvider(""))
	g.Register(NewGeminiProvider(""))
	g.Register(NewNovaProvider(""))
	return g
}

// Register adds a provider. Later registrations with the same ID replace
// earlier ones.
func (g *Gateway) Register(p Provider) {
	if _, exists := g.providers[p.ID()]; !exists {
		g.order = append(g.order, p.ID())
	}
	g.providers[p.ID()] = p
}

// Available maps each registered provider ID to whether it currently has
// credentials.
func (g *Gateway) Available() map[string]bool {
	out := make(map[string]bool, len(g.providers))
	for id, p := range g.providers {
		out[id] = p.Configured()
	}
	return out
}

// ProviderIDs returns the registered provider IDs in registration order.
func (g *Gateway) ProviderIDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Open establishes a conversation bound to one provider for its lifetime.
// Mid-conversation provider switching is not supported. Returns a ConfigError
// when the provider has no usable credentials.
func (g *Gateway) Open(ctx context.Context, providerID, systemPrompt string) (*Conversation, error) {
	p, ok := g.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, providerID)
	}
	if !p.Configured() {
		return nil, &ConfigError{Provider: providerID, Reason: "missing credentials"}
	}

	conv, err := p.open(ctx, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("open %s conversation: %w", providerID, err)
	}

	return &Conversation{
		providerID: providerID,
		conv:       conv,
		log:        g.log,
	}, nil
}

// OpenWithHistory establishes a conversation preloaded with a prior
// transcript. Providers here are all stateless-replay, so a handle rebuilt
// from persisted turns behaves identically to the one that produced them.
func (g *Gateway) OpenWithHistory(ctx context.Context, providerID, systemPrompt string, history []Message) (*Conversation, error) {
	c, err := g.Open(ctx, providerID, systemPrompt)
	if err != nil {
		return nil, err
	}
	c.conv.prime(history)
	return c, nil
}

// Complete runs a one-shot generation against a provider, outside any
// conversation. Used by report generation, which wants a lower temperature
// than conversational turns.
func (g *Gateway) Complete(ctx context.Context, providerID, systemPrompt, input string, temperature float64) (string, error) {
	p, ok := g.providers[providerID]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, providerID)
	}
	if !p.Configured() {
		return "", &ConfigError{Provider: providerID, Reason: "missing credentials"}
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "gateway.complete")
	defer span.End()
	span.SetAttributes(attribute.String("provider", providerID))

	raw, err := p.complete(ctx, systemPrompt, input, temperature)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "complete failed")
		return "", asTransport(providerID, err)
	}
	return raw, nil
}

// Conversation is a handle bound to one provider conversation.
type Conversation struct {
	providerID string
	conv       conversation
	log        *slog.Logger
}

// ProviderID returns the provider this handle is bound to.
func (c *Conversation) ProviderID() string { return c.providerID }

// Converse sends one founder turn and decodes the provider's reply into a
// TurnResult. Transport failures surface as *TransportError; malformed output
// never errors — it degrades into a neutral reply with delta 0.
func (c *Conversation) Converse(ctx context.Context, text string) (TurnResult, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "gateway.converse")
	defer span.End()
	span.SetAttributes(attribute.String("provider", c.providerID))

	raw, err := c.conv.send(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return TurnResult{}, asTransport(c.providerID, err)
	}

	result, degraded := DecodeTurn(raw)
	if degraded && c.log != nil {
		c.log.WarnContext(ctx, "Provider reply was not valid JSON, degraded to neutral turn",
			"provider", c.providerID, "raw_len", len(raw))
	}
	span.SetAttributes(
		attribute.Int("delta", result.Delta),
		attribute.Bool("dealbreaker", result.Dealbreaker),
		attribute.Bool("degraded", degraded),
	)
	return result, nil
}

// asTransport wraps provider errors into *TransportError, preserving ones
// already typed (including ConfigError, which passes through unchanged).
func asTransport(providerID string, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return err
	}
	return &TransportError{Provider: providerID, Err: err}
}
