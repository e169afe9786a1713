package gateway

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

const (
	defaultClaudeModel = "claude-haiku-4-5-20251001"

	turnTemperature = 0.7
	maxTokensPerTurn = 1024

	maxRetries     = 3
	initialBackoff = 1 * time.Second
	backoffMult    = 2
)

// ClaudeProvider talks to the Anthropic Messages API. The API is stateless,
// so each conversation accumulates the full message list locally and resends
// it on every call.
type ClaudeProvider struct {
	model string
}

// NewClaudeProvider creates the provider. An empty model selects the default.
func NewClaudeProvider(model string) *ClaudeProvider {
	if model == "" {
		model = defaultClaudeModel
	}
	return &ClaudeProvider{model: model}
}

func (p *ClaudeProvider) ID() string { return "claude" }

func (p *ClaudeProvider) Configured() bool {
	return os.Getenv("ANTHROPIC_API_KEY") != ""
}

func (p *ClaudeProvider) open(ctx context.Context, systemPrompt string) (conversation, error) {
	return &claudeConversation{
		client: anthropic.NewClient(),
		model:  p.model,
		system: systemPrompt,
	}, nil
}

func (p *ClaudeProvider) complete(ctx context.Context, systemPrompt, input string, temperature float64) (string, error) {
	client := anthropic.NewClient()
	return claudeCall(ctx, &client, p.model, systemPrompt, temperature, []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(input)),
	})
}

type claudeConversation struct {
	client  anthropic.Client
	model   string
	system  string
	history []anthropic.MessageParam
}

// send replays the accumulated transcript plus the new turn. History is only
// appended after a successful round-trip so a transport failure leaves the
// handle exactly where it was.
func (c *claudeConversation) send(ctx context.Context, text string) (string, error) {
	messages := append(append([]anthropic.MessageParam{}, c.history...),
		anthropic.NewUserMessage(anthropic.NewTextBlock(text)))

	raw, err := claudeCall(ctx, &c.client, c.model, c.system, turnTemperature, messages)
	if err != nil {
		return "", err
	}

	c.history = append(c.history,
		anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		anthropic.NewAssistantMessage(anthropic.NewTextBlock(raw)),
	)
	return raw, nil
}

func (c *claudeConversation) prime(history []Message) {
	c.history = c.history[:0]
	for _, m := range history {
		if m.FromUser {
			c.history = append(c.history, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		} else {
			c.history = append(c.history, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		}
	}
}

func claudeCall(ctx context.Context, client *anthropic.Client, model, system string, temperature float64, messages []anthropic.MessageParam) (string, error) {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(model),
			MaxTokens:   maxTokensPerTurn,
			Temperature: anthropic.Float(temperature),
			System: []anthropic.TextBlockParam{
				{Text: system},
			},
			Messages: messages,
		})
		if err != nil {
			lastErr = fmt.Errorf("Claude API error (attempt %d/%d): %w", attempt, maxRetries, err)
			if attempt < maxRetries {
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= time.Duration(backoffMult)
			}
			continue
		}

		text := claudeText(message)
		if text == "" {
			lastErr = fmt.Errorf("empty response from Claude (attempt %d/%d)", attempt, maxRetries)
			if attempt < maxRetries {
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= time.Duration(backoffMult)
			}
			continue
		}

		return text, nil
	}

	return "", lastErr
}

func claudeText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}
