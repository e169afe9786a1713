package gateway

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const defaultNovaModel = "us.amazon.nova-2-lite-v1:0"

// NovaProvider talks to Amazon Bedrock's Converse API. The client is built
// lazily on first open so that an unconfigured AWS environment surfaces as a
// ConfigError at session start rather than a crash at process start.
type NovaProvider struct {
	model string

	mu     sync.Mutex
	client *bedrockruntime.Client
}

// NewNovaProvider creates the provider. An empty model selects the default.
func NewNovaProvider(model string) *NovaProvider {
	if model == "" {
		model = defaultNovaModel
	}
	return &NovaProvider{model: model}
}

func (p *NovaProvider) ID() string { return "nova" }

func (p *NovaProvider) Configured() bool {
	// Bedrock auth flows through the AWS credential chain; env vars are the
	// cheapest signal available without a network call.
	return os.Getenv("AWS_ACCESS_KEY_ID") != "" ||
		os.Getenv("AWS_PROFILE") != "" ||
		os.Getenv("AWS_CONTAINER_CREDENTIALS_RELATIVE_URI") != "" ||
		os.Getenv("AWS_WEB_IDENTITY_TOKEN_FILE") != ""
}

func (p *NovaProvider) getClient(ctx context.Context) (*bedrockruntime.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, &ConfigError{Provider: "nova", Reason: fmt.Sprintf("load AWS config: %v", err)}
	}
	p.client = bedrockruntime.NewFromConfig(cfg)
	return p.client, nil
}

func (p *NovaProvider) open(ctx context.Context, systemPrompt string) (conversation, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return &novaConversation{
		client: client,
		model:  p.model,
		system: systemPrompt,
	}, nil
}

func (p *NovaProvider) complete(ctx context.Context, systemPrompt, input string, temperature float64) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}
	return novaCall(ctx, client, p.model, systemPrompt, temperature, []types.Message{
		{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: input}},
		},
	})
}

type novaConversation struct {
	client  *bedrockruntime.Client
	model   string
	system  string
	history []types.Message
}

func (c *novaConversation) send(ctx context.Context, text string) (string, error) {
	messages := append(append([]types.Message{}, c.history...), types.Message{
		Role:    types.ConversationRoleUser,
		Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
	})

	raw, err := novaCall(ctx, c.client, c.model, c.system, turnTemperature, messages)
	if err != nil {
		return "", err
	}

	c.history = append(c.history,
		types.Message{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
		},
		types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: raw}},
		},
	)
	return raw, nil
}

func (c *novaConversation) prime(history []Message) {
	c.history = c.history[:0]
	for _, m := range history {
		role := types.ConversationRoleAssistant
		if m.FromUser {
			role = types.ConversationRoleUser
		}
		c.history = append(c.history, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Text}},
		})
	}
}

func novaCall(ctx context.Context, client *bedrockruntime.Client, model, system string, temperature float64, messages []types.Message) (string, error) {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		resp, err := client.Converse(ctx, &bedrockruntime.ConverseInput{
			ModelId: aws.String(model),
			System: []types.SystemContentBlock{
				&types.SystemContentBlockMemberText{Value: system},
			},
			Messages: messages,
			InferenceConfig: &types.InferenceConfiguration{
				MaxTokens:   aws.Int32(1024),
				Temperature: aws.Float32(float32(temperature)),
			},
		})
		if err != nil {
			lastErr = fmt.Errorf("Bedrock Converse error (attempt %d/%d): %w", attempt, maxRetries, err)
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

		if text := novaText(resp); text != "" {
			return text, nil
		}
		lastErr = fmt.Errorf("empty response from Bedrock (attempt %d/%d)", attempt, maxRetries)
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= time.Duration(backoffMult)
		}
	}

	return "", lastErr
}

func novaText(resp *bedrockruntime.ConverseOutput) string {
	if resp.Output == nil {
		return ""
	}
	msg, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			return tb.Value
		}
	}
	return ""
}
