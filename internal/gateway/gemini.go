package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	defaultGeminiModel     = "gemini-2.5-flash"
	geminiGenerateEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"
)

// GeminiProvider talks to the Generative Language API over plain HTTP.
// Conversations replay the full contents list on every call; the
// systemInstruction and JSON response mime type ride along with each request.
type GeminiProvider struct {
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewGeminiProvider creates the provider. An empty model selects the default.
// The API key is read from GEMINI_API_KEY.
func NewGeminiProvider(model string) *GeminiProvider {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{
		model:      model,
		apiKey:     os.Getenv("GEMINI_API_KEY"),
		httpClient: &http.Client{Timeout: callTimeout},
	}
}

func (p *GeminiProvider) ID() string { return "gemini" }

func (p *GeminiProvider) Configured() bool { return p.apiKey != "" }

func (p *GeminiProvider) open(ctx context.Context, systemPrompt string) (conversation, error) {
	return &geminiConversation{
		provider: p,
		system:   systemPrompt,
	}, nil
}

func (p *GeminiProvider) complete(ctx context.Context, systemPrompt, input string, temperature float64) (string, error) {
	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: input}}},
		},
		GenerationConfig: &geminiGenCfg{
			Temperature:      temperature,
			MaxOutputTokens:  2048,
			ResponseMimeType: "application/json",
		},
	}
	return p.doRequest(ctx, req)
}

// geminiRequest is the generateContent request body.
type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  *geminiGenCfg   `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenCfg struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type geminiConversation struct {
	provider *GeminiProvider
	system   string
	contents []geminiContent
}

func (c *geminiConversation) send(ctx context.Context, text string) (string, error) {
	contents := append(append([]geminiContent{}, c.contents...),
		geminiContent{Role: "user", Parts: []geminiPart{{Text: text}}})

	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: c.system}}},
		Contents:          contents,
		GenerationConfig: &geminiGenCfg{
			Temperature:      turnTemperature,
			MaxOutputTokens:  1024,
			ResponseMimeType: "application/json",
		},
	}

	raw, err := c.provider.doRequest(ctx, req)
	if err != nil {
		return "", err
	}

	c.contents = append(c.contents,
		geminiContent{Role: "user", Parts: []geminiPart{{Text: text}}},
		geminiContent{Role: "model", Parts: []geminiPart{{Text: raw}}},
	)
	return raw, nil
}

func (c *geminiConversation) prime(history []Message) {
	c.contents = c.contents[:0]
	for _, m := range history {
		role := "model"
		if m.FromUser {
			role = "user"
		}
		c.contents = append(c.contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Text}}})
	}
}

func (p *GeminiProvider) doRequest(ctx context.Context, reqBody geminiRequest) (string, error) {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		text, err := p.doRequestOnce(ctx, reqBody)
		if err == nil && text != "" {
			return text, nil
		}
		if te, ok := err.(*TransportError); ok && te.Status != 0 &&
			te.Status != http.StatusTooManyRequests && te.Status < http.StatusInternalServerError {
			// Client errors won't heal on retry.
			return "", err
		}
		if err == nil {
			err = fmt.Errorf("response contained no text")
		}
		lastErr = fmt.Errorf("Gemini API error (attempt %d/%d): %w", attempt, maxRetries, err)
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

func (p *GeminiProvider) doRequestOnce(ctx context.Context, reqBody geminiRequest) (string, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf(geminiGenerateEndpoint+"?key=%s", p.model, p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Provider: "gemini", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", &TransportError{
			Provider: "gemini",
			Status:   res.StatusCode,
			Err:      fmt.Errorf("%s", string(errBody)),
		}
	}

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return "", &TransportError{Provider: "gemini", Err: fmt.Errorf("read response: %w", err)}
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
