package agent

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicAdapter queries Anthropic Claude models.
type AnthropicAdapter struct {
	id     string
	client *anthropic.Client
	model  anthropic.Model
}

func NewAnthropicAdapter(id, apiKey, baseURL, model string) *AnthropicAdapter {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if v := strings.TrimSpace(baseURL); v != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(v, "/")))
	}
	client := anthropic.NewClient(opts...)

	m := strings.TrimSpace(model)
	if m == "" {
		m = strings.TrimSpace(id)
	}
	if m == "" {
		m = "claude-sonnet-4-5-20250929"
	}

	return &AnthropicAdapter{
		id:     strings.TrimSpace(id),
		client: &client,
		model:  anthropic.Model(m),
	}
}

func (a *AnthropicAdapter) Info() Info {
	return Info{
		Name:         "anthropic",
		Model:        string(a.model),
		Capabilities: []string{"text-generation", "reasoning"},
	}
}

func (a *AnthropicAdapter) Query(ctx context.Context, prompt string, opts QueryOptions) (*Reply, error) {
	if a == nil || a.client == nil {
		return nil, newError(a.ident(), KindNetwork, "nil client")
	}
	if ctx == nil {
		return nil, newError(a.ident(), KindNetwork, "nil context")
	}

	params := anthropic.MessageNewParams{
		Model: a.model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		MaxTokens:   int64(clampMaxTokens(opts.MaxTokens)),
		Temperature: anthropic.Float(opts.Temperature),
	}
	if system := strings.TrimSpace(opts.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	start := time.Now()
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(a.ident(), ctx, err)
	}
	if msg == nil || len(msg.Content) == 0 {
		return nil, newError(a.ident(), KindMalformed, "empty message content")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &Reply{
		Text:         sb.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (a *AnthropicAdapter) ident() string {
	if a == nil {
		return "anthropic"
	}
	return a.id
}

func classifyAnthropicError(agentID string, ctx context.Context, err error) *Error {
	if ctx != nil && ctx.Err() != nil {
		return classifyCtxErr(agentID, ctx.Err())
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return newError(agentID, KindAuth, err.Error())
		case http.StatusTooManyRequests:
			return newError(agentID, KindRateLimited, err.Error())
		}
		return newError(agentID, KindNetwork, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(agentID, KindTimeout, err.Error())
	}
	return newError(agentID, KindNetwork, err.Error())
}
