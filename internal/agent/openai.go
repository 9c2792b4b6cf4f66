package agent

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter queries OpenAI chat models.
type OpenAIAdapter struct {
	id     string
	client *openai.Client
	model  string
}

func NewOpenAIAdapter(id, apiKey, baseURL, model string) *OpenAIAdapter {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if v := strings.TrimSpace(baseURL); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}

	m := strings.TrimSpace(model)
	if m == "" {
		m = strings.TrimSpace(id)
	}
	if m == "" {
		m = "gpt-4o"
	}

	return &OpenAIAdapter{
		id:     strings.TrimSpace(id),
		client: openai.NewClientWithConfig(cfg),
		model:  m,
	}
}

func (a *OpenAIAdapter) Info() Info {
	return Info{
		Name:         "openai",
		Model:        a.model,
		Capabilities: []string{"text-generation", "reasoning"},
	}
}

func (a *OpenAIAdapter) Query(ctx context.Context, prompt string, opts QueryOptions) (*Reply, error) {
	if a == nil || a.client == nil {
		return nil, newError(a.ident(), KindNetwork, "nil client")
	}
	if ctx == nil {
		return nil, newError(a.ident(), KindNetwork, "nil context")
	}

	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if system := strings.TrimSpace(opts.System); system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    msgs,
		Temperature: float32(opts.Temperature),
		MaxTokens:   clampMaxTokens(opts.MaxTokens),
	}

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(a.ident(), ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, newError(a.ident(), KindMalformed, "no choices in completion")
	}

	return &Reply{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (a *OpenAIAdapter) ident() string {
	if a == nil {
		return "openai"
	}
	return a.id
}

func classifyOpenAIError(agentID string, ctx context.Context, err error) *Error {
	if ctx != nil && ctx.Err() != nil {
		return classifyCtxErr(agentID, ctx.Err())
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return newError(agentID, KindAuth, apiErr.Message)
		case http.StatusTooManyRequests:
			return newError(agentID, KindRateLimited, apiErr.Message)
		}
		return newError(agentID, KindNetwork, apiErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(agentID, KindTimeout, err.Error())
	}
	return newError(agentID, KindNetwork, err.Error())
}

func clampMaxTokens(n int) int {
	if n <= 0 {
		return 1024
	}
	return n
}
