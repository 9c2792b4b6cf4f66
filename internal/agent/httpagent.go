package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultLocalEndpoint = "http://localhost:8001/chat"

// HTTPAdapter queries a local or self-hosted agent over an OpenAI-compatible
// chat endpoint.
type HTTPAdapter struct {
	id       string
	endpoint string
	model    string
	client   *http.Client
}

func NewHTTPAdapter(id, endpoint, model string) *HTTPAdapter {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = defaultLocalEndpoint
	}
	m := strings.TrimSpace(model)
	if m == "" {
		m = "local-model"
	}
	return &HTTPAdapter{
		id:       strings.TrimSpace(id),
		endpoint: ep,
		model:    m,
		client:   &http.Client{},
	}
}

func (a *HTTPAdapter) Info() Info {
	return Info{
		Name:         "local",
		Model:        a.model,
		Capabilities: []string{"text-generation"},
	}
}

type httpChatRequest struct {
	Model       string            `json:"model"`
	Messages    []httpChatMessage `json:"messages"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
}

type httpChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type httpChatResponse struct {
	Choices []struct {
		Message httpChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *HTTPAdapter) Query(ctx context.Context, prompt string, opts QueryOptions) (*Reply, error) {
	if a == nil || a.client == nil {
		return nil, newError(a.ident(), KindNetwork, "nil client")
	}
	if ctx == nil {
		return nil, newError(a.ident(), KindNetwork, "nil context")
	}

	msgs := make([]httpChatMessage, 0, 2)
	if system := strings.TrimSpace(opts.System); system != "" {
		msgs = append(msgs, httpChatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, httpChatMessage{Role: "user", Content: prompt})

	payload, err := json.Marshal(httpChatRequest{
		Model:       a.model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   clampMaxTokens(opts.MaxTokens),
	})
	if err != nil {
		return nil, newError(a.ident(), KindMalformed, "encode request: "+err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, newError(a.ident(), KindNetwork, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, classifyCtxErr(a.ident(), ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newError(a.ident(), KindTimeout, err.Error())
		}
		return nil, newError(a.ident(), KindNetwork, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, newError(a.ident(), KindNetwork, "read response: "+err.Error())
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, newError(a.ident(), KindAuth, "status "+resp.Status)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, newError(a.ident(), KindRateLimited, "status "+resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, newError(a.ident(), KindNetwork, "status "+resp.Status)
	}

	var out httpChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, newError(a.ident(), KindMalformed, "decode response: "+err.Error())
	}
	if len(out.Choices) == 0 {
		return nil, newError(a.ident(), KindMalformed, "no choices in response")
	}

	return &Reply{
		Text:         out.Choices[0].Message.Content,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (a *HTTPAdapter) ident() string {
	if a == nil {
		return "local"
	}
	return a.id
}
