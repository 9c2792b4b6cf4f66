package agent

import (
	"fmt"
	"strings"
)

// Descriptor identifies an agent requested for a run. Kind is inferred from
// the id when empty: "gpt-*" is OpenAI, "claude-*" is Anthropic, "local" or
// "local:<endpoint>" is a generic HTTP agent.
type Descriptor struct {
	ID       string `json:"id"`
	Kind     string `json:"kind,omitempty"`
	Model    string `json:"model,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// Credentials carries backend connection settings resolved from config.
type Credentials struct {
	OpenAIKey        string
	OpenAIBaseURL    string
	AnthropicKey     string
	AnthropicBaseURL string
	LocalEndpoint    string
}

// New builds an adapter for the descriptor.
func New(d Descriptor, creds Credentials) (Adapter, error) {
	id := strings.TrimSpace(d.ID)
	if id == "" {
		return nil, fmt.Errorf("agent: empty descriptor id")
	}

	kind := strings.ToLower(strings.TrimSpace(d.Kind))
	if kind == "" {
		kind = inferKind(id)
	}

	switch kind {
	case "openai":
		return NewOpenAIAdapter(id, creds.OpenAIKey, creds.OpenAIBaseURL, d.Model), nil
	case "anthropic":
		return NewAnthropicAdapter(id, creds.AnthropicKey, creds.AnthropicBaseURL, d.Model), nil
	case "local", "http":
		endpoint := strings.TrimSpace(d.Endpoint)
		if endpoint == "" {
			if rest, ok := strings.CutPrefix(id, "local:"); ok {
				endpoint = strings.TrimSpace(rest)
			}
		}
		if endpoint == "" {
			endpoint = strings.TrimSpace(creds.LocalEndpoint)
		}
		return NewHTTPAdapter(id, endpoint, d.Model), nil
	default:
		return nil, fmt.Errorf("agent: unsupported agent %q", id)
	}
}

func inferKind(id string) string {
	lower := strings.ToLower(id)
	switch {
	case strings.HasPrefix(lower, "gpt-"), strings.HasPrefix(lower, "o1"), strings.HasPrefix(lower, "o3"):
		return "openai"
	case strings.HasPrefix(lower, "claude-"):
		return "anthropic"
	case lower == "local", strings.HasPrefix(lower, "local:"):
		return "local"
	default:
		return ""
	}
}
