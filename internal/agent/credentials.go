package agent

import "github.com/maktheus/AgentBenchMark/internal/config"

// CredentialsFromConfig flattens the provider section of the config into
// adapter credentials.
func CredentialsFromConfig(cfg *config.Config) Credentials {
	var creds Credentials
	if cfg == nil {
		return creds
	}
	if p, ok := cfg.LLM.Providers["openai"]; ok {
		creds.OpenAIKey = p.APIKey
		creds.OpenAIBaseURL = p.BaseURL
	}
	if p, ok := cfg.LLM.Providers["anthropic"]; ok {
		creds.AnthropicKey = p.APIKey
		creds.AnthropicBaseURL = p.BaseURL
	}
	if p, ok := cfg.LLM.Providers["local"]; ok {
		creds.LocalEndpoint = p.Endpoint
	}
	return creds
}
