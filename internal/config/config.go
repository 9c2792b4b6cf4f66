package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Storage   StorageConfig   `yaml:"storage"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr,omitempty"`
	APIKey      string   `yaml:"api_key,omitempty"`
	CORSOrigins []string `yaml:"cors_origins,omitempty"` // "*" allows any origin
}

type LLMConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers,omitempty"`
}

type ProviderConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

type BenchmarkConfig struct {
	DatasetsDir  string        `yaml:"datasets_dir,omitempty"`
	MaxAgents    int           `yaml:"max_agents,omitempty"`
	Samples      int           `yaml:"samples,omitempty"`
	QueryTimeout time.Duration `yaml:"query_timeout,omitempty"`
	MaxAttempts  int           `yaml:"max_attempts,omitempty"`
	AgentRate    float64       `yaml:"agent_rate,omitempty"`   // queries per second per agent
	MaxInFlight  int           `yaml:"max_in_flight,omitempty"`
	JudgeAgent   string        `yaml:"judge_agent,omitempty"`
}

type StorageConfig struct {
	Type string `yaml:"type,omitempty"` // "sqlite" or "memory"
	Path string `yaml:"path,omitempty"` // SQLite file path
}

func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

// Default returns a usable config when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.LLM.Providers == nil {
		c.LLM.Providers = make(map[string]ProviderConfig)
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = ":8000"
	}
	if c.Benchmark.MaxAgents <= 0 {
		c.Benchmark.MaxAgents = 10
	}
	if c.Benchmark.Samples <= 0 {
		c.Benchmark.Samples = 1
	}
	if c.Benchmark.QueryTimeout <= 0 {
		c.Benchmark.QueryTimeout = 30 * time.Second
	}
	if c.Benchmark.MaxAttempts <= 0 {
		c.Benchmark.MaxAttempts = 3
	}
	if c.Benchmark.AgentRate <= 0 {
		c.Benchmark.AgentRate = 5
	}
	if c.Benchmark.MaxInFlight <= 0 {
		c.Benchmark.MaxInFlight = 8
	}
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		p := c.LLM.Providers["anthropic"]
		p.APIKey = v
		c.LLM.Providers["anthropic"] = p
	} else if v := strings.TrimSpace(os.Getenv("ANTHROPIC_AUTH_TOKEN")); v != "" {
		p := c.LLM.Providers["anthropic"]
		p.APIKey = v
		c.LLM.Providers["anthropic"] = p
	}

	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		p := c.LLM.Providers["openai"]
		p.APIKey = v
		c.LLM.Providers["openai"] = p
	}

	if v := strings.TrimSpace(os.Getenv("AGENTBENCH_LOCAL_ENDPOINT")); v != "" {
		p := c.LLM.Providers["local"]
		p.Endpoint = v
		c.LLM.Providers["local"] = p
	}

	if v := strings.TrimSpace(os.Getenv("AGENTBENCH_API_KEY")); v != "" {
		c.Server.APIKey = v
	}

	if v := strings.TrimSpace(os.Getenv("AGENTBENCH_CORS_ORIGINS")); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
