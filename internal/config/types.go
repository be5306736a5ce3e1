package config

// Config is the root configuration for caremate.
type Config struct {
	Server  ServerConfig  `yaml:"server,omitempty"`
	LLM     LLMConfig     `yaml:"llm,omitempty"`
	Session SessionConfig `yaml:"session,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// ServerConfig controls the HTTP chat server.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	Provider       string   `yaml:"provider,omitempty"` // "gemini" | "ollama"
	APIKey         string   `yaml:"apiKey,omitempty"`   // supports ${ENV_VAR} references
	Model          string   `yaml:"model,omitempty"`
	Endpoint       string   `yaml:"endpoint,omitempty"` // custom endpoint (for Ollama)
	MaxTokens      int      `yaml:"maxTokens,omitempty"`
	Temperature    *float64 `yaml:"temperature,omitempty"`
	TimeoutSeconds int      `yaml:"timeoutSeconds,omitempty"` // per-call generation timeout
}

// SessionConfig defines conversation history behavior.
type SessionConfig struct {
	MaxMessages int    `yaml:"maxMessages,omitempty"` // retention bound per session
	Store       string `yaml:"store,omitempty"`       // "memory" | "sqlite"
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
}
