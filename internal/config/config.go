package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	temp := 0.7
	return Config{
		Server: ServerConfig{
			Port: 8400,
			Bind: "loopback",
		},
		LLM: LLMConfig{
			Provider:       "gemini",
			Model:          "gemini-2.5-flash",
			Temperature:    &temp,
			TimeoutSeconds: 60,
		},
		Session: SessionConfig{
			MaxMessages: 20,
			Store:       "memory",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
