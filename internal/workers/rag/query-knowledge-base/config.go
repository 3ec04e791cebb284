// internal/workers/rag/query-knowledge-base/config.go
package queryknowledgebase

import "time"

type Config struct {
	// Timeout bounds answering the question.
	Timeout time.Duration
	// RequestTimeout bounds the complete, fail or throw command sent back to
	// the engine.
	RequestTimeout time.Duration
	// MaxRetries caps the retries handed back to the engine on a transient
	// failure. Zero or less leaves the error's own budget.
	MaxRetries int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:        30 * time.Second,
		RequestTimeout: 30 * time.Second,
		MaxRetries:     3,
	}
}
