// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Server   ServerConfig            `mapstructure:"server"`
	Bedrock  BedrockConfig           `mapstructure:"bedrock"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Alerts   AlertsConfig            `mapstructure:"alerts"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	Logging  LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig drives the HTTP gateway.
type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
}

// BedrockConfig addresses the knowledge base and the generation model.
type BedrockConfig struct {
	Region          string `mapstructure:"region"`
	KnowledgeBaseID string `mapstructure:"knowledge_base_id"`
	ModelID         string `mapstructure:"model_id"`
	ModelARN        string `mapstructure:"model_arn"`
	PromptTemplate  string `mapstructure:"prompt_template"`
	Timeout         int    `mapstructure:"timeout"`      // milliseconds, per backend call; negative disables
	HTTPTimeout     int    `mapstructure:"http_timeout"` // milliseconds, transport level
}

// ResolveModelARN returns the configured ARN or the foundation-model ARN
// derived from region and model id.
func (b BedrockConfig) ResolveModelARN() string {
	if b.ModelARN != "" {
		return b.ModelARN
	}
	return fmt.Sprintf("arn:aws:bedrock:%s::foundation-model/%s", b.Region, b.ModelID)
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig backs the optional session recorder.
type RedisConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Address    string `mapstructure:"address"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	SessionTTL int    `mapstructure:"session_ttl"` // milliseconds
}

// AlertsConfig enables SNS notifications for backend failures.
type AlertsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	TopicARN string `mapstructure:"topic_arn"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
