// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultModelID        = "anthropic.claude-3-haiku-20240307-v1:0"
	DefaultPromptTemplate = "Assuma que você é um advogado especializado em documentos e contratos e vai sempre responder em pt-BR a questão: {{question}}"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml and
// applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return build(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func build(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it
// (BEDROCK_KNOWLEDGE_BASE_ID, SERVER_ADDRESS, ...).
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pdf-rag")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 15000)
	v.SetDefault("server.write_timeout", 35000)
	v.SetDefault("server.shutdown_timeout", 10000)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("bedrock.region", "")
	v.SetDefault("bedrock.knowledge_base_id", "")
	v.SetDefault("bedrock.model_id", DefaultModelID)
	v.SetDefault("bedrock.model_arn", "")
	v.SetDefault("bedrock.prompt_template", DefaultPromptTemplate)
	v.SetDefault("bedrock.timeout", 29000)
	v.SetDefault("bedrock.http_timeout", 30000)

	v.SetDefault("camunda.enabled", false)
	v.SetDefault("camunda.broker_address", "")
	v.SetDefault("camunda.max_jobs_active", 10)
	v.SetDefault("camunda.timeout", 30000)
	v.SetDefault("camunda.request_timeout", 30000)

	v.SetDefault("database.redis.enabled", false)
	v.SetDefault("database.redis.address", "")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("database.redis.session_ttl", int((24 * time.Hour).Milliseconds()))

	v.SetDefault("alerts.enabled", false)
	v.SetDefault("alerts.topic_arn", "")
	v.SetDefault("alerts.timeout", 5000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders left in string values. An unset
// variable expands to "" so that the fallbacks in overrideEmptyConfig apply.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig falls back to the variable names the Lambda
// deployment used.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Bedrock.KnowledgeBaseID == "" {
		if val := os.Getenv("KNOWLEDGE_BASE_ID"); val != "" {
			cfg.Bedrock.KnowledgeBaseID = val
		}
	}
	if cfg.Bedrock.Region == "" {
		if val := os.Getenv("AWS_REGION"); val != "" {
			cfg.Bedrock.Region = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
	if cfg.Alerts.TopicARN == "" {
		if val := os.Getenv("ALERTS_TOPIC_ARN"); val != "" {
			cfg.Alerts.TopicARN = val
		}
	}
}

// applyDefaults covers zero values that survive unmarshalling, e.g. an
// explicit 0 in YAML or partially specified worker entries. A negative
// bedrock.timeout is kept and switches the per-call deadline off.
func applyDefaults(cfg *Config) {
	if cfg.Bedrock.ModelID == "" {
		cfg.Bedrock.ModelID = DefaultModelID
	}
	if cfg.Bedrock.PromptTemplate == "" {
		cfg.Bedrock.PromptTemplate = DefaultPromptTemplate
	}
	if cfg.Bedrock.Timeout == 0 {
		cfg.Bedrock.Timeout = 29000
	}
	if cfg.Bedrock.HTTPTimeout == 0 {
		cfg.Bedrock.HTTPTimeout = 30000
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Bedrock.Region == "" {
		return fmt.Errorf("bedrock.region is required")
	}
	if cfg.Bedrock.KnowledgeBaseID == "" {
		return fmt.Errorf("bedrock.knowledge_base_id is required")
	}
	if !strings.Contains(cfg.Bedrock.PromptTemplate, "{{question}}") {
		return fmt.Errorf("bedrock.prompt_template must contain {{question}}")
	}

	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}
	if cfg.Database.Redis.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when redis is enabled")
	}
	if cfg.Alerts.Enabled && cfg.Alerts.TopicARN == "" {
		return fmt.Errorf("alerts.topic_arn is required when alerts are enabled")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       false,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled reports whether a worker is switched on. Workers are
// opt-in: the gateway runs without a workflow engine by default.
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return false
}
