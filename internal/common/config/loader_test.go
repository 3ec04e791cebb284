package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AWS_REGION", "KNOWLEDGE_BASE_ID", "BEDROCK_REGION", "BEDROCK_KNOWLEDGE_BASE_ID",
		"BEDROCK_MODEL_ID", "ALERTS_TOPIC_ARN", "REDIS_PASSWORD",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromFile_Defaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
bedrock:
  region: us-east-1
  knowledge_base_id: QIXEM2LAUK
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "QIXEM2LAUK", cfg.Bedrock.KnowledgeBaseID)
	assert.Equal(t, DefaultModelID, cfg.Bedrock.ModelID)
	assert.Equal(t, DefaultPromptTemplate, cfg.Bedrock.PromptTemplate)
	assert.Equal(t, 29000, cfg.Bedrock.Timeout)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Camunda.Enabled)
	assert.False(t, cfg.Database.Redis.Enabled)
	assert.Equal(t,
		"arn:aws:bedrock:us-east-1::foundation-model/anthropic.claude-3-haiku-20240307-v1:0",
		cfg.Bedrock.ResolveModelARN())
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BEDROCK_KNOWLEDGE_BASE_ID", "FROM-ENV")
	t.Setenv("AWS_REGION", "sa-east-1")

	path := writeConfig(t, `
bedrock:
  model_id: anthropic.claude-3-sonnet-20240229-v1:0
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "FROM-ENV", cfg.Bedrock.KnowledgeBaseID)
	assert.Equal(t, "sa-east-1", cfg.Bedrock.Region)
	assert.Equal(t,
		"arn:aws:bedrock:sa-east-1::foundation-model/anthropic.claude-3-sonnet-20240229-v1:0",
		cfg.Bedrock.ResolveModelARN())
}

func TestLoadFromFile_LegacyKnowledgeBaseVariable(t *testing.T) {
	clearEnv(t)
	t.Setenv("KNOWLEDGE_BASE_ID", "LEGACY")

	path := writeConfig(t, `
bedrock:
  region: us-east-1
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "LEGACY", cfg.Bedrock.KnowledgeBaseID)
}

func TestLoadFromFile_ExplicitModelARN(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
bedrock:
  region: us-east-1
  knowledge_base_id: KB
  model_arn: arn:aws:bedrock:us-east-1:123456789012:inference-profile/us.anthropic.claude-3-haiku
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"arn:aws:bedrock:us-east-1:123456789012:inference-profile/us.anthropic.claude-3-haiku",
		cfg.Bedrock.ResolveModelARN())
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "missing region",
			content: "bedrock:\n  knowledge_base_id: KB\n",
			errMsg:  "bedrock.region is required",
		},
		{
			name:    "missing knowledge base",
			content: "bedrock:\n  region: us-east-1\n",
			errMsg:  "bedrock.knowledge_base_id is required",
		},
		{
			name:    "prompt without placeholder",
			content: "bedrock:\n  region: us-east-1\n  knowledge_base_id: KB\n  prompt_template: answer this\n",
			errMsg:  "must contain {{question}}",
		},
		{
			name:    "camunda without broker",
			content: "bedrock:\n  region: us-east-1\n  knowledge_base_id: KB\ncamunda:\n  enabled: true\n",
			errMsg:  "camunda.broker_address is required",
		},
		{
			name:    "redis without address",
			content: "bedrock:\n  region: us-east-1\n  knowledge_base_id: KB\ndatabase:\n  redis:\n    enabled: true\n",
			errMsg:  "database.redis.address is required",
		},
		{
			name:    "alerts without topic",
			content: "bedrock:\n  region: us-east-1\n  knowledge_base_id: KB\nalerts:\n  enabled: true\n",
			errMsg:  "alerts.topic_arn is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadFromFile(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadFromFile_WorkerDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
bedrock:
  region: us-east-1
  knowledge_base_id: KB
workers:
  query-knowledge-base:
    enabled: true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	wcfg := GetWorkerConfig(cfg, "query-knowledge-base")
	assert.True(t, wcfg.Enabled)
	assert.Equal(t, 5, wcfg.MaxJobsActive)
	assert.Equal(t, 30000, wcfg.Timeout)
	assert.Equal(t, 3, wcfg.MaxRetries)

	assert.True(t, IsWorkerEnabled(cfg, "query-knowledge-base"))
	assert.False(t, IsWorkerEnabled(cfg, "unknown-worker"))

	assert.Equal(t, 30000, cfg.Camunda.RequestTimeout)
	assert.Equal(t, "stdout", cfg.Logging.Output)
}

func TestLoadFromFile_BedrockTimeout(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want int
	}{
		{name: "zero takes the default", yaml: "0", want: 29000},
		{name: "negative switches the deadline off", yaml: "-1", want: -1},
		{name: "explicit value", yaml: "5000", want: 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := writeConfig(t, `
bedrock:
  region: us-east-1
  knowledge_base_id: KB
  timeout: `+tt.yaml+`
`)

			cfg, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Bedrock.Timeout)
		})
	}
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
	assert.Equal(t, time.Duration(0), GetDuration(0))
}

func TestLoadFromFile_PlaceholderFallsBackToLegacyVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv("KNOWLEDGE_BASE_ID", "LEGACY-KB")
	t.Setenv("AWS_REGION", "us-east-1")

	path := writeConfig(t, `
bedrock:
  region: ${AWS_REGION}
  knowledge_base_id: ${UNSET_KB_PLACEHOLDER}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", cfg.Bedrock.Region)
	assert.Equal(t, "LEGACY-KB", cfg.Bedrock.KnowledgeBaseID)
}
