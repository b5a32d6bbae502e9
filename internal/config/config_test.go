package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{
		Source: SourceConfig{
			Host:     "localhost",
			Database: "testscoredb",
		},
	}
	applyDefaults(cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.Equal(t, "sqlserver", cfg.Source.Driver)
	assert.Equal(t, 1433, cfg.Source.Port)
	assert.Equal(t, DefaultSourceQuery, cfg.Source.Query)
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
	assert.Equal(t, DefaultEmbeddingModel, cfg.Embeddings.Model)
	assert.Empty(t, cfg.Embeddings.BaseURL)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "powerbi", cfg.VectorStore.Collection)
	assert.Equal(t, 5000, cfg.VectorStore.BatchSize)
	assert.Equal(t, "./chroma_store", cfg.VectorStore.Chromem.Path)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
	assert.Equal(t, "grpc", cfg.Telemetry.Protocol)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
	assert.Equal(t, 15*time.Second, cfg.Telemetry.Interval.Duration())
}

func TestApplyDefaults_ProviderSpecificBaseURL(t *testing.T) {
	cfg := &Config{Embeddings: EmbeddingsConfig{Provider: "openai"}}
	applyDefaults(cfg)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embeddings.BaseURL)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Source.Driver = "oracle" }, wantErr: true},
		{name: "missing host", mutate: func(c *Config) { c.Source.Host = "" }, wantErr: true},
		{name: "dsn replaces host", mutate: func(c *Config) {
			c.Source.Host = ""
			c.Source.Database = ""
			c.Source.DSN = "sqlserver://u:p@h?database=d"
		}},
		{name: "sqlite without host", mutate: func(c *Config) {
			c.Source.Driver = "sqlite"
			c.Source.Host = ""
		}},
		{name: "empty query", mutate: func(c *Config) { c.Source.Query = "" }, wantErr: true},
		{name: "unknown embedding provider", mutate: func(c *Config) { c.Embeddings.Provider = "cohere" }, wantErr: true},
		{name: "unknown store provider", mutate: func(c *Config) { c.VectorStore.Provider = "pinecone" }, wantErr: true},
		{name: "bad collection name", mutate: func(c *Config) { c.VectorStore.Collection = "Power BI" }, wantErr: true},
		{name: "zero batch size", mutate: func(c *Config) { c.VectorStore.BatchSize = 0 }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "bad telemetry protocol", mutate: func(c *Config) { c.Telemetry.Protocol = "zipkin" }, wantErr: true},
		{name: "sample rate above one", mutate: func(c *Config) { c.Telemetry.SampleRate = 1.5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSecret_NeverPrints(t *testing.T) {
	s := Secret("Score@1234")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "Score@1234")
	assert.Equal(t, "Score@1234", s.Value())
	assert.True(t, s.IsSet())

	b, err := json.Marshal(struct{ Password Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "Score@1234")

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1500ms")))
	assert.Equal(t, "1.5s", d.Duration().String())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
