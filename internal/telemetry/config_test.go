package telemetry

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/rowindex/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Equal(t, "rowindex", cfg.ServiceName)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 15*time.Second, cfg.Metrics.ExportInterval)
	assert.Equal(t, 5*time.Second, cfg.Shutdown.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{
		Enabled:    true,
		Endpoint:   "https://otel.example.com:4318",
		Protocol:   "http/protobuf",
		SampleRate: 0.25,
		Metrics:    true,
		Interval:   config.Duration(30 * time.Second),
	}, "1.4.0")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "https://otel.example.com:4318", cfg.Endpoint)
	assert.Equal(t, "http/protobuf", cfg.Protocol)
	assert.Equal(t, "1.4.0", cfg.ServiceVersion)
	assert.False(t, cfg.Insecure)
	assert.Equal(t, 0.25, cfg.SampleRate)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Metrics.ExportInterval)
	assert.NoError(t, cfg.Validate())
}

func TestFromSettings_KeepsDefaults(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{}, "")

	assert.Equal(t, NewDefaultConfig().Endpoint, cfg.Endpoint)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestConfig_Validate(t *testing.T) {
	enabled := func(mutate func(*Config)) *Config {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		mutate(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid default config",
			config: NewDefaultConfig(),
		},
		{
			name:   "disabled config skips validation",
			config: &Config{Enabled: false},
		},
		{
			name:    "missing endpoint",
			config:  enabled(func(c *Config) { c.Endpoint = "" }),
			wantErr: true,
			errMsg:  "endpoint is required",
		},
		{
			name:    "missing service name",
			config:  enabled(func(c *Config) { c.ServiceName = "" }),
			wantErr: true,
			errMsg:  "service_name is required",
		},
		{
			name:    "unknown protocol",
			config:  enabled(func(c *Config) { c.Protocol = "thrift" }),
			wantErr: true,
			errMsg:  "protocol must be grpc or http/protobuf",
		},
		{
			name:    "sampling rate too low",
			config:  enabled(func(c *Config) { c.SampleRate = -0.1 }),
			wantErr: true,
			errMsg:  "sample_rate must be between 0 and 1",
		},
		{
			name:    "sampling rate too high",
			config:  enabled(func(c *Config) { c.SampleRate = 1.1 }),
			wantErr: true,
			errMsg:  "sample_rate must be between 0 and 1",
		},
		{
			name: "invalid metrics export interval",
			config: enabled(func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.ExportInterval = 0
			}),
			wantErr: true,
			errMsg:  "export interval must be positive",
		},
		{
			name:    "invalid shutdown timeout",
			config:  enabled(func(c *Config) { c.Shutdown.Timeout = 0 }),
			wantErr: true,
			errMsg:  "shutdown timeout must be positive",
		},
		{
			name: "remote endpoint with TLS",
			config: enabled(func(c *Config) {
				c.Endpoint = "collector.prod:4317"
				c.Insecure = false
			}),
		},
		{
			name:    "insecure not allowed for remote endpoint",
			config:  enabled(func(c *Config) { c.Endpoint = "collector.prod:4317" }),
			wantErr: true,
			errMsg:  "insecure connections to remote endpoints are not allowed",
		},
		{
			name:   "insecure allowed for 127.0.0.1",
			config: enabled(func(c *Config) { c.Endpoint = "127.0.0.1:4317" }),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		isLocal  bool
	}{
		{"localhost:4317", true},
		{"localhost", true},
		{"http://localhost:4318", true},
		{"127.0.0.1:4317", true},
		{"127.0.1.1:4317", true},
		{"[::1]:4317", true},
		{"::1:4317", true},
		{"::1", true},
		{"collector.prod:4317", false},
		{"https://otel.example.com:4318", false},
		{"192.168.1.1:4317", false},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			cfg := &Config{Endpoint: tt.endpoint}
			assert.Equal(t, tt.isLocal, cfg.isLocalEndpoint())
		})
	}
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "otel:4318", stripScheme("https://otel:4318"))
	assert.Equal(t, "otel:4318", stripScheme("http://otel:4318"))
	assert.Equal(t, "otel:4317", stripScheme("otel:4317"))
}
