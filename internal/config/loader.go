package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "ROWINDEX_"
)

// DefaultPaths lists the files Load tries, in order, when no path is given.
func DefaultPaths() []string {
	paths := []string{"rowindex.yaml", "rowindex.yml", "rowindex.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "rowindex", "config.yaml"),
			filepath.Join(home, ".config", "rowindex", "config.toml"),
		)
	}
	return paths
}

// Load loads configuration from a YAML or TOML file, then overrides it with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (ROWINDEX_SOURCE__HOST, ROWINDEX_VECTORSTORE__BATCH_SIZE, ...)
//  2. Config file (path, or the first existing entry of DefaultPaths)
//  3. Hardcoded defaults
//
// An explicit path must exist. The file format is chosen by extension:
// .yaml/.yml or .toml.
//
// # Security Considerations
//
// The config file usually carries database credentials, so it MUST have 0600
// or 0400 permissions; anything looser is rejected. Files larger than 1MB are
// rejected as well.
//
// # Environment Variable Mapping
//
// The ROWINDEX_ prefix is stripped, the rest is lowercased and a double
// underscore separates sections, so single underscores survive in field names:
//
//	ROWINDEX_SOURCE__PASSWORD            -> source.password
//	ROWINDEX_VECTORSTORE__BATCH_SIZE     -> vectorstore.batch_size
//	ROWINDEX_VECTORSTORE__CHROMEM__PATH  -> vectorstore.chromem.path
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		for _, candidate := range DefaultPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		if err := loadFile(k, path, explicit); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKey maps ROWINDEX_VECTORSTORE__BATCH_SIZE to vectorstore.batch_size.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// loadFile reads path into k. A missing file is only an error when the path
// was given explicitly.
func loadFile(k *koanf.Koanf, path string, explicit bool) error {
	parser, err := parserFor(path)
	if err != nil {
		return err
	}

	// Open once and validate through the descriptor to avoid a TOCTOU race.
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := k.Load(rawbytes.Provider(content), parser); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// parserFor picks a koanf parser from the file extension.
func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".toml":
		return TOMLParser(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported config file extension %q (use .yaml, .yml or .toml)", ErrInvalidConfig, filepath.Ext(path))
	}
}

// validateConfigFileProperties checks file permissions and size.
// Takes FileInfo from an already-opened file descriptor.
func validateConfigFileProperties(info os.FileInfo) error {
	// Skip on Windows (different permission model)
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}
