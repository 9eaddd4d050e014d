package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

const (
	envPrefix     = "ATTENDANCE_"
	envConfigFile = "ATTENDANCE_CONFIG"
)

// Load builds a Config by layering, lowest precedence first:
//  1. embedded defaults.yaml
//  2. the YAML file named by ATTENDANCE_CONFIG, if set
//  3. ATTENDANCE_* variables, "__" separating levels (ATTENDANCE_MATCHING__ACCEPT_THRESHOLD)
//  4. the unprefixed legacy variables (DATABASE_URL, PYTHON_EXECUTABLE, ESP32_*, REDIS_URI)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(defaultsProvider{}, nil); err != nil {
		return nil, fmt.Errorf("%w: defaults: %v", ErrLoadConfig, err)
	}

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envKey)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	applyLegacyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps ATTENDANCE_RATE_LIMIT__WINDOW to rate_limit.window.
func envKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

// defaultsProvider feeds the embedded defaults into koanf as the lowest layer.
type defaultsProvider struct{}

func (defaultsProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("defaults provider does not support ReadBytes")
}

func (defaultsProvider) Read() (map[string]any, error) {
	var m map[string]any
	if err := yamlv3.Unmarshal(defaultsYAML, &m); err != nil {
		return nil, err
	}
	return m, nil
}
