package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const DefaultEnvPrefix = "MAID_"

// KoanfConfigProvider reads an optional YAML file and MAID_* environment
// variables. Nested keys use a double underscore: MAID_SLACK__SIGNING_SECRET.
type KoanfConfigProvider struct {
	Path      string
	EnvPrefix string
	DotEnv    []string
}

func NewKoanfConfigProvider(path string) *KoanfConfigProvider {
	return &KoanfConfigProvider{Path: path, EnvPrefix: DefaultEnvPrefix}
}

func (p *KoanfConfigProvider) Load(_ context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	if err := loadDotEnv(p.DotEnv); err != nil {
		return Config{}, err
	}

	k := koanf.New(".")
	if path := strings.TrimSpace(p.Path); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("core: load config file %q: %w", path, err)
			}
		}
	}

	prefix := p.EnvPrefix
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultEnvPrefix
	}
	if err := k.Load(env.Provider(prefix, ".", envKey(prefix)), nil); err != nil {
		return Config{}, fmt.Errorf("core: load environment: %w", err)
	}

	cfg := defaults
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("core: decode config: %w", err)
	}
	return cfg, nil
}

func envKey(prefix string) func(string) string {
	return func(key string) string {
		key = strings.TrimPrefix(key, prefix)
		return strings.ReplaceAll(strings.ToLower(key), "__", ".")
	}
}

// loadDotEnv loads .env files when present. Variables already set in the
// process environment win.
func loadDotEnv(paths []string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("core: load dotenv: %w", err)
	}
	return nil
}

var _ ConfigProvider = (*KoanfConfigProvider)(nil)
