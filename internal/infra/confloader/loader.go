package confloader

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "EXSIM_"

// Names reported by Sources.
const (
	SourceFile     = "file"
	SourceEnv      = "env"
	SourceOverride = "override"
)

// Loader layers configuration sources into a struct.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides map[string]any
	sources   map[string]string
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the YAML file to load. An empty path is skipped.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithOverrides sets values applied after the environment, typically
// command-line flags. The map is nested: {"log": {"level": "debug"}}.
func WithOverrides(m map[string]any) Option {
	return func(l *Loader) {
		l.overrides = m
	}
}

// NewLoader creates a loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
		sources:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load merges the file, the environment and the overrides, in that order,
// and unmarshals the result into target. Fields of target that no source
// names keep their values, so callers pass a struct holding the defaults.
func (l *Loader) Load(target any) error {
	if l.filePath != "" {
		if err := l.merge(SourceFile, file.Provider(l.filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("load %s: %w", l.filePath, err)
		}
	}

	envProvider := env.Provider(l.envPrefix, ".", func(s string) string {
		return EnvKey(l.envPrefix, s)
	})
	if err := l.merge(SourceEnv, envProvider, nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	if len(l.overrides) > 0 {
		if err := l.merge(SourceOverride, mapProvider(l.overrides), nil); err != nil {
			return fmt.Errorf("load overrides: %w", err)
		}
	}

	if err := l.k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// merge loads one layer on its own so the keys it sets can be attributed,
// then merges it over the previous layers.
func (l *Loader) merge(source string, p koanf.Provider, parser koanf.Parser) error {
	layer := koanf.New(".")
	if err := layer.Load(p, parser); err != nil {
		return err
	}
	for _, key := range layer.Keys() {
		l.sources[key] = source
	}
	return l.k.Merge(layer)
}

// EnvKey maps an environment variable to a configuration key: the prefix
// is removed and the first underscore separates section from key, so
// EXSIM_MANAGEMENT_HTTP_ADDR becomes management.http_addr.
func EnvKey(prefix, name string) string {
	s := strings.ToLower(strings.TrimPrefix(name, prefix))
	return strings.Replace(s, "_", ".", 1)
}

// Get returns the merged value of key, or nil.
func (l *Loader) Get(key string) any {
	return l.k.Get(key)
}

// Sources reports which layer set each key that did not come from the
// defaults.
func (l *Loader) Sources() map[string]string {
	out := make(map[string]string, len(l.sources))
	for k, v := range l.sources {
		out[k] = v
	}
	return out
}
