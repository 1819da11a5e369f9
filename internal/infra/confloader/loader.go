package confloader

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "ROOMRELAY_"

// EnvAlias maps a bare environment variable onto a configuration key.
// Transform, when set, converts the raw value before it is stored.
type EnvAlias struct {
	Name      string
	Key       string
	Transform func(string) any
}

// Loader loads configuration from multiple sources.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	aliases   []EnvAlias
	loaded    bool
}

// Option is a function that configures the Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithEnvAliases registers bare environment variables that are applied
// after the prefixed ones.
func WithEnvAliases(aliases ...EnvAlias) Option {
	return func(l *Loader) {
		l.aliases = append(l.aliases, aliases...)
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load loads configuration from all sources and unmarshals into target.
// Loading order (later sources override earlier):
//  1. Values already present in target (defaults)
//  2. Configuration file (YAML)
//  3. Prefixed environment variables
//  4. Environment aliases
func (l *Loader) Load(target any) error {
	if err := l.k.Load(structs.Provider(target, "koanf"), nil); err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}

	if l.filePath != "" {
		if err := l.LoadFile(l.filePath); err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.LoadEnv(); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	if err := l.LoadAliases(); err != nil {
		return fmt.Errorf("load env aliases: %w", err)
	}

	// Every value now lives in koanf. Decoding over the old contents would
	// leave stale tail elements in slices that shrank.
	if v := reflect.ValueOf(target); v.Kind() == reflect.Pointer && !v.IsNil() {
		v.Elem().Set(reflect.Zero(v.Elem().Type()))
	}

	if err := l.Unmarshal(target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	l.loaded = true
	return nil
}

// LoadFile loads configuration from a YAML file.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}

	provider := file.Provider(path)
	if err := l.k.Load(provider, yaml.Parser()); err != nil {
		return fmt.Errorf("load file %s: %w", path, err)
	}

	return nil
}

// LoadEnv loads configuration from environment variables.
// Environment variables use the format: ROOMRELAY_SECTION_KEY.
// Example: ROOMRELAY_SERVER_HTTP_ADDR=0.0.0.0:8080
//
// Underscores are ambiguous between nesting and key names, so variables are
// first matched against keys already loaded (ROOMRELAY_GATEWAY_ALLOWED_ORIGINS
// resolves to gateway.allowed_origins). Unknown names fall back to treating
// every underscore as a separator. Values of list keys are split on commas.
func (l *Loader) LoadEnv() error {
	known := make(map[string]string)
	for _, key := range l.k.Keys() {
		known[strings.ReplaceAll(key, ".", "_")] = key
	}

	transform := func(name, value string) (string, any) {
		name = strings.ToLower(strings.TrimPrefix(name, l.envPrefix))
		key, ok := known[name]
		if !ok {
			key = strings.ReplaceAll(name, "_", ".")
		}
		return key, l.coerce(key, value)
	}

	provider := env.ProviderWithValue(l.envPrefix, ".", transform)
	if err := l.k.Load(provider, nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	return nil
}

// LoadAliases applies the registered environment aliases that are set.
func (l *Loader) LoadAliases() error {
	data := make(map[string]any)
	for _, a := range l.aliases {
		value, ok := os.LookupEnv(a.Name)
		if !ok {
			continue
		}
		if a.Transform != nil {
			data[a.Key] = a.Transform(value)
		} else {
			data[a.Key] = l.coerce(a.Key, value)
		}
	}
	if len(data) == 0 {
		return nil
	}
	return l.LoadMap(data)
}

// coerce splits comma-separated values for keys that hold lists.
func (l *Loader) coerce(key, value string) any {
	switch l.k.Get(key).(type) {
	case []string, []any:
		return SplitList(value)
	}
	return value
}

// SplitList splits a comma-separated value, dropping empty entries.
func SplitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadMap sets each dotted key in data, in key order, over what is already
// loaded.
func (l *Loader) LoadMap(data map[string]any) error {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := l.k.Set(key, data[key]); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// Unmarshal unmarshals the loaded configuration into the target struct.
// Uses koanf tags for struct field mapping.
func (l *Loader) Unmarshal(target any) error {
	return l.k.Unmarshal("", target)
}

// Get returns a value from the configuration by key.
func (l *Loader) Get(key string) any {
	return l.k.Get(key)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

// GetStrings returns a string slice value from the configuration.
func (l *Loader) GetStrings(key string) []string {
	return l.k.Strings(key)
}

// IsLoaded returns true if configuration has been loaded.
func (l *Loader) IsLoaded() bool {
	return l.loaded
}

// Keys returns all configuration keys.
func (l *Loader) Keys() []string {
	return l.k.Keys()
}
