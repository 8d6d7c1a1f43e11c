// Package config loads CLI and SDK settings from defaults, an optional
// JSON or YAML file, TEAMAUTH_* environment variables and command flags,
// in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	teamauth "github.com/teamup-ku/go-teamauth"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore, e.g. TEAMAUTH_SUPABASE__ANON_KEY.
const EnvPrefix = "TEAMAUTH_"

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreBun    = "bun"
)

type Supabase struct {
	URL     string `koanf:"url" json:"url"`
	AnonKey string `koanf:"anon_key" json:"anon_key"`
}

type Store struct {
	Kind          string        `koanf:"kind" json:"kind"`
	Path          string        `koanf:"path" json:"path"`
	RedisAddr     string        `koanf:"redis_addr" json:"redis_addr"`
	RedisPassword string        `koanf:"redis_password" json:"-"`
	RedisDB       int           `koanf:"redis_db" json:"redis_db"`
	TTL           time.Duration `koanf:"ttl" json:"ttl"`
	DSN           string        `koanf:"dsn" json:"dsn"`
}

// Config is the resolved configuration.
type Config struct {
	BackendURL   string        `koanf:"backend_url" json:"backend_url"`
	ProjectsURL  string        `koanf:"projects_url" json:"projects_url"`
	AppURL       string        `koanf:"app_url" json:"app_url"`
	Supabase     Supabase      `koanf:"supabase" json:"supabase"`
	Schema       string        `koanf:"schema" json:"schema"`
	Store        Store         `koanf:"store" json:"store"`
	EmailDomains []string      `koanf:"email_domains" json:"email_domains"`
	PhoneRegion  string        `koanf:"phone_region" json:"phone_region"`
	CallbackAddr string        `koanf:"callback_addr" json:"callback_addr"`
	RateLimit    float64       `koanf:"rate_limit" json:"rate_limit"`
	Timeout      time.Duration `koanf:"timeout" json:"timeout"`
	AuditLog     string        `koanf:"audit_log" json:"audit_log"`
	Verbose      bool          `koanf:"verbose" json:"verbose"`
}

// Defaults returns the flat default key set.
func Defaults() map[string]any {
	return map[string]any{
		"backend_url":    "http://localhost:8080",
		"projects_url":   "",
		"app_url":        "http://localhost:3000",
		"supabase.url":   "",
		"schema":         teamauth.SchemaV2.String(),
		"store.kind":     StoreFile,
		"store.path":     "",
		"store.redis_db": 0,
		"store.ttl":      "0s",
		"email_domains":  append([]string(nil), teamauth.DefaultInstitutionDomains...),
		"phone_region":   teamauth.DefaultPhoneRegion,
		"callback_addr":  "127.0.0.1:5173",
		"rate_limit":     0,
		"timeout":        "15s",
		"audit_log":      "",
		"verbose":        false,
	}
}

// LoadOptions selects the sources to read.
type LoadOptions struct {
	// Path is an explicit config file. It must exist when set.
	Path string
	// Flags are applied last. Only flags the user changed override.
	Flags *pflag.FlagSet
}

// Load resolves the configuration and validates it.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			parser, err := parserFor(path)
			if err != nil {
				return nil, err
			}
			if err := k.Load(file.Provider(path), parser); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if explicit {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			return flagKey(f.Name), posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("config: flags: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath is teamauth/config.yaml under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "teamauth", "config.yaml")
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return json.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported file type %q", filepath.Ext(path))
	}
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

var flagKeys = map[string]string{
	"supabase-url":      "supabase.url",
	"supabase-anon-key": "supabase.anon_key",
	"store":             "store.kind",
	"store-path":        "store.path",
	"redis-addr":        "store.redis_addr",
	"redis-password":    "store.redis_password",
	"redis-db":          "store.redis_db",
	"store-ttl":         "store.ttl",
	"bun-dsn":           "store.dsn",
}

func flagKey(name string) string {
	if key, ok := flagKeys[name]; ok {
		return key
	}
	return strings.ReplaceAll(name, "-", "_")
}

func (c *Config) normalize() {
	c.BackendURL = strings.TrimRight(strings.TrimSpace(c.BackendURL), "/")
	c.ProjectsURL = strings.TrimRight(strings.TrimSpace(c.ProjectsURL), "/")
	if c.ProjectsURL == "" {
		c.ProjectsURL = c.BackendURL
	}
	c.AppURL = strings.TrimRight(strings.TrimSpace(c.AppURL), "/")
	c.Store.Kind = strings.ToLower(strings.TrimSpace(c.Store.Kind))
	c.PhoneRegion = strings.ToUpper(strings.TrimSpace(c.PhoneRegion))

	domains := c.EmailDomains[:0]
	for _, d := range c.EmailDomains {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}
	c.EmailDomains = domains
}

// Validate checks the resolved values.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.BackendURL, validation.Required, is.URL),
		validation.Field(&c.ProjectsURL, is.URL),
		validation.Field(&c.AppURL, validation.Required, is.URL),
		validation.Field(&c.Schema, validation.By(func(any) error {
			_, err := teamauth.ParseSchemaVersion(c.Schema)
			return err
		})),
		validation.Field(&c.RateLimit, validation.Min(0.0)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Store),
		validation.Field(&c.Supabase),
	)
	if err == nil {
		return nil
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return invalid(verrs)
	}
	return err
}

func invalid(err error) error {
	rich := teamauth.ErrValidation.Clone()
	rich.Message = "invalid configuration: " + err.Error()
	return rich.WithMetadata(map[string]any{"fields": err.Error()})
}

// Validate implements validation.Validatable.
func (s Store) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Kind, validation.Required, validation.In(StoreMemory, StoreFile, StoreRedis, StoreBun)),
		validation.Field(&s.RedisAddr, validation.When(s.Kind == StoreRedis, validation.Required)),
		validation.Field(&s.DSN, validation.When(s.Kind == StoreBun, validation.Required)),
		validation.Field(&s.TTL, validation.Min(time.Duration(0))),
	)
}

// Validate implements validation.Validatable. The identity provider settings
// are optional until a command needs them; see RequireSupabase.
func (s Supabase) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.URL, is.URL),
	)
}

// RequireSupabase reports a validation error when the identity provider is
// not configured.
func (c *Config) RequireSupabase() error {
	err := validation.ValidateStruct(&c.Supabase,
		validation.Field(&c.Supabase.URL, validation.Required, is.URL),
		validation.Field(&c.Supabase.AnonKey, validation.Required),
	)
	if err != nil {
		return invalid(err)
	}
	return nil
}

// SchemaVersion returns the parsed wire schema.
func (c *Config) SchemaVersion() teamauth.SchemaVersion {
	v, err := teamauth.ParseSchemaVersion(c.Schema)
	if err != nil {
		return teamauth.SchemaV2
	}
	return v
}
