package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile     = "config.yaml"
	DefaultTOMLConfigFile = "config.toml"
	DefaultLimit          = 10
	DefaultMirrorPath     = "/{account}/rss"
	DefaultMirrorTimeout  = 10 * time.Second
	DefaultFeedLabel      = "feed"
	DefaultOutDir         = "docs/daily"
	DefaultFormat         = "markdown"
	DefaultTimezone       = "UTC"
	DefaultSummarizeMode  = "heuristic"
	DefaultTemperature    = 0.4
	DefaultMaxTokens      = 300
)

// Backends.
const (
	BackendLibrary    = "library"
	BackendSubprocess = "subprocess"
	BackendMirror     = "mirror"
	BackendFeed       = "feed"
)

// Summarizer modes.
const (
	ModeHeuristic = "heuristic"
	ModeOpenAI    = "openai"
	ModeGemini    = "gemini"
)

var defaultAPIKeyEnv = map[string]string{
	ModeOpenAI: "OPENAI_API_KEY",
	ModeGemini: "GEMINI_API_KEY",
}

// Duration wraps time.Duration for unmarshaling from strings like "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Accounts   []string         `yaml:"accounts" toml:"accounts" validate:"dive,required"`
	Limit      int              `yaml:"limit" toml:"limit" validate:"gte=0"`
	Backend    string           `yaml:"backend" toml:"backend" validate:"required,oneof=library subprocess mirror feed"`
	Library    LibraryConfig    `yaml:"library" toml:"library"`
	Subprocess SubprocessConfig `yaml:"subprocess" toml:"subprocess"`
	Mirror     MirrorConfig     `yaml:"mirror" toml:"mirror"`
	Feed       FeedConfig       `yaml:"feed" toml:"feed"`
	HTTP       HTTPConfig       `yaml:"http" toml:"http"`
	Summarize  SummarizeConfig  `yaml:"summarize" toml:"summarize"`
	Privacy    PrivacyConfig    `yaml:"privacy" toml:"privacy"`
	Digest     DigestConfig     `yaml:"digest" toml:"digest"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`

	// Path of the file the config was read from.
	Path string `yaml:"-" toml:"-"`
}

type LibraryConfig struct {
	Host    string   `yaml:"host" toml:"host" validate:"omitempty,url"`
	Timeout Duration `yaml:"timeout" toml:"timeout"`
}

type SubprocessConfig struct {
	Command   []string `yaml:"command" toml:"command"`
	Timeout   Duration `yaml:"timeout" toml:"timeout"`
	Permalink string   `yaml:"permalink" toml:"permalink"`
}

type MirrorConfig struct {
	Endpoints   []string `yaml:"endpoints" toml:"endpoints" validate:"dive,url"`
	Path        string   `yaml:"path" toml:"path"`
	Timeout     Duration `yaml:"timeout" toml:"timeout"`
	AcceptEmpty bool     `yaml:"accept_empty" toml:"accept_empty"`
	Permalink   string   `yaml:"permalink" toml:"permalink"`
}

type FeedConfig struct {
	URL      string   `yaml:"url" toml:"url" validate:"omitempty,url"`
	Label    string   `yaml:"label" toml:"label"`
	MaxItems int      `yaml:"max_items" toml:"max_items" validate:"gte=0"`
	Timeout  Duration `yaml:"timeout" toml:"timeout"`
}

type HTTPConfig struct {
	UserAgent string `yaml:"user_agent" toml:"user_agent"`

	// InsecureSkipVerify applies to the mirror and feed client only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" toml:"insecure_skip_verify"`
}

type SummarizeConfig struct {
	Mode        string   `yaml:"mode" toml:"mode" validate:"oneof=heuristic openai gemini"`
	Model       string   `yaml:"model" toml:"model"`
	APIKeyEnv   string   `yaml:"api_key_env" toml:"api_key_env"`
	Endpoint    string   `yaml:"endpoint" toml:"endpoint" validate:"omitempty,url"`
	Temperature *float64 `yaml:"temperature" toml:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int      `yaml:"max_tokens" toml:"max_tokens" validate:"gte=0"`
	Timeout     Duration `yaml:"timeout" toml:"timeout"`
	Language    string   `yaml:"language" toml:"language"`
	Prompt      string   `yaml:"prompt" toml:"prompt"`

	// Resolved from env var at load time.
	APIKey string `yaml:"-" toml:"-"`
}

type PrivacyConfig struct {
	Redact RedactConfig `yaml:"redact" toml:"redact"`
}

type RedactConfig struct {
	Enabled  bool     `yaml:"enabled" toml:"enabled"`
	Patterns []string `yaml:"patterns" toml:"patterns"`
}

type DigestConfig struct {
	OutDir   string `yaml:"out_dir" toml:"out_dir"`
	Format   string `yaml:"format" toml:"format" validate:"oneof=markdown json terminal"`
	Timezone string `yaml:"timezone" toml:"timezone"`
	Title    string `yaml:"title" toml:"title"`
	Heading  string `yaml:"heading" toml:"heading"`
	Excerpt  string `yaml:"excerpt" toml:"excerpt"`
	LinkText string `yaml:"link_text" toml:"link_text"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile" toml:"textfile"`
}

// Location returns the digest timezone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Digest.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadDotEnv loads .env from each dir that has one. Variables already set
// in the environment win.
func LoadDotEnv(dirs ...string) error {
	for _, dir := range dirs {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads config.yaml (or config.toml) from dir, applies defaults,
// resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	cfg, err := read(dir)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	resolveEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func read(dir string) (*Config, error) {
	var cfg Config

	yamlPath := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(yamlPath)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		cfg.Path = yamlPath
		return &cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	tomlPath := filepath.Join(dir, DefaultTOMLConfigFile)
	data, err = os.ReadFile(tomlPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: no %s or %s in %s", DefaultConfigFile, DefaultTOMLConfigFile, dir)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Path = tomlPath
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Limit == 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Mirror.Path == "" {
		cfg.Mirror.Path = DefaultMirrorPath
	}
	if cfg.Mirror.Timeout.Duration == 0 {
		cfg.Mirror.Timeout.Duration = DefaultMirrorTimeout
	}
	if cfg.Feed.Label == "" {
		cfg.Feed.Label = DefaultFeedLabel
	}
	if cfg.Backend == BackendFeed && len(cfg.Accounts) == 0 {
		cfg.Accounts = []string{cfg.Feed.Label}
	}
	if cfg.Digest.OutDir == "" {
		cfg.Digest.OutDir = DefaultOutDir
	}
	if cfg.Digest.Format == "" {
		cfg.Digest.Format = DefaultFormat
	}
	if cfg.Digest.Timezone == "" {
		cfg.Digest.Timezone = DefaultTimezone
	}
	if cfg.Summarize.Mode == "" {
		cfg.Summarize.Mode = DefaultSummarizeMode
	}
	if cfg.Summarize.Temperature == nil {
		t := DefaultTemperature
		cfg.Summarize.Temperature = &t
	}
	if cfg.Summarize.MaxTokens == 0 {
		cfg.Summarize.MaxTokens = DefaultMaxTokens
	}
	if cfg.Summarize.APIKeyEnv == "" {
		cfg.Summarize.APIKeyEnv = defaultAPIKeyEnv[cfg.Summarize.Mode]
	}
}

func resolveEnv(cfg *Config) {
	if cfg.Summarize.APIKeyEnv != "" {
		cfg.Summarize.APIKey = os.Getenv(cfg.Summarize.APIKeyEnv)
	}
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return err
	}

	switch cfg.Backend {
	case BackendMirror:
		if len(cfg.Mirror.Endpoints) == 0 {
			return errors.New("mirror.endpoints: at least one endpoint is required")
		}
	case BackendSubprocess:
		if len(cfg.Subprocess.Command) == 0 || strings.TrimSpace(cfg.Subprocess.Command[0]) == "" {
			return errors.New("subprocess.command: a command is required")
		}
	case BackendFeed:
		if cfg.Feed.URL == "" {
			return errors.New("feed.url: required for the feed backend")
		}
		// One feed makes one shared section; a second account would repeat it.
		if len(cfg.Accounts) > 1 {
			return fmt.Errorf("accounts: the feed backend takes a single label, got %d accounts (set feed.label instead)", len(cfg.Accounts))
		}
	}

	if len(cfg.Accounts) == 0 {
		return errors.New("accounts: at least one account must be configured")
	}

	if _, err := time.LoadLocation(cfg.Digest.Timezone); err != nil {
		return fmt.Errorf("digest.timezone: %w", err)
	}

	for i, p := range cfg.Privacy.Redact.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("privacy.redact.patterns[%d]: %w", i, err)
		}
	}

	return nil
}

// fieldError turns a validator error into a config-key message.
func fieldError(fe validator.FieldError) error {
	key := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config."))
	switch fe.Tag() {
	case "oneof":
		return fmt.Errorf("%s: unknown value %q (want one of %s)", key, fe.Value(), fe.Param())
	case "required":
		return fmt.Errorf("%s: required", key)
	case "url":
		return fmt.Errorf("%s: %q is not a valid URL", key, fe.Value())
	default:
		return fmt.Errorf("%s: failed %s=%s", key, fe.Tag(), fe.Param())
	}
}
