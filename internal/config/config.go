package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	CompletionModeOpenAI = "openai"
	CompletionModeMock   = "mock"

	GeocoderModeNominatim = "nominatim"
	GeocoderModeOff       = "off"
)

// Config contains all runtime settings for the dialogue service.
type Config struct {
	BindAddr         string        `envconfig:"APP_BIND_ADDR" default:":5000"`
	ShutdownTimeout  time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"15s"`
	MetricsNamespace string        `envconfig:"APP_METRICS_NAMESPACE" default:"textgame"`
	Timezone         string        `envconfig:"APP_TIMEZONE" default:"Asia/Tokyo"`
	AllowedOrigins   []string      `envconfig:"APP_ALLOWED_ORIGINS" default:"*"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`

	CompletionMode string        `envconfig:"COMPLETION_MODE" default:"openai"`
	OpenAIAPIKey   string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL  string        `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAIModel    string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAITimeout  time.Duration `envconfig:"OPENAI_TIMEOUT" default:"30s"`

	CharactersFile     string `envconfig:"CHARACTERS_FILE" default:"characters.csv"`
	CharacterColumns   string `envconfig:"CHARACTER_COLUMNS"`
	DefaultCharacterID string `envconfig:"DEFAULT_CHARACTER_ID" default:"mano"`
	DefaultAffection   int    `envconfig:"DEFAULT_AFFECTION" default:"50"`

	GeocoderMode      string        `envconfig:"GEOCODER_MODE" default:"nominatim"`
	GeocoderURL       string        `envconfig:"GEOCODER_URL" default:"https://nominatim.openstreetmap.org"`
	GeocoderUserAgent string        `envconfig:"GEOCODER_USER_AGENT" default:"chat-app"`
	GeocoderTimeout   time.Duration `envconfig:"GEOCODER_TIMEOUT" default:"2s"`
	GeocodeCacheSize  int           `envconfig:"GEOCODE_CACHE_SIZE" default:"500"`
	GeocodeCacheTTL   time.Duration `envconfig:"GEOCODE_CACHE_TTL" default:"6h"`

	DatabaseURL  string `envconfig:"DATABASE_URL"`
	RedactLogPII bool   `envconfig:"LOG_REDACT_PII" default:"true"`
}

// Load reads an optional .env file, then environment variables, and validates the result.
// Later files in envFiles do not override keys set by earlier ones or by the real environment.
func Load(envFiles ...string) (Config, error) {
	cfg, err := load(envFiles)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOffline is Load for commands that never call the completion API: the
// API key is not required.
func LoadOffline(envFiles ...string) (Config, error) {
	cfg, err := load(envFiles)
	if err != nil {
		return Config{}, err
	}
	if cfg.CompletionMode == CompletionModeOpenAI && cfg.OpenAIAPIKey == "" {
		cfg.CompletionMode = CompletionModeMock
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func load(envFiles []string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.CompletionMode = strings.ToLower(strings.TrimSpace(c.CompletionMode))
	c.GeocoderMode = strings.ToLower(strings.TrimSpace(c.GeocoderMode))
	c.OpenAIAPIKey = strings.TrimSpace(c.OpenAIAPIKey)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.DefaultCharacterID = strings.TrimSpace(c.DefaultCharacterID)

	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins
}

// Validate reports configuration errors that must stop the process from starting.
func (c Config) Validate() error {
	switch c.CompletionMode {
	case CompletionModeOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required when COMPLETION_MODE=openai")
		}
	case CompletionModeMock:
	default:
		return fmt.Errorf("invalid COMPLETION_MODE: %q (expected openai|mock)", c.CompletionMode)
	}

	switch c.GeocoderMode {
	case GeocoderModeNominatim, GeocoderModeOff:
	default:
		return fmt.Errorf("invalid GEOCODER_MODE: %q (expected nominatim|off)", c.GeocoderMode)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	if c.DefaultAffection < 0 || c.DefaultAffection > 100 {
		return fmt.Errorf("DEFAULT_AFFECTION must be within 0..100, got %d", c.DefaultAffection)
	}
	if c.OpenAITimeout <= 0 {
		return errors.New("OPENAI_TIMEOUT must be positive")
	}
	if c.GeocoderTimeout <= 0 {
		return errors.New("GEOCODER_TIMEOUT must be positive")
	}
	if c.GeocodeCacheSize <= 0 {
		return errors.New("GEOCODE_CACHE_SIZE must be positive")
	}
	if c.GeocodeCacheTTL <= 0 {
		return errors.New("GEOCODE_CACHE_TTL must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}
