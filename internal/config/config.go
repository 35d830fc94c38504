package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/maree/internal/models"
)

const (
	MinHTTPTimeout = 5 * time.Second
	MaxHTTPTimeout = 10 * time.Second

	MinEventDuration = 20 * time.Minute
	MaxEventDuration = 30 * time.Minute

	DefaultMareeInfoBaseURL  = "http://maree.info"
	DefaultHoraireBaseURL    = "https://www.horaire-maree.fr"
	DefaultWorldTidesBaseURL = "https://www.worldtides.info/api/v3"
)

type Config struct {
	Environment string
	LogLevel    zerolog.Level
	HTTPTimeout time.Duration

	Source         models.SourceKind
	Timezone       string
	PublishingZone string
	EventDuration  time.Duration
	ZoneCacheSize  int

	WorldTidesAPIKey       string
	WorldTidesCoefficients bool

	MareeInfoBaseURL  string
	HoraireBaseURL    string
	WorldTidesBaseURL string

	S3Bucket   string
	S3Prefix   string
	S3Endpoint string

	HTTPAddr string
}

type Option func(*Config)

// WithEnvironment allows setting the environment
func WithEnvironment(env string) Option {
	return func(c *Config) {
		c.Environment = env
	}
}

// WithLogLevel allows setting the log level
func WithLogLevel(level string) Option {
	return func(c *Config) {
		parsedLevel, err := zerolog.ParseLevel(level)
		if err != nil {
			parsedLevel = zerolog.InfoLevel
		}
		c.LogLevel = parsedLevel
	}
}

// WithHTTPTimeout sets the per-request timeout, kept within 5-10s.
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		switch {
		case timeout < MinHTTPTimeout:
			log.Warn().Dur("timeout", timeout).Msg("HTTP timeout too short, using minimum")
			timeout = MinHTTPTimeout
		case timeout > MaxHTTPTimeout:
			log.Warn().Dur("timeout", timeout).Msg("HTTP timeout too long, using maximum")
			timeout = MaxHTTPTimeout
		}
		c.HTTPTimeout = timeout
	}
}

// WithSource selects the default upstream. Unknown names keep the current one.
func WithSource(source string) Option {
	return func(c *Config) {
		if source == "" {
			return
		}
		kind, err := models.ParseSourceKind(source)
		if err != nil {
			log.Warn().Str("source", source).Msg("unknown source, keeping default")
			return
		}
		c.Source = kind
	}
}

func WithTimezone(zone string) Option {
	return func(c *Config) {
		if zone != "" {
			c.Timezone = zone
		}
	}
}

func WithPublishingZone(zone string) Option {
	return func(c *Config) {
		if zone != "" {
			c.PublishingZone = zone
		}
	}
}

// WithEventDuration sets the length of calendar events, kept within 20-30min.
// Zero keeps the current value.
func WithEventDuration(d time.Duration) Option {
	return func(c *Config) {
		switch {
		case d == 0:
			return
		case d < MinEventDuration:
			log.Warn().Dur("duration", d).Msg("event duration too short, using minimum")
			d = MinEventDuration
		case d > MaxEventDuration:
			log.Warn().Dur("duration", d).Msg("event duration too long, using maximum")
			d = MaxEventDuration
		}
		c.EventDuration = d
	}
}

func WithZoneCacheSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.ZoneCacheSize = n
		}
	}
}

func WithWorldTides(apiKey string, coefficients bool) Option {
	return func(c *Config) {
		c.WorldTidesAPIKey = apiKey
		c.WorldTidesCoefficients = coefficients
	}
}

// WithBaseURLs overrides upstream base URLs; empty values keep the defaults.
func WithBaseURLs(mareeInfo, horaire, worldTides string) Option {
	return func(c *Config) {
		if mareeInfo != "" {
			c.MareeInfoBaseURL = mareeInfo
		}
		if horaire != "" {
			c.HoraireBaseURL = horaire
		}
		if worldTides != "" {
			c.WorldTidesBaseURL = worldTides
		}
	}
}

func WithS3(bucket, prefix, endpoint string) Option {
	return func(c *Config) {
		c.S3Bucket = bucket
		c.S3Prefix = prefix
		c.S3Endpoint = endpoint
	}
}

func WithHTTPAddr(addr string) Option {
	return func(c *Config) {
		if addr != "" {
			c.HTTPAddr = addr
		}
	}
}

// New creates a new configuration with default values
func New(opts ...Option) *Config {
	cfg := &Config{
		Environment:            "production",
		LogLevel:               zerolog.InfoLevel,
		HTTPTimeout:            MaxHTTPTimeout,
		Source:                 models.SourceMareeInfo,
		Timezone:               "Europe/Paris",
		PublishingZone:         "Europe/Paris",
		EventDuration:          30 * time.Minute,
		ZoneCacheSize:          64,
		WorldTidesCoefficients: true,
		MareeInfoBaseURL:       DefaultMareeInfoBaseURL,
		HoraireBaseURL:         DefaultHoraireBaseURL,
		WorldTidesBaseURL:      DefaultWorldTidesBaseURL,
		S3Prefix:               "calendars/",
		HTTPAddr:               ":8080",
	}

	// Apply options
	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// InitializeLogging sets up logging based on the configuration
func (c *Config) InitializeLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(c.LogLevel)

	// Setup console logger for development environments
	if c.IsLocal() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func (c *Config) IsLocal() bool {
	return c.Environment == "local" || c.Environment == "development"
}

type env struct {
	Environment            string        `envconfig:"ENV" default:"production"`
	LogLevel               string        `envconfig:"LOG_LEVEL" default:"info"`
	HTTPTimeout            time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	Source                 string        `envconfig:"MAREE_SOURCE"`
	Timezone               string        `envconfig:"MAREE_TIMEZONE"`
	PublishingZone         string        `envconfig:"MAREE_PUBLISHING_ZONE"`
	WorldTidesAPIKey       string        `envconfig:"WORLDTIDES_API_KEY"`
	WorldTidesCoefficients bool          `envconfig:"WORLDTIDES_COEFFICIENTS" default:"true"`
	MareeInfoBaseURL       string        `envconfig:"MAREEINFO_BASE_URL"`
	HoraireBaseURL         string        `envconfig:"HORAIRE_BASE_URL"`
	WorldTidesBaseURL      string        `envconfig:"WORLDTIDES_BASE_URL"`
	EventDuration          time.Duration `envconfig:"EVENT_DURATION"`
	ZoneCacheSize          int           `envconfig:"ZONE_CACHE_SIZE"`
	S3Bucket               string        `envconfig:"S3_BUCKET"`
	S3Prefix               string        `envconfig:"S3_PREFIX" default:"calendars/"`
	S3Endpoint             string        `envconfig:"S3_ENDPOINT"`
	HTTPAddr               string        `envconfig:"HTTP_ADDR"`
}

// LoadFromEnv loads configuration from environment variables, then applies
// opts on top.
func LoadFromEnv(opts ...Option) (*Config, error) {
	var e env
	if err := envconfig.Process("", &e); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	fromEnv := []Option{
		WithEnvironment(e.Environment),
		WithLogLevel(e.LogLevel),
		WithHTTPTimeout(e.HTTPTimeout),
		WithSource(e.Source),
		WithTimezone(e.Timezone),
		WithPublishingZone(e.PublishingZone),
		WithEventDuration(e.EventDuration),
		WithZoneCacheSize(e.ZoneCacheSize),
		WithWorldTides(e.WorldTidesAPIKey, e.WorldTidesCoefficients),
		WithBaseURLs(e.MareeInfoBaseURL, e.HoraireBaseURL, e.WorldTidesBaseURL),
		WithS3(e.S3Bucket, e.S3Prefix, e.S3Endpoint),
		WithHTTPAddr(e.HTTPAddr),
	}
	return New(append(fromEnv, opts...)...), nil
}
