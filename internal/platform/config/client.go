package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	JournalMemory   = "memory"
	JournalPostgres = "postgres"

	FeedNone  = "none"
	FeedMQTT  = "mqtt"
	FeedKafka = "kafka"
)

// ClientConfig configures the driver client binary.
type ClientConfig struct {
	Dispatch DispatchConfig `yaml:"dispatch"`
	Sync     SyncConfig     `yaml:"sync"`
	Console  ConsoleConfig  `yaml:"console"`
	Journal  JournalConfig  `yaml:"journal"`
	Feed     FeedConfig     `yaml:"feed"`
	Location LocationConfig `yaml:"location"`
	Log      LogConfig      `yaml:"log"`
}

type DispatchConfig struct {
	// URL is the backend API root, e.g. http://localhost:8080/api.
	URL         string        `yaml:"url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

type SyncConfig struct {
	StatePollInterval      time.Duration `yaml:"state_poll_interval"`
	AssignmentPollInterval time.Duration `yaml:"assignment_poll_interval"`
	NoticeTTL              time.Duration `yaml:"notice_ttl"`
	LocationTimeout        time.Duration `yaml:"location_timeout"`
}

type ConsoleConfig struct {
	Addr string `yaml:"addr"`
	// Token guards every console route except /healthz. Empty disables the check.
	Token          string   `yaml:"token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type JournalConfig struct {
	Backend     string `yaml:"backend"`
	DatabaseURL string `yaml:"database_url"`
}

type FeedConfig struct {
	Backend      string   `yaml:"backend"`
	Topic        string   `yaml:"topic"`
	MQTTBroker   string   `yaml:"mqtt_broker"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
}

// LocationConfig holds the fallback position used when no device locator exists.
type LocationConfig struct {
	DefaultLat *float64 `yaml:"default_lat"`
	DefaultLng *float64 `yaml:"default_lng"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultClientConfig returns the built-in defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Dispatch: DispatchConfig{
			URL:         "http://localhost:8080/api",
			HTTPTimeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			StatePollInterval:      12 * time.Second,
			AssignmentPollInterval: 8 * time.Second,
			NoticeTTL:              5 * time.Second,
			LocationTimeout:        10 * time.Second,
		},
		Console: ConsoleConfig{
			Addr:           "127.0.0.1:8090",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Journal: JournalConfig{Backend: JournalMemory},
		Feed:    FeedConfig{Backend: FeedNone, Topic: "dispatch/driver-views"},
		Log:     LogConfig{Level: "info"},
	}
}

// LoadClientConfig applies, in order: defaults, the YAML file at path (a missing file
// or empty path is skipped), then environment overrides. The result is validated.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return ClientConfig{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return ClientConfig{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := applyClientEnv(&cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func applyClientEnv(cfg *ClientConfig) error {
	setString(&cfg.Dispatch.URL, "DISPATCH_API_URL")
	setString(&cfg.Console.Addr, "CONSOLE_ADDR")
	setString(&cfg.Console.Token, "CONSOLE_TOKEN")
	setList(&cfg.Console.AllowedOrigins, "CONSOLE_ALLOWED_ORIGINS")
	setString(&cfg.Journal.Backend, "JOURNAL_BACKEND")
	setString(&cfg.Journal.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Feed.Backend, "FEED_BACKEND")
	setString(&cfg.Feed.Topic, "FEED_TOPIC")
	setString(&cfg.Feed.MQTTBroker, "MQTT_BROKER")
	setList(&cfg.Feed.KafkaBrokers, "KAFKA_BROKERS")
	setString(&cfg.Log.Level, "LOG_LEVEL")

	durations := []struct {
		env string
		dst *time.Duration
		eg  string
	}{
		{"DISPATCH_HTTP_TIMEOUT", &cfg.Dispatch.HTTPTimeout, "10s"},
		{"STATE_POLL_INTERVAL", &cfg.Sync.StatePollInterval, "12s"},
		{"ASSIGNMENT_POLL_INTERVAL", &cfg.Sync.AssignmentPollInterval, "8s"},
		{"NOTICE_TTL", &cfg.Sync.NoticeTTL, "5s"},
		{"LOCATION_TIMEOUT", &cfg.Sync.LocationTimeout, "10s"},
	}
	for _, d := range durations {
		if v := os.Getenv(d.env); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s must be a duration (e.g. %s): %w", d.env, d.eg, err)
			}
			*d.dst = parsed
		}
	}

	floats := []struct {
		env string
		dst **float64
	}{
		{"DEFAULT_LAT", &cfg.Location.DefaultLat},
		{"DEFAULT_LNG", &cfg.Location.DefaultLng},
	}
	for _, f := range floats {
		if v := os.Getenv(f.env); v != "" {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("%s must be a number: %w", f.env, err)
			}
			*f.dst = &parsed
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c ClientConfig) Validate() error {
	u, err := url.Parse(c.Dispatch.URL)
	if c.Dispatch.URL == "" || err != nil || u.Host == "" {
		return fmt.Errorf("dispatch url must be an absolute URL, got %q", c.Dispatch.URL)
	}
	positive := []struct {
		name string
		v    time.Duration
	}{
		{"dispatch http_timeout", c.Dispatch.HTTPTimeout},
		{"state_poll_interval", c.Sync.StatePollInterval},
		{"assignment_poll_interval", c.Sync.AssignmentPollInterval},
		{"notice_ttl", c.Sync.NoticeTTL},
		{"location_timeout", c.Sync.LocationTimeout},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", p.name, p.v)
		}
	}

	switch strings.ToLower(c.Journal.Backend) {
	case JournalMemory:
	case JournalPostgres:
		if c.Journal.DatabaseURL == "" {
			return fmt.Errorf("journal backend %q requires DATABASE_URL", JournalPostgres)
		}
	default:
		return fmt.Errorf("unknown journal backend %q", c.Journal.Backend)
	}

	switch strings.ToLower(c.Feed.Backend) {
	case "", FeedNone:
	case FeedMQTT:
		if c.Feed.MQTTBroker == "" {
			return fmt.Errorf("feed backend %q requires MQTT_BROKER", FeedMQTT)
		}
	case FeedKafka:
		if len(c.Feed.KafkaBrokers) == 0 {
			return fmt.Errorf("feed backend %q requires KAFKA_BROKERS", FeedKafka)
		}
	default:
		return fmt.Errorf("unknown feed backend %q", c.Feed.Backend)
	}

	if (c.Location.DefaultLat == nil) != (c.Location.DefaultLng == nil) {
		return errors.New("default_lat and default_lng must be set together")
	}
	return nil
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, env string) {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
