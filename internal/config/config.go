package config

import (
	"fmt"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/spf13/viper"
)

const (
	JournalBackendFile     = "file"
	JournalBackendPostgres = "postgres"
)

type Config struct {
	Env                  string        `mapstructure:"ENV"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	FHIRBaseURL          string        `mapstructure:"FHIR_BASE_URL"`
	APIBaseURL           string        `mapstructure:"API_BASE_URL"`
	AuthTokenURL         string        `mapstructure:"AUTH_TOKEN_URL"`
	ClientID             string        `mapstructure:"CLIENT_ID"`
	ClientSecret         string        `mapstructure:"CLIENT_SECRET"`
	ClientPrivateKeyFile string        `mapstructure:"CLIENT_PRIVATE_KEY_FILE"`
	HTTPTimeout          time.Duration `mapstructure:"HTTP_TIMEOUT"`
	DataDir              string        `mapstructure:"DATA_DIR"`
	MappingsDir          string        `mapstructure:"MAPPINGS_DIR"`
	ResultsDir           string        `mapstructure:"RESULTS_DIR"`
	Delimiter            string        `mapstructure:"DELIMITER"`
	JournalBackend       string        `mapstructure:"JOURNAL_BACKEND"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	SourceSystem         string        `mapstructure:"SOURCE_SYSTEM"`
	DefaultProvider      string        `mapstructure:"DEFAULT_PROVIDER"`
	DefaultLocation      string        `mapstructure:"DEFAULT_LOCATION"`
	NoteTypeName         string        `mapstructure:"NOTE_TYPE_NAME"`
	NoteServiceTime      string        `mapstructure:"NOTE_SERVICE_TIME"`
	ReportAddr           string        `mapstructure:"REPORT_ADDR"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("DATA_DIR", "PHI")
	v.SetDefault("MAPPINGS_DIR", "mappings")
	v.SetDefault("RESULTS_DIR", "results")
	v.SetDefault("DELIMITER", "|")
	v.SetDefault("JOURNAL_BACKEND", JournalBackendFile)
	v.SetDefault("DB_MAX_CONNS", 4)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("NOTE_TYPE_NAME", "Data Migration")
	v.SetDefault("REPORT_ADDR", ":8090")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("FHIR_BASE_URL")
	v.BindEnv("API_BASE_URL")
	v.BindEnv("AUTH_TOKEN_URL")
	v.BindEnv("CLIENT_ID")
	v.BindEnv("CLIENT_SECRET")
	v.BindEnv("CLIENT_PRIVATE_KEY_FILE")
	v.BindEnv("HTTP_TIMEOUT")
	v.BindEnv("DATA_DIR")
	v.BindEnv("MAPPINGS_DIR")
	v.BindEnv("RESULTS_DIR")
	v.BindEnv("DELIMITER")
	v.BindEnv("JOURNAL_BACKEND")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("SOURCE_SYSTEM")
	v.BindEnv("DEFAULT_PROVIDER")
	v.BindEnv("DEFAULT_LOCATION")
	v.BindEnv("NOTE_TYPE_NAME")
	v.BindEnv("NOTE_SERVICE_TIME")
	v.BindEnv("REPORT_ADDR")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// DelimiterRune returns the single-character field delimiter used for source
// files and journals.
func (c *Config) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

// Validate checks the settings every command needs. API credentials are only
// checked by ValidateForLoad so that validation runs work offline.
func (c *Config) Validate() error {
	if utf8.RuneCountInString(c.Delimiter) != 1 {
		return fmt.Errorf("DELIMITER must be a single character, got %q", c.Delimiter)
	}
	switch c.DelimiterRune() {
	case '"', '\r', '\n', utf8.RuneError:
		return fmt.Errorf("DELIMITER %q is not usable as a field separator", c.Delimiter)
	}

	switch c.JournalBackend {
	case JournalBackendFile:
	case JournalBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when JOURNAL_BACKEND is %q", JournalBackendPostgres)
		}
	default:
		return fmt.Errorf("JOURNAL_BACKEND must be %q or %q, got %q", JournalBackendFile, JournalBackendPostgres, c.JournalBackend)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	return nil
}

// ValidateForLoad checks the remote API settings required by the load phase.
func (c *Config) ValidateForLoad() error {
	if c.FHIRBaseURL == "" {
		return fmt.Errorf("FHIR_BASE_URL is required to load records")
	}
	if c.ClientID == "" {
		return fmt.Errorf("CLIENT_ID is required to load records")
	}
	if c.ClientSecret == "" && c.ClientPrivateKeyFile == "" {
		return fmt.Errorf("one of CLIENT_SECRET or CLIENT_PRIVATE_KEY_FILE is required to load records")
	}
	if c.TokenURL() == "" {
		return fmt.Errorf("AUTH_TOKEN_URL or API_BASE_URL is required to obtain an access token")
	}
	return nil
}

// TokenURL returns the OAuth token endpoint, derived from API_BASE_URL when
// AUTH_TOKEN_URL is not set.
func (c *Config) TokenURL() string {
	if c.AuthTokenURL != "" {
		return c.AuthTokenURL
	}
	if c.APIBaseURL != "" {
		return c.APIBaseURL + "/auth/token/"
	}
	return ""
}

func (c *Config) MappingPath(name string) string {
	return filepath.Join(c.MappingsDir, name)
}
