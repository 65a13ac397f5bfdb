package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"contact-automation/internal/schedule"
)

// Config holds all configuration required by the API process.
// Values come from the environment, optionally seeded from a .env file.
// No business logic should depend on raw environment variables.
type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Telephony  TelephonyConfig
	Classifier ClassifierConfig
	Speech     SpeechConfig
	Coverage   CoverageConfig
	CRM        CRMConfig
	Pipeline   PipelineConfig
}

type AppConfig struct {
	Env  string
	Port int
}

// DBConfig is optional: with no host the ledger lives in memory.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// Zero keeps the pool defaults.
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional: with no host the keyed stores live in memory.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type TelephonyConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration

	// RecordingGrace is waited before the first recording lookup.
	RecordingGrace time.Duration
	// RecordingBackoff is waited before the single lookup retry.
	RecordingBackoff time.Duration
	DefaultDigit     string
	KeypressTTL      time.Duration
}

type ClassifierConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// Mock answers from keywords instead of calling the service.
	Mock bool
}

type SpeechConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type CoverageConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	PerSecond float64
	Burst     int
}

type CRMConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type PipelineConfig struct {
	SnapshotTTL       time.Duration
	CorrelationWindow time.Duration
	OrphanGrace       time.Duration
	SweepInterval     time.Duration
	RetryInterval     time.Duration
	StaleAfter        time.Duration
	MaxAttempts       int
	MinTranscript     int
	MaxMailBytes      int64

	Timezone      string
	BusinessOpen  string
	BusinessClose string
	FollowUpSlot  string
	FollowUpLead  time.Duration
}

var defaults = map[string]any{
	"APP_ENV":  "local",
	"APP_PORT": 8080,

	"DB_HOST":     "",
	"DB_PORT":     5432,
	"DB_USER":     "",
	"DB_PASSWORD": "",
	"DB_NAME":     "",
	"DB_SSLMODE":  "",

	"DB_MAX_OPEN_CONNS":    0,
	"DB_CONN_MAX_LIFETIME": "0s",

	"REDIS_HOST":     "",
	"REDIS_PORT":     6379,
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"JWT_SECRET":      "",
	"JWT_ISSUER":      "",
	"JWT_AUDIENCE":    "",
	"JWT_ACCESS_TTL":  "15m",
	"JWT_REFRESH_TTL": "720h",

	"TELEPHONY_BASE_URL":          "",
	"TELEPHONY_API_KEY":           "",
	"TELEPHONY_WEBHOOK_SECRET":    "",
	"TELEPHONY_TIMEOUT":           "15s",
	"TELEPHONY_RECORDING_GRACE":   "20s",
	"TELEPHONY_RECORDING_BACKOFF": "10s",
	"TELEPHONY_DEFAULT_DIGIT":     "0",
	"TELEPHONY_KEYPRESS_TTL":      "2h",

	"CLASSIFIER_BASE_URL": "",
	"CLASSIFIER_API_KEY":  "",
	"CLASSIFIER_MODEL":    "gpt-4o-mini",
	"CLASSIFIER_TIMEOUT":  "30s",
	"CLASSIFIER_MOCK":     false,

	"SPEECH_BASE_URL": "",
	"SPEECH_API_KEY":  "",
	"SPEECH_MODEL":    "whisper-1",
	"SPEECH_TIMEOUT":  "60s",

	"COVERAGE_BASE_URL":   "",
	"COVERAGE_API_KEY":    "",
	"COVERAGE_TIMEOUT":    "15s",
	"COVERAGE_PER_SECOND": 5.0,
	"COVERAGE_BURST":      5,

	"CRM_BASE_URL": "",
	"CRM_TOKEN":    "",
	"CRM_TIMEOUT":  "20s",

	"PIPELINE_SNAPSHOT_TTL":       "24h",
	"PIPELINE_CORRELATION_WINDOW": "2h",
	"PIPELINE_ORPHAN_GRACE":       "30m",
	"PIPELINE_SWEEP_INTERVAL":     "1m",
	"PIPELINE_RETRY_INTERVAL":     "1m",
	"PIPELINE_STALE_AFTER":        "10m",
	"PIPELINE_MAX_ATTEMPTS":       5,
	"PIPELINE_MIN_TRANSCRIPT":     10,
	"PIPELINE_MAX_MAIL_BYTES":     25 << 20,
	"PIPELINE_TIMEZONE":           "Europe/Moscow",
	"PIPELINE_BUSINESS_OPEN":      "09:00",
	"PIPELINE_BUSINESS_CLOSE":     "18:00",
	"PIPELINE_FOLLOW_UP_SLOT":     "10:00",
	"PIPELINE_FOLLOW_UP_LEAD":     "1h",
}

// Load reads .env (if present) and the environment, then validates.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	return FromViper(v)
}

// FromViper builds a validated Config from v.
func FromViper(v *viper.Viper) (Config, error) {
	c := Config{}

	c.App.Env = strings.TrimSpace(v.GetString("APP_ENV"))
	c.App.Port = v.GetInt("APP_PORT")

	c.DB.Host = strings.TrimSpace(v.GetString("DB_HOST"))
	c.DB.Port = v.GetInt("DB_PORT")
	c.DB.User = strings.TrimSpace(v.GetString("DB_USER"))
	c.DB.Password = v.GetString("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(v.GetString("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(v.GetString("DB_SSLMODE"))
	c.DB.MaxOpenConns = v.GetInt("DB_MAX_OPEN_CONNS")
	c.DB.ConnMaxLifetime = v.GetDuration("DB_CONN_MAX_LIFETIME")

	c.Redis.Host = strings.TrimSpace(v.GetString("REDIS_HOST"))
	c.Redis.Port = v.GetInt("REDIS_PORT")
	c.Redis.Password = v.GetString("REDIS_PASSWORD")
	c.Redis.DB = v.GetInt("REDIS_DB")

	c.Auth.JWTSecret = v.GetString("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(v.GetString("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(v.GetString("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = v.GetDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = v.GetDuration("JWT_REFRESH_TTL")

	c.Telephony.BaseURL = strings.TrimSpace(v.GetString("TELEPHONY_BASE_URL"))
	c.Telephony.APIKey = v.GetString("TELEPHONY_API_KEY")
	c.Telephony.WebhookSecret = v.GetString("TELEPHONY_WEBHOOK_SECRET")
	c.Telephony.Timeout = v.GetDuration("TELEPHONY_TIMEOUT")
	c.Telephony.RecordingGrace = v.GetDuration("TELEPHONY_RECORDING_GRACE")
	c.Telephony.RecordingBackoff = v.GetDuration("TELEPHONY_RECORDING_BACKOFF")
	c.Telephony.DefaultDigit = strings.TrimSpace(v.GetString("TELEPHONY_DEFAULT_DIGIT"))
	c.Telephony.KeypressTTL = v.GetDuration("TELEPHONY_KEYPRESS_TTL")

	c.Classifier.BaseURL = strings.TrimSpace(v.GetString("CLASSIFIER_BASE_URL"))
	c.Classifier.APIKey = v.GetString("CLASSIFIER_API_KEY")
	c.Classifier.Model = strings.TrimSpace(v.GetString("CLASSIFIER_MODEL"))
	c.Classifier.Timeout = v.GetDuration("CLASSIFIER_TIMEOUT")
	c.Classifier.Mock = v.GetBool("CLASSIFIER_MOCK")

	c.Speech.BaseURL = strings.TrimSpace(v.GetString("SPEECH_BASE_URL"))
	c.Speech.APIKey = v.GetString("SPEECH_API_KEY")
	c.Speech.Model = strings.TrimSpace(v.GetString("SPEECH_MODEL"))
	c.Speech.Timeout = v.GetDuration("SPEECH_TIMEOUT")

	c.Coverage.BaseURL = strings.TrimSpace(v.GetString("COVERAGE_BASE_URL"))
	c.Coverage.APIKey = v.GetString("COVERAGE_API_KEY")
	c.Coverage.Timeout = v.GetDuration("COVERAGE_TIMEOUT")
	c.Coverage.PerSecond = v.GetFloat64("COVERAGE_PER_SECOND")
	c.Coverage.Burst = v.GetInt("COVERAGE_BURST")

	c.CRM.BaseURL = strings.TrimSpace(v.GetString("CRM_BASE_URL"))
	c.CRM.Token = v.GetString("CRM_TOKEN")
	c.CRM.Timeout = v.GetDuration("CRM_TIMEOUT")

	c.Pipeline.SnapshotTTL = v.GetDuration("PIPELINE_SNAPSHOT_TTL")
	c.Pipeline.CorrelationWindow = v.GetDuration("PIPELINE_CORRELATION_WINDOW")
	c.Pipeline.OrphanGrace = v.GetDuration("PIPELINE_ORPHAN_GRACE")
	c.Pipeline.SweepInterval = v.GetDuration("PIPELINE_SWEEP_INTERVAL")
	c.Pipeline.RetryInterval = v.GetDuration("PIPELINE_RETRY_INTERVAL")
	c.Pipeline.StaleAfter = v.GetDuration("PIPELINE_STALE_AFTER")
	c.Pipeline.MaxAttempts = v.GetInt("PIPELINE_MAX_ATTEMPTS")
	c.Pipeline.MinTranscript = v.GetInt("PIPELINE_MIN_TRANSCRIPT")
	c.Pipeline.MaxMailBytes = v.GetInt64("PIPELINE_MAX_MAIL_BYTES")
	c.Pipeline.Timezone = strings.TrimSpace(v.GetString("PIPELINE_TIMEZONE"))
	c.Pipeline.BusinessOpen = strings.TrimSpace(v.GetString("PIPELINE_BUSINESS_OPEN"))
	c.Pipeline.BusinessClose = strings.TrimSpace(v.GetString("PIPELINE_BUSINESS_CLOSE"))
	c.Pipeline.FollowUpSlot = strings.TrimSpace(v.GetString("PIPELINE_FOLLOW_UP_SLOT"))
	c.Pipeline.FollowUpLead = v.GetDuration("PIPELINE_FOLLOW_UP_LEAD")

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate collects every problem and applies defaults that depend on
// the environment.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.UsePostgres() {
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.MaxOpenConns < 0 {
			errs = append(errs, fmt.Errorf("DB_MAX_OPEN_CONNS must not be negative, got %d", c.DB.MaxOpenConns))
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	} else if c.IsProduction() {
		errs = append(errs, errors.New("DB_HOST is required in production"))
	}

	if c.UseRedis() && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if c.Telephony.WebhookSecret == "" {
			errs = append(errs, errors.New("TELEPHONY_WEBHOOK_SECRET is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	for key, raw := range map[string]string{
		"TELEPHONY_BASE_URL":  c.Telephony.BaseURL,
		"CLASSIFIER_BASE_URL": c.Classifier.BaseURL,
		"SPEECH_BASE_URL":     c.Speech.BaseURL,
		"COVERAGE_BASE_URL":   c.Coverage.BaseURL,
		"CRM_BASE_URL":        c.CRM.BaseURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", key, raw))
		}
	}
	if c.CRM.BaseURL == "" && c.IsProduction() {
		errs = append(errs, errors.New("CRM_BASE_URL is required in production"))
	}

	if d := c.Telephony.DefaultDigit; len(d) != 1 || !strings.ContainsAny(d, "0123456789*#") {
		errs = append(errs, fmt.Errorf("TELEPHONY_DEFAULT_DIGIT must be one keypad symbol, got %q", d))
	}
	for key, d := range map[string]time.Duration{
		"TELEPHONY_TIMEOUT":  c.Telephony.Timeout,
		"CLASSIFIER_TIMEOUT": c.Classifier.Timeout,
		"SPEECH_TIMEOUT":     c.Speech.Timeout,
		"COVERAGE_TIMEOUT":   c.Coverage.Timeout,
		"CRM_TIMEOUT":        c.CRM.Timeout,
	} {
		if d <= 0 || d > 2*time.Minute {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 2m, got %s", key, d))
		}
	}
	if c.Coverage.PerSecond <= 0 {
		errs = append(errs, fmt.Errorf("COVERAGE_PER_SECOND must be positive, got %v", c.Coverage.PerSecond))
	}

	p := c.Pipeline
	if p.SnapshotTTL <= p.OrphanGrace {
		errs = append(errs, errors.New("PIPELINE_SNAPSHOT_TTL must be greater than PIPELINE_ORPHAN_GRACE"))
	}
	if p.OrphanGrace <= 0 || p.SweepInterval <= 0 || p.RetryInterval <= 0 || p.StaleAfter <= 0 || p.CorrelationWindow <= 0 {
		errs = append(errs, errors.New("PIPELINE_* durations must be positive"))
	}
	if p.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("PIPELINE_MAX_ATTEMPTS must be positive, got %d", p.MaxAttempts))
	}
	if _, err := c.Window(); err != nil {
		errs = append(errs, err)
	}

	return joinErrors(errs)
}

// Window builds the follow-up business window in the configured zone.
func (c *Config) Window() (schedule.Window, error) {
	loc, err := time.LoadLocation(c.Pipeline.Timezone)
	if err != nil {
		return schedule.Window{}, fmt.Errorf("PIPELINE_TIMEZONE: %w", err)
	}
	w, err := schedule.NewWindow(c.Pipeline.BusinessOpen, c.Pipeline.BusinessClose, c.Pipeline.FollowUpSlot, c.Pipeline.FollowUpLead, loc)
	if err != nil {
		return schedule.Window{}, fmt.Errorf("business window: %w", err)
	}
	return w, nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c *Config) UsePostgres() bool { return c.DB.Host != "" }

func (c *Config) UseRedis() bool { return c.Redis.Host != "" }

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c *Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s application_name=contact-automation",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
