package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	HTTPAddr string `toml:"http_addr"`
	GRPCAddr string `toml:"grpc_addr"` // empty disables the gRPC health server

	Env string `toml:"env"` // "dev" | "prod"

	DB       DBConfig       `toml:"db"`
	Notify   NotifyConfig   `toml:"notify"`
	SMS      SMSConfig      `toml:"sms"`
	Email    EmailConfig    `toml:"email"`
	Schedule ScheduleConfig `toml:"schedule"`
	RunLog   RunLogConfig   `toml:"run_log"`
}

type DBConfig struct {
	Driver  string `toml:"driver"` // "sqlite" | "postgres" | "memory"
	Path    string `toml:"path"`   // sqlite file
	DSN     string `toml:"dsn"`    // postgres connection string
	KeyMode string `toml:"key_mode"`

	// SeedDev inserts sample alerts at start when Env is "dev", using
	// SeedPhone as their contact.
	SeedDev   bool   `toml:"seed_dev"`
	SeedPhone string `toml:"seed_phone"`
}

type NotifyConfig struct {
	Token string `toml:"token"`

	// AcceptedClassifications limits delivery to these classifications.
	// A single "*" accepts every record.
	AcceptedClassifications []string `toml:"accepted_classifications"`

	// MaxAgeMinutes is the default selection window; 0 means unbounded.
	MaxAgeMinutes int `toml:"max_age_minutes"`

	OverrideDestination string `toml:"override_destination"`
	AckInDryRun         bool   `toml:"ack_in_dry_run"`
	MessageTitle        string `toml:"message_title"`
	DeliveryConcurrency int    `toml:"delivery_concurrency"`

	ClaimMode       bool `toml:"claim_mode"`
	ClaimTTLMinutes int  `toml:"claim_ttl_minutes"`

	StoreTimeoutSeconds int `toml:"store_timeout_seconds"`
	SendTimeoutSeconds  int `toml:"send_timeout_seconds"`
}

type SMSConfig struct {
	Enabled     bool   `toml:"enabled"`
	AccountSID  string `toml:"account_sid"`
	AuthToken   string `toml:"auth_token"`
	From        string `toml:"from"`
	BaseURL     string `toml:"base_url"`
	CountryCode string `toml:"country_code"`

	// RatePerSecond paces sends; 0 disables pacing.
	RatePerSecond float64 `toml:"rate_per_second"`
	Burst         int     `toml:"burst"`
}

type EmailConfig struct {
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	Subject  string `toml:"subject"`
	NoVerify bool   `toml:"no_verify"`
}

// ScheduleConfig drives the built-in trigger.  It is active when either
// Cron or IntervalSeconds is set.
type ScheduleConfig struct {
	Cron            string `toml:"cron"`
	IntervalSeconds int    `toml:"interval_seconds"`
	RunOnStart      bool   `toml:"run_on_start"`
}

func (s ScheduleConfig) Active() bool {
	return strings.TrimSpace(s.Cron) != "" || s.IntervalSeconds > 0
}

type RunLogConfig struct {
	RetentionDays      int `toml:"retention_days"` // 0 = keep forever
	PruneIntervalHours int `toml:"prune_interval_hours"`
}

// DeliveryEnabled reports whether any transport is switched on.  When
// none is, every run is a dry run.
func (c Config) DeliveryEnabled() bool {
	return c.SMS.Enabled || c.Email.Enabled
}

// Classifications returns the accepted classification filter, with "*"
// meaning no filter.
func (c Config) Classifications() []string {
	for _, v := range c.Notify.AcceptedClassifications {
		if v == "*" {
			return nil
		}
	}
	return c.Notify.AcceptedClassifications
}

func Default() Config {
	return Config{
		HTTPAddr: ":10000",
		Env:      "dev",
		DB: DBConfig{
			Driver:  "sqlite",
			Path:    "./data/poolpilot.db",
			KeyMode: "id",
		},
		Notify: NotifyConfig{
			AcceptedClassifications: []string{"valid"},
			MaxAgeMinutes:           30,
			MessageTitle:            "🚨 Pool Alert",
			DeliveryConcurrency:     1,
			ClaimTTLMinutes:         10,
			StoreTimeoutSeconds:     30,
			SendTimeoutSeconds:      15,
		},
		SMS: SMSConfig{
			CountryCode: "1",
			Burst:       1,
		},
		Email: EmailConfig{
			Port:    587,
			Subject: "Pool Alert",
		},
		RunLog: RunLogConfig{
			RetentionDays:      30,
			PruneIntervalHours: 6,
		},
	}
}

// FromEnv returns the defaults overlaid with environment variables.
func FromEnv() Config {
	cfg := Default()
	applyEnv(&cfg)
	return cfg
}

// Load reads the TOML file at path (if any) over the defaults, then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.HTTPAddr = ":" + port
	}
	cfg.HTTPAddr = getenvDefault("POOLPILOT_HTTP_ADDR", cfg.HTTPAddr)
	cfg.GRPCAddr = getenvDefault("POOLPILOT_GRPC_ADDR", cfg.GRPCAddr)

	cfg.Env = strings.ToLower(getenvDefault("POOLPILOT_ENV", cfg.Env))
	if cfg.Env != "dev" && cfg.Env != "prod" {
		// fail-soft: treat unknown as dev
		cfg.Env = "dev"
	}

	cfg.DB.Driver = getenvDefault("POOLPILOT_DB_DRIVER", cfg.DB.Driver)
	cfg.DB.Path = getenvDefault("POOLPILOT_DB_PATH", cfg.DB.Path)
	cfg.DB.DSN = getenvDefault("POOLPILOT_DB_DSN", cfg.DB.DSN)
	cfg.DB.KeyMode = getenvDefault("POOLPILOT_KEY_MODE", cfg.DB.KeyMode)
	cfg.DB.SeedDev = getenvBool("POOLPILOT_SEED_DEV", cfg.DB.SeedDev)
	cfg.DB.SeedPhone = getenvDefault("POOLPILOT_SEED_PHONE", cfg.DB.SeedPhone)

	n := &cfg.Notify
	n.Token = getenvDefault("POOLPILOT_NOTIFY_TOKEN", getenvDefault("NOTIFY_TOKEN", n.Token))
	if v := splitCSV(os.Getenv("POOLPILOT_ACCEPTED_CLASSIFICATIONS")); v != nil {
		n.AcceptedClassifications = v
	}
	n.MaxAgeMinutes = getenvInt("POOLPILOT_MAX_AGE_MINUTES", n.MaxAgeMinutes)
	n.OverrideDestination = getenvDefault("POOLPILOT_OVERRIDE_DESTINATION", n.OverrideDestination)
	n.AckInDryRun = getenvBool("POOLPILOT_ACK_IN_DRY_RUN", n.AckInDryRun)
	n.MessageTitle = getenvDefault("POOLPILOT_MESSAGE_TITLE", n.MessageTitle)
	n.DeliveryConcurrency = getenvInt("POOLPILOT_DELIVERY_CONCURRENCY", n.DeliveryConcurrency)
	n.ClaimMode = getenvBool("POOLPILOT_CLAIM_MODE", n.ClaimMode)
	n.ClaimTTLMinutes = getenvInt("POOLPILOT_CLAIM_TTL_MINUTES", n.ClaimTTLMinutes)
	n.StoreTimeoutSeconds = getenvInt("POOLPILOT_STORE_TIMEOUT_SECONDS", n.StoreTimeoutSeconds)
	n.SendTimeoutSeconds = getenvInt("POOLPILOT_SEND_TIMEOUT_SECONDS", n.SendTimeoutSeconds)

	s := &cfg.SMS
	s.Enabled = getenvBool("POOLPILOT_SMS_ENABLED", getenvBool("SMS_ENABLED", s.Enabled))
	s.AccountSID = getenvDefault("POOLPILOT_TWILIO_SID", getenvDefault("TWILIO_SID", s.AccountSID))
	s.AuthToken = getenvDefault("POOLPILOT_TWILIO_AUTH", getenvDefault("TWILIO_AUTH", s.AuthToken))
	s.From = getenvDefault("POOLPILOT_TWILIO_FROM", getenvDefault("TWILIO_FROM", s.From))
	s.BaseURL = getenvDefault("POOLPILOT_TWILIO_BASE_URL", s.BaseURL)
	s.CountryCode = getenvDefault("POOLPILOT_SMS_COUNTRY_CODE", s.CountryCode)
	s.RatePerSecond = getenvFloat("POOLPILOT_SMS_RATE_PER_SECOND", s.RatePerSecond)
	s.Burst = getenvInt("POOLPILOT_SMS_BURST", s.Burst)

	e := &cfg.Email
	e.Enabled = getenvBool("POOLPILOT_EMAIL_ENABLED", e.Enabled)
	e.Host = getenvDefault("POOLPILOT_SMTP_HOST", e.Host)
	e.Port = getenvInt("POOLPILOT_SMTP_PORT", e.Port)
	e.Username = getenvDefault("POOLPILOT_SMTP_USERNAME", e.Username)
	e.Password = getenvDefault("POOLPILOT_SMTP_PASSWORD", e.Password)
	e.From = getenvDefault("POOLPILOT_SMTP_FROM", e.From)
	e.Subject = getenvDefault("POOLPILOT_SMTP_SUBJECT", e.Subject)
	e.NoVerify = getenvBool("POOLPILOT_SMTP_NO_VERIFY", e.NoVerify)

	cfg.Schedule.Cron = getenvDefault("POOLPILOT_SCHEDULE_CRON", cfg.Schedule.Cron)
	cfg.Schedule.IntervalSeconds = getenvInt("POOLPILOT_SCHEDULE_INTERVAL_SECONDS", cfg.Schedule.IntervalSeconds)
	cfg.Schedule.RunOnStart = getenvBool("POOLPILOT_SCHEDULE_RUN_ON_START", cfg.Schedule.RunOnStart)

	cfg.RunLog.RetentionDays = getenvInt("POOLPILOT_RUN_LOG_RETENTION_DAYS", cfg.RunLog.RetentionDays)
	cfg.RunLog.PruneIntervalHours = getenvInt("POOLPILOT_PRUNE_INTERVAL_HOURS", cfg.RunLog.PruneIntervalHours)
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

// getenvBool treats "true" and "1" as true and any other non-empty value
// as false.
func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
