package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	appLog "remindly/internal/log"
	"remindly/internal/model"
	"remindly/internal/remind"
)

// CronOff disables a scheduled job when used as its cron spec.
const CronOff = "off"

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// WebhookConfig points reminder delivery at an HTTP endpoint.
type WebhookConfig struct {
	URL            string `yaml:"url" json:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone of the account (e.g. "Asia/Seoul").
	// Dates in commands and reminder times are interpreted in it.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path" json:"db_path"`

	// ExpandCron, DispatchCron and CleanupCron are standard five-field cron
	// specs for the scheduler passes. "off" disables a pass.
	ExpandCron   string `yaml:"expand_cron" json:"expand_cron"`
	DispatchCron string `yaml:"dispatch_cron" json:"dispatch_cron"`
	CleanupCron  string `yaml:"cleanup_cron" json:"cleanup_cron"`

	// HorizonMonths is how far ahead recurring tasks are materialized.
	HorizonMonths int `yaml:"horizon_months" json:"horizon_months"`

	// DailyReminderAt and SpecialReminderAt are "HH:MM" wall clock times
	// for the same-day digest and the special day-of reminder.
	DailyReminderAt   string `yaml:"daily_reminder_at" json:"daily_reminder_at"`
	SpecialReminderAt string `yaml:"special_reminder_at" json:"special_reminder_at"`

	// HourlyLeadMinutes is the lead time of the hourly reminder.
	HourlyLeadMinutes int `yaml:"hourly_lead_minutes" json:"hourly_lead_minutes"`

	// RetentionDays is how long finished tasks and sent reminders are kept.
	RetentionDays int `yaml:"retention_days" json:"retention_days"`

	// Webhook, if non-nil, receives every reminder as a JSON POST. Without
	// it reminders are only logged.
	Webhook *WebhookConfig `yaml:"webhook,omitempty" json:"webhook,omitempty"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:            "127.0.0.1:8080",
		Timezone:          "Asia/Seoul",
		DBPath:            "/var/lib/remindly/remindly.db",
		ExpandCron:        "*/15 * * * *",
		DispatchCron:      "* * * * *",
		CleanupCron:       "0 3 * * *",
		HorizonMonths:     3,
		DailyReminderAt:   "05:30",
		SpecialReminderAt: "05:30",
		HourlyLeadMinutes: 60,
		RetentionDays:     30,
		LogLevel:          "info",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	if c.ExpandCron == "" {
		c.ExpandCron = d.ExpandCron
	}
	if c.DispatchCron == "" {
		c.DispatchCron = d.DispatchCron
	}
	if c.CleanupCron == "" {
		c.CleanupCron = d.CleanupCron
	}
	if c.HorizonMonths <= 0 {
		c.HorizonMonths = d.HorizonMonths
	}
	if c.DailyReminderAt == "" {
		c.DailyReminderAt = d.DailyReminderAt
	}
	if c.SpecialReminderAt == "" {
		c.SpecialReminderAt = d.SpecialReminderAt
	}
	if c.HourlyLeadMinutes <= 0 {
		c.HourlyLeadMinutes = d.HourlyLeadMinutes
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Webhook != nil && c.Webhook.URL == "" {
		c.Webhook = nil
	}
	if c.Webhook != nil && c.Webhook.TimeoutSeconds <= 0 {
		c.Webhook.TimeoutSeconds = 10
	}
}

// Validate checks the values Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	for name, spec := range map[string]string{
		"expand_cron":   c.ExpandCron,
		"dispatch_cron": c.DispatchCron,
		"cleanup_cron":  c.CleanupCron,
	} {
		if spec == CronOff {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s %q: %w", name, spec, err))
		}
	}
	if _, err := model.ParseClock(c.DailyReminderAt); err != nil {
		errs = append(errs, fmt.Errorf("daily_reminder_at: %w", err))
	}
	if _, err := model.ParseClock(c.SpecialReminderAt); err != nil {
		errs = append(errs, fmt.Errorf("special_reminder_at: %w", err))
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		errs = append(errs, errors.New("basic_auth: username and password are both required"))
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("unknown timezone, using UTC", err, "timezone", c.Timezone)
		return time.UTC
	}
	return loc
}

// Policy builds the reminder policy for loc from the configured offsets.
func (c *Config) Policy(loc *time.Location) (remind.Policy, error) {
	daily, err := model.ParseClock(c.DailyReminderAt)
	if err != nil {
		return remind.Policy{}, err
	}
	special, err := model.ParseClock(c.SpecialReminderAt)
	if err != nil {
		return remind.Policy{}, err
	}
	return remind.Policy{
		Location:       loc,
		DailyAt:        daily,
		SpecialDayOfAt: special,
		HourlyLead:     time.Duration(c.HourlyLeadMinutes) * time.Minute,
	}, nil
}

// Retention returns RetentionDays as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// JobSpec maps the "off" sentinel to the empty spec the scheduler treats
// as disabled.
func JobSpec(spec string) string {
	if spec == CronOff {
		return ""
	}
	return spec
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			appLog.Info("wrote default config", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".remindly-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
