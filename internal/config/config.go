// Package config loads daemon and sync backend settings from an optional
// YAML file and LARDER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/backup"
	"github.com/dukerupert/larder/internal/push"
)

// Config is the local daemon configuration.
type Config struct {
	Port           string   `yaml:"port" validate:"required,numeric"`
	DBPath         string   `yaml:"db_path" validate:"required"`
	LogLevel       string   `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat      string   `yaml:"log_format" validate:"oneof=text json"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	Sync   SyncConfig   `yaml:"sync"`
	Backup BackupConfig `yaml:"backup"`
	Push   PushConfig   `yaml:"push"`
}

// SyncConfig points the daemon at a sync backend. An empty URL disables sync.
type SyncConfig struct {
	URL          string        `yaml:"url" validate:"omitempty,url"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
}

type BackupConfig struct {
	S3            backup.S3Config `yaml:"s3"`
	Prefix        string          `yaml:"prefix"`
	Interval      time.Duration   `yaml:"interval" validate:"gte=0"`
	RetentionDays int             `yaml:"retention_days" validate:"gte=0"`
}

// Manager converts the file settings into backup manager settings.
func (b BackupConfig) Manager() backup.Config {
	return backup.Config{
		S3:        b.S3,
		Prefix:    b.Prefix,
		Interval:  b.Interval,
		Retention: time.Duration(b.RetentionDays) * 24 * time.Hour,
	}
}

type PushConfig struct {
	push.Config   `yaml:",inline"`
	CheckInterval time.Duration `yaml:"check_interval" validate:"gte=0"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:      "8080",
		DBPath:    "larder.db",
		LogLevel:  "info",
		LogFormat: "text",
		Sync: SyncConfig{
			Timeout:      15 * time.Second,
			PollInterval: 5 * time.Second,
		},
		Backup: BackupConfig{
			Prefix:        "larder",
			Interval:      24 * time.Hour,
			RetentionDays: 30,
		},
		Push: PushConfig{CheckInterval: 15 * time.Minute},
	}
}

// Load reads path when it is not empty, then applies environment overrides
// on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := readFile(path, &cfg); err != nil {
		return cfg, err
	}

	var errs []error
	setString(&cfg.Port, "LARDER_PORT")
	setString(&cfg.DBPath, "LARDER_DB_PATH")
	setString(&cfg.LogLevel, "LARDER_LOG_LEVEL")
	setString(&cfg.LogFormat, "LARDER_LOG_FORMAT")
	if v := os.Getenv("LARDER_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	setString(&cfg.Sync.URL, "LARDER_SYNC_URL")
	errs = append(errs,
		setDuration(&cfg.Sync.Timeout, "LARDER_SYNC_TIMEOUT"),
		setDuration(&cfg.Sync.PollInterval, "LARDER_SYNC_POLL_INTERVAL"),
	)

	setString(&cfg.Backup.S3.Endpoint, "LARDER_S3_ENDPOINT")
	setString(&cfg.Backup.S3.Bucket, "LARDER_S3_BUCKET")
	setString(&cfg.Backup.S3.Region, "LARDER_S3_REGION")
	setString(&cfg.Backup.S3.AccessKey, "LARDER_S3_ACCESS_KEY")
	setString(&cfg.Backup.S3.SecretKey, "LARDER_S3_SECRET_KEY")
	errs = append(errs,
		setDuration(&cfg.Backup.Interval, "LARDER_BACKUP_INTERVAL"),
		setInt(&cfg.Backup.RetentionDays, "LARDER_BACKUP_RETENTION_DAYS"),
	)

	setString(&cfg.Push.VAPIDPublicKey, "LARDER_VAPID_PUBLIC_KEY")
	setString(&cfg.Push.VAPIDPrivateKey, "LARDER_VAPID_PRIVATE_KEY")
	setString(&cfg.Push.Subscriber, "LARDER_VAPID_SUBSCRIBER")
	errs = append(errs, setDuration(&cfg.Push.CheckInterval, "LARDER_PUSH_CHECK_INTERVAL"))

	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	if err := apperr.Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// RemoteConfig is the sync backend configuration.
type RemoteConfig struct {
	Port          string        `yaml:"port" validate:"required,numeric"`
	DBPath        string        `yaml:"db_path" validate:"required"`
	Secret        string        `yaml:"secret" validate:"min=32"`
	TokenTTL      time.Duration `yaml:"token_ttl" validate:"gt=0"`
	AuthRateLimit int           `yaml:"auth_rate_limit" validate:"gt=0"`
	LogLevel      string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat     string        `yaml:"log_format" validate:"oneof=text json"`
}

// LoadRemote reads the sync backend settings from path and LARDER_SYNC_*
// variables. The token secret must be at least 32 bytes.
func LoadRemote(path string) (RemoteConfig, error) {
	cfg := RemoteConfig{
		Port:          "8081",
		DBPath:        "larder-sync.db",
		TokenTTL:      30 * 24 * time.Hour,
		AuthRateLimit: 10,
		LogLevel:      "info",
		LogFormat:     "text",
	}
	if err := readFile(path, &cfg); err != nil {
		return cfg, err
	}

	setString(&cfg.Port, "LARDER_SYNC_PORT")
	setString(&cfg.DBPath, "LARDER_SYNC_DB_PATH")
	setString(&cfg.Secret, "LARDER_SYNC_SECRET")
	setString(&cfg.LogLevel, "LARDER_SYNC_LOG_LEVEL")
	setString(&cfg.LogFormat, "LARDER_SYNC_LOG_FORMAT")
	err := errors.Join(
		setDuration(&cfg.TokenTTL, "LARDER_SYNC_TOKEN_TTL"),
		setInt(&cfg.AuthRateLimit, "LARDER_SYNC_AUTH_RATE_LIMIT"),
	)
	if err != nil {
		return cfg, err
	}
	if err := apperr.Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func readFile(path string, dst any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, dst); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
