package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"ipamd/internal/domain"
)

type Config struct {
	Port       string        `yaml:"port"`
	DSN        string        `yaml:"dsn"`
	SigningKey string        `yaml:"signing_key"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`

	RateLimit   float64 `yaml:"rate_limit"`
	RateBurst   int     `yaml:"rate_burst"`
	BulkCeiling int     `yaml:"bulk_ceiling"`
	// HostCeiling bounds how many host addresses one subnet may materialise.
	// Raising it past the default is the override path for blocks wider
	// than /16.
	HostCeiling int `yaml:"host_ceiling"`

	AdminUser     string `yaml:"admin_user"`
	AdminPassword string `yaml:"admin_password"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoadConfig resolves configuration as defaults, then the optional YAML file
// named by IPAM_CONFIG, then environment variables.
func LoadConfig() (Config, error) {
	cfg := Config{
		Port:          "4040",
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		RateLimit:     50,
		RateBurst:     100,
		BulkCeiling:   1000,
		HostCeiling:   domain.DefaultHostCeiling,
		AdminUser:     "admin",
		AdminPassword: "admin123",
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  30 * time.Second,
	}

	if path := os.Getenv("IPAM_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	setString(&cfg.DSN, "DB_CONN")
	setString(&cfg.Port, "PORT")
	setString(&cfg.SigningKey, "IPAM_SIGNING_KEY")
	setString(&cfg.AdminUser, "IPAM_ADMIN_USER")
	setString(&cfg.AdminPassword, "IPAM_ADMIN_PASSWORD")
	if err := setDuration(&cfg.AccessTTL, "IPAM_ACCESS_TTL"); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cfg.RefreshTTL, "IPAM_REFRESH_TTL"); err != nil {
		return Config{}, err
	}
	if err := setFloat(&cfg.RateLimit, "IPAM_RATE_LIMIT"); err != nil {
		return Config{}, err
	}
	if err := setInt(&cfg.RateBurst, "IPAM_RATE_BURST"); err != nil {
		return Config{}, err
	}
	if err := setInt(&cfg.BulkCeiling, "IPAM_BULK_CEILING"); err != nil {
		return Config{}, err
	}
	if err := setInt(&cfg.HostCeiling, "IPAM_HOST_CEILING"); err != nil {
		return Config{}, err
	}

	if cfg.DSN == "" {
		return Config{}, fmt.Errorf("missing required environment variable: DB_CONN")
	}
	if cfg.SigningKey == "" {
		return Config{}, fmt.Errorf("missing required environment variable: IPAM_SIGNING_KEY")
	}
	return cfg, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}
