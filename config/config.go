// Package config loads the onboarding service configuration from a YAML file
// and ONBOARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fortressi/onboard/model"
)

const (
	EnvPrefix = "ONBOARD"

	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultKeyPath     = "keys/credential.pem"
	DefaultKeyBits     = 2048
	DefaultTokenTTL    = 15 * time.Minute
	DefaultTokenIssuer = "onboard"
	DefaultMinAge      = 16
	DefaultMaxAge      = 100
	DefaultStoreDriver = DriverMemory

	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Keys     KeyConfig      `yaml:"keys"`
	Tokens   TokenConfig    `yaml:"tokens"`
	Employee EmployeeConfig `yaml:"employee"`
	Phone    PhoneConfig    `yaml:"phone"`
	Journal  JournalConfig  `yaml:"journal"`
	Store    StoreConfig    `yaml:"store"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type KeyConfig struct {
	Path string `yaml:"path"`
	// Passphrase is normally supplied through ONBOARD_KEY_PASSPHRASE.
	Passphrase string `yaml:"passphrase"`
	Bits       int    `yaml:"bits"`
}

type TokenConfig struct {
	TTL    time.Duration `yaml:"ttl"`
	Issuer string        `yaml:"issuer"`
}

type EmployeeConfig struct {
	MinAge int `yaml:"min_age"`
	MaxAge int `yaml:"max_age"`
}

type PhoneConfig struct {
	DefaultCountryCode string `yaml:"default_country_code"`
}

// JournalConfig selects where saga progress is kept. An empty Dir keeps it
// in memory.
type JournalConfig struct {
	Dir string `yaml:"dir"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver"`
	DSN           string `yaml:"dsn"`
	Transactional bool   `yaml:"transactional"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Keys:     KeyConfig{Path: DefaultKeyPath, Bits: DefaultKeyBits},
		Tokens:   TokenConfig{TTL: DefaultTokenTTL, Issuer: DefaultTokenIssuer},
		Employee: EmployeeConfig{MinAge: DefaultMinAge, MaxAge: DefaultMaxAge},
		Phone:    PhoneConfig{DefaultCountryCode: model.DefaultCountryCode},
		Store:    StoreConfig{Driver: DefaultStoreDriver},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.LoadFromEnv(EnvPrefix); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromEnv overrides fields from PREFIX_* variables.
func (c *Config) LoadFromEnv(prefix string) error {
	str := func(name string, dst *string) {
		if v := os.Getenv(prefix + "_" + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v := os.Getenv(prefix + "_" + name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s_%s: %v", ErrInvalid, prefix, name, err)
		}
		*dst = n
		return nil
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("KEY_PATH", &c.Keys.Path)
	str("KEY_PASSPHRASE", &c.Keys.Passphrase)
	str("TOKEN_ISSUER", &c.Tokens.Issuer)
	str("PHONE_COUNTRY_CODE", &c.Phone.DefaultCountryCode)
	str("JOURNAL_DIR", &c.Journal.Dir)
	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DSN", &c.Store.DSN)

	for name, dst := range map[string]*int{
		"KEY_BITS":         &c.Keys.Bits,
		"EMPLOYEE_MIN_AGE": &c.Employee.MinAge,
		"EMPLOYEE_MAX_AGE": &c.Employee.MaxAge,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}

	if v := os.Getenv(prefix + "_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s_TOKEN_TTL: %v", ErrInvalid, prefix, err)
		}
		c.Tokens.TTL = d
	}
	if v := os.Getenv(prefix + "_STORE_TRANSACTIONAL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s_STORE_TRANSACTIONAL: %v", ErrInvalid, prefix, err)
		}
		c.Store.Transactional = b
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Keys.Path == "" {
		errs = append(errs, errors.New("keys.path is required"))
	}
	if c.Keys.Passphrase == "" {
		errs = append(errs, fmt.Errorf("keys.passphrase is required (set %s_KEY_PASSPHRASE)", EnvPrefix))
	}
	if c.Keys.Bits < 2048 {
		errs = append(errs, fmt.Errorf("keys.bits must be at least 2048, got %d", c.Keys.Bits))
	}
	if c.Tokens.TTL <= 0 {
		errs = append(errs, errors.New("tokens.ttl must be positive"))
	}
	if c.Employee.MinAge < 0 || c.Employee.MaxAge <= c.Employee.MinAge {
		errs = append(errs, fmt.Errorf("employee age bounds %d..%d are invalid", c.Employee.MinAge, c.Employee.MaxAge))
	}
	if _, err := strconv.ParseUint(c.Phone.DefaultCountryCode, 10, 32); err != nil {
		errs = append(errs, fmt.Errorf("phone.default_country_code %q is not numeric", c.Phone.DefaultCountryCode))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
