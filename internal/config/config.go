// Package config loads the inferx settings. Values are layered: built-in
// defaults, an optional YAML file, INFERX_* environment variables and finally
// command line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFile is read from the working directory when no path is
	// given and INFERX_CONFIG is unset.
	DefaultConfigFile = "inferx.yaml"

	DefaultAPIURL   = "http://localhost:5000/api"
	DefaultTimeout  = "30s"
	DefaultAuthKey  = "inferx-auth"
	DefaultLogLevel = "info"
	DefaultLogFmt   = "text"

	EnvConfig  = "INFERX_CONFIG"
	EnvAPIURL  = "INFERX_API_URL"
	EnvTimeout = "INFERX_TIMEOUT"
	EnvAuthDir = "INFERX_AUTH_DIR"
	EnvAuthKey = "INFERX_AUTH_KEY"
)

// ErrConfigNotFound is returned when an explicitly named file is missing.
var ErrConfigNotFound = errors.New("config: file not found")

// Config is the root configuration.
type Config struct {
	APIURL  string       `yaml:"api_url" validate:"required,url"`
	Timeout string       `yaml:"timeout" validate:"required,duration"`
	AuthDir string       `yaml:"auth_dir" validate:"required"`
	AuthKey string       `yaml:"auth_key" validate:"required,excludesall=/\\"`
	Log     LogConfig    `yaml:"log"`
	Server  ServerConfig `yaml:"server"`
	Schema  SchemaConfig `yaml:"schema"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Load reads path (or INFERX_CONFIG, or DefaultConfigFile when present),
// applies the environment and overlay, fills defaults and validates. overlay
// may be nil.
func Load(path string, overlay *Config) (*Config, error) {
	cfg := &Config{}

	file, explicit := path, path != ""
	if file == "" {
		if env := os.Getenv(EnvConfig); env != "" {
			file, explicit = env, true
		} else {
			file = DefaultConfigFile
		}
	}

	loaded, err := load(file)
	switch {
	case err == nil:
		cfg = loaded
	case errors.Is(err, ErrConfigNotFound) && !explicit:
	default:
		return nil, err
	}

	cfg.loadEnv()
	if overlay != nil {
		cfg.Merge(overlay)
	}
	cfg.loadDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.APIURL != "" {
		c.APIURL = overlay.APIURL
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.AuthDir != "" {
		c.AuthDir = overlay.AuthDir
	}
	if overlay.AuthKey != "" {
		c.AuthKey = overlay.AuthKey
	}
	c.Log.Merge(&overlay.Log)
	c.Server.Merge(&overlay.Server)
	c.Schema.Merge(&overlay.Schema)
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: invalid %s: %q fails %q", fieldPath(fe), fmt.Sprint(fe.Value()), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.Timeout == "" {
		c.Timeout = DefaultTimeout
	}
	if c.AuthDir == "" {
		c.AuthDir = defaultAuthDir()
	}
	if c.AuthKey == "" {
		c.AuthKey = DefaultAuthKey
	}
	c.Log.loadDefaults()
	c.Server.loadDefaults()
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		c.Timeout = v
	}
	if v := os.Getenv(EnvAuthDir); v != "" {
		c.AuthDir = v
	}
	if v := os.Getenv(EnvAuthKey); v != "" {
		c.AuthKey = v
	}
	c.Log.loadEnv()
	c.Server.loadEnv()
	c.Schema.loadEnv()
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

func defaultAuthDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "inferx")
	}
	return ".inferx"
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	return v
}

// fieldPath turns "Config.server.addr" into "server.addr".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
