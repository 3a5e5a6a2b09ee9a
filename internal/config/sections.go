package config

import "os"

const (
	EnvLogLevel           = "INFERX_LOG_LEVEL"
	EnvLogFormat          = "INFERX_LOG_FORMAT"
	EnvServerAddr         = "INFERX_SERVER_ADDR"
	EnvServerThemeVariant = "INFERX_SERVER_THEME_VARIANT"
	EnvSchemaDir          = "INFERX_SCHEMA_DIR"
	EnvSchemaOpenAPI      = "INFERX_SCHEMA_OPENAPI"

	DefaultServerAddr = "localhost:8080"
)

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"required,oneof=text json"`
}

// Merge overwrites non-zero fields from overlay.
func (c *LogConfig) Merge(overlay *LogConfig) {
	if overlay.Level != "" {
		c.Level = overlay.Level
	}
	if overlay.Format != "" {
		c.Format = overlay.Format
	}
}

func (c *LogConfig) loadDefaults() {
	if c.Level == "" {
		c.Level = DefaultLogLevel
	}
	if c.Format == "" {
		c.Format = DefaultLogFmt
	}
}

func (c *LogConfig) loadEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Format = v
	}
}

// ServerConfig holds the web front-end parameters.
type ServerConfig struct {
	Addr         string `yaml:"addr" validate:"required,hostname_port"`
	ThemeVariant string `yaml:"theme_variant" validate:"omitempty,alphanum"`
}

// Merge overwrites non-zero fields from overlay.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	if overlay.Addr != "" {
		c.Addr = overlay.Addr
	}
	if overlay.ThemeVariant != "" {
		c.ThemeVariant = overlay.ThemeVariant
	}
}

func (c *ServerConfig) loadDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultServerAddr
	}
}

func (c *ServerConfig) loadEnv() {
	if v := os.Getenv(EnvServerAddr); v != "" {
		c.Addr = v
	}
	if v := os.Getenv(EnvServerThemeVariant); v != "" {
		c.ThemeVariant = v
	}
}

// SchemaConfig names local schema sources. They are consulted in order (Dir,
// then OpenAPI) before the backend's schema endpoint. Dir may also name a
// single ui_schema file.
type SchemaConfig struct {
	Dir     string `yaml:"dir"`
	OpenAPI string `yaml:"openapi"`
}

// Merge overwrites non-zero fields from overlay.
func (c *SchemaConfig) Merge(overlay *SchemaConfig) {
	if overlay.Dir != "" {
		c.Dir = overlay.Dir
	}
	if overlay.OpenAPI != "" {
		c.OpenAPI = overlay.OpenAPI
	}
}

func (c *SchemaConfig) loadEnv() {
	if v := os.Getenv(EnvSchemaDir); v != "" {
		c.Dir = v
	}
	if v := os.Getenv(EnvSchemaOpenAPI); v != "" {
		c.OpenAPI = v
	}
}
