package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding an optional YAML config path.
const FileEnv = "CONFIG_FILE"

// Load reads configuration in three layers: tag defaults, the YAML file named
// by CONFIG_FILE (if any), then environment variables. Required values must
// be present once all layers are applied.
func Load() (*Config, error) {
	return load(os.Getenv(FileEnv), true)
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	return load(path, true)
}

// LoadPartial loads configuration without enforcing required values or
// database settings. Commands that never touch the database use it.
func LoadPartial() (*Config, error) {
	return load(os.Getenv(FileEnv), false)
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

func load(path string, strict bool) (*Config, error) {
	cfg := &Config{}
	root := reflect.ValueOf(cfg).Elem()

	if err := walkFields(root, applyDefault); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
	}

	if err := walkFields(root, applyEnv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if strict {
		if err := walkFields(root, checkRequired); err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
	} else if err := cfg.validate(false); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyFile overlays the YAML document at path. Keys absent from the file
// keep their defaults.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

type fieldFunc func(field reflect.StructField, value reflect.Value) error

// walkFields calls fn for every settable leaf field carrying an env tag,
// recursing into nested structs.
func walkFields(v reflect.Value, fn fieldFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := walkFields(fieldVal, fn); err != nil {
				return err
			}
			continue
		}

		if field.Tag.Get("env") == "" {
			continue
		}
		if err := fn(field, fieldVal); err != nil {
			return err
		}
	}

	return nil
}

func applyDefault(field reflect.StructField, value reflect.Value) error {
	def := field.Tag.Get("default")
	if def == "" {
		return nil
	}
	if err := setField(value, def); err != nil {
		return fmt.Errorf("invalid default for %s=%q: %w", field.Tag.Get("env"), def, err)
	}
	return nil
}

func applyEnv(field reflect.StructField, value reflect.Value) error {
	envName := field.Tag.Get("env")

	// Try primary env var, then alternate
	raw := os.Getenv(envName)
	if raw == "" {
		if alt := field.Tag.Get("envAlt"); alt != "" {
			raw = os.Getenv(alt)
		}
	}
	if raw == "" {
		return nil
	}

	if err := setField(value, raw); err != nil {
		return fmt.Errorf("invalid value for %s=%q: %w", envName, raw, err)
	}
	return nil
}

func checkRequired(field reflect.StructField, value reflect.Value) error {
	if field.Tag.Get("required") == "true" && value.IsZero() {
		return fmt.Errorf("required environment variable %s is not set", field.Tag.Get("env"))
	}
	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	return c.validate(true)
}

func (c *Config) validate(withDatabase bool) error {
	var errs []string

	// Database validation
	if withDatabase {
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Import validation
	if c.Import.MaxFileSize <= 0 {
		errs = append(errs, "IMPORT_MAX_FILE_SIZE must be positive")
	}
	if c.Import.MaxConcurrent <= 0 {
		errs = append(errs, "IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.Import.MaxWaitTime <= 0 {
		errs = append(errs, "IMPORT_MAX_WAIT_TIME must be positive")
	}
	if c.Import.Timeout <= 0 {
		errs = append(errs, "IMPORT_TIMEOUT must be positive")
	}
	if c.Import.PreviewRows <= 0 {
		errs = append(errs, "IMPORT_PREVIEW_ROWS must be positive")
	}
	if c.Import.SessionTTL <= 0 {
		errs = append(errs, "IMPORT_SESSION_TTL must be positive")
	}
	if d := c.Import.Delimiter; d != "auto" && len([]rune(d)) != 1 {
		errs = append(errs, fmt.Sprintf("IMPORT_DELIMITER (%q) must be a single character or \"auto\"", d))
	}

	// Provider validation
	if !strings.HasPrefix(c.Provider.BaseURL, "http://") && !strings.HasPrefix(c.Provider.BaseURL, "https://") {
		errs = append(errs, fmt.Sprintf("PROVIDER_BASE_URL (%q) must be an http(s) URL", c.Provider.BaseURL))
	}
	if c.Provider.Timeout <= 0 {
		errs = append(errs, "PROVIDER_TIMEOUT must be positive")
	}
	if c.Provider.MaxRetries < 0 {
		errs = append(errs, "PROVIDER_MAX_RETRIES must be non-negative")
	}
	if c.Provider.PageSize <= 0 {
		errs = append(errs, "PROVIDER_PAGE_SIZE must be positive")
	}
	if c.Provider.PollInterval <= 0 {
		errs = append(errs, "PROVIDER_POLL_INTERVAL must be positive")
	}
	if c.Provider.ListRefresh <= 0 {
		errs = append(errs, "PROVIDER_LIST_REFRESH must be positive")
	}
	if c.Provider.CacheSize <= 0 {
		errs = append(errs, "PROVIDER_CACHE_SIZE must be positive")
	}

	// Events validation
	if c.Events.URL != "" && c.Events.Exchange == "" {
		errs = append(errs, "AMQP_EXCHANGE is required when AMQP_URL is set")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return errors.New("validation failed:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Import: {MaxFileSize: %d, MaxConcurrent: %d, Delimiter: %q}, ",
		c.Import.MaxFileSize, c.Import.MaxConcurrent, c.Import.Delimiter)
	fmt.Fprintf(&b, "Provider: {BaseURL: %q, APIKey: %s, PollInterval: %s}, ",
		c.Provider.BaseURL, mask(c.Provider.APIKey), c.Provider.PollInterval)
	fmt.Fprintf(&b, "Events: {URL: %s, Exchange: %q}, ", mask(c.Events.URL), c.Events.Exchange)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
