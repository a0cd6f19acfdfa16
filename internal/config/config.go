// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/sessionkeep/internal/identity"
	"github.com/jeranaias/sessionkeep/internal/idle"
	"github.com/jeranaias/sessionkeep/internal/logging"
	"github.com/jeranaias/sessionkeep/internal/storage"
	"github.com/jeranaias/sessionkeep/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete sessionkeep configuration.
type Config struct {
	Version string `toml:"version"`

	Idle     IdleConfig     `toml:"idle"`
	Storage  StorageConfig  `toml:"storage"`
	Identity IdentityConfig `toml:"identity"`
	Logging  LoggingConfig  `toml:"logging"`
}

// IdleConfig contains idle detection settings.
type IdleConfig struct {
	// Timeout is the idle time before the re-authentication prompt.
	Timeout time.Duration `toml:"timeout"`

	// WarningLead is how long before Timeout the warning fires.
	WarningLead time.Duration `toml:"warning_lead"`

	// HardTimeout, when set, ends an unanswered session. Zero disables it.
	HardTimeout time.Duration `toml:"hard_timeout"`

	// Tick is the polling interval.
	Tick time.Duration `toml:"tick"`

	// Debounce drops activity signals closer together than this.
	Debounce time.Duration `toml:"debounce"`

	// Diagnostics logs every transition.
	Diagnostics bool `toml:"diagnostics"`
}

// StorageConfig selects where form snapshots are kept.
type StorageConfig struct {
	Backend string `toml:"backend"` // memory, file, sqlite
	Dir     string `toml:"dir"`     // parent of per-tab directories
	Encrypt bool   `toml:"encrypt"`

	// AutoSave is the pause after the last edit before a form is saved.
	// Zero saves only when the re-authentication prompt is answered.
	AutoSave time.Duration `toml:"autosave"`
}

// IdentityConfig selects and configures the identity provider.
type IdentityConfig struct {
	Provider string   `toml:"provider"` // msal, device, static
	ClientID string   `toml:"client_id"`
	Scopes   []string `toml:"scopes"`

	// MSAL
	Authority             string `toml:"authority"`
	RedirectURI           string `toml:"redirect_uri"`
	PostLogoutRedirectURI string `toml:"post_logout_redirect_uri"`

	// Device authorization grant
	DeviceAuthURL string `toml:"device_auth_url"`
	TokenURL      string `toml:"token_url"`

	// Static provider
	StaticUser     string `toml:"static_user"`
	StaticSignedIn bool   `toml:"static_signed_in"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // auto, console, json
	File   string `toml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: "1",
		Idle: IdleConfig{
			Timeout:     idle.DefaultIdleTimeout,
			WarningLead: idle.DefaultWarningLead,
			Tick:        idle.DefaultTickInterval,
			Debounce:    50 * time.Millisecond,
		},
		Storage: StorageConfig{
			Backend:  string(storage.BackendMemory),
			AutoSave: 500 * time.Millisecond,
		},
		Identity: IdentityConfig{
			Provider:       "static",
			Authority:      identity.DefaultAuthority,
			Scopes:         []string{"User.Read"},
			RedirectURI:    "http://localhost",
			StaticUser:     "demo@sessionkeep.local",
			StaticSignedIn: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: string(logging.FormatAuto),
		},
	}
}

// Machine converts to the idle machine configuration.
func (c IdleConfig) Machine() idle.Config {
	return idle.Config{
		IdleTimeout:       c.Timeout,
		WarningLead:       c.WarningLead,
		HardTimeout:       c.HardTimeout,
		TickInterval:      c.Tick,
		EnableDiagnostics: c.Diagnostics,
	}
}

// Store converts to the storage configuration. The namespace is set per tab.
func (c StorageConfig) Store() storage.Config {
	return storage.Config{
		Backend: storage.Backend(c.Backend),
		Dir:     c.Dir,
		Encrypt: c.Encrypt,
	}
}

// Logger converts to the logging configuration.
func (c *Config) Logger() logging.Config {
	return logging.Config{
		Level:       c.Logging.Level,
		Format:      logging.Format(c.Logging.Format),
		File:        c.Logging.File,
		Diagnostics: c.Idle.Diagnostics,
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the sessionkeep configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv("SESSIONKEEP_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".sessionkeep"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens a config file to 0600. Client settings are
// not secret, but redirect URIs and tenant IDs are not for other users either.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the default config file, falling back to defaults when it does
// not exist. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Unknown keys are an error.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// SetDefaults fills zero values that must not stay zero.
func (c *Config) SetDefaults() {
	defaults := Default()
	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Idle.Timeout == 0 {
		c.Idle.Timeout = defaults.Idle.Timeout
	}
	if c.Idle.Tick == 0 {
		c.Idle.Tick = defaults.Idle.Tick
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	if c.Identity.Provider == "" {
		c.Identity.Provider = defaults.Identity.Provider
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# sessionkeep configuration file\n")
	buf.WriteString("# Durations use Go syntax: 90s, 15m, 1h30m\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var (
	validBackends  = []string{"memory", "file", "sqlite"}
	validProviders = []string{"msal", "device", "static"}
	validFormats   = []string{"auto", "console", "json"}
	validLevels    = []string{"trace", "debug", "info", "warn", "error"}
)

// Validate validates the configuration and returns ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Idle
	if err := c.Idle.Machine().Validate(); err != nil {
		var cfgErr *idle.ConfigurationError
		if errors.As(err, &cfgErr) {
			add("idle", "%s", cfgErr.Reason)
		} else {
			add("idle", "%v", err)
		}
	}
	if c.Idle.Debounce < 0 {
		add("idle.debounce", "must not be negative, got %v", c.Idle.Debounce)
	}
	if c.Idle.Debounce >= c.Idle.Timeout && c.Idle.Timeout > 0 {
		add("idle.debounce", "%v must be shorter than the idle timeout", c.Idle.Debounce)
	}

	// Storage
	if !slices.Contains(validBackends, strings.ToLower(c.Storage.Backend)) {
		add("storage.backend", "invalid backend '%s', must be one of: %s", c.Storage.Backend, strings.Join(validBackends, ", "))
	}
	if c.Storage.AutoSave < 0 {
		add("storage.autosave", "must not be negative, got %v", c.Storage.AutoSave)
	}

	// Identity
	switch strings.ToLower(c.Identity.Provider) {
	case "msal":
		if c.Identity.ClientID == "" {
			add("identity.client_id", "required for the msal provider")
		}
	case "device":
		if c.Identity.ClientID == "" {
			add("identity.client_id", "required for the device provider")
		}
		for field, v := range map[string]string{
			"identity.device_auth_url": c.Identity.DeviceAuthURL,
			"identity.token_url":       c.Identity.TokenURL,
		} {
			if !strings.HasPrefix(v, "https://") && !strings.HasPrefix(v, "http://localhost") {
				add(field, "must be an https URL, got '%s'", v)
			}
		}
	case "static":
	default:
		add("identity.provider", "invalid provider '%s', must be one of: %s", c.Identity.Provider, strings.Join(validProviders, ", "))
	}

	// Logging
	if !slices.Contains(validLevels, strings.ToLower(c.Logging.Level)) {
		add("logging.level", "invalid level '%s', must be one of: %s", c.Logging.Level, strings.Join(validLevels, ", "))
	}
	if !slices.Contains(validFormats, strings.ToLower(c.Logging.Format)) {
		add("logging.format", "invalid format '%s', must be one of: %s", c.Logging.Format, strings.Join(validFormats, ", "))
	}

	if len(errs) > 0 {
		slices.SortStableFunc(errs, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - SESSIONKEEP_IDLE_TIMEOUT, SESSIONKEEP_WARNING_LEAD, SESSIONKEEP_HARD_TIMEOUT (durations)
//   - SESSIONKEEP_DIAGNOSTICS: "1" or "true"
//   - SESSIONKEEP_STORAGE: storage.backend
//   - SESSIONKEEP_ENCRYPT: "1" or "true"
//   - SESSIONKEEP_PROVIDER, SESSIONKEEP_CLIENT_ID, SESSIONKEEP_AUTHORITY
//   - SESSIONKEEP_LOG_LEVEL, SESSIONKEEP_LOG_FORMAT
//
// Malformed durations are ignored.
func (c *Config) ApplyEnvOverrides() {
	for env, dst := range map[string]*time.Duration{
		"SESSIONKEEP_IDLE_TIMEOUT": &c.Idle.Timeout,
		"SESSIONKEEP_WARNING_LEAD": &c.Idle.WarningLead,
		"SESSIONKEEP_HARD_TIMEOUT": &c.Idle.HardTimeout,
	} {
		if v := os.Getenv(env); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	if v := os.Getenv("SESSIONKEEP_DIAGNOSTICS"); v != "" {
		c.Idle.Diagnostics = parseBool(v)
	}
	if v := os.Getenv("SESSIONKEEP_STORAGE"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("SESSIONKEEP_ENCRYPT"); v != "" {
		c.Storage.Encrypt = parseBool(v)
	}
	if v := os.Getenv("SESSIONKEEP_PROVIDER"); v != "" {
		c.Identity.Provider = v
	}
	if v := os.Getenv("SESSIONKEEP_CLIENT_ID"); v != "" {
		c.Identity.ClientID = v
	}
	if v := os.Getenv("SESSIONKEEP_AUTHORITY"); v != "" {
		c.Identity.Authority = v
	}
	if v := os.Getenv("SESSIONKEEP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SESSIONKEEP_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

func parseBool(v string) bool {
	v = strings.ToLower(v)
	return v == "1" || v == "true" || v == "yes"
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "idle.timeout").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type; durations use Go syntax.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("toml") == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue sets a reflect.Value from a value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch {
		case field.Type() == durationType:
			d, err := time.ParseDuration(strVal)
			if err != nil {
				return fmt.Errorf("invalid duration value: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		case field.Kind() == reflect.String:
			field.SetString(strVal)
			return nil
		case field.Kind() == reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		case field.Kind() == reflect.Int, field.Kind() == reflect.Int64:
			n, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %w", err)
			}
			field.SetInt(n)
			return nil
		case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
			var items []string
			for _, s := range strings.Split(strVal, ",") {
				if s = strings.TrimSpace(s); s != "" {
					items = append(items, s)
				}
			}
			field.Set(reflect.ValueOf(items))
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns every configuration key in dot notation.
func Keys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := prefix + f.Tag.Get("toml")
			if f.Type.Kind() == reflect.Struct && f.Type != durationType {
				walk(f.Type, name+".")
				continue
			}
			keys = append(keys, name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Identity.Scopes = slices.Clone(c.Identity.Scopes)
	return &clone
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return buf.String()
}
