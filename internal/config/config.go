package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultQueryTypes are the shipment detail sections requested when a caller
// does not name any.
var DefaultQueryTypes = []string{"general", "permissions", "groups", "commissions", "bids", "topCarriers"}

// Config holds application configuration.
type Config struct {
	// Origin is the logistics web application whose requests are observed and
	// whose API is queried (scheme + host, no trailing slash).
	Origin string `json:"origin"`

	// Bind and Port are the loopback address the daemon listens on.
	Bind string `json:"bind"`
	Port int    `json:"port"`

	// QueryTypes overrides DefaultQueryTypes for shipment detail fetches.
	QueryTypes []string `json:"query_types,omitempty"`

	// Event is the event tag sent with shipment detail fetches.
	Event string `json:"event"`

	// ListPageSize is the number of records requested by shipment list fetches.
	ListPageSize int `json:"list_page_size"`

	// ClosedStatusCode is the status code excluded from shipment list fetches.
	ClosedStatusCode int64 `json:"closed_status_code"`

	// HTTPTimeoutSeconds bounds upstream calls. 0 means no timeout: a hung
	// upstream call hangs the caller.
	HTTPTimeoutSeconds int `json:"http_timeout_seconds,omitempty"`

	// AllowedPaths is an allowlist of directories for export operations.
	// Paths outside ~/.shiplens/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for export.
	// When true, any directory is allowed (but symlink and extension checks still apply).
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// ExtensionIDs pins the browser extension origins allowed to call the
	// daemon. Empty allows any chrome-extension:// or moz-extension:// origin.
	ExtensionIDs []string `json:"extension_ids,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Origin:           "https://app.turvo.com",
		Bind:             "127.0.0.1",
		Port:             7717,
		QueryTypes:       append([]string(nil), DefaultQueryTypes...),
		Event:            "join",
		ListPageSize:     24,
		ClosedStatusCode: 100173,
	}
}

// HTTPTimeout returns the upstream timeout as a duration (0 = none).
func (c *Config) HTTPTimeout() time.Duration {
	if c.HTTPTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// Addr returns the daemon listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// BaseURL returns the daemon's loopback URL.
func (c *Config) BaseURL() string {
	bind := c.Bind
	if bind == "" || bind == "0.0.0.0" || bind == "::" {
		bind = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", bind, c.Port)
}

// Load loads configuration from baseDir/config.json, then applies environment
// overrides (after loading baseDir/.env and ./.env if present).
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.shiplens.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}

	// godotenv.Load never overrides variables already set in the environment.
	for _, envPath := range []string{filepath.Join(baseDir, ".env"), ".env"} {
		if _, statErr := os.Stat(envPath); statErr == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, fmt.Errorf("load %s: %w", envPath, err)
			}
		}
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays SHIPLENS_* environment variables onto cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("SHIPLENS_ORIGIN"); ok && strings.TrimSpace(v) != "" {
		cfg.Origin = strings.TrimRight(strings.TrimSpace(v), "/")
	}
	if v, ok := lookup("SHIPLENS_BIND"); ok && strings.TrimSpace(v) != "" {
		cfg.Bind = strings.TrimSpace(v)
	}
	if v, ok := lookup("SHIPLENS_PORT"); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid SHIPLENS_PORT: %q", v)
		}
		cfg.Port = port
	}
	return nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; allowlists are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.Origin = strings.TrimRight(firstNonEmpty(overlay.Origin, base.Origin), "/")
	result.Bind = firstNonEmpty(overlay.Bind, base.Bind)
	result.Event = firstNonEmpty(overlay.Event, base.Event)

	result.Port = overlay.Port
	if result.Port == 0 {
		result.Port = base.Port
	}

	result.ListPageSize = overlay.ListPageSize
	if result.ListPageSize == 0 {
		result.ListPageSize = base.ListPageSize
	}

	result.ClosedStatusCode = overlay.ClosedStatusCode
	if result.ClosedStatusCode == 0 {
		result.ClosedStatusCode = base.ClosedStatusCode
	}

	result.HTTPTimeoutSeconds = overlay.HTTPTimeoutSeconds
	if result.HTTPTimeoutSeconds == 0 {
		result.HTTPTimeoutSeconds = base.HTTPTimeoutSeconds
	}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	// Query types replace rather than merge: order matters to the upstream API.
	result.QueryTypes = base.QueryTypes
	if cleaned := mergeStringSlice(overlay.QueryTypes, nil); len(cleaned) > 0 {
		result.QueryTypes = cleaned
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.ExtensionIDs = mergeStringSlice(base.ExtensionIDs, overlay.ExtensionIDs)

	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
