/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"templatecanvas/internal/log"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Editor        EditorConfig  `yaml:"editor"`
	Fonts         FontsConfig   `yaml:"fonts"`
	Assets        AssetsConfig  `yaml:"assets"`
	Storage       StorageConfig `yaml:"storage"`
	Catalog       CatalogConfig `yaml:"catalog"`
	Server        ServerConfig  `yaml:"server"`
	Logging       LoggingConfig `yaml:"logging"`
}

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	TelemetryURL   string `yaml:"telemetry_url"`
}

// TrackedRole binds a role (main text, brand logo, ...) to the object name
// whose derived bounds are kept up to date. Kind is "text" or "image".
type TrackedRole struct {
	Role   string `yaml:"role"`
	Object string `yaml:"object"`
	Kind   string `yaml:"kind"`
}

type EditorConfig struct {
	ReferenceWidth   float64       `yaml:"reference_width"`
	ReferenceHeight  float64       `yaml:"reference_height"`
	MaxUndoSteps     int           `yaml:"max_undo_steps"`
	MaxHistoryBytes  int           `yaml:"max_history_bytes"`
	DefaultFont      string        `yaml:"default_font"`
	DefaultFontSize  float64       `yaml:"default_font_size"`
	FallbackFont     string        `yaml:"fallback_font"`
	DefaultTextWidth float64       `yaml:"default_text_width"`
	TrackedRoles     []TrackedRole `yaml:"tracked_roles"`
}

type FontsConfig struct {
	CatalogFile    string `yaml:"catalog_file"`
	FetchTimeoutMs int    `yaml:"fetch_timeout_ms"`
}

type AssetsConfig struct {
	FetchTimeoutMs int   `yaml:"fetch_timeout_ms"`
	MaxBytes       int64 `yaml:"max_bytes"`
}

type StorageConfig struct {
	StateDB string `yaml:"state_db"`
}

// CatalogConfig points at the data records used to fill templates.
// Passwords and feed tokens are not stored on disk; they live in the OS keychain.
type CatalogConfig struct {
	DSN     string `yaml:"dsn"`
	Query   string `yaml:"query"`
	FeedURL string `yaml:"feed_url"`
	File    string `yaml:"file"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`

	// Components maps a component name (session, binding, fonts, ...) to its own level.
	Components map[string]string `yaml:"components,omitempty"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Editor: EditorConfig{
			ReferenceWidth:   1080,
			ReferenceHeight:  1080,
			MaxUndoSteps:     30,
			DefaultFont:      "Poppins Regular",
			DefaultFontSize:  48,
			FallbackFont:     "Montserrat",
			DefaultTextWidth: 310,
			TrackedRoles: []TrackedRole{
				{Role: "main_text", Object: "main_text", Kind: "text"},
				{Role: "sub_text", Object: "sub_text", Kind: "text"},
				{Role: "brand_logo", Object: "brand_logo", Kind: "image"},
			},
		},
		Assets:  AssetsConfig{MaxBytes: 32 << 20},
		Catalog: CatalogConfig{Query: "SELECT data FROM records ORDER BY id"},
		Server:  ServerConfig{Addr: "127.0.0.1:8088"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvTelemetryOptIn  = "TCV_TELEMETRY_OPT_IN"
	EnvMaxUndoSteps    = "TCV_MAX_UNDO_STEPS"
	EnvFallbackFont    = "TCV_FALLBACK_FONT"
	EnvFontCatalog     = "TCV_FONT_CATALOG"
	EnvFontTimeoutMs   = "TCV_FONT_TIMEOUT_MS"
	EnvAssetTimeoutMs  = "TCV_ASSET_TIMEOUT_MS"
	EnvStateDB         = "TCV_STATE_DB"
	EnvCatalogDSN      = "TCV_CATALOG_DSN"
	EnvCatalogFeedURL  = "TCV_CATALOG_FEED_URL"
	EnvServerAddr      = "TCV_SERVER_ADDR"
	EnvLogLevel        = log.EnvLevel
	EnvLogFormat       = log.EnvFormat
	EnvLogSource       = log.EnvSource
	EnvLogFile         = log.EnvFile
	EnvLogComponents   = log.EnvComponents
	EnvCatalogSecret   = "TCV_CATALOG_SECRET"
	keyringService     = "templatecanvas"
	keyringCatalogUser = "catalog_secret"
)

// TokenStore abstracts the OS keychain so tests can stub it.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var tokenStore TokenStore = osKeyring{}

// SetTokenStore swaps the keychain backend and returns the previous one.
func SetTokenStore(ts TokenStore) TokenStore {
	prev := tokenStore
	tokenStore = ts
	return prev
}

// osKeyring implements TokenStore via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "TemplateCanvas")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "TemplateCanvas")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "templatecanvas")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "templatecanvas")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults and env overrides.
// The catalog secret is returned separately; it comes from the env or the keychain.
func Load() (AppConfig, string, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Defaults()
		applyEnvOverrides(&cfg)
		return cfg, "", err
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit path. A missing file is not an error.
func LoadFile(path string) (AppConfig, string, error) {
	cfg := Defaults()
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			log.WithComponent("config").Warn("ignoring unreadable config file", "path", path, "err", err)
		} else {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	secret := strings.TrimSpace(os.Getenv(EnvCatalogSecret))
	if secret == "" {
		secret, _ = tokenStore.Get(keyringService, keyringCatalogUser)
	}
	return cfg, secret, nil
}

// Save writes the user config YAML and persists the catalog secret into the keychain (if non-empty).
func Save(cfg AppConfig, secret string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg, secret)
}

// SaveFile is Save with an explicit path.
func SaveFile(path string, cfg AppConfig, secret string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if secret != "" {
		if err := tokenStore.Set(keyringService, keyringCatalogUser, secret); err != nil {
			return err
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	setStr(&dst.General.TelemetryURL, src.General.TelemetryURL)

	e, s := &dst.Editor, src.Editor
	setFloat(&e.ReferenceWidth, s.ReferenceWidth)
	setFloat(&e.ReferenceHeight, s.ReferenceHeight)
	setInt(&e.MaxUndoSteps, s.MaxUndoSteps)
	setInt(&e.MaxHistoryBytes, s.MaxHistoryBytes)
	setStr(&e.DefaultFont, s.DefaultFont)
	setFloat(&e.DefaultFontSize, s.DefaultFontSize)
	setStr(&e.FallbackFont, s.FallbackFont)
	setFloat(&e.DefaultTextWidth, s.DefaultTextWidth)
	if len(s.TrackedRoles) > 0 {
		e.TrackedRoles = append([]TrackedRole(nil), s.TrackedRoles...)
	}

	setStr(&dst.Fonts.CatalogFile, src.Fonts.CatalogFile)
	setInt(&dst.Fonts.FetchTimeoutMs, src.Fonts.FetchTimeoutMs)
	setInt(&dst.Assets.FetchTimeoutMs, src.Assets.FetchTimeoutMs)
	if src.Assets.MaxBytes > 0 {
		dst.Assets.MaxBytes = src.Assets.MaxBytes
	}
	setStr(&dst.Storage.StateDB, src.Storage.StateDB)
	setStr(&dst.Catalog.DSN, src.Catalog.DSN)
	setStr(&dst.Catalog.Query, src.Catalog.Query)
	setStr(&dst.Catalog.FeedURL, src.Catalog.FeedURL)
	setStr(&dst.Catalog.File, src.Catalog.File)
	setStr(&dst.Server.Addr, src.Server.Addr)

	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	setStr(&dst.Logging.File, src.Logging.File)
	for name, lvl := range src.Logging.Components {
		if dst.Logging.Components == nil {
			dst.Logging.Components = map[string]string{}
		}
		dst.Logging.Components[strings.ToLower(name)] = strings.ToLower(strings.TrimSpace(lvl))
	}
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func envInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envStr(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = truthy(v)
	}
	envInt(EnvMaxUndoSteps, &cfg.Editor.MaxUndoSteps)
	envStr(EnvFallbackFont, &cfg.Editor.FallbackFont)
	envStr(EnvFontCatalog, &cfg.Fonts.CatalogFile)
	envInt(EnvFontTimeoutMs, &cfg.Fonts.FetchTimeoutMs)
	envInt(EnvAssetTimeoutMs, &cfg.Assets.FetchTimeoutMs)
	envStr(EnvStateDB, &cfg.Storage.StateDB)
	envStr(EnvCatalogDSN, &cfg.Catalog.DSN)
	envStr(EnvCatalogFeedURL, &cfg.Catalog.FeedURL)
	envStr(EnvServerAddr, &cfg.Server.Addr)
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	envStr(EnvLogFile, &cfg.Logging.File)
	if m := log.ParseComponents(os.Getenv(EnvLogComponents)); m != nil {
		cfg.Logging.Components = m
	}
}

var envKeys = map[string]string{
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"editor.max_undo_steps":    EnvMaxUndoSteps,
	"editor.fallback_font":     EnvFallbackFont,
	"fonts.catalog_file":       EnvFontCatalog,
	"fonts.fetch_timeout_ms":   EnvFontTimeoutMs,
	"assets.fetch_timeout_ms":  EnvAssetTimeoutMs,
	"storage.state_db":         EnvStateDB,
	"catalog.dsn":              EnvCatalogDSN,
	"catalog.feed_url":         EnvCatalogFeedURL,
	"server.addr":              EnvServerAddr,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
	"logging.components":       EnvLogComponents,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := envKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// LogOptions maps the logging section onto log.Options.
func (c AppConfig) LogOptions() log.Options {
	return log.Options{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		AddSource:  c.Logging.Source,
		File:       c.Logging.File,
		Components: c.Logging.Components,
	}
}

// FontTimeout is the per-fetch font timeout; zero means only the caller's context applies.
func (f FontsConfig) FontTimeout() time.Duration {
	return time.Duration(f.FetchTimeoutMs) * time.Millisecond
}

// AssetTimeout is the per-fetch image timeout; zero means only the caller's context applies.
func (a AssetsConfig) AssetTimeout() time.Duration {
	return time.Duration(a.FetchTimeoutMs) * time.Millisecond
}

// StatePath returns the configured SQLite state path, or a default next to the config file.
func (s StorageConfig) StatePath() (string, error) {
	if s.StateDB != "" {
		return s.StateDB, nil
	}
	p, err := ConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(p), "state.db"), nil
}
