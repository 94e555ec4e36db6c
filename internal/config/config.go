/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package config loads the per-user YAML configuration, applies GST_*
// environment overrides and keeps the image-host token in the OS keyring.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"genstage/internal/geom"
	"genstage/internal/stage"
)

// config_version: bump when the structure changes in a backward-incompatible way.

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	Theme          string `yaml:"theme"` // "system" | "light" | "dark"
	EnableServer   bool   `yaml:"enable_server"`
}

// CanvasConfig mirrors the tunables of stage.Options.
type CanvasConfig struct {
	DefaultZoom     int     `yaml:"default_zoom"`
	PlaceholderSize float32 `yaml:"placeholder_size"`
	CascadeBase     float32 `yaml:"cascade_base"`
	CascadeStep     float32 `yaml:"cascade_step"`
	FitFraction     float32 `yaml:"fit_fraction"`
	ToolbarMargin   float32 `yaml:"toolbar_margin"`
	ArrangeSpacing  float32 `yaml:"arrange_spacing"`
	SnapToGuides    *bool   `yaml:"snap_to_guides,omitempty"`
	RetryAfterMs    int     `yaml:"retry_after_ms"`
	// UndoCoalesceMs merges quick successive edits of the same images into
	// one undo step. 0 disables it.
	UndoCoalesceMs int `yaml:"undo_coalesce_ms"`
}

type FetchConfig struct {
	TimeoutMs         int   `yaml:"timeout_ms"`
	MaxBytes          int64 `yaml:"max_bytes"`
	MaxDimension      int   `yaml:"max_dimension"`
	CacheMaxBytes     int64 `yaml:"cache_max_bytes"`
	AllowPrivateHosts bool  `yaml:"allow_private_hosts"`
	// Token is not stored on disk; it lives in the OS keychain.
}

type BackendConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// AppConfig is the user-editable configuration persisted as YAML in the user
// scope. Environment variables are read-only overrides applied at load time.
type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Canvas        CanvasConfig  `yaml:"canvas"`
	Fetch         FetchConfig   `yaml:"fetch"`
	Backend       BackendConfig `yaml:"backend"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{Theme: "system"},
		Canvas: CanvasConfig{
			DefaultZoom:     stage.DefaultZoom,
			PlaceholderSize: 300,
			CascadeBase:     40,
			CascadeStep:     32,
			FitFraction:     0.4,
			ToolbarMargin:   12,
			ArrangeSpacing:  24,
			SnapToGuides:    boolPtr(true),
			RetryAfterMs:    5000,
		},
		Fetch: FetchConfig{
			TimeoutMs:     20000,
			MaxBytes:      32 << 20,
			MaxDimension:  4096,
			CacheMaxBytes: 256 << 20,
		},
		Backend: BackendConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigDir        = "GST_CONFIG_DIR"
	EnvBackendURL       = "GST_BACKEND_URL"
	EnvBackendTimeoutMs = "GST_BACKEND_TIMEOUT_MS"
	EnvTelemetryOptIn   = "GST_TELEMETRY_OPT_IN"
	EnvEnableServer     = "GST_ENABLE_SERVER"
	EnvFetchTimeoutMs   = "GST_FETCH_TIMEOUT_MS"
	EnvFetchMaxBytes    = "GST_FETCH_MAX_BYTES"
	EnvCacheMaxBytes    = "GST_CACHE_MAX_BYTES"
	EnvAllowPrivate     = "GST_ALLOW_PRIVATE_HOSTS"
	EnvSnap             = "GST_SNAP"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "GST_LOG_LEVEL"
	EnvLogFormat = "GST_LOG_FORMAT"
	EnvLogSource = "GST_LOG_SOURCE"
	EnvLogFile   = "GST_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "GenStage"
	keyringToken   = "image_host_token"
)

// TokenStore abstracts the keyring so tests can stub it.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var tokenStore TokenStore = osKeyring{}

// osKeyring implements TokenStore using github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// SetTokenStore swaps the token store and returns the previous one.
func SetTokenStore(ts TokenStore) TokenStore {
	prev := tokenStore
	tokenStore = ts
	return prev
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(EnvConfigDir)); dir != "" {
		return filepath.Join(dir, "config.yaml"), nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "GenStage")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "GenStage")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "genstage")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "genstage")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults and merges
// environment overrides. The token is loaded from the keyring and returned
// separately; a missing token is not an error.
func Load() (AppConfig, string, error) {
	path, err := ConfigPath()
	if err != nil {
		return Defaults(), "", err
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return cfg, "", err
	}
	// keyring may be unavailable (headless CI); the token is optional
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, nil
}

// LoadFile loads path on top of the defaults and applies env overrides. A
// missing file yields the defaults; a malformed one is an error.
func LoadFile(path string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the user config YAML and persists the token into the OS keyring
// (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
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
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
	}
	return nil
}

// ClearToken removes the stored token.
func ClearToken() error {
	err := tokenStore.Delete(keyringService, keyringToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.General.Theme != "" {
		dst.General.Theme = src.General.Theme
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	dst.General.EnableServer = src.General.EnableServer

	c, sc := &dst.Canvas, src.Canvas
	if sc.DefaultZoom != 0 {
		c.DefaultZoom = sc.DefaultZoom
	}
	if sc.PlaceholderSize > 0 {
		c.PlaceholderSize = sc.PlaceholderSize
	}
	if sc.CascadeBase > 0 {
		c.CascadeBase = sc.CascadeBase
	}
	if sc.CascadeStep > 0 {
		c.CascadeStep = sc.CascadeStep
	}
	if sc.FitFraction > 0 {
		c.FitFraction = sc.FitFraction
	}
	if sc.ToolbarMargin > 0 {
		c.ToolbarMargin = sc.ToolbarMargin
	}
	if sc.ArrangeSpacing > 0 {
		c.ArrangeSpacing = sc.ArrangeSpacing
	}
	if sc.RetryAfterMs > 0 {
		c.RetryAfterMs = sc.RetryAfterMs
	}
	if sc.UndoCoalesceMs > 0 {
		c.UndoCoalesceMs = sc.UndoCoalesceMs
	}
	if sc.SnapToGuides != nil {
		c.SnapToGuides = boolPtr(*sc.SnapToGuides)
	}

	f, sf := &dst.Fetch, src.Fetch
	if sf.TimeoutMs > 0 {
		f.TimeoutMs = sf.TimeoutMs
	}
	if sf.MaxBytes > 0 {
		f.MaxBytes = sf.MaxBytes
	}
	if sf.MaxDimension > 0 {
		f.MaxDimension = sf.MaxDimension
	}
	if sf.CacheMaxBytes > 0 {
		f.CacheMaxBytes = sf.CacheMaxBytes
	}
	f.AllowPrivateHosts = sf.AllowPrivateHosts

	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = src.Backend.BaseURL
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}

	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func envBool(name string, dst *bool) {
	if v := strings.ToLower(strings.TrimSpace(os.Getenv(name))); v != "" {
		*dst = v == "1" || v == "true" || v == "on" || v == "yes"
	}
}

func envInt(name string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(name string, dst *int64) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.Backend.BaseURL = v
	}
	envInt(EnvBackendTimeoutMs, &cfg.Backend.TimeoutMs)
	envBool(EnvTelemetryOptIn, &cfg.General.TelemetryOptIn)
	envBool(EnvEnableServer, &cfg.General.EnableServer)
	envInt(EnvFetchTimeoutMs, &cfg.Fetch.TimeoutMs)
	envInt64(EnvFetchMaxBytes, &cfg.Fetch.MaxBytes)
	envInt64(EnvCacheMaxBytes, &cfg.Fetch.CacheMaxBytes)
	envBool(EnvAllowPrivate, &cfg.Fetch.AllowPrivateHosts)
	if os.Getenv(EnvSnap) != "" {
		var on bool
		envBool(EnvSnap, &on)
		cfg.Canvas.SnapToGuides = &on
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	envBool(EnvLogSource, &cfg.Logging.Source)
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var envKeys = map[string]string{
	"backend.base_url":          EnvBackendURL,
	"backend.timeout_ms":        EnvBackendTimeoutMs,
	"general.telemetry_opt_in":  EnvTelemetryOptIn,
	"general.enable_server":     EnvEnableServer,
	"fetch.timeout_ms":          EnvFetchTimeoutMs,
	"fetch.max_bytes":           EnvFetchMaxBytes,
	"fetch.cache_max_bytes":     EnvCacheMaxBytes,
	"fetch.allow_private_hosts": EnvAllowPrivate,
	"canvas.snap_to_guides":     EnvSnap,
	"logging.level":             EnvLogLevel,
	"logging.format":            EnvLogFormat,
	"logging.source":            EnvLogSource,
	"logging.file":              EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by
// environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// StageOptions maps the canvas section onto stage options.
func (c AppConfig) StageOptions() stage.Options {
	o := stage.DefaultOptions()
	cv := c.Canvas
	if cv.PlaceholderSize > 0 {
		o.PlaceholderSize = cv.PlaceholderSize
	}
	if cv.CascadeBase > 0 {
		o.CascadeBase = geom.Pt{X: cv.CascadeBase, Y: cv.CascadeBase}
	}
	if cv.CascadeStep > 0 {
		o.CascadeStep = geom.Pt{X: cv.CascadeStep, Y: cv.CascadeStep}
	}
	if cv.FitFraction > 0 && cv.FitFraction <= 1 {
		o.FitFraction = cv.FitFraction
	}
	if cv.ToolbarMargin > 0 {
		o.ToolbarMargin = cv.ToolbarMargin
	}
	if cv.ArrangeSpacing > 0 {
		o.ArrangeSpacing = cv.ArrangeSpacing
	}
	if cv.RetryAfterMs > 0 {
		o.RetryAfter = time.Duration(cv.RetryAfterMs) * time.Millisecond
	}
	if cv.UndoCoalesceMs > 0 {
		o.UndoCoalesce = time.Duration(cv.UndoCoalesceMs) * time.Millisecond
	}
	o.Snap = cv.Snap()
	return o
}

// Snap reports whether drag snapping is enabled (default on).
func (c CanvasConfig) Snap() bool { return c.SnapToGuides == nil || *c.SnapToGuides }

func boolPtr(b bool) *bool { return &b }

// InitialZoom returns the configured start zoom clamped to the stage range
// and rounded to a zoom step.
func (c CanvasConfig) InitialZoom() int {
	z := c.DefaultZoom
	if z == 0 {
		return stage.DefaultZoom
	}
	z = max(stage.MinZoom, min(stage.MaxZoom, z))
	return z / stage.ZoomStep * stage.ZoomStep
}

// FetchTimeout returns the image fetch timeout.
func (f FetchConfig) FetchTimeout() time.Duration {
	if f.TimeoutMs <= 0 {
		return time.Duration(Defaults().Fetch.TimeoutMs) * time.Millisecond
	}
	return time.Duration(f.TimeoutMs) * time.Millisecond
}

// EffectiveTimeout returns the backend timeout for http.Client.
func (b BackendConfig) EffectiveTimeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}
