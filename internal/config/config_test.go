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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"genstage/internal/geom"
)

type memStore map[string]string

func (m memStore) Get(service, key string) (string, error) {
	v, ok := m[service+"/"+key]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}
func (m memStore) Set(service, key, value string) error { m[service+"/"+key] = value; return nil }
func (m memStore) Delete(service, key string) error {
	if _, ok := m[service+"/"+key]; !ok {
		return keyring.ErrNotFound
	}
	delete(m, service+"/"+key)
	return nil
}

// isolate points the config dir at a temp dir and stubs the keyring.
func isolate(t *testing.T) (string, memStore) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	ms := memStore{}
	prev := SetTokenStore(ms)
	t.Cleanup(func() { SetTokenStore(prev) })
	return dir, ms
}

func TestEnvOverridesBackendURL(t *testing.T) {
	isolate(t)
	t.Setenv(EnvBackendURL, "https://example.test:8443")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.Backend.BaseURL, "https://example.test:8443"; got != want {
		t.Fatalf("Backend.BaseURL = %q, want %q", got, want)
	}
}

func TestEnvOverridesTelemetry(t *testing.T) {
	isolate(t)
	t.Setenv(EnvTelemetryOptIn, "true")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.General.TelemetryOptIn {
		t.Fatalf("General.TelemetryOptIn expected true from env override")
	}
}

func TestMergeIncludesEnableServer(t *testing.T) {
	dst := Defaults()
	src := AppConfig{General: GeneralConfig{EnableServer: true}}
	mergeInto(&dst, &src)
	if !dst.General.EnableServer {
		t.Fatalf("EnableServer was not merged from file config")
	}
	if !dst.Canvas.Snap() {
		t.Fatalf("absent snap_to_guides must keep the default")
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Logging.Level = " DEBUG"
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "/tmp/gst.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "/tmp/gst.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvLogFile, "/var/tmp/gst.log")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "/var/tmp/gst.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
	if name, ok := EnvOverrideFor("logging.level"); !ok || name != EnvLogLevel {
		t.Fatalf("EnvOverrideFor(logging.level) = %q,%v", name, ok)
	}
	if _, ok := EnvOverrideFor("backend.base_url"); ok {
		t.Fatalf("backend.base_url should not be overridden")
	}
}

func TestSaveLoadRoundTripWithToken(t *testing.T) {
	dir, ms := isolate(t)
	cfg := Defaults()
	cfg.Canvas.ArrangeSpacing = 40
	cfg.Canvas.SnapToGuides = boolPtr(false)
	cfg.Fetch.AllowPrivateHosts = true
	if err := Save(cfg, "s3cret"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	got, tok, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok != "s3cret" || len(ms) != 1 {
		t.Fatalf("token not round-tripped via keyring: %q", tok)
	}
	if got.Canvas.ArrangeSpacing != 40 || got.Canvas.Snap() || !got.Fetch.AllowPrivateHosts {
		t.Fatalf("unexpected canvas/fetch after reload: %#v %#v", got.Canvas, got.Fetch)
	}
	if err := ClearToken(); err != nil {
		t.Fatalf("ClearToken: %v", err)
	}
	if err := ClearToken(); err != nil {
		t.Fatalf("second ClearToken should ignore missing token: %v", err)
	}
}

func TestLoadFileRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("canvas: [not, a, map"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestStageOptionsFromCanvas(t *testing.T) {
	cfg := Defaults()
	cfg.Canvas.PlaceholderSize = 256
	cfg.Canvas.CascadeStep = 16
	cfg.Canvas.RetryAfterMs = 1500
	cfg.Canvas.UndoCoalesceMs = 400
	o := cfg.StageOptions()
	if o.PlaceholderSize != 256 || o.CascadeStep != (geom.Pt{X: 16, Y: 16}) || o.RetryAfter != 1500*time.Millisecond {
		t.Fatalf("canvas not mapped: %+v", o)
	}
	if o.UndoCoalesce != 400*time.Millisecond {
		t.Fatalf("undo coalesce not mapped: %v", o.UndoCoalesce)
	}
	if d := Defaults().StageOptions(); d.UndoCoalesce != 0 {
		t.Fatalf("coalescing should be off by default: %v", d.UndoCoalesce)
	}
	if !o.Snap || o.FitFraction != 0.4 {
		t.Fatalf("defaults lost: %+v", o)
	}
}

func TestInitialZoomClamped(t *testing.T) {
	cases := map[int]int{0: 100, 5: 10, 155: 150, 900: 200}
	for in, want := range cases {
		if got := (CanvasConfig{DefaultZoom: in}).InitialZoom(); got != want {
			t.Errorf("InitialZoom(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestEnvSnapOverride(t *testing.T) {
	isolate(t)
	t.Setenv(EnvSnap, "off")
	cfg, _, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Canvas.Snap() {
		t.Fatalf("GST_SNAP=off should disable snapping")
	}
	if cfg.Fetch.FetchTimeout() != 20*time.Second || cfg.Backend.EffectiveTimeout() != 15*time.Second {
		t.Fatalf("unexpected timeouts")
	}
}
