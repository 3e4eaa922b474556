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
	"testing"
	"time"
)

type memStore struct{ m map[string]string }

func (s *memStore) Get(service, key string) (string, error) {
	v, ok := s.m[service+"/"+key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}
func (s *memStore) Set(service, key, value string) error {
	s.m[service+"/"+key] = value
	return nil
}
func (s *memStore) Delete(service, key string) error {
	delete(s.m, service+"/"+key)
	return nil
}

func stubKeyring(t *testing.T) *memStore {
	t.Helper()
	ms := &memStore{m: map[string]string{}}
	prev := SetTokenStore(ms)
	t.Cleanup(func() { SetTokenStore(prev) })
	return ms
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	stubKeyring(t)
	cfg, secret, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if secret != "" {
		t.Fatalf("expected no secret, got %q", secret)
	}
	if cfg.Editor.MaxUndoSteps != 30 || cfg.Editor.FallbackFont != "Montserrat" || cfg.Editor.DefaultFontSize != 48 {
		t.Fatalf("defaults not applied: %#v", cfg.Editor)
	}
	if len(cfg.Editor.TrackedRoles) != 3 {
		t.Fatalf("expected default tracked roles, got %v", cfg.Editor.TrackedRoles)
	}
}

func TestSaveThenLoadRoundTripWithSecret(t *testing.T) {
	ms := stubKeyring(t)
	path := filepath.Join(t.TempDir(), "cfg", "config.yaml")
	cfg := Defaults()
	cfg.Editor.MaxUndoSteps = 12
	cfg.Editor.TrackedRoles = []TrackedRole{{Role: "headline", Object: "title", Kind: "text"}}
	cfg.Fonts.FetchTimeoutMs = 2500
	if err := SaveFile(path, cfg, "s3cret"); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	if ms.m["templatecanvas/catalog_secret"] != "s3cret" {
		t.Fatalf("secret not stored in keychain: %v", ms.m)
	}
	got, secret, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if secret != "s3cret" {
		t.Fatalf("secret = %q", secret)
	}
	if got.Editor.MaxUndoSteps != 12 || len(got.Editor.TrackedRoles) != 1 || got.Editor.TrackedRoles[0].Object != "title" {
		t.Fatalf("editor section not persisted: %#v", got.Editor)
	}
	if got.Fonts.FontTimeout() != 2500*time.Millisecond {
		t.Fatalf("FontTimeout = %v", got.Fonts.FontTimeout())
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := AppConfig{}
	src.Logging.Level = "DEBUG"
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "/tmp/tcv.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "/tmp/tcv.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
	if dst.Editor.DefaultFont != "Poppins Regular" {
		t.Fatalf("empty source must not clobber defaults: %#v", dst.Editor)
	}
}

func TestEnvOverrides(t *testing.T) {
	stubKeyring(t)
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvMaxUndoSteps, "5")
	t.Setenv(EnvFallbackFont, "Lato")
	t.Setenv(EnvTelemetryOptIn, "yes")
	t.Setenv(EnvCatalogSecret, "from-env")

	cfg, secret, err := LoadFile(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Logging.Level != "error" || !cfg.Logging.Source {
		t.Fatalf("logging env overrides not applied: %#v", cfg.Logging)
	}
	if cfg.Editor.MaxUndoSteps != 5 || cfg.Editor.FallbackFont != "Lato" || !cfg.General.TelemetryOptIn {
		t.Fatalf("editor env overrides not applied: %#v", cfg)
	}
	if secret != "from-env" {
		t.Fatalf("env secret should win over keychain, got %q", secret)
	}
	if env, ok := EnvOverrideFor("editor.max_undo_steps"); !ok || env != EnvMaxUndoSteps {
		t.Fatalf("EnvOverrideFor = %q %v", env, ok)
	}
	if _, ok := EnvOverrideFor("server.addr"); ok {
		t.Fatalf("server.addr is not overridden")
	}
}

func TestLoadFileIgnoresBrokenYAML(t *testing.T) {
	stubKeyring(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("editor: [not a map"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Editor.MaxUndoSteps != 30 {
		t.Fatalf("expected defaults on broken file, got %#v", cfg.Editor)
	}
}

func TestLoggingComponentsFromFileAndEnv(t *testing.T) {
	stubKeyring(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "logging:\n  level: warn\n  components:\n    Session: DEBUG\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	opts := cfg.LogOptions()
	if opts.Level != "warn" || opts.Components["session"] != "debug" {
		t.Fatalf("log options = %+v", opts)
	}

	t.Setenv(EnvLogComponents, "binding=error")
	cfg, _, err = LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if c := cfg.Logging.Components; len(c) != 1 || c["binding"] != "error" {
		t.Fatalf("env components should replace the file's: %v", c)
	}
}
