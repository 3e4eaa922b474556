/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"templatecanvas/internal/assets"
	"templatecanvas/internal/domain"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func importedTemplate(t *testing.T, blobs *assets.Store) (*domain.Template, []byte) {
	t.Helper()
	data := pngBytes(t, 3, 2)
	u := blobs.Put(data, "image/png")
	file := filepath.Join(t.TempDir(), "logo.png")
	if err := os.WriteFile(file, pngBytes(t, 1, 1), 0o644); err != nil {
		t.Fatal(err)
	}
	return &domain.Template{
		ID: "tpl-1", Width: 400, Height: 300,
		Background: domain.BackgroundColor, Source: "#000000",
		State: []domain.Element{
			{Type: domain.TypeImage, Name: "photo", Value: u},
			{Type: domain.TypeImage, Name: "photo_copy", Value: u},
			{Type: domain.TypeImage, Name: "logo", Value: file},
			{Type: domain.TypeImage, Name: "remote", Value: "https://cdn.example.com/a.png"},
			{Type: domain.TypeText, Name: "title", Value: "Hello"},
		},
	}, data
}

func TestExportRewritesLocalAssets(t *testing.T) {
	blobs := assets.NewStore()
	tpl, _ := importedTemplate(t, blobs)
	dest := filepath.Join(t.TempDir(), "out", "promo.zip")
	n, err := Export(context.Background(), tpl, &assets.Fetcher{Blobs: blobs}, dest)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 packed assets (shared blob counted once), got %d", n)
	}
	if !strings.HasPrefix(tpl.State[0].Value, assets.BlobScheme) {
		t.Fatalf("input template must not be modified")
	}
	zr, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = zr.Close() }()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if got := strings.Join(names, ","); got != "bundle.manifest.txt,template.json,assets/001.png,assets/002.png" {
		t.Fatalf("entries = %s", got)
	}
	got, err := readTemplate(&zr.Reader)
	if err != nil {
		t.Fatalf("readTemplate: %v", err)
	}
	if got.State[0].Value != "assets/001.png" || got.State[1].Value != "assets/001.png" || got.State[2].Value != "assets/002.png" {
		t.Fatalf("values not rewritten: %+v", got.State)
	}
	if got.State[3].Value != "https://cdn.example.com/a.png" || got.State[4].Value != "Hello" {
		t.Fatalf("remote images and text must be kept: %+v", got.State)
	}
}

func TestExportFailsOnMissingAsset(t *testing.T) {
	tpl := &domain.Template{ID: "x", Width: 1, Height: 1, State: []domain.Element{
		{Type: domain.TypeImage, Name: "gone", Value: "blob:templatecanvas/nope"},
	}}
	dest := filepath.Join(t.TempDir(), "x.zip")
	if _, err := Export(context.Background(), tpl, &assets.Fetcher{Blobs: assets.NewStore()}, dest); err == nil {
		t.Fatalf("expected error for a revoked blob")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("no archive should be written on failure")
	}
}

func TestInstallExtractsAndRewrites(t *testing.T) {
	blobs := assets.NewStore()
	tpl, data := importedTemplate(t, blobs)
	dest := filepath.Join(t.TempDir(), "promo.zip")
	if _, err := Export(context.Background(), tpl, &assets.Fetcher{Blobs: blobs}, dest); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	got, n, err := Install(dest, dir)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if n != 2 {
		t.Fatalf("installed %d files", n)
	}
	want := filepath.Join(dir, "tpl-1", "assets", "001.png")
	if got.State[0].Value != want {
		t.Fatalf("value = %q, want %q", got.State[0].Value, want)
	}
	b, err := os.ReadFile(want)
	if err != nil || !bytes.Equal(b, data) {
		t.Fatalf("asset bytes differ: %v", err)
	}
	// A second install skips existing files.
	if _, n, err := Install(dest, dir); err != nil || n != 0 {
		t.Fatalf("second install = %d, %v", n, err)
	}
}

func TestLoadRegistersBlobs(t *testing.T) {
	blobs := assets.NewStore()
	tpl, data := importedTemplate(t, blobs)
	dest := filepath.Join(t.TempDir(), "promo.zip")
	if _, err := Export(context.Background(), tpl, &assets.Fetcher{Blobs: blobs}, dest); err != nil {
		t.Fatal(err)
	}
	fresh := assets.NewStore()
	got, err := Load(dest, fresh)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if fresh.Len() != 2 {
		t.Fatalf("expected 2 blobs, got %d", fresh.Len())
	}
	b, ct, err := fresh.Get(got.State[0].Value)
	if err != nil || ct != "image/png" || !bytes.Equal(b, data) {
		t.Fatalf("blob mismatch: %q %v", ct, err)
	}
	if got.State[0].Value != got.State[1].Value {
		t.Fatalf("shared asset should map to one blob")
	}
}

func TestInstallIgnoresEntriesEscapingRoot(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(dest)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, _ := zw.Create(TemplateFile)
	_, _ = w.Write([]byte(`{"id":"e","width":10,"height":10,"state":[]}`))
	w, _ = zw.Create("assets/../../evil.txt")
	_, _ = w.Write([]byte("x"))
	_ = zw.Close()
	_ = f.Close()

	dir := t.TempDir()
	_, n, err := Install(dest, dir)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if n != 0 {
		t.Fatalf("escaping entry must be skipped, installed %d", n)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "evil.txt")); !os.IsNotExist(err) {
		t.Fatalf("file written outside install root")
	}
}

func TestInstallRejectsInvalidTemplate(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "bad.zip")
	f, _ := os.Create(dest)
	zw := zip.NewWriter(f)
	w, _ := zw.Create(TemplateFile)
	_, _ = w.Write([]byte(`{"width":0,"height":10,"state":[]}`))
	_ = zw.Close()
	_ = f.Close()
	if _, _, err := Install(dest, t.TempDir()); err == nil {
		t.Fatalf("expected validation error")
	}
}
