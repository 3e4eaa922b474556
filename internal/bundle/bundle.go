/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package bundle packs a template and the images it references into a single
// zip file, and installs such a bundle back. Ephemeral blob: handles, such as
// those created by a layer import, become bundle-relative asset paths so the
// template survives a restart.
package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"templatecanvas/internal/assets"
	"templatecanvas/internal/domain"
	applog "templatecanvas/internal/log"
)

const (
	TemplateFile = "template.json"
	ManifestFile = "bundle.manifest.txt"
	AssetsDir    = "assets"
)

// Fetcher reads asset bytes by locator; assets.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, src string) ([]byte, error)
}

// Export writes tpl and its local assets into a zip at dest. Image element
// values and an image background that are blob: handles, file:// URLs or
// plain paths are copied into assets/ and rewritten; http(s) and data: URLs
// are left as they are. It returns the number of assets packed.
func Export(ctx context.Context, tpl *domain.Template, f Fetcher, dest string) (int, error) {
	l := applog.WithOperation(applog.WithComponent("bundle"), "export").With(slog.String("zip", dest))
	if tpl == nil {
		return 0, errors.New("nil template")
	}
	if strings.TrimSpace(dest) == "" {
		return 0, errors.New("dest is required")
	}
	out := *tpl
	out.State = append([]domain.Element(nil), tpl.State...)

	type entry struct {
		name string
		data []byte
	}
	var files []entry
	seen := map[string]string{}
	pack := func(src string) (string, error) {
		if !embeddable(src) {
			return src, nil
		}
		if name, ok := seen[src]; ok {
			return name, nil
		}
		data, err := f.Fetch(ctx, src)
		if err != nil {
			return "", fmt.Errorf("read asset %s: %w", short(src), err)
		}
		name := path.Join(AssetsDir, fmt.Sprintf("%03d%s", len(files)+1, extFor(data)))
		files = append(files, entry{name: name, data: data})
		seen[src] = name
		return name, nil
	}

	for i, el := range out.State {
		if el.Type != domain.TypeImage {
			continue
		}
		v, err := pack(el.Value)
		if err != nil {
			return 0, fmt.Errorf("element %s: %w", el.Name, err)
		}
		out.State[i].Value = v
	}
	if out.Background == domain.BackgroundImage {
		v, err := pack(out.Source)
		if err != nil {
			return 0, fmt.Errorf("background: %w", err)
		}
		out.Source = v
	}
	doc, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal template: %w", err)
	}
	if assets.IsEphemeral(string(doc)) {
		return 0, errors.New("template still references ephemeral assets")
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("ensure zip dir: %w", err)
	}
	// On Windows, remove destination if present before create
	_ = os.Remove(dest)
	zf, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create zip: %w", err)
	}
	defer func() { _ = zf.Close() }()
	zw := zip.NewWriter(zf)

	manifest := fmt.Sprintf("templatecanvas bundle\nCreated: %s\nTemplate: %s\nAssets: %d\n",
		time.Now().Format(time.RFC3339), tpl.ID, len(files))
	add := func(name string, data []byte) error {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	if err := add(ManifestFile, []byte(manifest)); err != nil {
		return 0, fmt.Errorf("add manifest: %w", err)
	}
	if err := add(TemplateFile, append(doc, '\n')); err != nil {
		return 0, fmt.Errorf("add template: %w", err)
	}
	for _, e := range files {
		if err := add(e.name, e.data); err != nil {
			l.Error("zip build failed", slog.Any("err", err))
			return 0, fmt.Errorf("add %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("close zip: %w", err)
	}
	l.Info("bundle exported", slog.String("template", tpl.ID), slog.Int("assets", len(files)))
	return len(files), nil
}

// Install extracts the bundle at zipPath below dir/<template id> and returns
// the template with asset paths rewritten to the extracted files. Existing
// files are not overwritten. The template is validated before anything is written.
func Install(zipPath, dir string) (*domain.Template, int, error) {
	l := applog.WithOperation(applog.WithComponent("bundle"), "install").With(slog.String("zip", zipPath))
	if strings.TrimSpace(dir) == "" {
		return nil, 0, errors.New("dir is required")
	}
	r, err := openZip(zipPath)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = r.Close() }()

	tpl, err := readTemplate(&r.Reader)
	if err != nil {
		return nil, 0, err
	}
	root := filepath.Join(dir, safeName(tpl.ID))
	installed := 0
	for _, f := range r.File {
		name, ok := assetName(f.Name)
		if !ok || f.FileInfo().IsDir() {
			continue
		}
		target := filepath.Join(root, filepath.FromSlash(name))
		if _, err := os.Stat(target); err == nil {
			l.Warn("skip existing file", slog.String("path", target))
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return nil, installed, err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, installed, err
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return nil, installed, err
		}
		installed++
	}
	rewrite(tpl, func(v string) string { return filepath.Join(root, filepath.FromSlash(v)) })
	l.Info("bundle installed", slog.String("template", tpl.ID), slog.Int("files", installed))
	return tpl, installed, nil
}

// Load reads the bundle at zipPath into memory, registering every asset in
// blobs. The returned template references the new blob: handles, so it is
// only valid for the lifetime of blobs.
func Load(zipPath string, blobs *assets.Store) (*domain.Template, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	r, err := openZip(zipPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	tpl, err := readTemplate(&r.Reader)
	if err != nil {
		return nil, err
	}
	urls := map[string]string{}
	for _, f := range r.File {
		name, ok := assetName(f.Name)
		if !ok || f.FileInfo().IsDir() {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			for _, u := range urls {
				blobs.Revoke(u)
			}
			return nil, err
		}
		urls[name] = blobs.Put(data, http.DetectContentType(data))
	}
	rewrite(tpl, func(v string) string {
		if u, ok := urls[v]; ok {
			return u
		}
		return v
	})
	return tpl, nil
}

// openZip tolerates insecure entry names; assetName filters them out.
func openZip(name string) (*zip.ReadCloser, error) {
	r, err := zip.OpenReader(name)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	return r, nil
}

func readTemplate(r *zip.Reader) (*domain.Template, error) {
	for _, f := range r.File {
		if f.Name != TemplateFile {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		return domain.DecodeTemplate(bytes.NewReader(data))
	}
	return nil, fmt.Errorf("bundle has no %s", TemplateFile)
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// rewrite maps every bundle-relative asset reference in tpl through fn.
func rewrite(tpl *domain.Template, fn func(string) string) {
	for i, el := range tpl.State {
		if el.Type == domain.TypeImage && isBundled(el.Value) {
			tpl.State[i].Value = fn(el.Value)
		}
	}
	if tpl.Background == domain.BackgroundImage && isBundled(tpl.Source) {
		tpl.Source = fn(tpl.Source)
	}
}

func isBundled(v string) bool { return strings.HasPrefix(v, AssetsDir+"/") }

// assetName accepts only clean entries below assets/; anything that would
// escape the install root is refused.
func assetName(name string) (string, bool) {
	clean := path.Clean(name)
	if !isBundled(clean) || strings.Contains(clean, "..") || path.IsAbs(clean) {
		return "", false
	}
	return clean, true
}

func embeddable(src string) bool {
	src = strings.TrimSpace(src)
	switch {
	case src == "":
		return false
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"), strings.HasPrefix(src, "data:"):
		return false
	}
	return true
}

func extFor(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	}
	return ".bin"
}

func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' {
			return '-'
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		return "template"
	}
	return s
}

func short(s string) string {
	if len(s) > 64 {
		return s[:61] + "..."
	}
	return s
}
