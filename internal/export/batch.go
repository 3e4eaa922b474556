/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	applog "templatecanvas/internal/log"
	"templatecanvas/internal/scene"
)

// ArchiveName is the file written by Batch when BatchOptions.Archive is set.
const ArchiveName = "renders.zip"

// BatchOptions controls rendering one template against many records.
//   - Formats: output formats per record; empty means PNG.
//   - OutDir: target directory, created if missing.
//   - Archive: pack every output plus a manifest.json into OutDir/renders.zip
//     instead of writing loose files.
type BatchOptions struct {
	Formats []Format
	OutDir  string
	Archive bool
	Options Options
}

// BatchItem describes one rendered record.
type BatchItem struct {
	Index int      `json:"index"`
	Name  string   `json:"name"`
	Files []string `json:"files"`
	Error string   `json:"error,omitempty"`
}

// Manifest is stored as manifest.json inside a batch archive.
type Manifest struct {
	Created time.Time   `json:"created"`
	Count   int         `json:"count"`
	Items   []BatchItem `json:"items"`
}

// Prepare readies the viewer's scene for record i and returns a name for its
// outputs. An error skips the record; the batch continues.
type Prepare func(ctx context.Context, i int) (string, error)

// Batch renders n records. prepare binds record i into v's scene, then every
// format is drawn from it. Record failures are collected in the returned
// items; only output and context errors abort.
func Batch(ctx context.Context, v Viewer, n int, prepare Prepare, opt BatchOptions) ([]BatchItem, error) {
	l := applog.WithOperation(applog.WithComponent("export"), "batch")
	formats := opt.Formats
	if len(formats) == 0 {
		formats = []Format{FormatPNG}
	}
	if err := os.MkdirAll(opt.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure out dir: %w", err)
	}

	var (
		zw *zip.Writer
		zf *os.File
	)
	if opt.Archive {
		f, err := os.Create(filepath.Join(opt.OutDir, ArchiveName))
		if err != nil {
			return nil, fmt.Errorf("create archive: %w", err)
		}
		zf, zw = f, zip.NewWriter(f)
		defer func() { _ = zf.Close() }()
	}

	pad := len(fmt.Sprint(n))
	items := make([]BatchItem, 0, n)
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		item := BatchItem{Index: i}
		name, err := prepare(ctx, i)
		if err != nil {
			item.Error = err.Error()
			items = append(items, item)
			l.Warn("record skipped", slog.Int("index", i), slog.Any("err", err))
			continue
		}
		item.Name = fileStem(name, i, pad)
		for _, f := range formats {
			fname := item.Name + f.Ext()
			buf.Reset()
			werr := errNoScene
			v.View(func(r scene.Renderer) { werr = Write(ctx, &buf, f, r, opt.Options) })
			if werr != nil {
				return items, fmt.Errorf("render %s: %w", fname, werr)
			}
			if zw != nil {
				err = addZipFile(zw, fname, buf.Bytes())
			} else {
				err = os.WriteFile(filepath.Join(opt.OutDir, fname), buf.Bytes(), 0o644)
			}
			if err != nil {
				return items, fmt.Errorf("write %s: %w", fname, err)
			}
			item.Files = append(item.Files, fname)
		}
		items = append(items, item)
	}

	if zw != nil {
		data, err := json.MarshalIndent(Manifest{Created: time.Now().UTC(), Count: n, Items: items}, "", "  ")
		if err != nil {
			return items, fmt.Errorf("build manifest: %w", err)
		}
		if err := addZipFile(zw, "manifest.json", data); err != nil {
			return items, fmt.Errorf("zip add manifest: %w", err)
		}
		if err := zw.Close(); err != nil {
			return items, fmt.Errorf("close zip: %w", err)
		}
	}
	l.Info("batch rendered", slog.Int("records", n), slog.Int("failed", failed(items)), slog.String("out", opt.OutDir))
	return items, nil
}

// ErrBatchFailed is returned by Failed when at least one record was skipped.
var ErrBatchFailed = errors.New("some records failed to render")

// Failed returns ErrBatchFailed wrapped with the count when any item has an error.
func Failed(items []BatchItem) error {
	if n := failed(items); n > 0 {
		return fmt.Errorf("%w: %d of %d", ErrBatchFailed, n, len(items))
	}
	return nil
}

func failed(items []BatchItem) int {
	n := 0
	for _, it := range items {
		if it.Error != "" {
			n++
		}
	}
	return n
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// fileStem makes name safe for a file name, or numbers the record when empty.
func fileStem(name string, i, pad int) string {
	s := strings.Trim(unsafeName.ReplaceAllString(name, "-"), "-.")
	if s == "" {
		return fmt.Sprintf("record-%0*d", pad, i+1)
	}
	return s
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
