/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package workspace assembles one editing session with its resources: the
// blob store, fetchers, font resolver, text provider, canvas and an optional
// SQLite state store. The CLI, the HTTP server and the shell all drive a
// Workspace.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"templatecanvas/internal/assets"
	"templatecanvas/internal/binding"
	"templatecanvas/internal/bundle"
	"templatecanvas/internal/catalog"
	"templatecanvas/internal/config"
	"templatecanvas/internal/domain"
	"templatecanvas/internal/export"
	"templatecanvas/internal/fonts"
	applog "templatecanvas/internal/log"
	"templatecanvas/internal/psd"
	"templatecanvas/internal/scene"
	"templatecanvas/internal/session"
	"templatecanvas/internal/storage"
	"templatecanvas/internal/telemetry"
	"templatecanvas/internal/textlayout"
)

// Workspace is safe for concurrent use as far as its Session is; the other
// fields are set up once by New and not replaced afterwards, except Store.
type Workspace struct {
	Config    config.AppConfig
	Blobs     *assets.Store
	Fetcher   *assets.Fetcher
	Images    *assets.Loader
	Library   *textlayout.FontLibrary
	Fonts     *fonts.Resolver
	Text      textlayout.Provider
	Session   *session.Controller
	Store     *storage.Store
	Telemetry *telemetry.Client

	log *slog.Logger
}

// New builds a workspace with an attached canvas at the reference size.
// Storage is not opened; call OpenStore when persistence is wanted.
func New(cfg config.AppConfig) (*Workspace, error) {
	blobs := assets.NewStore()
	fetcher := &assets.Fetcher{
		Client:   &http.Client{},
		Blobs:    blobs,
		MaxBytes: cfg.Assets.MaxBytes,
		Timeout:  cfg.Assets.AssetTimeout(),
	}
	cat := fonts.DefaultCatalog()
	if cfg.Fonts.CatalogFile != "" {
		c, err := fonts.LoadCatalog(cfg.Fonts.CatalogFile)
		if err != nil {
			return nil, err
		}
		cat = c
	}
	lib := textlayout.NewFontLibrary()
	fontFetcher := *fetcher
	fontFetcher.Timeout = cfg.Fonts.FontTimeout()
	w := &Workspace{
		Config:  cfg,
		Blobs:   blobs,
		Fetcher: fetcher,
		Images:  assets.NewLoader(fetcher),
		Library: lib,
		Fonts: &fonts.Resolver{
			Catalog:  cat,
			Library:  lib,
			Fetcher:  &fontFetcher,
			Fallback: cfg.Editor.FallbackFont,
			Timeout:  cfg.Fonts.FontTimeout(),
		},
		Text:      textlayout.OTProvider{Lib: lib},
		Telemetry: telemetry.New(telemetry.FromSettings(cfg.General.TelemetryOptIn, cfg.General.TelemetryURL)),
		log:       applog.WithComponent("workspace"),
	}
	w.Session = session.New(session.OptionsFromConfig(cfg.Editor), w.Fonts, w.Images)
	w.Session.Attach(scene.NewCanvas(cfg.Editor.ReferenceWidth, cfg.Editor.ReferenceHeight, w.Text, w.Images))
	return w, nil
}

// OpenStore opens (or rebuilds when corrupt) the configured SQLite state file.
func (w *Workspace) OpenStore(ctx context.Context) error {
	path, err := w.Config.Storage.StatePath()
	if err != nil {
		return err
	}
	st, rebuilt, err := storage.OpenOrRebuild(ctx, path)
	if err != nil {
		return err
	}
	if rebuilt {
		w.log.Warn("state store was corrupt and has been rebuilt", slog.String("path", path))
	}
	w.Store = st
	return nil
}

// Close detaches the canvas, stops telemetry and closes the store.
func (w *Workspace) Close() error {
	w.Session.Detach()
	if w.Telemetry != nil {
		w.Telemetry.Flush(context.Background())
		w.Telemetry.Close()
	}
	if w.Store != nil {
		return w.Store.Close()
	}
	return nil
}

// ExportOptions renders with the workspace fonts and images at scale 1.
func (w *Workspace) ExportOptions() export.Options {
	return export.Options{Scale: 1, Text: w.Text, Images: w.Images}
}

// Adapter converts layer documents using the editor's default font.
func (w *Workspace) Adapter() psd.Adapter {
	return psd.Adapter{
		Blobs:           w.Blobs,
		DefaultFont:     w.Config.Editor.DefaultFont,
		DefaultFontSize: w.Config.Editor.DefaultFontSize,
	}
}

// ImportLayers converts a layer document dump into a template. Image layers
// end up as ephemeral blobs; export a bundle to keep them.
func (w *Workspace) ImportLayers(ctx context.Context, r io.Reader) (*domain.Template, error) {
	doc, err := psd.DecodeDocument(r)
	if err != nil {
		return nil, err
	}
	return w.Adapter().Convert(ctx, doc)
}

// ReadTemplate opens a template from disk. A .zip is treated as a bundle
// whose assets are registered as blobs; anything else is template JSON,
// falling back to its latest backup when the file is damaged.
func (w *Workspace) ReadTemplate(path string) (*domain.Template, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		tpl, err := bundle.Load(path, w.Blobs)
		if err != nil {
			return nil, err
		}
		w.log.Debug("bundle loaded", slog.String("path", path), slog.String("template", tpl.ID))
		return tpl, nil
	}
	return storage.OpenTemplateFile(path)
}

// Load places tpl on the canvas and reports the load to telemetry.
func (w *Workspace) Load(ctx context.Context, tpl *domain.Template) ([]string, error) {
	warnings, err := w.Session.LoadFromTemplate(ctx, tpl)
	if tpl != nil {
		w.Telemetry.TemplateLoaded(len(tpl.State), len(warnings), err == nil)
	}
	return warnings, err
}

// Apply writes record into the bound objects and reports counts to telemetry.
func (w *Workspace) Apply(ctx context.Context, record any) binding.Report {
	rep := w.Session.ApplyData(ctx, record)
	w.Telemetry.BindingsApplied(len(rep.Applied), len(rep.Warnings))
	return rep
}

// ErrNoStore is returned by operations that need OpenStore first.
var ErrNoStore = errors.New("state store not open")

var errNoCanvas = errors.New("no canvas attached")

// SaveTemplate stores the current scene as a template row and a snapshot.
func (w *Workspace) SaveTemplate(ctx context.Context) (*domain.Template, error) {
	if w.Store == nil {
		return nil, ErrNoStore
	}
	tpl := w.Session.CurrentTemplate()
	if tpl == nil {
		return nil, errNoCanvas
	}
	if err := w.Store.PutTemplate(ctx, tpl); err != nil {
		return nil, err
	}
	blob, err := json.Marshal(tpl)
	if err != nil {
		return nil, err
	}
	if err := w.Store.SaveSnapshot(ctx, tpl.ID, blob, time.Now()); err != nil {
		return nil, err
	}
	if n, err := w.Store.PruneSnapshots(ctx, tpl.ID, keepSnapshots); err != nil {
		w.log.Warn("prune snapshots", slog.Any("err", err))
	} else if n > 0 {
		w.log.Debug("pruned snapshots", slog.Int64("removed", n))
	}
	return tpl, nil
}

// keepSnapshots bounds the saved revisions per template.
const keepSnapshots = 10

// Revert loads the newest saved revision of the current template.
func (w *Workspace) Revert(ctx context.Context) ([]string, error) {
	if w.Store == nil {
		return nil, ErrNoStore
	}
	cur := w.Session.CurrentTemplate()
	if cur == nil {
		return nil, errNoCanvas
	}
	id := cur.ID
	blob, _, err := w.Store.LatestSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, fmt.Errorf("%w: no saved revision for %s", storage.ErrTemplateNotFound, id)
	}
	var tpl domain.Template
	if err := json.Unmarshal(blob, &tpl); err != nil {
		return nil, fmt.Errorf("decode revision: %w", err)
	}
	return w.Load(ctx, &tpl)
}

// Autosave persists the session state. It is used on shutdown and after a crash.
func (w *Workspace) Autosave(ctx context.Context) error {
	if w.Store == nil {
		return ErrNoStore
	}
	return w.Session.Persist(ctx, w.Store)
}

// Render loads tpl once per record, applies the record and writes the outputs.
// Bindings must be set on the session before calling.
func (w *Workspace) Render(ctx context.Context, tpl *domain.Template, records []catalog.Record, opt export.BatchOptions) ([]export.BatchItem, error) {
	if tpl == nil {
		return nil, errors.New("render: no template")
	}
	if opt.Options.Text == nil {
		opt.Options = w.ExportOptions()
	}
	l := applog.WithOperation(w.log, "render")
	prepare := func(ctx context.Context, i int) (string, error) {
		if _, err := w.Session.LoadFromTemplate(ctx, tpl); err != nil {
			return "", err
		}
		rec := records[i]
		rep := w.Session.ApplyData(ctx, rec.Data)
		if len(rep.Warnings) > 0 {
			l.Debug("record rendered with warnings", slog.String("record", rec.ID), slog.Int("warnings", len(rep.Warnings)))
		}
		return rec.ID, nil
	}
	items, err := export.Batch(ctx, w.Session, len(records), prepare, opt)
	formats := make([]string, 0, len(opt.Formats))
	for _, f := range opt.Formats {
		formats = append(formats, string(f))
	}
	failed := 0
	for _, it := range items {
		if it.Error != "" {
			failed++
		}
	}
	w.Telemetry.RenderFinished(len(records), failed, formats)
	return items, err
}

// ReadBindings decodes a JSON object of object name to expression.
func ReadBindings(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bindings: %w", err)
	}
	defer func() { _ = f.Close() }()
	m := map[string]string{}
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode bindings %s: %w", path, err)
	}
	return m, nil
}
