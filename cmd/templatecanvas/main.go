/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"templatecanvas/internal/bundle"
	"templatecanvas/internal/catalog"
	"templatecanvas/internal/config"
	"templatecanvas/internal/crash"
	"templatecanvas/internal/export"
	applog "templatecanvas/internal/log"
	"templatecanvas/internal/server"
	"templatecanvas/internal/shell"
	"templatecanvas/internal/storage"
	"templatecanvas/internal/version"
	"templatecanvas/internal/workspace"
)

func usage() {
	fmt.Println("templatecanvas - template canvas editor")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  templatecanvas version|-v|--version                       Show version")
	fmt.Println("  templatecanvas import <layers.json> <out.zip|out.json>     Convert a layer document into a template")
	fmt.Println("  templatecanvas render [flags] <template> <records|-> <dir> Render a template once per data record")
	fmt.Println("  templatecanvas edit [--script file] [template]             Edit interactively (or run a script)")
	fmt.Println("  templatecanvas serve [--addr host:port]                    Serve the JSON editing API")
	fmt.Println("  templatecanvas bundle export <template.json> <out.zip>     Pack a template with its assets")
	fmt.Println("  templatecanvas bundle install <bundle.zip> <dir>           Unpack a bundle into <dir>")
	fmt.Println("  templatecanvas catalog migrate|push <records.json>         Manage the Postgres record catalog")
}

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }

func usageErr(format string, a ...any) error {
	return exitError{code: 2, err: fmt.Errorf(format, a...)}
}

func main() {
	// initialize structured logging using environment defaults; the config
	// file may refine it below
	applog.Init(applog.FromEnv())
	var target crash.Target
	defer crash.Recover(&target)

	args := os.Args
	if len(args) < 2 {
		usage()
		return
	}
	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("templatecanvas")
		fmt.Println(version.String())
		return
	case "help", "-h", "--help":
		usage()
		return
	}

	cfg, secret, err := config.Load()
	if err != nil {
		applog.WithComponent("cli").Warn("config path unavailable, using defaults", slog.Any("err", err))
	}
	applog.Init(cfg.LogOptions())
	l := applog.WithComponent("cli")
	l.Debug("start", slog.String("cmd", args[1]), slog.Int("args", len(args)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, secret, &target, args[1], args[2:]); err != nil {
		code := 1
		var ee exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		l.Error(args[1]+" failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		if code == 2 {
			usage()
		}
		if target.Workspace != nil {
			_ = target.Workspace.Close()
		}
		os.Exit(code)
	}
	if target.Workspace != nil {
		if err := target.Workspace.Close(); err != nil {
			l.Warn("close workspace", slog.Any("err", err))
		}
	}
}

func run(ctx context.Context, cfg config.AppConfig, secret string, target *crash.Target, cmd string, args []string) error {
	switch cmd {
	case "import":
		return runImport(ctx, cfg, target, args)
	case "render":
		return runRender(ctx, cfg, secret, target, args)
	case "edit":
		return runEdit(ctx, cfg, target, args)
	case "serve":
		return runServe(ctx, cfg, secret, target, args)
	case "bundle":
		return runBundle(ctx, cfg, target, args)
	case "catalog":
		return runCatalog(ctx, cfg, secret, args)
	}
	return usageErr("unknown command: %s", cmd)
}

func open(cfg config.AppConfig, target *crash.Target) (*workspace.Workspace, error) {
	ws, err := workspace.New(cfg)
	if err != nil {
		return nil, err
	}
	target.Workspace = ws
	return ws, nil
}

func runImport(ctx context.Context, cfg config.AppConfig, target *crash.Target, args []string) error {
	if len(args) < 2 {
		return usageErr("import requires <layers.json> and <out>")
	}
	ws, err := open(cfg, target)
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	tpl, err := ws.ImportLayers(ctx, f)
	if err != nil {
		return err
	}
	out := args[1]
	if strings.EqualFold(filepath.Ext(out), ".zip") {
		n, err := bundle.Export(ctx, tpl, ws.Fetcher, out)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d layers into %s (%d assets)\n", len(tpl.State), out, n)
		return nil
	}
	fmt.Println("Note: image layers are only kept inside a bundle; use a .zip output to keep them.")
	if err := storage.SaveTemplateFile(out, tpl); err != nil {
		return err
	}
	fmt.Printf("Imported %d layers into %s\n", len(tpl.State), out)
	return nil
}

func runRender(ctx context.Context, cfg config.AppConfig, secret string, target *crash.Target, args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	formats := fs.String("formats", "png", "comma separated output formats: png, pdf, svg")
	bindings := fs.String("bindings", "", "JSON file mapping object names to binding expressions")
	archive := fs.Bool("archive", false, "write a single "+export.ArchiveName+" with a manifest")
	scale := fs.Float64("scale", 1, "raster scale factor")
	if err := fs.Parse(args); err != nil {
		return usageErr("%v", err)
	}
	if fs.NArg() < 3 {
		return usageErr("render requires <template> <records|-> <dir>")
	}
	tplPath, recSpec, outDir := fs.Arg(0), fs.Arg(1), fs.Arg(2)

	var fmts []export.Format
	for _, s := range strings.Split(*formats, ",") {
		f, err := export.ParseFormat(s)
		if err != nil {
			return usageErr("%v", err)
		}
		fmts = append(fmts, f)
	}

	var src catalog.Source = catalog.FileSource{Path: recSpec}
	if recSpec == "-" {
		s, err := catalog.Open(ctx, cfg.Catalog, secret)
		if err != nil {
			return err
		}
		if c, ok := s.(io.Closer); ok {
			defer func() { _ = c.Close() }()
		}
		src = s
	}
	records, err := src.Records(ctx)
	if err != nil {
		return err
	}

	ws, err := open(cfg, target)
	if err != nil {
		return err
	}
	tpl, err := ws.ReadTemplate(tplPath)
	if err != nil {
		return err
	}
	// Load once so bindings attach to this template id.
	warnings, err := ws.Load(ctx, tpl)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Println("warning:", w)
	}
	if *bindings != "" {
		m, err := workspace.ReadBindings(*bindings)
		if err != nil {
			return err
		}
		for name, expr := range m {
			ws.Session.SetBinding(name, expr)
		}
	}

	opt := ws.ExportOptions()
	opt.Scale = *scale
	items, err := ws.Render(ctx, tpl, records, export.BatchOptions{Formats: fmts, OutDir: outDir, Archive: *archive, Options: opt})
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.Error != "" {
			fmt.Printf("  #%d skipped: %s\n", it.Index, it.Error)
		}
	}
	fmt.Printf("Rendered %d records into %s\n", len(items), outDir)
	return export.Failed(items)
}

func runEdit(ctx context.Context, cfg config.AppConfig, target *crash.Target, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	script := fs.String("script", "", "run commands from a file instead of the terminal")
	if err := fs.Parse(args); err != nil {
		return usageErr("%v", err)
	}
	ws, err := open(cfg, target)
	if err != nil {
		return err
	}
	if err := ws.OpenStore(ctx); err != nil {
		applog.WithComponent("cli").Warn("state store unavailable", slog.Any("err", err))
	}
	sh := shell.New(ws, os.Stdout)
	if fs.NArg() > 0 {
		if err := sh.Execute(ctx, "load \""+fs.Arg(0)+"\""); err != nil {
			return err
		}
	} else if ws.Store != nil {
		if ok, err := ws.Session.Restore(ctx, ws.Store); err != nil {
			fmt.Println("Previous session not restored:", err)
		} else if ok {
			fmt.Println("Restored previous session.")
		}
	}
	defer func() {
		if ws.Store != nil {
			if err := ws.Autosave(context.Background()); err != nil {
				applog.WithComponent("cli").Warn("autosave on exit failed", slog.Any("err", err))
			}
		}
	}()

	if *script != "" {
		f, err := os.Open(*script)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		return sh.RunScript(ctx, f)
	}
	history := ""
	if p, err := config.ConfigPath(); err == nil {
		history = filepath.Join(filepath.Dir(p), "history")
	}
	return sh.Run(ctx, history)
}

func runServe(ctx context.Context, cfg config.AppConfig, secret string, target *crash.Target, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.Server.Addr, "listen address")
	access := fs.Bool("access-log", false, "log every request")
	if err := fs.Parse(args); err != nil {
		return usageErr("%v", err)
	}
	ws, err := open(cfg, target)
	if err != nil {
		return err
	}
	if err := ws.OpenStore(ctx); err != nil {
		return err
	}
	if ok, err := ws.Session.Restore(ctx, ws.Store); err != nil {
		applog.WithComponent("cli").Warn("previous session not restored", slog.Any("err", err))
	} else if ok {
		applog.WithComponent("cli").Info("previous session restored")
	}

	src, err := catalog.Open(ctx, cfg.Catalog, secret)
	switch {
	case errors.Is(err, catalog.ErrNoSource):
		src = nil
	case err != nil:
		return err
	}
	if c, ok := src.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	srv := server.New(ws, src, server.Options{AccessLog: *access})
	fmt.Printf("Serving on http://%s\n", *addr)
	err = srv.Listen(ctx, *addr)
	if aerr := ws.Autosave(context.Background()); aerr != nil {
		applog.WithComponent("cli").Warn("autosave on shutdown failed", slog.Any("err", aerr))
	}
	return err
}

func runBundle(ctx context.Context, cfg config.AppConfig, target *crash.Target, args []string) error {
	if len(args) < 3 {
		return usageErr("bundle requires export|install and two paths")
	}
	switch args[0] {
	case "export":
		ws, err := open(cfg, target)
		if err != nil {
			return err
		}
		tpl, err := ws.ReadTemplate(args[1])
		if err != nil {
			return err
		}
		n, err := bundle.Export(ctx, tpl, ws.Fetcher, args[2])
		if err != nil {
			return err
		}
		fmt.Printf("Bundled %s with %d assets into %s\n", tpl.ID, n, args[2])
		return nil
	case "install":
		tpl, n, err := bundle.Install(args[1], args[2])
		if err != nil {
			return err
		}
		dest := filepath.Join(args[2], tpl.ID+".json")
		if err := storage.SaveTemplateFile(dest, tpl); err != nil {
			return err
		}
		fmt.Printf("Installed %s (%d new assets); template written to %s\n", tpl.ID, n, dest)
		return nil
	}
	return usageErr("unknown bundle command: %s", args[0])
}

func runCatalog(ctx context.Context, cfg config.AppConfig, secret string, args []string) error {
	if len(args) < 1 {
		return usageErr("catalog requires migrate or push")
	}
	if strings.TrimSpace(cfg.Catalog.DSN) == "" {
		return errors.New("catalog.dsn is not configured")
	}
	src, err := catalog.Open(ctx, config.CatalogConfig{DSN: cfg.Catalog.DSN, Query: cfg.Catalog.Query}, secret)
	if err != nil {
		return err
	}
	pg := src.(*catalog.PGSource)
	defer func() { _ = pg.Close() }()
	if err := pg.Migrate(ctx); err != nil {
		return err
	}
	switch args[0] {
	case "migrate":
		fmt.Println("Catalog schema is up to date.")
		return nil
	case "push":
		if len(args) < 2 {
			return usageErr("catalog push requires <records.json>")
		}
		recs, err := catalog.FileSource{Path: args[1]}.Records(ctx)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if err := pg.Put(ctx, r.ID, r.Data); err != nil {
				return err
			}
		}
		fmt.Printf("Pushed %d records.\n", len(recs))
		return nil
	}
	return usageErr("unknown catalog command: %s", args[0])
}
