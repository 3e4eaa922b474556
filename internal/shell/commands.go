/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"templatecanvas/internal/bundle"
	"templatecanvas/internal/domain"
	"templatecanvas/internal/export"
	"templatecanvas/internal/scene"
	"templatecanvas/internal/session"
	"templatecanvas/internal/storage"
)

type command struct {
	usage string
	min   int
	run   func(ctx context.Context, s *Shell, args []string) error
}

// rawTail lists commands that take the rest of the line verbatim, such as a
// JSON record.
var rawTail = map[string]bool{"apply": true}

// commands is filled in init because help refers back to it.
var commands map[string]command

// commandOrder is the listing order for help and completion.
var commandOrder = []string{
	"load", "import", "save", "bundle", "ls", "show", "select", "deselect",
	"text", "image", "shape", "set", "size", "font", "src", "layer",
	"delete", "copy", "cut", "paste", "dup", "scale", "undo", "redo",
	"bg", "canvas", "bind", "unbind", "bindings", "apply", "export",
	"persist", "restore", "commit", "revert", "help", "exit", "quit",
}

func init() {
	commands = map[string]command{
		"load":     {"load <template.json|bundle.zip>", 1, cmdLoad},
		"import":   {"import <layers.json>", 1, cmdImport},
		"save":     {"save <template.json>", 1, cmdSave},
		"bundle":   {"bundle <out.zip>", 1, cmdBundle},
		"ls":       {"ls", 0, cmdList},
		"show":     {"show", 0, cmdShow},
		"select":   {"select <name>...", 1, cmdSelect},
		"deselect": {"deselect", 0, cmdDeselect},
		"text":     {`text "<text>" [fill] [fontSize]`, 0, cmdText},
		"image":    {"image <src> [width height]", 1, cmdImage},
		"shape":    {"shape rect|circle [fill]", 1, cmdShape},
		"set":      {"set <property> <value>", 2, cmdSet},
		"size":     {"size width|height <value>", 2, cmdSize},
		"font":     {`font "<family>"`, 1, cmdFont},
		"src":      {"src <image source>", 1, cmdSrc},
		"layer":    {"layer back|backward|forward|front|<index>", 1, cmdLayer},
		"delete":   {"delete", 0, cmdDelete},
		"copy":     {"copy", 0, func(_ context.Context, s *Shell, _ []string) error { s.ws.Session.Copy(); return nil }},
		"cut":      {"cut", 0, func(_ context.Context, s *Shell, _ []string) error { s.ws.Session.Cut(); return s.summary() }},
		"paste":    {"paste", 0, func(_ context.Context, s *Shell, _ []string) error { s.ws.Session.Paste(); return s.summary() }},
		"dup":      {"dup", 0, func(_ context.Context, s *Shell, _ []string) error { s.ws.Session.Duplicate(); return s.summary() }},
		"scale":    {"scale <name> <scaleX> <scaleY>", 3, cmdScale},
		"undo":     {"undo", 0, cmdUndo},
		"redo":     {"redo", 0, cmdRedo},
		"bg":       {"bg color|image <source>", 2, cmdBackground},
		"canvas":   {"canvas <width> <height>", 2, cmdCanvas},
		"bind":     {`bind <name> "<expression>"`, 2, cmdBind},
		"unbind":   {"unbind <name>", 1, cmdUnbind},
		"bindings": {"bindings", 0, cmdBindings},
		"apply":    {"apply <json>|@<file.json>", 1, cmdApply},
		"export":   {"export <out.png|out.pdf|out.svg> [scale]", 1, cmdExport},
		"persist":  {"persist", 0, cmdPersist},
		"restore":  {"restore", 0, cmdRestore},
		"commit":   {"commit", 0, cmdCommit},
		"revert":   {"revert", 0, cmdRevert},
		"help":     {"help [command]", 0, cmdHelp},
		"exit":     {"exit", 0, cmdExit},
		"quit":     {"quit", 0, cmdExit},
	}
}

func cmdLoad(ctx context.Context, s *Shell, args []string) error {
	tpl, err := s.ws.ReadTemplate(args[0])
	if err != nil {
		return err
	}
	warnings, err := s.ws.Load(ctx, tpl)
	s.warn(warnings)
	if err != nil {
		return err
	}
	return s.summary()
}

func cmdImport(ctx context.Context, s *Shell, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	tpl, err := s.ws.ImportLayers(ctx, f)
	if err != nil {
		return err
	}
	warnings, err := s.ws.Load(ctx, tpl)
	s.warn(warnings)
	if err != nil {
		return err
	}
	return s.summary()
}

func cmdSave(_ context.Context, s *Shell, args []string) error {
	if err := storage.SaveTemplateFile(args[0], s.ws.Session.CurrentTemplate()); err != nil {
		return err
	}
	s.printf("saved %s\n", args[0])
	return nil
}

func cmdBundle(ctx context.Context, s *Shell, args []string) error {
	n, err := bundle.Export(ctx, s.ws.Session.CurrentTemplate(), s.ws.Fetcher, args[0])
	if err != nil {
		return err
	}
	s.printf("bundled %s with %d assets\n", args[0], n)
	return nil
}

func cmdList(_ context.Context, s *Shell, _ []string) error {
	st := s.ws.Session.State()
	selected := map[string]bool{}
	for _, n := range st.Selection.Names() {
		selected[n] = true
	}
	for _, o := range st.Objects {
		mark := " "
		if selected[o.Name] {
			mark = "*"
		}
		s.printf("%s %2d  %-8s %s\n", mark, o.Index, o.Type, o.Name)
	}
	return nil
}

func cmdShow(_ context.Context, s *Shell, _ []string) error {
	st := s.ws.Session.State()
	if len(st.Selection.Objects) == 0 {
		return s.summary()
	}
	data, err := json.MarshalIndent(st.Selection.Objects, "", "  ")
	if err != nil {
		return err
	}
	s.printf("%s\n", data)
	return nil
}

func cmdSelect(_ context.Context, s *Shell, args []string) error {
	s.ws.Session.Select(args...)
	st := s.ws.Session.State()
	if st.Selection.Kind == scene.SelectionNone {
		return fmt.Errorf("no object named %s", strings.Join(args, ", "))
	}
	s.printf("selected %s\n", strings.Join(st.Selection.Names(), ", "))
	return nil
}

func cmdDeselect(_ context.Context, s *Shell, _ []string) error {
	s.ws.Session.Deselect()
	return nil
}

func cmdText(ctx context.Context, s *Shell, args []string) error {
	var opts session.TextOptions
	text := ""
	if len(args) > 0 {
		text = args[0]
	}
	if len(args) > 1 {
		opts.Fill = args[1]
	}
	if len(args) > 2 {
		v, err := number(args[2])
		if err != nil {
			return err
		}
		opts.FontSize = v
	}
	s.warn(s.ws.Session.AddText(ctx, text, opts))
	return s.summary()
}

func cmdImage(ctx context.Context, s *Shell, args []string) error {
	var w, h float64
	if len(args) >= 3 {
		var err error
		if w, err = number(args[1]); err != nil {
			return err
		}
		if h, err = number(args[2]); err != nil {
			return err
		}
	}
	s.warn(s.ws.Session.AddImage(ctx, args[0], w, h))
	return s.summary()
}

func cmdShape(_ context.Context, s *Shell, args []string) error {
	opts := session.ShapeOptions{}
	if len(args) > 1 {
		opts.Fill = args[1]
	}
	if err := s.ws.Session.AddShape(args[0], opts); err != nil {
		return err
	}
	return s.summary()
}

// cmdSet routes to the property command matching the selected object type.
func cmdSet(_ context.Context, s *Shell, args []string) error {
	sel := s.ws.Session.State().Selection
	if sel.Kind != scene.SelectionSingle {
		return fmt.Errorf("select exactly one object first")
	}
	prop, val := args[0], value(strings.Join(args[1:], " "))
	switch typ := domain.ObjectType(sel.Type); {
	case typ == domain.TypeText:
		return s.ws.Session.ChangeTextProperty(prop, val)
	case typ == domain.TypeImage:
		return s.ws.Session.ChangeImageProperty(prop, val)
	case typ.IsShape():
		return s.ws.Session.ChangeShapeProperty(prop, val)
	}
	return fmt.Errorf("cannot set properties on %s", sel.Type)
}

func cmdSize(_ context.Context, s *Shell, args []string) error {
	v, err := number(args[1])
	if err != nil {
		return err
	}
	s.ws.Session.ChangeObjectDimensions(args[0], v)
	return nil
}

func cmdFont(ctx context.Context, s *Shell, args []string) error {
	s.warn(s.ws.Session.ChangeFontFamily(ctx, strings.Join(args, " ")))
	return nil
}

func cmdSrc(ctx context.Context, s *Shell, args []string) error {
	s.warn(s.ws.Session.ChangeImageSource(ctx, args[0]))
	return nil
}

func cmdLayer(ctx context.Context, s *Shell, args []string) error {
	if err := s.ws.Session.ChangeObjectLayer(args[0]); err != nil {
		return err
	}
	return cmdList(ctx, s, nil)
}

func cmdDelete(_ context.Context, s *Shell, _ []string) error {
	s.ws.Session.DeleteObject()
	return s.summary()
}

func cmdScale(_ context.Context, s *Shell, args []string) error {
	sx, err := number(args[1])
	if err != nil {
		return err
	}
	sy, err := number(args[2])
	if err != nil {
		return err
	}
	s.ws.Session.ScaleObject(args[0], sx, sy)
	return nil
}

func cmdUndo(ctx context.Context, s *Shell, _ []string) error {
	if err := s.ws.Session.Undo(ctx); err != nil {
		return err
	}
	return s.summary()
}

func cmdRedo(ctx context.Context, s *Shell, _ []string) error {
	if err := s.ws.Session.Redo(ctx); err != nil {
		return err
	}
	return s.summary()
}

func cmdBackground(_ context.Context, s *Shell, args []string) error {
	kind := domain.BackgroundKind(args[0])
	if kind != domain.BackgroundColor && kind != domain.BackgroundImage {
		return fmt.Errorf("unknown background type %q", args[0])
	}
	s.ws.Session.ChangeBackground(kind, args[1])
	return nil
}

func cmdCanvas(_ context.Context, s *Shell, args []string) error {
	w, err := number(args[0])
	if err != nil {
		return err
	}
	h, err := number(args[1])
	if err != nil {
		return err
	}
	if w <= 0 || h <= 0 {
		return fmt.Errorf("width and height must be positive")
	}
	s.ws.Session.ChangeDimensions(w, h)
	return nil
}

func cmdBind(_ context.Context, s *Shell, args []string) error {
	s.ws.Session.SetBinding(args[0], strings.Join(args[1:], " "))
	return nil
}

func cmdUnbind(_ context.Context, s *Shell, args []string) error {
	s.ws.Session.ClearBinding(args[0])
	return nil
}

func cmdBindings(_ context.Context, s *Shell, _ []string) error {
	b := s.ws.Session.Bindings()
	names := make([]string, 0, len(b))
	for n := range b {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		s.printf("%s = %s\n", n, b[n])
	}
	return nil
}

func cmdApply(ctx context.Context, s *Shell, args []string) error {
	raw := []byte(args[0])
	if strings.HasPrefix(args[0], "@") {
		data, err := os.ReadFile(strings.Trim(strings.TrimPrefix(args[0], "@"), `"`))
		if err != nil {
			return err
		}
		raw = data
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var record map[string]any
	if err := dec.Decode(&record); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	rep := s.ws.Apply(ctx, record)
	s.warn(rep.Warnings)
	s.printf("applied %d binding(s)\n", len(rep.Applied))
	return nil
}

func cmdExport(ctx context.Context, s *Shell, args []string) error {
	path := args[0]
	f, err := export.ParseFormat(filepath.Ext(path))
	if err != nil {
		return err
	}
	opt := s.ws.ExportOptions()
	if len(args) > 1 {
		if opt.Scale, err = number(args[1]); err != nil {
			return err
		}
	}
	if err := export.WriteFile(ctx, path, f, s.ws.Session, opt); err != nil {
		return err
	}
	s.printf("wrote %s\n", path)
	return nil
}

func cmdPersist(ctx context.Context, s *Shell, _ []string) error {
	if err := s.ws.Autosave(ctx); err != nil {
		return err
	}
	s.printf("session persisted\n")
	return nil
}

func cmdCommit(ctx context.Context, s *Shell, _ []string) error {
	tpl, err := s.ws.SaveTemplate(ctx)
	if err != nil {
		return err
	}
	s.printf("template %s stored\n", tpl.ID)
	return nil
}

func cmdRevert(ctx context.Context, s *Shell, _ []string) error {
	warnings, err := s.ws.Revert(ctx)
	if err != nil {
		return err
	}
	s.warn(warnings)
	return s.summary()
}

func cmdRestore(ctx context.Context, s *Shell, _ []string) error {
	if s.ws.Store == nil {
		return fmt.Errorf("no state store")
	}
	ok, err := s.ws.Session.Restore(ctx, s.ws.Store)
	if err != nil {
		return err
	}
	if !ok {
		s.printf("nothing to restore\n")
		return nil
	}
	return s.summary()
}

func cmdHelp(_ context.Context, s *Shell, args []string) error {
	if len(args) > 0 {
		c, ok := commands[args[0]]
		if !ok {
			return fmt.Errorf("unknown command: %s", args[0])
		}
		s.printf("%s\n", c.usage)
		return nil
	}
	for _, name := range commandOrder {
		s.printf("  %s\n", commands[name].usage)
	}
	return nil
}

func cmdExit(context.Context, *Shell, []string) error { return ErrExit }

// summary prints a one-line state digest.
func (s *Shell) summary() error {
	st := s.ws.Session.State()
	s.printf("%s  %gx%g  objects=%d selected=%d undo=%t redo=%t\n",
		st.Status, st.Width, st.Height, len(st.Objects), len(st.Selection.Objects), st.CanUndo, st.CanRedo)
	return nil
}

func number(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return v, nil
}

// value keeps everything as a string except booleans; numeric strings are
// accepted by the object setters.
func value(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
