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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"templatecanvas/internal/config"
	"templatecanvas/internal/domain"
	"templatecanvas/internal/scene"
	"templatecanvas/internal/storage"
	"templatecanvas/internal/workspace"
)

func newShell(t *testing.T) (*Shell, *workspace.Workspace, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	ttf := filepath.Join(dir, "sans.ttf")
	if err := os.WriteFile(ttf, goregular.TTF, 0o644); err != nil {
		t.Fatal(err)
	}
	catPath := filepath.Join(dir, "fonts.yaml")
	if err := os.WriteFile(catPath, []byte("fonts:\n  \"Test Sans\": "+ttf+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Defaults()
	cfg.Fonts.CatalogFile = catPath
	cfg.Editor.DefaultFont = "Test Sans"
	cfg.Editor.FallbackFont = "Test Sans"
	cfg.Storage.StateDB = filepath.Join(dir, "state.db")
	ws, err := workspace.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ws.Close() })

	tpl := &domain.Template{
		ID: "promo", Background: domain.BackgroundColor, Source: "#ffffff", Width: 1080, Height: 1080,
		State: []domain.Element{
			{Type: domain.TypeRect, Name: "band", Details: domain.Details{Width: domain.Float(1080), Height: domain.Float(180), Fill: domain.String("#ff0000")}},
			{Type: domain.TypeText, Name: "title", Value: "Title", Details: domain.Details{Width: domain.Float(600), FontFamily: domain.String("Test Sans")}},
		},
	}
	if err := storage.SaveTemplateFile(filepath.Join(dir, "promo.json"), tpl); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	return New(ws, &out), ws, &out, dir
}

func TestParseArgs(t *testing.T) {
	got := ParseArgs(`bind title "{{name}} for {{price}}"  ""`)
	want := []string{"bind", "title", "{{name}} for {{price}}", ""}
	if len(got) != len(want) {
		t.Fatalf("ParseArgs = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arg %d = %q, want %q", i, got[i], want[i])
		}
	}
	if len(ParseArgs("   ")) != 0 {
		t.Fatalf("blank line must yield no args")
	}
}

func TestScriptEditsAndExports(t *testing.T) {
	sh, ws, out, dir := newShell(t)
	script := strings.Join([]string{
		"# comment",
		"load " + filepath.Join(dir, "promo.json"),
		"select band",
		"set fill #00ff00",
		"shape circle #0000ff",
		"undo",
		`bind title "Hello {{name}}"`,
		`apply {"name":"Lamp"}`,
		"ls",
		"export " + filepath.Join(dir, "out.svg"),
		"save " + filepath.Join(dir, "edited.json"),
		"exit",
		"shape rect",
	}, "\n")
	if err := sh.RunScript(context.Background(), strings.NewReader(script)); err != nil {
		t.Fatalf("RunScript: %v\n%s", err, out.String())
	}

	st := ws.Session.State()
	if len(st.Objects) != 2 {
		t.Fatalf("undo or exit did not hold: %d objects", len(st.Objects))
	}
	var band *scene.Object
	ws.Session.View(func(r scene.Renderer) { band = scene.Find(r, "band").Clone() })
	if band.Fill != "#00ff00" {
		t.Fatalf("fill = %q", band.Fill)
	}
	svg, err := os.ReadFile(filepath.Join(dir, "out.svg"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(svg), "Hello Lamp") {
		t.Fatalf("bound text missing from export")
	}
	edited, err := storage.OpenTemplateFile(filepath.Join(dir, "edited.json"))
	if err != nil || len(edited.State) != 2 {
		t.Fatalf("saved template: %+v %v", edited, err)
	}
	if !strings.Contains(out.String(), "applied 1 binding(s)") || !strings.Contains(out.String(), "band") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestScriptStopsAtFirstError(t *testing.T) {
	sh, ws, _, _ := newShell(t)
	err := sh.RunScript(context.Background(), strings.NewReader("shape rect\nfrobnicate\nshape circle\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("err = %v", err)
	}
	if n := len(ws.Session.State().Objects); n != 1 {
		t.Fatalf("commands after the error ran: %d objects", n)
	}
}

func TestExecuteUsageAndExit(t *testing.T) {
	sh, _, out, _ := newShell(t)
	ctx := context.Background()
	if err := sh.Execute(ctx, "scale onlyname"); err == nil || !strings.Contains(err.Error(), "usage") {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := sh.Execute(ctx, "quit"); !errors.Is(err, ErrExit) {
		t.Fatalf("quit = %v", err)
	}
	if err := sh.Execute(ctx, "help bind"); err != nil || !strings.Contains(out.String(), "bind <name>") {
		t.Fatalf("help bind: %v %q", err, out.String())
	}
	if err := sh.Execute(ctx, "select ghost"); err == nil {
		t.Fatalf("selecting a missing object must fail")
	}
	if err := sh.Execute(ctx, "restore"); err == nil {
		t.Fatalf("restore without a store must fail")
	}
	if err := sh.Execute(ctx, "revert"); !errors.Is(err, workspace.ErrNoStore) {
		t.Fatalf("revert without a store = %v", err)
	}
}

func TestApplyKeepsJSONQuotesAndSpaces(t *testing.T) {
	sh, ws, _, dir := newShell(t)
	ctx := context.Background()
	if err := sh.Execute(ctx, "load "+filepath.Join(dir, "promo.json")); err != nil {
		t.Fatal(err)
	}
	if err := sh.Execute(ctx, `bind title "{{name}} at {{price}}"`); err != nil {
		t.Fatal(err)
	}
	if err := sh.Execute(ctx, `apply  {"name": "Desk Lamp", "price": 9.5}`); err != nil {
		t.Fatalf("apply inline: %v", err)
	}
	var text string
	ws.Session.View(func(r scene.Renderer) { text = scene.Find(r, "title").Text })
	if text != "Desk Lamp at 9.5" {
		t.Fatalf("title = %q", text)
	}

	rec := filepath.Join(dir, "record.json")
	if err := os.WriteFile(rec, []byte(`{"name":"Shelf","price":20}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := sh.Execute(ctx, "apply @"+rec); err != nil {
		t.Fatalf("apply from file: %v", err)
	}
	ws.Session.View(func(r scene.Renderer) { text = scene.Find(r, "title").Text })
	if text != "Shelf at 20" {
		t.Fatalf("title = %q", text)
	}
}
