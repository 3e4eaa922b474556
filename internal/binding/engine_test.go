/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package binding

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"templatecanvas/internal/domain"
	"templatecanvas/internal/scene"
)

type imageMap map[string]image.Image

func (m imageMap) Image(_ context.Context, src string) (image.Image, error) {
	if img, ok := m[src]; ok {
		return img, nil
	}
	return nil, errors.New("no such image")
}

func textObj(name, text string) *scene.Object {
	o := scene.NewObject(domain.TypeText, name)
	o.Text = text
	return o
}

func TestSetEmptyRemoves(t *testing.T) {
	e := NewEngine()
	e.Set("title", "{{name}}")
	if v, ok := e.Get("title"); !ok || v != "{{name}}" {
		t.Fatalf("Get = %q %v", v, ok)
	}
	e.Set("title", "  ")
	if _, ok := e.Get("title"); ok || e.Len() != 0 {
		t.Fatalf("empty expression should remove the binding")
	}
	e.Set("a", "x")
	all := e.All()
	all["b"] = "y"
	if e.Len() != 1 {
		t.Fatalf("All must return a copy")
	}
	e.Clear()
	if e.Len() != 0 {
		t.Fatalf("Clear left %d bindings", e.Len())
	}
}

func TestApplyTemplateAndMissingField(t *testing.T) {
	e := NewEngine()
	price := textObj("price", "0.00")
	e.Set("price", "{{price}}")

	rep := e.Apply(context.Background(), []*scene.Object{price}, nil, map[string]any{"price": "9.99"})
	if price.Text != "9.99" || len(rep.Warnings) != 0 || !rep.Changed() {
		t.Fatalf("text=%q report=%+v", price.Text, rep)
	}

	rep = e.Apply(context.Background(), []*scene.Object{price}, nil, map[string]any{"name": "Shoe"})
	if price.Text != "9.99" {
		t.Fatalf("missing field must leave text unchanged, got %q", price.Text)
	}
	if len(rep.Warnings) != 1 || !strings.Contains(rep.Warnings[0], `"price"`) || rep.Changed() {
		t.Fatalf("expected one warning, got %+v", rep)
	}
}

func TestApplyPartialTemplateKeepsPlaceholder(t *testing.T) {
	e := NewEngine()
	o := textObj("promo", "")
	e.Set("promo", "{{ offer }} OFF on {{name}}")
	rep := e.Apply(context.Background(), []*scene.Object{o}, nil, map[string]any{"offer": 20})
	if o.Text != "20 OFF on {{name}}" {
		t.Fatalf("text = %q", o.Text)
	}
	if !rep.Changed() || len(rep.Warnings) != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestApplyLegacyKeyAndDottedPaths(t *testing.T) {
	e := NewEngine()
	title := textObj("title", "old")
	first := textObj("first", "old")
	e.Set("title", "product.name")
	e.Set("first", "{{items.0.sku}}")
	rec := map[string]any{
		"product": map[string]any{"name": "Runner"},
		"items":   []any{map[string]any{"sku": "A-1"}},
	}
	rep := e.Apply(context.Background(), []*scene.Object{title, first}, nil, rec)
	if title.Text != "Runner" || first.Text != "A-1" {
		t.Fatalf("title=%q first=%q", title.Text, first.Text)
	}
	if len(rep.Applied) != 2 || rep.Applied[0] != "first" {
		t.Fatalf("applied = %v", rep.Applied)
	}

	e.Set("title", "product.missing")
	rep = e.Apply(context.Background(), []*scene.Object{title}, nil, rec)
	if title.Text != "Runner" || len(rep.Warnings) != 1 {
		t.Fatalf("legacy miss should skip and warn: %q %+v", title.Text, rep)
	}
}

func TestApplyImageKeepsPlacement(t *testing.T) {
	e := NewEngine()
	logo := scene.NewObject(domain.TypeImage, "logo")
	logo.SetImage(image.NewRGBA(image.Rect(0, 0, 100, 50)), "old.png")
	logo.Left, logo.Top, logo.ScaleX, logo.ScaleY, logo.Angle = 12, 34, 0.5, 2, 15
	logo.Opacity, logo.Stroke = 0.8, "#ff0000ff"
	e.Set("logo", "brand.logo")

	imgs := imageMap{"new.png": image.NewRGBA(image.Rect(0, 0, 200, 100))}
	rep := e.Apply(context.Background(), []*scene.Object{logo}, imgs, map[string]any{"brand": map[string]any{"logo": "new.png"}})
	if len(rep.Warnings) != 0 || logo.Src != "new.png" {
		t.Fatalf("src=%q report=%+v", logo.Src, rep)
	}
	if logo.Left != 12 || logo.Top != 34 || logo.ScaleX != 0.5 || logo.ScaleY != 2 || logo.Angle != 15 {
		t.Fatalf("placement changed: %+v", logo)
	}
	if logo.Opacity != 0.8 || logo.Stroke != "#ff0000ff" {
		t.Fatalf("style changed: %+v", logo)
	}
}

func TestApplyFailuresDoNotAbort(t *testing.T) {
	e := NewEngine()
	logo := scene.NewObject(domain.TypeImage, "logo")
	box := scene.NewObject(domain.TypeRect, "box")
	name := textObj("name", "")
	e.Set("logo", "img")
	e.Set("box", "color")
	e.Set("name", "name")
	e.Set("gone", "name")

	rec := map[string]any{"img": "broken.png", "color": "#fff", "name": "Ada"}
	rep := e.Apply(context.Background(), []*scene.Object{logo, box, name}, imageMap{}, rec)
	if name.Text != "Ada" {
		t.Fatalf("later binding not applied: %q", name.Text)
	}
	if len(rep.Warnings) != 2 {
		t.Fatalf("warnings = %v", rep.Warnings)
	}

	rep = e.Apply(context.Background(), []*scene.Object{logo}, imageMap{}, map[string]any{"img": ""})
	if len(rep.Warnings) != 1 || !strings.Contains(rep.Warnings[0], "empty") {
		t.Fatalf("empty source should warn: %v", rep.Warnings)
	}
}

func TestLookup(t *testing.T) {
	rec := map[string]any{"a": map[string]any{"b": []any{"x", 2.5}}, "n": nil}
	if v, ok := Resolve(rec, "a.b.1"); !ok || v != "2.5" {
		t.Fatalf("a.b.1 = %q %v", v, ok)
	}
	for _, p := range []string{"a.b.2", "a.c", "n", "", "a.b.x"} {
		if _, ok := Lookup(rec, p); ok {
			t.Fatalf("Lookup(%q) should fail", p)
		}
	}
	if got := Placeholders("{{a}} and {{ b.c }}"); len(got) != 2 || got[1] != "b.c" {
		t.Fatalf("Placeholders = %v", got)
	}
}
