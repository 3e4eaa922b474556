/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package scene

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"

	"templatecanvas/internal/domain"
	"templatecanvas/internal/textlayout"
	"templatecanvas/internal/vector"
)

type fakeImages map[string]image.Image

func (f fakeImages) Image(_ context.Context, src string) (image.Image, error) {
	if img, ok := f[src]; ok {
		return img, nil
	}
	return nil, errors.New("no such image")
}

func newTestCanvas() *Canvas {
	return NewCanvas(800, 600, textlayout.BasicProvider{}, fakeImages{
		"a.png": image.NewRGBA(image.Rect(0, 0, 40, 20)),
	})
}

func text(name, s string) *Object {
	o := NewObject(domain.TypeText, name)
	o.Text, o.Width, o.FontSize = s, 200, 20
	return o
}

func TestAddLaysOutTextAndFiresAdded(t *testing.T) {
	c := newTestCanvas()
	var added []string
	c.On(EventAdded, func(e Event) { added = append(added, e.Target.Name) })
	o := text("title", "Hello")
	c.Add(o)
	if len(added) != 1 || added[0] != "title" {
		t.Fatalf("added events = %v", added)
	}
	if math.Abs(o.Height-20*textlayout.LineHeight) > 1e-9 || len(o.Lines()) != 1 {
		t.Fatalf("text not laid out: h=%v lines=%v", o.Height, o.Lines())
	}
}

func TestMoveToClampsAndKeepsOthersOrdered(t *testing.T) {
	c := newTestCanvas()
	a, b, d := text("a", "a"), text("b", "b"), text("d", "d")
	c.Add(a, b, d)
	c.MoveTo(d, 0)
	if got := names(c.Objects()); got != "d,a,b" {
		t.Fatalf("order = %s", got)
	}
	c.MoveTo(d, 99)
	if got := names(c.Objects()); got != "a,b,d" {
		t.Fatalf("order = %s", got)
	}
	c.MoveTo(a, -3)
	if IndexOf(c, a) != 0 {
		t.Fatalf("negative index must clamp to bottom")
	}
}

func names(objs []*Object) string {
	s := ""
	for i, o := range objs {
		if i > 0 {
			s += ","
		}
		s += o.Name
	}
	return s
}

func TestSelectionEventsAndRemove(t *testing.T) {
	c := newTestCanvas()
	var kinds []EventKind
	for _, k := range []EventKind{EventSelectionCreated, EventSelectionUpdated, EventSelectionCleared} {
		c.On(k, func(e Event) { kinds = append(kinds, e.Kind) })
	}
	a, b := text("a", "a"), text("b", "b")
	c.Add(a, b)
	c.SetActiveObjects(a)
	c.SetActiveObjects(a, b, a)
	if got := len(c.ActiveObjects()); got != 2 {
		t.Fatalf("duplicates must collapse, got %d active", got)
	}
	if c.ActiveObject() != nil {
		t.Fatalf("ActiveObject must be nil for multi selection")
	}
	c.Remove(a)
	if c.ActiveObject() != b {
		t.Fatalf("removed object must leave the selection")
	}
	c.DiscardActive()
	c.DiscardActive()
	want := []EventKind{EventSelectionCreated, EventSelectionUpdated, EventSelectionCleared}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v", kinds)
		}
	}
	stranger := text("x", "x")
	c.SetActiveObjects(stranger)
	if len(c.ActiveObjects()) != 0 {
		t.Fatalf("objects not on canvas cannot be selected")
	}
}

func TestOffRemovesHandler(t *testing.T) {
	c := newTestCanvas()
	n := 0
	off := c.On(EventModified, func(Event) { n++ })
	c.Fire(Event{Kind: EventModified})
	off()
	c.Fire(Event{Kind: EventModified})
	if n != 1 {
		t.Fatalf("handler calls = %d", n)
	}
}

func TestCenterObject(t *testing.T) {
	c := newTestCanvas()
	o := NewObject(domain.TypeRect, "r")
	o.Width, o.Height, o.ScaleX = 100, 50, 2
	c.Add(o)
	c.CenterObject(o)
	if o.Left != 300 || o.Top != 275 {
		t.Fatalf("centered at %v,%v", o.Left, o.Top)
	}
	c.SetZoom(2)
	c.CenterObject(o)
	if o.Left != 100 || o.Top != 125 {
		t.Fatalf("zoomed center at %v,%v", o.Left, o.Top)
	}
	if hit := c.ObjectAt(vector.Pt{X: 150, Y: 140}); hit != o {
		t.Fatalf("expected hit on centered rect")
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	c := newTestCanvas()
	img := NewObject(domain.TypeImage, "logo")
	img.SetImage(image.NewRGBA(image.Rect(0, 0, 40, 20)), "a.png")
	img.ScaleX, img.ScaleY, img.Left, img.Angle = 2, 3, 15, 30
	title := text("title", "Hello world")
	title.Meta = map[string]float64{MetaMaxWords: 2}
	c.Add(title, img)
	c.SetBackground(Background{Kind: domain.BackgroundColor, Source: "#123456"})

	data, err := c.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	c2 := newTestCanvas()
	c2.Add(text("stale", "gone"))
	if err := c2.Deserialize(context.Background(), data); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	objs := c2.Objects()
	if names(objs) != "title,logo" {
		t.Fatalf("restored order = %s", names(objs))
	}
	logo := objs[1]
	if logo.Image() == nil || logo.ScaleX != 2 || logo.ScaleY != 3 || logo.Left != 15 || logo.Angle != 30 {
		t.Fatalf("image not restored: %+v", logo)
	}
	if objs[0].Meta[MetaMaxWords] != 2 || len(objs[0].Lines()) == 0 {
		t.Fatalf("text not restored: %+v", objs[0])
	}
	if c2.Background().Source != "#123456" {
		t.Fatalf("background not restored")
	}
	if err := c2.Deserialize(context.Background(), []byte("{")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestDeserializeKeepsGeometryWhenImageMissing(t *testing.T) {
	c := newTestCanvas()
	o := NewObject(domain.TypeImage, "gone")
	o.Src, o.Width, o.Height = "missing.png", 10, 10
	c.Add(o)
	data, _ := c.Serialize()
	c2 := newTestCanvas()
	if err := c2.Deserialize(context.Background(), data); err != nil {
		t.Fatal(err)
	}
	got := c2.Objects()[0]
	if got.Image() != nil || got.Width != 10 || got.Src != "missing.png" {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestObjectSetGet(t *testing.T) {
	o := text("t", "x")
	if err := o.Set("fontSize", 60); err != nil || o.FontSize != 60 {
		t.Fatalf("fontSize = %v (%v)", o.FontSize, err)
	}
	if err := o.Set("opacity", "0.5"); err != nil || o.Opacity != 0.5 {
		t.Fatalf("opacity = %v (%v)", o.Opacity, err)
	}
	if err := o.Set("fill", "#ff0000"); err != nil || o.Fill != "#ff0000" {
		t.Fatalf("fill = %v (%v)", o.Fill, err)
	}
	if err := o.Set("fill", 3); err == nil {
		t.Fatalf("expected type error")
	}
	if err := o.Set("bogus", 1); !errors.Is(err, ErrUnknownProperty) {
		t.Fatalf("expected ErrUnknownProperty, got %v", err)
	}
	if v, ok := o.Get("visible"); !ok || v != true {
		t.Fatalf("visible = %v %v", v, ok)
	}
}

func TestDeriveSelectionAndList(t *testing.T) {
	c := newTestCanvas()
	a, b := text("a", "a"), NewObject(domain.TypeRect, "b")
	c.Add(a, b)
	if s := DeriveSelection(c); s.Kind != SelectionNone || len(s.Objects) != 0 {
		t.Fatalf("empty selection = %+v", s)
	}
	c.SetActiveObjects(a)
	s := DeriveSelection(c)
	if s.Kind != SelectionSingle || s.Type != "textbox" || s.Names()[0] != "a" {
		t.Fatalf("single selection = %+v", s)
	}
	a.Text = "changed"
	if s.Objects[0].Text == "changed" {
		t.Fatalf("selection must hold copies")
	}
	c.SetActiveObjects(a, b)
	if s := DeriveSelection(c); s.Kind != SelectionMulti || s.Type != ActiveSelectionType {
		t.Fatalf("multi selection = %+v", s)
	}
	if DeriveSelection(nil).Kind != SelectionNone {
		t.Fatalf("nil renderer selection")
	}
	l := List(c)
	if len(l) != 2 || l[1].Name != "b" || l[1].Index != 1 || l[1].Type != "rect" || !l[1].Visible {
		t.Fatalf("list = %+v", l)
	}
}

func TestComputeMeta(t *testing.T) {
	c := newTestCanvas()
	c.SetZoom(2)
	o := text("main_text", "Fresh deals every single day")
	o.Width = 100
	c.Add(o)
	m := ComputeMeta(o, c.Zoom())
	if m[MetaMaxWidth] != 200 || m[MetaMaxWords] != 5 || m[MetaMaxCharacters] != 28 {
		t.Fatalf("text meta = %v", m)
	}
	if m[MetaMaxHeight] != math.Round(o.Height*2) || m[MetaWrapLength] < 5 {
		t.Fatalf("text meta = %v", m)
	}
	empty := text("sub_text", "")
	c.Add(empty)
	m = ComputeMeta(empty, 1)
	if m[MetaMaxWords] != DefaultMaxWords || m[MetaMaxCharacters] != DefaultMaxCharacters || m[MetaWrapLength] != DefaultWrapLength {
		t.Fatalf("empty text defaults = %v", m)
	}

	logo := NewObject(domain.TypeImage, "brand_logo")
	logo.Width, logo.Height, logo.ScaleX, logo.ScaleY = 100, 50, 0.5, 0.5
	m = ComputeMeta(logo, 1)
	if len(m) != 2 || m[MetaMaxWidth] != 50 || m[MetaMaxHeight] != 25 {
		t.Fatalf("image meta = %v", m)
	}

	roles := Roles{{Role: "brand", Object: "brand_logo", Kind: domain.TypeImage}, {Role: "headline", Object: "main_text", Kind: domain.TypeImage}}
	if !roles.UpdateMeta(logo, 1) || logo.Meta[MetaMaxWidth] != 50 {
		t.Fatalf("logo should be tracked")
	}
	if roles.UpdateMeta(o, 1) {
		t.Fatalf("kind mismatch must not be tracked")
	}
}
