/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package session

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"slices"
	"strings"
	"testing"

	"templatecanvas/internal/domain"
	"templatecanvas/internal/fonts"
	"templatecanvas/internal/history"
	"templatecanvas/internal/scene"
	"templatecanvas/internal/textlayout"
)

type stubFonts map[string]bool

func (s stubFonts) Resolve(_ context.Context, name string) fonts.Result {
	if s[name] {
		return fonts.Result{Name: name}
	}
	return fonts.Result{Name: fonts.DefaultFallback, Warning: fonts.WarnNotFound}
}

type stubImages map[string]image.Image

func (s stubImages) Image(_ context.Context, src string) (image.Image, error) {
	if img, ok := s[src]; ok {
		return img, nil
	}
	return nil, errors.New("not found")
}

var testImages = stubImages{
	"a.png": image.NewRGBA(image.Rect(0, 0, 100, 50)),
	"b.png": image.NewRGBA(image.Rect(0, 0, 40, 40)),
}

func newTestSession(t *testing.T, opts Options) (*Controller, *scene.Canvas) {
	t.Helper()
	c := New(opts, stubFonts{"Poppins Regular": true, "Lato": true}, testImages)
	cv := scene.NewCanvas(800, 600, textlayout.BasicProvider{}, testImages)
	c.Attach(cv)
	return c, cv
}

func titleTemplate() *domain.Template {
	return &domain.Template{
		ID: "tpl-1", Width: 800, Height: 600, Background: domain.BackgroundColor, Source: "#000000",
		State: []domain.Element{{
			Type: domain.TypeText, Name: "title", Value: "Hello",
			Details: domain.Details{Top: domain.Float(10), Left: domain.Float(10), FontSize: domain.Float(40)},
		}},
	}
}

func object(t *testing.T, c *Controller, name string) scene.Object {
	t.Helper()
	var out *scene.Object
	c.View(func(r scene.Renderer) {
		if o := scene.Find(r, name); o != nil {
			out = o.Clone()
		}
	})
	if out == nil {
		t.Fatalf("object %q not on canvas", name)
	}
	return *out
}

type summary struct {
	Name, Type, Text         string
	Left, Top, Width         float64
	ScaleX, ScaleY, FontSize float64
}

func summarize(c *Controller) []summary {
	var out []summary
	c.View(func(r scene.Renderer) {
		for _, o := range r.Objects() {
			out = append(out, summary{o.Name, string(o.Type), o.Text, o.Left, o.Top, o.Width, o.ScaleX, o.ScaleY, o.FontSize})
		}
	})
	return out
}

func TestLoadThenUndoFontSize(t *testing.T) {
	c, _ := newTestSession(t, Options{})
	warnings, err := c.LoadFromTemplate(context.Background(), titleTemplate())
	if err != nil || len(warnings) != 0 {
		t.Fatalf("load: %v %v", warnings, err)
	}
	st := c.State()
	if len(st.Objects) != 1 || st.Objects[0].Name != "title" || st.Objects[0].Type != "textbox" {
		t.Fatalf("objects = %+v", st.Objects)
	}
	if st.Status != StatusSuccess || st.TemplateID != "tpl-1" || st.CanUndo || st.CanRedo {
		t.Fatalf("state after load = %+v", st)
	}
	if got := object(t, c, "title"); got.FontSize != 40 || got.FontFamily != "Poppins Regular" {
		t.Fatalf("title = %+v", got)
	}

	c.Select("title")
	if err := c.ChangeTextProperty("fontSize", 60); err != nil {
		t.Fatalf("ChangeTextProperty: %v", err)
	}
	if object(t, c, "title").FontSize != 60 || !c.State().CanUndo {
		t.Fatalf("change not recorded")
	}
	if err := c.Undo(context.Background()); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if got := object(t, c, "title").FontSize; got != 40 {
		t.Fatalf("fontSize after undo = %v", got)
	}
	st = c.State()
	if st.CanUndo || !st.CanRedo {
		t.Fatalf("flags after undo: undo=%v redo=%v", st.CanUndo, st.CanRedo)
	}
	if names := st.Selection.Names(); len(names) != 1 || names[0] != "title" {
		t.Fatalf("selection not restored by name: %v", names)
	}
	if err := c.Redo(context.Background()); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if got := object(t, c, "title").FontSize; got != 60 {
		t.Fatalf("fontSize after redo = %v", got)
	}
}

func TestLoadDeduplicatesNames(t *testing.T) {
	c, _ := newTestSession(t, Options{})
	tpl := &domain.Template{ID: "d", Width: 800, Height: 600, State: []domain.Element{
		{Type: domain.TypeRect, Name: "Box"},
		{Type: domain.TypeRect, Name: "box"},
		{Type: "rectangle"},
	}}
	if _, err := c.LoadFromTemplate(context.Background(), tpl); err != nil {
		t.Fatal(err)
	}
	objs := c.State().Objects
	if len(objs) != 3 {
		t.Fatalf("objects = %+v", objs)
	}
	if objs[0].Name != "box" || objs[1].Name == "box" || !strings.HasPrefix(objs[1].Name, "box_") {
		t.Fatalf("names = %q %q", objs[0].Name, objs[1].Name)
	}
	if !strings.HasPrefix(objs[2].Name, "rect_") {
		t.Fatalf("unnamed element should get a generated name, got %q", objs[2].Name)
	}
}

func TestLoadWarningsAndScaling(t *testing.T) {
	c, _ := newTestSession(t, Options{ReferenceWidth: 1600, ReferenceHeight: 1200})
	tpl := &domain.Template{ID: "w", Width: 400, Height: 300, State: []domain.Element{
		{Type: "text", Name: "headline", Value: "Hi", Details: domain.Details{FontFamily: domain.String("Comic Unknown")}},
		{Type: domain.TypeImage, Name: "photo", Value: "a.png", Details: domain.Details{Width: domain.Float(200), Height: domain.Float(100)}},
		{Type: domain.TypeImage, Name: "broken", Value: "missing.png", Details: domain.Details{Left: domain.Float(5), Width: domain.Float(30), Height: domain.Float(20)}},
	}}
	warnings, err := c.LoadFromTemplate(context.Background(), tpl)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 2 || !strings.Contains(warnings[0], fonts.WarnNotFound) {
		t.Fatalf("warnings = %v", warnings)
	}
	st := c.State()
	if st.Width != 800 || st.Height != 600 {
		t.Fatalf("canvas = %vx%v, want 800x600", st.Width, st.Height)
	}
	if got := object(t, c, "headline"); got.FontFamily != fonts.DefaultFallback || got.FontSize != 48 || got.Width != 310 {
		t.Fatalf("headline = %+v", got)
	}
	photo := object(t, c, "photo")
	if photo.Width != 100 || photo.ScaleX != 2 || photo.ScaleY != 2 {
		t.Fatalf("photo should keep natural size and scale to the declared box: %+v", photo)
	}
	broken := object(t, c, "broken")
	if broken.Left != 5 || broken.Width != 30 || broken.Height != 20 || broken.Src != "missing.png" {
		t.Fatalf("broken image should keep declared geometry: %+v", broken)
	}
}

func TestLoadIsIncrementalAndCancellable(t *testing.T) {
	c, _ := newTestSession(t, Options{})
	var counts []int
	cancel := c.Subscribe(func(st State) { counts = append(counts, len(st.Objects)) })
	tpl := &domain.Template{ID: "i", Width: 800, Height: 600, State: []domain.Element{
		{Type: domain.TypeRect, Name: "a"}, {Type: domain.TypeRect, Name: "b"},
	}}
	if _, err := c.LoadFromTemplate(context.Background(), tpl); err != nil {
		t.Fatal(err)
	}
	cancel()
	if !slices.Equal(counts, []int{1, 2}) {
		t.Fatalf("published object counts = %v", counts)
	}

	ctx, stop := context.WithCancel(context.Background())
	stop()
	if _, err := c.LoadFromTemplate(ctx, tpl); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if c.State().Status != StatusError {
		t.Fatalf("status = %v", c.State().Status)
	}
}

func TestUndoRedoInverse(t *testing.T) {
	c, _ := newTestSession(t, Options{})
	ctx := context.Background()
	c.AddText(ctx, "one", TextOptions{})
	if err := c.AddShape("circle", ShapeOptions{Radius: 20}); err != nil {
		t.Fatal(err)
	}
	c.ChangeObjectDimensions("width", 80)
	c.AddImage(ctx, "b.png", 0, 0)
	want := summarize(c)
	if len(want) != 3 {
		t.Fatalf("objects = %+v", want)
	}

	for range 4 {
		if err := c.Undo(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(c.State().Objects); n != 0 || c.State().CanUndo {
		t.Fatalf("after undoing everything: %d objects, canUndo=%v", n, c.State().CanUndo)
	}
	for range 4 {
		if err := c.Redo(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if got := summarize(c); !slices.Equal(got, want) {
		t.Fatalf("redo did not reproduce the scene:\n got %+v\nwant %+v", got, want)
	}
}

func TestRedoInvalidatedAndHistoryBounded(t *testing.T) {
	c, _ := newTestSession(t, Options{History: history.Config{MaxSteps: 3}})
	ctx := context.Background()
	for range 5 {
		c.AddText(ctx, "x", TextOptions{})
	}
	if d := c.HistoryStats().UndoDepth; d != 3 {
		t.Fatalf("undo depth = %d, want 3", d)
	}
	_ = c.Undo(ctx)
	if !c.State().CanRedo {
		t.Fatalf("expected redo after undo")
	}
	_ = c.AddShape("rect", ShapeOptions{})
	if c.State().CanRedo {
		t.Fatalf("a new mutation must clear redo")
	}
}

func TestUndoGuardAndNoRenderer(t *testing.T) {
	c, _ := newTestSession(t, Options{})
	ctx := context.Background()
	c.AddText(ctx, "x", TextOptions{})
	c.inFlight.Store(true)
	if st := c.State(); st.CanUndo {
		t.Fatalf("actions must be disabled while a restore is in flight")
	}
	if err := c.Undo(ctx); err != nil || len(c.State().Objects) != 1 {
		t.Fatalf("guarded undo should be a no-op")
	}
	c.inFlight.Store(false)
	if err := c.Undo(ctx); err != nil || len(c.State().Objects) != 0 {
		t.Fatalf("undo after release failed")
	}
	if c.inFlight.Load() {
		t.Fatalf("guard left set")
	}

	bare := New(Options{}, nil, nil)
	if w := bare.AddText(ctx, "x", TextOptions{}); w != nil {
		t.Fatalf("no-op expected, got %v", w)
	}
	if w, err := bare.LoadFromTemplate(ctx, titleTemplate()); w != nil || err != nil {
		t.Fatalf("load without renderer should be a no-op")
	}
	bare.DeleteObject()
	if err := bare.Undo(ctx); err != nil {
		t.Fatal(err)
	}
	if st := bare.State(); st.Status != StatusUninitialized || len(st.Objects) != 0 {
		t.Fatalf("state = %+v", st)
	}
}

func TestLayerOrder(t *testing.T) {
	c, _ := newTestSession(t, Options{})
	for range 3 {
		_ = c.AddShape("rect", ShapeOptions{})
	}
	first := c.State().Objects[0].Name
	c.Select(first)
	indexOf := func() int {
		for _, o := range c.State().Objects {
			if o.Name == first {
				return o.Index
			}
		}
		return -1
	}
	if err := c.ChangeObjectLayer(LayerFront); err != nil || indexOf() != 2 {
		t.Fatalf("front: index %d err %v", indexOf(), err)
	}
	_ = c.ChangeObjectLayer(LayerBackward)
	if indexOf() != 1 {
		t.Fatalf("backward: index %d", indexOf())
	}
	_ = c.ChangeObjectLayer(LayerBack)
	if indexOf() != 0 {
		t.Fatalf("back: index %d", indexOf())
	}
	_ = c.ChangeObjectLayer("2")
	if indexOf() != 2 {
		t.Fatalf("index 2: got %d", indexOf())
	}
	if err := c.ChangeObjectLayer("sideways"); !errors.Is(err, ErrUnknownLayerOp) {
		t.Fatalf("expected ErrUnknownLayerOp, got %v", err)
	}
}

func TestDimensionsByType(t *testing.T) {
	c, _ := newTestSession(t, Options{})
	ctx := context.Background()
	c.AddText(ctx, "hello", TextOptions{})
	name := c.State().Selection.Names()[0]
	before := object(t, c, name)
	depth := c.HistoryStats().UndoDepth
	c.ChangeObjectDimensions("height", 999)
	if after := object(t, c, name); after.Height != before.Height || c.HistoryStats().UndoDepth != depth {
		t.Fatalf("height on text must be a silent no-op")
	}
	c.ChangeObjectDimensions("width", 400)
	if object(t, c, name).Width != 400 {
		t.Fatalf("text width not applied")
	}

	c.AddImage(ctx, "a.png", 0, 0)
	img := c.State().Selection.Names()[0]
	c.ChangeObjectDimensions("height", 25)
	if got := object(t, c, img); got.ScaleY != 0.5 || got.Height != 50 {
		t.Fatalf("image height should become a scale: %+v", got)
	}
}

func TestScaleTextbox(t *testing.T) {
	c, _ := newTestSession(t, Options{})
	c.AddText(context.Background(), "grow", TextOptions{})
	name := c.State().Selection.Names()[0]
	c.ScaleObject(name, 2, 1.5)
	got := object(t, c, name)
	if got.FontSize != 72 || got.Width != 620 || got.ScaleX != 1 || got.ScaleY != 1 {
		t.Fatalf("scaled textbox = %+v", got)
	}

	c.AddImage(context.Background(), "b.png", 40, 40)
	img := c.State().Selection.Names()[0]
	c.ScaleObject(img, 2, 3)
	if got := object(t, c, img); got.ScaleX != 2 || got.ScaleY != 3 {
		t.Fatalf("images keep the scale transform: %+v", got)
	}
}

func TestDeleteCopyPasteDuplicate(t *testing.T) {
	c, _ := newTestSession(t, Options{})
	_ = c.AddShape("rect", ShapeOptions{})
	_ = c.AddShape("circle", ShapeOptions{})
	objs := c.State().Objects
	a, b := objs[0].Name, objs[1].Name

	c.Select(a)
	c.Copy()
	c.Paste()
	st := c.State()
	if len(st.Objects) != 3 || st.Selection.Names()[0] == a {
		t.Fatalf("paste: %+v", st.Objects)
	}
	pasted := object(t, c, st.Selection.Names()[0])
	if orig := object(t, c, a); pasted.Left != orig.Left+10 || pasted.Top != orig.Top+10 {
		t.Fatalf("paste offset: %v,%v vs %v,%v", pasted.Left, pasted.Top, orig.Left, orig.Top)
	}

	c.Select(b)
	c.Duplicate()
	if n := len(c.State().Objects); n != 4 {
		t.Fatalf("duplicate: %d objects", n)
	}

	c.Select(a, b)
	c.DeleteObject()
	st = c.State()
	if len(st.Objects) != 2 || st.Selection.Kind != scene.SelectionNone {
		t.Fatalf("delete: %+v", st)
	}
	_ = c.Undo(context.Background())
	if n := len(c.State().Objects); n != 4 {
		t.Fatalf("undo delete: %d objects", n)
	}

	c.Select(a)
	c.Cut()
	c.Paste()
	names := []string{}
	for _, o := range c.State().Objects {
		names = append(names, o.Name)
	}
	if slices.Contains(names, a) || len(names) != 4 {
		t.Fatalf("cut+paste names = %v", names)
	}
}

func TestFontAndImageSourceChanges(t *testing.T) {
	c, _ := newTestSession(t, Options{})
	ctx := context.Background()
	c.AddText(ctx, "x", TextOptions{})
	name := c.State().Selection.Names()[0]
	if w := c.ChangeFontFamily(ctx, "Lato"); len(w) != 0 || object(t, c, name).FontFamily != "Lato" {
		t.Fatalf("font change failed: %v", w)
	}
	if w := c.ChangeFontFamily(ctx, "Nope"); len(w) != 1 || object(t, c, name).FontFamily != fonts.DefaultFallback {
		t.Fatalf("unknown font should fall back with a warning: %v", w)
	}

	c.AddImage(ctx, "a.png", 200, 100)
	img := c.State().Selection.Names()[0]
	before := object(t, c, img)
	if w := c.ChangeImageSource(ctx, "b.png"); len(w) != 0 {
		t.Fatalf("warnings: %v", w)
	}
	after := object(t, c, img)
	if after.Src != "b.png" || after.ScaledWidth() != before.ScaledWidth() || after.ScaledHeight() != before.ScaledHeight() {
		t.Fatalf("displayed size changed: %+v -> %+v", before, after)
	}
	if w := c.ChangeImageSource(ctx, "missing.png"); len(w) != 1 || object(t, c, img).Src != "b.png" {
		t.Fatalf("failed load must warn and keep the image: %v", w)
	}
}

func TestBindingsApplyAsOneChange(t *testing.T) {
	c, _ := newTestSession(t, Options{})
	ctx := context.Background()
	tpl := &domain.Template{ID: "b", Width: 800, Height: 600, State: []domain.Element{
		{Type: domain.TypeText, Name: "price", Value: "0.00"},
		{Type: domain.TypeImage, Name: "logo", Value: "a.png", Details: domain.Details{
			Left: domain.Float(7), Top: domain.Float(9), Width: domain.Float(50), Height: domain.Float(25), Angle: domain.Float(30)}},
	}}
	if _, err := c.LoadFromTemplate(ctx, tpl); err != nil {
		t.Fatal(err)
	}
	c.SetBinding("price", "{{price}}")
	c.SetBinding("logo", "brand.logo")
	if st := c.State(); len(st.Bindings) != 2 || st.CanUndo {
		t.Fatalf("bindings must not touch history: %+v", st)
	}
	before := object(t, c, "logo")

	rep := c.ApplyData(ctx, map[string]any{"price": "9.99", "brand": map[string]any{"logo": "b.png"}})
	if len(rep.Warnings) != 0 || len(rep.Applied) != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if object(t, c, "price").Text != "9.99" {
		t.Fatalf("price not bound")
	}
	after := object(t, c, "logo")
	if after.Src != "b.png" || after.Left != before.Left || after.Top != before.Top ||
		after.ScaleX != before.ScaleX || after.ScaleY != before.ScaleY || after.Angle != before.Angle {
		t.Fatalf("image geometry changed: %+v -> %+v", before, after)
	}
	if d := c.HistoryStats().UndoDepth; d != 2 {
		t.Fatalf("one record should be one history entry, depth = %d", d)
	}

	rep = c.ApplyData(ctx, map[string]any{"brand": map[string]any{"logo": "b.png"}})
	if object(t, c, "price").Text != "9.99" || len(rep.Warnings) != 1 {
		t.Fatalf("missing field should warn and keep text: %+v", rep)
	}

	_ = c.Undo(ctx)
	_ = c.Undo(ctx)
	if object(t, c, "price").Text != "0.00" || len(c.Bindings()) != 2 {
		t.Fatalf("undo must revert the text but keep bindings")
	}
	c.ClearBinding("logo")
	if _, ok := c.Bindings()["logo"]; ok {
		t.Fatalf("ClearBinding kept the binding")
	}
}

func TestTrackedRolesGetMeta(t *testing.T) {
	roles := scene.Roles{{Role: "main_text", Object: "headline", Kind: domain.TypeText}}
	c, _ := newTestSession(t, Options{Roles: roles})
	tpl := &domain.Template{ID: "m", Width: 800, Height: 600, State: []domain.Element{
		{Type: domain.TypeText, Name: "Headline", Value: "Big summer sale", Details: domain.Details{Width: domain.Float(300)}},
		{Type: domain.TypeText, Name: "other", Value: "x"},
	}}
	if _, err := c.LoadFromTemplate(context.Background(), tpl); err != nil {
		t.Fatal(err)
	}
	h := object(t, c, "headline")
	if h.Meta[scene.MetaMaxWidth] != 300 || h.Meta[scene.MetaMaxWords] != 3 {
		t.Fatalf("meta = %v", h.Meta)
	}
	if len(object(t, c, "other").Meta) != 0 {
		t.Fatalf("untracked objects get no meta")
	}
	c.Select("headline")
	c.ChangeObjectDimensions("width", 500)
	if object(t, c, "headline").Meta[scene.MetaMaxWidth] != 500 {
		t.Fatalf("meta not refreshed on save")
	}
}

type memSink map[string][]byte

func (m memSink) Get(_ context.Context, key string) ([]byte, error) { return m[key], nil }
func (m memSink) Put(_ context.Context, key string, data []byte) error {
	m[key] = data
	return nil
}
func (m memSink) Delete(_ context.Context, key string) error {
	delete(m, key)
	return nil
}

func TestPersistRestore(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestSession(t, Options{})
	if _, err := c.LoadFromTemplate(ctx, titleTemplate()); err != nil {
		t.Fatal(err)
	}
	c.SetBinding("title", "name")
	sink := memSink{}
	if err := c.Persist(ctx, sink); err != nil {
		t.Fatal(err)
	}
	if _, ok := sink[StateKey]; !ok {
		t.Fatalf("nothing stored under %s", StateKey)
	}

	d, _ := newTestSession(t, Options{})
	ok, err := d.Restore(ctx, sink)
	if err != nil || !ok {
		t.Fatalf("Restore = %v %v", ok, err)
	}
	st := d.State()
	if st.TemplateID != "tpl-1" || len(st.Objects) != 1 || st.Bindings["title"] != "name" || st.CanUndo {
		t.Fatalf("restored state = %+v", st)
	}
	if object(t, d, "title").Text != "Hello" {
		t.Fatalf("scene not restored")
	}

	if ok, err := d.Restore(ctx, memSink{}); ok || err != nil {
		t.Fatalf("empty sink: %v %v", ok, err)
	}
	eph := memSink{StateKey: []byte(`{"scene":{"objects":[{"type":"image","src":"blob:templatecanvas/x"}]}}`)}
	if _, err := d.Restore(ctx, eph); !errors.Is(err, ErrEphemeralState) {
		t.Fatalf("expected ErrEphemeralState, got %v", err)
	}
	if _, ok := eph[StateKey]; ok {
		t.Fatalf("ephemeral state must be discarded")
	}
}

func TestCurrentTemplateRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestSession(t, Options{})
	c.AddText(ctx, "Hi", TextOptions{FontSize: 30})
	c.AddImage(ctx, "a.png", 200, 100)
	tpl := c.CurrentTemplate()
	if tpl.ID == "" || len(tpl.State) != 2 || tpl.State[1].Value != "a.png" || tpl.State[0].Details.Height != nil {
		t.Fatalf("template = %+v", tpl)
	}
	want := summarize(c)

	d, _ := newTestSession(t, Options{})
	if w, err := d.LoadFromTemplate(ctx, tpl); err != nil || len(w) != 0 {
		t.Fatalf("reload: %v %v", w, err)
	}
	if got := summarize(d); !slices.Equal(got, want) {
		t.Fatalf("round trip differs:\n got %+v\nwant %+v", got, want)
	}
}

func TestCurrentTemplateKeepsVisibilityAndLock(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestSession(t, Options{})
	if _, err := c.LoadFromTemplate(ctx, titleTemplate()); err != nil {
		t.Fatal(err)
	}
	if err := c.AddShape("rect", ShapeOptions{}); err != nil {
		t.Fatal(err)
	}
	c.Select("title")
	if err := c.ChangeTextProperty("visible", false); err != nil {
		t.Fatal(err)
	}
	if err := c.ChangeTextProperty("locked", true); err != nil {
		t.Fatal(err)
	}

	tpl := c.CurrentTemplate()
	title := tpl.State[0].Details
	if title.Visible == nil || *title.Visible || title.Locked == nil || !*title.Locked {
		t.Fatalf("title flags not written: %+v", title)
	}
	if shape := tpl.State[1].Details; shape.Visible != nil || shape.Locked != nil {
		t.Fatalf("default flags must be omitted: %+v", shape)
	}
	raw, err := json.Marshal(tpl)
	if err != nil {
		t.Fatal(err)
	}
	if err := domain.Validate(raw); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if _, err := c.LoadFromTemplate(ctx, tpl); err != nil {
		t.Fatal(err)
	}
	if o := object(t, c, "title"); o.Visible || !o.Locked {
		t.Fatalf("flags lost on reload: visible=%v locked=%v", o.Visible, o.Locked)
	}
	if o := object(t, c, tpl.State[1].Name); !o.Visible || o.Locked {
		t.Fatalf("shape flags changed on reload: visible=%v locked=%v", o.Visible, o.Locked)
	}
}

// flakyCanvas fails Deserialize while broken is set.
type flakyCanvas struct {
	*scene.Canvas
	broken bool
}

func (f *flakyCanvas) Deserialize(ctx context.Context, data []byte) error {
	if f.broken {
		return errors.New("decode failed")
	}
	return f.Canvas.Deserialize(ctx, data)
}

func TestFailedUndoKeepsHistory(t *testing.T) {
	ctx := context.Background()
	c := New(Options{}, stubFonts{"Poppins Regular": true}, testImages)
	fc := &flakyCanvas{Canvas: scene.NewCanvas(800, 600, textlayout.BasicProvider{}, testImages)}
	c.Attach(fc)
	if err := c.AddShape("rect", ShapeOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := c.AddShape("circle", ShapeOptions{Radius: 5}); err != nil {
		t.Fatal(err)
	}
	before := c.HistoryStats()

	fc.broken = true
	if err := c.Undo(ctx); err == nil {
		t.Fatalf("Undo must report the failed restore")
	}
	if got := c.HistoryStats(); got != before {
		t.Fatalf("history moved on failed undo: %+v -> %+v", before, got)
	}

	fc.broken = false
	if err := c.Undo(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(c.State().Objects); n != 1 {
		t.Fatalf("objects after undo = %d", n)
	}
	if got := c.HistoryStats(); got.UndoDepth != before.UndoDepth-1 || got.RedoDepth != 1 {
		t.Fatalf("stats after undo = %+v", got)
	}
}
