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
	"encoding/json"
	"fmt"
	"image"
	"slices"
	"sync"

	"templatecanvas/internal/domain"
	applog "templatecanvas/internal/log"
	"templatecanvas/internal/textlayout"
	"templatecanvas/internal/vector"
)

// ImageSource decodes image locators; assets.Loader satisfies it.
type ImageSource interface {
	Image(ctx context.Context, src string) (image.Image, error)
}

// Canvas is a headless Renderer. Draw order is slice order (index 0 is the
// bottom). Handlers run synchronously inside Fire, so a Canvas is driven
// from one goroutine at a time; the session serializes access.
type Canvas struct {
	Text   textlayout.Provider
	Images ImageSource

	width, height float64
	zoom          float64
	bg            Background
	objects       []*Object
	active        []*Object
	renders       int

	hmu      sync.Mutex
	handlers map[EventKind][]*handlerEntry
}

type handlerEntry struct{ fn Handler }

// NewCanvas returns an empty canvas of the given pixel size.
func NewCanvas(w, h float64, text textlayout.Provider, images ImageSource) *Canvas {
	return &Canvas{
		Text:     text,
		Images:   images,
		width:    w,
		height:   h,
		zoom:     1,
		bg:       Background{Kind: domain.BackgroundColor, Source: "#ffffff"},
		handlers: make(map[EventKind][]*handlerEntry),
	}
}

func (c *Canvas) Add(objs ...*Object) {
	for _, o := range objs {
		if o == nil {
			continue
		}
		Layout(c.Text, o)
		c.objects = append(c.objects, o)
		c.Fire(Event{Kind: EventAdded, Target: o})
	}
}

func (c *Canvas) Remove(objs ...*Object) {
	for _, o := range objs {
		i := slices.Index(c.objects, o)
		if i < 0 {
			continue
		}
		c.objects = slices.Delete(c.objects, i, i+1)
		if j := slices.Index(c.active, o); j >= 0 {
			c.active = slices.Delete(c.active, j, j+1)
		}
		c.Fire(Event{Kind: EventRemoved, Target: o})
	}
}

// Clear removes all objects and the selection without firing per-object events.
func (c *Canvas) Clear() {
	c.objects = nil
	c.active = nil
}

// Objects returns a copy of the draw list.
func (c *Canvas) Objects() []*Object { return slices.Clone(c.objects) }

// MoveTo places o at index, clamped to the valid range.
func (c *Canvas) MoveTo(o *Object, index int) {
	i := slices.Index(c.objects, o)
	if i < 0 {
		return
	}
	c.objects = slices.Delete(c.objects, i, i+1)
	index = max(0, min(index, len(c.objects)))
	c.objects = slices.Insert(c.objects, index, o)
}

// ActiveObject returns the single active object, or nil when none or many are active.
func (c *Canvas) ActiveObject() *Object {
	if len(c.active) != 1 {
		return nil
	}
	return c.active[0]
}

func (c *Canvas) ActiveObjects() []*Object { return slices.Clone(c.active) }

// SetActiveObjects replaces the selection. Objects not on the canvas are ignored.
func (c *Canvas) SetActiveObjects(objs ...*Object) {
	var next []*Object
	for _, o := range objs {
		if o != nil && slices.Contains(c.objects, o) && !slices.Contains(next, o) {
			next = append(next, o)
		}
	}
	if len(next) == 0 {
		c.DiscardActive()
		return
	}
	had := len(c.active) > 0
	c.active = next
	kind := EventSelectionCreated
	if had {
		kind = EventSelectionUpdated
	}
	var target *Object
	if len(next) == 1 {
		target = next[0]
	}
	c.Fire(Event{Kind: kind, Target: target})
}

func (c *Canvas) DiscardActive() {
	if len(c.active) == 0 {
		return
	}
	c.active = nil
	c.Fire(Event{Kind: EventSelectionCleared})
}

// CenterObject moves o so the center of its box sits at the viewport center.
func (c *Canvas) CenterObject(o *Object) {
	z := c.Zoom()
	cx, cy := c.width/2/z, c.height/2/z
	center := o.Transform().Apply(vector.Pt{X: o.Width / 2, Y: o.Height / 2})
	o.Left += cx - center.X
	o.Top += cy - center.Y
}

// ObjectAt returns the top-most visible object containing p (canvas coordinates).
func (c *Canvas) ObjectAt(p vector.Pt) *Object {
	for i := len(c.objects) - 1; i >= 0; i-- {
		if o := c.objects[i]; o.Visible && o.Contains(p) {
			return o
		}
	}
	return nil
}

type document struct {
	Version    string      `json:"version"`
	Objects    []*Object   `json:"objects"`
	Background *Background `json:"background,omitempty"`
}

// Serialize captures every object in draw order plus the background.
func (c *Canvas) Serialize() ([]byte, error) {
	bg := c.bg
	return json.Marshal(document{Version: "1", Objects: c.objects, Background: &bg})
}

// Deserialize replaces the scene with data. Images are decoded again from
// their Src; an image that fails to load keeps its recorded geometry.
func (c *Canvas) Deserialize(ctx context.Context, data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode scene: %w", err)
	}
	c.Clear()
	if doc.Background != nil {
		c.bg = *doc.Background
	}
	for _, o := range doc.Objects {
		if o == nil {
			continue
		}
		if o.Type == domain.TypeImage && o.Src != "" && c.Images != nil {
			img, err := c.Images.Image(ctx, o.Src)
			if err != nil {
				applog.WithOperation(applog.WithComponent("scene"), "deserialize").
					WarnContext(ctx, "image reload failed", "object", o.Name, "err", err)
			} else {
				w, h := o.Width, o.Height
				o.SetImage(img, o.Src)
				if w > 0 && h > 0 && (w != o.Width || h != o.Height) {
					o.ScaleX *= w / o.Width
					o.ScaleY *= h / o.Height
				}
			}
		}
		Layout(c.Text, o)
		c.objects = append(c.objects, o)
	}
	return nil
}

// On registers h for kind and returns a function that removes it.
func (c *Canvas) On(kind EventKind, h Handler) func() {
	e := &handlerEntry{fn: h}
	c.hmu.Lock()
	c.handlers[kind] = append(c.handlers[kind], e)
	c.hmu.Unlock()
	return func() {
		c.hmu.Lock()
		defer c.hmu.Unlock()
		hs := c.handlers[kind]
		if i := slices.Index(hs, e); i >= 0 {
			c.handlers[kind] = slices.Delete(hs, i, i+1)
		}
	}
}

// Fire delivers ev to the handlers registered for its kind.
func (c *Canvas) Fire(ev Event) {
	c.hmu.Lock()
	hs := slices.Clone(c.handlers[ev.Kind])
	c.hmu.Unlock()
	for _, h := range hs {
		h.fn(ev)
	}
}

// Render lays out text again and announces a frame.
func (c *Canvas) Render() {
	for _, o := range c.objects {
		Layout(c.Text, o)
	}
	c.renders++
	c.Fire(Event{Kind: EventAfterRender})
}

// Renders counts Render calls.
func (c *Canvas) Renders() int { return c.renders }

func (c *Canvas) SetDimensions(w, h float64) {
	if w > 0 {
		c.width = w
	}
	if h > 0 {
		c.height = h
	}
}

func (c *Canvas) Dimensions() (float64, float64) { return c.width, c.height }

func (c *Canvas) SetBackground(bg Background) { c.bg = bg }
func (c *Canvas) Background() Background      { return c.bg }

func (c *Canvas) Zoom() float64 {
	if c.zoom <= 0 {
		return 1
	}
	return c.zoom
}

// SetZoom changes the viewport zoom used for centering and derived bounds.
func (c *Canvas) SetZoom(z float64) {
	if z > 0 {
		c.zoom = z
	}
}

var _ Renderer = (*Canvas)(nil)
