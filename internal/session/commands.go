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
	"errors"
	"fmt"
	"strconv"
	"strings"

	"templatecanvas/internal/domain"
	applog "templatecanvas/internal/log"
	"templatecanvas/internal/scene"
)

// ErrUnknownLayerOp is returned by ChangeObjectLayer for unrecognised directions.
var ErrUnknownLayerOp = errors.New("unknown layer operation")

// Layer directions for ChangeObjectLayer. A decimal string moves to that index.
const (
	LayerBack     = "back"
	LayerBackward = "backward"
	LayerForward  = "forward"
	LayerFront    = "front"
)

// TextOptions style a new textbox. Zero values take the editor defaults.
type TextOptions struct {
	Fill     string
	FontSize float64
}

// AddText places a textbox in the middle of the viewport and selects it.
// It returns the font warning, if any.
func (c *Controller) AddText(ctx context.Context, text string, opts TextOptions) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return nil
	}
	if text == "" {
		text = "Sample Text"
	}
	family, warn := c.resolveFont(ctx, c.opts.DefaultFont)
	o := scene.NewObject(domain.TypeText, c.freshNameLocked("text"))
	o.Text = text
	o.FontFamily = family
	o.Fill = opts.Fill
	if o.Fill == "" {
		o.Fill = "#000000"
	}
	o.FontSize = opts.FontSize
	if o.FontSize <= 0 {
		o.FontSize = c.opts.DefaultFontSize
	}
	o.Width = c.opts.DefaultTextWidth
	c.insertLocked(o)
	return c.warnLocked(ctx, "add_text", warn)
}

// AddImage loads src and places it scaled to width by height (each axis on
// its own), centered and selected. Zero sizes default to the editor's image
// size. Nothing is added when the image cannot be loaded.
func (c *Controller) AddImage(ctx context.Context, src string, width, height float64) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil || src == "" {
		return nil
	}
	img, err := c.loadImage(ctx, src)
	if err != nil {
		return c.warnLocked(ctx, "add_image", fmt.Sprintf("unable to load image: %v", err))
	}
	if width <= 0 {
		width = c.opts.DefaultImageSize
	}
	if height <= 0 {
		height = c.opts.DefaultImageSize
	}
	o := scene.NewObject(domain.TypeImage, c.freshNameLocked("image"))
	o.SetImage(img, src)
	if o.Width > 0 && o.Height > 0 {
		o.ScaleX, o.ScaleY = width/o.Width, height/o.Height
	}
	c.insertLocked(o)
	return nil
}

// ShapeOptions describe a new rect or circle. Zero values take defaults.
type ShapeOptions struct {
	Fill   string
	Width  float64
	Height float64
	Radius float64
}

// AddShape places a rect or circle, centered and selected.
func (c *Controller) AddShape(kind string, opts ShapeOptions) error {
	typ := domain.NormalizeType(kind)
	if !typ.IsShape() {
		return fmt.Errorf("add shape: unsupported kind %q", kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return nil
	}
	o := scene.NewObject(typ, c.freshNameLocked(string(typ)))
	o.Fill = opts.Fill
	if o.Fill == "" {
		o.Fill = "#cccccc"
	}
	switch typ {
	case domain.TypeCircle:
		o.Radius = opts.Radius
		if o.Radius <= 0 {
			o.Radius = 100
		}
		o.Width, o.Height = 2*o.Radius, 2*o.Radius
	default:
		o.Width, o.Height = opts.Width, opts.Height
		if o.Width <= 0 {
			o.Width = 200
		}
		if o.Height <= 0 {
			o.Height = 200
		}
	}
	c.insertLocked(o)
	return nil
}

func (c *Controller) insertLocked(o *scene.Object) {
	c.r.Add(o)
	c.r.CenterObject(o)
	c.r.SetActiveObjects(o)
	c.commitLocked(o)
}

func (c *Controller) warnLocked(ctx context.Context, op string, warnings ...string) []string {
	var out []string
	for _, w := range warnings {
		if w != "" {
			out = append(out, w)
		}
	}
	applog.Warnings(ctx, applog.WithOperation(c.log, op), out)
	return out
}

// ChangeObjectDimensions sets width or height of the active object. Text
// only accepts width; images convert the request into a scale on that axis.
func (c *Controller) ChangeObjectDimensions(property string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o := c.activeLocked()
	if o == nil || (property != "width" && property != "height") || value <= 0 {
		return
	}
	switch o.Type {
	case domain.TypeText:
		if property == "height" {
			return
		}
		o.Width = value
	case domain.TypeImage:
		if property == "height" {
			if o.Height > 0 {
				o.ScaleY = value / o.Height
			}
		} else if o.Width > 0 {
			o.ScaleX = value / o.Width
		}
	case domain.TypeCircle:
		o.Radius = value / 2
		o.Width, o.Height = value, value
	default:
		if property == "height" {
			o.Height = value
		} else {
			o.Width = value
		}
	}
	c.commitLocked(o)
}

// ChangeTextProperty sets one property of the active textbox.
func (c *Controller) ChangeTextProperty(property string, value any) error {
	return c.changeProperty(domain.TypeText, property, value)
}

// ChangeImageProperty sets one property of the active image.
func (c *Controller) ChangeImageProperty(property string, value any) error {
	return c.changeProperty(domain.TypeImage, property, value)
}

// ChangeShapeProperty sets one property of the active rect or circle.
func (c *Controller) ChangeShapeProperty(property string, value any) error {
	return c.changeProperty("", property, value)
}

// changeProperty is a no-op when the active object is not of type want
// (any shape when want is empty).
func (c *Controller) changeProperty(want domain.ObjectType, property string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	o := c.activeLocked()
	if o == nil {
		return nil
	}
	if (want != "" && o.Type != want) || (want == "" && !o.Type.IsShape()) {
		return nil
	}
	if err := o.Set(property, value); err != nil {
		return err
	}
	c.commitLocked(o)
	return nil
}

// ChangeFontFamily resolves family and applies the result to the active textbox.
func (c *Controller) ChangeFontFamily(ctx context.Context, family string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return nil
	}
	if family == "" {
		family = c.opts.DefaultFont
	}
	resolved, warn := c.resolveFont(ctx, family)
	o := c.activeLocked()
	if o == nil || o.Type != domain.TypeText {
		return c.warnLocked(ctx, "change_font", warn)
	}
	o.FontFamily = resolved
	c.commitLocked(o)
	return c.warnLocked(ctx, "change_font", warn)
}

// ChangeImageSource swaps the pixels of the active image and keeps its
// displayed size.
func (c *Controller) ChangeImageSource(ctx context.Context, src string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	o := c.activeLocked()
	if o == nil || o.Type != domain.TypeImage || src == "" {
		return nil
	}
	img, err := c.loadImage(ctx, src)
	if err != nil {
		return c.warnLocked(ctx, "change_image", fmt.Sprintf("unable to load image: %v", err))
	}
	w, h := o.ScaledWidth(), o.ScaledHeight()
	o.SetImage(img, src)
	if o.Width > 0 && o.Height > 0 && w > 0 && h > 0 {
		o.ScaleX, o.ScaleY = w/o.Width, h/o.Height
	}
	c.commitLocked(o)
	return nil
}

// ChangeObjectLayer moves the active object in the draw order.
func (c *Controller) ChangeObjectLayer(direction string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	o := c.activeLocked()
	if o == nil {
		return nil
	}
	i := scene.IndexOf(c.r, o)
	var to int
	switch direction {
	case LayerBack:
		to = 0
	case LayerBackward:
		to = i - 1
	case LayerForward:
		to = i + 1
	case LayerFront:
		to = len(c.r.Objects()) - 1
	default:
		n, err := strconv.Atoi(strings.TrimSpace(direction))
		if err != nil {
			return fmt.Errorf("%w: %q", ErrUnknownLayerOp, direction)
		}
		to = n
	}
	c.r.MoveTo(o, to)
	c.commitLocked(o)
	return nil
}

// DeleteObject removes every active object.
func (c *Controller) DeleteObject() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return
	}
	active := c.r.ActiveObjects()
	if len(active) == 0 {
		return
	}
	c.r.DiscardActive()
	c.r.Remove(active...)
	c.commitLocked(nil)
}

// Copy puts clones of the active objects on the clipboard.
func (c *Controller) Copy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.copyLocked()
}

func (c *Controller) copyLocked() bool {
	if c.r == nil {
		return false
	}
	active := c.r.ActiveObjects()
	if len(active) == 0 {
		return false
	}
	c.clipboard = c.clipboard[:0]
	for _, o := range active {
		c.clipboard = append(c.clipboard, o.Clone())
	}
	return true
}

// Cut copies the active objects and deletes them.
func (c *Controller) Cut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.copyLocked() {
		return
	}
	active := c.r.ActiveObjects()
	c.r.DiscardActive()
	c.r.Remove(active...)
	c.commitLocked(nil)
}

// Paste adds the clipboard again under fresh names, offset from the last
// paste, and selects the new objects.
func (c *Controller) Paste() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil || len(c.clipboard) == 0 {
		return
	}
	for _, o := range c.clipboard {
		o.Left += c.opts.PasteOffset
		o.Top += c.opts.PasteOffset
	}
	c.addClonesLocked(c.clipboard)
}

// Duplicate clones the active objects next to the originals without
// touching the clipboard.
func (c *Controller) Duplicate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return
	}
	active := c.r.ActiveObjects()
	if len(active) == 0 {
		return
	}
	src := make([]*scene.Object, len(active))
	for i, o := range active {
		src[i] = o.Clone()
		src[i].Left += c.opts.PasteOffset
		src[i].Top += c.opts.PasteOffset
	}
	c.addClonesLocked(src)
}

func (c *Controller) addClonesLocked(src []*scene.Object) {
	added := make([]*scene.Object, 0, len(src))
	for _, o := range src {
		n := o.Clone()
		n.Name = c.freshNameLocked(strings.ToLower(o.Name))
		c.r.Add(n)
		added = append(added, n)
	}
	c.r.SetActiveObjects(added...)
	var target *scene.Object
	if len(added) == 1 {
		target = added[0]
	}
	c.commitLocked(target)
}

// ScaleObject applies an interactive scale to the named object, as a pointer
// drag would. Textboxes convert the scale into font size and width.
func (c *Controller) ScaleObject(name string, scaleX, scaleY float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil || scaleX <= 0 || scaleY <= 0 {
		return
	}
	o := scene.Find(c.r, name)
	if o == nil {
		return
	}
	o.ScaleX, o.ScaleY = scaleX, scaleY
	c.r.Fire(scene.Event{Kind: scene.EventScaling, Target: o})
	c.commitLocked(o)
}

// Select makes the named objects active. Unknown names are ignored.
func (c *Controller) Select(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return
	}
	var objs []*scene.Object
	for _, n := range names {
		if o := scene.Find(c.r, n); o != nil {
			objs = append(objs, o)
		}
	}
	c.r.SetActiveObjects(objs...)
	c.r.Render()
}

func (c *Controller) Deselect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return
	}
	c.r.DiscardActive()
	c.r.Render()
}

// ChangeBackground sets the background color or image.
func (c *Controller) ChangeBackground(kind domain.BackgroundKind, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return
	}
	c.applyBackgroundLocked(kind, source)
	c.r.Render()
}

// ChangeDimensions resizes the canvas. Zero leaves an axis unchanged.
func (c *Controller) ChangeDimensions(width, height float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return
	}
	c.r.SetDimensions(width, height)
	c.r.Render()
}

// activeLocked returns the single active object, or nil.
func (c *Controller) activeLocked() *scene.Object {
	if c.r == nil {
		return nil
	}
	return c.r.ActiveObject()
}
