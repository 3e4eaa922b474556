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
	"fmt"
	"image"
	"strings"

	"templatecanvas/internal/domain"
	"templatecanvas/internal/ident"
	applog "templatecanvas/internal/log"
	"templatecanvas/internal/scene"
)

// LoadFromTemplate replaces the scene with tpl. Elements are placed strictly
// one after another in source order; each placement is announced and rendered
// before the next starts, so the object list grows monotonically. Font and
// image failures are returned as warnings. An error is returned only when
// ctx ends mid-load; objects placed so far stay on the canvas.
func (c *Controller) LoadFromTemplate(ctx context.Context, tpl *domain.Template) ([]string, error) {
	if tpl == nil {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return nil, nil
	}
	ctx = applog.WithTemplate(ctx, tpl.ID)
	l := applog.WithOperation(c.log, "load")

	if c.template == nil || c.template.ID != tpl.ID {
		c.bindings.Clear()
	}
	c.r.Clear()
	c.hist.Reset()
	c.clipboard = nil
	c.template = tpl
	c.status = StatusPending

	c.applyBackgroundLocked(tpl.Background, tpl.Source)
	w, h := c.r.Dimensions()
	c.r.SetDimensions(tpl.Width*factor(c.opts.ReferenceWidth, w), tpl.Height*factor(c.opts.ReferenceHeight, h))

	c.loading = true
	defer func() { c.loading = false }()

	var warnings []string
	for i, el := range tpl.State {
		if err := ctx.Err(); err != nil {
			c.status = StatusError
			l.ErrorContext(ctx, "load interrupted", "placed", i, "total", len(tpl.State), "err", err)
			return warnings, fmt.Errorf("load template %s: %w", tpl.ID, err)
		}
		o, warn := c.placeLocked(ctx, el)
		warnings = append(warnings, warn...)
		if o != nil {
			c.r.Add(o)
			c.opts.Roles.UpdateMeta(o, c.r.Zoom())
		}
		c.commitLocked(nil)
	}
	c.status = StatusSuccess
	applog.Warnings(ctx, l, warnings)
	l.InfoContext(ctx, "template loaded", "elements", len(tpl.State), "warnings", len(warnings))
	return warnings, nil
}

// factor maps the current canvas size onto the reference design resolution.
func factor(reference, current float64) float64 {
	if reference <= 0 || current <= 0 {
		return 1
	}
	return reference / current
}

// placeLocked builds the object for one element. It returns nil for
// elements of unknown type.
func (c *Controller) placeLocked(ctx context.Context, el domain.Element) (*scene.Object, []string) {
	typ := domain.NormalizeType(string(el.Type))
	name := c.dedupeLocked(el.Name, typ)
	var warnings []string

	switch typ {
	case domain.TypeText:
		family := c.opts.DefaultFont
		if el.Details.FontFamily != nil && *el.Details.FontFamily != "" {
			family = *el.Details.FontFamily
		}
		resolved, warn := c.resolveFont(ctx, family)
		if warn != "" {
			warnings = append(warnings, fmt.Sprintf("%s: %s", name, warn))
		}
		o := scene.NewObject(typ, name)
		o.Text = el.Value
		o.FontSize = c.opts.DefaultFontSize
		o.Width = c.opts.DefaultTextWidth
		o.Fill = "#000000"
		o.ApplyDetails(el.Details)
		o.FontFamily = resolved
		return o, warnings

	case domain.TypeImage:
		o := scene.NewObject(typ, name)
		o.ApplyDetails(el.Details)
		o.Src = el.Value
		if el.Value == "" {
			return o, warnings
		}
		img, err := c.loadImage(ctx, el.Value)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: unable to load image: %v", name, err))
			return o, warnings
		}
		fitImage(o, img, el.Value)
		return o, warnings

	case domain.TypeRect, domain.TypeCircle:
		o := scene.NewObject(typ, name)
		if el.Value != "" {
			o.Fill = el.Value
		}
		o.ApplyDetails(el.Details)
		if typ == domain.TypeCircle && o.Radius > 0 && o.Width == 0 {
			o.Width, o.Height = 2*o.Radius, 2*o.Radius
		}
		return o, warnings
	}
	return nil, []string{fmt.Sprintf("%s: unsupported element type %q", name, el.Type)}
}

// dedupeLocked lowercases name and, when an object with the same name
// (ignoring case) is already placed, derives a fresh one from it.
func (c *Controller) dedupeLocked(name string, typ domain.ObjectType) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return c.freshNameLocked(string(typ))
	}
	if !c.nameTakenLocked(lower) {
		return lower
	}
	return c.freshNameLocked(lower)
}

func (c *Controller) nameTakenLocked(name string) bool {
	for _, o := range c.r.Objects() {
		if strings.EqualFold(o.Name, name) {
			return true
		}
	}
	return false
}

// freshNameLocked draws identifiers from prefix until one is unused.
func (c *Controller) freshNameLocked(prefix string) string {
	n := ident.New(prefix)
	for tries := 0; c.nameTakenLocked(n); tries++ {
		if tries > 64 {
			prefix = n
		}
		n = ident.New(prefix)
	}
	return n
}

func (c *Controller) resolveFont(ctx context.Context, family string) (string, string) {
	if c.fonts == nil {
		return family, ""
	}
	res := c.fonts.Resolve(ctx, family)
	return res.Name, res.Warning
}

func (c *Controller) loadImage(ctx context.Context, src string) (image.Image, error) {
	if c.images == nil {
		return nil, fmt.Errorf("no image loader")
	}
	return c.images.Image(ctx, src)
}

// fitImage swaps in img and rescales so the displayed size stays what o
// declared. A missing height follows the width proportionally.
func fitImage(o *scene.Object, img image.Image, src string) {
	w, h := o.ScaledWidth(), o.ScaledHeight()
	o.SetImage(img, src)
	if o.Width <= 0 || o.Height <= 0 {
		return
	}
	switch {
	case w > 0 && h > 0:
		o.ScaleX, o.ScaleY = w/o.Width, h/o.Height
	case w > 0:
		o.ScaleX = w / o.Width
		o.ScaleY = o.ScaleX
	case h > 0:
		o.ScaleY = h / o.Height
		o.ScaleX = o.ScaleY
	}
}

func (c *Controller) applyBackgroundLocked(kind domain.BackgroundKind, source string) {
	if kind == "" {
		kind = domain.BackgroundColor
	}
	c.r.SetBackground(scene.Background{Kind: kind, Source: source})
}
