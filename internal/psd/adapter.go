/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package psd

import (
	"context"
	"fmt"
	"math"
	"strings"

	"templatecanvas/internal/assets"
	"templatecanvas/internal/domain"
	"templatecanvas/internal/ident"
	applog "templatecanvas/internal/log"
	"templatecanvas/internal/vector"
)

const (
	DefaultFont     = "Poppins Regular"
	DefaultFontSize = 48
	// TextPadding widens text boxes so glyph overhang is not clipped.
	TextPadding = 12
)

// Adapter turns a Document into a Template. Image layers are registered in
// Blobs and referenced by their ephemeral blob URL.
type Adapter struct {
	Blobs           *assets.Store
	DefaultFont     string
	DefaultFontSize float64
}

// Flatten returns the leaves of the layer tree depth-first. Groups are
// replaced by their children; a group without children counts as a leaf.
func Flatten(layers []*Layer) []*Layer {
	var out []*Layer
	for _, l := range layers {
		if l == nil {
			continue
		}
		if len(l.Children) > 0 {
			out = append(out, Flatten(l.Children)...)
			continue
		}
		out = append(out, l)
	}
	return out
}

// Convert builds a Template from doc. On error nothing is returned and every
// blob registered during the call is revoked.
func (a Adapter) Convert(ctx context.Context, doc *Document) (tpl *domain.Template, err error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrMalformed)
	}
	if doc.Width <= 0 || doc.Height <= 0 {
		return nil, fmt.Errorf("%w: canvas size %gx%g", ErrMalformed, doc.Width, doc.Height)
	}
	l := applog.WithOperation(applog.WithComponent("psd"), "convert")

	var registered []string
	defer func() {
		if err != nil && a.Blobs != nil {
			for _, u := range registered {
				a.Blobs.Revoke(u)
			}
		}
	}()

	leaves := Flatten(doc.Children)
	state := make([]domain.Element, 0, len(leaves))
	for _, layer := range leaves {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		el, blobURL, err := a.element(layer)
		if blobURL != "" {
			registered = append(registered, blobURL)
		}
		if err != nil {
			return nil, err
		}
		state = append(state, el)
	}

	id := ident.TemplateID()
	tpl = &domain.Template{
		ID:         id,
		Key:        id,
		Background: domain.BackgroundColor,
		Source:     "#000000",
		Width:      doc.Width,
		Height:     doc.Height,
		State:      state,
	}
	l.Debug("converted", "layers", len(leaves), "blobs", len(registered), "template", id)
	return tpl, nil
}

func (a Adapter) element(layer *Layer) (domain.Element, string, error) {
	typ := domain.TypeImage
	if layer.Text != nil {
		typ = domain.TypeText
	}
	name := layer.Name
	if name == "" {
		name = ident.New(string(typ))
	}

	width := math.Ceil(deref(layer.Right) - deref(layer.Left))
	height := math.Ceil(deref(layer.Bottom) - deref(layer.Top))
	d := domain.Details{Top: clone(layer.Top), Left: clone(layer.Left), Opacity: clone(layer.Opacity)}

	el := domain.Element{Type: typ, Name: name}
	var blobURL string
	if typ == domain.TypeText {
		el.Value = strings.ReplaceAll(layer.Text.Text, "\x03", " ")
		st := layer.Text.Style
		fill := vector.FromFloatAlpha(0, 0, 0, 1)
		if c := st.FillColor; c != nil {
			alpha := 1.0
			if c.A != nil {
				alpha = *c.A
			}
			fill = vector.FromFloatAlpha(c.R, c.G, c.B, alpha)
		}
		size := a.fontSize()
		if st.FontSize != nil && *st.FontSize != 0 {
			size = *st.FontSize
		}
		family := ""
		if st.Font != nil {
			family = strings.ReplaceAll(st.Font.Name, "-", " ")
		}
		if family == "" {
			family = a.font()
		}
		d.Fill = domain.String(fill.Hex())
		d.Width = domain.Float(width + TextPadding)
		d.FontSize = domain.Float(math.Ceil(size))
		d.FontFamily = domain.String(family)
	} else {
		d.Width = domain.Float(width)
		d.Height = domain.Float(height)
		if layer.Pixels != nil {
			if a.Blobs == nil {
				return el, "", fmt.Errorf("layer %q: no blob store for raster", name)
			}
			data, err := encodePNG(layer.Pixels)
			if err != nil {
				return el, "", fmt.Errorf("%w: layer %q: %v", ErrMalformed, name, err)
			}
			blobURL = a.Blobs.Put(data, "image/png")
			el.Value = blobURL
		}
	}
	el.Details = d
	return el, blobURL, nil
}

func (a Adapter) font() string {
	if a.DefaultFont != "" {
		return a.DefaultFont
	}
	return DefaultFont
}

func (a Adapter) fontSize() float64 {
	if a.DefaultFontSize > 0 {
		return a.DefaultFontSize
	}
	return DefaultFontSize
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func clone(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return domain.Float(*p)
}
