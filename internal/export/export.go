/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export draws a canvas scene to PNG, PDF or SVG and renders one
// template against many data records.
package export

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"templatecanvas/internal/domain"
	"templatecanvas/internal/scene"
	"templatecanvas/internal/textlayout"
	"templatecanvas/internal/vector"
)

// Format is an output file format.
type Format string

const (
	FormatPNG Format = "png"
	FormatPDF Format = "pdf"
	FormatSVG Format = "svg"
)

// ParseFormat accepts a format name or file extension, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")); f {
	case FormatPNG, FormatPDF, FormatSVG:
		return f, nil
	}
	return "", fmt.Errorf("unknown format: %s", s)
}

// Ext is the file extension including the dot.
func (f Format) Ext() string { return "." + string(f) }

// ContentType is the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatSVG:
		return "image/svg+xml"
	}
	return "image/png"
}

// Options control how a scene is drawn.
//   - Scale multiplies the canvas size for raster output (default 1).
//   - Text measures and draws text; it should be the provider the canvas lays out with.
//   - Images loads a background image when the scene has one.
type Options struct {
	Scale  float64
	Text   textlayout.Provider
	Images scene.ImageSource
}

func (o Options) scale() float64 {
	if o.Scale <= 0 {
		return 1
	}
	return o.Scale
}

func (o Options) text() textlayout.Provider {
	if o.Text == nil {
		return textlayout.BasicProvider{}
	}
	return o.Text
}

// Viewer lends its scene for the duration of fn. session.Controller satisfies it.
type Viewer interface {
	View(fn func(r scene.Renderer))
}

// Write draws r in format f to w.
func Write(ctx context.Context, w io.Writer, f Format, r scene.Renderer, opt Options) error {
	switch f {
	case FormatPNG:
		return WritePNG(ctx, w, r, opt)
	case FormatPDF:
		return WritePDF(ctx, w, r, opt)
	case FormatSVG:
		return WriteSVG(ctx, w, r, opt)
	}
	return fmt.Errorf("unknown format: %s", f)
}

// WriteFile draws the viewer's scene into path. A missing scene is an error.
func WriteFile(ctx context.Context, path string, f Format, v Viewer, opt Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", f, err)
	}
	werr := errNoScene
	v.View(func(r scene.Renderer) { werr = Write(ctx, out, f, r, opt) })
	if cerr := out.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return werr
	}
	return nil
}

var errNoScene = fmt.Errorf("no scene attached")

func colorOr(s string, def vector.Color) vector.Color {
	if c, ok := vector.ParseColor(s); ok {
		return c
	}
	return def
}

// backgroundImage loads the scene background when it is an image. Failures
// fall back to a plain background.
func backgroundImage(ctx context.Context, bg scene.Background, opt Options) image.Image {
	if bg.Kind != domain.BackgroundImage || opt.Images == nil || bg.Source == "" {
		return nil
	}
	img, err := opt.Images.Image(ctx, bg.Source)
	if err != nil {
		return nil
	}
	return img
}

func visible(r scene.Renderer) []*scene.Object {
	var out []*scene.Object
	for _, o := range r.Objects() {
		if o.Visible && o.Opacity > 0 {
			out = append(out, o)
		}
	}
	return out
}

// lineX is the left edge of a text line of width lw in a box of width bw.
func lineX(align string, bw, lw float64) float64 {
	switch align {
	case "center":
		return (bw - lw) / 2
	case "right":
		return bw - lw
	}
	return 0
}
