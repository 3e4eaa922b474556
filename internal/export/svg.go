/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"templatecanvas/internal/domain"
	"templatecanvas/internal/scene"
	"templatecanvas/internal/textlayout"
	"templatecanvas/internal/vector"
)

// WriteSVG draws r as SVG in canvas pixel coordinates. Images that are not
// reachable by URL are embedded as PNG data URLs; fonts are referenced by family only.
func WriteSVG(ctx context.Context, w io.Writer, r scene.Renderer, opt Options) error {
	cw, ch := r.Dimensions()
	if cw <= 0 || ch <= 0 {
		return fmt.Errorf("canvas has no area: %gx%g", cw, ch)
	}
	s := opt.scale()
	var buf bytes.Buffer
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(&buf, format, args...)
	}

	wf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	wf("<svg xmlns=\"http://www.w3.org/2000/svg\" xmlns:xlink=\"http://www.w3.org/1999/xlink\" version=\"1.1\" width=\"%g\" height=\"%g\" viewBox=\"0 0 %g %g\">\n", cw*s, ch*s, cw, ch)
	bg := r.Background()
	if bg.Kind == domain.BackgroundImage && bg.Source != "" {
		if href, err := imageHref(bg.Source, backgroundImage(ctx, bg, opt)); err == nil {
			wf("  <image x=\"0\" y=\"0\" width=\"%g\" height=\"%g\" preserveAspectRatio=\"none\" xlink:href=\"%s\"/>\n", cw, ch, escAttr(href))
		}
	} else {
		fill, op := svgColor(colorOr(bg.Source, vector.White))
		wf("  <rect x=\"0\" y=\"0\" width=\"%g\" height=\"%g\" fill=\"%s\" fill-opacity=\"%g\"/>\n", cw, ch, fill, op)
	}

	text := opt.text()
	for _, o := range visible(r) {
		if err := ctx.Err(); err != nil {
			return err
		}
		wf("  <g id=\"%s\" transform=\"translate(%g %g) rotate(%g) scale(%g %g)\" opacity=\"%g\">\n",
			escAttr(o.Name), o.Left, o.Top, o.Angle, o.ScaleX, o.ScaleY, o.Opacity)
		switch o.Type {
		case domain.TypeRect:
			wf("    <rect x=\"0\" y=\"0\" width=\"%g\" height=\"%g\"%s/>\n", o.Width, o.Height, shapePaint(o))
		case domain.TypeCircle:
			radius := o.Radius
			if radius <= 0 {
				radius = min(o.Width, o.Height) / 2
			}
			wf("    <circle cx=\"%g\" cy=\"%g\" r=\"%g\"%s/>\n", radius, radius, radius, shapePaint(o))
		case domain.TypeImage:
			href, err := imageHref(o.Src, o.Image())
			if err != nil {
				return fmt.Errorf("embed image %s: %w", o.Name, err)
			}
			if href != "" {
				wf("    <image x=\"0\" y=\"0\" width=\"%g\" height=\"%g\" preserveAspectRatio=\"none\" xlink:href=\"%s\"/>\n", o.Width, o.Height, escAttr(href))
			}
		case domain.TypeText:
			writeSVGText(wf, text, o)
		}
		wf("  </g>\n")
	}
	wf("</svg>\n")
	if werr != nil {
		return fmt.Errorf("build svg: %w", werr)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}

func writeSVGText(wf func(string, ...any), p textlayout.Provider, o *scene.Object) {
	size := o.FontSize
	if size <= 0 {
		size = 12
	}
	spec := textlayout.FontSpec{Family: o.FontFamily, Size: size}
	lines := o.Lines()
	if lines == nil {
		lines = textlayout.Wrap(p, spec, o.Text, o.Width).Lines
	}
	_, met := p.Resolve(spec)
	fill, op := svgColor(colorOr(o.Fill, vector.Black))
	family := o.FontFamily
	if family == "" {
		family = "sans-serif"
	}
	wf("    <text font-family=\"%s\" font-size=\"%g\" fill=\"%s\" fill-opacity=\"%g\" xml:space=\"preserve\">\n", escAttr(family), size, fill, op)
	step := size * textlayout.LineHeight
	for i, line := range lines {
		lw, _ := textlayout.Measure(p, spec, line)
		wf("      <tspan x=\"%g\" y=\"%g\">%s</tspan>\n", lineX(o.TextAlign, o.Width, lw), float64(i)*step+met.Ascent, escText(line))
	}
	wf("    </text>\n")
}

func shapePaint(o *scene.Object) string {
	fill, op := svgColor(colorOr(o.Fill, vector.Black))
	out := fmt.Sprintf(" fill=\"%s\" fill-opacity=\"%g\"", fill, op)
	if o.Stroke != "" && o.StrokeWidth > 0 {
		sc, sop := svgColor(colorOr(o.Stroke, vector.Black))
		out += fmt.Sprintf(" stroke=\"%s\" stroke-opacity=\"%g\" stroke-width=\"%g\"", sc, sop, o.StrokeWidth)
	}
	return out
}

// imageHref keeps http(s) and data URLs as they are and embeds anything else
// (files, ephemeral handles) from the decoded pixels.
func imageHref(src string, img image.Image) (string, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") || strings.HasPrefix(src, "data:") {
		return src, nil
	}
	if img == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func svgColor(c vector.Color) (string, float64) {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B), float64(c.A) / 255
}

func escAttr(s string) string {
	return strings.NewReplacer("&", "&amp;", "\"", "&quot;", "<", "&lt;", "\n", " ", "\r", "").Replace(s)
}

func escText(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
