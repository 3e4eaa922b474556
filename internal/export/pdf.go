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
	"fmt"
	"image/png"
	"io"

	"github.com/jung-kurt/gofpdf"

	"templatecanvas/internal/domain"
	"templatecanvas/internal/scene"
	"templatecanvas/internal/textlayout"
	"templatecanvas/internal/vector"
	"templatecanvas/internal/version"
)

// helveticaAscent approximates the ascent of the built-in Helvetica as a share of the font size.
const helveticaAscent = 0.78

// WritePDF draws r as a single-page PDF sized to the canvas, one point per pixel.
// Shapes and text stay vector; image objects are embedded as PNG.
// Built-in Helvetica is used for all text so nothing needs embedding.
func WritePDF(ctx context.Context, w io.Writer, r scene.Renderer, opt Options) error {
	cw, ch := r.Dimensions()
	if cw <= 0 || ch <= 0 {
		return fmt.Errorf("canvas has no area: %gx%g", cw, ch)
	}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: cw, Ht: ch},
	})
	pdf.SetCreator(version.String(), false)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	bg := r.Background()
	if img := backgroundImage(ctx, bg, opt); img != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("encode background: %w", err)
		}
		iopt := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("background", iopt, &buf)
		pdf.ImageOptions("background", 0, 0, cw, ch, false, iopt, 0, "")
	} else {
		setFillColor(pdf, colorOr(bg.Source, vector.White))
		pdf.Rect(0, 0, cw, ch, "F")
	}

	text := opt.text()
	for i, o := range visible(r) {
		if err := ctx.Err(); err != nil {
			return err
		}
		pdf.TransformBegin()
		// gofpdf rotates counter-clockwise; canvas angles are clockwise.
		pdf.TransformRotate(-o.Angle, o.Left, o.Top)
		pdf.TransformScale(o.ScaleX*100, o.ScaleY*100, o.Left, o.Top)
		pdf.SetAlpha(o.Opacity, "Normal")
		switch o.Type {
		case domain.TypeRect:
			style := shapeStyle(pdf, o)
			pdf.Rect(o.Left, o.Top, o.Width, o.Height, style)
		case domain.TypeCircle:
			radius := o.Radius
			if radius <= 0 {
				radius = min(o.Width, o.Height) / 2
			}
			style := shapeStyle(pdf, o)
			pdf.Circle(o.Left+radius, o.Top+radius, radius, style)
		case domain.TypeImage:
			if img := o.Image(); img != nil {
				var buf bytes.Buffer
				if err := png.Encode(&buf, img); err != nil {
					pdf.TransformEnd()
					return fmt.Errorf("encode image %s: %w", o.Name, err)
				}
				name := fmt.Sprintf("img-%d-%s", i, o.Name)
				iopt := gofpdf.ImageOptions{ImageType: "PNG"}
				pdf.RegisterImageOptionsReader(name, iopt, &buf)
				pdf.ImageOptions(name, o.Left, o.Top, o.Width, o.Height, false, iopt, 0, "")
			}
		case domain.TypeText:
			drawPDFText(pdf, tr, text, o)
		}
		pdf.SetAlpha(1, "Normal")
		pdf.TransformEnd()
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("build pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// shapeStyle sets fill and stroke for o and returns the gofpdf draw style.
func shapeStyle(pdf *gofpdf.Fpdf, o *scene.Object) string {
	setFillColor(pdf, colorOr(o.Fill, vector.Black))
	if o.Stroke == "" || o.StrokeWidth <= 0 {
		return "F"
	}
	setDrawColor(pdf, colorOr(o.Stroke, vector.Black))
	pdf.SetLineWidth(o.StrokeWidth)
	return "FD"
}

func drawPDFText(pdf *gofpdf.Fpdf, tr func(string) string, p textlayout.Provider, o *scene.Object) {
	size := o.FontSize
	if size <= 0 {
		size = 12
	}
	lines := o.Lines()
	if lines == nil {
		lines = textlayout.Wrap(p, textlayout.FontSpec{Family: o.FontFamily, Size: size}, o.Text, o.Width).Lines
	}
	c := colorOr(o.Fill, vector.Black)
	pdf.SetTextColor(int(c.R), int(c.G), int(c.B))
	pdf.SetFont("Helvetica", "", size)
	step := size * textlayout.LineHeight
	for i, line := range lines {
		s := tr(line)
		x := o.Left + lineX(o.TextAlign, o.Width, pdf.GetStringWidth(s))
		pdf.Text(x, o.Top+float64(i)*step+size*helveticaAscent, s)
	}
}

func setDrawColor(pdf *gofpdf.Fpdf, c vector.Color) {
	pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
}

func setFillColor(pdf *gofpdf.Fpdf, c vector.Color) {
	pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
}
