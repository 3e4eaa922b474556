/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"

	"templatecanvas/internal/domain"
	"templatecanvas/internal/scene"
	"templatecanvas/internal/textlayout"
	"templatecanvas/internal/vector"
)

// WritePNG rasterizes r and encodes it as PNG.
func WritePNG(ctx context.Context, w io.Writer, r scene.Renderer, opt Options) error {
	img, err := Rasterize(ctx, r, opt)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// Rasterize draws r into an image of the canvas size times opt.Scale.
// Objects are drawn in draw order with their rotation, scale and opacity.
func Rasterize(ctx context.Context, r scene.Renderer, opt Options) (*image.RGBA, error) {
	cw, ch := r.Dimensions()
	s := opt.scale()
	pixW, pixH := int(math.Round(cw*s)), int(math.Round(ch*s))
	if pixW <= 0 || pixH <= 0 {
		return nil, fmt.Errorf("canvas has no area: %gx%g", cw, ch)
	}
	dst := image.NewRGBA(image.Rect(0, 0, pixW, pixH))
	bg := r.Background()
	if img := backgroundImage(ctx, bg, opt); img != nil {
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	} else {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(colorOr(bg.Source, vector.White).RGBA()), image.Point{}, draw.Src)
	}

	text := opt.text()
	for _, o := range visible(r) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Shapes and text are drawn locally at output resolution, images at
		// their natural size.
		k := s
		var src image.Image
		switch o.Type {
		case domain.TypeImage:
			src, k = o.Image(), 1
		case domain.TypeRect:
			src = rasterRect(o, k)
		case domain.TypeCircle:
			src = rasterCircle(o, k)
		case domain.TypeText:
			src = rasterText(text, o, k)
		}
		if src == nil || src.Bounds().Empty() {
			continue
		}
		m := vector.Scale(s, s).Mul(o.Transform()).Mul(vector.Scale(1/k, 1/k))
		aff := f64.Aff3{m.A, m.C, m.E, m.B, m.D, m.F}
		var dopt *xdraw.Options
		if o.Opacity < 1 {
			dopt = &xdraw.Options{SrcMask: image.NewUniform(color.Alpha16{A: uint16(o.Opacity * 0xffff)})}
		}
		xdraw.ApproxBiLinear.Transform(dst, aff, src, src.Bounds(), xdraw.Over, dopt)
	}
	return dst, nil
}

func localSize(w, h, k float64) (int, int) {
	return int(math.Ceil(w * k)), int(math.Ceil(h * k))
}

func rasterRect(o *scene.Object, k float64) image.Image {
	w, h := localSize(o.Width, o.Height, k)
	if w <= 0 || h <= 0 {
		return nil
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorOr(o.Fill, vector.Black).RGBA()), image.Point{}, draw.Src)
	if sw := int(math.Round(o.StrokeWidth * k)); sw > 0 && o.Stroke != "" {
		sc := image.NewUniform(colorOr(o.Stroke, vector.Black).RGBA())
		for _, r := range []image.Rectangle{
			image.Rect(0, 0, w, sw), image.Rect(0, h-sw, w, h),
			image.Rect(0, 0, sw, h), image.Rect(w-sw, 0, w, h),
		} {
			draw.Draw(img, r, sc, image.Point{}, draw.Src)
		}
	}
	return img
}

func rasterCircle(o *scene.Object, k float64) image.Image {
	radius := o.Radius
	if radius <= 0 {
		radius = math.Min(o.Width, o.Height) / 2
	}
	d, _ := localSize(2*radius, 0, k)
	if d <= 0 {
		return nil
	}
	img := image.NewNRGBA(image.Rect(0, 0, d, d))
	fill := colorOr(o.Fill, vector.Black).RGBA()
	stroke := colorOr(o.Stroke, vector.Black).RGBA()
	rr := radius * k
	sw := 0.0
	if o.Stroke != "" {
		sw = o.StrokeWidth * k
	}
	for y := 0; y < d; y++ {
		for x := 0; x < d; x++ {
			dist := math.Hypot(float64(x)+0.5-rr, float64(y)+0.5-rr)
			switch {
			case dist > rr:
			case dist > rr-sw:
				img.SetNRGBA(x, y, stroke)
			default:
				img.SetNRGBA(x, y, fill)
			}
		}
	}
	return img
}

func rasterText(p textlayout.Provider, o *scene.Object, k float64) image.Image {
	lines := o.Lines()
	if lines == nil {
		lines = textlayout.Wrap(p, textlayout.FontSpec{Family: o.FontFamily, Size: o.FontSize}, o.Text, o.Width).Lines
	}
	size := o.FontSize
	if size <= 0 {
		size = 12
	}
	height := o.Height
	if need := float64(len(lines)) * size * textlayout.LineHeight; height < need {
		height = need
	}
	w, h := localSize(o.Width, height, k)
	if w <= 0 || h <= 0 {
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	face, met := p.Resolve(textlayout.FontSpec{Family: o.FontFamily, Size: size * k})
	d := &font.Drawer{Dst: img, Src: image.NewUniform(colorOr(o.Fill, vector.Black).RGBA()), Face: face}
	step := size * textlayout.LineHeight * k
	for i, line := range lines {
		lw := float64(d.MeasureString(line)) / 64
		x := lineX(o.TextAlign, float64(w), lw)
		y := float64(i)*step + met.Ascent
		d.Dot = fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(y * 64)}
		d.DrawString(line)
	}
	return img
}
