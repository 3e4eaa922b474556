/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

// Text measurement and line breaking for textbox objects. A textbox has a
// fixed width; its height follows from the wrapped lines.

import (
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// LineHeight is the line advance as a multiple of the font size.
const LineHeight = 1.16

// FontSpec describes a requested font.
type FontSpec struct {
	Family string // catalog name
	Size   float64
}

// Metrics provides font metrics in pixels for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float64
}

// TextBox is the result of laying out text into a box width.
type TextBox struct {
	Lines  []string
	Widths []float64
	Width  float64 // widest line
	Height float64
}

// Provider maps FontSpec to a concrete font.Face.
type Provider interface {
	Resolve(FontSpec) (font.Face, Metrics)
}

// BasicProvider uses x/image/basicfont Face7x13 for deterministic tests.
type BasicProvider struct{}

func (BasicProvider) Resolve(FontSpec) (font.Face, Metrics) {
	f := basicfont.Face7x13
	return f, metricsOf(f)
}

// Wrap breaks text into lines no wider than maxWidth. Words are never split;
// a word wider than maxWidth occupies its own line. Explicit newlines always
// break. maxWidth <= 0 disables wrapping.
func Wrap(p Provider, spec FontSpec, text string, maxWidth float64) TextBox {
	if p == nil {
		p = BasicProvider{}
	}
	face, _ := p.Resolve(spec)
	d := &font.Drawer{Face: face}
	space := advance(d, " ")

	var box TextBox
	push := func(line string, w float64) {
		box.Lines = append(box.Lines, line)
		box.Widths = append(box.Widths, w)
		if w > box.Width {
			box.Width = w
		}
	}
	for _, para := range strings.Split(text, "\n") {
		words := strings.Split(para, " ")
		var cur strings.Builder
		curW := 0.0
		for i, word := range words {
			w := advance(d, word)
			if i > 0 && maxWidth > 0 && cur.Len() > 0 && curW+space+w > maxWidth {
				push(cur.String(), curW)
				cur.Reset()
				curW = 0
			} else if i > 0 {
				cur.WriteByte(' ')
				curW += space
			}
			cur.WriteString(word)
			curW += w
		}
		push(cur.String(), curW)
	}
	size := spec.Size
	if size <= 0 {
		size = 12
	}
	box.Height = float64(len(box.Lines)) * size * LineHeight
	return box
}

func advance(d *font.Drawer, s string) float64 {
	return float64(d.MeasureString(s)) / 64
}

// Measure returns the width of text on one line and the line height.
func Measure(p Provider, spec FontSpec, text string) (w, h float64) {
	if p == nil {
		p = BasicProvider{}
	}
	face, met := p.Resolve(spec)
	return advance(&font.Drawer{Face: face}, text), met.Ascent + met.Descent
}
