/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

// Colors as written in documents: "#rgb", "#rrggbb", "#rrggbbaa", "rgb()/rgba()"
// and a handful of names.

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

type Color struct{ R, G, B, A uint8 }

var (
	Black       = Color{0, 0, 0, 255}
	White       = Color{255, 255, 255, 255}
	Transparent = Color{0, 0, 0, 0}
)

var named = map[string]Color{
	"black":       Black,
	"white":       White,
	"transparent": Transparent,
	"red":         {255, 0, 0, 255},
	"green":       {0, 128, 0, 255},
	"blue":        {0, 0, 255, 255},
	"gray":        {128, 128, 128, 255},
	"grey":        {128, 128, 128, 255},
}

// RGBA converts to the standard library color (alpha-premultiplied on use).
func (c Color) RGBA() color.NRGBA { return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A} }

// Hex renders "#rrggbbaa".
func (c Color) Hex() string { return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A) }

// FromFloatAlpha builds a color from 0-255 channels and a 0..1 alpha.
// Channels and alpha are truncated, so 51.9 becomes 51 and alpha 0.5 becomes 127.
func FromFloatAlpha(r, g, b, a float64) Color {
	return Color{R: clamp8(int(r)), G: clamp8(int(g)), B: clamp8(int(b)), A: clamp8(int(a * 255))}
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// ParseColor parses s; ok is false when s is not a recognised color.
func ParseColor(s string) (Color, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := named[s]; ok {
		return c, true
	}
	if strings.HasPrefix(s, "#") {
		return parseHex(s[1:])
	}
	if strings.HasPrefix(s, "rgb") {
		return parseFunc(s)
	}
	return Color{}, false
}

func parseHex(h string) (Color, bool) {
	switch len(h) {
	case 3, 4:
		var out [4]uint8
		out[3] = 255
		for i := 0; i < len(h); i++ {
			v, err := strconv.ParseUint(string([]byte{h[i], h[i]}), 16, 8)
			if err != nil {
				return Color{}, false
			}
			out[i] = uint8(v)
		}
		return Color{out[0], out[1], out[2], out[3]}, true
	case 6, 8:
		v, err := strconv.ParseUint(h, 16, 32)
		if err != nil {
			return Color{}, false
		}
		if len(h) == 6 {
			return Color{uint8(v >> 16), uint8(v >> 8), uint8(v), 255}, true
		}
		return Color{uint8(v >> 24), uint8(v >> 16), uint8(v >> 8), uint8(v)}, true
	}
	return Color{}, false
}

func parseFunc(s string) (Color, bool) {
	open, close := strings.IndexByte(s, '('), strings.LastIndexByte(s, ')')
	if open < 0 || close < open {
		return Color{}, false
	}
	parts := strings.Split(s[open+1:close], ",")
	if len(parts) != 3 && len(parts) != 4 {
		return Color{}, false
	}
	var ch [3]int
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return Color{}, false
		}
		ch[i] = int(math.Round(v))
	}
	a := 1.0
	if len(parts) == 4 {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil {
			return Color{}, false
		}
		a = v
	}
	return Color{clamp8(ch[0]), clamp8(ch[1]), clamp8(ch[2]), clamp8(int(math.Round(a * 255)))}, true
}
