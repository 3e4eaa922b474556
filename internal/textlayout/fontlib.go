/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FontLibrary stores parsed OpenType fonts keyed by catalog name
// ("Poppins Regular", "Lato Bold Italic"). Weight and style are part of the
// name, the way the font catalog spells them. Safe for concurrent use.
type FontLibrary struct {
	mu    sync.RWMutex
	fonts map[string]*opentype.Font
}

func NewFontLibrary() *FontLibrary { return &FontLibrary{fonts: make(map[string]*opentype.Font)} }

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Register parses data as an OpenType/TrueType font and stores it under name.
func (fl *FontLibrary) Register(name string, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %s: %w", name, err)
	}
	fl.mu.Lock()
	if fl.fonts == nil {
		fl.fonts = make(map[string]*opentype.Font)
	}
	fl.fonts[key(name)] = f
	fl.mu.Unlock()
	return nil
}

// LoadTTF reads a font file from disk and registers it under name.
func (fl *FontLibrary) LoadTTF(name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", path, err)
	}
	return fl.Register(name, data)
}

// Has reports whether name is registered.
func (fl *FontLibrary) Has(name string) bool {
	if fl == nil {
		return false
	}
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	_, ok := fl.fonts[key(name)]
	return ok
}

// Names lists registered font names (lowercased), sorted.
func (fl *FontLibrary) Names() []string {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	out := make([]string, 0, len(fl.fonts))
	for k := range fl.fonts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (fl *FontLibrary) find(name string) *opentype.Font {
	if fl == nil {
		return nil
	}
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.fonts[key(name)]
}

var (
	goRegularOnce sync.Once
	goRegular     *opentype.Font
)

// fallbackFont is the Go Regular face shipped with x/image; it stands in for
// any family that has not been registered.
func fallbackFont() *opentype.Font {
	goRegularOnce.Do(func() {
		goRegular, _ = opentype.Parse(goregular.TTF)
	})
	return goRegular
}

// OTProvider resolves FontSpec using a FontLibrary, then Go Regular, then Fallback.
type OTProvider struct {
	Lib      *FontLibrary
	DPI      float64 // default 72 if zero
	Fallback Provider
}

func (p OTProvider) Resolve(spec FontSpec) (font.Face, Metrics) {
	if spec.Size <= 0 {
		spec.Size = 12
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = 72
	}
	f := p.Lib.find(spec.Family)
	if f == nil {
		f = fallbackFont()
	}
	if f != nil {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: spec.Size, DPI: dpi, Hinting: font.HintingNone})
		if err == nil {
			return face, metricsOf(face)
		}
	}
	fb := p.Fallback
	if fb == nil {
		fb = BasicProvider{}
	}
	return fb.Resolve(spec)
}

func metricsOf(face font.Face) Metrics {
	m := face.Metrics()
	return Metrics{
		Ascent:  float64(m.Ascent.Round()),
		Descent: float64(m.Descent.Round()),
		LineGap: float64(m.Height.Round() - m.Ascent.Round() - m.Descent.Round()),
	}
}
