/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package psd converts a parsed layered design document into a Template.
package psd

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrMalformed is returned for documents that cannot be converted.
var ErrMalformed = errors.New("malformed layer document")

// Document is the root of a parsed PSD: canvas size and the layer tree.
type Document struct {
	Width    float64  `json:"width"`
	Height   float64  `json:"height"`
	Children []*Layer `json:"children"`
}

// Layer is a node of the layer tree. Groups carry Children; leaves carry
// either a text run or pixels. Canvas is the encoded raster as produced by
// the parser (base64 PNG, optionally as a data URL); Pixels is its decoded form.
type Layer struct {
	Name     string   `json:"name,omitempty"`
	Top      *float64 `json:"top,omitempty"`
	Left     *float64 `json:"left,omitempty"`
	Right    *float64 `json:"right,omitempty"`
	Bottom   *float64 `json:"bottom,omitempty"`
	Opacity  *float64 `json:"opacity,omitempty"`
	Text     *TextRun `json:"text,omitempty"`
	Children []*Layer `json:"children,omitempty"`
	Canvas   string   `json:"canvas,omitempty"`

	Pixels image.Image `json:"-"`
}

// TextRun is the text content of a layer and its primary style.
type TextRun struct {
	Text  string    `json:"text"`
	Style TextStyle `json:"style"`
}

type TextStyle struct {
	FillColor *RGBA    `json:"fillColor,omitempty"`
	FontSize  *float64 `json:"fontSize,omitempty"`
	Font      *Font    `json:"font,omitempty"`
}

type Font struct {
	Name string `json:"name"`
}

// RGBA has 0-255 channels and a 0..1 alpha; a nil alpha means opaque.
// Channels are floats because the parser derives them from 0..1 values.
type RGBA struct {
	R float64  `json:"r"`
	G float64  `json:"g"`
	B float64  `json:"b"`
	A *float64 `json:"a,omitempty"`
}

// DecodeDocument reads the JSON dump of a parsed PSD and decodes every
// layer raster.
func DecodeDocument(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Width <= 0 || doc.Height <= 0 {
		return nil, fmt.Errorf("%w: canvas size %gx%g", ErrMalformed, doc.Width, doc.Height)
	}
	if err := decodeRasters(doc.Children); err != nil {
		return nil, err
	}
	return &doc, nil
}

func decodeRasters(layers []*Layer) error {
	for _, l := range layers {
		if l == nil {
			continue
		}
		if l.Canvas != "" && l.Pixels == nil {
			img, err := decodeCanvas(l.Canvas)
			if err != nil {
				return fmt.Errorf("%w: layer %q: %v", ErrMalformed, l.Name, err)
			}
			l.Pixels = img
		}
		if err := decodeRasters(l.Children); err != nil {
			return err
		}
	}
	return nil
}

func decodeCanvas(s string) (image.Image, error) {
	if strings.HasPrefix(s, "data:") {
		i := strings.IndexByte(s, ',')
		if i < 0 {
			return nil, errors.New("data URL without payload")
		}
		s = s[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("raster payload: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("raster image: %w", err)
	}
	return img, nil
}

// encodePNG rasterises img for registration in the blob store.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
