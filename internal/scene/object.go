/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package scene is the live collection of editable objects on a canvas:
// their draw order, the active selection, and the events that announce changes.
package scene

import (
	"errors"
	"fmt"
	"image"
	"maps"
	"strconv"

	"templatecanvas/internal/domain"
	"templatecanvas/internal/textlayout"
	"templatecanvas/internal/vector"
)

// Object is one editable entity on the canvas. Images keep their natural
// pixel size in Width/Height and are displayed at Width*ScaleX by Height*ScaleY.
// Textboxes have a fixed Width; Height follows from the wrapped text.
type Object struct {
	Name        string             `json:"name"`
	Type        domain.ObjectType  `json:"type"`
	Left        float64            `json:"left"`
	Top         float64            `json:"top"`
	Width       float64            `json:"width"`
	Height      float64            `json:"height"`
	ScaleX      float64            `json:"scaleX"`
	ScaleY      float64            `json:"scaleY"`
	Angle       float64            `json:"angle"`
	Opacity     float64            `json:"opacity"`
	Fill        string             `json:"fill,omitempty"`
	Stroke      string             `json:"stroke,omitempty"`
	StrokeWidth float64            `json:"strokeWidth,omitempty"`
	Radius      float64            `json:"radius,omitempty"`
	Text        string             `json:"text,omitempty"`
	FontSize    float64            `json:"fontSize,omitempty"`
	FontFamily  string             `json:"fontFamily,omitempty"`
	TextAlign   string             `json:"textAlign,omitempty"`
	Src         string             `json:"src,omitempty"`
	Visible     bool               `json:"visible"`
	Locked      bool               `json:"locked,omitempty"`
	Meta        map[string]float64 `json:"meta,omitempty"`

	img   image.Image
	lines []string
}

// NewObject returns an object of type t with neutral transform and full opacity.
func NewObject(t domain.ObjectType, name string) *Object {
	return &Object{Name: name, Type: t, ScaleX: 1, ScaleY: 1, Opacity: 1, Visible: true}
}

// ApplyDetails copies every specified detail onto o. Unspecified keys are left alone.
func (o *Object) ApplyDetails(d domain.Details) {
	setF := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setS := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setF(&o.Top, d.Top)
	setF(&o.Left, d.Left)
	setF(&o.Width, d.Width)
	setF(&o.Height, d.Height)
	setF(&o.ScaleX, d.ScaleX)
	setF(&o.ScaleY, d.ScaleY)
	setF(&o.Angle, d.Angle)
	setF(&o.Opacity, d.Opacity)
	setS(&o.Fill, d.Fill)
	setS(&o.Stroke, d.Stroke)
	setF(&o.StrokeWidth, d.StrokeWidth)
	setF(&o.Radius, d.Radius)
	setF(&o.FontSize, d.FontSize)
	setS(&o.FontFamily, d.FontFamily)
	setS(&o.TextAlign, d.TextAlign)
	if d.Visible != nil {
		o.Visible = *d.Visible
	}
	if d.Locked != nil {
		o.Locked = *d.Locked
	}
}

// Clone returns a deep copy sharing only the decoded image.
func (o *Object) Clone() *Object {
	c := *o
	c.Meta = maps.Clone(o.Meta)
	c.lines = append([]string(nil), o.lines...)
	return &c
}

// Image returns the decoded pixels of an image object, if loaded.
func (o *Object) Image() image.Image { return o.img }

// SetImage swaps the pixels and source of an image object. Width and Height
// become the natural size of img; scale is left untouched.
func (o *Object) SetImage(img image.Image, src string) {
	o.img = img
	o.Src = src
	if img != nil {
		b := img.Bounds()
		o.Width, o.Height = float64(b.Dx()), float64(b.Dy())
	}
}

// Lines returns the wrapped lines of a textbox after the last layout.
func (o *Object) Lines() []string { return o.lines }

// ScaledWidth is the displayed width before rotation.
func (o *Object) ScaledWidth() float64 { return o.Width * o.ScaleX }

// ScaledHeight is the displayed height before rotation.
func (o *Object) ScaledHeight() float64 { return o.Height * o.ScaleY }

// Transform maps object-local coordinates to canvas coordinates.
func (o *Object) Transform() vector.Affine2D {
	return vector.Placement(o.Left, o.Top, o.Angle, o.ScaleX, o.ScaleY)
}

// Bounds is the axis-aligned bounding box on the canvas.
func (o *Object) Bounds() vector.Rect {
	return vector.TransformRect(o.Transform(), vector.R(0, 0, o.Width, o.Height))
}

// Contains reports whether canvas point p hits the object.
func (o *Object) Contains(p vector.Pt) bool {
	return vector.HitLocal(o.Transform(), o.Width, o.Height, p)
}

// Layout rewraps a textbox and updates its Height. Other types are untouched.
func Layout(p textlayout.Provider, o *Object) {
	if o.Type != domain.TypeText {
		return
	}
	box := textlayout.Wrap(p, textlayout.FontSpec{Family: o.FontFamily, Size: o.FontSize}, o.Text, o.Width)
	o.lines = box.Lines
	o.Height = box.Height
}

// ErrUnknownProperty is returned by Set for names the object does not have.
var ErrUnknownProperty = errors.New("unknown property")

// Set assigns one property by its serialized name. Numbers may be given as
// any Go numeric type or a numeric string.
func (o *Object) Set(prop string, v any) error {
	if p := o.floatField(prop); p != nil {
		f, err := toFloat(v)
		if err != nil {
			return fmt.Errorf("%s: %w", prop, err)
		}
		*p = f
		return nil
	}
	if p := o.stringField(prop); p != nil {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%s: expected string, got %T", prop, v)
		}
		*p = s
		return nil
	}
	switch prop {
	case "visible", "locked":
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%s: expected bool, got %T", prop, v)
		}
		if prop == "visible" {
			o.Visible = b
		} else {
			o.Locked = b
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownProperty, prop)
}

// Get reads one property by its serialized name.
func (o *Object) Get(prop string) (any, bool) {
	if p := o.floatField(prop); p != nil {
		return *p, true
	}
	if p := o.stringField(prop); p != nil {
		return *p, true
	}
	switch prop {
	case "visible":
		return o.Visible, true
	case "locked":
		return o.Locked, true
	case "name":
		return o.Name, true
	case "type":
		return string(o.Type), true
	}
	return nil, false
}

func (o *Object) floatField(prop string) *float64 {
	switch prop {
	case "left":
		return &o.Left
	case "top":
		return &o.Top
	case "width":
		return &o.Width
	case "height":
		return &o.Height
	case "scaleX":
		return &o.ScaleX
	case "scaleY":
		return &o.ScaleY
	case "angle":
		return &o.Angle
	case "opacity":
		return &o.Opacity
	case "strokeWidth":
		return &o.StrokeWidth
	case "radius":
		return &o.Radius
	case "fontSize":
		return &o.FontSize
	}
	return nil
}

func (o *Object) stringField(prop string) *string {
	switch prop {
	case "fill":
		return &o.Fill
	case "stroke":
		return &o.Stroke
	case "text":
		return &o.Text
	case "fontFamily":
		return &o.FontFamily
	case "textAlign":
		return &o.TextAlign
	}
	return nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}
