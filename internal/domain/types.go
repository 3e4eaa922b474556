/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package domain holds the template document model: what a design file
// becomes after import and what a session loads onto its canvas.
package domain

import "strings"

// ObjectType names the kind of a template element or scene object.
type ObjectType string

const (
	TypeText   ObjectType = "textbox"
	TypeImage  ObjectType = "image"
	TypeRect   ObjectType = "rect"
	TypeCircle ObjectType = "circle"
)

// NormalizeType maps accepted aliases onto the canonical object types.
// Unknown values are returned lowercased and unchanged.
func NormalizeType(s string) ObjectType {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "text", "textbox", "i-text":
		return TypeText
	case "rectangle", "rect":
		return TypeRect
	case "circle", "ellipse":
		return TypeCircle
	default:
		return ObjectType(v)
	}
}

// IsShape reports whether t is a plain vector shape.
func (t ObjectType) IsShape() bool { return t == TypeRect || t == TypeCircle }

// BackgroundKind tells how Template.Source is interpreted.
type BackgroundKind string

const (
	BackgroundColor BackgroundKind = "color"
	BackgroundImage BackgroundKind = "image"
)

// Template is a design document ready to be placed on a canvas.
type Template struct {
	ID         string         `json:"id"`
	Key        string         `json:"key,omitempty"`
	Source     string         `json:"source"`
	Background BackgroundKind `json:"background"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	State      []Element      `json:"state"`
}

// Element is one object to place on load, back-to-front order within Template.State.
type Element struct {
	Type    ObjectType `json:"type"`
	Name    string     `json:"name"`
	Value   string     `json:"value"`
	Details Details    `json:"details"`
}

// Details carries geometry and style. Every field is optional; nil means
// "not specified" and is omitted when serialized.
type Details struct {
	Top         *float64 `json:"top,omitempty"`
	Left        *float64 `json:"left,omitempty"`
	Width       *float64 `json:"width,omitempty"`
	Height      *float64 `json:"height,omitempty"`
	ScaleX      *float64 `json:"scaleX,omitempty"`
	ScaleY      *float64 `json:"scaleY,omitempty"`
	Angle       *float64 `json:"angle,omitempty"`
	Opacity     *float64 `json:"opacity,omitempty"`
	Fill        *string  `json:"fill,omitempty"`
	Stroke      *string  `json:"stroke,omitempty"`
	StrokeWidth *float64 `json:"strokeWidth,omitempty"`
	Radius      *float64 `json:"radius,omitempty"`
	FontSize    *float64 `json:"fontSize,omitempty"`
	FontFamily  *string  `json:"fontFamily,omitempty"`
	TextAlign   *string  `json:"textAlign,omitempty"`
	Visible     *bool    `json:"visible,omitempty"`
	Locked      *bool    `json:"locked,omitempty"`
}

// Float returns a pointer to v, for building sparse Details.
func Float(v float64) *float64 { return &v }

// String returns a pointer to v, for building sparse Details.
func String(v string) *string { return &v }

// Bool returns a pointer to v, for building sparse Details.
func Bool(v bool) *bool { return &v }

// Normalize canonicalises element types and fills default background fields.
func (t *Template) Normalize() {
	if t.Background == "" {
		t.Background = BackgroundColor
	}
	if t.Background == BackgroundColor && t.Source == "" {
		t.Source = "#000000"
	}
	for i := range t.State {
		t.State[i].Type = NormalizeType(string(t.State[i].Type))
	}
}
