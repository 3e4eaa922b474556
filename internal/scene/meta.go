/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package scene

import (
	"math"
	"strings"
	"unicode/utf8"

	"templatecanvas/internal/domain"
)

// Meta keys and their defaults for tracked objects.
const (
	MetaMaxWidth      = "max_width"
	MetaMaxHeight     = "max_height"
	MetaMaxWords      = "max_number_words"
	MetaMaxCharacters = "max_number_characters"
	MetaWrapLength    = "wrap_length"

	DefaultMaxWords      = 20
	DefaultMaxCharacters = 60
	DefaultWrapLength    = 15
)

// Role binds a well-known role to the object that plays it.
type Role struct {
	Role   string
	Object string
	Kind   domain.ObjectType
}

// Roles is the configured set of tracked objects.
type Roles []Role

// For returns the role played by the object named name.
func (rs Roles) For(name string) (Role, bool) {
	for _, r := range rs {
		if strings.EqualFold(r.Object, name) {
			return r, true
		}
	}
	return Role{}, false
}

// UpdateMeta recomputes o.Meta when o plays a role whose kind matches its type.
// It reports whether o is tracked.
func (rs Roles) UpdateMeta(o *Object, zoom float64) bool {
	r, ok := rs.For(o.Name)
	if !ok || r.Kind != o.Type {
		return false
	}
	o.Meta = ComputeMeta(o, zoom)
	return true
}

// ComputeMeta derives the bounds downstream consumers use to fit content.
// Text needs a prior Layout so its lines are known.
func ComputeMeta(o *Object, zoom float64) map[string]float64 {
	if zoom <= 0 {
		zoom = 1
	}
	switch o.Type {
	case domain.TypeText:
		words := len(strings.Fields(o.Text))
		if words == 0 {
			words = DefaultMaxWords
		}
		chars := utf8.RuneCountInString(o.Text)
		if chars == 0 {
			chars = DefaultMaxCharacters
		}
		wrap := 0
		for _, l := range o.lines {
			wrap = max(wrap, utf8.RuneCountInString(l))
		}
		if wrap == 0 {
			wrap = DefaultWrapLength
		}
		return map[string]float64{
			MetaMaxWidth:      math.Round(o.Width * zoom),
			MetaMaxHeight:     math.Round(o.Height * zoom),
			MetaMaxWords:      float64(words),
			MetaMaxCharacters: float64(chars),
			MetaWrapLength:    float64(wrap),
		}
	case domain.TypeImage:
		return map[string]float64{
			MetaMaxWidth:  math.Round(o.ScaledWidth() * zoom),
			MetaMaxHeight: math.Round(o.ScaledHeight() * zoom),
		}
	}
	return map[string]float64{}
}
