/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package binding maps scene objects to fields of external data records and
// writes resolved values into text and image objects.
package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"templatecanvas/internal/domain"
	"templatecanvas/internal/scene"
)

var placeholder = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Engine holds the binding map: object name to expression. An expression is
// either a bare field path (whole value) or text with {{path}} placeholders.
type Engine struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewEngine() *Engine { return &Engine{m: make(map[string]string)} }

// Set upserts the expression for name. An empty expression removes it.
func (e *Engine) Set(name, expr string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if strings.TrimSpace(expr) == "" {
		delete(e.m, name)
		return
	}
	e.m[name] = expr
}

func (e *Engine) Get(name string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.m[name]
	return v, ok
}

// All returns a copy of the binding map.
func (e *Engine) All() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.m)
}

// Replace swaps the whole map, e.g. when a session is restored.
func (e *Engine) Replace(m map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.m = make(map[string]string, len(m))
	for k, v := range m {
		if strings.TrimSpace(v) != "" {
			e.m[k] = v
		}
	}
}

func (e *Engine) Clear() {
	e.mu.Lock()
	e.m = make(map[string]string)
	e.mu.Unlock()
}

func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.m)
}

// Report lists the objects that changed and the bindings that could not be applied.
type Report struct {
	Applied  []string
	Warnings []string
}

// Changed reports whether any object was updated.
func (r Report) Changed() bool { return len(r.Applied) > 0 }

// Apply writes record into every bound object present in objects. Bindings
// are processed in name order; a failing binding is reported and skipped.
// Apply does not fire events; the caller announces one bulk change.
func (e *Engine) Apply(ctx context.Context, objects []*scene.Object, images scene.ImageSource, record any) Report {
	bindings := e.All()
	byName := make(map[string]*scene.Object, len(objects))
	for _, o := range objects {
		if _, dup := byName[o.Name]; !dup {
			byName[o.Name] = o
		}
	}
	var rep Report
	for _, name := range slices.Sorted(maps.Keys(bindings)) {
		o, ok := byName[name]
		if !ok {
			continue
		}
		expr := bindings[name]
		var (
			changed bool
			err     error
		)
		switch o.Type {
		case domain.TypeText:
			changed, err = applyText(o, expr, record)
		case domain.TypeImage:
			err = applyImage(ctx, o, expr, images, record)
			changed = err == nil
		default:
			err = fmt.Errorf("objects of type %s cannot be bound", o.Type)
		}
		if changed {
			rep.Applied = append(rep.Applied, name)
		}
		if err != nil {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("binding %q: %v", name, err))
		}
	}
	return rep
}

// unresolvedError lists the paths missing from a record.
type unresolvedError []string

func (u unresolvedError) Error() string {
	return "unresolved " + strings.Join(quoteAll(u), ", ")
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strconv.Quote(s)
	}
	return out
}

// applyText leaves the text alone when nothing resolves. A partial match is
// written with the missing placeholders kept literally.
func applyText(o *scene.Object, expr string, record any) (bool, error) {
	if !HasPlaceholders(expr) {
		v, ok := Resolve(record, strings.TrimSpace(expr))
		if !ok {
			return false, unresolvedError{strings.TrimSpace(expr)}
		}
		o.Text = v
		return true, nil
	}
	out, missing := Render(expr, record)
	if len(missing) == len(Placeholders(expr)) {
		return false, unresolvedError(missing)
	}
	o.Text = out
	if len(missing) > 0 {
		return true, fmt.Errorf("%w (left in place)", unresolvedError(missing))
	}
	return true, nil
}

func applyImage(ctx context.Context, o *scene.Object, expr string, images scene.ImageSource, record any) error {
	var src string
	if HasPlaceholders(expr) {
		out, missing := Render(expr, record)
		if len(missing) > 0 {
			return unresolvedError(missing)
		}
		src = out
	} else {
		v, ok := Resolve(record, strings.TrimSpace(expr))
		if !ok {
			return unresolvedError{strings.TrimSpace(expr)}
		}
		src = v
	}
	src = strings.TrimSpace(src)
	if src == "" {
		return fmt.Errorf("empty image source")
	}
	if images == nil {
		return fmt.Errorf("no image loader")
	}
	img, err := images.Image(ctx, src)
	if err != nil {
		return fmt.Errorf("load image: %w", err)
	}
	left, top, sx, sy, angle := o.Left, o.Top, o.ScaleX, o.ScaleY, o.Angle
	opacity, stroke, strokeWidth := o.Opacity, o.Stroke, o.StrokeWidth
	o.SetImage(img, src)
	o.Left, o.Top, o.ScaleX, o.ScaleY, o.Angle = left, top, sx, sy, angle
	o.Opacity, o.Stroke, o.StrokeWidth = opacity, stroke, strokeWidth
	return nil
}

// HasPlaceholders reports whether expr contains at least one {{path}}.
func HasPlaceholders(expr string) bool { return placeholder.MatchString(expr) }

// Placeholders returns the paths referenced by expr in order of appearance.
func Placeholders(expr string) []string {
	var out []string
	for _, m := range placeholder.FindAllStringSubmatch(expr, -1) {
		out = append(out, m[1])
	}
	return out
}

// Render substitutes every {{path}} in expr. Paths that do not resolve stay
// literally in the output and are returned in missing.
func Render(expr string, record any) (out string, missing []string) {
	out = placeholder.ReplaceAllStringFunc(expr, func(m string) string {
		path := placeholder.FindStringSubmatch(m)[1]
		v, ok := Resolve(record, path)
		if !ok {
			missing = append(missing, path)
			return m
		}
		return v
	})
	return out, missing
}

// Resolve looks up path and formats the value as text.
func Resolve(record any, path string) (string, bool) {
	v, ok := Lookup(record, path)
	if !ok {
		return "", false
	}
	return format(v)
}

// Lookup walks record along a dotted path. Map keys are matched exactly;
// numeric segments index slices.
func Lookup(record any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	cur := record
	for _, seg := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case map[string]string:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			cur = v[i]
		case []string:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			cur = v[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

func format(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	case nil:
		return "", false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}
