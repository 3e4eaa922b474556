/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"templatecanvas/internal/assets"
	"templatecanvas/internal/domain"
	"templatecanvas/internal/ident"
	"templatecanvas/internal/scene"
)

// StateKey is the well-known key the session state is persisted under.
const StateKey = "templatecanvas:scene"

// ErrEphemeralState is returned by Restore when the stored state referenced
// in-memory blob: resources that did not survive a restart. The stored
// state has been discarded.
var ErrEphemeralState = errors.New("persisted state references ephemeral resources")

// Sink stores the persisted session state. Get returns nil data when nothing is stored.
type Sink interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

type persisted struct {
	Template *domain.Template  `json:"template,omitempty"`
	Width    float64           `json:"width"`
	Height   float64           `json:"height"`
	Scene    json.RawMessage   `json:"scene"`
	Bindings map[string]string `json:"bindings,omitempty"`
}

// Persist writes the scene, canvas size, template header and bindings to sink.
func (c *Controller) Persist(ctx context.Context, sink Sink) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return nil
	}
	blob, err := c.r.Serialize()
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	p := persisted{Scene: blob, Bindings: c.bindings.All()}
	p.Width, p.Height = c.r.Dimensions()
	if c.template != nil {
		hdr := *c.template
		hdr.State = nil
		p.Template = &hdr
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return sink.Put(ctx, StateKey, data)
}

// Restore loads the persisted state from sink into the scene. It reports
// false when nothing was stored. A state referencing blob: handles is
// deleted from sink and ErrEphemeralState is returned.
func (c *Controller) Restore(ctx context.Context, sink Sink) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return false, nil
	}
	data, err := sink.Get(ctx, StateKey)
	if err != nil {
		return false, fmt.Errorf("restore: %w", err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if assets.IsEphemeral(string(data)) {
		if err := sink.Delete(ctx, StateKey); err != nil {
			c.log.WarnContext(ctx, "discarding persisted state failed", "err", err)
		}
		return false, ErrEphemeralState
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return false, fmt.Errorf("restore: %w", err)
	}
	if err := c.restoreLocked(ctx, p.Scene, nil); err != nil {
		return false, fmt.Errorf("restore: %w", err)
	}
	c.r.SetDimensions(p.Width, p.Height)
	c.bindings.Replace(p.Bindings)
	c.template = p.Template
	c.status = StatusSuccess
	if snap, err := c.snapshotLocked(); err == nil {
		c.hist.Rebase(snap)
	}
	c.r.Render()
	return true, nil
}

// CurrentTemplate describes the live scene as a Template, so edits can be
// saved and loaded again.
func (c *Controller) CurrentTemplate() *domain.Template {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return nil
	}
	tpl := &domain.Template{}
	if c.template != nil {
		tpl.ID, tpl.Key = c.template.ID, c.template.Key
	}
	if tpl.ID == "" {
		tpl.ID = ident.TemplateID()
		tpl.Key = tpl.ID
	}
	bg := c.r.Background()
	tpl.Background, tpl.Source = bg.Kind, bg.Source
	tpl.Width, tpl.Height = c.r.Dimensions()
	for _, o := range c.r.Objects() {
		tpl.State = append(tpl.State, elementOf(o))
	}
	return tpl
}

func elementOf(o *scene.Object) domain.Element {
	el := domain.Element{Type: o.Type, Name: o.Name}
	d := domain.Details{
		Top:    domain.Float(o.Top),
		Left:   domain.Float(o.Left),
		Width:  domain.Float(o.Width),
		ScaleX: domain.Float(o.ScaleX),
		ScaleY: domain.Float(o.ScaleY),
	}
	nz := func(v float64) *float64 {
		if v == 0 {
			return nil
		}
		return domain.Float(v)
	}
	ns := func(v string) *string {
		if v == "" {
			return nil
		}
		return domain.String(v)
	}
	d.Angle = nz(o.Angle)
	d.Opacity = domain.Float(o.Opacity)
	d.Fill = ns(o.Fill)
	d.Stroke = ns(o.Stroke)
	d.StrokeWidth = nz(o.StrokeWidth)
	// Only the non-default flag states are written.
	if !o.Visible {
		d.Visible = domain.Bool(false)
	}
	if o.Locked {
		d.Locked = domain.Bool(true)
	}
	switch o.Type {
	case domain.TypeText:
		el.Value = o.Text
		d.FontSize = nz(o.FontSize)
		d.FontFamily = ns(o.FontFamily)
		d.TextAlign = ns(o.TextAlign)
	case domain.TypeImage:
		el.Value = o.Src
		d.Height = domain.Float(o.Height)
	default:
		d.Height = domain.Float(o.Height)
		d.Radius = nz(o.Radius)
	}
	el.Details = d
	return el
}
