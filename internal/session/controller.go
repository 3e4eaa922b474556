/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package session owns one editable canvas: it places templates, runs editing
// commands, records history, applies data bindings, and publishes a read-only
// State after every change.
package session

import (
	"context"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"templatecanvas/internal/binding"
	"templatecanvas/internal/config"
	"templatecanvas/internal/domain"
	"templatecanvas/internal/fonts"
	"templatecanvas/internal/history"
	applog "templatecanvas/internal/log"
	"templatecanvas/internal/scene"
)

// Status is the lifecycle of the active template.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusPending       Status = "pending"
	StatusSuccess       Status = "success"
	StatusError         Status = "error"
)

// FontResolver makes a font usable before text is drawn; *fonts.Resolver satisfies it.
type FontResolver interface {
	Resolve(ctx context.Context, name string) fonts.Result
}

// Options are the editor defaults a Controller works with.
type Options struct {
	// ReferenceWidth and ReferenceHeight are the design resolution templates
	// are authored for. Zero disables scaling on that axis.
	ReferenceWidth  float64
	ReferenceHeight float64

	DefaultFont      string
	DefaultFontSize  float64
	DefaultTextWidth float64
	DefaultImageSize float64
	PasteOffset      float64

	Roles   scene.Roles
	History history.Config
}

// OptionsFromConfig maps the editor section of the app config.
func OptionsFromConfig(ec config.EditorConfig) Options {
	roles := make(scene.Roles, 0, len(ec.TrackedRoles))
	for _, r := range ec.TrackedRoles {
		roles = append(roles, scene.Role{Role: r.Role, Object: r.Object, Kind: domain.NormalizeType(r.Kind)})
	}
	return Options{
		ReferenceWidth:   ec.ReferenceWidth,
		ReferenceHeight:  ec.ReferenceHeight,
		DefaultFont:      ec.DefaultFont,
		DefaultFontSize:  ec.DefaultFontSize,
		DefaultTextWidth: ec.DefaultTextWidth,
		Roles:            roles,
		History:          history.Config{MaxSteps: ec.MaxUndoSteps, MaxBytes: ec.MaxHistoryBytes},
	}
}

func (o *Options) withDefaults() {
	if o.DefaultFont == "" {
		o.DefaultFont = "Poppins Regular"
	}
	if o.DefaultFontSize <= 0 {
		o.DefaultFontSize = 48
	}
	if o.DefaultTextWidth <= 0 {
		o.DefaultTextWidth = 310
	}
	if o.DefaultImageSize <= 0 {
		o.DefaultImageSize = 500
	}
	if o.PasteOffset == 0 {
		o.PasteOffset = 10
	}
}

// State is the public read projection. It is rebuilt from the renderer
// every time and never edited in place.
type State struct {
	Status     Status             `json:"status"`
	TemplateID string             `json:"templateId,omitempty"`
	Objects    []scene.ObjectInfo `json:"objects"`
	Selection  scene.Selection    `json:"selection"`
	CanUndo    bool               `json:"canUndo"`
	CanRedo    bool               `json:"canRedo"`
	Width      float64            `json:"width"`
	Height     float64            `json:"height"`
	Background scene.Background   `json:"background"`
	Bindings   map[string]string  `json:"bindings"`
}

// Controller is the single owner of a renderer. All methods are safe for
// concurrent use; commands are serialized.
type Controller struct {
	opts   Options
	fonts  FontResolver
	images scene.ImageSource
	log    *slog.Logger

	mu        sync.Mutex
	r         scene.Renderer
	off       []func()
	hist      *history.Manager
	bindings  *binding.Engine
	template  *domain.Template
	status    Status
	clipboard []*scene.Object
	loading   bool
	restoring bool

	// inFlight disables undo/redo while a restore runs.
	inFlight atomic.Bool

	subMu  sync.Mutex
	subs   map[int]func(State)
	nextID int
}

// New returns a Controller without a renderer; every command is a no-op
// until Attach is called.
func New(opts Options, fr FontResolver, images scene.ImageSource) *Controller {
	opts.withDefaults()
	return &Controller{
		opts:     opts,
		fonts:    fr,
		images:   images,
		log:      applog.WithComponent("session"),
		hist:     history.NewManager(opts.History),
		bindings: binding.NewEngine(),
		status:   StatusUninitialized,
		subs:     make(map[int]func(State)),
	}
}

// Attach hands r to the controller and wires its lifecycle events. The
// current scene becomes the history baseline.
func (c *Controller) Attach(r scene.Renderer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detachLocked()
	c.r = r
	c.off = []func(){
		r.On(scene.EventModified, c.onModified),
		r.On(scene.EventScaling, c.onScale),
		r.On(scene.EventAfterRender, func(scene.Event) { c.notifyLocked() }),
	}
	if snap, err := c.snapshotLocked(); err == nil {
		c.hist.Rebase(snap)
	}
}

// Detach releases the renderer.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detachLocked()
}

func (c *Controller) detachLocked() {
	for _, off := range c.off {
		off()
	}
	c.off = nil
	c.r = nil
}

// Subscribe registers fn for every published State. fn runs synchronously
// while the controller is locked and must not call back into it.
func (c *Controller) Subscribe(fn func(State)) (cancel func()) {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// State returns the current read projection.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	st := State{
		Status:    c.status,
		Objects:   scene.List(c.r),
		Selection: scene.DeriveSelection(c.r),
		CanUndo:   !c.inFlight.Load() && c.hist.CanUndo(),
		CanRedo:   !c.inFlight.Load() && c.hist.CanRedo(),
		Bindings:  c.bindings.All(),
	}
	if st.Objects == nil {
		st.Objects = []scene.ObjectInfo{}
	}
	if c.template != nil {
		st.TemplateID = c.template.ID
	}
	if c.r != nil {
		st.Width, st.Height = c.r.Dimensions()
		st.Background = c.r.Background()
	}
	return st
}

func (c *Controller) notifyLocked() {
	c.subMu.Lock()
	fns := make([]func(State), 0, len(c.subs))
	for _, id := range slices.Sorted(maps.Keys(c.subs)) {
		fns = append(fns, c.subs[id])
	}
	c.subMu.Unlock()
	if len(fns) == 0 {
		return
	}
	st := c.stateLocked()
	for _, fn := range fns {
		fn(st)
	}
}

// HistoryStats exposes the depth of both stacks.
func (c *Controller) HistoryStats() history.Stats { return c.hist.Stats() }

// View runs fn with the renderer under the session lock, for read-only
// consumers such as exporters. fn is not called when no renderer is attached.
func (c *Controller) View(fn func(r scene.Renderer)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r != nil {
		fn(c.r)
	}
}

// onModified records a snapshot. During a load the history is rebased so the
// baseline is the most recently placed state; during a restore nothing is recorded.
func (c *Controller) onModified(scene.Event) {
	if c.r == nil || c.restoring {
		return
	}
	zoom := c.r.Zoom()
	for _, o := range c.r.Objects() {
		c.opts.Roles.UpdateMeta(o, zoom)
	}
	snap, err := c.snapshotLocked()
	if err != nil {
		c.log.Error("snapshot failed", "err", err)
		return
	}
	if c.loading {
		c.hist.Rebase(snap)
		return
	}
	c.hist.Push(snap)
}

// onScale turns an interactive resize of a textbox into a real font size and
// width, so later edits never see an accumulated scale.
func (c *Controller) onScale(ev scene.Event) {
	o := ev.Target
	if o == nil || o.Type != domain.TypeText {
		return
	}
	o.FontSize = math.Round(o.FontSize * o.ScaleY)
	o.Width *= o.ScaleX
	o.ScaleX, o.ScaleY = 1, 1
}

func (c *Controller) snapshotLocked() (history.Snapshot, error) {
	if c.r == nil {
		return history.Snapshot{}, nil
	}
	blob, err := c.r.Serialize()
	if err != nil {
		return history.Snapshot{}, err
	}
	return history.Snapshot{Blob: blob, Active: activeNames(c.r), TS: time.Now()}, nil
}

// commitLocked announces a change to o (nil for structural changes) and renders.
func (c *Controller) commitLocked(o *scene.Object) {
	c.r.Fire(scene.Event{Kind: scene.EventModified, Target: o})
	c.r.Render()
}

func activeNames(r scene.Renderer) []string {
	active := r.ActiveObjects()
	names := make([]string, len(active))
	for i, o := range active {
		names[i] = o.Name
	}
	return names
}
