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
	"context"

	"templatecanvas/internal/domain"
)

// EventKind names a lifecycle event.
type EventKind string

const (
	EventModified         EventKind = "object:modified"
	EventAdded            EventKind = "object:added"
	EventRemoved          EventKind = "object:removed"
	EventScaling          EventKind = "object:scaling"
	EventSelectionCreated EventKind = "selection:created"
	EventSelectionUpdated EventKind = "selection:updated"
	EventSelectionCleared EventKind = "selection:cleared"
	EventAfterRender      EventKind = "after:render"
)

// Event is delivered to handlers registered with On. Target is nil for
// structural changes that are not about one object.
type Event struct {
	Kind   EventKind
	Target *Object
}

// Handler receives events synchronously, on the goroutine that fired them.
type Handler func(Event)

// Background describes what is drawn behind all objects.
type Background struct {
	Kind   domain.BackgroundKind `json:"type"`
	Source string                `json:"source"`
}

// Renderer is the drawing surface a session drives. Objects are returned by
// pointer; the renderer owns them and callers mutate them in place before
// firing EventModified.
type Renderer interface {
	Add(objs ...*Object)
	Remove(objs ...*Object)
	Clear()
	Objects() []*Object
	MoveTo(o *Object, index int)

	ActiveObject() *Object
	ActiveObjects() []*Object
	SetActiveObjects(objs ...*Object)
	DiscardActive()
	CenterObject(o *Object)

	Serialize() ([]byte, error)
	Deserialize(ctx context.Context, data []byte) error

	Fire(ev Event)
	On(kind EventKind, h Handler) (off func())
	Render()

	SetDimensions(w, h float64)
	Dimensions() (w, h float64)
	SetBackground(bg Background)
	Background() Background
	Zoom() float64
}

// Find returns the first object named name, or nil.
func Find(r Renderer, name string) *Object {
	for _, o := range r.Objects() {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// IndexOf returns the draw-order index of o, or -1.
func IndexOf(r Renderer, o *Object) int {
	for i, x := range r.Objects() {
		if x == o {
			return i
		}
	}
	return -1
}
