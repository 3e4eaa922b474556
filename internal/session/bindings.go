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

	"templatecanvas/internal/binding"
	applog "templatecanvas/internal/log"
)

// SetBinding upserts the expression for an object; an empty one removes it.
// Bindings live outside the undo history.
func (c *Controller) SetBinding(name, expr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings.Set(name, expr)
	c.notifyLocked()
}

func (c *Controller) ClearBinding(name string) { c.SetBinding(name, "") }

// Bindings returns a copy of the binding map.
func (c *Controller) Bindings() map[string]string { return c.bindings.All() }

// ApplyData writes record into every bound object. All changes are announced
// as one modification, so a single undo reverts the whole record.
func (c *Controller) ApplyData(ctx context.Context, record any) binding.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return binding.Report{}
	}
	rep := c.bindings.Apply(ctx, c.r.Objects(), c.images, record)
	l := applog.WithOperation(c.log, "apply_data")
	applog.Warnings(ctx, l, rep.Warnings)
	if rep.Changed() {
		c.commitLocked(nil)
	}
	l.DebugContext(ctx, "bindings applied", "applied", len(rep.Applied), "warnings", len(rep.Warnings))
	return rep
}
