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
	"fmt"

	"templatecanvas/internal/history"
	"templatecanvas/internal/scene"
)

// Undo restores the previous snapshot. While a restore runs further
// undo/redo calls return immediately; the guard is released on every path.
func (c *Controller) Undo(ctx context.Context) error {
	return c.travel(ctx, "undo", c.hist.PeekUndo, c.hist.Undo)
}

// Redo reapplies the most recently undone snapshot.
func (c *Controller) Redo(ctx context.Context) error {
	return c.travel(ctx, "redo", c.hist.PeekRedo, c.hist.Redo)
}

// travel restores the peeked snapshot first and moves the stacks only once
// the scene holds it, so a failed restore leaves history where it was.
func (c *Controller) travel(ctx context.Context, op string, peek, step func() (history.Snapshot, bool)) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer c.inFlight.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return nil
	}
	snap, ok := peek()
	if !ok {
		return nil
	}
	selected := activeNames(c.r)
	if err := c.restoreLocked(ctx, snap.Blob, selected); err != nil {
		c.log.ErrorContext(ctx, "restore failed", "op", op, "err", err)
		if top, ok := c.hist.Top(); ok {
			if rerr := c.restoreLocked(ctx, top.Blob, selected); rerr != nil {
				c.log.ErrorContext(ctx, "scene left partially restored", "op", op, "err", rerr)
			}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	step()
	return nil
}

// restoreLocked replaces the whole scene with blob and reselects objects by
// name where they still exist.
func (c *Controller) restoreLocked(ctx context.Context, blob []byte, selected []string) error {
	c.restoring = true
	defer func() { c.restoring = false }()

	c.r.DiscardActive()
	if err := c.r.Deserialize(ctx, blob); err != nil {
		return err
	}
	var objs []*scene.Object
	for _, n := range selected {
		if o := scene.Find(c.r, n); o != nil {
			objs = append(objs, o)
		}
	}
	if len(objs) > 0 {
		c.r.SetActiveObjects(objs...)
	}
	c.r.Render()
	return nil
}
