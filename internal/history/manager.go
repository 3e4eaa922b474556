/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package history keeps bounded undo/redo stacks of whole-scene snapshots.
//
// The bottom of the undo stack is the baseline (usually the freshly loaded
// template) and can never be undone past. The top is always the current state.
package history

import (
	"sync"
	"time"
)

// Snapshot is an opaque serialized scene plus the names of the objects that
// were active when it was taken. Size is estimated as len(Blob).
type Snapshot struct {
	Blob   []byte
	Active []string
	TS     time.Time
}

// Config controls depth and memory caps and coalescing behavior.
type Config struct {
	// MaxSteps bounds the undo stack; the oldest entries are evicted first. Default 30.
	MaxSteps int
	// MaxBytes is a soft cap on undo stack memory; 0 means unlimited.
	MaxBytes int
	// MinInterval coalesces snapshots pushed within the interval, replacing the
	// top instead of pushing. 0 disables coalescing.
	MinInterval time.Duration
}

// DefaultMaxSteps is used when Config.MaxSteps is not positive.
const DefaultMaxSteps = 30

// Manager is safe for concurrent use.
type Manager struct {
	cfg        Config
	mu         sync.Mutex
	undo       []Snapshot
	redo       []Snapshot
	totalBytes int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	return &Manager{cfg: cfg}
}

// Push records a new current state and invalidates redo.
func (m *Manager) Push(s Snapshot) {
	if s.TS.IsZero() {
		s.TS = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redo = nil
	if n := len(m.undo); n > 1 && m.cfg.MinInterval > 0 && s.TS.Sub(m.undo[n-1].TS) < m.cfg.MinInterval {
		m.totalBytes += len(s.Blob) - len(m.undo[n-1].Blob)
		m.undo[n-1] = s
		m.enforceCapsLocked()
		return
	}
	m.undo = append(m.undo, s)
	m.totalBytes += len(s.Blob)
	m.enforceCapsLocked()
}

// Undo moves the current state onto redo and returns the state to restore.
// It fails when only the baseline is left.
func (m *Manager) Undo() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.undo)
	if n <= 1 {
		return Snapshot{}, false
	}
	top := m.undo[n-1]
	m.undo = m.undo[:n-1]
	m.totalBytes -= len(top.Blob)
	m.redo = append(m.redo, top)
	return m.undo[n-2], true
}

// Redo moves the most recently undone state back onto undo and returns it.
func (m *Manager) Redo() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.redo)
	if n == 0 {
		return Snapshot{}, false
	}
	s := m.redo[n-1]
	m.redo = m.redo[:n-1]
	m.undo = append(m.undo, s)
	m.totalBytes += len(s.Blob)
	m.enforceCapsLocked()
	return s, true
}

// PeekUndo returns the state Undo would restore without moving anything.
func (m *Manager) PeekUndo() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.undo)
	if n <= 1 {
		return Snapshot{}, false
	}
	return m.undo[n-2], true
}

// PeekRedo returns the state Redo would restore without moving anything.
func (m *Manager) PeekRedo() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.redo)
	if n == 0 {
		return Snapshot{}, false
	}
	return m.redo[n-1], true
}

// CanUndo reports whether anything above the baseline exists.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo) > 1
}

// CanRedo reports whether an undone state is available.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo) > 0
}

// Top returns the current state, if any.
func (m *Manager) Top() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.undo) == 0 {
		return Snapshot{}, false
	}
	return m.undo[len(m.undo)-1], true
}

// Reset drops both stacks.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undo, m.redo, m.totalBytes = nil, nil, 0
}

// Rebase drops both stacks and makes s the only (baseline) entry.
func (m *Manager) Rebase(s Snapshot) {
	if s.TS.IsZero() {
		s.TS = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undo, m.redo = []Snapshot{s}, nil
	m.totalBytes = len(s.Blob)
}

// Stats describes the stacks for diagnostics.
type Stats struct {
	UndoDepth int `json:"undoDepth"`
	RedoDepth int `json:"redoDepth"`
	Bytes     int `json:"bytes"`
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{UndoDepth: len(m.undo), RedoDepth: len(m.redo), Bytes: m.totalBytes}
}

// enforceCapsLocked evicts from the bottom. The top entry always survives.
func (m *Manager) enforceCapsLocked() {
	drop := 0
	if len(m.undo) > m.cfg.MaxSteps {
		drop = len(m.undo) - m.cfg.MaxSteps
	}
	bytes := m.totalBytes
	for i := 0; i < drop; i++ {
		bytes -= len(m.undo[i].Blob)
	}
	for m.cfg.MaxBytes > 0 && bytes > m.cfg.MaxBytes && drop < len(m.undo)-1 {
		bytes -= len(m.undo[drop].Blob)
		drop++
	}
	if drop == 0 {
		return
	}
	m.undo = append([]Snapshot(nil), m.undo[drop:]...)
	m.totalBytes = bytes
}
