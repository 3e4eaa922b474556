/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package assets resolves resource locators (http, file, data and blob URLs)
// to bytes and decoded images.
//
// blob: URLs are handles to bytes held in memory by a Store. They stand in for
// rasterised layers and other locally produced images and do not survive a
// process restart; anything persisted with one inside must be discarded on reload.
package assets

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// BlobScheme prefixes every in-memory resource handle.
const BlobScheme = "blob:"

// ErrNotFound is returned when a locator does not point at anything.
var ErrNotFound = errors.New("asset not found")

type blob struct {
	data        []byte
	contentType string
}

// Store holds in-memory resources addressed by blob: URLs.
type Store struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

func NewStore() *Store { return &Store{blobs: make(map[string]blob)} }

// Put registers data and returns its blob: URL.
func (s *Store) Put(data []byte, contentType string) string {
	u := BlobScheme + "templatecanvas/" + uuid.NewString()
	s.mu.Lock()
	s.blobs[u] = blob{data: data, contentType: contentType}
	s.mu.Unlock()
	return u
}

// Get returns the bytes and content type behind a blob: URL.
func (s *Store) Get(u string) ([]byte, string, error) {
	s.mu.RLock()
	b, ok := s.blobs[u]
	s.mu.RUnlock()
	if !ok {
		return nil, "", ErrNotFound
	}
	return b.data, b.contentType, nil
}

// Revoke drops a blob. Unknown URLs are ignored.
func (s *Store) Revoke(u string) {
	s.mu.Lock()
	delete(s.blobs, u)
	s.mu.Unlock()
}

// Len reports the number of live blobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// IsEphemeral reports whether s contains a blob: handle anywhere.
func IsEphemeral(s string) bool { return strings.Contains(s, BlobScheme) }
