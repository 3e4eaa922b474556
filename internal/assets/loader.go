/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package assets

import (
	"bytes"
	"container/list"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Loader decodes images and keeps a small LRU cache keyed by locator.
type Loader struct {
	Fetcher *Fetcher
	Cap     int // cached images; default 64

	mu    sync.Mutex
	order *list.List
	items map[string]*list.Element
}

type cached struct {
	src string
	img image.Image
}

func NewLoader(f *Fetcher) *Loader {
	return &Loader{Fetcher: f, order: list.New(), items: make(map[string]*list.Element)}
}

// Image fetches and decodes src. Format is sniffed from the bytes.
func (l *Loader) Image(ctx context.Context, src string) (image.Image, error) {
	if img, ok := l.lookup(src); ok {
		return img, nil
	}
	data, err := l.Fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", short(src), err)
	}
	l.store(src, img)
	return img, nil
}

// Forget drops src from the cache.
func (l *Loader) Forget(src string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.items[src]; ok {
		l.order.Remove(el)
		delete(l.items, src)
	}
}

func (l *Loader) lookup(src string) (image.Image, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.items == nil {
		return nil, false
	}
	el, ok := l.items[src]
	if !ok {
		return nil, false
	}
	l.order.MoveToFront(el)
	return el.Value.(*cached).img, true
}

func (l *Loader) store(src string, img image.Image) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.items == nil {
		l.order = list.New()
		l.items = make(map[string]*list.Element)
	}
	capacity := l.Cap
	if capacity <= 0 {
		capacity = 64
	}
	if el, ok := l.items[src]; ok {
		el.Value.(*cached).img = img
		l.order.MoveToFront(el)
		return
	}
	l.items[src] = l.order.PushFront(&cached{src: src, img: img})
	for l.order.Len() > capacity {
		last := l.order.Back()
		l.order.Remove(last)
		delete(l.items, last.Value.(*cached).src)
	}
}

func short(s string) string {
	if len(s) > 64 {
		return s[:61] + "..."
	}
	return s
}
