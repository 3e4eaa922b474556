/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package fonts

import (
	"context"
	"time"

	applog "templatecanvas/internal/log"
	"templatecanvas/internal/textlayout"

	"golang.org/x/sync/singleflight"
)

// Warnings reported alongside the fallback font name.
const (
	WarnNotFound   = "Cannot locate font. Default font will be used to preview"
	WarnLoadFailed = "Unable to load font. Default font will be used to preview"
)

// DefaultFallback is used when Resolver.Fallback is empty.
const DefaultFallback = "Montserrat"

// Fetcher retrieves font file bytes. assets.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, src string) ([]byte, error)
}

// Result is the outcome of a resolve: the name to draw with and an optional warning.
type Result struct {
	Name    string
	Warning string
}

// Resolver ensures catalog fonts are registered in Library before use.
type Resolver struct {
	Catalog  *Catalog
	Library  *textlayout.FontLibrary
	Fetcher  Fetcher
	Fallback string
	Timeout  time.Duration // 0 = caller's context only

	group singleflight.Group
}

func (r *Resolver) fallback() string {
	if r.Fallback != "" {
		return r.Fallback
	}
	return DefaultFallback
}

// Resolve returns name when its face is (or becomes) registered, otherwise the
// fallback name and a warning. Concurrent resolves of one name share a fetch.
func (r *Resolver) Resolve(ctx context.Context, name string) Result {
	src, ok := r.Catalog.Lookup(name)
	if !ok {
		return Result{Name: r.fallback(), Warning: WarnNotFound}
	}
	if r.Library.Has(name) {
		return Result{Name: name}
	}
	_, err, _ := r.group.Do(name, func() (any, error) {
		if r.Library.Has(name) {
			return nil, nil
		}
		fctx := ctx
		if r.Timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(ctx, r.Timeout)
			defer cancel()
		}
		data, err := r.Fetcher.Fetch(fctx, src)
		if err != nil {
			return nil, err
		}
		return nil, r.Library.Register(name, data)
	})
	if err != nil {
		applog.WithOperation(applog.WithComponent("fonts"), "resolve").
			WarnContext(ctx, "font load failed", "font", name, "err", err)
		return Result{Name: r.fallback(), Warning: WarnLoadFailed}
	}
	return Result{Name: name}
}
