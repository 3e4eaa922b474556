/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package catalog supplies the data records templates are filled with.
// Records come from a JSON file, an HTTP feed or a Postgres table.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"templatecanvas/internal/config"
)

// Record is one data row. Data holds JSON-decoded values with numbers kept as json.Number.
type Record struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// Source lists records.
type Source interface {
	Records(ctx context.Context) ([]Record, error)
}

// ErrNoSource is returned by Open when no catalog is configured.
var ErrNoSource = errors.New("no catalog configured")

// Open picks the configured source: a file wins over a feed, a feed over a DSN.
// secret is the feed bearer token or the database password.
func Open(ctx context.Context, cfg config.CatalogConfig, secret string) (Source, error) {
	switch {
	case strings.TrimSpace(cfg.File) != "":
		return FileSource{Path: cfg.File}, nil
	case strings.TrimSpace(cfg.FeedURL) != "":
		return NewFeed(cfg.FeedURL, secret), nil
	case strings.TrimSpace(cfg.DSN) != "":
		dsn, err := withPassword(cfg.DSN, secret)
		if err != nil {
			return nil, err
		}
		return OpenPG(ctx, dsn, cfg.Query)
	}
	return nil, ErrNoSource
}

// FileSource reads records from a JSON file holding either an array of
// objects or an object with a "records" array.
type FileSource struct {
	Path string
}

func (f FileSource) Records(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return Decode(bytes.NewReader(data))
}

// Decode reads a JSON record list. Objects become records; an "id" field, if
// present, names the record, otherwise its 1-based position does.
func Decode(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if m, ok := raw.(map[string]any); ok {
		raw = m["records"]
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, errors.New("decode records: expected an array of objects")
	}
	out := make([]Record, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode records: item %d is not an object", i)
		}
		out = append(out, Record{ID: recordID(obj, i), Data: obj})
	}
	return out, nil
}

func recordID(obj map[string]any, i int) string {
	switch v := obj["id"].(type) {
	case string:
		if v != "" {
			return v
		}
	case json.Number:
		return v.String()
	}
	return strconv.Itoa(i + 1)
}
