/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package fonts resolves font names to registered faces.
//
// A Catalog maps display names to font files. The Resolver makes sure a face
// is registered in a textlayout.FontLibrary before text using it is measured
// or drawn, and falls back to a default name with a warning when it cannot.
package fonts

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is a static name to font-file URL mapping.
type Catalog struct {
	entries map[string]string
}

type catalogFile struct {
	BaseURL string            `yaml:"base_url"`
	Fonts   map[string]string `yaml:"fonts"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded font catalog: %v", err))
	}
	return c
}

// ParseCatalog reads a YAML catalog. Relative font paths are joined onto base_url.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse font catalog: %w", err)
	}
	c := &Catalog{entries: make(map[string]string, len(cf.Fonts))}
	for name, p := range cf.Fonts {
		c.entries[name] = join(cf.BaseURL, p)
	}
	return c, nil
}

// LoadCatalog reads a catalog file and layers it over the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font catalog: %w", err)
	}
	user, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}
	c := DefaultCatalog()
	c.Merge(user)
	return c, nil
}

func join(base, p string) string {
	if base == "" || strings.Contains(p, "://") || strings.HasPrefix(p, "/") {
		return p
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(p, "/")
}

// Lookup returns the source URL for an exact catalog name.
func (c *Catalog) Lookup(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	u, ok := c.entries[name]
	return u, ok
}

// Merge copies other's entries over c.
func (c *Catalog) Merge(other *Catalog) {
	if other == nil {
		return
	}
	if c.entries == nil {
		c.entries = make(map[string]string, len(other.entries))
	}
	for k, v := range other.entries {
		c.entries[k] = v
	}
}

// Add registers or replaces one entry.
func (c *Catalog) Add(name, source string) {
	if c.entries == nil {
		c.entries = make(map[string]string)
	}
	c.entries[name] = source
}

// Names lists catalog names in sorted order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
