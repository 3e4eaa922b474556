/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ident

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewFormat(t *testing.T) {
	for i := 0; i < 200; i++ {
		id := New("text")
		if !strings.HasPrefix(id, "text_") {
			t.Fatalf("missing prefix: %q", id)
		}
		suffix := strings.TrimPrefix(id, "text_")
		if len(suffix) != SuffixLen {
			t.Fatalf("suffix length = %d in %q", len(suffix), id)
		}
		for _, r := range suffix {
			if !strings.ContainsRune(Alphabet, r) {
				t.Fatalf("suffix char %q not in alphabet (%q)", r, id)
			}
		}
	}
}

func TestNewKeepsPrefixVerbatim(t *testing.T) {
	if id := New("title"); !strings.HasPrefix(id, "title_") {
		t.Fatalf("unexpected id %q", id)
	}
	if id := New(""); len(id) != 1+SuffixLen || id[0] != '_' {
		t.Fatalf("empty prefix id %q", id)
	}
}

func TestTemplateIDIsUUID(t *testing.T) {
	a, b := TemplateID(), TemplateID()
	if a == b {
		t.Fatalf("template ids collided: %q", a)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("not a uuid: %q: %v", a, err)
	}
}
