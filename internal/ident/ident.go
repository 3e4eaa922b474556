/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package ident generates object names and template identifiers.
//
// Object names are short and human-scannable ("text_4kq"). They are not
// globally unique; callers that need uniqueness de-duplicate explicitly.
package ident

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

// Alphabet is the character set used for the random suffix.
const Alphabet = "abcdefghijklmnopqrstuvwxyz1234567890"

// SuffixLen is the number of random characters appended to a prefix.
const SuffixLen = 3

// New returns prefix + "_" + SuffixLen random characters from Alphabet.
func New(prefix string) string {
	var b strings.Builder
	b.Grow(len(prefix) + 1 + SuffixLen)
	b.WriteString(prefix)
	b.WriteByte('_')
	for i := 0; i < SuffixLen; i++ {
		b.WriteByte(Alphabet[rand.IntN(len(Alphabet))])
	}
	return b.String()
}

// TemplateID returns a fresh identifier for a Template id or key.
func TemplateID() string { return uuid.NewString() }
