// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package privacy provides the bidirectional mapping between real student
// identities and opaque substitute tokens. Tokens replace real names in all
// AI-facing text; digests decode them back for family display.
package privacy

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Student is one tracked individual from configuration.
type Student struct {
	RealName string
	Token    string // substitute token, unique and stable across runs
	Grade    string // free text, e.g. "5th Grade"
}

// Codec holds the loaded name mapping. It is read-only after construction
// and safe for concurrent use.
type Codec struct {
	students []Student
	byName   map[string]Student // keyed on lower-cased real name
	byToken  map[string]Student
}

// NewCodec builds a codec from the configured students. Entries with an
// empty real name or token are skipped; on duplicate tokens the first entry
// wins, matching the config loader's first-one-wins convention.
func NewCodec(students []Student) *Codec {
	c := &Codec{
		byName:  make(map[string]Student, len(students)),
		byToken: make(map[string]Student, len(students)),
	}
	for _, s := range students {
		if s.RealName == "" || s.Token == "" {
			continue
		}
		key := strings.ToLower(s.RealName)
		if _, dup := c.byName[key]; dup {
			continue
		}
		if _, dup := c.byToken[s.Token]; dup {
			continue
		}
		c.students = append(c.students, s)
		c.byName[key] = s
		c.byToken[s.Token] = s
	}
	return c
}

// Students returns the tracked individuals in configuration order.
func (c *Codec) Students() []Student {
	return c.students
}

// Encode returns the substitute token for a real name. Unknown names get a
// deterministic placeholder derived from a hash of the input, so repeated
// calls with the same unknown name always yield the same token.
func (c *Codec) Encode(realName string) string {
	if s, ok := c.byName[strings.ToLower(realName)]; ok {
		return s.Token
	}
	h := fnv.New32a()
	h.Write([]byte(realName))
	return fmt.Sprintf("Student_Unknown_%d", h.Sum32()%1000)
}

// Decode returns the real name for a known token. Unrecognised tokens come
// back unchanged — decoding is fail-open and never errors.
func (c *Codec) Decode(token string) string {
	if s, ok := c.byToken[token]; ok {
		return s.RealName
	}
	return token
}

// Scrub replaces every configured real name in the text with its substitute
// token, case-insensitively. Applied to all AI-facing text.
func (c *Codec) Scrub(text string) string {
	if text == "" || len(c.students) == 0 {
		return text
	}
	for _, s := range c.students {
		text = replaceFold(text, s.RealName, s.Token)
	}
	return text
}

// replaceFold replaces all case-insensitive occurrences of old with new.
func replaceFold(s, old, new string) string {
	if old == "" {
		return s
	}
	lower := strings.ToLower(s)
	target := strings.ToLower(old)

	var b strings.Builder
	for {
		i := strings.Index(lower, target)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(new)
		s = s[i+len(old):]
		lower = lower[i+len(target):]
	}
}
