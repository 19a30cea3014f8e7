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

package privacy

import (
	"strings"
	"testing"
)

func testCodec() *Codec {
	return NewCodec([]Student{
		{RealName: "Emma Johnson", Token: "Student_Alpha", Grade: "5th Grade"},
		{RealName: "Liam Johnson", Token: "Student_Beta", Grade: "8th Grade"},
	})
}

// TestCodec_RoundTrip verifies decode(encode(name)) == name for every
// configured student.
func TestCodec_RoundTrip(t *testing.T) {
	c := testCodec()

	for _, s := range c.Students() {
		token := c.Encode(s.RealName)
		if token != s.Token {
			t.Errorf("Encode(%q) = %q, want %q", s.RealName, token, s.Token)
		}
		if got := c.Decode(token); got != s.RealName {
			t.Errorf("Decode(Encode(%q)) = %q, want round trip", s.RealName, got)
		}
	}
}

// TestCodec_EncodeCaseInsensitive verifies lookups ignore case.
func TestCodec_EncodeCaseInsensitive(t *testing.T) {
	c := testCodec()

	if got := c.Encode("emma johnson"); got != "Student_Alpha" {
		t.Errorf("Encode lower-case = %q, want Student_Alpha", got)
	}
}

// TestCodec_UnknownNameIdempotent verifies unknown names map to a stable
// placeholder distinct from configured tokens.
func TestCodec_UnknownNameIdempotent(t *testing.T) {
	c := testCodec()

	first := c.Encode("Noah Smith")
	second := c.Encode("Noah Smith")

	if first != second {
		t.Errorf("unknown name not idempotent: %q vs %q", first, second)
	}
	if !strings.HasPrefix(first, "Student_Unknown_") {
		t.Errorf("unknown placeholder = %q, want Student_Unknown_ prefix", first)
	}
	for _, s := range c.Students() {
		if first == s.Token {
			t.Errorf("placeholder %q collides with configured token", first)
		}
	}
}

// TestCodec_DecodeUnknownFailOpen verifies unknown tokens come back as-is.
func TestCodec_DecodeUnknownFailOpen(t *testing.T) {
	c := testCodec()

	if got := c.Decode("Student_Gamma"); got != "Student_Gamma" {
		t.Errorf("Decode(unknown) = %q, want token unchanged", got)
	}
}

// TestCodec_Scrub verifies real names are replaced case-insensitively in
// AI-facing text.
func TestCodec_Scrub(t *testing.T) {
	c := testCodec()

	in := "EMMA JOHNSON and Liam Johnson both attend the assembly. emma johnson leads."
	out := c.Scrub(in)

	if strings.Contains(strings.ToLower(out), "emma johnson") {
		t.Errorf("Scrub left real name in output: %q", out)
	}
	if strings.Count(out, "Student_Alpha") != 2 {
		t.Errorf("expected 2 Student_Alpha substitutions, got %d in %q",
			strings.Count(out, "Student_Alpha"), out)
	}
	if !strings.Contains(out, "Student_Beta") {
		t.Errorf("Scrub missed second student: %q", out)
	}
}

// TestCodec_EmptyConfig verifies graceful degradation with no students.
func TestCodec_EmptyConfig(t *testing.T) {
	c := NewCodec(nil)

	if got := c.Encode("Anyone"); !strings.HasPrefix(got, "Student_Unknown_") {
		t.Errorf("Encode with empty config = %q, want placeholder", got)
	}
	if got := c.Scrub("plain text"); got != "plain text" {
		t.Errorf("Scrub with empty config altered text: %q", got)
	}
}
