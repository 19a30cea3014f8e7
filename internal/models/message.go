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

// Package models defines the data structures shared across the triage pipeline.
package models

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Message represents a raw school email as retrieved from the mail source.
// Immutable once fetched; missing fields are empty strings, never nil.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender"` // free-text "Name <address>"
	Subject   string    `json:"subject"`
	BodyText  string    `json:"body_text"`
	Snippet   string    `json:"snippet"`
}

// SenderName extracts the display-name portion of the Sender header.
func (m Message) SenderName() string {
	name, _, found := strings.Cut(m.Sender, "<")
	if found {
		return strings.TrimSpace(name)
	}
	return strings.TrimSpace(m.Sender)
}

// SenderDomain extracts the domain portion of the sender address.
func (m Message) SenderDomain() string {
	_, after, found := strings.Cut(m.Sender, "@")
	if !found {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(strings.TrimSuffix(after, ">")))
}

// Category is the fixed classification taxonomy for school communications.
type Category string

const (
	CategoryAcademic       Category = "Academic"
	CategoryAdministrative Category = "Administrative"
	CategoryFinancial      Category = "Financial"
	CategoryBehavioral     Category = "Behavioral"
	CategoryCalendar       Category = "Calendar"
)

// Categories lists the returnable categories in their fixed enumeration
// order. Scoring tie-breaks resolve to the first category reaching the
// maximum in this order.
var Categories = []Category{
	CategoryAcademic,
	CategoryAdministrative,
	CategoryFinancial,
	CategoryBehavioral,
	CategoryCalendar,
}

// ParseCategory maps free text onto the fixed taxonomy. Anything that is
// not a known category falls back to Administrative, the default bucket.
func ParseCategory(s string) Category {
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c
		}
	}
	return CategoryAdministrative
}

// AllStudents is the sentinel association for messages that name no
// specific tracked individual.
const AllStudents = "All Students"

// Association is the set of substitute tokens a message relates to.
// An empty Association means the message is general — it applies to the
// whole family, not any one individual.
type Association []string

// NewAssociation builds a deduplicated association preserving first-seen
// order. The AllStudents sentinel and empty entries are dropped, since an
// empty set already carries that meaning.
func NewAssociation(tokens ...string) Association {
	seen := make(map[string]bool, len(tokens))
	var out Association
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" || t == AllStudents {
			continue
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// General reports whether the message names no specific individual.
func (a Association) General() bool { return len(a) == 0 }

// Contains reports whether the association includes the given token.
func (a Association) Contains(token string) bool {
	for _, t := range a {
		if t == token {
			return true
		}
	}
	return false
}

// String renders the association for display and storage.
func (a Association) String() string {
	if a.General() {
		return AllStudents
	}
	return strings.Join(a, ", ")
}

// Sorted returns the tokens in lexical order; used where deterministic
// output matters (storage, rendering).
func (a Association) Sorted() []string {
	out := make([]string, len(a))
	copy(out, a)
	sort.Strings(out)
	return out
}

// Method records which classification path produced a result.
type Method string

const (
	MethodAI    Method = "AI"
	MethodRules Method = "Rules"
)

// ClassificationResult is the structured outcome of classifying one message.
type ClassificationResult struct {
	Category       Category    `json:"category"`
	UrgencyScore   float64     `json:"urgency_score"` // clamped to [0, 10]
	Association    Association `json:"association"`
	KeyDates       []string    `json:"key_dates"` // at most 5, deduplicated, raw substrings
	Amounts        []string    `json:"amounts"`   // at most 3 dollar amounts
	Contacts       []string    `json:"contacts"`  // phone-like digit groups
	ActionItems    []string    `json:"action_items"`
	ActionRequired bool        `json:"action_required"`
	Summary        string      `json:"summary"`
	Reasoning      string      `json:"reasoning"`
	Method         Method      `json:"method"`
}

// Truncate returns the longest prefix of s holding at most max bytes that
// does not split a multi-byte rune. Used wherever message text is cut for
// prompts or previews.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ClampUrgency bounds a raw urgency value to the [0, 10] scoring domain.
func ClampUrgency(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

// ClassifiedMessage is a message merged with its classification. The merge
// is explicit: message fields and classifier fields live side by side, and
// the classifier's view is authoritative for everything it covers.
type ClassifiedMessage struct {
	Message
	ClassificationResult
}

// Classify merges a message with its classification result.
func Classify(msg Message, res ClassificationResult) ClassifiedMessage {
	return ClassifiedMessage{Message: msg, ClassificationResult: res}
}
