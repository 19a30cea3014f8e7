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

// Package classify turns raw school email into structured classification
// records. The AI-backed classifier is the primary path; the rule-based
// classifier here is both its deterministic fallback and the baseline
// correctness oracle. The keyword lists and weights are load-bearing —
// scoring behaviour is defined by these exact literals.
package classify

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/privacy"
)

// categoryKeywords maps each scored category to its keyword list. "Urgent"
// is scored alongside the others but is never a returned category; only the
// five entries of models.Categories can appear in a result.
var categoryKeywords = map[models.Category][]string{
	models.CategoryAcademic:       {"grades", "homework", "test", "assignment", "teacher", "class", "subject"},
	models.CategoryAdministrative: {"policy", "form", "registration", "announcement", "newsletter"},
	models.CategoryFinancial:      {"fee", "payment", "invoice", "fundraising", "donation", "cost", "money"},
	models.CategoryBehavioral:     {"behavior", "discipline", "incident", "counselor", "meeting", "principal"},
	models.CategoryCalendar:       {"event", "schedule", "date", "time", "holiday", "break", "trip"},
}

// urgentKeywords participate in category scoring without being returnable.
var urgentKeywords = []string{"urgent", "immediate", "asap", "deadline", "today", "tomorrow", "required"}

var (
	highUrgencyTerms = []string{
		"urgent", "immediate", "asap", "emergency", "important",
		"deadline", "due today", "due tomorrow", "overdue",
		"suspended", "incident", "injury", "medical", "principal office",
	}
	mediumUrgencyTerms = []string{
		"payment due", "meeting required", "response needed",
		"please respond", "action required", "sign up",
		"permission slip", "field trip",
	}
	timeSensitiveTerms = []string{
		"today", "tomorrow", "this week", "deadline",
		"expires", "closes", "ends",
	}
)

// actionWords mark sentences that ask the family to do something.
var actionWords = []string{"please", "must", "need to", "required to", "should"}

// summarySoftening rewrites harsh phrasing in snippet previews. Applied in
// order; the list is fixed, not configurable.
var summarySoftening = []struct{ harsh, supportive string }{
	{"failing", "needs support"},
	{"poor behavior", "behavioral growth opportunity"},
	{"discipline", "guidance"},
	{"problem", "area for development"},
	{"concerning", "worth discussing"},
}

var (
	dateSlashRe  = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)
	dateHyphenRe = regexp.MustCompile(`\b\d{1,2}-\d{1,2}-\d{4}\b`)
	dateMonthRe  = regexp.MustCompile(`\b[A-Za-z]+ \d{1,2},? \d{4}\b`)
	amountRe     = regexp.MustCompile(`\$\d+\.?\d*`)
	phoneRe      = regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`)
)

// RuleClassifier assigns category, urgency, subject association, and
// extracted facts from raw text using deterministic keyword scoring.
// Identical input always yields an identical result.
type RuleClassifier struct {
	codec *privacy.Codec
}

// NewRuleClassifier creates the deterministic classifier over the loaded
// name mapping.
func NewRuleClassifier(codec *privacy.Codec) *RuleClassifier {
	return &RuleClassifier{codec: codec}
}

// Classify produces the full classification record for one message. Missing
// message fields are treated as empty strings; this never fails.
func (r *RuleClassifier) Classify(msg models.Message) models.ClassificationResult {
	text := strings.ToLower(msg.Subject + " " + msg.BodyText + " " + msg.Snippet)

	category := categorize(text)
	urgency := urgencyScore(text, msg.Subject)
	dates, amounts, contacts, actions := extractKeyInfo(text)

	return models.ClassificationResult{
		Category:       category,
		UrgencyScore:   urgency,
		Association:    r.associate(text),
		KeyDates:       dates,
		Amounts:        amounts,
		Contacts:       contacts,
		ActionItems:    actions,
		ActionRequired: urgency > 7.0,
		Summary:        summarize(msg, category),
		Reasoning:      "keyword and pattern matching",
		Method:         models.MethodRules,
	}
}

// categorize scores each category by counting keyword occurrences in the
// combined text and returns the argmax among the returnable categories.
// Ties resolve to the first category reaching the maximum in enumeration
// order; an all-zero scoreboard defaults to Administrative. The Urgent
// keyword list participates in the scoring scheme but is not a returnable
// category, so a text matching only urgent keywords still lands in the
// Administrative default.
func categorize(text string) models.Category {
	best := models.CategoryAdministrative
	bestScore := 0
	for _, cat := range models.Categories {
		score := 0
		for _, kw := range categoryKeywords[cat] {
			score += strings.Count(text, kw)
		}
		if score > bestScore {
			best = cat
			bestScore = score
		}
	}
	return best
}

// urgencyScore computes the 0–10 urgency for the combined lower-cased text
// and the raw subject line. Term checks are substring presence, not count.
func urgencyScore(text, rawSubject string) float64 {
	score := 0.0

	for _, term := range highUrgencyTerms {
		if strings.Contains(text, term) {
			score += 3.0
		}
	}
	for _, term := range mediumUrgencyTerms {
		if strings.Contains(text, term) {
			score += 2.0
		}
	}
	for _, term := range timeSensitiveTerms {
		if strings.Contains(text, term) {
			score += 1.5
		}
	}

	// Shouting subject lines signal urgency.
	if isAllUpper(rawSubject) && len(rawSubject) > 5 {
		score += 2.0
	}

	// Exclamation marks, capped at three.
	marks := strings.Count(text, "!")
	if marks > 3 {
		marks = 3
	}
	score += float64(marks) * 0.5

	return models.ClampUrgency(score)
}

// isAllUpper reports whether s contains at least one cased character and no
// lower-case ones.
func isAllUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

// associate collects the substitute tokens of every tracked individual
// whose real name or grade level appears in the text. An empty result means
// the message is general.
func (r *RuleClassifier) associate(text string) models.Association {
	var tokens []string
	for _, s := range r.codec.Students() {
		if strings.Contains(text, strings.ToLower(s.RealName)) {
			tokens = append(tokens, s.Token)
			continue
		}
		if grade := strings.ToLower(s.Grade); grade != "" && strings.Contains(text, grade) {
			tokens = append(tokens, s.Token)
		}
	}
	return models.NewAssociation(tokens...)
}

// extractKeyInfo pulls date-like substrings, dollar amounts, phone numbers,
// and action sentences out of the text.
func extractKeyInfo(text string) (dates, amounts, contacts, actions []string) {
	for _, re := range []*regexp.Regexp{dateSlashRe, dateHyphenRe, dateMonthRe} {
		dates = append(dates, re.FindAllString(text, -1)...)
	}
	dates = dedupCap(dates, 5)

	amounts = dedupCap(amountRe.FindAllString(text, -1), 3)
	contacts = phoneRe.FindAllString(text, -1)

	for _, sentence := range strings.Split(text, ".") {
		for _, word := range actionWords {
			if strings.Contains(sentence, word) {
				actions = append(actions, strings.TrimSpace(sentence))
				break
			}
		}
		if len(actions) == 3 {
			break
		}
	}
	return dates, amounts, contacts, actions
}

// dedupCap removes duplicates preserving first-seen order and truncates.
func dedupCap(in []string, max int) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	return out
}

// summarize builds the one-line templated summary: category tag, sender
// display name, subject framed through the softening substitutions, and a
// snippet preview when the snippet carries enough content.
func summarize(msg models.Message, category models.Category) string {
	subject := msg.Subject
	if subject == "" {
		subject = "No Subject"
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(category))
	b.WriteString("] ")
	if name := msg.SenderName(); name != "" {
		b.WriteString(name)
	}
	b.WriteString(": ")

	lower := strings.ToLower(subject)
	switch {
	case category == models.CategoryBehavioral && containsAny(lower, "incident", "behavior", "discipline"):
		reframed := strings.ReplaceAll(subject, "Incident", "situation")
		reframed = strings.ReplaceAll(reframed, "INCIDENT", "situation")
		b.WriteString("Partnership opportunity regarding ")
		b.WriteString(reframed)
	case category == models.CategoryAcademic && containsAny(lower, "failing", "poor", "low"):
		reframed := strings.ReplaceAll(subject, "failing", "needs support in")
		reframed = strings.ReplaceAll(reframed, "poor", "developing in")
		b.WriteString("Academic support opportunity: ")
		b.WriteString(reframed)
	default:
		b.WriteString(subject)
	}

	if len(msg.Snippet) > 20 {
		softened := msg.Snippet
		for _, sub := range summarySoftening {
			softened = strings.ReplaceAll(softened, sub.harsh, sub.supportive)
		}
		if len(softened) > 100 {
			softened = models.Truncate(softened, 100) + "..."
		}
		b.WriteString(" | ")
		b.WriteString(softened)
	}

	return b.String()
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
