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

// Package digest reduces a batch of classified messages into the periodic
// family digest: grouped statistics, derived insights, ranked action items,
// and a deduplicated upcoming-events list.
package digest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/triage/internal/models"
)

// actionVerbs promote medium-urgency records into action items when one
// appears in the subject or summary.
var actionVerbs = []string{"respond", "reply", "sign", "return", "submit", "pay", "attend", "confirm"}

const (
	maxActionItems   = 10
	maxEvents        = 8
	maxDatesPerEvent = 3
	maxRecentPerKid  = 5
)

// Window is the digest's reporting period.
type Window struct {
	Start time.Time
	End   time.Time
}

// Buckets counts messages per urgency band. Boundaries are inclusive on the
// upper edge: exactly 3.0 is Low, exactly 7.0 is Medium.
type Buckets struct {
	Low    int // score <= 3
	Medium int // 3 < score <= 7
	High   int // score > 7
}

// RecentItem is one ranked entry in a per-student sub-aggregate.
type RecentItem struct {
	Subject  string
	Category models.Category
	Urgency  float64
	Date     time.Time
	Summary  string
}

// StudentDigest is the sub-aggregate for one tracked individual, keyed by
// substitute token. A message naming several individuals contributes to
// each of their sub-aggregates independently.
type StudentDigest struct {
	Token          string
	Count          int
	CategoryCounts map[models.Category]int
	UrgentCount    int
	Recent         []RecentItem // top entries, ranked by urgency descending
}

// ActionItem is one ranked entry needing a family response.
type ActionItem struct {
	Priority     string // "High" or "Medium"
	Subject      string
	Category     models.Category
	Association  models.Association
	Summary      string
	UrgencyScore float64
}

// Event is one upcoming calendar entry extracted from the batch.
type Event struct {
	Subject     string
	Association models.Association
	Dates       []string
	Summary     string
}

// Digest is the aggregate over one reporting window. Created fresh per
// generation and never mutated after return.
type Digest struct {
	ID             string
	Window         Window
	GeneratedAt    time.Time
	TotalCount     int
	CategoryCounts map[models.Category]int
	UrgencyBuckets Buckets
	PerStudent     map[string]*StudentDigest
	GeneralCount   int
	Schools        []string // distinct sender domains, sorted
	UrgentItems    []models.ClassifiedMessage
	Insights       []string
	ActionItems    []ActionItem
	UpcomingEvents []Event
}

// Aggregate reduces the classified batch into a digest. An empty batch
// yields a well-formed digest with zero counts and a single quiet-week
// insight — never an error.
func Aggregate(classified []models.ClassifiedMessage, window Window) *Digest {
	d := &Digest{
		ID:             uuid.New().String(),
		Window:         window,
		GeneratedAt:    time.Now().UTC(),
		TotalCount:     len(classified),
		CategoryCounts: make(map[models.Category]int),
		PerStudent:     make(map[string]*StudentDigest),
	}

	if len(classified) == 0 {
		d.Insights = []string{"No school communications this week - enjoy the quiet time"}
		return d
	}

	schools := make(map[string]bool)
	for _, cm := range classified {
		d.CategoryCounts[cm.Category]++
		d.bucket(cm.UrgencyScore)

		if domain := cm.SenderDomain(); domain != "" {
			schools[domain] = true
		}

		if cm.UrgencyScore >= 7.0 {
			d.UrgentItems = append(d.UrgentItems, cm)
		}

		// Fan-out: a multi-student message counts fully for each named
		// individual; a general message counts only in the general bucket.
		if cm.Association.General() {
			d.GeneralCount++
			continue
		}
		for _, token := range cm.Association {
			d.studentDigest(token).add(cm)
		}
	}

	for domain := range schools {
		d.Schools = append(d.Schools, domain)
	}
	sort.Strings(d.Schools)

	for _, sd := range d.PerStudent {
		sd.rankRecent()
	}

	d.Insights = deriveInsights(classified, len(d.UrgentItems), d.CategoryCounts)
	d.ActionItems = extractActionItems(classified)
	d.UpcomingEvents = upcomingEvents(classified)

	return d
}

func (d *Digest) bucket(score float64) {
	switch {
	case score <= 3:
		d.UrgencyBuckets.Low++
	case score <= 7:
		d.UrgencyBuckets.Medium++
	default:
		d.UrgencyBuckets.High++
	}
}

func (d *Digest) studentDigest(token string) *StudentDigest {
	sd, ok := d.PerStudent[token]
	if !ok {
		sd = &StudentDigest{
			Token:          token,
			CategoryCounts: make(map[models.Category]int),
		}
		d.PerStudent[token] = sd
	}
	return sd
}

func (sd *StudentDigest) add(cm models.ClassifiedMessage) {
	sd.Count++
	sd.CategoryCounts[cm.Category]++
	if cm.UrgencyScore >= 7.0 {
		sd.UrgentCount++
	}
	sd.Recent = append(sd.Recent, RecentItem{
		Subject:  cm.Subject,
		Category: cm.Category,
		Urgency:  cm.UrgencyScore,
		Date:     cm.Timestamp,
		Summary:  cm.Summary,
	})
}

// rankRecent keeps the most urgent entries, ties in arrival order.
func (sd *StudentDigest) rankRecent() {
	sort.SliceStable(sd.Recent, func(i, j int) bool {
		return sd.Recent[i].Urgency > sd.Recent[j].Urgency
	})
	if len(sd.Recent) > maxRecentPerKid {
		sd.Recent = sd.Recent[:maxRecentPerKid]
	}
}

// deriveInsights produces the ordered, independently-triggered insight
// lines. Text is templated, never model-generated.
func deriveInsights(classified []models.ClassifiedMessage, urgentCount int, categoryCounts map[models.Category]int) []string {
	total := len(classified)
	var insights []string

	if total > 20 {
		insights = append(insights, fmt.Sprintf(
			"High communication week with %d emails - consider prioritizing urgent items", total))
	}
	if total < 5 {
		insights = append(insights,
			"Quiet communication week - good time to catch up on any pending items")
	}

	// Dominance: one category covering more than half the batch. Checked in
	// enumeration order so ties are deterministic.
	for _, cat := range models.Categories {
		if count := categoryCounts[cat]; count*2 > total {
			insights = append(insights, fmt.Sprintf(
				"%s communications dominated this week (%d/%d emails)", cat, count, total))
			break
		}
	}

	if urgentCount > 3 {
		insights = append(insights, fmt.Sprintf(
			"Multiple urgent items this week (%d) - may need immediate family discussion", urgentCount))
	}
	if urgentCount == 0 {
		insights = append(insights,
			"No urgent communications this week - good opportunity for planning ahead")
	}

	if financial := categoryCounts[models.CategoryFinancial]; financial > 2 {
		insights = append(insights, fmt.Sprintf(
			"Multiple financial communications (%d) - review payment deadlines", financial))
	}

	return insights
}

// extractActionItems builds the ranked action list: urgent records are High
// priority automatically; medium-urgency records qualify when an action
// verb appears in the subject or summary. Sorted by urgency descending with
// stable ties, capped at ten.
func extractActionItems(classified []models.ClassifiedMessage) []ActionItem {
	var items []ActionItem

	for _, cm := range classified {
		if cm.UrgencyScore >= 7.0 {
			items = append(items, actionItem(cm, "High"))
		}
	}
	for _, cm := range classified {
		if cm.UrgencyScore < 4.0 || cm.UrgencyScore >= 7.0 {
			continue
		}
		text := strings.ToLower(cm.Subject) + " " + strings.ToLower(cm.Summary)
		for _, verb := range actionVerbs {
			if strings.Contains(text, verb) {
				items = append(items, actionItem(cm, "Medium"))
				break
			}
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UrgencyScore > items[j].UrgencyScore
	})
	if len(items) > maxActionItems {
		items = items[:maxActionItems]
	}
	return items
}

func actionItem(cm models.ClassifiedMessage, priority string) ActionItem {
	return ActionItem{
		Priority:     priority,
		Subject:      cm.Subject,
		Category:     cm.Category,
		Association:  cm.Association,
		Summary:      cm.Summary,
		UrgencyScore: cm.UrgencyScore,
	}
}

// upcomingEvents collects calendar records that carry at least one
// extracted date, in input order, capped at eight with at most three dates
// each.
func upcomingEvents(classified []models.ClassifiedMessage) []Event {
	var events []Event
	for _, cm := range classified {
		if cm.Category != models.CategoryCalendar || len(cm.KeyDates) == 0 {
			continue
		}
		dates := cm.KeyDates
		if len(dates) > maxDatesPerEvent {
			dates = dates[:maxDatesPerEvent]
		}
		events = append(events, Event{
			Subject:     cm.Subject,
			Association: cm.Association,
			Dates:       dates,
			Summary:     cm.Summary,
		})
		if len(events) == maxEvents {
			break
		}
	}
	return events
}
