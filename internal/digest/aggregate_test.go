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

package digest

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bcem/triage/internal/models"
)

func record(id string, cat models.Category, urgency float64, tokens ...string) models.ClassifiedMessage {
	return models.ClassifiedMessage{
		Message: models.Message{ID: id, Subject: "subject " + id, Timestamp: time.Now()},
		ClassificationResult: models.ClassificationResult{
			Category:     cat,
			UrgencyScore: urgency,
			Association:  models.Association(tokens),
			Summary:      "summary " + id,
		},
	}
}

func testWindow() Window {
	end := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	return Window{Start: end.AddDate(0, 0, -7), End: end}
}

// TestAggregate_EmptyBatch verifies an empty input yields a well-formed
// zero digest with the quiet-week insight, not an error.
func TestAggregate_EmptyBatch(t *testing.T) {
	d := Aggregate(nil, testWindow())

	if d.ID == "" {
		t.Error("digest has no ID")
	}
	if d.TotalCount != 0 {
		t.Errorf("total = %d, want 0", d.TotalCount)
	}
	if d.CategoryCounts == nil || d.PerStudent == nil {
		t.Error("zero digest has nil maps")
	}
	if len(d.Insights) != 1 || !strings.Contains(d.Insights[0], "quiet") {
		t.Errorf("insights = %v, want single quiet-week line", d.Insights)
	}
	if len(d.ActionItems) != 0 || len(d.UpcomingEvents) != 0 || len(d.UrgentItems) != 0 {
		t.Error("zero digest carries derived content")
	}
}

// TestAggregate_BucketBoundaries pins the inclusive upper edges: exactly
// 3.0 is Low and exactly 7.0 is Medium, while 7.0 still counts as urgent.
func TestAggregate_BucketBoundaries(t *testing.T) {
	batch := []models.ClassifiedMessage{
		record("a", models.CategoryAcademic, 3.0),
		record("b", models.CategoryAcademic, 3.01),
		record("c", models.CategoryAcademic, 7.0),
		record("d", models.CategoryAcademic, 7.01),
	}

	d := Aggregate(batch, testWindow())

	if d.UrgencyBuckets.Low != 1 {
		t.Errorf("low = %d, want 1", d.UrgencyBuckets.Low)
	}
	if d.UrgencyBuckets.Medium != 2 {
		t.Errorf("medium = %d, want 2", d.UrgencyBuckets.Medium)
	}
	if d.UrgencyBuckets.High != 1 {
		t.Errorf("high = %d, want 1", d.UrgencyBuckets.High)
	}
	if len(d.UrgentItems) != 2 {
		t.Errorf("urgent = %d, want 2 (7.0 is urgent despite sitting in the Medium bucket)", len(d.UrgentItems))
	}
}

// TestAggregate_FanOut verifies a multi-student record counts fully for
// each named individual and a general record only in the general bucket.
func TestAggregate_FanOut(t *testing.T) {
	batch := []models.ClassifiedMessage{
		record("both", models.CategoryCalendar, 2.0, "Student_Alpha", "Student_Beta"),
		record("alpha", models.CategoryAcademic, 8.0, "Student_Alpha"),
		record("general", models.CategoryAdministrative, 1.0),
	}

	d := Aggregate(batch, testWindow())

	if d.GeneralCount != 1 {
		t.Errorf("general = %d, want 1", d.GeneralCount)
	}
	alpha := d.PerStudent["Student_Alpha"]
	if alpha == nil || alpha.Count != 2 {
		t.Fatalf("alpha sub-aggregate = %+v, want count 2", alpha)
	}
	if alpha.UrgentCount != 1 {
		t.Errorf("alpha urgent = %d, want 1", alpha.UrgentCount)
	}
	beta := d.PerStudent["Student_Beta"]
	if beta == nil || beta.Count != 1 {
		t.Fatalf("beta sub-aggregate = %+v, want count 1", beta)
	}
	if alpha.CategoryCounts[models.CategoryCalendar] != 1 || alpha.CategoryCounts[models.CategoryAcademic] != 1 {
		t.Errorf("alpha categories = %v", alpha.CategoryCounts)
	}
}

// TestAggregate_SchoolsContacted verifies distinct sender domains collect
// into a sorted list, skipping senders with no parseable address.
func TestAggregate_SchoolsContacted(t *testing.T) {
	a := record("a", models.CategoryAcademic, 1.0)
	a.Sender = "Office <office@ROOSEVELT.k12.us>"
	b := record("b", models.CategoryAcademic, 1.0)
	b.Sender = "Ms. Smith <smith@lincoln.edu>"
	c := record("c", models.CategoryCalendar, 1.0)
	c.Sender = "PTA <pta@lincoln.edu>"
	noAddr := record("d", models.CategoryAdministrative, 1.0)
	noAddr.Sender = "District Robocall"

	d := Aggregate([]models.ClassifiedMessage{a, b, c, noAddr}, testWindow())

	want := []string{"lincoln.edu", "roosevelt.k12.us"}
	if !reflect.DeepEqual(d.Schools, want) {
		t.Errorf("schools = %v, want %v", d.Schools, want)
	}

	if empty := Aggregate(nil, testWindow()); len(empty.Schools) != 0 {
		t.Errorf("empty batch schools = %v", empty.Schools)
	}
}

// TestAggregate_RecentRankedAndCapped verifies per-student recents rank by
// urgency descending with stable ties, keeping only the top five.
func TestAggregate_RecentRankedAndCapped(t *testing.T) {
	var batch []models.ClassifiedMessage
	scores := []float64{1, 9, 5, 5, 3, 8, 2}
	for i, s := range scores {
		batch = append(batch, record(fmt.Sprintf("m%d", i), models.CategoryAcademic, s, "Student_Alpha"))
	}

	d := Aggregate(batch, testWindow())

	recent := d.PerStudent["Student_Alpha"].Recent
	if len(recent) != 5 {
		t.Fatalf("recent = %d items, want 5", len(recent))
	}
	want := []string{"subject m1", "subject m5", "subject m2", "subject m3", "subject m4"}
	for i, r := range recent {
		if r.Subject != want[i] {
			t.Errorf("recent[%d] = %q, want %q", i, r.Subject, want[i])
		}
	}
}

// TestAggregate_Insights covers the independently-triggered insight rules.
func TestAggregate_Insights(t *testing.T) {
	t.Run("high volume and dominance", func(t *testing.T) {
		var batch []models.ClassifiedMessage
		for i := 0; i < 21; i++ {
			batch = append(batch, record(fmt.Sprintf("m%d", i), models.CategoryAcademic, 1.0))
		}
		d := Aggregate(batch, testWindow())

		if !hasInsight(d, "High communication week with 21 emails") {
			t.Errorf("missing volume insight: %v", d.Insights)
		}
		if !hasInsight(d, "Academic communications dominated this week (21/21 emails)") {
			t.Errorf("missing dominance insight: %v", d.Insights)
		}
		if !hasInsight(d, "No urgent communications") {
			t.Errorf("missing all-clear insight: %v", d.Insights)
		}
	})

	t.Run("urgent cluster and financial", func(t *testing.T) {
		var batch []models.ClassifiedMessage
		for i := 0; i < 4; i++ {
			batch = append(batch, record(fmt.Sprintf("u%d", i), models.CategoryFinancial, 9.0))
		}
		batch = append(batch,
			record("f1", models.CategoryFinancial, 1.0),
			record("f2", models.CategoryFinancial, 1.0),
		)
		d := Aggregate(batch, testWindow())

		if !hasInsight(d, "Multiple urgent items this week (4)") {
			t.Errorf("missing urgent-cluster insight: %v", d.Insights)
		}
		if !hasInsight(d, "Multiple financial communications (6)") {
			t.Errorf("missing financial insight: %v", d.Insights)
		}
		if hasInsight(d, "No urgent") {
			t.Errorf("all-clear present despite urgent items: %v", d.Insights)
		}
	})

	t.Run("quiet week below five", func(t *testing.T) {
		d := Aggregate([]models.ClassifiedMessage{
			record("a", models.CategoryAcademic, 1.0),
		}, testWindow())
		if !hasInsight(d, "Quiet communication week") {
			t.Errorf("missing quiet insight: %v", d.Insights)
		}
	})

	t.Run("no dominance below half", func(t *testing.T) {
		d := Aggregate([]models.ClassifiedMessage{
			record("a", models.CategoryAcademic, 1.0),
			record("b", models.CategoryFinancial, 1.0),
		}, testWindow())
		if hasInsight(d, "dominated") {
			t.Errorf("dominance fired at exactly half: %v", d.Insights)
		}
	})
}

// TestAggregate_ActionItems verifies priority assignment, the verb gate for
// medium urgency, stable descending order, and the cap of ten.
func TestAggregate_ActionItems(t *testing.T) {
	sign := record("sign", models.CategoryAdministrative, 5.0)
	sign.Subject = "Please sign the permission slip"

	noVerb := record("noverb", models.CategoryAdministrative, 5.0)
	noVerb.Subject = "Weekly newsletter"
	noVerb.Summary = "General updates from school."

	verbInSummary := record("pay", models.CategoryFinancial, 4.0)
	verbInSummary.Subject = "Lunch account"
	verbInSummary.Summary = "Pay the outstanding balance."

	batch := []models.ClassifiedMessage{
		noVerb,
		record("high1", models.CategoryBehavioral, 8.0),
		sign,
		verbInSummary,
		record("high2", models.CategoryFinancial, 9.5),
	}

	d := Aggregate(batch, testWindow())

	if len(d.ActionItems) != 4 {
		t.Fatalf("got %d action items, want 4: %+v", len(d.ActionItems), d.ActionItems)
	}
	wantOrder := []string{"subject high2", "subject high1", "Please sign the permission slip", "Lunch account"}
	for i, item := range d.ActionItems {
		if item.Subject != wantOrder[i] {
			t.Errorf("item[%d] = %q, want %q", i, item.Subject, wantOrder[i])
		}
	}
	if d.ActionItems[0].Priority != "High" || d.ActionItems[2].Priority != "Medium" {
		t.Errorf("priorities = [%s %s %s %s]",
			d.ActionItems[0].Priority, d.ActionItems[1].Priority,
			d.ActionItems[2].Priority, d.ActionItems[3].Priority)
	}
}

// TestAggregate_ActionItemsCapped verifies the list never exceeds ten.
func TestAggregate_ActionItemsCapped(t *testing.T) {
	var batch []models.ClassifiedMessage
	for i := 0; i < 15; i++ {
		batch = append(batch, record(fmt.Sprintf("u%d", i), models.CategoryFinancial, 8.0))
	}

	d := Aggregate(batch, testWindow())
	if len(d.ActionItems) != 10 {
		t.Errorf("got %d action items, want cap of 10", len(d.ActionItems))
	}
}

// TestAggregate_UpcomingEvents verifies only calendar records with dates
// qualify, dates truncate to three, and the list caps at eight in order.
func TestAggregate_UpcomingEvents(t *testing.T) {
	withDates := record("trip", models.CategoryCalendar, 2.0, "Student_Alpha")
	withDates.KeyDates = []string{"10/01/2026", "10/02/2026", "10/03/2026", "10/04/2026"}

	noDates := record("assembly", models.CategoryCalendar, 2.0)

	notCalendar := record("fees", models.CategoryFinancial, 2.0)
	notCalendar.KeyDates = []string{"10/05/2026"}

	d := Aggregate([]models.ClassifiedMessage{withDates, noDates, notCalendar}, testWindow())

	if len(d.UpcomingEvents) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(d.UpcomingEvents), d.UpcomingEvents)
	}
	ev := d.UpcomingEvents[0]
	if ev.Subject != "subject trip" {
		t.Errorf("event subject = %q", ev.Subject)
	}
	if len(ev.Dates) != 3 {
		t.Errorf("event dates = %v, want 3", ev.Dates)
	}
}

func TestAggregate_EventsCapped(t *testing.T) {
	var batch []models.ClassifiedMessage
	for i := 0; i < 12; i++ {
		cm := record(fmt.Sprintf("e%d", i), models.CategoryCalendar, 1.0)
		cm.KeyDates = []string{"11/01/2026"}
		batch = append(batch, cm)
	}

	d := Aggregate(batch, testWindow())
	if len(d.UpcomingEvents) != 8 {
		t.Fatalf("got %d events, want cap of 8", len(d.UpcomingEvents))
	}
	if d.UpcomingEvents[0].Subject != "subject e0" {
		t.Errorf("events not in input order: first = %q", d.UpcomingEvents[0].Subject)
	}
}

func hasInsight(d *Digest, substr string) bool {
	for _, in := range d.Insights {
		if strings.Contains(in, substr) {
			return true
		}
	}
	return false
}
