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

package classify

import (
	"context"
	"testing"

	"github.com/bcem/triage/internal/models"
)

// TestBatch_OrderPreserving verifies classified output matches input order
// and every message gets exactly one result.
func TestBatch_OrderPreserving(t *testing.T) {
	o := NewOrchestrator(testAI(nil))

	msgs := []models.Message{
		{ID: "m1", Subject: "Newsletter"},
		{ID: "m2", Subject: "URGENT INCIDENT", BodyText: "incident at school, please respond immediately"},
		{ID: "m3", Subject: "Book fair schedule"},
	}

	classified := o.ClassifyBatch(context.Background(), msgs)

	if len(classified) != len(msgs) {
		t.Fatalf("got %d records, want %d", len(classified), len(msgs))
	}
	for i, cm := range classified {
		if cm.ID != msgs[i].ID {
			t.Errorf("position %d holds %q, want %q", i, cm.ID, msgs[i].ID)
		}
		if cm.Method == "" {
			t.Errorf("message %q has no provenance", cm.ID)
		}
	}
}

// TestBatch_DuplicatesClassifiedIndependently verifies no dedup at this layer.
func TestBatch_DuplicatesClassifiedIndependently(t *testing.T) {
	o := NewOrchestrator(testAI(nil))

	msg := models.Message{ID: "dup", Subject: "Payment reminder", BodyText: "payment due friday"}
	classified := o.ClassifyBatch(context.Background(), []models.Message{msg, msg})

	if len(classified) != 2 {
		t.Fatalf("got %d records, want 2 (no dedup)", len(classified))
	}
	if classified[0].UrgencyScore != classified[1].UrgencyScore {
		t.Error("identical messages classified differently")
	}
}

// TestFilterUrgent verifies threshold inclusion and order preservation.
func TestFilterUrgent(t *testing.T) {
	classified := []models.ClassifiedMessage{
		{Message: models.Message{ID: "low"}, ClassificationResult: models.ClassificationResult{UrgencyScore: 2.0}},
		{Message: models.Message{ID: "edge"}, ClassificationResult: models.ClassificationResult{UrgencyScore: 7.0}},
		{Message: models.Message{ID: "high"}, ClassificationResult: models.ClassificationResult{UrgencyScore: 9.5}},
	}

	urgent := FilterUrgent(classified, UrgentThreshold)

	if len(urgent) != 2 {
		t.Fatalf("got %d urgent, want 2", len(urgent))
	}
	if urgent[0].ID != "edge" || urgent[1].ID != "high" {
		t.Errorf("urgent order = [%s %s], want [edge high]", urgent[0].ID, urgent[1].ID)
	}
}

// TestFilterUrgent_Empty verifies an empty batch filters to empty.
func TestFilterUrgent_Empty(t *testing.T) {
	if got := FilterUrgent(nil, UrgentThreshold); len(got) != 0 {
		t.Errorf("got %d records from empty input", len(got))
	}
}
