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
	"log/slog"

	"github.com/bcem/triage/internal/models"
)

// UrgentThreshold is the urgency score at and above which a message counts
// as urgent.
const UrgentThreshold = 7.0

// Orchestrator runs per-message classification across a batch. Each message
// gets exactly one classification attempt — the AI path with its built-in
// rule fallback, never both counted.
type Orchestrator struct {
	classifier *AIClassifier
}

// NewOrchestrator creates a batch orchestrator over the given classifier.
func NewOrchestrator(classifier *AIClassifier) *Orchestrator {
	return &Orchestrator{classifier: classifier}
}

// ClassifyBatch classifies every message in input order and merges the
// result onto each record. Identical messages are classified independently;
// no deduplication happens here.
func (o *Orchestrator) ClassifyBatch(ctx context.Context, msgs []models.Message) []models.ClassifiedMessage {
	classified := make([]models.ClassifiedMessage, 0, len(msgs))

	for _, msg := range msgs {
		res := o.classifier.Classify(ctx, msg)
		classified = append(classified, models.Classify(msg, res))
	}

	aiCount := 0
	for _, cm := range classified {
		if cm.Method == models.MethodAI {
			aiCount++
		}
	}
	slog.Info("batch classification complete",
		"total", len(classified),
		"ai", aiCount,
		"rules", len(classified)-aiCount,
	)

	return classified
}

// FilterUrgent returns all records at or above the threshold, preserving
// input order.
func FilterUrgent(classified []models.ClassifiedMessage, threshold float64) []models.ClassifiedMessage {
	var urgent []models.ClassifiedMessage
	for _, cm := range classified {
		if cm.UrgencyScore >= threshold {
			urgent = append(urgent, cm)
		}
	}
	return urgent
}
