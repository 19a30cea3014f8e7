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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/privacy"
)

// DefaultModel is the completion model used when none is configured.
const DefaultModel = "gpt-4o-mini"

// maxBodyChars caps how much message body is sent to the model.
const maxBodyChars = 800

// systemPrompt frames every classification request. Student names are
// already replaced by substitute tokens before any text reaches the model.
const systemPrompt = `You are analyzing communications from educational institutions about children and teenagers. Maintain these principles:

1. CHILD-CENTERED: use supportive, non-judgmental language; frame challenges as opportunities for growth.
2. FAMILY-SCHOOL PARTNERSHIP: assume positive intent from teachers and administrators; emphasize shared goals.
3. PRIVACY: all student names are coded for privacy protection; never guess real identities.
4. DEVELOPMENTAL AWARENESS: recognize age-appropriate expectations for different grade levels.
5. SOLUTION-ORIENTED: focus on support strategies and next steps rather than problems.

Respond with JSON only, in this exact format:
{
  "category": "Academic|Administrative|Financial|Behavioral|Calendar",
  "urgency_score": 0.0-10.0,
  "student_association": "coded name(s), comma-separated, or All Students",
  "key_dates": ["date1", "date2"],
  "action_required": true|false,
  "summary": "one sentence family-friendly summary",
  "reasoning": "brief explanation of the categorization"
}`

// aiResponse is the strict 7-field contract expected from the model. Any
// deviation from this shape is a parse failure and triggers the fallback.
type aiResponse struct {
	Category           string   `json:"category"`
	UrgencyScore       float64  `json:"urgency_score"`
	StudentAssociation string   `json:"student_association"`
	KeyDates           []string `json:"key_dates"`
	ActionRequired     bool     `json:"action_required"`
	Summary            string   `json:"summary"`
	Reasoning          string   `json:"reasoning"`
}

// CompletionClient is the slice of the OpenAI client the classifier needs.
// Satisfied by *openai.Client.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// AIClassifier delegates classification to a language-model call and falls
// back to the rule-based classifier on any failure. Constructed once with
// its dependencies injected; a nil client means the fallback always runs.
type AIClassifier struct {
	client   CompletionClient
	model    string
	codec    *privacy.Codec
	fallback *RuleClassifier
}

// NewAIClassifier creates the AI-first classifier. client may be nil when
// no credential is configured — every message then takes the rule path.
func NewAIClassifier(client CompletionClient, model string, codec *privacy.Codec, fallback *RuleClassifier) *AIClassifier {
	if model == "" {
		model = DefaultModel
	}
	return &AIClassifier{
		client:   client,
		model:    model,
		codec:    codec,
		fallback: fallback,
	}
}

// Classify analyzes one message. Failures on the AI path are absorbed: the
// result then comes from the rule-based fallback with provenance "Rules".
// The caller never sees an error.
func (a *AIClassifier) Classify(ctx context.Context, msg models.Message) models.ClassificationResult {
	if a.client == nil {
		return a.fallback.Classify(msg)
	}

	res, err := a.classifyWithAI(ctx, msg)
	if err != nil {
		slog.Warn("AI classification failed, using rule fallback",
			"message_id", msg.ID,
			"error", err,
		)
		return a.fallback.Classify(msg)
	}
	return res
}

// classifyWithAI makes the single model request and parses the structured
// response. One request per message; no retry.
func (a *AIClassifier) classifyWithAI(ctx context.Context, msg models.Message) (models.ClassificationResult, error) {
	body := models.Truncate(a.codec.Scrub(msg.BodyText+" "+msg.Snippet), maxBodyChars)
	subject := a.codec.Scrub(msg.Subject)

	userPrompt := fmt.Sprintf("EMAIL TO ANALYZE:\nSubject: %s\nContent: %s", subject, body)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     a.model,
		MaxTokens: 300,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.ClassificationResult{}, fmt.Errorf("empty completion response")
	}

	parsed, err := parseAIResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return models.ClassificationResult{}, err
	}

	return models.ClassificationResult{
		Category:       models.ParseCategory(parsed.Category),
		UrgencyScore:   models.ClampUrgency(parsed.UrgencyScore),
		Association:    parseAssociation(parsed.StudentAssociation),
		KeyDates:       dedupCap(parsed.KeyDates, 5),
		ActionRequired: parsed.ActionRequired,
		Summary:        parsed.Summary,
		Reasoning:      parsed.Reasoning,
		Method:         models.MethodAI,
	}, nil
}

// parseAIResponse decodes the model output strictly as the 7-field JSON
// contract. Code fences are stripped first — some models wrap JSON despite
// instructions. Unknown fields or a missing category/summary fail the parse.
func parseAIResponse(raw string) (*aiResponse, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var parsed aiResponse
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}
	if parsed.Category == "" || parsed.Summary == "" {
		return nil, fmt.Errorf("model response missing required fields")
	}
	return &parsed, nil
}

// parseAssociation normalizes the model's free-text association into the
// set-valued field. "All Students" (or anything empty) means general.
func parseAssociation(s string) models.Association {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, models.AllStudents) {
		return nil
	}
	return models.NewAssociation(strings.Split(s, ",")...)
}
