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

package gmail

import (
	"encoding/base64"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/bcem/triage/internal/models"
)

// parseMessage maps a full Gmail API message onto the internal model.
// Missing headers come back as empty strings; downstream treats them as
// such rather than erroring.
func parseMessage(msg *gmailapi.Message) models.Message {
	m := models.Message{
		ID:        msg.Id,
		ThreadID:  msg.ThreadId,
		Snippet:   msg.Snippet,
		Timestamp: time.UnixMilli(msg.InternalDate),
	}

	if msg.Payload == nil {
		return m
	}

	for _, h := range msg.Payload.Headers {
		switch h.Name {
		case "From":
			m.Sender = h.Value
		case "Subject":
			m.Subject = h.Value
		}
	}

	m.BodyText = extractBody(msg.Payload)
	return m
}

// extractBody walks the MIME tree and returns the message text, preferring
// text/plain over text/html at any depth.
func extractBody(payload *gmailapi.MessagePart) string {
	plain, html := walkParts(payload)
	if plain != "" {
		return plain
	}
	return html
}

func walkParts(part *gmailapi.MessagePart) (plain, html string) {
	if part == nil {
		return "", ""
	}

	if part.Body != nil && part.Body.Data != "" {
		switch part.MimeType {
		case "text/plain":
			plain = decodeBody(part.Body.Data)
		case "text/html":
			html = decodeBody(part.Body.Data)
		}
	}

	for _, child := range part.Parts {
		p, h := walkParts(child)
		if plain == "" {
			plain = p
		}
		if html == "" {
			html = h
		}
	}
	return plain, html
}

// decodeBody handles both padded and unpadded base64url — the API omits
// padding, but tolerating either costs nothing.
func decodeBody(data string) string {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}
