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

// Package gmail is the message source and sender: it fetches school mail
// through the Gmail API and delivers digests and alerts.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/bcem/triage/internal/models"
)

// DefaultFetchLimit caps a single list call when the config does not set one.
const DefaultFetchLimit = 100

// Client wraps the Gmail API for the two operations the pipeline needs:
// fetching school mail and sending rendered digests.
type Client struct {
	service *gmailapi.Service
}

// NewClient builds a client over an authenticated HTTP client (an oauth2
// token source wrapped by oauth2.Config.Client).
func NewClient(ctx context.Context, httpClient *http.Client) (*Client, error) {
	service, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Client{service: service}, nil
}

// BuildQuery assembles the Gmail search expression for school mail:
// "from:domainA OR from:domainB after:YYYY/MM/DD". An empty domain list
// yields an empty query, which callers treat as nothing to fetch.
func BuildQuery(domains []string, since time.Time) string {
	if len(domains) == 0 {
		return ""
	}
	parts := make([]string, len(domains))
	for i, d := range domains {
		parts[i] = "from:" + d
	}
	return strings.Join(parts, " OR ") + " after:" + since.Format("2006/01/02")
}

// FetchSince lists and hydrates all school mail received after the cutoff.
// No configured domains means an empty batch, logged distinctly from a
// window that simply matched nothing. Messages that fail to hydrate are
// skipped with a warning; the rest of the batch still comes back.
func (c *Client) FetchSince(ctx context.Context, domains []string, since time.Time, limit int64) ([]models.Message, error) {
	query := BuildQuery(domains, since)
	if query == "" {
		slog.Warn("no school domains configured, nothing to fetch")
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultFetchLimit
	}

	slog.Info("fetching school mail", "query", query, "limit", limit)

	resp, err := c.service.Users.Messages.List("me").
		Q(query).
		MaxResults(limit).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if len(resp.Messages) == 0 {
		slog.Info("no school mail in window")
		return nil, nil
	}

	msgs := make([]models.Message, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		full, err := c.service.Users.Messages.Get("me", ref.Id).
			Format("full").
			Context(ctx).
			Do()
		if err != nil {
			slog.Warn("failed to hydrate message, skipping", "message_id", ref.Id, "error", err)
			continue
		}
		msgs = append(msgs, parseMessage(full))
	}

	slog.Info("fetched school mail", "listed", len(resp.Messages), "hydrated", len(msgs))
	return msgs, nil
}

// Send delivers an HTML email through the authenticated account.
func (c *Client) Send(ctx context.Context, to, subject, htmlBody string) error {
	var sb strings.Builder
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(htmlBody)

	msg := &gmailapi.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(sb.String())),
	}

	sent, err := c.service.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}
	slog.Info("email sent", "to", to, "message_id", sent.Id)
	return nil
}
