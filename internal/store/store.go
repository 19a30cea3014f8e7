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

// Package store provides the Postgres archive of classified messages,
// written by the index command and queryable for historical digests.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/triage/internal/models"
)

// Store archives classified messages in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates the archive backed by the given Postgres pool.
// It ensures the classified_messages table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure archive schema: %w", err)
	}
	slog.Info("message archive initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS classified_messages (
			id              BIGSERIAL PRIMARY KEY,
			message_id      TEXT NOT NULL UNIQUE,
			thread_id       TEXT DEFAULT '',
			received_at     TIMESTAMPTZ NOT NULL,
			sender          TEXT DEFAULT '',
			subject         TEXT DEFAULT '',
			category        TEXT NOT NULL,
			urgency         DOUBLE PRECISION NOT NULL,
			association     TEXT[] DEFAULT '{}',
			key_dates       TEXT[] DEFAULT '{}',
			amounts         TEXT[] DEFAULT '{}',
			action_required BOOLEAN DEFAULT FALSE,
			summary         TEXT DEFAULT '',
			reasoning       TEXT DEFAULT '',
			method          TEXT NOT NULL,
			created_at      TIMESTAMPTZ DEFAULT NOW(),
			updated_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_msgs_received ON classified_messages(received_at);
		CREATE INDEX IF NOT EXISTS idx_msgs_category ON classified_messages(category);
		CREATE INDEX IF NOT EXISTS idx_msgs_urgency ON classified_messages(urgency);
	`)
	return err
}

// Upsert inserts or refreshes one classified message keyed on message_id,
// so re-running index over an overlapping window is harmless.
func (s *Store) Upsert(ctx context.Context, cm models.ClassifiedMessage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO classified_messages
			(message_id, thread_id, received_at, sender, subject, category,
			 urgency, association, key_dates, amounts, action_required,
			 summary, reasoning, method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (message_id) DO UPDATE SET
			category        = EXCLUDED.category,
			urgency         = EXCLUDED.urgency,
			association     = EXCLUDED.association,
			key_dates       = EXCLUDED.key_dates,
			amounts         = EXCLUDED.amounts,
			action_required = EXCLUDED.action_required,
			summary         = EXCLUDED.summary,
			reasoning       = EXCLUDED.reasoning,
			method          = EXCLUDED.method,
			updated_at      = NOW()
	`, cm.ID, cm.ThreadID, cm.Timestamp, cm.Sender, cm.Subject, string(cm.Category),
		cm.UrgencyScore, []string(cm.Association), cm.KeyDates, cm.Amounts,
		cm.ActionRequired, cm.Summary, cm.Reasoning, string(cm.Method))
	return err
}

// UpsertBatch archives a whole classified batch, stopping on the first
// failure so the caller sees how far indexing got.
func (s *Store) UpsertBatch(ctx context.Context, batch []models.ClassifiedMessage) (int, error) {
	for i, cm := range batch {
		if err := s.Upsert(ctx, cm); err != nil {
			return i, fmt.Errorf("archive message %s: %w", cm.ID, err)
		}
	}
	return len(batch), nil
}

// ListSince returns archived messages received after the cutoff, oldest
// first.
func (s *Store) ListSince(ctx context.Context, since time.Time) ([]models.ClassifiedMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT message_id, thread_id, received_at, sender, subject, category,
		       urgency, association, key_dates, amounts, action_required,
		       summary, reasoning, method
		FROM classified_messages
		WHERE received_at > $1
		ORDER BY received_at
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// ListUrgentSince returns archived messages at or above the urgency
// threshold received after the cutoff, most urgent first.
func (s *Store) ListUrgentSince(ctx context.Context, since time.Time, threshold float64) ([]models.ClassifiedMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT message_id, thread_id, received_at, sender, subject, category,
		       urgency, association, key_dates, amounts, action_required,
		       summary, reasoning, method
		FROM classified_messages
		WHERE received_at > $1 AND urgency >= $2
		ORDER BY urgency DESC, received_at
	`, since, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]models.ClassifiedMessage, error) {
	var out []models.ClassifiedMessage
	for rows.Next() {
		var (
			cm          models.ClassifiedMessage
			category    string
			method      string
			association []string
		)
		if err := rows.Scan(
			&cm.ID, &cm.ThreadID, &cm.Timestamp, &cm.Sender, &cm.Subject, &category,
			&cm.UrgencyScore, &association, &cm.KeyDates, &cm.Amounts, &cm.ActionRequired,
			&cm.Summary, &cm.Reasoning, &method,
		); err != nil {
			return nil, err
		}
		cm.Category = models.Category(category)
		cm.Method = models.Method(method)
		cm.Association = models.Association(association)
		out = append(out, cm)
	}
	return out, rows.Err()
}
