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

// School Mail Triage
//
// Entry point for the triage pipeline. One subcommand per scheduled job:
//
//	process  - classify school mail since academic-year start, alert on urgent items
//	digest   - generate and send the weekly family digest
//	urgent   - quick 3-day lookback, print urgent items
//	index    - bulk classify and archive the academic year to Postgres
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/bcem/triage/internal/classify"
	"github.com/bcem/triage/internal/config"
	"github.com/bcem/triage/internal/dedup"
	"github.com/bcem/triage/internal/digest"
	"github.com/bcem/triage/internal/gmail"
	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/privacy"
	"github.com/bcem/triage/internal/store"
)

func main() {
	// Local development keeps secrets in .env; absence is fine.
	_ = godotenv.Load()

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command := strings.ToLower(os.Args[1])

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"domains", len(cfg.SchoolDomains),
		"students", len(cfg.Students),
		"ai_enabled", cfg.OpenAIKey != "",
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise pipeline", "error", err)
		os.Exit(1)
	}

	switch command {
	case "process":
		err = app.runProcess(ctx)
	case "digest":
		err = app.runDigest(ctx)
	case "urgent":
		err = app.runUrgent(ctx)
	case "index":
		err = app.runIndex(ctx)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: triage <command>

commands:
  process    classify school mail since academic-year start, alert on urgent items
  digest     generate and send the weekly family digest
  urgent     check the last 3 days and print urgent items
  index      bulk classify and archive the academic year to Postgres`)
}

// app wires the pipeline components a command picks from.
type app struct {
	cfg          *config.Config
	codec        *privacy.Codec
	orchestrator *classify.Orchestrator
	renderer     *digest.Renderer
	mail         *gmail.Client
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	students := make([]privacy.Student, len(cfg.Students))
	for i, s := range cfg.Students {
		students[i] = privacy.Student{RealName: s.RealName, Token: s.Token, Grade: s.Grade}
	}
	codec := privacy.NewCodec(students)

	// A missing OpenAI key routes everything through the rule classifier.
	var completion classify.CompletionClient
	if cfg.OpenAIKey != "" {
		completion = openai.NewClient(cfg.OpenAIKey)
	} else {
		slog.Warn("no OpenAI key configured, using rule-based classification only")
	}
	classifier := classify.NewAIClassifier(completion, cfg.OpenAIModel, codec, classify.NewRuleClassifier(codec))

	mail, err := gmail.NewClient(ctx, gmailHTTPClient(ctx, cfg))
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:          cfg,
		codec:        codec,
		orchestrator: classify.NewOrchestrator(classifier),
		renderer:     digest.NewRenderer(codec),
		mail:         mail,
	}, nil
}

// gmailHTTPClient builds an authenticated HTTP client from the stored
// refresh token. Google's token endpoint mints access tokens on demand.
func gmailHTTPClient(ctx context.Context, cfg *config.Config) *http.Client {
	oc := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		Scopes: []string{
			"https://www.googleapis.com/auth/gmail.readonly",
			"https://www.googleapis.com/auth/gmail.send",
		},
	}
	return oc.Client(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
}

// runProcess classifies everything since academic-year start, skipping mail
// already handled in earlier runs, and alerts on urgent items.
func (a *app) runProcess(ctx context.Context) error {
	since := academicYearStart(time.Now())
	slog.Info("processing school mail", "since", since.Format("2006-01-02"))

	msgs, err := a.mail.FetchSince(ctx, a.cfg.SchoolDomains, since, a.cfg.FetchLimit)
	if err != nil {
		return err
	}

	msgs = a.filterSeen(ctx, msgs)
	if len(msgs) == 0 {
		slog.Info("no new mail to process")
		return nil
	}

	classified := a.orchestrator.ClassifyBatch(ctx, msgs)
	urgent := classify.FilterUrgent(classified, classify.UrgentThreshold)
	if len(urgent) == 0 {
		return nil
	}

	slog.Warn("urgent school mail found", "count", len(urgent))
	if len(a.cfg.UrgentRecipients) == 0 {
		return nil
	}

	// Alert with a digest rendered over just the urgent items.
	d := digest.Aggregate(urgent, digest.Window{Start: since, End: time.Now()})
	html, err := a.renderer.Render(d)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Urgent School Mail: %d items need attention", len(urgent))
	return a.deliver(ctx, a.cfg.UrgentRecipients, subject, html)
}

// runDigest aggregates the last week and sends the family digest. When an
// archive is configured and holds mail for the window, its classifications
// are reused instead of refetching and paying for reclassification.
func (a *app) runDigest(ctx context.Context) error {
	now := time.Now()
	window := digest.Window{Start: now.AddDate(0, 0, -7), End: now}

	classified, err := a.classifiedSince(ctx, window.Start, a.cfg.FetchLimit)
	if err != nil {
		return err
	}
	d := digest.Aggregate(classified, window)

	html, err := a.renderer.Render(d)
	if err != nil {
		return err
	}

	if len(a.cfg.SummaryRecipients) == 0 {
		slog.Warn("no summary recipients configured, digest not sent")
		return nil
	}
	return a.deliver(ctx, a.cfg.SummaryRecipients, a.renderer.Subject(d), html)
}

// runUrgent is the quick manual check: 3-day lookback, print what's urgent.
// A configured archive answers directly, already sorted by urgency;
// otherwise the window is fetched and classified live.
func (a *app) runUrgent(ctx context.Context) error {
	since := time.Now().AddDate(0, 0, -3)

	var urgent []models.ClassifiedMessage
	if a.cfg.DatabaseURL != "" {
		archive, closeArchive, err := a.openArchive(ctx)
		if err != nil {
			return err
		}
		defer closeArchive()
		urgent, err = archive.ListUrgentSince(ctx, since, classify.UrgentThreshold)
		if err != nil {
			return err
		}
	} else {
		msgs, err := a.mail.FetchSince(ctx, a.cfg.SchoolDomains, since, 20)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println("No recent emails found")
			return nil
		}
		urgent = classify.FilterUrgent(a.orchestrator.ClassifyBatch(ctx, msgs), classify.UrgentThreshold)
	}

	if len(urgent) == 0 {
		fmt.Println("No urgent communications found")
		return nil
	}

	fmt.Printf("Found %d urgent communications:\n", len(urgent))
	for _, cm := range urgent {
		fmt.Printf("  - %s (Urgency: %.1f/10)\n", cm.Subject, cm.UrgencyScore)
	}
	return nil
}

// runIndex bulk-classifies the academic year and archives it to Postgres.
// The archive is the whole point of this command, so a missing database is
// a hard failure rather than a degradation.
func (a *app) runIndex(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		return fmt.Errorf("index requires DATABASE_URL or database.url in config")
	}

	archive, closeArchive, err := a.openArchive(ctx)
	if err != nil {
		return err
	}
	defer closeArchive()

	since := academicYearStart(time.Now())
	msgs, err := a.mail.FetchSince(ctx, a.cfg.SchoolDomains, since, a.cfg.FetchLimit)
	if err != nil {
		return err
	}

	classified := a.orchestrator.ClassifyBatch(ctx, msgs)
	stored, err := archive.UpsertBatch(ctx, classified)
	if err != nil {
		return fmt.Errorf("archived %d of %d before failure: %w", stored, len(classified), err)
	}
	slog.Info("index complete", "archived", stored)
	return nil
}

// classifiedSince returns the classified batch for the window. A configured
// archive is consulted first: indexed mail is classified already, so reusing
// it skips the fetch and the model calls. An unreachable or empty archive
// falls back to fetching and classifying live.
func (a *app) classifiedSince(ctx context.Context, since time.Time, limit int64) ([]models.ClassifiedMessage, error) {
	if a.cfg.DatabaseURL != "" {
		archive, closeArchive, err := a.openArchive(ctx)
		if err != nil {
			slog.Warn("archive unavailable, fetching live", "error", err)
		} else {
			defer closeArchive()
			classified, err := archive.ListSince(ctx, since)
			if err != nil {
				slog.Warn("archive read failed, fetching live", "error", err)
			} else if len(classified) > 0 {
				slog.Info("reusing archived classifications", "count", len(classified))
				return classified, nil
			} else {
				slog.Info("archive empty for window, fetching live")
			}
		}
	}

	msgs, err := a.mail.FetchSince(ctx, a.cfg.SchoolDomains, since, limit)
	if err != nil {
		return nil, err
	}
	return a.orchestrator.ClassifyBatch(ctx, msgs), nil
}

// openArchive connects to Postgres and returns the archive plus its
// cleanup.
func (a *app) openArchive(ctx context.Context) (*store.Store, func(), error) {
	pool, err := pgxpool.New(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("create Postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	archive, err := store.NewStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return archive, pool.Close, nil
}

// filterSeen drops messages already handled in earlier runs. Redis being
// unconfigured or unreachable disables dedup with a warning; processing
// continues either way.
func (a *app) filterSeen(ctx context.Context, msgs []models.Message) []models.Message {
	if a.cfg.RedisURL == "" {
		slog.Warn("no Redis configured, processing without dedup")
		return msgs
	}
	opt, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		slog.Warn("invalid Redis URL, processing without dedup", "error", err)
		return msgs
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	filter := dedup.NewFilter(rdb)
	fresh := make([]models.Message, 0, len(msgs))
	for _, msg := range msgs {
		isNew, err := filter.IsNew(ctx, msg.ID)
		if err != nil {
			slog.Warn("dedup check failed, processing without dedup", "error", err)
			return msgs
		}
		if isNew {
			fresh = append(fresh, msg)
		}
	}
	slog.Info("dedup filtered batch", "fetched", len(msgs), "new", len(fresh))
	return fresh
}

// deliver sends the HTML email to every recipient, counting failures
// instead of stopping at the first.
func (a *app) deliver(ctx context.Context, recipients []config.Recipient, subject, html string) error {
	sent := 0
	for _, r := range recipients {
		if err := a.mail.Send(ctx, r.Address, subject, html); err != nil {
			slog.Error("delivery failed", "to", r.Address, "error", err)
			continue
		}
		sent++
	}
	slog.Info("delivery complete", "sent", sent, "recipients", len(recipients))
	if sent == 0 {
		return fmt.Errorf("all %d deliveries failed", len(recipients))
	}
	return nil
}

// academicYearStart returns July 1 of the current school year: dates before
// July pivot to the previous calendar year.
func academicYearStart(now time.Time) time.Time {
	year := now.Year()
	if now.Month() < time.July {
		year--
	}
	return time.Date(year, time.July, 1, 0, 0, 0, 0, now.Location())
}
