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
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/bcem/triage/internal/models"
	"github.com/bcem/triage/internal/privacy"
)

// Renderer turns a Digest into the HTML family email. Substitute tokens are
// decoded to real names here and nowhere else — everything upstream of the
// renderer works on tokens only.
type Renderer struct {
	codec *privacy.Codec
	tmpl  *template.Template
}

// NewRenderer builds a renderer around the given name codec.
func NewRenderer(codec *privacy.Codec) *Renderer {
	return &Renderer{
		codec: codec,
		tmpl:  template.Must(template.New("digest").Parse(digestTemplate)),
	}
}

// Subject builds the digest email subject line. The wording shifts when
// urgent items are present.
func (r *Renderer) Subject(d *Digest) string {
	if n := len(d.UrgentItems); n > 0 {
		return fmt.Sprintf("Weekly School Digest: %d emails, %d urgent", d.TotalCount, n)
	}
	return fmt.Sprintf("Weekly School Digest: %d school emails", d.TotalCount)
}

// Render produces the full HTML document for the digest.
func (r *Renderer) Render(d *Digest) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, r.viewModel(d)); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}

// --- View model ---
//
// Built eagerly so the template stays purely mechanical: names decoded,
// summaries truncated, urgency CSS classes resolved, map iteration pinned
// to a stable order.

type digestView struct {
	PeriodStart string
	PeriodEnd   string
	TotalCount  int
	UrgentCount int
	ActionCount int
	SchoolCount int
	Insights    []string
	UrgentItems []urgentView
	ActionItems []actionView
	Students    []studentView
	Events      []eventView
	GeneratedAt string
}

type urgentView struct {
	Subject  string
	Category models.Category
	Urgency  float64
	Summary  string
}

type actionView struct {
	Priority string
	High     bool
	Subject  string
	Student  string
	Category models.Category
	Summary  string
}

type studentView struct {
	Name       string
	Count      int
	Categories string
	Recent     []recentView
}

type recentView struct {
	Subject  string
	Date     string
	Category models.Category
	Urgency  float64
	Class    string
}

type eventView struct {
	Subject string
	Student string
	Dates   string
	Summary string
}

func (r *Renderer) viewModel(d *Digest) digestView {
	v := digestView{
		PeriodStart: d.Window.Start.Format("2006-01-02"),
		PeriodEnd:   d.Window.End.Format("2006-01-02"),
		TotalCount:  d.TotalCount,
		UrgentCount: len(d.UrgentItems),
		ActionCount: len(d.ActionItems),
		SchoolCount: len(d.Schools),
		Insights:    d.Insights,
		GeneratedAt: d.GeneratedAt.Format("2006-01-02 15:04:05"),
	}

	for _, cm := range d.UrgentItems {
		v.UrgentItems = append(v.UrgentItems, urgentView{
			Subject:  cm.Subject,
			Category: cm.Category,
			Urgency:  cm.UrgencyScore,
			Summary:  truncate(cm.Summary, 150),
		})
	}

	for _, item := range d.ActionItems {
		v.ActionItems = append(v.ActionItems, actionView{
			Priority: item.Priority,
			High:     item.Priority == "High",
			Subject:  item.Subject,
			Student:  r.displayAssociation(item.Association),
			Category: item.Category,
			Summary:  truncate(item.Summary, 120),
		})
	}

	tokens := make([]string, 0, len(d.PerStudent))
	for token := range d.PerStudent {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	for _, token := range tokens {
		sd := d.PerStudent[token]
		sv := studentView{
			Name:       r.codec.Decode(token),
			Count:      sd.Count,
			Categories: categoryLine(sd.CategoryCounts),
		}
		for i, item := range sd.Recent {
			if i == 3 {
				break
			}
			sv.Recent = append(sv.Recent, recentView{
				Subject:  item.Subject,
				Date:     item.Date.Format("2006-01-02"),
				Category: item.Category,
				Urgency:  item.Urgency,
				Class:    urgencyClass(item.Urgency),
			})
		}
		v.Students = append(v.Students, sv)
	}

	for _, ev := range d.UpcomingEvents {
		v.Events = append(v.Events, eventView{
			Subject: ev.Subject,
			Student: r.displayAssociation(ev.Association),
			Dates:   strings.Join(ev.Dates, ", "),
			Summary: ev.Summary,
		})
	}

	return v
}

func (r *Renderer) displayAssociation(a models.Association) string {
	if a.General() {
		return models.AllStudents
	}
	names := make([]string, len(a))
	for i, token := range a {
		names[i] = r.codec.Decode(token)
	}
	return strings.Join(names, ", ")
}

func categoryLine(counts map[models.Category]int) string {
	var parts []string
	for _, cat := range models.Categories {
		if n := counts[cat]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", cat, n))
		}
	}
	return strings.Join(parts, ", ")
}

func urgencyClass(score float64) string {
	switch {
	case score >= 7:
		return "urgent"
	case score >= 4:
		return "medium"
	default:
		return ""
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return models.Truncate(s, max) + "..."
}

const digestTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Weekly Family School Digest</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 600px; margin: 0 auto; background: white; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
        .header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 30px; text-align: center; border-radius: 8px 8px 0 0; }
        .header h1 { margin: 0; font-size: 28px; }
        .header p { margin: 10px 0 0 0; opacity: 0.9; }
        .content { padding: 30px; }
        .overview { background: #f8f9fa; padding: 20px; border-radius: 6px; margin-bottom: 30px; }
        .stats { display: flex; justify-content: space-around; text-align: center; }
        .stat { flex: 1; }
        .stat-number { font-size: 24px; font-weight: bold; color: #667eea; }
        .stat-label { font-size: 12px; color: #666; text-transform: uppercase; }
        .section { margin-bottom: 30px; }
        .section h2 { color: #333; border-bottom: 2px solid #667eea; padding-bottom: 10px; }
        .student-card { background: #fff; border: 1px solid #e0e0e0; border-radius: 6px; padding: 20px; margin-bottom: 20px; }
        .student-name { font-size: 18px; font-weight: bold; color: #333; margin-bottom: 10px; }
        .email-item { background: #f8f9fa; padding: 12px; border-left: 4px solid #667eea; margin-bottom: 10px; }
        .urgent { border-left-color: #dc3545 !important; }
        .medium { border-left-color: #ffc107 !important; }
        .action-item { background: #fff3cd; border: 1px solid #ffeaa7; padding: 15px; border-radius: 6px; margin-bottom: 15px; }
        .action-priority-high { background: #f8d7da; border-color: #f5c6cb; }
        .insight { background: #e3f2fd; border-left: 4px solid #2196f3; padding: 15px; margin-bottom: 15px; }
        .footer { text-align: center; padding: 20px; color: #666; font-size: 12px; background: #f8f9fa; }
        @media (max-width: 480px) { .stats { flex-direction: column; } .stat { margin-bottom: 15px; } }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Weekly School Digest</h1>
            <p>Your family school communication summary</p>
            <p>{{.PeriodStart}} to {{.PeriodEnd}}</p>
        </div>
        <div class="content">
            <div class="overview">
                <div class="stats">
                    <div class="stat">
                        <div class="stat-number">{{.TotalCount}}</div>
                        <div class="stat-label">Total Emails</div>
                    </div>
                    <div class="stat">
                        <div class="stat-number">{{.UrgentCount}}</div>
                        <div class="stat-label">Urgent Items</div>
                    </div>
                    <div class="stat">
                        <div class="stat-number">{{.ActionCount}}</div>
                        <div class="stat-label">Action Items</div>
                    </div>
                    <div class="stat">
                        <div class="stat-number">{{.SchoolCount}}</div>
                        <div class="stat-label">Schools</div>
                    </div>
                </div>
            </div>
{{- if .Insights}}
            <div class="section">
                <h2>This Week's Insights</h2>
{{- range .Insights}}
                <div class="insight">{{.}}</div>
{{- end}}
            </div>
{{- end}}
{{- if .UrgentItems}}
            <div class="section">
                <h2>Urgent Items Requiring Attention</h2>
{{- range .UrgentItems}}
                <div class="email-item urgent">
                    <strong>{{.Subject}}</strong><br>
                    <small>Category: {{.Category}} | Urgency: {{printf "%.1f" .Urgency}}/10</small><br>
                    {{.Summary}}
                </div>
{{- end}}
            </div>
{{- end}}
{{- if .ActionItems}}
            <div class="section">
                <h2>Action Items This Week</h2>
{{- range .ActionItems}}
                <div class="{{if .High}}action-priority-high{{else}}action-item{{end}}">
                    <strong>{{.Priority}} Priority:</strong> {{.Subject}}<br>
                    <small>Student: {{.Student}} | Category: {{.Category}}</small><br>
                    {{.Summary}}
                </div>
{{- end}}
            </div>
{{- end}}
{{- if .Students}}
            <div class="section">
                <h2>By Student</h2>
{{- range .Students}}
                <div class="student-card">
                    <div class="student-name">{{.Name}}</div>
                    <p><strong>{{.Count}} emails</strong> | Categories: {{.Categories}}</p>
{{- range .Recent}}
                    <div class="email-item {{.Class}}">
                        <strong>{{.Subject}}</strong> <small>({{.Date}})</small><br>
                        <small>Category: {{.Category}} | Urgency: {{printf "%.1f" .Urgency}}/10</small>
                    </div>
{{- end}}
                </div>
{{- end}}
            </div>
{{- end}}
{{- if .Events}}
            <div class="section">
                <h2>Upcoming Events and Important Dates</h2>
{{- range .Events}}
                <div class="email-item">
                    <strong>{{.Subject}}</strong><br>
                    <small>Student: {{.Student}} | Dates: {{.Dates}}</small><br>
                    {{.Summary}}
                </div>
{{- end}}
            </div>
{{- end}}
        </div>
        <div class="footer">
            <p>Generated {{.GeneratedAt}}</p>
        </div>
    </div>
</body>
</html>
`
