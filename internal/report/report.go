// Package report renders the static HTML contributor summary.
package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ganot/contribsum/internal/domain/hierarchy"
)

//go:embed template.html
var templateHTML string

var reportTemplate = template.Must(template.New("report").Parse(templateHTML))

// Data is everything the report needs: the flattened display list, the
// per-ticket subtree contributor summary, and run metadata.
type Data struct {
	ProjectKey  string
	Items       []hierarchy.Item
	Summary     map[string]map[string]struct{}
	GeneratedAt time.Time
	RunID       string
}

// Generator renders reports with ticket links against one tracker base URL.
type Generator struct {
	baseURL string
	logger  *slog.Logger
}

// NewGenerator creates a report generator.
func NewGenerator(baseURL string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Generator{baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

type ticketView struct {
	Key              string
	Summary          string
	Level            int
	IsRoot           bool
	IndentRem        float64
	URL              string
	Contributors     []string
	ContributorCount int
	IssueType        string
	Status           string
	StatusClass      string
	StatusLabelClass string
}

type ticketRef struct {
	Key     string
	Summary string
	URL     string
}

type contributorView struct {
	Name        string
	TicketCount int
	Tickets     []ticketRef
}

type page struct {
	ProjectKey   string
	GeneratedAt  string
	RunID        string
	Tickets      []ticketView
	RootCount    int
	Contributors []contributorView
}

// Generate writes the rendered report to w.
func (g *Generator) Generate(w io.Writer, data Data) error {
	p := page{
		ProjectKey:  data.ProjectKey,
		GeneratedAt: data.GeneratedAt.Format("2006-01-02 15:04:05"),
		RunID:       data.RunID,
	}

	for _, item := range data.Items {
		contributors := sortedNames(data.Summary[item.Key])

		issueType := item.Ticket.IssueTypeName()
		if issueType == "" {
			issueType = "Unknown"
		}
		status := item.Ticket.StatusName()
		if status == "" {
			status = "Unknown"
		}

		view := ticketView{
			Key:              item.Key,
			Summary:          item.Summary,
			Level:            item.Level,
			IsRoot:           item.Level == 0,
			IndentRem:        float64(item.Level) * 1.5,
			URL:              g.browseURL(item.Key),
			Contributors:     contributors,
			ContributorCount: len(contributors),
			IssueType:        issueType,
			Status:           status,
			StatusClass:      statusClass(status),
			StatusLabelClass: statusLabelClass(status),
		}
		p.Tickets = append(p.Tickets, view)
		if view.IsRoot {
			p.RootCount++
		}
	}

	p.Contributors = g.contributorViews(data)

	if err := reportTemplate.Execute(w, p); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	return nil
}

// WriteFile renders the report into path.
func (g *Generator) WriteFile(path string, data Data) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer file.Close()

	if err := g.Generate(file, data); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	g.logger.Info("report generated", "path", abs)
	return nil
}

// contributorViews inverts the summary into the contributors view: each
// person mapped to the root-level tickets whose subtree they touched.
func (g *Generator) contributorViews(data Data) []contributorView {
	byPerson := make(map[string][]ticketRef)
	for _, item := range data.Items {
		if item.Level != 0 {
			continue
		}
		ref := ticketRef{Key: item.Key, Summary: item.Summary, URL: g.browseURL(item.Key)}
		for name := range data.Summary[item.Key] {
			byPerson[name] = append(byPerson[name], ref)
		}
	}

	names := make([]string, 0, len(byPerson))
	for name := range byPerson {
		names = append(names, name)
	}
	sort.Strings(names)

	views := make([]contributorView, 0, len(names))
	for _, name := range names {
		tickets := byPerson[name]
		sort.Slice(tickets, func(i, j int) bool { return tickets[i].Key < tickets[j].Key })
		views = append(views, contributorView{
			Name:        name,
			TicketCount: len(tickets),
			Tickets:     tickets,
		})
	}
	return views
}

func (g *Generator) browseURL(key string) string {
	return g.baseURL + "/browse/" + key
}

// statusClass buckets a status name for styling. The mapping is by
// case-insensitive substring and has no effect on data correctness.
func statusClass(status string) string {
	lower := strings.ToLower(status)
	switch {
	case containsAny(lower, "done", "closed", "resolved", "complete"):
		return "done"
	case containsAny(lower, "in progress", "in-progress", "development", "review"):
		return "in-progress"
	case containsAny(lower, "to do", "to-do", "open", "new", "backlog"):
		return "to-do"
	}
	return ""
}

func statusLabelClass(status string) string {
	switch statusClass(status) {
	case "done":
		return "pf-m-green"
	case "in-progress":
		return "pf-m-orange"
	default:
		return "pf-m-grey"
	}
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
