// contribsum generates a static HTML report of the contributors to a
// tree of tracker tickets.
//
// Two modes of operation:
//
// Project mode: searches a project for unresolved root tickets of the
// configured issue types and recursively collects their children.
//
// Single ticket mode (--ticket): starts from one explicit ticket and
// builds its complete hierarchy.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/ganot/contribsum/internal/cache"
	"github.com/ganot/contribsum/internal/config"
	"github.com/ganot/contribsum/internal/domain/contributor"
	"github.com/ganot/contribsum/internal/domain/hierarchy"
	"github.com/ganot/contribsum/internal/jira"
	"github.com/ganot/contribsum/internal/report"
)

var verbose bool

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if verbose {
			for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
				fmt.Fprintf(os.Stderr, "  caused by: %v\n", cause)
			}
		}
		os.Exit(1)
	}
}

func run() error {
	var (
		jiraURL      string
		projectKey   string
		ticketKey    string
		output       string
		issueTypes   string
		token        string
		email        string
		cacheDir     string
		clearCache   bool
		personFields []string
		configPath   string
	)

	flags := pflag.NewFlagSet("contribsum", pflag.ContinueOnError)
	flags.StringVar(&jiraURL, "jira-url", "", "base URL of the Jira instance (e.g. https://company.atlassian.net)")
	flags.StringVar(&projectKey, "project", "", "Jira project key (e.g. PROJ); required unless --ticket is given")
	flags.StringVar(&ticketKey, "ticket", "", "single ticket key to summarize (e.g. PROJ-123)")
	flags.StringVar(&output, "output", "contribsum.html", "output HTML file path")
	flags.StringVar(&issueTypes, "issue-types", strings.Join(hierarchy.DefaultRootIssueTypes, ","), "comma-separated root issue types")
	flags.StringVar(&token, "token", "", "Jira API token (default: JIRA_API_TOKEN)")
	flags.StringVar(&email, "email", "", "email address for Jira Cloud (default: JIRA_EMAIL)")
	flags.StringVar(&cacheDir, "cache-dir", "", "ticket cache directory (default: user cache dir)")
	flags.BoolVar(&clearCache, "clear-cache", false, "clear the ticket cache before running")
	flags.StringSliceVar(&personFields, "person-fields", nil, "custom field IDs holding person references")
	flags.StringVar(&configPath, "config", "", "path to YAML config file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if jiraURL != "" {
		cfg.Jira.BaseURL = jiraURL
	}
	if token != "" {
		cfg.Jira.Token = token
	}
	if email != "" {
		cfg.Jira.Email = email
	}
	if cacheDir != "" {
		cfg.Cache.Dir = cacheDir
	}
	if flags.Changed("person-fields") {
		cfg.Contributors.PersonFields = personFields
	}

	if cfg.Jira.BaseURL == "" {
		return errors.New("--jira-url is required")
	}
	if projectKey == "" && ticketKey == "" {
		return errors.New("either --project or --ticket must be specified")
	}
	if projectKey != "" && ticketKey != "" {
		fmt.Fprintln(os.Stderr, "Warning: both --project and --ticket specified, using --ticket mode")
	}

	level := parseLogLevel(cfg.Log.Level)
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	runID := uuid.NewString()[:8]
	logger = logger.With("run_id", runID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootIssueTypes := splitTrim(issueTypes)

	color.Cyan("Initializing Jira client...")
	client, err := jira.NewClientWithOptions(
		cfg.Jira.BaseURL, cfg.Jira.Token, cfg.Jira.Email, logger,
		jira.WithMaxResults(cfg.Jira.MaxResults),
		jira.WithTimeout(time.Duration(cfg.Jira.TimeoutSeconds)*time.Second),
	)
	if err != nil {
		return err
	}

	var builderCache hierarchy.TicketCache
	ticketCache, err := cache.New(cfg.Cache.Dir, logger)
	if err != nil {
		logger.Warn("cache unavailable, continuing without it", "error", err)
	} else {
		if clearCache {
			if err := ticketCache.Clear(); err != nil {
				logger.Warn("failed to clear cache", "error", err)
			}
		}
		stats := ticketCache.Stats()
		logger.Debug("cache loaded",
			"tickets", stats.TicketCount, "dir", stats.Dir, "size_bytes", stats.SizeBytes)
		builderCache = ticketCache
	}

	color.Cyan("Building ticket hierarchy...")
	builder := hierarchy.NewBuilder(client, builderCache, logger)
	if ticketKey != "" {
		err = builder.BuildTicket(ctx, ticketKey)
	} else {
		err = builder.BuildProject(ctx, projectKey, rootIssueTypes)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("operation cancelled by user")
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.New("operation cancelled by user")
	}

	tickets := builder.Tickets()
	children := builder.Hierarchy()
	fmt.Printf("Processed %d tickets total\n", len(tickets))

	color.Cyan("Extracting contributors...")
	extractor := contributor.NewExtractor(cfg.Contributors.PersonFields, logger)
	summary := extractor.Summarize(tickets, children)
	unique := extractor.Unique(tickets)
	fmt.Printf("Found %d unique contributors\n", len(unique))
	if verbose {
		fmt.Println("Contributors:")
		for _, name := range unique {
			fmt.Printf("  - %s\n", name)
		}
	}

	color.Cyan("Generating HTML report...")
	label := projectKey
	if ticketKey != "" {
		label = projectOfKey(ticketKey)
	}
	generator := report.NewGenerator(cfg.Jira.BaseURL, logger)
	data := report.Data{
		ProjectKey:  label,
		Items:       builder.DisplayList(),
		Summary:     summary,
		GeneratedAt: time.Now(),
		RunID:       runID,
	}
	if err := generator.WriteFile(output, data); err != nil {
		return err
	}

	abs, err := filepath.Abs(output)
	if err != nil {
		abs = output
	}
	color.Green("Report generated successfully: %s", abs)
	return nil
}

// projectOfKey extracts the project prefix from a ticket key, e.g.
// PROJ-123 -> PROJ.
func projectOfKey(key string) string {
	if i := strings.Index(key, "-"); i > 0 {
		return key[:i]
	}
	return key
}

func splitTrim(csv string) []string {
	var parts []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
