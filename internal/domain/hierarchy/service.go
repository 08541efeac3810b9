// Package hierarchy builds the parent/child graph of tracker tickets by
// walking subtask references and Epic Link / Parent Link relations.
package hierarchy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/ganot/contribsum/internal/jira"
)

// Builder accumulates the flat ticket map and the parent -> children map
// over one run. A ticket is fetched and inserted at most once; revisiting a
// key is a no-op, which also terminates cycles.
type Builder struct {
	source TicketSource
	cache  TicketCache
	logger *slog.Logger

	tickets  map[string]*jira.Ticket
	children map[string][]string
	order    []string
	roots    []string
}

// NewBuilder creates a hierarchy builder. cache may be nil.
func NewBuilder(source TicketSource, cache TicketCache, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{
		source:   source,
		cache:    cache,
		logger:   logger,
		tickets:  make(map[string]*jira.Ticket),
		children: make(map[string][]string),
	}
}

// BuildProject walks every unresolved root ticket of the given issue types
// in a project. Descendants are included regardless of resolution. A
// failure of the root search itself is fatal.
func (b *Builder) BuildProject(ctx context.Context, projectKey string, rootIssueTypes []string) error {
	if len(rootIssueTypes) == 0 {
		rootIssueTypes = DefaultRootIssueTypes
	}

	b.logger.Info("fetching unresolved root tickets",
		"project", projectKey, "issue_types", rootIssueTypes)
	rootTickets, err := b.source.SearchProject(ctx, projectKey, rootIssueTypes, "Unresolved")
	if err != nil {
		return fmt.Errorf("fetching root tickets for %s: %w", projectKey, err)
	}

	for _, ticket := range rootTickets {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.roots = append(b.roots, ticket.Key)
		b.walk(ctx, ticket.Key, ticket)
	}
	return nil
}

// BuildTicket walks the hierarchy starting from a single explicit ticket.
// Unlike discovered children, a fetch failure of the starting ticket is
// fatal.
func (b *Builder) BuildTicket(ctx context.Context, key string) error {
	b.logger.Info("fetching starting ticket", "key", key)
	ticket, err := b.source.GetTicket(ctx, key)
	if err != nil {
		return fmt.Errorf("fetching starting ticket %s: %w", key, err)
	}

	b.roots = append(b.roots, key)
	b.walk(ctx, key, ticket)
	return nil
}

type frame struct {
	key    string
	ticket *jira.Ticket
}

// walk is an explicit depth-first traversal with a visited guard, stacked
// so that processing order matches a recursive walk: a ticket's children
// are visited before its next sibling.
func (b *Builder) walk(ctx context.Context, key string, ticket *jira.Ticket) {
	stack := []frame{{key: key, ticket: ticket}}

	for len(stack) > 0 {
		if ctx.Err() != nil {
			return
		}

		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, done := b.tickets[f.key]; done {
			b.logger.Debug("ticket already processed", "key", f.key)
			continue
		}

		t := f.ticket
		if t == nil {
			var err error
			t, err = b.resolve(ctx, f.key)
			if err != nil {
				b.logger.Error("abandoning branch", "key", f.key, "error", err)
				continue
			}
		} else if b.cache != nil {
			t = b.refresh(f.key, t)
		}

		b.tickets[f.key] = t
		b.order = append(b.order, f.key)

		childKeys := b.childKeys(ctx, t)
		if len(childKeys) == 0 {
			continue
		}
		b.children[f.key] = childKeys
		b.logger.Debug("found children", "key", f.key, "children", childKeys)

		for i := len(childKeys) - 1; i >= 0; i-- {
			stack = append(stack, frame{key: childKeys[i]})
		}
	}
}

// resolve returns the ticket payload for key, consulting the cache before
// fetching. Fetched payloads are written through to the cache.
func (b *Builder) resolve(ctx context.Context, key string) (*jira.Ticket, error) {
	if b.cache != nil {
		if cached, ok := b.cache.GetTicket(key); ok {
			b.logger.Debug("cache hit", "key", key)
			return cached, nil
		}
	}

	ticket, err := b.source.GetTicket(ctx, key)
	if err != nil {
		return nil, err
	}
	if b.cache != nil {
		b.cache.PutTicket(key, ticket)
	}
	return ticket, nil
}

// refresh reconciles a search-provided payload with the cache: a cached
// copy that is current per the payload's updated timestamp wins, otherwise
// the fresh payload replaces it.
func (b *Builder) refresh(key string, fresh *jira.Ticket) *jira.Ticket {
	if updated, ok := fresh.Updated(); ok && !b.cache.IsStale(key, updated) {
		if cached, ok := b.cache.GetTicket(key); ok {
			b.logger.Debug("using cached ticket", "key", key)
			return cached
		}
	}
	b.cache.PutTicket(key, fresh)
	return fresh
}

// childKeys derives the children of a ticket: its direct subtasks plus,
// depending on issue type, tickets found via an Epic Link or Parent Link
// search. A search failure only loses that ticket's linked children.
func (b *Builder) childKeys(ctx context.Context, t *jira.Ticket) []string {
	if t.Key == "" {
		return nil
	}

	keys := t.SubtaskKeys()

	typeName := strings.ToLower(t.IssueTypeName())
	switch {
	case strings.Contains(typeName, "epic"):
		linked, err := b.source.SearchEpicChildren(ctx, t.Key)
		if err != nil {
			b.logger.Error("epic link search failed", "key", t.Key, "error", err)
		}
		keys = append(keys, linked...)
	case strings.Contains(typeName, "feature"),
		strings.Contains(typeName, "initiative"),
		strings.Contains(typeName, "theme"):
		linked, err := b.source.SearchParentChildren(ctx, t.Key)
		if err != nil {
			b.logger.Error("parent link search failed", "key", t.Key, "error", err)
		}
		keys = append(keys, linked...)
	}

	seen := make(map[string]bool, len(keys))
	deduped := keys[:0]
	for _, key := range keys {
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, key)
	}
	return deduped
}

// Tickets returns a copy of the flat ticket map.
func (b *Builder) Tickets() map[string]*jira.Ticket {
	tickets := make(map[string]*jira.Ticket, len(b.tickets))
	for key, t := range b.tickets {
		tickets[key] = t
	}
	return tickets
}

// Hierarchy returns a copy of the parent -> children map.
func (b *Builder) Hierarchy() map[string][]string {
	children := make(map[string][]string, len(b.children))
	for key, kids := range b.children {
		children[key] = append([]string(nil), kids...)
	}
	return children
}

// Roots returns the traversal starting points in encounter order.
func (b *Builder) Roots() []string {
	return append([]string(nil), b.roots...)
}

// DisplayList flattens the hierarchy for rendering: true roots (tickets
// that never appear as anyone's child) sorted by rank, then each root's
// subtree depth-first with rank-sorted siblings. A ticket reachable from
// two parents is emitted once, under whichever parent comes first.
func (b *Builder) DisplayList() []Item {
	trueRoots := b.trueRoots()
	var roots []string
	for _, key := range b.order {
		if trueRoots[key] {
			roots = append(roots, key)
		}
	}
	roots = b.sortByRank(roots)

	emitted := make(map[string]bool, len(b.tickets))
	var items []Item

	type pos struct {
		key   string
		level int
	}
	var stack []pos
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, pos{key: roots[i]})
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if emitted[p.key] {
			continue
		}
		emitted[p.key] = true

		ticket := b.tickets[p.key]
		if ticket == nil {
			continue
		}
		items = append(items, Item{
			Key:     p.key,
			Summary: ticket.Summary(),
			Level:   p.level,
			Ticket:  ticket,
		})

		kids := b.sortByRank(b.children[p.key])
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, pos{key: kids[i], level: p.level + 1})
		}
	}
	return items
}

// trueRoots returns the set of keys that never appear as a child of a
// ticket we hold data for.
func (b *Builder) trueRoots() map[string]bool {
	roots := make(map[string]bool, len(b.tickets))
	for key := range b.tickets {
		roots[key] = true
	}
	for parent, kids := range b.children {
		if _, ok := b.tickets[parent]; !ok {
			continue
		}
		for _, child := range kids {
			delete(roots, child)
		}
	}
	return roots
}

// sortByRank orders keys by derived rank ascending, keeping the input
// order for ties. Keys without ticket data sort last.
func (b *Builder) sortByRank(keys []string) []string {
	sorted := append([]string(nil), keys...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return b.rankOf(sorted[i]) < b.rankOf(sorted[j])
	})
	return sorted
}

// rankOf derives a numeric sort key: the ticket's rank field when it holds
// a number or numeric string, else the creation time, else +Inf.
func (b *Builder) rankOf(key string) float64 {
	ticket := b.tickets[key]
	if ticket == nil {
		return math.Inf(1)
	}
	if rank, ok := ticket.RankValue(); ok {
		return rank
	}
	if created, ok := ticket.Created(); ok {
		return float64(created.Unix())
	}
	return math.Inf(1)
}
