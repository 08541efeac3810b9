// Package contributor extracts the people associated with tickets and
// aggregates them over ticket subtrees.
package contributor

import (
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/ganot/contribsum/internal/jira"
)

// customFieldPrefix marks Jira extension fields in ticket payloads.
const customFieldPrefix = "customfield_"

// Extractor extracts contributor names from tickets. Subtree results are
// memoized per key for the lifetime of the Extractor; the memo is released
// only by ClearCache, never by ticket data changing underneath it.
type Extractor struct {
	personFields []string
	memo         map[string]map[string]struct{}
	logger       *slog.Logger
}

// NewExtractor creates an Extractor. personFields is the list of custom
// field IDs known to hold person references for this deployment; when
// empty, every customfield_* value is scanned instead.
func NewExtractor(personFields []string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{
		personFields: personFields,
		memo:         make(map[string]map[string]struct{}),
		logger:       logger,
	}
}

// FromTicket returns the set of people directly associated with a ticket:
// assignee, person-holding custom fields, the explicit contributors field,
// and reporter. Roles are not distinguished.
func (e *Extractor) FromTicket(t *jira.Ticket) map[string]struct{} {
	people := make(map[string]struct{})
	if t == nil {
		return people
	}

	add := func(names []string) {
		for _, name := range names {
			people[name] = struct{}{}
		}
	}

	add(jira.PersonNames(t.Fields["assignee"]))

	if len(e.personFields) > 0 {
		for _, field := range e.personFields {
			add(jira.PersonNames(t.Fields[field]))
		}
	} else {
		for name, value := range t.Fields {
			if strings.HasPrefix(name, customFieldPrefix) {
				add(jira.PersonNames(value))
			}
		}
	}

	add(jira.PersonNames(t.Fields["contributors"]))
	add(jira.PersonNames(t.Fields["reporter"]))

	return people
}

// Subtree returns the union of contributors over a ticket and all its
// descendants in the hierarchy map. The traversal is an explicit
// post-order walk with an on-stack guard, so shared descendants and cycles
// terminate. Results are memoized per key.
func (e *Extractor) Subtree(key string, tickets map[string]*jira.Ticket, children map[string][]string) map[string]struct{} {
	if cached, ok := e.memo[key]; ok {
		return copySet(cached)
	}

	type frame struct {
		key  string
		next int
	}
	acc := make(map[string]map[string]struct{})
	onStack := map[string]bool{key: true}
	stack := []frame{{key: key}}

	for len(stack) > 0 {
		f := &stack[len(stack)-1]

		if f.next == 0 {
			set := make(map[string]struct{})
			if t, ok := tickets[f.key]; ok {
				mergeSet(set, e.FromTicket(t))
			}
			acc[f.key] = set
		}

		kids := children[f.key]
		descended := false
		for f.next < len(kids) {
			child := kids[f.next]
			f.next++
			if cached, ok := e.memo[child]; ok {
				mergeSet(acc[f.key], cached)
				continue
			}
			if onStack[child] {
				continue
			}
			onStack[child] = true
			stack = append(stack, frame{key: child})
			descended = true
			break
		}
		if descended {
			continue
		}

		done := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		delete(onStack, done.key)
		e.memo[done.key] = acc[done.key]
		if len(stack) > 0 {
			mergeSet(acc[stack[len(stack)-1].key], acc[done.key])
		}
	}

	return copySet(e.memo[key])
}

// Summarize computes the subtree contributor set for every ticket in the
// flat map, so a leaf's entry is just its own direct contributors.
func (e *Extractor) Summarize(tickets map[string]*jira.Ticket, children map[string][]string) map[string]map[string]struct{} {
	summary := make(map[string]map[string]struct{}, len(tickets))
	for key := range tickets {
		summary[key] = e.Subtree(key, tickets, children)
	}
	return summary
}

// Unique returns the distinct contributors across all tickets, sorted.
func (e *Extractor) Unique(tickets map[string]*jira.Ticket) []string {
	all := make(map[string]struct{})
	for _, t := range tickets {
		mergeSet(all, e.FromTicket(t))
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClearCache drops all memoized subtree results.
func (e *Extractor) ClearCache() {
	e.memo = make(map[string]map[string]struct{})
}

func mergeSet(dst map[string]struct{}, src map[string]struct{}) {
	for name := range src {
		dst[name] = struct{}{}
	}
}

func copySet(src map[string]struct{}) map[string]struct{} {
	dst := make(map[string]struct{}, len(src))
	for name := range src {
		dst[name] = struct{}{}
	}
	return dst
}
