package contributor_test

import (
	"testing"

	"github.com/ganot/contribsum/internal/domain/contributor"
	"github.com/ganot/contribsum/internal/jira"
	"github.com/stretchr/testify/require"
)

func ticket(key string, fields map[string]any) *jira.Ticket {
	if fields == nil {
		fields = map[string]any{}
	}
	return &jira.Ticket{Key: key, Fields: fields}
}

func person(name string) map[string]any {
	return map[string]any{"displayName": name}
}

func names(set map[string]struct{}) []string {
	var out []string
	for name := range set {
		out = append(out, name)
	}
	return out
}

func TestFromTicket_AllSources(t *testing.T) {
	e := contributor.NewExtractor(nil, nil)

	got := e.FromTicket(ticket("PROJ-1", map[string]any{
		"assignee":          person("Ann"),
		"reporter":          person("Bob"),
		"customfield_10001": person("Cyd"),
		"customfield_10002": []any{person("Dee"), person("Eli")},
		"contributors":      []any{person("Fay")},
		"customfield_10003": "a LexoRank string, not a person",
	}))

	require.ElementsMatch(t, []string{"Ann", "Bob", "Cyd", "Dee", "Eli", "Fay"}, names(got))
}

func TestFromTicket_SamePersonInMultipleRoles(t *testing.T) {
	e := contributor.NewExtractor(nil, nil)

	got := e.FromTicket(ticket("PROJ-1", map[string]any{
		"assignee": person("Ann"),
		"reporter": person("Ann"),
	}))

	require.Len(t, got, 1)
	require.Contains(t, got, "Ann")
}

func TestFromTicket_ExplicitPersonFields(t *testing.T) {
	e := contributor.NewExtractor([]string{"customfield_10001"}, nil)

	got := e.FromTicket(ticket("PROJ-1", map[string]any{
		"customfield_10001": person("Ann"),
		"customfield_10002": person("Bob"),
	}))

	// Only the configured field is scanned.
	require.ElementsMatch(t, []string{"Ann"}, names(got))
}

func TestSubtree_ParentUnionsChildren(t *testing.T) {
	e := contributor.NewExtractor(nil, nil)

	tickets := map[string]*jira.Ticket{
		"PROJ-1": ticket("PROJ-1", map[string]any{"assignee": person("Bea")}),
		"PROJ-2": ticket("PROJ-2", map[string]any{"assignee": person("Ann")}),
	}
	children := map[string][]string{"PROJ-1": {"PROJ-2"}}

	require.ElementsMatch(t, []string{"Ann", "Bea"},
		names(e.Subtree("PROJ-1", tickets, children)))
	require.ElementsMatch(t, []string{"Ann"},
		names(e.Subtree("PROJ-2", tickets, children)))
}

func TestSubtree_SharedDescendant(t *testing.T) {
	e := contributor.NewExtractor(nil, nil)

	tickets := map[string]*jira.Ticket{
		"PROJ-1": ticket("PROJ-1", nil),
		"PROJ-2": ticket("PROJ-2", nil),
		"PROJ-3": ticket("PROJ-3", nil),
		"PROJ-4": ticket("PROJ-4", map[string]any{"assignee": person("Ann")}),
	}
	children := map[string][]string{
		"PROJ-1": {"PROJ-2", "PROJ-3"},
		"PROJ-2": {"PROJ-4"},
		"PROJ-3": {"PROJ-4"},
	}

	require.ElementsMatch(t, []string{"Ann"},
		names(e.Subtree("PROJ-1", tickets, children)))
}

func TestSubtree_CycleTerminates(t *testing.T) {
	e := contributor.NewExtractor(nil, nil)

	tickets := map[string]*jira.Ticket{
		"PROJ-1": ticket("PROJ-1", map[string]any{"assignee": person("Ann")}),
		"PROJ-2": ticket("PROJ-2", map[string]any{"assignee": person("Bob")}),
	}
	children := map[string][]string{
		"PROJ-1": {"PROJ-2"},
		"PROJ-2": {"PROJ-1"},
	}

	require.ElementsMatch(t, []string{"Ann", "Bob"},
		names(e.Subtree("PROJ-1", tickets, children)))
}

func TestSubtree_MemoIsNotUpdateAware(t *testing.T) {
	e := contributor.NewExtractor(nil, nil)

	tickets := map[string]*jira.Ticket{
		"PROJ-1": ticket("PROJ-1", map[string]any{"assignee": person("Ann")}),
	}

	require.ElementsMatch(t, []string{"Ann"}, names(e.Subtree("PROJ-1", tickets, nil)))

	// Mutating the ticket without clearing the cache returns the stale
	// memoized result.
	tickets["PROJ-1"].Fields["assignee"] = person("Bob")
	require.ElementsMatch(t, []string{"Ann"}, names(e.Subtree("PROJ-1", tickets, nil)))

	e.ClearCache()
	require.ElementsMatch(t, []string{"Bob"}, names(e.Subtree("PROJ-1", tickets, nil)))
}

func TestSummarize_EveryKeyPresent(t *testing.T) {
	e := contributor.NewExtractor(nil, nil)

	tickets := map[string]*jira.Ticket{
		"PROJ-1": ticket("PROJ-1", map[string]any{"assignee": person("Bea")}),
		"PROJ-2": ticket("PROJ-2", map[string]any{"assignee": person("Ann")}),
	}
	children := map[string][]string{"PROJ-1": {"PROJ-2"}}

	summary := e.Summarize(tickets, children)
	require.Len(t, summary, 2)
	require.ElementsMatch(t, []string{"Ann", "Bea"}, names(summary["PROJ-1"]))
	require.ElementsMatch(t, []string{"Ann"}, names(summary["PROJ-2"]))
}

func TestUnique(t *testing.T) {
	e := contributor.NewExtractor(nil, nil)

	tickets := map[string]*jira.Ticket{
		"PROJ-1": ticket("PROJ-1", map[string]any{"assignee": person("Bea"), "reporter": person("Ann")}),
		"PROJ-2": ticket("PROJ-2", map[string]any{"assignee": person("Ann")}),
	}

	require.Equal(t, []string{"Ann", "Bea"}, e.Unique(tickets))
}
