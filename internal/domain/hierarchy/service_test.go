package hierarchy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ganot/contribsum/internal/domain/hierarchy"
	"github.com/ganot/contribsum/internal/jira"
	"github.com/ganot/contribsum/internal/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func ticket(key string, fields map[string]any) *jira.Ticket {
	if fields == nil {
		fields = map[string]any{}
	}
	return &jira.Ticket{Key: key, Fields: fields}
}

func feature(key string, fields map[string]any) *jira.Ticket {
	t := ticket(key, fields)
	t.Fields["issuetype"] = map[string]any{"name": "Feature"}
	return t
}

func TestBuilder_BuildProject_SubtaskChildren(t *testing.T) {
	ctx := context.Background()
	source := &mocks.TicketSource{}

	root := feature("PROJ-1", map[string]any{
		"summary":  "Root",
		"subtasks": []any{map[string]any{"key": "PROJ-2"}},
	})
	source.On("SearchProject", ctx, "PROJ", []string{"Feature"}, "Unresolved").
		Return([]*jira.Ticket{root}, nil)
	source.On("SearchParentChildren", ctx, "PROJ-1").Return([]string{}, nil)
	source.On("GetTicket", ctx, "PROJ-2").
		Return(ticket("PROJ-2", map[string]any{"summary": "Child"}), nil)

	b := hierarchy.NewBuilder(source, nil, nil)
	require.NoError(t, b.BuildProject(ctx, "PROJ", []string{"Feature"}))

	require.Len(t, b.Tickets(), 2)
	require.Equal(t, map[string][]string{"PROJ-1": {"PROJ-2"}}, b.Hierarchy())
	require.Equal(t, []string{"PROJ-1"}, b.Roots())

	items := b.DisplayList()
	require.Len(t, items, 2)
	require.Equal(t, "PROJ-1", items[0].Key)
	require.Equal(t, 0, items[0].Level)
	require.Equal(t, "PROJ-2", items[1].Key)
	require.Equal(t, 1, items[1].Level)
}

func TestBuilder_BuildProject_SearchFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	source := &mocks.TicketSource{}
	source.On("SearchProject", ctx, "PROJ", mock.Anything, "Unresolved").
		Return(nil, errors.New("boom"))

	b := hierarchy.NewBuilder(source, nil, nil)
	require.Error(t, b.BuildProject(ctx, "PROJ", nil))
}

func TestBuilder_BuildTicket_FetchFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	source := &mocks.TicketSource{}
	fetchErr := errors.New("no such ticket")
	source.On("GetTicket", ctx, "PROJ-1").Return(nil, fetchErr)

	b := hierarchy.NewBuilder(source, nil, nil)
	err := b.BuildTicket(ctx, "PROJ-1")
	require.ErrorIs(t, err, fetchErr)
	require.Empty(t, b.Tickets())
}

func TestBuilder_ChildFetchFailureAbandonsBranch(t *testing.T) {
	ctx := context.Background()
	source := &mocks.TicketSource{}

	root := feature("PROJ-1", map[string]any{
		"subtasks": []any{
			map[string]any{"key": "PROJ-2"},
			map[string]any{"key": "PROJ-3"},
		},
	})
	source.On("GetTicket", ctx, "PROJ-1").Return(root, nil)
	source.On("SearchParentChildren", ctx, "PROJ-1").Return([]string{}, nil)
	source.On("GetTicket", ctx, "PROJ-2").Return(nil, errors.New("boom"))
	source.On("GetTicket", ctx, "PROJ-3").Return(ticket("PROJ-3", nil), nil)

	b := hierarchy.NewBuilder(source, nil, nil)
	require.NoError(t, b.BuildTicket(ctx, "PROJ-1"))

	tickets := b.Tickets()
	require.Contains(t, tickets, "PROJ-1")
	require.Contains(t, tickets, "PROJ-3")
	require.NotContains(t, tickets, "PROJ-2")
}

func TestBuilder_EpicChildrenViaLinkSearch(t *testing.T) {
	ctx := context.Background()
	source := &mocks.TicketSource{}

	epic := ticket("PROJ-1", map[string]any{
		"issuetype": map[string]any{"name": "Epic"},
	})
	source.On("GetTicket", ctx, "PROJ-1").Return(epic, nil)
	source.On("SearchEpicChildren", ctx, "PROJ-1").Return([]string{"PROJ-2"}, nil)
	source.On("GetTicket", ctx, "PROJ-2").Return(ticket("PROJ-2", nil), nil)

	b := hierarchy.NewBuilder(source, nil, nil)
	require.NoError(t, b.BuildTicket(ctx, "PROJ-1"))
	require.Equal(t, map[string][]string{"PROJ-1": {"PROJ-2"}}, b.Hierarchy())
}

func TestBuilder_LinkSearchFailureKeepsSubtasks(t *testing.T) {
	ctx := context.Background()
	source := &mocks.TicketSource{}

	epic := ticket("PROJ-1", map[string]any{
		"issuetype": map[string]any{"name": "Epic"},
		"subtasks":  []any{map[string]any{"key": "PROJ-2"}},
	})
	source.On("GetTicket", ctx, "PROJ-1").Return(epic, nil)
	source.On("SearchEpicChildren", ctx, "PROJ-1").Return(nil, errors.New("boom"))
	source.On("GetTicket", ctx, "PROJ-2").Return(ticket("PROJ-2", nil), nil)

	b := hierarchy.NewBuilder(source, nil, nil)
	require.NoError(t, b.BuildTicket(ctx, "PROJ-1"))
	require.Equal(t, map[string][]string{"PROJ-1": {"PROJ-2"}}, b.Hierarchy())
}

func TestBuilder_CycleTerminates(t *testing.T) {
	ctx := context.Background()
	source := &mocks.TicketSource{}

	a := ticket("PROJ-1", map[string]any{"issuetype": map[string]any{"name": "Epic"}})
	c := ticket("PROJ-2", map[string]any{"issuetype": map[string]any{"name": "Epic"}})
	source.On("GetTicket", ctx, "PROJ-1").Return(a, nil)
	source.On("GetTicket", ctx, "PROJ-2").Return(c, nil)
	source.On("SearchEpicChildren", ctx, "PROJ-1").Return([]string{"PROJ-2"}, nil)
	source.On("SearchEpicChildren", ctx, "PROJ-2").Return([]string{"PROJ-1"}, nil)

	b := hierarchy.NewBuilder(source, nil, nil)
	require.NoError(t, b.BuildTicket(ctx, "PROJ-1"))

	require.Len(t, b.Tickets(), 2)
	source.AssertNumberOfCalls(t, "GetTicket", 2)
}

func TestBuilder_DiamondEmitsChildOnce(t *testing.T) {
	ctx := context.Background()
	source := &mocks.TicketSource{}

	root := feature("PROJ-1", nil)
	left := ticket("PROJ-2", map[string]any{
		"Rank":     float64(1),
		"subtasks": []any{map[string]any{"key": "PROJ-4"}},
	})
	right := ticket("PROJ-3", map[string]any{
		"Rank":     float64(2),
		"subtasks": []any{map[string]any{"key": "PROJ-4"}},
	})
	source.On("GetTicket", ctx, "PROJ-1").Return(root, nil)
	source.On("SearchParentChildren", ctx, "PROJ-1").Return([]string{"PROJ-2", "PROJ-3"}, nil)
	source.On("GetTicket", ctx, "PROJ-2").Return(left, nil)
	source.On("GetTicket", ctx, "PROJ-3").Return(right, nil)
	source.On("GetTicket", ctx, "PROJ-4").Return(ticket("PROJ-4", nil), nil)

	b := hierarchy.NewBuilder(source, nil, nil)
	require.NoError(t, b.BuildTicket(ctx, "PROJ-1"))

	items := b.DisplayList()
	var keys []string
	for _, item := range items {
		keys = append(keys, item.Key)
	}
	// PROJ-4 shows up once, under the lower-ranked parent.
	require.Equal(t, []string{"PROJ-1", "PROJ-2", "PROJ-4", "PROJ-3"}, keys)
	require.Equal(t, 2, items[2].Level)
}

func TestBuilder_RanklessTicketsSortLast(t *testing.T) {
	ctx := context.Background()
	source := &mocks.TicketSource{}

	ranked := feature("PROJ-1", map[string]any{"Rank": float64(2)})
	rankedFirst := feature("PROJ-2", map[string]any{"Rank": "1"})
	byCreated := feature("PROJ-3", map[string]any{"created": "2024-01-01T00:00:00.000+0000"})
	unrankable := feature("PROJ-4", nil)

	source.On("SearchProject", ctx, "PROJ", mock.Anything, "Unresolved").
		Return([]*jira.Ticket{unrankable, ranked, byCreated, rankedFirst}, nil)
	source.On("SearchParentChildren", ctx, mock.Anything).Return([]string{}, nil)

	b := hierarchy.NewBuilder(source, nil, nil)
	require.NoError(t, b.BuildProject(ctx, "PROJ", nil))

	items := b.DisplayList()
	var keys []string
	for _, item := range items {
		keys = append(keys, item.Key)
	}
	require.Equal(t, []string{"PROJ-2", "PROJ-1", "PROJ-3", "PROJ-4"}, keys)
}

func TestBuilder_CacheHitSkipsFetch(t *testing.T) {
	ctx := context.Background()
	source := &mocks.TicketSource{}
	ticketCache := &mocks.TicketCache{}

	cached := ticket("PROJ-2", map[string]any{"summary": "from cache"})
	root := feature("PROJ-1", map[string]any{
		"subtasks": []any{map[string]any{"key": "PROJ-2"}},
		"updated":  "2024-03-01T10:00:00.000+0000",
	})

	source.On("GetTicket", ctx, "PROJ-1").Return(root, nil)
	source.On("SearchParentChildren", ctx, "PROJ-1").Return([]string{}, nil)
	ticketCache.On("IsStale", "PROJ-1", mock.Anything).Return(true)
	ticketCache.On("PutTicket", "PROJ-1", root).Return()
	ticketCache.On("GetTicket", "PROJ-2").Return(cached, true)

	b := hierarchy.NewBuilder(source, ticketCache, nil)
	require.NoError(t, b.BuildTicket(ctx, "PROJ-1"))

	tickets := b.Tickets()
	require.Equal(t, "from cache", tickets["PROJ-2"].Summary())
	source.AssertNotCalled(t, "GetTicket", ctx, "PROJ-2")
}

func TestBuilder_FreshRootRefreshesStaleCache(t *testing.T) {
	ctx := context.Background()
	source := &mocks.TicketSource{}
	ticketCache := &mocks.TicketCache{}

	root := feature("PROJ-1", map[string]any{
		"updated": "2024-03-02T10:00:00.000+0000",
	})
	source.On("SearchProject", ctx, "PROJ", mock.Anything, "Unresolved").
		Return([]*jira.Ticket{root}, nil)
	source.On("SearchParentChildren", ctx, "PROJ-1").Return([]string{}, nil)
	ticketCache.On("IsStale", "PROJ-1", mock.Anything).Return(true)
	ticketCache.On("PutTicket", "PROJ-1", root).Return()

	b := hierarchy.NewBuilder(source, ticketCache, nil)
	require.NoError(t, b.BuildProject(ctx, "PROJ", nil))

	ticketCache.AssertCalled(t, "PutTicket", "PROJ-1", root)
}
