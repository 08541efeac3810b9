package mocks

import (
	"context"
	"time"

	"github.com/ganot/contribsum/internal/jira"
	"github.com/stretchr/testify/mock"
)

// TicketSource is a mock for hierarchy.TicketSource.
type TicketSource struct {
	mock.Mock
}

func (m *TicketSource) GetTicket(ctx context.Context, key string) (*jira.Ticket, error) {
	args := m.Called(ctx, key)
	if t, ok := args.Get(0).(*jira.Ticket); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TicketSource) SearchProject(ctx context.Context, projectKey string, issueTypes []string, resolution string) ([]*jira.Ticket, error) {
	args := m.Called(ctx, projectKey, issueTypes, resolution)
	if tickets, ok := args.Get(0).([]*jira.Ticket); ok {
		return tickets, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TicketSource) SearchEpicChildren(ctx context.Context, epicKey string) ([]string, error) {
	args := m.Called(ctx, epicKey)
	if keys, ok := args.Get(0).([]string); ok {
		return keys, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TicketSource) SearchParentChildren(ctx context.Context, parentKey string) ([]string, error) {
	args := m.Called(ctx, parentKey)
	if keys, ok := args.Get(0).([]string); ok {
		return keys, args.Error(1)
	}
	return nil, args.Error(1)
}

// TicketCache is a mock for hierarchy.TicketCache.
type TicketCache struct {
	mock.Mock
}

func (m *TicketCache) GetTicket(key string) (*jira.Ticket, bool) {
	args := m.Called(key)
	if t, ok := args.Get(0).(*jira.Ticket); ok {
		return t, args.Bool(1)
	}
	return nil, args.Bool(1)
}

func (m *TicketCache) PutTicket(key string, ticket *jira.Ticket) {
	m.Called(key, ticket)
}

func (m *TicketCache) IsStale(key string, currentUpdated time.Time) bool {
	args := m.Called(key, currentUpdated)
	return args.Bool(0)
}
