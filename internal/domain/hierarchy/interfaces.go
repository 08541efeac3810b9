package hierarchy

import (
	"context"
	"time"

	"github.com/ganot/contribsum/internal/jira"
)

// TicketSource provides ticket fetch and search operations.
type TicketSource interface {
	GetTicket(ctx context.Context, key string) (*jira.Ticket, error)
	SearchProject(ctx context.Context, projectKey string, issueTypes []string, resolution string) ([]*jira.Ticket, error)
	SearchEpicChildren(ctx context.Context, epicKey string) ([]string, error)
	SearchParentChildren(ctx context.Context, parentKey string) ([]string, error)
}

// TicketCache provides optional persistence for fetched tickets.
type TicketCache interface {
	GetTicket(key string) (*jira.Ticket, bool)
	PutTicket(key string, ticket *jira.Ticket)
	IsStale(key string, currentUpdated time.Time) bool
}
