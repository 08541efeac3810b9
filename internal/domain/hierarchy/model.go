package hierarchy

import "github.com/ganot/contribsum/internal/jira"

// Item is one row of the flattened, rank-ordered display list.
type Item struct {
	Key     string
	Summary string
	Level   int
	Ticket  *jira.Ticket
}

// DefaultRootIssueTypes are the issue types used as traversal roots when
// none are specified.
var DefaultRootIssueTypes = []string{"Feature", "Initiative", "Bug"}
