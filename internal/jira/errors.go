package jira

import (
	"errors"
	"fmt"
)

// ErrMissingToken indicates no API token was provided or found in the
// environment.
var ErrMissingToken = errors.New("jira token must be provided or set in JIRA_API_TOKEN")

// AuthError indicates the tracker answered with something other than the
// expected JSON, which in practice means the credentials or base URL are
// wrong (Jira serves an HTML login page instead of a 401 in that case).
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s (check your Jira credentials and URL)", e.Reason)
}

// RequestError is a non-2xx response from the tracker.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, body)
}
