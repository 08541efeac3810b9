// Package jiratest provides a fake Jira HTTP server for tests.
package jiratest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
)

var (
	epicLinkRe   = regexp.MustCompile(`"Epic Link" = "([^"]+)"`)
	parentLinkRe = regexp.MustCompile(`"Parent Link" = "([^"]+)"`)
	projectRe    = regexp.MustCompile(`project = (\S+)`)
)

// Server is an in-process Jira lookalike serving the issue and search
// endpoints the client uses. Tests register ticket payloads and link
// relations, then point a real client at URL.
type Server struct {
	URL   string
	Token string

	httpServer *httptest.Server

	mu             sync.Mutex
	tickets        map[string]map[string]any
	projectRoots   map[string][]string
	epicChildren   map[string][]string
	parentChildren map[string][]string
	serveHTML      bool
	failKeys       map[string]bool
}

// New starts a fake Jira server that accepts the given bearer token (or
// basic auth with the token as password). It shuts down with the test.
func New(t *testing.T, token string) *Server {
	t.Helper()

	s := &Server{
		Token:          token,
		tickets:        make(map[string]map[string]any),
		projectRoots:   make(map[string][]string),
		epicChildren:   make(map[string][]string),
		parentChildren: make(map[string][]string),
		failKeys:       make(map[string]bool),
	}
	s.httpServer = httptest.NewServer(http.HandlerFunc(s.handle))
	s.URL = s.httpServer.URL

	t.Cleanup(s.httpServer.Close)
	return s
}

// AddTicket registers a ticket payload. fields may be nil.
func (s *Server) AddTicket(key string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fields == nil {
		fields = map[string]any{}
	}
	s.tickets[key] = map[string]any{"key": key, "fields": fields}
}

// AddProjectRoot marks a registered ticket as a root search result for the
// given project, in call order.
func (s *Server) AddProjectRoot(projectKey, ticketKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projectRoots[projectKey] = append(s.projectRoots[projectKey], ticketKey)
}

// SetEpicChildren sets the Epic Link search results for an epic key.
func (s *Server) SetEpicChildren(epicKey string, children ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epicChildren[epicKey] = children
}

// SetParentChildren sets the Parent Link search results for a parent key.
func (s *Server) SetParentChildren(parentKey string, children ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parentChildren[parentKey] = children
}

// FailTicket makes fetches of the given key answer 500.
func (s *Server) FailTicket(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failKeys[key] = true
}

// ServeHTML makes every response an HTML login page, mimicking an
// unauthenticated Jira instance.
func (s *Server) ServeHTML() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serveHTML = true
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serveHTML || !s.authorized(r) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>Log in to continue</body></html>")
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/rest/api/2/issue/"):
		s.handleIssue(w, r)
	case r.URL.Path == "/rest/api/2/search":
		s.handleSearch(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"errorMessages": []string{"no such endpoint"}})
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if auth := r.Header.Get("Authorization"); auth == "Bearer "+s.Token {
		return true
	}
	if _, password, ok := r.BasicAuth(); ok && password == s.Token {
		return true
	}
	return false
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/rest/api/2/issue/")
	if s.failKeys[key] {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"errorMessages": []string{"boom"}})
		return
	}
	payload, ok := s.tickets[key]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"errorMessages": []string{"Issue does not exist"}})
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	jql := r.URL.Query().Get("jql")
	maxResults := len(s.tickets) + 1
	if raw := r.URL.Query().Get("maxResults"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			maxResults = n
		}
	}

	var keys []string
	switch {
	case epicLinkRe.MatchString(jql):
		keys = s.epicChildren[epicLinkRe.FindStringSubmatch(jql)[1]]
	case parentLinkRe.MatchString(jql):
		keys = s.parentChildren[parentLinkRe.FindStringSubmatch(jql)[1]]
	case projectRe.MatchString(jql):
		keys = s.projectRoots[projectRe.FindStringSubmatch(jql)[1]]
	}

	issues := make([]map[string]any, 0, len(keys))
	for _, key := range keys {
		if len(issues) >= maxResults {
			break
		}
		if payload, ok := s.tickets[key]; ok {
			issues = append(issues, payload)
		} else {
			issues = append(issues, map[string]any{"key": key, "fields": map[string]any{}})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"startAt":    0,
		"maxResults": maxResults,
		"total":      len(issues),
		"issues":     issues,
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
