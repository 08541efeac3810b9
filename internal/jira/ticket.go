package jira

import (
	"strconv"
	"strings"
	"time"
)

// Ticket is a raw tracker issue payload. Fields is kept as a map because
// Jira instances attach an open-ended set of custom fields to every issue.
type Ticket struct {
	Key    string         `json:"key"`
	Fields map[string]any `json:"fields"`
}

// jiraTimeLayouts covers the timestamp formats Jira emits for the
// created/updated fields across server and cloud deployments.
var jiraTimeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
}

// ParseTime parses a Jira timestamp string.
func ParseTime(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range jiraTimeLayouts {
		ts, err := time.Parse(layout, value)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Summary returns the issue summary, or "" when absent.
func (t *Ticket) Summary() string {
	return t.stringField("summary")
}

// IssueTypeName returns the issue type name, or "" when absent.
func (t *Ticket) IssueTypeName() string {
	return t.nestedName("issuetype")
}

// StatusName returns the status name, or "" when absent.
func (t *Ticket) StatusName() string {
	return t.nestedName("status")
}

// SubtaskKeys returns the keys of the ticket's direct subtasks in the
// order the tracker reported them.
func (t *Ticket) SubtaskKeys() []string {
	var keys []string
	subtasks, _ := t.Fields["subtasks"].([]any)
	for _, raw := range subtasks {
		sub, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if key, ok := sub["key"].(string); ok && key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// Updated returns the last-updated timestamp when present and parseable.
func (t *Ticket) Updated() (time.Time, bool) {
	return t.timeField("updated")
}

// UpdatedRaw returns the unparsed updated field, or "".
func (t *Ticket) UpdatedRaw() string {
	return t.stringField("updated")
}

// Created returns the creation timestamp when present and parseable.
func (t *Ticket) Created() (time.Time, bool) {
	return t.timeField("created")
}

// RankValue returns the numeric rank when the Rank field holds a number
// or a numeric string.
func (t *Ticket) RankValue() (float64, bool) {
	switch v := t.Fields["Rank"].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		rank, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return rank, true
	}
	return 0, false
}

func (t *Ticket) stringField(name string) string {
	s, _ := t.Fields[name].(string)
	return s
}

func (t *Ticket) nestedName(field string) string {
	obj, ok := t.Fields[field].(map[string]any)
	if !ok {
		return ""
	}
	name, _ := obj["name"].(string)
	return name
}

func (t *Ticket) timeField(name string) (time.Time, bool) {
	raw := t.stringField(name)
	if raw == "" {
		return time.Time{}, false
	}
	ts, err := ParseTime(raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// PersonNames extracts person display names from a field value that is
// either a single person object or a list of them. Anything else yields
// no names.
func PersonNames(value any) []string {
	var names []string
	switch v := value.(type) {
	case map[string]any:
		if name, ok := v["displayName"].(string); ok && name != "" {
			names = append(names, name)
		}
	case []any:
		for _, item := range v {
			person, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if name, ok := person["displayName"].(string); ok && name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
