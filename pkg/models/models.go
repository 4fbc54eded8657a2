package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Actions as they appear on the event feed.
const (
	ActionOpen         = "open"
	ActionClose        = "close"
	ActionMerge        = "merge"
	ActionCreated      = "created"
	ActionEdited       = "edited"
	ActionDeleted      = "deleted"
	ActionComment      = "comment"
	ActionDiffComment  = "diffcomment"
	ActionDiffCollated = "diffcomment_collated"
)

// Target kinds as they appear on the event feed.
const (
	KindIssue       = "issue"
	KindPullRequest = "pullrequest"
)

// Event is a normalized code-hosting event. Immutable once constructed;
// the dispatcher and collator copy it by value.
type Event struct {
	Repository string // repository id, e.g. "incubator-ponymail-foal"
	Actor      string // acting account id
	Action     string // one of the Action* constants
	Kind       string // "issue" or "pullrequest"
	ID         string // issue/PR number
	Title      string
	Body       string
	Link       string // permalink URL
	ThreadID   string // stable per-thread id, drives mail threading
	Filename   string // diff comments only
	Diff       string // diff comments only
	Changes    string // non-empty when an "open" is an edit rather than a first message
}

// FromPayload builds an Event from a raw feed payload. Missing fields
// default to empty strings; events are never rejected for shape.
func FromPayload(p map[string]any) Event {
	return Event{
		Repository: stringField(p, "repo"),
		Actor:      stringField(p, "user"),
		Action:     stringField(p, "action"),
		Kind:       stringField(p, "type"),
		ID:         stringField(p, "id"),
		Title:      stringField(p, "title"),
		Body:       stringField(p, "text"),
		Link:       stringField(p, "link"),
		ThreadID:   stringField(p, "node_id"),
		Filename:   stringField(p, "filename"),
		Diff:       stringField(p, "diff"),
		Changes:    stringField(p, "changes"),
	}
}

// RealAction is the template selector: the action name suffixed with the
// target kind, e.g. "open_pr" or "comment_issue". Anything that is not an
// issue counts as a pull request.
func (e Event) RealAction() string {
	suffix := "pr"
	if e.Kind == KindIssue {
		suffix = "issue"
	}
	return e.Action + "_" + suffix
}

// CollationKey identifies the diff-comment batch this event belongs to:
// one batch per (repository, target id, actor).
func (e Event) CollationKey() string {
	return e.Repository + "-" + e.ID + "-" + e.Actor
}

// FieldMap returns the substitution fields every template may reference.
// The dispatcher adds recipient-derived fields (ml, ml_list, ml_domain)
// and real_action on top before rendering.
func (e Event) FieldMap() map[string]string {
	return map[string]string{
		"repository": e.Repository,
		"user":       e.Actor,
		"action":     e.Action,
		"type":       e.Kind,
		"id":         e.ID,
		"pr_id":      e.ID,
		"issue_id":   e.ID,
		"title":      e.Title,
		"text":       e.Body,
		"link":       e.Link,
		"filename":   e.Filename,
		"diff":       e.Diff,
		"node_id":    e.ThreadID,
	}
}

// stringField reads a payload value as a string. Numbers are rendered in
// their shortest form so a JSON 1234 and a JSON "1234" come out the same.
func stringField(p map[string]any, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
