package routing

import (
	"strings"

	"github.com/gitnotify/pkg/models"
)

// ActionClass groups feed actions into the rule families a routing scheme
// can target.
type ActionClass int

const (
	ClassUnknown ActionClass = iota
	ClassComment
	ClassStatus
)

func (c ActionClass) String() string {
	switch c {
	case ClassComment:
		return "comment"
	case ClassStatus:
		return "status"
	default:
		return "unknown"
	}
}

// ClassifyAction maps a feed action onto its rule class. Actions outside
// the two known families match no comment/status rule.
func ClassifyAction(action string) ActionClass {
	switch action {
	case models.ActionComment, models.ActionDiffComment, models.ActionDiffCollated,
		models.ActionEdited, models.ActionDeleted, models.ActionCreated:
		return ClassComment
	case models.ActionOpen, models.ActionClose, models.ActionMerge:
		return ClassStatus
	default:
		return ClassUnknown
	}
}

// Candidate is one scheme rule to try during resolution.
type Candidate struct {
	Kind     string      // "issues" or "pullrequests"
	Class    ActionClass // comment/status qualifier, ClassUnknown when unqualified
	BotActor string      // marker-stripped actor id for bot-specific rules
}

// Key renders the candidate as the scheme key it matches against.
func (c Candidate) Key() string {
	parts := []string{c.Kind}
	if c.Class != ClassUnknown {
		parts = append(parts, c.Class.String())
	}
	if c.BotActor != "" {
		parts = append(parts, "bot", c.BotActor)
	}
	return strings.Join(parts, "_")
}

// Candidates builds the ordered rule list for one lookup, most specific
// first. Bot-qualified rules are only emitted for bot actors; an unknown
// action class emits no class-qualified rules.
func Candidates(kind string, class ActionClass, botActor string) []Candidate {
	var out []Candidate
	if botActor != "" {
		if class != ClassUnknown {
			out = append(out, Candidate{Kind: kind, Class: class, BotActor: botActor})
		}
		out = append(out, Candidate{Kind: kind, BotActor: botActor})
	}
	if class != ClassUnknown {
		out = append(out, Candidate{Kind: kind, Class: class})
	}
	out = append(out, Candidate{Kind: kind})
	return out
}
