package jira

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

var ticketPattern = regexp.MustCompile(`\b([A-Z0-9]+-\d+)\b`)

// TicketFromTitle extracts the first ticket id from an event title, e.g.
// "Fix the parser [FOO-123]" yields "FOO-123". Empty when no id appears.
func TicketFromTitle(title string) string {
	m := ticketPattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return m[1]
}

// ticketAPI is the slice of the client the notifier uses.
type ticketAPI interface {
	UpdateTicket(ctx context.Context, ticket, text string, worklog bool) error
	RemoteLink(ctx context.Context, ticket, url, id string) error
	AddLabel(ctx context.Context, ticket string) error
}

// Notifier applies the per-repository tracker options to one event.
// Tracker updates are best-effort: every failure is logged and swallowed,
// never surfaced to the dispatch pipeline.
type Notifier struct {
	api ticketAPI
}

// NewNotifier wraps a tracker client.
func NewNotifier(api ticketAPI) *Notifier {
	return &Notifier{api: api}
}

// Notify inspects the options string for enabled sub-actions and applies
// them to the ticket referenced by the event title. Options may contain
// any of: comment, worklog, link, label. The body is truncated at the
// first mail signature marker before posting.
func (n *Notifier) Notify(ctx context.Context, options, id, title, body, link string) {
	ticket := TicketFromTitle(title)
	if ticket == "" {
		return
	}
	text, _, _ := strings.Cut(body, "-- ")

	if strings.Contains(options, "worklog") || strings.Contains(options, "comment") {
		worklog := strings.Contains(options, "worklog")
		log.Info().Str("ticket", ticket).Bool("worklog", worklog).Msg("Adding tracker comment")
		if err := n.api.UpdateTicket(ctx, ticket, text, worklog); err != nil {
			log.Warn().Str("ticket", ticket).Err(err).Msg("Could not update tracker ticket")
		}
	}
	if strings.Contains(options, "link") {
		log.Info().Str("ticket", ticket).Str("link", link).Msg("Setting tracker remote link")
		if err := n.api.RemoteLink(ctx, ticket, link, id); err != nil {
			log.Warn().Str("ticket", ticket).Err(err).Msg("Could not set tracker remote link")
		}
	}
	if strings.Contains(options, "label") {
		log.Info().Str("ticket", ticket).Msg("Setting tracker label")
		if err := n.api.AddLabel(ctx, ticket); err != nil {
			log.Warn().Str("ticket", ticket).Err(err).Msg("Could not set tracker label")
		}
	}
}
