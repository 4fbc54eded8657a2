package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gitnotify/internal/mail"
	"github.com/gitnotify/internal/repos"
	"github.com/gitnotify/internal/routing"
	"github.com/gitnotify/internal/templates"
	"github.com/gitnotify/pkg/models"
)

// recipientResolver computes destinations; satisfied by *routing.Resolver.
type recipientResolver interface {
	Resolve(repository, category, action, actor string) (string, error)
}

// renderer produces subject and body; satisfied by *templates.Store.
type renderer interface {
	Render(key string, fields map[string]string, overrides map[string]string) (string, string, error)
}

// collator batches diff comments; satisfied by *collate.Collator.
type collator interface {
	Add(ev models.Event)
	Flush(now time.Time) []models.Event
}

// overrideSource reads per-repository subject overrides on demand;
// satisfied by *repos.Store.
type overrideSource interface {
	Locate(repository string) string
	ReadSettings(repoPath string) repos.Settings
}

// trackerNotifier applies issue-tracker sub-actions; satisfied by
// *jira.Notifier. Failures stay inside the notifier.
type trackerNotifier interface {
	Notify(ctx context.Context, options, id, title, body, link string)
}

// Options tunes one pipeline.
type Options struct {
	Sender      string   // From identity for outbound mail
	MsgidDomain string   // domain of the deterministic thread message id
	Allow       []string // repository allow-list; empty allows all
	Deny        []string // repository deny-list
	Workers     int      // delivery pool size
	QueueSize   int      // delivery queue depth
}

// Pipeline routes one event at a time through filter, collation, recipient
// resolution, rendering and delivery. Nothing in here is fatal: a failed
// event is dropped with a log line and the next one proceeds.
type Pipeline struct {
	resolver  recipientResolver
	renderer  renderer
	collator  collator
	overrides overrideSource
	mailer    mail.Mailer
	tracker   trackerNotifier

	sender      string
	msgidDomain string
	allow       map[string]struct{}
	deny        map[string]struct{}

	workers int
	jobs    chan deliveryJob
}

// New assembles a pipeline. tracker may be nil when issue-tracker
// notification is unconfigured.
func New(opts Options, resolver recipientResolver, rend renderer, coll collator,
	overrides overrideSource, mailer mail.Mailer, tracker trackerNotifier) *Pipeline {

	if opts.Sender == "" {
		opts.Sender = "GitBox <git@apache.org>"
	}
	if opts.MsgidDomain == "" {
		opts.MsgidDomain = "gitbox.apache.org"
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}

	p := &Pipeline{
		resolver:    resolver,
		renderer:    rend,
		collator:    coll,
		overrides:   overrides,
		mailer:      mailer,
		tracker:     tracker,
		sender:      opts.Sender,
		msgidDomain: opts.MsgidDomain,
		workers:     opts.Workers,
		jobs:        make(chan deliveryJob, opts.QueueSize),
	}
	if len(opts.Allow) > 0 {
		p.allow = map[string]struct{}{}
		for _, repo := range opts.Allow {
			p.allow[repo] = struct{}{}
		}
	}
	if len(opts.Deny) > 0 {
		p.deny = map[string]struct{}{}
		for _, repo := range opts.Deny {
			p.deny[repo] = struct{}{}
		}
	}
	return p
}

// Start launches the delivery workers. They run until ctx is cancelled;
// jobs still queued at that point are discarded, consistent with the
// no-guaranteed-delivery stance.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.deliveryWorker(ctx)
	}
}

// HandleRaw processes one feed envelope. An envelope without a payload is
// a heartbeat: it triggers a collation-flush check instead of event
// processing.
func (p *Pipeline) HandleRaw(ctx context.Context, envelope map[string]any) {
	payload, ok := envelope["payload"].(map[string]any)
	if !ok || len(payload) == 0 {
		p.FlushDue(ctx)
		return
	}
	p.Handle(ctx, models.FromPayload(payload))
}

// FlushDue emits every collation batch past its quiet period, dispatching
// each collated event through the full pipeline as if freshly received.
func (p *Pipeline) FlushDue(ctx context.Context) {
	for _, ev := range p.collator.Flush(time.Now()) {
		p.Handle(ctx, ev)
	}
}

// Handle runs one event through the dispatch states. Gates drop the event
// by returning early; only delivery leaves this goroutine.
func (p *Pipeline) Handle(ctx context.Context, ev models.Event) {
	if !p.filter(ev.Repository) {
		log.Debug().Str("repository", ev.Repository).Msg("Repository filtered, event dropped")
		return
	}

	if ev.Action == models.ActionDiffComment {
		p.collator.Add(ev)
		return
	}

	dest, err := p.resolver.Resolve(ev.Repository, ev.Kind, ev.Action, ev.Actor)
	if err != nil {
		if errors.Is(err, routing.ErrNoDestination) {
			log.Info().
				Str("repository", ev.Repository).
				Str("action", ev.Action).
				Msg("No destination configured, event skipped")
		} else {
			log.Warn().Str("repository", ev.Repository).Err(err).Msg("Recipient resolution failed")
		}
		return
	}

	jiraOptions, err := p.resolver.Resolve(ev.Repository, routing.CategoryJira, ev.Action, ev.Actor)
	if err != nil {
		jiraOptions = ""
	}

	realAction := ev.RealAction()
	fields := Fields(ev, dest)

	subject, body, err := p.renderer.Render(realAction, fields, p.subjectOverrides(ev.Repository))
	if err != nil {
		if errors.Is(err, templates.ErrNoTemplate) {
			log.Debug().Str("action", realAction).Msg("No template registered, event suppressed")
		} else {
			log.Warn().Str("action", realAction).Err(err).Msg("Render failed, event dropped")
		}
		return
	}

	messageID, headers := p.threadIDs(ev)
	log.Info().
		Str("repository", ev.Repository).
		Str("action", realAction).
		Str("recipient", dest).
		Str("message_id", messageID).
		Msg("Dispatching notification")

	p.enqueue(deliveryJob{
		message: mail.Message{
			Sender:    p.sender,
			Recipient: dest,
			Subject:   subject,
			Body:      body,
			MessageID: messageID,
			Headers:   headers,
		},
		jiraOptions: jiraOptions,
		targetID:    ev.ID,
		title:       ev.Title,
		link:        ev.Link,
	})
}

// Fields builds the substitution map for an event bound for dest: the
// event's own fields plus the derived real_action and mailing-list keys.
func Fields(ev models.Event, dest string) map[string]string {
	fields := ev.FieldMap()
	fields["real_action"] = ev.RealAction()
	fields["ml"] = dest
	list, domain, _ := strings.Cut(dest, "@")
	fields["ml_list"] = list
	fields["ml_domain"] = domain
	return fields
}

// filter applies the allow and deny lists.
func (p *Pipeline) filter(repository string) bool {
	if p.allow != nil {
		if _, ok := p.allow[repository]; !ok {
			return false
		}
	}
	if p.deny != nil {
		if _, ok := p.deny[repository]; ok {
			return false
		}
	}
	return true
}

// threadIDs computes the message id and threading headers. The thread
// opener gets a deterministic id derived from the thread id alone, so
// every later message can reference it without any persisted mapping;
// later messages get a fresh random id plus In-Reply-To.
func (p *Pipeline) threadIDs(ev models.Event) (string, map[string]string) {
	opener := "<" + ev.ThreadID + "@" + p.msgidDomain + ">"
	if ev.Action == models.ActionOpen && ev.Changes == "" {
		return opener, nil
	}
	followUp := "<" + ev.ThreadID + "-" + uuid.NewString() + "@" + p.msgidDomain + ">"
	return followUp, map[string]string{"In-Reply-To": opener}
}

// subjectOverrides reads the repository's custom subjects, fresh per
// event. Repositories without settings yield nil.
func (p *Pipeline) subjectOverrides(repository string) map[string]string {
	if p.overrides == nil {
		return nil
	}
	path := p.overrides.Locate(repository)
	if path == "" {
		return nil
	}
	return p.overrides.ReadSettings(path).CustomSubjects
}
