package routing

import (
	"errors"
	"regexp"

	"github.com/rs/zerolog/log"

	"github.com/gitnotify/internal/repos"
)

// Special resolution categories, alongside the event kinds "issue" and
// "pullrequest".
const (
	CategoryCommit = "commit"
	CategoryJira   = "jira"
)

// Scheme keys with dedicated fallback handling.
const (
	keyCommits      = "commits"
	keyIssues       = "issues"
	keyPullRequests = "pullrequests"
	keyJiraOptions  = "jira_options"
)

// ErrNoDestination means the repository has routing configuration but none
// of the candidate rules for this event carry a non-empty value. Callers
// decide whether to skip the notification; the resolver never substitutes
// a guessed address for a configured repository.
var ErrNoDestination = errors.New("no destination configured for event")

var projectPattern = regexp.MustCompile(`^(?:incubator-)?([^-]+)`)

// botChecker classifies actors; satisfied by *bots.Classifier.
type botChecker interface {
	IsBot(actor string) bool
	Strip(actor string) string
}

// repoStore provides the on-disk repository layers; satisfied by
// *repos.Store.
type repoStore interface {
	Locate(repository string) string
	ReadSettings(repoPath string) repos.Settings
	ReadLegacyConfig(repoPath string) repos.LegacyConfig
}

// Resolver computes the destination address for an event from layered
// per-repository configuration. The scheme is rebuilt on every call;
// underlying files may change between events and event rates are low
// enough that freshness beats caching.
type Resolver struct {
	store              repoStore
	bots               botChecker
	defaultRecipient   string
	defaultJiraOptions string
}

// NewResolver wires a resolver to its repository store and bot classifier.
// defaultRecipient backs the commits fallback; defaultJiraOptions backs
// the jira category (empty disables issue-tracker notification by default).
func NewResolver(store repoStore, bots botChecker, defaultRecipient, defaultJiraOptions string) *Resolver {
	return &Resolver{
		store:              store,
		bots:               bots,
		defaultRecipient:   defaultRecipient,
		defaultJiraOptions: defaultJiraOptions,
	}
}

// Project derives the fallback project token from a repository id: the
// leading run of non-hyphen characters, with an optional incubator- prefix
// stripped first. Repositories that do not fit the pattern map to infra.
func Project(repository string) string {
	m := projectPattern.FindStringSubmatch(repository)
	if m == nil {
		return "infra"
	}
	return m[1]
}

// Resolve returns the destination for (repository, category, action,
// actor). Category is the event kind ("issue", "pullrequest") or one of
// the special categories "commit" and "jira". For repositories with no
// routing configuration at all the last-resort address
// dev@<project>.apache.org applies (jira falls back to the global default
// options instead); for configured repositories with no matching rule the
// result is ErrNoDestination.
func (r *Resolver) Resolve(repository, category, action, actor string) (string, error) {
	scheme := r.buildScheme(repository)

	switch category {
	case CategoryCommit:
		if v := scheme[keyCommits]; v != "" {
			return v, nil
		}
		return r.defaultRecipient, nil
	case CategoryJira:
		if v := scheme[keyJiraOptions]; v != "" {
			return v, nil
		}
		return r.defaultJiraOptions, nil
	}

	kind := keyPullRequests
	if category == "issue" {
		kind = keyIssues
	}

	botActor := ""
	if r.bots != nil && r.bots.IsBot(actor) {
		botActor = r.bots.Strip(actor)
	}

	for _, cand := range Candidates(kind, ClassifyAction(action), botActor) {
		if v := scheme[cand.Key()]; v != "" {
			log.Debug().
				Str("repository", repository).
				Str("rule", cand.Key()).
				Str("destination", v).
				Msg("Resolved destination")
			return v, nil
		}
	}

	if len(scheme) == 0 {
		return "dev@" + Project(repository) + ".apache.org", nil
	}
	return "", ErrNoDestination
}

// buildScheme assembles the layered routing scheme for one repository:
// settings file first, then legacy git config for keys the settings file
// left unset. A repository that is not hosted here yields an empty scheme.
func (r *Resolver) buildScheme(repository string) map[string]string {
	scheme := map[string]string{}
	path := r.store.Locate(repository)
	if path == "" {
		return scheme
	}

	for key, value := range r.store.ReadSettings(path).Routes {
		scheme[key] = value
	}

	legacy := r.store.ReadLegacyConfig(path)
	if _, set := scheme[keyCommits]; !set {
		if v, ok := legacy.Get("hooks", "asfgit", "recips"); ok {
			scheme[keyCommits] = v
		}
	}
	if v, ok := legacy.Get("apache", "", "dev"); ok {
		if _, set := scheme[keyIssues]; !set {
			scheme[keyIssues] = v
		}
		if _, set := scheme[keyPullRequests]; !set {
			scheme[keyPullRequests] = v
		}
	}
	if v, ok := legacy.Get("apache", "", "jira"); ok {
		if _, set := scheme[keyJiraOptions]; !set {
			scheme[keyJiraOptions] = v
		}
	}
	return scheme
}
