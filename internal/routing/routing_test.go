package routing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitnotify/internal/bots"
	"github.com/gitnotify/internal/repos"
)

type testRepo struct {
	settings  string // notifications.yaml content, empty = no file
	gitConfig string // config content, empty = no file
}

// newTestResolver builds a resolver over a temp hosting root populated
// with the given repositories.
func newTestResolver(t *testing.T, hosted map[string]testRepo) *Resolver {
	t.Helper()
	root := t.TempDir()
	for name, tr := range hosted {
		dir := filepath.Join(root, name+".git")
		require.NoError(t, os.MkdirAll(dir, 0755))
		if tr.settings != "" {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "notifications.yaml"), []byte(tr.settings), 0644))
		}
		if tr.gitConfig != "" {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "config"), []byte(tr.gitConfig), 0644))
		}
	}
	store := repos.NewStore([]string{filepath.Join(root, "*.git")}, "notifications.yaml")
	return NewResolver(store, bots.NewClassifier("", ""), "commits@default.apache.org", "")
}

func TestProject(t *testing.T) {
	cases := map[string]string{
		"ponymail":                "ponymail",
		"incubator-ponymail-foal": "ponymail",
		"tomcat":                  "tomcat",
		"whimsy-site":             "whimsy",
		"":                        "infra",
		"-dashes":                 "infra",
	}
	for repo, want := range cases {
		assert.Equal(t, want, Project(repo), "repository %q", repo)
	}
}

func TestResolveFallback(t *testing.T) {
	t.Run("unhosted repository falls back to project dev list", func(t *testing.T) {
		r := newTestResolver(t, nil)
		got, err := r.Resolve("incubator-ponymail-foal", "pullrequest", "comment", "alice")
		require.NoError(t, err)
		assert.Equal(t, "dev@ponymail.apache.org", got)
	})

	t.Run("hosted repository with no settings and no legacy config", func(t *testing.T) {
		r := newTestResolver(t, map[string]testRepo{"foo": {}})
		got, err := r.Resolve("foo", "issue", "open", "alice")
		require.NoError(t, err)
		assert.Equal(t, "dev@foo.apache.org", got)
	})
}

func TestResolveLayering(t *testing.T) {
	gitConfig := `[hooks "asfgit"]
	recips = gitcommits@foo.apache.org
[apache]
	dev = gitdev@foo.apache.org
	jira = worklog
`

	t.Run("settings file wins over legacy config", func(t *testing.T) {
		r := newTestResolver(t, map[string]testRepo{"foo": {
			settings:  "pullrequests: filedest@foo.apache.org\n",
			gitConfig: gitConfig,
		}})
		got, err := r.Resolve("foo", "pullrequest", "comment", "alice")
		require.NoError(t, err)
		assert.Equal(t, "filedest@foo.apache.org", got)
	})

	t.Run("legacy dev key fills both issues and pullrequests", func(t *testing.T) {
		r := newTestResolver(t, map[string]testRepo{"foo": {gitConfig: gitConfig}})

		pr, err := r.Resolve("foo", "pullrequest", "comment", "alice")
		require.NoError(t, err)
		assert.Equal(t, "gitdev@foo.apache.org", pr)

		issue, err := r.Resolve("foo", "issue", "open", "alice")
		require.NoError(t, err)
		assert.Equal(t, "gitdev@foo.apache.org", issue)
	})

	t.Run("settings issues entry beats legacy dev key", func(t *testing.T) {
		r := newTestResolver(t, map[string]testRepo{"foo": {
			settings:  "issues: tracker@foo.apache.org\n",
			gitConfig: gitConfig,
		}})
		got, err := r.Resolve("foo", "issue", "comment", "alice")
		require.NoError(t, err)
		assert.Equal(t, "tracker@foo.apache.org", got)
	})
}

func TestResolveRulePrecedence(t *testing.T) {
	t.Run("class rule beats kind rule", func(t *testing.T) {
		r := newTestResolver(t, map[string]testRepo{"foo": {
			settings: "pullrequests_comment: reviews@foo.apache.org\npullrequests: dev@foo.apache.org\n",
		}})
		got, err := r.Resolve("foo", "pullrequest", "comment", "alice")
		require.NoError(t, err)
		assert.Equal(t, "reviews@foo.apache.org", got)
	})

	t.Run("status actions use the status rule", func(t *testing.T) {
		r := newTestResolver(t, map[string]testRepo{"foo": {
			settings: "pullrequests_status: status@foo.apache.org\npullrequests: dev@foo.apache.org\n",
		}})
		for _, action := range []string{"open", "close", "merge"} {
			got, err := r.Resolve("foo", "pullrequest", action, "alice")
			require.NoError(t, err)
			assert.Equal(t, "status@foo.apache.org", got, "action %s", action)
		}
		got, err := r.Resolve("foo", "pullrequest", "comment", "alice")
		require.NoError(t, err)
		assert.Equal(t, "dev@foo.apache.org", got)
	})

	t.Run("empty rule values are skipped", func(t *testing.T) {
		r := newTestResolver(t, map[string]testRepo{"foo": {
			settings: "pullrequests_comment: \"\"\npullrequests: dev@foo.apache.org\n",
		}})
		got, err := r.Resolve("foo", "pullrequest", "comment", "alice")
		require.NoError(t, err)
		assert.Equal(t, "dev@foo.apache.org", got)
	})
}

func TestResolveBots(t *testing.T) {
	settings := `pullrequests_comment_bot_dependabot: botspam@foo.apache.org
pullrequests_bot_dependabot: botdev@foo.apache.org
pullrequests_comment: reviews@foo.apache.org
pullrequests: dev@foo.apache.org
`

	t.Run("bot actor matches bot-specific rules first", func(t *testing.T) {
		r := newTestResolver(t, map[string]testRepo{"foo": {settings: settings}})
		got, err := r.Resolve("foo", "pullrequest", "comment", "dependabot[bot]")
		require.NoError(t, err)
		assert.Equal(t, "botspam@foo.apache.org", got)
	})

	t.Run("bot falls through to class rule when unlisted", func(t *testing.T) {
		r := newTestResolver(t, map[string]testRepo{"foo": {settings: settings}})
		got, err := r.Resolve("foo", "pullrequest", "comment", "renovate[bot]")
		require.NoError(t, err)
		assert.Equal(t, "reviews@foo.apache.org", got)
	})

	t.Run("human actor never matches bot rules", func(t *testing.T) {
		r := newTestResolver(t, map[string]testRepo{"foo": {settings: settings}})
		// A human account literally named dependabot must not hit the
		// bot-qualified rules.
		got, err := r.Resolve("foo", "pullrequest", "comment", "dependabot")
		require.NoError(t, err)
		assert.Equal(t, "reviews@foo.apache.org", got)
	})
}

func TestResolveSpecialCategories(t *testing.T) {
	gitConfig := `[hooks "asfgit"]
	recips = gitcommits@foo.apache.org
[apache]
	jira = link label
`

	t.Run("commit category reads the commits key", func(t *testing.T) {
		r := newTestResolver(t, map[string]testRepo{"foo": {gitConfig: gitConfig}})
		got, err := r.Resolve("foo", CategoryCommit, "", "alice")
		require.NoError(t, err)
		assert.Equal(t, "gitcommits@foo.apache.org", got)
	})

	t.Run("commit category falls back to the global default", func(t *testing.T) {
		r := newTestResolver(t, map[string]testRepo{"foo": {}})
		got, err := r.Resolve("foo", CategoryCommit, "", "alice")
		require.NoError(t, err)
		assert.Equal(t, "commits@default.apache.org", got)
	})

	t.Run("jira category reads jira_options", func(t *testing.T) {
		r := newTestResolver(t, map[string]testRepo{"foo": {gitConfig: gitConfig}})
		got, err := r.Resolve("foo", CategoryJira, "", "alice")
		require.NoError(t, err)
		assert.Equal(t, "link label", got)
	})

	t.Run("jira category defaults empty when unconfigured", func(t *testing.T) {
		r := newTestResolver(t, map[string]testRepo{"foo": {}})
		got, err := r.Resolve("foo", CategoryJira, "", "alice")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("settings jira_options beats legacy jira key", func(t *testing.T) {
		r := newTestResolver(t, map[string]testRepo{"foo": {
			settings:  "jira_options: comment\n",
			gitConfig: gitConfig,
		}})
		got, err := r.Resolve("foo", CategoryJira, "", "alice")
		require.NoError(t, err)
		assert.Equal(t, "comment", got)
	})
}

func TestResolveNoDestination(t *testing.T) {
	// A repository that configures some routing but nothing applicable to
	// this event yields the explicit no-destination outcome instead of a
	// guessed address.
	r := newTestResolver(t, map[string]testRepo{"foo": {
		settings: "commits: commits@foo.apache.org\n",
	}})
	_, err := r.Resolve("foo", "pullrequest", "comment", "alice")
	assert.ErrorIs(t, err, ErrNoDestination)
}

func TestCandidates(t *testing.T) {
	keys := func(cands []Candidate) []string {
		out := make([]string, len(cands))
		for i, c := range cands {
			out[i] = c.Key()
		}
		return out
	}

	t.Run("human comment on a pull request", func(t *testing.T) {
		got := keys(Candidates("pullrequests", ClassComment, ""))
		assert.Equal(t, []string{"pullrequests_comment", "pullrequests"}, got)
	})

	t.Run("bot status on an issue", func(t *testing.T) {
		got := keys(Candidates("issues", ClassStatus, "dependabot"))
		assert.Equal(t, []string{
			"issues_status_bot_dependabot",
			"issues_bot_dependabot",
			"issues_status",
			"issues",
		}, got)
	})

	t.Run("unknown action class emits no class rules", func(t *testing.T) {
		got := keys(Candidates("pullrequests", ClassUnknown, ""))
		assert.Equal(t, []string{"pullrequests"}, got)
	})
}

func TestClassifyAction(t *testing.T) {
	commentLike := []string{"comment", "diffcomment", "diffcomment_collated", "edited", "deleted", "created"}
	for _, action := range commentLike {
		assert.Equal(t, ClassComment, ClassifyAction(action), "action %s", action)
	}
	for _, action := range []string{"open", "close", "merge"} {
		assert.Equal(t, ClassStatus, ClassifyAction(action), "action %s", action)
	}
	assert.Equal(t, ClassUnknown, ClassifyAction("labeled"))
	assert.Equal(t, ClassUnknown, ClassifyAction(""))
}
