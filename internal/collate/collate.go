package collate

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gitnotify/pkg/models"
)

// DefaultQuietPeriod is how long a diff-comment batch waits for further
// comments before it is flushed as one collated event.
const DefaultQuietPeriod = 10 * time.Second

// diffBlurb is the per-file block appended for each comment in a batch.
const diffBlurb = `
##########
%s:
##########
%s

Review Comment:
%s
`

// batch is one in-flight diff review: the first event as template base
// plus the formatted blocks in arrival order.
type batch struct {
	created time.Time
	blocks  []string
	base    models.Event
}

// Collator debounces per-review file comments. Reviewers commonly post
// several file-level comments within seconds; one message per comment
// would flood the list, so comments are batched per (repository, target,
// actor) and emitted as a single digest after a quiet period. Batches live
// only in memory and are discarded on shutdown.
type Collator struct {
	mu      sync.Mutex
	quiet   time.Duration
	pending map[string]*batch
}

// New returns a collator with the given quiet period; zero or negative
// durations fall back to DefaultQuietPeriod.
func New(quiet time.Duration) *Collator {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Collator{
		quiet:   quiet,
		pending: map[string]*batch{},
	}
}

// Add appends the event's comment block to its batch, creating the batch
// with the event as template base on first use.
func (c *Collator) Add(ev models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := ev.CollationKey()
	b, ok := c.pending[key]
	if !ok {
		b = &batch{created: time.Now(), base: ev}
		c.pending[key] = b
	}
	b.blocks = append(b.blocks, fmt.Sprintf(diffBlurb, ev.Filename, ev.Diff, ev.Body))
}

// Flush emits a collated event for every batch older than the quiet
// period, removing it from pending state. Younger batches are left for a
// later tick. The emitted events carry the first event's fields with the
// accumulated blocks joined into Diff and the action rewritten, ready to
// be dispatched through the full pipeline.
func (c *Collator) Flush(now time.Time) []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var emitted []models.Event
	cutoff := now.Add(-c.quiet)
	for key, b := range c.pending {
		if !b.created.Before(cutoff) {
			continue
		}
		log.Info().
			Str("key", key).
			Int("comments", len(b.blocks)).
			Msg("Flushing collated diff comments")
		ev := b.base
		ev.Diff = strings.Join(b.blocks, "\n\n")
		ev.Action = models.ActionDiffCollated
		emitted = append(emitted, ev)
		delete(c.pending, key)
	}
	return emitted
}

// Pending reports the number of open batches.
func (c *Collator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
