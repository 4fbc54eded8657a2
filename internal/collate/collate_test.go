package collate

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitnotify/pkg/models"
)

func diffEvent(repo, id, actor, filename, diff, text string) models.Event {
	return models.Event{
		Repository: repo,
		Actor:      actor,
		Action:     models.ActionDiffComment,
		Kind:       models.KindPullRequest,
		ID:         id,
		Title:      "Fix something",
		Body:       text,
		ThreadID:   "node-" + id,
		Filename:   filename,
		Diff:       diff,
	}
}

func TestCollation(t *testing.T) {
	t.Run("two comments in one batch emit one collated event", func(t *testing.T) {
		c := New(10 * time.Second)
		c.Add(diffEvent("foo", "42", "alice", "a.py", "@@ -1 +1 @@", "first"))
		c.Add(diffEvent("foo", "42", "alice", "b.py", "@@ -2 +2 @@", "second"))
		require.Equal(t, 1, c.Pending())

		// Not yet past the quiet period.
		assert.Empty(t, c.Flush(time.Now()))
		require.Equal(t, 1, c.Pending())

		emitted := c.Flush(time.Now().Add(11 * time.Second))
		require.Len(t, emitted, 1)
		assert.Equal(t, 0, c.Pending())

		ev := emitted[0]
		assert.Equal(t, models.ActionDiffCollated, ev.Action)
		assert.Equal(t, "foo", ev.Repository)
		assert.Equal(t, "42", ev.ID)
		assert.Equal(t, "alice", ev.Actor)

		// Both file blocks, in arrival order.
		first := strings.Index(ev.Diff, "a.py:")
		second := strings.Index(ev.Diff, "b.py:")
		require.GreaterOrEqual(t, first, 0)
		require.Greater(t, second, first)
		assert.Contains(t, ev.Diff, "Review Comment:\nfirst")
		assert.Contains(t, ev.Diff, "Review Comment:\nsecond")
	})

	t.Run("block carries the file header fence", func(t *testing.T) {
		c := New(10 * time.Second)
		c.Add(diffEvent("foo", "1", "alice", "x.go", "@@ diff @@", "nit"))
		emitted := c.Flush(time.Now().Add(time.Minute))
		require.Len(t, emitted, 1)
		assert.Contains(t, emitted[0].Diff, "##########\nx.go:\n##########\n@@ diff @@")
	})

	t.Run("distinct actors collate separately", func(t *testing.T) {
		c := New(10 * time.Second)
		c.Add(diffEvent("foo", "42", "alice", "a.py", "d1", "one"))
		c.Add(diffEvent("foo", "42", "bob", "a.py", "d2", "two"))
		assert.Equal(t, 2, c.Pending())

		emitted := c.Flush(time.Now().Add(time.Minute))
		assert.Len(t, emitted, 2)
	})

	t.Run("distinct targets collate separately", func(t *testing.T) {
		c := New(10 * time.Second)
		c.Add(diffEvent("foo", "42", "alice", "a.py", "d1", "one"))
		c.Add(diffEvent("foo", "43", "alice", "a.py", "d2", "two"))
		assert.Equal(t, 2, c.Pending())
	})

	t.Run("flush removes the batch exactly once", func(t *testing.T) {
		c := New(10 * time.Second)
		c.Add(diffEvent("foo", "42", "alice", "a.py", "d1", "one"))

		late := time.Now().Add(time.Minute)
		require.Len(t, c.Flush(late), 1)
		assert.Empty(t, c.Flush(late))
		assert.Empty(t, c.Flush(late.Add(time.Hour)))
	})

	t.Run("collated event keeps the first event as base", func(t *testing.T) {
		c := New(10 * time.Second)
		first := diffEvent("foo", "42", "alice", "a.py", "d1", "one")
		second := diffEvent("foo", "42", "alice", "b.py", "d2", "two")
		second.Title = "a different title"
		c.Add(first)
		c.Add(second)

		emitted := c.Flush(time.Now().Add(time.Minute))
		require.Len(t, emitted, 1)

		want := first
		want.Action = models.ActionDiffCollated
		want.Diff = fmt.Sprintf(diffBlurb, "a.py", "d1", "one") + "\n\n" +
			fmt.Sprintf(diffBlurb, "b.py", "d2", "two")
		if diff := cmp.Diff(want, emitted[0]); diff != "" {
			t.Errorf("collated event mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestConcurrentAddAndFlush(t *testing.T) {
	c := New(time.Nanosecond)

	var wg sync.WaitGroup
	collected := make(chan int, 64)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Add(diffEvent("foo", fmt.Sprintf("%d-%d", n, j), "alice", "a.py", "d", "t"))
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			collected <- len(c.Flush(time.Now().Add(time.Second)))
		}
	}()
	wg.Wait()
	close(collected)

	total := 0
	for n := range collected {
		total += n
	}
	total += len(c.Flush(time.Now().Add(time.Second)))

	// Every batch flushes exactly once, no matter how add and flush interleave.
	assert.Equal(t, 8*50, total)
	assert.Equal(t, 0, c.Pending())
}
