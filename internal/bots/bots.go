package bots

import (
	"bufio"
	"os"
	"strings"
)

// DefaultMarker is the substring that tags automated accounts on the feed,
// e.g. "dependabot[bot]".
const DefaultMarker = "[bot]"

// Classifier decides whether an event actor is an automated agent: either
// its id carries the bot marker, or it appears in an externally maintained
// list of known bot ids.
type Classifier struct {
	marker   string
	listPath string
}

// NewClassifier returns a classifier using the given marker substring and
// known-bots list file. Empty marker falls back to DefaultMarker; an empty
// list path disables the list lookup.
func NewClassifier(marker, listPath string) *Classifier {
	if marker == "" {
		marker = DefaultMarker
	}
	return &Classifier{marker: marker, listPath: listPath}
}

// IsBot reports whether the actor is an automated agent. The known-bots
// file is re-read on every call so operator edits take effect immediately;
// a missing file counts as an empty list.
func (c *Classifier) IsBot(actor string) bool {
	if actor == "" {
		return false
	}
	if strings.Contains(actor, c.marker) {
		return true
	}
	_, listed := c.knownBots()[actor]
	return listed
}

// Strip removes the bot marker from an actor id, for use in routing rule
// keys ("dependabot[bot]" becomes "dependabot").
func (c *Classifier) Strip(actor string) string {
	return strings.ReplaceAll(actor, c.marker, "")
}

// knownBots loads the list file: one id per line, blank lines and lines
// starting with # ignored.
func (c *Classifier) knownBots() map[string]struct{} {
	bots := map[string]struct{}{}
	if c.listPath == "" {
		return bots
	}
	f, err := os.Open(c.listPath)
	if err != nil {
		return bots
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		bots[line] = struct{}{}
	}
	return bots
}
