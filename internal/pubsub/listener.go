package pubsub

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gitnotify/pkg/shared"
)

// Handler receives one decoded feed envelope. Envelopes without a payload
// are heartbeats; interpretation is the handler's business.
type Handler func(ctx context.Context, envelope map[string]any)

// Listener consumes a pubsub feed: a long-lived HTTP response streaming
// one JSON object per line. It reconnects with exponential backoff and
// keeps running until its context is cancelled.
type Listener struct {
	url     string
	creds   shared.Credentials
	client  *http.Client
	handler Handler
}

// NewListener wires a listener to a feed URL. creds may be zero for
// anonymous feeds.
func NewListener(url string, creds shared.Credentials, handler Handler) *Listener {
	return &Listener{
		url:   url,
		creds: creds,
		// No client timeout: the response body is an endless stream.
		// Cancellation comes from the request context.
		client:  &http.Client{},
		handler: handler,
	}
}

// Run connects and dispatches envelopes until ctx is cancelled. Stream
// errors trigger a reconnect after a backoff delay; a connection that
// delivered at least one envelope resets the delay.
func (l *Listener) Run(ctx context.Context) error {
	retry := newBackoff(time.Second, time.Minute)
	for {
		delivered, err := l.stream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered > 0 {
			retry.reset()
		}
		delay := retry.next()
		log.Warn().
			Str("url", l.url).
			Int("envelopes", delivered).
			Dur("retry_in", delay).
			Err(err).
			Msg("Event stream disconnected")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// stream holds one connection open and dispatches each line, returning
// how many envelopes it delivered and why the stream ended.
func (l *Listener) stream(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return 0, fmt.Errorf("building feed request: %w", err)
	}
	if l.creds.IsSet() {
		req.SetBasicAuth(l.creds.User, l.creds.Password)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("connecting to feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
	log.Info().Str("url", l.url).Msg("Connected to event feed")

	delivered := 0
	scanner := bufio.NewScanner(resp.Body)
	// Diff payloads can be large; give the scanner room.
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var envelope map[string]any
		if err := json.Unmarshal(line, &envelope); err != nil {
			log.Debug().Err(err).Msg("Skipping unparseable feed line")
			continue
		}
		delivered++
		l.handler(ctx, envelope)
	}
	if err := scanner.Err(); err != nil {
		return delivered, fmt.Errorf("reading feed: %w", err)
	}
	return delivered, errors.New("feed closed the stream")
}
