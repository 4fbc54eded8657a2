package mail

import (
	"context"
	"fmt"
	"mime"
	"net"
	netmail "net/mail"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Message is one outbound mail.
type Message struct {
	Sender    string // RFC 5322 From, e.g. "GitBox <git@apache.org>"
	Recipient string
	Subject   string
	Body      string
	MessageID string            // with angle brackets
	Headers   map[string]string // extra headers such as In-Reply-To
}

// Mailer delivers messages. Implementations must be safe for concurrent
// use; the delivery pool calls Send from multiple goroutines.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTP delivers through a relay over plain SMTP, the same trust model as
// a localhost MTA.
type SMTP struct {
	addr string // host:port
}

// NewSMTP returns a mailer speaking to the relay at addr.
func NewSMTP(addr string) *SMTP {
	return &SMTP{addr: addr}
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	from, err := netmail.ParseAddress(msg.Sender)
	if err != nil {
		return fmt.Errorf("parsing sender %q: %w", msg.Sender, err)
	}
	host, _, err := net.SplitHostPort(s.addr)
	if err != nil {
		return fmt.Errorf("bad smtp address %q: %w", s.addr, err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dialing smtp relay: %w", err)
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if err := c.Mail(from.Address); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(msg.Recipient); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(Encode(msg)); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message: %w", err)
	}
	return c.Quit()
}

// Encode assembles the RFC 5322 wire form of a message.
func Encode(msg Message) []byte {
	var b strings.Builder
	writeHeader := func(name, value string) {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}

	writeHeader("From", msg.Sender)
	writeHeader("To", msg.Recipient)
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader("Date", time.Now().Format(time.RFC1123Z))
	if msg.MessageID != "" {
		writeHeader("Message-ID", msg.MessageID)
	}
	// Extra headers in stable order.
	extra := make([]string, 0, len(msg.Headers))
	for name := range msg.Headers {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		writeHeader(name, msg.Headers[name])
	}
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", `text/plain; charset="utf-8"`)
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Discard logs messages instead of sending them; backs dry-run mode.
type Discard struct{}

func (Discard) Send(_ context.Context, msg Message) error {
	log.Info().
		Str("recipient", msg.Recipient).
		Str("subject", msg.Subject).
		Str("message_id", msg.MessageID).
		Msg("Dry run, mail not sent")
	return nil
}
