package dispatch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/gitnotify/internal/mail"
)

// deliveryJob carries one rendered notification plus what the tracker
// notifier needs for its secondary hand-off.
type deliveryJob struct {
	message     mail.Message
	jiraOptions string
	targetID    string
	title       string
	link        string
}

// enqueue hands a job to the delivery pool without ever blocking event
// intake. A full queue means a destination has been stuck long enough to
// back up the buffer; the job is dropped and logged.
func (p *Pipeline) enqueue(job deliveryJob) {
	select {
	case p.jobs <- job:
	default:
		log.Error().
			Str("recipient", job.message.Recipient).
			Str("message_id", job.message.MessageID).
			Msg("Delivery queue full, notification dropped")
	}
}

func (p *Pipeline) deliveryWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.deliver(ctx, job)
		}
	}
}

// deliver sends the mail and, only after a successful send, hands the
// event to the issue tracker. Both legs are best-effort.
func (p *Pipeline) deliver(ctx context.Context, job deliveryJob) {
	if err := p.mailer.Send(ctx, job.message); err != nil {
		log.Error().
			Str("recipient", job.message.Recipient).
			Str("message_id", job.message.MessageID).
			Err(err).
			Msg("Mail delivery failed")
		return
	}
	if job.jiraOptions != "" && p.tracker != nil {
		p.tracker.Notify(ctx, job.jiraOptions, job.targetID, job.title, job.message.Body, job.link)
	}
}
