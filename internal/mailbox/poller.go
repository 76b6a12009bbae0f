package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/logging"
	"github.com/soyeahso/triage/internal/metrics"
	"github.com/soyeahso/triage/internal/triage"
)

// Ingester accepts one email. *triage.Service satisfies it.
type Ingester interface {
	IngestEmail(ctx context.Context, in triage.EmailInput) (*domain.EmailResult, error)
}

// Stats summarizes one poll.
type Stats struct {
	Fetched   int
	Processed int
	Pending   int
	Duplicate int
	Failed    int
}

// Poller periodically drains unread mail into an Ingester.
type Poller struct {
	dial     Dialer
	ingest   Ingester
	interval time.Duration
	log      *logging.Logger
}

// NewPoller creates a poller. A non-positive interval defaults to a minute.
func NewPoller(dial Dialer, ingest Ingester, interval time.Duration, log *logging.Logger) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		dial:     dial,
		ingest:   ingest,
		interval: interval,
		log:      log.Sub("mailbox"),
	}
}

// Run polls immediately and then every interval until ctx is cancelled.
// Poll errors are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info().Dur("interval", p.interval).Msg("mailbox poller started")
	defer p.log.Info().Msg("mailbox poller stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if _, err := p.PollOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Warn().Err(err).Msg("mailbox poll failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce fetches unread messages and ingests them in UID order. Messages
// that ingest successfully, whatever their status, are marked seen; failures
// stay unread so the next poll retries them.
func (p *Poller) PollOnce(ctx context.Context) (stats Stats, err error) {
	defer func() { metrics.MailboxPoll(err) }()

	src, err := p.dial(ctx)
	if err != nil {
		return stats, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			p.log.Debug().Err(cerr).Msg("closing mailbox")
		}
	}()

	msgs, err := src.Unseen(ctx, maxPerPoll)
	stats.Fetched = len(msgs)
	if err != nil && len(msgs) == 0 {
		return stats, err
	}
	fetchErr := err

	var seen []uint32
	for _, m := range msgs {
		if ctx.Err() != nil {
			break
		}
		res, ierr := p.ingest.IngestEmail(ctx, m.Input())
		if ierr != nil {
			stats.Failed++
			p.log.Warn().Err(ierr).Str("messageId", m.MessageID).Uint32("uid", m.UID).Msg("ingest failed")
			continue
		}
		switch res.Status {
		case domain.EmailProcessed:
			stats.Processed++
		case domain.EmailPendingTenant:
			stats.Pending++
		case domain.EmailDuplicateSkipped:
			stats.Duplicate++
		}
		p.log.Info().
			Str("messageId", m.MessageID).
			Str("status", string(res.Status)).
			Str("tenant", res.TenantID).
			Msg("email ingested")
		seen = append(seen, m.UID)
	}

	if err := src.MarkSeen(ctx, seen); err != nil {
		// Already ingested ids come back as duplicates on the next poll.
		p.log.Warn().Err(err).Int("count", len(seen)).Msg("failed to mark messages seen")
	}

	if stats.Fetched > 0 {
		p.log.Debug().
			Int("fetched", stats.Fetched).
			Int("processed", stats.Processed).
			Int("pending", stats.Pending).
			Int("duplicate", stats.Duplicate).
			Int("failed", stats.Failed).
			Msg("mailbox poll complete")
	}

	if fetchErr != nil {
		return stats, fmt.Errorf("partial fetch: %w", fetchErr)
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}
