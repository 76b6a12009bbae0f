package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/logging"
)

// maxPerPoll bounds how many unread messages one poll pulls.
const maxPerPoll = 50

const imapCommandTimeout = 30 * time.Second

// Source is an open mailbox session.
type Source interface {
	// Unseen returns up to limit unread messages, oldest first.
	Unseen(ctx context.Context, limit int) ([]Message, error)
	// MarkSeen flags the given UIDs as read.
	MarkSeen(ctx context.Context, uids []uint32) error
	Close() error
}

// Dialer opens a Source.
type Dialer func(ctx context.Context) (Source, error)

// IMAPDialer returns a Dialer that logs in to the configured IMAP server and
// selects the intake folder read-write.
func IMAPDialer(cfg config.MailboxConfig, log *logging.Logger) Dialer {
	return func(ctx context.Context) (Source, error) {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		log.Debug().Str("addr", addr).Bool("tls", cfg.TLSEnabled()).Msg("connecting to IMAP server")

		var (
			c   *client.Client
			err error
		)
		if cfg.TLSEnabled() {
			c, err = client.DialTLS(addr, &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12})
		} else {
			c, err = client.Dial(addr)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
		}
		c.Timeout = imapCommandTimeout

		if err := c.Login(cfg.Username, cfg.Password); err != nil {
			c.Logout()
			return nil, fmt.Errorf("login failed: %w", err)
		}

		status, err := c.Select(cfg.Mailbox, false)
		if err != nil {
			c.Logout()
			return nil, fmt.Errorf("failed to select mailbox %s: %w", cfg.Mailbox, err)
		}

		return &imapSource{
			c:           c,
			host:        cfg.Host,
			uidValidity: status.UidValidity,
			log:         log,
		}, nil
	}
}

type imapSource struct {
	c           *client.Client
	host        string
	uidValidity uint32
	log         *logging.Logger
}

func (s *imapSource) Unseen(ctx context.Context, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := s.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if limit > 0 && len(uids) > limit {
		uids = uids[:limit]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	// Peek so a message that fails to ingest stays unread for the next poll.
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.c.UidFetch(seqset, items, messages)
	}()

	var out []Message
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			s.log.Warn().Uint32("uid", msg.Uid).Msg("server returned no body")
			continue
		}
		m, err := ParseMessage(msg.Uid, body, s.fallbackID(msg.Uid))
		if err != nil {
			s.log.Warn().Err(err).Uint32("uid", msg.Uid).Msg("skipping unparseable message")
			continue
		}
		out = append(out, m)
	}
	if err := <-done; err != nil {
		return out, fmt.Errorf("fetch failed: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (s *imapSource) MarkSeen(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := s.c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("marking messages seen: %w", err)
	}
	return nil
}

func (s *imapSource) Close() error {
	return s.c.Logout()
}

// fallbackID derives a stable id from the folder's UIDVALIDITY and the UID.
func (s *imapSource) fallbackID(uid uint32) string {
	return fmt.Sprintf("<%d.%d@%s>", s.uidValidity, uid, s.host)
}
