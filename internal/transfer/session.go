// Package transfer moves messages from IMAP mailboxes into the news
// spool.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/imap2news/internal/article"
	"github.com/nhle/imap2news/internal/model"
	"github.com/nhle/imap2news/internal/route"
	"github.com/nhle/imap2news/internal/source"
	"github.com/nhle/imap2news/internal/spool"
	"github.com/nhle/imap2news/internal/store"
)

// Session is the context of one run: a single transport connection and
// the collaborators every message passes through. Messages are
// processed strictly one at a time.
type Session struct {
	transport  source.Transport
	router     *route.Map
	normalizer *article.Normalizer
	writer     *spool.Writer
	journal    store.Journal
	log        logrus.FieldLogger
	now        func() time.Time
	opts       Options
}

// Option configures a Session.
type Option func(*Session)

// WithJournal records deliveries in j.
func WithJournal(j store.Journal) Option {
	return func(s *Session) { s.journal = j }
}

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Session) { s.log = log }
}

// WithClock overrides the time recorded in the journal.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession returns a Session. The writer must have been created with
// the same dry-run setting as opts.
func NewSession(
	transport source.Transport,
	router *route.Map,
	normalizer *article.Normalizer,
	writer *spool.Writer,
	opts Options,
	options ...Option,
) *Session {
	s := &Session{
		transport:  transport,
		router:     router,
		normalizer: normalizer,
		writer:     writer,
		log:        logrus.StandardLogger(),
		now:        time.Now,
		opts:       opts,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Run processes mailboxes in order. Mailboxes that cannot be selected
// are logged and skipped. The returned result covers everything done
// before a fatal error, which is returned alongside it.
func (s *Session) Run(ctx context.Context, mailboxes []string) (RunResult, error) {
	var result RunResult

	for _, mailbox := range mailboxes {
		mres, err := s.processMailbox(ctx, mailbox)
		result.Mailboxes = append(result.Mailboxes, mres)
		if err != nil {
			return result, err
		}
	}

	return result, nil
}

func (s *Session) processMailbox(ctx context.Context, mailbox string) (MailboxResult, error) {
	res := MailboxResult{Mailbox: mailbox}
	log := s.log.WithField("mailbox", mailbox)

	count, err := s.transport.Select(ctx, mailbox, s.opts.ReadOnly())
	if err != nil {
		if source.IsSelectError(err) {
			log.WithError(err).Warn("Skipping mailbox")
			res.SelectErr = err
			return res, nil
		}
		return res, fmt.Errorf("selecting %s: %w", mailbox, err)
	}

	seqs, err := s.transport.Search(ctx)
	if err != nil {
		if errors.Is(err, source.ErrStatus) {
			log.WithError(err).Warn("Skipping mailbox")
			res.SelectErr = err
			return res, nil
		}
		return res, fmt.Errorf("searching %s: %w", mailbox, err)
	}

	if int(count) != len(seqs) {
		log.WithFields(logrus.Fields{
			"reported":   count,
			"enumerated": len(seqs),
		}).Warn("Message count mismatch, using enumerated messages")
	}
	res.Messages = len(seqs)

	for _, seq := range seqs {
		if err := s.processMessage(ctx, mailbox, seq, &res); err != nil {
			return res, err
		}
	}

	if err := s.expunge(ctx, log, &res); err != nil {
		return res, err
	}

	log.WithFields(logrus.Fields{
		"messages":    res.Messages,
		"transferred": res.Transferred,
		"rejected":    res.Rejected,
		"unrouted":    res.Unrouted,
		"deleted":     res.Deleted,
		"failed":      res.Failed,
	}).Info("Mailbox done")

	return res, nil
}

// processMessage routes, delivers and retires a single message. Only
// errors that must abort the run are returned.
func (s *Session) processMessage(
	ctx context.Context, mailbox string, seq uint32, res *MailboxResult,
) error {
	log := s.log.WithFields(logrus.Fields{"mailbox": mailbox, "seq": seq})

	raw, err := s.transport.FetchMessage(ctx, seq)
	if err != nil {
		if errors.Is(err, source.ErrStatus) {
			log.WithError(err).Warn("Fetch failed, leaving message")
			res.Failed++
			return nil
		}
		return fmt.Errorf("fetching %s:%d: %w", mailbox, seq, err)
	}

	msg, err := article.Parse(raw)
	if err != nil {
		log.WithError(err).Warn("Unparsable message, leaving it")
		res.Failed++
		return nil
	}

	resolved := s.router.Resolve(msg.Recipients(s.opts.AlwaysTo))
	groups := article.MergeGroups(resolved, msg.Newsgroups())
	if len(groups) == 0 {
		log.Debug("No group for message, leaving it")
		res.Unrouted++
		return nil
	}

	preview := fmt.Sprintf("%s:%d -> %s", mailbox, seq, strings.Join(groups, ","))
	if s.opts.Verbose {
		log.Info(preview)
	} else {
		log.Debug(preview)
	}

	var transferID string
	if s.opts.Reject {
		res.Rejected++
	} else {
		transferID, err = s.deliver(ctx, log, mailbox, seq, msg, resolved)
		if err != nil {
			return err
		}
		res.Transferred++
	}

	if s.opts.CopyOnly {
		return nil
	}

	deleted, err := s.retire(ctx, log, seq, transferID)
	if err != nil {
		return fmt.Errorf("retiring %s:%d: %w", mailbox, seq, err)
	}
	if deleted {
		res.Deleted++
	}
	return nil
}

// deliver normalizes msg and writes it to the spool. Any spool error is
// fatal: the message stays in the mailbox for a later run.
func (s *Session) deliver(
	ctx context.Context,
	log logrus.FieldLogger,
	mailbox string,
	seq uint32,
	msg *article.Message,
	resolved []string,
) (string, error) {
	groups := s.normalizer.Normalize(msg, resolved)
	messageID := msg.Get(article.HeaderMessageID)

	s.checkRedelivery(ctx, log, messageID)

	entry, err := s.writer.Write(msg, int(seq))
	if err != nil {
		return "", fmt.Errorf("delivering %s:%d: %w", mailbox, seq, err)
	}

	log = log.WithField("path", entry.Path)
	if s.opts.DryRun {
		log.Debug("Would write spool file")
		return "", nil
	}
	log.Debug("Wrote spool file")

	if s.journal == nil {
		return "", nil
	}
	id, err := s.journal.RecordTransfer(ctx, model.Transfer{
		Mailbox:     mailbox,
		Seq:         seq,
		MessageID:   messageID,
		Newsgroups:  strings.Join(groups, ","),
		SpoolPath:   entry.Path,
		DeliveredAt: s.now(),
	})
	if err != nil {
		log.WithError(err).Warn("Failed to journal transfer")
		return "", nil
	}
	return id, nil
}

func (s *Session) checkRedelivery(ctx context.Context, log logrus.FieldLogger, messageID string) {
	if s.journal == nil || messageID == "" {
		return
	}

	prior, err := s.journal.TransfersByMessageID(ctx, messageID)
	if err != nil {
		log.WithError(err).Warn("Failed to query journal")
		return
	}
	if len(prior) > 0 {
		log.WithFields(logrus.Fields{
			"message_id": messageID,
			"previous":   prior[0].SpoolPath,
		}).Warn("Message was delivered before, delivering again")
	}
}

// retire copies the message to the trash mailbox, if any, and marks it
// deleted. A failed copy suppresses the delete. It reports whether the
// message was (or under dry-run would have been) marked deleted. Server
// refusals are logged; only transport failures are returned.
func (s *Session) retire(
	ctx context.Context, log logrus.FieldLogger, seq uint32, transferID string,
) (bool, error) {
	if s.opts.DryRun {
		if s.opts.Trash != "" {
			log.WithField("trash", s.opts.Trash).Debug("Would copy to trash")
		}
		log.Debug("Would mark deleted")
		return true, nil
	}

	uid, err := s.transport.FetchUID(ctx, seq)
	if err != nil {
		return false, refused(log, err, "Cannot fetch UID, leaving message")
	}
	log = log.WithField("uid", uid)

	if s.opts.Trash != "" {
		if err := s.transport.Copy(ctx, uid, s.opts.Trash); err != nil {
			return false, refused(log, err, "Copy to trash failed, not deleting")
		}
	}

	if err := s.transport.MarkDeleted(ctx, uid); err != nil {
		return false, refused(log, err, "Failed to mark deleted")
	}

	if s.journal != nil && transferID != "" {
		if err := s.journal.MarkDeleted(ctx, transferID, uid); err != nil {
			log.WithError(err).Warn("Failed to journal deletion")
		}
	}

	return true, nil
}

// refused logs err and swallows it when the server merely refused the
// command; any other error is returned.
func refused(log logrus.FieldLogger, err error, msg string) error {
	if !errors.Is(err, source.ErrStatus) {
		return err
	}
	log.WithError(err).Warn(msg)
	return nil
}

func (s *Session) expunge(ctx context.Context, log logrus.FieldLogger, res *MailboxResult) error {
	if !s.opts.Expunge || res.Deleted == 0 {
		return nil
	}

	if s.opts.DryRun {
		log.Debug("Would expunge")
		return nil
	}

	if err := s.transport.Expunge(ctx); err != nil {
		if errors.Is(err, source.ErrStatus) {
			log.WithError(err).Warn("Expunge failed")
			return nil
		}
		return fmt.Errorf("expunging %s: %w", res.Mailbox, err)
	}

	res.Expunged = true
	return nil
}
