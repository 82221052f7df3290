package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/imap2news/internal/source"
)

// Client implements source.Transport on top of go-imap v2. It holds a
// single authenticated connection for the whole run.
type Client struct {
	client *imapclient.Client
}

var _ source.Transport = (*Client)(nil)

// Dial connects to the IMAP server described by cfg and logs in. The
// caller is responsible for calling Close.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := cfg.Addr()

	var (
		client *imapclient.Client
		err    error
	)
	switch cfg.TLS {
	case TLSStartTLS:
		client, err = imapclient.DialStartTLS(addr, nil)
	case TLSNone:
		client, err = imapclient.DialInsecure(addr, nil)
	default:
		client, err = imapclient.DialTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, &source.AuthError{
			Server:  cfg.Host,
			User:    cfg.Username,
			Message: err.Error(),
		}
	}

	return &Client{client: client}, nil
}

// Select opens mailbox and returns the number of messages it reports.
func (c *Client) Select(
	ctx context.Context, mailbox string, readOnly bool,
) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	data, err := c.client.Select(mailbox, &imap.SelectOptions{
		ReadOnly: readOnly,
	}).Wait()
	if err != nil {
		err = statusErr(err)
		if errors.Is(err, source.ErrStatus) {
			return 0, &source.SelectError{Mailbox: mailbox, Err: err}
		}
		return 0, fmt.Errorf("selecting mailbox %q: %w", mailbox, err)
	}

	return data.NumMessages, nil
}

// Search returns the sequence numbers of all messages in the selected
// mailbox.
func (c *Client) Search(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := c.client.Search(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", statusErr(err))
	}

	return data.AllSeqNums(), nil
}

// FetchMessage returns the full RFC 822 message. BODY.PEEK[] is used so
// the \Seen flag is left alone.
func (c *Client) FetchMessage(
	ctx context.Context, seq uint32,
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bodySection := &imap.FetchItemBodySection{
		Peek: true,
	}
	buf, err := c.fetchOne(seq, &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	if err != nil {
		return nil, err
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message %d has no body: %w", seq, source.ErrNoMessage)
	}

	return raw, nil
}

// FetchUID returns the UID of the message at seq.
func (c *Client) FetchUID(ctx context.Context, seq uint32) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	buf, err := c.fetchOne(seq, &imap.FetchOptions{UID: true})
	if err != nil {
		return 0, err
	}
	if buf.UID == 0 {
		return 0, fmt.Errorf("message %d has no UID: %w", seq, source.ErrNoMessage)
	}

	return uint32(buf.UID), nil
}

// MarkDeleted adds the \Deleted flag to the message with uid.
func (c *Client) MarkDeleted(ctx context.Context, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	storeCmd := c.client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking UID %d deleted: %w", uid, statusErr(err))
	}

	return nil
}

// Copy copies the message with uid into mailbox.
func (c *Client) Copy(ctx context.Context, uid uint32, mailbox string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := c.client.Copy(imap.UIDSetNum(imap.UID(uid)), mailbox).Wait(); err != nil {
		return fmt.Errorf(
			"copying UID %d to %q: %w", uid, mailbox, statusErr(err),
		)
	}

	return nil
}

// Expunge permanently removes messages flagged \Deleted.
func (c *Client) Expunge(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.client.Expunge().Close(); err != nil {
		return fmt.Errorf("expunging: %w", statusErr(err))
	}

	return nil
}

// Close logs out and closes the connection.
func (c *Client) Close() error {
	logoutErr := c.client.Logout().Wait()
	if err := c.client.Close(); err != nil && logoutErr == nil {
		return err
	}
	return logoutErr
}

// fetchOne fetches a single message by sequence number.
func (c *Client) fetchOne(
	seq uint32, opts *imap.FetchOptions,
) (*imapclient.FetchMessageBuffer, error) {
	fetchCmd := c.client.Fetch(imap.SeqSetNum(seq), opts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		if err := fetchCmd.Close(); err != nil {
			return nil, fmt.Errorf("fetching message %d: %w", seq, statusErr(err))
		}
		return nil, fmt.Errorf("message %d: %w", seq, source.ErrNoMessage)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message %d: %w", seq, err)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching message %d: %w", seq, statusErr(err))
	}

	return buf, nil
}

// statusErr tags NO/BAD responses with source.ErrStatus.
func statusErr(err error) error {
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		return fmt.Errorf("%w: %w", source.ErrStatus, err)
	}
	return err
}
