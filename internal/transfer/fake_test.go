package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nhle/imap2news/internal/source"
)

type fakeMessage struct {
	raw     string
	uid     uint32
	deleted bool
}

// fakeTransport is an in-memory mailbox server. Every call is appended
// to calls so tests can assert which commands were issued.
type fakeTransport struct {
	mailboxes map[string][]*fakeMessage

	selected string
	readOnly bool
	calls    []string

	// failures keyed by call name ("select", "copy", ...) return a
	// source.ErrStatus error.
	fail map[string]bool

	// countDelta is added to the count returned by Select.
	countDelta int

	// afterSearch runs once Search has answered, to change the mailbox
	// behind the session's back.
	afterSearch func()

	// disconnected makes every Select fail as a dropped connection.
	disconnected bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		mailboxes: map[string][]*fakeMessage{},
		fail:      map[string]bool{},
	}
}

func (f *fakeTransport) add(mailbox string, raws ...string) {
	for _, raw := range raws {
		uid := uint32(100 + len(f.mailboxes[mailbox]))
		f.mailboxes[mailbox] = append(f.mailboxes[mailbox], &fakeMessage{raw: raw, uid: uid})
	}
}

func (f *fakeTransport) statusErr(op string) error {
	return fmt.Errorf("%s: %w", op, source.ErrStatus)
}

func (f *fakeTransport) Select(_ context.Context, mailbox string, readOnly bool) (uint32, error) {
	mode := "rw"
	if readOnly {
		mode = "ro"
	}
	f.calls = append(f.calls, fmt.Sprintf("select %s %s", mailbox, mode))
	if f.disconnected {
		return 0, errors.New("connection reset by peer")
	}

	msgs, ok := f.mailboxes[mailbox]
	if !ok || f.fail["select"] {
		return 0, &source.SelectError{Mailbox: mailbox, Err: f.statusErr("select")}
	}
	f.selected = mailbox
	f.readOnly = readOnly
	return uint32(len(msgs) + f.countDelta), nil
}

func (f *fakeTransport) Search(context.Context) ([]uint32, error) {
	f.calls = append(f.calls, "search")
	if f.fail["search"] {
		return nil, f.statusErr("search")
	}
	seqs := make([]uint32, len(f.mailboxes[f.selected]))
	for i := range seqs {
		seqs[i] = uint32(i + 1)
	}
	if f.afterSearch != nil {
		f.afterSearch()
	}
	return seqs, nil
}

func (f *fakeTransport) message(seq uint32) (*fakeMessage, error) {
	msgs := f.mailboxes[f.selected]
	if seq < 1 || int(seq) > len(msgs) {
		return nil, fmt.Errorf("message %d: %w", seq, source.ErrNoMessage)
	}
	return msgs[seq-1], nil
}

func (f *fakeTransport) byUID(uid uint32) (*fakeMessage, error) {
	for _, m := range f.mailboxes[f.selected] {
		if m.uid == uid {
			return m, nil
		}
	}
	return nil, f.statusErr(fmt.Sprintf("no UID %d", uid))
}

func (f *fakeTransport) FetchMessage(_ context.Context, seq uint32) ([]byte, error) {
	f.calls = append(f.calls, fmt.Sprintf("fetch %d", seq))
	if f.fail["fetch"] {
		return nil, f.statusErr("fetch")
	}
	m, err := f.message(seq)
	if err != nil {
		return nil, err
	}
	return []byte(m.raw), nil
}

func (f *fakeTransport) FetchUID(_ context.Context, seq uint32) (uint32, error) {
	f.calls = append(f.calls, fmt.Sprintf("uid %d", seq))
	m, err := f.message(seq)
	if err != nil {
		return 0, err
	}
	return m.uid, nil
}

func (f *fakeTransport) MarkDeleted(_ context.Context, uid uint32) error {
	f.calls = append(f.calls, fmt.Sprintf("delete %d", uid))
	if f.readOnly {
		return f.statusErr("read-only mailbox")
	}
	m, err := f.byUID(uid)
	if err != nil {
		return err
	}
	m.deleted = true
	return nil
}

func (f *fakeTransport) Copy(_ context.Context, uid uint32, mailbox string) error {
	f.calls = append(f.calls, fmt.Sprintf("copy %d %s", uid, mailbox))
	if f.fail["copy"] {
		return f.statusErr("copy")
	}
	m, err := f.byUID(uid)
	if err != nil {
		return err
	}
	if _, ok := f.mailboxes[mailbox]; !ok {
		return f.statusErr("no mailbox " + mailbox)
	}
	f.mailboxes[mailbox] = append(f.mailboxes[mailbox], &fakeMessage{raw: m.raw, uid: uint32(500 + len(f.mailboxes[mailbox]))})
	return nil
}

func (f *fakeTransport) Expunge(context.Context) error {
	f.calls = append(f.calls, "expunge")
	if f.readOnly {
		return f.statusErr("read-only mailbox")
	}
	var kept []*fakeMessage
	for _, m := range f.mailboxes[f.selected] {
		if !m.deleted {
			kept = append(kept, m)
		}
	}
	f.mailboxes[f.selected] = kept
	return nil
}

func (f *fakeTransport) Close() error {
	f.calls = append(f.calls, "close")
	return nil
}

// mutations returns the recorded calls that change a mailbox.
func (f *fakeTransport) mutations() []string {
	var out []string
	for _, c := range f.calls {
		for _, prefix := range []string{"delete", "copy", "expunge"} {
			if strings.HasPrefix(c, prefix) {
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}
