// Package spool delivers normalized messages into a news spool's
// incoming directory.
package spool

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-mbox"

	"github.com/nhle/imap2news/internal/article"
)

// MaxAttempts bounds how many sequence numbers are probed for a free
// file name.
const MaxAttempts = 1000

// stampLayout is the second-precision timestamp prefix of spool names.
const stampLayout = "20060102150405"

// defaultSender is the envelope sender used when the message has no
// parsable From address.
const defaultSender = "MAILER-DAEMON"

// SpoolExhaustedError is returned when no free file name was found
// within MaxAttempts sequence numbers.
type SpoolExhaustedError struct {
	Dir   string
	Stamp string
	Seed  int
}

func (e *SpoolExhaustedError) Error() string {
	return fmt.Sprintf(
		"no free spool name in %s for %s.%d..%d",
		e.Dir, e.Stamp, e.Seed, e.Seed+MaxAttempts-1,
	)
}

// IsExhausted reports whether err (or any error in its chain) is a
// SpoolExhaustedError.
func IsExhausted(err error) bool {
	var exhausted *SpoolExhaustedError
	return errors.As(err, &exhausted)
}

// Entry describes a delivered (or, in dry-run, a would-be) spool file.
type Entry struct {
	Name string
	Path string
}

// Writer writes messages into an incoming delivery directory. Files
// are named <timestamp>.<sequence> and appear atomically: readers never
// observe a partially written file.
type Writer struct {
	dir     string
	dryRun  bool
	now     func() time.Time
	written int
}

// Option configures a Writer.
type Option func(*Writer)

// WithDryRun makes the writer probe for a free name without creating
// any file.
func WithDryRun(dryRun bool) Option {
	return func(w *Writer) { w.dryRun = dryRun }
}

// WithClock overrides the time source used for file names and the
// envelope line.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// NewWriter returns a Writer delivering into dir.
func NewWriter(dir string, opts ...Option) *Writer {
	w := &Writer{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Written returns how many messages this writer has delivered, or
// would have delivered in dry-run mode.
func (w *Writer) Written() int {
	return w.written
}

// Write delivers msg. seed is the first sequence number tried and is
// normally the message's mailbox sequence number.
func (w *Writer) Write(msg *article.Message, seed int) (Entry, error) {
	now := w.now()
	stamp := now.UTC().Format(stampLayout)

	if w.dryRun {
		entry, err := w.probe(stamp, seed)
		if err != nil {
			return Entry{}, err
		}
		w.written++
		return entry, nil
	}

	data, err := render(msg, now)
	if err != nil {
		return Entry{}, err
	}

	tmp, err := w.writeTemp(data)
	if err != nil {
		return Entry{}, err
	}
	defer os.Remove(tmp)

	for i := 0; i < MaxAttempts; i++ {
		entry := w.entry(stamp, seed+i)

		err := os.Link(tmp, entry.Path)
		if err == nil {
			w.written++
			return entry, nil
		}
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return Entry{}, fmt.Errorf("linking spool file %s: %w", entry.Path, err)
	}

	return Entry{}, &SpoolExhaustedError{Dir: w.dir, Stamp: stamp, Seed: seed}
}

// probe finds the first free name without reserving it.
func (w *Writer) probe(stamp string, seed int) (Entry, error) {
	for i := 0; i < MaxAttempts; i++ {
		entry := w.entry(stamp, seed+i)

		_, err := os.Lstat(entry.Path)
		if errors.Is(err, fs.ErrNotExist) {
			return entry, nil
		}
		if err != nil {
			return Entry{}, fmt.Errorf("probing spool file %s: %w", entry.Path, err)
		}
	}

	return Entry{}, &SpoolExhaustedError{Dir: w.dir, Stamp: stamp, Seed: seed}
}

func (w *Writer) entry(stamp string, seq int) Entry {
	name := fmt.Sprintf("%s.%d", stamp, seq)
	return Entry{Name: name, Path: filepath.Join(w.dir, name)}
}

// writeTemp writes data to a hidden file in the delivery directory so
// the final link stays on the same filesystem.
func (w *Writer) writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp(w.dir, ".imap2news-*")
	if err != nil {
		return "", fmt.Errorf("creating temp spool file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing temp spool file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("syncing temp spool file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("closing temp spool file: %w", err)
	}

	if err := os.Chmod(f.Name(), 0o644); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("setting spool file mode: %w", err)
	}

	return f.Name(), nil
}

// render serializes msg with a leading "From " envelope line. The
// spool stores LF line endings.
func render(msg *article.Message, now time.Time) ([]byte, error) {
	raw, err := msg.Bytes()
	if err != nil {
		return nil, err
	}
	raw = bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))

	var buf bytes.Buffer
	mw := mbox.NewWriter(&buf)

	mr, err := mw.CreateMessage(envelopeSender(msg), now)
	if err != nil {
		return nil, fmt.Errorf("writing envelope line: %w", err)
	}
	if _, err := mr.Write(raw); err != nil {
		return nil, fmt.Errorf("writing spool message: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finishing spool message: %w", err)
	}

	return buf.Bytes(), nil
}

func envelopeSender(msg *article.Message) string {
	from, err := msg.Header.AddressList("From")
	if err != nil || len(from) == 0 || from[0].Address == "" {
		return defaultSender
	}
	return from[0].Address
}
