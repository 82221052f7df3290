package transfer

import "fmt"

// MailboxResult summarizes one mailbox.
type MailboxResult struct {
	Mailbox string

	// SelectErr is set when the mailbox could not be opened; nothing
	// else was done for it.
	SelectErr error

	// Messages is the number of messages enumerated.
	Messages int

	// Transferred counts spool deliveries (hypothetical under dry-run).
	Transferred int

	// Rejected counts routed messages not delivered because of Reject.
	Rejected int

	// Unrouted counts messages without any group; they are left alone.
	Unrouted int

	// Deleted counts messages marked deleted (hypothetical under dry-run).
	Deleted int

	// Failed counts messages left untouched because of a per-message
	// server or parse error.
	Failed int

	// Expunged reports whether the mailbox was expunged.
	Expunged bool
}

// RunResult accumulates the results of a run.
type RunResult struct {
	Mailboxes []MailboxResult
}

// Transferred returns the total number of deliveries.
func (r RunResult) Transferred() int {
	return r.sum(func(m MailboxResult) int { return m.Transferred })
}

// Deleted returns the total number of messages marked deleted.
func (r RunResult) Deleted() int {
	return r.sum(func(m MailboxResult) int { return m.Deleted })
}

// Rejected returns the total number of rejected messages.
func (r RunResult) Rejected() int {
	return r.sum(func(m MailboxResult) int { return m.Rejected })
}

// Unrouted returns the total number of messages without a group.
func (r RunResult) Unrouted() int {
	return r.sum(func(m MailboxResult) int { return m.Unrouted })
}

// SkippedMailboxes returns how many mailboxes could not be selected.
func (r RunResult) SkippedMailboxes() int {
	n := 0
	for _, m := range r.Mailboxes {
		if m.SelectErr != nil {
			n++
		}
	}
	return n
}

func (r RunResult) sum(f func(MailboxResult) int) int {
	n := 0
	for _, m := range r.Mailboxes {
		n += f(m)
	}
	return n
}

// Summary is the operator-facing line printed at the end of a run.
func (r RunResult) Summary(opts Options) string {
	verb := "transferred"
	count := r.Transferred()
	switch {
	case opts.Reject:
		verb = "rejected"
		count = r.Rejected()
	case opts.CopyOnly:
		verb = "copied"
	}
	if opts.DryRun {
		verb = "would have " + verb
	}
	return fmt.Sprintf("%s %d %s", verb, count, plural(count))
}

func plural(n int) string {
	if n == 1 {
		return "message"
	}
	return "messages"
}
