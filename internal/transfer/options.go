package transfer

// Options are the policy switches applied uniformly to every mailbox.
type Options struct {
	// DryRun computes and logs everything but changes nothing: no spool
	// file is written and no mailbox is modified.
	DryRun bool

	// Reject classifies messages without delivering them.
	Reject bool

	// CopyOnly delivers messages but leaves them in the mailbox.
	CopyOnly bool

	// Expunge removes deleted messages after each mailbox.
	Expunge bool

	// Verbose logs one "<mailbox>:<seq> -> <groups>" line per routed
	// message.
	Verbose bool

	// Trash receives a copy of each message before it is marked deleted.
	Trash string

	// AlwaysTo is an extra To recipient added to every message.
	AlwaysTo string
}

// ReadOnly reports whether mailboxes are selected read-only.
func (o Options) ReadOnly() bool {
	return o.DryRun || o.CopyOnly
}
