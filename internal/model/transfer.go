package model

import "time"

// Transfer is the journal record of one message delivered from a
// mailbox into the news spool.
type Transfer struct {
	// ID is the unique identifier for this record.
	ID string `db:"id" json:"id"`

	// Mailbox is the source mailbox name.
	Mailbox string `db:"mailbox" json:"mailbox"`

	// Seq is the message's sequence number at the time of transfer.
	Seq uint32 `db:"seq" json:"seq"`

	// UID is the stable message identifier, zero until the source
	// message was marked deleted.
	UID uint32 `db:"uid" json:"uid"`

	// MessageID is the normalized Message-Id header.
	MessageID string `db:"message_id" json:"message_id"`

	// Newsgroups is the comma-joined group list written to the spool.
	Newsgroups string `db:"newsgroups" json:"newsgroups"`

	// SpoolPath is the delivered spool file.
	SpoolPath string `db:"spool_path" json:"spool_path"`

	// Deleted reports whether the source message was marked deleted.
	Deleted bool `db:"deleted" json:"deleted"`

	// DeliveredAt is when the spool file was written.
	DeliveredAt time.Time `db:"delivered_at" json:"delivered_at"`
}
