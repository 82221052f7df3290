package store

import (
	"context"

	"github.com/nhle/imap2news/internal/model"
)

// Journal records delivered messages. Recording is best effort: the spool
// file, not the journal, is the authoritative result of a delivery.
type Journal interface {
	// RecordTransfer stores a delivery. An empty ID is filled in.
	RecordTransfer(ctx context.Context, t model.Transfer) (string, error)

	// MarkDeleted notes that the source message of transfer id was
	// marked deleted under uid.
	MarkDeleted(ctx context.Context, id string, uid uint32) error

	// TransfersByMessageID returns earlier deliveries of messageID,
	// newest first.
	TransfersByMessageID(ctx context.Context, messageID string) ([]model.Transfer, error)

	// RecentTransfers returns up to limit deliveries, newest first.
	RecentTransfers(ctx context.Context, limit int) ([]model.Transfer, error)

	Close() error
}
