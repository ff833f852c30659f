package domain

import (
	"context"
)

// HistoryRepository is the abstraction for any kind of database intended to
// persist the append-only history of completed transactions.
type HistoryRepository interface {
	// AddCompletedTx appends the given record to the history by preventing
	// duplicates.
	AddCompletedTx(ctx context.Context, tx *CompletedTx) (bool, error)
	// GetCompletedTxs returns the whole history.
	GetCompletedTxs(ctx context.Context) ([]*CompletedTx, error)
}
