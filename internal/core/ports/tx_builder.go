package ports

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/covault/covaultd/internal/core/domain"
)

// TxOutput is a destination/amount pair for the unsigned transaction.
type TxOutput struct {
	Address string
	Amount  btcutil.Amount
}

// TxBuilder is the abstraction for the external PSBT service. Every blob it
// produces or consumes is opaque to the caller, which only stores and
// forwards it.
type TxBuilder interface {
	// BuildUnsigned crafts the unsigned transaction blob spending the given
	// inputs towards the given outputs.
	BuildUnsigned(
		ctx context.Context, inputs domain.Utxos, outputs []TxOutput,
	) (domain.Psbt, error)
	// Combine merges the collected signed blobs into the unsigned one.
	Combine(
		ctx context.Context, unsigned domain.Psbt, signed []domain.Psbt,
	) (domain.Psbt, error)
	// Finalize extracts the raw transaction bytes ready for broadcast.
	Finalize(ctx context.Context, combined domain.Psbt) ([]byte, error)
}
