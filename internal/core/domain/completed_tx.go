package domain

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

// CompletedTx is the append-only history record of a successfully broadcast
// offer. Created exactly once per broadcast and never mutated.
type CompletedTx struct {
	TxID        string
	CompletedAt time.Time
	Amount      btcutil.Amount
	Destination string
	Fee         btcutil.Amount
	FeeRate     decimal.Decimal
}
