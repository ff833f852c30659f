package domain

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

// TransactionDraft holds the outcome of a coin selection for an in-progress
// spend session. It is owned exclusively by the session and discarded on
// offer creation or cancellation.
type TransactionDraft struct {
	SelectedUtxos Utxos
	Destination   string
	Amount        btcutil.Amount
	FeeRate       decimal.Decimal
	ChangeAddress string
	EstimatedFee  btcutil.Amount
	ChangeAmount  btcutil.Amount
}
