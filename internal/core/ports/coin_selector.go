package ports

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/covault/covaultd/internal/core/domain"
)

var (
	// ErrInsufficientFunds is returned when no combination of the given
	// utxos covers the target amount plus fees.
	ErrInsufficientFunds = fmt.Errorf("insufficient funds")
)

// FeeModel returns the fee for a transaction spending the given number of
// inputs. It lets selection strategies recompute the fee while the input
// set grows.
type FeeModel func(numInputs int) btcutil.Amount

// SelectionResult is the outcome of a successful coin selection.
// Change is either zero or at least the dust threshold, a leftover below
// dust is folded into Fee instead.
type SelectionResult struct {
	Utxos      domain.Utxos
	InputTotal btcutil.Amount
	Fee        btcutil.Amount
	Change     btcutil.Amount
}

// CoinSelector is the abstraction for any kind of service intended to return
// a subset of the given utxos covering the target amount plus fees, based on
// a specific strategy. Selection must be deterministic for a fixed utxo
// ordering and fee model.
type CoinSelector interface {
	// SelectUtxos implements a certain coin selection strategy.
	SelectUtxos(
		utxos domain.Utxos, targetAmount btcutil.Amount, feeModel FeeModel,
	) (*SelectionResult, error)
}
