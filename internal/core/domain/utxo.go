package domain

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// DustThreshold is the minimum value for a transaction output below which
// the output is considered uneconomical and must be folded into fees
// instead of being emitted.
const DustThreshold btcutil.Amount = 546

// UtxoKey represents the key of an Utxo, composed by its txid and vout.
type UtxoKey struct {
	TxID string
	VOut uint32
}

func (k UtxoKey) String() string {
	return fmt.Sprintf("%s:%d", k.TxID, k.VOut)
}

// Utxo is the data structure representing a wallet unspent output with its
// confirmation info. A Utxo is immutable once fetched from the chain source,
// a re-fetch supersedes it rather than mutating it in place.
type Utxo struct {
	UtxoKey
	Value       btcutil.Amount
	Address     string
	Confirmed   bool
	BlockHeight uint64
}

// Key returns the UtxoKey of the current utxo.
func (u *Utxo) Key() UtxoKey {
	return u.UtxoKey
}

// Utxos is a list of utxos with some utility methods.
type Utxos []*Utxo

// Keys returns the list of keys of the utxo list.
func (u Utxos) Keys() []UtxoKey {
	keys := make([]UtxoKey, 0, len(u))
	for _, utxo := range u {
		keys = append(keys, utxo.Key())
	}
	return keys
}

// TotalValue returns the sum of the values of the utxo list.
func (u Utxos) TotalValue() btcutil.Amount {
	var total btcutil.Amount
	for _, utxo := range u {
		total += utxo.Value
	}
	return total
}
