package largestfirst_selector

import (
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
)

type selector struct{}

// NewLargestFirstCoinSelector returns the default coin selection strategy:
// utxos are consumed in descending order of value so that the target amount
// is covered with as few inputs as possible.
func NewLargestFirstCoinSelector() ports.CoinSelector {
	return &selector{}
}

func (s *selector) SelectUtxos(
	utxos domain.Utxos, targetAmount btcutil.Amount, feeModel ports.FeeModel,
) (*ports.SelectionResult, error) {
	sorted := make(domain.Utxos, len(utxos))
	copy(sorted, utxos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})

	return accumulate(sorted, targetAmount, feeModel)
}

// accumulate adds utxos one at a time in the given order, recomputing the
// fee after every addition. It stops as soon as the input total covers
// target+fee and the leftover change is either zero or above the dust
// threshold. A dust leftover is pushed above the threshold by absorbing
// further utxos or, once the list is exhausted, folded into the fee.
func accumulate(
	utxos domain.Utxos, targetAmount btcutil.Amount, feeModel ports.FeeModel,
) (*ports.SelectionResult, error) {
	selected := make(domain.Utxos, 0, len(utxos))
	var inputTotal btcutil.Amount

	for _, utxo := range utxos {
		selected = append(selected, utxo)
		inputTotal += utxo.Value

		fee := feeModel(len(selected))
		if inputTotal < targetAmount+fee {
			continue
		}

		change := inputTotal - targetAmount - fee
		if change == 0 || change >= domain.DustThreshold {
			return &ports.SelectionResult{
				Utxos:      selected,
				InputTotal: inputTotal,
				Fee:        fee,
				Change:     change,
			}, nil
		}
	}

	// The whole list is selected. Either the target is not covered at all,
	// or only a dust leftover remains and gets folded into the fee.
	fee := feeModel(len(selected))
	if inputTotal < targetAmount+fee {
		return nil, ports.ErrInsufficientFunds
	}
	change := inputTotal - targetAmount - fee
	if change > 0 && change < domain.DustThreshold {
		fee += change
		change = 0
	}
	return &ports.SelectionResult{
		Utxos:      selected,
		InputTotal: inputTotal,
		Fee:        fee,
		Change:     change,
	}, nil
}
