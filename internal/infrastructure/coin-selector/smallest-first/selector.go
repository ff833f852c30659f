package smallestfirst_selector

import (
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
)

type selector struct{}

// NewSmallestFirstCoinSelector returns the consolidation strategy: utxos are
// consumed in ascending order of value so that many small outputs get swept
// together, at the cost of a bigger transaction.
func NewSmallestFirstCoinSelector() ports.CoinSelector {
	return &selector{}
}

func (s *selector) SelectUtxos(
	utxos domain.Utxos, targetAmount btcutil.Amount, feeModel ports.FeeModel,
) (*ports.SelectionResult, error) {
	sorted := make(domain.Utxos, len(utxos))
	copy(sorted, utxos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value < sorted[j].Value
	})

	selected := make(domain.Utxos, 0, len(sorted))
	var inputTotal btcutil.Amount

	for _, utxo := range sorted {
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
