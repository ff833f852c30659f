package nearexact_selector

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
	largestfirst_selector "github.com/covault/covaultd/internal/infrastructure/coin-selector/largest-first"
)

// maxProbedCandidates bounds the single/pair probing so that the search
// stays cheap on big utxo sets.
const maxProbedCandidates = 50

type selector struct {
	fallback ports.CoinSelector
}

// NewNearExactCoinSelector returns the changeless strategy: before falling
// back to largest-first, it probes single utxos and then utxo pairs looking
// for a combination whose leftover is below the dust threshold. When such a
// combination exists the leftover is folded into the fee and no change
// output is emitted.
func NewNearExactCoinSelector() ports.CoinSelector {
	return &selector{
		fallback: largestfirst_selector.NewLargestFirstCoinSelector(),
	}
}

func (s *selector) SelectUtxos(
	utxos domain.Utxos, targetAmount btcutil.Amount, feeModel ports.FeeModel,
) (*ports.SelectionResult, error) {
	candidates := utxos
	if len(candidates) > maxProbedCandidates {
		candidates = candidates[:maxProbedCandidates]
	}

	if res := probeSingles(candidates, targetAmount, feeModel); res != nil {
		return res, nil
	}
	if res := probePairs(candidates, targetAmount, feeModel); res != nil {
		return res, nil
	}

	return s.fallback.SelectUtxos(utxos, targetAmount, feeModel)
}

func probeSingles(
	utxos domain.Utxos, targetAmount btcutil.Amount, feeModel ports.FeeModel,
) *ports.SelectionResult {
	fee := feeModel(1)
	for _, utxo := range utxos {
		if res := changeless(domain.Utxos{utxo}, targetAmount, fee); res != nil {
			return res
		}
	}
	return nil
}

func probePairs(
	utxos domain.Utxos, targetAmount btcutil.Amount, feeModel ports.FeeModel,
) *ports.SelectionResult {
	fee := feeModel(2)
	for i := 0; i < len(utxos); i++ {
		for j := i + 1; j < len(utxos); j++ {
			pair := domain.Utxos{utxos[i], utxos[j]}
			if res := changeless(pair, targetAmount, fee); res != nil {
				return res
			}
		}
	}
	return nil
}

// changeless returns a zero-change result if the given combination covers
// target+fee with a leftover below the dust threshold, nil otherwise.
func changeless(
	combo domain.Utxos, targetAmount, fee btcutil.Amount,
) *ports.SelectionResult {
	inputTotal := combo.TotalValue()
	if inputTotal < targetAmount+fee {
		return nil
	}
	leftover := inputTotal - targetAmount - fee
	if leftover >= domain.DustThreshold {
		return nil
	}
	return &ports.SelectionResult{
		Utxos:      combo,
		InputTotal: inputTotal,
		Fee:        fee + leftover,
		Change:     0,
	}
}
