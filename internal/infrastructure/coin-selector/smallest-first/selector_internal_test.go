package smallestfirst_selector

import (
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
	"github.com/stretchr/testify/require"
)

func constFee(fee btcutil.Amount) ports.FeeModel {
	return func(_ int) btcutil.Amount { return fee }
}

func newUtxos(values ...btcutil.Amount) domain.Utxos {
	utxos := make(domain.Utxos, 0, len(values))
	for i, v := range values {
		utxos = append(utxos, &domain.Utxo{
			UtxoKey: domain.UtxoKey{TxID: fmt.Sprintf("tx%d", i), VOut: 0},
			Value:   v,
		})
	}
	return utxos
}

func TestSelectConsolidatesSmallUtxosFirst(t *testing.T) {
	utxos := newUtxos(50000, 5000, 20000, 10000)

	res, err := NewSmallestFirstCoinSelector().SelectUtxos(
		utxos, 30000, constFee(1000),
	)
	require.NoError(t, err)
	require.Len(t, res.Utxos, 3)
	require.EqualValues(t, 5000, res.Utxos[0].Value)
	require.EqualValues(t, 10000, res.Utxos[1].Value)
	require.EqualValues(t, 20000, res.Utxos[2].Value)
	require.EqualValues(t, 35000, res.InputTotal)
	require.EqualValues(t, 4000, res.Change)
}

func TestSelectInsufficientFunds(t *testing.T) {
	utxos := newUtxos(1000, 2000)

	res, err := NewSmallestFirstCoinSelector().SelectUtxos(
		utxos, 5000, constFee(1000),
	)
	require.ErrorIs(t, err, ports.ErrInsufficientFunds)
	require.Nil(t, res)
}
