package domain_test

import (
	"testing"

	"github.com/covault/covaultd/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestUtxoKeyString(t *testing.T) {
	key := domain.UtxoKey{TxID: "aabbcc", VOut: 2}
	require.Equal(t, "aabbcc:2", key.String())
}

func TestUtxosTotalValue(t *testing.T) {
	utxos := domain.Utxos{
		{UtxoKey: domain.UtxoKey{TxID: "aa", VOut: 0}, Value: 50000},
		{UtxoKey: domain.UtxoKey{TxID: "bb", VOut: 1}, Value: 30000},
		{UtxoKey: domain.UtxoKey{TxID: "cc", VOut: 0}, Value: 20000},
	}
	require.EqualValues(t, 100000, utxos.TotalValue())
	require.Len(t, utxos.Keys(), 3)
}
