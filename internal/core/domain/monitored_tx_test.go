package domain_test

import (
	"testing"

	"github.com/covault/covaultd/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestTxStatusForConfirmations(t *testing.T) {
	for c := uint64(0); c <= 100; c++ {
		status := domain.TxStatusForConfirmations(c)
		switch {
		case c == 0:
			require.Equal(t, domain.TxStatusMempool, status)
		case c <= 5:
			require.Equal(t, domain.TxStatusConfirming, status)
		default:
			require.Equal(t, domain.TxStatusConfirmed, status)
		}
	}
}

func TestMonitoredTxUpdateConfirmations(t *testing.T) {
	tx := domain.NewMonitoredTx(
		"aa", domain.TxDirectionOutgoing, 40000, []string{"bcrt1qdest"},
	)
	require.Equal(t, domain.TxStatusMempool, tx.Status)
	require.Zero(t, tx.Confirmations)

	// Still unconfirmed.
	tx.UpdateConfirmations(105, 0, 0)
	require.Equal(t, domain.TxStatusMempool, tx.Status)
	require.Zero(t, tx.Confirmations)

	// Included at height 103, tip at 105.
	tx.UpdateConfirmations(105, 103, 1700000000)
	require.Equal(t, uint64(3), tx.Confirmations)
	require.Equal(t, domain.TxStatusConfirming, tx.Status)
	require.Equal(t, uint64(103), tx.BlockHeight)

	// Included at height 100, tip at 105: 6 confirmations, final.
	tx.UpdateConfirmations(105, 100, 1700000000)
	require.Equal(t, uint64(6), tx.Confirmations)
	require.Equal(t, domain.TxStatusConfirmed, tx.Status)
}

func TestMonitoredTxArchiveIsIdempotent(t *testing.T) {
	tx := domain.NewMonitoredTx(
		"aa", domain.TxDirectionIncoming, 20000, []string{"bcrt1qaddr"},
	)
	require.True(t, tx.Archive())
	require.Equal(t, domain.TxStatusArchived, tx.Status)
	require.False(t, tx.Archive())
	require.Equal(t, domain.TxStatusArchived, tx.Status)
}
