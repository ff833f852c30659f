package application_test

import (
	"testing"
	"time"

	"github.com/covault/covaultd/internal/core/application"
	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
	"github.com/covault/covaultd/internal/infrastructure/storage/db/inmemory"
	"github.com/stretchr/testify/require"
)

func TestArchiveMatured(t *testing.T) {
	repoManager := inmemory.NewRepoManager()
	t.Cleanup(repoManager.Close)
	txRepo := repoManager.MonitoredTxRepository()

	addMonitoredTx(t, repoManager, "aa11")
	addMonitoredTx(t, repoManager, "bb22")
	addMonitoredTx(t, repoManager, "cc33")

	// aa11 matured, bb22 is halfway there, cc33 is still in the mempool.
	setConfirmations(t, repoManager, "aa11", 100, 105)
	setConfirmations(t, repoManager, "bb22", 103, 105)

	svc := application.NewArchiveService(repoManager)

	count, err := svc.ArchiveMatured(ctx, domain.ConfirmedThreshold)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	archived, err := txRepo.GetArchivedTxs(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	require.Equal(t, "aa11", archived[0].TxID)
	require.Equal(t, uint64(6), archived[0].Confirmations)

	active, err := txRepo.GetActiveTxs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)

	// Re-running over the same set is a no-op.
	count, err = svc.ArchiveMatured(ctx, domain.ConfirmedThreshold)
	require.NoError(t, err)
	require.Zero(t, count)

	done, err := svc.Archive(ctx, "aa11")
	require.NoError(t, err)
	require.False(t, done)
}

func TestCleanup(t *testing.T) {
	repoManager := inmemory.NewRepoManager()
	t.Cleanup(repoManager.Close)
	txRepo := repoManager.MonitoredTxRepository()

	addMonitoredTx(t, repoManager, "aa11")
	addMonitoredTx(t, repoManager, "bb22")

	svc := application.NewArchiveService(repoManager)

	for _, txid := range []string{"aa11", "bb22"} {
		done, err := svc.Archive(ctx, txid)
		require.NoError(t, err)
		require.True(t, done)
	}

	// Age aa11 beyond the retention window.
	err := txRepo.UpdateTx(ctx, "aa11", func(tx *domain.MonitoredTx) (*domain.MonitoredTx, error) {
		tx.FirstSeen = time.Now().AddDate(0, 0, -40)
		return tx, nil
	})
	require.NoError(t, err)

	count, err := svc.Cleanup(ctx, 30)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	archived, err := txRepo.GetArchivedTxs(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	require.Equal(t, "bb22", archived[0].TxID)

	count, err = svc.Cleanup(ctx, 30)
	require.NoError(t, err)
	require.Zero(t, count)
}

func setConfirmations(
	t *testing.T, repoManager ports.RepoManager, txid string,
	blockHeight, tipHeight uint64,
) {
	t.Helper()

	err := repoManager.MonitoredTxRepository().UpdateTx(
		ctx, txid, func(tx *domain.MonitoredTx) (*domain.MonitoredTx, error) {
			tx.UpdateConfirmations(tipHeight, blockHeight, time.Now().Unix())
			return tx, nil
		},
	)
	require.NoError(t, err)
}
