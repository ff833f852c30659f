package application_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/covault/covaultd/internal/core/application"
	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
	"github.com/covault/covaultd/internal/infrastructure/storage/db/inmemory"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMonitorCycle(t *testing.T) {
	repoManager := inmemory.NewRepoManager()
	t.Cleanup(repoManager.Close)
	txRepo := repoManager.MonitoredTxRepository()

	blockTime := time.Now().Unix()
	chainSource := &mockChainSource{}
	chainSource.On("GetBlockHeight", mock.Anything).Return(uint64(103), nil).Once()
	chainSource.On("GetBlockHeight", mock.Anything).Return(uint64(105), nil).Once()
	chainSource.On("GetTransaction", mock.Anything, "aa11").Return(
		&ports.TxStatusInfo{Confirmed: true, BlockHeight: 100, BlockTime: blockTime},
		nil,
	)
	chainSource.On("GetTransaction", mock.Anything, "bb22").Return(
		nil, &ports.TransientError{Err: fmt.Errorf("connection reset")},
	)

	svc := application.NewMonitorService(
		repoManager, chainSource,
		application.NewArchiveService(repoManager),
		time.Minute, domain.ConfirmedThreshold,
	)

	// Nothing to monitor, the chain source is not even reached.
	require.NoError(t, svc.RunCycle())
	chainSource.AssertNotCalled(t, "GetBlockHeight", mock.Anything)

	addMonitoredTx(t, repoManager, "aa11")
	addMonitoredTx(t, repoManager, "bb22")

	require.NoError(t, svc.RunCycle())

	// aa11 confirmed at height 100 with tip 103 counts 4 confirmations.
	tx, err := txRepo.GetTx(ctx, "aa11")
	require.NoError(t, err)
	require.Equal(t, uint64(4), tx.Confirmations)
	require.Equal(t, domain.TxStatusConfirming, tx.Status)

	// bb22 failed to resolve and is left untouched for the next cycle.
	tx, err = txRepo.GetTx(ctx, "bb22")
	require.NoError(t, err)
	require.Zero(t, tx.Confirmations)
	require.Equal(t, domain.TxStatusMempool, tx.Status)

	// With the tip at 105 aa11 matures and moves to the archive.
	require.NoError(t, svc.RunCycle())

	tx, err = txRepo.GetTx(ctx, "aa11")
	require.NoError(t, err)
	require.Equal(t, uint64(6), tx.Confirmations)
	require.Equal(t, domain.TxStatusArchived, tx.Status)

	active, err := txRepo.GetActiveTxs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "bb22", active[0].TxID)
}

func TestMonitorCycleFailure(t *testing.T) {
	repoManager := inmemory.NewRepoManager()
	t.Cleanup(repoManager.Close)

	chainSource := &mockChainSource{}
	chainSource.On("GetBlockHeight", mock.Anything).Return(
		nil, &ports.TransientError{Err: fmt.Errorf("gateway timeout")},
	)

	svc := application.NewMonitorService(
		repoManager, chainSource,
		application.NewArchiveService(repoManager),
		time.Minute, domain.ConfirmedThreshold,
	)

	addMonitoredTx(t, repoManager, "aa11")

	err := svc.RunCycle()
	require.Error(t, err)
	chainSource.AssertNotCalled(t, "GetTransaction", mock.Anything, mock.Anything)
}

func addMonitoredTx(
	t *testing.T, repoManager ports.RepoManager, txid string,
) {
	t.Helper()

	tx := domain.NewMonitoredTx(
		txid, domain.TxDirectionOutgoing, 40000, []string{testDestination},
	)
	done, err := repoManager.MonitoredTxRepository().AddTx(ctx, tx)
	require.NoError(t, err)
	require.True(t, done)
}
