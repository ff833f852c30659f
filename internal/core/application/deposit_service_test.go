package application_test

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/covault/covaultd/internal/core/application"
	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
	"github.com/covault/covaultd/internal/infrastructure/storage/db/inmemory"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDetectDeposits(t *testing.T) {
	repoManager := inmemory.NewRepoManager()
	t.Cleanup(repoManager.Close)
	txRepo := repoManager.MonitoredTxRepository()

	baseline := testUtxos()
	// dd44 pays the wallet twice, ee55 is still unconfirmed.
	incoming := domain.Utxos{
		depositUtxo("dd44", 0, 7000, true),
		depositUtxo("dd44", 1, 3000, true),
		depositUtxo("ee55", 0, 15000, false),
	}

	chainSource := &mockChainSource{}
	chainSource.On("GetAddressUtxos", mock.Anything, "bcrt1qwallet").
		Return(baseline, nil).Once()
	chainSource.On("GetAddressUtxos", mock.Anything, "bcrt1qwallet").
		Return(append(baseline, incoming...), nil)
	chainSource.On("GetBlockHeight", mock.Anything).Return(uint64(120), nil)
	chainSource.On("GetTransaction", mock.Anything, "dd44").Return(
		&ports.TxStatusInfo{Confirmed: true, BlockHeight: 118, BlockTime: time.Now().Unix()},
		nil,
	)
	chainSource.On("GetTransaction", mock.Anything, "ee55").Return(
		&ports.TxStatusInfo{}, nil,
	)

	svc := application.NewDepositService(
		repoManager, chainSource, testWallet.Addresses, time.Minute,
	)

	// The first refresh only records the baseline.
	require.NoError(t, svc.Refresh(ctx))
	active, err := txRepo.GetActiveTxs(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	require.NoError(t, svc.Refresh(ctx))

	tx, err := txRepo.GetTx(ctx, "dd44")
	require.NoError(t, err)
	require.Equal(t, domain.TxDirectionIncoming, tx.Direction)
	require.Equal(t, btcutil.Amount(10000), tx.Amount)
	require.Equal(t, []string{"bcrt1qwallet"}, tx.Addresses)
	require.Equal(t, uint64(3), tx.Confirmations)
	require.Equal(t, domain.TxStatusConfirming, tx.Status)

	tx, err = txRepo.GetTx(ctx, "ee55")
	require.NoError(t, err)
	require.Equal(t, domain.TxDirectionIncoming, tx.Direction)
	require.Equal(t, btcutil.Amount(15000), tx.Amount)
	require.Equal(t, domain.TxStatusMempool, tx.Status)

	// A third refresh over the same set registers nothing new.
	require.NoError(t, svc.Refresh(ctx))
	active, err = txRepo.GetActiveTxs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	chainSource.AssertNumberOfCalls(t, "GetTransaction", 2)
}

func TestDetectDepositsRetriesFailures(t *testing.T) {
	repoManager := inmemory.NewRepoManager()
	t.Cleanup(repoManager.Close)
	txRepo := repoManager.MonitoredTxRepository()

	baseline := testUtxos()
	incoming := domain.Utxos{depositUtxo("ff66", 0, 9000, true)}

	chainSource := &mockChainSource{}
	chainSource.On("GetAddressUtxos", mock.Anything, "bcrt1qwallet").
		Return(baseline, nil).Once()
	chainSource.On("GetAddressUtxos", mock.Anything, "bcrt1qwallet").
		Return(append(baseline, incoming...), nil)
	chainSource.On("GetBlockHeight", mock.Anything).Return(uint64(120), nil)
	chainSource.On("GetTransaction", mock.Anything, "ff66").Return(
		nil, &ports.TransientError{Err: fmt.Errorf("bad gateway")},
	).Once()
	chainSource.On("GetTransaction", mock.Anything, "ff66").Return(
		&ports.TxStatusInfo{Confirmed: true, BlockHeight: 119, BlockTime: time.Now().Unix()},
		nil,
	)

	svc := application.NewDepositService(
		repoManager, chainSource, testWallet.Addresses, time.Minute,
	)

	require.NoError(t, svc.Refresh(ctx))

	// The fetch fails, the deposit stays unknown for the next refresh.
	require.NoError(t, svc.Refresh(ctx))
	_, err := txRepo.GetTx(ctx, "ff66")
	require.Error(t, err)

	require.NoError(t, svc.Refresh(ctx))
	tx, err := txRepo.GetTx(ctx, "ff66")
	require.NoError(t, err)
	require.Equal(t, uint64(2), tx.Confirmations)
}

func TestBackfillDeposits(t *testing.T) {
	repoManager := inmemory.NewRepoManager()
	t.Cleanup(repoManager.Close)
	txRepo := repoManager.MonitoredTxRepository()

	utxos := append(testUtxos(), depositUtxo("ee55", 0, 15000, false))

	chainSource := &mockChainSource{}
	chainSource.On("GetAddressUtxos", mock.Anything, "bcrt1qwallet").
		Return(utxos, nil)
	chainSource.On("GetBlockHeight", mock.Anything).Return(uint64(120), nil)
	chainSource.On("GetTransaction", mock.Anything, "ee55").Return(
		&ports.TxStatusInfo{}, nil,
	)

	svc := application.NewDepositService(
		repoManager, chainSource, testWallet.Addresses, time.Minute,
	)

	require.NoError(t, svc.Backfill(ctx))

	tx, err := txRepo.GetTx(ctx, "ee55")
	require.NoError(t, err)
	require.Equal(t, domain.TxDirectionIncoming, tx.Direction)
	require.Equal(t, domain.TxStatusMempool, tx.Status)

	active, err := txRepo.GetActiveTxs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestBaselinePersistence(t *testing.T) {
	repoManager := inmemory.NewRepoManager()
	t.Cleanup(repoManager.Close)
	txRepo := repoManager.MonitoredTxRepository()

	baselineFile := filepath.Join(t.TempDir(), "deposits.json")
	baseline := testUtxos()

	chainSource := &mockChainSource{}
	chainSource.On("GetAddressUtxos", mock.Anything, "bcrt1qwallet").
		Return(baseline, nil)

	svc := application.NewDepositService(
		repoManager, chainSource, testWallet.Addresses, time.Minute,
	).WithBaselineFile(baselineFile)
	require.NoError(t, svc.Refresh(ctx))

	// A new service restoring from the same file skips the baseline run and
	// registers a deposit on its very first refresh.
	incoming := domain.Utxos{depositUtxo("dd44", 0, 7000, true)}
	restartedSource := &mockChainSource{}
	restartedSource.On("GetAddressUtxos", mock.Anything, "bcrt1qwallet").
		Return(append(baseline, incoming...), nil)
	restartedSource.On("GetBlockHeight", mock.Anything).Return(uint64(120), nil)
	restartedSource.On("GetTransaction", mock.Anything, "dd44").Return(
		&ports.TxStatusInfo{Confirmed: true, BlockHeight: 120, BlockTime: time.Now().Unix()},
		nil,
	)

	restarted := application.NewDepositService(
		repoManager, restartedSource, testWallet.Addresses, time.Minute,
	).WithBaselineFile(baselineFile)
	require.NoError(t, restarted.Refresh(ctx))

	tx, err := txRepo.GetTx(ctx, "dd44")
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(7000), tx.Amount)
}

func depositUtxo(
	txid string, vout uint32, value btcutil.Amount, confirmed bool,
) *domain.Utxo {
	return &domain.Utxo{
		UtxoKey:   domain.UtxoKey{TxID: txid, VOut: vout},
		Value:     value,
		Address:   "bcrt1qwallet",
		Confirmed: confirmed,
	}
}
