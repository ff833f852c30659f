package application_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/covault/covaultd/internal/core/application"
	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
	"github.com/covault/covaultd/internal/infrastructure/storage/db/inmemory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	ctx = context.Background()

	testWallet = application.WalletConfig{
		Signers: []application.SignerKey{
			{Fingerprint: "73c5da0a", DerivationPath: "m/48'/1'/0'/2'"},
			{Fingerprint: "f1d2d3e4", DerivationPath: "m/48'/1'/0'/2'"},
			{Fingerprint: "0badc0de", DerivationPath: "m/48'/1'/0'/2'"},
		},
		RequiredSignatures: 2,
		Addresses:          []string{"bcrt1qwallet"},
		ChangeAddress:      "bcrt1qchange",
	}

	testDestination = "bcrt1qdest"
	testFeeRate     = decimal.NewFromInt(5)
)

func TestNewOfferService(t *testing.T) {
	chainSource := &mockChainSource{}
	txBuilder := &mockTxBuilder{}
	signer := &mockSigner{}
	repoManager := inmemory.NewRepoManager()
	t.Cleanup(repoManager.Close)

	_, err := application.NewOfferService(
		repoManager, chainSource, txBuilder, signer, testWallet, time.Minute,
	)
	require.NoError(t, err)

	badWallet := testWallet
	badWallet.RequiredSignatures = 4
	_, err = application.NewOfferService(
		repoManager, chainSource, txBuilder, signer, badWallet, time.Minute,
	)
	require.Error(t, err)
}

func TestCreateDraft(t *testing.T) {
	chainSource := &mockChainSource{}
	chainSource.On("GetAddressUtxos", mock.Anything, "bcrt1qwallet").
		Return(testUtxos(), nil)

	svc, _ := newTestOfferService(t, chainSource, &mockTxBuilder{}, &mockSigner{})

	draft, err := svc.CreateDraft(
		ctx, testDestination, 40000, testFeeRate,
		application.CoinSelectionLargestFirst,
	)
	require.NoError(t, err)
	require.Len(t, draft.SelectedUtxos, 1)
	require.Equal(t, btcutil.Amount(50000), draft.SelectedUtxos[0].Value)
	require.Equal(t, btcutil.Amount(50000)-40000-draft.EstimatedFee, draft.ChangeAmount)
	require.Equal(t, "bcrt1qchange", draft.ChangeAddress)

	got, err := svc.GetDraft()
	require.NoError(t, err)
	require.Equal(t, draft, got)

	svc.DiscardDraft()
	_, err = svc.GetDraft()
	require.EqualError(t, err, application.ErrDraftNotFound.Error())

	_, err = svc.CreateDraft(
		ctx, "", 40000, testFeeRate, application.CoinSelectionLargestFirst,
	)
	require.EqualError(t, err, application.ErrMissingRecipient.Error())

	_, err = svc.CreateDraft(
		ctx, testDestination, 10000000, testFeeRate,
		application.CoinSelectionLargestFirst,
	)
	require.EqualError(t, err, ports.ErrInsufficientFunds.Error())
}

func TestCreateDraftWithFeeEstimate(t *testing.T) {
	chainSource := &mockChainSource{}
	chainSource.On("GetAddressUtxos", mock.Anything, "bcrt1qwallet").
		Return(testUtxos(), nil)
	chainSource.On("GetFeeEstimate", mock.Anything, 6).
		Return(decimal.NewFromInt(2), nil)

	svc, _ := newTestOfferService(t, chainSource, &mockTxBuilder{}, &mockSigner{})

	draft, err := svc.CreateDraft(
		ctx, testDestination, 40000, decimal.Zero,
		application.CoinSelectionLargestFirst,
	)
	require.NoError(t, err)
	require.True(t, draft.FeeRate.Equal(decimal.NewFromInt(2)))
	chainSource.AssertExpectations(t)
}

func TestCreateOffer(t *testing.T) {
	chainSource := &mockChainSource{}
	chainSource.On("GetAddressUtxos", mock.Anything, "bcrt1qwallet").
		Return(testUtxos(), nil)
	txBuilder := &mockTxBuilder{}
	txBuilder.On("BuildUnsigned", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.Psbt("unsigned-blob"), nil)

	svc, _ := newTestOfferService(t, chainSource, txBuilder, &mockSigner{})

	_, err := svc.CreateOffer(ctx)
	require.EqualError(t, err, application.ErrDraftNotFound.Error())

	draft, err := svc.CreateDraft(
		ctx, testDestination, 40000, testFeeRate,
		application.CoinSelectionLargestFirst,
	)
	require.NoError(t, err)

	offer, err := svc.CreateOffer(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, offer.ID)
	require.Equal(t, domain.OfferStatusPending, offer.Status)
	require.Equal(t, 2, offer.RequiredSignatures)
	require.Equal(t, 3, offer.TotalSigners)
	require.Equal(t, draft.SelectedUtxos.Keys(), offer.Inputs.Keys())
	require.Equal(t, domain.Psbt("unsigned-blob"), offer.UnsignedTx)

	// The draft is consumed by the offer.
	_, err = svc.GetDraft()
	require.EqualError(t, err, application.ErrDraftNotFound.Error())

	// Inputs of the pending offer are out of reach for the next selection.
	_, err = svc.CreateDraft(
		ctx, testDestination, 49500, testFeeRate,
		application.CoinSelectionLargestFirst,
	)
	require.EqualError(t, err, ports.ErrInsufficientFunds.Error())
}

func TestSignOffer(t *testing.T) {
	chainSource := &mockChainSource{}
	chainSource.On("GetAddressUtxos", mock.Anything, "bcrt1qwallet").
		Return(testUtxos(), nil)
	txBuilder := &mockTxBuilder{}
	txBuilder.On("BuildUnsigned", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.Psbt("unsigned-blob"), nil)
	signer := &mockSigner{}
	signer.On(
		"SignPsbt", mock.Anything, domain.Psbt("unsigned-blob"),
		mock.Anything, mock.Anything,
	).Return(domain.Psbt("signed-blob"), nil)

	svc, _ := newTestOfferService(t, chainSource, txBuilder, signer)
	offer := createTestOffer(t, svc)

	_, err := svc.SignOffer(ctx, offer.ID, "cafebabe")
	require.EqualError(t, err, domain.ErrUnknownSigner.Error())

	signed, err := svc.SignOffer(ctx, offer.ID, "73c5da0a")
	require.NoError(t, err)
	require.Equal(t, 1, signed.SignatureCount())
	require.Equal(t, domain.OfferStatusPending, signed.Status)

	remaining, err := svc.RemainingSigners(ctx, offer.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"f1d2d3e4", "0badc0de"}, remaining)

	signed, err = svc.SignOffer(ctx, offer.ID, "f1d2d3e4")
	require.NoError(t, err)
	require.Equal(t, 2, signed.SignatureCount())
	require.Equal(t, domain.OfferStatusReady, signed.Status)

	// A duplicate contribution leaves the offer untouched and does not
	// reach the device again.
	signed, err = svc.SignOffer(ctx, offer.ID, "73c5da0a")
	require.NoError(t, err)
	require.Equal(t, 2, signed.SignatureCount())
	require.Equal(t, domain.OfferStatusReady, signed.Status)
	signer.AssertNumberOfCalls(t, "SignPsbt", 2)
}

func TestSignOfferFailure(t *testing.T) {
	chainSource := &mockChainSource{}
	chainSource.On("GetAddressUtxos", mock.Anything, "bcrt1qwallet").
		Return(testUtxos(), nil)
	txBuilder := &mockTxBuilder{}
	txBuilder.On("BuildUnsigned", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.Psbt("unsigned-blob"), nil)
	signer := &mockSigner{}
	signer.On(
		"SignPsbt", mock.Anything, mock.Anything, mock.Anything, mock.Anything,
	).Return(nil, ports.ErrSigningRejected)

	svc, _ := newTestOfferService(t, chainSource, txBuilder, signer)
	offer := createTestOffer(t, svc)

	_, err := svc.SignOffer(ctx, offer.ID, "73c5da0a")
	require.ErrorIs(t, err, ports.ErrSigningRejected)

	got, err := svc.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	require.Zero(t, got.SignatureCount())
}

func TestBroadcastOffer(t *testing.T) {
	chainSource := &mockChainSource{}
	chainSource.On("GetAddressUtxos", mock.Anything, "bcrt1qwallet").
		Return(testUtxos(), nil)
	chainSource.On("Broadcast", mock.Anything, []byte("raw-tx")).
		Return("ee55", nil)
	txBuilder := &mockTxBuilder{}
	txBuilder.On("BuildUnsigned", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.Psbt("unsigned-blob"), nil)
	txBuilder.On(
		"Combine", mock.Anything, domain.Psbt("unsigned-blob"),
		[]domain.Psbt{domain.Psbt("signed-blob"), domain.Psbt("signed-blob")},
	).Return(domain.Psbt("combined-blob"), nil)
	txBuilder.On("Finalize", mock.Anything, domain.Psbt("combined-blob")).
		Return([]byte("raw-tx"), nil)
	signer := &mockSigner{}
	signer.On(
		"SignPsbt", mock.Anything, mock.Anything, mock.Anything, mock.Anything,
	).Return(domain.Psbt("signed-blob"), nil)

	svc, repoManager := newTestOfferService(t, chainSource, txBuilder, signer)
	offer := createTestOffer(t, svc)

	// Broadcasting before the quorum is met is rejected.
	_, err := svc.BroadcastOffer(ctx, offer.ID)
	require.EqualError(t, err, domain.ErrQuorumNotMet.Error())

	signOffer(t, svc, offer.ID, "73c5da0a", "f1d2d3e4")

	txid, err := svc.BroadcastOffer(ctx, offer.ID)
	require.NoError(t, err)
	require.Equal(t, "ee55", txid)

	// The offer left the pending set for the history and the monitored set.
	_, err = svc.GetOffer(ctx, offer.ID)
	require.Error(t, err)

	history, err := svc.GetHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "ee55", history[0].TxID)
	require.Equal(t, btcutil.Amount(40000), history[0].Amount)
	require.Equal(t, testDestination, history[0].Destination)
	require.Equal(t, offer.Fee, history[0].Fee)

	tx, err := repoManager.MonitoredTxRepository().GetTx(ctx, "ee55")
	require.NoError(t, err)
	require.Equal(t, domain.TxDirectionOutgoing, tx.Direction)
	require.Equal(t, domain.TxStatusMempool, tx.Status)
	require.Equal(t, btcutil.Amount(40000), tx.Amount)
}

func TestBroadcastOfferFailure(t *testing.T) {
	broadcastErr := &ports.BroadcastError{
		Reason:  ports.BroadcastReasonFeeTooLow,
		Message: "min relay fee not met",
	}

	chainSource := &mockChainSource{}
	chainSource.On("GetAddressUtxos", mock.Anything, "bcrt1qwallet").
		Return(testUtxos(), nil)
	chainSource.On("Broadcast", mock.Anything, mock.Anything).
		Return(nil, broadcastErr)
	txBuilder := &mockTxBuilder{}
	txBuilder.On("BuildUnsigned", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.Psbt("unsigned-blob"), nil)
	txBuilder.On("Combine", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.Psbt("combined-blob"), nil)
	txBuilder.On("Finalize", mock.Anything, mock.Anything).
		Return([]byte("raw-tx"), nil)
	signer := &mockSigner{}
	signer.On(
		"SignPsbt", mock.Anything, mock.Anything, mock.Anything, mock.Anything,
	).Return(domain.Psbt("signed-blob"), nil)

	svc, _ := newTestOfferService(t, chainSource, txBuilder, signer)
	offer := createTestOffer(t, svc)
	signOffer(t, svc, offer.ID, "73c5da0a", "f1d2d3e4")

	_, err := svc.BroadcastOffer(ctx, offer.ID)
	require.ErrorAs(t, err, new(*ports.BroadcastError))

	// The failed attempt reverts the offer, ready for a manual retry.
	got, err := svc.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OfferStatusReady, got.Status)

	history, err := svc.GetHistory(ctx)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestCancelOffer(t *testing.T) {
	chainSource := &mockChainSource{}
	chainSource.On("GetAddressUtxos", mock.Anything, "bcrt1qwallet").
		Return(testUtxos(), nil)
	txBuilder := &mockTxBuilder{}
	txBuilder.On("BuildUnsigned", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.Psbt("unsigned-blob"), nil)

	svc, _ := newTestOfferService(t, chainSource, txBuilder, &mockSigner{})
	offer := createTestOffer(t, svc)

	err := svc.CancelOffer(ctx, offer.ID)
	require.NoError(t, err)

	_, err = svc.GetOffer(ctx, offer.ID)
	require.Error(t, err)

	// Cancelled inputs are spendable again.
	_, err = svc.CreateDraft(
		ctx, testDestination, 49500, testFeeRate,
		application.CoinSelectionLargestFirst,
	)
	require.NoError(t, err)
}

func TestGetBalance(t *testing.T) {
	utxos := testUtxos()
	utxos[2].Confirmed = false

	chainSource := &mockChainSource{}
	chainSource.On("GetAddressUtxos", mock.Anything, "bcrt1qwallet").
		Return(utxos, nil)
	txBuilder := &mockTxBuilder{}
	txBuilder.On("BuildUnsigned", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.Psbt("unsigned-blob"), nil)

	svc, _ := newTestOfferService(t, chainSource, txBuilder, &mockSigner{})

	balance, err := svc.GetBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(80000), balance.Confirmed)
	require.Equal(t, btcutil.Amount(20000), balance.Unconfirmed)
	require.Zero(t, balance.Reserved)
	require.Equal(t, btcutil.Amount(100000), balance.Total())

	// The 50000 utxo gets reserved by the pending offer.
	createTestOffer(t, svc)

	balance, err = svc.GetBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(30000), balance.Confirmed)
	require.Equal(t, btcutil.Amount(20000), balance.Unconfirmed)
	require.Equal(t, btcutil.Amount(50000), balance.Reserved)
}

func newTestOfferService(
	t *testing.T, chainSource ports.ChainSource, txBuilder ports.TxBuilder,
	signer ports.Signer,
) (*application.OfferService, ports.RepoManager) {
	t.Helper()

	repoManager := inmemory.NewRepoManager()
	t.Cleanup(repoManager.Close)

	svc, err := application.NewOfferService(
		repoManager, chainSource, txBuilder, signer, testWallet, time.Minute,
	)
	require.NoError(t, err)
	return svc, repoManager
}

func createTestOffer(
	t *testing.T, svc *application.OfferService,
) *domain.Offer {
	t.Helper()

	_, err := svc.CreateDraft(
		ctx, testDestination, 40000, testFeeRate,
		application.CoinSelectionLargestFirst,
	)
	require.NoError(t, err)

	offer, err := svc.CreateOffer(ctx)
	require.NoError(t, err)
	return offer
}

func signOffer(
	t *testing.T, svc *application.OfferService, offerID string,
	fingerprints ...string,
) {
	t.Helper()

	for _, fingerprint := range fingerprints {
		_, err := svc.SignOffer(ctx, offerID, fingerprint)
		require.NoError(t, err)
	}
}

func testUtxos() domain.Utxos {
	utxos := make(domain.Utxos, 0, 3)
	for i, value := range []btcutil.Amount{50000, 30000, 20000} {
		utxos = append(utxos, &domain.Utxo{
			UtxoKey: domain.UtxoKey{
				TxID: fmt.Sprintf("%064d", i), VOut: uint32(i),
			},
			Value:     value,
			Address:   "bcrt1qwallet",
			Confirmed: true,
		})
	}
	return utxos
}
