package domain_test

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/covault/covaultd/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	signerA = "a1b2c3d4"
	signerB = "e5f6a7b8"
	signerC = "c9d0e1f2"
	signers = []string{signerA, signerB, signerC}
)

func TestOfferQuorum(t *testing.T) {
	offer := newTestOffer(t, 2, 3)
	require.Equal(t, domain.OfferStatusPending, offer.Status)
	require.False(t, offer.IsQuorumMet())
	require.Equal(t, signers, offer.RemainingSigners(signers))

	err := offer.AddSignature(newTestSignature(signerA))
	require.NoError(t, err)
	require.Equal(t, domain.OfferStatusPending, offer.Status)
	require.Equal(t, 1, offer.SignatureCount())
	require.True(t, offer.HasSigned(signerA))
	require.Equal(t, []string{signerB, signerC}, offer.RemainingSigners(signers))

	err = offer.AddSignature(newTestSignature(signerB))
	require.NoError(t, err)
	require.Equal(t, domain.OfferStatusReady, offer.Status)
	require.True(t, offer.IsQuorumMet())
	require.Equal(t, 2, offer.SignatureCount())

	// A second signature from the same signer must leave the offer
	// untouched.
	err = offer.AddSignature(newTestSignature(signerA))
	require.ErrorIs(t, err, domain.ErrDuplicateSignature)
	require.Equal(t, domain.OfferStatusReady, offer.Status)
	require.Equal(t, 2, offer.SignatureCount())
}

func TestOfferStatusMatchesQuorumInEveryReachableState(t *testing.T) {
	offer := newTestOffer(t, 2, 3)
	for _, signer := range signers {
		require.Equal(t, offer.IsQuorumMet(), offer.Status == domain.OfferStatusReady)
		require.NoError(t, offer.AddSignature(newTestSignature(signer)))
	}
	require.Equal(t, domain.OfferStatusReady, offer.Status)
	require.Equal(t, 3, offer.SignatureCount())
}

func TestOfferBroadcastTransitions(t *testing.T) {
	offer := newTestOffer(t, 2, 3)

	err := offer.BeginBroadcast()
	require.ErrorIs(t, err, domain.ErrQuorumNotMet)

	require.NoError(t, offer.AddSignature(newTestSignature(signerA)))
	require.NoError(t, offer.AddSignature(newTestSignature(signerB)))

	err = offer.BeginBroadcast()
	require.NoError(t, err)
	require.Equal(t, domain.OfferStatusBroadcasting, offer.Status)
	require.False(t, offer.CanCancel())

	// Only one broadcast attempt may be in flight.
	err = offer.BeginBroadcast()
	require.ErrorIs(t, err, domain.ErrOfferBroadcasting)

	offer.FailBroadcast()
	require.Equal(t, domain.OfferStatusReady, offer.Status)
	require.True(t, offer.CanCancel())
}

func TestOfferFailBroadcastRevertsToPendingIfQuorumLost(t *testing.T) {
	offer := newTestOffer(t, 1, 3)
	require.NoError(t, offer.AddSignature(newTestSignature(signerA)))
	require.NoError(t, offer.BeginBroadcast())

	offer.Signatures = nil
	offer.FailBroadcast()
	require.Equal(t, domain.OfferStatusPending, offer.Status)
}

func TestNewOfferRejectsInvalidQuorum(t *testing.T) {
	_, err := domain.NewOffer(
		"test", []byte("psbt"), 4, 3, "bcrt1qdest", 10000, 1000,
		decimal.NewFromInt(1), nil, 0, "",
	)
	require.ErrorIs(t, err, domain.ErrInvalidQuorum)
}

func newTestOffer(t *testing.T, required, total int) *domain.Offer {
	t.Helper()

	inputs := domain.Utxos{
		{
			UtxoKey: domain.UtxoKey{TxID: "aa", VOut: 0},
			Value:   btcutil.Amount(50000),
		},
	}
	offer, err := domain.NewOffer(
		"offer-test", []byte("psbt"), required, total, "bcrt1qdest",
		40000, 1000, decimal.NewFromInt(1), inputs, 9000, "bcrt1qchange",
	)
	require.NoError(t, err)
	return offer
}

func newTestSignature(fingerprint string) domain.SignatureSet {
	return domain.SignatureSet{
		SignerFingerprint: fingerprint,
		Payload:           []byte("signed-" + fingerprint),
		SignedAt:          time.Now(),
	}
}
