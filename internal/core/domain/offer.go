package domain

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

const (
	// OfferStatusPending is the status of an offer still collecting
	// signatures.
	OfferStatusPending OfferStatus = iota
	// OfferStatusReady is the status of an offer whose signature quorum is
	// met and that can be broadcast.
	OfferStatusReady
	// OfferStatusBroadcasting is the status of an offer with a broadcast
	// attempt in flight.
	OfferStatusBroadcasting
)

var (
	ErrDuplicateSignature = fmt.Errorf("signer already signed the offer")
	ErrUnknownSigner      = fmt.Errorf("signer is not part of the wallet signer set")
	ErrQuorumNotMet       = fmt.Errorf("signature quorum not met")
	ErrOfferBroadcasting  = fmt.Errorf("offer has a broadcast attempt in flight")
	ErrInvalidQuorum      = fmt.Errorf("required signatures must not exceed total signers")
)

type OfferStatus int

var offerStatusString = map[OfferStatus]string{
	OfferStatusPending:      "pending",
	OfferStatusReady:        "ready",
	OfferStatusBroadcasting: "broadcasting",
}

func (s OfferStatus) String() string {
	return offerStatusString[s]
}

// Psbt is the opaque partially-signed transaction blob exchanged with the
// external builder and signers. It is never parsed within this package.
type Psbt []byte

// SignatureSet holds the contribution of a single signer to an offer.
// Created once per successful signing call and never mutated.
type SignatureSet struct {
	SignerFingerprint string
	Payload           Psbt
	SignedAt          time.Time
}

// Offer is the data structure representing a spend offer collecting an
// M-of-N signature quorum before being broadcast.
type Offer struct {
	ID                 string
	CreatedAt          time.Time
	UnsignedTx         Psbt
	Signatures         []SignatureSet
	RequiredSignatures int
	TotalSigners       int
	Status             OfferStatus
	Destination        string
	Amount             btcutil.Amount
	Fee                btcutil.Amount
	FeeRate            decimal.Decimal
	Inputs             Utxos
	ChangeAmount       btcutil.Amount
	ChangeAddress      string
}

// NewOffer returns a pending offer with no signatures collected.
func NewOffer(
	id string, unsignedTx Psbt, requiredSignatures, totalSigners int,
	destination string, amount, fee btcutil.Amount, feeRate decimal.Decimal,
	inputs Utxos, changeAmount btcutil.Amount, changeAddress string,
) (*Offer, error) {
	if requiredSignatures <= 0 || requiredSignatures > totalSigners {
		return nil, ErrInvalidQuorum
	}
	return &Offer{
		ID:                 id,
		CreatedAt:          time.Now(),
		UnsignedTx:         unsignedTx,
		Signatures:         make([]SignatureSet, 0, requiredSignatures),
		RequiredSignatures: requiredSignatures,
		TotalSigners:       totalSigners,
		Status:             OfferStatusPending,
		Destination:        destination,
		Amount:             amount,
		Fee:                fee,
		FeeRate:            feeRate,
		Inputs:             inputs,
		ChangeAmount:       changeAmount,
		ChangeAddress:      changeAddress,
	}, nil
}

// HasSigned returns whether the signer identified by the given fingerprint
// already contributed a signature.
func (o *Offer) HasSigned(fingerprint string) bool {
	for _, sig := range o.Signatures {
		if sig.SignerFingerprint == fingerprint {
			return true
		}
	}
	return false
}

// IsQuorumMet returns whether the offer collected at least the required
// number of signatures.
func (o *Offer) IsQuorumMet() bool {
	return len(o.Signatures) >= o.RequiredSignatures
}

// RemainingSigners returns the subset of the given configured signer
// fingerprints that didn't sign the offer yet.
func (o *Offer) RemainingSigners(configured []string) []string {
	remaining := make([]string, 0, len(configured))
	for _, fingerprint := range configured {
		if !o.HasSigned(fingerprint) {
			remaining = append(remaining, fingerprint)
		}
	}
	return remaining
}

// AddSignature appends the given signature and recomputes the offer status.
// A second signature from the same signer is rejected with
// ErrDuplicateSignature and leaves the offer untouched.
func (o *Offer) AddSignature(sig SignatureSet) error {
	if o.HasSigned(sig.SignerFingerprint) {
		return ErrDuplicateSignature
	}

	o.Signatures = append(o.Signatures, sig)
	if o.Status != OfferStatusBroadcasting {
		o.updateStatus()
	}
	return nil
}

// BeginBroadcast moves the offer to the broadcasting status. The transition
// is legal only from the ready status, making sure at most one broadcast
// attempt is in flight per offer.
func (o *Offer) BeginBroadcast() error {
	if o.Status == OfferStatusBroadcasting {
		return ErrOfferBroadcasting
	}
	if o.Status != OfferStatusReady {
		return ErrQuorumNotMet
	}
	o.Status = OfferStatusBroadcasting
	return nil
}

// FailBroadcast reverts a broadcasting offer to its pre-broadcast status,
// ready if the quorum is still met, pending otherwise.
func (o *Offer) FailBroadcast() {
	if o.Status != OfferStatusBroadcasting {
		return
	}
	o.updateStatus()
}

// CanCancel returns whether the offer can be cancelled. Offers with a
// broadcast attempt in flight cannot.
func (o *Offer) CanCancel() bool {
	return o.Status == OfferStatusPending || o.Status == OfferStatusReady
}

// SignatureCount returns the number of collected signatures.
func (o *Offer) SignatureCount() int {
	return len(o.Signatures)
}

// SignaturePayloads returns the opaque signed blobs collected so far, in
// signing order.
func (o *Offer) SignaturePayloads() []Psbt {
	payloads := make([]Psbt, 0, len(o.Signatures))
	for _, sig := range o.Signatures {
		payloads = append(payloads, sig.Payload)
	}
	return payloads
}

func (o *Offer) updateStatus() {
	if o.IsQuorumMet() {
		o.Status = OfferStatusReady
	} else {
		o.Status = OfferStatusPending
	}
}
