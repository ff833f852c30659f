package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	ErrDraftNotFound    = fmt.Errorf("no draft in progress")
	ErrOfferNotFound    = fmt.Errorf("offer not found")
	ErrMissingRecipient = fmt.Errorf("missing destination or amount")
)

// OfferService is responsible for the whole lifecycle of a spend offer:
//   - Select coins for a new spend and keep the resulting draft until the
//     user either turns it into an offer or discards it.
//   - Create a pending offer out of the draft, with the unsigned blob
//     crafted by the external builder.
//   - Collect signatures from the configured signer set until the M-of-N
//     quorum is met, ignoring duplicate contributions.
//   - Drive a ready offer through broadcast and, on success, move it to the
//     completed history and register an outgoing monitored transaction.
//   - Cancel offers that have no broadcast attempt in flight.
//
// Inputs of pending offers are excluded from subsequent coin selections so
// that two open offers never reference the same utxo.
type OfferService struct {
	repoManager ports.RepoManager
	chainSource ports.ChainSource
	txBuilder   ports.TxBuilder
	signer      ports.Signer
	wallet      WalletConfig
	signTimeout time.Duration

	draft     *domain.TransactionDraft
	draftLock *sync.Mutex

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewOfferService(
	repoManager ports.RepoManager, chainSource ports.ChainSource,
	txBuilder ports.TxBuilder, signer ports.Signer,
	wallet WalletConfig, signTimeout time.Duration,
) (*OfferService, error) {
	if err := wallet.validate(); err != nil {
		return nil, fmt.Errorf("invalid wallet config: %s", err)
	}

	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("offer service: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("offer service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &OfferService{
		repoManager: repoManager,
		chainSource: chainSource,
		txBuilder:   txBuilder,
		signer:      signer,
		wallet:      wallet,
		signTimeout: signTimeout,
		draftLock:   &sync.Mutex{},
		log:         logFn,
		warn:        warnFn,
	}, nil
}

// CreateDraft runs a coin selection for the given destination and amount and
// keeps the outcome as the active draft. A fee rate of zero means asking the
// chain source for an estimate. Any previous draft is discarded.
func (s *OfferService) CreateDraft(
	ctx context.Context, destination string, amount btcutil.Amount,
	feeRate decimal.Decimal, strategy int,
) (*domain.TransactionDraft, error) {
	if destination == "" || amount <= 0 {
		return nil, ErrMissingRecipient
	}

	if feeRate.IsZero() {
		estimate, err := s.chainSource.GetFeeEstimate(ctx, domain.ConfirmedThreshold)
		if err != nil {
			return nil, fmt.Errorf("fee estimate: %w", err)
		}
		feeRate = estimate
	}

	utxos, err := s.spendableUtxos(ctx)
	if err != nil {
		return nil, err
	}

	coinSelector := DefaultCoinSelector
	if factory, ok := coinSelectorByType[strategy]; ok {
		coinSelector = factory()
	}

	feeModel := feeModelForRate(
		feeRate, s.wallet.RequiredSignatures, len(s.wallet.Signers), 2,
	)
	selection, err := coinSelector.SelectUtxos(utxos, amount, feeModel)
	if err != nil {
		return nil, err
	}

	draft := &domain.TransactionDraft{
		SelectedUtxos: selection.Utxos,
		Destination:   destination,
		Amount:        amount,
		FeeRate:       feeRate,
		ChangeAddress: s.wallet.ChangeAddress,
		EstimatedFee:  selection.Fee,
		ChangeAmount:  selection.Change,
	}

	s.draftLock.Lock()
	s.draft = draft
	s.draftLock.Unlock()

	s.log(
		"draft created: %d input(s), fee %d, change %d",
		len(selection.Utxos), selection.Fee, selection.Change,
	)
	return draft, nil
}

// DiscardDraft drops the active draft, if any.
func (s *OfferService) DiscardDraft() {
	s.draftLock.Lock()
	defer s.draftLock.Unlock()
	s.draft = nil
}

// GetDraft returns the active draft, if any.
func (s *OfferService) GetDraft() (*domain.TransactionDraft, error) {
	s.draftLock.Lock()
	defer s.draftLock.Unlock()
	if s.draft == nil {
		return nil, ErrDraftNotFound
	}
	return s.draft, nil
}

// CreateOffer turns the active draft into a pending offer with the unsigned
// blob crafted by the external builder, then clears the draft.
func (s *OfferService) CreateOffer(ctx context.Context) (*domain.Offer, error) {
	s.draftLock.Lock()
	draft := s.draft
	s.draftLock.Unlock()
	if draft == nil {
		return nil, ErrDraftNotFound
	}

	outputs := []ports.TxOutput{
		{Address: draft.Destination, Amount: draft.Amount},
	}
	if draft.ChangeAmount > 0 {
		outputs = append(outputs, ports.TxOutput{
			Address: draft.ChangeAddress, Amount: draft.ChangeAmount,
		})
	}

	unsignedTx, err := s.txBuilder.BuildUnsigned(ctx, draft.SelectedUtxos, outputs)
	if err != nil {
		return nil, fmt.Errorf("building unsigned tx: %w", err)
	}

	offer, err := domain.NewOffer(
		uuid.NewString(), unsignedTx,
		s.wallet.RequiredSignatures, len(s.wallet.Signers),
		draft.Destination, draft.Amount, draft.EstimatedFee, draft.FeeRate,
		draft.SelectedUtxos, draft.ChangeAmount, draft.ChangeAddress,
	)
	if err != nil {
		return nil, err
	}

	if _, err := s.repoManager.OfferRepository().AddOffer(ctx, offer); err != nil {
		return nil, err
	}

	s.draftLock.Lock()
	s.draft = nil
	s.draftLock.Unlock()

	s.log("offer %s created (%d/%d quorum)", offer.ID, offer.RequiredSignatures, offer.TotalSigners)
	return offer, nil
}

// SignOffer asks the hardware signer identified by the given fingerprint to
// sign the offer and appends the contribution. Fingerprints outside the
// configured signer set are rejected. A signer that already contributed is
// logged and ignored, leaving the offer untouched.
func (s *OfferService) SignOffer(
	ctx context.Context, offerID, fingerprint string,
) (*domain.Offer, error) {
	derivationPath, ok := s.wallet.signerPath(fingerprint)
	if !ok {
		return nil, domain.ErrUnknownSigner
	}

	offer, err := s.repoManager.OfferRepository().GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.HasSigned(fingerprint) {
		s.log("offer %s: duplicate signature from %s ignored", offerID, fingerprint)
		return offer, nil
	}

	signCtx, cancel := context.WithTimeout(ctx, s.signTimeout)
	defer cancel()
	payload, err := s.signer.SignPsbt(
		signCtx, offer.UnsignedTx, fingerprint, derivationPath,
	)
	if err != nil {
		return nil, fmt.Errorf("signing with %s: %w", fingerprint, err)
	}

	sig := domain.SignatureSet{
		SignerFingerprint: fingerprint,
		Payload:           payload,
		SignedAt:          time.Now(),
	}
	var updated *domain.Offer
	if err := s.repoManager.OfferRepository().UpdateOffer(
		ctx, offerID, func(o *domain.Offer) (*domain.Offer, error) {
			if err := o.AddSignature(sig); err != nil {
				// A concurrent call may have appended the same signer since
				// the check above. Keep the offer as is.
				if err == domain.ErrDuplicateSignature {
					s.log("offer %s: duplicate signature from %s ignored", offerID, fingerprint)
					updated = o
					return o, nil
				}
				return nil, err
			}
			updated = o
			return o, nil
		},
	); err != nil {
		return nil, err
	}

	s.log(
		"offer %s: signature %d/%d collected, status %s",
		offerID, updated.SignatureCount(), updated.RequiredSignatures, updated.Status,
	)
	return updated, nil
}

// BroadcastOffer finalizes a ready offer and publishes it. On success the
// offer is removed, a history record is appended and an outgoing monitored
// transaction is registered. On failure the offer reverts to its
// pre-broadcast status and the provider error is surfaced. There is no
// automatic retry.
func (s *OfferService) BroadcastOffer(
	ctx context.Context, offerID string,
) (string, error) {
	offerRepo := s.repoManager.OfferRepository()

	var offer *domain.Offer
	if err := offerRepo.UpdateOffer(
		ctx, offerID, func(o *domain.Offer) (*domain.Offer, error) {
			if err := o.BeginBroadcast(); err != nil {
				return nil, err
			}
			offer = o
			return o, nil
		},
	); err != nil {
		return "", err
	}

	txid, err := s.finalizeAndBroadcast(ctx, offer)
	if err != nil {
		if revertErr := offerRepo.UpdateOffer(
			ctx, offerID, func(o *domain.Offer) (*domain.Offer, error) {
				o.FailBroadcast()
				return o, nil
			},
		); revertErr != nil {
			s.warn(revertErr, "offer %s: reverting broadcast status", offerID)
		}
		return "", err
	}

	s.completeBroadcast(ctx, offer, txid)
	return txid, nil
}

// CancelOffer removes a pending or ready offer with no history record.
// Cancelling an offer with a broadcast attempt in flight is rejected.
func (s *OfferService) CancelOffer(ctx context.Context, offerID string) error {
	offerRepo := s.repoManager.OfferRepository()
	offer, err := offerRepo.GetOffer(ctx, offerID)
	if err != nil {
		return err
	}
	if !offer.CanCancel() {
		return domain.ErrOfferBroadcasting
	}
	if err := offerRepo.DeleteOffer(ctx, offerID); err != nil {
		return err
	}
	s.log("offer %s cancelled", offerID)
	return nil
}

// GetOffer returns the offer identified by the given id.
func (s *OfferService) GetOffer(
	ctx context.Context, offerID string,
) (*domain.Offer, error) {
	return s.repoManager.OfferRepository().GetOffer(ctx, offerID)
}

// GetOffers returns all pending offers.
func (s *OfferService) GetOffers(ctx context.Context) ([]*domain.Offer, error) {
	return s.repoManager.OfferRepository().GetAllOffers(ctx)
}

// RemainingSigners returns the configured signers that didn't sign the given
// offer yet.
func (s *OfferService) RemainingSigners(
	ctx context.Context, offerID string,
) ([]string, error) {
	offer, err := s.repoManager.OfferRepository().GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	return offer.RemainingSigners(s.wallet.SignerFingerprints()), nil
}

// GetHistory returns the append-only list of completed transactions.
func (s *OfferService) GetHistory(ctx context.Context) ([]*domain.CompletedTx, error) {
	return s.repoManager.HistoryRepository().GetCompletedTxs(ctx)
}

// GetBalance returns the wallet balance split by confirmation status, with
// utxos reserved by pending offers counted apart.
func (s *OfferService) GetBalance(ctx context.Context) (*BalanceInfo, error) {
	reserved, err := s.reservedUtxoKeys(ctx)
	if err != nil {
		return nil, err
	}

	balance := &BalanceInfo{}
	for _, address := range s.wallet.Addresses {
		utxos, err := s.chainSource.GetAddressUtxos(ctx, address)
		if err != nil {
			return nil, err
		}
		for _, u := range utxos {
			switch {
			case reserved[u.Key()]:
				balance.Reserved += u.Value
			case u.Confirmed:
				balance.Confirmed += u.Value
			default:
				balance.Unconfirmed += u.Value
			}
		}
	}
	return balance, nil
}

func (s *OfferService) finalizeAndBroadcast(
	ctx context.Context, offer *domain.Offer,
) (string, error) {
	combined, err := s.txBuilder.Combine(
		ctx, offer.UnsignedTx, offer.SignaturePayloads(),
	)
	if err != nil {
		return "", fmt.Errorf("combining signatures: %w", err)
	}
	rawTx, err := s.txBuilder.Finalize(ctx, combined)
	if err != nil {
		return "", fmt.Errorf("finalizing tx: %w", err)
	}

	txid, err := s.chainSource.Broadcast(ctx, rawTx)
	if err != nil {
		return "", err
	}
	return txid, nil
}

// completeBroadcast moves the offer out of the pending set: the history
// record and the monitored transaction are stored before the offer itself
// is deleted, so a failure along the way never drops funds-relevant state.
func (s *OfferService) completeBroadcast(
	ctx context.Context, offer *domain.Offer, txid string,
) {
	completed := &domain.CompletedTx{
		TxID:        txid,
		CompletedAt: time.Now(),
		Amount:      offer.Amount,
		Destination: offer.Destination,
		Fee:         offer.Fee,
		FeeRate:     offer.FeeRate,
	}
	if _, err := s.repoManager.HistoryRepository().AddCompletedTx(
		ctx, completed,
	); err != nil {
		s.warn(err, "offer %s: adding history record for tx %s", offer.ID, txid)
	}

	monitored := domain.NewMonitoredTx(
		txid, domain.TxDirectionOutgoing, offer.Amount,
		[]string{offer.Destination},
	)
	if done, err := s.repoManager.MonitoredTxRepository().AddTx(
		ctx, monitored,
	); err != nil {
		s.warn(err, "offer %s: registering monitored tx %s", offer.ID, txid)
	} else if !done {
		s.log("tx %s already monitored", txid)
	}

	if err := s.repoManager.OfferRepository().DeleteOffer(
		ctx, offer.ID,
	); err != nil {
		s.warn(err, "offer %s: removing broadcast offer", offer.ID)
	}

	s.log("offer %s broadcast as tx %s", offer.ID, txid)
}

// spendableUtxos returns the wallet utxos not referenced by any pending
// offer.
func (s *OfferService) spendableUtxos(ctx context.Context) (domain.Utxos, error) {
	reserved, err := s.reservedUtxoKeys(ctx)
	if err != nil {
		return nil, err
	}

	utxos := make(domain.Utxos, 0)
	for _, address := range s.wallet.Addresses {
		addressUtxos, err := s.chainSource.GetAddressUtxos(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("fetching utxos for %s: %w", address, err)
		}
		for _, u := range addressUtxos {
			if reserved[u.Key()] {
				continue
			}
			utxos = append(utxos, u)
		}
	}
	return utxos, nil
}

func (s *OfferService) reservedUtxoKeys(
	ctx context.Context,
) (map[domain.UtxoKey]bool, error) {
	offers, err := s.repoManager.OfferRepository().GetAllOffers(ctx)
	if err != nil {
		return nil, err
	}
	reserved := make(map[domain.UtxoKey]bool)
	for _, offer := range offers {
		for _, key := range offer.Inputs.Keys() {
			reserved[key] = true
		}
	}
	return reserved, nil
}
