package httpinterface

import (
	"time"

	"github.com/covault/covaultd/internal/core/application"
	"github.com/covault/covaultd/internal/core/domain"
)

type signatureView struct {
	Signer   string    `json:"signer"`
	SignedAt time.Time `json:"signed_at"`
}

type offerView struct {
	ID                 string          `json:"id"`
	CreatedAt          time.Time       `json:"created_at"`
	Status             string          `json:"status"`
	Destination        string          `json:"destination"`
	Amount             int64           `json:"amount"`
	Fee                int64           `json:"fee"`
	FeeRate            string          `json:"fee_rate"`
	ChangeAmount       int64           `json:"change_amount"`
	ChangeAddress      string          `json:"change_address,omitempty"`
	RequiredSignatures int             `json:"required_signatures"`
	TotalSigners       int             `json:"total_signers"`
	Signatures         []signatureView `json:"signatures"`
	RemainingSigners   []string        `json:"remaining_signers"`
	Inputs             []string        `json:"inputs"`
}

func newOfferView(offer *domain.Offer, remainingSigners []string) offerView {
	signatures := make([]signatureView, 0, len(offer.Signatures))
	for _, sig := range offer.Signatures {
		signatures = append(signatures, signatureView{
			Signer:   sig.SignerFingerprint,
			SignedAt: sig.SignedAt,
		})
	}
	inputs := make([]string, 0, len(offer.Inputs))
	for _, key := range offer.Inputs.Keys() {
		inputs = append(inputs, key.String())
	}
	return offerView{
		ID:                 offer.ID,
		CreatedAt:          offer.CreatedAt,
		Status:             offer.Status.String(),
		Destination:        offer.Destination,
		Amount:             int64(offer.Amount),
		Fee:                int64(offer.Fee),
		FeeRate:            offer.FeeRate.String(),
		ChangeAmount:       int64(offer.ChangeAmount),
		ChangeAddress:      offer.ChangeAddress,
		RequiredSignatures: offer.RequiredSignatures,
		TotalSigners:       offer.TotalSigners,
		Signatures:         signatures,
		RemainingSigners:   remainingSigners,
		Inputs:             inputs,
	}
}

type draftView struct {
	Destination   string   `json:"destination"`
	Amount        int64    `json:"amount"`
	FeeRate       string   `json:"fee_rate"`
	EstimatedFee  int64    `json:"estimated_fee"`
	ChangeAmount  int64    `json:"change_amount"`
	ChangeAddress string   `json:"change_address,omitempty"`
	SelectedUtxos []string `json:"selected_utxos"`
}

func newDraftView(draft *domain.TransactionDraft) draftView {
	selected := make([]string, 0, len(draft.SelectedUtxos))
	for _, key := range draft.SelectedUtxos.Keys() {
		selected = append(selected, key.String())
	}
	return draftView{
		Destination:   draft.Destination,
		Amount:        int64(draft.Amount),
		FeeRate:       draft.FeeRate.String(),
		EstimatedFee:  int64(draft.EstimatedFee),
		ChangeAmount:  int64(draft.ChangeAmount),
		ChangeAddress: draft.ChangeAddress,
		SelectedUtxos: selected,
	}
}

type monitoredTxView struct {
	TxID          string    `json:"txid"`
	Direction     string    `json:"direction"`
	Status        string    `json:"status"`
	Confirmations uint64    `json:"confirmations"`
	Amount        int64     `json:"amount"`
	Addresses     []string  `json:"addresses"`
	BlockHeight   uint64    `json:"block_height,omitempty"`
	BlockTime     int64     `json:"block_time,omitempty"`
	FirstSeen     time.Time `json:"first_seen"`
	LastChecked   time.Time `json:"last_checked"`
}

func newMonitoredTxView(tx *domain.MonitoredTx) monitoredTxView {
	return monitoredTxView{
		TxID:          tx.TxID,
		Direction:     tx.Direction.String(),
		Status:        tx.Status.String(),
		Confirmations: tx.Confirmations,
		Amount:        int64(tx.Amount),
		Addresses:     tx.Addresses,
		BlockHeight:   tx.BlockHeight,
		BlockTime:     tx.BlockTime,
		FirstSeen:     tx.FirstSeen,
		LastChecked:   tx.LastChecked,
	}
}

func newMonitoredTxViews(txs []*domain.MonitoredTx) []monitoredTxView {
	views := make([]monitoredTxView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, newMonitoredTxView(tx))
	}
	return views
}

type completedTxView struct {
	TxID        string    `json:"txid"`
	CompletedAt time.Time `json:"completed_at"`
	Amount      int64     `json:"amount"`
	Destination string    `json:"destination"`
	Fee         int64     `json:"fee"`
	FeeRate     string    `json:"fee_rate"`
}

func newCompletedTxViews(txs []*domain.CompletedTx) []completedTxView {
	views := make([]completedTxView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, completedTxView{
			TxID:        tx.TxID,
			CompletedAt: tx.CompletedAt,
			Amount:      int64(tx.Amount),
			Destination: tx.Destination,
			Fee:         int64(tx.Fee),
			FeeRate:     tx.FeeRate.String(),
		})
	}
	return views
}

type balanceView struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
	Reserved    int64 `json:"reserved"`
	Total       int64 `json:"total"`
}

func newBalanceView(balance *application.BalanceInfo) balanceView {
	return balanceView{
		Confirmed:   int64(balance.Confirmed),
		Unconfirmed: int64(balance.Unconfirmed),
		Reserved:    int64(balance.Reserved),
		Total:       int64(balance.Total()),
	}
}
