package domain

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	// TxDirectionIncoming marks a transaction sending funds to the wallet.
	TxDirectionIncoming TxDirection = iota
	// TxDirectionOutgoing marks a transaction broadcast by the wallet.
	TxDirectionOutgoing
)

const (
	// TxStatusMempool is the status of an unconfirmed transaction.
	TxStatusMempool TxStatus = iota
	// TxStatusConfirming is the status of a transaction with 1 to 5
	// confirmations.
	TxStatusConfirming
	// TxStatusConfirmed is the status of a transaction with at least 6
	// confirmations.
	TxStatusConfirmed
	// TxStatusArchived is the status of a matured transaction moved out of
	// the active monitored set.
	TxStatusArchived
)

// ConfirmedThreshold is the number of confirmations after which a
// transaction is considered final and eligible for archiving.
const ConfirmedThreshold = 6

type TxDirection int

var txDirectionString = map[TxDirection]string{
	TxDirectionIncoming: "incoming",
	TxDirectionOutgoing: "outgoing",
}

func (d TxDirection) String() string {
	return txDirectionString[d]
}

type TxStatus int

var txStatusString = map[TxStatus]string{
	TxStatusMempool:    "mempool",
	TxStatusConfirming: "confirming",
	TxStatusConfirmed:  "confirmed",
	TxStatusArchived:   "archived",
}

func (s TxStatus) String() string {
	return txStatusString[s]
}

// TxStatusForConfirmations maps a confirmation count to the status of the
// related transaction: 0 mempool, 1..5 confirming, 6 or more confirmed.
func TxStatusForConfirmations(confirmations uint64) TxStatus {
	switch {
	case confirmations == 0:
		return TxStatusMempool
	case confirmations < ConfirmedThreshold:
		return TxStatusConfirming
	default:
		return TxStatusConfirmed
	}
}

// MonitoredTx is the data structure representing a wallet-related
// transaction whose confirmation state is tracked against the chain source,
// either an outgoing broadcast or a detected incoming deposit.
type MonitoredTx struct {
	TxID          string
	Direction     TxDirection
	Confirmations uint64
	Status        TxStatus
	FirstSeen     time.Time
	LastChecked   time.Time
	BlockHeight   uint64
	BlockTime     int64
	Amount        btcutil.Amount
	Addresses     []string
}

// NewMonitoredTx returns a monitored transaction in the mempool status.
func NewMonitoredTx(
	txid string, direction TxDirection, amount btcutil.Amount,
	addresses []string,
) *MonitoredTx {
	now := time.Now()
	return &MonitoredTx{
		TxID:        txid,
		Direction:   direction,
		Status:      TxStatusMempool,
		FirstSeen:   now,
		LastChecked: now,
		Amount:      amount,
		Addresses:   addresses,
	}
}

// IsArchived returns whether the transaction was moved to the archive set.
func (t *MonitoredTx) IsArchived() bool {
	return t.Status == TxStatusArchived
}

// UpdateConfirmations recomputes confirmations and status from the current
// tip height and the block including the transaction. A zero blockHeight
// means the transaction is still unconfirmed.
func (t *MonitoredTx) UpdateConfirmations(
	tipHeight, blockHeight uint64, blockTime int64,
) {
	t.LastChecked = time.Now()

	if blockHeight == 0 || tipHeight < blockHeight {
		t.Confirmations = 0
		t.BlockHeight = 0
		t.BlockTime = 0
		t.Status = TxStatusMempool
		return
	}

	t.BlockHeight = blockHeight
	t.BlockTime = blockTime
	t.Confirmations = tipHeight - blockHeight + 1
	t.Status = TxStatusForConfirmations(t.Confirmations)
}

// Archive marks the transaction as archived. Archiving an already archived
// transaction is a no-op.
func (t *MonitoredTx) Archive() bool {
	if t.IsArchived() {
		return false
	}
	t.Status = TxStatusArchived
	return true
}
