package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/covault/covaultd/internal/core/domain"
	"github.com/shopspring/decimal"
)

var (
	// ErrTxNotFound is returned when the chain source has no knowledge of
	// the requested transaction. Non-retryable.
	ErrTxNotFound = errors.New("transaction not found")
	// ErrRateLimited is returned when the chain source throttled the
	// request. Retryable after a delay.
	ErrRateLimited = errors.New("chain source rate limited the request")
	// ErrInvalidResponse is returned when the chain source answered with a
	// payload that could not be decoded. Non-retryable.
	ErrInvalidResponse = errors.New("malformed chain source response")
)

// TransientError wraps any network or server-side failure that is worth
// retrying with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient chain source error: %s", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsRetryable returns whether the given chain source error is worth
// retrying.
func IsRetryable(err error) bool {
	var transient *TransientError
	return errors.Is(err, ErrRateLimited) || errors.As(err, &transient)
}

const (
	BroadcastReasonUnknown BroadcastFailureReason = iota
	BroadcastReasonDust
	BroadcastReasonFeeTooLow
	BroadcastReasonAlreadyBroadcast
	BroadcastReasonInputsSpent
	BroadcastReasonNonFinal
)

type BroadcastFailureReason int

var broadcastReasonString = map[BroadcastFailureReason]string{
	BroadcastReasonUnknown:          "rejected",
	BroadcastReasonDust:             "output below dust threshold",
	BroadcastReasonFeeTooLow:        "fee below relay minimum",
	BroadcastReasonAlreadyBroadcast: "transaction already broadcast",
	BroadcastReasonInputsSpent:      "inputs missing or already spent",
	BroadcastReasonNonFinal:         "transaction not final",
}

func (r BroadcastFailureReason) String() string {
	return broadcastReasonString[r]
}

// BroadcastError is returned when the chain source rejected a broadcast
// attempt. Message carries the provider's error text verbatim, Reason the
// human-readable mapping when the text matches a known pattern.
type BroadcastError struct {
	Reason  BroadcastFailureReason
	Message string
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast rejected (%s): %s", e.Reason, e.Message)
}

// TxStatusInfo holds the confirmation info of a transaction as reported by
// the chain source.
type TxStatusInfo struct {
	Confirmed   bool
	BlockHeight uint64
	BlockTime   int64
}

// ChainSource is the abstraction for any kind of service giving info about
// the Bitcoin blockchain, like an Esplora-backed block explorer. All calls
// may block on the network and honor the given context deadline.
type ChainSource interface {
	// GetTransaction returns the confirmation status of the transaction
	// identified by the given txid.
	GetTransaction(ctx context.Context, txid string) (*TxStatusInfo, error)
	// GetBlockHeight returns the height of the chain tip.
	GetBlockHeight(ctx context.Context) (uint64, error)
	// GetAddressUtxos returns the utxos currently paying to the given
	// address.
	GetAddressUtxos(ctx context.Context, address string) (domain.Utxos, error)
	// Broadcast publishes the given raw transaction and returns its txid.
	// Broadcast attempts are never retried internally.
	Broadcast(ctx context.Context, rawTx []byte) (string, error)
	// GetFeeEstimate returns the estimated fee rate in sats/vbyte for
	// confirmation within the given number of blocks.
	GetFeeEstimate(ctx context.Context, targetBlocks int) (decimal.Decimal, error)
	// Close closes any open connection with the remote source.
	Close()
}
