package domain

import (
	"context"
	"time"
)

const (
	MonitoredTxAdded MonitoredTxEventType = iota
	MonitoredTxConfirmed
	MonitoredTxArchived
)

var monitoredTxTypeString = map[MonitoredTxEventType]string{
	MonitoredTxAdded:     "MonitoredTxAdded",
	MonitoredTxConfirmed: "MonitoredTxConfirmed",
	MonitoredTxArchived:  "MonitoredTxArchived",
}

type MonitoredTxEventType int

func (t MonitoredTxEventType) String() string {
	return monitoredTxTypeString[t]
}

// MonitoredTxEvent holds info about an event occured within the repository.
type MonitoredTxEvent struct {
	EventType MonitoredTxEventType
	Tx        *MonitoredTx
}

// MonitoredTxRepository is the abstraction for any kind of database intended
// to persist monitored transactions, both the active and the archived set.
type MonitoredTxRepository interface {
	// AddTx adds the given transaction to the monitored set by preventing
	// duplicates. Generates a MonitoredTxAdded event if successfull.
	AddTx(ctx context.Context, tx *MonitoredTx) (bool, error)
	// GetTx returns the monitored or archived transaction identified by the
	// given txid, or an error if not found.
	GetTx(ctx context.Context, txid string) (*MonitoredTx, error)
	// GetActiveTxs returns all transactions not yet archived.
	GetActiveTxs(ctx context.Context) ([]*MonitoredTx, error)
	// GetArchivedTxs returns all archived transactions.
	GetArchivedTxs(ctx context.Context) ([]*MonitoredTx, error)
	// UpdateTx applies updateFn to the transaction identified by the given
	// txid as a single atomic step.
	UpdateTx(
		ctx context.Context, txid string,
		updateFn func(tx *MonitoredTx) (*MonitoredTx, error),
	) error
	// ArchiveTx moves the transaction identified by the given txid from the
	// monitored to the archived set. Re-archiving an archived transaction is
	// a no-op. Generates a MonitoredTxArchived event if something changed.
	ArchiveTx(ctx context.Context, txid string) (bool, error)
	// DeleteArchivedTxs removes every archived transaction whose FirstSeen
	// predates the given time and returns the number of removed entries.
	DeleteArchivedTxs(ctx context.Context, olderThan time.Time) (int, error)
	// GetEventChannel returns the channel of MonitoredTxEvents.
	GetEventChannel() chan MonitoredTxEvent
}
