package ports

import (
	"github.com/covault/covaultd/internal/core/domain"
)

type OfferEventHandler func(event domain.OfferEvent)
type MonitoredTxEventHandler func(event domain.MonitoredTxEvent)

// RepoManager is the abstraction for any kind of service intended to manage
// domain repositories implementations of the same concrete type.
type RepoManager interface {
	// OfferRepository returns the pending-offers repository.
	OfferRepository() domain.OfferRepository
	// MonitoredTxRepository returns the monitored/archived txs repository.
	MonitoredTxRepository() domain.MonitoredTxRepository
	// HistoryRepository returns the completed-txs history repository.
	HistoryRepository() domain.HistoryRepository

	// RegisterHandlerForOfferEvent registers an handler function, executed
	// whenever the given event type occurs.
	RegisterHandlerForOfferEvent(
		eventType domain.OfferEventType, handler OfferEventHandler,
	)
	// RegisterHandlerForMonitoredTxEvent registers an handler function,
	// executed whenever the given event type occurs.
	RegisterHandlerForMonitoredTxEvent(
		eventType domain.MonitoredTxEventType, handler MonitoredTxEventHandler,
	)

	// Reset brings all the repos to their initial state by deleting any
	// persisted data.
	Reset()

	// Close closes the connection with all concrete repositories
	// implementations.
	Close()
}
