package inmemory

import (
	"sync"

	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
)

// repoManager holds all the in-memory domain repositories implementations
// in a single data structure. Used for tests and ephemeral runs.
type repoManager struct {
	offerRepository       *offerRepository
	monitoredTxRepository *monitoredTxRepository
	historyRepository     *historyRepository

	offerEventHandlers       *handlerMap
	monitoredTxEventHandlers *handlerMap
}

// NewRepoManager is the factory for creating a new in-memory implementation
// of the ports.RepoManager interface.
func NewRepoManager() ports.RepoManager {
	offerRepo := newOfferRepository()
	monitoredTxRepo := newMonitoredTxRepository()
	historyRepo := newHistoryRepository()

	rm := &repoManager{
		offerRepository:          offerRepo,
		monitoredTxRepository:    monitoredTxRepo,
		historyRepository:        historyRepo,
		offerEventHandlers:       newHandlerMap(),
		monitoredTxEventHandlers: newHandlerMap(),
	}

	go rm.listenToOfferEvents()
	go rm.listenToMonitoredTxEvents()

	return rm
}

func (rm *repoManager) OfferRepository() domain.OfferRepository {
	return rm.offerRepository
}

func (rm *repoManager) MonitoredTxRepository() domain.MonitoredTxRepository {
	return rm.monitoredTxRepository
}

func (rm *repoManager) HistoryRepository() domain.HistoryRepository {
	return rm.historyRepository
}

func (rm *repoManager) RegisterHandlerForOfferEvent(
	eventType domain.OfferEventType, handler ports.OfferEventHandler,
) {
	rm.offerEventHandlers.set(int(eventType), handler)
}

func (rm *repoManager) RegisterHandlerForMonitoredTxEvent(
	eventType domain.MonitoredTxEventType, handler ports.MonitoredTxEventHandler,
) {
	rm.monitoredTxEventHandlers.set(int(eventType), handler)
}

func (rm *repoManager) Reset() {
	rm.offerRepository.reset()
	rm.monitoredTxRepository.reset()
	rm.historyRepository.reset()
}

func (rm *repoManager) Close() {
	rm.offerRepository.close()
	rm.monitoredTxRepository.close()
}

func (rm *repoManager) listenToOfferEvents() {
	for event := range rm.offerRepository.chEvents {
		if handlers, ok := rm.offerEventHandlers.get(int(event.EventType)); ok {
			for i := range handlers {
				handler := handlers[i]
				go handler.(ports.OfferEventHandler)(event)
			}
		}
	}
}

func (rm *repoManager) listenToMonitoredTxEvents() {
	for event := range rm.monitoredTxRepository.chEvents {
		if handlers, ok := rm.monitoredTxEventHandlers.get(int(event.EventType)); ok {
			for i := range handlers {
				handler := handlers[i]
				go handler.(ports.MonitoredTxEventHandler)(event)
			}
		}
	}
}

// handlerMap is a util type to prevent race conditions when registering
// or retrieving handlers for events.
type handlerMap struct {
	handlersByEventType map[int][]interface{}
	lock                *sync.RWMutex
}

func newHandlerMap() *handlerMap {
	return &handlerMap{
		handlersByEventType: make(map[int][]interface{}),
		lock:                &sync.RWMutex{},
	}
}

func (m *handlerMap) set(key int, val interface{}) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.handlersByEventType[key] = append(m.handlersByEventType[key], val)
}

func (m *handlerMap) get(key int) ([]interface{}, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	val, ok := m.handlersByEventType[key]
	return val, ok
}
