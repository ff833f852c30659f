package dbbadger

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

// repoManager holds all the badgerhold stores and domain repositories
// implementations in a single data structure.
type repoManager struct {
	offerRepository       *offerRepository
	monitoredTxRepository *monitoredTxRepository
	historyRepository     *historyRepository

	offerEventHandlers       *handlerMap
	monitoredTxEventHandlers *handlerMap
}

// NewRepoManager is the factory for creating a new badger implementation
// of the ports.RepoManager interface.
// It takes care of creating the db files on disk (or in-memory if no
// baseDbDir is provided - to be used only for testing purposes), and opening
// and closing the connection to them.
func NewRepoManager(baseDbDir string, logger badger.Logger) (ports.RepoManager, error) {
	var offerDir, txDir, historyDir string
	if len(baseDbDir) > 0 {
		offerDir = filepath.Join(baseDbDir, "offers")
		txDir = filepath.Join(baseDbDir, "txs")
		historyDir = filepath.Join(baseDbDir, "history")
	}

	offerDb, err := createDb(offerDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening offers db: %w", err)
	}
	txDb, err := createDb(txDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening txs db: %w", err)
	}
	historyDb, err := createDb(historyDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	rm := &repoManager{
		offerRepository:          newOfferRepository(offerDb),
		monitoredTxRepository:    newMonitoredTxRepository(txDb),
		historyRepository:        newHistoryRepository(historyDb),
		offerEventHandlers:       newHandlerMap(),
		monitoredTxEventHandlers: newHandlerMap(),
	}

	go rm.listenToOfferEvents()
	go rm.listenToMonitoredTxEvents()

	return rm, nil
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
	rm.historyRepository.close()
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

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(30 * time.Minute)

		go func() {
			for {
				<-ticker.C
				if err := db.Badger().RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
					log.Warnf("garbage collector: %s", err)
				}
			}
		}()
	}

	return db, nil
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
