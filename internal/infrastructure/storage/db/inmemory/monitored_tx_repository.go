package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/covault/covaultd/internal/core/domain"
)

type monitoredTxInmemoryStore struct {
	txs  map[string]*domain.MonitoredTx
	lock *sync.RWMutex
}

type monitoredTxRepository struct {
	store            *monitoredTxInmemoryStore
	chEvents         chan domain.MonitoredTxEvent
	externalChEvents chan domain.MonitoredTxEvent
	chLock           *sync.Mutex
}

func NewMonitoredTxRepository() domain.MonitoredTxRepository {
	return newMonitoredTxRepository()
}

func newMonitoredTxRepository() *monitoredTxRepository {
	return &monitoredTxRepository{
		store: &monitoredTxInmemoryStore{
			txs:  make(map[string]*domain.MonitoredTx),
			lock: &sync.RWMutex{},
		},
		chEvents:         make(chan domain.MonitoredTxEvent),
		externalChEvents: make(chan domain.MonitoredTxEvent),
		chLock:           &sync.Mutex{},
	}
}

func (r *monitoredTxRepository) AddTx(
	ctx context.Context, tx *domain.MonitoredTx,
) (bool, error) {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	if _, ok := r.store.txs[tx.TxID]; ok {
		return false, nil
	}
	r.store.txs[tx.TxID] = tx

	go r.publishEvent(domain.MonitoredTxEvent{
		EventType: domain.MonitoredTxAdded,
		Tx:        tx,
	})
	return true, nil
}

func (r *monitoredTxRepository) GetTx(
	ctx context.Context, txid string,
) (*domain.MonitoredTx, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	return r.getTx(txid)
}

func (r *monitoredTxRepository) GetActiveTxs(
	ctx context.Context,
) ([]*domain.MonitoredTx, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	txs := make([]*domain.MonitoredTx, 0, len(r.store.txs))
	for _, tx := range r.store.txs {
		if tx.IsArchived() {
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (r *monitoredTxRepository) GetArchivedTxs(
	ctx context.Context,
) ([]*domain.MonitoredTx, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	txs := make([]*domain.MonitoredTx, 0)
	for _, tx := range r.store.txs {
		if tx.IsArchived() {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (r *monitoredTxRepository) UpdateTx(
	ctx context.Context, txid string,
	updateFn func(tx *domain.MonitoredTx) (*domain.MonitoredTx, error),
) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	tx, err := r.getTx(txid)
	if err != nil {
		return err
	}

	prevStatus := tx.Status
	updatedTx, err := updateFn(tx)
	if err != nil {
		return err
	}
	r.store.txs[txid] = updatedTx

	if prevStatus != domain.TxStatusConfirmed &&
		updatedTx.Status == domain.TxStatusConfirmed {
		go r.publishEvent(domain.MonitoredTxEvent{
			EventType: domain.MonitoredTxConfirmed,
			Tx:        updatedTx,
		})
	}
	return nil
}

func (r *monitoredTxRepository) ArchiveTx(
	ctx context.Context, txid string,
) (bool, error) {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	tx, err := r.getTx(txid)
	if err != nil {
		return false, err
	}
	if !tx.Archive() {
		return false, nil
	}

	go r.publishEvent(domain.MonitoredTxEvent{
		EventType: domain.MonitoredTxArchived,
		Tx:        tx,
	})
	return true, nil
}

func (r *monitoredTxRepository) DeleteArchivedTxs(
	ctx context.Context, olderThan time.Time,
) (int, error) {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	count := 0
	for txid, tx := range r.store.txs {
		if tx.IsArchived() && tx.FirstSeen.Before(olderThan) {
			delete(r.store.txs, txid)
			count++
		}
	}
	return count, nil
}

func (r *monitoredTxRepository) GetEventChannel() chan domain.MonitoredTxEvent {
	return r.externalChEvents
}

func (r *monitoredTxRepository) getTx(txid string) (*domain.MonitoredTx, error) {
	tx, ok := r.store.txs[txid]
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", txid)
	}
	return tx, nil
}

func (r *monitoredTxRepository) publishEvent(event domain.MonitoredTxEvent) {
	r.chLock.Lock()
	defer r.chLock.Unlock()

	r.chEvents <- event

	// send over channel without blocking in case nobody is listening.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *monitoredTxRepository) reset() {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()
	r.store.txs = make(map[string]*domain.MonitoredTx)
}

func (r *monitoredTxRepository) close() {
	close(r.chEvents)
	close(r.externalChEvents)
}
