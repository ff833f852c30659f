package dbbadger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/covault/covaultd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type monitoredTxRepository struct {
	store            *badgerhold.Store
	updateLock       *sync.Mutex
	chEvents         chan domain.MonitoredTxEvent
	externalChEvents chan domain.MonitoredTxEvent
	chLock           *sync.Mutex
}

func newMonitoredTxRepository(store *badgerhold.Store) *monitoredTxRepository {
	return &monitoredTxRepository{
		store:            store,
		updateLock:       &sync.Mutex{},
		chEvents:         make(chan domain.MonitoredTxEvent),
		externalChEvents: make(chan domain.MonitoredTxEvent),
		chLock:           &sync.Mutex{},
	}
}

func (r *monitoredTxRepository) AddTx(
	ctx context.Context, tx *domain.MonitoredTx,
) (bool, error) {
	if err := r.store.Insert(tx.TxID, *tx); err != nil {
		if err == badgerhold.ErrKeyExists {
			return false, nil
		}
		return false, err
	}

	go r.publishEvent(domain.MonitoredTxEvent{
		EventType: domain.MonitoredTxAdded,
		Tx:        tx,
	})

	return true, nil
}

func (r *monitoredTxRepository) GetTx(
	ctx context.Context, txid string,
) (*domain.MonitoredTx, error) {
	return r.getTx(txid)
}

func (r *monitoredTxRepository) GetActiveTxs(
	ctx context.Context,
) ([]*domain.MonitoredTx, error) {
	query := badgerhold.Where("Status").Ne(domain.TxStatusArchived)
	return r.findTxs(query)
}

func (r *monitoredTxRepository) GetArchivedTxs(
	ctx context.Context,
) ([]*domain.MonitoredTx, error) {
	query := badgerhold.Where("Status").Eq(domain.TxStatusArchived)
	return r.findTxs(query)
}

func (r *monitoredTxRepository) UpdateTx(
	ctx context.Context, txid string,
	updateFn func(tx *domain.MonitoredTx) (*domain.MonitoredTx, error),
) error {
	r.updateLock.Lock()
	defer r.updateLock.Unlock()

	tx, err := r.getTx(txid)
	if err != nil {
		return err
	}

	prevStatus := tx.Status

	updatedTx, err := updateFn(tx)
	if err != nil {
		return err
	}

	if err := r.store.Update(txid, *updatedTx); err != nil {
		return err
	}

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
	r.updateLock.Lock()
	defer r.updateLock.Unlock()

	tx, err := r.getTx(txid)
	if err != nil {
		return false, err
	}

	if !tx.Archive() {
		return false, nil
	}

	if err := r.store.Update(txid, *tx); err != nil {
		return false, err
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
	r.updateLock.Lock()
	defer r.updateLock.Unlock()

	archived, err := r.GetArchivedTxs(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range archived {
		tx := archived[i]
		if !tx.FirstSeen.Before(olderThan) {
			continue
		}
		if err := r.store.Delete(tx.TxID, domain.MonitoredTx{}); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

func (r *monitoredTxRepository) GetEventChannel() chan domain.MonitoredTxEvent {
	return r.externalChEvents
}

func (r *monitoredTxRepository) findTxs(
	query *badgerhold.Query,
) ([]*domain.MonitoredTx, error) {
	var txs []domain.MonitoredTx
	if err := r.store.Find(&txs, query); err != nil {
		return nil, err
	}

	list := make([]*domain.MonitoredTx, 0, len(txs))
	for i := range txs {
		list = append(list, &txs[i])
	}
	return list, nil
}

func (r *monitoredTxRepository) getTx(txid string) (*domain.MonitoredTx, error) {
	var tx domain.MonitoredTx
	if err := r.store.Get(txid, &tx); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("transaction %s not found", txid)
		}
		return nil, err
	}
	return &tx, nil
}

func (r *monitoredTxRepository) publishEvent(event domain.MonitoredTxEvent) {
	r.chLock.Lock()
	defer r.chLock.Unlock()

	r.chEvents <- event
	// send over the external channel without blocking in case nobody reads.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *monitoredTxRepository) reset() {
	var txs []domain.MonitoredTx
	//nolint
	r.store.Find(&txs, nil)
	for _, tx := range txs {
		//nolint
		r.store.Delete(tx.TxID, domain.MonitoredTx{})
	}
}

func (r *monitoredTxRepository) close() {
	r.store.Close()
	close(r.chEvents)
	close(r.externalChEvents)
}
