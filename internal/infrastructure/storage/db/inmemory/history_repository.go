package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/covault/covaultd/internal/core/domain"
)

type historyRepository struct {
	txs  map[string]*domain.CompletedTx
	lock *sync.RWMutex
}

func NewHistoryRepository() domain.HistoryRepository {
	return newHistoryRepository()
}

func newHistoryRepository() *historyRepository {
	return &historyRepository{
		txs:  make(map[string]*domain.CompletedTx),
		lock: &sync.RWMutex{},
	}
}

func (r *historyRepository) AddCompletedTx(
	ctx context.Context, tx *domain.CompletedTx,
) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.txs[tx.TxID]; ok {
		return false, nil
	}
	r.txs[tx.TxID] = tx
	return true, nil
}

func (r *historyRepository) GetCompletedTxs(
	ctx context.Context,
) ([]*domain.CompletedTx, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	txs := make([]*domain.CompletedTx, 0, len(r.txs))
	for _, tx := range r.txs {
		txs = append(txs, tx)
	}
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].CompletedAt.Before(txs[j].CompletedAt)
	})
	return txs, nil
}

func (r *historyRepository) reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.txs = make(map[string]*domain.CompletedTx)
}
