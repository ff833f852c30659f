package dbbadger

import (
	"context"
	"sort"

	"github.com/covault/covaultd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type historyRepository struct {
	store *badgerhold.Store
}

func newHistoryRepository(store *badgerhold.Store) *historyRepository {
	return &historyRepository{store: store}
}

func (r *historyRepository) AddCompletedTx(
	ctx context.Context, tx *domain.CompletedTx,
) (bool, error) {
	if err := r.store.Insert(tx.TxID, *tx); err != nil {
		if err == badgerhold.ErrKeyExists {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *historyRepository) GetCompletedTxs(
	ctx context.Context,
) ([]*domain.CompletedTx, error) {
	var txs []domain.CompletedTx
	if err := r.store.Find(&txs, nil); err != nil {
		return nil, err
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CompletedAt.Before(txs[j].CompletedAt)
	})

	list := make([]*domain.CompletedTx, 0, len(txs))
	for i := range txs {
		list = append(list, &txs[i])
	}
	return list, nil
}

func (r *historyRepository) reset() {
	txs, _ := r.GetCompletedTxs(context.Background())
	for _, tx := range txs {
		//nolint
		r.store.Delete(tx.TxID, domain.CompletedTx{})
	}
}

func (r *historyRepository) close() {
	r.store.Close()
}
