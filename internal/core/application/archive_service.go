package application

import (
	"context"
	"fmt"
	"time"

	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// ArchiveService owns the retention of matured monitored transactions: it
// moves them to the archive set and removes archived entries past the
// retention window.
type ArchiveService struct {
	repoManager ports.RepoManager

	log func(format string, a ...interface{})
}

func NewArchiveService(repoManager ports.RepoManager) *ArchiveService {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("archive service: %s", format)
		log.Debugf(format, a...)
	}
	return &ArchiveService{repoManager, logFn}
}

// ListArchived returns every archived transaction.
func (s *ArchiveService) ListArchived(
	ctx context.Context,
) ([]*domain.MonitoredTx, error) {
	return s.repoManager.MonitoredTxRepository().GetArchivedTxs(ctx)
}

// Archive moves the given transaction from the monitored to the archive
// set. Re-archiving an already archived transaction is a no-op.
func (s *ArchiveService) Archive(ctx context.Context, txid string) (bool, error) {
	done, err := s.repoManager.MonitoredTxRepository().ArchiveTx(ctx, txid)
	if err != nil {
		return false, err
	}
	if done {
		s.log("archived tx %s", txid)
	}
	return done, nil
}

// ArchiveMatured archives in one batch every monitored transaction with at
// least the given number of confirmations, and returns how many moved.
func (s *ArchiveService) ArchiveMatured(
	ctx context.Context, minConfirmations uint64,
) (int, error) {
	txs, err := s.repoManager.MonitoredTxRepository().GetActiveTxs(ctx)
	if err != nil {
		return -1, err
	}

	count := 0
	for _, tx := range txs {
		if tx.Confirmations < minConfirmations {
			continue
		}
		done, err := s.repoManager.MonitoredTxRepository().ArchiveTx(ctx, tx.TxID)
		if err != nil {
			return count, err
		}
		if done {
			count++
		}
	}

	if count > 0 {
		s.log("archived %d matured tx(s)", count)
	}
	return count, nil
}

// Cleanup removes every archived transaction first seen before the given
// retention window. Nothing qualifying makes it a no-op.
func (s *ArchiveService) Cleanup(
	ctx context.Context, retentionDays int,
) (int, error) {
	olderThan := time.Now().AddDate(0, 0, -retentionDays)
	count, err := s.repoManager.MonitoredTxRepository().DeleteArchivedTxs(
		ctx, olderThan,
	)
	if err != nil {
		return -1, err
	}
	if count > 0 {
		s.log("removed %d archived tx(s) older than %d day(s)", count, retentionDays)
	}
	return count, nil
}
