package application

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// maxBackoffFactor bounds the exponential backoff applied to the polling
// interval after consecutive cycle failures.
const maxBackoffFactor = 8

// MonitorService periodically refreshes the confirmation state of every
// active monitored transaction against the chain source.
//
// A cycle is skipped entirely while the previous one is still resolving its
// external calls, and when there is nothing to monitor. Per-transaction
// fetch failures are logged and excluded from the cycle without aborting the
// remaining transactions. A cycle-level failure, like an unreachable tip,
// doubles the polling interval up to a bound until the next success.
//
// Transactions whose confirmations cross the archive threshold during a
// cycle are handed over to the archive service.
type MonitorService struct {
	repoManager ports.RepoManager
	chainSource ports.ChainSource
	archiveSvc  *ArchiveService

	pollInterval     time.Duration
	archiveThreshold uint64
	callTimeout      time.Duration

	inFlight int32
	quitCh   chan struct{}

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewMonitorService(
	repoManager ports.RepoManager, chainSource ports.ChainSource,
	archiveSvc *ArchiveService,
	pollInterval time.Duration, archiveThreshold uint64,
) *MonitorService {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("monitor service: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("monitor service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &MonitorService{
		repoManager:      repoManager,
		chainSource:      chainSource,
		archiveSvc:       archiveSvc,
		pollInterval:     pollInterval,
		archiveThreshold: archiveThreshold,
		callTimeout:      pollInterval,
		quitCh:           make(chan struct{}),
		log:              logFn,
		warn:             warnFn,
	}
}

// Start spawns the polling loop.
func (s *MonitorService) Start() {
	s.log("start polling every %s", s.pollInterval)
	go s.pollLoop()
}

// Stop terminates the polling loop.
func (s *MonitorService) Stop() {
	close(s.quitCh)
	s.log("stopped")
}

func (s *MonitorService) pollLoop() {
	interval := s.pollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quitCh:
			return
		case <-ticker.C:
			if !atomic.CompareAndSwapInt32(&s.inFlight, 0, 1) {
				s.log("previous cycle still running, skipping tick")
				continue
			}
			err := s.runCycle()
			atomic.StoreInt32(&s.inFlight, 0)

			if err != nil {
				next := interval * 2
				if max := s.pollInterval * maxBackoffFactor; next > max {
					next = max
				}
				if next != interval {
					interval = next
					ticker.Reset(interval)
				}
				s.warn(err, "cycle failed, next attempt in %s", interval)
				continue
			}
			if interval != s.pollInterval {
				interval = s.pollInterval
				ticker.Reset(interval)
			}
		}
	}
}

// ListActive returns every monitored transaction not yet archived.
func (s *MonitorService) ListActive(
	ctx context.Context,
) ([]*domain.MonitoredTx, error) {
	return s.repoManager.MonitoredTxRepository().GetActiveTxs(ctx)
}

// RunCycle refreshes every active monitored transaction once. It is also
// driven directly by tests and by the http interface to force a refresh.
func (s *MonitorService) RunCycle() error {
	if !atomic.CompareAndSwapInt32(&s.inFlight, 0, 1) {
		return nil
	}
	defer atomic.StoreInt32(&s.inFlight, 0)
	return s.runCycle()
}

func (s *MonitorService) runCycle() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
	defer cancel()

	txRepo := s.repoManager.MonitoredTxRepository()
	txs, err := txRepo.GetActiveTxs(ctx)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		return nil
	}

	tipHeight, err := s.chainSource.GetBlockHeight(ctx)
	if err != nil {
		return fmt.Errorf("fetching tip height: %w", err)
	}

	matured := make([]string, 0)
	for _, tx := range txs {
		info, err := s.chainSource.GetTransaction(ctx, tx.TxID)
		if err != nil {
			s.warn(err, "skipping tx %s for this cycle", tx.TxID)
			continue
		}

		var blockHeight uint64
		var blockTime int64
		if info.Confirmed {
			blockHeight = info.BlockHeight
			blockTime = info.BlockTime
		}

		var updated *domain.MonitoredTx
		if err := txRepo.UpdateTx(
			ctx, tx.TxID, func(t *domain.MonitoredTx) (*domain.MonitoredTx, error) {
				t.UpdateConfirmations(tipHeight, blockHeight, blockTime)
				updated = t
				return t, nil
			},
		); err != nil {
			s.warn(err, "updating tx %s", tx.TxID)
			continue
		}

		if updated.Confirmations >= s.archiveThreshold {
			matured = append(matured, updated.TxID)
		}
	}

	for _, txid := range matured {
		if _, err := s.archiveSvc.Archive(ctx, txid); err != nil {
			s.warn(err, "archiving matured tx %s", txid)
		}
	}

	s.log("cycle done: %d tx(s) refreshed, %d archived", len(txs), len(matured))
	return nil
}
