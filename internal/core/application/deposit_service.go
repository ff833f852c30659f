package application

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// DepositService detects new incoming funds by diffing the wallet utxo set
// between refreshes.
//
// The very first observed set is recorded as baseline without being treated
// as new, so a fresh start does not flood the monitored set with the whole
// wallet history. From then on, utxos appearing in the set are grouped by
// transaction id, fetched once per unique id, and registered as incoming
// monitored transactions. An explicit backfill pass additionally registers
// the currently unconfirmed utxos.
type DepositService struct {
	repoManager ports.RepoManager
	chainSource ports.ChainSource
	addresses   []string

	pollInterval time.Duration
	callTimeout  time.Duration

	knownKeys    map[domain.UtxoKey]struct{}
	baselined    bool
	baselineFile string
	keysLock     *sync.Mutex

	inFlight int32
	quitCh   chan struct{}

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewDepositService(
	repoManager ports.RepoManager, chainSource ports.ChainSource,
	addresses []string, pollInterval time.Duration,
) *DepositService {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("deposit service: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("deposit service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &DepositService{
		repoManager:  repoManager,
		chainSource:  chainSource,
		addresses:    addresses,
		pollInterval: pollInterval,
		callTimeout:  pollInterval,
		knownKeys:    make(map[domain.UtxoKey]struct{}),
		keysLock:     &sync.Mutex{},
		quitCh:       make(chan struct{}),
		log:          logFn,
		warn:         warnFn,
	}
}

// WithBaselineFile makes the service persist the observed utxo set to the
// given file after every refresh and restore it at startup, so a restart
// resumes diffing from where the previous run left off.
func (s *DepositService) WithBaselineFile(path string) *DepositService {
	s.baselineFile = path
	s.loadBaseline()
	return s
}

// Start spawns the utxo-diff loop.
func (s *DepositService) Start() {
	s.log("start refreshing every %s", s.pollInterval)
	go s.pollLoop()
}

// Stop terminates the utxo-diff loop.
func (s *DepositService) Stop() {
	close(s.quitCh)
	s.log("stopped")
}

func (s *DepositService) pollLoop() {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quitCh:
			return
		case <-ticker.C:
			if !atomic.CompareAndSwapInt32(&s.inFlight, 0, 1) {
				s.log("previous refresh still running, skipping tick")
				continue
			}
			if err := s.Refresh(context.Background()); err != nil {
				s.warn(err, "refresh failed")
			}
			atomic.StoreInt32(&s.inFlight, 0)
		}
	}
}

// Refresh fetches the current wallet utxo set and registers a monitored
// transaction for every transaction id appearing since the previous
// refresh. The first call only records the baseline.
func (s *DepositService) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	current, err := s.fetchUtxos(ctx)
	if err != nil {
		return err
	}

	currentKeys := make(map[domain.UtxoKey]struct{}, len(current))
	for _, u := range current {
		currentKeys[u.Key()] = struct{}{}
	}

	s.keysLock.Lock()
	if !s.baselined {
		s.knownKeys = currentKeys
		s.baselined = true
		s.keysLock.Unlock()
		s.log("baseline recorded with %d utxo(s)", len(currentKeys))
		s.saveBaseline()
		return nil
	}
	known := s.knownKeys
	s.keysLock.Unlock()

	fresh := make(domain.Utxos, 0)
	for _, u := range current {
		if _, ok := known[u.Key()]; !ok {
			fresh = append(fresh, u)
		}
	}

	failedTxids := make(map[string]struct{})
	if len(fresh) > 0 {
		failedTxids = s.registerDeposits(ctx, fresh)
	}

	// Keys of transactions that failed to register stay unknown so the
	// next refresh retries them.
	for _, u := range current {
		if _, failed := failedTxids[u.TxID]; failed {
			delete(currentKeys, u.Key())
		}
	}
	s.keysLock.Lock()
	s.knownKeys = currentKeys
	s.keysLock.Unlock()

	s.saveBaseline()
	return nil
}

// Backfill registers the currently unconfirmed utxos as incoming monitored
// transactions, regardless of the baseline. Used at startup to resume
// tracking deposits that were in flight across a restart.
func (s *DepositService) Backfill(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	utxos, err := s.fetchUtxos(ctx)
	if err != nil {
		return err
	}

	unconfirmed := make(domain.Utxos, 0)
	for _, u := range utxos {
		if !u.Confirmed {
			unconfirmed = append(unconfirmed, u)
		}
	}
	if len(unconfirmed) == 0 {
		return nil
	}

	s.registerDeposits(ctx, unconfirmed)
	return nil
}

// registerDeposits groups the given utxos by transaction id and registers
// one incoming monitored transaction per unique id, fetching the
// confirmation info once per id. It returns the ids that failed and must be
// retried.
func (s *DepositService) registerDeposits(
	ctx context.Context, utxos domain.Utxos,
) map[string]struct{} {
	byTxid := make(map[string]domain.Utxos)
	for _, u := range utxos {
		byTxid[u.TxID] = append(byTxid[u.TxID], u)
	}
	txids := make([]string, 0, len(byTxid))
	for txid := range byTxid {
		txids = append(txids, txid)
	}
	sort.Strings(txids)

	tipHeight, err := s.chainSource.GetBlockHeight(ctx)
	if err != nil {
		s.warn(err, "fetching tip height, deferring %d deposit(s)", len(txids))
		failed := make(map[string]struct{}, len(txids))
		for _, txid := range txids {
			failed[txid] = struct{}{}
		}
		return failed
	}

	failed := make(map[string]struct{})
	for _, txid := range txids {
		info, err := s.chainSource.GetTransaction(ctx, txid)
		if err != nil {
			s.warn(err, "fetching deposit tx %s, will retry", txid)
			failed[txid] = struct{}{}
			continue
		}

		group := byTxid[txid]
		var amount btcutil.Amount
		addresses := make([]string, 0, len(group))
		seen := make(map[string]struct{})
		for _, u := range group {
			amount += u.Value
			if _, ok := seen[u.Address]; !ok {
				seen[u.Address] = struct{}{}
				addresses = append(addresses, u.Address)
			}
		}

		tx := domain.NewMonitoredTx(
			txid, domain.TxDirectionIncoming, amount, addresses,
		)
		if info.Confirmed {
			tx.UpdateConfirmations(tipHeight, info.BlockHeight, info.BlockTime)
		}

		done, err := s.repoManager.MonitoredTxRepository().AddTx(ctx, tx)
		if err != nil {
			s.warn(err, "registering deposit tx %s, will retry", txid)
			failed[txid] = struct{}{}
			continue
		}
		if !done {
			s.log("deposit tx %s already tracked", txid)
			continue
		}
		s.log("new deposit tx %s (%d sats, %d utxo(s))", txid, amount, len(group))
	}
	return failed
}

func (s *DepositService) loadBaseline() {
	buf, err := os.ReadFile(s.baselineFile)
	if err != nil {
		if !os.IsNotExist(err) {
			s.warn(err, "reading baseline file")
		}
		return
	}

	var keys []domain.UtxoKey
	if err := json.Unmarshal(buf, &keys); err != nil {
		s.warn(err, "parsing baseline file, starting from scratch")
		return
	}

	known := make(map[domain.UtxoKey]struct{}, len(keys))
	for _, key := range keys {
		known[key] = struct{}{}
	}

	s.keysLock.Lock()
	s.knownKeys = known
	s.baselined = true
	s.keysLock.Unlock()
	s.log("baseline restored with %d utxo(s)", len(known))
}

func (s *DepositService) saveBaseline() {
	if s.baselineFile == "" {
		return
	}

	s.keysLock.Lock()
	keys := make([]domain.UtxoKey, 0, len(s.knownKeys))
	for key := range s.knownKeys {
		keys = append(keys, key)
	}
	s.keysLock.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].TxID != keys[j].TxID {
			return keys[i].TxID < keys[j].TxID
		}
		return keys[i].VOut < keys[j].VOut
	})

	buf, err := json.Marshal(keys)
	if err != nil {
		s.warn(err, "serializing baseline")
		return
	}

	tmpFile := s.baselineFile + ".tmp"
	if err := os.WriteFile(tmpFile, buf, 0600); err != nil {
		s.warn(err, "writing baseline file")
		return
	}
	if err := os.Rename(tmpFile, s.baselineFile); err != nil {
		s.warn(err, "replacing baseline file")
	}
}

func (s *DepositService) fetchUtxos(ctx context.Context) (domain.Utxos, error) {
	utxos := make(domain.Utxos, 0)
	for _, address := range s.addresses {
		addressUtxos, err := s.chainSource.GetAddressUtxos(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("fetching utxos for %s: %w", address, err)
		}
		utxos = append(utxos, addressUtxos...)
	}
	return utxos, nil
}
