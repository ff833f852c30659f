package esplora_source

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultRetries        = 3
	defaultRetryDelay     = 500 * time.Millisecond
)

// ServiceArgs holds the args to create a new Esplora-backed implementation
// of the ports.ChainSource interface.
type ServiceArgs struct {
	// BaseURL is the address of the Esplora HTTP API, like
	// https://blockstream.info/api.
	BaseURL string
	// WsURL is the optional address of the websocket endpoint used to keep
	// the chain tip fresh without polling.
	WsURL string
	// RequestTimeout caps the duration of a single HTTP request.
	RequestTimeout time.Duration
	// Retries is the number of extra attempts for retryable failures.
	Retries int
	// RetryDelay is the initial delay between attempts, doubled after each
	// failure.
	RetryDelay time.Duration
}

func (a ServiceArgs) validate() error {
	if a.BaseURL == "" {
		return fmt.Errorf("missing esplora base url")
	}
	if a.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	return nil
}

type service struct {
	baseURL    string
	client     *http.Client
	retries    int
	retryDelay time.Duration

	tipHeight uint64
	wsCloser  func()

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

// NewService returns a ports.ChainSource talking to an Esplora instance.
// If a websocket endpoint is given, the chain tip is kept up to date over
// it and GetBlockHeight answers from the cached value.
func NewService(args ServiceArgs) (ports.ChainSource, error) {
	if err := args.validate(); err != nil {
		return nil, fmt.Errorf("invalid args: %s", err)
	}

	requestTimeout := args.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = defaultRequestTimeout
	}
	retries := args.Retries
	if retries == 0 {
		retries = defaultRetries
	}
	retryDelay := args.RetryDelay
	if retryDelay == 0 {
		retryDelay = defaultRetryDelay
	}

	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("chain source: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("chain source: %s", format)
		log.WithError(err).Warnf(format, a...)
	}

	svc := &service{
		baseURL:    strings.TrimSuffix(args.BaseURL, "/"),
		client:     &http.Client{Timeout: requestTimeout},
		retries:    retries,
		retryDelay: retryDelay,
		log:        logFn,
		warn:       warnFn,
	}

	if args.WsURL != "" {
		closer, err := watchChainTip(args.WsURL, func(height uint64) {
			atomic.StoreUint64(&svc.tipHeight, height)
			svc.log("chain tip moved to %d", height)
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to ws endpoint: %w", err)
		}
		svc.wsCloser = closer
	}

	return svc, nil
}

func (s *service) GetTransaction(
	ctx context.Context, txid string,
) (*ports.TxStatusInfo, error) {
	if _, err := chainhash.NewHashFromStr(txid); err != nil {
		return nil, fmt.Errorf("invalid txid: %s", err)
	}

	var info *ports.TxStatusInfo
	err := s.withRetry(ctx, func() error {
		buf, err := s.get(ctx, fmt.Sprintf("/tx/%s", txid))
		if err != nil {
			return err
		}
		var resp tx
		if err := json.Unmarshal(buf, &resp); err != nil {
			return ports.ErrInvalidResponse
		}
		info = resp.toStatusInfo()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (s *service) GetBlockHeight(ctx context.Context) (uint64, error) {
	if height := atomic.LoadUint64(&s.tipHeight); height > 0 {
		return height, nil
	}

	var height uint64
	err := s.withRetry(ctx, func() error {
		buf, err := s.get(ctx, "/blocks/tip/height")
		if err != nil {
			return err
		}
		parsed, err := strconv.ParseUint(strings.TrimSpace(string(buf)), 10, 64)
		if err != nil {
			return ports.ErrInvalidResponse
		}
		height = parsed
		return nil
	})
	if err != nil {
		return 0, err
	}
	return height, nil
}

func (s *service) GetAddressUtxos(
	ctx context.Context, address string,
) (domain.Utxos, error) {
	var utxos domain.Utxos
	err := s.withRetry(ctx, func() error {
		buf, err := s.get(ctx, fmt.Sprintf("/address/%s/utxo", address))
		if err != nil {
			return err
		}
		var resp utxoList
		if err := json.Unmarshal(buf, &resp); err != nil {
			return ports.ErrInvalidResponse
		}
		utxos = resp.toDomain(address)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return utxos, nil
}

// Broadcast publishes the given raw transaction. Failed attempts are never
// retried, the caller decides whether to try again.
func (s *service) Broadcast(ctx context.Context, rawTx []byte) (string, error) {
	url := fmt.Sprintf("%s/tx", s.baseURL)
	body := strings.NewReader(hex.EncodeToString(rawTx))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &ports.TransientError{Err: err}
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ports.TransientError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", broadcastError(strings.TrimSpace(string(buf)))
	}

	txid := strings.TrimSpace(string(buf))
	if _, err := chainhash.NewHashFromStr(txid); err != nil {
		return "", ports.ErrInvalidResponse
	}
	return txid, nil
}

func (s *service) GetFeeEstimate(
	ctx context.Context, targetBlocks int,
) (decimal.Decimal, error) {
	var estimate decimal.Decimal
	err := s.withRetry(ctx, func() error {
		buf, err := s.get(ctx, "/fee-estimates")
		if err != nil {
			return err
		}
		var resp map[string]float64
		if err := json.Unmarshal(buf, &resp); err != nil {
			return ports.ErrInvalidResponse
		}
		rate, err := pickFeeEstimate(resp, targetBlocks)
		if err != nil {
			return err
		}
		estimate = rate
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return estimate, nil
}

func (s *service) get(ctx context.Context, path string) ([]byte, error) {
	url := fmt.Sprintf("%s%s", s.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &ports.TransientError{Err: err}
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ports.TransientError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return buf, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ports.ErrTxNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ports.ErrRateLimited
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &ports.TransientError{
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(buf)),
		}
	default:
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(buf))
	}
}

// withRetry runs the given call and retries it with a doubling delay as
// long as the failure is worth retrying.
func (s *service) withRetry(ctx context.Context, fn func() error) error {
	delay := s.retryDelay
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil || !ports.IsRetryable(err) {
			return err
		}
		if attempt >= s.retries {
			return err
		}
		s.warn(err, "attempt %d failed, retrying in %s", attempt+1, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// Close tears down the websocket subscription, if any.
func (s *service) Close() {
	if s.wsCloser != nil {
		s.wsCloser()
	}
}

var broadcastReasonByPattern = []struct {
	pattern string
	reason  ports.BroadcastFailureReason
}{
	{"dust", ports.BroadcastReasonDust},
	{"min relay fee not met", ports.BroadcastReasonFeeTooLow},
	{"mempool min fee not met", ports.BroadcastReasonFeeTooLow},
	{"txn-already-known", ports.BroadcastReasonAlreadyBroadcast},
	{"txn-already-in-mempool", ports.BroadcastReasonAlreadyBroadcast},
	{"already in block chain", ports.BroadcastReasonAlreadyBroadcast},
	{"bad-txns-inputs-missingorspent", ports.BroadcastReasonInputsSpent},
	{"missing inputs", ports.BroadcastReasonInputsSpent},
	{"non-final", ports.BroadcastReasonNonFinal},
}

// broadcastError maps the node's rejection text to a known failure reason,
// keeping the original text verbatim.
func broadcastError(message string) *ports.BroadcastError {
	lowered := strings.ToLower(message)
	for _, m := range broadcastReasonByPattern {
		if strings.Contains(lowered, m.pattern) {
			return &ports.BroadcastError{Reason: m.reason, Message: message}
		}
	}
	return &ports.BroadcastError{
		Reason: ports.BroadcastReasonUnknown, Message: message,
	}
}

// pickFeeEstimate returns the rate for the exact confirmation target when
// available, otherwise the one for the closest smaller target.
func pickFeeEstimate(
	estimates map[string]float64, targetBlocks int,
) (decimal.Decimal, error) {
	if len(estimates) == 0 {
		return decimal.Zero, ports.ErrInvalidResponse
	}

	if rate, ok := estimates[strconv.Itoa(targetBlocks)]; ok {
		return decimal.NewFromFloat(rate), nil
	}

	targets := make([]int, 0, len(estimates))
	for k := range estimates {
		target, err := strconv.Atoi(k)
		if err != nil {
			return decimal.Zero, ports.ErrInvalidResponse
		}
		targets = append(targets, target)
	}
	sort.Ints(targets)

	best := targets[0]
	for _, target := range targets {
		if target > targetBlocks {
			break
		}
		best = target
	}
	return decimal.NewFromFloat(estimates[strconv.Itoa(best)]), nil
}
