package rest_builder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
)

const defaultRequestTimeout = 15 * time.Second

type utxoRef struct {
	Txid    string `json:"txid"`
	Vout    uint32 `json:"vout"`
	Value   int64  `json:"value"`
	Address string `json:"address"`
}

type outputRef struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

type psbtResponse struct {
	Psbt domain.Psbt `json:"psbt"`
}

type service struct {
	baseURL string
	client  *http.Client
}

// NewService returns a ports.TxBuilder backed by an external PSBT service
// reachable over HTTP. Every blob exchanged with it stays opaque.
func NewService(baseURL string, requestTimeout time.Duration) (ports.TxBuilder, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("missing tx builder url")
	}
	if requestTimeout == 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &service{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
	}, nil
}

func (s *service) BuildUnsigned(
	ctx context.Context, inputs domain.Utxos, outputs []ports.TxOutput,
) (domain.Psbt, error) {
	ins := make([]utxoRef, 0, len(inputs))
	for _, u := range inputs {
		ins = append(ins, utxoRef{
			Txid:    u.TxID,
			Vout:    u.VOut,
			Value:   int64(u.Value),
			Address: u.Address,
		})
	}
	outs := make([]outputRef, 0, len(outputs))
	for _, o := range outputs {
		outs = append(outs, outputRef{
			Address: o.Address,
			Amount:  int64(o.Amount),
		})
	}

	var resp psbtResponse
	if err := s.post(ctx, "/psbt/build", map[string]interface{}{
		"inputs":  ins,
		"outputs": outs,
	}, &resp); err != nil {
		return nil, err
	}
	return resp.Psbt, nil
}

func (s *service) Combine(
	ctx context.Context, unsigned domain.Psbt, signed []domain.Psbt,
) (domain.Psbt, error) {
	var resp psbtResponse
	if err := s.post(ctx, "/psbt/combine", map[string]interface{}{
		"unsigned": unsigned,
		"signed":   signed,
	}, &resp); err != nil {
		return nil, err
	}
	return resp.Psbt, nil
}

func (s *service) Finalize(
	ctx context.Context, combined domain.Psbt,
) ([]byte, error) {
	var resp struct {
		RawTx []byte `json:"raw_tx"`
	}
	if err := s.post(ctx, "/psbt/finalize", map[string]interface{}{
		"psbt": combined,
	}, &resp); err != nil {
		return nil, err
	}
	return resp.RawTx, nil
}

func (s *service) post(
	ctx context.Context, path string, body interface{}, out interface{},
) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s%s", s.baseURL, path)
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, url, bytes.NewReader(buf),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(
			"tx builder: status %d: %s", resp.StatusCode,
			strings.TrimSpace(string(respBody)),
		)
	}
	return json.Unmarshal(respBody, out)
}
