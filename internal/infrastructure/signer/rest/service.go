package rest_signer

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

const defaultRequestTimeout = 2 * time.Minute

type service struct {
	baseURL string
	client  *http.Client
}

// NewService returns a ports.Signer that forwards signing requests to an
// external hardware-wallet bridge over HTTP. Waiting for the user to
// confirm on the device can take long, cancellation is up to the caller's
// context.
func NewService(baseURL string, requestTimeout time.Duration) (ports.Signer, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("missing signer url")
	}
	if requestTimeout == 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &service{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
	}, nil
}

func (s *service) SignPsbt(
	ctx context.Context, unsigned domain.Psbt,
	fingerprint, derivationPath string,
) (domain.Psbt, error) {
	buf, err := json.Marshal(map[string]interface{}{
		"psbt":            unsigned,
		"fingerprint":     fingerprint,
		"derivation_path": derivationPath,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/sign", s.baseURL)
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, url, bytes.NewReader(buf),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return nil, ports.ErrSigningRejected
	case http.StatusNotFound, http.StatusServiceUnavailable:
		return nil, ports.ErrSignerDisconnected
	default:
		return nil, fmt.Errorf(
			"signer: status %d: %s", resp.StatusCode,
			strings.TrimSpace(string(respBody)),
		)
	}

	var signed struct {
		Psbt domain.Psbt `json:"psbt"`
	}
	if err := json.Unmarshal(respBody, &signed); err != nil {
		return nil, err
	}
	return signed.Psbt, nil
}
