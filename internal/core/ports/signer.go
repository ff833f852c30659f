package ports

import (
	"context"
	"errors"

	"github.com/covault/covaultd/internal/core/domain"
)

var (
	// ErrSigningRejected is returned when the user declined the signing
	// request on the device.
	ErrSigningRejected = errors.New("signing rejected on device")
	// ErrSignerDisconnected is returned when no device is reachable for the
	// requested signer.
	ErrSignerDisconnected = errors.New("signer device disconnected")
)

// Signer is the abstraction for the external hardware-wallet signing
// service. Cancellation and timeouts are driven by the given context, a
// deadline exceeded is surfaced as the context error.
type Signer interface {
	// SignPsbt asks the device identified by the given fingerprint to sign
	// the opaque blob with the key at the given derivation path.
	SignPsbt(
		ctx context.Context, unsigned domain.Psbt,
		fingerprint, derivationPath string,
	) (domain.Psbt, error)
}
