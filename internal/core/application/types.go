package application

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/covault/covaultd/internal/core/ports"
	largestfirst_selector "github.com/covault/covaultd/internal/infrastructure/coin-selector/largest-first"
	nearexact_selector "github.com/covault/covaultd/internal/infrastructure/coin-selector/near-exact"
	smallestfirst_selector "github.com/covault/covaultd/internal/infrastructure/coin-selector/smallest-first"
	"github.com/shopspring/decimal"
)

const (
	CoinSelectionLargestFirst = iota
	CoinSelectionSmallestFirst
	CoinSelectionNearExact
)

var (
	DefaultCoinSelector = largestfirst_selector.NewLargestFirstCoinSelector()

	coinSelectorByType = map[int]func() ports.CoinSelector{
		CoinSelectionLargestFirst:  largestfirst_selector.NewLargestFirstCoinSelector,
		CoinSelectionSmallestFirst: smallestfirst_selector.NewSmallestFirstCoinSelector,
		CoinSelectionNearExact:     nearexact_selector.NewNearExactCoinSelector,
	}
)

// SignerKey identifies one authorized cosigner by its master key
// fingerprint and the derivation path used for signing requests.
type SignerKey struct {
	Fingerprint    string
	DerivationPath string
}

// WalletConfig describes the multisig wallet this daemon coordinates:
// the authorized signer set with the required quorum, the watched deposit
// addresses and the change address. Key derivation and descriptor handling
// belong to external collaborators.
type WalletConfig struct {
	Signers            []SignerKey
	RequiredSignatures int
	Addresses          []string
	ChangeAddress      string
}

func (c WalletConfig) validate() error {
	if len(c.Signers) == 0 {
		return fmt.Errorf("missing signer set")
	}
	if c.RequiredSignatures <= 0 || c.RequiredSignatures > len(c.Signers) {
		return fmt.Errorf(
			"required signatures must be in range [1, %d]", len(c.Signers),
		)
	}
	if len(c.Addresses) == 0 {
		return fmt.Errorf("missing watched addresses")
	}
	if c.ChangeAddress == "" {
		return fmt.Errorf("missing change address")
	}
	return nil
}

// SignerFingerprints returns the configured signer identities.
func (c WalletConfig) SignerFingerprints() []string {
	fingerprints := make([]string, 0, len(c.Signers))
	for _, s := range c.Signers {
		fingerprints = append(fingerprints, s.Fingerprint)
	}
	return fingerprints
}

func (c WalletConfig) signerPath(fingerprint string) (string, bool) {
	for _, s := range c.Signers {
		if s.Fingerprint == fingerprint {
			return s.DerivationPath, true
		}
	}
	return "", false
}

// Transaction size approximations for a M-of-N P2WSH spend, in vbytes.
// Inputs count outpoint+sequence plus the witness (M signatures and the
// witness script with N pubkeys) discounted by the segwit factor.
const (
	txBaseVBytes   = 11
	txOutputVBytes = 43
)

func multisigInputVBytes(m, n int) int64 {
	witnessBytes := 2 + m*73 + (4 + n*34)
	return int64(41 + (witnessBytes+3)/4)
}

// feeModelForRate derives a ports.FeeModel from a sats/vbyte fee rate for a
// transaction with the given quorum shape and number of outputs. The fee is
// rounded up to a whole satoshi amount.
func feeModelForRate(
	feeRate decimal.Decimal, m, n, numOutputs int,
) ports.FeeModel {
	return func(numInputs int) btcutil.Amount {
		vbytes := txBaseVBytes +
			multisigInputVBytes(m, n)*int64(numInputs) +
			txOutputVBytes*int64(numOutputs)
		fee := feeRate.Mul(decimal.NewFromInt(vbytes)).Ceil()
		return btcutil.Amount(fee.IntPart())
	}
}

// BalanceInfo holds the confirmed/unconfirmed split of the wallet funds,
// net of utxos reserved by pending offers.
type BalanceInfo struct {
	Confirmed   btcutil.Amount
	Unconfirmed btcutil.Amount
	Reserved    btcutil.Amount
}

func (b BalanceInfo) Total() btcutil.Amount {
	return b.Confirmed + b.Unconfirmed + b.Reserved
}
