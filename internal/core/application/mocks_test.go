package application_test

import (
	"context"

	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// ports.ChainSource

type mockChainSource struct {
	mock.Mock
}

func (m *mockChainSource) GetTransaction(
	ctx context.Context, txid string,
) (*ports.TxStatusInfo, error) {
	args := m.Called(ctx, txid)

	var res *ports.TxStatusInfo
	if a := args.Get(0); a != nil {
		res = a.(*ports.TxStatusInfo)
	}
	return res, args.Error(1)
}

func (m *mockChainSource) GetBlockHeight(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)

	var res uint64
	if a := args.Get(0); a != nil {
		res = a.(uint64)
	}
	return res, args.Error(1)
}

func (m *mockChainSource) GetAddressUtxos(
	ctx context.Context, address string,
) (domain.Utxos, error) {
	args := m.Called(ctx, address)

	var res domain.Utxos
	if a := args.Get(0); a != nil {
		res = a.(domain.Utxos)
	}
	return res, args.Error(1)
}

func (m *mockChainSource) Broadcast(
	ctx context.Context, rawTx []byte,
) (string, error) {
	args := m.Called(ctx, rawTx)

	var res string
	if a := args.Get(0); a != nil {
		res = a.(string)
	}
	return res, args.Error(1)
}

func (m *mockChainSource) GetFeeEstimate(
	ctx context.Context, targetBlocks int,
) (decimal.Decimal, error) {
	args := m.Called(ctx, targetBlocks)

	var res decimal.Decimal
	if a := args.Get(0); a != nil {
		res = a.(decimal.Decimal)
	}
	return res, args.Error(1)
}

func (m *mockChainSource) Close() {}

// ports.TxBuilder

type mockTxBuilder struct {
	mock.Mock
}

func (m *mockTxBuilder) BuildUnsigned(
	ctx context.Context, inputs domain.Utxos, outputs []ports.TxOutput,
) (domain.Psbt, error) {
	args := m.Called(ctx, inputs, outputs)

	var res domain.Psbt
	if a := args.Get(0); a != nil {
		res = a.(domain.Psbt)
	}
	return res, args.Error(1)
}

func (m *mockTxBuilder) Combine(
	ctx context.Context, unsigned domain.Psbt, signed []domain.Psbt,
) (domain.Psbt, error) {
	args := m.Called(ctx, unsigned, signed)

	var res domain.Psbt
	if a := args.Get(0); a != nil {
		res = a.(domain.Psbt)
	}
	return res, args.Error(1)
}

func (m *mockTxBuilder) Finalize(
	ctx context.Context, combined domain.Psbt,
) ([]byte, error) {
	args := m.Called(ctx, combined)

	var res []byte
	if a := args.Get(0); a != nil {
		res = a.([]byte)
	}
	return res, args.Error(1)
}

// ports.Signer

type mockSigner struct {
	mock.Mock
}

func (m *mockSigner) SignPsbt(
	ctx context.Context, unsigned domain.Psbt,
	fingerprint, derivationPath string,
) (domain.Psbt, error) {
	args := m.Called(ctx, unsigned, fingerprint, derivationPath)

	var res domain.Psbt
	if a := args.Get(0); a != nil {
		res = a.(domain.Psbt)
	}
	return res, args.Error(1)
}
