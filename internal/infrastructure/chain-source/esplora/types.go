package esplora_source

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/covault/covaultd/internal/core/domain"
	"github.com/covault/covaultd/internal/core/ports"
)

type txStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint64 `json:"block_height"`
	BlockTime   int64  `json:"block_time"`
}

type tx struct {
	Txid   string   `json:"txid"`
	Status txStatus `json:"status"`
}

func (t tx) toStatusInfo() *ports.TxStatusInfo {
	return &ports.TxStatusInfo{
		Confirmed:   t.Status.Confirmed,
		BlockHeight: t.Status.BlockHeight,
		BlockTime:   t.Status.BlockTime,
	}
}

type utxo struct {
	Txid   string   `json:"txid"`
	Vout   uint32   `json:"vout"`
	Value  int64    `json:"value"`
	Status txStatus `json:"status"`
}

type utxoList []utxo

func (l utxoList) toDomain(address string) domain.Utxos {
	utxos := make(domain.Utxos, 0, len(l))
	for _, u := range l {
		utxos = append(utxos, &domain.Utxo{
			UtxoKey: domain.UtxoKey{
				TxID: u.Txid,
				VOut: u.Vout,
			},
			Value:       btcutil.Amount(u.Value),
			Address:     address,
			Confirmed:   u.Status.Confirmed,
			BlockHeight: u.Status.BlockHeight,
		})
	}
	return utxos
}

type blockMsg struct {
	Height uint64 `json:"height"`
}

type wsMsg struct {
	Block *blockMsg `json:"block"`
}
