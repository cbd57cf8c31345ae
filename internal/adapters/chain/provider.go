// Package chain provides the upstream blockchain query provider used for
// confirmation counts, address scanning, and transfer broadcast.
package chain

import (
	"context"

	"github.com/shopspring/decimal"
)

// TxEvent is an inbound transfer observed on chain
type TxEvent struct {
	TxHash      string          `json:"tx_hash"`
	FromAddress string          `json:"from_address"`
	ToAddress   string          `json:"to_address"`
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	BlockHeight int64           `json:"block_height"`
}

// QueryProvider answers questions about on-chain state. Implementations
// must be safe for concurrent use.
type QueryProvider interface {
	// GetConfirmations returns the confirmation count for a transaction,
	// or zero if it is not yet included in a block
	GetConfirmations(ctx context.Context, txHash string) (int64, error)

	// GetTransactionsForAddress returns inbound transfers to the address
	// observed after the given block height
	GetTransactionsForAddress(ctx context.Context, address string, sinceBlock int64) ([]TxEvent, error)

	// GetLatestBlock returns the current chain tip height
	GetLatestBlock(ctx context.Context) (int64, error)

	// GetBalance returns the on-chain balance of an address
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
}
