package history

import (
	"context"
	"time"
)

// Record is one transfer of an address, native or token.
type Record struct {
	Hash        string    `json:"hash"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Value       string    `json:"value"`
	Asset       string    `json:"asset"`
	Category    string    `json:"category"`
	BlockNumber uint64    `json:"blockNumber"`
	Timestamp   time.Time `json:"timestamp"`
}

// Indexer is the remote indexing collaborator. Transfers returns the records
// of the address ordered by descending recency. A malformed address gives an
// error of kind werr.ErrValidation, which is never retried.
type Indexer interface {
	Transfers(ctx context.Context, address string) ([]Record, error)
}

// fallbackRecords is the fixed demo dataset served when the indexer can't
// give us anything. Never hand it out without copying.
var fallbackRecords = []Record{
	{
		Hash:        "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060",
		From:        "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		To:          "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		Value:       "0.5",
		Asset:       "ETH",
		Category:    "external",
		BlockNumber: 5102480,
		Timestamp:   time.Date(2024, 1, 16, 14, 30, 0, 0, time.UTC),
	},
	{
		Hash:        "0x2f1c5c2b44f771e942a8506148e256f94f1a464babc938ae0690c6e34cd79190",
		From:        "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
		To:          "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		Value:       "25",
		Asset:       "USDC",
		Category:    "erc20",
		BlockNumber: 5096114,
		Timestamp:   time.Date(2024, 1, 15, 10, 15, 0, 0, time.UTC),
	},
	{
		Hash:        "0x9fc76417374aa880d4449a1f7f31ec597f00b1f6f3dd2d66f4c9c6c445836d8b",
		From:        "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		To:          "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
		Value:       "0.05",
		Asset:       "ETH",
		Category:    "external",
		BlockNumber: 4871552,
		Timestamp:   time.Date(2024, 1, 10, 16, 45, 0, 0, time.UTC),
	},
}

// Fallback returns a copy of the fixed demo dataset.
func Fallback() []Record {
	return append(fallbackRecords[:0:0], fallbackRecords...)
}
