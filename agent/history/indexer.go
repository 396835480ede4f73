package history

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/findy-network/findy-wallet/agent/werr"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/shopspring/decimal"
)

const (
	methodAssetTransfers = "alchemy_getAssetTransfers"

	// codeInvalidParams is the JSON-RPC error code for malformed params.
	codeInvalidParams = -32602

	defaultMaxCount = 100
)

// RPCIndexer reads transfers with the alchemy_getAssetTransfers JSON-RPC
// method. Both directions are queried and merged.
type RPCIndexer struct {
	c *rpc.Client

	// MaxCount limits the records per direction and the merged result.
	MaxCount int
}

// DialIndexer connects to the indexer endpoint.
func DialIndexer(ctx context.Context, url string) (x *RPCIndexer, err error) {
	defer err2.Handle(&err, "dial indexer")

	return NewRPCIndexer(try.To1(rpc.DialContext(ctx, url))), nil
}

// NewRPCIndexer uses the client c.
func NewRPCIndexer(c *rpc.Client) *RPCIndexer {
	return &RPCIndexer{c: c, MaxCount: defaultMaxCount}
}

// Close closes the client.
func (x *RPCIndexer) Close() {
	x.c.Close()
}

type transfersParams struct {
	FromBlock        string   `json:"fromBlock"`
	ToBlock          string   `json:"toBlock"`
	FromAddress      string   `json:"fromAddress,omitempty"`
	ToAddress        string   `json:"toAddress,omitempty"`
	Category         []string `json:"category"`
	WithMetadata     bool     `json:"withMetadata"`
	ExcludeZeroValue bool     `json:"excludeZeroValue"`
	MaxCount         string   `json:"maxCount"`
	Order            string   `json:"order"`
}

type transfer struct {
	UniqueID string         `json:"uniqueId"`
	Hash     string         `json:"hash"`
	BlockNum hexutil.Uint64 `json:"blockNum"`
	From     string         `json:"from"`
	To       string         `json:"to"`
	Value    *float64       `json:"value"`
	Asset    string         `json:"asset"`
	Category string         `json:"category"`
	Metadata struct {
		BlockTimestamp string `json:"blockTimestamp"`
	} `json:"metadata"`
}

type transfersResult struct {
	Transfers []transfer `json:"transfers"`
	PageKey   string     `json:"pageKey"`
}

// Transfers implements Indexer.
func (x *RPCIndexer) Transfers(ctx context.Context, address string) (rs []Record, err error) {
	if !common.IsHexAddress(address) {
		return nil, werr.Errorf(werr.ErrInvalidAddress, "%q", address)
	}
	defer err2.Handle(&err, func(err error) error {
		return classify(err)
	})

	out := try.To1(x.query(ctx, transfersParams{FromAddress: address}))
	in := try.To1(x.query(ctx, transfersParams{ToAddress: address}))

	seen := make(map[string]bool, len(out)+len(in))
	for _, t := range append(out, in...) {
		key := t.UniqueID
		if key == "" {
			key = t.Hash + "/" + t.From + "/" + t.To
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		rs = append(rs, t.record())
	}
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].BlockNumber > rs[j].BlockNumber
	})
	if n := x.maxCount(); len(rs) > n {
		rs = rs[:n]
	}
	glog.V(4).Infof("indexer: %d transfers for %s", len(rs), address)
	return rs, nil
}

func (x *RPCIndexer) maxCount() int {
	if x.MaxCount <= 0 {
		return defaultMaxCount
	}
	return x.MaxCount
}

func (x *RPCIndexer) query(ctx context.Context, p transfersParams) ([]transfer, error) {
	p.FromBlock = "0x0"
	p.ToBlock = "latest"
	p.Category = []string{"external", "erc20"}
	p.WithMetadata = true
	p.ExcludeZeroValue = true
	p.MaxCount = hexutil.EncodeUint64(uint64(x.maxCount()))
	p.Order = "desc"

	var res transfersResult
	if err := x.c.CallContext(ctx, &res, methodAssetTransfers, p); err != nil {
		return nil, err
	}
	return res.Transfers, nil
}

func (t transfer) record() Record {
	r := Record{
		Hash:        t.Hash,
		From:        t.From,
		To:          t.To,
		Asset:       t.Asset,
		Category:    t.Category,
		BlockNumber: uint64(t.BlockNum),
	}
	if t.Value != nil {
		r.Value = decimal.NewFromFloat(*t.Value).String()
	}
	if ts, err := time.Parse(time.RFC3339, t.Metadata.BlockTimestamp); err == nil {
		r.Timestamp = ts
	}
	return r
}

// classify tags indexer errors with the kinds the engine's retry policy
// understands.
func classify(err error) error {
	if err == nil || werr.KindOf(err) != nil {
		return err
	}
	var re rpc.Error
	if errors.As(err, &re) && re.ErrorCode() == codeInvalidParams {
		return werr.Wrap(werr.ErrValidation, err)
	}
	var he rpc.HTTPError
	if errors.As(err, &he) && he.StatusCode < http.StatusInternalServerError &&
		he.StatusCode != http.StatusTooManyRequests {
		return err
	}
	// 5xx, 429, timeouts and broken connections
	return werr.Transient(err)
}
