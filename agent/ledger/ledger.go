/*
Package ledger answers balance, token and transaction queries against an
Ethereum node and submits transfers signed with the key material of a managed
identity. None of the calls retry: a failure goes straight to the caller.
*/
package ledger

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/findy-network/findy-wallet/agent/keys"
	"github.com/findy-network/findy-wallet/agent/werr"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// ErrNotFound is returned when the node doesn't know the transaction.
var ErrNotFound = errors.New("transaction not found")

// Transaction statuses.
const (
	StatusSuccess = "Success"
	StatusFailed  = "Failed"
	StatusPending = "Pending"
)

// Backend is the part of the node API we use. *ethclient.Client implements
// it.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// TokenAmount is a token balance.
type TokenAmount struct {
	Amount string
	Symbol string
}

// Token is the ERC-20 metadata of a token contract.
type Token struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply string
}

// Transaction is what TransactionByHash reports. Value is in ether and
// GasPrice in gwei.
type Transaction struct {
	Hash          string
	From          string
	To            string
	Value         string
	GasPrice      string
	GasLimit      uint64
	Nonce         uint64
	Status        string
	BlockNumber   uint64
	Confirmations uint64
}

// TxHandle identifies a submitted transaction.
type TxHandle struct {
	Hash  string
	From  string
	To    string
	Nonce uint64
}

// Client is the ledger query collaborator.
type Client struct {
	b     Backend
	close func()
}

// Dial connects to the node at url.
func Dial(ctx context.Context, url string) (c *Client, err error) {
	defer err2.Handle(&err, "dial ledger")

	ec := try.To1(ethclient.DialContext(ctx, url))
	return &Client{b: ec, close: ec.Close}, nil
}

// New uses the backend b.
func New(b Backend) *Client {
	return &Client{b: b}
}

// Close closes the connection to the node.
func (c *Client) Close() {
	if c.close != nil {
		c.close()
	}
}

// NativeBalance returns the ether balance of the address.
func (c *Client) NativeBalance(ctx context.Context, address string) (_ string, err error) {
	defer err2.Handle(&err, "native balance")

	a := try.To1(parseAddress(address))
	return FormatUnits(try.To1(c.b.BalanceAt(ctx, a, nil)), etherDecimals), nil
}

// TokenBalance returns the balance of the address in the ERC-20 token.
func (c *Client) TokenBalance(ctx context.Context, token, address string) (ta TokenAmount, err error) {
	defer err2.Handle(&err, "token balance")

	t := try.To1(parseAddress(token))
	a := try.To1(parseAddress(address))

	bal := try.To1(c.callBig(ctx, t, "balanceOf", a))
	dec := try.To1(c.decimals(ctx, t))
	ta.Symbol = try.To1(c.callString(ctx, t, "symbol"))
	ta.Amount = FormatUnits(bal, int32(dec))
	return ta, nil
}

// TokenMetadata returns the ERC-20 metadata of the token.
func (c *Client) TokenMetadata(ctx context.Context, token string) (tk Token, err error) {
	defer err2.Handle(&err, "token metadata")

	t := try.To1(parseAddress(token))

	tk.Name = try.To1(c.callString(ctx, t, "name"))
	tk.Symbol = try.To1(c.callString(ctx, t, "symbol"))
	tk.Decimals = try.To1(c.decimals(ctx, t))
	supply := try.To1(c.callBig(ctx, t, "totalSupply"))
	tk.TotalSupply = FormatUnits(supply, int32(tk.Decimals))
	return tk, nil
}

// TransactionByHash returns the transaction. It fails with ErrNotFound if the
// node doesn't know it. A transaction without a receipt is Pending.
func (c *Client) TransactionByHash(ctx context.Context, hash string) (t Transaction, err error) {
	defer err2.Handle(&err, "transaction")

	h := try.To1(parseHash(hash))
	tx, pending, err := c.b.TransactionByHash(ctx, h)
	if errors.Is(err, ethereum.NotFound) {
		return t, ErrNotFound
	}
	try.To(err)

	t = Transaction{
		Hash:     tx.Hash().Hex(),
		Value:    FormatUnits(tx.Value(), etherDecimals),
		GasPrice: FormatUnits(tx.GasPrice(), gweiDecimals),
		GasLimit: tx.Gas(),
		Nonce:    tx.Nonce(),
		Status:   StatusPending,
	}
	if to := tx.To(); to != nil {
		t.To = to.Hex()
	}
	if from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		t.From = from.Hex()
	} else {
		glog.V(2).Infoln("cannot recover sender of", hash, err)
	}
	if pending {
		return t, nil
	}

	receipt, err := c.b.TransactionReceipt(ctx, h)
	if errors.Is(err, ethereum.NotFound) {
		return t, nil
	}
	try.To(err)

	t.Status = StatusFailed
	if receipt.Status == types.ReceiptStatusSuccessful {
		t.Status = StatusSuccess
	}
	if receipt.BlockNumber != nil {
		t.BlockNumber = receipt.BlockNumber.Uint64()
		head := try.To1(c.b.BlockNumber(ctx))
		if head >= t.BlockNumber {
			t.Confirmations = head - t.BlockNumber + 1
		}
	}
	return t, nil
}

// SubmitNativeTransfer sends amount ether from the identity of keyMaterial to
// the address to.
func (c *Client) SubmitNativeTransfer(ctx context.Context, keyMaterial, to, amount string) (h TxHandle, err error) {
	defer err2.Handle(&err, "native transfer")

	dst := try.To1(parseAddress(to))
	value := try.To1(ParseUnits(amount, etherDecimals))
	return c.submit(ctx, keyMaterial, dst, value, nil)
}

// SubmitTokenTransfer sends amount of the ERC-20 token from the identity of
// keyMaterial to the address to.
func (c *Client) SubmitTokenTransfer(ctx context.Context, keyMaterial, token, to, amount string) (h TxHandle, err error) {
	defer err2.Handle(&err, "token transfer")

	t := try.To1(parseAddress(token))
	dst := try.To1(parseAddress(to))
	dec := try.To1(c.decimals(ctx, t))
	value := try.To1(ParseUnits(amount, int32(dec)))
	data := try.To1(erc20ABI.Pack("transfer", dst, value))

	h = try.To1(c.submit(ctx, keyMaterial, t, big.NewInt(0), data))
	h.To = dst.Hex()
	return h, nil
}

// TokenAllowance returns how much of the token the spender may still move
// from the owner's balance.
func (c *Client) TokenAllowance(ctx context.Context, token, owner, spender string) (ta TokenAmount, err error) {
	defer err2.Handle(&err, "token allowance")

	t := try.To1(parseAddress(token))
	o := try.To1(parseAddress(owner))
	s := try.To1(parseAddress(spender))

	allowance := try.To1(c.callBig(ctx, t, "allowance", o, s))
	dec := try.To1(c.decimals(ctx, t))
	ta.Symbol = try.To1(c.callString(ctx, t, "symbol"))
	ta.Amount = FormatUnits(allowance, int32(dec))
	return ta, nil
}

// SubmitTokenApproval sets the spending cap of the spender to amount of the
// ERC-20 token owned by the identity of keyMaterial. The cap replaces the
// previous one, zero revokes it.
func (c *Client) SubmitTokenApproval(ctx context.Context, keyMaterial, token, spender, amount string) (h TxHandle, err error) {
	defer err2.Handle(&err, "token approval")

	t := try.To1(parseAddress(token))
	s := try.To1(parseAddress(spender))
	dec := try.To1(c.decimals(ctx, t))
	value := try.To1(ParseUnits(amount, int32(dec)))
	data := try.To1(erc20ABI.Pack("approve", s, value))

	h = try.To1(c.submit(ctx, keyMaterial, t, big.NewInt(0), data))
	h.To = s.Hex()
	return h, nil
}

func (c *Client) submit(
	ctx context.Context,
	keyMaterial string,
	to common.Address,
	value *big.Int,
	data []byte,
) (h TxHandle, err error) {
	defer err2.Handle(&err)

	key := try.To1(keys.ParseKey(keyMaterial))
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce := try.To1(c.b.PendingNonceAt(ctx, from))
	gasPrice := try.To1(c.b.SuggestGasPrice(ctx))
	gas := try.To1(c.b.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	}))
	chainID := try.To1(c.b.ChainID(ctx))

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed := try.To1(types.SignTx(tx, types.LatestSignerForChainID(chainID), key))
	try.To(c.b.SendTransaction(ctx, signed))

	glog.V(1).Infof("submitted %s from %s nonce %d", signed.Hash().Hex(), from.Hex(), nonce)
	return TxHandle{
		Hash:  signed.Hash().Hex(),
		From:  from.Hex(),
		To:    to.Hex(),
		Nonce: nonce,
	}, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, werr.Errorf(werr.ErrInvalidAddress, "%q", s)
	}
	return common.HexToAddress(s), nil
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength || !strings.HasPrefix(s, "0x") {
		return common.Hash{}, werr.Errorf(werr.ErrValidation, "%q is not a transaction hash", s)
	}
	return common.BytesToHash(b), nil
}
