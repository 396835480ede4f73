package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

const erc20JSON = `[
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var erc20ABI = func() abi.ABI {
	a, err := abi.JSON(strings.NewReader(erc20JSON))
	if err != nil {
		panic(err)
	}
	return a
}()

// call executes the read only ERC-20 method of the token and returns its
// single output.
func (c *Client) call(ctx context.Context, token common.Address, method string, args ...any) (out any, err error) {
	defer err2.Handle(&err, method)

	data := try.To1(erc20ABI.Pack(method, args...))
	res := try.To1(c.b.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil))
	vals := try.To1(erc20ABI.Unpack(method, res))
	if len(vals) != 1 {
		return nil, fmt.Errorf("unexpected output count %d", len(vals))
	}
	return vals[0], nil
}

func (c *Client) callBig(ctx context.Context, token common.Address, method string, args ...any) (*big.Int, error) {
	v, err := c.call(ctx, token, method, args...)
	if err != nil {
		return nil, err
	}
	b, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected type %T", method, v)
	}
	return b, nil
}

func (c *Client) callString(ctx context.Context, token common.Address, method string) (string, error) {
	v, err := c.call(ctx, token, method)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: unexpected type %T", method, v)
	}
	return s, nil
}

func (c *Client) decimals(ctx context.Context, token common.Address) (uint8, error) {
	v, err := c.call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := v.(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected type %T", v)
	}
	return d, nil
}
