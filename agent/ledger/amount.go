package ledger

import (
	"math/big"

	"github.com/findy-network/findy-wallet/agent/werr"
	"github.com/shopspring/decimal"
)

const (
	etherDecimals = 18
	gweiDecimals  = 9
)

// FormatUnits formats the integer amount v with dec decimals, e.g. wei to
// ether when dec is 18. Trailing zeros are dropped.
func FormatUnits(v *big.Int, dec int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -dec).String()
}

// ParseUnits parses the decimal string s to an integer amount with dec
// decimals. Negative amounts and amounts with more fractional digits than dec
// fail with werr.ErrInvalidAmount.
func ParseUnits(s string, dec int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, werr.Errorf(werr.ErrInvalidAmount, "%q: %v", s, err)
	}
	if d.IsNegative() {
		return nil, werr.Errorf(werr.ErrInvalidAmount, "%q is negative", s)
	}
	shifted := d.Shift(dec)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, werr.Errorf(werr.ErrInvalidAmount, "%q has more than %d decimals", s, dec)
	}
	return shifted.BigInt(), nil
}
