// Package etherconv converts between wei and decimal ether amounts for
// display and user input. All on-chain arithmetic stays in *big.Int; decimal
// is only used at the presentation boundary.
package etherconv

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// WeiPerEther is 10^18.
var WeiPerEther = decimal.New(1, 18)

// FromWei converts a wei amount to ether.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, 0).Div(WeiPerEther)
}

// ToWei converts an ether amount to wei, truncating anything below 1 wei.
func ToWei(ether decimal.Decimal) *big.Int {
	return ether.Mul(WeiPerEther).Truncate(0).BigInt()
}

// ParseEther parses a user-supplied ether amount. Negative amounts are
// rejected.
func ParseEther(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid ether amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("ether amount %q is negative", s)
	}
	return d, nil
}

// ParseEtherToWei parses a user-supplied ether amount and returns wei.
func ParseEtherToWei(s string) (*big.Int, error) {
	d, err := ParseEther(s)
	if err != nil {
		return nil, err
	}
	return ToWei(d), nil
}

// FormatWei renders a wei amount as a short ether string for status lines.
func FormatWei(wei *big.Int) string {
	return FromWei(wei).String() + " ETH"
}
