// Package units converts between the ledger's integer units and the decimal
// values shown to clients.
package units

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	weiDecimals   = 18
	wattsPerMW    = 1_000_000
	alphaScale    = 1000
	powerMWPlaces = 2
)

// FormatEther renders a wei amount as an ether string without trailing zeros.
// A nil amount formats as "0".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	d := decimal.NewFromBigInt(wei, -weiDecimals)
	s := d.String()
	if d.IsInteger() {
		return s + ".0"
	}
	return s
}

// ParseEther converts an ether string such as "0.5" into wei.
func ParseEther(ether string) (*big.Int, error) {
	d, err := decimal.NewFromString(ether)
	if err != nil {
		return nil, err
	}
	return d.Shift(weiDecimals).Truncate(0).BigInt(), nil
}

// WattsToMW converts watts to megawatts, floored to two decimal places.
func WattsToMW(watts int64) decimal.Decimal {
	return decimal.New(watts, 0).Div(decimal.New(wattsPerMW, 0)).RoundFloor(powerMWPlaces)
}

// WholeMW returns the integer megawatts the ledger stores for a reading.
func WholeMW(watts int64) int64 {
	return watts / wattsPerMW
}

// AlphaRatio converts a milli-scaled alpha (200..1000) into its ratio form.
func AlphaRatio(alphaMilli int) decimal.Decimal {
	return decimal.New(int64(alphaMilli), 0).Div(decimal.New(alphaScale, 0))
}
