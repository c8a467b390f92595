package trading

import (
	"strings"

	"github.com/shopspring/decimal"
)

// sizeDecimals is the quantization for assets that trade in fractional
// units.
const sizeDecimals = 4

var oneHundred = decimal.NewFromInt(100)

// Sizer converts a share of withdrawable margin into an order size. Assets
// in integerSized trade in whole units only and are truncated; everything
// else is rounded to 4 decimal places.
type Sizer struct {
	integerSized map[string]struct{}
}

func NewSizer(integerSizedAssets []string) *Sizer {
	m := make(map[string]struct{}, len(integerSizedAssets))
	for _, asset := range integerSizedAssets {
		m[strings.ToUpper(asset)] = struct{}{}
	}
	return &Sizer{integerSized: m}
}

// ComputeSize returns the order size for spending percent% of withdrawable
// margin at the given leverage. A non-positive result means the position
// would be too small to submit; callers must treat that as terminal and
// never send it to the venue.
func (s *Sizer) ComputeSize(withdrawable decimal.Decimal, percent, maxLeverage int, price decimal.Decimal, asset string) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, validationErrorf("Invalid price (0 or negative) for %s", asset)
	}
	if !withdrawable.IsPositive() {
		return decimal.Zero, validationErrorf("Insufficient balance: no margin available for trading")
	}

	usdAmount := withdrawable.Mul(decimal.NewFromInt(int64(percent))).Div(oneHundred)
	raw := usdAmount.Mul(decimal.NewFromInt(int64(maxLeverage))).Div(price)

	if _, whole := s.integerSized[strings.ToUpper(asset)]; whole {
		return raw.Truncate(0), nil
	}
	return raw.Round(sizeDecimals), nil
}
