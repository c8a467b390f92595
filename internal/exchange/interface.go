package exchange

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Exchange is the venue surface the trading core depends on. Reads always
// hit the venue; nothing is cached between calls, so staleness is bounded
// by a single operation.
type Exchange interface {
	// Account
	AccountState(ctx context.Context) (*AccountState, error)

	// Market data
	AssetMetadata(ctx context.Context) ([]AssetMeta, error)
	MarketPrice(ctx context.Context, coin string) (decimal.Decimal, error)

	// Trading
	SetLeverage(ctx context.Context, coin string, leverage int) error
	MarketOpen(ctx context.Context, coin string, isBuy bool, size decimal.Decimal, slippage float64) (*OrderResult, error)
	MarketClose(ctx context.Context, coin string, slippage float64) (*OrderResult, error)
}

type AssetMeta struct {
	Name        string
	MaxLeverage int
	SzDecimals  int
}

// Position size is signed: positive long, negative short.
type Position struct {
	Coin       string
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
}

func (p Position) IsLong() bool { return p.Size.IsPositive() }

type AccountState struct {
	Address      string
	Withdrawable decimal.Decimal
	Positions    []Position
}

// Position returns the open position for coin, or nil.
func (s *AccountState) Position(coin string) *Position {
	for i := range s.Positions {
		if strings.EqualFold(s.Positions[i].Coin, coin) {
			return &s.Positions[i]
		}
	}
	return nil
}

// OrderResult is the decoded outcome of one order submission. OK is true
// only when the venue accepted the order and its per-order status carried
// no error; ErrorDetail holds the venue's raw reason otherwise.
type OrderResult struct {
	OK          bool
	ErrorDetail string
	Fill        *Fill
}

type Fill struct {
	Size     decimal.Decimal
	AvgPrice decimal.Decimal
	OrderID  int64
}
