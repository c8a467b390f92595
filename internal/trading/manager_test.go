package trading

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"hyperhook/internal/exchange"
)

// fakeVenue is a scripted exchange.Exchange. MarketClose removes the
// position and, when postCloseBalance is set, swaps the withdrawable
// balance so refresh behavior is observable.
type fakeVenue struct {
	withdrawable     decimal.Decimal
	postCloseBalance decimal.Decimal
	positions        []exchange.Position
	metas            []exchange.AssetMeta
	prices           map[string]decimal.Decimal

	stateErr    error
	leverageErr error
	openResult  *exchange.OrderResult
	openErr     error
	closeResult map[string]*exchange.OrderResult
	closeErr    map[string]error

	calls       []string
	openSizes   []decimal.Decimal
	openIsBuy   []bool
	leverageSet []int
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		prices:      make(map[string]decimal.Decimal),
		closeResult: make(map[string]*exchange.OrderResult),
		closeErr:    make(map[string]error),
	}
}

func (f *fakeVenue) AccountState(ctx context.Context) (*exchange.AccountState, error) {
	f.calls = append(f.calls, "state")
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	return &exchange.AccountState{
		Withdrawable: f.withdrawable,
		Positions:    append([]exchange.Position(nil), f.positions...),
	}, nil
}

func (f *fakeVenue) AssetMetadata(ctx context.Context) ([]exchange.AssetMeta, error) {
	f.calls = append(f.calls, "meta")
	return f.metas, nil
}

func (f *fakeVenue) MarketPrice(ctx context.Context, coin string) (decimal.Decimal, error) {
	f.calls = append(f.calls, "price")
	if px, ok := f.prices[coin]; ok {
		return px, nil
	}
	for name, px := range f.prices {
		if strings.EqualFold(name, coin) {
			return px, nil
		}
	}
	return decimal.Zero, errors.New("no market price")
}

func (f *fakeVenue) SetLeverage(ctx context.Context, coin string, leverage int) error {
	f.calls = append(f.calls, "leverage")
	f.leverageSet = append(f.leverageSet, leverage)
	return f.leverageErr
}

func (f *fakeVenue) MarketOpen(ctx context.Context, coin string, isBuy bool, size decimal.Decimal, slippage float64) (*exchange.OrderResult, error) {
	f.calls = append(f.calls, "open")
	f.openSizes = append(f.openSizes, size)
	f.openIsBuy = append(f.openIsBuy, isBuy)
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.openResult != nil {
		return f.openResult, nil
	}
	return &exchange.OrderResult{OK: true}, nil
}

func (f *fakeVenue) MarketClose(ctx context.Context, coin string, slippage float64) (*exchange.OrderResult, error) {
	f.calls = append(f.calls, "close:"+coin)
	if err, ok := f.closeErr[coin]; ok {
		return nil, err
	}
	if res, ok := f.closeResult[coin]; ok {
		return res, nil
	}
	kept := f.positions[:0]
	for _, p := range f.positions {
		if !strings.EqualFold(p.Coin, coin) {
			kept = append(kept, p)
		}
	}
	f.positions = kept
	if !f.postCloseBalance.IsZero() {
		f.withdrawable = f.postCloseBalance
	}
	return &exchange.OrderResult{OK: true}, nil
}

func countCalls(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name || strings.HasPrefix(c, name+":") {
			n++
		}
	}
	return n
}

func btcVenue() *fakeVenue {
	f := newFakeVenue()
	f.metas = []exchange.AssetMeta{{Name: "BTC", MaxLeverage: 20, SzDecimals: 5}}
	f.prices["BTC"] = decimal.NewFromInt(50000)
	f.withdrawable = decimal.NewFromInt(1000)
	return f
}

func newTestManager(f *fakeVenue) *Manager {
	return NewManager(f, NewSizer([]string{"XRP", "DOGE", "SHIB", "FARTCOIN"}))
}

func TestOpenLong(t *testing.T) {
	f := btcVenue()
	m := newTestManager(f)

	res, err := m.Open(context.Background(), "btc", SideLong, 10)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if res.Asset != "BTC" {
		t.Fatalf("asset got=%s want=BTC", res.Asset)
	}
	if res.Leverage != 20 {
		t.Fatalf("leverage got=%d want=20", res.Leverage)
	}
	if !res.Size.Equal(decimal.RequireFromString("0.04")) {
		t.Fatalf("size got=%s want=0.04", res.Size)
	}
	if !res.USDValue.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("usd value got=%s want=2000", res.USDValue)
	}
	if len(f.leverageSet) != 1 || f.leverageSet[0] != 20 {
		t.Fatalf("leverage set calls: %v", f.leverageSet)
	}
	if len(f.openIsBuy) != 1 || !f.openIsBuy[0] {
		t.Fatalf("expected a single buy order, got %v", f.openIsBuy)
	}
	if countCalls(f.calls, "close") != 0 {
		t.Fatalf("unexpected close calls: %v", f.calls)
	}
}

func TestOpenFlipsOppositePosition(t *testing.T) {
	f := btcVenue()
	f.withdrawable = decimal.NewFromInt(500)
	f.postCloseBalance = decimal.NewFromInt(1000)
	f.positions = []exchange.Position{{Coin: "BTC", Size: decimal.RequireFromString("-0.5")}}
	m := newTestManager(f)

	res, err := m.Open(context.Background(), "BTC", SideLong, 10)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}

	if countCalls(f.calls, "close") != 1 {
		t.Fatalf("expected exactly one close, calls: %v", f.calls)
	}
	closeIdx, openIdx := -1, -1
	for i, c := range f.calls {
		if strings.HasPrefix(c, "close:") {
			closeIdx = i
		}
		if c == "open" {
			openIdx = i
		}
	}
	if closeIdx == -1 || openIdx == -1 || closeIdx > openIdx {
		t.Fatalf("close must happen before open, calls: %v", f.calls)
	}

	// Size must come from the post-close balance (1000), not the stale 500.
	if !res.Size.Equal(decimal.RequireFromString("0.04")) {
		t.Fatalf("size got=%s want=0.04 (refreshed balance)", res.Size)
	}
}

func TestOpenSameDirectionDoesNotFlip(t *testing.T) {
	f := btcVenue()
	f.positions = []exchange.Position{{Coin: "BTC", Size: decimal.RequireFromString("0.5")}}
	m := newTestManager(f)

	if _, err := m.Open(context.Background(), "BTC", SideLong, 10); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if countCalls(f.calls, "close") != 0 {
		t.Fatalf("unexpected close calls: %v", f.calls)
	}
}

func TestOpenUnknownAsset(t *testing.T) {
	f := btcVenue()
	m := newTestManager(f)

	_, err := m.Open(context.Background(), "XYZ", SideLong, 10)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(vErr.Reason, "not found") {
		t.Fatalf("unexpected reason: %s", vErr.Reason)
	}
	if countCalls(f.calls, "open") != 0 {
		t.Fatalf("nothing should have been submitted: %v", f.calls)
	}
}

func TestOpenInsufficientBalance(t *testing.T) {
	f := btcVenue()
	f.withdrawable = decimal.Zero
	m := newTestManager(f)

	_, err := m.Open(context.Background(), "BTC", SideLong, 10)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if countCalls(f.calls, "open") != 0 {
		t.Fatalf("nothing should have been submitted: %v", f.calls)
	}
}

func TestOpenNonPositivePrice(t *testing.T) {
	f := btcVenue()
	f.prices["BTC"] = decimal.Zero
	m := newTestManager(f)

	_, err := m.Open(context.Background(), "BTC", SideShort, 10)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if countCalls(f.calls, "open") != 0 {
		t.Fatalf("nothing should have been submitted: %v", f.calls)
	}
}

func TestOpenPercentOutOfRange(t *testing.T) {
	m := newTestManager(btcVenue())

	for _, percent := range []int{0, -3, 101} {
		_, err := m.Open(context.Background(), "BTC", SideLong, percent)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("percent=%d: expected ValidationError, got %v", percent, err)
		}
	}
}

func TestOpenLeverageFailureIsNotFatal(t *testing.T) {
	f := btcVenue()
	f.leverageErr = errors.New("venue rejected leverage update")
	m := newTestManager(f)

	res, err := m.Open(context.Background(), "BTC", SideLong, 10)
	if err != nil {
		t.Fatalf("Open should survive a leverage failure, got %v", err)
	}
	if res.Leverage != 20 {
		t.Fatalf("sizing must still use max leverage, got %d", res.Leverage)
	}
	if countCalls(f.calls, "open") != 1 {
		t.Fatalf("order should have been submitted: %v", f.calls)
	}
}

func TestOpenVenueRejectsOrder(t *testing.T) {
	f := btcVenue()
	f.openResult = &exchange.OrderResult{ErrorDetail: "Order must have minimum value of $10"}
	m := newTestManager(f)

	_, err := m.Open(context.Background(), "BTC", SideLong, 10)
	var xErr *ExchangeError
	if !errors.As(err, &xErr) {
		t.Fatalf("expected ExchangeError, got %v", err)
	}
	if !strings.Contains(xErr.Detail, "minimum value") {
		t.Fatalf("venue detail must be preserved, got %q", xErr.Detail)
	}
}

func TestOpenAbortsWhenFlipCloseFails(t *testing.T) {
	f := btcVenue()
	f.positions = []exchange.Position{{Coin: "BTC", Size: decimal.RequireFromString("-0.5")}}
	f.closeErr["BTC"] = errors.New("close rejected")
	m := newTestManager(f)

	_, err := m.Open(context.Background(), "BTC", SideLong, 10)
	var xErr *ExchangeError
	if !errors.As(err, &xErr) {
		t.Fatalf("expected ExchangeError, got %v", err)
	}
	if countCalls(f.calls, "open") != 0 {
		t.Fatalf("open must not run after a failed flip close: %v", f.calls)
	}
}

func TestCloseAssetNoPosition(t *testing.T) {
	f := btcVenue()
	m := newTestManager(f)

	res, err := m.CloseAsset(context.Background(), "btc")
	if err != nil {
		t.Fatalf("CloseAsset error: %v", err)
	}
	if res.Closed {
		t.Fatal("nothing was open, Closed must be false")
	}
	if !strings.Contains(res.Message, "No open position") {
		t.Fatalf("unexpected message: %s", res.Message)
	}
	if countCalls(f.calls, "close") != 0 {
		t.Fatalf("no order should have been submitted: %v", f.calls)
	}
}

func TestCloseAsset(t *testing.T) {
	f := btcVenue()
	f.positions = []exchange.Position{{Coin: "BTC", Size: decimal.RequireFromString("-0.25")}}
	m := newTestManager(f)

	res, err := m.CloseAsset(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("CloseAsset error: %v", err)
	}
	if !res.Closed {
		t.Fatal("expected Closed=true")
	}
	if res.Side != SideShort {
		t.Fatalf("side got=%s want=short", res.Side)
	}
	if !res.Size.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("size got=%s want=0.25", res.Size)
	}
}

func TestCloseAllNoPositions(t *testing.T) {
	f := btcVenue()
	m := newTestManager(f)

	res, err := m.CloseAll(context.Background())
	if err != nil {
		t.Fatalf("CloseAll error: %v", err)
	}
	if len(res.Closed) != 0 || len(res.Failed) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if countCalls(f.calls, "close") != 0 {
		t.Fatalf("no orders should have been submitted: %v", f.calls)
	}
}

func TestCloseAllPartialFailure(t *testing.T) {
	f := btcVenue()
	f.positions = []exchange.Position{
		{Coin: "ETH", Size: decimal.NewFromInt(1)},
		{Coin: "BTC", Size: decimal.NewFromInt(-2)},
		{Coin: "SOL", Size: decimal.NewFromInt(3)},
	}
	f.closeResult["BTC"] = &exchange.OrderResult{ErrorDetail: "insufficient liquidity"}
	m := newTestManager(f)

	res, err := m.CloseAll(context.Background())
	if err != nil {
		t.Fatalf("CloseAll error: %v", err)
	}
	if len(res.Closed) != 2 {
		t.Fatalf("closed got=%d want=2 (%+v)", len(res.Closed), res.Closed)
	}
	if len(res.Failed) != 1 {
		t.Fatalf("failed got=%d want=1 (%+v)", len(res.Failed), res.Failed)
	}
	if res.Failed[0].Asset != "BTC" || res.Failed[0].Side != SideShort {
		t.Fatalf("unexpected failed entry: %+v", res.Failed[0])
	}
	if res.Failed[0].Error != "insufficient liquidity" {
		t.Fatalf("raw venue detail must be preserved, got %q", res.Failed[0].Error)
	}
	if countCalls(f.calls, "close") != 3 {
		t.Fatalf("every position must be attempted: %v", f.calls)
	}
}
