package trading

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"hyperhook/internal/exchange"
)

// DefaultSlippage is the fixed tolerance applied to every market-style
// order (1%).
const DefaultSlippage = 0.01

// Manager drives one trading action end to end against the venue. It keeps
// no state between calls; every operation re-reads the account, so balances
// and positions are never stale across a close-then-open sequence.
type Manager struct {
	venue exchange.Exchange
	sizer *Sizer
	log   *logrus.Entry
}

func NewManager(venue exchange.Exchange, sizer *Sizer) *Manager {
	return &Manager{
		venue: venue,
		sizer: sizer,
		log:   logrus.WithField("component", "trading"),
	}
}

// OpenResult describes a successfully opened position.
type OpenResult struct {
	Asset    string
	Side     Side
	Size     decimal.Decimal
	Leverage int
	USDValue decimal.Decimal
	Fill     *exchange.Fill
}

// CloseResult describes a single-asset close. Closed is false for the
// idempotent no-op case where nothing was open.
type CloseResult struct {
	Asset   string
	Closed  bool
	Size    decimal.Decimal
	Side    Side
	Message string
}

type ClosedPosition struct {
	Asset string
	Size  decimal.Decimal
	Side  Side
}

type FailedPosition struct {
	Asset string
	Size  decimal.Decimal
	Side  Side
	Error string
}

type CloseAllResult struct {
	Closed []ClosedPosition
	Failed []FailedPosition
}

// Open opens a long or short position sized as percent% of withdrawable
// margin at the asset's maximum leverage. An existing position in the
// opposite direction is closed first and sizing then uses the refreshed
// balance.
func (m *Manager) Open(ctx context.Context, asset string, side Side, percent int) (*OpenResult, error) {
	if percent < 1 || percent > 100 {
		return nil, validationErrorf("Percentage must be between 1 and 100, got %d", percent)
	}
	asset = strings.ToUpper(asset)

	meta, err := m.lookupAsset(ctx, asset)
	if err != nil {
		return nil, err
	}

	state, err := m.venue.AccountState(ctx)
	if err != nil {
		return nil, &ExchangeError{Op: "fetch account state", Err: err}
	}
	if !state.Withdrawable.IsPositive() {
		return nil, validationErrorf("Insufficient balance: no margin available for trading")
	}

	price, err := m.venue.MarketPrice(ctx, meta.Name)
	if err != nil {
		return nil, validationErrorf("Could not get current price for %s", meta.Name)
	}
	if !price.IsPositive() {
		return nil, validationErrorf("Invalid price (0 or negative) for %s", meta.Name)
	}

	// Push leverage to the asset maximum. The venue rejecting the update is
	// not fatal; sizing proceeds with the requested value either way.
	if err := m.venue.SetLeverage(ctx, meta.Name, meta.MaxLeverage); err != nil {
		m.log.Warnf("leverage update to %dx failed for %s: %v", meta.MaxLeverage, meta.Name, err)
	}

	withdrawable := state.Withdrawable
	if pos := state.Position(meta.Name); pos != nil && pos.IsLong() != side.IsBuy() {
		m.log.Infof("found existing %s position in opposite direction, closing it first", meta.Name)
		if _, err := m.CloseAsset(ctx, meta.Name); err != nil {
			return nil, err
		}
		// The close freed margin; sizing must use the refreshed balance.
		state, err = m.venue.AccountState(ctx)
		if err != nil {
			return nil, &ExchangeError{Op: "refresh account state", Err: err}
		}
		withdrawable = state.Withdrawable
	}

	size, err := m.sizer.ComputeSize(withdrawable, percent, meta.MaxLeverage, price, meta.Name)
	if err != nil {
		return nil, err
	}
	if !size.IsPositive() {
		return nil, validationErrorf("Calculated position size too small. Try increasing the percentage.")
	}

	m.log.Infof("placing %s order for %s %s at %dx", side, size, meta.Name, meta.MaxLeverage)
	res, err := m.venue.MarketOpen(ctx, meta.Name, side.IsBuy(), size, DefaultSlippage)
	if err != nil {
		return nil, &ExchangeError{Op: "submit market order", Err: err}
	}
	if !res.OK {
		return nil, &ExchangeError{Op: "open position", Detail: res.ErrorDetail}
	}

	return &OpenResult{
		Asset:    meta.Name,
		Side:     side,
		Size:     size,
		Leverage: meta.MaxLeverage,
		USDValue: size.Mul(price),
		Fill:     res.Fill,
	}, nil
}

// CloseAsset closes the open position for one asset. No open position is a
// success no-op.
func (m *Manager) CloseAsset(ctx context.Context, asset string) (*CloseResult, error) {
	asset = strings.ToUpper(asset)

	state, err := m.venue.AccountState(ctx)
	if err != nil {
		return nil, &ExchangeError{Op: "fetch account state", Err: err}
	}

	pos := state.Position(asset)
	if pos == nil {
		return &CloseResult{
			Asset:   asset,
			Message: fmt.Sprintf("No open position found for %s to close", asset),
		}, nil
	}

	res, err := m.venue.MarketClose(ctx, pos.Coin, DefaultSlippage)
	if err != nil {
		return nil, &ExchangeError{Op: fmt.Sprintf("close %s position", pos.Coin), Err: err}
	}
	if !res.OK {
		return nil, &ExchangeError{Op: fmt.Sprintf("close %s position", pos.Coin), Detail: res.ErrorDetail}
	}

	m.log.Infof("closed %s position", pos.Coin)
	return &CloseResult{
		Asset:   pos.Coin,
		Closed:  true,
		Size:    pos.Size.Abs(),
		Side:    positionSide(pos),
		Message: fmt.Sprintf("Successfully closed %s position", pos.Coin),
	}, nil
}

// CloseAll closes every open position. Individual failures do not stop the
// loop; the result itemizes both outcomes.
func (m *Manager) CloseAll(ctx context.Context) (*CloseAllResult, error) {
	state, err := m.venue.AccountState(ctx)
	if err != nil {
		return nil, &ExchangeError{Op: "fetch account state", Err: err}
	}

	out := &CloseAllResult{
		Closed: make([]ClosedPosition, 0, len(state.Positions)),
		Failed: make([]FailedPosition, 0),
	}
	if len(state.Positions) == 0 {
		return out, nil
	}

	m.log.Infof("closing %d positions", len(state.Positions))
	for _, pos := range state.Positions {
		side := positionSide(&pos)

		res, err := m.venue.MarketClose(ctx, pos.Coin, DefaultSlippage)
		switch {
		case err != nil:
			m.log.Errorf("failed to close %s position: %v", pos.Coin, err)
			out.Failed = append(out.Failed, FailedPosition{
				Asset: pos.Coin, Size: pos.Size.Abs(), Side: side, Error: err.Error(),
			})
		case !res.OK:
			m.log.Errorf("venue rejected close for %s: %s", pos.Coin, res.ErrorDetail)
			out.Failed = append(out.Failed, FailedPosition{
				Asset: pos.Coin, Size: pos.Size.Abs(), Side: side, Error: res.ErrorDetail,
			})
		default:
			m.log.Infof("closed %s position", pos.Coin)
			out.Closed = append(out.Closed, ClosedPosition{
				Asset: pos.Coin, Size: pos.Size.Abs(), Side: side,
			})
		}
	}
	return out, nil
}

func (m *Manager) lookupAsset(ctx context.Context, asset string) (*exchange.AssetMeta, error) {
	metas, err := m.venue.AssetMetadata(ctx)
	if err != nil {
		return nil, &ExchangeError{Op: "fetch asset metadata", Err: err}
	}
	for i := range metas {
		if strings.EqualFold(metas[i].Name, asset) {
			return &metas[i], nil
		}
	}
	return nil, validationErrorf("Asset %s not found", asset)
}

func positionSide(pos *exchange.Position) Side {
	if pos.IsLong() {
		return SideLong
	}
	return SideShort
}
