package hyperliquid

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sonirico/go-hyperliquid"

	"hyperhook/internal/config"
	"hyperhook/internal/exchange"
)

// Perp prices accept at most 6-szDecimals decimal places.
const maxPriceDecimals = 6

type Client struct {
	cfg      config.HyperliquidConfig
	info     *hyperliquid.Info
	exchange *hyperliquid.Exchange
	address  string
	log      *logrus.Entry
}

func NewClient(cfg config.HyperliquidConfig) (*Client, error) {
	ctx := context.Background()

	// NewInfo(ctx, baseURL, skipWS, meta, spotMeta, opts...)
	info := hyperliquid.NewInfo(ctx, cfg.BaseURL, true, nil, nil)

	meta, err := info.Meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch meta: %w", err)
	}

	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("hyperliquid private key not configured")
	}
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	// Derive address if not provided
	address := cfg.WalletAddress
	if address == "" {
		address = crypto.PubkeyToAddress(pk.PublicKey).Hex()
	}

	// NewExchange(ctx, pk, baseURL, meta, vaultAddress, accountAddress, spotMeta, opts...)
	exc := hyperliquid.NewExchange(ctx, pk, cfg.BaseURL, meta, "", address, nil)

	return &Client{
		cfg:      cfg,
		info:     info,
		exchange: exc,
		address:  address,
		log:      logrus.WithField("component", "hyperliquid"),
	}, nil
}

var _ exchange.Exchange = (*Client)(nil)

// Address is the wallet the client trades for.
func (c *Client) Address() string { return c.address }

func (c *Client) AccountState(ctx context.Context) (*exchange.AccountState, error) {
	state, err := c.info.UserState(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("user state: %w", err)
	}

	withdrawable, err := decimal.NewFromString(state.Withdrawable)
	if err != nil {
		return nil, fmt.Errorf("parse withdrawable %q: %w", state.Withdrawable, err)
	}

	out := &exchange.AccountState{Address: c.address, Withdrawable: withdrawable}
	for _, ap := range state.AssetPositions {
		pos := ap.Position
		if pos.Coin == "" || pos.Szi == "" {
			continue
		}
		szi, err := decimal.NewFromString(pos.Szi)
		if err != nil {
			c.log.Warnf("skipping %s position with unparseable size %q", pos.Coin, pos.Szi)
			continue
		}
		if szi.IsZero() {
			continue
		}
		out.Positions = append(out.Positions, exchange.Position{
			Coin:       pos.Coin,
			Size:       szi,
			EntryPrice: optionalDecimal(pos.EntryPx),
		})
	}
	return out, nil
}

// optionalDecimal parses a field the venue may omit; zero when absent or
// malformed.
func optionalDecimal(s *string) decimal.Decimal {
	if s == nil {
		return decimal.Decimal{}
	}
	d, _ := decimal.NewFromString(*s)
	return d
}

func (c *Client) AssetMetadata(ctx context.Context) ([]exchange.AssetMeta, error) {
	meta, err := c.info.Meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch meta: %w", err)
	}

	out := make([]exchange.AssetMeta, 0, len(meta.Universe))
	for _, asset := range meta.Universe {
		out = append(out, exchange.AssetMeta{
			Name:        asset.Name,
			MaxLeverage: asset.MaxLeverage,
			SzDecimals:  asset.SzDecimals,
		})
	}
	return out, nil
}

func (c *Client) MarketPrice(ctx context.Context, coin string) (decimal.Decimal, error) {
	state, err := c.info.MetaAndAssetCtxs(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("asset contexts: %w", err)
	}

	idx := -1
	for i, asset := range state.Universe {
		if asset.Name == coin {
			idx = i
			break
		}
	}
	if idx == -1 {
		// Fall back to a case-insensitive match.
		for i, asset := range state.Universe {
			if strings.EqualFold(asset.Name, coin) {
				idx = i
				break
			}
		}
	}
	if idx == -1 || idx >= len(state.Ctxs) {
		return decimal.Zero, fmt.Errorf("no market price for %s", coin)
	}

	px, err := decimal.NewFromString(state.Ctxs[idx].MidPx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse mid price %q for %s: %w", state.Ctxs[idx].MidPx, coin, err)
	}
	return px, nil
}

func (c *Client) SetLeverage(ctx context.Context, coin string, leverage int) error {
	if _, err := c.exchange.UpdateLeverage(ctx, leverage, coin, true); err != nil {
		return fmt.Errorf("update leverage: %w", err)
	}
	return nil
}

func (c *Client) MarketOpen(ctx context.Context, coin string, isBuy bool, size decimal.Decimal, slippage float64) (*exchange.OrderResult, error) {
	px, err := c.aggressivePrice(ctx, coin, isBuy, slippage)
	if err != nil {
		return nil, err
	}
	return c.submitIOC(ctx, coin, isBuy, size.InexactFloat64(), px, false)
}

func (c *Client) MarketClose(ctx context.Context, coin string, slippage float64) (*exchange.OrderResult, error) {
	state, err := c.AccountState(ctx)
	if err != nil {
		return nil, err
	}
	pos := state.Position(coin)
	if pos == nil {
		// Not a transport fault; report it the way the venue reports a
		// rejected order.
		return &exchange.OrderResult{ErrorDetail: fmt.Sprintf("no open position for %s", coin)}, nil
	}

	isBuy := !pos.IsLong()
	px, err := c.aggressivePrice(ctx, pos.Coin, isBuy, slippage)
	if err != nil {
		return nil, err
	}
	return c.submitIOC(ctx, pos.Coin, isBuy, pos.Size.Abs().InexactFloat64(), px, true)
}

// aggressivePrice is the IOC limit price for a market-style order: the mid
// shifted by the slippage tolerance, rounded to 5 significant figures and
// the asset's decimal cap, which is what the venue accepts for perps.
func (c *Client) aggressivePrice(ctx context.Context, coin string, isBuy bool, slippage float64) (float64, error) {
	mid, err := c.MarketPrice(ctx, coin)
	if err != nil {
		return 0, err
	}
	szDecimals, err := c.szDecimals(ctx, coin)
	if err != nil {
		return 0, err
	}

	return slippagePrice(mid.InexactFloat64(), isBuy, slippage, szDecimals), nil
}

// slippagePrice shifts mid by the slippage tolerance, then rounds to 5
// significant figures and the asset's decimal cap.
func slippagePrice(mid float64, isBuy bool, slippage float64, szDecimals int) float64 {
	px := mid
	if isBuy {
		px *= 1 + slippage
	} else {
		px *= 1 - slippage
	}

	px, _ = strconv.ParseFloat(strconv.FormatFloat(px, 'g', 5, 64), 64)
	return decimal.NewFromFloat(px).Round(int32(maxPriceDecimals - szDecimals)).InexactFloat64()
}

func (c *Client) szDecimals(ctx context.Context, coin string) (int, error) {
	metas, err := c.AssetMetadata(ctx)
	if err != nil {
		return 0, err
	}
	for _, m := range metas {
		if strings.EqualFold(m.Name, coin) {
			return m.SzDecimals, nil
		}
	}
	return 0, fmt.Errorf("asset %s not in universe", coin)
}

func (c *Client) submitIOC(ctx context.Context, coin string, isBuy bool, size, price float64, reduceOnly bool) (*exchange.OrderResult, error) {
	req := hyperliquid.CreateOrderRequest{
		Coin:  coin,
		IsBuy: isBuy,
		Size:  size,
		Price: price,
		OrderType: hyperliquid.OrderType{
			Limit: &hyperliquid.LimitOrderType{Tif: hyperliquid.TifIoc},
		},
		ReduceOnly: reduceOnly,
	}

	// Pass nil for builder info
	res, err := c.exchange.Order(ctx, req, nil)
	if err != nil {
		return nil, fmt.Errorf("order submit: %w", err)
	}

	if res.Error != nil {
		c.log.Errorf("order rejected for %s: %s", coin, *res.Error)
		return &exchange.OrderResult{ErrorDetail: *res.Error}, nil
	}

	// IOC orders never rest; the only interesting outcome is the fill.
	out := &exchange.OrderResult{OK: true}
	if res.Filled != nil {
		fill := &exchange.Fill{OrderID: int64(res.Filled.Oid)}
		if sz, err := decimal.NewFromString(res.Filled.TotalSz); err == nil {
			fill.Size = sz
		}
		if avg, err := decimal.NewFromString(res.Filled.AvgPx); err == nil {
			fill.AvgPrice = avg
		}
		out.Fill = fill
	}
	return out, nil
}
