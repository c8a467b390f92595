package trading

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// Envelope is the single response contract of the core. Status is "error"
// only when the action produced no successful side effect.
type Envelope struct {
	Status          string            `json:"status"`
	Message         string            `json:"message"`
	Details         *OpenDetails      `json:"details,omitempty"`
	Filled          *FillDetails      `json:"filled,omitempty"`
	ClosedPositions *[]PositionReport `json:"closed_positions,omitempty"`
	FailedPositions *[]FailureReport  `json:"failed_positions,omitempty"`
}

type OpenDetails struct {
	Asset    string `json:"asset"`
	Side     string `json:"side"`
	Size     string `json:"size"`
	Leverage int    `json:"leverage"`
	USDValue string `json:"usd_value"`
}

type FillDetails struct {
	Size         string `json:"size"`
	AveragePrice string `json:"average_price"`
	OrderID      int64  `json:"order_id"`
}

type PositionReport struct {
	Asset string `json:"asset"`
	Size  string `json:"size"`
	Side  string `json:"side"`
}

type FailureReport struct {
	Asset string `json:"asset"`
	Size  string `json:"size"`
	Side  string `json:"side"`
	Error string `json:"error"`
}

// Response pairs the envelope with the HTTP status the transport should
// mirror: 200 for any outcome with a successful side effect, 400 otherwise.
type Response struct {
	StatusCode int
	Body       Envelope
}

// Dispatcher maps decoded signals onto manager operations and shapes every
// outcome, faults included, into a well-formed envelope. Nothing propagates
// past it.
type Dispatcher struct {
	manager        *Manager
	defaultPercent int
	log            *logrus.Entry
}

func NewDispatcher(manager *Manager, defaultPercent int) *Dispatcher {
	if defaultPercent <= 0 {
		defaultPercent = 5
	}
	return &Dispatcher{
		manager:        manager,
		defaultPercent: defaultPercent,
		log:            logrus.WithField("component", "dispatch"),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, sig Signal) Response {
	action := strings.ToLower(sig.Action)
	percent := d.defaultPercent
	if sig.AmountPercent != nil {
		percent = *sig.AmountPercent
	}

	d.log.Infof("processing action %q for %q with %d%% of balance", action, sig.Ticker, percent)

	switch action {
	case "long":
		return d.open(ctx, sig.Ticker, SideLong, percent)
	case "short":
		return d.open(ctx, sig.Ticker, SideShort, percent)
	case "close":
		return d.closeAll(ctx)
	default:
		return errorResponse(fmt.Sprintf("Unknown action: %s", sig.Action))
	}
}

func (d *Dispatcher) open(ctx context.Context, ticker string, side Side, percent int) Response {
	res, err := d.manager.Open(ctx, ticker, side, percent)
	if err != nil {
		return errorResponse(errorMessage("Failed to open position", err))
	}

	env := Envelope{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Successfully opened %s position for %s", side, res.Asset),
		Details: &OpenDetails{
			Asset:    res.Asset,
			Side:     string(res.Side),
			Size:     res.Size.String(),
			Leverage: res.Leverage,
			USDValue: res.USDValue.String(),
		},
	}
	if res.Fill != nil {
		env.Filled = &FillDetails{
			Size:         res.Fill.Size.String(),
			AveragePrice: res.Fill.AvgPrice.String(),
			OrderID:      res.Fill.OrderID,
		}
	}
	return Response{StatusCode: http.StatusOK, Body: env}
}

func (d *Dispatcher) closeAll(ctx context.Context) Response {
	res, err := d.manager.CloseAll(ctx)
	if err != nil {
		return errorResponse(errorMessage("Error closing all positions", err))
	}

	closed := make([]PositionReport, 0, len(res.Closed))
	for _, p := range res.Closed {
		closed = append(closed, PositionReport{Asset: p.Asset, Size: p.Size.String(), Side: string(p.Side)})
	}
	failed := make([]FailureReport, 0, len(res.Failed))
	for _, p := range res.Failed {
		failed = append(failed, FailureReport{Asset: p.Asset, Size: p.Size.String(), Side: string(p.Side), Error: p.Error})
	}

	env := Envelope{ClosedPositions: &closed, FailedPositions: &failed}
	switch {
	case len(closed) == 0 && len(failed) == 0:
		env.Status = StatusSuccess
		env.Message = "No open positions to close"
	case len(failed) == 0:
		env.Status = StatusSuccess
		env.Message = fmt.Sprintf("Closed %d positions", len(closed))
	case len(closed) == 0:
		env.Status = StatusError
		env.Message = fmt.Sprintf("Failed to close all %d positions", len(failed))
	default:
		env.Status = StatusPartial
		env.Message = fmt.Sprintf("Closed %d positions, %d failed", len(closed), len(failed))
	}

	code := http.StatusOK
	if env.Status == StatusError {
		code = http.StatusBadRequest
	}
	return Response{StatusCode: code, Body: env}
}

// errorMessage surfaces validation reasons verbatim (they are written for
// the caller) and prefixes everything else.
func errorMessage(prefix string, err error) string {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Reason
	}
	return fmt.Sprintf("%s: %v", prefix, err)
}

func errorResponse(message string) Response {
	return Response{
		StatusCode: http.StatusBadRequest,
		Body:       Envelope{Status: StatusError, Message: message},
	}
}
