package exchange

import (
	"context"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gc_bot/internal/fault"
	"gc_bot/internal/models"
)

const (
	pathInstruments = "/api/v5/public/instruments"
	pathOrder       = "/api/v5/trade/order"

	orderPollAttempts = 5
	orderPollInterval = 300 * time.Millisecond
)

type instrumentDTO struct {
	InstID string `json:"instId"`
	LotSz  string `json:"lotSz"`
	MinSz  string `json:"minSz"`
	TickSz string `json:"tickSz"`
	State  string `json:"state"`
}

// Instrument — ограничения спотового инструмента (шаг лота, минимум, тик).
func (c *Client) Instrument(ctx context.Context, symbol string) (models.Instrument, error) {
	q := url.Values{}
	q.Set("instType", "SPOT")
	q.Set("instId", symbol)

	var data []instrumentDTO
	if err := c.get(ctx, pathInstruments+"?"+q.Encode(), false, &data); err != nil {
		return models.Instrument{}, errors.Wrapf(err, "instrument %s", symbol)
	}
	if len(data) == 0 {
		return models.Instrument{}, errors.Errorf("instrument %s not found", symbol)
	}
	inst := data[0]
	if inst.State != "" && inst.State != "live" {
		return models.Instrument{}, errors.Errorf("instrument %s not live: state=%s", symbol, inst.State)
	}

	parsePos := func(name, s string) (float64, error) {
		if s == "" {
			return 0, errors.Errorf("%s empty", name)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return 0, errors.Errorf("%s parse: %v (%q)", name, err, s)
		}
		return v, nil
	}

	lotSz, err := parsePos("lotSz", inst.LotSz)
	if err != nil {
		return models.Instrument{}, err
	}
	minSz, err := parsePos("minSz", inst.MinSz)
	if err != nil {
		return models.Instrument{}, err
	}
	tickSz, err := parsePos("tickSz", inst.TickSz)
	if err != nil {
		return models.Instrument{}, err
	}
	return models.Instrument{InstID: inst.InstID, LotSz: lotSz, MinSz: minSz, TickSz: tickSz, State: inst.State}, nil
}

type orderAckDTO struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

type orderDTO struct {
	OrdID     string `json:"ordId"`
	State     string `json:"state"`
	AvgPx     string `json:"avgPx"`
	AccFillSz string `json:"accFillSz"`
	Fee       string `json:"fee"`
	FeeCcy    string `json:"feeCcy"`
}

// PlaceMarketOrder отправляет спотовый рыночный ордер на qty базовой валюты
// и дожидается данных об исполнении (средняя цена, объём, комиссия).
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side models.Side, qty decimal.Decimal) (models.OrderAck, error) {
	const op = "exchange.PlaceMarketOrder"

	if !c.HasCredentials() {
		return models.OrderAck{}, fault.New(fault.ExternalServiceFailure, op, "api credentials are not configured")
	}
	if !qty.IsPositive() {
		return models.OrderAck{}, fault.Newf(fault.OrderRejected, op, "qty must be > 0, got %s", qty)
	}

	clOrdID := "gc" + strings.ReplaceAll(uuid.NewString(), "-", "")[:30]
	body := map[string]string{
		"instId":  symbol,
		"tdMode":  "cash",
		"side":    string(side),
		"ordType": "market",
		"sz":      qty.String(),
		"tgtCcy":  "base_ccy",
		"clOrdId": clOrdID,
	}

	// 1) отправка
	var acks []orderAckDTO
	err := c.post(ctx, pathOrder, body, &acks)
	if len(acks) > 0 && acks[0].SCode != "" && acks[0].SCode != "0" {
		return models.OrderAck{}, fault.Newf(fault.OrderRejected, op,
			"%s %s %s rejected: sCode=%s sMsg=%s", side, qty, symbol, acks[0].SCode, acks[0].SMsg)
	}
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			return models.OrderAck{}, fault.Wrap(fault.OrderRejected, op, err)
		}
		return models.OrderAck{}, fault.Wrap(fault.ExternalServiceFailure, op, err)
	}
	if len(acks) == 0 || acks[0].OrdID == "" {
		return models.OrderAck{}, fault.New(fault.ExternalServiceFailure, op, "empty ordId in order ack")
	}
	ordID := acks[0].OrdID
	c.log.Info("[OKX] order placed",
		zap.String("symbol", symbol), zap.String("side", string(side)), zap.String("qty", qty.String()),
		zap.String("ordId", ordID))

	// 2) детали исполнения: рыночный ордер обычно filled сразу, но не всегда в том же ответе
	ack := models.OrderAck{OrderID: ordID}
	for attempt := 1; attempt <= orderPollAttempts; attempt++ {
		od, err := c.order(ctx, symbol, ordID)
		if err != nil {
			c.log.Warn("[OKX] order details failed", zap.String("ordId", ordID), zap.Error(err))
		} else {
			ack = od.toAck(symbol)
			if od.State == "filled" {
				return ack, nil
			}
		}
		t := time.NewTimer(orderPollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ack, nil
		case <-t.C:
		}
	}
	// ордер принят; неполные детали добьёт вызывающий (референсная цена, модельная комиссия)
	return ack, nil
}

func (c *Client) order(ctx context.Context, symbol, ordID string) (orderDTO, error) {
	q := url.Values{}
	q.Set("instId", symbol)
	q.Set("ordId", ordID)
	var data []orderDTO
	if err := c.get(ctx, pathOrder+"?"+q.Encode(), true, &data); err != nil {
		return orderDTO{}, err
	}
	if len(data) == 0 {
		return orderDTO{}, errors.Errorf("order %s not found", ordID)
	}
	return data[0], nil
}

// toAck переводит комиссию в валюту котировки: при покупке OKX списывает её в базовой.
func (o orderDTO) toAck(symbol string) models.OrderAck {
	avg, _ := strconv.ParseFloat(o.AvgPx, 64)
	filled, _ := strconv.ParseFloat(o.AccFillSz, 64)
	fee, _ := strconv.ParseFloat(o.Fee, 64)
	fee = math.Abs(fee)

	base := symbol
	if i := strings.IndexByte(symbol, '-'); i > 0 {
		base = symbol[:i]
	}
	if o.FeeCcy != "" && strings.EqualFold(o.FeeCcy, base) {
		fee *= avg
	}
	return models.OrderAck{OrderID: o.OrdID, AvgPrice: avg, FilledQty: filled, Fee: fee}
}
