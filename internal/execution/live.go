package execution

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gc_bot/internal/fault"
	"gc_bot/internal/models"
)

// Venue — то, что нужно реальному исполнению от биржи.
type Venue interface {
	Instrument(ctx context.Context, symbol string) (models.Instrument, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side models.Side, qty decimal.Decimal) (models.OrderAck, error)
}

// SnapQuantity округляет количество вниз до шага lotSz. Если результат меньше minSz,
// возвращает ноль: вверх не округляем никогда.
func SnapQuantity(qty, lotSz, minSz float64) decimal.Decimal {
	q := decimal.NewFromFloat(qty)
	if lotSz > 0 {
		step := decimal.NewFromFloat(lotSz)
		q = q.Div(step).Floor().Mul(step)
	}
	if minSz > 0 && q.LessThan(decimal.NewFromFloat(minSz)) {
		return decimal.Zero
	}
	if !q.IsPositive() {
		return decimal.Zero
	}
	return q
}

// Live — исполнение на бирже с учётом ограничений инструмента.
type Live struct {
	venue Venue
	costs Costs
	log   *zap.Logger
	now   func() time.Time
}

func NewLive(venue Venue, costs Costs, log *zap.Logger) *Live {
	if log == nil {
		log = zap.NewNop()
	}
	return &Live{venue: venue, costs: costs, log: log.Named("live"), now: time.Now}
}

func (l *Live) Buy(ctx context.Context, symbol string, qty, refPrice float64) (models.Fill, error) {
	return l.submit(ctx, symbol, models.SideBuy, qty, refPrice)
}

func (l *Live) Sell(ctx context.Context, symbol string, qty, refPrice float64) (models.Fill, error) {
	return l.submit(ctx, symbol, models.SideSell, qty, refPrice)
}

func (l *Live) submit(ctx context.Context, symbol string, side models.Side, qty, ref float64) (models.Fill, error) {
	const op = "execution.Live"

	inst, err := l.venue.Instrument(ctx, symbol)
	if err != nil {
		return models.Fill{}, fault.Wrap(fault.DataUnavailable, op, errors.Wrapf(err, "instrument %s", symbol))
	}

	// 1) подгоняем количество под lotSz/minSz, ниже минимума не отправляем
	snapped := SnapQuantity(qty, inst.LotSz, inst.MinSz)
	if !snapped.IsPositive() {
		return models.Fill{}, fault.Newf(fault.OrderRejected, op,
			"%s %s qty %.10f below venue minimum (lotSz=%g minSz=%g)", side, symbol, qty, inst.LotSz, inst.MinSz)
	}

	// 2) рыночный ордер
	ack, err := l.venue.PlaceMarketOrder(ctx, symbol, side, snapped)
	if err != nil {
		return models.Fill{}, errors.Wrapf(err, "%s %s %s", op, side, symbol)
	}

	// 3) факт исполнения; чего биржа не прислала, досчитываем по модели
	filled, _ := snapped.Float64()
	if ack.FilledQty > 0 {
		filled = ack.FilledQty
	}
	price := ack.AvgPrice
	if price <= 0 {
		price = ref
	}
	fee := math.Abs(ack.Fee)
	if fee == 0 {
		fee = FeeFor(price, filled, l.costs.TakerFeeBps)
	}

	l.log.Info("order filled",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("order_id", ack.OrderID),
		zap.Float64("price", price),
		zap.Float64("qty", filled),
		zap.Float64("fee", fee),
	)

	return models.Fill{
		OrderID:  ack.OrderID,
		Symbol:   symbol,
		Side:     side,
		Mode:     models.ModeReal,
		Ts:       l.now().UTC(),
		Price:    price,
		Quantity: filled,
		Notional: price * filled,
		Fee:      fee,
	}, nil
}
