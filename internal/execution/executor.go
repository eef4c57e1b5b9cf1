package execution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"gc_bot/internal/models"
)

// Executor исполняет рыночные ордера и возвращает факт исполнения.
type Executor interface {
	Buy(ctx context.Context, symbol string, qty, refPrice float64) (models.Fill, error)
	Sell(ctx context.Context, symbol string, qty, refPrice float64) (models.Fill, error)
}

// Costs — модель издержек в базисных пунктах.
type Costs struct {
	SlippageBps float64 `mapstructure:"slippage_bps" json:"slippage_bps" yaml:"slippage_bps"`
	TakerFeeBps float64 `mapstructure:"taker_fee_bps" json:"taker_fee_bps" yaml:"taker_fee_bps"`
}

func DefaultCosts() Costs {
	return Costs{SlippageBps: 5, TakerFeeBps: 15}
}

// FillPrice сдвигает цену против нас: покупка дороже, продажа дешевле.
func FillPrice(side models.Side, ref, slippageBps float64) float64 {
	slip := slippageBps / 10_000
	if side == models.SideBuy {
		return ref * (1 + slip)
	}
	return ref * (1 - slip)
}

func FeeFor(price, qty, feeBps float64) float64 {
	return price * qty * feeBps / 10_000
}

// Paper — бумажное исполнение: проскальзывание и комиссия по модели Costs.
type Paper struct {
	costs Costs
	now   func() time.Time
}

func NewPaper(costs Costs) *Paper {
	return &Paper{costs: costs, now: time.Now}
}

func (p *Paper) Buy(ctx context.Context, symbol string, qty, refPrice float64) (models.Fill, error) {
	return p.fill(symbol, models.SideBuy, qty, refPrice)
}

func (p *Paper) Sell(ctx context.Context, symbol string, qty, refPrice float64) (models.Fill, error) {
	return p.fill(symbol, models.SideSell, qty, refPrice)
}

func (p *Paper) fill(symbol string, side models.Side, qty, ref float64) (models.Fill, error) {
	if ref <= 0 {
		return models.Fill{}, errors.Errorf("paper %s: reference price must be > 0, got %v", side, ref)
	}
	if qty <= 0 {
		return models.Fill{}, errors.Errorf("paper %s: quantity must be > 0, got %v", side, qty)
	}
	price := FillPrice(side, ref, p.costs.SlippageBps)
	return models.Fill{
		OrderID:  "paper-" + uuid.NewString(),
		Symbol:   symbol,
		Side:     side,
		Mode:     models.ModePaper,
		Ts:       p.now().UTC(),
		Price:    price,
		Quantity: qty,
		Notional: price * qty,
		Fee:      FeeFor(price, qty, p.costs.TakerFeeBps),
	}, nil
}
