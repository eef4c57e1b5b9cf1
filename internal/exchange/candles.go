package exchange

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gc_bot/internal/fault"
	"gc_bot/internal/helper"
	"gc_bot/internal/models"
)

const (
	pathCandles        = "/api/v5/market/candles"
	pathHistoryCandles = "/api/v5/market/history-candles"
	maxRangePages      = 2000
)

// FetchLatest отдаёт последние limit закрытых свечей по возрастанию времени.
// Ts свечи — время закрытия. Незакрытая текущая свеча отбрасывается.
func (c *Client) FetchLatest(ctx context.Context, symbol, timeframe string, limit int) ([]models.Bar, error) {
	const op = "exchange.FetchLatest"

	period, bar, err := barParams(timeframe)
	if err != nil {
		return nil, fault.Wrap(fault.DataUnavailable, op, err)
	}
	if limit <= 0 {
		return nil, fault.Newf(fault.DataUnavailable, op, "limit must be > 0, got %d", limit)
	}
	cutoff := helper.FloorToPeriod(c.now().UTC(), period)

	// 1) свежая страница из candles, дальше листаем назад через after
	path := pathCandles
	collected := map[int64]models.Bar{}
	var after int64
	for page := 0; len(collected) < limit && page < maxRangePages; page++ {
		q := url.Values{}
		q.Set("instId", symbol)
		q.Set("bar", bar)
		q.Set("limit", strconv.Itoa(c.cfg.PageLimit))
		if after > 0 {
			q.Set("after", strconv.FormatInt(after, 10))
		}

		rows, err := c.candlePage(ctx, path, q)
		if err != nil {
			return nil, fault.Wrap(fault.DataUnavailable, op, errors.Wrapf(err, "%s %s", symbol, bar))
		}
		if len(rows) == 0 {
			break
		}
		oldest := int64(0)
		for _, r := range rows {
			if oldest == 0 || r.openMs < oldest {
				oldest = r.openMs
			}
			if !r.confirmed {
				continue
			}
			b := r.bar(period)
			if b.Ts.After(cutoff) {
				continue
			}
			collected[r.openMs] = b
		}
		after = oldest
		path = pathHistoryCandles // candles отдаёт только недавние данные
	}

	bars := sortedBars(collected)
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	if len(bars) == 0 {
		return nil, fault.Newf(fault.DataUnavailable, op, "no closed candles for %s %s", symbol, bar)
	}
	c.log.Debug("[OKX] candles fetched",
		zap.String("symbol", symbol), zap.String("bar", bar), zap.Int("rows", len(bars)),
		zap.Time("last", bars[len(bars)-1].Ts))
	return bars, nil
}

// FetchRange скачивает закрытые свечи с временем закрытия в [start, end],
// листая history-candles от конца к началу.
func (c *Client) FetchRange(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]models.Bar, error) {
	const op = "exchange.FetchRange"

	period, bar, err := barParams(timeframe)
	if err != nil {
		return nil, fault.Wrap(fault.DataUnavailable, op, err)
	}
	if !end.After(start) {
		return nil, fault.Newf(fault.DataUnavailable, op, "empty range %s..%s", start, end)
	}
	if cutoff := helper.FloorToPeriod(c.now().UTC(), period); end.After(cutoff) {
		end = cutoff
	}

	collected := map[int64]models.Bar{}
	// after — исключающая граница по времени открытия
	after := end.Add(-period).UnixMilli() + 1
	for page := 0; page < maxRangePages; page++ {
		q := url.Values{}
		q.Set("instId", symbol)
		q.Set("bar", bar)
		q.Set("limit", strconv.Itoa(c.cfg.PageLimit))
		q.Set("after", strconv.FormatInt(after, 10))

		rows, err := c.candlePage(ctx, pathHistoryCandles, q)
		if err != nil {
			return nil, fault.Wrap(fault.DataUnavailable, op, errors.Wrapf(err, "%s %s page %d", symbol, bar, page))
		}
		if len(rows) == 0 {
			break
		}
		oldest := after
		for _, r := range rows {
			if r.openMs < oldest {
				oldest = r.openMs
			}
			if !r.confirmed {
				continue
			}
			b := r.bar(period)
			if b.Ts.Before(start) || b.Ts.After(end) {
				continue
			}
			collected[r.openMs] = b
		}
		if oldest >= after {
			break // биржа не сдвинула курсор
		}
		after = oldest
		if time.UnixMilli(oldest).Add(period).Before(start) {
			break
		}
		c.log.Debug("[OKX] backfill page", zap.Int("page", page), zap.Int("rows", len(collected)))
	}
	return sortedBars(collected), nil
}

type candleRow struct {
	openMs    int64
	open      float64
	high      float64
	low       float64
	close     float64
	volume    float64
	confirmed bool
}

func (r candleRow) bar(period time.Duration) models.Bar {
	return models.Bar{
		Ts:     time.UnixMilli(r.openMs).UTC().Add(period),
		Open:   r.open,
		High:   r.high,
		Low:    r.low,
		Close:  r.close,
		Volume: r.volume,
	}
}

// candlePage: строки вида [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm], новые первыми.
func (c *Client) candlePage(ctx context.Context, path string, q url.Values) ([]candleRow, error) {
	var raw [][]string
	if err := c.get(ctx, path+"?"+q.Encode(), false, &raw); err != nil {
		return nil, err
	}
	rows := make([]candleRow, 0, len(raw))
	for i, rec := range raw {
		if len(rec) < 6 {
			return nil, errors.Errorf("candle row %d: %d fields", i, len(rec))
		}
		ts, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "candle row %d ts", i)
		}
		r := candleRow{openMs: ts, confirmed: true}
		nums := []*float64{&r.open, &r.high, &r.low, &r.close, &r.volume}
		for k, dst := range nums {
			if *dst, err = strconv.ParseFloat(rec[1+k], 64); err != nil {
				return nil, errors.Wrapf(err, "candle row %d field %d", i, 1+k)
			}
		}
		if len(rec) >= 9 {
			r.confirmed = rec[8] == "1"
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func barParams(timeframe string) (time.Duration, string, error) {
	period, err := helper.TimeframeDuration(timeframe)
	if err != nil {
		return 0, "", err
	}
	bar, err := helper.OKXBar(timeframe)
	if err != nil {
		return 0, "", err
	}
	return period, bar, nil
}

func sortedBars(m map[int64]models.Bar) []models.Bar {
	out := make([]models.Bar, 0, len(m))
	for _, b := range m {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ts.Before(out[j].Ts) })
	return out
}
