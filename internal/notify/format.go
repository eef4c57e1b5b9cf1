package notify

import (
	"fmt"
	"time"

	"gc_bot/internal/metrics"
	"gc_bot/internal/models"
)

func header(text string) Block {
	return Block{"type": "header", "text": Block{"type": "plain_text", "text": text}}
}

func fields(pairs ...string) Block {
	fs := make([]Block, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		fs = append(fs, Block{"type": "mrkdwn", "text": fmt.Sprintf("*%s:*\n%s", pairs[i], pairs[i+1])})
	}
	return Block{"type": "section", "fields": fs}
}

func markdown(text string) Block {
	return Block{"type": "section", "text": Block{"type": "mrkdwn", "text": text}}
}

// GC — обнаружен золотой крест. Время свечи показывается в зоне loc.
func GC(barTs time.Time, loc *time.Location, price, shortAvg, longAvg float64, short, long int) Event {
	if loc == nil {
		loc = time.UTC
	}
	ts := barTs.In(loc).Format("2006-01-02 15:04 MST")
	text := fmt.Sprintf(":vertical_traffic_light: *GC detected* @ %s  price=%.4f  (SMA%d=%.4f > SMA%d=%.4f)",
		ts, price, short, shortAvg, long, longAvg)
	return Event{
		Kind: KindGC,
		Text: text,
		Blocks: []Block{
			header("Golden Cross Detected"),
			markdown(fmt.Sprintf("*Time*: `%s`\n*Price*: `%.4f`\n*SMA%d/%d*: `%.4f` / `%.4f`",
				ts, price, short, long, shortAvg, longAvg)),
		},
	}
}

func Entry(symbol string, price, size, tp, sl float64) Event {
	return Event{
		Kind: KindEntry,
		Text: fmt.Sprintf(":rocket: Entry LONG %s  price=%.4f size=%.4f  TP=%.4f  SL=%.4f", symbol, price, size, tp, sl),
		Blocks: []Block{
			header("New Entry"),
			fields(
				"Symbol", symbol,
				"Price", fmt.Sprintf("%.4f", price),
				"Size", fmt.Sprintf("%.4f", size),
				"TP", fmt.Sprintf("%.4f", tp),
				"SL", fmt.Sprintf("%.4f", sl),
			),
		},
	}
}

func Close(reason models.CloseReason, price, size, pnl, cum float64) Event {
	emoji := ":white_check_mark:"
	if pnl < 0 {
		emoji = ":x:"
	}
	return Event{
		Kind: KindClose,
		Text: fmt.Sprintf("%s Close (%s)  price=%.4f size=%.4f  PnL=%.2f  Cum=%.2f", emoji, reason, price, size, pnl, cum),
		Blocks: []Block{
			header("Close - " + string(reason)),
			fields(
				"Price", fmt.Sprintf("%.4f", price),
				"Size", fmt.Sprintf("%.4f", size),
				"PnL", fmt.Sprintf("%.2f", pnl),
				"PnL Cum", fmt.Sprintf("%.2f", cum),
			),
		},
	}
}

func Error(where, msg string) Event {
	return Event{
		Kind:   KindError,
		Text:   fmt.Sprintf(":warning: *Error* in `%s`: %s", where, msg),
		Blocks: []Block{markdown(fmt.Sprintf(":warning: *Error* in `%s`\n```%s```", where, msg))},
	}
}

func DailySummary(d metrics.Daily, cum float64) Event {
	return Event{
		Kind: KindDailySummary,
		Text: fmt.Sprintf(":bar_chart: Daily Summary %s  Trades=%d  Win=%d  Loss=%d  WinRate=%.1f%%  PnL_day=%.2f  PnL_cum=%.2f",
			d.Date, d.Trades, d.Win, d.Loss, d.WinRate, d.PnLDay, cum),
		Blocks: []Block{
			header("Daily Summary " + d.Date),
			fields(
				"Trades", fmt.Sprintf("%d", d.Trades),
				"Win/Loss", fmt.Sprintf("%d / %d", d.Win, d.Loss),
				"WinRate", fmt.Sprintf("%.1f%%", d.WinRate),
				"PnL (Day)", fmt.Sprintf("%.2f", d.PnLDay),
				"PnL (Cum)", fmt.Sprintf("%.2f", cum),
			),
		},
	}
}

func RunnerStatus(title, msg, emoji string) Event {
	if emoji == "" {
		emoji = ":information_source:"
	}
	text := fmt.Sprintf("%s *%s*\n%s", emoji, title, msg)
	return Event{Kind: KindRunnerStatus, Text: text, Blocks: []Block{markdown(text)}}
}
