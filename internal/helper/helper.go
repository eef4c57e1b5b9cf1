package helper

import (
	"fmt"
	"strings"
	"time"
)

func NormTF(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "candle")
	switch s {
	case "60m", "1h":
		return "1h"
	case "240m", "4h":
		return "4h"
	case "1440m", "24h", "1d":
		return "1d"
	default:
		return s
	}
}

// TimeframeDuration переводит "1h"/"15m"/"1d" в длительность свечи.
func TimeframeDuration(tf string) (time.Duration, error) {
	switch NormTF(tf) {
	case "1m":
		return time.Minute, nil
	case "3m":
		return 3 * time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "2h":
		return 2 * time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unsupported timeframe %q", tf)
}

// OKXBar — обозначение таймфрейма в API OKX ("1h" -> "1H").
func OKXBar(tf string) (string, error) {
	switch s := NormTF(tf); s {
	case "1m", "3m", "5m", "15m", "30m":
		return s, nil
	case "1h", "2h", "4h":
		return strings.ToUpper(s), nil
	case "1d":
		return "1Dutc", nil
	}
	return "", fmt.Errorf("unsupported timeframe for OKX bar: %q", tf)
}

// FloorToPeriod обрезает t до начала периода (по UTC-эпохе).
func FloorToPeriod(t time.Time, period time.Duration) time.Time {
	if period <= 0 {
		return t
	}
	return t.Truncate(period)
}
