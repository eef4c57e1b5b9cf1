package strategy

// SMA — среднее последних window значений. ok=false, пока значений меньше window.
func SMA(values []float64, window int) (float64, bool) {
	n := len(values)
	if window <= 0 || n < window {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[n-window:] {
		sum += v
	}
	return sum / float64(window), true
}

// RSI по Уайлдеру: экспоненциальное сглаживание с alpha = 1/period,
// стартует с первой разницы и требует period разниц.
// Если средний убыток нулевой (или данных мало), возвращает 0.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes)-1 < period {
		return 0
	}
	alpha := 1.0 / float64(period)

	var avgGain, avgLoss float64
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		if i == 1 {
			avgGain, avgLoss = gain, loss
			continue
		}
		avgGain = (1-alpha)*avgGain + alpha*gain
		avgLoss = (1-alpha)*avgLoss + alpha*loss
	}

	if avgLoss == 0 {
		return 0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
