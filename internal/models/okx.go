package models

// Instrument — ограничения площадки на размер ордера.
type Instrument struct {
	InstID string
	LotSz  float64 // шаг количества
	MinSz  float64 // минимальный размер ордера
	TickSz float64
	State  string
}
