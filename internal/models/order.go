package models

import "time"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type Mode string

const (
	ModePaper Mode = "paper"
	ModeReal  Mode = "real"
)

// Fill — результат исполнения ордера (бумажного или реального).
type Fill struct {
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Mode     Mode      `json:"mode"`
	Ts       time.Time `json:"ts"`
	Price    float64   `json:"price"`
	Quantity float64   `json:"quantity"`
	Notional float64   `json:"notional"`
	Fee      float64   `json:"fee"`
}

// OrderAck — ответ площадки по рыночному ордеру.
type OrderAck struct {
	OrderID   string
	AvgPrice  float64
	FilledQty float64
	Fee       float64 // в валюте котировки, положительное число
}
