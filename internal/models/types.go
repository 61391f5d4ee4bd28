package models

import (
	"github.com/shopspring/decimal"
)

type OrderSide string
type OrderType string
type OrderStatus string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"

	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"

	OrderStatusNew             OrderStatus = "New"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusRejected        OrderStatus = "Rejected"
)

type OrderRequest struct {
	Symbol string
	Side   OrderSide
	Type   OrderType
	// Qty покупок задаётся в котируемой валюте (USDT), продаж — в базовой.
	Qty    decimal.Decimal
	Price  decimal.Decimal
	LinkID string
}

type OrderDetails struct {
	OrderID string          `json:"order_id"`
	Price   decimal.Decimal `json:"price"`
	Qty     decimal.Decimal `json:"qty"`
	Status  OrderStatus     `json:"status"`
}

type Fill struct {
	Price   decimal.Decimal `json:"price"`
	Qty     decimal.Decimal `json:"qty"`
	OrderID string          `json:"order_id"`
	CycleID int64           `json:"cycle_id"`
}

type OrderRef struct {
	Symbol string
	Side   OrderSide
}
