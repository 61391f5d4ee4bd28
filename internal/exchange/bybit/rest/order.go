package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rebuybot/internal/models"
)

func (c *Client) PlaceOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	body := map[string]any{
		"category":    "spot",
		"symbol":      req.Symbol,
		"side":        req.Side,
		"orderType":   req.Type,
		"timeInForce": "GTC",
		"orderFilter": "Order",
	}
	if req.Type == models.OrderTypeMarket {
		body["timeInForce"] = "IOC"
	}
	if req.LinkID != "" {
		body["orderLinkId"] = req.LinkID
	}

	switch {
	case req.Side == models.OrderSideBuy && req.Type == models.OrderTypeMarket:
		// Рыночная покупка задаётся объёмом в котируемой валюте.
		body["qty"] = req.Qty.RoundDown(2).StringFixed(2)
	case req.Side == models.OrderSideBuy && req.Type == models.OrderTypeLimit:
		price := req.Price.Floor()
		if price.LessThanOrEqual(decimal.Zero) {
			return "", fmt.Errorf("Некорректная цена лимитной покупки: %s", req.Price)
		}
		qtyBase := req.Qty.Div(price)
		body["qty"] = qtyBase.RoundDown(6).StringFixed(6)
		body["price"] = price.String()
		c.logEntry().WithFields(map[string]interface{}{
			"qty_quote": req.Qty.StringFixed(2),
			"qty_base":  qtyBase.StringFixed(6),
			"price":     price.String(),
		}).Debug("Пересчёт объёма покупки в базовую валюту.")
	case req.Side == models.OrderSideSell && req.Type == models.OrderTypeLimit:
		price := req.Price.Floor()
		if price.LessThanOrEqual(decimal.Zero) {
			return "", fmt.Errorf("Некорректная цена лимитной продажи: %s", req.Price)
		}
		body["qty"] = req.Qty.RoundDown(6).StringFixed(6)
		body["price"] = price.String()
	default:
		return "", fmt.Errorf("Неподдерживаемая комбинация ордера: %s %s", req.Side, req.Type)
	}

	var resp bybitResponse[struct {
		OrderID string `json:"orderId"`
	}]

	if err := c.doRequest(ctx, http.MethodPost, "/v5/order/create", nil, body, true, &resp); err != nil {
		return "", err
	}

	c.logEntry().WithField("order_id", resp.Result.OrderID).WithFields(map[string]interface{}{
		"side":  req.Side,
		"type":  req.Type,
		"qty":   body["qty"],
		"price": body["price"],
	}).Info("Ордер отправлен.")
	return resp.Result.OrderID, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body := map[string]any{
		"category": "spot",
		"symbol":   symbol,
		"orderId":  orderID,
	}

	var resp bybitResponse[struct{}]

	err := c.doRequest(ctx, http.MethodPost, "/v5/order/cancel", nil, body, true, &resp)
	if err != nil && isOrderNotExist(err) {
		// Ордер уже исполнен или отменён, цель достигнута.
		return nil
	}
	return err
}

// GetOrderDetails опрашивает сначала активные, затем исторические ордера,
// повторяя запрос раз в секунду до maxRetries, пока цена или объём нулевые.
func (c *Client) GetOrderDetails(ctx context.Context, orderID string, maxRetries int) (models.OrderDetails, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	params := url.Values{}
	params.Set("category", "spot")
	params.Set("orderId", orderID)

	var details models.OrderDetails
	for attempt := 0; attempt < maxRetries; attempt++ {
		found, err := c.queryOrder(ctx, "/v5/order/realtime", params, &details)
		if err == nil && !found {
			found, err = c.queryOrder(ctx, "/v5/order/history", params, &details)
		}
		if err != nil {
			c.logEntry().WithError(err).WithField("order_id", orderID).Warn("Ошибка запроса деталей ордера.")
		} else if found && !details.Price.IsZero() && !details.Qty.IsZero() {
			return details, nil
		}

		if attempt < maxRetries-1 {
			select {
			case <-ctx.Done():
				return models.OrderDetails{}, ctx.Err()
			case <-time.After(1 * time.Second):
			}
		}
	}

	c.logEntry().WithField("order_id", orderID).WithFields(map[string]interface{}{
		"attempts": maxRetries,
	}).Warn("Детали ордера не подтверждены после всех попыток.")
	return details, nil
}

// GetOrderByLinkID ищет ордер по orderLinkId: сначала среди активных,
// затем в истории.
func (c *Client) GetOrderByLinkID(ctx context.Context, linkID string) (models.OrderDetails, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("orderLinkId", linkID)

	var details models.OrderDetails
	found, err := c.queryOrder(ctx, "/v5/order/realtime", params, &details)
	if err == nil && !found {
		found, err = c.queryOrder(ctx, "/v5/order/history", params, &details)
	}
	if err != nil {
		return models.OrderDetails{}, err
	}
	if !found {
		return models.OrderDetails{}, fmt.Errorf("Ордер с link_id %s не найден.", linkID)
	}
	return details, nil
}

func (c *Client) queryOrder(ctx context.Context, path string, params url.Values, out *models.OrderDetails) (bool, error) {
	var resp bybitResponse[struct {
		List []struct {
			OrderID     string `json:"orderId"`
			AvgPrice    string `json:"avgPrice"`
			CumExecQty  string `json:"cumExecQty"`
			OrderStatus string `json:"orderStatus"`
		} `json:"list"`
	}]

	if err := c.doRequest(ctx, http.MethodGet, path, params, nil, true, &resp); err != nil {
		return false, err
	}
	if len(resp.Result.List) == 0 {
		return false, nil
	}

	item := resp.Result.List[0]
	out.OrderID = item.OrderID
	out.Price = parseDecimalOrZero(item.AvgPrice)
	out.Qty = parseDecimalOrZero(item.CumExecQty)
	out.Status = models.OrderStatus(item.OrderStatus)
	return true, nil
}

func isOrderNotExist(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "110001") || strings.Contains(msg, "170213") || strings.Contains(msg, "Order does not exist")
}
