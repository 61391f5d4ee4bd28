package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

func (c *Client) SyncServerTime(ctx context.Context) error {
	var resp bybitResponse[struct {
		TimeSecond string `json:"timeSecond"`
		TimeNano   string `json:"timeNano"`
	}]

	if err := c.doRequest(ctx, http.MethodGet, "/v5/market/time", nil, nil, false, &resp); err != nil {
		return fmt.Errorf("Не удалось синхронизировать время: %w", err)
	}

	nano, err := strconv.ParseInt(resp.Result.TimeNano, 10, 64)
	if err != nil {
		return fmt.Errorf("Некорректное значение timeNano=%q: %w", resp.Result.TimeNano, err)
	}

	serverMs := nano / 1_000_000
	localMs := time.Now().UnixMilli()
	c.serverTimeOffset = serverMs - localMs

	c.log.WithComponent("bybit_rest").WithFields(map[string]interface{}{
		"offset_ms": c.serverTimeOffset,
	}).Info("Смещение серверного времени обновлено.")
	return nil
}
