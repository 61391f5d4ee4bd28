package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"rebuybot/internal/models"
)

func (e *Engine) withRetryID(ctx context.Context, fn func() (string, error)) (string, error) {
	var lastErr error
	backoff := e.backoffBase
	for i := 0; i < 5; i++ {
		id, err := fn()
		if err == nil {
			return id, nil
		}
		lastErr = err
		wait := backoff
		if isRateLimitError(err) {
			wait = backoff * 4
		}
		if wait > 30*time.Second {
			wait = 30 * time.Second
		}
		if isInsufficientBalanceError(err) || isDuplicateLinkIDError(err) {
			return "", err
		}
		e.logEntry().WithError(lastErr).Warn("Ошибка, повторяем запрос.")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
		backoff *= 2
	}
	return "", lastErr
}

func (e *Engine) withRetryVoid(ctx context.Context, fn func() error) error {
	var lastErr error
	backoff := e.backoffBase
	for i := 0; i < 5; i++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		wait := backoff
		if isRateLimitError(lastErr) {
			wait = backoff * 4
		}
		if wait > 30*time.Second {
			wait = 30 * time.Second
		}
		e.logEntry().WithError(lastErr).Warn("Ошибка, повторяем запрос.")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff *= 2
	}
	return lastErr
}

// placeOrder — идемпотентная отправка: повторная попытка с тем же
// orderLinkId не создаёт дубликат, а находит уже принятый ордер.
func (e *Engine) placeOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	id, err := e.withRetryID(ctx, func() (string, error) {
		return e.client.PlaceOrder(ctx, req)
	})
	if err == nil {
		return id, nil
	}
	if isDuplicateLinkIDError(err) && req.LinkID != "" {
		if existing, lerr := e.client.GetOrderByLinkID(ctx, req.LinkID); lerr == nil && existing.OrderID != "" {
			e.logEntry().WithField("link_id", req.LinkID).Info("Найден существующий ордер по link_id, повтор не нужен.")
			return existing.OrderID, nil
		}
	}
	return "", err
}

func newCycleTag() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	if len(raw) > 12 {
		return raw[:12]
	}
	return raw
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Too many visits!") || strings.Contains(msg, "429") || strings.Contains(msg, "10006")
}

func isInsufficientBalanceError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "170131") || strings.Contains(msg, "Insufficient balance")
}

func isDuplicateLinkIDError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "170141") || strings.Contains(msg, "Duplicate clientOrderId")
}
