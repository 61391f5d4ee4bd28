package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"

	"rebuybot/internal/exchange"
	"rebuybot/internal/models"
)

// Monitor читает приватный поток и ведёт цикл по событиям ордеров.
// Обработчики зовутся синхронно в потоке движка.
type Monitor struct {
	eng    *Engine
	stream exchange.Stream
}

func newMonitor(e *Engine) *Monitor {
	return &Monitor{eng: e, stream: e.stream}
}

type wsEnvelope struct {
	Topic string          `json:"topic"`
	Op    string          `json:"op"`
	Data  json.RawMessage `json:"data"`
}

type orderEvent struct {
	OrderID     string `json:"orderId"`
	OrderStatus string `json:"orderStatus"`
}

func (m *Monitor) Connect(ctx context.Context) error {
	if err := m.stream.Connect(ctx); err != nil {
		return err
	}
	if err := m.stream.Authenticate(); err != nil {
		return err
	}
	return m.stream.Subscribe([]string{"order", "execution"})
}

// MonitorCycle крутится до закрытия цикла или остановки бота. Разрыв
// потока лечится одним переподключением на цикл; второй разрыв подряд
// прерывает цикл, внешний контур доберёт состояние по REST и продолжит.
func (m *Monitor) MonitorCycle(ctx context.Context) Status {
	e := m.eng
	e.cycleDone.Clear()
	reconnected := false

	for e.running.Load() && !e.cycleDone.IsSet() && ctx.Err() == nil {
		if m.stream.Closed() {
			if reconnected {
				m.logEntry().Error("Поток событий снова разорван, цикл прерван.")
				return StatusRetry
			}
			if err := m.reconnect(ctx); err != nil {
				m.logEntry().WithError(err).Error("Не удалось переподключить поток событий, цикл прерван.")
				return StatusRetry
			}
			reconnected = true
			if st := m.resyncOrders(ctx); st != StatusOK {
				return st
			}
			continue
		}

		frame, err := m.stream.Recv(e.recvTimeout)
		if errors.Is(err, exchange.ErrStreamTimeout) {
			e.tryExecutePendingRebuy(ctx)
			continue
		}
		if err != nil {
			continue
		}

		e.keepAlive.ResetTimer()
		if st := m.dispatch(ctx, frame); st != StatusOK {
			return st
		}
	}
	return StatusOK
}

func (m *Monitor) reconnect(ctx context.Context) error {
	m.logEntry().Warn("Поток событий разорван, переподключаемся.")
	if err := m.Connect(ctx); err != nil {
		return err
	}
	return m.eng.keepAlive.Resubscribe()
}

// resyncOrders добирает через REST исполнения, случившиеся за время
// разрыва.
func (m *Monitor) resyncOrders(ctx context.Context) Status {
	e := m.eng
	e.mu.Lock()
	sellID := e.st.CurrentSellID
	rebuyID := e.st.CurrentRebuyID
	e.mu.Unlock()

	if rebuyID != "" {
		details, err := e.client.GetOrderDetails(ctx, rebuyID, 3)
		if err == nil && details.Status == models.OrderStatusFilled {
			m.logEntry().WithField("order_id", rebuyID).Info("Рекомпра исполнилась во время разрыва.")
			if st := e.onRebuyFilled(ctx, details); st != StatusOK {
				return st
			}
		}
	}
	if sellID != "" {
		details, err := e.client.GetOrderDetails(ctx, sellID, 3)
		if err == nil && details.Status == models.OrderStatusFilled {
			m.logEntry().WithField("order_id", sellID).Info("Продажа исполнилась во время разрыва.")
			return e.onSellFilled(ctx, details)
		}
	}
	return StatusOK
}

func (m *Monitor) dispatch(ctx context.Context, frame []byte) Status {
	var env wsEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		m.logEntry().WithError(err).Debug("Нечитаемый кадр потока.")
		return StatusOK
	}

	switch {
	case env.Op != "":
		m.logEntry().WithField("op", env.Op).Debug("Служебный кадр потока.")
		return StatusOK
	case env.Topic == "order":
		return m.handleOrderEvents(ctx, env.Data)
	case env.Topic == "wallet":
		m.eng.tryExecutePendingRebuy(ctx)
		return StatusOK
	case env.Topic == "execution":
		m.logEntry().Debug("Кадр исполнения.")
		return StatusOK
	default:
		return StatusOK
	}
}

// handleOrderEvents реагирует только на отслеживаемые ордера. Пуш лишь
// триггер: цена и объём всегда подтверждаются запросом деталей по REST.
func (m *Monitor) handleOrderEvents(ctx context.Context, data json.RawMessage) Status {
	var events []orderEvent
	if err := json.Unmarshal(data, &events); err != nil {
		m.logEntry().WithError(err).Debug("Нечитаемые события ордеров.")
		return StatusOK
	}

	e := m.eng
	for _, ev := range events {
		e.mu.Lock()
		isSell := ev.OrderID == e.st.CurrentSellID && e.st.CurrentSellID != ""
		isRebuy := ev.OrderID == e.st.CurrentRebuyID && e.st.CurrentRebuyID != ""
		e.mu.Unlock()

		if !isSell && !isRebuy {
			continue
		}

		switch ev.OrderStatus {
		case string(models.OrderStatusFilled):
			details, err := e.client.GetOrderDetails(ctx, ev.OrderID, 5)
			if err != nil || details.Price.IsZero() || details.Qty.IsZero() {
				m.logEntry().WithError(err).WithField("order_id", ev.OrderID).Error("Исполнение не подтвердилось по REST, цикл прерван.")
				return StatusRetry
			}
			if isSell {
				if st := e.onSellFilled(ctx, details); st != StatusOK {
					return st
				}
			} else if st := e.onRebuyFilled(ctx, details); st != StatusOK {
				return st
			}
		case string(models.OrderStatusCancelled), string(models.OrderStatusRejected):
			if st := m.handleCancelled(ctx, ev, isSell); st != StatusOK {
				return st
			}
		}
	}
	return StatusOK
}

// handleCancelled: снятый снаружи ордер переставляется, иначе цикл не
// закроется.
func (m *Monitor) handleCancelled(ctx context.Context, ev orderEvent, isSell bool) Status {
	e := m.eng
	e.mu.Lock()
	delete(e.st.ActiveOrders, ev.OrderID)
	if isSell {
		e.st.CurrentSellID = ""
	} else {
		e.st.CurrentRebuyID = ""
	}
	e.mu.Unlock()

	m.logEntry().WithFields(logrus.Fields{
		"order_id": ev.OrderID,
		"status":   ev.OrderStatus,
	}).Warn("Ордер снят вне бота.")

	if isSell {
		return e.placeSellOrder(ctx)
	}
	return e.placeRebuyOrder(ctx)
}

func (m *Monitor) logEntry() *logrus.Entry {
	return m.eng.log.WithComponent("monitor").WithField("symbol", m.eng.cfg.Bot.Symbol)
}
