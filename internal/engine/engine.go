package engine

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"rebuybot/internal/config"
	"rebuybot/internal/exchange"
	"rebuybot/internal/logger"
	"rebuybot/internal/models"
)

type Engine struct {
	cfg    *config.Config
	client exchange.Gateway
	stream exchange.Stream
	log    *logger.Logger

	monitor   *Monitor
	keepAlive *KeepAlive

	mu sync.Mutex
	st CycleState

	running       atomic.Bool
	stopAfterSell atomic.Bool
	cycleDone     cycleSignal

	// Задержки вынесены в поля, чтобы тесты не ждали реальных пауз.
	recvTimeout time.Duration
	retryDelay  time.Duration
	settleDelay time.Duration
	backoffBase time.Duration

	keys io.Reader
}

func New(cfg *config.Config, client exchange.Gateway, stream exchange.Stream, log *logger.Logger) *Engine {
	e := &Engine{
		cfg:    cfg,
		client: client,
		stream: stream,
		log:    log,

		recvTimeout: 5 * time.Second,
		retryDelay:  5 * time.Second,
		settleDelay: 2 * time.Second,
		backoffBase: 1 * time.Second,

		keys: os.Stdin,
	}
	e.st = newCycleState()
	e.monitor = newMonitor(e)
	e.keepAlive = newKeepAlive(stream, log, cfg.Runtime.PingInactivity)
	return e
}

func (e *Engine) Start(ctx context.Context) error {
	e.running.Store(true)
	defer e.running.Store(false)

	if err := e.withRetryVoid(ctx, func() error {
		return e.client.SyncServerTime(ctx)
	}); err != nil {
		return err
	}

	if err := e.checkStartupBalance(ctx); err != nil {
		return err
	}

	if e.cfg.Runtime.SaveStrategy {
		if err := config.SaveStrategy(e.cfg.Runtime.StrategyFile, e.cfg.Strategy); err != nil {
			e.logEntry().WithError(err).Warn("Не удалось сохранить стратегию.")
		} else {
			e.logEntry().WithField("file", e.cfg.Runtime.StrategyFile).Info("Стратегия сохранена.")
		}
	}

	if err := e.monitor.Connect(ctx); err != nil {
		return err
	}
	e.keepAlive.Start(ctx)
	defer e.keepAlive.Stop()
	defer e.stream.Close()

	go e.listenKeys(ctx)

	e.logEntry().Info("Бот запущен, начинаем торговый цикл.")

	for e.running.Load() && ctx.Err() == nil {
		status := e.runCycle(ctx)
		switch status {
		case StatusFatal:
			e.logEntry().Error("Фатальная ошибка цикла, останавливаемся.")
			e.running.Store(false)
		case StatusRetry:
			e.logEntry().Warn("Цикл не удался, повтор после паузы.")
			select {
			case <-ctx.Done():
			case <-time.After(e.retryDelay):
			}
		case StatusOK:
			if e.stopAfterSell.Load() {
				e.logEntry().Info("Цикл завершён, остановка по запросу после продажи.")
				e.running.Store(false)
				break
			}
			select {
			case <-ctx.Done():
			case <-time.After(e.settleDelay):
			}
		}
	}

	// Короткая пауза перед снятием: исполнение, случившееся в момент
	// остановки, ещё может прийти по потоку.
	select {
	case <-ctx.Done():
	case <-time.After(e.settleDelay):
	}
	e.cancelActiveOrders(ctx)

	e.mu.Lock()
	total := e.st.TotalProfit
	cycles := e.st.CycleID
	e.mu.Unlock()
	e.logEntry().WithFields(map[string]interface{}{
		"cycles":       cycles,
		"total_profit": total.String(),
	}).Info("Бот остановлен.")
	return ctx.Err()
}

// RequestStop — немедленная остановка: текущий цикл прерывается,
// активные ордера снимаются при выходе из Start.
func (e *Engine) RequestStop() {
	e.running.Store(false)
	e.cycleDone.Set()
}

// RequestStopAfterSell — мягкая остановка после закрытия текущего цикла.
func (e *Engine) RequestStopAfterSell() {
	e.stopAfterSell.Store(true)
}

func (e *Engine) checkStartupBalance(ctx context.Context) error {
	_, quote, err := e.client.GetBalances(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.st.QuoteBalance = quote
	e.mu.Unlock()

	required := e.cfg.Strategy.RequiredBalance()
	entry := e.logEntry().WithFields(map[string]interface{}{
		"balance":  quote.String(),
		"required": required.String(),
	})
	if quote.LessThan(required) {
		entry.Warn("Баланса может не хватить на полную серию рекомпр.")
	} else {
		entry.Info("Баланс проверен.")
	}
	return nil
}

func (e *Engine) cancelActiveOrders(ctx context.Context) {
	e.mu.Lock()
	sellID := e.st.CurrentSellID
	rebuyID := e.st.CurrentRebuyID
	e.mu.Unlock()

	for _, id := range []string{sellID, rebuyID} {
		if id == "" {
			continue
		}
		if err := e.client.CancelOrder(ctx, e.cfg.Bot.Symbol, id); err != nil {
			e.logEntry().WithError(err).WithField("order_id", id).Warn("Не удалось снять ордер при остановке.")
		} else {
			e.logEntry().WithField("order_id", id).Info("Ордер снят при остановке.")
		}
	}

	e.mu.Lock()
	e.st.CurrentSellID = ""
	e.st.CurrentRebuyID = ""
	e.st.ActiveOrders = map[string]models.OrderRef{}
	e.mu.Unlock()
}
