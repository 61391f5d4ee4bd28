package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"rebuybot/internal/exchange"
	"rebuybot/internal/logger"
)

// KeepAlive держит приватный поток живым. Два режима, выбираются при
// создании: периодический пинг либо пинг только после долгой тишины.
// Подписка на кошелёк даёт потоку низкочастотный трафик сама по себе.
type KeepAlive struct {
	stream exchange.Stream
	log    *logger.Logger

	inactivityMode    bool
	interval          time.Duration
	inactivityTimeout time.Duration

	mu           sync.Mutex
	lastActivity time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func newKeepAlive(stream exchange.Stream, log *logger.Logger, inactivityMode bool) *KeepAlive {
	return &KeepAlive{
		stream:            stream,
		log:               log,
		inactivityMode:    inactivityMode,
		interval:          60 * time.Second,
		inactivityTimeout: 400 * time.Second,
	}
}

func (k *KeepAlive) Start(ctx context.Context) {
	if err := k.stream.Subscribe([]string{"wallet"}); err != nil {
		k.logEntry().WithError(err).Warn("Не удалось подписаться на кошелёк.")
	}
	k.ResetTimer()

	ctx, cancel := context.WithCancel(ctx)
	k.cancel = cancel
	k.done = make(chan struct{})
	go k.run(ctx)
}

// Stop останавливает цикл пинга и дожидается его выхода.
func (k *KeepAlive) Stop() {
	if k.cancel == nil {
		return
	}
	k.cancel()
	<-k.done
	if !k.stream.Closed() {
		if err := k.stream.Unsubscribe([]string{"wallet"}); err != nil {
			k.logEntry().WithError(err).Debug("Не удалось отписаться от кошелька.")
		}
	}
}

// ResetTimer отмечает активность потока; зовётся монитором на каждый
// принятый кадр.
func (k *KeepAlive) ResetTimer() {
	k.mu.Lock()
	k.lastActivity = time.Now()
	k.mu.Unlock()
}

// Resubscribe восстанавливает подписку на кошелёк после переподключения.
func (k *KeepAlive) Resubscribe() error {
	k.ResetTimer()
	return k.stream.Subscribe([]string{"wallet"})
}

func (k *KeepAlive) run(ctx context.Context) {
	defer close(k.done)
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if k.stream.Closed() {
			continue
		}

		if k.inactivityMode {
			k.mu.Lock()
			idle := time.Since(k.lastActivity)
			k.mu.Unlock()
			if idle < k.inactivityTimeout {
				continue
			}
			k.logEntry().WithField("idle", idle.String()).Warn("Поток молчит слишком долго, шлём пинг.")
		}

		if err := k.stream.Send(map[string]string{"op": "ping"}); err != nil {
			k.logEntry().WithError(err).Warn("Пинг не ушёл.")
			continue
		}
		k.ResetTimer()
	}
}

func (k *KeepAlive) logEntry() *logrus.Entry {
	return k.log.WithComponent("keepalive")
}
