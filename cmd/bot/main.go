package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"rebuybot/internal/config"
	"rebuybot/internal/engine"
	"rebuybot/internal/exchange/bybit/rest"
	"rebuybot/internal/exchange/bybit/ws"
	"rebuybot/internal/logger"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logger.New(logger.Config{
		Level:      cfg.Runtime.Log.Level,
		Format:     cfg.Runtime.Log.Format,
		Output:     cfg.Runtime.Log.File,
		MaxSize:    cfg.Runtime.Log.MaxSize,
		MaxBackups: cfg.Runtime.Log.MaxBackups,
		MaxAge:     cfg.Runtime.Log.MaxAge,
		Compress:   cfg.Runtime.Log.Compress,
	})

	logger.Info("Бот запущен.")

	client := rest.New(cfg.Exchange.BaseUrl, cfg.Exchange.AccountType, cfg.Exchange.ApiKey, cfg.Exchange.Secret, cfg.Bot.BaseCoin, cfg.Bot.QuoteCoin, logger)
	stream := ws.New(cfg.Exchange.WSUrl, cfg.Exchange.ApiKey, cfg.Exchange.Secret, logger)
	eng := engine.New(cfg, client, stream, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := eng.Start(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("\"Двигатель\" завершился с ошибкой.")
		}
	}()

	select {
	case <-sigCh:
		// Даём движку снять ордера, контекст гасим после выхода.
		eng.RequestStop()
		<-done
		cancel()
	case <-done:
	}

	logger.Info("Бот остановлен.")
}
