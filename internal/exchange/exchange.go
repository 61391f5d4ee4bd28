package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"rebuybot/internal/models"
)

// Сигнальные ошибки транспорта: таймаут ограниченного чтения и разрыв
// соединения. Монитор ветвится по ним, а не по тексту ошибки.
var (
	ErrStreamTimeout = errors.New("таймаут чтения потока")
	ErrStreamClosed  = errors.New("поток закрыт")
)

// Gateway — синхронный REST-фасад биржи, потребляемый движком.
type Gateway interface {
	SyncServerTime(ctx context.Context) error
	PlaceOrder(ctx context.Context, req models.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	// GetOrderDetails опрашивает активные и исторические ордера, повторяя
	// запрос раз в секунду до maxRetries, пока цена или объём нулевые.
	GetOrderDetails(ctx context.Context, orderID string, maxRetries int) (models.OrderDetails, error)
	// GetOrderByLinkID ищет ордер по orderLinkId среди активных и
	// исторических. Нужен для идемпотентной повторной отправки.
	GetOrderByLinkID(ctx context.Context, linkID string) (models.OrderDetails, error)
	GetBalances(ctx context.Context) (base, quote decimal.Decimal, err error)
}

// Stream — сырой транспорт приватного потока. Монитор сам авторизуется,
// подписывается и разбирает сообщения; транспорт только читает и пишет.
type Stream interface {
	Connect(ctx context.Context) error
	Authenticate() error
	Subscribe(topics []string) error
	Unsubscribe(topics []string) error
	Send(v any) error
	Recv(timeout time.Duration) ([]byte, error)
	Closed() bool
	Close() error
}
