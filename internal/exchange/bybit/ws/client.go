package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"rebuybot/internal/logger"
)

type Conn struct {
	url    string
	apiKey string
	secret string
	log    *logger.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	frames chan []byte
	closed bool

	writeMu sync.Mutex
}

func New(url, apiKey, secret string, log *logger.Logger) *Conn {
	return &Conn{
		url:    url,
		apiKey: apiKey,
		secret: secret,
		log:    log,
		closed: true,
	}
}

func (w *Conn) Connect(ctx context.Context) error {
	w.logEntry().WithField("url", w.url).Info("Подключение к WS.")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("Не удалось подключиться к WS: %w", err)
	}
	conn.SetReadLimit(2 << 20)

	frames := make(chan []byte, 100)

	w.mu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
	}
	w.conn = conn
	w.frames = frames
	w.closed = false
	w.mu.Unlock()

	go w.readLoop(conn, frames)

	w.logEntry().Info("WS соединение установлено.")
	return nil
}

// readLoop — единственный читатель сокета; кадры уходят в канал, из
// которого их достаёт Recv. Ошибка чтения закрывает канал.
func (w *Conn) readLoop(conn *websocket.Conn, frames chan<- []byte) {
	defer close(frames)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			if w.conn == conn {
				w.closed = true
			}
			w.mu.Unlock()
			return
		}
		frames <- data
	}
}

func (w *Conn) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}

func (w *Conn) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed || w.conn == nil
}

func (w *Conn) current() (*websocket.Conn, chan []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, nil
	}
	return w.conn, w.frames
}

func (w *Conn) logEntry() *logrus.Entry {
	return w.log.WithComponent("bybit_ws")
}
