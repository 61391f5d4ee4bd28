package ws

import (
	"fmt"
	"time"

	"rebuybot/internal/exchange"
)

func (w *Conn) Subscribe(topics []string) error {
	return w.Send(opMessage{Op: "subscribe", Args: topics})
}

func (w *Conn) Unsubscribe(topics []string) error {
	return w.Send(opMessage{Op: "unsubscribe", Args: topics})
}

func (w *Conn) Send(v any) error {
	conn, _ := w.current()
	if conn == nil {
		return exchange.ErrStreamClosed
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		return fmt.Errorf("Не удалось отправить WS сообщение: %w", err)
	}
	return nil
}

// Recv отдаёт следующий кадр. Если за timeout ничего не пришло, возвращает
// exchange.ErrStreamTimeout, при разрыве соединения — exchange.ErrStreamClosed.
func (w *Conn) Recv(timeout time.Duration) ([]byte, error) {
	_, frames := w.current()
	if frames == nil {
		return nil, exchange.ErrStreamClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data, ok := <-frames:
		if !ok {
			return nil, exchange.ErrStreamClosed
		}
		return data, nil
	case <-timer.C:
		return nil, exchange.ErrStreamTimeout
	}
}
