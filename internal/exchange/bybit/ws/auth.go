package ws

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

type opMessage struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

// Authenticate отправляет auth и ждёт подтверждение — следующий кадр
// с признаком success.
func (w *Conn) Authenticate() error {
	expires := time.Now().UnixMilli() + 5_000
	payload := fmt.Sprintf("GET/realtime%d", expires)
	signature := sign(w.secret, payload)

	msg := opMessage{
		Op:   "auth",
		Args: []string{w.apiKey, fmt.Sprintf("%d", expires), signature},
	}
	if err := w.Send(msg); err != nil {
		return fmt.Errorf("Не удалось отправить auth: %w", err)
	}

	data, err := w.Recv(10 * time.Second)
	if err != nil {
		return fmt.Errorf("Не удалось получить ответ auth: %w", err)
	}

	var resp struct {
		Op      string `json:"op"`
		Success bool   `json:"success"`
		RetMsg  string `json:"ret_msg"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("Не удалось разобрать ответ auth: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("Авторизация WS отклонена: %s", resp.RetMsg)
	}

	w.logEntry().Info("Авторизация WS успешна.")
	return nil
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
