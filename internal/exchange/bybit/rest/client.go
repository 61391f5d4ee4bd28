package rest

import (
	"net/http"
	"time"

	"rebuybot/internal/logger"
)

type Client struct {
	baseURL     string
	accountType string
	apiKey      string
	secret      string
	baseCoin    string
	quoteCoin   string

	// Смещение серверного времени в миллисекундах, применяется к каждой
	// подписанной метке времени. Пишется только из SyncServerTime.
	serverTimeOffset int64

	httpClient *http.Client
	log        *logger.Logger
}

func New(baseURL, accountType, apiKey, secret, baseCoin, quoteCoin string, log *logger.Logger) *Client {
	return &Client{
		baseURL:     baseURL,
		accountType: accountType,
		apiKey:      apiKey,
		secret:      secret,
		baseCoin:    baseCoin,
		quoteCoin:   quoteCoin,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}
