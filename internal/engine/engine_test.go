package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"rebuybot/internal/config"
	"rebuybot/internal/exchange"
	"rebuybot/internal/logger"
	"rebuybot/internal/models"
)

type fakeGateway struct {
	mu          sync.Mutex
	placed      []models.OrderRequest
	placedIDs   []string
	cancelled   []string
	details     map[string]models.OrderDetails
	linkDetails map[string]models.OrderDetails
	marketFill  models.OrderDetails
	base        decimal.Decimal
	quote       decimal.Decimal
	quoteSeq    []decimal.Decimal
	placeErrs   []error
	nextID      int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		details:     map[string]models.OrderDetails{},
		linkDetails: map[string]models.OrderDetails{},
		quote:       decimal.NewFromInt(10000),
	}
}

func (g *fakeGateway) SyncServerTime(ctx context.Context) error { return nil }

func (g *fakeGateway) PlaceOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.placeErrs) > 0 {
		err := g.placeErrs[0]
		g.placeErrs = g.placeErrs[1:]
		return "", err
	}
	g.nextID++
	id := fmt.Sprintf("ord-%d", g.nextID)
	g.placed = append(g.placed, req)
	g.placedIDs = append(g.placedIDs, id)
	if req.Type == models.OrderTypeMarket {
		fill := g.marketFill
		fill.OrderID = id
		g.details[id] = fill
	}
	return id, nil
}

func (g *fakeGateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, orderID)
	return nil
}

func (g *fakeGateway) GetOrderDetails(ctx context.Context, orderID string, maxRetries int) (models.OrderDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d, ok := g.details[orderID]; ok {
		return d, nil
	}
	return models.OrderDetails{OrderID: orderID}, nil
}

func (g *fakeGateway) GetOrderByLinkID(ctx context.Context, linkID string) (models.OrderDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d, ok := g.linkDetails[linkID]; ok {
		return d, nil
	}
	return models.OrderDetails{}, fmt.Errorf("Ордер с link_id %s не найден.", linkID)
}

func (g *fakeGateway) GetBalances(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.quoteSeq) > 0 {
		g.quote = g.quoteSeq[0]
		g.quoteSeq = g.quoteSeq[1:]
	}
	return g.base, g.quote, nil
}

func (g *fakeGateway) requestByID(id string) (models.OrderRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, pid := range g.placedIDs {
		if pid == id {
			return g.placed[i], true
		}
	}
	return models.OrderRequest{}, false
}

type streamStep struct {
	frame []byte
	close bool
}

type fakeStream struct {
	mu       sync.Mutex
	steps    []streamStep
	closed   bool
	connects int
	auths    int
	subs     [][]string
	unsubs   [][]string
	sent     []any
}

func (s *fakeStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
	s.connects++
	return nil
}

func (s *fakeStream) Authenticate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auths++
	return nil
}

func (s *fakeStream) Subscribe(topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, topics)
	return nil
}

func (s *fakeStream) Unsubscribe(topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubs = append(s.unsubs, topics)
	return nil
}

func (s *fakeStream) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, v)
	return nil
}

func (s *fakeStream) Recv(timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, exchange.ErrStreamClosed
	}
	if len(s.steps) == 0 {
		return nil, exchange.ErrStreamTimeout
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	if step.close {
		s.closed = true
		return nil, exchange.ErrStreamClosed
	}
	return step.frame, nil
}

func (s *fakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) sentPings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.sent {
		if m, ok := v.(map[string]string); ok && m["op"] == "ping" {
			n++
		}
	}
	return n
}

func testConfig() *config.Config {
	return &config.Config{
		Bot: config.BotConfig{
			Symbol:    "BTCUSDT",
			BaseCoin:  "BTC",
			QuoteCoin: "USDT",
		},
		Strategy: config.DefaultStrategy(),
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "panic"})
}

func newTestEngine(cfg *config.Config, gw *fakeGateway, st *fakeStream) *Engine {
	e := New(cfg, gw, st, testLogger())
	e.recvTimeout = time.Millisecond
	e.retryDelay = 0
	e.settleDelay = 0
	e.backoffBase = 0
	e.running.Store(true)
	return e
}

func orderFrame(orderID, status, avgPrice, cumQty string) []byte {
	event := []map[string]string{{
		"orderId":     orderID,
		"orderStatus": status,
		"avgPrice":    avgPrice,
		"cumExecQty":  cumQty,
		"symbol":      "BTCUSDT",
	}}
	data, _ := json.Marshal(event)
	frame, _ := json.Marshal(map[string]json.RawMessage{
		"topic": json.RawMessage(`"order"`),
		"data":  data,
	})
	return frame
}

func walletFrame() []byte {
	return []byte(`{"topic":"wallet","data":[{"accountType":"UNIFIED"}]}`)
}

func mustEnvelope(t *testing.T, frame []byte) wsEnvelope {
	t.Helper()
	var env wsEnvelope
	require.NoError(t, json.Unmarshal(frame, &env))
	return env
}

func marketFill(price, qty string) models.OrderDetails {
	return models.OrderDetails{
		Price:  decimal.RequireFromString(price),
		Qty:    decimal.RequireFromString(qty),
		Status: models.OrderStatusFilled,
	}
}
