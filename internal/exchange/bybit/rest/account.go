package rest

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func (c *Client) GetBalances(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	params := url.Values{}
	params.Set("accountType", c.accountType)
	params.Set("coin", strings.Join([]string{c.baseCoin, c.quoteCoin}, ","))

	var resp bybitResponse[struct {
		List []struct {
			Coin []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
			} `json:"coin"`
		} `json:"list"`
	}]

	if err := c.doRequest(ctx, http.MethodGet, "/v5/account/wallet-balance", params, nil, true, &resp); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	base := decimal.Zero
	quote := decimal.Zero
	for _, account := range resp.Result.List {
		for _, item := range account.Coin {
			switch item.Coin {
			case c.baseCoin:
				base = parseDecimalOrZero(item.WalletBalance)
			case c.quoteCoin:
				quote = parseDecimalOrZero(item.WalletBalance)
			}
		}
	}
	return base, quote, nil
}

func parseDecimalOrZero(value string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (c *Client) logEntry() *logrus.Entry {
	return c.log.WithComponent("bybit_rest")
}
