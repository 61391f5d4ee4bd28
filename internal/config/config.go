package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Exchange ExchangeConfig
	Bot      BotConfig
	Runtime  RuntimeConfig
	Strategy Strategy
}

type ExchangeConfig struct {
	BaseUrl     string
	WSUrl       string
	AccountType string
	ApiKey      string
	Secret      string
}

type BotConfig struct {
	Symbol    string
	BaseCoin  string
	QuoteCoin string
}

type RuntimeConfig struct {
	StrategyFile   string
	SaveStrategy   bool
	PingInactivity bool
	Log            LogConfig
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

func Load() (*Config, error) {
	cfg := &Config{}
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	viper.ReadInConfig()

	viper.SetDefault("exchange.base_url", "https://api-demo.bybit.com")
	viper.SetDefault("exchange.ws_url", "wss://stream-demo.bybit.com/v5/private")
	viper.SetDefault("exchange.account_type", "UNIFIED")
	viper.SetDefault("bot.symbol", "BTCUSDT")
	viper.SetDefault("bot.base_coin", "BTC")
	viper.SetDefault("bot.quote_coin", "USDT")
	viper.SetDefault("runtime.strategy_file", "configs/strategy.json")

	cfg.Exchange = ExchangeConfig{
		BaseUrl:     viper.GetString("exchange.base_url"),
		WSUrl:       viper.GetString("exchange.ws_url"),
		AccountType: viper.GetString("exchange.account_type"),
		ApiKey:      envSub("exchange.api_key"),
		Secret:      envSub("exchange.secret"),
	}

	cfg.Bot = BotConfig{
		Symbol:    viper.GetString("bot.symbol"),
		BaseCoin:  viper.GetString("bot.base_coin"),
		QuoteCoin: viper.GetString("bot.quote_coin"),
	}

	cfg.Runtime = RuntimeConfig{
		StrategyFile:   viper.GetString("runtime.strategy_file"),
		SaveStrategy:   viper.GetBool("runtime.save_strategy"),
		PingInactivity: viper.GetBool("runtime.ping_inactivity"),
		Log: LogConfig{
			Level:      viper.GetString("runtime.log.level"),
			Format:     viper.GetString("runtime.log.format"),
			File:       viper.GetString("runtime.log.file"),
			MaxSize:    viper.GetInt("runtime.log.max_size"),
			MaxBackups: viper.GetInt("runtime.log.max_backups"),
			MaxAge:     viper.GetInt("runtime.log.max_age"),
			Compress:   viper.GetBool("runtime.log.compress"),
		},
	}

	strategy, err := LoadStrategy(cfg.Runtime.StrategyFile)
	if err != nil {
		return nil, err
	}
	cfg.Strategy = strategy

	return cfg, nil
}

func envSub(key string) string {
	val := viper.GetString(key)
	if val == "" {
		return ""
	}

	re := regexp.MustCompile(`\$\{(\w+)\}`)
	return re.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}
