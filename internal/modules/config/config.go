package config

import (
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"stock_bot/internal/helper"
	"stock_bot/internal/models"
	"stock_bot/pkg/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	chatIDTelegramENV = "TELEGRAM_CHAT_ID"
	databaseDSN       = "DATABASE_DSN"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `mapstructure:"token"`
		ChatID int64  `mapstructure:"chat_id"`
	} `mapstructure:"telegram"`
	DB   string `mapstructure:"db_dsn"`
	Feed struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"feed"`
	Jaeger struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"jaeger"`

	WatchlistFile string `mapstructure:"watchlist_file"`

	Session struct {
		Timezone  string `mapstructure:"timezone"`
		OpenHour  int    `mapstructure:"open_hour"`
		OpenMin   int    `mapstructure:"open_min"`
		CloseHour int    `mapstructure:"close_hour"`
		CloseMin  int    `mapstructure:"close_min"`
	} `mapstructure:"session"`

	// Интервал баров фида; участвует в арифметике кулдауна.
	BarInterval time.Duration `mapstructure:"bar_interval"`

	// Кулдаун в барах сверх "до открытия следующей сессии".
	CooldownBars int `mapstructure:"cooldown_bars"`

	// Очередь событий на сессию и история баров на символ.
	SessionQueueMax int `mapstructure:"session_queue_max"`
	HistoryMax      int `mapstructure:"history_max"`

	// Информационный размер позиции в акциях: ордера бот не шлёт,
	// но в журнал сделок количество пишем.
	OrderShares float64 `mapstructure:"order_shares"`

	Strategy models.StrategyParams `mapstructure:"strategy"`

	v      *viper.Viper
	params atomic.Pointer[models.StrategyParams]
}

func NewConfig() (*Config, error) {
	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "configs/values_local.yaml"
	}

	v := viper.New()
	v.SetConfigFile(configFileName)

	config := &Config{v: v}
	config.setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configFileName, err)
	}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if chat := int64FromEnv(chatIDTelegramENV, 0); chat != 0 {
		config.Telegram.ChatID = chat
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}

	p := config.Strategy
	config.params.Store(&p)

	// Правки стратегии с дашборда подхватываются на следующем цикле,
	// никогда посреди текущего.
	v.OnConfigChange(func(_ fsnotify.Event) {
		var next Config
		if err := v.Unmarshal(&next); err != nil {
			logger.Error("config reload failed: %v", err)
			return
		}
		np := next.Strategy
		config.params.Store(&np)
		logger.Info("config reloaded: confirm_bars=%d adx>=%v rsi=[%v,%v]",
			np.ConfirmBars, np.ADXThreshold, np.RSILow, np.RSIHigh)
	})
	v.WatchConfig()

	return config, nil
}

// Params — иммутабельный снимок порогов на один цикл оценки.
func (c *Config) Params() models.StrategyParams {
	if p := c.params.Load(); p != nil {
		return *p
	}
	return c.Strategy
}

// Calendar — торговый календарь из настроек сессии.
func (c *Config) Calendar() *helper.SessionCalendar {
	loc, err := time.LoadLocation(c.Session.Timezone)
	if err != nil {
		logger.Error("bad session timezone %q: %v", c.Session.Timezone, err)
		loc = time.UTC
	}
	cal := helper.DefaultCalendar(loc)
	if c.Session.OpenHour != 0 || c.Session.OpenMin != 0 {
		cal.OpenHour, cal.OpenMin = c.Session.OpenHour, c.Session.OpenMin
	}
	if c.Session.CloseHour != 0 || c.Session.CloseMin != 0 {
		cal.CloseHour, cal.CloseMin = c.Session.CloseHour, c.Session.CloseMin
	}
	return cal
}

func (c *Config) setDefaults(v *viper.Viper) {
	v.SetDefault("watchlist_file", getenvDefault("WATCHLIST_FILE", "configs/watchlist.yaml"))
	v.SetDefault("session.timezone", getenvDefault("SESSION_TZ", "Asia/Taipei"))
	v.SetDefault("bar_interval", durationFromEnv("BAR_INTERVAL", "5m").String())
	v.SetDefault("cooldown_bars", intFromEnv("COOLDOWN_BARS", 0))
	v.SetDefault("session_queue_max", intFromEnv("SESSION_QUEUE_MAX", 64))
	v.SetDefault("history_max", intFromEnv("HISTORY_MAX", 500))
	v.SetDefault("order_shares", floatFromEnv("ORDER_SHARES", 0))

	v.SetDefault("strategy.macd_fast", intFromEnv("MACD_FAST", 12))
	v.SetDefault("strategy.macd_slow", intFromEnv("MACD_SLOW", 26))
	v.SetDefault("strategy.macd_signal", intFromEnv("MACD_SIGNAL", 9))
	v.SetDefault("strategy.rsi_period", intFromEnv("RSI_PERIOD", 14))
	v.SetDefault("strategy.rsi_low", floatFromEnv("RSI_LOW", 30))
	v.SetDefault("strategy.rsi_high", floatFromEnv("RSI_HIGH", 70))
	v.SetDefault("strategy.adx_period", intFromEnv("ADX_PERIOD", 14))
	v.SetDefault("strategy.adx_threshold", floatFromEnv("ADX_THRESHOLD", 20))
	v.SetDefault("strategy.atr_period", intFromEnv("ATR_PERIOD", 14))
	v.SetDefault("strategy.atr_multiplier", floatFromEnv("ATR_MULTIPLIER", 2.0))
	v.SetDefault("strategy.confirm_bars", intFromEnv("CONFIRM_BARS", 3))
	v.SetDefault("strategy.confirm_timeout", durationFromEnv("CONFIRM_TIMEOUT", "5m").String())
	v.SetDefault("strategy.auto_sell_on_timeout", boolFromEnv("AUTO_SELL_ON_TIMEOUT", false))
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func int64FromEnv(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
