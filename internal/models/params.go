package models

import "time"

// StrategyParams — снимок стратегических порогов на один цикл оценки.
// Раннер берёт его один раз на бар и не перечитывает посреди решения.
type StrategyParams struct {
	MACDFast   int `mapstructure:"macd_fast" yaml:"macd_fast"`
	MACDSlow   int `mapstructure:"macd_slow" yaml:"macd_slow"`
	MACDSignal int `mapstructure:"macd_signal" yaml:"macd_signal"`

	RSIPeriod int     `mapstructure:"rsi_period" yaml:"rsi_period"`
	RSILow    float64 `mapstructure:"rsi_low" yaml:"rsi_low"`
	RSIHigh   float64 `mapstructure:"rsi_high" yaml:"rsi_high"`

	ADXPeriod    int     `mapstructure:"adx_period" yaml:"adx_period"`
	ADXThreshold float64 `mapstructure:"adx_threshold" yaml:"adx_threshold"`

	ATRPeriod     int     `mapstructure:"atr_period" yaml:"atr_period"`
	ATRMultiplier float64 `mapstructure:"atr_multiplier" yaml:"atr_multiplier"`

	ConfirmBars    int           `mapstructure:"confirm_bars" yaml:"confirm_bars"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout" yaml:"confirm_timeout"`

	// Закрывать позицию по таймауту SELL-подтверждения вместо возврата
	// в HOLDING (exit_reason=TIMEOUT).
	AutoSellOnTimeout bool `mapstructure:"auto_sell_on_timeout" yaml:"auto_sell_on_timeout"`
}

// MinBars — с какого бара появляется первый снапшот индикаторов.
func (p StrategyParams) MinBars() int {
	return p.MACDSlow + p.MACDSignal
}
