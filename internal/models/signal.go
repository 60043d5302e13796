package models

import "time"

// Side как в раннере: "BUY"/"SELL" или пустая строка.
type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// SignalContext — индикаторы на баре подтверждения. Идёт в лог сигналов
// и в запись позиции, чтобы дашборд видел чем был вызван сигнал.
type SignalContext struct {
	DIF  float64 `json:"dif"`
	DEA  float64 `json:"dea"`
	Hist float64 `json:"hist"`
	RSI  float64 `json:"rsi"`
	ADX  float64 `json:"adx"`
	ATR  float64 `json:"atr"`
}

// SignalEvent — неизменяемое событие детектора. Один BUY на эпизод
// подтверждения, один SELL на эпизод мёртвого креста.
type SignalEvent struct {
	Symbol string        `json:"symbol"`
	Time   time.Time     `json:"time"`
	Side   Side          `json:"side"`
	Price  float64       `json:"price"`
	Reason string        `json:"reason"`
	Ctx    SignalContext `json:"ctx"`

	// SELL на баре пересечения нельзя исполнять до открытия следующей
	// сессии; раннер держит событие до этого момента.
	ActionableAfter time.Time `json:"actionable_after,omitempty"`
}

// Decision — исход запроса подтверждения у человека.
type Decision int

const (
	DecisionRejected Decision = iota
	DecisionAccepted
	DecisionTimeout
	DecisionCancelled
)

func (d Decision) String() string {
	switch d {
	case DecisionAccepted:
		return "accepted"
	case DecisionTimeout:
		return "timeout"
	case DecisionCancelled:
		return "cancelled"
	default:
		return "rejected"
	}
}
