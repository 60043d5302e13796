package models

import "time"

type State string

const (
	StateNoPosition State = "NO_POSITION"
	StateBuySent    State = "SIGNAL_BUY_SENT"
	StateHolding    State = "HOLDING"
	StateSellSent   State = "SIGNAL_SELL_SENT"
	StateCooldown   State = "COOLDOWN"
)

type ExitReason string

const (
	ExitSignal   ExitReason = "SIGNAL"
	ExitStopLoss ExitReason = "STOP_LOSS"
	ExitTimeout  ExitReason = "TIMEOUT"
)

// Position — ровно одна живая запись на символ. Мутируется только
// сессией-владельцем, снаружи read-only.
type Position struct {
	Symbol            string        `json:"symbol"`
	State             State         `json:"state"`
	EntryPrice        float64       `json:"entry_price"`
	EntryTime         time.Time     `json:"entry_time"`
	Shares            float64       `json:"shares"`
	StopPrice         float64       `json:"stop_price"`
	HighestSinceEntry float64       `json:"highest_since_entry"`
	EntryATR          float64       `json:"entry_atr"`
	SignalPrice       float64       `json:"signal_price"`
	SignalTime        time.Time     `json:"signal_time"`
	Ctx               SignalContext `json:"ctx"`

	// Выставлен тогда и только тогда, когда висит запрос подтверждения
	// (SIGNAL_BUY_SENT / SIGNAL_SELL_SENT).
	PendingConfirmID string `json:"pending_confirm_id,omitempty"`

	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Trade — append-only запись о закрытой (или подтверждённо открытой) сделке.
type Trade struct {
	Symbol     string     `json:"symbol"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	Shares     float64    `json:"shares"`
	PnLPct     float64    `json:"pnl_pct"`
	ExitReason ExitReason `json:"exit_reason"`
}
