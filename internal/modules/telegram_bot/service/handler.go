package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"stock_bot/internal/models"
	"stock_bot/pkg/logger"
)

const helpText = `Команды:
/status — состояние движка
/positions — живые позиции
/trades [symbol] [n] — последние сделки
/watch list | add <sym> | del <sym> — watch-list
/params — текущие пороги стратегии
/help — это сообщение`

func (t *Telegram) handleCommand(ctx context.Context, msg *tgbot.Message) {
	if msg.Chat == nil || msg.Chat.ID != t.chatID() {
		// чужой чат игнорируем молча
		return
	}
	logger.Info("[TG] /%s %s", msg.Command(), msg.CommandArguments())

	switch msg.Command() {
	case "status":
		t.handleStatus(ctx)
	case "positions":
		t.handlePositions(ctx)
	case "trades":
		t.handleTrades(ctx, msg.CommandArguments())
	case "watch":
		t.handleWatch(ctx, msg.CommandArguments())
	case "params":
		t.handleParams(ctx)
	case "help", "start":
		t.Send(ctx, helpText)
	}
}

func (t *Telegram) handleStatus(ctx context.Context) {
	positions, err := t.st.ListPositions(ctx)
	if err != nil {
		t.SendF(ctx, "❗️ Ошибка чтения позиций: %v", err)
		return
	}
	holding := 0
	for _, p := range positions {
		if p.State == models.StateHolding || p.State == models.StateSellSent {
			holding++
		}
	}
	ws := "🔴"
	if t.health.WSConnected() {
		ws = "🟢"
	}
	t.SendF(ctx, "🩺 Движок жив | uptime %s | feed %s\nСимволов в списке: %d | записей позиций: %d | в рынке: %d",
		t.health.Uptime().Round(1e9), ws, len(t.watch.Symbols()), len(positions), holding)
}

func (t *Telegram) handlePositions(ctx context.Context) {
	positions, err := t.st.ListPositions(ctx)
	if err != nil {
		t.SendF(ctx, "❗️ Ошибка чтения позиций: %v", err)
		return
	}
	if len(positions) == 0 {
		t.Send(ctx, "📭 Позиций нет")
		return
	}

	var b strings.Builder
	b.WriteString("📊 Позиции:\n")
	for _, p := range positions {
		switch p.State {
		case models.StateHolding, models.StateSellSent:
			pnl := 0.0
			if p.EntryPrice > 0 {
				pnl = (p.HighestSinceEntry - p.EntryPrice) / p.EntryPrice * 100
			}
			fmt.Fprintf(&b, "- %s [%s] вход %.2f (%s) | стоп %.2f | hh %.2f (MFE %+.2f%%)\n",
				p.Symbol, p.State, p.EntryPrice, p.EntryTime.Format("01-02 15:04"),
				p.StopPrice, p.HighestSinceEntry, pnl)
		case models.StateCooldown:
			fmt.Fprintf(&b, "- %s [COOLDOWN] до %s\n", p.Symbol, p.CooldownUntil.Format("01-02 15:04"))
		default:
			fmt.Fprintf(&b, "- %s [%s] сигнал %.2f (%s)\n",
				p.Symbol, p.State, p.SignalPrice, p.SignalTime.Format("01-02 15:04"))
		}
	}
	t.Send(ctx, b.String())
}

func (t *Telegram) handleTrades(ctx context.Context, args string) {
	symbol := ""
	limit := 10
	for _, f := range strings.Fields(args) {
		if n, err := strconv.Atoi(f); err == nil {
			limit = n
			continue
		}
		symbol = strings.ToUpper(f)
	}

	trades, err := t.st.ListTrades(ctx, symbol, limit)
	if err != nil {
		t.SendF(ctx, "❗️ Ошибка чтения сделок: %v", err)
		return
	}
	if len(trades) == 0 {
		t.Send(ctx, "📭 Сделок ещё нет")
		return
	}

	var b strings.Builder
	b.WriteString("📒 Сделки:\n")
	for _, tr := range trades {
		fmt.Fprintf(&b, "- %s %.2f→%.2f %+.2f%% (%s) %s\n",
			tr.Symbol, tr.EntryPrice, tr.ExitPrice, tr.PnLPct, tr.ExitReason,
			tr.ExitTime.Format("01-02 15:04"))
	}
	t.Send(ctx, b.String())
}

func (t *Telegram) handleWatch(ctx context.Context, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 || fields[0] == "list" {
		t.SendF(ctx, "👀 Watch-list: %s", strings.Join(t.watch.Symbols(), ", "))
		return
	}
	if len(fields) < 2 {
		t.Send(ctx, "Использование: /watch add <sym> | del <sym> | list")
		return
	}
	sym := fields[1]
	switch fields[0] {
	case "add":
		added, err := t.watch.Add(sym)
		if err != nil {
			t.SendF(ctx, "❗️ %v", err)
			return
		}
		if !added {
			t.SendF(ctx, "⚠️ %s уже в списке", strings.ToUpper(sym))
			return
		}
		t.SendF(ctx, "➕ %s добавлен (подхватится на реконнекте фида)", strings.ToUpper(sym))
	case "del", "rm":
		removed, err := t.watch.Remove(sym)
		if err != nil {
			t.SendF(ctx, "❗️ %v", err)
			return
		}
		if !removed {
			t.SendF(ctx, "⚠️ %s и так не в списке", strings.ToUpper(sym))
			return
		}
		t.SendF(ctx, "➖ %s убран", strings.ToUpper(sym))
	default:
		t.Send(ctx, "Использование: /watch add <sym> | del <sym> | list")
	}
}

func (t *Telegram) handleParams(ctx context.Context) {
	p := t.cfg.Params()
	t.SendF(ctx,
		"⚙️ Параметры:\nMACD %d/%d/%d, подтверждение %d бар(а)\nRSI(%d) ∈ [%.0f, %.0f]\nADX(%d) ≥ %.0f\nATR(%d) × %.1f\nТаймаут подтверждения %s, авто-продажа: %v",
		p.MACDFast, p.MACDSlow, p.MACDSignal, p.ConfirmBars,
		p.RSIPeriod, p.RSILow, p.RSIHigh,
		p.ADXPeriod, p.ADXThreshold,
		p.ATRPeriod, p.ATRMultiplier,
		p.ConfirmTimeout, p.AutoSellOnTimeout,
	)
}
