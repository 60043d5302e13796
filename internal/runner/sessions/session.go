package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/opentracing/opentracing-go"

	"stock_bot/internal/helper"
	"stock_bot/internal/indicator"
	"stock_bot/internal/models"
	"stock_bot/internal/risk"
	"stock_bot/internal/store"
	"stock_bot/pkg/logger"
)

// ErrHalted — сессия символа остановлена (потеря durability или нарушение
// инварианта); остальные символы живут дальше.
var ErrHalted = errors.New("symbol session halted")

const persistAttempts = 3

// Notifier — шлюз подтверждений и уведомлений (телеграм).
type Notifier interface {
	Send(ctx context.Context, msg string)
	SendF(ctx context.Context, format string, args ...any)
	// Confirm блокируется до решения человека, таймаута или отмены.
	Confirm(ctx context.Context, id, prompt string, timeout time.Duration) models.Decision
	// CancelConfirm снимает висящий запрос (кнопки гаснут, сообщение правится).
	CancelConfirm(id string)
}

// Opts — неизменяемые на время жизни сессии настройки.
type Opts struct {
	Symbol       string
	QueueMax     int
	BarInterval  time.Duration
	CooldownBars int
	Shares       float64
}

type barEvent struct {
	bar  models.Bar
	snap *indicator.Snapshot
	sig  *models.SignalEvent
	p    models.StrategyParams
}

type confirmEvent struct {
	id       string
	decision models.Decision
}

// Session — единственный владелец позиции одного символа. Бары и ответы
// подтверждений приходят событиями в один горутин-цикл, конкурентных
// мутаций позиции не бывает.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	opts Opts
	st   store.Store
	n    Notifier
	cal  *helper.SessionCalendar

	events chan any

	pos    *models.Position
	halted atomic.Bool

	lastBar       models.Bar
	deferredSell  *models.SignalEvent
	confirmSeq    int
	confirmCancel context.CancelFunc

	// параметры, зафиксированные на момент запроса подтверждения
	pendingAuto bool
	pendingMult float64
}

// New поднимает сессию. persisted — позиция из хранилища после рестарта
// (nil когда символ чистый); висевшие на момент падения подтверждения
// разрешаются как reject.
func New(parent context.Context, opts Opts, st store.Store, n Notifier, cal *helper.SessionCalendar, persisted *models.Position) *Session {
	if opts.QueueMax <= 0 {
		opts.QueueMax = 64
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		ctx:    ctx,
		cancel: cancel,
		opts:   opts,
		st:     st,
		n:      n,
		cal:    cal,
		events: make(chan any, opts.QueueMax),
	}
	s.restore(persisted)
	go s.loop()
	return s
}

func (s *Session) Stop() { s.cancel() }

// Enqueue кладёт цикл оценки в очередь сессии. Переполнение — дроп
// с логом, бар устаревает быстрее, чем имеет смысл его догонять.
func (s *Session) Enqueue(bar models.Bar, snap *indicator.Snapshot, sig *models.SignalEvent, p models.StrategyParams) {
	select {
	case s.events <- barEvent{bar: bar, snap: snap, sig: sig, p: p}:
	default:
		logger.Warn("[%s] session queue full, bar %s dropped", s.opts.Symbol, bar.Time.Format(time.RFC3339))
	}
}

// Position — копия текущей позиции для чтения снаружи (health, /status).
func (s *Session) Position() *models.Position {
	done := make(chan *models.Position, 1)
	select {
	case s.events <- readReq{resp: done}:
	case <-s.ctx.Done():
		return nil
	}
	select {
	case p := <-done:
		return p
	case <-s.ctx.Done():
		return nil
	}
}

type readReq struct{ resp chan *models.Position }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			switch e := ev.(type) {
			case barEvent:
				s.onBar(e)
			case confirmEvent:
				s.onConfirm(e)
			case readReq:
				if s.pos == nil {
					e.resp <- nil
				} else {
					cp := *s.pos
					e.resp <- &cp
				}
			}
		}
	}
}

// restore разруливает позицию после рестарта: ожидания подтверждений
// не переживают процесс.
func (s *Session) restore(p *models.Position) {
	if p == nil {
		return
	}
	switch p.State {
	case models.StateBuySent:
		// вход так и не подтвердили — сигнал сгорел
		if err := s.st.DeletePosition(s.ctx, p.Symbol); err != nil {
			logger.Error("[%s] restore cleanup: %v", p.Symbol, err)
		}
		return
	case models.StateSellSent:
		p.State = models.StateHolding
		p.PendingConfirmID = ""
		p.UpdatedAt = time.Now()
		if err := s.st.PutPosition(s.ctx, p); err != nil {
			logger.Error("[%s] restore downgrade: %v", p.Symbol, err)
		}
	}
	s.pos = p
	logger.Info("[%s] restored position: state=%s entry=%.2f stop=%.2f", p.Symbol, p.State, p.EntryPrice, p.StopPrice)
}

func (s *Session) onBar(e barEvent) {
	if s.halted.Load() {
		return
	}
	sp := opentracing.GlobalTracer().StartSpan("evaluate")
	sp.SetTag("symbol", s.opts.Symbol)
	defer sp.Finish()
	ctx := opentracing.ContextWithSpan(s.ctx, sp)

	s.lastBar = e.bar

	// истёкший кулдаун снимается на первом же баре
	if s.pos != nil && s.pos.State == models.StateCooldown && !e.bar.Time.Before(s.pos.CooldownUntil) {
		if !s.persist(ctx, func() error { return s.st.DeletePosition(ctx, s.opts.Symbol) }, "cooldown clear") {
			return
		}
		logger.Info("[%s] cooldown over", s.opts.Symbol)
		s.pos = nil
	}

	// риск раньше сигналов: пробой стопа перебивает любой висящий SELL
	if s.pos != nil && (s.pos.State == models.StateHolding || s.pos.State == models.StateSellSent) {
		before := *s.pos
		atr, hasATR := 0.0, false
		if e.snap != nil && e.snap.HasATR {
			atr, hasATR = e.snap.ATR, true
		}
		breached := risk.UpdateStop(s.pos, e.bar, atr, hasATR, e.p.ATRMultiplier)
		if s.pos.StopPrice != before.StopPrice || s.pos.HighestSinceEntry != before.HighestSinceEntry {
			s.pos.UpdatedAt = time.Now()
			if !s.persist(ctx, func() error { return s.st.PutPosition(ctx, s.pos) }, "stop update") {
				return
			}
		}
		if breached {
			if s.pos.State == models.StateSellSent {
				// висящий SELL отменяем: будет ровно один выход, STOP_LOSS
				s.abortConfirm()
			}
			s.deferredSell = nil
			s.closePosition(ctx, s.pos.StopPrice, models.ExitStopLoss, e.bar.Time)
			return
		}
	}

	// отложенный мёртвый крест дождался открытия сессии
	if s.deferredSell != nil && s.pos != nil && s.pos.State == models.StateHolding &&
		!e.bar.Time.Before(s.deferredSell.ActionableAfter) {
		sig := *s.deferredSell
		s.deferredSell = nil
		s.requestSell(ctx, sig, e.p)
	}

	if e.sig != nil {
		s.onSignal(ctx, *e.sig, e.p)
	}
}

func (s *Session) onSignal(ctx context.Context, sig models.SignalEvent, p models.StrategyParams) {
	switch sig.Side {
	case models.SideBuy:
		if s.pos != nil {
			// повторный BUY при живой позиции/кулдауне — молча мимо
			logger.Info("[%s] BUY dropped: state=%s", s.opts.Symbol, s.pos.State)
			return
		}
		s.requestBuy(ctx, sig, p)

	case models.SideSell:
		switch {
		case s.pos == nil:
			return
		case s.pos.State == models.StateBuySent:
			// вход не подтверждён, а тренд уже умер: снимаем запрос,
			// сам SELL глотаем — продавать нечего
			s.abortConfirm()
			if !s.persist(ctx, func() error { return s.st.DeletePosition(ctx, s.opts.Symbol) }, "buy cancel") {
				return
			}
			s.pos = nil
			s.n.SendF(ctx, "↩️ [%s] Вход отменён: мёртвый крест до подтверждения", s.opts.Symbol)
		case s.pos.State == models.StateHolding:
			if !sig.ActionableAfter.IsZero() && sig.Time.Before(sig.ActionableAfter) {
				// продаём не в день сигнала — ждём открытия
				cp := sig
				s.deferredSell = &cp
				s.n.SendF(ctx, "🕒 [%s] SELL отложен до %s (крест внутри сессии)",
					s.opts.Symbol, sig.ActionableAfter.Format("2006-01-02 15:04"))
				return
			}
			s.requestSell(ctx, sig, p)
		default:
			// SIGNAL_SELL_SENT / COOLDOWN: эпизод уже обработан
		}
	}
}

func (s *Session) requestBuy(ctx context.Context, sig models.SignalEvent, p models.StrategyParams) {
	now := time.Now()
	pos := &models.Position{
		Symbol:      s.opts.Symbol,
		State:       models.StateBuySent,
		Shares:      s.opts.Shares,
		SignalPrice: sig.Price,
		SignalTime:  sig.Time,
		Ctx:         sig.Ctx,
		UpdatedAt:   now,
	}
	pos.PendingConfirmID = s.nextConfirmID()
	// сначала запись, потом всё остальное: переход не случился, пока не сохранён
	if !s.persist(ctx, func() error { return s.st.PutPosition(ctx, pos) }, "buy pending") {
		return
	}
	s.pos = pos

	prompt := fmt.Sprintf(
		"🔔 [%s] BUY @ %.2f\n%s\nDIF=%.3f DEA=%.3f RSI=%.1f ADX=%.1f\nСтоп после входа: %.2f\nВходим?",
		sig.Symbol, sig.Price, sig.Reason,
		sig.Ctx.DIF, sig.Ctx.DEA, sig.Ctx.RSI, sig.Ctx.ADX,
		risk.InitialStop(sig.Price, sig.Ctx.ATR, p.ATRMultiplier),
	)
	s.spawnConfirm(pos.PendingConfirmID, prompt, p)
}

func (s *Session) requestSell(ctx context.Context, sig models.SignalEvent, p models.StrategyParams) {
	s.pos.State = models.StateSellSent
	s.pos.PendingConfirmID = s.nextConfirmID()
	s.pos.UpdatedAt = time.Now()
	if !s.persist(ctx, func() error { return s.st.PutPosition(ctx, s.pos) }, "sell pending") {
		return
	}

	pnl := pnlPct(s.pos.EntryPrice, sig.Price)
	prompt := fmt.Sprintf(
		"🔔 [%s] SELL @ %.2f (%s)\nВход %.2f | PnL %+.2f%% | стоп %.2f\nПродаём?",
		sig.Symbol, sig.Price, sig.Reason, s.pos.EntryPrice, pnl, s.pos.StopPrice,
	)
	s.spawnConfirm(s.pos.PendingConfirmID, prompt, p)
}

func (s *Session) nextConfirmID() string {
	s.confirmSeq++
	return fmt.Sprintf("%s-%d", s.opts.Symbol, s.confirmSeq)
}

func (s *Session) spawnConfirm(id, prompt string, p models.StrategyParams) {
	cctx, cancel := context.WithCancel(s.ctx)
	s.confirmCancel = cancel
	s.pendingAuto = p.AutoSellOnTimeout
	s.pendingMult = p.ATRMultiplier
	timeout := p.ConfirmTimeout
	go func() {
		dec := s.n.Confirm(cctx, id, prompt, timeout)
		select {
		case s.events <- confirmEvent{id: id, decision: dec}:
		case <-s.ctx.Done():
		}
	}()
}

// abortConfirm гасит висящий запрос; запоздавший ответ отсеется по id.
func (s *Session) abortConfirm() {
	if s.pos != nil && s.pos.PendingConfirmID != "" {
		s.n.CancelConfirm(s.pos.PendingConfirmID)
		s.pos.PendingConfirmID = ""
	}
	if s.confirmCancel != nil {
		s.confirmCancel()
		s.confirmCancel = nil
	}
}

func (s *Session) onConfirm(e confirmEvent) {
	if s.halted.Load() {
		return
	}
	if s.pos == nil || s.pos.PendingConfirmID != e.id {
		// ответ на уже снятый запрос
		return
	}
	ctx := s.ctx

	switch s.pos.State {
	case models.StateBuySent:
		if e.decision == models.DecisionAccepted {
			s.openPosition(ctx)
			return
		}
		if !s.persist(ctx, func() error { return s.st.DeletePosition(ctx, s.opts.Symbol) }, "buy discard") {
			return
		}
		s.pos = nil
		s.n.SendF(ctx, "⛔️ [%s] Вход отменён (%s)", s.opts.Symbol, e.decision)

	case models.StateSellSent:
		switch {
		case e.decision == models.DecisionAccepted:
			s.pos.PendingConfirmID = ""
			s.confirmCancel = nil
			s.closePosition(ctx, s.lastBar.Close, models.ExitSignal, s.lastBar.Time)
		case e.decision == models.DecisionTimeout && s.pendingAuto:
			// авто-продажа по таймауту включена в конфиге
			s.pos.PendingConfirmID = ""
			s.confirmCancel = nil
			s.closePosition(ctx, s.lastBar.Close, models.ExitTimeout, s.lastBar.Time)
		default:
			// отказ/таймаут: позиция живёт, стоп продолжает работать
			s.pos.State = models.StateHolding
			s.pos.PendingConfirmID = ""
			s.pos.UpdatedAt = time.Now()
			s.confirmCancel = nil
			if !s.persist(ctx, func() error { return s.st.PutPosition(ctx, s.pos) }, "sell discard") {
				return
			}
			s.n.SendF(ctx, "⏸ [%s] SELL отклонён (%s), держим дальше", s.opts.Symbol, e.decision)
		}

	default:
		s.haltf("confirm %s in state %s", e.id, s.pos.State)
	}
}

func (s *Session) openPosition(ctx context.Context) {
	if s.pos.State != models.StateBuySent {
		s.haltf("open from state %s", s.pos.State)
		return
	}
	s.pos.State = models.StateHolding
	s.pos.EntryPrice = s.pos.SignalPrice
	s.pos.EntryTime = s.pos.SignalTime
	s.pos.EntryATR = s.pos.Ctx.ATR
	s.pos.HighestSinceEntry = s.pos.EntryPrice
	s.pos.StopPrice = risk.InitialStop(s.pos.EntryPrice, s.pos.EntryATR, s.pendingMult)
	s.pos.PendingConfirmID = ""
	s.pos.UpdatedAt = time.Now()
	s.confirmCancel = nil

	if !s.persist(ctx, func() error { return s.st.PutPosition(ctx, s.pos) }, "open") {
		return
	}
	s.n.SendF(ctx, "✅ [%s] Вход подтверждён | BUY @ %.2f | стоп %.2f (ATR %.3f)",
		s.opts.Symbol, s.pos.EntryPrice, s.pos.StopPrice, s.pos.EntryATR)
}

func (s *Session) closePosition(ctx context.Context, exitPrice float64, reason models.ExitReason, at time.Time) {
	pos := s.pos
	pnl := pnlPct(pos.EntryPrice, exitPrice)

	pos.State = models.StateCooldown
	pos.CooldownUntil = s.cooldownUntil(at)
	pos.PendingConfirmID = ""
	pos.UpdatedAt = time.Now()
	if !s.persist(ctx, func() error { return s.st.PutPosition(ctx, pos) }, "close") {
		return
	}

	tr := &models.Trade{
		Symbol:     pos.Symbol,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		EntryTime:  pos.EntryTime,
		ExitTime:   at,
		Shares:     pos.Shares,
		PnLPct:     pnl,
		ExitReason: reason,
	}
	if !s.persist(ctx, func() error { return s.st.AppendTrade(ctx, tr) }, "trade append") {
		return
	}

	icon := "💰"
	if pnl < 0 {
		icon = "📉"
	}
	if reason == models.ExitStopLoss {
		icon = "🛑"
	}
	s.n.SendF(ctx, "%s [%s] Выход (%s) @ %.2f | вход %.2f | PnL %+.2f%% | кулдаун до %s",
		icon, pos.Symbol, reason, exitPrice, pos.EntryPrice, pnl,
		pos.CooldownUntil.Format("2006-01-02 15:04"))
}

// cooldownUntil — не раньше открытия следующей сессии (продали сегодня —
// новый вход не раньше завтра) и не раньше cooldown_bars баров.
func (s *Session) cooldownUntil(exit time.Time) time.Time {
	until := exit.Add(24 * time.Hour)
	if s.cal != nil {
		until = s.cal.NextOpen(exit)
	}
	if s.opts.CooldownBars > 0 && s.opts.BarInterval > 0 {
		if byBars := exit.Add(time.Duration(s.opts.CooldownBars) * s.opts.BarInterval); byBars.After(until) {
			until = byBars
		}
	}
	return until
}

func (s *Session) persist(ctx context.Context, fn func() error, what string) bool {
	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if err = fn(); err == nil {
			return true
		}
		logger.Error("[%s] persist %s (attempt %d/%d): %v", s.opts.Symbol, what, attempt, persistAttempts, err)
		time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
	}
	// durability потеряна — переход не считается случившимся
	s.haltf("persist %s failed: %v", what, err)
	return false
}

func (s *Session) haltf(format string, args ...any) {
	s.halted.Store(true)
	msg := fmt.Sprintf(format, args...)
	logger.Error("[%s] session halted: %s", s.opts.Symbol, msg)
	s.n.SendF(s.ctx, "🛑 [%s] Сессия символа остановлена: %s", s.opts.Symbol, msg)
	if err := s.st.AppendLog(s.ctx, "FATAL", "runner", s.opts.Symbol+": "+msg); err != nil {
		logger.Error("[%s] halt log: %v", s.opts.Symbol, err)
	}
}

// Halted — остановлена ли сессия (для health-отчёта).
func (s *Session) Halted() bool { return s.halted.Load() }

func pnlPct(entry, exit float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (exit - entry) / entry * 100
}
