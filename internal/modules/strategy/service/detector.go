package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"stock_bot/internal/helper"
	"stock_bot/internal/indicator"
	"stock_bot/internal/models"
)

// ErrOutOfOrder — бар с неубывающим временем уже был; дропаем, не падаем.
var ErrOutOfOrder = errors.New("bar out of order")

// Detector ищет золотые/мёртвые кресты MACD с дебаунсом подтверждения.
// Один BUY на эпизод подтверждения, один SELL на эпизод мёртвого креста.
type Detector struct {
	mu         sync.Mutex
	cal        *helper.SessionCalendar
	historyMax int

	state map[string]*symState
}

type symState struct {
	bars     []models.Bar
	lastTime time.Time

	seeded   bool // был хотя бы один снапшот
	prevSign int

	// открытый кандидат золотого креста; новый крест заменяет
	// неподтверждённый старый
	candidateOpen  bool
	candidateCount int

	buyDone  bool // BUY уже отдан в текущем up-эпизоде
	sellDone bool // SELL уже отдан в текущем down-эпизоде

	ready bool
}

func NewDetector(cal *helper.SessionCalendar, historyMax int) *Detector {
	if historyMax <= 0 {
		historyMax = 500
	}
	return &Detector{
		cal:        cal,
		historyMax: historyMax,
		state:      make(map[string]*symState),
	}
}

// OnBar принимает очередной закрытый бар и возвращает снапшот индикаторов
// (nil пока истории мало) и сигнал, если родился. Детектор валидирует
// строгий рост таймстемпов по символу.
func (d *Detector) OnBar(bar models.Bar, p models.StrategyParams) (snap *indicator.Snapshot, sig *models.SignalEvent, becameReady bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.state[bar.Symbol]
	if st == nil {
		st = &symState{}
		d.state[bar.Symbol] = st
	}

	if !st.lastTime.IsZero() && !bar.Time.After(st.lastTime) {
		return nil, nil, false, fmt.Errorf("%w: %s %s after %s",
			ErrOutOfOrder, bar.Symbol, bar.Time.Format(time.RFC3339), st.lastTime.Format(time.RFC3339))
	}
	st.lastTime = bar.Time

	st.bars = append(st.bars, bar)
	if len(st.bars) > d.historyMax {
		st.bars = st.bars[len(st.bars)-d.historyMax:]
	}

	snaps := indicator.Compute(st.bars, p)
	if len(snaps) == 0 {
		return nil, nil, false, nil // истории мало — не ошибка
	}
	s := snaps[len(snaps)-1]
	snap = &s

	if !st.ready {
		st.ready = true
		becameReady = true
	}

	sign := 0
	switch {
	case s.DIF > s.DEA:
		sign = 1
	case s.DIF < s.DEA:
		sign = -1
	}

	if !st.seeded {
		// первый снапшот: запоминаем сторону, эпизод не открываем
		st.seeded = true
		st.prevSign = sign
		return snap, nil, becameReady, nil
	}

	if sign > 0 {
		st.sellDone = false
		if st.prevSign <= 0 {
			// золотой крест — новый кандидат
			st.candidateOpen = true
			st.candidateCount = 0
			st.buyDone = false
		} else if st.candidateOpen && !st.buyDone {
			st.candidateCount++
			if st.candidateCount >= p.ConfirmBars {
				st.candidateOpen = false
				// фильтры считаем на баре подтверждения, не на баре креста
				if passesFilters(s, p) {
					st.buyDone = true
					sig = &models.SignalEvent{
						Symbol: bar.Symbol,
						Time:   bar.Time,
						Side:   models.SideBuy,
						Price:  bar.Close,
						Reason: fmt.Sprintf("golden cross +%d bars, RSI=%.1f ADX=%.1f", p.ConfirmBars, s.RSI, s.ADX),
						Ctx:    snapshotCtx(s),
					}
				}
			}
		}
	} else {
		st.candidateOpen = false // кандидат сорван до подтверждения
		st.buyDone = false
		if st.prevSign > 0 && !st.sellDone {
			st.sellDone = true
			sig = &models.SignalEvent{
				Symbol: bar.Symbol,
				Time:   bar.Time,
				Side:   models.SideSell,
				Price:  bar.Close,
				Reason: "death cross",
				Ctx:    snapshotCtx(s),
			}
			// внутри сессии крест нельзя исполнять до открытия следующей
			if d.cal != nil && d.cal.InSession(bar.Time) {
				sig.ActionableAfter = d.cal.NextOpen(bar.Time)
			}
		}
	}
	st.prevSign = sign

	return snap, sig, becameReady, nil
}

// IsReady — прошёл ли символ прогрев индикаторов.
func (d *Detector) IsReady(symbol string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.state[symbol]
	return st != nil && st.ready
}

func (d *Detector) Dump(symbol string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.state[symbol]
	if st == nil {
		return "no state"
	}
	return fmt.Sprintf("bars=%d sign=%d candidate=%v/%d", len(st.bars), st.prevSign, st.candidateOpen, st.candidateCount)
}

func passesFilters(s indicator.Snapshot, p models.StrategyParams) bool {
	if !s.HasRSI || s.RSI < p.RSILow || s.RSI > p.RSIHigh {
		return false
	}
	if !s.HasADX || s.ADX < p.ADXThreshold {
		return false
	}
	return true
}

func snapshotCtx(s indicator.Snapshot) models.SignalContext {
	return models.SignalContext{
		DIF:  s.DIF,
		DEA:  s.DEA,
		Hist: s.Hist,
		RSI:  s.RSI,
		ADX:  s.ADX,
		ATR:  s.ATR,
	}
}
