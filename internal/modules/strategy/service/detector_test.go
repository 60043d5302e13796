package service

import (
	"errors"
	"testing"
	"time"

	"stock_bot/internal/helper"
	"stock_bot/internal/indicator"
	"stock_bot/internal/models"
)

func detParams(confirm int) models.StrategyParams {
	return models.StrategyParams{
		MACDFast:     5,
		MACDSlow:     10,
		MACDSignal:   3,
		RSIPeriod:    5,
		RSILow:       0,
		RSIHigh:      100,
		ADXPeriod:    5,
		ADXThreshold: 0,
		ATRPeriod:    5,
		ATRMultiplier: 2,
		ConfirmBars:  confirm,
	}
}

func detBars(closes []float64, base time.Time, step time.Duration) []models.Bar {
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			Symbol: "2330",
			Time:   base.Add(time.Duration(i) * step),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

// V-образный ряд: падение, затем устойчивый рост.
func vShape(down, up int) []float64 {
	closes := make([]float64, 0, down+up)
	px := 200.0
	for i := 0; i < down; i++ {
		px -= 1
		closes = append(closes, px)
	}
	for i := 0; i < up; i++ {
		px += 1
		closes = append(closes, px)
	}
	return closes
}

func taipei(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Taipei")
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	return loc
}

// Сторона DIF относительно DEA по снапшотам всего ряда (индикаторы
// каузальны, так что префиксный расчёт детектора совпадает).
func signs(t *testing.T, bars []models.Bar, p models.StrategyParams) []int {
	t.Helper()
	snaps := indicator.Compute(bars, p)
	if len(snaps) == 0 {
		t.Fatal("no snapshots, series too short")
	}
	out := make([]int, len(snaps))
	for i, s := range snaps {
		switch {
		case s.DIF > s.DEA:
			out[i] = 1
		case s.DIF < s.DEA:
			out[i] = -1
		}
	}
	return out
}

func TestDetectorOneBuyPerConfirmationEpisode(t *testing.T) {
	loc := taipei(t)
	base := time.Date(2024, 1, 8, 9, 0, 0, 0, loc) // понедельник, открытие
	p := detParams(3)
	bars := detBars(vShape(50, 60), base, time.Minute)

	sg := signs(t, bars, p)
	first := p.MinBars() - 1 // индекс бара первого снапшота
	crossAt := -1
	for i := 1; i < len(sg); i++ {
		if sg[i] > 0 && sg[i-1] <= 0 {
			crossAt = first + i
			break
		}
	}
	if crossAt < 0 {
		t.Fatal("series never produced a golden cross")
	}

	det := NewDetector(helper.DefaultCalendar(loc), 500)
	var buys []models.SignalEvent
	for _, b := range bars {
		_, sig, _, err := det.OnBar(b, p)
		if err != nil {
			t.Fatalf("OnBar(%s): %v", b.Time, err)
		}
		if sig != nil && sig.Side == models.SideBuy {
			buys = append(buys, *sig)
		}
	}

	if len(buys) != 1 {
		t.Fatalf("want exactly 1 BUY, got %d", len(buys))
	}
	wantTime := bars[crossAt+p.ConfirmBars].Time
	if !buys[0].Time.Equal(wantTime) {
		t.Errorf("BUY at %s, want %s (cross bar +%d)", buys[0].Time, wantTime, p.ConfirmBars)
	}
	if buys[0].Price != bars[crossAt+p.ConfirmBars].Close {
		t.Errorf("BUY price = %v, want close of confirmation bar %v", buys[0].Price, bars[crossAt+p.ConfirmBars].Close)
	}
	if !buys[0].ActionableAfter.IsZero() {
		t.Errorf("BUY must be actionable immediately, got ActionableAfter=%s", buys[0].ActionableAfter)
	}
	if buys[0].Ctx.RSI <= 0 || buys[0].Ctx.ADX < 0 {
		t.Errorf("signal context not filled: %+v", buys[0].Ctx)
	}
}

func TestDetectorBrokenConfirmationDiscarded(t *testing.T) {
	loc := taipei(t)
	base := time.Date(2024, 1, 8, 9, 0, 0, 0, loc)
	// подтверждение дольше любого всплеска: короткий отскок в падении
	// не должен дать BUY
	p := detParams(30)

	closes := make([]float64, 0, 80)
	px := 200.0
	for i := 0; i < 40; i++ {
		px -= 1
		closes = append(closes, px)
	}
	px += 3
	closes = append(closes, px)
	px += 3
	closes = append(closes, px)
	for i := 0; i < 38; i++ {
		px -= 1
		closes = append(closes, px)
	}
	bars := detBars(closes, base, time.Minute)

	det := NewDetector(helper.DefaultCalendar(loc), 500)
	for _, b := range bars {
		_, sig, _, err := det.OnBar(b, p)
		if err != nil {
			t.Fatalf("OnBar: %v", err)
		}
		if sig != nil && sig.Side == models.SideBuy {
			t.Fatalf("unexpected BUY at %s: confirmation was never held %d bars", sig.Time, p.ConfirmBars)
		}
	}
}

func TestDetectorFiltersRejectBuy(t *testing.T) {
	loc := taipei(t)
	base := time.Date(2024, 1, 8, 9, 0, 0, 0, loc)
	p := detParams(3)
	p.ADXThreshold = 1000 // заведомо непроходимый фильтр

	det := NewDetector(helper.DefaultCalendar(loc), 500)
	for _, b := range detBars(vShape(50, 60), base, time.Minute) {
		_, sig, _, err := det.OnBar(b, p)
		if err != nil {
			t.Fatalf("OnBar: %v", err)
		}
		if sig != nil && sig.Side == models.SideBuy {
			t.Fatalf("BUY emitted despite failing ADX filter")
		}
	}
}

func TestDetectorOneSellPerDeathCross(t *testing.T) {
	loc := taipei(t)
	base := time.Date(2024, 1, 8, 9, 0, 0, 0, loc)
	p := detParams(3)

	closes := vShape(40, 40)
	px := closes[len(closes)-1]
	for i := 0; i < 40; i++ {
		px -= 1
		closes = append(closes, px)
	}
	bars := detBars(closes, base, time.Minute)

	det := NewDetector(helper.DefaultCalendar(loc), 500)
	var sells []models.SignalEvent
	for _, b := range bars {
		_, sig, _, err := det.OnBar(b, p)
		if err != nil {
			t.Fatalf("OnBar: %v", err)
		}
		if sig != nil && sig.Side == models.SideSell {
			sells = append(sells, *sig)
		}
	}

	if len(sells) != 1 {
		t.Fatalf("want exactly 1 SELL for one death cross, got %d", len(sells))
	}
	// крест случился внутри сессии — исполнение не раньше следующего открытия
	if sells[0].ActionableAfter.IsZero() {
		t.Fatal("in-session SELL must carry ActionableAfter")
	}
	if !sells[0].ActionableAfter.After(sells[0].Time) {
		t.Errorf("ActionableAfter %s not after signal time %s", sells[0].ActionableAfter, sells[0].Time)
	}
}

func TestDetectorRejectsOutOfOrderBars(t *testing.T) {
	loc := taipei(t)
	base := time.Date(2024, 1, 8, 9, 0, 0, 0, loc)
	p := detParams(3)
	det := NewDetector(helper.DefaultCalendar(loc), 500)

	b := models.Bar{Symbol: "2330", Time: base, Open: 100, High: 101, Low: 99, Close: 100}
	if _, _, _, err := det.OnBar(b, p); err != nil {
		t.Fatalf("first bar: %v", err)
	}

	// дубликат по времени
	if _, _, _, err := det.OnBar(b, p); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("duplicate timestamp: got %v, want ErrOutOfOrder", err)
	}
	// бар из прошлого
	old := b
	old.Time = base.Add(-time.Minute)
	if _, _, _, err := det.OnBar(old, p); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("stale bar: got %v, want ErrOutOfOrder", err)
	}
	// нормальный следующий бар принимается после дропа
	next := b
	next.Time = base.Add(time.Minute)
	if _, _, _, err := det.OnBar(next, p); err != nil {
		t.Fatalf("next bar after drop: %v", err)
	}

	// другой символ живёт своей шкалой времени
	other := b
	other.Symbol = "2317"
	if _, _, _, err := det.OnBar(other, p); err != nil {
		t.Fatalf("independent symbol: %v", err)
	}
}
