package indicator

import (
	"math"
	"testing"
	"time"

	"stock_bot/internal/models"
)

func testParams() models.StrategyParams {
	return models.StrategyParams{
		MACDFast:      12,
		MACDSlow:      26,
		MACDSignal:    9,
		RSIPeriod:     14,
		RSILow:        30,
		RSIHigh:       70,
		ADXPeriod:     14,
		ADXThreshold:  25,
		ATRPeriod:     14,
		ATRMultiplier: 2,
		ConfirmBars:   3,
	}
}

func mkBars(closes []float64) []models.Bar {
	t0 := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			Symbol: "2330.TW",
			Time:   t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
		}
	}
	return bars
}

func TestComputeInsufficientHistory(t *testing.T) {
	p := testParams()
	closes := make([]float64, p.MinBars()-1)
	for i := range closes {
		closes[i] = 100
	}
	if snaps := Compute(mkBars(closes), p); snaps != nil {
		t.Fatalf("expected no snapshots for %d bars, got %d", len(closes), len(snaps))
	}
}

func TestComputeSnapshotCount(t *testing.T) {
	p := testParams()
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100 + float64(i%7)
	}
	snaps := Compute(mkBars(closes), p)
	want := 100 - p.MinBars() + 1
	if len(snaps) != want {
		t.Fatalf("snapshots = %d, want %d", len(snaps), want)
	}
	if !snaps[0].Time.Equal(mkBars(closes)[p.MinBars()-1].Time) {
		t.Fatalf("first snapshot at wrong bar")
	}
}

func TestFlatMarket(t *testing.T) {
	p := testParams()
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 50
	}
	snaps := Compute(mkBars(closes), p)
	if len(snaps) == 0 {
		t.Fatal("no snapshots")
	}
	last := snaps[len(snaps)-1]
	if math.Abs(last.Hist) > 1e-9 || math.Abs(last.DIF) > 1e-9 {
		t.Fatalf("flat market MACD hist = %v, dif = %v, want 0", last.Hist, last.DIF)
	}
	if !last.HasRSI || math.Abs(last.RSI-50) > 1e-9 {
		t.Fatalf("flat market RSI = %v, want 50", last.RSI)
	}
	if !last.HasATR || math.Abs(last.ATR) > 1e-9 {
		t.Fatalf("flat market ATR = %v, want 0", last.ATR)
	}
}

func TestRSIAllGains(t *testing.T) {
	p := testParams()
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	snaps := Compute(mkBars(closes), p)
	last := snaps[len(snaps)-1]
	if !last.HasRSI || math.Abs(last.RSI-100) > 1e-9 {
		t.Fatalf("monotone rally RSI = %v, want 100", last.RSI)
	}
}

func TestADXWarmup(t *testing.T) {
	p := testParams()
	p.MACDSlow, p.MACDSignal = 3, 2 // снапшоты с 5-го бара, до прогрева ADX
	closes := make([]float64, 2*p.ADXPeriod+5)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i))*3
	}
	snaps := Compute(mkBars(closes), p)
	if snaps[0].HasADX {
		t.Fatal("ADX present before 2×period bars")
	}
	if !snaps[len(snaps)-1].HasADX {
		t.Fatal("ADX absent after 2×period bars")
	}
}

func TestComputeDeterministic(t *testing.T) {
	p := testParams()
	closes := make([]float64, 150)
	px := 100.0
	for i := range closes {
		px += math.Sin(float64(i)*0.7) * 2
		closes[i] = px
	}
	bars := mkBars(closes)

	a := Compute(bars, p)
	b := Compute(bars, p)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("snapshot %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestATRConstantRange(t *testing.T) {
	p := testParams()
	bars := mkBars(make([]float64, 80))
	for i := range bars {
		bars[i].Open = 100
		bars[i].Close = 100
		bars[i].High = 101
		bars[i].Low = 99
	}
	snaps := Compute(bars, p)
	last := snaps[len(snaps)-1]
	if !last.HasATR || math.Abs(last.ATR-2) > 1e-9 {
		t.Fatalf("constant 2-point range ATR = %v, want 2", last.ATR)
	}
}
