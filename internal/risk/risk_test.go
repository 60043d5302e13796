package risk

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"stock_bot/internal/models"
)

func bar(high, low float64) models.Bar {
	return models.Bar{Symbol: "2330.TW", High: high, Low: low, Close: (high + low) / 2, Time: time.Now()}
}

func TestInitialStop(t *testing.T) {
	if got := InitialStop(100, 2, 2); got != 96 {
		t.Fatalf("InitialStop(100, 2, 2) = %v, want 96", got)
	}
	// без ATR — процентный fallback
	if got := InitialStop(100, 0, 2); got != 95 {
		t.Fatalf("InitialStop без ATR = %v, want 95", got)
	}
}

func TestRatchetNeverDecreases(t *testing.T) {
	pos := &models.Position{
		Symbol:            "2330.TW",
		EntryPrice:        100,
		HighestSinceEntry: 100,
		StopPrice:         InitialStop(100, 2, 2),
	}

	// рост до 110 при ATR=2 => стоп 106
	if breached := UpdateStop(pos, bar(110, 107), 2, true, 2); breached {
		t.Fatal("unexpected breach on rally")
	}
	if pos.StopPrice != 106 {
		t.Fatalf("stop = %v, want 106", pos.StopPrice)
	}

	// откат к 108 — стоп не опускается
	if breached := UpdateStop(pos, bar(108, 107), 2, true, 2); breached {
		t.Fatal("unexpected breach")
	}
	if pos.StopPrice != 106 {
		t.Fatalf("stop moved down to %v", pos.StopPrice)
	}
}

func TestBreach(t *testing.T) {
	pos := &models.Position{
		EntryPrice:        100,
		HighestSinceEntry: 100,
		StopPrice:         96,
	}
	if breached := UpdateStop(pos, bar(101, 95.5), 2, true, 2); !breached {
		t.Fatal("low 95.5 <= stop 96 must breach")
	}
}

func TestBreachWithoutATR(t *testing.T) {
	// стоп не двигается без ATR, но пробой всё равно ловится
	pos := &models.Position{EntryPrice: 100, HighestSinceEntry: 100, StopPrice: 96}
	if breached := UpdateStop(pos, bar(120, 110), 0, false, 2); breached {
		t.Fatal("unexpected breach")
	}
	if pos.StopPrice != 96 {
		t.Fatalf("stop = %v, want 96 (no ATR, no move)", pos.StopPrice)
	}
	if pos.HighestSinceEntry != 120 {
		t.Fatalf("highest = %v, want 120", pos.HighestSinceEntry)
	}
	if breached := UpdateStop(pos, bar(100, 96), 0, false, 2); !breached {
		t.Fatal("breach missed")
	}
}

// свойство: на любом случайном пути цены стоп монотонно не убывает
func TestStopMonotoneOnRandomPath(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		px := 100.0
		pos := &models.Position{
			EntryPrice:        px,
			HighestSinceEntry: px,
			StopPrice:         InitialStop(px, 2, 2),
		}
		prevStop := pos.StopPrice
		for i := 0; i < 200; i++ {
			px += rng.NormFloat64()
			high := px + math.Abs(rng.NormFloat64())
			low := px - math.Abs(rng.NormFloat64())
			atr := 0.5 + rng.Float64()*3
			breached := UpdateStop(pos, bar(high, low), atr, true, 2)
			if pos.StopPrice < prevStop {
				t.Fatalf("trial %d tick %d: stop dropped %v -> %v", trial, i, prevStop, pos.StopPrice)
			}
			prevStop = pos.StopPrice
			if breached {
				break
			}
		}
	}
}
