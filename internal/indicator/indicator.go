package indicator

import (
	"time"

	"stock_bot/internal/models"
)

// Snapshot — значения индикаторов на одном закрытом баре. MACD валиден
// всегда (снапшоты начинаются только после его прогрева), остальные
// индикаторы несут собственный флаг готовности.
type Snapshot struct {
	Time time.Time

	DIF  float64
	DEA  float64
	Hist float64

	RSI    float64
	HasRSI bool

	ADX    float64
	HasADX bool

	ATR    float64
	HasATR bool
}

// Compute — чистая функция: упорядоченные бары -> снапшоты индикаторов.
// Никакого скрытого состояния: повторный вызов на той же истории даёт
// побайтово тот же результат. Пока истории меньше чем нужно MACD
// (slow + signal баров) — снапшотов нет вообще, не нули.
func Compute(bars []models.Bar, p models.StrategyParams) []Snapshot {
	n := len(bars)
	minBars := p.MinBars()
	if n < minBars {
		return nil
	}

	dif, dea := macdSeries(bars, p.MACDFast, p.MACDSlow, p.MACDSignal)
	rsi, rsiFrom := rsiSeries(bars, p.RSIPeriod)
	atr, atrFrom := atrSeries(bars, p.ATRPeriod)
	adx, adxFrom := adxSeries(bars, p.ADXPeriod)

	out := make([]Snapshot, 0, n-minBars+1)
	for i := minBars - 1; i < n; i++ {
		s := Snapshot{
			Time: bars[i].Time,
			DIF:  dif[i],
			DEA:  dea[i],
			Hist: dif[i] - dea[i],
		}
		if i >= rsiFrom {
			s.RSI, s.HasRSI = rsi[i], true
		}
		if i >= atrFrom {
			s.ATR, s.HasATR = atr[i], true
		}
		if i >= adxFrom {
			s.ADX, s.HasADX = adx[i], true
		}
		out = append(out, s)
	}
	return out
}

// emaSeries — EMA с сидом простым средним первых period значений,
// определена с индекса from = period-1.
func emaSeries(vals []float64, period int, offset int) ([]float64, int) {
	out := make([]float64, len(vals))
	from := offset + period - 1
	if from >= len(vals) {
		return out, len(vals)
	}

	sum := 0.0
	for i := offset; i <= from; i++ {
		sum += vals[i]
	}
	out[from] = sum / float64(period)

	k := 2.0 / float64(period+1)
	for i := from + 1; i < len(vals); i++ {
		out[i] = out[i-1] + k*(vals[i]-out[i-1])
	}
	return out, from
}

func macdSeries(bars []models.Bar, fast, slow, signal int) (dif, dea []float64) {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	emaFast, _ := emaSeries(closes, fast, 0)
	emaSlow, slowFrom := emaSeries(closes, slow, 0)

	dif = make([]float64, len(bars))
	for i := slowFrom; i < len(bars); i++ {
		dif[i] = emaFast[i] - emaSlow[i]
	}

	// DEA — EMA от DIF, сид считается от первого валидного DIF
	dea, _ = emaSeries(dif, signal, slowFrom)
	return dif, dea
}

// rsiSeries — RSI по Уайлдеру. 100 когда средний убыток 0 при ненулевом
// среднем росте, 50 когда рынок полностью плоский.
func rsiSeries(bars []models.Bar, period int) ([]float64, int) {
	out := make([]float64, len(bars))
	if period <= 0 || len(bars) <= period {
		return out, len(bars)
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		d := bars[i].Close - bars[i-1].Close
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(bars); i++ {
		d := bars[i].Close - bars[i-1].Close
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out, period
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func trueRange(cur, prev models.Bar) float64 {
	tr := cur.High - cur.Low
	if d := cur.High - prev.Close; d < 0 {
		d = -d
		if d > tr {
			tr = d
		}
	} else if d > tr {
		tr = d
	}
	if d := cur.Low - prev.Close; d < 0 {
		d = -d
		if d > tr {
			tr = d
		}
	} else if d > tr {
		tr = d
	}
	return tr
}

// atrSeries — ATR по Уайлдеру, определён с индекса period-1.
func atrSeries(bars []models.Bar, period int) ([]float64, int) {
	out := make([]float64, len(bars))
	if period <= 0 || len(bars) < period {
		return out, len(bars)
	}

	tr := make([]float64, len(bars))
	tr[0] = bars[0].High - bars[0].Low
	for i := 1; i < len(bars); i++ {
		tr[i] = trueRange(bars[i], bars[i-1])
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	out[period-1] = sum / float64(period)
	for i := period; i < len(bars); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out, period - 1
}

// adxSeries — ADX из сглаженных по Уайлдеру +DM/-DM и TR.
// Валиден только с индекса 2*period-1 (спереди — отсутствие, не ноль).
func adxSeries(bars []models.Bar, period int) ([]float64, int) {
	out := make([]float64, len(bars))
	if period <= 0 || len(bars) < 2*period {
		return out, len(bars)
	}

	n := len(bars)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
		tr[i] = trueRange(bars[i], bars[i-1])
	}

	// первые period значений суммируются, дальше сглаживание Уайлдера
	var smPlus, smMinus, smTR float64
	for i := 1; i <= period; i++ {
		smPlus += plusDM[i]
		smMinus += minusDM[i]
		smTR += tr[i]
	}

	dx := make([]float64, n)
	dx[period] = dxValue(smPlus, smMinus, smTR)
	for i := period + 1; i < n; i++ {
		smPlus = smPlus - smPlus/float64(period) + plusDM[i]
		smMinus = smMinus - smMinus/float64(period) + minusDM[i]
		smTR = smTR - smTR/float64(period) + tr[i]
		dx[i] = dxValue(smPlus, smMinus, smTR)
	}

	// ADX — среднее Уайлдера от DX
	from := 2*period - 1
	sum := 0.0
	for i := period; i <= from; i++ {
		sum += dx[i]
	}
	out[from] = sum / float64(period)
	for i := from + 1; i < n; i++ {
		out[i] = (out[i-1]*float64(period-1) + dx[i]) / float64(period)
	}
	return out, from
}

func dxValue(smPlus, smMinus, smTR float64) float64 {
	if smTR == 0 {
		return 0
	}
	diPlus := 100 * smPlus / smTR
	diMinus := 100 * smMinus / smTR
	sum := diPlus + diMinus
	if sum == 0 {
		return 0
	}
	d := diPlus - diMinus
	if d < 0 {
		d = -d
	}
	return 100 * d / sum
}
