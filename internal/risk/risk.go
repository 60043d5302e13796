package risk

import (
	"stock_bot/internal/models"
)

// InitialStop — стоп на входе: entry − mult×ATR. Если ATR на входе
// недоступен, откат к процентному стопу (как делал исходный бот).
func InitialStop(entry, atr, mult float64) float64 {
	if atr > 0 && mult > 0 {
		return entry - mult*atr
	}
	return entry * 0.95
}

// UpdateStop — храповик: стоп пересчитывается от максимума с момента
// входа и только поднимается. Возвращает breached=true когда low бара
// пробил активный стоп; проверяется на каждом баре независимо от
// сигналов и приоритетнее любого висящего SELL.
func UpdateStop(pos *models.Position, bar models.Bar, atr float64, hasATR bool, mult float64) (breached bool) {
	if bar.High > pos.HighestSinceEntry {
		pos.HighestSinceEntry = bar.High
		if hasATR && mult > 0 {
			candidate := pos.HighestSinceEntry - mult*atr
			if candidate > pos.StopPrice {
				pos.StopPrice = candidate
			}
		}
	}
	return bar.Low <= pos.StopPrice
}
