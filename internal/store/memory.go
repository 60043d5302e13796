package store

import (
	"context"
	"sync"
	"time"

	"stock_bot/internal/models"
)

// Memory — то же Store-поведение без Postgres: тесты и запуск без БД.
type Memory struct {
	mu        sync.RWMutex
	positions map[string]*models.Position
	trades    []*models.Trade
	signals   []*models.SignalEvent
	logs      []memLog
}

type memLog struct {
	Level   string
	Module  string
	Message string
	At      time.Time
}

func NewMemory() *Memory {
	return &Memory{
		positions: make(map[string]*models.Position),
	}
}

func (m *Memory) GetPosition(_ context.Context, symbol string) (*models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[symbol]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pos
	return &cp, nil
}

func (m *Memory) PutPosition(_ context.Context, pos *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pos
	m.positions[pos.Symbol] = &cp
	return nil
}

func (m *Memory) DeletePosition(_ context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, symbol)
	return nil
}

func (m *Memory) ListPositions(_ context.Context) ([]*models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		cp := *pos
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) AppendTrade(_ context.Context, tr *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tr
	m.trades = append(m.trades, &cp)
	return nil
}

func (m *Memory) ListTrades(_ context.Context, symbol string, limit int) ([]*models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]*models.Trade, 0, limit)
	for i := len(m.trades) - 1; i >= 0 && len(out) < limit; i-- {
		if symbol != "" && m.trades[i].Symbol != symbol {
			continue
		}
		cp := *m.trades[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) AppendSignal(_ context.Context, sig *models.SignalEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sig
	m.signals = append(m.signals, &cp)
	return nil
}

func (m *Memory) ListSignals(_ context.Context, symbol string, limit int) ([]*models.SignalEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]*models.SignalEvent, 0, limit)
	for i := len(m.signals) - 1; i >= 0 && len(out) < limit; i-- {
		if symbol != "" && m.signals[i].Symbol != symbol {
			continue
		}
		cp := *m.signals[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) AppendLog(_ context.Context, level, module, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, memLog{Level: level, Module: module, Message: message, At: time.Now()})
	if len(m.logs) > 500 {
		m.logs = m.logs[len(m.logs)-500:]
	}
	return nil
}
