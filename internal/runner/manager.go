package runner

import (
	"context"
	"sync"
	"time"

	"stock_bot/internal/helper"
	"stock_bot/internal/indicator"
	"stock_bot/internal/models"
	"stock_bot/internal/modules/config"
	healthsvc "stock_bot/internal/modules/health/service"
	"stock_bot/internal/runner/sessions"
	"stock_bot/internal/store"
	"stock_bot/pkg/logger"
)

// Manager раздаёт бары по сессиям-владельцам: один символ — одна
// горутина, чужие символы друг друга не видят.
type Manager struct {
	cfg    *config.Config
	st     store.Store
	n      sessions.Notifier
	cal    *helper.SessionCalendar
	health *healthsvc.State

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*sessions.Session
}

func NewManager(cfg *config.Config, st store.Store, n sessions.Notifier, health *healthsvc.State) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		st:       st,
		n:        n,
		cal:      cfg.Calendar(),
		health:   health,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*sessions.Session),
	}
}

// Start восстанавливает позиции из хранилища и поднимает их сессии.
func (m *Manager) Start() error {
	positions, err := m.st.ListPositions(m.ctx)
	if err != nil {
		return err
	}
	for _, p := range positions {
		m.mu.Lock()
		m.sessions[p.Symbol] = m.newSession(p.Symbol, p)
		m.mu.Unlock()
	}
	if len(positions) > 0 {
		logger.Info("[RUNNER] restored %d position(s)", len(positions))
		m.n.SendF(m.ctx, "♻️ Рестарт: восстановлено позиций — %d", len(positions))
	}

	go m.healthLoop(m.ctx)
	return nil
}

func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel()
	for _, s := range m.sessions {
		s.Stop()
	}
}

// OnBar — приёмник цикла оценки от хаба стратегии.
func (m *Manager) OnBar(ctx context.Context, bar models.Bar, snap *indicator.Snapshot, sig *models.SignalEvent, p models.StrategyParams) {
	m.health.Touch(bar.Symbol, bar.Time)
	m.session(bar.Symbol).Enqueue(bar, snap, sig, p)
}

func (m *Manager) session(symbol string) *sessions.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[symbol]
	if !ok {
		s = m.newSession(symbol, nil)
		m.sessions[symbol] = s
	}
	return s
}

func (m *Manager) newSession(symbol string, persisted *models.Position) *sessions.Session {
	return sessions.New(m.ctx, sessions.Opts{
		Symbol:       symbol,
		QueueMax:     m.cfg.SessionQueueMax,
		BarInterval:  m.cfg.BarInterval,
		CooldownBars: m.cfg.CooldownBars,
		Shares:       m.cfg.OrderShares,
	}, m.st, m.n, m.cal, persisted)
}

// Positions — снимок живых позиций (для /status и /positions).
func (m *Manager) Positions() []*models.Position {
	m.mu.Lock()
	list := make([]*sessions.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	out := make([]*models.Position, 0, len(list))
	for _, s := range list {
		if p := s.Position(); p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (m *Manager) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			symbols, stale := m.health.Snapshot(2 * m.cfg.BarInterval)

			m.mu.Lock()
			total := len(m.sessions)
			halted := 0
			for _, s := range m.sessions {
				if s.Halted() {
					halted++
				}
			}
			m.mu.Unlock()

			open := 0
			for _, p := range m.Positions() {
				if p.State == models.StateHolding || p.State == models.StateSellSent {
					open++
				}
			}
			m.n.SendF(ctx, "🩺 HEALTH | symbols=%d | open=%d | sessions=%d | halted=%d | stale=%d",
				symbols, open, total, halted, stale)
		}
	}
}
