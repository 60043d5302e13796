package service

import (
	"sync"
	"sync/atomic"
	"time"
)

// State — живое состояние движка для health-эндпоинтов и heartbeat:
// готовность, коннект фида, время последнего бара по символам.
type State struct {
	ready       atomic.Bool
	wsConnected atomic.Bool
	startedAt   time.Time

	mu      sync.RWMutex
	lastBar map[string]time.Time
}

func NewState() *State {
	return &State{
		startedAt: time.Now(),
		lastBar:   make(map[string]time.Time),
	}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

// Touch отмечает очередной бар символа.
func (s *State) Touch(symbol string, barTime time.Time) {
	s.mu.Lock()
	s.lastBar[symbol] = barTime
	s.mu.Unlock()
	s.ready.Store(true)
}

// Snapshot — сколько символов видели и сколько из них отстали
// больше чем на staleAfter.
func (s *State) Snapshot(staleAfter time.Duration) (symbols, stale int) {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.lastBar {
		symbols++
		if staleAfter > 0 && now.Sub(t) > staleAfter {
			stale++
		}
	}
	return symbols, stale
}

// LastBars — копия карты символ → время последнего бара.
func (s *State) LastBars() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time, len(s.lastBar))
	for k, v := range s.lastBar {
		out[k] = v
	}
	return out
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
