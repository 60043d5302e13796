package service

import (
	"context"
	"sync"

	"stock_bot/internal/indicator"
	"stock_bot/internal/models"
	"stock_bot/internal/modules/config"
	"stock_bot/internal/store"
	"stock_bot/pkg/logger"
)

type ServiceNotifier interface {
	SendService(ctx context.Context, format string, args ...any)
}

// Consumer — кто получает результат цикла оценки (раннер).
type Consumer interface {
	OnBar(ctx context.Context, bar models.Bar, snap *indicator.Snapshot, sig *models.SignalEvent, p models.StrategyParams)
}

// Hub — вход для баров фида: снимок конфига на цикл, детектор,
// журнал сигналов, передача в раннер. Прогрев считаем по watch-list'у.
type Hub struct {
	cfg      *config.Config
	watch    *config.Watchlist
	det      *Detector
	st       store.Store
	consumer Consumer
	n        ServiceNotifier

	mu            sync.Mutex
	readyCnt      int
	warmupDone    bool
	warmupMsgSent bool
}

func NewHub(cfg *config.Config, watch *config.Watchlist, det *Detector, st store.Store, consumer Consumer, n ServiceNotifier) *Hub {
	return &Hub{
		cfg:      cfg,
		watch:    watch,
		det:      det,
		st:       st,
		consumer: consumer,
		n:        n,
	}
}

func (h *Hub) OnBar(ctx context.Context, bar models.Bar) {
	// пороги читаем один раз на цикл, не по полю посреди решения
	p := h.cfg.Params()

	snap, sig, becameReady, err := h.det.OnBar(bar, p)
	if err != nil {
		// битый бар: дропнули, залогировали, живём дальше
		logger.Warn("[HUB] %v", err)
		if logErr := h.st.AppendLog(ctx, "WARN", "hub", err.Error()); logErr != nil {
			logger.Error("[HUB] log append failed: %v", logErr)
		}
		return
	}

	if becameReady {
		h.onBecameReady(ctx)
	}

	if sig != nil {
		logger.Info("[SIGNAL] %s %s @ %.2f (%s)", sig.Symbol, sig.Side, sig.Price, sig.Reason)
		if err := h.st.AppendSignal(ctx, sig); err != nil {
			logger.Error("[HUB] signal append failed: %v", err)
		}
	}

	h.consumer.OnBar(ctx, bar, snap, sig, p)
}

func (h *Hub) onBecameReady(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.readyCnt++
	total := len(h.watch.Symbols())

	if !h.warmupMsgSent {
		h.warmupMsgSent = true
		if h.n != nil {
			h.n.SendService(ctx, "🔥 Прогрев начат | символов в списке: %d", total)
		}
	}
	if !h.warmupDone && h.readyCnt >= total {
		h.warmupDone = true
		logger.Info("[HUB] warmup finished: %d/%d", h.readyCnt, total)
		if h.n != nil {
			h.n.SendService(ctx, "✅ Прогрев завершён: %d/%d. Ждём сигналы.", h.readyCnt, total)
		}
	}
}

// Run качает бары фида в хаб. Блокируется до ctx.Done.
func (h *Hub) Run(ctx context.Context, bars <-chan models.Bar) {
	logger.Info("[HUB] loop started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("[HUB] loop stopped")
			return
		case bar, ok := <-bars:
			if !ok {
				logger.Info("[HUB] bar channel closed")
				return
			}
			h.OnBar(ctx, bar)
		}
	}
}

// WarmupState — для health-отчёта.
func (h *Hub) WarmupState() (ready int, done bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.readyCnt, h.warmupDone
}
