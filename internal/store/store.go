package store

import (
	"context"
	"errors"

	"stock_bot/internal/models"
)

// ErrNotFound — по ключу ничего нет.
var ErrNotFound = errors.New("store: not found")

// Store — долговечное KV-хранилище движка. Позиции по ключу symbol
// (последняя запись побеждает, запись атомарна по ключу), сделки и
// сигналы append-only. Дашборд читает те же записи из другого процесса.
type Store interface {
	GetPosition(ctx context.Context, symbol string) (*models.Position, error)
	PutPosition(ctx context.Context, pos *models.Position) error
	DeletePosition(ctx context.Context, symbol string) error
	ListPositions(ctx context.Context) ([]*models.Position, error)

	AppendTrade(ctx context.Context, tr *models.Trade) error
	ListTrades(ctx context.Context, symbol string, limit int) ([]*models.Trade, error)

	AppendSignal(ctx context.Context, sig *models.SignalEvent) error
	ListSignals(ctx context.Context, symbol string, limit int) ([]*models.SignalEvent, error)

	AppendLog(ctx context.Context, level, module, message string) error
}
