package store

import (
	"context"
	"fmt"

	"stock_bot/internal/models"
	"stock_bot/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
)

// Pg implement Store поверх PgTxManager. Записи сериализуются в jsonb,
// символ вынесен в колонку-ключ.
type Pg struct {
	db *db.PgTxManager
}

func NewPg(txm *db.PgTxManager) *Pg {
	return &Pg{db: txm}
}

func (p *Pg) GetPosition(ctx context.Context, symbol string) (pos *models.Position, err error) {
	defer func() {
		if err != nil && err != ErrNotFound {
			err = fmt.Errorf("store.GetPosition: %w", err)
		}
	}()

	err = p.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		var data []byte
		row := tx.QueryRow(ctxTx, `SELECT data FROM positions WHERE symbol = $1`, symbol)
		if err := row.Scan(&data); err != nil {
			if err == pgx.ErrNoRows {
				return ErrNotFound
			}
			return err
		}
		pos = &models.Position{}
		return sonic.Unmarshal(data, pos)
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

func (p *Pg) PutPosition(ctx context.Context, pos *models.Position) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.PutPosition: %w", err)
		}
	}()

	data, err := sonic.Marshal(pos)
	if err != nil {
		return err
	}
	return p.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO positions (symbol, state, data, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (symbol) DO UPDATE
			SET state = EXCLUDED.state, data = EXCLUDED.data, updated_at = now()`,
			pos.Symbol, string(pos.State), data,
		)
		return err
	})
}

func (p *Pg) DeletePosition(ctx context.Context, symbol string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.DeletePosition: %w", err)
		}
	}()

	return p.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `DELETE FROM positions WHERE symbol = $1`, symbol)
		return err
	})
}

func (p *Pg) ListPositions(ctx context.Context) (out []*models.Position, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.ListPositions: %w", err)
		}
	}()

	err = p.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctxTx, `SELECT data FROM positions ORDER BY symbol`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var data []byte
			if err := rows.Scan(&data); err != nil {
				return err
			}
			pos := &models.Position{}
			if err := sonic.Unmarshal(data, pos); err != nil {
				return err
			}
			out = append(out, pos)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pg) AppendTrade(ctx context.Context, tr *models.Trade) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.AppendTrade: %w", err)
		}
	}()

	data, err := sonic.Marshal(tr)
	if err != nil {
		return err
	}
	return p.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx,
			`INSERT INTO trades (symbol, data, created_at) VALUES ($1, $2, now())`,
			tr.Symbol, data,
		)
		return err
	})
}

func (p *Pg) ListTrades(ctx context.Context, symbol string, limit int) (out []*models.Trade, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.ListTrades: %w", err)
		}
	}()

	if limit <= 0 {
		limit = 50
	}
	err = p.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctxTx, `
			SELECT data FROM trades
			WHERE ($1 = '' OR symbol = $1)
			ORDER BY id DESC LIMIT $2`, symbol, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var data []byte
			if err := rows.Scan(&data); err != nil {
				return err
			}
			tr := &models.Trade{}
			if err := sonic.Unmarshal(data, tr); err != nil {
				return err
			}
			out = append(out, tr)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pg) AppendSignal(ctx context.Context, sig *models.SignalEvent) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.AppendSignal: %w", err)
		}
	}()

	data, err := sonic.Marshal(sig)
	if err != nil {
		return err
	}
	return p.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx,
			`INSERT INTO signals (symbol, kind, data, created_at) VALUES ($1, $2, $3, now())`,
			sig.Symbol, string(sig.Side), data,
		)
		return err
	})
}

func (p *Pg) ListSignals(ctx context.Context, symbol string, limit int) (out []*models.SignalEvent, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.ListSignals: %w", err)
		}
	}()

	if limit <= 0 {
		limit = 100
	}
	err = p.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctxTx, `
			SELECT data FROM signals
			WHERE ($1 = '' OR symbol = $1)
			ORDER BY id DESC LIMIT $2`, symbol, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var data []byte
			if err := rows.Scan(&data); err != nil {
				return err
			}
			sig := &models.SignalEvent{}
			if err := sonic.Unmarshal(data, sig); err != nil {
				return err
			}
			out = append(out, sig)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pg) AppendLog(ctx context.Context, level, module, message string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("store.AppendLog: %w", err)
		}
	}()

	return p.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctxTx,
			`INSERT INTO engine_log (level, module, message, created_at) VALUES ($1, $2, $3, now())`,
			level, module, message,
		); err != nil {
			return err
		}
		// держим только хвост, как исходный json-лог
		_, err := tx.Exec(ctxTx, `
			DELETE FROM engine_log WHERE id < (
				SELECT COALESCE(MIN(id), 0) FROM (
					SELECT id FROM engine_log ORDER BY id DESC LIMIT 500
				) tail
			)`)
		return err
	})
}
