package service

import (
	"context"
	"strconv"
	"time"

	"stock_bot/internal/models"
	"stock_bot/internal/modules/config"
	healthsvc "stock_bot/internal/modules/health/service"
	"stock_bot/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Client — WebSocket-фид закрытых баров по watch-list'у.
// Порядок и дедупликация — забота движка, фид просто стримит.
type Client struct {
	cfg      *config.Config
	watch    *config.Watchlist
	health   *healthsvc.State
	wsDialer *websocket.Dialer
}

func NewClient(cfg *config.Config, watch *config.Watchlist, health *healthsvc.State) *Client {
	return &Client{
		cfg:      cfg,
		watch:    watch,
		health:   health,
		wsDialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

type barFrame struct {
	Event string `json:"event,omitempty"`
	Arg   struct {
		Channel string `json:"channel"`
		Symbol  string `json:"symbol"`
	} `json:"arg"`
	// [ts_ms, o, h, l, c, vol, confirm]
	Data [][]string `json:"data"`
}

// Stream — подключается, подписывается на watch-list и льёт закрытые
// бары в канал. Реконнект с паузой, закрывает канал только по ctx.
func (c *Client) Stream(ctx context.Context) <-chan models.Bar {
	ch := make(chan models.Bar, 256)

	go func() {
		defer close(ch)

		for {
			if err := c.runOnce(ctx, ch); err != nil {
				logger.Warn("[FEED] %v", err)
			}

			select {
			case <-ctx.Done():
				return
			default:
				time.Sleep(time.Second)
			}
		}
	}()

	return ch
}

func (c *Client) runOnce(ctx context.Context, out chan<- models.Bar) error {
	symbols := c.watch.Symbols()
	if len(symbols) == 0 {
		return errors.New("empty watchlist")
	}

	conn, _, err := c.wsDialer.Dial(c.cfg.Feed.URL, nil)
	if err != nil {
		return errors.Wrap(err, "dial feed")
	}
	defer conn.Close()

	args := make([]map[string]string, 0, len(symbols))
	for _, s := range symbols {
		args = append(args, map[string]string{
			"channel": "bars",
			"symbol":  s,
		})
	}
	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
		return errors.Wrap(err, "subscribe")
	}
	logger.Info("[FEED] connected, %d symbols", len(symbols))
	c.health.SetWSConnected(true)
	defer c.health.SetWSConnected(false)

	// keepalive — иначе фид рвёт простаивающее соединение
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		t := time.NewTicker(20 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopPing:
				return
			case <-t.C:
				_ = conn.WriteJSON(map[string]string{"op": "ping"})
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read")
		}

		var frame barFrame
		if err := sonic.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Arg.Channel != "bars" || len(frame.Data) == 0 {
			continue
		}

		for _, row := range frame.Data {
			bar, ok := parseBarRow(frame.Arg.Symbol, row)
			if !ok {
				continue
			}
			select {
			case out <- bar:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func parseBarRow(symbol string, row []string) (models.Bar, bool) {
	if len(row) < 6 {
		return models.Bar{}, false
	}

	// confirm в последнем элементе — ждём только закрытые бары
	if row[len(row)-1] != "1" {
		return models.Bar{}, false
	}

	tsMs, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return models.Bar{}, false
	}

	open, err1 := strconv.ParseFloat(row[1], 64)
	high, err2 := strconv.ParseFloat(row[2], 64)
	low, err3 := strconv.ParseFloat(row[3], 64)
	closep, err4 := strconv.ParseFloat(row[4], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return models.Bar{}, false
	}
	if closep <= 0 {
		return models.Bar{}, false
	}

	var vol float64
	if len(row) >= 7 {
		vol, _ = strconv.ParseFloat(row[5], 64)
	}

	return models.Bar{
		Symbol: symbol,
		Time:   time.UnixMilli(tsMs),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closep,
		Volume: vol,
	}, true
}
