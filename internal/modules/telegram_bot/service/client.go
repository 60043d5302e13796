package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"stock_bot/internal/models"
	"stock_bot/internal/modules/config"
	healthsvc "stock_bot/internal/modules/health/service"
	"stock_bot/internal/store"
	"stock_bot/pkg/logger"
)

type pending struct {
	ch     chan models.Decision
	msgID  int
	prompt string
}

// Telegram — шлюз подтверждений и командный интерфейс. Один чат,
// решения по кнопкам CONF::/REJ::, ключ запроса приходит от раннера.
type Telegram struct {
	bot    *tgbot.BotAPI
	cfg    *config.Config
	watch  *config.Watchlist
	st     store.Store
	health *healthsvc.State

	mu       sync.Mutex
	pendings map[string]*pending
}

func NewTelegram(cfg *config.Config, watch *config.Watchlist, st store.Store, health *healthsvc.State) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:      b,
		cfg:      cfg,
		watch:    watch,
		st:       st,
		health:   health,
		pendings: make(map[string]*pending),
	}, nil
}

func (t *Telegram) chatID() int64 { return t.cfg.Telegram.ChatID }

func (t *Telegram) Send(ctx context.Context, msg string) {
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID(), msg)); err != nil {
		logger.Error("[TG] send: %v", err)
	}
}

func (t *Telegram) SendF(ctx context.Context, format string, args ...any) {
	t.Send(ctx, fmt.Sprintf(format, args...))
}

// SendService — служебные сообщения хаба (прогрев и т.п.).
func (t *Telegram) SendService(ctx context.Context, format string, args ...any) {
	t.SendF(ctx, format, args...)
}

func (t *Telegram) editReplyMarkupRemove(msgID int) {
	rm := tgbot.InlineKeyboardMarkup{InlineKeyboard: [][]tgbot.InlineKeyboardButton{}}
	if _, err := t.bot.Request(tgbot.NewEditMessageReplyMarkup(t.chatID(), msgID, rm)); err != nil {
		logger.Warn("[TG] edit markup: %v", err)
	}
}

func (t *Telegram) editText(msgID int, text string) {
	if _, err := t.bot.Request(tgbot.NewEditMessageText(t.chatID(), msgID, text)); err != nil {
		logger.Warn("[TG] edit text: %v", err)
	}
}

// Confirm — сообщение с кнопками и блокирующее ожидание решения.
// Таймаут и отмена сами гасят кнопки и правят текст.
func (t *Telegram) Confirm(ctx context.Context, id, prompt string, timeout time.Duration) models.Decision {
	p := &pending{
		ch:     make(chan models.Decision, 1),
		prompt: prompt,
	}

	t.mu.Lock()
	t.pendings[id] = p
	t.mu.Unlock()

	btnYes := tgbot.NewInlineKeyboardButtonData("✅ Да", "CONF::"+id)
	btnNo := tgbot.NewInlineKeyboardButtonData("❌ Нет", "REJ::"+id)
	kb := tgbot.NewInlineKeyboardMarkup(tgbot.NewInlineKeyboardRow(btnYes, btnNo))

	msg := tgbot.NewMessage(t.chatID(), prompt)
	msg.ReplyMarkup = kb

	sent, err := t.bot.Send(msg)
	if err != nil {
		logger.Error("[TG] confirm send: %v", err)
		t.drop(id)
		return models.DecisionTimeout
	}
	t.mu.Lock()
	p.msgID = sent.MessageID
	t.mu.Unlock()

	tmr := time.NewTimer(timeout)
	defer tmr.Stop()

	select {
	case dec := <-p.ch:
		t.drop(id)
		if dec == models.DecisionCancelled {
			t.editReplyMarkupRemove(p.msgID)
			t.editText(p.msgID, prompt+"\n\n⛔️ Снято: стоп сработал раньше")
		}
		return dec
	case <-tmr.C:
		t.drop(id)
		t.editReplyMarkupRemove(p.msgID)
		t.editText(p.msgID, prompt+"\n\n⏳ Таймаут")
		return models.DecisionTimeout
	case <-ctx.Done():
		t.drop(id)
		t.editReplyMarkupRemove(p.msgID)
		t.editText(p.msgID, prompt+"\n\n⛔️ Отменено")
		return models.DecisionCancelled
	}
}

// CancelConfirm снимает висящий запрос снаружи (пробой стопа).
func (t *Telegram) CancelConfirm(id string) {
	t.mu.Lock()
	p := t.pendings[id]
	t.mu.Unlock()
	if p == nil {
		return
	}
	select {
	case p.ch <- models.DecisionCancelled:
	default:
	}
}

func (t *Telegram) drop(id string) {
	t.mu.Lock()
	delete(t.pendings, id)
	t.mu.Unlock()
}

func (t *Telegram) resolve(id string, dec models.Decision) bool {
	t.mu.Lock()
	p := t.pendings[id]
	t.mu.Unlock()
	if p == nil {
		return false
	}
	select {
	case p.ch <- dec:
	default:
	}
	return true
}

// Start — основной цикл апдейтов. Блокируется до закрытия канала.
func (t *Telegram) Start(ctx context.Context) {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)
	logger.Info("[TG] updates loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) Stop() { t.bot.StopReceivingUpdates() }

func (t *Telegram) handleUpdate(ctx context.Context, update tgbot.Update) {
	if cb := update.CallbackQuery; cb != nil {
		t.handleCallback(ctx, cb)
		return
	}
	if update.Message != nil && update.Message.IsCommand() {
		t.handleCommand(ctx, update.Message)
	}
}

func (t *Telegram) handleCallback(ctx context.Context, cb *tgbot.CallbackQuery) {
	data := cb.Data
	var dec models.Decision
	var id string
	switch {
	case len(data) > 6 && data[:6] == "CONF::":
		id, dec = data[6:], models.DecisionAccepted
	case len(data) > 5 && data[:5] == "REJ::":
		id, dec = data[5:], models.DecisionRejected
	default:
		return
	}

	if !t.resolve(id, dec) {
		// запрос уже снят (таймаут или стоп)
		if _, err := t.bot.Request(tgbot.NewCallback(cb.ID, "Запрос уже не актуален")); err != nil {
			logger.Warn("[TG] callback ack: %v", err)
		}
		return
	}

	answer := "Принято ✅"
	if dec == models.DecisionRejected {
		answer = "Пропущено ❌"
	}
	if _, err := t.bot.Request(tgbot.NewCallback(cb.ID, answer)); err != nil {
		logger.Warn("[TG] callback ack: %v", err)
	}
	if cb.Message != nil {
		t.editReplyMarkupRemove(cb.Message.MessageID)
	}
}
