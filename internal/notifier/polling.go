package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"MomentumTrader/internal/ipc"
	"MomentumTrader/internal/model"
)

// CommandHandler is called when a user command is received.
type CommandHandler func(ctx context.Context, command string) string

// telegramUpdate represents a Telegram update from long polling.
type telegramUpdate struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// StartPolling begins long-polling for Telegram commands. Blocks until ctx is cancelled.
// Messages from chats other than ChatID are ignored.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	offset := 0
	client := &http.Client{Timeout: 35 * time.Second, Transport: t.Client.Transport}
	pause := func() {
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
	}

	for {
		if ctx.Err() != nil {
			t.log.Info().Msg("telegram polling stopped")
			return
		}

		apiURL := fmt.Sprintf("%s/bot%s/getUpdates?offset=%d&timeout=30", t.APIURL, t.BotToken, offset)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			t.log.Error().Err(err).Msg("create polling request")
			pause()
			continue
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Warn().Err(err).Msg("polling request failed")
			pause()
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.log.Warn().Err(err).Msg("read polling response")
			continue
		}

		var result struct {
			OK     bool             `json:"ok"`
			Result []telegramUpdate `json:"result"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			t.log.Warn().Err(err).Msg("decode polling response")
			pause()
			continue
		}

		for _, update := range result.Result {
			offset = update.UpdateID + 1
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			if t.ChatID != "" && fmt.Sprint(update.Message.Chat.ID) != t.ChatID {
				continue
			}
			text := strings.TrimSpace(update.Message.Text)
			t.log.Info().Str("command", text).Msg("received command")
			reply := handler(ctx, text)
			if reply != "" {
				if err := t.Send(ctx, reply); err != nil {
					t.log.Error().Err(err).Msg("send reply")
				}
			}
		}
	}
}

// Signals is the part of the signal store operator commands touch.
type Signals interface {
	Set(name string) error
	Clear(name string) error
	IsSet(name string) bool
}

// TradeHistory lists recent settlements, newest first.
type TradeHistory interface {
	RecentTrades(ctx context.Context, limit int) ([]model.TradeSettlement, error)
}

// Commands answers /status, /pause and /resume.
type Commands struct {
	Signals Signals
	History TradeHistory
}

// Handle implements CommandHandler.
func (c *Commands) Handle(ctx context.Context, command string) string {
	name, _, _ := strings.Cut(command, " ")
	name, _, _ = strings.Cut(name, "@")
	switch name {
	case "/status":
		return c.status(ctx)
	case "/pause":
		if err := c.Signals.Set(ipc.IsPaused); err != nil {
			return "pause failed: " + err.Error()
		}
		return "⏸ Paused. The open position, if any, is still monitored."
	case "/resume":
		if err := c.Signals.Clear(ipc.IsPaused); err != nil {
			return "resume failed: " + err.Error()
		}
		return "▶️ Resumed."
	case "/help", "/start":
		return "Commands: /status /pause /resume"
	}
	return ""
}

func (c *Commands) status(ctx context.Context) string {
	st := Status{
		Running: c.Signals.IsSet(ipc.IsRunning),
		Paused:  c.Signals.IsSet(ipc.IsPaused),
	}
	if c.History != nil {
		trades, err := c.History.RecentTrades(ctx, 20)
		if err != nil {
			return "status failed: " + err.Error()
		}
		st.Trades = trades
	}
	return FormatStatus(st)
}
