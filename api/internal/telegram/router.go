// Package telegram is the chat frontend: it walks each chat through
// upload -> crop -> analyzing -> result and keeps per-chat settings.
package telegram

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"jlpt-snap/api/internal/pipeline"
	"jlpt-snap/api/internal/routing"
	"jlpt-snap/api/internal/settings"
	"jlpt-snap/api/internal/store"
)

// Sender is the part of *tgbotapi.BotAPI the router uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// ModelLister fetches the model ids an endpoint serves.
type ModelLister interface {
	ListModels(ctx context.Context, ep routing.Endpoint) ([]string, error)
}

type Router struct {
	Bot      Sender
	Runner   *pipeline.Runner
	Settings store.SettingsRepo
	Models   ModelLister
	Log      *slog.Logger

	// Defaults is used when the settings repo cannot be read.
	Defaults settings.Settings

	// HTTPClient downloads photos; nil means a client with a 60s timeout.
	HTTPClient   *http.Client
	MaxPhotoSize int64

	sessions chatSessions
}

func (r *Router) log() *slog.Logger {
	if r.Log == nil {
		return slog.Default()
	}
	return r.Log
}

func chatKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

// HandleUpdate dispatches one update. It blocks for the length of an
// analysis, so callers serving many chats run it in its own goroutine.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(ctx, *upd.CallbackQuery)
		return
	}
	msg := upd.Message
	if msg == nil {
		return
	}
	cid := msg.Chat.ID

	switch {
	case msg.IsCommand():
		r.HandleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		r.acceptPhoto(ctx, cid, msg.Photo[len(msg.Photo)-1].FileID)
	case msg.Document != nil && isImageDocument(msg.Document):
		r.acceptPhoto(ctx, cid, msg.Document.FileID)
	case msg.Text != "":
		r.onText(cid)
	}
}

func (r *Router) onText(chatID int64) {
	switch r.sessions.get(chatID).State() {
	case pipeline.StateCrop:
		r.sendWithKeyboard(chatID, "图片已就绪，点击「开始解析」或发送新的照片。", cropKeyboard())
	case pipeline.StateAnalyzing:
		r.send(chatID, busyText)
	default:
		r.send(chatID, uploadPrompt)
	}
}

func (r *Router) loadSettings(ctx context.Context, chatID int64) settings.Settings {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s, err := r.Settings.Load(ctx, chatKey(chatID))
	if err != nil {
		r.log().Warn("settings load failed, using defaults", "chat_id", chatID, "err", err)
		return r.Defaults
	}
	return s
}

func (r *Router) saveSettings(ctx context.Context, chatID int64, s settings.Settings) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.Settings.Save(ctx, chatKey(chatID), s)
}

func (r *Router) send(chatID int64, text string) {
	if _, err := r.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.log().Warn("send failed", "chat_id", chatID, "err", err)
	}
}

func (r *Router) sendWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	if _, err := r.Bot.Send(msg); err != nil {
		r.log().Warn("send failed", "chat_id", chatID, "err", err)
	}
}
