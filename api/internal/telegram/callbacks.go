package telegram

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"jlpt-snap/api/internal/pipeline"
	"jlpt-snap/api/internal/routing"
)

func (r *Router) handleCallback(ctx context.Context, cb tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack

	switch cb.Data {
	case cbAnalyze:
		r.clearKeyboard(cid, cb.Message.MessageID)
		r.runAnalysis(ctx, cid)
	case cbRotate:
		r.onRotate(cid)
	case cbReupload:
		r.clearKeyboard(cid, cb.Message.MessageID)
		r.onReupload(cid)
	}
}

func (r *Router) clearKeyboard(chatID int64, msgID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, msgID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	_, _ = r.Bot.Request(edit)
}

func (r *Router) runAnalysis(ctx context.Context, chatID int64) {
	sess := r.sessions.get(chatID)
	s := r.loadSettings(ctx, chatID)

	progress := func(stage routing.Stage) {
		r.send(chatID, pipeline.ProgressText(stage))
	}

	res, err := r.Runner.RunSession(ctx, sess, s, progress)
	if err != nil {
		var te *pipeline.TransitionError
		if errors.As(err, &te) {
			if te.From == pipeline.StateAnalyzing {
				r.send(chatID, busyText)
			} else {
				r.send(chatID, uploadPrompt)
			}
			return
		}
		r.log().Warn("analysis failed", "chat_id", chatID, "err", err)
		r.sendWithKeyboard(chatID, errorText(err), retryKeyboard())
		return
	}

	chunks := formatResult(res)
	for i, c := range chunks {
		if i == len(chunks)-1 {
			r.sendWithKeyboard(chatID, c, resultKeyboard())
			continue
		}
		r.send(chatID, c)
	}
}

func (r *Router) onRotate(chatID int64) {
	sess := r.sessions.get(chatID)
	snap := sess.Snapshot()
	if snap.State != pipeline.StateCrop {
		r.send(chatID, uploadPrompt)
		return
	}
	rotated, err := rotateDataURI(snap.Image)
	if err != nil {
		r.log().Warn("rotate failed", "chat_id", chatID, "err", err)
		r.send(chatID, "旋转失败，请重新上传。")
		return
	}
	if err := sess.Recrop(rotated); err != nil {
		r.send(chatID, busyText)
		return
	}
	r.sendWithKeyboard(chatID, "已旋转 90°。", cropKeyboard())
}

func (r *Router) onReupload(chatID int64) {
	sess := r.sessions.get(chatID)
	if sess.State() == pipeline.StateAnalyzing {
		r.send(chatID, busyText)
		return
	}
	sess.Reset()
	r.send(chatID, uploadPrompt)
}
