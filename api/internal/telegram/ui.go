package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// callback data
const (
	cbAnalyze  = "analyze"
	cbRotate   = "rotate"
	cbReupload = "reupload"
)

const (
	uploadPrompt = "请发送一张 JLPT 题目的照片。"
	busyText     = "正在解析中，请稍候..."
	acceptedText = "图片已接收。确认方向无误后点击「开始解析」。"
	resetText    = "已重置，请发送新的题目照片。"
)

func cropKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("开始解析", cbAnalyze),
			tgbotapi.NewInlineKeyboardButtonData("旋转 90°", cbRotate),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("重新上传", cbReupload),
		),
	)
}

func retryKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("重试", cbAnalyze),
			tgbotapi.NewInlineKeyboardButtonData("重新上传", cbReupload),
		),
	)
}

func resultKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("再来一题", cbReupload),
		),
	)
}
