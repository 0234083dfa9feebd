package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"jlpt-snap/api/internal/routing"
	"jlpt-snap/api/internal/settings"
)

const helpText = `发送 JLPT 题目照片，我会识别题目并给出解析。

命令：
/settings 查看当前设置
/settings reset 恢复默认设置
/mode server|direct 使用服务器密钥或自己的服务
/set <字段> <值> 修改设置，例如 /set analysisModel deepseek-ai/DeepSeek-V3
/models ocr|analysis 列出可用模型（直连模式）
/reset 放弃当前题目`

const maxListedModels = 50

func (r *Router) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "reset":
		sess := r.sessions.get(cid)
		sess.Reset()
		r.send(cid, resetText)
	case "settings":
		if len(args) == 1 && args[0] == "reset" {
			if err := r.Settings.Delete(ctx, chatKey(cid)); err != nil {
				r.log().Warn("settings delete failed", "chat_id", cid, "err", err)
				r.send(cid, "设置保存失败，请稍后再试。")
				return
			}
			r.send(cid, "已恢复默认设置。\n\n"+describeSettings(r.loadSettings(ctx, cid)))
			return
		}
		r.send(cid, describeSettings(r.loadSettings(ctx, cid)))
	case "mode":
		r.onMode(ctx, cid, args)
	case "set":
		r.onSet(ctx, msg, args)
	case "models":
		r.onModels(ctx, cid, args)
	default:
		r.send(cid, "未知命令，发送 /help 查看用法。")
	}
}

func (r *Router) onMode(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		r.send(chatID, "用法: /mode server|direct")
		return
	}
	var useServer string
	switch strings.ToLower(args[0]) {
	case "server":
		useServer = "true"
	case "direct":
		useServer = "false"
	default:
		r.send(chatID, "用法: /mode server|direct")
		return
	}
	r.updateSetting(ctx, chatID, "useServerKeys", useServer)
}

func (r *Router) onSet(ctx context.Context, msg *tgbotapi.Message, args []string) {
	cid := msg.Chat.ID
	if len(args) < 1 {
		r.send(cid, "用法: /set <字段> <值>\n字段: "+strings.Join(settings.Fields, ", "))
		return
	}
	field := args[0]
	value := strings.Join(args[1:], " ")
	if strings.HasSuffix(field, "ApiKey") {
		// keep keys out of the chat history
		_, _ = r.Bot.Request(tgbotapi.NewDeleteMessage(cid, msg.MessageID))
	}
	r.updateSetting(ctx, cid, field, value)
}

// updateSetting applies one field change and saves the whole record.
func (r *Router) updateSetting(ctx context.Context, chatID int64, field, value string) {
	cur := r.loadSettings(ctx, chatID)
	next, err := cur.Set(field, value)
	if err != nil {
		r.send(chatID, "错误: "+userMessage(err)+"\n字段: "+strings.Join(settings.Fields, ", "))
		return
	}
	if err := r.saveSettings(ctx, chatID, next); err != nil {
		r.log().Warn("settings save failed", "chat_id", chatID, "err", err)
		r.send(chatID, "设置保存失败，请稍后再试。")
		return
	}
	r.log().Info("settings updated", "chat_id", chatID, "field", field)
	r.send(chatID, "已保存。\n\n"+describeSettings(next))
}

func (r *Router) onModels(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 || (args[0] != "ocr" && args[0] != "analysis") {
		r.send(chatID, "用法: /models ocr|analysis")
		return
	}
	if r.Models == nil {
		r.send(chatID, "模型列表不可用。")
		return
	}
	s := r.loadSettings(ctx, chatID)
	base, key := s.OCRBaseURL, s.OCRAPIKey
	if args[0] == "analysis" {
		base, key = s.AnalysisBaseURL, s.AnalysisAPIKey
	}
	ep, err := routing.NewEndpoint(base, key)
	if err != nil {
		r.send(chatID, "请先用 /set 填写该服务的 Base URL 与 API Key。")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	ids, err := r.Models.ListModels(ctx, ep)
	if err != nil {
		r.send(chatID, "获取模型列表失败: "+userMessage(err))
		return
	}
	if len(ids) == 0 {
		r.send(chatID, "该服务没有返回任何模型。")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "可用模型 (%d):\n", len(ids))
	for i, id := range ids {
		if i == maxListedModels {
			fmt.Fprintf(&b, "…以及另外 %d 个\n", len(ids)-maxListedModels)
			break
		}
		b.WriteString(id)
		b.WriteString("\n")
	}
	r.send(chatID, strings.TrimSpace(b.String()))
}

func describeSettings(s settings.Settings) string {
	m := s.Masked()
	mode := "服务器密钥 (server)"
	if !s.UseServerKeys {
		mode = "直连 (direct)"
	}
	orDash := func(v string) string {
		if v == "" {
			return "-"
		}
		return v
	}

	var b strings.Builder
	fmt.Fprintf(&b, "模式: %s\n", mode)
	fmt.Fprintf(&b, "ocrBaseUrl: %s\n", orDash(m.OCRBaseURL))
	fmt.Fprintf(&b, "ocrApiKey: %s\n", orDash(m.OCRAPIKey))
	fmt.Fprintf(&b, "ocrModel: %s\n", orDash(m.OCRModel))
	fmt.Fprintf(&b, "analysisBaseUrl: %s\n", orDash(m.AnalysisBaseURL))
	fmt.Fprintf(&b, "analysisApiKey: %s\n", orDash(m.AnalysisAPIKey))
	fmt.Fprintf(&b, "analysisModel: %s", orDash(m.AnalysisModel))
	return b.String()
}
