package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"screenmind/api/internal/analysis"
	"screenmind/api/internal/logger"
	"screenmind/api/internal/question"
	"screenmind/api/internal/vision"
	"screenmind/api/internal/worker"
)

// Bot is the subset of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// SelectionStore persists /engine switches. Optional.
type SelectionStore interface {
	SaveSelection(ctx context.Context, provider, model string) error
}

type Router struct {
	Bot      Bot
	Service  *analysis.Service
	Analyzer *question.Analyzer
	Pool     *worker.Pool
	Settings SelectionStore

	// Admins may switch the backend; empty means everyone may.
	Admins   map[int64]bool
	Timeout  time.Duration
	Debounce time.Duration

	batches sync.Map // media group id -> *photoBatch
}

const helpText = "发送题目截图，我会识别题目并给出答案。\n" +
	"命令：\n" +
	"/model 查看当前模型\n" +
	"/engine <gemini|qwen|openai> [model] 切换模型\n" +
	"/test 测试AI连接"

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message

	if msg.IsCommand() {
		r.HandleCommand(msg)
		return
	}
	if len(msg.Photo) > 0 {
		r.acceptPhoto(msg)
		return
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		r.acceptDocument(msg)
		return
	}
	if msg.Text != "" {
		r.send(msg.Chat.ID, "请发送题目图片。\n\n"+helpText)
	}
}

func (r *Router) HandleCommand(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "model":
		info := r.Service.CurrentModelInfo()
		status := "✅ 已配置API密钥"
		if !r.Service.CredentialStatus()[info.Provider] {
			status = "⚠️ 未配置API密钥"
		}
		r.send(cid, fmt.Sprintf("当前模型: %s (%s:%s)\n%s", info.DisplayName, info.Provider, info.Model, status))
	case "engine":
		r.handleEngineCommand(msg)
	case "test":
		r.handleTestCommand(cid)
	default:
		r.send(cid, "未知命令\n\n"+helpText)
	}
}

// handleEngineCommand switches the process-wide backend.
//
//	/engine qwen
//	/engine gemini gemini-1.5-pro
func (r *Router) handleEngineCommand(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	if len(r.Admins) > 0 && (msg.From == nil || !r.Admins[msg.From.ID]) {
		r.send(cid, "❌ 只有管理员可以切换模型")
		return
	}

	provider, model, ok := parseEngineArgs(msg.CommandArguments())
	if !ok {
		var b strings.Builder
		b.WriteString("用法: /engine <provider> [model]\n")
		for _, p := range r.Service.Providers() {
			fmt.Fprintf(&b, "%s: %s\n", p.ID, strings.Join(p.Models, ", "))
		}
		r.send(cid, b.String())
		return
	}
	if model == "" {
		if p, found := vision.Lookup(provider); found {
			model = p.Models[0]
		}
	}
	if !r.Service.Configure(provider, model, "") {
		r.send(cid, fmt.Sprintf("❌ 不支持的模型: %s:%s", provider, model))
		return
	}
	if r.Settings != nil {
		if err := r.Settings.SaveSelection(context.Background(), provider, model); err != nil {
			logger.WithError(err).Error("persist selection")
		}
	}

	text := fmt.Sprintf("✅ 模型已切换到 %s:%s", provider, model)
	if !r.Service.CredentialStatus()[provider] {
		text += "\n⚠️ 该提供商未配置API密钥"
	}
	r.send(cid, text)
}

func parseEngineArgs(args string) (provider, model string, ok bool) {
	f := strings.Fields(args)
	if len(f) == 0 {
		return "", "", false
	}
	provider = strings.ToLower(f[0])
	if provider == "gpt" {
		provider = vision.OpenAI
	}
	if len(f) > 1 {
		model = f[1]
	}
	return provider, model, true
}

func (r *Router) handleTestCommand(cid int64) {
	r.send(cid, "正在测试AI连接…")
	err := r.Pool.Submit(context.Background(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout())
		defer cancel()
		info := r.Service.CurrentModelInfo()
		if r.Service.TestConnection(ctx) {
			r.send(cid, fmt.Sprintf("✅ %s:%s 连接正常", info.Provider, info.Model))
			return
		}
		r.send(cid, fmt.Sprintf("❌ %s:%s 连接失败，请检查API密钥", info.Provider, info.Model))
	})
	if err != nil {
		r.sendError(cid, err)
	}
}

func (r *Router) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return 120 * time.Second
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		logger.WithFields(logrus.Fields{"chat_id": chatID}).WithError(err).Warn("telegram send failed")
	}
}

func (r *Router) sendResult(chatID int64, res question.StructuredResult) {
	r.send(chatID, FormatResult(res))
}

func (r *Router) sendError(chatID int64, err error) {
	r.send(chatID, fmt.Sprintf("❌ 处理失败: %v", err))
}
