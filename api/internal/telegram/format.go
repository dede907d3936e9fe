package telegram

import (
	"strings"

	"screenmind/api/internal/question"
)

const maxMessageRunes = 3900

// FormatResult renders an analysis for a chat reply.
func FormatResult(res question.StructuredResult) string {
	if !res.Success {
		return "❌ " + res.Error
	}

	var b strings.Builder
	if res.ParseFallback {
		b.WriteString("⚠️ 未能识别标准格式，以下为AI原始回答：\n\n")
		b.WriteString(res.Answer)
		return truncate(b.String())
	}

	line := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			b.WriteString(label)
			b.WriteString("：")
			b.WriteString(v)
			b.WriteString("\n")
		}
	}
	line("📋 题目类型", res.QuestionType)
	line("📝 题目内容", res.QuestionContent)
	line("✅ 正确答案", res.Answer)
	line("💡 解析", res.Explanation)
	return truncate(strings.TrimRight(b.String(), "\n"))
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageRunes {
		return s
	}
	return string(r[:maxMessageRunes]) + "…"
}
