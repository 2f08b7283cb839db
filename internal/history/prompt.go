package history

import (
	"strings"

	"role-chatter/internal/llm"
	"role-chatter/internal/persona"
)

// PromptWindow is how many of the latest messages go into a model request.
// It bounds context size; storage retention is governed by the Store cap.
const PromptWindow = 5

const (
	recentHeader   = "最近的對話記錄："
	userLabel      = "用戶"
	assistantLabel = "你"
)

// Window returns a copy of the last PromptWindow messages, oldest first.
func Window(history []llm.Message) []llm.Message {
	start := max(len(history)-PromptWindow, 0)
	return append([]llm.Message(nil), history[start:]...)
}

// FormatPrompt renders the persona's system prompt followed by the recent
// window of the conversation, one labelled line per message.
func FormatPrompt(p persona.Persona, history []llm.Message) string {
	var b strings.Builder
	b.WriteString(p.Prompt)
	b.WriteString("\n\n")
	b.WriteString(recentHeader)
	for _, m := range Window(history) {
		b.WriteString("\n")
		if m.Role == llm.RoleUser {
			b.WriteString(userLabel)
		} else {
			b.WriteString(assistantLabel)
		}
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
