package rag

import (
	"strings"

	"gopherai-docqa/internal/ai"
)

const (
	systemPrompt = "You are a helpful customer-support assistant. Answer the user's question based only on the following context and the conversation so far. If the context does not contain enough information, say so. Do not make up facts."

	condensePrompt = "Given the conversation below and a follow-up question, rewrite the follow-up question as a standalone question in its original language. Reply with the question only."
)

// ComposeMessages builds the chat prompt: grounding instructions with the
// retrieved chunks best-first, every prior turn in order, then the question.
func ComposeMessages(matches []Match, history []Turn, question string) []ai.ChatMessage {
	var contextBlock strings.Builder
	for i, m := range matches {
		contextBlock.WriteString("\n---\n")
		contextBlock.WriteString(m.Chunk.Text)
		if i == len(matches)-1 {
			contextBlock.WriteString("\n---")
		}
	}

	messages := make([]ai.ChatMessage, 0, 2*len(history)+2)
	messages = append(messages, ai.ChatMessage{
		Role:    "system",
		Content: systemPrompt + "\n\nContext:" + contextBlock.String(),
	})
	for _, turn := range history {
		messages = append(messages,
			ai.ChatMessage{Role: "user", Content: turn.Question},
			ai.ChatMessage{Role: "assistant", Content: turn.Answer},
		)
	}
	messages = append(messages, ai.ChatMessage{Role: "user", Content: question})
	return messages
}

// CondenseMessages asks the model to turn a follow-up into a question that
// can be retrieved on without the conversation.
func CondenseMessages(history []Turn, question string) []ai.ChatMessage {
	var transcript strings.Builder
	for _, turn := range history {
		transcript.WriteString("Human: ")
		transcript.WriteString(turn.Question)
		transcript.WriteString("\nAssistant: ")
		transcript.WriteString(turn.Answer)
		transcript.WriteString("\n")
	}
	return []ai.ChatMessage{
		{Role: "system", Content: condensePrompt},
		{Role: "user", Content: "Chat history:\n" + transcript.String() + "\nFollow-up question: " + question + "\n\nStandalone question:"},
	}
}
