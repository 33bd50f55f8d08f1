package orchestrator

import "morgus/internal/agent/ports"

// conversation accumulates the message history for one task. History spans
// all phases and is only reset when a new task starts.
type conversation struct {
	history []ports.Message
}

func newConversation() *conversation {
	return &conversation{}
}

// messages builds the request message list: system prompt, full history,
// then the pending user message. The user message is not yet part of
// history; callers append it after the request succeeds.
func (c *conversation) messages(userMessage string) []ports.Message {
	out := make([]ports.Message, 0, len(c.history)+2)
	out = append(out, ports.Message{Role: "system", Content: systemPrompt})
	out = append(out, c.history...)
	out = append(out, ports.Message{Role: "user", Content: userMessage})
	return out
}

func (c *conversation) addUser(content string) {
	c.history = append(c.history, ports.Message{Role: "user", Content: content})
}

func (c *conversation) addAssistant(resp *ports.CompletionResponse) {
	if resp.Content == "" && len(resp.ToolCalls) == 0 {
		return
	}
	c.history = append(c.history, ports.Message{
		Role:      "assistant",
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})
}

func (c *conversation) addToolResult(callID, result string) {
	c.history = append(c.history, ports.Message{
		Role:       "tool",
		ToolCallID: callID,
		Content:    result,
	})
}
