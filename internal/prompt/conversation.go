package prompt

import "github.com/valpere/vorewrite/internal/llm"

// Conversation is the message history of one unit's refinement loop. Every
// request starts from the system prompt alone; earlier turns are kept only in
// the transcript.
type Conversation struct {
	system     string
	transcript []llm.Message
}

func NewConversation(system string) *Conversation {
	return &Conversation{system: system}
}

// Ask records prompt and returns the messages to send for it.
func (c *Conversation) Ask(prompt string) []llm.Message {
	var msgs []llm.Message
	if c.system != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: c.system})
	}
	user := llm.Message{Role: llm.RoleUser, Content: prompt}
	msgs = append(msgs, user)
	c.transcript = append(c.transcript, user)
	return msgs
}

// Record appends the model's reply to the transcript.
func (c *Conversation) Record(reply string) {
	c.transcript = append(c.transcript, llm.Message{Role: llm.RoleAssistant, Content: reply})
}

// Transcript returns a copy of every prompt and reply so far, without the
// system prompt.
func (c *Conversation) Transcript() []llm.Message {
	return append([]llm.Message(nil), c.transcript...)
}

// Requests returns how many prompts were asked.
func (c *Conversation) Requests() int {
	n := 0
	for _, m := range c.transcript {
		if m.Role == llm.RoleUser {
			n++
		}
	}
	return n
}
