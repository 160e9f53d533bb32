package generator

import (
	"fmt"
	"strings"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
)

func (p Profile) header(withBackground bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SYSTEM: %s\n\n", p.Personality)
	if withBackground {
		fmt.Fprintf(&b, "HISTORY & BACKGROUND: %s\n\n", p.Background)
	}
	return b.String()
}

func replyPrompt(p Profile, history []conversation.Turn, text string) string {
	var b strings.Builder
	b.WriteString(p.header(true))
	b.WriteString("CONTEXT:\n")
	for _, t := range history {
		role := "Assistant"
		if t.Role == conversation.RoleUser {
			role = "User"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, t.Text)
	}
	fmt.Fprintf(&b, "\nUSER: %s\n", text)
	return b.String()
}

func greetingPrompt(p Profile) string {
	return p.header(true) + `TASK: You have just been woken up by your friend (the user). Generate a warm, natural, and casual greeting (1 short sentence max).
Avoid generic AI phrases like "How can I help?". Instead, sound like a close friend who is happy to see them.
Examples: "Hey! I was just thinking about you.", "Hi! What are we up to today?", "Hello! Good to see you again.", "Hey there! Ready to hang out?"
Do not include any other text, just the greeting.
`
}

func farewellPrompt(p Profile, text string) string {
	return p.header(false) + fmt.Sprintf(`TASK: The user said %q to end the session. Generate a short, friendly, natural farewell (1 short sentence max) relevant to what they said.
Examples:
User: "Goodnight" -> "Sleep well!"
User: "Bye" -> "See you later!"
User: "Stop" -> "Stopping now."
Do not include any other text, just the farewell.
`, text)
}
