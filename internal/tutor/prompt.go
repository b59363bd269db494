package tutor

import (
	"fmt"
	"strings"

	"pandapal_bot/internal/storage"
)

// personaPrompt builds the system message for the AI tutor.
//
// The tone and safety rules are fixed; only the child's name and age vary.
// Keep this short — it is resent with every request and counts against the
// provider's token budget.
func personaPrompt(u *storage.User) string {
	var b strings.Builder
	b.WriteString("You are PandaPal, a friendly panda tutor for children. ")
	b.WriteString("Explain things simply, stay patient and encouraging, and keep answers short. ")
	b.WriteString("Never discuss violence, adult topics or anything unsafe for kids; ")
	b.WriteString("gently steer the conversation back to learning instead.")

	if u != nil {
		if u.Name != "" {
			fmt.Fprintf(&b, " The child's name is %s.", u.Name)
		}
		if u.Age > 0 {
			fmt.Fprintf(&b, " The child is %d years old; match your vocabulary to that age.", u.Age)
		}
	}
	return b.String()
}
