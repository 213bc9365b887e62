package llm

import (
	"fmt"
	"strings"
)

// AnswerPrompt builds the generation prompt from the resolved context.
// sessionContext is omitted entirely when empty.
func AnswerPrompt(query, context, source, sessionContext string) string {
	var b strings.Builder
	b.WriteString("You are a warm, patient assistant. Answer in the language of the question.\n")
	b.WriteString("If the information below does not contain the answer, say honestly that you do not know instead of guessing.\n")
	if sessionContext != "" {
		fmt.Fprintf(&b, "\nConversation context:\n%s\n", sessionContext)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\nSource: %s\nInformation:\n%s\n\nAnswer:", query, source, context)
	return b.String()
}
