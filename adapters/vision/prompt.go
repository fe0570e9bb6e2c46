package vision

import (
	"fmt"
	"strings"
)

const (
	basePrompt  = "You are a personal trainer. Give quick, direct feedback in 1-2 short sentences max."
	focusPrompt = " Focus only on the most critical form correction needed right now."
)

// BuildPrompt renders the fixed coaching template for one frame
func BuildPrompt(exerciseType string, history []string) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	if exerciseType != "" {
		fmt.Fprintf(&b, " Exercise: %s.", exerciseType)
	}
	b.WriteString(focusPrompt)

	if len(history) > 0 {
		b.WriteString(" Your previous feedback was:")
		for _, h := range history {
			fmt.Fprintf(&b, " %q", h)
		}
		b.WriteString(". Do not repeat it unless the problem is still visible.")
	}
	return b.String()
}
