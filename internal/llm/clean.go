package llm

import "strings"

// CleanJSON strips markdown code fences from model output so it can be
// unmarshalled. Models wrap JSON in ```json fences despite instructions.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}
	return text
}
