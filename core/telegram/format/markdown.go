// Package format escapes user text for Telegram messages.
package format

import "strings"

var markdown = strings.NewReplacer(`_`, `\_`, `*`, `\*`, "`", "\\`", `[`, `\[`)

// EscapeMarkdown escapes the characters that legacy Markdown treats as markup.
func EscapeMarkdown(text string) string {
	return markdown.Replace(text)
}
