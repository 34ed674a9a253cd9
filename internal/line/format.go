package line

import (
	"strings"
	"unicode/utf8"
)

// MaxTextRunes is the LINE limit for one text message.
const MaxTextRunes = 5000

var replyCleaner = strings.NewReplacer(`\n`, "\n", "**", "")

// FormatReply turns literal "\n" sequences into newlines, strips bold
// markers LINE cannot render, and truncates to the text message limit.
func FormatReply(text string) string {
	out := strings.TrimSpace(replyCleaner.Replace(text))
	if utf8.RuneCountInString(out) <= MaxTextRunes {
		return out
	}
	return string([]rune(out)[:MaxTextRunes])
}
