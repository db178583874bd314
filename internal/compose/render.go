package compose

import (
	"fmt"
	"strings"

	"github.com/lexiqai/voice-reader/internal/voice"
)

const linkLabel = "Detailed Parsing"

// Characters that open an entity in Telegram's legacy Markdown
var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

// Markdown renders a reply for chat delivery
func Markdown(reply voice.Reply) string {
	if reply.Notice != nil {
		return markdownEscaper.Replace(reply.Notice.Message)
	}
	if reply.Composed == nil {
		return ""
	}

	c := reply.Composed
	return fmt.Sprintf("You said: %s\nIn Hiragana: %s\nTranslation: %s\n[%s](%s)",
		markdownEscaper.Replace(c.Transcription),
		markdownEscaper.Replace(c.Reading),
		markdownEscaper.Replace(c.Translation),
		linkLabel,
		c.ReferenceLink,
	)
}

// Plain renders a reply for a terminal
func Plain(reply voice.Reply) string {
	if reply.Notice != nil {
		return reply.Notice.Message
	}
	if reply.Composed == nil {
		return ""
	}

	c := reply.Composed
	return fmt.Sprintf("You said: %s\nIn Hiragana: %s\nTranslation: %s\n%s: %s",
		c.Transcription, c.Reading, c.Translation, linkLabel, c.ReferenceLink)
}
