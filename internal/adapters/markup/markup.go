// Package markup converts the Conversation Engine's HTML-subset reply text
// into each outbound platform's native formatting at the boundary, so role
// handlers never need to know which transport a reply is headed to.
// Grounded on the teacher's internal/app/bot message-formatting helpers
// (table-driven replacer over a fixed small tag set) rather than a general
// HTML parser, since replies only ever use the bot-api's documented subset
// (<b>, <i>, <code>, <a href>).
package markup

import "strings"

type replacement struct {
	open, close       string
	replaceOpen, replaceClose string
}

// botAPITags is the bot-api platform's supported HTML subset; it already
// matches our reply text 1:1, so every entry maps a tag to itself and no
// escaping is done.
var botAPITags = []replacement{
	{"<b>", "</b>", "<b>", "</b>"},
	{"<i>", "</i>", "<i>", "</i>"},
	{"<code>", "</code>", "<code>", "</code>"},
}

// webChatTags maps <b>, <i> and <code> onto CommonMark, the format the
// web-chat gateway's client renders; <a href> links are left as HTML.
var webChatTags = []replacement{
	{"<b>", "</b>", "**", "**"},
	{"<i>", "</i>", "_", "_"},
	{"<code>", "</code>", "`", "`"},
}

// HTMLToBotAPI is idempotent: converting already-converted text is a no-op,
// since the bot-api subset is already valid HTML passthrough.
func HTMLToBotAPI(text string) string {
	return apply(text, botAPITags)
}

// HTMLToWebChatMarkdown converts the reply's HTML subset into CommonMark.
// Idempotent against plain text (no tags present) by construction, since
// apply only touches recognized tag pairs.
func HTMLToWebChatMarkdown(text string) string {
	return apply(text, webChatTags)
}

func apply(text string, tags []replacement) string {
	for _, t := range tags {
		text = strings.ReplaceAll(text, t.open, t.replaceOpen)
		text = strings.ReplaceAll(text, t.close, t.replaceClose)
	}
	return text
}
