package slackexp

import (
	"regexp"
	"strings"
)

// Slack encodes references as <@U123>, <@U123|alias>, <#C123|name>,
// <!here>, and links as <url> or <url|label>.  normalizeText reduces them to
// the canonical forms the downstream rewriter understands, and decodes the
// three HTML entities Slack escapes.
var (
	reSlackUser    = regexp.MustCompile(`<@([A-Z0-9]+)(\|[^>]*)?>`)
	reSlackChannel = regexp.MustCompile(`<#([A-Z0-9]+)(\|[^>]*)?>`)
	reSlackSpecial = regexp.MustCompile(`<!(here|channel|everyone)(\|[^>]*)?>`)
	reSlackLink    = regexp.MustCompile(`<(https?://[^>|]+)(\|([^>]*))?>`)
)

func normalizeText(text string) string {
	out := reSlackUser.ReplaceAllString(text, "<@$1>")
	out = reSlackChannel.ReplaceAllString(out, "<#$1>")
	out = reSlackSpecial.ReplaceAllStringFunc(out, func(m string) string {
		sub := reSlackSpecial.FindStringSubmatch(m)
		if sub[1] == "everyone" {
			return "@all"
		}
		return "@" + sub[1]
	})
	out = reSlackLink.ReplaceAllStringFunc(out, func(m string) string {
		sub := reSlackLink.FindStringSubmatch(m)
		if sub[3] == "" || sub[3] == sub[1] {
			return sub[1]
		}
		return "[" + sub[3] + "](" + sub[1] + ")"
	})
	out = strings.ReplaceAll(out, "&lt;", "<")
	out = strings.ReplaceAll(out, "&gt;", ">")
	out = strings.ReplaceAll(out, "&amp;", "&")
	return out
}
