package pipeline

import (
	"fmt"
	"regexp"
)

// Canonical mention syntax produced by the platform readers:
// <@source-user-id>, <#source-channel-id>, and the literal wildcards
// @all / @here / @channel.  Rewriting into the target syntax is textual
// substitution; the mention structure is encoded back into the body string.
var (
	reUserMention    = regexp.MustCompile(`<@([A-Za-z0-9._-]+)>`)
	reChannelMention = regexp.MustCompile(`<#([A-Za-z0-9._-]+)>`)
	reWildcard       = regexp.MustCompile(`@(all|here|channel)\b`)
	reLink           = regexp.MustCompile(`https?://\S+`)
)

// MentionRewriter rewrites canonical mentions into the target markup and
// reports which target users were mentioned.
type MentionRewriter struct {
	userName   map[string]string // source user id -> full name
	userID     map[string]int    // source user id -> target id
	streamName map[string]string // source channel id -> stream name
}

func NewMentionRewriter(userName map[string]string, userID map[string]int, streamName map[string]string) *MentionRewriter {
	return &MentionRewriter{userName: userName, userID: userID, streamName: streamName}
}

// Rewrite substitutes mentions in text and returns the rewritten body, the
// mentioned target user ids, and whether a wildcard mention was present.
// Mentions of unknown users or channels are left untouched: a dangling
// reference reads better than a silently mangled one.
func (r *MentionRewriter) Rewrite(text string) (string, []int, bool) {
	var mentioned []int
	out := reUserMention.ReplaceAllStringFunc(text, func(m string) string {
		src := reUserMention.FindStringSubmatch(m)[1]
		name, ok := r.userName[src]
		if !ok {
			return m
		}
		if id, ok := r.userID[src]; ok {
			mentioned = append(mentioned, id)
		}
		return fmt.Sprintf("@**%s**", name)
	})
	out = reChannelMention.ReplaceAllStringFunc(out, func(m string) string {
		src := reChannelMention.FindStringSubmatch(m)[1]
		name, ok := r.streamName[src]
		if !ok {
			return m
		}
		return fmt.Sprintf("#**%s**", name)
	})
	wildcard := reWildcard.MatchString(out)
	if wildcard {
		// @here and @channel both collapse to the target's @all.
		out = reWildcard.ReplaceAllString(out, "@**all**")
	}
	return out, mentioned, wildcard
}

// hasLink reports whether the body contains a plain URL.
func hasLink(text string) bool {
	return reLink.MatchString(text)
}
