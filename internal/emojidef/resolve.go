// Package emojidef resolves source-platform emoji names into the target
// (name, code, kind) triple used by reaction records.
//
// Resolution order is fixed for every platform: the unicode table is
// consulted first, then the realm's custom emoji table.  Names unresolvable
// against both are dropped silently; emoji catalogs diverge across platforms
// and a missing reaction is not worth a warning per message.
package emojidef

import (
	"fmt"
	"strings"

	emj "github.com/enescakir/emoji"

	"github.com/chatport/chatport/internal/zerver"
)

// Resolver resolves emoji names for one realm.
type Resolver struct {
	custom map[string]bool // realm custom emoji names
}

// NewResolver returns a resolver aware of the realm's custom emoji names.
func NewResolver(customNames []string) *Resolver {
	r := &Resolver{custom: make(map[string]bool, len(customNames))}
	for _, n := range customNames {
		r.custom[n] = true
	}
	return r
}

// Resolved is the outcome of a successful resolution.
type Resolved struct {
	Name string
	Code string
	Kind string // zerver.UnicodeEmoji or zerver.RealmEmoji
}

// Resolve maps a source emoji name to its target triple.  The second return
// is false when the name resolves against neither table.
func (r *Resolver) Resolve(name string) (Resolved, bool) {
	// skin tone suffixes are platform syntax, not part of the name.
	name = strings.SplitN(name, "::", 2)[0]

	if code, ok := unicodeCode(name); ok {
		return Resolved{Name: name, Code: code, Kind: zerver.UnicodeEmoji}, true
	}
	if r.custom[name] {
		return Resolved{Name: name, Code: name, Kind: zerver.RealmEmoji}, true
	}
	return Resolved{}, false
}

// unicodeCode resolves name against the unicode alias table and returns the
// hyphen-joined hex codepoint string ("1f44d", "1f1e6-1f1fa").
func unicodeCode(name string) (string, bool) {
	alias := ":" + name + ":"
	parsed := emj.Parse(alias)
	if parsed == alias {
		return "", false
	}
	var parts []string
	for _, r := range parsed {
		// variation selectors are presentation hints, not identity.
		if r == 0xfe0e || r == 0xfe0f {
			continue
		}
		parts = append(parts, fmt.Sprintf("%x", r))
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "-"), true
}
