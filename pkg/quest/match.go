package quest

import (
	"strings"

	"github.com/jwebster45206/npc-quest-engine/pkg/textnorm"
)

// Emoji is the canonical representation of a reaction: the unicode glyph
// itself, or the bare name of a platform custom emoji.
type Emoji string

// ParseEmoji canonicalizes the custom emoji syntaxes chat platforms emit
// (<:name:id>, <a:name:id>, :name:) down to the bare name. Unicode glyphs
// are returned untouched.
func ParseEmoji(raw string) Emoji {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		parts := strings.Split(strings.Trim(s, "<>"), ":")
		// ["", name, id] or ["a", name, id]
		if len(parts) == 3 && parts[1] != "" {
			return Emoji(parts[1])
		}
	}

	if len(s) > 2 && strings.HasPrefix(s, ":") && strings.HasSuffix(s, ":") && !strings.Contains(s[1:len(s)-1], ":") {
		return Emoji(s[1 : len(s)-1])
	}

	return Emoji(s)
}

func (e Emoji) String() string { return string(e) }

// ChannelRef identifies the channel an event happened in.
type ChannelRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// ChannelMatches reports whether ch satisfies rule. An ID rule requires an
// exact ID match and never falls back to the name.
func ChannelMatches(ch ChannelRef, rule ChannelRule) bool {
	if rule.ID != "" {
		return ch.ID == rule.ID
	}
	if rule.Name != "" {
		return textnorm.Normalize(strings.TrimPrefix(ch.Name, "#")) ==
			textnorm.Normalize(strings.TrimPrefix(rule.Name, "#"))
	}
	return true
}

// KeywordsMatch reports whether every keyword occurs in normalizedText.
// Keywords are normalized before comparison; an empty set always matches.
func KeywordsMatch(normalizedText string, keywords []string) bool {
	for _, kw := range keywords {
		if !textnorm.Contains(normalizedText, kw) {
			return false
		}
	}
	return true
}

// ReactionMatches compares two reactions by canonical identity. No text
// normalization is applied; an empty expectation never matches.
func ReactionMatches(incoming, expected Emoji) bool {
	if expected == "" {
		return false
	}
	return ParseEmoji(string(incoming)) == ParseEmoji(string(expected))
}
