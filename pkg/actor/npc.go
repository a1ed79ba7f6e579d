package actor

import (
	"strings"
)

// NPC is a named in-world persona whose lines are delivered to players.
type NPC struct {
	// Name is the catalog key, matched case-insensitively.
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	// Replies is the generic fallback pool.
	Replies []string `json:"replies,omitempty" yaml:"replies,omitempty"`
	// QuestReplies overrides Replies for specific quests, keyed by upper-case quest id.
	QuestReplies map[string][]string `json:"quest_replies,omitempty" yaml:"quest_replies,omitempty"`
	// WebhookEnv names the environment variable holding the NPC's webhook URL.
	WebhookEnv string `json:"webhook_env,omitempty" yaml:"webhook_env,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty" yaml:"avatar_url,omitempty"`
}

// Key returns the case-insensitive lookup key for an NPC name.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Label returns the name players see, falling back to the catalog name.
func (n *NPC) Label() string {
	if n == nil {
		return "PNJ"
	}
	if d := strings.TrimSpace(n.DisplayName); d != "" {
		return d
	}
	if name := strings.TrimSpace(n.Name); name != "" {
		return name
	}
	return "PNJ"
}

// PoolFor returns the reply pool for a quest: the quest-specific override
// when it has lines, otherwise the generic pool. The result may be empty.
func (n *NPC) PoolFor(questID string) []string {
	if n == nil {
		return nil
	}
	if pool := nonEmpty(n.QuestReplies[strings.ToUpper(strings.TrimSpace(questID))]); len(pool) > 0 {
		return pool
	}
	return nonEmpty(n.Replies)
}

func nonEmpty(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
