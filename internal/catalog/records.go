package catalog

import (
	"bytes"
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/npc-quest-engine/pkg/actor"
	"github.com/jwebster45206/npc-quest-engine/pkg/quest"
)

// On-disk shapes. Both the English keys and the French keys used by the
// first generation of catalog files are accepted; English wins when both
// are present.

// channelSpec accepts either a bare channel name or an {id, name} object.
type channelSpec quest.ChannelRule

func (c *channelSpec) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*c = channelSpec{Name: name}
		return nil
	}
	var rule quest.ChannelRule
	if err := json.Unmarshal(data, &rule); err != nil {
		return err
	}
	*c = channelSpec(rule)
	return nil
}

func (c *channelSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*c = channelSpec{Name: node.Value}
		return nil
	}
	var rule struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	}
	if err := node.Decode(&rule); err != nil {
		return err
	}
	*c = channelSpec{ID: rule.ID, Name: rule.Name}
	return nil
}

type stageRecord struct {
	Channel     *channelSpec `json:"channel" yaml:"channel"`
	ChannelID   string       `json:"channel_id" yaml:"channel_id"`
	Keywords    []string     `json:"keywords" yaml:"keywords"`
	MotsCles    []string     `json:"mots_cles" yaml:"mots_cles"`
	Emoji       string       `json:"emoji" yaml:"emoji"`
	Reply       string       `json:"reply" yaml:"reply"`
	RepliquePNJ string       `json:"replique_pnj" yaml:"replique_pnj"`
}

func (r stageRecord) toStage() quest.Stage {
	var rule quest.ChannelRule
	if r.Channel != nil {
		rule = quest.ChannelRule(*r.Channel)
	}
	if id := strings.TrimSpace(r.ChannelID); id != "" {
		rule.ID = id
	}
	rule.ID = strings.TrimSpace(rule.ID)
	rule.Name = strings.TrimSpace(rule.Name)

	keywords := r.Keywords
	if len(keywords) == 0 {
		keywords = r.MotsCles
	}
	reply := r.Reply
	if strings.TrimSpace(reply) == "" {
		reply = r.RepliquePNJ
	}

	return quest.Stage{
		Channel:  rule,
		Keywords: nonBlank(keywords),
		Emoji:    quest.Emoji(strings.TrimSpace(r.Emoji)),
		Reply:    strings.TrimSpace(reply),
	}
}

type questRecord struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Nom         string        `json:"nom" yaml:"nom"`
	Type        string        `json:"type" yaml:"type"`
	Steps       []stageRecord `json:"steps" yaml:"steps"`
	stageRecord `yaml:",inline"`
}

func (r questRecord) toQuest() *quest.Quest {
	name := r.Name
	if name == "" {
		name = r.Nom
	}
	if strings.EqualFold(strings.TrimSpace(r.Type), string(quest.KindMultiStep)) {
		steps := make([]quest.Stage, len(r.Steps))
		for i, s := range r.Steps {
			steps[i] = s.toStage()
		}
		return quest.NewMultiStep(r.ID, name, steps)
	}
	return quest.NewSimple(r.ID, name, r.stageRecord.toStage())
}

// questList decodes list-valued top-level entries of a quests file and
// silently ignores everything else (titles, version fields, comments).
type questList []questRecord

func (l *questList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil
	}
	var recs []questRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return err
	}
	*l = recs
	return nil
}

func (l *questList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return nil
	}
	var recs []questRecord
	if err := node.Decode(&recs); err != nil {
		return err
	}
	*l = recs
	return nil
}

type npcRecord struct {
	DisplayName  string              `json:"display_name" yaml:"display_name"`
	NomAffiche   string              `json:"nom_affiche" yaml:"nom_affiche"`
	Replies      []string            `json:"replies" yaml:"replies"`
	Repliques    []string            `json:"repliques" yaml:"repliques"`
	QuestReplies map[string][]string `json:"quest_replies" yaml:"quest_replies"`
	WebhookEnv   string              `json:"webhook_env" yaml:"webhook_env"`
	AvatarURL    string              `json:"avatar_url" yaml:"avatar_url"`
}

func (r npcRecord) toNPC(name string) *actor.NPC {
	display := r.DisplayName
	if strings.TrimSpace(display) == "" {
		display = r.NomAffiche
	}
	replies := r.Replies
	if len(replies) == 0 {
		replies = r.Repliques
	}

	var questReplies map[string][]string
	if len(r.QuestReplies) > 0 {
		questReplies = make(map[string][]string, len(r.QuestReplies))
		for id, pool := range r.QuestReplies {
			questReplies[quest.CanonicalID(id)] = pool
		}
	}

	return &actor.NPC{
		Name:         name,
		DisplayName:  strings.TrimSpace(display),
		Replies:      replies,
		QuestReplies: questReplies,
		WebhookEnv:   strings.TrimSpace(r.WebhookEnv),
		AvatarURL:    strings.TrimSpace(r.AvatarURL),
	}
}

func nonBlank(in []string) []string {
	var out []string
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
