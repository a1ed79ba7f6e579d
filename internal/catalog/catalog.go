// Package catalog loads quest and NPC definitions from JSON or YAML files
// and serves them read-only to the engine.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/atomic"
	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/npc-quest-engine/pkg/actor"
	"github.com/jwebster45206/npc-quest-engine/pkg/quest"
)

type snapshot struct {
	quests map[string]*quest.Quest
	npcs   map[string]*actor.NPC
	// problems found while indexing (skipped entries, duplicates)
	problems []string
}

// FileCatalog serves quests and NPCs loaded from disk. Reload swaps the
// whole catalog at once; readers never see a half-loaded state.
type FileCatalog struct {
	questsPath string
	npcsPath   string
	logger     *slog.Logger
	current    atomic.Pointer[snapshot]
}

// Load reads both files. An unreadable or unparseable file is an error;
// individual bad entries are skipped and reported by Validate.
func Load(questsPath, npcsPath string, logger *slog.Logger) (*FileCatalog, error) {
	c := &FileCatalog{
		questsPath: questsPath,
		npcsPath:   npcsPath,
		logger:     logger,
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads both files. On error the previous catalog stays in place.
func (c *FileCatalog) Reload() error {
	snap := &snapshot{}

	quests, problems, err := loadQuests(c.questsPath)
	if err != nil {
		return err
	}
	snap.quests = quests
	snap.problems = append(snap.problems, problems...)

	npcs, problems, err := loadNPCs(c.npcsPath)
	if err != nil {
		return err
	}
	snap.npcs = npcs
	snap.problems = append(snap.problems, problems...)

	c.current.Store(snap)
	c.logger.Info("Catalog loaded", "quests", len(snap.quests), "npcs", len(snap.npcs))
	for _, p := range snap.problems {
		c.logger.Warn("Catalog problem", "problem", p)
	}
	return nil
}

// QuestByID looks a quest up case-insensitively.
func (c *FileCatalog) QuestByID(id string) (*quest.Quest, bool) {
	q, ok := c.current.Load().quests[quest.CanonicalID(id)]
	return q, ok
}

// NPCByName looks an NPC up case-insensitively.
func (c *FileCatalog) NPCByName(name string) (*actor.NPC, bool) {
	n, ok := c.current.Load().npcs[actor.Key(name)]
	return n, ok
}

// QuestIDs returns the sorted quest identifiers.
func (c *FileCatalog) QuestIDs() []string {
	snap := c.current.Load()
	ids := make([]string, 0, len(snap.quests))
	for id := range snap.quests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NPCNames returns the sorted NPC names as written in the file.
func (c *FileCatalog) NPCNames() []string {
	snap := c.current.Load()
	names := make([]string, 0, len(snap.npcs))
	for _, n := range snap.npcs {
		names = append(names, n.Name)
	}
	sort.Strings(names)
	return names
}

// Validate reports authoring problems that do not prevent loading but will
// make some interactions no-ops at runtime.
func (c *FileCatalog) Validate() []string {
	snap := c.current.Load()
	problems := append([]string(nil), snap.problems...)

	for _, id := range c.QuestIDs() {
		q := snap.quests[id]
		if _, err := quest.ResolveStep(q, 1); err != nil {
			problems = append(problems, fmt.Sprintf("quest %s: %v", id, err))
		}
	}
	for _, name := range c.NPCNames() {
		n := snap.npcs[actor.Key(name)]
		if len(n.PoolFor("")) == 0 {
			problems = append(problems, fmt.Sprintf("npc %s: empty generic reply pool", name))
		}
		if n.WebhookEnv == "" {
			problems = append(problems, fmt.Sprintf("npc %s: no webhook_env, replies cannot be posted as this npc", name))
		}
	}
	return problems
}

type unmarshalFunc func(data []byte, v any) error

func unmarshalerFor(path string) unmarshalFunc {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal
	default:
		return json.Unmarshal
	}
}

func loadQuests(path string) (map[string]*quest.Quest, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read quests file: %w", err)
	}

	var raw map[string]questList
	if err := unmarshalerFor(path)(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse quests file %s: %w", path, err)
	}

	// Deterministic order so duplicate resolution does not depend on map order.
	sections := make([]string, 0, len(raw))
	for section := range raw {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	quests := make(map[string]*quest.Quest)
	var problems []string
	for _, section := range sections {
		for i, rec := range raw[section] {
			id := quest.CanonicalID(rec.ID)
			if id == "" {
				problems = append(problems, fmt.Sprintf("quests[%s][%d]: missing id, skipped", section, i))
				continue
			}
			if _, dup := quests[id]; dup {
				problems = append(problems, fmt.Sprintf("quest %s: duplicate id in %s, later entry wins", id, section))
			}
			quests[id] = rec.toQuest()
		}
	}
	return quests, problems, nil
}

func loadNPCs(path string) (map[string]*actor.NPC, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read npcs file: %w", err)
	}

	var raw map[string]npcRecord
	if err := unmarshalerFor(path)(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse npcs file %s: %w", path, err)
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	npcs := make(map[string]*actor.NPC, len(raw))
	var problems []string
	for _, rawName := range names {
		name := strings.TrimSpace(rawName)
		key := actor.Key(name)
		if key == "" {
			problems = append(problems, "npc with empty name skipped")
			continue
		}
		if _, dup := npcs[key]; dup {
			problems = append(problems, fmt.Sprintf("npc %s: duplicate name (case-insensitive), later entry wins", name))
		}
		npcs[key] = raw[rawName].toNPC(name)
	}
	return npcs, problems, nil
}
