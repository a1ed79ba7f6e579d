package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jwebster45206/npc-quest-engine/internal/catalog"
	"github.com/jwebster45206/npc-quest-engine/pkg/quest"
)

// CatalogValidator collects authoring problems in a quest and NPC catalog.
type CatalogValidator struct {
	errors []string
}

func (v *CatalogValidator) validateFiles(questsPath, npcsPath string) error {
	fmt.Printf("Validating %s and %s...\n", questsPath, npcsPath)

	for _, path := range []string{questsPath, npcsPath} {
		if !hasCatalogExtension(path) {
			return fmt.Errorf("catalog file must have a .json, .yaml or .yml extension: %s", filepath.Base(path))
		}
	}

	cat, err := catalog.Load(questsPath, npcsPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return err
	}

	v.errors = nil
	v.validateCatalog(cat)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors:\n%s", strings.Join(v.errors, "\n"))
	}
	return nil
}

func (v *CatalogValidator) validateCatalog(cat *catalog.FileCatalog) {
	for _, problem := range cat.Validate() {
		v.addError(problem)
	}

	for _, id := range cat.QuestIDs() {
		q, _ := cat.QuestByID(id)
		v.validateQuest(q)
	}

	// quest_replies keys must name a loaded quest, or the override is dead
	for _, name := range cat.NPCNames() {
		n, _ := cat.NPCByName(name)
		for questID := range n.QuestReplies {
			if _, ok := cat.QuestByID(questID); !ok {
				v.addError(fmt.Sprintf("npc %s has quest_replies for unknown quest '%s'", name, questID))
			}
		}
	}
}

func (v *CatalogValidator) validateQuest(q *quest.Quest) {
	for pos := 1; pos <= q.StepCount(); pos++ {
		view, err := quest.ResolveStep(q, pos)
		if err != nil {
			// already reported by the catalog
			return
		}
		if len(view.Keywords) == 0 && view.Channel.IsZero() {
			v.addError(fmt.Sprintf("quest %s step %d has no keywords and no channel - every message matches", q.ID(), pos))
		}
	}
}

func (v *CatalogValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

func hasCatalogExtension(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
