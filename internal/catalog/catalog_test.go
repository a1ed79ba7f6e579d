package catalog

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/npc-quest-engine/pkg/quest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func loadTestdata(t *testing.T, quests, npcs string) *FileCatalog {
	t.Helper()
	c, err := Load(filepath.Join("testdata", quests), filepath.Join("testdata", npcs), testLogger())
	require.NoError(t, err)
	return c
}

func TestLoad_JSONIndexesEveryListSection(t *testing.T) {
	c := loadTestdata(t, "quests.json", "npcs.json")

	assert.Equal(t, []string{"Q_CHAMPIGNONS", "Q_HERBES", "Q_SCEAU", "Q_VIDE"}, c.QuestIDs())

	q, ok := c.QuestByID("q_Champignons")
	require.True(t, ok, "lookup should be case-insensitive")
	assert.Equal(t, quest.KindSimple, q.Kind())

	view, err := quest.ResolveStep(q, 0)
	require.NoError(t, err)
	assert.Equal(t, "forêt-noire", view.Channel.Name)
	assert.Equal(t, []string{"bonjour", "champignon"}, view.Keywords)
	assert.Equal(t, "Merci {user}, ces champignons sont parfaits.", view.Reply)
}

func TestLoad_JSONChannelObjectAndEmoji(t *testing.T) {
	c := loadTestdata(t, "quests.json", "npcs.json")

	q, ok := c.QuestByID("Q_SCEAU")
	require.True(t, ok)
	view, err := quest.ResolveStep(q, 0)
	require.NoError(t, err)
	assert.Equal(t, "1122334455", view.Channel.ID)
	assert.Equal(t, quest.Emoji("✅"), view.Emoji)
}

func TestLoad_JSONMultiStep(t *testing.T) {
	c := loadTestdata(t, "quests.json", "npcs.json")

	q, ok := c.QuestByID("Q_HERBES")
	require.True(t, ok)
	assert.Equal(t, quest.KindMultiStep, q.Kind())
	assert.Equal(t, 3, q.StepCount())
	assert.Equal(t, "Les herbes d'Eldra", q.Name())

	view, err := quest.ResolveStep(q, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"menthe", "thym"}, view.Keywords)
	assert.Equal(t, quest.Emoji("🌿"), view.Emoji)
	assert.True(t, view.HasNext())
}

func TestLoad_NPCsTrimmedAndCaseInsensitive(t *testing.T) {
	c := loadTestdata(t, "quests.json", "npcs.json")

	n, ok := c.NPCByName("ELDRA")
	require.True(t, ok)
	assert.Equal(t, "Eldra", n.Name)
	assert.Equal(t, "Eldra l'Herboriste", n.DisplayName)
	assert.Equal(t, "WEBHOOK_ELDRA", n.WebhookEnv)
	assert.Equal(t, []string{"Les herbes, {user} !"}, n.PoolFor("Q_HERBES"))
	assert.Len(t, n.PoolFor("Q_OTHER"), 2)

	_, ok = c.NPCByName("nobody")
	assert.False(t, ok)
	assert.Equal(t, []string{"Borin", "Eldra"}, c.NPCNames())
}

func TestLoad_YAML(t *testing.T) {
	c := loadTestdata(t, "quests.yaml", "npcs.yaml")

	q, ok := c.QuestByID("Q_YAML")
	require.True(t, ok)

	first, err := quest.ResolveStep(q, 1)
	require.NoError(t, err)
	assert.Equal(t, quest.ChannelRule{ID: "998877", Name: "ignored-name"}, first.Channel)

	second, err := quest.ResolveStep(q, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"porte"}, second.Keywords)
	assert.Equal(t, quest.Emoji("<:lumharel:12345>"), second.Emoji)

	n, ok := c.NPCByName("gardien")
	require.True(t, ok)
	assert.Equal(t, "Le Gardien", n.Label())
	assert.Equal(t, "https://example.invalid/gardien.png", n.AvatarURL)
}

func TestValidate_ReportsProblems(t *testing.T) {
	c := loadTestdata(t, "quests.json", "npcs.json")

	problems := strings.Join(c.Validate(), "\n")
	assert.Contains(t, problems, "missing id")
	assert.Contains(t, problems, "quest Q_VIDE")
	assert.Contains(t, problems, "npc Borin: empty generic reply pool")
	assert.Contains(t, problems, "npc Borin: no webhook_env")
	assert.NotContains(t, problems, "npc Eldra")
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "quests.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))

	_, err := Load(bad, filepath.Join("testdata", "npcs.json"), testLogger())
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.json"), filepath.Join("testdata", "npcs.json"), testLogger())
	assert.Error(t, err)
}

func TestReload_SwapsAndKeepsOldOnError(t *testing.T) {
	dir := t.TempDir()
	questsPath := filepath.Join(dir, "quests.json")
	npcsPath := filepath.Join(dir, "npcs.json")
	require.NoError(t, os.WriteFile(questsPath, []byte(`{"a": [{"id": "q1"}]}`), 0o644))
	require.NoError(t, os.WriteFile(npcsPath, []byte(`{"Eldra": {"replies": ["x"]}}`), 0o644))

	c, err := Load(questsPath, npcsPath, testLogger())
	require.NoError(t, err)
	_, ok := c.QuestByID("Q2")
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(questsPath, []byte(`{"a": [{"id": "q1"}, {"id": "q2"}]}`), 0o644))
	require.NoError(t, c.Reload())
	_, ok = c.QuestByID("Q2")
	assert.True(t, ok)

	require.NoError(t, os.WriteFile(questsPath, []byte(`[broken`), 0o644))
	assert.Error(t, c.Reload())
	_, ok = c.QuestByID("Q2")
	assert.True(t, ok, "failed reload must keep the previous catalog")
}
