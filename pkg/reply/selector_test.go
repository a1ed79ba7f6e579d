package reply

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/npc-quest-engine/pkg/actor"
)

func eldra() *actor.NPC {
	return &actor.NPC{
		Name:        "Eldra",
		DisplayName: "Eldra l'Herboriste",
		Replies: []string{
			"Bonjour {user}.",
			"Encore toi, {user} ?",
			"Que veux-tu, {user} ?",
		},
		QuestReplies: map[string][]string{
			"Q_HERBES": {"Les herbes, {user} !", "As-tu trouvé la sauge, {user} ?"},
		},
	}
}

func TestSelect_OverrideWins(t *testing.T) {
	s := NewSelector(nil, 1)

	got := s.Select(eldra(), "q_herbes", "42", "  Merci {user}, voici ta récompense.  ", "<@42>")
	assert.Equal(t, "Merci <@42>, voici ta récompense.", got)

	last, ok := s.Memo().Last("eldra", "Q_HERBES", "42")
	require.True(t, ok, "override should be remembered")
	assert.Equal(t, "Merci {user}, voici ta récompense.", last)
}

func TestSelect_QuestPoolBeforeGenericPool(t *testing.T) {
	s := NewSelector(nil, 2)
	npc := eldra()

	for i := 0; i < 20; i++ {
		got := s.Select(npc, "Q_HERBES", "42", "", "<@42>")
		assert.Contains(t, []string{"Les herbes, <@42> !", "As-tu trouvé la sauge, <@42> ?"}, got)
	}

	got := s.Select(npc, "Q_OTHER", "42", "", "<@42>")
	assert.Contains(t, []string{"Bonjour <@42>.", "Encore toi, <@42> ?", "Que veux-tu, <@42> ?"}, got)
}

func TestSelect_GreetingOfLastResort(t *testing.T) {
	s := NewSelector(nil, 3)
	npc := &actor.NPC{Name: "borin", DisplayName: "Borin"}

	assert.Equal(t, "Borin te salue, <@7>.", s.Select(npc, "Q", "7", "", "<@7>"))
	// A single-candidate pool is allowed to repeat.
	assert.Equal(t, "Borin te salue, <@7>.", s.Select(npc, "Q", "7", "", "<@7>"))
}

func TestSelect_NeverRepeatsImmediately(t *testing.T) {
	s := NewSelector(nil, 4)
	npc := eldra()

	prev := ""
	for i := 0; i < 100; i++ {
		got := s.Select(npc, "Q_OTHER", "42", "", "<@42>")
		require.NotEqual(t, prev, got, "draw %d repeated the previous line", i)
		prev = got
	}
}

func TestSelect_TwoCandidatesAlternate(t *testing.T) {
	s := NewSelector(nil, 5)
	npc := &actor.NPC{Name: "borin", Replies: []string{"A", "B"}}

	first := s.Select(npc, "Q", "1", "", "")
	for i := 0; i < 100; i++ {
		next := s.Select(npc, "Q", "1", "", "")
		require.NotEqual(t, first, next)
		first = next
	}
}

func TestSelect_MemoIsPerUser(t *testing.T) {
	s := NewSelector(nil, 6)
	npc := &actor.NPC{Name: "borin", Replies: []string{"A", "B"}}

	a := s.Select(npc, "Q", "1", "", "")
	s.Select(npc, "Q", "2", "", "")

	// user 1's next line depends only on user 1's previous line
	assert.NotEqual(t, a, s.Select(npc, "Q", "1", "", ""))
	assert.Equal(t, 2, s.Memo().Len())
}

func TestSelect_ConcurrentUse(t *testing.T) {
	s := NewSelector(nil, 7)
	npc := eldra()

	var wg sync.WaitGroup
	for u := 0; u < 16; u++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Select(npc, "Q_OTHER", user, "", "")
			}
		}(fmt.Sprintf("user-%d", u))
	}
	wg.Wait()

	assert.Equal(t, 16, s.Memo().Len())
}

func TestMemo_EvictsOldest(t *testing.T) {
	m := NewMemo(2)
	m.Remember("n", "q", "1", "a")
	m.Remember("n", "q", "2", "b")
	m.Remember("n", "q", "1", "c") // refresh user 1
	m.Remember("n", "q", "3", "d")

	_, ok := m.Last("n", "q", "2")
	assert.False(t, ok, "oldest entry should have been evicted")

	line, ok := m.Last("n", "q", "1")
	assert.True(t, ok)
	assert.Equal(t, "c", line)
	assert.Equal(t, 2, m.Len())
}

func TestRender(t *testing.T) {
	assert.Equal(t, "Salut <@1> et <@1>", Render("Salut {user} et {user}", "<@1>"))
	assert.Equal(t, "Pas de mention", Render("Pas de mention", "<@1>"))
}
