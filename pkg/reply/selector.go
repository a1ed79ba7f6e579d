// Package reply picks the line an NPC says when a player satisfies a quest
// step, avoiding serving the same line twice in a row to the same player.
package reply

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/jwebster45206/npc-quest-engine/pkg/actor"
	"github.com/jwebster45206/npc-quest-engine/pkg/quest"
)

// MentionToken is replaced by the player's mention in every served line.
const MentionToken = "{user}"

// greetingFormat is the line of last resort when an NPC has no pool at all.
const greetingFormat = "%s te salue, " + MentionToken + "."

// Selector chooses NPC lines. It is safe for concurrent use.
type Selector struct {
	mu   sync.Mutex
	rng  *rand.Rand
	memo *Memo
}

// NewSelector creates a selector with a deterministic seed, mostly useful in tests.
func NewSelector(memo *Memo, seed uint64) *Selector {
	if memo == nil {
		memo = NewMemo(DefaultMemoSize)
	}
	return &Selector{
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		memo: memo,
	}
}

// NewRandomSelector creates a selector seeded from the runtime's random source.
func NewRandomSelector(memoSize int) *Selector {
	return NewSelector(NewMemo(memoSize), rand.Uint64())
}

// Memo exposes the anti-repeat memo.
func (s *Selector) Memo() *Memo {
	return s.memo
}

// Select returns the rendered line npc says to the player. A non-blank
// override (the step's own reply) wins; otherwise a line is drawn from the
// NPC's quest pool, then its generic pool, then a synthesized greeting.
func (s *Selector) Select(npc *actor.NPC, questID, userID, override, mention string) string {
	questID = quest.CanonicalID(questID)
	npcKey := ""
	if npc != nil {
		npcKey = actor.Key(npc.Name)
	}

	line := strings.TrimSpace(override)
	if line == "" {
		pool := npc.PoolFor(questID)
		if len(pool) == 0 {
			pool = []string{fmt.Sprintf(greetingFormat, npc.Label())}
		}
		last, _ := s.memo.Last(npcKey, questID, userID)
		line = s.draw(pool, last)
	}

	s.memo.Remember(npcKey, questID, userID, line)
	return Render(line, mention)
}

// draw picks uniformly among pool entries different from last, or among the
// whole pool when every entry equals last.
func (s *Selector) draw(pool []string, last string) string {
	candidates := make([]string, 0, len(pool))
	for _, line := range pool {
		if line != last {
			candidates = append(candidates, line)
		}
	}
	if len(candidates) == 0 {
		candidates = pool
	}

	s.mu.Lock()
	idx := s.rng.IntN(len(candidates))
	s.mu.Unlock()

	return candidates[idx]
}

// Render substitutes the player's mention for MentionToken.
func Render(line, mention string) string {
	return strings.ReplaceAll(line, MentionToken, mention)
}
