package engine

import (
	"go.uber.org/atomic"
)

// Stats counts decisions and recovered errors since the engine started.
type Stats struct {
	ignored                 atomic.Int64
	replied                 atomic.Int64
	repliedAwaitingReaction atomic.Int64
	advanced                atomic.Int64
	completed               atomic.Int64

	questNotFound atomic.Int64
	npcNotFound   atomic.Int64
	noSteps       atomic.Int64
	storeErrors   atomic.Int64
	conflicts     atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Ignored                 int64 `json:"ignored"`
	Replied                 int64 `json:"replied"`
	RepliedAwaitingReaction int64 `json:"replied_awaiting_reaction"`
	Advanced                int64 `json:"advanced"`
	Completed               int64 `json:"completed"`

	QuestNotFound int64 `json:"quest_not_found"`
	NPCNotFound   int64 `json:"npc_not_found"`
	NoSteps       int64 `json:"no_steps_defined"`
	StoreErrors   int64 `json:"store_errors"`
	Conflicts     int64 `json:"conflicts"`
}

func (s *Stats) record(d Decision) {
	switch d {
	case Ignored:
		s.ignored.Inc()
	case Replied:
		s.replied.Inc()
	case RepliedAwaitingReaction:
		s.repliedAwaitingReaction.Inc()
	case Advanced:
		s.advanced.Inc()
	case Completed:
		s.completed.Inc()
	}
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Ignored:                 s.ignored.Load(),
		Replied:                 s.replied.Load(),
		RepliedAwaitingReaction: s.repliedAwaitingReaction.Load(),
		Advanced:                s.advanced.Load(),
		Completed:               s.completed.Load(),
		QuestNotFound:           s.questNotFound.Load(),
		NPCNotFound:             s.npcNotFound.Load(),
		NoSteps:                 s.noSteps.Load(),
		StoreErrors:             s.storeErrors.Load(),
		Conflicts:               s.conflicts.Load(),
	}
}
