package engine

import (
	"context"

	"github.com/jwebster45206/npc-quest-engine/pkg/quest"
	"github.com/jwebster45206/npc-quest-engine/pkg/queue"
)

// Dispatch routes a queued event to OnTextEvent or OnReactionEvent.
// Unknown event types are ignored.
func (e *Engine) Dispatch(ctx context.Context, ev *queue.Event) Decision {
	channel := quest.ChannelRef{ID: ev.ChannelID, Name: ev.ChannelName}

	switch ev.Type {
	case queue.EventTypeText:
		return e.OnTextEvent(ctx, TextEvent{
			UserID:  ev.UserID,
			Mention: ev.Mention,
			Channel: channel,
			Text:    ev.Text,
		})
	case queue.EventTypeReaction:
		return e.OnReactionEvent(ctx, ReactionEvent{
			UserID:    ev.UserID,
			Mention:   ev.Mention,
			Channel:   channel,
			MessageID: ev.MessageID,
			Emoji:     ev.Emoji,
		})
	default:
		e.logger.Warn("Unknown event type", "type", ev.Type, "request_id", ev.RequestID)
		e.stats.record(Ignored)
		return Ignored
	}
}
