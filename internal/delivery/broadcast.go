package delivery

import (
	"context"

	"github.com/jwebster45206/npc-quest-engine/internal/services/events"
	"github.com/jwebster45206/npc-quest-engine/pkg/actor"
	"github.com/jwebster45206/npc-quest-engine/pkg/quest"
)

// BroadcastSink publishes deliveries on the Redis delivery channel, where a
// transport bridge or an SSE client picks them up. Publish errors are
// already logged by the broadcaster.
type BroadcastSink struct {
	b *events.Broadcaster
}

var _ Sink = (*BroadcastSink)(nil)

func NewBroadcastSink(b *events.Broadcaster) *BroadcastSink {
	return &BroadcastSink{b: b}
}

func (s *BroadcastSink) SendAsNPC(ctx context.Context, npc *actor.NPC, channel quest.ChannelRef, text string) {
	if npc == nil {
		return
	}
	_ = s.b.PublishNPCReply(ctx, channel.ID, channel.Name, npc.Name, npc.Label(), npc.AvatarURL, text)
}

func (s *BroadcastSink) SendSystemHint(ctx context.Context, channel quest.ChannelRef, text string) {
	_ = s.b.PublishSystemHint(ctx, channel.ID, channel.Name, text)
}

func (s *BroadcastSink) SendAck(ctx context.Context, channel quest.ChannelRef, mention string) {
	_ = s.b.PublishSystemAck(ctx, channel.ID, channel.Name, mention, AckText(mention))
}
