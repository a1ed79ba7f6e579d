package delivery

import (
	"log/slog"

	"github.com/jwebster45206/npc-quest-engine/internal/config"
	"github.com/jwebster45206/npc-quest-engine/internal/services/events"
)

// FromConfig assembles the sinks a process delivers through. Deliveries are
// always logged; they are also posted to NPC webhooks, and published on the
// broadcaster when b is non-nil.
func FromConfig(cfg *config.Config, b *events.Broadcaster, logger *slog.Logger) Sink {
	sinks := MultiSink{
		NewLogSink(logger),
		NewWebhookSink(cfg.SystemWebhookURL, logger),
	}
	if b != nil {
		sinks = append(sinks, NewBroadcastSink(b))
	}
	return sinks
}
