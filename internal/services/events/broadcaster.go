package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeNPCReply            EventType = "npc.reply"
	EventTypeSystemHint          EventType = "system.hint"
	EventTypeSystemAck           EventType = "system.ack"
	EventTypeInteractionDecision EventType = "interaction.decision"
)

// Event is what transport bridges and SSE clients receive on the delivery
// channel
type Event struct {
	Type      EventType      `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	ChannelID string         `json:"channel_id,omitempty"`
	Channel   string         `json:"channel,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	At        time.Time      `json:"at"`
}

// Broadcaster publishes delivery events to Redis Pub/Sub
type Broadcaster struct {
	redisClient *redis.Client
	channel     string
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster publishing on channel
func NewBroadcaster(redisClient *redis.Client, channel string, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		channel:     channel,
		logger:      logger,
	}
}

// Channel returns the Redis channel events are published on
func (b *Broadcaster) Channel() string {
	return b.channel
}

// PublishNPCReply publishes an npc.reply event
func (b *Broadcaster) PublishNPCReply(ctx context.Context, channelID, channelName, npcName, displayName, avatarURL, text string) error {
	return b.publish(ctx, Event{
		Type:      EventTypeNPCReply,
		ChannelID: channelID,
		Channel:   channelName,
		Data: map[string]any{
			"npc":          npcName,
			"display_name": displayName,
			"avatar_url":   avatarURL,
			"content":      text,
		},
	})
}

// PublishSystemHint publishes a system.hint event
func (b *Broadcaster) PublishSystemHint(ctx context.Context, channelID, channelName, text string) error {
	return b.publish(ctx, Event{
		Type:      EventTypeSystemHint,
		ChannelID: channelID,
		Channel:   channelName,
		Data: map[string]any{
			"content": text,
		},
	})
}

// PublishSystemAck publishes a system.ack event
func (b *Broadcaster) PublishSystemAck(ctx context.Context, channelID, channelName, mention, text string) error {
	return b.publish(ctx, Event{
		Type:      EventTypeSystemAck,
		ChannelID: channelID,
		Channel:   channelName,
		Data: map[string]any{
			"mention": mention,
			"content": text,
		},
	})
}

// PublishDecision publishes the outcome of one processed chat event
func (b *Broadcaster) PublishDecision(ctx context.Context, requestID, userID, decision string, durationMS int64) error {
	return b.publish(ctx, Event{
		Type:      EventTypeInteractionDecision,
		RequestID: requestID,
		UserID:    userID,
		Data: map[string]any{
			"decision":    decision,
			"duration_ms": durationMS,
		},
	})
}

func (b *Broadcaster) publish(ctx context.Context, event Event) error {
	event.At = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", b.channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", b.channel,
		"event_type", event.Type,
		"request_id", event.RequestID,
	)

	return nil
}
