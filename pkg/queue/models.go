package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of chat event in the queue
type EventType string

const (
	// EventTypeText is a chat message posted by a player
	EventTypeText EventType = "text"

	// EventTypeReaction is a reaction a player added to a message
	EventTypeReaction EventType = "reaction"
)

// ErrInvalidEvent is returned by Validate for malformed events
var ErrInvalidEvent = errors.New("invalid event")

// Event is an inbound chat event handed over by the transport layer
type Event struct {
	RequestID string    `json:"request_id"`
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	Mention   string    `json:"mention,omitempty"`

	ChannelID   string `json:"channel_id,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`

	// Text-specific fields
	Text string `json:"text,omitempty"`

	// Reaction-specific fields
	MessageID string `json:"message_id,omitempty"`
	Emoji     string `json:"emoji,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewTextEvent builds a text event with a fresh request id
func NewTextEvent(userID, channelID, channelName, text string) *Event {
	return &Event{
		RequestID:   uuid.New().String(),
		Type:        EventTypeText,
		UserID:      userID,
		ChannelID:   channelID,
		ChannelName: channelName,
		Text:        text,
		EnqueuedAt:  time.Now(),
	}
}

// NewReactionEvent builds a reaction event with a fresh request id
func NewReactionEvent(userID, channelID, channelName, messageID, emoji string) *Event {
	return &Event{
		RequestID:   uuid.New().String(),
		Type:        EventTypeReaction,
		UserID:      userID,
		ChannelID:   channelID,
		ChannelName: channelName,
		MessageID:   messageID,
		Emoji:       emoji,
		EnqueuedAt:  time.Now(),
	}
}

// Validate checks the fields required for the event's type
func (e *Event) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidEvent)
	}
	switch e.Type {
	case EventTypeText:
		return nil
	case EventTypeReaction:
		if strings.TrimSpace(e.Emoji) == "" {
			return fmt.Errorf("%w: emoji is required for reactions", ErrInvalidEvent)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
}

// MentionOrDefault returns the mention to substitute in replies, defaulting
// to the platform's user mention syntax
func (e *Event) MentionOrDefault() string {
	if e.Mention != "" {
		return e.Mention
	}
	return fmt.Sprintf("<@%s>", e.UserID)
}

// ToJSON converts the event to JSON bytes for Redis
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an event from JSON bytes
func FromJSON(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
