package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jwebster45206/npc-quest-engine/internal/delivery"
	"github.com/jwebster45206/npc-quest-engine/internal/engine"
	"github.com/jwebster45206/npc-quest-engine/pkg/quest"
	"github.com/jwebster45206/npc-quest-engine/pkg/state"
)

// lastMessageID stands in for the id of the NPC message a player reacts to.
const lastMessageID = "console-last"

// Session is one simulated player talking to the engine in-process.
type Session struct {
	engine   *engine.Engine
	recorder *delivery.Recorder
	userID   string
	channel  quest.ChannelRef
}

// Turn is what one player action produced.
type Turn struct {
	Decision   engine.Decision
	Deliveries []delivery.Message
}

func NewSession(eng *engine.Engine, recorder *delivery.Recorder, userID, channel string) *Session {
	return &Session{
		engine:   eng,
		recorder: recorder,
		userID:   userID,
		channel:  quest.ChannelRef{Name: channel},
	}
}

func (s *Session) Channel() quest.ChannelRef {
	return s.channel
}

// SetChannel moves the player. A numeric argument is taken as a channel id.
func (s *Session) SetChannel(arg string) {
	arg = strings.TrimPrefix(strings.TrimSpace(arg), "#")
	if arg != "" && strings.Trim(arg, "0123456789") == "" {
		s.channel = quest.ChannelRef{ID: arg, Name: s.channel.Name}
		return
	}
	s.channel = quest.ChannelRef{Name: arg}
}

func (s *Session) Say(ctx context.Context, text string) Turn {
	d := s.engine.OnTextEvent(ctx, engine.TextEvent{
		UserID:  s.userID,
		Channel: s.channel,
		Text:    text,
	})
	return Turn{Decision: d, Deliveries: s.recorder.Drain()}
}

func (s *Session) React(ctx context.Context, emoji string) Turn {
	d := s.engine.OnReactionEvent(ctx, engine.ReactionEvent{
		UserID:    s.userID,
		Channel:   s.channel,
		MessageID: lastMessageID,
		Emoji:     emoji,
	})
	return Turn{Decision: d, Deliveries: s.recorder.Drain()}
}

func (s *Session) Start(ctx context.Context, questID, npcName string) (*state.Interaction, error) {
	return s.engine.Begin(ctx, s.userID, questID, npcName)
}

func (s *Session) State(ctx context.Context) (*state.Interaction, error) {
	return s.engine.Inspect(ctx, s.userID)
}

func (s *Session) Reset(ctx context.Context) error {
	return s.engine.Reset(ctx, s.userID)
}

// describe renders an interaction for the side panel.
func describe(in *state.Interaction) string {
	if in == nil {
		return "No active interaction\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Quest:\n%s\n\n", in.QuestID)
	fmt.Fprintf(&b, "NPC:\n%s\n\n", in.NPCName)
	fmt.Fprintf(&b, "Step:\n%d\n\n", in.Step())
	if in.AwaitingReaction {
		fmt.Fprintf(&b, "Awaiting:\n%s\n\n", in.ExpectedEmoji)
	}
	fmt.Fprintf(&b, "Version:\n%d\n", in.Version)
	return b.String()
}
