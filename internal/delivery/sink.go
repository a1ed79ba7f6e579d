// Package delivery hands engine output to the chat platform. Sinks never
// return errors: a failed delivery is logged and dropped, and never changes
// what the engine decided.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jwebster45206/npc-quest-engine/pkg/actor"
	"github.com/jwebster45206/npc-quest-engine/pkg/quest"
)

// Sink receives the messages the engine wants posted.
type Sink interface {
	// SendAsNPC posts text so that it appears to come from npc.
	SendAsNPC(ctx context.Context, npc *actor.NPC, channel quest.ChannelRef, text string)
	// SendSystemHint posts a system message explaining what to do next.
	SendSystemHint(ctx context.Context, channel quest.ChannelRef, text string)
	// SendAck acknowledges a validating reaction.
	SendAck(ctx context.Context, channel quest.ChannelRef, mention string)
}

// HintText is the reminder posted when a step waits for a reaction.
func HintText(emoji quest.Emoji, npc *actor.NPC) string {
	return fmt.Sprintf("(Pour valider, réagis avec %s sur le message du %s 😉)", emoji, npc.Label())
}

// AckText is the acknowledgement posted when the expected reaction arrives.
func AckText(mention string) string {
	return mention + " ✅"
}

// LogSink writes deliveries to the logger. It is the sink of last resort and
// the one the console simulator wraps.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) SendAsNPC(ctx context.Context, npc *actor.NPC, channel quest.ChannelRef, text string) {
	s.logger.Info("NPC reply", "npc", npc.Label(), "channel", channel.Name, "channel_id", channel.ID, "text", text)
}

func (s *LogSink) SendSystemHint(ctx context.Context, channel quest.ChannelRef, text string) {
	s.logger.Info("System hint", "channel", channel.Name, "channel_id", channel.ID, "text", text)
}

func (s *LogSink) SendAck(ctx context.Context, channel quest.ChannelRef, mention string) {
	s.logger.Info("System ack", "channel", channel.Name, "channel_id", channel.ID, "text", AckText(mention))
}

// MultiSink fans every delivery out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) SendAsNPC(ctx context.Context, npc *actor.NPC, channel quest.ChannelRef, text string) {
	for _, s := range m {
		s.SendAsNPC(ctx, npc, channel, text)
	}
}

func (m MultiSink) SendSystemHint(ctx context.Context, channel quest.ChannelRef, text string) {
	for _, s := range m {
		s.SendSystemHint(ctx, channel, text)
	}
}

func (m MultiSink) SendAck(ctx context.Context, channel quest.ChannelRef, mention string) {
	for _, s := range m {
		s.SendAck(ctx, channel, mention)
	}
}

// Recorder keeps deliveries in memory, for tests and the console simulator.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Message is one recorded delivery.
type Message struct {
	Kind    string // "npc", "hint" or "ack"
	NPC     string
	Channel quest.ChannelRef
	Text    string
}

func (r *Recorder) record(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

func (r *Recorder) SendAsNPC(ctx context.Context, npc *actor.NPC, channel quest.ChannelRef, text string) {
	r.record(Message{Kind: "npc", NPC: npc.Label(), Channel: channel, Text: text})
}

func (r *Recorder) SendSystemHint(ctx context.Context, channel quest.ChannelRef, text string) {
	r.record(Message{Kind: "hint", Channel: channel, Text: text})
}

func (r *Recorder) SendAck(ctx context.Context, channel quest.ChannelRef, mention string) {
	r.record(Message{Kind: "ack", Channel: channel, Text: AckText(mention)})
}

// Drain returns the recorded deliveries and forgets them.
func (r *Recorder) Drain() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.messages
	r.messages = nil
	return out
}
