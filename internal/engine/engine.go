package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwebster45206/npc-quest-engine/internal/delivery"
	"github.com/jwebster45206/npc-quest-engine/internal/logger"
	"github.com/jwebster45206/npc-quest-engine/internal/storage"
	"github.com/jwebster45206/npc-quest-engine/pkg/actor"
	"github.com/jwebster45206/npc-quest-engine/pkg/quest"
	"github.com/jwebster45206/npc-quest-engine/pkg/reply"
	"github.com/jwebster45206/npc-quest-engine/pkg/state"
	"github.com/jwebster45206/npc-quest-engine/pkg/textnorm"
)

const (
	tracerName = "github.com/jwebster45206/npc-quest-engine/internal/engine"

	// DefaultMaxAttempts bounds how often one event is re-evaluated after
	// losing a compare-and-swap race.
	DefaultMaxAttempts = 5
)

var (
	// ErrQuestNotFound means the interaction names a quest missing from the catalog.
	ErrQuestNotFound = errors.New("quest not found")
	// ErrNPCNotFound means the interaction names an NPC missing from the catalog.
	ErrNPCNotFound = errors.New("npc not found")
)

// Catalog is the read-only quest and NPC lookup the engine depends on.
type Catalog interface {
	QuestByID(id string) (*quest.Quest, bool)
	NPCByName(name string) (*actor.NPC, bool)
}

// TextEvent is a chat message from a non-system author.
type TextEvent struct {
	UserID  string
	Mention string
	Channel quest.ChannelRef
	Text    string
}

// ReactionEvent is a reaction added by a non-system author.
type ReactionEvent struct {
	UserID    string
	Mention   string
	Channel   quest.ChannelRef
	MessageID string
	Emoji     string
}

// Config holds the engine's collaborators. Catalog and Store are required.
type Config struct {
	Catalog  Catalog
	Store    storage.Storage
	Sink     delivery.Sink
	Selector *reply.Selector
	Logger   *slog.Logger

	// MaxAttempts defaults to DefaultMaxAttempts.
	MaxAttempts int
	// DisableHints suppresses the "react with X" system message.
	DisableHints bool
	// DisableAcks suppresses the acknowledgement after a matching reaction.
	DisableAcks bool
}

// Engine advances players through quest conversations. It is safe for
// concurrent use; events of one user are applied one at a time.
type Engine struct {
	catalog     Catalog
	store       storage.Storage
	sink        delivery.Sink
	selector    *reply.Selector
	logger      *slog.Logger
	tracer      trace.Tracer
	maxAttempts int
	hints       bool
	acks        bool

	locks *userLocks
	stats Stats
}

// New builds an engine from cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("engine: catalog is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = delivery.NewLogSink(log)
	}
	selector := cfg.Selector
	if selector == nil {
		selector = reply.NewRandomSelector(reply.DefaultMemoSize)
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	return &Engine{
		catalog:     cfg.Catalog,
		store:       cfg.Store,
		sink:        sink,
		selector:    selector,
		logger:      log,
		tracer:      otel.Tracer(tracerName),
		maxAttempts: attempts,
		hints:       !cfg.DisableHints,
		acks:        !cfg.DisableAcks,
		locks:       newUserLocks(),
	}, nil
}

// Stats returns the engine's counters.
func (e *Engine) Stats() StatsSnapshot {
	return e.stats.Snapshot()
}

// Store returns the interaction store the engine writes to.
func (e *Engine) Store() storage.Storage {
	return e.store
}

// outcome is the result of evaluating one event against one record.
type outcome struct {
	decision Decision
	next     *state.Interaction // nil clears the interaction
	npc      *actor.NPC
	step     quest.StepView
}

type evaluator func(cur *state.Interaction) (outcome, error)

// OnTextEvent applies a chat message to the author's active interaction.
func (e *Engine) OnTextEvent(ctx context.Context, ev TextEvent) Decision {
	ctx, span := e.tracer.Start(ctx, "engine.OnTextEvent",
		trace.WithAttributes(attribute.String("user.id", ev.UserID), attribute.String("channel.name", ev.Channel.Name)))
	defer span.End()

	normalized := textnorm.Normalize(ev.Text)
	d := e.handle(ctx, span, ev.UserID, func(cur *state.Interaction) (outcome, error) {
		return e.evaluateText(cur, ev, normalized)
	}, func(ctx context.Context, out outcome) {
		e.deliverText(ctx, out, ev)
	})
	return d
}

// OnReactionEvent applies a reaction to the author's active interaction.
// The reacted-to message is not checked; only the emoji identity is.
func (e *Engine) OnReactionEvent(ctx context.Context, ev ReactionEvent) Decision {
	ctx, span := e.tracer.Start(ctx, "engine.OnReactionEvent",
		trace.WithAttributes(attribute.String("user.id", ev.UserID), attribute.String("reaction.emoji", ev.Emoji)))
	defer span.End()

	d := e.handle(ctx, span, ev.UserID, func(cur *state.Interaction) (outcome, error) {
		return e.evaluateReaction(cur, ev)
	}, func(ctx context.Context, out outcome) {
		if e.acks {
			e.sink.SendAck(ctx, ev.Channel, mentionFor(ev.UserID, ev.Mention))
		}
	})
	return d
}

func (e *Engine) handle(ctx context.Context, span trace.Span, userID string, eval evaluator, deliver func(context.Context, outcome)) Decision {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		e.stats.record(Ignored)
		return Ignored
	}

	unlock := e.locks.Lock(userID)
	d, err := e.commit(ctx, userID, eval, deliver)
	unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("engine.decision", d.String()))
	e.stats.record(d)
	return d
}

// commit loads the record, evaluates the event and writes the result with
// compare-and-swap. A lost race reloads and evaluates again, so the event is
// judged against the state the winner left behind. Delivery only happens
// once the write sticks.
func (e *Engine) commit(ctx context.Context, userID string, eval evaluator, deliver func(context.Context, outcome)) (Decision, error) {
	log := logger.WithUser(e.logger, userID)

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		cur, err := e.store.GetInteraction(ctx, userID)
		if err != nil {
			e.stats.storeErrors.Inc()
			logger.WithError(log, err).Error("Failed to load interaction, ignoring event")
			return Ignored, err
		}
		if cur == nil {
			return Ignored, nil
		}

		out, err := eval(cur)
		if err != nil {
			e.report(log, cur, err)
			return Ignored, err
		}
		if out.decision == Ignored {
			return Ignored, nil
		}

		if _, err := e.store.SwapInteraction(ctx, userID, cur.Version, out.next); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				e.stats.conflicts.Inc()
				log.Debug("Interaction changed concurrently, re-evaluating", "attempt", attempt)
				continue
			}
			e.stats.storeErrors.Inc()
			logger.WithError(log, err).Error("Failed to save interaction, ignoring event")
			return Ignored, err
		}

		log.Info("Interaction progressed",
			"quest_id", cur.QuestID,
			"npc", cur.NPCName,
			"step", out.step.Position,
			"steps", out.step.Total,
			"decision", out.decision.String())
		deliver(ctx, out)
		return out.decision, nil
	}

	log.Warn("Giving up after repeated write conflicts", "attempts", e.maxAttempts)
	return Ignored, fmt.Errorf("%w: gave up after %d attempts", storage.ErrConflict, e.maxAttempts)
}

// report logs and counts a lookup failure. The record is never cleared
// here; an interaction pointing at a missing quest or NPC may become valid
// again after a catalog reload.
func (e *Engine) report(log *slog.Logger, cur *state.Interaction, err error) {
	switch {
	case errors.Is(err, ErrQuestNotFound):
		e.stats.questNotFound.Inc()
	case errors.Is(err, ErrNPCNotFound):
		e.stats.npcNotFound.Inc()
	case errors.Is(err, quest.ErrNoStepsDefined):
		e.stats.noSteps.Inc()
	}
	log.Warn("Skipping event for unresolvable interaction",
		"quest_id", cur.QuestID,
		"npc", cur.NPCName,
		"error", err)
}

func (e *Engine) resolve(cur *state.Interaction) (*quest.Quest, *actor.NPC, error) {
	q, ok := e.catalog.QuestByID(cur.QuestID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrQuestNotFound, cur.QuestID)
	}
	npc, ok := e.catalog.NPCByName(cur.NPCName)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNPCNotFound, cur.NPCName)
	}
	return q, npc, nil
}

func (e *Engine) evaluateText(cur *state.Interaction, ev TextEvent, normalized string) (outcome, error) {
	q, npc, err := e.resolve(cur)
	if err != nil {
		return outcome{}, err
	}
	if cur.AwaitingReaction {
		return outcome{decision: Ignored}, nil
	}

	view, err := quest.ResolveStep(q, cur.Step())
	if err != nil {
		return outcome{}, err
	}
	if !quest.ChannelMatches(ev.Channel, view.Channel) || !quest.KeywordsMatch(normalized, view.Keywords) {
		return outcome{decision: Ignored}, nil
	}

	out := outcome{npc: npc, step: view}
	switch {
	case view.Emoji != "":
		next, err := cur.AwaitReaction(view.Emoji)
		if err != nil {
			return outcome{}, err
		}
		out.decision, out.next = RepliedAwaitingReaction, next
	case view.HasNext():
		out.decision, out.next = Advanced, cur.AdvanceTo(view.Position+1)
	default:
		out.decision = Completed
	}
	return out, nil
}

func (e *Engine) evaluateReaction(cur *state.Interaction, ev ReactionEvent) (outcome, error) {
	if !cur.AwaitingReaction {
		return outcome{decision: Ignored}, nil
	}
	q, npc, err := e.resolve(cur)
	if err != nil {
		return outcome{}, err
	}

	view, err := quest.ResolveStep(q, cur.Step())
	if err != nil {
		return outcome{}, err
	}
	expected := cur.ExpectedEmoji
	if expected == "" {
		expected = view.Emoji
	}
	if !quest.ReactionMatches(quest.ParseEmoji(ev.Emoji), expected) {
		return outcome{decision: Ignored}, nil
	}

	out := outcome{npc: npc, step: view}
	if view.HasNext() {
		out.decision, out.next = Advanced, cur.AdvanceTo(view.Position+1)
	} else {
		out.decision = Completed
	}
	return out, nil
}

func (e *Engine) deliverText(ctx context.Context, out outcome, ev TextEvent) {
	text := e.selector.Select(out.npc, out.step.QuestID, ev.UserID, out.step.Reply, mentionFor(ev.UserID, ev.Mention))
	e.sink.SendAsNPC(ctx, out.npc, ev.Channel, text)

	if out.decision == RepliedAwaitingReaction && e.hints {
		e.sink.SendSystemHint(ctx, ev.Channel, delivery.HintText(out.step.Emoji, out.npc))
	}
}

func mentionFor(userID, mention string) string {
	if m := strings.TrimSpace(mention); m != "" {
		return m
	}
	return "<@" + strings.TrimSpace(userID) + ">"
}
