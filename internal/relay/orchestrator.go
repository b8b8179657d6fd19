// Package relay orchestrates one admitted event end to end: admission verdict,
// mode commands, prompt assembly, the generation call, reply shaping, history
// bookkeeping, quota accounting, and delivery.
//
// The generation and delivery collaborators are the only slow calls; both run
// with no state lock held. Delivery is fire-and-forget with respect to state:
// a failed send is logged but never rolls back counters or history.
package relay

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"warmline/internal/admission"
	"warmline/internal/quota"
	"warmline/internal/session"
	"warmline/internal/shape"
)

// fallbackReply substitutes for a failed or empty generation. It skips the
// scrub and shape steps; a fixed string needs neither.
const fallbackReply = "再說一次嘛，我在聽。"

// maxOutputTokensHint is handed to the generator. Deliberately generous
// relative to the character budget so the model finishes its sentence; final
// length enforcement is the shaper's job, not the model's.
const maxOutputTokensHint = 300

// Generator produces raw reply text from a system instruction and an ordered
// list of turns. Implementations may fail or return empty output; the
// orchestrator substitutes the fallback line either way.
type Generator interface {
	Generate(ctx context.Context, system string, turns []session.Turn, maxOutputTokens int32) (string, error)
}

// Deliverer sends the final text back to the sender via an opaque routing
// token.
type Deliverer interface {
	Deliver(ctx context.Context, replyToken, text string) error
}

// Orchestrator runs the full pipeline for inbound events.
type Orchestrator struct {
	pipeline  *admission.Pipeline
	sessions  *session.Store
	ledger    *quota.Ledger
	terms     *shape.TermList
	budgets   shape.BudgetPolicy
	generator Generator
	deliverer Deliverer
	log       *zap.Logger
}

// New wires an orchestrator.
func New(
	pipeline *admission.Pipeline,
	sessions *session.Store,
	ledger *quota.Ledger,
	terms *shape.TermList,
	budgets shape.BudgetPolicy,
	generator Generator,
	deliverer Deliverer,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		pipeline:  pipeline,
		sessions:  sessions,
		ledger:    ledger,
		terms:     terms,
		budgets:   budgets,
		generator: generator,
		deliverer: deliverer,
		log:       log,
	}
}

// Handle processes one inbound event. Errors are absorbed here: a failure on
// one event must never abort its siblings in the same webhook delivery.
func (o *Orchestrator) Handle(ctx context.Context, ev admission.Event) {
	log := o.log.With(zap.String("sender", ev.Sender))

	decision := o.pipeline.Decide(ev)
	switch decision.Outcome {
	case admission.Drop:
		log.Debug("event dropped", zap.String("reason", decision.Reason))
		return
	case admission.ShortCircuit:
		log.Info("event short-circuited", zap.String("reason", decision.Reason))
		o.deliver(ctx, log, ev.ReplyToken, decision.Reply)
		return
	}

	text := strings.TrimSpace(ev.Text)

	// Mode commands bypass generation and history entirely.
	if mode, ok := matchModeCommand(text); ok {
		o.sessions.SetMode(ev.Sender, mode)
		log.Info("mode switched", zap.String("mode", string(mode)))
		o.deliver(ctx, log, ev.ReplyToken, modeConfirmations[mode])
		return
	}

	budget := o.budgets.BudgetFor(text)
	history, mode := o.sessions.Snapshot(ev.Sender)
	turns := append(history, session.Turn{Role: session.RoleUser, Text: text})

	start := time.Now()
	raw, err := o.generator.Generate(ctx, systemPrompt(mode, budget), turns, maxOutputTokensHint)
	raw = strings.TrimSpace(raw)

	var reply string
	if err != nil || raw == "" {
		if err != nil {
			log.Warn("generation failed", zap.Error(err))
		} else {
			log.Warn("generation returned empty output")
		}
		reply = fallbackReply
	} else {
		reply = shape.Shape(o.terms.Scrub(raw), budget)
		if reply == "" {
			// Scrubbing can eat the whole reply when the model leads with a
			// blocked term.
			reply = fallbackReply
		}
	}

	o.sessions.AppendExchange(ev.Sender, text, reply)
	o.ledger.Inc(ev.Sender)

	log.Info("reply ready",
		zap.Int("budget", budget),
		zap.Int("raw_runes", len([]rune(raw))),
		zap.Int("reply_runes", len([]rune(reply))),
		zap.Duration("generation", time.Since(start)),
	)
	o.deliver(ctx, log, ev.ReplyToken, reply)
}

// deliver hands text to the delivery collaborator. Best effort, at most once.
func (o *Orchestrator) deliver(ctx context.Context, log *zap.Logger, replyToken, text string) {
	if err := o.deliverer.Deliver(ctx, replyToken, text); err != nil {
		log.Warn("delivery failed", zap.Error(err))
	}
}
