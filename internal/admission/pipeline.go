// Package admission decides, for each inbound event, whether it proceeds to
// generation, is answered with a fixed canned line, or is dropped silently.
//
// The checks run in a fixed order and short-circuit on the first hit:
// message-ID dedup, per-sender cooldown, duplicate-text suppression, per-sender
// quota, global quota. Cooldown and last-text markers are recorded eagerly so
// they reflect the latest attempt even when a later check rejects the event.
package admission

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"warmline/internal/quota"
	"warmline/internal/session"
)

// Fixed replies for the only two rejection paths that speak. Cooldown and
// dedup rejections stay silent.
const (
	MsgSenderQuota = "今天聊得夠多了，明天再來找我吧。"
	MsgGlobalQuota = "我現在有點累，先休息一下，晚點再聊。"
)

// Event is an inbound text message after boundary parsing. MessageID may be
// empty, in which case the dedup check is skipped for this event.
type Event struct {
	Sender     string
	MessageID  string
	Text       string
	ReplyToken string
	Timestamp  time.Time
}

// Outcome is the admission verdict.
type Outcome int

const (
	Admit Outcome = iota
	ShortCircuit
	Drop
)

// Decision carries the verdict, the canned reply for ShortCircuit, and a
// reason tag for logs.
type Decision struct {
	Outcome Outcome
	Reply   string
	Reason  string
}

// Limits configures the pipeline.
type Limits struct {
	Cooldown      time.Duration
	MaxPerSender  int
	MaxGlobal     int
	DedupCapacity int
}

// Pipeline owns the per-day admission state: the dedup set plus references to
// the session store and quota ledger. One lock guards the dedup set; the
// store and ledger carry their own.
type Pipeline struct {
	mu       sync.Mutex
	seen     *dedupSet
	sessions *session.Store
	ledger   *quota.Ledger
	limits   Limits
	log      *zap.Logger

	// now is swapped out in tests.
	now func() time.Time
}

// NewPipeline wires the admission state together.
func NewPipeline(sessions *session.Store, ledger *quota.Ledger, limits Limits, log *zap.Logger) *Pipeline {
	return &Pipeline{
		seen:     newDedupSet(limits.DedupCapacity),
		sessions: sessions,
		ledger:   ledger,
		limits:   limits,
		log:      log,
		now:      time.Now,
	}
}

// Decide runs the admission checks for one event.
func (p *Pipeline) Decide(ev Event) Decision {
	now := p.now()

	// Lazy daily reset. A stale ledger wipes counters, the dedup set, and the
	// per-session admission markers together; history and mode survive.
	if p.ledger.ResetIfStale(now) {
		p.mu.Lock()
		p.seen.Reset()
		p.mu.Unlock()
		p.sessions.ResetMarkers(now)
		p.log.Info("daily reset", zap.Time("at", now))
	}

	if ev.MessageID != "" {
		p.mu.Lock()
		fresh := p.seen.Add(ev.MessageID)
		p.mu.Unlock()
		if !fresh {
			return Decision{Outcome: Drop, Reason: "duplicate message id"}
		}
	}

	text := strings.TrimSpace(ev.Text)
	var rejected string
	p.sessions.With(ev.Sender, func(s *session.Session) {
		if !s.LastEventAt.IsZero() && now.Sub(s.LastEventAt) < p.limits.Cooldown {
			rejected = "cooldown"
			return
		}
		s.LastEventAt = now
		if text == s.LastText {
			rejected = "duplicate text"
			return
		}
		s.LastText = text
	})
	if rejected != "" {
		return Decision{Outcome: Drop, Reason: rejected}
	}

	if p.ledger.SenderCount(ev.Sender) >= p.limits.MaxPerSender {
		return Decision{Outcome: ShortCircuit, Reply: MsgSenderQuota, Reason: "sender quota"}
	}
	if p.ledger.GlobalCount() >= p.limits.MaxGlobal {
		return Decision{Outcome: ShortCircuit, Reply: MsgGlobalQuota, Reason: "global quota"}
	}
	return Decision{Outcome: Admit}
}

// SetNow overrides the clock. Test hook.
func (p *Pipeline) SetNow(now func() time.Time) { p.now = now }
