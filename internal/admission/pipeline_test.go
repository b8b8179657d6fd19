package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"warmline/internal/quota"
	"warmline/internal/session"
)

func testLimits() Limits {
	return Limits{
		Cooldown:      2500 * time.Millisecond,
		MaxPerSender:  3,
		MaxGlobal:     5,
		DedupCapacity: 16,
	}
}

type fixture struct {
	pipeline *Pipeline
	sessions *session.Store
	ledger   *quota.Ledger
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		sessions: session.NewStore(10, 0),
		ledger:   quota.NewLedger(24 * time.Hour),
		now:      time.Now(),
	}
	f.pipeline = NewPipeline(f.sessions, f.ledger, testLimits(), zaptest.NewLogger(t))
	f.pipeline.SetNow(func() time.Time { return f.now })
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func ev(sender, id, text string) Event {
	return Event{Sender: sender, MessageID: id, Text: text, ReplyToken: "rt"}
}

func TestDecide_AdmitsFreshEvent(t *testing.T) {
	f := newFixture(t)
	d := f.pipeline.Decide(ev("u1", "m1", "hello"))
	assert.Equal(t, Admit, d.Outcome)
}

func TestDecide_DuplicateMessageIDDropped(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, Admit, f.pipeline.Decide(ev("u1", "m1", "hello")).Outcome)
	f.advance(10 * time.Second)

	d := f.pipeline.Decide(ev("u1", "m1", "different text"))
	assert.Equal(t, Drop, d.Outcome)
	assert.Equal(t, "duplicate message id", d.Reason)
}

func TestDecide_EmptyMessageIDSkipsDedup(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, Admit, f.pipeline.Decide(ev("u1", "", "hello")).Outcome)
	f.advance(10 * time.Second)
	assert.Equal(t, Admit, f.pipeline.Decide(ev("u1", "", "hello again")).Outcome)
}

func TestDecide_CooldownDropsRapidFire(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, Admit, f.pipeline.Decide(ev("u2", "m1", "嗨")).Outcome)

	f.advance(time.Second)
	d := f.pipeline.Decide(ev("u2", "m2", "嗨嗨"))
	assert.Equal(t, Drop, d.Outcome)
	assert.Equal(t, "cooldown", d.Reason)

	// Past the cooldown the sender is heard again.
	f.advance(3 * time.Second)
	assert.Equal(t, Admit, f.pipeline.Decide(ev("u2", "m3", "在嗎")).Outcome)
}

func TestDecide_DuplicateTextDropped(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, Admit, f.pipeline.Decide(ev("u1", "m1", "好無聊")).Outcome)
	f.advance(10 * time.Second)

	d := f.pipeline.Decide(ev("u1", "m2", "  好無聊  ")) // trims before comparing
	assert.Equal(t, Drop, d.Outcome)
	assert.Equal(t, "duplicate text", d.Reason)
}

func TestDecide_CooldownMarkerRecordedEvenWhenTextDuplicated(t *testing.T) {
	// The duplicate-text drop still stamps lastEventAt: the marker reflects
	// the latest attempt, so an immediate retry hits cooldown, not dup-text.
	f := newFixture(t)

	require.Equal(t, Admit, f.pipeline.Decide(ev("u1", "m1", "好無聊")).Outcome)
	f.advance(10 * time.Second)
	require.Equal(t, Drop, f.pipeline.Decide(ev("u1", "m2", "好無聊")).Outcome)

	f.advance(time.Second)
	d := f.pipeline.Decide(ev("u1", "m3", "新的話"))
	assert.Equal(t, Drop, d.Outcome)
	assert.Equal(t, "cooldown", d.Reason)
}

func TestDecide_SenderQuotaShortCircuits(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < testLimits().MaxPerSender; i++ {
		f.ledger.Inc("u1")
	}

	d := f.pipeline.Decide(ev("u1", "m1", "在嗎"))
	assert.Equal(t, ShortCircuit, d.Outcome)
	assert.Equal(t, MsgSenderQuota, d.Reply)
	// The rejection itself never increments.
	assert.Equal(t, testLimits().MaxPerSender, f.ledger.SenderCount("u1"))
}

func TestDecide_GlobalQuotaShortCircuits(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < testLimits().MaxGlobal; i++ {
		f.ledger.Inc("crowd")
	}

	d := f.pipeline.Decide(ev("u1", "m1", "在嗎"))
	// u1 is under the per-sender cap but the system is out of budget.
	assert.Equal(t, ShortCircuit, d.Outcome)
	assert.Equal(t, MsgGlobalQuota, d.Reply)
	assert.Equal(t, testLimits().MaxGlobal, f.ledger.GlobalCount())
}

func TestDecide_DailyResetWipesAdmissionState(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, Admit, f.pipeline.Decide(ev("u1", "m1", "昨天的話")).Outcome)
	for i := 0; i < testLimits().MaxPerSender; i++ {
		f.ledger.Inc("u1")
	}
	f.sessions.SetMode("u1", session.ModeLight)
	f.sessions.AppendExchange("u1", "昨天的話", "好喔")

	// Crossing the 24h boundary wipes counters, dedup set, and markers: the
	// same message id and identical text are both admitted again.
	f.advance(25 * time.Hour)
	d := f.pipeline.Decide(ev("u1", "m1", "昨天的話"))
	assert.Equal(t, Admit, d.Outcome)
	assert.Equal(t, 0, f.ledger.SenderCount("u1"))

	// History and mode are not part of the daily wipe.
	history, mode := f.sessions.Snapshot("u1")
	assert.Len(t, history, 2)
	assert.Equal(t, session.ModeLight, mode)
}
