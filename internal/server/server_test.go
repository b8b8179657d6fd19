package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"warmline/internal/admission"
	"warmline/internal/quota"
	"warmline/internal/relay"
	"warmline/internal/session"
	"warmline/internal/shape"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testSecret = "channel-secret"

type stubGenerator struct {
	mu    sync.Mutex
	calls int
}

func (g *stubGenerator) Generate(_ context.Context, _ string, _ []session.Turn, _ int32) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return "嗯嗯，我在。", nil
}

func (g *stubGenerator) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type stubDeliverer struct {
	mu   sync.Mutex
	sent []string
}

func (d *stubDeliverer) Deliver(_ context.Context, _, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, text)
	return nil
}

func (d *stubDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func newTestServer(t *testing.T) (*Server, *stubGenerator, *stubDeliverer) {
	log := zaptest.NewLogger(t)
	sessions := session.NewStore(10, 0)
	ledger := quota.NewLedger(24 * time.Hour)
	pipeline := admission.NewPipeline(sessions, ledger, admission.Limits{
		Cooldown:      time.Millisecond, // effectively off for handler tests
		MaxPerSender:  100,
		MaxGlobal:     100,
		DedupCapacity: 16,
	}, log)
	gen := &stubGenerator{}
	del := &stubDeliverer{}
	orch := relay.New(pipeline, sessions, ledger, shape.NewTermList(),
		shape.DefaultBudgetPolicy(), gen, del, log)
	return New(":0", testSecret, orch, time.Second, log), gen, del
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postCallback(t *testing.T, s *Server, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Line-Signature", signature)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func webhookBody(events ...string) string {
	return `{"destination":"U0","events":[` + strings.Join(events, ",") + `]}`
}

func textEvent(id, userID, text string) string {
	return `{"type":"message","timestamp":1718000000000,"replyToken":"rt-` + id +
		`","source":{"type":"user","userId":"` + userID +
		`"},"message":{"id":"` + id + `","type":"text","text":"` + text + `"}}`
}

func TestCallback_RejectsBadSignature(t *testing.T) {
	s, gen, del := newTestServer(t)
	body := webhookBody(textEvent("m1", "u1", "hi"))

	rec := postCallback(t, s, body, "bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, gen.count(), "no core logic may run unauthenticated")
	assert.Equal(t, 0, del.count())

	rec = postCallback(t, s, body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallback_RejectsBadJSON(t *testing.T) {
	s, gen, _ := newTestServer(t)
	body := `{"events":`

	rec := postCallback(t, s, body, sign(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, gen.count())
}

func TestCallback_ProcessesBatchSequentially(t *testing.T) {
	s, gen, del := newTestServer(t)
	body := webhookBody(
		textEvent("m1", "u1", "今天好累"),
		textEvent("m2", "u2", "在嗎"),
	)

	rec := postCallback(t, s, body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, gen.count())
	assert.Equal(t, 2, del.count())
}

func TestCallback_SkipsNonTextAndMalformedEvents(t *testing.T) {
	s, gen, del := newTestServer(t)
	sticker := `{"type":"message","replyToken":"rt-s","source":{"type":"user","userId":"u1"},"message":{"id":"ms","type":"sticker"}}`
	follow := `{"type":"follow","source":{"type":"user","userId":"u1"}}`
	noToken := `{"type":"message","replyToken":"","source":{"type":"user","userId":"u3"},"message":{"id":"m9","type":"text","text":"hi"}}`
	noSender := `{"type":"message","replyToken":"rt-x","source":{"type":"user","userId":""},"message":{"id":"m8","type":"text","text":"hi"}}`
	body := webhookBody(sticker, follow, noToken, noSender, textEvent("m1", "u1", "嗨嗨"))

	rec := postCallback(t, s, body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, gen.count())
	assert.Equal(t, 1, del.count())
}

func TestCallback_GetReturnsOK(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/callback", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCallback_MethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/callback", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RunShutsDownOnCancel(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Give the listener a beat, then pull the plug.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
