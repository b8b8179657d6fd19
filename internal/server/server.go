// Package server is the HTTP boundary: it verifies webhook signatures, parses
// deliveries, and feeds text-message events to the relay one at a time.
//
// The webhook contract with LINE is deliberately forgiving: once a delivery is
// authenticated, the handler answers 200 regardless of what happens to the
// individual events. Event failures are isolated and logged, never surfaced.
package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"warmline/internal/admission"
	"warmline/internal/line"
	"warmline/internal/relay"
)

// maxBodyBytes bounds webhook bodies. LINE batches at most a handful of
// events per delivery; anything near this size is not LINE.
const maxBodyBytes = 1 << 20

// Server hosts the webhook endpoint.
type Server struct {
	channelSecret   string
	orchestrator    *relay.Orchestrator
	log             *zap.Logger
	httpServer      *http.Server
	shutdownTimeout time.Duration
}

// New creates the server.
func New(addr, channelSecret string, orchestrator *relay.Orchestrator, shutdownTimeout time.Duration, log *zap.Logger) *Server {
	s := &Server{
		channelSecret:   channelSecret,
		orchestrator:    orchestrator,
		log:             log,
		shutdownTimeout: shutdownTimeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then drains with the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		s.log.Info("shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	// A GET on the callback URL is how operators eyeball a fresh deploy.
	if r.Method == http.MethodGet {
		s.handleHealth(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	log := s.log.With(zap.String("request_id", uuid.NewString()))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Warn("failed to read body", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// No core logic runs for an unauthenticated request; no state is touched.
	if !line.ValidateSignature(s.channelSecret, body, r.Header.Get("X-Line-Signature")) {
		log.Warn("invalid signature")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	webhook, err := line.ParseWebhook(body)
	if err != nil {
		log.Warn("bad webhook body", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Events are processed sequentially within one delivery; concurrent
	// deliveries are each their own request.
	for _, ev := range webhook.Events {
		if !ev.IsTextMessage() {
			continue
		}
		if ev.Source == nil || ev.Source.UserID == "" || ev.ReplyToken == "" || ev.Message.Text == "" {
			// Malformed events are dropped silently; no counters touched.
			continue
		}
		s.orchestrator.Handle(r.Context(), admission.Event{
			Sender:     ev.Source.UserID,
			MessageID:  ev.Message.ID,
			Text:       ev.Message.Text,
			ReplyToken: ev.ReplyToken,
			Timestamp:  ev.When(),
		})
	}

	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}
