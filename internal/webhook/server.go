package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/kris-hamade/project-b-r0/internal/bot"
	"github.com/kris-hamade/project-b-r0/internal/storage"
	"go.uber.org/zap"
)

const maxPayloadBytes = 1 << 20

// Messenger is the outbound surface for fanned-out webhook reports.
type Messenger interface {
	SendMessage(channelID, content string) error
}

// Reporter summarizes payloads from origins without a dedicated formatter.
type Reporter interface {
	GenerateWebhookReport(ctx context.Context, payload string) string
}

// Server receives webhook payloads and fans the rendered report out to the
// channels subscribed to the payload's origin.
type Server struct {
	store     storage.WebhookStore
	messenger Messenger
	reporter  Reporter
	logger    *zap.Logger
	srv       *http.Server
}

func NewServer(port int, store storage.WebhookStore, messenger Messenger, reporter Reporter, logger *zap.Logger) *Server {
	s := &Server{
		store:     store,
		messenger: messenger,
		reporter:  reporter,
		logger:    logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Webhook server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type inboundPayload struct {
	Origin  string          `json:"origin"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var payload inboundPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Origin == "" {
		http.Error(w, "payload must be JSON with an origin field", http.StatusBadRequest)
		return
	}

	subs, err := s.store.WebhookSubsByOrigin(r.Context(), payload.Origin)
	if err != nil {
		s.logger.Error("Failed to look up webhook subscriptions",
			zap.Error(err),
			zap.String("origin", payload.Origin))
		http.Error(w, "subscription lookup failed", http.StatusInternalServerError)
		return
	}
	if len(subs) == 0 {
		s.logger.Info("Webhook with no subscribers", zap.String("origin", payload.Origin))
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintln(w, "no subscribers for origin")
		return
	}

	report := s.render(r.Context(), payload, body)
	for _, sub := range subs {
		for _, chunk := range bot.SplitIntoChunks(report, bot.MaxMessageLength) {
			if err := s.messenger.SendMessage(sub.ChannelID, chunk); err != nil {
				s.logger.Error("Failed to deliver webhook report",
					zap.Error(err),
					zap.String("origin", payload.Origin),
					zap.String("channel_id", sub.ChannelID))
				break
			}
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// render picks the report text. Known origins with a pre-formatted message
// pass through; everything else gets summarized.
func (s *Server) render(ctx context.Context, payload inboundPayload, raw []byte) string {
	if strings.EqualFold(payload.Origin, "overseer") && payload.Message != "" {
		return payload.Message
	}
	if payload.Message != "" && len(payload.Data) == 0 {
		return fmt.Sprintf("**%s**: %s", payload.Origin, payload.Message)
	}
	return s.reporter.GenerateWebhookReport(ctx, string(raw))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"status":"ok"}`)
}
