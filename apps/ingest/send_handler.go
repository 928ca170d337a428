package main

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/mahaj/chat-relay/pkg/auth"
	"github.com/mahaj/chat-relay/pkg/bus"
	"github.com/mahaj/chat-relay/pkg/logger"
	"github.com/mahaj/chat-relay/pkg/model"
)

// Submission limits enforced at the boundary; nothing past this handler
// re-validates.
const (
	maxChatIDLen = 128
	maxTextLen   = 4000
	maxKeyLen    = 64
)

type SendRequest struct {
	ChatID   string `json:"chatId"`
	Text     string `json:"text"`
	ClientID string `json:"clientId,omitempty"`
	TempID   string `json:"tempId,omitempty"`
}

func (r SendRequest) validate() string {
	switch {
	case r.ChatID == "" || len(r.ChatID) > maxChatIDLen:
		return "chatId must be 1-128 characters"
	case r.Text == "" || len(r.Text) > maxTextLen:
		return "text must be 1-4000 characters"
	case len(r.ClientID) > maxKeyLen || len(r.TempID) > maxKeyLen:
		return "clientId and tempId must be at most 64 characters"
	default:
		return ""
	}
}

type SendHandler struct {
	bus bus.Bus
}

func NewSendHandler(b bus.Bus) *SendHandler {
	return &SendHandler{bus: b}
}

// ServeHTTP validates the submission and publishes it on the ingestion
// channel. Success means published, not persisted or delivered: ingestion is
// fire-and-forget past this point.
func (h *SendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, ok := r.Context().Value(auth.UserKey).(*auth.Claims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	event := model.SubmissionEvent{
		ChatID:   req.ChatID,
		Text:     req.Text,
		SenderID: claims.UserID,
		ClientID: req.ClientID,
		TempID:   req.TempID,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	logger.Debug("ingest: publish",
		zap.String("chatId", event.ChatID), zap.String("senderId", event.SenderID))

	if err := h.bus.Publish(r.Context(), bus.ChannelIngestion, payload); err != nil {
		logger.Error("ingest: publish failed", zap.Error(err))
		http.Error(w, "Channel unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"ok":true}`))
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ValidateToken(auth.BearerToken(tokenString))
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), auth.UserKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
