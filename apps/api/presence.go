package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mahaj/chat-relay/pkg/logger"
)

const presenceKey = "presence:users"

type PresenceHandler struct {
	redis *redis.Client
}

func NewPresenceHandler(redisAddr string) *PresenceHandler {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	return &PresenceHandler{redis: rdb}
}

// ServeHTTP lists the users currently connected to any gateway, from the
// presence set the gateways maintain.
func (h *PresenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	users, err := h.redis.SMembers(context.Background(), presenceKey).Result()
	if err != nil {
		logger.Error("api: presence read failed", zap.Error(err))
		http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}
