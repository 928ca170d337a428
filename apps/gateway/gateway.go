package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mahaj/chat-relay/pkg/logger"
	"github.com/mahaj/chat-relay/pkg/registry"
	"github.com/mahaj/chat-relay/pkg/snowflake"
)

const presenceKey = "presence:users"

// Gateway owns the session registry for this process and mirrors connected
// users into a Redis presence set consumed by the api service.
type Gateway struct {
	sessions *registry.Registry
	redis    *redis.Client
	ids      *snowflake.Node
}

func NewGateway(redisAddr string, node int64) (*Gateway, error) {
	ids, err := snowflake.NewNode(node)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		sessions: registry.New(),
		redis:    redis.NewClient(&redis.Options{Addr: redisAddr}),
		ids:      ids,
	}, nil
}

// admit transitions the session to Open and registers it for fanout.
func (g *Gateway) admit(s *Session) {
	s.mu.Lock()
	s.state = stateOpen
	s.mu.Unlock()

	g.sessions.Add(s)

	if err := g.redis.SAdd(context.Background(), presenceKey, s.userID).Err(); err != nil {
		logger.Error("gateway: presence add failed",
			zap.String("userId", s.userID), zap.Error(err))
	}
	logger.Info("gateway: session opened",
		zap.String("userId", s.userID), zap.Int64("connId", s.connID))
}

// drop removes the session on teardown. In-flight fanout sends race the
// removal and are allowed to fail.
func (g *Gateway) drop(s *Session) {
	s.close()
	g.sessions.Remove(s)

	if len(g.sessions.SessionsFor(s.userID)) == 0 {
		if err := g.redis.SRem(context.Background(), presenceKey, s.userID).Err(); err != nil {
			logger.Error("gateway: presence remove failed",
				zap.String("userId", s.userID), zap.Error(err))
		}
	}
	logger.Info("gateway: session closed",
		zap.String("userId", s.userID), zap.Int64("connId", s.connID))
}
