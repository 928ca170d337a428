package main

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/mahaj/chat-relay/pkg/bus"
	"github.com/mahaj/chat-relay/pkg/fanout"
	"github.com/mahaj/chat-relay/pkg/logger"
	"github.com/mahaj/chat-relay/pkg/membership"
	"github.com/mahaj/chat-relay/pkg/store"
)

func newBus(redisAddr string) bus.Bus {
	if os.Getenv("BUS") == "kafka" {
		brokersStr := os.Getenv("KAFKA_BROKERS")
		if brokersStr == "" {
			brokersStr = "localhost:19092"
		}
		return bus.NewKafkaBus(strings.Split(brokersStr, ","))
	}
	return bus.NewRedisBus(redisAddr)
}

func main() {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	scyllaHostsStr := os.Getenv("SCYLLA_HOSTS")
	if scyllaHostsStr == "" {
		scyllaHostsStr = "localhost:9042"
	}
	scyllaHosts := strings.Split(scyllaHostsStr, ",")

	gw, err := NewGateway(redisAddr, 1)
	if err != nil {
		logger.Fatalf("Failed to initialize gateway: %v", err)
	}

	st, err := store.NewSession(scyllaHosts, "chat")
	if err != nil {
		logger.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer st.Close()

	resolver := membership.NewResolver(st, gw.sessions)
	dispatcher := fanout.NewDispatcher(newBus(redisAddr), resolver, gw.sessions)

	go func() {
		if err := dispatcher.Run(context.Background()); err != nil {
			logger.Fatalf("Delivery subscription ended: %v", err)
		}
	}()

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(gw, w, r)
	})
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	logger.Infof("Gateway Service Starting on :8080...")
	if err := http.ListenAndServe(":8080", nil); err != nil {
		logger.Fatalf("%v", err)
	}
}
