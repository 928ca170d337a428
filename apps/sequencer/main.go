package main

import (
	"context"
	"os"
	"strings"

	"github.com/mahaj/chat-relay/pkg/bus"
	"github.com/mahaj/chat-relay/pkg/logger"
	"github.com/mahaj/chat-relay/pkg/sequencer"
	"github.com/mahaj/chat-relay/pkg/store"
)

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
	keyspace := "chat"

	// Note: In production, schema creation should be handled by migration
	// tools. For now the sequencer bootstraps it on startup.
	if err := store.EnsureKeyspace(scyllaHosts, keyspace); err != nil {
		logger.Fatalf("Failed to create keyspace: %v", err)
	}

	st, err := store.NewSession(scyllaHosts, keyspace)
	if err != nil {
		logger.Fatalf("Failed to connect to ScyllaDB chat keyspace: %v", err)
	}
	defer st.Close()

	if err := st.EnsureSchema(); err != nil {
		logger.Fatalf("Failed to create schema: %v", err)
	}

	var b bus.Bus
	if os.Getenv("BUS") == "kafka" {
		brokersStr := os.Getenv("KAFKA_BROKERS")
		if brokersStr == "" {
			brokersStr = "localhost:19092"
		}
		b = bus.NewKafkaBus(strings.Split(brokersStr, ","))
	} else {
		b = bus.NewRedisBus(redisAddr)
	}

	logger.Infof("Sequencer starting, consuming ingestion channel...")
	if err := sequencer.New(st, b).Run(context.Background()); err != nil {
		logger.Fatalf("Ingestion subscription ended: %v", err)
	}
}
