package main

import (
	"log"

	"github.com/mahaj/chat-relay/pkg/store"
)

func main() {
	scyllaHosts := []string{"localhost:9042"}
	keyspace := "chat"

	if err := store.EnsureKeyspace(scyllaHosts, keyspace); err != nil {
		log.Fatalf("Failed to create keyspace: %v", err)
	}

	session, err := store.NewSession(scyllaHosts, keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer session.Close()

	if err := session.EnsureSchema(); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}

	log.Println("Schema created successfully")
}
