package main

import (
	"log"

	"github.com/gocql/gocql"
)

func main() {
	cluster := gocql.NewCluster("localhost:9042")
	cluster.Keyspace = "chat"
	cluster.Consistency = gocql.Quorum
	session, err := cluster.CreateSession()
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	for _, table := range []string{"messages", "chat_counters", "message_dedup", "chats"} {
		log.Printf("Dropping table %s...", table)
		if err := session.Query("DROP TABLE IF EXISTS " + table).Exec(); err != nil {
			log.Fatalf("Failed to drop table %s: %v", table, err)
		}
	}
	log.Println("Tables dropped successfully.")
}
