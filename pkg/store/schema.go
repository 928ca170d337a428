package store

import "github.com/gocql/gocql"

// Schema statements, applied by the sequencer on startup and by
// scripts/create_schema. In production this belongs to a migration tool.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		chat_id text,
		seq bigint,
		id text,
		sender_id text,
		text text,
		created_at timestamp,
		client_id text,
		temp_id text,
		PRIMARY KEY (chat_id, seq)
	) WITH CLUSTERING ORDER BY (seq ASC)`,

	`CREATE TABLE IF NOT EXISTS chat_counters (
		chat_id text PRIMARY KEY,
		seq bigint
	)`,

	`CREATE TABLE IF NOT EXISTS message_dedup (
		chat_id text,
		client_id text,
		temp_id text,
		message_id text,
		seq bigint,
		PRIMARY KEY ((chat_id), client_id, temp_id)
	)`,

	`CREATE TABLE IF NOT EXISTS chats (
		chat_id text PRIMARY KEY,
		chat_type text,
		member_ids set<text>
	)`,
}

// EnsureKeyspace creates the keyspace through a session bound to the system
// keyspace.
func EnsureKeyspace(hosts []string, keyspace string) error {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = "system"
	session, err := cluster.CreateSession()
	if err != nil {
		return err
	}
	defer session.Close()

	return session.Query(`CREATE KEYSPACE IF NOT EXISTS ` + keyspace +
		` WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
}

// EnsureSchema creates the relay tables if absent.
func (s *Store) EnsureSchema() error {
	for _, stmt := range schemaStatements {
		if err := s.session.Query(stmt).Exec(); err != nil {
			return err
		}
	}
	return nil
}
