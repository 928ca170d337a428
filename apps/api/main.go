package main

import (
	"net/http"
	"os"
	"strings"

	"github.com/mahaj/chat-relay/pkg/logger"
	"github.com/mahaj/chat-relay/pkg/store"
)

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // Allow all for dev, or specific origin
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	scyllaHostsStr := os.Getenv("SCYLLA_HOSTS")
	if scyllaHostsStr == "" {
		scyllaHostsStr = "localhost:9042"
	}
	scyllaHosts := strings.Split(scyllaHostsStr, ",")

	session, err := store.NewSession(scyllaHosts, "chat")
	if err != nil {
		logger.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer session.Close()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	// Public endpoint
	http.Handle("/login", CORSMiddleware(http.HandlerFunc(LoginHandler)))

	// Protected endpoints
	http.Handle("/history", CORSMiddleware(AuthMiddleware(NewHistoryHandler(session))))
	http.Handle("/presence", CORSMiddleware(AuthMiddleware(NewPresenceHandler(redisAddr))))

	logger.Infof("API Service Starting on :8081...")
	if err := http.ListenAndServe(":8081", nil); err != nil {
		logger.Fatalf("%v", err)
	}
}
