package main

import (
	"net/http"
	"os"
	"strings"

	"github.com/mahaj/chat-relay/pkg/bus"
	"github.com/mahaj/chat-relay/pkg/logger"
)

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func main() {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
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

	http.Handle("/messages/send", CORSMiddleware(AuthMiddleware(NewSendHandler(b))))
	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/ready", healthHandler)

	logger.Infof("Ingestion Service Starting on :8082...")
	if err := http.ListenAndServe(":8082", nil); err != nil {
		logger.Fatalf("%v", err)
	}
}
