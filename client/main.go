package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mahaj/chat-relay/pkg/model"
	"github.com/mahaj/chat-relay/pkg/reconcile"
)

type LoginResponse struct {
	Token string `json:"token"`
}

func login(apiAddr, userID string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"user_id": userID})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", string(body))
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", err
	}

	return loginResp.Token, nil
}

// httpHistory reads persisted history over the api service; the reconciler
// uses it to backfill sequence gaps.
type httpHistory struct {
	apiAddr string
	token   string
}

func (h *httpHistory) Range(ctx context.Context, chatID string, from, to int64, limit int) ([]model.Message, error) {
	q := url.Values{}
	q.Set("chat_id", chatID)
	if from > 0 {
		q.Set("from", fmt.Sprint(from))
	}
	if to > 0 {
		q.Set("to", fmt.Sprint(to))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", h.apiAddr+"/history?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Authorization", "Bearer "+h.token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("history read failed: %s", string(body))
	}

	var messages []model.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func send(ingestAddr, token, chatID, text, clientID string) error {
	tempID := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
	reqBody, _ := json.Marshal(map[string]string{
		"chatId":   chatID,
		"text":     text,
		"clientId": clientID,
		"tempId":   tempID,
	})

	req, err := http.NewRequest("POST", ingestAddr+"/messages/send", bytes.NewBuffer(reqBody))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("send failed: %s", string(body))
	}
	return nil
}

func main() {
	gatewayAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	ingestAddr := flag.String("ingest", "http://localhost:8082", "ingestion service address")
	userID := flag.String("user", "user1", "user id")
	chatID := flag.String("chat", "global", "chat id")
	flag.Parse()

	// Stable per-process client id so resubmissions deduplicate.
	clientID := uuid.NewString()

	// 1. Login to get token
	log.Printf("Logging in as %s...", *userID)
	token, err := login(*apiAddr, *userID)
	if err != nil {
		log.Fatal("Login failed:", err)
	}
	log.Printf("Login successful. Token: %s...", token[:10])

	// 2. Seed the local view from history
	view := reconcile.NewView(&httpHistory{apiAddr: *apiAddr, token: token})
	if err := view.Load(context.Background(), *chatID, 50); err != nil {
		log.Printf("Initial history load failed: %v", err)
	}
	for _, m := range view.Messages(*chatID) {
		fmt.Printf("%s: %s\n", m.SenderID, m.Text)
	}

	// 3. Connect to the gateway with the token
	u := url.URL{Scheme: "ws", Host: *gatewayAddr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// 4. Read deliveries, reconciling gaps against history
	go func() {
		defer close(done)
		for {
			_, payload, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}

			var msg model.Message
			if err := json.Unmarshal(payload, &msg); err != nil {
				log.Printf("Received raw: %s", payload)
				continue
			}

			before := view.LastSeen(msg.ChatID)
			view.Apply(context.Background(), msg)

			if msg.ChatID != *chatID {
				continue
			}
			if before > 0 && msg.Seq > before+1 {
				// A gap was backfilled; reprint the merged tail.
				fmt.Print("\r--- backfilled ---\n")
				for _, m := range view.Messages(*chatID) {
					if m.Seq > before {
						fmt.Printf("%s: %s\n", m.SenderID, m.Text)
					}
				}
				fmt.Print("> ")
			} else {
				fmt.Printf("\r%s: %s\n> ", msg.SenderID, msg.Text)
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	// 5. Read from stdin and submit messages
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := scanner.Text()
			if text == "" {
				fmt.Print("> ")
				continue
			}

			if text == "/quit" {
				close(interrupt)
				break
			}

			if err := send(*ingestAddr, token, *chatID, text, clientID); err != nil {
				log.Println("send:", err)
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("interrupt")

			// Cleanly close the connection by sending a close message and then
			// waiting (with timeout) for the server to close the connection.
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("write close:", err)
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
