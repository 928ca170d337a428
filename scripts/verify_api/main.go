package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
)

type LoginResponse struct {
	Token string `json:"token"`
}

func main() {
	apiAddr := "http://localhost:8081"
	ingestAddr := "http://localhost:8082"

	// 1. Login
	reqBody, _ := json.Marshal(map[string]string{"user_id": "test_user"})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Token: %s...\n", loginResp.Token[:10])

	// 2. Submit a message
	sendBody, _ := json.Marshal(map[string]string{
		"chatId": "smoke-test", "text": "hello from verify_api",
	})
	req, _ := http.NewRequest("POST", ingestAddr+"/messages/send", bytes.NewBuffer(sendBody))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Authorization", "Bearer "+loginResp.Token)

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal("Send request failed:", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	log.Printf("Send: %s", string(body))

	// 3. Get history for the chat
	log.Println("Fetching history for smoke-test...")
	req, _ = http.NewRequest("GET", apiAddr+"/history?chat_id=smoke-test&limit=10", nil)
	req.Header.Add("Authorization", "Bearer "+loginResp.Token)

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal("History request failed:", err)
	}
	defer resp.Body.Close()

	body, _ = io.ReadAll(resp.Body)
	log.Printf("History: %s", string(body))
}
