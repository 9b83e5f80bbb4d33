// cmd/provider-stub/main.go
package main

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Local stand-in for the messaging provider. Accepts sends, rate-limits
// them with a token bucket, and posts sent/delivered/read callbacks back
// to the server after short delays so the reconciler has something real
// to chew on. Numbers listed in UNREACHABLE_NUMBERS always fail with the
// permanent recipient-failure code.
type sendRequest struct {
	To       string   `json:"to"`
	Template string   `json:"template"`
	Params   []string `json:"params"`
}

type statusCallback struct {
	MessageID string    `json:"message_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type webhookBatch struct {
	Statuses []statusCallback `json:"statuses"`
}

func main() {
	callbackURL := os.Getenv("CALLBACK_URL")
	if callbackURL == "" {
		callbackURL = "http://localhost:8080/webhooks/provider"
	}
	webhookToken := os.Getenv("WEBHOOK_TOKEN")

	unreachable := map[string]bool{}
	for _, num := range strings.Split(os.Getenv("UNREACHABLE_NUMBERS"), ",") {
		if num = strings.TrimSpace(num); num != "" {
			unreachable[num] = true
		}
	}

	perSecond := 5.0
	if v := os.Getenv("RATE_PER_SECOND"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			perSecond = parsed
		}
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)

	r := chi.NewRouter()

	r.Post("/v1/messages", func(w http.ResponseWriter, req *http.Request) {
		var body sendRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "message": "invalid request body"})
			return
		}

		if !limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"code": 429, "message": "rate limit exceeded"})
			return
		}

		if unreachable[body.To] {
			writeJSON(w, http.StatusBadRequest, map[string]any{"code": 470, "message": "recipient unreachable"})
			return
		}

		messageID := uuid.New().String()
		writeJSON(w, http.StatusOK, map[string]any{"message_id": messageID})

		go emitLifecycle(callbackURL, webhookToken, messageID)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}
	log.Printf("🚀 Provider stub running on :%s (callbacks -> %s)", port, callbackURL)
	log.Fatal(http.ListenAndServe(":"+port, r))
}

// emitLifecycle walks a message through sent -> delivered -> read with
// short gaps between callbacks.
func emitLifecycle(callbackURL, token, messageID string) {
	steps := []struct {
		status string
		after  time.Duration
	}{
		{"sent", 500 * time.Millisecond},
		{"delivered", 2 * time.Second},
		{"read", 5 * time.Second},
	}
	for _, step := range steps {
		time.Sleep(step.after)
		postCallback(callbackURL, token, statusCallback{
			MessageID: messageID,
			Status:    step.status,
			Timestamp: time.Now().UTC(),
		})
	}
}

func postCallback(callbackURL, token string, cb statusCallback) {
	payload, _ := json.Marshal(webhookBatch{Statuses: []statusCallback{cb}})
	req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(payload))
	if err != nil {
		log.Println("⚠️ callback request:", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Webhook-Token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("⚠️ callback %s/%s: %v", cb.MessageID, cb.Status, err)
		return
	}
	resp.Body.Close()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
