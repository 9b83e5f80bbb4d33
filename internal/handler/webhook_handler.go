// internal/handler/webhook_handler.go
package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/nexlead/nexlead-backend/internal/webhook"
)

// WebhookHandler is the provider-facing ingress. It verifies the shared
// token, acknowledges immediately, and processes the batch asynchronously
// so slow local processing never triggers provider-side redelivery.
type WebhookHandler struct {
	Reconciler *webhook.Reconciler
	Token      string
}

type webhookBatch struct {
	Statuses []webhook.StatusEvent  `json:"statuses"`
	Messages []webhook.InboundEvent `json:"messages"`
}

func (h *WebhookHandler) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	if h.Token != "" && r.Header.Get("X-Webhook-Token") != h.Token {
		http.Error(w, "invalid webhook token", http.StatusUnauthorized)
		return
	}

	var batch webhookBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	// Ack now; everything past this point is swallowed internally.
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})

	go h.process(batch)
}

func (h *WebhookHandler) process(batch webhookBatch) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("⚠️ webhook: panic while processing batch: %v", rec)
		}
	}()
	for _, ev := range batch.Statuses {
		h.Reconciler.HandleStatus(ev)
	}
	for _, ev := range batch.Messages {
		h.Reconciler.HandleInbound(ev)
	}
}
