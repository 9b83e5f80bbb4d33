// Package webhook reconciles asynchronous provider callbacks against the
// delivery ledger. Callbacks join on provider message ID only; anything
// unknown is logged and dropped, never errored back to the provider.
package webhook

import (
	"log"
	"time"

	"github.com/nexlead/nexlead-backend/internal/model"
	"github.com/nexlead/nexlead-backend/internal/notify"
	"github.com/nexlead/nexlead-backend/internal/repository"
)

// TopicInboundMessages is the notification topic for non-opt-out inbound
// messages.
const TopicInboundMessages = "inbound_messages"

// StatusEvent is a provider delivery-status callback.
type StatusEvent struct {
	MessageID string    `json:"message_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// InboundEvent is a message a recipient sent us.
type InboundEvent struct {
	MessageID string    `json:"message_id"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// InboundNotification is what gets published for user-visible inbound
// messages.
type InboundNotification struct {
	RecipientID int       `json:"recipient_id"`
	Phone       string    `json:"phone"`
	Text        string    `json:"text"`
	ReceivedAt  time.Time `json:"received_at"`
}

// providerStatuses maps the provider's callback vocabulary onto ledger
// statuses. Unknown statuses are dropped.
var providerStatuses = map[string]string{
	"sent":        model.LedgerSent,
	"delivered":   model.LedgerDelivered,
	"read":        model.LedgerRead,
	"failed":      model.LedgerFailed,
	"undelivered": model.LedgerFailed,
}

// Reconciler applies callbacks to the ledger and rolls aggregates up to the
// owning campaign.
type Reconciler struct {
	Ledger      repository.LedgerRepositoryInterface
	Campaigns   repository.CampaignRepositoryInterface
	Recipients  repository.RecipientRepositoryInterface
	Enrollments repository.EnrollmentRepositoryInterface
	Notifier    notify.Publisher
}

// HandleStatus applies one delivery-status event. Idempotent: the ledger
// row only advances forward, and campaign delivered/read counters are
// recomputed from the ledger rather than incremented, so replays and
// out-of-order callbacks cannot double-count or regress state.
func (r *Reconciler) HandleStatus(ev StatusEvent) {
	mapped, ok := providerStatuses[ev.Status]
	if !ok {
		log.Printf("⚠️ webhook: unknown status %q for message %s, dropping", ev.Status, ev.MessageID)
		return
	}

	entry, err := r.Ledger.GetByProviderMessageID(ev.MessageID)
	if err != nil {
		log.Printf("⚠️ webhook: lookup message %s: %v", ev.MessageID, err)
		return
	}
	if entry == nil {
		// The provider delivers status for messages we do not track, and
		// replays for rows already past them. Both are normal.
		log.Printf("webhook: no ledger entry for message %s, dropping %s event", ev.MessageID, ev.Status)
		return
	}

	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	applied, err := r.Ledger.AdvanceStatus(ev.MessageID, mapped, at)
	if err != nil {
		log.Printf("⚠️ webhook: advance message %s to %s: %v", ev.MessageID, mapped, err)
		return
	}
	if !applied {
		log.Printf("webhook: message %s already at or past %s, ignoring", ev.MessageID, mapped)
	}

	if entry.CampaignID != nil {
		if err := r.Campaigns.RecomputeDeliveryCounters(*entry.CampaignID); err != nil {
			log.Printf("⚠️ webhook: recompute counters for campaign %d: %v", *entry.CampaignID, err)
		}
	}
}

// HandleInbound processes a message from a recipient. Opt-out intent flips
// the recipient's flag and releases their pending enrollments; anything
// else lands in the ledger and triggers a notification.
func (r *Reconciler) HandleInbound(ev InboundEvent) {
	rec, err := r.Recipients.GetByPhone(ev.From)
	if err != nil {
		log.Printf("⚠️ webhook: lookup recipient %s: %v", ev.From, err)
		return
	}
	if rec == nil {
		log.Printf("webhook: inbound from unknown number %s, dropping", ev.From)
		return
	}

	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	if IsOptOut(ev.Text) {
		if err := r.Recipients.SetOptedOut(rec.ID, at); err != nil {
			log.Printf("⚠️ webhook: opt out recipient %d: %v", rec.ID, err)
			return
		}
		if err := r.Enrollments.MarkOptedOut(rec.ID); err != nil {
			log.Printf("⚠️ webhook: release enrollments for recipient %d: %v", rec.ID, err)
		}
		log.Printf("🛑 recipient %d opted out via keyword", rec.ID)
		return
	}

	if err := r.Ledger.CreateInbound(rec.ID, ev.MessageID, ev.Text, at); err != nil {
		log.Printf("⚠️ webhook: record inbound from recipient %d: %v", rec.ID, err)
		return
	}

	if r.Notifier != nil {
		err := r.Notifier.Publish(TopicInboundMessages, InboundNotification{
			RecipientID: rec.ID,
			Phone:       rec.Phone,
			Text:        ev.Text,
			ReceivedAt:  at,
		})
		if err != nil {
			log.Printf("⚠️ webhook: publish inbound notification: %v", err)
		}
	}
}
