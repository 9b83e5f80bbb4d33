// internal/model/ledger_entry.go
package model

import "time"

// Ledger entry directions.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// Ledger entry statuses, in lifecycle order.
const (
	LedgerPending   = "pending"
	LedgerQueued    = "queued"
	LedgerSent      = "sent"
	LedgerDelivered = "delivered"
	LedgerRead      = "read"
	LedgerFailed    = "failed"
)

// statusRank orders ledger statuses so a callback can only advance an entry
// forward, never regress it. Failed ranks last: it is terminal.
var statusRank = map[string]int{
	LedgerPending:   0,
	LedgerQueued:    1,
	LedgerSent:      2,
	LedgerDelivered: 3,
	LedgerRead:      4,
	LedgerFailed:    5,
}

// StatusRank returns the lifecycle rank of a ledger status, or -1 for an
// unknown status.
func StatusRank(status string) int {
	rank, ok := statusRank[status]
	if !ok {
		return -1
	}
	return rank
}

// StatusesBefore returns every ledger status strictly earlier in the
// lifecycle than the given one. Used to build conditional updates that
// refuse to move a row backward.
func StatusesBefore(status string) []string {
	target := StatusRank(status)
	if target < 0 {
		return nil
	}
	var earlier []string
	for s, rank := range statusRank {
		if rank < target {
			earlier = append(earlier, s)
		}
	}
	return earlier
}

// LedgerEntry is the durable record of a single message attempt, outbound or
// inbound. ProviderMessageID is null until the provider accepts the send and
// never changes once set; it is the only key callbacks can join on.
type LedgerEntry struct {
	ID                int        `db:"id" json:"id"`
	RecipientID       int        `db:"recipient_id" json:"recipient_id"`
	CampaignID        *int       `db:"campaign_id" json:"campaign_id,omitempty"`
	TemplateID        *int       `db:"template_id" json:"template_id,omitempty"`
	Direction         string     `db:"direction" json:"direction"`
	ProviderMessageID *string    `db:"provider_message_id" json:"provider_message_id,omitempty"`
	Status            string     `db:"status" json:"status"`
	Payload           string     `db:"payload" json:"payload"`
	LastError         string     `db:"last_error" json:"last_error,omitempty"`
	SentAt            *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt       *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt            *time.Time `db:"read_at" json:"read_at,omitempty"`
	FailedAt          *time.Time `db:"failed_at" json:"failed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}
