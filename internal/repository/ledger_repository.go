package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/nexlead/nexlead-backend/internal/model"
)

type LedgerRepositoryInterface interface {
	Create(entry *model.LedgerEntry) error
	// MarkSent records provider acceptance: provider message ID is set once
	// here and never changes afterwards.
	MarkSent(id int, providerMessageID string, at time.Time) error
	MarkFailed(id int, lastError string, at time.Time) error
	GetByProviderMessageID(providerMessageID string) (*model.LedgerEntry, error)
	// AdvanceStatus applies a callback status only if it is strictly later
	// in the lifecycle than the row's current status. Reports whether the
	// row changed; replays and stale callbacks report false without error.
	AdvanceStatus(providerMessageID, status string, at time.Time) (bool, error)
	// RecipientsWithTemplateSend returns the IDs of recipients who already
	// have a non-failed outbound entry for the template, for dedup.
	RecipientsWithTemplateSend(templateID int) (map[int]bool, error)
	CountSentSince(campaignID int, since time.Time) (int, error)
	CreateInbound(recipientID int, providerMessageID, body string, at time.Time) error
}

type LedgerRepository struct {
	DB *sql.DB
}

const ledgerColumns = `id, recipient_id, campaign_id, template_id, direction, provider_message_id,
	status, payload, last_error, sent_at, delivered_at, read_at, failed_at, created_at`

func (r *LedgerRepository) Create(entry *model.LedgerEntry) error {
	entry.CreatedAt = time.Now()
	if entry.Status == "" {
		entry.Status = model.LedgerPending
	}
	if entry.Direction == "" {
		entry.Direction = model.DirectionOutbound
	}
	query := `
        INSERT INTO ledger_entries (recipient_id, campaign_id, template_id, direction, status, payload, last_error, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	return r.DB.QueryRow(query, entry.RecipientID, entry.CampaignID, entry.TemplateID,
		entry.Direction, entry.Status, entry.Payload, entry.LastError, entry.CreatedAt).Scan(&entry.ID)
}

func (r *LedgerRepository) MarkSent(id int, providerMessageID string, at time.Time) error {
	query := `
        UPDATE ledger_entries
        SET status='sent', provider_message_id=$1, sent_at=$2, last_error=''
        WHERE id=$3 AND provider_message_id IS NULL
    `
	_, err := r.DB.Exec(query, providerMessageID, at, id)
	return err
}

func (r *LedgerRepository) MarkFailed(id int, lastError string, at time.Time) error {
	query := `UPDATE ledger_entries SET status='failed', last_error=$1, failed_at=$2 WHERE id=$3`
	_, err := r.DB.Exec(query, lastError, at, id)
	return err
}

func scanLedgerEntry(row rowScanner) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	err := row.Scan(&e.ID, &e.RecipientID, &e.CampaignID, &e.TemplateID, &e.Direction,
		&e.ProviderMessageID, &e.Status, &e.Payload, &e.LastError,
		&e.SentAt, &e.DeliveredAt, &e.ReadAt, &e.FailedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *LedgerRepository) GetByProviderMessageID(providerMessageID string) (*model.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE provider_message_id=$1`
	e, err := scanLedgerEntry(r.DB.QueryRow(query, providerMessageID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// timestampColumn maps a callback status to the lifecycle timestamp it sets.
// Each timestamp is written at most once (COALESCE keeps the first value).
var timestampColumn = map[string]string{
	model.LedgerSent:      "sent_at",
	model.LedgerDelivered: "delivered_at",
	model.LedgerRead:      "read_at",
	model.LedgerFailed:    "failed_at",
}

func (r *LedgerRepository) AdvanceStatus(providerMessageID, status string, at time.Time) (bool, error) {
	col, ok := timestampColumn[status]
	if !ok {
		return false, fmt.Errorf("ledger status %q cannot be applied from a callback", status)
	}
	earlier := model.StatusesBefore(status)
	query := fmt.Sprintf(`
        UPDATE ledger_entries
        SET status=$1, %s=COALESCE(%s, $2)
        WHERE provider_message_id=$3 AND status=ANY($4)
    `, col, col)
	res, err := r.DB.Exec(query, status, at, providerMessageID, pq.Array(earlier))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *LedgerRepository) RecipientsWithTemplateSend(templateID int) (map[int]bool, error) {
	query := `
        SELECT DISTINCT recipient_id FROM ledger_entries
        WHERE template_id=$1 AND direction='outbound' AND status NOT IN ('failed')
    `
	rows, err := r.DB.Query(query, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := map[int]bool{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		seen[id] = true
	}
	return seen, rows.Err()
}

func (r *LedgerRepository) CountSentSince(campaignID int, since time.Time) (int, error) {
	query := `
        SELECT COUNT(*) FROM ledger_entries
        WHERE campaign_id=$1 AND direction='outbound' AND sent_at >= $2
    `
	var count int
	err := r.DB.QueryRow(query, campaignID, since).Scan(&count)
	return count, err
}

func (r *LedgerRepository) CreateInbound(recipientID int, providerMessageID, body string, at time.Time) error {
	query := `
        INSERT INTO ledger_entries (recipient_id, direction, provider_message_id, status, payload, delivered_at, created_at)
        VALUES ($1, 'inbound', $2, 'delivered', $3, $4, $5)
        ON CONFLICT (provider_message_id) WHERE provider_message_id IS NOT NULL DO NOTHING
    `
	var pmid interface{}
	if providerMessageID != "" {
		pmid = providerMessageID
	}
	_, err := r.DB.Exec(query, recipientID, pmid, body, at, at)
	return err
}

var _ LedgerRepositoryInterface = (*LedgerRepository)(nil)
