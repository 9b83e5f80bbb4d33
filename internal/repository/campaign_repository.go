package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/nexlead/nexlead-backend/internal/errors"
	"github.com/nexlead/nexlead-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	ListCampaigns(offset, limit int, channel, status string) ([]*model.Campaign, int, error)
	Update(c *model.Campaign) error

	// Guarded status transitions. SetStatusIf applies the transition only
	// when the row is still in one of the expected statuses and reports
	// whether it did.
	SetStatusIf(campaignID int, to string, from ...string) (bool, error)
	MarkRunning(campaignID int) (bool, error)
	MarkCompleted(campaignID int) (bool, error)

	// Counter maintenance. The dispatch loop owns sent/failed via
	// increments; the reconciler owns delivered/read via recompute.
	IncrementCounters(campaignID, sentDelta, failedDelta int) error
	RecomputeDeliveryCounters(campaignID int) error

	ListDueScheduled(now time.Time) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, channel, status, template_id, target_spec, pacing_profile,
	skip_duplicate_template, sent_count, failed_count, delivered_count, read_count,
	created_by, scheduled_at, started_at, completed_at, created_at, updated_at`

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.PacingProfile == "" {
		c.PacingProfile = "normal"
	}
	spec, err := c.TargetSpec.Encode()
	if err != nil {
		return err
	}
	query := `
        INSERT INTO campaigns (name, channel, status, template_id, target_spec, pacing_profile,
            skip_duplicate_template, created_by, scheduled_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `
	return r.DB.QueryRow(query, c.Name, c.Channel, c.Status, c.TemplateID, spec,
		c.PacingProfile, c.SkipDuplicateTemplate, c.CreatedBy, c.ScheduledAt, c.CreatedAt).Scan(&c.ID)
}

func (r *CampaignRepository) Update(c *model.Campaign) error {
	spec, err := c.TargetSpec.Encode()
	if err != nil {
		return err
	}
	query := `
        UPDATE campaigns
        SET name=$1, template_id=$2, target_spec=$3, pacing_profile=$4,
            skip_duplicate_template=$5, scheduled_at=$6, updated_at=NOW()
        WHERE id=$7
    `
	_, err = r.DB.Exec(query, c.Name, c.TemplateID, spec, c.PacingProfile,
		c.SkipDuplicateTemplate, c.ScheduledAt, c.ID)
	return err
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	var spec []byte
	err := row.Scan(&c.ID, &c.Name, &c.Channel, &c.Status, &c.TemplateID, &spec,
		&c.PacingProfile, &c.SkipDuplicateTemplate, &c.SentCount, &c.FailedCount,
		&c.DeliveredCount, &c.ReadCount, &c.CreatedBy, &c.ScheduledAt, &c.StartedAt,
		&c.CompletedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.TargetSpec, err = model.ParseTargetSpec(spec)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if channel != "" {
		query += fmt.Sprintf(" AND channel=$%d", argPos)
		args = append(args, channel)
		argPos++
	}
	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	argPosCount := 1
	if channel != "" {
		countQuery += fmt.Sprintf(" AND channel=$%d", argPosCount)
		argsCount = append(argsCount, channel)
		argPosCount++
	}
	if status != "" {
		countQuery += fmt.Sprintf(" AND status=$%d", argPosCount)
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) SetStatusIf(campaignID int, to string, from ...string) (bool, error) {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=ANY($3)`
	res, err := r.DB.Exec(query, to, campaignID, pq.Array(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkRunning moves a startable campaign to running and stamps started_at on
// the first run only.
func (r *CampaignRepository) MarkRunning(campaignID int) (bool, error) {
	query := `
        UPDATE campaigns
        SET status=$1, started_at=COALESCE(started_at, NOW()), updated_at=NOW()
        WHERE id=$2 AND status=ANY($3)
    `
	res, err := r.DB.Exec(query, model.CampaignRunning, campaignID,
		pq.Array([]string{model.CampaignDraft, model.CampaignScheduled, model.CampaignPaused}))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *CampaignRepository) MarkCompleted(campaignID int) (bool, error) {
	query := `
        UPDATE campaigns
        SET status=$1, completed_at=NOW(), updated_at=NOW()
        WHERE id=$2 AND status=$3
    `
	res, err := r.DB.Exec(query, model.CampaignCompleted, campaignID, model.CampaignRunning)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *CampaignRepository) IncrementCounters(campaignID, sentDelta, failedDelta int) error {
	query := `
        UPDATE campaigns
        SET sent_count=sent_count+$1, failed_count=failed_count+$2, updated_at=NOW()
        WHERE id=$3
    `
	_, err := r.DB.Exec(query, sentDelta, failedDelta, campaignID)
	return err
}

// RecomputeDeliveryCounters re-derives delivered/read from the ledger's
// current state so replayed callbacks cannot double-count.
func (r *CampaignRepository) RecomputeDeliveryCounters(campaignID int) error {
	query := `
        UPDATE campaigns SET
            delivered_count=(SELECT COUNT(*) FROM ledger_entries
                WHERE campaign_id=$1 AND direction='outbound' AND status IN ('delivered','read')),
            read_count=(SELECT COUNT(*) FROM ledger_entries
                WHERE campaign_id=$1 AND direction='outbound' AND status='read'),
            updated_at=NOW()
        WHERE id=$1
    `
	_, err := r.DB.Exec(query, campaignID)
	return err
}

func (r *CampaignRepository) ListDueScheduled(now time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns
        WHERE status=$1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
        ORDER BY scheduled_at`
	rows, err := r.DB.Query(query, model.CampaignScheduled, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	due := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, c)
	}
	return due, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
