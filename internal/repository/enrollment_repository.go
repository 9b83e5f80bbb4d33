package repository

import (
	"database/sql"

	"github.com/lib/pq"

	"github.com/nexlead/nexlead-backend/internal/model"
)

type EnrollmentRepositoryInterface interface {
	// BulkCreate materializes pending enrollments for the given recipients,
	// skipping pairs that already exist. Returns the number of new rows.
	BulkCreate(campaignID int, recipientIDs []int) (int, error)
	ListByStatus(campaignID int, status string) ([]model.Enrollment, error)
	// UpdateStatusIf moves one enrollment only if it is still in the
	// expected status, so the loop and the reconciler cannot clobber each
	// other on the same row.
	UpdateStatusIf(id int, to, from string) (bool, error)
	CountByStatus(campaignID int) (map[string]int, error)
	// ResetFailed moves failed enrollments back to pending for a retry run,
	// skipping recipients flagged do-not-contact. Returns rows affected.
	ResetFailed(campaignID int) (int, error)
	// MarkOptedOut flips any still-pending enrollments for the recipient.
	MarkOptedOut(recipientID int) error
}

type EnrollmentRepository struct {
	DB *sql.DB
}

func (r *EnrollmentRepository) BulkCreate(campaignID int, recipientIDs []int) (int, error) {
	if len(recipientIDs) == 0 {
		return 0, nil
	}
	query := `
        INSERT INTO enrollments (campaign_id, recipient_id, status, created_at, updated_at)
        SELECT $1, rid, 'pending', NOW(), NOW() FROM unnest($2::int[]) AS rid
        ON CONFLICT (campaign_id, recipient_id) DO NOTHING
    `
	res, err := r.DB.Exec(query, campaignID, pq.Array(recipientIDs))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *EnrollmentRepository) ListByStatus(campaignID int, status string) ([]model.Enrollment, error) {
	query := `
        SELECT id, campaign_id, recipient_id, status, created_at, updated_at
        FROM enrollments
        WHERE campaign_id=$1 AND status=$2
        ORDER BY id
    `
	rows, err := r.DB.Query(query, campaignID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	enrollments := []model.Enrollment{}
	for rows.Next() {
		var e model.Enrollment
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.RecipientID, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

func (r *EnrollmentRepository) UpdateStatusIf(id int, to, from string) (bool, error) {
	query := `UPDATE enrollments SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`
	res, err := r.DB.Exec(query, to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *EnrollmentRepository) CountByStatus(campaignID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM enrollments WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		model.EnrollmentPending:  0,
		model.EnrollmentSent:     0,
		model.EnrollmentFailed:   0,
		model.EnrollmentOptedOut: 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func (r *EnrollmentRepository) ResetFailed(campaignID int) (int, error) {
	query := `
        UPDATE enrollments SET status='pending', updated_at=NOW()
        WHERE campaign_id=$1 AND status='failed'
          AND recipient_id NOT IN (
              SELECT id FROM recipients WHERE do_not_contact=TRUE OR opted_out=TRUE
          )
    `
	res, err := r.DB.Exec(query, campaignID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *EnrollmentRepository) MarkOptedOut(recipientID int) error {
	query := `
        UPDATE enrollments SET status='opted_out', updated_at=NOW()
        WHERE recipient_id=$1 AND status='pending'
    `
	_, err := r.DB.Exec(query, recipientID)
	return err
}

var _ EnrollmentRepositoryInterface = (*EnrollmentRepository)(nil)
