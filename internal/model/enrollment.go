// internal/model/enrollment.go
package model

import "time"

// Enrollment statuses. Delivery and read progress is tracked on the ledger,
// not here: an enrollment never moves past sent except to opted_out.
const (
	EnrollmentPending  = "pending"
	EnrollmentSent     = "sent"
	EnrollmentFailed   = "failed"
	EnrollmentOptedOut = "opted_out"
)

// Enrollment is one (campaign, recipient) pair. At most one row exists per
// pair; rows are materialized in bulk when the campaign starts.
type Enrollment struct {
	ID          int       `db:"id" json:"id"`
	CampaignID  int       `db:"campaign_id" json:"campaign_id"`
	RecipientID int       `db:"recipient_id" json:"recipient_id"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
