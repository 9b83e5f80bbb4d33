// internal/model/campaign.go
package model

import "time"

// Campaign lifecycle statuses.
const (
	CampaignDraft     = "draft"
	CampaignScheduled = "scheduled"
	CampaignRunning   = "running"
	CampaignPaused    = "paused"
	CampaignCompleted = "completed"
	CampaignCancelled = "cancelled"
)

type Campaign struct {
	ID                    int        `db:"id" json:"id"`
	Name                  string     `db:"name" json:"name"`
	Channel               string     `db:"channel" json:"channel"`
	Status                string     `db:"status" json:"status"`
	TemplateID            int        `db:"template_id" json:"template_id"`
	TargetSpec            TargetSpec `db:"target_spec" json:"target_spec"`
	PacingProfile         string     `db:"pacing_profile" json:"pacing_profile"`
	SkipDuplicateTemplate bool       `db:"skip_duplicate_template" json:"skip_duplicate_template"`
	SentCount             int        `db:"sent_count" json:"sent_count"`
	FailedCount           int        `db:"failed_count" json:"failed_count"`
	DeliveredCount        int        `db:"delivered_count" json:"delivered_count"`
	ReadCount             int        `db:"read_count" json:"read_count"`
	CreatedBy             string     `db:"created_by" json:"created_by"`
	ScheduledAt           *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt             *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt           *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// campaignEdges lists the allowed status transitions. Completed and
// cancelled are terminal: a cancelled campaign cannot be resumed.
var campaignEdges = map[string][]string{
	CampaignDraft:     {CampaignScheduled, CampaignRunning, CampaignCancelled},
	CampaignScheduled: {CampaignRunning, CampaignCancelled},
	CampaignRunning:   {CampaignPaused, CampaignCompleted, CampaignCancelled},
	CampaignPaused:    {CampaignRunning, CampaignCancelled},
}

// ValidTransition reports whether a campaign may move from one status to another.
func ValidTransition(from, to string) bool {
	for _, next := range campaignEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Startable reports whether a dispatch run may be launched for the campaign's
// current status.
func Startable(status string) bool {
	return status == CampaignDraft || status == CampaignScheduled || status == CampaignPaused
}
