// internal/errors/errors.go
package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrInvalidState means an operator command is not valid for the campaign's
// current status. Surfaced synchronously, never retried.
type ErrInvalidState struct {
	CampaignID int
	Status     string
	Op         string
}

func (e *ErrInvalidState) Error() string {
	return fmt.Sprintf("cannot %s campaign %d in status %q", e.Op, e.CampaignID, e.Status)
}

func NewInvalidState(campaignID int, status, op string) error {
	return &ErrInvalidState{CampaignID: campaignID, Status: status, Op: op}
}

// ErrNoEligibleRecipients means target resolution produced an empty set
// after opt-out, do-not-contact and duplicate-template exclusions.
type ErrNoEligibleRecipients struct {
	CampaignID int
}

func (e *ErrNoEligibleRecipients) Error() string {
	return fmt.Sprintf("campaign %d has no eligible recipients", e.CampaignID)
}

func NewNoEligibleRecipients(campaignID int) error {
	return &ErrNoEligibleRecipients{CampaignID: campaignID}
}

// ErrRecipientNotFound is a sentinel error
type ErrRecipientNotFound struct {
	RecipientID int
}

func (e *ErrRecipientNotFound) Error() string {
	return fmt.Sprintf("recipient with ID %d not found", e.RecipientID)
}

func NewRecipientNotFound(id int) error {
	return &ErrRecipientNotFound{RecipientID: id}
}
