// internal/service/campaign_service.go
package service

import (
	"fmt"
	"time"

	appErrors "github.com/nexlead/nexlead-backend/internal/errors"
	"github.com/nexlead/nexlead-backend/internal/model"
	"github.com/nexlead/nexlead-backend/internal/repository"
)

type CampaignService struct {
	CampaignRepo   repository.CampaignRepositoryInterface
	RecipientRepo  repository.RecipientRepositoryInterface
	TemplateRepo   repository.TemplateRepositoryInterface
	EnrollmentRepo repository.EnrollmentRepositoryInterface
}

type CreateCampaignInput struct {
	Name                  string
	Channel               string
	TemplateID            int
	TargetSpec            model.TargetSpec
	PacingProfile         string
	SkipDuplicateTemplate *bool
	CreatedBy             string
	ScheduledAt           *string
}

// CampaignDetails is a campaign snapshot with its enrollment breakdown.
type CampaignDetails struct {
	Campaign *model.Campaign `json:"campaign"`
	Stats    map[string]int  `json:"stats"`
}

// Analytics is the reconciled operator view: loop-owned sent/failed,
// reconciler-owned delivered/read, plus the enrollment breakdown.
type Analytics struct {
	CampaignID     int            `json:"campaign_id"`
	Status         string         `json:"status"`
	SentCount      int            `json:"sent_count"`
	FailedCount    int            `json:"failed_count"`
	DeliveredCount int            `json:"delivered_count"`
	ReadCount      int            `json:"read_count"`
	Enrollments    map[string]int `json:"enrollments"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

func (s *CampaignService) CreateCampaign(in CreateCampaignInput) (*model.Campaign, error) {
	if in.TargetSpec.Kind == "" {
		in.TargetSpec.Kind = model.TargetAll
	}
	if err := in.TargetSpec.Validate(); err != nil {
		return nil, err
	}

	tpl, err := s.TemplateRepo.GetByID(in.TemplateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, fmt.Errorf("template %d not found", in.TemplateID)
	}

	c := &model.Campaign{
		Name:                  in.Name,
		Channel:               in.Channel,
		TemplateID:            in.TemplateID,
		TargetSpec:            in.TargetSpec,
		PacingProfile:         in.PacingProfile,
		SkipDuplicateTemplate: true,
		CreatedBy:             in.CreatedBy,
		Status:                model.CampaignDraft,
	}
	if in.SkipDuplicateTemplate != nil {
		c.SkipDuplicateTemplate = *in.SkipDuplicateTemplate
	}
	if c.Channel == "" {
		c.Channel = "sms"
	}

	if in.ScheduledAt != nil {
		t, err := time.Parse(time.RFC3339, *in.ScheduledAt)
		if err != nil {
			return nil, err
		}
		c.ScheduledAt = &t
		c.Status = model.CampaignScheduled
	}

	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(page, pageSize int, channel, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, channel, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetails(id int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	stats, err := s.EnrollmentRepo.CountByStatus(id)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

func (s *CampaignService) GetAnalytics(id int) (*Analytics, error) {
	campaign, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	stats, err := s.EnrollmentRepo.CountByStatus(id)
	if err != nil {
		return nil, err
	}
	return &Analytics{
		CampaignID:     campaign.ID,
		Status:         campaign.Status,
		SentCount:      campaign.SentCount,
		FailedCount:    campaign.FailedCount,
		DeliveredCount: campaign.DeliveredCount,
		ReadCount:      campaign.ReadCount,
		Enrollments:    stats,
		StartedAt:      campaign.StartedAt,
		CompletedAt:    campaign.CompletedAt,
	}, nil
}

// RenderPreview renders the campaign's template for one recipient, exactly
// as the dispatch loop would send it.
func (s *CampaignService) RenderPreview(campaignID, recipientID int) (string, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return "", err
	}

	tpl, err := s.TemplateRepo.GetByID(campaign.TemplateID)
	if err != nil {
		return "", err
	}
	if tpl == nil {
		return "", fmt.Errorf("template %d not found", campaign.TemplateID)
	}

	rec, err := s.RecipientRepo.GetByID(recipientID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", appErrors.NewRecipientNotFound(recipientID)
	}

	params := ResolveParams(tpl, rec)
	return RenderTemplate(tpl.Body, params), nil
}
