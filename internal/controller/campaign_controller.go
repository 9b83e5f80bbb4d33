// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nexlead/nexlead-backend/internal/dispatch"
	appErrors "github.com/nexlead/nexlead-backend/internal/errors"
	"github.com/nexlead/nexlead-backend/internal/model"
	"github.com/nexlead/nexlead-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Dispatcher      *dispatch.Runner
}

// writeError maps engine errors onto HTTP statuses: invalid transitions are
// conflicts, empty target sets are unprocessable, everything else is 500.
func writeError(w http.ResponseWriter, err error) {
	var invalidState *appErrors.ErrInvalidState
	var noEligible *appErrors.ErrNoEligibleRecipients
	var notFound *appErrors.ErrCampaignNotFound
	var recNotFound *appErrors.ErrRecipientNotFound

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &invalidState):
		status = http.StatusConflict
	case errors.As(err, &noEligible):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &notFound), errors.As(err, &recNotFound):
		status = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func campaignID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name                  string           `json:"name"`
		Channel               string           `json:"channel"`
		TemplateID            int              `json:"template_id"`
		TargetSpec            model.TargetSpec `json:"target_spec"`
		PacingProfile         string           `json:"pacing_profile"`
		SkipDuplicateTemplate *bool            `json:"skip_duplicate_template"`
		CreatedBy             string           `json:"created_by"`
		ScheduledAt           *string          `json:"scheduled_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(service.CreateCampaignInput{
		Name:                  body.Name,
		Channel:               body.Channel,
		TemplateID:            body.TemplateID,
		TargetSpec:            body.TargetSpec,
		PacingProfile:         body.PacingProfile,
		SkipDuplicateTemplate: body.SkipDuplicateTemplate,
		CreatedBy:             body.CreatedBy,
		ScheduledAt:           body.ScheduledAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	channel := r.URL.Query().Get("channel")
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(page, pageSize, channel, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	details, err := c.CampaignService.GetCampaignDetails(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, details)
}

func (c *CampaignController) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	analytics, err := c.CampaignService.GetAnalytics(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, analytics)
}

// StartCampaign launches dispatch and acknowledges with the enrolled count.
// It does not block on delivery.
func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	result, err := c.Dispatcher.Start(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"campaign": result.Campaign,
		"enrolled": result.Affected,
	})
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	campaign, err := c.Dispatcher.Pause(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, campaign)
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	result, err := c.Dispatcher.Resume(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"campaign": result.Campaign,
		"pending":  result.Affected,
	})
}

func (c *CampaignController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	campaign, err := c.Dispatcher.Cancel(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, campaign)
}

func (c *CampaignController) ResendPending(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	result, err := c.Dispatcher.ResendPending(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"campaign": result.Campaign,
		"resent":   result.Affected,
	})
}

func (c *CampaignController) RetryFailed(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	result, err := c.Dispatcher.RetryFailed(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"campaign": result.Campaign,
		"retried":  result.Affected,
	})
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var body struct {
		RecipientID int `json:"recipient_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	rendered, err := c.CampaignService.RenderPreview(id, body.RecipientID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, map[string]interface{}{
		"rendered_message": rendered,
		"recipient_id":     body.RecipientID,
	})
}
