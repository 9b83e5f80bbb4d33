package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexlead/nexlead-backend/internal/controller"
	"github.com/nexlead/nexlead-backend/internal/dispatch"
	"github.com/nexlead/nexlead-backend/internal/model"
	"github.com/nexlead/nexlead-backend/internal/pacing"
	"github.com/nexlead/nexlead-backend/internal/provider"
	"github.com/nexlead/nexlead-backend/internal/repository"
	"github.com/nexlead/nexlead-backend/internal/service"
)

type okProvider struct {
	mu     sync.Mutex
	nextID int
}

func (p *okProvider) SendTemplate(ctx context.Context, to, template string, params []string) (*provider.SendResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	return &provider.SendResult{MessageID: fmt.Sprintf("msg-%d", p.nextID)}, nil
}

type controllerFixture struct {
	store    *repository.MemoryStore
	router   *chi.Mux
	template *model.Template
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	store := repository.NewMemoryStore()

	store.AddRecipient(model.Recipient{Phone: "+100", FirstName: "Amina", PreferredProduct: "Solar Kit"})
	store.AddRecipient(model.Recipient{Phone: "+200", FirstName: "Brian", PreferredProduct: "Water Pump"})

	tpl := &model.Template{
		Name:        "welcome_offer",
		Body:        "Hi {{1}}, check out {{2}}!",
		ParamFields: []string{"first_name", "preferred_product"},
	}
	require.NoError(t, store.CreateTemplate(tpl))

	dispatcher := &dispatch.Runner{
		Campaigns:   store.CampaignRepo(),
		Recipients:  store.RecipientRepo(),
		Enrollments: store.EnrollmentRepo(),
		Ledger:      store.LedgerRepo(),
		Templates:   store.TemplateRepo(),
		Provider:    &okProvider{},
		Pacing:      pacing.NewController(),
		Registry:    dispatch.NewRegistry(),
		Sleep:       func(time.Duration) {},
	}

	cc := &controller.CampaignController{
		CampaignService: &service.CampaignService{
			CampaignRepo:   store.CampaignRepo(),
			RecipientRepo:  store.RecipientRepo(),
			TemplateRepo:   store.TemplateRepo(),
			EnrollmentRepo: store.EnrollmentRepo(),
		},
		Dispatcher: dispatcher,
	}

	r := chi.NewRouter()
	r.Post("/campaigns", cc.CreateCampaign)
	r.Get("/campaigns", cc.ListCampaigns)
	r.Get("/campaigns/{id}", cc.GetCampaign)
	r.Get("/campaigns/{id}/analytics", cc.GetAnalytics)
	r.Post("/campaigns/{id}/start", cc.StartCampaign)
	r.Post("/campaigns/{id}/pause", cc.PauseCampaign)
	r.Post("/campaigns/{id}/resume", cc.ResumeCampaign)
	r.Post("/campaigns/{id}/cancel", cc.CancelCampaign)
	r.Post("/campaigns/{id}/resend-pending", cc.ResendPending)
	r.Post("/campaigns/{id}/retry-failed", cc.RetryFailed)
	r.Post("/campaigns/{id}/personalized-preview", cc.PersonalizedPreview)

	return &controllerFixture{store: store, router: r, template: tpl}
}

func (f *controllerFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *controllerFixture) createCampaign(t *testing.T) int {
	t.Helper()
	w := f.do(http.MethodPost, "/campaigns", map[string]any{
		"name":        "launch",
		"template_id": f.template.ID,
		"target_spec": map[string]any{"kind": "all"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var c model.Campaign
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	return c.ID
}

func TestCreateCampaignDefaults(t *testing.T) {
	f := newControllerFixture(t)

	w := f.do(http.MethodPost, "/campaigns", map[string]any{
		"name":        "launch",
		"template_id": f.template.ID,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var c model.Campaign
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, model.CampaignDraft, c.Status)
	assert.Equal(t, "sms", c.Channel)
	assert.Equal(t, model.TargetAll, c.TargetSpec.Kind)
	assert.True(t, c.SkipDuplicateTemplate)
}

func TestCreateScheduledCampaign(t *testing.T) {
	f := newControllerFixture(t)

	at := time.Now().Add(time.Hour).Format(time.RFC3339)
	w := f.do(http.MethodPost, "/campaigns", map[string]any{
		"name":         "later",
		"template_id":  f.template.ID,
		"scheduled_at": at,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var c model.Campaign
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, model.CampaignScheduled, c.Status)
	require.NotNil(t, c.ScheduledAt)
}

func TestCreateCampaignRejectsBadTargetSpec(t *testing.T) {
	f := newControllerFixture(t)

	w := f.do(http.MethodPost, "/campaigns", map[string]any{
		"name":        "broken",
		"template_id": f.template.ID,
		"target_spec": map[string]any{"kind": "ids"},
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStartAndLifecycleOverHTTP(t *testing.T) {
	f := newControllerFixture(t)
	id := f.createCampaign(t)

	w := f.do(http.MethodPost, fmt.Sprintf("/campaigns/%d/start", id), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var started struct {
		Campaign model.Campaign `json:"campaign"`
		Enrolled int            `json:"enrolled"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	assert.Equal(t, model.CampaignRunning, started.Campaign.Status)
	assert.Equal(t, 2, started.Enrolled)

	// Starting again while running is a conflict.
	w = f.do(http.MethodPost, fmt.Sprintf("/campaigns/%d/start", id), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// The loop runs detached with a no-op sleeper; wait for completion.
	assert.Eventually(t, func() bool {
		c, _ := f.store.GetByID(id)
		return c.Status == model.CampaignCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPauseNotRunningIsConflict(t *testing.T) {
	f := newControllerFixture(t)
	id := f.createCampaign(t)

	w := f.do(http.MethodPost, fmt.Sprintf("/campaigns/%d/pause", id), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "cannot pause")
}

func TestStartUnknownCampaignIsNotFound(t *testing.T) {
	f := newControllerFixture(t)

	w := f.do(http.MethodPost, "/campaigns/999/start", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartWithNoEligibleIsUnprocessable(t *testing.T) {
	f := newControllerFixture(t)
	id := f.createCampaign(t)

	f.store.SetOptedOut(1, time.Now())
	f.store.SetDoNotContact(2)

	w := f.do(http.MethodPost, fmt.Sprintf("/campaigns/%d/start", id), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGetCampaignDetailsAndAnalytics(t *testing.T) {
	f := newControllerFixture(t)
	id := f.createCampaign(t)

	w := f.do(http.MethodPost, fmt.Sprintf("/campaigns/%d/start", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Eventually(t, func() bool {
		c, _ := f.store.GetByID(id)
		return c.Status == model.CampaignCompleted
	}, 2*time.Second, 10*time.Millisecond)

	w = f.do(http.MethodGet, fmt.Sprintf("/campaigns/%d", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var details struct {
		Campaign model.Campaign `json:"campaign"`
		Stats    map[string]int `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &details))
	assert.Equal(t, 2, details.Stats["sent"])

	w = f.do(http.MethodGet, fmt.Sprintf("/campaigns/%d/analytics", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var analytics service.Analytics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analytics))
	assert.Equal(t, 2, analytics.SentCount)
	assert.Equal(t, 0, analytics.FailedCount)
	assert.Equal(t, model.CampaignCompleted, analytics.Status)
}

func TestListCampaignsPagination(t *testing.T) {
	f := newControllerFixture(t)
	f.createCampaign(t)
	f.createCampaign(t)
	f.createCampaign(t)

	w := f.do(http.MethodGet, "/campaigns?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data       []model.Campaign `json:"data"`
		Pagination map[string]int   `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data, 2)
	assert.Equal(t, 3, body.Pagination["total_count"])
	assert.Equal(t, 2, body.Pagination["total_pages"])
}

func TestPersonalizedPreview(t *testing.T) {
	f := newControllerFixture(t)
	id := f.createCampaign(t)

	w := f.do(http.MethodPost, fmt.Sprintf("/campaigns/%d/personalized-preview", id),
		map[string]any{"recipient_id": 1})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		RenderedMessage string `json:"rendered_message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Hi Amina, check out Solar Kit!", body.RenderedMessage)

	w = f.do(http.MethodPost, fmt.Sprintf("/campaigns/%d/personalized-preview", id),
		map[string]any{"recipient_id": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvalidIDIsBadRequest(t *testing.T) {
	f := newControllerFixture(t)

	w := f.do(http.MethodPost, "/campaigns/abc/start", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
