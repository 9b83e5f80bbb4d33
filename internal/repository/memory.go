package repository

import (
	"sort"
	"sync"
	"time"

	appErrors "github.com/nexlead/nexlead-backend/internal/errors"
	"github.com/nexlead/nexlead-backend/internal/model"
)

// MemoryStore is an in-memory implementation of every repository interface.
// It backs the engine tests and local development without Postgres; the SQL
// repositories are the production path.
type MemoryStore struct {
	mu          sync.Mutex
	campaigns   map[int]*model.Campaign
	recipients  map[int]*model.Recipient
	templates   map[int]*model.Template
	enrollments map[int]*model.Enrollment
	ledger      map[int]*model.LedgerEntry
	nextID      map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns:   map[int]*model.Campaign{},
		recipients:  map[int]*model.Recipient{},
		templates:   map[int]*model.Template{},
		enrollments: map[int]*model.Enrollment{},
		ledger:      map[int]*model.LedgerEntry{},
		nextID:      map[string]int{},
	}
}

func (s *MemoryStore) id(kind string) int {
	s.nextID[kind]++
	return s.nextID[kind]
}

// ---------------------- campaigns ----------------------

func (s *MemoryStore) Create(c *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id("campaign")
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	cp := *c
	s.campaigns[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetByID(id int) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListCampaigns(offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.campaigns))
	for id, c := range s.campaigns {
		if channel != "" && c.Channel != channel {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	total := len(ids)

	out := []*model.Campaign{}
	for i := offset; i < total && i < offset+limit; i++ {
		cp := *s.campaigns[ids[i]]
		out = append(out, &cp)
	}
	return out, total, nil
}

func (s *MemoryStore) Update(c *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.campaigns[c.ID]
	if !ok {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	cur.Name = c.Name
	cur.TemplateID = c.TemplateID
	cur.TargetSpec = c.TargetSpec
	cur.PacingProfile = c.PacingProfile
	cur.SkipDuplicateTemplate = c.SkipDuplicateTemplate
	cur.ScheduledAt = c.ScheduledAt
	return nil
}

func (s *MemoryStore) SetStatusIf(campaignID int, to string, from ...string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if c.Status == f {
			c.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) MarkRunning(campaignID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok || !model.Startable(c.Status) {
		return false, nil
	}
	c.Status = model.CampaignRunning
	if c.StartedAt == nil {
		now := time.Now()
		c.StartedAt = &now
	}
	return true, nil
}

func (s *MemoryStore) MarkCompleted(campaignID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok || c.Status != model.CampaignRunning {
		return false, nil
	}
	c.Status = model.CampaignCompleted
	now := time.Now()
	c.CompletedAt = &now
	return true, nil
}

func (s *MemoryStore) IncrementCounters(campaignID, sentDelta, failedDelta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[campaignID]; ok {
		c.SentCount += sentDelta
		c.FailedCount += failedDelta
	}
	return nil
}

func (s *MemoryStore) RecomputeDeliveryCounters(campaignID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return nil
	}
	delivered, read := 0, 0
	for _, e := range s.ledger {
		if e.CampaignID == nil || *e.CampaignID != campaignID || e.Direction != model.DirectionOutbound {
			continue
		}
		switch e.Status {
		case model.LedgerDelivered:
			delivered++
		case model.LedgerRead:
			delivered++
			read++
		}
	}
	c.DeliveredCount = delivered
	c.ReadCount = read
	return nil
}

func (s *MemoryStore) ListDueScheduled(now time.Time) ([]*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := []*model.Campaign{}
	for _, c := range s.campaigns {
		if c.Status == model.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			cp := *c
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

// ---------------------- recipients ----------------------

func (s *MemoryStore) AddRecipient(r model.Recipient) *model.Recipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.id("recipient")
	} else if r.ID > s.nextID["recipient"] {
		s.nextID["recipient"] = r.ID
	}
	cp := r
	s.recipients[r.ID] = &cp
	return &cp
}

func (s *MemoryStore) GetRecipientByID(id int) (*model.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipients[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) GetByPhone(phone string) (*model.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recipients {
		if r.Phone == phone {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListEligible(spec model.TargetSpec) ([]model.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := map[int]bool{}
	for _, id := range spec.RecipientIDs {
		wanted[id] = true
	}
	out := []model.Recipient{}
	ids := make([]int, 0, len(s.recipients))
	for id := range s.recipients {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		r := s.recipients[id]
		if r.OptedOut || r.DoNotContact {
			continue
		}
		switch spec.Kind {
		case model.TargetIDs:
			if !wanted[id] {
				continue
			}
		case model.TargetFilter:
			if spec.Location != "" && r.Location != spec.Location {
				continue
			}
			if spec.PreferredProduct != "" && r.PreferredProduct != spec.PreferredProduct {
				continue
			}
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *MemoryStore) SetOptedOut(id int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.recipients[id]; ok {
		r.OptedOut = true
		r.OptedOutAt = &at
	}
	return nil
}

func (s *MemoryStore) SetDoNotContact(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.recipients[id]; ok {
		r.DoNotContact = true
	}
	return nil
}

// ---------------------- templates ----------------------

func (s *MemoryStore) CreateTemplate(t *model.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id("template")
	cp := *t
	s.templates[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTemplateByID(id int) (*model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTemplates() ([]model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Template{}
	ids := make([]int, 0, len(s.templates))
	for id := range s.templates {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		out = append(out, *s.templates[id])
	}
	return out, nil
}

// ---------------------- enrollments ----------------------

func (s *MemoryStore) BulkCreate(campaignID int, recipientIDs []int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := 0
	for _, rid := range recipientIDs {
		if s.findEnrollment(campaignID, rid) != nil {
			continue
		}
		id := s.id("enrollment")
		now := time.Now()
		s.enrollments[id] = &model.Enrollment{
			ID: id, CampaignID: campaignID, RecipientID: rid,
			Status: model.EnrollmentPending, CreatedAt: now, UpdatedAt: now,
		}
		created++
	}
	return created, nil
}

func (s *MemoryStore) findEnrollment(campaignID, recipientID int) *model.Enrollment {
	for _, e := range s.enrollments {
		if e.CampaignID == campaignID && e.RecipientID == recipientID {
			return e
		}
	}
	return nil
}

func (s *MemoryStore) ListByStatus(campaignID int, status string) ([]model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Enrollment{}
	ids := make([]int, 0, len(s.enrollments))
	for id := range s.enrollments {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		e := s.enrollments[id]
		if e.CampaignID == campaignID && e.Status == status {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateStatusIf(id int, to, from string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	e.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) CountByStatus(campaignID int) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := map[string]int{
		model.EnrollmentPending:  0,
		model.EnrollmentSent:     0,
		model.EnrollmentFailed:   0,
		model.EnrollmentOptedOut: 0,
	}
	for _, e := range s.enrollments {
		if e.CampaignID == campaignID {
			stats[e.Status]++
		}
	}
	return stats, nil
}

func (s *MemoryStore) ResetFailed(campaignID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.enrollments {
		if e.CampaignID != campaignID || e.Status != model.EnrollmentFailed {
			continue
		}
		if r, ok := s.recipients[e.RecipientID]; ok && (r.DoNotContact || r.OptedOut) {
			continue
		}
		e.Status = model.EnrollmentPending
		e.UpdatedAt = time.Now()
		n++
	}
	return n, nil
}

func (s *MemoryStore) MarkOptedOut(recipientID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.enrollments {
		if e.RecipientID == recipientID && e.Status == model.EnrollmentPending {
			e.Status = model.EnrollmentOptedOut
			e.UpdatedAt = time.Now()
		}
	}
	return nil
}

// ---------------------- ledger ----------------------

func (s *MemoryStore) CreateEntry(entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.id("ledger")
	entry.CreatedAt = time.Now()
	if entry.Status == "" {
		entry.Status = model.LedgerPending
	}
	if entry.Direction == "" {
		entry.Direction = model.DirectionOutbound
	}
	cp := *entry
	s.ledger[entry.ID] = &cp
	return nil
}

func (s *MemoryStore) MarkSent(id int, providerMessageID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.ledger[id]
	if !ok || e.ProviderMessageID != nil {
		return nil
	}
	e.Status = model.LedgerSent
	e.ProviderMessageID = &providerMessageID
	e.SentAt = &at
	e.LastError = ""
	return nil
}

func (s *MemoryStore) MarkFailed(id int, lastError string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.ledger[id]; ok {
		e.Status = model.LedgerFailed
		e.LastError = lastError
		e.FailedAt = &at
	}
	return nil
}

func (s *MemoryStore) GetByProviderMessageID(providerMessageID string) (*model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.findByProviderMessageID(providerMessageID)
	if e == nil {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) findByProviderMessageID(pmid string) *model.LedgerEntry {
	for _, e := range s.ledger {
		if e.ProviderMessageID != nil && *e.ProviderMessageID == pmid {
			return e
		}
	}
	return nil
}

func (s *MemoryStore) AdvanceStatus(providerMessageID, status string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.findByProviderMessageID(providerMessageID)
	if e == nil {
		return false, nil
	}
	if model.StatusRank(status) <= model.StatusRank(e.Status) {
		return false, nil
	}
	e.Status = status
	switch status {
	case model.LedgerSent:
		if e.SentAt == nil {
			e.SentAt = &at
		}
	case model.LedgerDelivered:
		if e.DeliveredAt == nil {
			e.DeliveredAt = &at
		}
	case model.LedgerRead:
		if e.ReadAt == nil {
			e.ReadAt = &at
		}
	case model.LedgerFailed:
		if e.FailedAt == nil {
			e.FailedAt = &at
		}
	}
	return true, nil
}

func (s *MemoryStore) RecipientsWithTemplateSend(templateID int) (map[int]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int]bool{}
	for _, e := range s.ledger {
		if e.TemplateID != nil && *e.TemplateID == templateID &&
			e.Direction == model.DirectionOutbound && e.Status != model.LedgerFailed {
			seen[e.RecipientID] = true
		}
	}
	return seen, nil
}

func (s *MemoryStore) CountSentSince(campaignID int, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.ledger {
		if e.CampaignID != nil && *e.CampaignID == campaignID &&
			e.Direction == model.DirectionOutbound &&
			e.SentAt != nil && !e.SentAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CreateInbound(recipientID int, providerMessageID, body string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if providerMessageID != "" && s.findByProviderMessageID(providerMessageID) != nil {
		return nil
	}
	id := s.id("ledger")
	e := &model.LedgerEntry{
		ID: id, RecipientID: recipientID, Direction: model.DirectionInbound,
		Status: model.LedgerDelivered, Payload: body, DeliveredAt: &at, CreatedAt: at,
	}
	if providerMessageID != "" {
		e.ProviderMessageID = &providerMessageID
	}
	s.ledger[id] = e
	return nil
}

// Enrollments returns a snapshot of all enrollments for a campaign in
// enrollment order, for assertions.
func (s *MemoryStore) Enrollments(campaignID int) []model.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.enrollments))
	for id := range s.enrollments {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := []model.Enrollment{}
	for _, id := range ids {
		if s.enrollments[id].CampaignID == campaignID {
			out = append(out, *s.enrollments[id])
		}
	}
	return out
}

// LedgerEntries returns a snapshot of all ledger entries in creation order.
func (s *MemoryStore) LedgerEntries() []model.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.ledger))
	for id := range s.ledger {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := []model.LedgerEntry{}
	for _, id := range ids {
		out = append(out, *s.ledger[id])
	}
	return out
}

// Interface facades. MemoryStore satisfies the campaign and enrollment
// interfaces directly; the rest have colliding method names and get views.

func (s *MemoryStore) CampaignRepo() CampaignRepositoryInterface     { return s }
func (s *MemoryStore) EnrollmentRepo() EnrollmentRepositoryInterface { return s }
func (s *MemoryStore) RecipientRepo() RecipientRepositoryInterface   { return recipientView{s} }
func (s *MemoryStore) TemplateRepo() TemplateRepositoryInterface     { return templateView{s} }
func (s *MemoryStore) LedgerRepo() LedgerRepositoryInterface         { return ledgerView{s} }

type recipientView struct{ s *MemoryStore }

func (v recipientView) GetByID(id int) (*model.Recipient, error)       { return v.s.GetRecipientByID(id) }
func (v recipientView) GetByPhone(phone string) (*model.Recipient, error) { return v.s.GetByPhone(phone) }
func (v recipientView) ListEligible(spec model.TargetSpec) ([]model.Recipient, error) {
	return v.s.ListEligible(spec)
}
func (v recipientView) SetOptedOut(id int, at time.Time) error { return v.s.SetOptedOut(id, at) }
func (v recipientView) SetDoNotContact(id int) error           { return v.s.SetDoNotContact(id) }

type templateView struct{ s *MemoryStore }

func (v templateView) Create(t *model.Template) error          { return v.s.CreateTemplate(t) }
func (v templateView) GetByID(id int) (*model.Template, error) { return v.s.GetTemplateByID(id) }
func (v templateView) List() ([]model.Template, error)         { return v.s.ListTemplates() }

type ledgerView struct{ s *MemoryStore }

func (v ledgerView) Create(entry *model.LedgerEntry) error { return v.s.CreateEntry(entry) }
func (v ledgerView) MarkSent(id int, pmid string, at time.Time) error {
	return v.s.MarkSent(id, pmid, at)
}
func (v ledgerView) MarkFailed(id int, lastError string, at time.Time) error {
	return v.s.MarkFailed(id, lastError, at)
}
func (v ledgerView) GetByProviderMessageID(pmid string) (*model.LedgerEntry, error) {
	return v.s.GetByProviderMessageID(pmid)
}
func (v ledgerView) AdvanceStatus(pmid, status string, at time.Time) (bool, error) {
	return v.s.AdvanceStatus(pmid, status, at)
}
func (v ledgerView) RecipientsWithTemplateSend(templateID int) (map[int]bool, error) {
	return v.s.RecipientsWithTemplateSend(templateID)
}
func (v ledgerView) CountSentSince(campaignID int, since time.Time) (int, error) {
	return v.s.CountSentSince(campaignID, since)
}
func (v ledgerView) CreateInbound(recipientID int, pmid, body string, at time.Time) error {
	return v.s.CreateInbound(recipientID, pmid, body, at)
}

var (
	_ CampaignRepositoryInterface   = (*MemoryStore)(nil)
	_ EnrollmentRepositoryInterface = (*MemoryStore)(nil)
	_ RecipientRepositoryInterface  = recipientView{}
	_ TemplateRepositoryInterface   = templateView{}
	_ LedgerRepositoryInterface     = ledgerView{}
)
