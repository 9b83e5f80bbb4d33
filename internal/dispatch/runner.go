// Package dispatch owns the campaign state machine and the sequential send
// loop. One goroutine per running campaign; sends within a campaign are
// strictly sequential to respect the provider's per-account rate limit.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	appErrors "github.com/nexlead/nexlead-backend/internal/errors"
	"github.com/nexlead/nexlead-backend/internal/model"
	"github.com/nexlead/nexlead-backend/internal/pacing"
	"github.com/nexlead/nexlead-backend/internal/provider"
	"github.com/nexlead/nexlead-backend/internal/repository"
	"github.com/nexlead/nexlead-backend/internal/service"
	"github.com/nexlead/nexlead-backend/internal/throttle"
)

// Runner launches and controls dispatch iterations.
type Runner struct {
	Campaigns   repository.CampaignRepositoryInterface
	Recipients  repository.RecipientRepositoryInterface
	Enrollments repository.EnrollmentRepositoryInterface
	Ledger      repository.LedgerRepositoryInterface
	Templates   repository.TemplateRepositoryInterface
	Provider    provider.Client
	Pacing      *pacing.Controller
	Registry    *Registry

	// BreakThreshold is the consecutive-throttle circuit-break threshold;
	// zero means throttle.DefaultBreakThreshold.
	BreakThreshold int

	// Sleep is swappable in tests. Nil means time.Sleep.
	Sleep func(time.Duration)
}

// StartResult is the immediate acknowledgment for start/resend/retry: a
// campaign snapshot and the number of enrollments affected. It is not a
// completion signal; delivery happens detached from the caller.
type StartResult struct {
	Campaign *model.Campaign `json:"campaign"`
	Affected int             `json:"affected"`
	run      *Run
}

// Done returns a channel closed when the launched iteration exits. If no
// iteration was launched it is already closed.
func (res *StartResult) Done() <-chan struct{} {
	if res.run == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return res.run.Done()
}

func (r *Runner) sleep(d time.Duration) {
	if r.Sleep != nil {
		r.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Start resolves the campaign's targets, materializes enrollments, moves the
// campaign to running and launches the dispatch iteration. The caller gets
// the enrolled count back immediately.
func (r *Runner) Start(campaignID int) (*StartResult, error) {
	c, err := r.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if !model.Startable(c.Status) {
		return nil, appErrors.NewInvalidState(campaignID, c.Status, "start")
	}

	tpl, err := r.Templates.GetByID(c.TemplateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, fmt.Errorf("campaign %d references missing template %d", campaignID, c.TemplateID)
	}

	recipients, err := r.Recipients.ListEligible(c.TargetSpec)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(recipients))
	if c.SkipDuplicateTemplate {
		already, err := r.Ledger.RecipientsWithTemplateSend(c.TemplateID)
		if err != nil {
			return nil, err
		}
		for _, rec := range recipients {
			if !already[rec.ID] {
				ids = append(ids, rec.ID)
			}
		}
	} else {
		for _, rec := range recipients {
			ids = append(ids, rec.ID)
		}
	}

	// A paused campaign may have nothing new to enroll but still carry
	// pending enrollments from the interrupted run.
	if len(ids) == 0 {
		stats, err := r.Enrollments.CountByStatus(campaignID)
		if err != nil {
			return nil, err
		}
		if stats[model.EnrollmentPending] == 0 {
			return nil, appErrors.NewNoEligibleRecipients(campaignID)
		}
	}

	enrolled, err := r.Enrollments.BulkCreate(campaignID, ids)
	if err != nil {
		return nil, err
	}

	run, ok := r.Registry.Add(campaignID)
	if !ok {
		return nil, appErrors.NewInvalidState(campaignID, c.Status, "start")
	}
	if ok, err := r.Campaigns.MarkRunning(campaignID); err != nil || !ok {
		r.Registry.Remove(campaignID)
		if err != nil {
			return nil, err
		}
		return nil, appErrors.NewInvalidState(campaignID, c.Status, "start")
	}

	profile := r.Pacing.Profile(c.PacingProfile)
	log.Printf("🚀 dispatching campaign %d (%s) with profile %s, %d newly enrolled",
		campaignID, c.Name, profile.Name, enrolled)
	go r.dispatch(run, campaignID, tpl, profile)

	snapshot, err := r.Campaigns.GetByID(campaignID)
	if err != nil {
		snapshot = c
	}
	return &StartResult{Campaign: snapshot, Affected: enrolled, run: run}, nil
}

// Pause requests a cooperative stop. The loop observes it at the next
// per-recipient check, bounded by one pacing delay; an in-flight send is
// always allowed to finish and be recorded first.
func (r *Runner) Pause(campaignID int) (*model.Campaign, error) {
	ok, err := r.Campaigns.SetStatusIf(campaignID, model.CampaignPaused, model.CampaignRunning)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, r.invalidState(campaignID, "pause")
	}
	return r.Campaigns.GetByID(campaignID)
}

// Resume moves a paused campaign back to running and, if its previous
// iteration already exited, relaunches dispatch for the remaining pending
// enrollments. Nothing is re-sent.
func (r *Runner) Resume(campaignID int) (*StartResult, error) {
	ok, err := r.Campaigns.SetStatusIf(campaignID, model.CampaignRunning, model.CampaignPaused)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, r.invalidState(campaignID, "resume")
	}
	return r.relaunch(campaignID)
}

// Cancel terminates a running or paused campaign. Irreversible: a cancelled
// campaign cannot be resumed.
func (r *Runner) Cancel(campaignID int) (*model.Campaign, error) {
	ok, err := r.Campaigns.SetStatusIf(campaignID, model.CampaignCancelled,
		model.CampaignRunning, model.CampaignPaused)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, r.invalidState(campaignID, "cancel")
	}
	return r.Campaigns.GetByID(campaignID)
}

// ResendPending relaunches the dispatch iteration for enrollments still
// pending, without re-materializing the target set.
func (r *Runner) ResendPending(campaignID int) (*StartResult, error) {
	ok, err := r.Campaigns.SetStatusIf(campaignID, model.CampaignRunning,
		model.CampaignRunning, model.CampaignPaused)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, r.invalidState(campaignID, "resend")
	}
	return r.relaunch(campaignID)
}

// RetryFailed moves failed enrollments back to pending (skipping recipients
// now flagged do-not-contact or opted out) and relaunches dispatch. A
// completed campaign is reopened by this operation.
func (r *Runner) RetryFailed(campaignID int) (*StartResult, error) {
	ok, err := r.Campaigns.SetStatusIf(campaignID, model.CampaignRunning,
		model.CampaignRunning, model.CampaignPaused, model.CampaignCompleted)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, r.invalidState(campaignID, "retry failed sends for")
	}
	reset, err := r.Enrollments.ResetFailed(campaignID)
	if err != nil {
		return nil, err
	}
	res, err := r.relaunch(campaignID)
	if err != nil {
		return nil, err
	}
	res.Affected = reset
	return res, nil
}

func (r *Runner) invalidState(campaignID int, op string) error {
	c, err := r.Campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}
	return appErrors.NewInvalidState(campaignID, c.Status, op)
}

// relaunch starts a dispatch iteration for whatever is pending on an
// already-running campaign. If an iteration is still in flight it will pick
// the work up itself, so relaunch is a no-op then.
func (r *Runner) relaunch(campaignID int) (*StartResult, error) {
	c, err := r.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := r.Enrollments.CountByStatus(campaignID)
	if err != nil {
		return nil, err
	}
	pending := stats[model.EnrollmentPending]

	res := &StartResult{Campaign: c, Affected: pending}
	if pending == 0 {
		// Nothing left to do; close the campaign out instead of leaving
		// it in running with no iteration behind it.
		if ok, err := r.Campaigns.MarkCompleted(campaignID); err == nil && ok {
			if snap, err := r.Campaigns.GetByID(campaignID); err == nil {
				res.Campaign = snap
			}
		}
		return res, nil
	}

	run, ok := r.Registry.Add(campaignID)
	if !ok {
		return res, nil
	}
	tpl, err := r.Templates.GetByID(c.TemplateID)
	if err != nil || tpl == nil {
		r.Registry.Remove(campaignID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("campaign %d references missing template %d", campaignID, c.TemplateID)
	}
	profile := r.Pacing.Profile(c.PacingProfile)
	go r.dispatch(run, campaignID, tpl, profile)
	res.run = run
	return res, nil
}

// dispatch is the detached iteration: one recipient at a time, paced,
// re-checking campaign status before every send and after every sleep.
func (r *Runner) dispatch(run *Run, campaignID int, tpl *model.Template, profile pacing.Profile) {
	defer r.Registry.Remove(campaignID)

	ctx := context.Background()
	cls := throttle.NewClassifier(r.BreakThreshold)

	sentToday := 0
	if profile.DailyCap > 0 {
		startOfDay := time.Now().Truncate(24 * time.Hour)
		n, err := r.Ledger.CountSentSince(campaignID, startOfDay)
		if err != nil {
			log.Printf("⚠️ campaign %d: could not seed daily-cap counter: %v", campaignID, err)
		} else {
			sentToday = n
		}
	}

	pending, err := r.Enrollments.ListByStatus(campaignID, model.EnrollmentPending)
	if err != nil {
		log.Printf("⚠️ campaign %d: could not list pending enrollments: %v", campaignID, err)
		return
	}

	for i, enr := range pending {
		cur, err := r.Campaigns.GetByID(campaignID)
		if err != nil {
			log.Printf("⚠️ campaign %d: status re-read failed, halting: %v", campaignID, err)
			return
		}
		if cur.Status != model.CampaignRunning {
			log.Printf("🛑 campaign %d is %s, halting dispatch", campaignID, cur.Status)
			return
		}
		if profile.DailyCap > 0 && sentToday >= profile.DailyCap {
			r.pauseWithReason(campaignID, fmt.Sprintf(
				"daily cap of %d messages reached for pacing profile %q; campaign paused until the next day (warm-up policy, not an error)",
				profile.DailyCap, profile.Name))
			return
		}

		rec, err := r.Recipients.GetByID(enr.RecipientID)
		if err != nil {
			log.Printf("⚠️ campaign %d: fetch recipient %d: %v", campaignID, enr.RecipientID, err)
			continue
		}
		if rec == nil {
			r.Enrollments.UpdateStatusIf(enr.ID, model.EnrollmentFailed, model.EnrollmentPending)
			continue
		}
		// Opt-out may have landed after enrollment.
		if !rec.Contactable() {
			r.Enrollments.UpdateStatusIf(enr.ID, model.EnrollmentOptedOut, model.EnrollmentPending)
			continue
		}

		params := service.ResolveParams(tpl, rec)
		tplID := tpl.ID
		entry := &model.LedgerEntry{
			RecipientID: rec.ID,
			CampaignID:  &campaignID,
			TemplateID:  &tplID,
			Direction:   model.DirectionOutbound,
			Status:      model.LedgerPending,
			Payload:     service.RenderTemplate(tpl.Body, params),
		}
		if err := r.Ledger.Create(entry); err != nil {
			// Enrollment stays pending; a later run picks it up.
			log.Printf("⚠️ campaign %d: create ledger entry for recipient %d: %v", campaignID, rec.ID, err)
			continue
		}

		res, sendErr := r.Provider.SendTemplate(ctx, rec.Phone, tpl.Name, params)
		outcome := cls.Classify(sendErr)

		if outcome == throttle.RetryableThrottle && !cls.Tripped() {
			wait := pacing.RetryWait(profile)
			log.Printf("⏳ campaign %d: provider throttled send to recipient %d, retrying once in %s",
				campaignID, rec.ID, wait)
			r.sleep(wait)

			cur, err = r.Campaigns.GetByID(campaignID)
			if err != nil || cur.Status != model.CampaignRunning {
				r.Ledger.MarkFailed(entry.ID, "throttled, run halted before retry", time.Now())
				log.Printf("🛑 campaign %d: halted during throttle wait", campaignID)
				return
			}
			res, sendErr = r.Provider.SendTemplate(ctx, rec.Phone, tpl.Name, params)
			outcome = cls.Classify(sendErr)
		}

		now := time.Now()
		switch outcome {
		case throttle.Success:
			r.Ledger.MarkSent(entry.ID, res.MessageID, now)
			r.Enrollments.UpdateStatusIf(enr.ID, model.EnrollmentSent, model.EnrollmentPending)
			r.Campaigns.IncrementCounters(campaignID, 1, 0)
			sentToday++
		case throttle.PermanentRecipientFailure:
			r.Ledger.MarkFailed(entry.ID, sendErr.Error(), now)
			r.Enrollments.UpdateStatusIf(enr.ID, model.EnrollmentFailed, model.EnrollmentPending)
			r.Recipients.SetDoNotContact(rec.ID)
			r.Campaigns.IncrementCounters(campaignID, 0, 1)
			log.Printf("⚠️ campaign %d: recipient %d unreachable, flagged do-not-contact", campaignID, rec.ID)
		default:
			r.Ledger.MarkFailed(entry.ID, sendErr.Error(), now)
			r.Enrollments.UpdateStatusIf(enr.ID, model.EnrollmentFailed, model.EnrollmentPending)
			r.Campaigns.IncrementCounters(campaignID, 0, 1)
		}

		if cls.Tripped() {
			r.pauseWithReason(campaignID, fmt.Sprintf(
				"circuit breaker: %d consecutive throttle responses from the provider (threshold %d); the account is being rate-limited globally, resume once limits recover",
				cls.Consecutive(), cls.Threshold()))
			return
		}

		if i < len(pending)-1 {
			r.sleep(r.Pacing.NextDelay(profile))
		}
	}

	stats, err := r.Enrollments.CountByStatus(campaignID)
	if err != nil {
		log.Printf("⚠️ campaign %d: completion check failed: %v", campaignID, err)
		return
	}
	if stats[model.EnrollmentPending] == 0 {
		if ok, err := r.Campaigns.MarkCompleted(campaignID); err == nil && ok {
			log.Printf("✅ campaign %d completed", campaignID)
		}
	}
}

func (r *Runner) pauseWithReason(campaignID int, reason string) {
	ok, err := r.Campaigns.SetStatusIf(campaignID, model.CampaignPaused, model.CampaignRunning)
	if err != nil {
		log.Printf("⚠️ campaign %d: pause failed: %v", campaignID, err)
		return
	}
	if ok {
		log.Printf("🛑 campaign %d paused: %s", campaignID, reason)
	}
}
