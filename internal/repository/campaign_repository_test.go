package repository

import (
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/nexlead/nexlead-backend/internal/errors"
	"github.com/nexlead/nexlead-backend/internal/model"
)

func newCampaignRepo(t *testing.T) (*CampaignRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &CampaignRepository{DB: db}, mock
}

func campaignRow(id int, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "channel", "status", "template_id", "target_spec", "pacing_profile",
		"skip_duplicate_template", "sent_count", "failed_count", "delivered_count", "read_count",
		"created_by", "scheduled_at", "started_at", "completed_at", "created_at", "updated_at",
	}).AddRow(id, "launch", "sms", status, 1, []byte(`{"kind":"all"}`), "normal",
		true, 0, 0, 0, 0, "ops", nil, nil, nil, now, nil)
}

func TestCampaignGetByID(t *testing.T) {
	repo, mock := newCampaignRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM campaigns WHERE id=\\$1").
		WithArgs(7).
		WillReturnRows(campaignRow(7, model.CampaignDraft))

	c, err := repo.GetByID(7)
	require.NoError(t, err)
	assert.Equal(t, 7, c.ID)
	assert.Equal(t, model.TargetAll, c.TargetSpec.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignGetByIDNotFound(t *testing.T) {
	repo, mock := newCampaignRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM campaigns WHERE id=\\$1").
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(99)
	var notFound *appErrors.ErrCampaignNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, 99, notFound.CampaignID)
}

func TestSetStatusIfGuardsOnCurrentStatus(t *testing.T) {
	repo, mock := newCampaignRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=ANY($3)`)).
		WithArgs(model.CampaignPaused, 7, pq.Array([]string{model.CampaignRunning})).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.SetStatusIf(7, model.CampaignPaused, model.CampaignRunning)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatusIfReportsLostRace(t *testing.T) {
	repo, mock := newCampaignRepo(t)

	mock.ExpectExec("UPDATE campaigns SET status=").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.SetStatusIf(7, model.CampaignCancelled, model.CampaignRunning, model.CampaignPaused)
	require.NoError(t, err)
	assert.False(t, ok, "no rows affected means the transition did not apply")
}

func TestMarkRunningStampsStartedAtOnce(t *testing.T) {
	repo, mock := newCampaignRepo(t)

	mock.ExpectExec("SET status=\\$1, started_at=COALESCE\\(started_at, NOW\\(\\)\\)").
		WithArgs(model.CampaignRunning, 7,
			pq.Array([]string{model.CampaignDraft, model.CampaignScheduled, model.CampaignPaused})).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkRunning(7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCompletedOnlyFromRunning(t *testing.T) {
	repo, mock := newCampaignRepo(t)

	mock.ExpectExec("SET status=\\$1, completed_at=NOW\\(\\)").
		WithArgs(model.CampaignCompleted, 7, model.CampaignRunning).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkCompleted(7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIncrementCounters(t *testing.T) {
	repo, mock := newCampaignRepo(t)

	mock.ExpectExec("SET sent_count=sent_count\\+\\$1, failed_count=failed_count\\+\\$2").
		WithArgs(1, 0, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.IncrementCounters(7, 1, 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecomputeDeliveryCountersDerivesFromLedger(t *testing.T) {
	repo, mock := newCampaignRepo(t)

	mock.ExpectExec("delivered_count=\\(SELECT COUNT\\(\\*\\) FROM ledger_entries").
		WithArgs(7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecomputeDeliveryCounters(7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDueScheduled(t *testing.T) {
	repo, mock := newCampaignRepo(t)
	now := time.Now()

	mock.ExpectQuery("WHERE status=\\$1 AND scheduled_at IS NOT NULL AND scheduled_at <= \\$2").
		WithArgs(model.CampaignScheduled, now).
		WillReturnRows(campaignRow(3, model.CampaignScheduled))

	due, err := repo.ListDueScheduled(now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 3, due[0].ID)
}
