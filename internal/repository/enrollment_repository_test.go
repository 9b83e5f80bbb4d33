package repository

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexlead/nexlead-backend/internal/model"
)

func newEnrollmentRepo(t *testing.T) (*EnrollmentRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &EnrollmentRepository{DB: db}, mock
}

func TestBulkCreateSkipsExistingPairs(t *testing.T) {
	repo, mock := newEnrollmentRepo(t)

	mock.ExpectExec("ON CONFLICT \\(campaign_id, recipient_id\\) DO NOTHING").
		WithArgs(7, pq.Array([]int{1, 2, 3})).
		WillReturnResult(sqlmock.NewResult(0, 2)) // one pair already existed

	n, err := repo.BulkCreate(7, []int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkCreateEmptyListSkipsQuery(t *testing.T) {
	repo, mock := newEnrollmentRepo(t)

	n, err := repo.BulkCreate(7, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusIfLosesRaceCleanly(t *testing.T) {
	repo, mock := newEnrollmentRepo(t)

	mock.ExpectExec("UPDATE enrollments SET status=\\$1").
		WithArgs(model.EnrollmentSent, 5, model.EnrollmentPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.UpdateStatusIf(5, model.EnrollmentSent, model.EnrollmentPending)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCountByStatusZeroFillsAllStatuses(t *testing.T) {
	repo, mock := newEnrollmentRepo(t)

	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\) FROM enrollments").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("sent", 4).
			AddRow("failed", 1))

	stats, err := repo.CountByStatus(7)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"pending":   0,
		"sent":      4,
		"failed":    1,
		"opted_out": 0,
	}, stats)
}

func TestResetFailedExcludesBlockedRecipients(t *testing.T) {
	repo, mock := newEnrollmentRepo(t)

	mock.ExpectExec("do_not_contact=TRUE OR opted_out=TRUE").
		WithArgs(7).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ResetFailed(7)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMarkOptedOutOnlyTouchesPending(t *testing.T) {
	repo, mock := newEnrollmentRepo(t)

	mock.ExpectExec("WHERE recipient_id=\\$1 AND status='pending'").
		WithArgs(9).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.MarkOptedOut(9))
	assert.NoError(t, mock.ExpectationsWereMet())
}
