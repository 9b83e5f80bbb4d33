package repository

import (
	"database/sql/driver"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexlead/nexlead-backend/internal/model"
)

func newLedgerRepo(t *testing.T) (*LedgerRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &LedgerRepository{DB: db}, mock
}

func TestLedgerCreateDefaultsDirectionAndStatus(t *testing.T) {
	repo, mock := newLedgerRepo(t)

	mock.ExpectQuery("INSERT INTO ledger_entries").
		WithArgs(1, nil, nil, model.DirectionOutbound, model.LedgerPending, "hello", "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	entry := &model.LedgerEntry{RecipientID: 1, Payload: "hello"}
	require.NoError(t, repo.Create(entry))
	assert.Equal(t, 5, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSentOnlyWhenNoProviderMessageID(t *testing.T) {
	repo, mock := newLedgerRepo(t)
	at := time.Now()

	mock.ExpectExec("WHERE id=\\$3 AND provider_message_id IS NULL").
		WithArgs("msg-1", at, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSent(5, "msg-1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceStatusGuardsOnEarlierStatuses(t *testing.T) {
	repo, mock := newLedgerRepo(t)
	at := time.Now()

	// The guard array must contain every status that ranks before
	// "delivered" and nothing else.
	mock.ExpectExec("SET status=\\$1, delivered_at=COALESCE\\(delivered_at, \\$2\\)").
		WithArgs(model.LedgerDelivered, at, "msg-1", earlierStatusesArg{model.LedgerDelivered}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.AdvanceStatus("msg-1", model.LedgerDelivered, at)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceStatusReplayReportsNoChange(t *testing.T) {
	repo, mock := newLedgerRepo(t)

	mock.ExpectExec("SET status=\\$1, read_at=COALESCE\\(read_at, \\$2\\)").
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := repo.AdvanceStatus("msg-1", model.LedgerRead, time.Now())
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestAdvanceStatusRejectsUnknownStatus(t *testing.T) {
	repo, _ := newLedgerRepo(t)

	_, err := repo.AdvanceStatus("msg-1", "teleported", time.Now())
	assert.Error(t, err)
}

func TestRecipientsWithTemplateSendExcludesFailed(t *testing.T) {
	repo, mock := newLedgerRepo(t)

	mock.ExpectQuery("SELECT DISTINCT recipient_id FROM ledger_entries").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"recipient_id"}).AddRow(1).AddRow(4))

	seen, err := repo.RecipientsWithTemplateSend(3)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true, 4: true}, seen)
}

func TestCountSentSince(t *testing.T) {
	repo, mock := newLedgerRepo(t)
	since := time.Now().Truncate(24 * time.Hour)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM ledger_entries").
		WithArgs(7, since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := repo.CountSentSince(7, since)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestCreateInboundNullMessageID(t *testing.T) {
	repo, mock := newLedgerRepo(t)
	at := time.Now()

	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(1, nil, "hello", at, at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.CreateInbound(1, "", "hello", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// earlierStatusesArg matches a pq.Array argument containing exactly the
// statuses that rank before the target, in any order.
type earlierStatusesArg struct {
	target string
}

func (m earlierStatusesArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	// pq serializes a string array to a literal like {"pending","sent"}.
	inner := strings.Trim(s, "{}")
	got := map[string]bool{}
	for _, part := range strings.Split(inner, ",") {
		if part = strings.Trim(part, `"`); part != "" {
			got[part] = true
		}
	}

	want := map[string]bool{}
	for _, st := range model.StatusesBefore(m.target) {
		want[st] = true
	}
	if len(got) != len(want) {
		return false
	}
	for k := range want {
		if !got[k] {
			return false
		}
	}
	return true
}
