package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/lunahq/bulkops-api/internal/models"
)

func approvalRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "object_type", "mutation", "reason", "estimated_count", "status", "requested_by", "requested_at", "reviewed_by", "reviewed_at", "note"})
}

func TestApprovalRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApprovalRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approval_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	request := &models.ApprovalRequest{
		ObjectType:     "Opportunity",
		Mutation:       []byte(`{"objectType":"Opportunity"}`),
		Reason:         "estimated 5000 records exceeds the approval threshold of 1000",
		EstimatedCount: 5000,
		RequestedBy:    "user-1",
	}
	require.NoError(t, repo.Create(context.Background(), request))
	require.NotEmpty(t, request.ID)
	require.Equal(t, models.ApprovalStatusPending, request.Status)

	rows := approvalRows().
		AddRow(request.ID, "Opportunity", []byte(`{}`), request.Reason, 5000, "PENDING", "user-1", time.Now(), nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, object_type, mutation")).
		WithArgs(request.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, request.ID, found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApprovalRepository(db)
	rows := approvalRows().
		AddRow("appr-1", "Opportunity", []byte(`{}`), "threshold", 5000, "PENDING", "user-1", time.Now(), nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, object_type, mutation")).
		WithArgs("PENDING", "Opportunity").
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), models.ApprovalFilter{
		Status:     []models.ApprovalStatus{models.ApprovalStatusPending},
		ObjectType: "Opportunity",
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryUpdateStatusGuarded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApprovalRepository(db)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE approval_requests")).
		WithArgs("APPROVED", "admin-1", now, nil, "appr-1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	err := repo.UpdateStatus(context.Background(), UpdateApprovalParams{
		ID:         "appr-1",
		Status:     models.ApprovalStatusApproved,
		Expect:     models.ApprovalStatusPending,
		ReviewedBy: "admin-1",
		ReviewedAt: now,
	})
	require.NoError(t, err)

	// A second transition with a stale expectation affects no rows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approval_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.UpdateStatus(context.Background(), UpdateApprovalParams{
		ID:         "appr-1",
		Status:     models.ApprovalStatusExecuted,
		Expect:     models.ApprovalStatusPending,
		ReviewedBy: "admin-1",
		ReviewedAt: now,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
