package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mtb-case-api/internal/models"
	"github.com/noah-isme/mtb-case-api/pkg/database"
)

var boardRowColumns = []string{"id", "owner_id", "name", "join_code", "created_at"}

func TestBoardRepositoryCreateSurfacesOwnerConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBoardRepository(db)

	mock.ExpectExec("INSERT INTO mtbs").
		WillReturnError(&pq.Error{Code: "23505", Constraint: BoardOwnerConstraint})

	err := repo.Create(context.Background(), &models.Board{OwnerID: "user-1", Name: "Thoracic", JoinCode: "ABCD2345"})
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err, BoardOwnerConstraint))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBoardRepositoryFindByJoinCode(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBoardRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM mtbs WHERE join_code = $1 LIMIT 1")).
		WithArgs("ABCD2345").
		WillReturnRows(sqlmock.NewRows(boardRowColumns).AddRow("board-1", "user-1", "Thoracic", "ABCD2345", now))

	board, err := repo.FindByJoinCode(context.Background(), "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, "board-1", board.ID)
	assert.NotNil(t, board.CaseIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBoardRepositoryFindByOwnerNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBoardRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM mtbs WHERE owner_id = $1")).WithArgs("user-9").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByOwner(context.Background(), "user-9")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBoardRepositoryListCaseIDs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBoardRepository(db)

	mock.ExpectQuery("SELECT case_id FROM mtb_cases").WithArgs("board-1").
		WillReturnRows(sqlmock.NewRows([]string{"case_id"}).AddRow("case-2").AddRow("case-1"))

	ids, err := repo.ListCaseIDs(context.Background(), "board-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"case-2", "case-1"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBoardRepositoryRemoveMemberReportsMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBoardRepository(db)

	mock.ExpectExec("DELETE FROM mtb_members").WithArgs("board-1", "user-2").WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.RemoveMember(context.Background(), "board-1", "user-2")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBoardRepositoryShareCaseIsIdempotent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBoardRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (mtb_id, case_id) DO NOTHING")).
		WithArgs("board-1", "case-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.ShareCase(context.Background(), "board-1", "case-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
