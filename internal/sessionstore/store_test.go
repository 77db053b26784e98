package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rapidaai/mesh/internal/commons"
	"github.com/rapidaai/mesh/internal/connectors"
)

func newTestStore(t *testing.T) (Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	logger, err := commons.NewDevelopmentLogger()
	require.NoError(t, err)

	connector := connectors.NewPostgresConnectorFromDB(gormDB)
	return NewStore(connector, logger), mock
}

func TestCreate_InsertsPendingSession(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	// created_date has a database-side default, so gorm's postgres
	// dialect issues the INSERT with RETURNING, i.e. as a query.
	mock.ExpectQuery(`INSERT INTO "mesh_sessions"`).
		WillReturnRows(sqlmock.NewRows([]string{"created_date"}).AddRow(time.Now()))
	mock.ExpectCommit()

	sess, err := store.Create(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess.SessionID)
	assert.Equal(t, StatusPending, sess.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaim_SucceedsOnPendingSession(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "mesh_sessions" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT \* FROM "mesh_sessions"`).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "status", "utterance_count"}).
			AddRow("sess-1", StatusClaimed, 0))

	sess, err := store.Claim(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, StatusClaimed, sess.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaim_FailsWhenAlreadyClaimed(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "mesh_sessions" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	_, err := store.Claim(context.Background(), "sess-1")
	require.ErrorIs(t, err, ErrAlreadyClaimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_ReturnsNotFoundWhenMissing(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "mesh_sessions"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.Delete(context.Background(), "sess-missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
