package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutUpsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO jobs").WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewStore(db)
	j := Job{
		ID:          "job-1",
		Queue:       QueueLivenessMonitoring,
		Type:        JobTypeLiveness,
		Payload:     json.RawMessage(`{"proposalId":"p1"}`),
		RunAt:       time.Now(),
		MaxAttempts: 3,
		BackoffBase: 5 * time.Second,
		State:       StateDelayed,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, store.Put(context.Background(), j))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDeleteRemovesRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM jobs").WithArgs("job-1").WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewStore(db)
	require.NoError(t, store.Delete(context.Background(), "job-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLoadPendingDecodesRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "queue", "job_type", "payload", "run_at", "attempts",
		"max_attempts", "backoff_base", "state", "created_at", "last_error",
	}).AddRow("job-1", QueueLivenessMonitoring, JobTypeLiveness, []byte(`{"proposalId":"p1"}`),
		now, 0, 3, int64(5*time.Second), string(StateDelayed), now, "")

	mock.ExpectQuery("SELECT .* FROM jobs").WillReturnRows(rows)

	store := NewStore(db)
	jobs, err := store.LoadPending(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-1", jobs[0].ID)
	assert.Equal(t, StateDelayed, jobs[0].State)
	assert.Equal(t, 5*time.Second, jobs[0].BackoffBase)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaExecutesCreateTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobs").WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(db)
	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
