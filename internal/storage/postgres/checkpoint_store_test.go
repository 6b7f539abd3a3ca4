package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docprobe/internal/checkpoint"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	return store, mock
}

func TestSaveUpsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	cp := checkpoint.New("bruteforce-9-progress", checkpoint.ModeLinear)
	cp.LastUpdated = time.Unix(1700000000, 0).UTC()
	cp.MarkFound(checkpoint.Record{ID: "EFTA00000001.mp4", Size: 12})

	payload, err := json.Marshal(cp)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO checkpoints").
		WithArgs(cp.RunKey, "linear", payload, cp.LastUpdated).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Save(context.Background(), cp))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadDecodesPayload(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	payload := []byte(`{"run_key":"dl","mode":"download","found_files":[{"filename":"EFTA00000002.mp4"}]}`)
	mock.ExpectQuery("SELECT payload FROM checkpoints").
		WithArgs("dl").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))

	cp, err := store.Load(context.Background(), "dl")
	require.NoError(t, err)
	require.Equal(t, checkpoint.ModeDownload, cp.Mode)
	require.Len(t, cp.Found, 1)
	require.NotNil(t, cp.Failed)
	require.NotNil(t, cp.Skipped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadMissingRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT payload FROM checkpoints").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Load(context.Background(), "nope")
	require.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestLoadQueryError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT payload FROM checkpoints").
		WithArgs("k").
		WillReturnError(errors.New("connection reset"))

	_, err := store.Load(context.Background(), "k")
	require.ErrorContains(t, err, "connection reset")
	require.NotErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestEnsureSchemaAndDelete(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS checkpoints").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("DELETE FROM checkpoints").
		WithArgs("k").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, store.Delete(context.Background(), "k"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWithPool(mock, "bad;table")
	require.ErrorContains(t, err, "invalid table name")

	_, err = New(context.Background(), Config{})
	require.ErrorContains(t, err, "dsn is required")
}

func TestSaveRequiresRunKey(t *testing.T) {
	t.Parallel()

	store, _ := newMockStore(t)
	require.Error(t, store.Save(context.Background(), &checkpoint.Checkpoint{}))
}
