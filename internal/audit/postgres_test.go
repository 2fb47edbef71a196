package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectPing()
	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestNewPostgresStore_NilConnection(t *testing.T) {
	_, err := NewPostgresStore(nil)
	require.Error(t, err)
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("INSERT INTO evaluations").
		WithArgs("PID-001", "Ozemra", "Payer_A", true, false,
			`["Diagnosis criteria met: E11.9"]`, `[]`, "PA-12345", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))

	entry := &Entry{
		PatientID:             "PID-001",
		DrugName:              "Ozemra",
		PayerID:               "Payer_A",
		AuthorizationRequired: true,
		MetCriteria:           []string{"Diagnosis criteria met: E11.9"},
		TrackingID:            "PA-12345",
	}

	require.NoError(t, store.Save(ctx, entry))
	assert.Equal(t, int64(7), entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	columns := []string{
		"id", "patient_id", "drug_name", "payer_id",
		"authorization_required", "gaps_found",
		"met_criteria", "missing_criteria", "tracking_id", "created_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM evaluations").
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(2), "PID-002", "Ozemra", "Payer_A", true, true,
				`[]`, `["Missing required diagnosis: E11.9"]`, "", time.Now()).
			AddRow(int64(1), "PID-001", "Ozemra", "Payer_A", true, false,
				`["Diagnosis criteria met: E11.9"]`, `[]`, "PA-12345", time.Now()))

	entries, err := store.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "PID-002", entries[0].PatientID)
	assert.Equal(t, []string{"Missing required diagnosis: E11.9"}, entries[0].MissingCriteria)
	assert.Equal(t, "PA-12345", entries[1].TrackingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListByPatient(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	columns := []string{
		"id", "patient_id", "drug_name", "payer_id",
		"authorization_required", "gaps_found",
		"met_criteria", "missing_criteria", "tracking_id", "created_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM evaluations WHERE patient_id").
		WithArgs("PID-001", 10, 0).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(1), "PID-001", "Ozemra", "Payer_A", true, false,
				`["Failed therapy criteria met: Metformin"]`, `[]`, "PA-12345", time.Now()))

	entries, err := store.ListByPatient(ctx, "PID-001", 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"Failed therapy criteria met: Metformin"}, entries[0].MetCriteria)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Count(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
