package slots

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
)

var waitlistColumns = []string{"id", "clinic_id", "patient_id", "patient_name", "patient_phone", "requested_doctor_id",
	"appointment_type", "preferred_time_window", "preferred_days", "priority", "status", "created_at"}

func TestSQLWaitlistStoreListActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewSQLWaitlistStore(db)

	created := monday.Add(-time.Hour)
	rows := sqlmock.NewRows(waitlistColumns).
		AddRow("w-1", "clinic-1", "p1", "Ada", "+15550100", "doc-1", "Botox", "morning", []byte("{monday,friday}"), "high", "active", created).
		AddRow("w-2", "clinic-1", "p2", "Grace", "", "", "", "", []byte("{}"), "normal", "active", created.Add(time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta("FROM waitlist_entries")).
		WithArgs("clinic-1", "doc-1", "").
		WillReturnRows(rows)

	entries, err := store.ListActive(context.Background(), "clinic-1", WaitlistFilter{DoctorID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []scheduling.Weekday{scheduling.Monday, scheduling.Friday}, entries[0].PreferredDays)
	assert.Equal(t, scheduling.WindowMorning, entries[0].PreferredTimeWindow)
	assert.Equal(t, scheduling.PriorityHigh, entries[0].Priority)
	assert.Empty(t, entries[1].PreferredDays)
	assert.True(t, entries[1].Active())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLWaitlistStoreCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewSQLWaitlistStore(db)
	store.now = func() time.Time { return monday }

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO waitlist_entries")).
		WithArgs("w-1", "clinic-1", "p1", "", "", "", "", "", sqlmock.AnyArg(), "normal", "active", monday).
		WillReturnResult(sqlmock.NewResult(0, 1))

	saved, err := store.Create(context.Background(), scheduling.WaitlistEntry{
		ID:            "w-1",
		ClinicID:      "clinic-1",
		PatientID:     "p1",
		Priority:      scheduling.PriorityNormal,
		PreferredDays: []scheduling.Weekday{scheduling.Tuesday},
	})
	require.NoError(t, err)
	assert.Equal(t, scheduling.WaitlistStatusActive, saved.Status)
	assert.Equal(t, monday, saved.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLWaitlistStoreUpdateNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewSQLWaitlistStore(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE waitlist_entries")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	_, err = store.Update(context.Background(), scheduling.WaitlistEntry{ID: "w-9", ClinicID: "clinic-1", Status: "booked"})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLWaitlistStoreGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewSQLWaitlistStore(db)

	created := monday.Add(-time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND clinic_id = $2")).
		WithArgs("w-1", "clinic-1").
		WillReturnRows(sqlmock.NewRows(waitlistColumns).
			AddRow("w-1", "clinic-1", "p1", "Ada", "", "", "", "", []byte("{tuesday}"), "low", "booked", created))

	e, err := store.Get(context.Background(), "clinic-1", "w-1")
	require.NoError(t, err)
	assert.Equal(t, scheduling.WaitlistStatusBooked, e.Status)
	assert.Equal(t, []scheduling.Weekday{scheduling.Tuesday}, e.PreferredDays)
	assert.False(t, e.Active())

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND clinic_id = $2")).
		WithArgs("w-9", "clinic-1").
		WillReturnRows(sqlmock.NewRows(waitlistColumns))
	_, err = store.Get(context.Background(), "clinic-1", "w-9")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
