package slots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
)

// SQLWaitlistStore persists waitlist entries through database/sql.
type SQLWaitlistStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLWaitlistStore(db *sql.DB) *SQLWaitlistStore {
	if db == nil {
		panic("slots: sql db required")
	}
	return &SQLWaitlistStore{db: db, now: time.Now}
}

const waitlistSelect = `
		SELECT id, clinic_id, patient_id, patient_name, patient_phone, requested_doctor_id,
		       appointment_type, preferred_time_window, preferred_days, priority, status, created_at
		FROM waitlist_entries`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWaitlistEntry(row rowScanner) (scheduling.WaitlistEntry, error) {
	var (
		e      scheduling.WaitlistEntry
		window string
		days   []string
		prio   string
	)
	if err := row.Scan(&e.ID, &e.ClinicID, &e.PatientID, &e.PatientName, &e.PatientPhone, &e.RequestedDoctorID,
		&e.AppointmentType, &window, pq.Array(&days), &prio, &e.Status, &e.CreatedAt); err != nil {
		return scheduling.WaitlistEntry{}, err
	}
	e.PreferredTimeWindow = scheduling.TimeWindow(window)
	e.Priority = scheduling.Priority(prio)
	for _, d := range days {
		e.PreferredDays = append(e.PreferredDays, scheduling.Weekday(d))
	}
	return e, nil
}

// ListActive returns active entries oldest first. Empty filter fields match
// everything; entries without a requested doctor or type match any filter.
func (s *SQLWaitlistStore) ListActive(ctx context.Context, clinicID string, filter WaitlistFilter) ([]scheduling.WaitlistEntry, error) {
	rows, err := s.db.QueryContext(ctx, waitlistSelect+`
		WHERE clinic_id = $1 AND status = 'active'
		  AND ($2 = '' OR requested_doctor_id = '' OR requested_doctor_id = $2)
		  AND ($3 = '' OR appointment_type = '' OR LOWER(appointment_type) = LOWER($3))
		ORDER BY created_at ASC, id ASC`, clinicID, filter.DoctorID, filter.AppointmentType)
	if err != nil {
		return nil, fmt.Errorf("slots: query waitlist: %w", err)
	}
	defer rows.Close()

	var out []scheduling.WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("slots: scan waitlist: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("slots: iterate waitlist: %w", err)
	}
	return out, nil
}

// Get returns one entry of the clinic in any status.
func (s *SQLWaitlistStore) Get(ctx context.Context, clinicID, entryID string) (scheduling.WaitlistEntry, error) {
	row := s.db.QueryRowContext(ctx, waitlistSelect+`
		WHERE id = $1 AND clinic_id = $2`, entryID, clinicID)
	e, err := scanWaitlistEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return scheduling.WaitlistEntry{}, ErrNotFound
	}
	if err != nil {
		return scheduling.WaitlistEntry{}, fmt.Errorf("slots: get waitlist entry: %w", err)
	}
	return e, nil
}

func (s *SQLWaitlistStore) Create(ctx context.Context, e scheduling.WaitlistEntry) (scheduling.WaitlistEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = scheduling.WaitlistStatusActive
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO waitlist_entries (id, clinic_id, patient_id, patient_name, patient_phone, requested_doctor_id,
		    appointment_type, preferred_time_window, preferred_days, priority, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.ClinicID, e.PatientID, e.PatientName, e.PatientPhone, e.RequestedDoctorID,
		e.AppointmentType, string(e.PreferredTimeWindow), pq.Array(weekdayStrings(e.PreferredDays)), string(e.Priority), e.Status, e.CreatedAt)
	if err != nil {
		return scheduling.WaitlistEntry{}, fmt.Errorf("slots: insert waitlist entry: %w", err)
	}
	return e, nil
}

// Update replaces an entry's mutable fields. CreatedAt is kept so FIFO
// position survives edits.
func (s *SQLWaitlistStore) Update(ctx context.Context, e scheduling.WaitlistEntry) (scheduling.WaitlistEntry, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE waitlist_entries
		SET patient_name = $3, patient_phone = $4, requested_doctor_id = $5, appointment_type = $6,
		    preferred_time_window = $7, preferred_days = $8, priority = $9, status = $10
		WHERE id = $1 AND clinic_id = $2`,
		e.ID, e.ClinicID, e.PatientName, e.PatientPhone, e.RequestedDoctorID, e.AppointmentType,
		string(e.PreferredTimeWindow), pq.Array(weekdayStrings(e.PreferredDays)), string(e.Priority), e.Status)
	if err != nil {
		return scheduling.WaitlistEntry{}, fmt.Errorf("slots: update waitlist entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return scheduling.WaitlistEntry{}, fmt.Errorf("slots: update waitlist entry: %w", err)
	}
	if n == 0 {
		return scheduling.WaitlistEntry{}, ErrNotFound
	}
	return e, nil
}

func weekdayStrings(days []scheduling.Weekday) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, string(d))
	}
	return out
}
