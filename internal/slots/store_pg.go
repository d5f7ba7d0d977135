package slots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
)

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGAvailabilityStore persists availability rules in Postgres.
type PGAvailabilityStore struct {
	db pgxDB
}

// NewPGAvailabilityStore initializes a store backed by pgxpool.
func NewPGAvailabilityStore(pool *pgxpool.Pool) *PGAvailabilityStore {
	if pool == nil {
		panic("slots: pgx pool required")
	}
	return &PGAvailabilityStore{db: pool}
}

func newPGAvailabilityStoreWithDB(db pgxDB) *PGAvailabilityStore {
	return &PGAvailabilityStore{db: db}
}

func (s *PGAvailabilityStore) ListByDoctor(ctx context.Context, doctorID, clinicID string) ([]scheduling.AvailabilityRule, error) {
	query := `
		SELECT id, doctor_id, clinic_id, days_of_week, start_time, end_time,
		       slot_duration, breaks, appointment_type_durations
		FROM availability_rules
		WHERE doctor_id = $1 AND clinic_id = $2
		ORDER BY created_at, id
	`
	rows, err := s.db.Query(ctx, query, doctorID, clinicID)
	if err != nil {
		return nil, fmt.Errorf("slots: query availability: %w", err)
	}
	defer rows.Close()

	var out []scheduling.AvailabilityRule
	for rows.Next() {
		var (
			rule      scheduling.AvailabilityRule
			days      []string
			breaks    []byte
			durations []byte
		)
		if err := rows.Scan(&rule.ID, &rule.DoctorID, &rule.ClinicID, &days, &rule.StartTime, &rule.EndTime,
			&rule.SlotDuration, &breaks, &durations); err != nil {
			return nil, fmt.Errorf("slots: scan availability: %w", err)
		}
		for _, d := range days {
			rule.DaysOfWeek = append(rule.DaysOfWeek, scheduling.Weekday(d))
		}
		if len(breaks) > 0 {
			if err := json.Unmarshal(breaks, &rule.Breaks); err != nil {
				return nil, fmt.Errorf("slots: decode breaks for rule %s: %w", rule.ID, err)
			}
		}
		if len(durations) > 0 {
			if err := json.Unmarshal(durations, &rule.AppointmentTypeDurations); err != nil {
				return nil, fmt.Errorf("slots: decode type durations for rule %s: %w", rule.ID, err)
			}
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("slots: iterate availability: %w", err)
	}
	return out, nil
}

func (s *PGAvailabilityStore) Create(ctx context.Context, rule scheduling.AvailabilityRule) (scheduling.AvailabilityRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	days, breaks, durations, err := encodeRule(rule)
	if err != nil {
		return scheduling.AvailabilityRule{}, err
	}
	query := `
		INSERT INTO availability_rules (id, doctor_id, clinic_id, days_of_week, start_time, end_time,
		    slot_duration, breaks, appointment_type_durations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := s.db.Exec(ctx, query, rule.ID, rule.DoctorID, rule.ClinicID, days, rule.StartTime, rule.EndTime,
		rule.SlotDuration, breaks, durations); err != nil {
		return scheduling.AvailabilityRule{}, fmt.Errorf("slots: insert availability: %w", err)
	}
	return rule, nil
}

func (s *PGAvailabilityStore) Update(ctx context.Context, rule scheduling.AvailabilityRule) (scheduling.AvailabilityRule, error) {
	days, breaks, durations, err := encodeRule(rule)
	if err != nil {
		return scheduling.AvailabilityRule{}, err
	}
	query := `
		UPDATE availability_rules
		SET doctor_id = $3, days_of_week = $4, start_time = $5, end_time = $6,
		    slot_duration = $7, breaks = $8, appointment_type_durations = $9, updated_at = NOW()
		WHERE id = $1 AND clinic_id = $2
	`
	ct, err := s.db.Exec(ctx, query, rule.ID, rule.ClinicID, rule.DoctorID, days, rule.StartTime, rule.EndTime,
		rule.SlotDuration, breaks, durations)
	if err != nil {
		return scheduling.AvailabilityRule{}, fmt.Errorf("slots: update availability: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return scheduling.AvailabilityRule{}, ErrNotFound
	}
	return rule, nil
}

func encodeRule(rule scheduling.AvailabilityRule) ([]string, []byte, []byte, error) {
	days := make([]string, 0, len(rule.DaysOfWeek))
	for _, d := range rule.DaysOfWeek {
		days = append(days, string(d))
	}
	breaks := rule.Breaks
	if breaks == nil {
		breaks = []scheduling.Break{}
	}
	breaksJSON, err := json.Marshal(breaks)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("slots: encode breaks: %w", err)
	}
	durations := rule.AppointmentTypeDurations
	if durations == nil {
		durations = map[string]int{}
	}
	durationsJSON, err := json.Marshal(durations)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("slots: encode type durations: %w", err)
	}
	return days, breaksJSON, durationsJSON, nil
}

// PGAppointmentStore persists appointments in Postgres.
type PGAppointmentStore struct {
	db pgxDB
}

// NewPGAppointmentStore initializes a store backed by pgxpool.
func NewPGAppointmentStore(pool *pgxpool.Pool) *PGAppointmentStore {
	if pool == nil {
		panic("slots: pgx pool required")
	}
	return &PGAppointmentStore{db: pool}
}

func newPGAppointmentStoreWithDB(db pgxDB) *PGAppointmentStore {
	return &PGAppointmentStore{db: db}
}

const appointmentColumns = `id, doctor_id, clinic_id, start_at, end_at, status,
		       patient_id, patient_name, patient_phone, appointment_type`

// ListByDay returns appointments starting within date's calendar day, in
// creation order so merge resolution is stable.
func (s *PGAppointmentStore) ListByDay(ctx context.Context, clinicID, doctorID string, date time.Time) ([]scheduling.Appointment, error) {
	from, to := dayBounds(date)
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE clinic_id = $1 AND doctor_id = $2 AND start_at >= $3 AND start_at < $4
		ORDER BY created_at, id
	`
	rows, err := s.db.Query(ctx, query, clinicID, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("slots: query appointments: %w", err)
	}
	defer rows.Close()

	var out []scheduling.Appointment
	for rows.Next() {
		apt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, apt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("slots: iterate appointments: %w", err)
	}
	return out, nil
}

func (s *PGAppointmentStore) Get(ctx context.Context, clinicID, appointmentID string) (scheduling.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE id = $1 AND clinic_id = $2
	`
	apt, err := scanAppointment(s.db.QueryRow(ctx, query, appointmentID, clinicID))
	if errors.Is(err, pgx.ErrNoRows) {
		return scheduling.Appointment{}, ErrNotFound
	}
	return apt, err
}

func (s *PGAppointmentStore) Create(ctx context.Context, apt scheduling.Appointment) (scheduling.Appointment, error) {
	if apt.ID == "" {
		apt.ID = uuid.NewString()
	}
	query := `
		INSERT INTO appointments (id, doctor_id, clinic_id, start_at, end_at, status,
		    patient_id, patient_name, patient_phone, appointment_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := s.db.Exec(ctx, query, apt.ID, apt.DoctorID, apt.ClinicID, apt.StartAt, nullableTime(apt.EndAt), apt.Status,
		apt.PatientID, apt.PatientName, apt.PatientPhone, apt.Type); err != nil {
		return scheduling.Appointment{}, fmt.Errorf("slots: insert appointment: %w", err)
	}
	return apt, nil
}

func (s *PGAppointmentStore) Update(ctx context.Context, apt scheduling.Appointment) (scheduling.Appointment, error) {
	query := `
		UPDATE appointments
		SET doctor_id = $3, start_at = $4, end_at = $5, status = $6,
		    patient_id = $7, patient_name = $8, patient_phone = $9, appointment_type = $10, updated_at = NOW()
		WHERE id = $1 AND clinic_id = $2
	`
	ct, err := s.db.Exec(ctx, query, apt.ID, apt.ClinicID, apt.DoctorID, apt.StartAt, nullableTime(apt.EndAt), apt.Status,
		apt.PatientID, apt.PatientName, apt.PatientPhone, apt.Type)
	if err != nil {
		return scheduling.Appointment{}, fmt.Errorf("slots: update appointment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return scheduling.Appointment{}, ErrNotFound
	}
	return apt, nil
}

func scanAppointment(row pgx.Row) (scheduling.Appointment, error) {
	var (
		apt   scheduling.Appointment
		endAt *time.Time
	)
	if err := row.Scan(&apt.ID, &apt.DoctorID, &apt.ClinicID, &apt.StartAt, &endAt, &apt.Status,
		&apt.PatientID, &apt.PatientName, &apt.PatientPhone, &apt.Type); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scheduling.Appointment{}, err
		}
		return scheduling.Appointment{}, fmt.Errorf("slots: scan appointment: %w", err)
	}
	if endAt != nil {
		apt.EndAt = *endAt
	}
	return apt, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
