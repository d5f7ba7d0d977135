package slots

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-scheduling/internal/events"
	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

type slotDispatcher interface {
	Dispatch(ctx context.Context, evt events.SlotOpenedV1) (*DispatchResult, error)
}

// Handler exposes schedules, availability, appointments and the waitlist over HTTP.
type Handler struct {
	svc        *Service
	dispatcher slotDispatcher
	logger     *logging.Logger
}

func NewHandler(svc *Service, dispatcher slotDispatcher, logger *logging.Logger) *Handler {
	if svc == nil {
		panic("slots: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, dispatcher: dispatcher, logger: logger}
}

// RegisterRoutes adds the scheduling routes to a router scoped by {clinicID}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/doctors/{doctorID}", func(r chi.Router) {
		r.Get("/slots", h.GetDaySchedule)
		r.Get("/availability", h.ListAvailability)
		r.Post("/availability", h.CreateAvailability)
		r.Put("/availability/{ruleID}", h.UpdateAvailability)
		r.Post("/appointments", h.CreateAppointment)
	})
	r.Put("/appointments/{appointmentID}", h.UpdateAppointment)
	r.Get("/waitlist", h.ListWaitlist)
	r.Post("/waitlist", h.CreateWaitlistEntry)
	r.Put("/waitlist/{entryID}", h.UpdateWaitlistEntry)
	r.Post("/waitlist/suggestions", h.SuggestForSlot)
	if h.dispatcher != nil {
		r.Post("/slots/opened", h.SlotOpened)
	}
}

// GetDaySchedule returns the merged slots for one doctor and date.
// GET /api/v1/clinics/{clinicID}/doctors/{doctorID}/slots?date=YYYY-MM-DD&buffer=&duration=&type=
func (h *Handler) GetDaySchedule(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	doctorID := chi.URLParam(r, "doctorID")
	q := r.URL.Query()

	date, err := h.svc.ParseDay(q.Get("date"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req := DayScheduleRequest{
		ClinicID:        clinicID,
		DoctorID:        doctorID,
		Date:            date,
		AppointmentType: strings.TrimSpace(q.Get("type")),
	}
	if raw := q.Get("buffer"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "buffer must be an integer"})
			return
		}
		req.BufferMinutes = &n
	}
	if raw := q.Get("duration"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "duration must be an integer"})
			return
		}
		req.DurationOverride = n
	}

	sched, err := h.svc.DaySchedule(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// ListAvailability returns the doctor's weekly rules.
// GET /api/v1/clinics/{clinicID}/doctors/{doctorID}/availability
func (h *Handler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.ListAvailability(r.Context(), chi.URLParam(r, "clinicID"), chi.URLParam(r, "doctorID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// CreateAvailability adds a weekly rule for the doctor.
// POST /api/v1/clinics/{clinicID}/doctors/{doctorID}/availability
func (h *Handler) CreateAvailability(w http.ResponseWriter, r *http.Request) {
	var rule scheduling.AvailabilityRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	rule.ClinicID = chi.URLParam(r, "clinicID")
	rule.DoctorID = chi.URLParam(r, "doctorID")

	saved, err := h.svc.CreateAvailability(r.Context(), rule)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// UpdateAvailability replaces a weekly rule.
// PUT /api/v1/clinics/{clinicID}/doctors/{doctorID}/availability/{ruleID}
func (h *Handler) UpdateAvailability(w http.ResponseWriter, r *http.Request) {
	var rule scheduling.AvailabilityRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	rule.ID = chi.URLParam(r, "ruleID")
	rule.ClinicID = chi.URLParam(r, "clinicID")
	rule.DoctorID = chi.URLParam(r, "doctorID")

	saved, err := h.svc.UpdateAvailability(r.Context(), rule)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// CreateAppointmentRequest is the body of POST .../appointments. Instants
// without an offset are read in the schedule timezone.
type CreateAppointmentRequest struct {
	ID           string `json:"id,omitempty"`
	StartAt      string `json:"start_at"`
	EndAt        string `json:"end_at,omitempty"`
	Status       string `json:"status,omitempty"`
	PatientID    string `json:"patient_id"`
	PatientName  string `json:"patient_name"`
	PatientPhone string `json:"patient_phone"`
	Type         string `json:"type,omitempty"`
}

// CreateAppointment books an appointment for the doctor.
// POST /api/v1/clinics/{clinicID}/doctors/{doctorID}/appointments
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	loc := h.svc.Location()
	start, err := scheduling.ParseInstant(req.StartAt, loc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	apt := scheduling.Appointment{
		ID:           req.ID,
		ClinicID:     chi.URLParam(r, "clinicID"),
		DoctorID:     chi.URLParam(r, "doctorID"),
		StartAt:      start,
		Status:       req.Status,
		PatientID:    req.PatientID,
		PatientName:  req.PatientName,
		PatientPhone: req.PatientPhone,
		Type:         req.Type,
	}
	if req.EndAt != "" {
		if apt.EndAt, err = scheduling.ParseInstant(req.EndAt, loc); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	saved, err := h.svc.CreateAppointment(r.Context(), apt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// UpdateAppointmentRequest changes an appointment's status.
type UpdateAppointmentRequest struct {
	Status *string `json:"status,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// UpdateAppointment applies a status change. Cancelling or marking a no-show
// records a slot.opened.v1 event.
// PUT /api/v1/clinics/{clinicID}/appointments/{appointmentID}
func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var req UpdateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	saved, err := h.svc.UpdateAppointment(r.Context(), chi.URLParam(r, "clinicID"), chi.URLParam(r, "appointmentID"),
		AppointmentUpdate{Status: req.Status, Reason: req.Reason})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// ListWaitlist returns the clinic's active entries.
// GET /api/v1/clinics/{clinicID}/waitlist?doctor_id=&type=
func (h *Handler) ListWaitlist(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.svc.ListWaitlist(r.Context(), chi.URLParam(r, "clinicID"), WaitlistFilter{
		DoctorID:        q.Get("doctor_id"),
		AppointmentType: q.Get("type"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// CreateWaitlistEntry adds a patient to the clinic's waitlist.
// POST /api/v1/clinics/{clinicID}/waitlist
func (h *Handler) CreateWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	var entry scheduling.WaitlistEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	entry.ClinicID = chi.URLParam(r, "clinicID")

	saved, err := h.svc.CreateWaitlistEntry(r.Context(), entry)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// UpdateWaitlistRequest changes an entry's status or preferences.
type UpdateWaitlistRequest struct {
	Status              *string               `json:"status,omitempty"`
	Priority            *string               `json:"priority,omitempty"`
	PreferredTimeWindow *string               `json:"preferred_time_window,omitempty"`
	PreferredDays       *[]scheduling.Weekday `json:"preferred_days,omitempty"`
}

// UpdateWaitlistEntry edits an entry. Setting status to booked or removed
// takes it out of suggestions and dispatch.
// PUT /api/v1/clinics/{clinicID}/waitlist/{entryID}
func (h *Handler) UpdateWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	var req UpdateWaitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	saved, err := h.svc.UpdateWaitlistEntry(r.Context(), chi.URLParam(r, "clinicID"), chi.URLParam(r, "entryID"), WaitlistUpdate{
		Status:              req.Status,
		Priority:            req.Priority,
		PreferredTimeWindow: req.PreferredTimeWindow,
		PreferredDays:       req.PreferredDays,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// SlotRequest describes a slot in request bodies.
type SlotRequest struct {
	ID              string `json:"id,omitempty"`
	DoctorID        string `json:"doctor_id"`
	StartAt         string `json:"start_at"`
	EndAt           string `json:"end_at,omitempty"`
	AppointmentType string `json:"appointment_type,omitempty"`
}

// SuggestRequestBody is the body of POST .../waitlist/suggestions.
type SuggestRequestBody struct {
	Slot   SlotRequest `json:"slot"`
	Policy string      `json:"policy,omitempty"`
	Limit  int         `json:"limit,omitempty"`
}

// SuggestForSlot ranks waitlisted patients for a slot.
// POST /api/v1/clinics/{clinicID}/waitlist/suggestions
func (h *Handler) SuggestForSlot(w http.ResponseWriter, r *http.Request) {
	var body SuggestRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	clinicID := chi.URLParam(r, "clinicID")
	slot, err := h.parseSlot(clinicID, body.Slot)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.svc.SuggestForSlot(r.Context(), SuggestRequest{
		ClinicID: clinicID,
		Slot:     slot,
		Policy:   body.Policy,
		Limit:    body.Limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// SlotOpenedRequest is the body of POST .../slots/opened.
type SlotOpenedRequest struct {
	EventID       string      `json:"event_id,omitempty"`
	Slot          SlotRequest `json:"slot"`
	AppointmentID string      `json:"appointment_id,omitempty"`
	Reason        string      `json:"reason,omitempty"`
}

// SlotOpened ranks the waitlist for a slot freed outside the appointment API.
// POST /api/v1/clinics/{clinicID}/slots/opened
func (h *Handler) SlotOpened(w http.ResponseWriter, r *http.Request) {
	var req SlotOpenedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	clinicID := chi.URLParam(r, "clinicID")
	slot, err := h.parseSlot(clinicID, req.Slot)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = events.ReasonManualRelease
	}
	evt := events.SlotOpenedV1{
		EventID:         req.EventID,
		ClinicID:        clinicID,
		DoctorID:        slot.DoctorID,
		SlotID:          slot.ID,
		StartAt:         slot.StartAt,
		EndAt:           slot.EndAt,
		AppointmentType: slot.AppointmentType,
		AppointmentID:   req.AppointmentID,
		Reason:          reason,
		OccurredAt:      h.svc.now().UTC(),
	}

	res, err := h.dispatcher.Dispatch(r.Context(), evt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) parseSlot(clinicID string, req SlotRequest) (scheduling.Slot, error) {
	loc := h.svc.Location()
	start, err := scheduling.ParseInstant(req.StartAt, loc)
	if err != nil {
		return scheduling.Slot{}, err
	}
	var end = start
	if req.EndAt != "" {
		if end, err = scheduling.ParseInstant(req.EndAt, loc); err != nil {
			return scheduling.Slot{}, err
		}
	}
	id := req.ID
	if id == "" {
		id = scheduling.SlotID(req.DoctorID, clinicID, start)
	}
	return scheduling.Slot{
		ID:              id,
		ClinicID:        clinicID,
		DoctorID:        req.DoctorID,
		StartAt:         start,
		EndAt:           end,
		AppointmentType: req.AppointmentType,
		State:           scheduling.Empty{},
	}, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scheduling.ErrInvalidScheduleConfiguration),
		errors.Is(err, scheduling.ErrUnknownPolicy),
		errors.Is(err, ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		h.logger.Error("scheduling request failed", "path", r.URL.Path, "clinic_id", chi.URLParam(r, "clinicID"), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
