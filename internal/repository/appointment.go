package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/store"
	"github.com/jwalitptl/clinic-sync/pkg/apperror"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
	"github.com/jwalitptl/clinic-sync/pkg/event"
)

type appointmentRepository struct {
	records  *Records[model.Appointment, *model.Appointment]
	users    UserRepository
	validate *validator.Validate
}

// NewAppointmentRepository creates the appointments repository. The user
// repository is consulted to denormalize display names at write time.
func NewAppointmentRepository(s *store.Store, users UserRepository, clk clock.Clock, events event.Publisher) AppointmentRepository {
	return &appointmentRepository{
		records:  NewRecords[model.Appointment](s, store.CollectionAppointments, clk, events, event.TopicAppointmentChanged),
		users:    users,
		validate: validator.New(),
	}
}

func (r *appointmentRepository) Create(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	if err := r.validate.Struct(req); err != nil {
		return nil, apperror.Validation(fmt.Sprintf("invalid appointment data: %v", err))
	}

	// The patient reference must resolve so the display name snapshot can
	// be taken. The doctor reference is the caller's responsibility; the
	// name stays empty when it does not resolve.
	patient, err := r.users.Get(ctx, req.PatientID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.Validation(fmt.Sprintf("patient %s does not exist", req.PatientID))
		}
		return nil, err
	}

	doctorName := ""
	if doctor, err := r.users.Get(ctx, req.DoctorID); err == nil {
		doctorName = doctor.Name
	} else if !apperror.IsNotFound(err) {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = model.AppointmentStatusPending
	}

	appointment := &model.Appointment{
		PatientID:   req.PatientID,
		DoctorID:    req.DoctorID,
		PatientName: patient.Name,
		DoctorName:  doctorName,
		Date:        req.Date,
		Time:        req.Time,
		Type:        req.Type,
		Status:      status,
		Notes:       req.Notes,
	}
	return r.records.Add(ctx, appointment)
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) (*model.Appointment, error) {
	existing, err := r.records.GetByID(ctx, appointment.ID)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(existing.Status, appointment.Status) {
		return nil, apperror.Validation(fmt.Sprintf(
			"appointment status cannot change from %s to %s", existing.Status, appointment.Status,
		))
	}
	appointment.CreatedAt = existing.CreatedAt
	return r.records.Update(ctx, appointment)
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, id string, status model.AppointmentStatus) (*model.Appointment, error) {
	appointment, err := r.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(appointment.Status, status) {
		return nil, apperror.Validation(fmt.Sprintf(
			"appointment status cannot change from %s to %s", appointment.Status, status,
		))
	}
	appointment.Status = status
	return r.records.Update(ctx, appointment)
}

func (r *appointmentRepository) Get(ctx context.Context, id string) (*model.Appointment, error) {
	return r.records.GetByID(ctx, id)
}

func (r *appointmentRepository) ListByPatient(ctx context.Context, patientID string) ([]*model.Appointment, error) {
	appointments, err := r.records.GetAllByIndex(ctx, "patient_id", patientID)
	if err != nil {
		return nil, err
	}
	sortByDateDesc(appointments)
	return appointments, nil
}

func (r *appointmentRepository) ListByDoctor(ctx context.Context, doctorID string) ([]*model.Appointment, error) {
	appointments, err := r.records.GetAllByIndex(ctx, "doctor_id", doctorID)
	if err != nil {
		return nil, err
	}
	sortByDateDesc(appointments)
	return appointments, nil
}

func (r *appointmentRepository) ListByDate(ctx context.Context, date string) ([]*model.Appointment, error) {
	return r.records.GetAllByIndex(ctx, "date", date)
}

// sortByDateDesc orders newest first; the store itself guarantees no
// meaningful order.
func sortByDateDesc(appointments []*model.Appointment) {
	sort.SliceStable(appointments, func(i, j int) bool {
		if appointments[i].Date != appointments[j].Date {
			return appointments[i].Date > appointments[j].Date
		}
		return appointments[i].Time > appointments[j].Time
	})
}
