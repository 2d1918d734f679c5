package repository

import (
	"context"

	"github.com/jwalitptl/clinic-sync/internal/model"
)

// UserRepository manages the single source-of-truth users collection for
// both patients and doctors.
type UserRepository interface {
	Create(ctx context.Context, req *model.CreateUserRequest, passwordHash string) (*model.User, error)
	Update(ctx context.Context, user *model.User) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ListPatients(ctx context.Context) ([]*model.User, error)
	ListDoctors(ctx context.Context) ([]*model.User, error)
	AssignDoctor(ctx context.Context, patientID, doctorID string) (*model.User, error)
}

// AppointmentRepository manages the appointments collection.
type AppointmentRepository interface {
	Create(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error)
	Update(ctx context.Context, appointment *model.Appointment) (*model.Appointment, error)
	UpdateStatus(ctx context.Context, id string, status model.AppointmentStatus) (*model.Appointment, error)
	Get(ctx context.Context, id string) (*model.Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]*model.Appointment, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]*model.Appointment, error)
	ListByDate(ctx context.Context, date string) ([]*model.Appointment, error)
}

// MedicalRecordRepository manages the medical records collection.
type MedicalRecordRepository interface {
	Create(ctx context.Context, req *model.CreateMedicalRecordRequest) (*model.MedicalRecord, error)
	Update(ctx context.Context, record *model.MedicalRecord) (*model.MedicalRecord, error)
	Get(ctx context.Context, id string) (*model.MedicalRecord, error)
	ListByPatient(ctx context.Context, patientID string) ([]*model.MedicalRecord, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]*model.MedicalRecord, error)
}
