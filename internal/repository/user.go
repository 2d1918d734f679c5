package repository

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/store"
	"github.com/jwalitptl/clinic-sync/pkg/apperror"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
	"github.com/jwalitptl/clinic-sync/pkg/event"
)

type userRepository struct {
	records  *Records[model.User, *model.User]
	validate *validator.Validate
}

// NewUserRepository creates the users repository over the store engine.
func NewUserRepository(s *store.Store, clk clock.Clock, events event.Publisher) UserRepository {
	return &userRepository{
		records:  NewRecords[model.User](s, store.CollectionUsers, clk, events, event.TopicUserChanged),
		validate: validator.New(),
	}
}

func (r *userRepository) Create(ctx context.Context, req *model.CreateUserRequest, passwordHash string) (*model.User, error) {
	if err := r.validate.Struct(req); err != nil {
		return nil, apperror.Validation(fmt.Sprintf("invalid user data: %v", err))
	}
	if err := validateProfile(req.Role, req.Patient, req.Doctor); err != nil {
		return nil, err
	}

	// Pre-check so a duplicate registration fails before any write; the
	// unique email index still backstops a race.
	if _, err := r.GetByEmail(ctx, req.Email); err == nil {
		return nil, apperror.Conflict(fmt.Sprintf("email %s already registered", req.Email), nil)
	} else if !apperror.IsNotFound(err) {
		return nil, err
	}

	user := &model.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Role:         req.Role,
		Phone:        req.Phone,
		Patient:      req.Patient,
		Doctor:       req.Doctor,
	}
	if user.Role == model.RolePatient && user.Patient == nil {
		user.Patient = &model.PatientProfile{}
	}
	if user.Role == model.RoleDoctor && user.Doctor == nil {
		user.Doctor = &model.DoctorProfile{}
	}

	return r.records.Add(ctx, user)
}

func (r *userRepository) Update(ctx context.Context, user *model.User) (*model.User, error) {
	existing, err := r.records.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	// Role is immutable after creation; it decides which profile variant
	// the record carries for its whole lifetime.
	if existing.Role != user.Role {
		return nil, apperror.Validation("user role cannot be changed")
	}
	if err := validateProfile(user.Role, user.Patient, user.Doctor); err != nil {
		return nil, err
	}
	user.CreatedAt = existing.CreatedAt
	return r.records.Update(ctx, user)
}

func (r *userRepository) Get(ctx context.Context, id string) (*model.User, error) {
	return r.records.GetByID(ctx, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	users, err := r.records.GetAllByIndex(ctx, "email", email)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, apperror.NotFound("user")
	}
	return users[0], nil
}

func (r *userRepository) ListPatients(ctx context.Context) ([]*model.User, error) {
	return r.records.GetAllByIndex(ctx, "role", string(model.RolePatient))
}

func (r *userRepository) ListDoctors(ctx context.Context) ([]*model.User, error) {
	return r.records.GetAllByIndex(ctx, "role", string(model.RoleDoctor))
}

func (r *userRepository) AssignDoctor(ctx context.Context, patientID, doctorID string) (*model.User, error) {
	patient, err := r.records.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient.Role != model.RolePatient {
		return nil, apperror.Validation("doctor assignment requires a patient record")
	}
	doctor, err := r.records.GetByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if doctor.Role != model.RoleDoctor {
		return nil, apperror.Validation("assigned user is not a doctor")
	}

	for _, id := range patient.Patient.DoctorIDs {
		if id == doctorID {
			return patient, nil
		}
	}
	patient.Patient.DoctorIDs = append(patient.Patient.DoctorIDs, doctorID)
	return r.records.Update(ctx, patient)
}

// validateProfile enforces the tagged union: exactly the profile matching
// the role must be present.
func validateProfile(role model.Role, patient *model.PatientProfile, doctor *model.DoctorProfile) error {
	switch role {
	case model.RolePatient:
		if doctor != nil {
			return apperror.Validation("patient record cannot carry a doctor profile")
		}
	case model.RoleDoctor:
		if patient != nil {
			return apperror.Validation("doctor record cannot carry a patient profile")
		}
	default:
		return apperror.Validation(fmt.Sprintf("unknown role %q", role))
	}
	return nil
}
