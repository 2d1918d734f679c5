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

type medicalRecordRepository struct {
	records  *Records[model.MedicalRecord, *model.MedicalRecord]
	users    UserRepository
	validate *validator.Validate
}

// NewMedicalRecordRepository creates the medical records repository.
func NewMedicalRecordRepository(s *store.Store, users UserRepository, clk clock.Clock, events event.Publisher) MedicalRecordRepository {
	return &medicalRecordRepository{
		records:  NewRecords[model.MedicalRecord](s, store.CollectionMedicalRecords, clk, events, event.TopicMedicalRecordChanged),
		users:    users,
		validate: validator.New(),
	}
}

func (r *medicalRecordRepository) Create(ctx context.Context, req *model.CreateMedicalRecordRequest) (*model.MedicalRecord, error) {
	if err := r.validate.Struct(req); err != nil {
		return nil, apperror.Validation(fmt.Sprintf("invalid medical record data: %v", err))
	}

	patient, err := r.users.Get(ctx, req.PatientID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.Validation(fmt.Sprintf("patient %s does not exist", req.PatientID))
		}
		return nil, err
	}

	record := &model.MedicalRecord{
		PatientID:     req.PatientID,
		DoctorID:      req.DoctorID,
		PatientName:   patient.Name,
		Date:          req.Date,
		Diagnosis:     req.Diagnosis,
		Treatment:     req.Treatment,
		Prescriptions: req.Prescriptions,
		Notes:         req.Notes,
	}
	return r.records.Add(ctx, record)
}

func (r *medicalRecordRepository) Update(ctx context.Context, record *model.MedicalRecord) (*model.MedicalRecord, error) {
	existing, err := r.records.GetByID(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	record.CreatedAt = existing.CreatedAt
	return r.records.Update(ctx, record)
}

func (r *medicalRecordRepository) Get(ctx context.Context, id string) (*model.MedicalRecord, error) {
	return r.records.GetByID(ctx, id)
}

func (r *medicalRecordRepository) ListByPatient(ctx context.Context, patientID string) ([]*model.MedicalRecord, error) {
	records, err := r.records.GetAllByIndex(ctx, "patient_id", patientID)
	if err != nil {
		return nil, err
	}
	sortRecordsByDateDesc(records)
	return records, nil
}

func (r *medicalRecordRepository) ListByDoctor(ctx context.Context, doctorID string) ([]*model.MedicalRecord, error) {
	records, err := r.records.GetAllByIndex(ctx, "doctor_id", doctorID)
	if err != nil {
		return nil, err
	}
	sortRecordsByDateDesc(records)
	return records, nil
}

func sortRecordsByDateDesc(records []*model.MedicalRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date > records[j].Date
	})
}
