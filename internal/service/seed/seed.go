// Package seed installs the initial demo dataset in one multi-collection
// transaction. Seeding is guarded by a durable marker, so re-running it is
// a no-op.
package seed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/store"
	"github.com/jwalitptl/clinic-sync/pkg/apperror"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
	"github.com/jwalitptl/clinic-sync/pkg/logger"
	"github.com/jwalitptl/clinic-sync/pkg/security"
)

const markerKey = "seed.completed"

// Seeder writes the initial dataset directly through the store engine.
// Seeded records are born synced; they never enter the pending queue.
type Seeder struct {
	store  *store.Store
	hasher security.PasswordHasher
	clock  clock.Clock
	log    *logger.Logger
}

// New creates a seeder.
func New(s *store.Store, hasher security.PasswordHasher, clk clock.Clock, log *logger.Logger) *Seeder {
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = logger.NewLogger(nil)
	}
	return &Seeder{store: s, hasher: hasher, clock: clk, log: log}
}

// Run seeds the store once. All inserts commit or roll back together.
func (s *Seeder) Run(ctx context.Context) error {
	if _, err := s.store.KVGet(ctx, markerKey); err == nil {
		s.log.Debug("seed already applied")
		return nil
	} else if !apperror.IsNotFound(err) {
		return err
	}

	now := s.clock.Now().UTC()
	passwordHash, err := s.hasher.Hash("changeme123")
	if err != nil {
		return apperror.Internal(err)
	}

	doctor := &model.User{
		Base:         model.Base{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now, Synced: true},
		Name:         "Dr. Sarah Chen",
		Email:        "sarah.chen@clinic.local",
		PasswordHash: passwordHash,
		Role:         model.RoleDoctor,
		Doctor: &model.DoctorProfile{
			Specialty:     "General Practice",
			LicenseNumber: "GP-10021",
			Bio:           "Primary care physician",
		},
	}
	patient := &model.User{
		Base:         model.Base{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now, Synced: true},
		Name:         "Alex Morgan",
		Email:        "alex.morgan@example.com",
		PasswordHash: passwordHash,
		Role:         model.RolePatient,
		Patient: &model.PatientProfile{
			DateOfBirth: "1988-04-12",
			Gender:      "other",
			BloodType:   "O+",
			DoctorIDs:   []string{doctor.ID},
		},
	}
	appointment := &model.Appointment{
		Base:        model.Base{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now, Synced: true},
		PatientID:   patient.ID,
		DoctorID:    doctor.ID,
		PatientName: patient.Name,
		DoctorName:  doctor.Name,
		Date:        now.Format("2006-01-02"),
		Time:        "10:00",
		Type:        "consultation",
		Status:      model.AppointmentStatusScheduled,
	}
	record := &model.MedicalRecord{
		Base:        model.Base{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now, Synced: true},
		PatientID:   patient.ID,
		DoctorID:    doctor.ID,
		PatientName: patient.Name,
		Date:        now.Format("2006-01-02"),
		Diagnosis:   "Routine checkup",
		Treatment:   "None required",
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, entity := range []model.Entity{doctor, patient} {
			if err := putEntity(ctx, tx, store.CollectionUsers, entity); err != nil {
				return err
			}
		}
		if err := putEntity(ctx, tx, store.CollectionAppointments, appointment); err != nil {
			return err
		}
		if err := putEntity(ctx, tx, store.CollectionMedicalRecords, record); err != nil {
			return err
		}
		return tx.KVPut(ctx, markerKey, []byte(now.Format(time.RFC3339)))
	})
	if err != nil {
		return err
	}

	s.log.Info("seed applied", "users", 2, "appointments", 1, "medical_records", 1)
	return nil
}

func putEntity(ctx context.Context, tx *store.Tx, collection string, entity model.Entity) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return apperror.Internal(err)
	}
	meta := entity.Meta()
	return tx.Put(ctx, collection, store.Row{
		ID:        meta.ID,
		Data:      data,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
		Synced:    meta.Synced,
		Index:     entity.IndexValues(),
	})
}
