package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/store"
	"github.com/jwalitptl/clinic-sync/pkg/apperror"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
	"github.com/jwalitptl/clinic-sync/pkg/event"
)

type testEnv struct {
	store        *store.Store
	clock        *clock.Manual
	events       *event.Bus
	users        UserRepository
	appointments AppointmentRepository
	records      MedicalRecordRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := store.New(store.Config{Path: ":memory:"}, nil, nil)
	t.Cleanup(func() { s.Close() })

	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	bus := event.NewBus()
	users := NewUserRepository(s, clk, bus)
	return &testEnv{
		store:        s,
		clock:        clk,
		events:       bus,
		users:        users,
		appointments: NewAppointmentRepository(s, users, clk, bus),
		records:      NewMedicalRecordRepository(s, users, clk, bus),
	}
}

func patientRequest(name, email string) *model.CreateUserRequest {
	return &model.CreateUserRequest{
		Name:     name,
		Email:    email,
		Password: "s3cret-pass",
		Role:     model.RolePatient,
	}
}

func doctorRequest(name, email string) *model.CreateUserRequest {
	return &model.CreateUserRequest{
		Name:     name,
		Email:    email,
		Password: "s3cret-pass",
		Role:     model.RoleDoctor,
	}
}

func TestUserCreateRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	created, err := env.users.Create(ctx, patientRequest("Alex Morgan", "alex@example.com"), "hash")
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
	assert.False(t, created.Synced)
	require.NotNil(t, created.Patient, "patient role gets an empty patient profile")
	assert.Nil(t, created.Doctor)

	got, err := env.users.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	byEmail, err := env.users.GetByEmail(ctx, "alex@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)
}

func TestUserCreateQueuesChange(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	created, err := env.users.Create(ctx, patientRequest("Alex", "alex@example.com"), "hash")
	require.NoError(t, err)

	changes, err := env.store.PendingChanges(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, created.ID, changes[0].RecordID)
	assert.Equal(t, model.ChangeOpCreate, changes[0].Op)
}

func TestUserCreateValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  *model.CreateUserRequest
	}{
		{"missing name", &model.CreateUserRequest{Email: "a@x.com", Password: "s3cret-pass", Role: model.RolePatient}},
		{"bad email", &model.CreateUserRequest{Name: "A", Email: "not-an-email", Password: "s3cret-pass", Role: model.RolePatient}},
		{"short password", &model.CreateUserRequest{Name: "A", Email: "a@x.com", Password: "short", Role: model.RolePatient}},
		{"unknown role", &model.CreateUserRequest{Name: "A", Email: "a@x.com", Password: "s3cret-pass", Role: "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.users.Create(ctx, tt.req, "hash")
			assert.True(t, apperror.IsValidation(err))
		})
	}
}

func TestUserProfileMatchesRole(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	req := patientRequest("Alex", "alex@example.com")
	req.Doctor = &model.DoctorProfile{Specialty: "Cardiology"}
	_, err := env.users.Create(ctx, req, "hash")
	assert.True(t, apperror.IsValidation(err))

	req = doctorRequest("Dr. Chen", "chen@clinic.local")
	req.Patient = &model.PatientProfile{BloodType: "O+"}
	_, err = env.users.Create(ctx, req, "hash")
	assert.True(t, apperror.IsValidation(err))
}

func TestUserDuplicateEmailLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.users.Create(ctx, patientRequest("Alex", "alex@example.com"), "hash")
	require.NoError(t, err)

	_, err = env.users.Create(ctx, doctorRequest("Other", "alex@example.com"), "hash")
	assert.True(t, apperror.IsConflict(err))

	patients, err := env.users.ListPatients(ctx)
	require.NoError(t, err)
	assert.Len(t, patients, 1)
	doctors, err := env.users.ListDoctors(ctx)
	require.NoError(t, err)
	assert.Empty(t, doctors)

	n, err := env.store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the failed create must not enqueue a change")
}

func TestUserUpdateAdvancesUpdatedAtOnly(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	created, err := env.users.Create(ctx, patientRequest("Alex", "alex@example.com"), "hash")
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	created.Name = "Alex M."
	updated, err := env.users.Update(ctx, created)
	require.NoError(t, err)

	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
	assert.False(t, updated.Synced)
}

func TestUserRoleIsImmutable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	created, err := env.users.Create(ctx, patientRequest("Alex", "alex@example.com"), "hash")
	require.NoError(t, err)

	created.Role = model.RoleDoctor
	created.Patient = nil
	_, err = env.users.Update(ctx, created)
	assert.True(t, apperror.IsValidation(err))
}

func TestAssignDoctorIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	patient, err := env.users.Create(ctx, patientRequest("Alex", "alex@example.com"), "hash")
	require.NoError(t, err)
	doctor, err := env.users.Create(ctx, doctorRequest("Dr. Chen", "chen@clinic.local"), "hash")
	require.NoError(t, err)

	assigned, err := env.users.AssignDoctor(ctx, patient.ID, doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{doctor.ID}, assigned.Patient.DoctorIDs)

	again, err := env.users.AssignDoctor(ctx, patient.ID, doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{doctor.ID}, again.Patient.DoctorIDs)

	_, err = env.users.AssignDoctor(ctx, doctor.ID, patient.ID)
	assert.True(t, apperror.IsValidation(err))
}

func TestAppointmentSnapshotsDisplayNames(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	bob, err := env.users.Create(ctx, patientRequest("Bob", "bob@example.com"), "hash")
	require.NoError(t, err)

	// The doctor reference does not have to resolve; the name snapshot
	// simply stays empty.
	created, err := env.appointments.Create(ctx, &model.CreateAppointmentRequest{
		PatientID: bob.ID,
		DoctorID:  "doc1",
		Date:      "2025-03-10",
		Time:      "10:00",
		Type:      "consultation",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bob", created.PatientName)
	assert.Empty(t, created.DoctorName)
	assert.Equal(t, model.AppointmentStatusPending, created.Status)

	list, err := env.appointments.ListByPatient(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
}

func TestAppointmentRequiresExistingPatient(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.appointments.Create(ctx, &model.CreateAppointmentRequest{
		PatientID: "ghost",
		DoctorID:  "doc1",
		Date:      "2025-03-10",
		Time:      "10:00",
		Type:      "consultation",
	})
	assert.True(t, apperror.IsValidation(err))
}

func TestAppointmentCreateValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.appointments.Create(ctx, &model.CreateAppointmentRequest{
		PatientID: "p1",
		DoctorID:  "d1",
		Date:      "10/03/2025",
		Time:      "10:00",
		Type:      "consultation",
	})
	assert.True(t, apperror.IsValidation(err))
}

func TestAppointmentStatusTransitions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	patient, err := env.users.Create(ctx, patientRequest("Alex", "alex@example.com"), "hash")
	require.NoError(t, err)

	created, err := env.appointments.Create(ctx, &model.CreateAppointmentRequest{
		PatientID: patient.ID,
		DoctorID:  "d1",
		Date:      "2025-03-10",
		Time:      "10:00",
		Type:      "consultation",
	})
	require.NoError(t, err)

	scheduled, err := env.appointments.UpdateStatus(ctx, created.ID, model.AppointmentStatusScheduled)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, scheduled.Status)

	_, err = env.appointments.UpdateStatus(ctx, created.ID, model.AppointmentStatusPending)
	assert.True(t, apperror.IsValidation(err))

	completed, err := env.appointments.UpdateStatus(ctx, created.ID, model.AppointmentStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, completed.Status)

	_, err = env.appointments.UpdateStatus(ctx, created.ID, model.AppointmentStatusCancelled)
	assert.True(t, apperror.IsValidation(err), "completed is terminal")
}

func TestAppointmentListSortedNewestFirst(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	patient, err := env.users.Create(ctx, patientRequest("Alex", "alex@example.com"), "hash")
	require.NoError(t, err)

	for _, date := range []string{"2025-03-01", "2025-03-15", "2025-03-08"} {
		_, err := env.appointments.Create(ctx, &model.CreateAppointmentRequest{
			PatientID: patient.ID,
			DoctorID:  "d1",
			Date:      date,
			Time:      "10:00",
			Type:      "consultation",
		})
		require.NoError(t, err)
	}

	list, err := env.appointments.ListByPatient(ctx, patient.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "2025-03-15", list[0].Date)
	assert.Equal(t, "2025-03-08", list[1].Date)
	assert.Equal(t, "2025-03-01", list[2].Date)
}

func TestMedicalRecordCreate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	patient, err := env.users.Create(ctx, patientRequest("Alex", "alex@example.com"), "hash")
	require.NoError(t, err)

	created, err := env.records.Create(ctx, &model.CreateMedicalRecordRequest{
		PatientID: patient.ID,
		DoctorID:  "d1",
		Date:      "2025-03-10",
		Diagnosis: "Seasonal allergies",
		Treatment: "Antihistamines",
		Prescriptions: []model.Prescription{
			{Medication: "Loratadine", Dosage: "10mg", Frequency: "daily", Duration: "2 weeks"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Alex", created.PatientName)
	assert.False(t, created.Synced)

	got, err := env.records.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	list, err := env.records.ListByPatient(ctx, patient.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = env.records.Create(ctx, &model.CreateMedicalRecordRequest{
		PatientID: "ghost",
		Date:      "2025-03-10",
		Diagnosis: "x",
		Treatment: "y",
	})
	assert.True(t, apperror.IsValidation(err))
}

func TestEventsFireAfterPersist(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var topics []string
	for _, topic := range []string{event.TopicUserChanged, event.TopicAppointmentChanged} {
		topic := topic
		env.events.Subscribe(topic, func(evt event.Event) {
			topics = append(topics, evt.Topic)
		})
	}

	patient, err := env.users.Create(ctx, patientRequest("Alex", "alex@example.com"), "hash")
	require.NoError(t, err)
	_, err = env.appointments.Create(ctx, &model.CreateAppointmentRequest{
		PatientID: patient.ID,
		DoctorID:  "d1",
		Date:      "2025-03-10",
		Time:      "10:00",
		Type:      "consultation",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{event.TopicUserChanged, event.TopicAppointmentChanged}, topics)
}

func TestGetMissingRecordIsNotFound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.users.Get(ctx, "nope")
	assert.True(t, apperror.IsNotFound(err))
	_, err = env.appointments.Get(ctx, "nope")
	assert.True(t, apperror.IsNotFound(err))
	_, err = env.records.Get(ctx, "nope")
	assert.True(t, apperror.IsNotFound(err))
}
