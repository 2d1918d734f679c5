package model

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusRequested AppointmentStatus = "requested"
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// transitions lists the legal next states per status. Completed and
// cancelled are terminal; cancellation is reachable from any other state.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusPending:   {AppointmentStatusRequested, AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusCancelled},
	AppointmentStatusRequested: {AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusCancelled},
	AppointmentStatusScheduled: {AppointmentStatusConfirmed, AppointmentStatusCompleted, AppointmentStatusCancelled},
	AppointmentStatusConfirmed: {AppointmentStatusCompleted, AppointmentStatusCancelled},
	AppointmentStatusCompleted: {},
	AppointmentStatusCancelled: {},
}

// CanTransition reports whether moving from one status to another is legal.
// A no-op transition to the same status is always allowed.
func CanTransition(from, to AppointmentStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Appointment links a patient and a doctor at a scheduled date and time.
// PatientName and DoctorName are display-name snapshots taken at write time;
// they are not refreshed when the referenced user is later renamed.
type Appointment struct {
	Base
	PatientID   string            `json:"patient_id" db:"patient_id"`
	DoctorID    string            `json:"doctor_id" db:"doctor_id"`
	PatientName string            `json:"patient_name"`
	DoctorName  string            `json:"doctor_name"`
	Date        string            `json:"date" db:"date"`
	Time        string            `json:"time"`
	Type        string            `json:"type"`
	Status      AppointmentStatus `json:"status"`
	Notes       string            `json:"notes,omitempty"`
}

func (a *Appointment) IndexValues() map[string]interface{} {
	return map[string]interface{}{
		"patient_id": a.PatientID,
		"doctor_id":  a.DoctorID,
		"date":       a.Date,
	}
}

type CreateAppointmentRequest struct {
	PatientID string            `json:"patient_id" validate:"required"`
	DoctorID  string            `json:"doctor_id" validate:"required"`
	Date      string            `json:"date" validate:"required,datetime=2006-01-02"`
	Time      string            `json:"time" validate:"required,datetime=15:04"`
	Type      string            `json:"type" validate:"required"`
	Status    AppointmentStatus `json:"status"`
	Notes     string            `json:"notes"`
}
