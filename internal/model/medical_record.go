package model

// MedicalRecord documents a single visit. PatientName is a write-time
// snapshot, same policy as on Appointment.
type MedicalRecord struct {
	Base
	PatientID     string         `json:"patient_id" db:"patient_id"`
	DoctorID      string         `json:"doctor_id" db:"doctor_id"`
	PatientName   string         `json:"patient_name"`
	Date          string         `json:"date" db:"date"`
	Diagnosis     string         `json:"diagnosis"`
	Treatment     string         `json:"treatment"`
	Prescriptions []Prescription `json:"prescriptions,omitempty"`
	Notes         string         `json:"notes,omitempty"`
}

type Prescription struct {
	Medication string `json:"medication"`
	Dosage     string `json:"dosage"`
	Frequency  string `json:"frequency"`
	Duration   string `json:"duration"`
}

func (m *MedicalRecord) IndexValues() map[string]interface{} {
	return map[string]interface{}{
		"patient_id": m.PatientID,
		"doctor_id":  m.DoctorID,
		"date":       m.Date,
	}
}

type CreateMedicalRecordRequest struct {
	PatientID     string         `json:"patient_id" validate:"required"`
	DoctorID      string         `json:"doctor_id"`
	Date          string         `json:"date" validate:"required,datetime=2006-01-02"`
	Diagnosis     string         `json:"diagnosis" validate:"required"`
	Treatment     string         `json:"treatment" validate:"required"`
	Prescriptions []Prescription `json:"prescriptions"`
	Notes         string         `json:"notes"`
}
