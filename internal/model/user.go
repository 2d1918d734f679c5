package model

// Role discriminates the user union. It is immutable after creation.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// Valid reports whether the role is one of the known variants.
func (r Role) Valid() bool {
	switch r {
	case RoleDoctor, RolePatient:
		return true
	}
	return false
}

// User is the single source-of-truth record for both patients and doctors.
// Exactly one of Patient/Doctor is non-nil, matching Role; role-filtered
// views are derived via the role index rather than mirrored collections.
type User struct {
	Base
	Name         string `json:"name" db:"name"`
	Email        string `json:"email" db:"email"`
	PasswordHash string `json:"password_hash,omitempty" db:"password_hash"`
	Role         Role   `json:"role" db:"role"`
	Phone        string `json:"phone,omitempty"`

	Patient *PatientProfile `json:"patient,omitempty"`
	Doctor  *DoctorProfile  `json:"doctor,omitempty"`
}

// PatientProfile holds the patient-only fields of the user union.
type PatientProfile struct {
	DateOfBirth      string            `json:"date_of_birth,omitempty"`
	Gender           string            `json:"gender,omitempty"`
	Address          string            `json:"address,omitempty"`
	MedicalHistory   string            `json:"medical_history,omitempty"`
	Allergies        []string          `json:"allergies,omitempty"`
	Medications      []string          `json:"medications,omitempty"`
	BloodType        string            `json:"blood_type,omitempty"`
	Height           string            `json:"height,omitempty"`
	Weight           string            `json:"weight,omitempty"`
	EmergencyContact *EmergencyContact `json:"emergency_contact,omitempty"`
	DoctorIDs        []string          `json:"doctor_ids,omitempty"`
}

// DoctorProfile holds the doctor-only fields of the user union.
type DoctorProfile struct {
	Specialty     string   `json:"specialty,omitempty"`
	Bio           string   `json:"bio,omitempty"`
	LicenseNumber string   `json:"license_number,omitempty"`
	Education     []string `json:"education,omitempty"`
	Experience    []string `json:"experience,omitempty"`
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

func (u *User) IndexValues() map[string]interface{} {
	return map[string]interface{}{
		"email": u.Email,
		"role":  string(u.Role),
	}
}

// CreateUserRequest represents registration parameters.
type CreateUserRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     Role   `json:"role" validate:"required,oneof=doctor patient"`
	Phone    string `json:"phone"`

	Patient *PatientProfile `json:"patient,omitempty"`
	Doctor  *DoctorProfile  `json:"doctor,omitempty"`
}
