package ward

// LoginRequest is the payload for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned from POST /api/auth/login. Servers send the
// access token as either "token" or "accessToken"; exactly one is set.
type LoginResponse struct {
	Token        string `json:"token"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user"`
}

// LogoutRequest is the payload for POST /api/auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// User is the signed-in nurse's profile.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Phone    string `json:"phone,omitempty"`
	Facility string `json:"facility,omitempty"`
}

// Vitals is one vital-signs reading for a patient.
type Vitals struct {
	HeartRate   int     `json:"heartRate"`
	SystolicBP  int     `json:"systolicBp"`
	DiastolicBP int     `json:"diastolicBp"`
	Temperature float64 `json:"temperature"`
	SpO2        int     `json:"spo2"`
	RecordedAt  string  `json:"recordedAt"`
}

// Patient is one roster entry with the latest vitals reading.
type Patient struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Room   string  `json:"room"`
	Age    int     `json:"age"`
	Notes  string  `json:"notes,omitempty"`
	Vitals *Vitals `json:"vitals"`
}

// RosterResponse is returned from GET /api/patients.
type RosterResponse struct {
	Patients []Patient `json:"patients"`
}

// VitalsUpdate is one message from the live vitals feed.
type VitalsUpdate struct {
	Op        string `json:"op"`
	PatientID string `json:"patientId"`
	Vitals    Vitals `json:"vitals"`
}
