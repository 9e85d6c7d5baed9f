package predictions

import "time"

// Gender codes accepted by the patient API.
const (
	GenderMale   = "M"
	GenderFemale = "F"
	GenderOther  = "O"
)

// Patient is a registered patient record. PatientID is the clinic-assigned
// identifier; ID is the database key used in URLs.
type Patient struct {
	ID             int64     `json:"id,omitempty"`
	PatientID      string    `json:"patient_id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	DateOfBirth    string    `json:"date_of_birth"` // YYYY-MM-DD
	Gender         string    `json:"gender"`
	PhoneNumber    string    `json:"phone_number,omitempty"`
	Email          string    `json:"email,omitempty"`
	MedicalHistory string    `json:"medical_history,omitempty"`
	XRayCount      int       `json:"xray_count,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// Prediction is the externally-computed caries assessment for one X-ray.
type Prediction struct {
	ID                  int64     `json:"id,omitempty"`
	HasCaries           bool      `json:"has_caries"`
	ConfidenceScore     float64   `json:"confidence_score"`
	ConfidenceNoCaries  float64   `json:"confidence_no_caries"`
	ConfidenceHasCaries float64   `json:"confidence_has_caries"`
	PredictedClass      int       `json:"predicted_class,omitempty"`
	ProcessingTimeMS    float64   `json:"processing_time_ms"`
	ModelVersion        string    `json:"model_version,omitempty"`
	Status              string    `json:"status,omitempty"`
	Reviewed            bool      `json:"reviewed,omitempty"`
	DentistDiagnosis    *bool     `json:"dentist_diagnosis,omitempty"`
	DentistNotes        string    `json:"dentist_notes,omitempty"`
	CreatedAt           time.Time `json:"created_at,omitempty"`
}

// XRay describes an uploaded radiograph.
type XRay struct {
	ID          int64     `json:"id"`
	PatientID   int64     `json:"patient_id,omitempty"`
	PatientName string    `json:"patient_name,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at,omitempty"`
	ImageType   string    `json:"image_type,omitempty"`
	ToothRegion string    `json:"tooth_region,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
}

// Explainability is the attention visualization returned alongside a
// prediction.
type Explainability struct {
	AttentionHeatmap  string `json:"attention_heatmap,omitempty"`
	VisualizationType string `json:"visualization_type,omitempty"`
	Description       string `json:"description,omitempty"`
}

// Recommendations are the model's clinical follow-up suggestions. They are
// advisory text, never a diagnosis.
type Recommendations struct {
	Severity        string   `json:"severity,omitempty"`
	UrgencyLevel    string   `json:"urgency_level,omitempty"`
	ClinicalActions []string `json:"clinical_actions,omitempty"`
	PatientAdvice   []string `json:"patient_advice,omitempty"`
	FollowUp        string   `json:"follow_up,omitempty"`
	Disclaimer      string   `json:"disclaimer,omitempty"`
}

// UploadResult is the response to an upload-and-predict call.
type UploadResult struct {
	XRay            XRay             `json:"xray"`
	Prediction      Prediction       `json:"prediction"`
	Explainability  *Explainability  `json:"explainability,omitempty"`
	Recommendations *Recommendations `json:"recommendations,omitempty"`
}

// Stats are the dashboard counters for the current user.
type Stats struct {
	TotalPredictions  int     `json:"total_predictions"`
	WithCaries        int     `json:"with_caries"`
	WithoutCaries     int     `json:"without_caries"`
	TotalPatients     int     `json:"total_patients"`
	AverageConfidence float64 `json:"average_confidence"`
}

// Scan is one entry of a patient's scan history; Prediction is nil when the
// analysis never completed.
type Scan struct {
	ID          int64       `json:"id"`
	UploadedAt  time.Time   `json:"uploaded_at,omitempty"`
	ImageType   string      `json:"image_type,omitempty"`
	ToothRegion string      `json:"tooth_region,omitempty"`
	Notes       string      `json:"notes,omitempty"`
	ImageURL    string      `json:"image_url,omitempty"`
	Prediction  *Prediction `json:"prediction"`
}

// PatientSummary is the abbreviated patient record embedded in scan history.
type PatientSummary struct {
	ID          int64  `json:"id"`
	PatientID   string `json:"patient_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Gender      string `json:"gender,omitempty"`
}

// ScanHistory is the full scan list for one patient.
type ScanHistory struct {
	Patient    PatientSummary `json:"patient"`
	Scans      []Scan         `json:"scans"`
	TotalScans int            `json:"total_scans"`
}

// ScanDetails is a single scan with its prediction and, when the model can
// re-derive them, explainability and recommendations.
type ScanDetails struct {
	XRay            XRay             `json:"xray"`
	Prediction      *Prediction      `json:"prediction"`
	Explainability  *Explainability  `json:"explainability,omitempty"`
	Recommendations *Recommendations `json:"recommendations,omitempty"`
}
