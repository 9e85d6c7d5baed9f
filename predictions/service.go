// Package predictions wraps the /predictions/ API surface: patient records,
// X-ray upload with externally-computed caries detection, dashboard stats
// and per-patient scan history. The image analysis itself happens entirely
// on the backend; this package only moves data.
package predictions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"github.com/tunzadent/dentclient/gateway"
)

// Doer is the predictions service's view of the gateway client.
type Doer interface {
	Do(ctx context.Context, method, path string, body, out any) error
	DoMultipart(ctx context.Context, path string, form *gateway.MultipartForm, out any) error
}

// Service provides clinical-data operations over the gateway.
type Service struct {
	client Doer
}

// NewService initializes a predictions Service.
func NewService(client Doer) (*Service, error) {
	if client == nil {
		return nil, errors.New("[predictions.NewService] client is required")
	}
	return &Service{client: client}, nil
}

// Patients lists all patients registered by the current user.
func (s *Service) Patients(ctx context.Context) ([]Patient, error) {
	var patients []Patient
	if err := s.client.Do(ctx, http.MethodGet, "/predictions/patients/", nil, &patients); err != nil {
		return nil, errors.Wrap(err, "[Patients]")
	}
	return patients, nil
}

// Patient fetches a single patient record.
func (s *Service) Patient(ctx context.Context, id int64) (*Patient, error) {
	var patient Patient
	if err := s.client.Do(ctx, http.MethodGet, patientPath(id), nil, &patient); err != nil {
		return nil, errors.Wrap(err, "[Patient]")
	}
	return &patient, nil
}

// CreatePatient registers a new patient.
func (s *Service) CreatePatient(ctx context.Context, patient Patient) (*Patient, error) {
	var created Patient
	if err := s.client.Do(ctx, http.MethodPost, "/predictions/patients/", patient, &created); err != nil {
		return nil, errors.Wrap(err, "[CreatePatient]")
	}
	return &created, nil
}

// UpdatePatient replaces a patient record.
func (s *Service) UpdatePatient(ctx context.Context, id int64, patient Patient) (*Patient, error) {
	var updated Patient
	if err := s.client.Do(ctx, http.MethodPut, patientPath(id), patient, &updated); err != nil {
		return nil, errors.Wrap(err, "[UpdatePatient]")
	}
	return &updated, nil
}

// DeletePatient removes a patient and all their scans.
func (s *Service) DeletePatient(ctx context.Context, id int64) error {
	if err := s.client.Do(ctx, http.MethodDelete, patientPath(id), nil, nil); err != nil {
		return errors.Wrap(err, "[DeletePatient]")
	}
	return nil
}

func patientPath(id int64) string {
	return fmt.Sprintf("/predictions/patients/%d/", id)
}

// Upload describes one radiograph to submit for analysis.
type Upload struct {
	PatientID   int64
	FileName    string
	Image       io.Reader
	ImageType   string // defaults to bitewing on the server
	ToothRegion string
	Notes       string
}

// UploadAndPredict submits an X-ray and returns the stored scan with its
// prediction. The call blocks until the backend has run the model.
func (s *Service) UploadAndPredict(ctx context.Context, upload Upload) (*UploadResult, error) {
	if upload.PatientID == 0 {
		return nil, errors.New("[UploadAndPredict] patient ID is required")
	}
	if upload.Image == nil || upload.FileName == "" {
		return nil, errors.New("[UploadAndPredict] image and file name are required")
	}

	fields := map[string]string{
		"patient_id": strconv.FormatInt(upload.PatientID, 10),
	}
	if upload.ImageType != "" {
		fields["image_type"] = upload.ImageType
	}
	if upload.ToothRegion != "" {
		fields["tooth_region"] = upload.ToothRegion
	}
	if upload.Notes != "" {
		fields["notes"] = upload.Notes
	}

	form := &gateway.MultipartForm{
		Fields:    fields,
		FileField: "image",
		FileName:  upload.FileName,
		File:      upload.Image,
	}

	var result UploadResult
	if err := s.client.DoMultipart(ctx, "/predictions/upload-predict/", form, &result); err != nil {
		return nil, errors.Wrap(err, "[UploadAndPredict]")
	}
	return &result, nil
}

// Stats fetches the dashboard counters.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := s.client.Do(ctx, http.MethodGet, "/predictions/stats/", nil, &stats); err != nil {
		return nil, errors.Wrap(err, "[Stats]")
	}
	return &stats, nil
}

// PatientScans fetches the scan history for one patient, newest first.
func (s *Service) PatientScans(ctx context.Context, patientID int64) (*ScanHistory, error) {
	var history ScanHistory
	path := fmt.Sprintf("/predictions/patients/%d/scans/", patientID)
	if err := s.client.Do(ctx, http.MethodGet, path, nil, &history); err != nil {
		return nil, errors.Wrap(err, "[PatientScans]")
	}
	return &history, nil
}

// ScanDetails fetches one scan with its prediction and any explainability
// data the backend can regenerate.
func (s *Service) ScanDetails(ctx context.Context, scanID int64) (*ScanDetails, error) {
	var details ScanDetails
	path := fmt.Sprintf("/predictions/scans/%d/", scanID)
	if err := s.client.Do(ctx, http.MethodGet, path, nil, &details); err != nil {
		return nil, errors.Wrap(err, "[ScanDetails]")
	}
	return &details, nil
}
