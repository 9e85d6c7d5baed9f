package predictions_test

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tunzadent/dentclient/gateway"
	"github.com/tunzadent/dentclient/predictions"
)

// fakeClient is an in-memory Doer returning canned responses per path.
type fakeClient struct {
	lock      sync.Mutex
	responses map[string]any
	errs      map[string]error
	calls     []string
	forms     []*gateway.MultipartForm
	fileData  []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		responses: make(map[string]any),
		errs:      make(map[string]error),
	}
}

func (f *fakeClient) Do(_ context.Context, method, path string, _, out any) error {
	f.lock.Lock()
	f.calls = append(f.calls, method+" "+path)
	f.lock.Unlock()
	return f.respond(path, out)
}

func (f *fakeClient) DoMultipart(_ context.Context, path string, form *gateway.MultipartForm, out any) error {
	data, _ := io.ReadAll(form.File)
	f.lock.Lock()
	f.calls = append(f.calls, "MULTIPART "+path)
	f.forms = append(f.forms, form)
	f.fileData = append(f.fileData, string(data))
	f.lock.Unlock()
	return f.respond(path, out)
}

func (f *fakeClient) respond(path string, out any) error {
	f.lock.Lock()
	err, resp := f.errs[path], f.responses[path]
	f.lock.Unlock()
	if err != nil {
		return err
	}
	if resp == nil || out == nil {
		return nil
	}
	encoded, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		return marshalErr
	}
	return json.Unmarshal(encoded, out)
}

func setupService(t *testing.T) (*predictions.Service, *fakeClient) {
	t.Helper()
	client := newFakeClient()
	service, err := predictions.NewService(client)
	require.NoError(t, err)
	return service, client
}

func TestPatientsCRUDPaths(t *testing.T) {
	service, client := setupService(t)
	client.responses["/predictions/patients/"] = []map[string]any{
		{"id": 1, "patient_id": "P-001", "first_name": "Ada", "last_name": "Molar", "xray_count": 3},
	}
	client.responses["/predictions/patients/1/"] = map[string]any{
		"id": 1, "patient_id": "P-001", "first_name": "Ada", "last_name": "Molar",
	}

	patients, err := service.Patients(context.Background())
	require.NoError(t, err)
	require.Len(t, patients, 1)
	require.Equal(t, "P-001", patients[0].PatientID)
	require.Equal(t, 3, patients[0].XRayCount)

	patient, err := service.Patient(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "Ada", patient.FirstName)

	require.NoError(t, service.DeletePatient(context.Background(), 1))

	require.Equal(t, []string{
		"GET /predictions/patients/",
		"GET /predictions/patients/1/",
		"DELETE /predictions/patients/1/",
	}, client.calls)
}

func TestUploadAndPredictBuildsMultipartForm(t *testing.T) {
	service, client := setupService(t)
	client.responses["/predictions/upload-predict/"] = map[string]any{
		"xray": map[string]any{"id": 10, "image_type": "bitewing"},
		"prediction": map[string]any{
			"id": 20, "has_caries": true, "confidence_score": 0.93,
			"confidence_has_caries": 0.93, "confidence_no_caries": 0.07,
		},
		"recommendations": map[string]any{"urgency_level": "high"},
	}

	result, err := service.UploadAndPredict(context.Background(), predictions.Upload{
		PatientID:   1,
		FileName:    "bw-14.png",
		Image:       bytesReader("png-bytes"),
		ToothRegion: "14",
		Notes:       "distal shadow",
	})
	require.NoError(t, err)

	require.True(t, result.Prediction.HasCaries)
	require.InDelta(t, 0.93, result.Prediction.ConfidenceScore, 1e-9)
	require.Equal(t, "high", result.Recommendations.UrgencyLevel)

	require.Len(t, client.forms, 1)
	form := client.forms[0]
	require.Equal(t, "image", form.FileField)
	require.Equal(t, "bw-14.png", form.FileName)
	require.Equal(t, "1", form.Fields["patient_id"])
	require.Equal(t, "14", form.Fields["tooth_region"])
	require.Equal(t, "distal shadow", form.Fields["notes"])
	require.Equal(t, "png-bytes", client.fileData[0])
}

func TestUploadAndPredictRequiresPatientAndImage(t *testing.T) {
	service, client := setupService(t)

	_, err := service.UploadAndPredict(context.Background(), predictions.Upload{FileName: "x.png", Image: bytesReader("x")})
	require.Error(t, err)

	_, err = service.UploadAndPredict(context.Background(), predictions.Upload{PatientID: 1})
	require.Error(t, err)

	require.Empty(t, client.calls, "nothing should reach the network")
}

func TestPatientScansDecodesMissingPrediction(t *testing.T) {
	service, client := setupService(t)
	client.responses["/predictions/patients/7/scans/"] = map[string]any{
		"patient": map[string]any{"id": 7, "patient_id": "P-007", "first_name": "Ada", "last_name": "Molar"},
		"scans": []map[string]any{
			{"id": 1, "image_type": "bitewing", "prediction": map[string]any{"id": 2, "has_caries": false}},
			{"id": 2, "image_type": "bitewing", "prediction": nil},
		},
		"total_scans": 2,
	}

	history, err := service.PatientScans(context.Background(), 7)
	require.NoError(t, err)

	require.Equal(t, 2, history.TotalScans)
	require.NotNil(t, history.Scans[0].Prediction)
	require.Nil(t, history.Scans[1].Prediction, "scan without completed analysis")
}

func TestScanDetailsDecodesOptionalBlocks(t *testing.T) {
	service, client := setupService(t)
	client.responses["/predictions/scans/42/"] = map[string]any{
		"xray": map[string]any{"id": 42, "image_type": "periapical", "tooth_region": "26"},
		"prediction": map[string]any{
			"id": 9, "has_caries": true, "confidence_score": 0.81,
			"confidence_has_caries": 0.81, "confidence_no_caries": 0.19,
		},
		"explainability":  map[string]any{"visualization_type": "attention", "description": "occlusal focus"},
		"recommendations": map[string]any{"severity": "moderate", "urgency_level": "medium", "clinical_actions": []string{"bitewing follow-up"}},
	}

	details, err := service.ScanDetails(context.Background(), 42)
	require.NoError(t, err)

	require.Equal(t, []string{"GET /predictions/scans/42/"}, client.calls)
	require.Equal(t, int64(42), details.XRay.ID)
	require.Equal(t, "26", details.XRay.ToothRegion)
	require.True(t, details.Prediction.HasCaries)
	require.Equal(t, "occlusal focus", details.Explainability.Description)
	require.Equal(t, "moderate", details.Recommendations.Severity)
	require.Equal(t, []string{"bitewing follow-up"}, details.Recommendations.ClinicalActions)
}

func TestScanDetailsWithoutAnalysis(t *testing.T) {
	service, client := setupService(t)
	client.responses["/predictions/scans/43/"] = map[string]any{
		"xray":       map[string]any{"id": 43, "image_type": "bitewing"},
		"prediction": nil,
	}

	details, err := service.ScanDetails(context.Background(), 43)
	require.NoError(t, err)

	require.Nil(t, details.Prediction)
	require.Nil(t, details.Explainability)
	require.Nil(t, details.Recommendations)
}

func TestStats(t *testing.T) {
	service, client := setupService(t)
	client.responses["/predictions/stats/"] = map[string]any{
		"total_predictions": 12, "with_caries": 5, "without_caries": 7,
		"total_patients": 4, "average_confidence": 0.88,
	}

	stats, err := service.Stats(context.Background())
	require.NoError(t, err)

	require.Equal(t, 12, stats.TotalPredictions)
	require.Equal(t, 5, stats.WithCaries)
	require.Equal(t, 4, stats.TotalPatients)
	require.InDelta(t, 0.88, stats.AverageConfidence, 1e-9)
}

func bytesReader(s string) io.Reader {
	return &onceReader{data: []byte(s)}
}

// onceReader serves its payload a single time, like a real opened file.
type onceReader struct {
	data []byte
	done bool
}

func (r *onceReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	r.done = true
	return copy(p, r.data), nil
}
