package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urbanbigdatacentre/cctv-gcc-api/config"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/db/repository"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/ingest"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/cameras"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/exclusion"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/services/query"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPIN   = "4711"
	tf2Header = "image_proc,image_capt,camera_ref,model_name,car,person,bicycle,motorcycle,bus,truck,warnings"
)

type testServer struct {
	router *gin.Engine
	repo   *repository.SQLiteRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open(filepath.Join(t.TempDir(), "cctv.db"))
	require.NoError(t, err)
	repo := repository.NewSQLiteRepository(conn)

	pool := ingest.NewPool(ingest.NewIngester(repo, cameras.NewService(repo), 0), 2)
	t.Cleanup(pool.Shutdown)
	registry := exclusion.NewRegistry(repo)

	cfg := &config.Config{
		Server: config.ServerConfig{
			UploadPIN:     testPIN,
			SessionSecret: "test-secret",
			CORSOrigins:   []string{"*"},
			Version:       "1.2.3",
		},
		Ingest: config.IngestConfig{BatchSize: 1000, MaxUploadMB: 1},
		I18n:   config.I18nConfig{DefaultLanguage: "en"},
	}
	router, err := NewRouter(Dependencies{
		Config:     cfg,
		Repo:       repo,
		Pool:       pool,
		Exclusions: registry,
		Composer:   query.NewComposer(repo, registry),
	})
	require.NoError(t, err)
	return &testServer{router: router, repo: repo}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) get(path string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func gzipReport(t *testing.T, rows ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(strings.Join(append([]string{tf2Header}, rows...), "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func uploadRequest(t *testing.T, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/records/upload_report", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestUploadFormIsLocalized(t *testing.T) {
	s := newTestServer(t)

	w := s.get("/records/upload_report")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Upload detection report")
	assert.Contains(t, w.Body.String(), `name="pin-code"`)

	w = s.get("/records/upload_report?lang=de")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Erkennungsbericht hochladen")
}

func TestUploadRejectsWrongPIN(t *testing.T) {
	s := newTestServer(t)
	report := gzipReport(t, "2023-01-01 12:00:05,2023-01-01 12:00:00,cam01,tf2,1,2,0,0,1,0,0")

	for _, fields := range []map[string]string{{}, {"pin-code": "wrong-pin"}} {
		w := s.do(uploadRequest(t, fields, map[string][]byte{"report.csv.gz": report}))
		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"status_code":401,"message":"unauthorized"}`, w.Body.String())
	}

	n, err := s.repo.CountRecords(context.Background(), models.ModelTF2)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUploadStoresReport(t *testing.T) {
	s := newTestServer(t)
	report := gzipReport(t,
		"2023-01-01 12:00:05,2023-01-01 12:00:00,cam01,tf2,1,2,0,0,1,0,0",
		"2023-01-01 12:10:05,2023-01-01 12:10:00,cam01,tf2,3,2,0,0,1,0,0",
	)

	w := s.do(uploadRequest(t, map[string]string{"pin-code": testPIN}, map[string][]byte{"report.csv.gz": report}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Status              string           `json:"status"`
		Message             string           `json:"message"`
		HaveUnknownCameras  bool             `json:"have_unknown_cameras"`
		PKsOfUnknownCameras []uint           `json:"pks_of_unknown_cameras"`
		RowsWritten         int64            `json:"rows_written"`
		Files               []*ingest.Result `json:"files"`
	}
	decode(t, w, &body)
	assert.Equal(t, ingest.StatusOK, body.Status)
	assert.Equal(t, ingest.SuccessMessage, body.Message)
	assert.True(t, body.HaveUnknownCameras)
	assert.Len(t, body.PKsOfUnknownCameras, 1)
	assert.Equal(t, int64(2), body.RowsWritten)
	assert.Len(t, body.Files, 1)

	// re-uploading without overwrite leaves the data alone
	w = s.do(uploadRequest(t, map[string]string{"pin-code": testPIN}, map[string][]byte{"report.csv.gz": report}))
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.Zero(t, body.RowsWritten)

	n, err := s.repo.CountRecords(context.Background(), models.ModelTF2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestUploadKeepsFileOrder(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range []struct{ field, name, row string }{
		{"z_report", "monday.csv.gz", "2023-01-02 12:00:05,2023-01-02 12:00:00,cam01,tf2,1,0,0,0,0,0,0"},
		{"a_report", "tuesday.csv.gz", "2023-01-03 12:00:05,2023-01-03 12:00:00,cam01,tf2,2,0,0,0,0,0,0"},
	} {
		fw, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = fw.Write(gzipReport(t, f.row))
		require.NoError(t, err)
	}
	// the PIN may follow the files
	require.NoError(t, mw.WriteField("pin-code", testPIN))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/records/upload_report", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Source string           `json:"source"`
		Files  []*ingest.Result `json:"files"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Files, 2)
	assert.Equal(t, "monday.csv.gz", resp.Files[0].Source)
	assert.Equal(t, "tuesday.csv.gz", resp.Files[1].Source)
	assert.Equal(t, "tuesday.csv.gz", resp.Source, "top level carries the last file")
}

func TestUploadReportsRowErrors(t *testing.T) {
	s := newTestServer(t)
	report := gzipReport(t,
		"2023-01-01 12:00:05,2023-01-01 12:00:00,cam01,tf2,1,2,0,0,1,0,0",
		"2023-01-01 12:10:05,2023-01-01 12:10:00,cam01,tf2,1,lots,0,0,1,0,0",
	)

	w := s.do(uploadRequest(t, map[string]string{"pin-code": testPIN}, map[string][]byte{"report.csv.gz": report}))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, float64(3), body["line"])
	assert.Equal(t, "person", body["field"])

	n, err := s.repo.CountRecords(context.Background(), models.ModelTF2)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is stored from an invalid file")
}

func TestUploadRejectsPlainCSV(t *testing.T) {
	s := newTestServer(t)
	plain := []byte(tf2Header + "\n2023-01-01 12:00:05,2023-01-01 12:00:00,cam01,tf2,1,2,0,0,1,0,0\n")

	w := s.do(uploadRequest(t, map[string]string{"pin-code": testPIN}, map[string][]byte{"report.csv": plain}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), ingest.ErrUnsupportedArchive.Error())
}

func TestUploadWithoutFiles(t *testing.T) {
	s := newTestServer(t)
	w := s.do(uploadRequest(t, map[string]string{"pin-code": testPIN}, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func seedRecords(t *testing.T, s *testServer) *models.Camera {
	t.Helper()
	ctx := context.Background()
	label, lon, lat := "George Sq", -4.25, 55.86
	cam := &models.Camera{Ref: "cam01", Label: &label, Longitude: &lon, Latitude: &lat}
	require.NoError(t, s.repo.SaveCamera(ctx, cam))

	ok := true
	var values []models.RecordValues
	for h := 0; h < 4; h++ {
		values = append(values, models.RecordValues{
			CameraID:  cam.ID,
			Timestamp: time.Date(2023, 1, 1, h, 0, 0, 0, time.UTC),
			CameraOK:  &ok,
			Counts:    map[string]int{"cars": h + 1},
		})
	}
	_, err := s.repo.UpsertRecords(ctx, models.ModelTF2, values, false, 1000)
	require.NoError(t, err)
	return cam
}

func TestRecordsEndpoint(t *testing.T) {
	s := newTestServer(t)
	seedRecords(t, s)

	w := s.get("/api/v1/tf2/records?page_size=3")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page struct {
		Count    int64                    `json:"count"`
		PageSize int                      `json:"page_size"`
		Results  []map[string]interface{} `json:"results"`
	}
	decode(t, w, &page)
	assert.Equal(t, int64(4), page.Count)
	assert.Equal(t, 3, page.PageSize)
	require.Len(t, page.Results, 3)
	assert.Equal(t, float64(4), page.Results[0]["cars"], "newest first")

	w = s.get("/api/v1/tf2/records?date_before=2023-01-01")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &page)
	assert.Equal(t, int64(4), page.Count, "date_before includes the whole day")

	w = s.get("/api/v1/tf2/records?date_before=2022-12-31")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &page)
	assert.Zero(t, page.Count)

	w = s.get("/api/v1/tf2/records?date_after=2023-01-02")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &page)
	assert.Zero(t, page.Count)

	assert.Equal(t, http.StatusBadRequest, s.get("/api/v1/tf2/records?date_after=01-01-2023").Code)
	assert.Equal(t, http.StatusBadRequest, s.get("/api/v1/tf2/records?camera_ok=maybe").Code)
	assert.Equal(t, http.StatusBadRequest, s.get("/api/v1/tf2/records?page=0").Code)
	assert.Equal(t, http.StatusNotFound, s.get("/api/v1/tf3/records").Code)
}

func TestExclusionsHideRecords(t *testing.T) {
	s := newTestServer(t)
	cam := seedRecords(t, s)

	payload := `{"camera_id": ` + jsonUint(cam.ID) + `, "model": "tf2",
		"from_datetime": "2023-01-01T01:00:00Z", "to_datetime": "2023-01-01T02:00:00Z"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/exclusions/ranges", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusUnauthorized, s.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/exclusions/ranges", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Upload-Pin", testPIN)
	w := s.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.ExclusionRange
	decode(t, w, &created)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/exclusions/ranges", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Upload-Pin", testPIN)
	assert.Equal(t, http.StatusConflict, s.do(req).Code)

	w = s.get("/api/v1/tf2/records")
	var page struct {
		Count int64 `json:"count"`
	}
	decode(t, w, &page)
	assert.Equal(t, int64(2), page.Count)

	// other models are unaffected by a tf2 range
	w = s.get("/api/v1/exclusions?model=tf1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = s.get("/api/v1/exclusions?camera=CAM%2001")
	require.Equal(t, http.StatusOK, w.Code)
	var merged []exclusion.CameraExclusions
	decode(t, w, &merged)
	require.Len(t, merged, 1)
	assert.Equal(t, cam.ID, merged[0].CameraID)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/exclusions/ranges/"+jsonUint(created.ID), nil)
	req.Header.Set("X-Upload-Pin", testPIN)
	assert.Equal(t, http.StatusOK, s.do(req).Code)
	assert.Equal(t, http.StatusNotFound, s.do(req).Code)
}

func TestCreateExclusionValidation(t *testing.T) {
	s := newTestServer(t)
	cam := seedRecords(t, s)

	payload := `{"camera_id": ` + jsonUint(cam.ID) + `, "model": "tf2",
		"from_datetime": "2023-01-02T00:00:00Z", "to_datetime": "2023-01-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/exclusions/ranges", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Upload-Pin", testPIN)
	w := s.do(req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, w, &body)
	assert.Contains(t, body.Fields, "from_datetime")
	assert.Contains(t, body.Fields, "to_datetime")
}

func TestAggregateAndHistoricEndpoints(t *testing.T) {
	s := newTestServer(t)
	cam := seedRecords(t, s)

	w := s.get("/api/v1/tf2/aggregate?aggregation=day&aggregation_method=sum")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var buckets []map[string]interface{}
	decode(t, w, &buckets)
	require.Len(t, buckets, 1)
	assert.Equal(t, float64(10), buckets[0]["carsAgg"])

	assert.Equal(t, http.StatusBadRequest, s.get("/api/v1/tf2/aggregate?aggregation=decade").Code)
	assert.Equal(t, http.StatusBadRequest, s.get("/api/v1/tf2/aggregate?aggregation_method=median").Code)

	q := url.Values{}
	q.Set("aggregation", "day")
	q.Set("aggregation_method", "max")
	q.Set("date_after", "01-01-2023")
	q.Add("object", "cars")
	q.Add("camera_id", jsonUint(cam.ID))
	w = s.get("/api/v1/tf2/historic?" + q.Encode())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var historic query.HistoricResult
	decode(t, w, &historic)
	assert.Equal(t, []uint{cam.ID}, historic.CameraLocations)
	require.Len(t, historic.Records, 1)
	assert.Equal(t, float64(4), historic.Records[0].Value)

	assert.Equal(t, http.StatusBadRequest, s.get("/api/v1/tf2/historic?object=trams").Code)
	assert.Equal(t, http.StatusBadRequest, s.get("/api/v1/tf2/historic?date_after=2023-01-01").Code)
}

func TestCameraGroupAndVersionEndpoints(t *testing.T) {
	s := newTestServer(t)
	cam := seedRecords(t, s)
	require.NoError(t, s.repo.SaveCamera(context.Background(), &models.Camera{Ref: "cam02"}))

	w := s.get("/api/v1/cameras")
	require.Equal(t, http.StatusOK, w.Code)
	var cams []models.Camera
	decode(t, w, &cams)
	require.Len(t, cams, 1, "only complete cameras with records are listed")
	assert.Equal(t, "cam01", cams[0].Ref)

	assert.Equal(t, http.StatusOK, s.get("/api/v1/cameras/"+jsonUint(cam.ID)).Code)
	assert.Equal(t, http.StatusNotFound, s.get("/api/v1/cameras/999").Code)
	assert.Equal(t, http.StatusBadRequest, s.get("/api/v1/cameras/abc").Code)

	w = s.get("/api/v1/camera-groups")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String(), "the default group is hidden")
	assert.Equal(t, http.StatusNotFound, s.get("/api/v1/camera-groups/1").Code)

	w = s.get("/api/v1/version")
	require.Equal(t, http.StatusOK, w.Code)
	var version struct {
		Version          string     `json:"version"`
		LatestRecordTime *time.Time `json:"latest_record_time"`
	}
	decode(t, w, &version)
	assert.Equal(t, "1.2.3", version.Version)
	require.NotNil(t, version.LatestRecordTime)
	assert.True(t, version.LatestRecordTime.Equal(time.Date(2023, 1, 1, 3, 0, 0, 0, time.UTC)))
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := s.get("/api/v1/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string `json:"status"`
		System struct {
			WorkerCount int `json:"worker_count"`
		} `json:"system"`
	}
	decode(t, w, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 2, body.System.WorkerCount)

	w = s.get("/api/v1/uploads")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func jsonUint(n uint) string {
	b, _ := json.Marshal(n)
	return string(b)
}
