package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/spark-ai/internal/imageprocessor"
	"github.com/example/spark-ai/internal/stats"
	"github.com/example/spark-ai/internal/usecase"
)

var uploadEndpoints = []string{"/process-image", "/enhance-image", "/generate-content"}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestRouter(t *testing.T, opts ...usecase.Option) (*gin.Engine, *usecase.SparkUseCase) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sim := imageprocessor.NewSimulator(0, zap.NewNop())
	uc := usecase.NewSparkUseCase(sim, sim, stats.New(), zap.NewNop(), opts...)

	router := gin.New()
	router.MaxMultipartMemory = uc.MaxUploadSize()
	RegisterRoutes(router, uc)
	return router, uc
}

func TestUploadEndpointsRejectNonImages(t *testing.T) {
	router, uc := newTestRouter(t)

	for _, path := range uploadEndpoints {
		body, contentType := buildMultipartBody(t, "notes.txt", "text/plain", nil)
		resp := post(router, path, body, contentType)

		require.Equal(t, http.StatusBadRequest, resp.Code, path)
		env := decodeEnvelope(t, resp)
		assert.False(t, env.Success)
		assert.Contains(t, env.Error, "image", path)
	}
	assert.Equal(t, int64(0), uc.Stats().TotalProcessed)
}

func TestProcessImageRejectsLargeUpload(t *testing.T) {
	router, _ := newTestRouter(t)

	body, contentType := buildMultipartBody(t, "huge.png", "image/png", bytes.Repeat([]byte("a"), int(usecase.DefaultMaxUploadSize)+1))
	resp := post(router, "/process-image", body, contentType)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "File size must be less than 10MB", decodeEnvelope(t, resp).Error)
}

func TestUploadEndpointsRequireFileField(t *testing.T) {
	router, _ := newTestRouter(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("note", "no file here"))
	require.NoError(t, writer.Close())

	resp := post(router, "/enhance-image", body, writer.FormDataContentType())
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "file is required", decodeEnvelope(t, resp).Error)
}

func TestUploadEndpointsAcceptSmallPNG(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range uploadEndpoints {
		body, contentType := buildMultipartBody(t, "pixel.png", "image/png", onePixelPNG(t))
		resp := post(router, path, body, contentType)

		require.Equal(t, http.StatusOK, resp.Code, path)
		assert.True(t, decodeEnvelope(t, resp).Success, path)
	}
}

func TestGenerateContentReturnsFixedListing(t *testing.T) {
	router, _ := newTestRouter(t)

	body, contentType := buildMultipartBody(t, "pixel.png", "image/png", onePixelPNG(t))
	resp := post(router, "/generate-content", body, contentType)
	require.Equal(t, http.StatusOK, resp.Code)

	var content map[string]string
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &content))
	assert.Equal(t, "Premium Cotton Kurta Set - Traditional Ethnic Wear", content["title"])
	assert.Equal(t, "Women's Ethnic Wear", content["category"])
	for _, key := range []string{"title", "description", "keywords", "category", "suggested_price"} {
		assert.Contains(t, content, key)
	}
}

func TestProcessImageEnvelope(t *testing.T) {
	router, _ := newTestRouter(t)

	body, contentType := buildMultipartBody(t, "kurta.png", "image/png", onePixelPNG(t))
	resp := post(router, "/process-image", body, contentType)
	require.Equal(t, http.StatusOK, resp.Code)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &data))
	assert.Regexp(t, `^proc_\d+$`, data["processing_id"])
	assert.Equal(t, "kurta.png", data["original_filename"])
	assert.Equal(t, "completed", data["status"])
	assert.Equal(t, 0.94, data["confidence"])
	assert.NotEmpty(t, data["enhanced_image"])
	assert.Contains(t, data, "generated_content")
	assert.Contains(t, data, "processing_time")
}

func TestUndecodableImageIsServerError(t *testing.T) {
	router, _ := newTestRouter(t)

	body, contentType := buildMultipartBody(t, "broken.png", "image/png", []byte("definitely not a png"))
	resp := post(router, "/enhance-image", body, contentType)

	require.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Contains(t, decodeEnvelope(t, resp).Error, "Image processing failed")
}

func TestStatsReflectProcessedCalls(t *testing.T) {
	router, _ := newTestRouter(t)

	const calls = 3
	for i := 0; i < calls; i++ {
		body, contentType := buildMultipartBody(t, "pixel.png", "image/png", onePixelPNG(t))
		require.Equal(t, http.StatusOK, post(router, "/enhance-image", body, contentType).Code)
	}

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var snap stats.Snapshot
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &snap))
	assert.Equal(t, int64(calls), snap.TotalProcessed)
	assert.Equal(t, stats.SuccessRate, snap.SuccessRate)
	assert.Less(t, snap.AvgProcessingTime, stats.InitialAverageProcessingTime)
}

func TestBannerAndHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var banner map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &banner))
	assert.Equal(t, ServiceName, banner["service"])
	assert.Equal(t, "running", banner["status"])
	assert.Contains(t, banner, "stats")

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.IsType(t, float64(0), health["timestamp"])
	assert.NotContains(t, health, "backend")
}

func TestStatusUnknownIDIsNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/status/proc_0", nil))

	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "result not found", decodeEnvelope(t, resp).Error)
}

type mapCache map[string]string

func (m mapCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m[key] = value.(string)
	return nil
}

func (m mapCache) Get(ctx context.Context, key string) (string, error) {
	value, ok := m[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func TestStatusReturnsRecordedRun(t *testing.T) {
	router, _ := newTestRouter(t, usecase.WithResultStore(mapCache{}, nil))

	body, contentType := buildMultipartBody(t, "kurta.png", "image/png", onePixelPNG(t))
	resp := post(router, "/process-image", body, contentType)
	require.Equal(t, http.StatusOK, resp.Code)

	var processed usecase.ProcessResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &processed))

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/status/"+processed.ProcessingID, nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var status usecase.ProcessingStatus
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &status))
	assert.Equal(t, processed.ProcessingID, status.ProcessingID)
	assert.Equal(t, "kurta.png", status.OriginalFilename)
	assert.Equal(t, imageprocessor.SampleContent, status.GeneratedContent)
}

func post(router *gin.Engine, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	return env
}

func onePixelPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func buildMultipartBody(t *testing.T, filename, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}
