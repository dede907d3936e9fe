package handle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"screenmind/api/internal/analysis"
	"screenmind/api/internal/question"
	"screenmind/api/internal/store"
	"screenmind/api/internal/vision"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeClient struct {
	cfg  vision.ProviderConfig
	text string
	err  error
}

func (f *fakeClient) Provider() vision.ProviderConfig { return f.cfg }

func (f *fakeClient) Generate(context.Context, []byte, string, string) (string, error) {
	return f.text, f.err
}

type memSettings struct {
	mu        sync.Mutex
	selection [2]string
	creds     map[string]string
	failSave  bool
}

func (m *memSettings) SaveSelection(_ context.Context, p, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("db down")
	}
	m.selection = [2]string{p, model}
	return nil
}

func (m *memSettings) SaveCredential(_ context.Context, p, k string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("db down")
	}
	m.creds[p] = k
	return nil
}

func (m *memSettings) DeleteCredential(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("db down")
	}
	if _, ok := m.creds[p]; !ok {
		return store.ErrNotFound
	}
	delete(m.creds, p)
	return nil
}

type fixture struct {
	router   *gin.Engine
	svc      *analysis.Service
	settings *memSettings
}

func newFixture(t *testing.T, text string, genErr error, creds map[string]string, opts Options) fixture {
	t.Helper()
	factory := func(p vision.ProviderConfig, _ string) (vision.Client, error) {
		return &fakeClient{cfg: p, text: text, err: genErr}, nil
	}
	svc := analysis.NewService("qwen", "qwen-vl-plus", analysis.WithClientFactory(factory), analysis.WithCredentials(creds))
	settings := &memSettings{creds: map[string]string{}}
	h := New(svc, question.NewAnalyzer(svc), settings, opts)
	return fixture{router: h.Router(), svc: svc, settings: settings}
}

func (f fixture) do(req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func multipartImage(t *testing.T, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="shot.png"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, _ = part.Write(data)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, path string, v any) *http.Request {
	b, _ := json.Marshal(v)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func blankPNG(t *testing.T) []byte {
	t.Helper()
	b, err := vision.BlankPNG(20, 10)
	require.NoError(t, err)
	return b
}

const reply = "题目类型：选择题\n题目内容：1+1=?\nA.1 B.2 C.3\n正确答案：B\n解析：基础算术"

func TestAnalyze(t *testing.T) {
	f := newFixture(t, reply, nil, map[string]string{"qwen": "k"}, Options{})

	w, body := f.do(multipartImage(t, "image/png", blankPNG(t)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "选择题", data["question_type"])
	assert.Equal(t, "1+1=?\nA.1 B.2 C.3", data["question_content"])
	assert.Equal(t, "B", data["answer"])
	assert.Equal(t, "qwen-vl-plus", data["model_used"])
	assert.Equal(t, "image/png", data["image_format"])
	assert.EqualValues(t, 20, data["image_width"])
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestAnalyze_JSONBody(t *testing.T) {
	f := newFixture(t, reply, nil, map[string]string{"qwen": "k"}, Options{})
	b64 := "data:image/png;base64," + base64.StdEncoding.EncodeToString(blankPNG(t))

	w, body := f.do(jsonRequest(http.MethodPost, "/api/v1/analyze", AnalyzeRequest{ImageB64: b64}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "B", body["data"].(map[string]any)["answer"])
}

func TestAnalyze_Rejections(t *testing.T) {
	f := newFixture(t, reply, nil, map[string]string{"qwen": "k"}, Options{MaxUploadBytes: 1024})

	w, _ := f.do(multipartImage(t, "text/plain", blankPNG(t)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := f.do(multipartImage(t, "image/png", []byte("not really a png")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_image", body["error_kind"])

	w, _ = f.do(multipartImage(t, "image/png", bytes.Repeat([]byte{0x89}, 4096)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w, _ = f.do(jsonRequest(http.MethodPost, "/api/v1/analyze", AnalyzeRequest{ImageB64: "%%%"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyze_ClassifiedFailures(t *testing.T) {
	tests := []struct {
		name  string
		creds map[string]string
		err   error
		code  int
		kind  string
	}{
		{"not configured", nil, nil, http.StatusServiceUnavailable, "not_configured"},
		{"bad key", map[string]string{"qwen": "k"}, &vision.Error{Kind: vision.KindUnauthenticated, Provider: "qwen"}, http.StatusUnauthorized, "invalid_credential"},
		{"throttled", map[string]string{"qwen": "k"}, errors.New("quota exceeded"), http.StatusTooManyRequests, "rate_limited"},
		{"unknown", map[string]string{"qwen": "k"}, errors.New("boom"), http.StatusBadGateway, "unclassified_provider_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "", tt.err, tt.creds, Options{})
			w, body := f.do(multipartImage(t, "image/png", blankPNG(t)))
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.kind, body["error_kind"])
			assert.True(t, strings.HasPrefix(body["error"].(string), "错误:"))
		})
	}
}

func TestModels(t *testing.T) {
	f := newFixture(t, "", nil, nil, Options{})
	w, body := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Len(t, data, 3)
	assert.Equal(t, "Google Gemini", data["gemini"].(map[string]any)["name"])

	w, body = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/config/models", nil))
	require.Equal(t, http.StatusOK, w.Code)
	cur := body["data"].(map[string]any)["current_config"].(map[string]any)
	assert.Equal(t, "qwen", cur["provider"])
}

func TestAPIKeyLifecycle(t *testing.T) {
	f := newFixture(t, "ok", nil, nil, Options{})

	w, _ := f.do(jsonRequest(http.MethodPost, "/api/v1/config/api-key", APIKeyRequest{Provider: "claude", APIKey: "x"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(jsonRequest(http.MethodPost, "/api/v1/config/api-key", APIKeyRequest{Provider: "qwen", APIKey: "sk-q"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sk-q", f.settings.creds["qwen"])
	assert.True(t, f.svc.CredentialStatus()["qwen"])

	w, body := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/config/settings", nil))
	require.Equal(t, http.StatusOK, w.Code)
	configured := body["data"].(map[string]any)["api_keys_configured"].(map[string]any)
	assert.Equal(t, true, configured["qwen"])
	assert.Equal(t, false, configured["gemini"])

	w, _ = f.do(httptest.NewRequest(http.MethodDelete, "/api/v1/config/api-key/qwen", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.svc.CredentialStatus()["qwen"])
	assert.Empty(t, f.settings.creds)

	// deleting again is not an error
	w, _ = f.do(httptest.NewRequest(http.MethodDelete, "/api/v1/config/api-key/qwen", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(httptest.NewRequest(http.MethodDelete, "/api/v1/config/api-key/nope", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetModel(t *testing.T) {
	f := newFixture(t, "ok", nil, nil, Options{})

	w, _ := f.do(jsonRequest(http.MethodPost, "/api/v1/config/model", ModelConfigRequest{Provider: "gemini", Model: "gpt-4o"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := f.do(jsonRequest(http.MethodPost, "/api/v1/config/model", ModelConfigRequest{Provider: "gemini", Model: "gemini-1.5-pro", APIKey: "g"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "gemini", body["data"].(map[string]any)["provider"])
	assert.Equal(t, [2]string{"gemini", "gemini-1.5-pro"}, f.settings.selection)
	assert.Equal(t, "g", f.settings.creds["gemini"])

	f.settings.failSave = true
	w, _ = f.do(jsonRequest(http.MethodPost, "/api/v1/config/model", ModelConfigRequest{Provider: "openai", Model: "gpt-4o", APIKey: "o"}))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// a failed save leaves the running selection alone
	provider, model := f.svc.Selection()
	assert.Equal(t, "gemini", provider)
	assert.Equal(t, "gemini-1.5-pro", model)
	assert.False(t, f.svc.CredentialStatus()["openai"])
}

func TestAPIKeyFailedSaveChangesNothing(t *testing.T) {
	f := newFixture(t, "ok", nil, map[string]string{"gemini": "g-old"}, Options{})
	f.settings.creds["gemini"] = "g-old"
	f.settings.failSave = true

	w, _ := f.do(jsonRequest(http.MethodPost, "/api/v1/config/api-key", APIKeyRequest{Provider: "qwen", APIKey: "sk-q"}))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, f.svc.CredentialStatus()["qwen"])

	w, _ = f.do(httptest.NewRequest(http.MethodDelete, "/api/v1/config/api-key/gemini", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, f.svc.CredentialStatus()["gemini"])

	w, _ = f.do(jsonRequest(http.MethodPost, "/api/v1/config/api-key", APIKeyRequest{Provider: "qwen", APIKey: "   "}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTestConnection(t *testing.T) {
	f := newFixture(t, "白色图片", nil, map[string]string{"qwen": "k"}, Options{})
	w, body := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/config/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	f = newFixture(t, "", nil, nil, Options{})
	w, _ = f.do(httptest.NewRequest(http.MethodPost, "/api/v1/config/test", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t, "", nil, nil, Options{})
	w, body := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	w, body = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "not_configured", body["ai_service"])
	assert.Equal(t, "qwen", body["model"].(map[string]any)["provider"])
}

func TestRateLimiter(t *testing.T) {
	f := newFixture(t, "", nil, nil, Options{RateLimitRPS: 0.001})
	w, _ := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestStripDataURL(t *testing.T) {
	assert.Equal(t, "QUJD", stripDataURL(" data:image/png;base64,QUJD "))
	assert.Equal(t, "QUJD", stripDataURL("QUJD"))
}
