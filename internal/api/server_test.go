package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftshare/driftshare/internal/config"
	"github.com/driftshare/driftshare/internal/share"
	"github.com/driftshare/driftshare/internal/storage"
)

type fakeHasher struct{}

func (fakeHasher) Hash(plaintext string) (string, error) { return plaintext, nil }

func (fakeHasher) Verify(hash, plaintext string) bool {
	return hash == "" || hash == plaintext
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestServer(t *testing.T) (*Server, *testClock) {
	t.Helper()
	cfg := &config.Config{
		Address:     ":0",
		BaseURL:     "http://share.test",
		MaxFileSize: 1 << 20,
	}
	policy := share.Policy{
		TTLMinMillis:     180000,
		TTLMaxMillis:     86400000,
		TTLDefaultMillis: 86400000,
		MinDownloads:     3,
		MaxDownloads:     50,
	}
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	engine := share.NewEngine(storage.NewMemoryBlobStore(), storage.NewMemoryStore(),
		fakeHasher{}, policy, zerolog.Nop(), share.WithClock(clock.Now))
	return New(cfg, engine, zerolog.Nop()), clock
}

func multipartUpload(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func createTestShare(t *testing.T, srv *Server, fields map[string]string) (locator string) {
	t.Helper()
	body, contentType := multipartUpload(t, fields, "hello.txt", "hello drifting world")
	req := httptest.NewRequest(http.MethodPost, "/shares", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["locator"])
	assert.Equal(t, "http://share.test/"+resp["locator"], resp["url"])
	return resp["locator"]
}

func lookupShare(t *testing.T, srv *Server, locator string) share.LookupResult {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/shares/"+locator, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result share.LookupResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func requestAccess(t *testing.T, srv *Server, id, password string) *httptest.ResponseRecorder {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"password": password})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/files/%s/access", id), bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func download(t *testing.T, srv *Server, id string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/files/%s/download", id), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadLookupAccessDownloadFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	locator := createTestShare(t, srv, map[string]string{
		"max_downloads": "3",
		"ttl_ms":        "180000",
	})

	result := lookupShare(t, srv, locator)
	assert.Equal(t, int64(180000), result.TTLMillis)
	assert.False(t, result.HasPassword)

	rec := requestAccess(t, srv, result.ID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var meta share.AccessMeta
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, "hello.txt", meta.FileName)
	assert.Equal(t, int64(20), meta.SizeBytes)
	require.NotNil(t, meta.RemainingDownloads)
	assert.Equal(t, 3, *meta.RemainingDownloads)

	dl := download(t, srv, result.ID)
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, "hello drifting world", dl.Body.String())
	assert.Equal(t, `attachment; filename="hello.txt"`, dl.Header().Get("Content-Disposition"))
	assert.Equal(t, "20", dl.Header().Get("Content-Length"))

	// The download consumed one unit; the preview reflects it without
	// consuming another.
	rec = requestAccess(t, srv, result.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, 2, *meta.RemainingDownloads)
}

func TestDownloadBudgetExhaustion(t *testing.T) {
	srv, _ := newTestServer(t)
	locator := createTestShare(t, srv, map[string]string{"max_downloads": "3"})
	id := lookupShare(t, srv, locator).ID

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, download(t, srv, id).Code)
	}
	rec := download(t, srv, id)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "budget_exhausted")
}

func TestAccessPassword(t *testing.T) {
	srv, _ := newTestServer(t)
	locator := createTestShare(t, srv, map[string]string{"password": "abc123"})
	result := lookupShare(t, srv, locator)
	assert.True(t, result.HasPassword)

	rec := requestAccess(t, srv, result.ID, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "wrong_password")

	rec = requestAccess(t, srv, result.ID, "abc123")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAccessExpired(t *testing.T) {
	srv, clock := newTestServer(t)
	locator := createTestShare(t, srv, map[string]string{
		"ttl_ms":   "180000",
		"password": "abc123",
	})
	id := lookupShare(t, srv, locator).ID

	clock.Advance(180001 * time.Millisecond)

	// Expired wins over the wrong password so dead links leak nothing.
	rec := requestAccess(t, srv, id, "wrong")
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")

	dl := download(t, srv, id)
	assert.Equal(t, http.StatusGone, dl.Code)
}

func TestUploadValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"ttl below minimum", map[string]string{"ttl_ms": "1000"}},
		{"ttl above maximum", map[string]string{"ttl_ms": "90000000"}},
		{"downloads below minimum", map[string]string{"max_downloads": "1"}},
		{"downloads above maximum", map[string]string{"max_downloads": "100"}},
		{"downloads not a number", map[string]string{"max_downloads": "lots"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartUpload(t, tt.fields, "x.txt", "x")
			req := httptest.NewRequest(http.MethodPost, "/shares", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestUploadMissingFilePart(t *testing.T) {
	srv, _ := newTestServer(t)
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("password", "abc123"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/shares", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing file part")
}

func TestNotFoundRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/shares/unknown-locator", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = requestAccess(t, srv, "unknown-id", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	dl := download(t, srv, "unknown-id")
	assert.Equal(t, http.StatusNotFound, dl.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/shares", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/files/some-id/access", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
