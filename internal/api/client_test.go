package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/extracto/pkg/core"
)

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:5000/", "secret")
	assert.Equal(t, "http://localhost:5000", c.baseURL)
	assert.Equal(t, "secret", c.apiKey)
	assert.NotNil(t, c.httpClient)
}

func TestHealthcheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthcheck" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	assert.NoError(t, New(server.URL, "").Healthcheck())
	assert.Error(t, New(server.URL+"/nope", "").Healthcheck())
	assert.Error(t, New("http://127.0.0.1:1", "").Healthcheck())
}

type received struct {
	mu      sync.Mutex
	fields  map[string]string
	content string
}

func archiveServer(t *testing.T, status int) (*httptest.Server, *received) {
	t.Helper()
	rec := &received{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != UploadPath || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		rec.mu.Lock()
		rec.fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			rec.fields[k] = v[0]
		}
		rec.content = string(data)
		rec.mu.Unlock()

		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, rec
}

func writeExport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alice_abcd1234_20240501_120000.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"summary":{}}`), 0644))
	return path
}

var summary = core.RunSummary{
	Owner:      "abcd",
	Name:       "alice",
	FinalScore: 120,
	BestScore:  150,
	EndedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
}

func TestUpload_Success(t *testing.T) {
	server, rec := archiveServer(t, http.StatusOK)
	path := writeExport(t)

	require.NoError(t, New(server.URL, "mysecret").Upload(path, summary))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "mysecret", rec.fields["secret"])
	assert.Equal(t, filepath.Base(path), rec.fields["filename"])
	assert.Equal(t, "alice", rec.fields["name"])
	assert.Equal(t, "120", rec.fields["finalScore"])
	assert.Equal(t, "150", rec.fields["bestScore"])
	assert.Equal(t, "false", rec.fields["newBest"])
	assert.Equal(t, "2024-05-01T12:00:00Z", rec.fields["endedAt"])
	assert.Equal(t, `{"summary":{}}`, rec.content)
}

func TestUpload_Errors(t *testing.T) {
	c := New("http://localhost:5000", "secret")
	assert.Error(t, c.Upload("/nonexistent/file.json", summary))

	server, _ := archiveServer(t, http.StatusForbidden)
	assert.Error(t, New(server.URL, "wrong").Upload(writeExport(t), summary))
}

type fixedExport string

func (f fixedExport) LastExportPath() string { return string(f) }

func TestArchiver(t *testing.T) {
	server, rec := archiveServer(t, http.StatusOK)
	path := writeExport(t)

	a := NewArchiver(New(server.URL, "s"), fixedExport(path), nil)
	require.NoError(t, a.WriteTick(&core.TickRecord{}))
	require.NoError(t, a.WriteSummary(&summary))
	a.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "alice", rec.fields["name"])
}

func TestArchiver_NoExport(t *testing.T) {
	a := NewArchiver(New("http://127.0.0.1:1", "s"), fixedExport(""), nil)
	require.NoError(t, a.WriteSummary(&summary))
	a.Wait()
}
