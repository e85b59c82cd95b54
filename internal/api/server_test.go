package api

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwsec-lab/sramlab/db"
	"github.com/hwsec-lab/sramlab/internal/fsutil"
)

type fakeUART struct {
	commands []string
	err      error
}

func (f *fakeUART) SendCommand(cmd string) error {
	f.commands = append(f.commands, cmd)
	return f.err
}

func testDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func noiseBytes(seed byte, n int) []byte {
	out := make([]byte, 0, n)
	block := sha256.Sum256([]byte{seed})
	for len(out) < n {
		out = append(out, block[:]...)
		block = sha256.Sum256(block[:])
	}
	return out[:n]
}

// seedSession inserts a session with two readout files backed by the memory
// filesystem and returns its ID.
func seedSession(t *testing.T, database *db.DB, fs *fsutil.MemoryFileSystem) string {
	t.Helper()

	session := &db.Session{Label: "bench capture", Target: "st_nucleo_l1.cfg", SRAMSize: 1024}
	require.NoError(t, database.InsertSession(session))

	for round := 0; round < 2; round++ {
		path := fmt.Sprintf("/captures/%03d.bin", round)
		require.NoError(t, fs.WriteFile(path, noiseBytes(byte(round), 1024), 0644))
		require.NoError(t, database.InsertReadout(&db.Readout{
			SessionID: session.SessionID,
			Round:     round,
			Path:      path,
			SizeBytes: 1024,
		}))
	}
	return session.SessionID
}

func TestListSessions(t *testing.T) {
	t.Parallel()

	database := testDB(t)
	fs := fsutil.NewMemoryFileSystem()
	srv := NewServer(database, nil, fs)
	seedSession(t, database, fs)

	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []*db.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "bench capture", sessions[0].Label)
}

func TestShowSession(t *testing.T) {
	t.Parallel()

	database := testDB(t)
	fs := fsutil.NewMemoryFileSystem()
	srv := NewServer(database, nil, fs)
	id := seedSession(t, database, fs)

	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session?session_id="+id, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Session  *db.Session          `json:"session"`
		Readouts []*db.Readout        `json:"readouts"`
		Results  []*db.AnalysisResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, id, detail.Session.SessionID)
	assert.Len(t, detail.Readouts, 2)
	assert.Empty(t, detail.Results)
}

func TestShowSessionErrors(t *testing.T) {
	t.Parallel()

	srv := NewServer(testDB(t), nil, fsutil.NewMemoryFileSystem())

	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session?session_id=nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyzeSessionRecordsResults(t *testing.T) {
	t.Parallel()

	database := testDB(t)
	fs := fsutil.NewMemoryFileSystem()
	srv := NewServer(database, nil, fs)
	id := seedSession(t, database, fs)

	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/analyze?session_id="+id, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rows []*db.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.NotEmpty(t, rows)

	stored, err := database.ListResults(id)
	require.NoError(t, err)
	assert.Len(t, stored, len(rows))

	names := make(map[string]bool)
	for _, row := range stored {
		names[row.TestName] = true
	}
	assert.True(t, names["frequency"])
	assert.True(t, names["puf.mean_uniformity"])
}

func TestAnalyzeSessionWithoutReadouts(t *testing.T) {
	t.Parallel()

	database := testDB(t)
	srv := NewServer(database, nil, fsutil.NewMemoryFileSystem())

	session := &db.Session{Label: "empty"}
	require.NoError(t, database.InsertSession(session))

	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/analyze?session_id="+session.SessionID, nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRenderReport(t *testing.T) {
	t.Parallel()

	database := testDB(t)
	fs := fsutil.NewMemoryFileSystem()
	srv := NewServer(database, nil, fs)
	id := seedSession(t, database, fs)

	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/report?session_id="+id, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "echarts")
	assert.Contains(t, rec.Body.String(), "bench capture")
}

func TestSendCommand(t *testing.T) {
	t.Parallel()

	uart := &fakeUART{}
	srv := NewServer(testDB(t), uart, fsutil.NewMemoryFileSystem())

	form := url.Values{"command": {"R"}}
	req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"R"}, uart.commands)

	rec = httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/command", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSendCommandWithoutUART(t *testing.T) {
	t.Parallel()

	srv := NewServer(testDB(t), nil, fsutil.NewMemoryFileSystem())

	form := url.Values{"command": {"R"}}
	req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSendCommandFailure(t *testing.T) {
	t.Parallel()

	uart := &fakeUART{err: errors.New("port gone")}
	srv := NewServer(testDB(t), uart, fsutil.NewMemoryFileSystem())

	form := url.Values{"command": {"R"}}
	req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	srv.ServeMux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
