package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/neo.lidar/internal/neo"
	"github.com/banshee-data/neo.lidar/internal/protocol"
)

func get(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "127.0.0.1:4321"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func testScan() neo.Scan {
	return neo.Scan{
		Session:  uuid.MustParse("0b3c6a8e-2f41-4d7a-9e55-1a2b3c4d5e6f"),
		Sequence: 4,
		Samples: []neo.Sample{
			{Angle: 0, Distance: 150},
			{Angle: 90, Distance: 250},
			{Angle: 180, Distance: 350},
		},
	}
}

func TestMonitor_Status(t *testing.T) {
	session := uuid.New()
	m := New(func() neo.Stats {
		return neo.Stats{
			State:   neo.StateScanning,
			Session: session,
			Scans:   7,
			Samples: 700,
			Codec:   protocol.Stats{Packets: 700, Resyncs: 2, DiscardedBytes: 12},
		}
	})

	st := m.Status()
	assert.Equal(t, "scanning", st.State)
	assert.Equal(t, session.String(), st.Session)
	assert.Equal(t, uint64(2), st.Resyncs)
	assert.Nil(t, st.Latest)

	m.Observe(testScan())
	st = m.Status()
	require.NotNil(t, st.Latest)
	assert.Equal(t, uint64(1), st.Observed)
	assert.Equal(t, uint64(4), st.LatestSeq)
	assert.Equal(t, 3, st.Latest.Valid)
	assert.InDelta(t, 250.0, st.Latest.MeanDistance, 1e-9)
}

func TestMonitor_StatusWithoutDevice(t *testing.T) {
	st := New(nil).Status()
	assert.Empty(t, st.State)
	assert.Empty(t, st.Session)
	assert.NotEmpty(t, st.Version)
}

func TestMonitor_Routes(t *testing.T) {
	m := New(nil)
	mux := http.NewServeMux()
	m.AttachAdminRoutes(mux)

	rec := get(t, mux, "/debug/neo-scan")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no scan observed yet")

	m.Observe(testScan())

	rec = get(t, mux, "/debug/neo")
	require.Equal(t, http.StatusOK, rec.Code)
	var st Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, uint64(1), st.Observed)

	rec = get(t, mux, "/debug/neo-scan")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "seq=4")

	rec = get(t, mux, "/debug/neo-scan.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestMonitor_RemoteAccessDenied(t *testing.T) {
	mux := http.NewServeMux()
	New(nil).AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/neo", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
