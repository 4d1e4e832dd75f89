package measure

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Succeeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	opts := DefaultOptions(srv.URL)
	record := Run(context.Background(), opts)

	assert.Equal(t, Succeeded, record.Status)
	assert.Equal(t, int64(10), record.DownloadSizeBytes)
	assert.Empty(t, record.Error)
}

func TestRun_ErrorsAfterExhaustingRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := DefaultOptions(srv.URL)
	opts.Retries = 1
	opts.Backoff = time.Millisecond
	record := Run(context.Background(), opts)

	assert.Equal(t, Errored, record.Status)
	assert.NotEmpty(t, record.Error)
	assert.Equal(t, int64(0), record.DownloadSizeBytes)
}

func TestWriteReadFile_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t1.json")
	want := Record{StartedOn: time.Now().UTC().Truncate(time.Second), Status: Succeeded, DownloadSizeBytes: 42, DurationS: 1.5, SpeedBPS: 28}

	require.NoError(t, WriteFile(path, want))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.DownloadSizeBytes, got.DownloadSizeBytes)
}

func TestPatchPayload_MapsFieldNames(t *testing.T) {
	r := Record{Status: Succeeded, LatencyS: 0.5, DownloadSizeBytes: 100, DurationS: 2, SpeedBPS: 50}
	payload := r.PatchPayload()
	assert.Equal(t, "SUCCEEDED", payload["status"])
	assert.Equal(t, 0.5, payload["latency"])
	assert.Equal(t, int64(100), payload["download_size"])
	assert.Equal(t, 2.0, payload["duration"])
	assert.Equal(t, 50.0, payload["speed"])
	assert.NotContains(t, payload, "error")
}
