package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// Small files take the direct signed-URL PUT, not the resumable path.
func TestUploadFileDirectPath(t *testing.T) {
	var uploaded bytes.Buffer
	var putContentType string

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/api/v1/signed-url", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "false", r.URL.Query().Get("resumable"))
		json.NewEncoder(w).Encode(UploadOptionsResponse{
			RecommendedMethod: "signed_url",
			GCSURI:            "gs://bucket/audio.mp3",
			Filename:          "audio.mp3",
			UploadOptions: UploadOptions{
				SignedURL: &SignedURLOption{URL: srv.URL + "/put", Method: http.MethodPut},
			},
		})
	})
	mux.HandleFunc("/put", func(w http.ResponseWriter, r *http.Request) {
		putContentType = r.Header.Get("Content-Type")
		io.Copy(&uploaded, r.Body)
	})

	path := writeTempFile(t, "audio.mp3", 2048)

	var samples []UploadProgress
	c := New(srv.URL, testLogger())
	result, err := c.UploadFile(context.Background(), path, func(p UploadProgress) {
		samples = append(samples, p)
	})
	require.NoError(t, err)

	assert.Equal(t, "gs://bucket/audio.mp3", result.GCSURI)
	assert.EqualValues(t, 2048, result.Size)
	assert.Equal(t, 2048, uploaded.Len())
	assert.NotEmpty(t, putContentType)

	require.NotEmpty(t, samples)
	assert.Equal(t, UploadStagePreparing, samples[0].Stage)
	assert.Equal(t, UploadStageCompleting, samples[len(samples)-1].Stage)
	assert.Equal(t, 100, samples[len(samples)-1].Percent)

	// Byte counters are non-decreasing across the callback stream.
	var last int64
	for _, s := range samples {
		require.GreaterOrEqual(t, s.BytesLoaded, last)
		last = s.BytesLoaded
	}
}

// The resumable path opens a session, then PUTs fixed-size chunks with
// Content-Range headers until all bytes are acknowledged.
func TestUploadFileResumablePath(t *testing.T) {
	const fileSize = 25
	const chunkSize = 10

	var chunkRanges []string
	var received bytes.Buffer

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/api/v1/signed-url", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(UploadOptionsResponse{
			RecommendedMethod: "resumable_upload",
			GCSURI:            "gs://bucket/big.mp4",
			Filename:          "big.mp4",
			UploadOptions: UploadOptions{
				ResumableUpload: &ResumableUploadOption{
					ResumableURL: srv.URL + "/session-init",
					Headers:      map[string]string{"x-goog-resumable": "start"},
					ChunkSize:    chunkSize,
				},
			},
		})
	})
	mux.HandleFunc("/session-init", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "start", r.Header.Get("x-goog-resumable"))
		w.Header().Set("Location", srv.URL+"/session")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		chunkRanges = append(chunkRanges, r.Header.Get("Content-Range"))
		io.Copy(&received, r.Body)

		if received.Len() < fileSize {
			// Intermediate chunk accepted: 308 with the acknowledged range.
			w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", received.Len()-1))
			w.WriteHeader(http.StatusPermanentRedirect)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	path := writeTempFile(t, "big.mp4", fileSize)

	var samples []UploadProgress
	c := New(srv.URL, testLogger())
	result, err := c.UploadFile(context.Background(), path, func(p UploadProgress) {
		samples = append(samples, p)
	})
	require.NoError(t, err)

	assert.Equal(t, "gs://bucket/big.mp4", result.GCSURI)
	assert.Equal(t, fileSize, received.Len())
	assert.Equal(t, []string{
		"bytes 0-9/25",
		"bytes 10-19/25",
		"bytes 20-24/25",
	}, chunkRanges)

	last := samples[len(samples)-1]
	assert.Equal(t, UploadStageCompleting, last.Stage)
	assert.EqualValues(t, fileSize, last.BytesLoaded)
}

// A 308 whose Range header acknowledges fewer bytes than sent rewinds the
// cursor to the next expected offset.
func TestUploadFileResumableRangeOverride(t *testing.T) {
	const fileSize = 20
	const chunkSize = 10

	var offsets []string
	total := int64(0)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/api/v1/signed-url", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(UploadOptionsResponse{
			RecommendedMethod: "resumable_upload",
			GCSURI:            "gs://bucket/clip.mp4",
			Filename:          "clip.mp4",
			UploadOptions: UploadOptions{
				ResumableUpload: &ResumableUploadOption{
					ResumableURL: srv.URL + "/session",
					ChunkSize:    chunkSize,
				},
			},
		})
	})

	short := true
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			// No Location header: the init URL doubles as the session URI.
			w.WriteHeader(http.StatusCreated)
			return
		}

		offsets = append(offsets, r.Header.Get("Content-Range"))
		n, _ := io.Copy(io.Discard, r.Body)

		if short {
			// Acknowledge only the first 5 bytes of the 10 sent.
			short = false
			total = 5
			w.Header().Set("Range", "bytes=0-4")
			w.WriteHeader(http.StatusPermanentRedirect)
			return
		}

		total += n
		if total < fileSize {
			w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", total-1))
			w.WriteHeader(http.StatusPermanentRedirect)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	path := writeTempFile(t, "clip.mp4", fileSize)

	c := New(srv.URL, testLogger())
	_, err := c.UploadFile(context.Background(), path, nil)
	require.NoError(t, err)

	// After the short ack the next chunk restarts at offset 5.
	assert.Equal(t, []string{
		"bytes 0-9/20",
		"bytes 5-14/20",
		"bytes 15-19/20",
	}, offsets)
}

func TestUploadFileTaggedFailure(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/api/v1/signed-url", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(UploadOptionsResponse{
			GCSURI:   "gs://bucket/f",
			Filename: "f",
			UploadOptions: UploadOptions{
				SignedURL: &SignedURLOption{URL: srv.URL + "/put"},
			},
		})
	})
	mux.HandleFunc("/put", func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	})

	path := writeTempFile(t, "f.bin", 64)

	c := New(srv.URL, testLogger())
	_, err := c.UploadFile(context.Background(), path, nil)
	require.Error(t, err)

	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, UploadTooLarge, upErr.Code)
}

func TestParseRangeEnd(t *testing.T) {
	tests := []struct {
		header string
		want   int64
		ok     bool
	}{
		{"bytes=0-8388607", 8388607, true},
		{"bytes=0-4", 4, true},
		{"", 0, false},
		{"bytes=garbage", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseRangeEnd(tt.header)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseRangeEnd(%q) = (%d, %v), want (%d, %v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
