package media

import (
	"bytes"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mediaTempDir(t *testing.T) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "media-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func writeMediaFile(t *testing.T, dir, name string, size int) []byte {
	t.Helper()
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, name), payload, 0644))
	return payload
}

func TestParseRange(t *testing.T) {
	cases := []struct {
		name  string
		spec  string
		size  int64
		start int64
		end   int64
		ok    bool
	}{
		{"closed", "bytes=200-499", 1000, 200, 499, true},
		{"open ended", "bytes=200-", 1000, 200, 999, true},
		{"end clamped to size", "bytes=900-2000", 1000, 900, 999, true},
		{"empty", "", 1000, 0, 0, false},
		{"wrong unit", "chunks=0-10", 1000, 0, 0, false},
		{"not a number", "bytes=abc-def", 1000, 0, 0, false},
		{"inverted", "bytes=500-200", 1000, 0, 0, false},
		{"start past end of file", "bytes=1000-", 1000, 0, 0, false},
		{"negative start", "bytes=-500", 1000, 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, ok := ParseRange(tc.spec, tc.size)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.start, start)
				assert.Equal(t, tc.end, end)
			}
		})
	}
}

func TestStreamer_ServeWholeFile(t *testing.T) {
	dir := mediaTempDir(t)
	payload := writeMediaFile(t, dir, "intro.mp4", 1000)
	streamer := NewStreamer(dir)

	req := httptest.NewRequest(http.MethodGet, "/resource/video/1", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, streamer.Serve(rec, req, "intro.mp4"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "1000", rec.Header().Get("Content-Length"))
	assert.True(t, bytes.Equal(payload, rec.Body.Bytes()))
}

func TestStreamer_ServeRange(t *testing.T) {
	dir := mediaTempDir(t)
	payload := writeMediaFile(t, dir, "intro.mp4", 1000)
	streamer := NewStreamer(dir)

	req := httptest.NewRequest(http.MethodGet, "/resource/video/1", nil)
	req.Header.Set("Range", "bytes=200-499")
	rec := httptest.NewRecorder()
	require.NoError(t, streamer.Serve(rec, req, "intro.mp4"))

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 200-499/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "300", rec.Header().Get("Content-Length"))
	assert.True(t, bytes.Equal(payload[200:500], rec.Body.Bytes()))
}

func TestStreamer_MalformedRangeFallsBack(t *testing.T) {
	dir := mediaTempDir(t)
	payload := writeMediaFile(t, dir, "intro.mp4", 1000)
	streamer := NewStreamer(dir)

	req := httptest.NewRequest(http.MethodGet, "/resource/video/1", nil)
	req.Header.Set("Range", "bytes=oops")
	rec := httptest.NewRecorder()
	require.NoError(t, streamer.Serve(rec, req, "intro.mp4"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Equal(payload, rec.Body.Bytes()))
}

func TestStreamer_MissingFile(t *testing.T) {
	streamer := NewStreamer(mediaTempDir(t))

	req := httptest.NewRequest(http.MethodGet, "/resource/video/1", nil)
	rec := httptest.NewRecorder()
	err := streamer.Serve(rec, req, "gone.mp4")
	assert.Equal(t, ErrMediaNotFound, err)
}

func TestStreamer_FlattensPath(t *testing.T) {
	dir := mediaTempDir(t)
	writeMediaFile(t, dir, "intro.mp4", 10)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))
	streamer := NewStreamer(dir)

	req := httptest.NewRequest(http.MethodGet, "/resource/video/1", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, streamer.Serve(rec, req, "../nested/../intro.mp4"))
	assert.Equal(t, http.StatusOK, rec.Code)
}
