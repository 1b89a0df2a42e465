package media

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrMediaNotFound the backing media file is absent from the media dir
var ErrMediaNotFound = errors.New("No such media file")

// Streamer serves media files out of a single directory, honoring a single
// bytes range per request
type Streamer struct {
	Dir string
}

func NewStreamer(dir string) *Streamer {
	return &Streamer{Dir: dir}
}

// ParseRange a single "bytes=start-end" spec against the file size.
// Returns false for anything malformed or unsatisfiable, the caller then
// serves the whole file
func ParseRange(spec string, size int64) (int64, int64, bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(spec, prefix) {
		return 0, 0, false
	}
	parts := strings.SplitN(spec[len(prefix):], "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}

	start, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}

	end := size - 1
	if tail := strings.TrimSpace(parts[1]); tail != "" {
		end, err = strconv.ParseInt(tail, 10, 64)
		if err != nil || end < start {
			return 0, 0, false
		}
		if end > size-1 {
			end = size - 1
		}
	}
	return start, end, true
}

// Serve the named file, whole (200) or the requested range (206).
// The file name is flattened to its base, the media dir is not traversable
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, fileName string) error {
	path := filepath.Join(s.Dir, filepath.Base(fileName))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrMediaNotFound
		}
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	size := fi.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType(path))

	start, end, ok := ParseRange(r.Header.Get("Range"), size)
	if !ok {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		_, err = io.Copy(w, f)
		return err
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return err
	}
	length := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	_, err = io.CopyN(w, f, length)
	return err
}

func contentType(path string) string {
	if ctype := mime.TypeByExtension(filepath.Ext(path)); ctype != "" {
		return ctype
	}
	return "application/octet-stream"
}
