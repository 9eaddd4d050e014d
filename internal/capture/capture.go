// Package capture turns an uploaded face capture into a temporary file that
// the recognizers can read. The file lives only for one request.
package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/attendance-engine/internal/constants"
	"github.com/kozaktomas/attendance-engine/internal/recognizer"
)

var (
	ErrTooLarge     = errors.New("capture exceeds size limit")
	ErrInvalidImage = errors.New("invalid image data")
)

// Sample is a captured face image written to a temporary file.
type Sample struct {
	Ref        string // stable reference used in recognition logs
	Path       string
	Size       int64
	MIME       string
	CapturedAt time.Time

	closeOnce sync.Once
	closeErr  error
}

// Recognizer returns the view of the sample the recognizers consume.
func (s *Sample) Recognizer() recognizer.Sample {
	return recognizer.Sample{Ref: s.Ref, Path: s.Path, Size: s.Size}
}

// Close removes the temporary file. It is safe to call more than once.
func (s *Sample) Close() error {
	s.closeOnce.Do(func() {
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.closeErr = fmt.Errorf("remove capture %s: %w", s.Path, err)
		}
	})
	return s.closeErr
}

// Decoder decodes captures and stores them under a temp directory.
type Decoder struct {
	dir       string
	maxBytes  int
	now       func() time.Time
	writeFile func(name string, data []byte, perm os.FileMode) error
}

// NewDecoder creates a decoder. An empty dir means os.TempDir(), a
// non-positive maxBytes means the default limit.
func NewDecoder(dir string, maxBytes int) *Decoder {
	if dir == "" {
		dir = os.TempDir()
	}
	if maxBytes <= 0 {
		maxBytes = constants.MaxCaptureBytes
	}
	return &Decoder{dir: dir, maxBytes: maxBytes, now: time.Now, writeFile: os.WriteFile}
}

// DecodeDataURI decodes a "data:image/<type>;base64,<payload>" string. A bare
// base64 payload without the data: prefix is accepted as well.
func (d *Decoder) DecodeDataURI(uri string) (*Sample, error) {
	payload := strings.TrimSpace(uri)
	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		header, data, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("%w: expected base64 data URI", ErrInvalidImage)
		}
		payload = data
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	// base64 inflates by 4/3, reject before decoding
	if base64.StdEncoding.DecodedLen(len(payload)) > d.maxBytes+2 {
		return nil, fmt.Errorf("%w: %d bytes allowed", ErrTooLarge, d.maxBytes)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return d.Store(raw)
}

// Store writes raw image bytes to a new temporary file.
func (d *Decoder) Store(raw []byte) (*Sample, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	if len(raw) > d.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes allowed", ErrTooLarge, d.maxBytes)
	}

	mime := DetectMIMEType(raw)
	ext, ok := extensions[mime]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported format", ErrInvalidImage)
	}

	id := uuid.NewString()
	path := filepath.Join(d.dir, "capture_"+id+ext)
	if err := d.writeFile(path, raw, 0o600); err != nil {
		// a short write may have created the file
		_ = os.Remove(path)
		return nil, fmt.Errorf("write capture: %w", err)
	}

	return &Sample{
		Ref:        "capture:" + id,
		Path:       path,
		Size:       int64(len(raw)),
		MIME:       mime,
		CapturedAt: d.now(),
	}, nil
}

// Open wraps an existing file as a sample without taking ownership of it.
// Close is a no-op for opened samples.
func Open(path string) (*Sample, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat capture: %w", err)
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidImage, path)
	}
	s := &Sample{Ref: path, Path: path, Size: info.Size(), CapturedAt: info.ModTime()}
	s.closeOnce.Do(func() {})
	return s, nil
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// DetectMIMEType detects the MIME type from image data
func DetectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G'}):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "image/gif"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	}
	return "application/octet-stream"
}
