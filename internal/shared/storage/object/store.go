package object

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleetdocs-backend/internal/shared/util"
)

// ErrNotFound is returned by Open when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// Object describes a raw upload once it has been persisted.
type Object struct {
	Key      string
	Size     int64
	MIMEType string
}

// ObjectStore persists raw upload bytes. Keys are generated by the store and never reused,
// so a saved object is never overwritten.
type ObjectStore interface {
	Save(ctx context.Context, namespace string, fileName string, r io.Reader) (Object, error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}

// NewKey builds "<namespace>/<yyyy>/<mm>/<uuid>_<file>" for a new upload.
func NewKey(namespace, fileName string, now time.Time) (string, error) {
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	ns := strings.Trim(strings.TrimSpace(namespace), "/")
	if ns == "" || strings.Contains(ns, "..") {
		ns = "unsorted"
	}
	now = now.UTC()
	return path.Join(ns, fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month())), uuid.NewString()+"_"+name), nil
}

// Sniff reads up to 512 bytes to detect the content type and returns a reader that
// replays them followed by the rest of r.
func Sniff(r io.Reader) (io.Reader, string, error) {
	var head [512]byte
	n, err := io.ReadFull(r, head[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, "", fmt.Errorf("read sniff: %w", err)
	}
	mimeType := http.DetectContentType(head[:n])
	buf := append([]byte(nil), head[:n]...)
	return io.MultiReader(bytes.NewReader(buf), r), mimeType, nil
}

// ValidKey rejects keys that could escape the store root.
func ValidKey(key string) bool {
	clean := path.Clean(strings.TrimSpace(key))
	return clean != "." && clean != "" && !strings.HasPrefix(clean, "..") && !strings.HasPrefix(clean, "/")
}

// CountingReader counts bytes read through it.
type CountingReader struct {
	R io.Reader
	N int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.N += int64(n)
	return n, err
}
