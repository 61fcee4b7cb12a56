package util

import (
	"errors"
	"path"
	"strings"
)

const maxFileNameLen = 120

var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName makes an uploaded or chat-supplied name safe to embed in an object key.
// Anything outside [A-Za-z0-9._-] becomes '_', the extension is lower-cased and kept when the
// name is truncated.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	s := strings.Join(strings.Fields(name), "_")
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
	s = strings.Trim(s, "._")
	if s == "" {
		return "", ErrInvalidFileName
	}
	ext := strings.ToLower(path.Ext(s))
	base := strings.TrimSuffix(s, path.Ext(s))
	if len(base)+len(ext) > maxFileNameLen {
		base = base[len(base)+len(ext)-maxFileNameLen:]
	}
	return base + ext, nil
}
