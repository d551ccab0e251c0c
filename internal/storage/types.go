// Package storage uploads submitted files to an object store and hands back
// a URL the synthesis worker can fetch.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/google/uuid"
)

type Kind string

const (
	KindDocument Kind = "document"
	KindAudio    Kind = "audio"
)

var (
	ErrEmptyURL  = errors.New("storage: upload returned no url")
	ErrEmptyData = errors.New("storage: nothing to upload")
)

// Object is the result of a successful upload. Key addresses the object for
// Delete; URL is what gets recorded on the job row.
type Object struct {
	Key string
	URL string
}

type Store interface {
	Upload(ctx context.Context, data []byte, name string, kind Kind) (Object, error)
	Delete(ctx context.Context, key string) error
}

// ObjectKey builds "<prefix><kind>/<uuid>/<name>". The uuid segment keeps two
// users uploading "report.docx" from overwriting each other.
func ObjectKey(prefix string, kind Kind, name string) string {
	return prefix + string(kind) + "/" + newID() + "/" + sanitizeName(name)
}

var newID = func() string {
	return uuid.NewString()
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
