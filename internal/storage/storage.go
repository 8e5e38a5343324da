// Package storage persists uploaded song and cover files and returns the
// public URL each one is served from.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UploadKind selects where an uploaded file goes.
type UploadKind int

const (
	KindSong UploadKind = iota + 1
	KindCover
)

// Destination describes where files of one kind are stored on each backend.
type Destination struct {
	// LocalDir is the directory under the upload root and the static URL prefix.
	LocalDir string
	// Folder is the object key prefix on the remote backend.
	Folder string
	// ResourceType is the remote backend's asset class. Audio has no class
	// of its own and is stored as "video".
	ResourceType string
	// DefaultContentType is used when the client sent none.
	DefaultContentType string
}

var destinations = map[UploadKind]Destination{
	KindSong: {
		LocalDir:           "uploads",
		Folder:             "songs",
		ResourceType:       "video",
		DefaultContentType: "application/octet-stream",
	},
	KindCover: {
		LocalDir:           "covers",
		Folder:             "covers",
		ResourceType:       "image",
		DefaultContentType: "image/jpeg",
	},
}

// String is also the multipart field name the kind is uploaded under.
func (k UploadKind) String() string {
	switch k {
	case KindSong:
		return "song"
	case KindCover:
		return "cover"
	default:
		return fmt.Sprintf("UploadKind(%d)", int(k))
	}
}

// Destination returns the routing entry for k.
func (k UploadKind) Destination() (Destination, error) {
	d, ok := destinations[k]
	if !ok {
		return Destination{}, fmt.Errorf("storage: unknown upload kind %d", int(k))
	}
	return d, nil
}

// File is one uploaded part. Name is the client-supplied filename and is
// only used for its extension.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// Object identifies a stored file.
type Object struct {
	Kind UploadKind `json:"kind"`
	Key  string     `json:"key"`
	URL  string     `json:"url"`
}

// Backend stores files. Implementations must be safe for concurrent use.
type Backend interface {
	Save(ctx context.Context, kind UploadKind, file File) (Object, error)
	Delete(ctx context.Context, obj Object) error
	Name() string
}

// newFilename builds "<unix-millis>-<random><ext>". The client filename
// contributes nothing but a sanitized extension.
func newFilename(now time.Time, original string) string {
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), randomSuffix(), safeExt(original))
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
