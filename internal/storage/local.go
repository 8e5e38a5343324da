package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/Baaaki/songshare/pkg/logger"
	"go.uber.org/zap"
)

// LocalStorage writes files under root/<LocalDir> and serves them from
// baseURL/<LocalDir>.
type LocalStorage struct {
	root    string
	baseURL string
	now     func() time.Time
}

func NewLocalStorage(root, baseURL string) *LocalStorage {
	return &LocalStorage{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

func (s *LocalStorage) Name() string { return "local" }

func (s *LocalStorage) Save(ctx context.Context, kind UploadKind, file File) (Object, error) {
	dest, err := kind.Destination()
	if err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	dir := filepath.Join(s.root, dest.LocalDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Object{}, fmt.Errorf("create %s: %w", dir, err)
	}

	name := newFilename(s.now(), file.Name)
	fullPath := filepath.Join(dir, name)

	// O_EXCL: never overwrite, even on a suffix collision.
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return Object{}, fmt.Errorf("create %s: %w", fullPath, err)
	}

	written, err := io.Copy(f, file.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(fullPath)
		return Object{}, fmt.Errorf("write %s: %w", fullPath, err)
	}

	logger.Log.Debug("Stored file on local disk",
		zap.String("kind", kind.String()),
		zap.String("path", fullPath),
		zap.Int64("bytes", written),
	)

	key := path.Join(dest.LocalDir, name)
	return Object{
		Kind: kind,
		Key:  key,
		URL:  s.baseURL + "/" + key,
	}, nil
}

// Delete removes a stored file. Missing files are ignored.
func (s *LocalStorage) Delete(ctx context.Context, obj Object) error {
	dest, err := obj.Kind.Destination()
	if err != nil {
		return err
	}

	name := path.Base(obj.Key)
	if obj.Key != path.Join(dest.LocalDir, name) {
		return fmt.Errorf("storage: key %q outside %s", obj.Key, dest.LocalDir)
	}

	err = os.Remove(filepath.Join(s.root, dest.LocalDir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
