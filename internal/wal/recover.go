package wal

import (
	"context"

	"github.com/Baaaki/songshare/internal/storage"
	"github.com/Baaaki/songshare/pkg/logger"
	"go.uber.org/zap"
)

// InUseFunc reports whether a stored URL is referenced by a song row.
type InUseFunc func(ctx context.Context, url string) (bool, error)

// Recover resolves every unresolved upload and compacts the journal. It runs
// at startup, before the server accepts requests, so no pending entry
// belongs to a live request.
//
// An upload whose song row exists (the commit record was lost) is marked
// committed. Otherwise its files are deleted and it is marked rolled back.
// Uploads whose files could not be deleted stay pending for the next run.
// inUse may be nil, in which case every unresolved upload is rolled back.
func Recover(ctx context.Context, w *WAL, backend storage.Backend, inUse InUseFunc) (int, error) {
	entries, err := w.Unresolved()
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, entry := range entries {
		referenced, err := anyInUse(ctx, entry.Objects, inUse)
		if err != nil {
			logger.Log.Error("WAL: Failed to check upload references",
				zap.String("upload_id", entry.UploadID),
				zap.Error(err),
			)
			continue
		}
		if referenced {
			if err := w.Committed(entry.UploadID); err != nil {
				return recovered, err
			}
			recovered++
			logger.Log.Info("WAL: Marked referenced upload committed",
				zap.String("upload_id", entry.UploadID),
			)
			continue
		}

		failed := false
		for _, obj := range entry.Objects {
			if err := backend.Delete(ctx, obj); err != nil {
				failed = true
				logger.Log.Error("WAL: Failed to delete orphaned file",
					zap.String("upload_id", entry.UploadID),
					zap.String("key", obj.Key),
					zap.Error(err),
				)
			}
		}
		if failed {
			continue
		}
		if err := w.RolledBack(entry.UploadID); err != nil {
			return recovered, err
		}
		recovered++

		logger.Log.Warn("WAL: Removed files of interrupted upload",
			zap.String("upload_id", entry.UploadID),
			zap.Int("files", len(entry.Objects)),
		)
	}

	if err := w.Compact(); err != nil {
		return recovered, err
	}
	return recovered, nil
}

func anyInUse(ctx context.Context, objects []storage.Object, inUse InUseFunc) (bool, error) {
	if inUse == nil {
		return false, nil
	}
	for _, obj := range objects {
		ok, err := inUse(ctx, obj.URL)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
