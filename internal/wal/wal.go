package wal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Baaaki/songshare/internal/storage"
	"github.com/Baaaki/songshare/pkg/logger"
	"go.uber.org/zap"
)

// State is the lifecycle stage of an upload recorded in the journal.
type State string

const (
	// StatePending: files are stored, the song row is not yet inserted.
	StatePending State = "pending"
	// StateCommitted: the song row was inserted.
	StateCommitted State = "committed"
	// StateRolledBack: the insert failed and the files were deleted.
	StateRolledBack State = "rolled_back"
)

// Entry is one journal line.
type Entry struct {
	UploadID  string           `json:"upload_id"`
	State     State            `json:"state"`
	Objects   []storage.Object `json:"objects,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// WAL is an append-only journal of uploads whose files are on durable
// storage but whose song row may not be. Every write is fsynced.
type WAL struct {
	filePath string
	file     *os.File
	mu       sync.Mutex
}

// NewWAL opens (or creates) the journal at filePath.
func NewWAL(filePath string) (*WAL, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &WAL{
		filePath: filePath,
		file:     file,
	}, nil
}

// Pending records that objects were stored for uploadID.
func (w *WAL) Pending(uploadID string, objects []storage.Object) error {
	return w.write(Entry{UploadID: uploadID, State: StatePending, Objects: objects, Timestamp: time.Now()})
}

// Committed records that the song row for uploadID was inserted.
func (w *WAL) Committed(uploadID string) error {
	return w.write(Entry{UploadID: uploadID, State: StateCommitted, Timestamp: time.Now()})
}

// RolledBack records that the files for uploadID were removed.
func (w *WAL) RolledBack(uploadID string) error {
	return w.write(Entry{UploadID: uploadID, State: StateRolledBack, Timestamp: time.Now()})
}

func (w *WAL) write(entry Entry) error {
	start := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if _, err := w.file.Write(append(data, '\n')); err != nil {
		logger.Log.Error("WAL: Failed to write entry",
			zap.String("upload_id", entry.UploadID),
			zap.String("state", string(entry.State)),
			zap.Error(err),
		)
		return err
	}

	if err := w.file.Sync(); err != nil {
		logger.Log.Error("WAL: Failed to sync to disk",
			zap.String("upload_id", entry.UploadID),
			zap.Error(err),
		)
		return err
	}

	logger.Log.Debug("WAL: Entry written and synced",
		zap.String("upload_id", entry.UploadID),
		zap.String("state", string(entry.State)),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}

// ReadAll reads all entries from the journal.
func (w *WAL) ReadAll() ([]Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.readAllUnsafe()
}

// Unresolved returns pending entries that have no later outcome, in
// journal order.
func (w *WAL) Unresolved() ([]Entry, error) {
	entries, err := w.ReadAll()
	if err != nil {
		return nil, err
	}
	return unresolved(entries), nil
}

func unresolved(entries []Entry) []Entry {
	pending := make(map[string]Entry)
	var order []string

	for _, e := range entries {
		switch e.State {
		case StatePending:
			if _, seen := pending[e.UploadID]; !seen {
				order = append(order, e.UploadID)
			}
			pending[e.UploadID] = e
		case StateCommitted, StateRolledBack:
			delete(pending, e.UploadID)
		}
	}

	out := make([]Entry, 0, len(pending))
	for _, id := range order {
		if e, ok := pending[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Compact rewrites the journal keeping only unresolved entries.
func (w *WAL) Compact() error {
	start := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	allEntries, err := w.readAllUnsafe()
	if err != nil {
		logger.Log.Error("WAL: Failed to read entries for compaction",
			zap.Error(err),
		)
		return err
	}
	remaining := unresolved(allEntries)

	tempFile := w.filePath + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	for _, entry := range remaining {
		if err := enc.Encode(entry); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := w.file.Close(); err != nil {
		return err
	}

	// Replace old file with new one (atomic)
	if err := os.Rename(tempFile, w.filePath); err != nil {
		logger.Log.Error("WAL: Failed to rename temp file",
			zap.String("temp_file", tempFile),
			zap.Error(err),
		)
		return err
	}

	// The old handle points at the replaced inode; reopen before any write.
	newFile, err := os.OpenFile(w.filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		logger.Log.Error("WAL: Failed to reopen file after compaction",
			zap.String("file_path", w.filePath),
			zap.Error(err),
		)
		return err
	}
	w.file = newFile

	logger.Log.Info("WAL: Compaction completed",
		zap.Int("before_count", len(allEntries)),
		zap.Int("remaining_count", len(remaining)),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}

// readAllUnsafe reads all entries without locking (internal use only).
// Torn trailing lines from a crash are skipped.
func (w *WAL) readAllUnsafe() ([]Entry, error) {
	file, err := os.Open(w.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, scanner.Err()
}

// Close closes the journal file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
