// Package store implements best-effort snapshot persistence: a single JSON
// document per concern, rewritten atomically via tmp + rename.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/quizclash/backend/go/internal/v1/engine"
	"github.com/quizclash/backend/go/internal/v1/logging"
)

// RoomsDocument is the persisted registry layout. Socket IDs never appear
// in it; they are process-local.
type RoomsDocument struct {
	Rooms []*engine.Room `json:"rooms"`
}

// FileStore writes registry snapshots to a single file through a background
// writer, so the engine never blocks on disk while holding its lock. It
// implements engine.Saver.
type FileStore struct {
	path string
	ch   chan []byte
	done chan struct{}
}

// NewFileStore creates the store and starts its writer goroutine.
func NewFileStore(path string) *FileStore {
	s := &FileStore{
		path: path,
		ch:   make(chan []byte, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

// SaveRooms marshals the snapshot and queues it for writing. Pending writes
// are coalesced: only the latest snapshot matters.
func (s *FileStore) SaveRooms(rooms []*engine.Room) {
	data, err := json.Marshal(RoomsDocument{Rooms: rooms})
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal rooms snapshot", zap.Error(err))
		return
	}
	s.enqueue(data)
}

func (s *FileStore) enqueue(data []byte) {
	for {
		select {
		case s.ch <- data:
			return
		default:
		}
		// Queue full: drop the stale snapshot and retry with the fresh one.
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *FileStore) run() {
	for {
		select {
		case data := <-s.ch:
			if err := WriteFileAtomic(s.path, data); err != nil {
				// Best-effort durability: log and move on.
				logging.Warn(context.Background(), "Snapshot write failed",
					zap.String("path", s.path), zap.Error(err))
			}
		case <-s.done:
			// Flush the final pending snapshot, if any.
			select {
			case data := <-s.ch:
				_ = WriteFileAtomic(s.path, data)
			default:
			}
			return
		}
	}
}

// Close stops the writer after flushing any pending snapshot.
func (s *FileStore) Close() {
	close(s.done)
}

// LoadRooms restores the persisted registry. A missing file yields an empty
// slice; a file that fails to parse at any level is dropped entirely and
// the process starts empty.
func (s *FileStore) LoadRooms(ctx context.Context) []*engine.Room {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn(ctx, "Failed to read rooms snapshot", zap.String("path", s.path), zap.Error(err))
		}
		return nil
	}

	var doc RoomsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.Warn(ctx, "Dropping unparseable rooms snapshot",
			zap.String("path", s.path), zap.Error(err))
		_ = os.Remove(s.path)
		return nil
	}
	return doc.Rooms
}

// WriteFileAtomic writes data to path via a temp file in the same directory
// followed by rename, so readers never observe a partial document.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
