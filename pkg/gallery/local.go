package gallery

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/menta2k/camera-capture/internal/utils"
)

// MediaURIPrefix is the prefix of URIs assigned by LocalIndex
const MediaURIPrefix = "content://media/external/images/media/"

// Entry is an indexed media file
type Entry struct {
	ID        int64     `json:"id"`
	URI       string    `json:"uri"`
	Path      string    `json:"path"`
	IndexedAt time.Time `json:"indexed_at"`
}

// LocalIndex is an in-process media index over a filesystem. Scanning the
// same path twice returns the same URI.
type LocalIndex struct {
	fs      afero.Fs
	latency time.Duration

	mu     sync.Mutex
	nextID int64
	byPath map[string]Entry
}

// NewLocalIndex creates an index. latency delays every answer, which lets
// tests and demos exercise slow index services.
func NewLocalIndex(fs afero.Fs, latency time.Duration) *LocalIndex {
	return &LocalIndex{
		fs:      fs,
		latency: latency,
		nextID:  1,
		byPath:  make(map[string]Entry),
	}
}

// Scan indexes path and returns its URI. Files that do not exist or are not
// images are not indexed and yield an empty URI.
func (l *LocalIndex) Scan(ctx context.Context, path string) (string, error) {
	if l.latency > 0 {
		timer := time.NewTimer(l.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	clean := filepath.Clean(path)
	if !utils.FileExists(l.fs, clean) {
		return "", fmt.Errorf("media file not found: %s", clean)
	}
	if !utils.IsImageFile(clean) {
		return "", nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.byPath[clean]; ok {
		return e.URI, nil
	}
	e := Entry{
		ID:        l.nextID,
		URI:       fmt.Sprintf("%s%d", MediaURIPrefix, l.nextID),
		Path:      clean,
		IndexedAt: time.Now(),
	}
	l.nextID++
	l.byPath[clean] = e
	return e.URI, nil
}

// Entries returns the indexed files ordered by id
func (l *LocalIndex) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.byPath))
	for _, e := range l.byPath {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
