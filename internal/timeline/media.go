package timeline

import (
	"bytes"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// MediaLibrary holds the media files clips reference, their blob URLs and
// any in-memory handles. Unlike Model it is safe for concurrent use, since
// running export jobs look handles up while the editor keeps working.
type MediaLibrary struct {
	mu      sync.RWMutex
	files   []models.MediaFile
	blobs   map[string]string
	handles map[string]models.MediaHandle
}

// NewMediaLibrary returns an empty library.
func NewMediaLibrary() *MediaLibrary {
	return &MediaLibrary{
		blobs:   make(map[string]string),
		handles: make(map[string]models.MediaHandle),
	}
}

// Add registers a media file, assigning an id if it has none. A non-nil
// handle is kept for in-memory resolution at export time.
func (l *MediaLibrary) Add(f models.MediaFile, h models.MediaHandle) models.MediaFile {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	if h != nil && f.Size == 0 {
		f.Size = h.Size()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	replaced := false
	for i := range l.files {
		if l.files[i].ID == f.ID {
			l.files[i] = f
			replaced = true
			break
		}
	}
	if !replaced {
		l.files = append(l.files, f)
	}
	if f.BlobURL != "" {
		l.blobs[f.ID] = f.BlobURL
	}
	if h != nil {
		l.handles[f.ID] = h
	}
	return f
}

// Remove forgets a media file and everything attached to it.
func (l *MediaLibrary) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.files {
		if l.files[i].ID == id {
			l.files = append(l.files[:i], l.files[i+1:]...)
			delete(l.blobs, id)
			delete(l.handles, id)
			return true
		}
	}
	return false
}

// Files returns copies of all media files.
func (l *MediaLibrary) Files() []models.MediaFile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return models.CloneMediaFiles(l.files)
}

// File returns one media file.
func (l *MediaLibrary) File(id string) (models.MediaFile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, f := range l.files {
		if f.ID == id {
			return f.Clone(), true
		}
	}
	return models.MediaFile{}, false
}

// SetBlobURL records a blob URL for a media file.
func (l *MediaLibrary) SetBlobURL(id, url string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if url == "" {
		delete(l.blobs, id)
		return
	}
	l.blobs[id] = url
}

// BlobURLs returns a copy of the media id to blob URL map.
func (l *MediaLibrary) BlobURLs() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return models.CloneStringMap(l.blobs)
}

// Handle returns the in-memory handle registered for a media file.
func (l *MediaLibrary) Handle(mediaFileID string) (models.MediaHandle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.handles[mediaFileID]
	return h, ok
}

// BytesHandle is a MediaHandle over an in-memory buffer.
type BytesHandle []byte

// Open implements models.MediaHandle.
func (b BytesHandle) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Size implements models.MediaHandle.
func (b BytesHandle) Size() int64 { return int64(len(b)) }

// FileHandle is a MediaHandle over a local file that is opened lazily.
type FileHandle string

// Open implements models.MediaHandle.
func (f FileHandle) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// Size implements models.MediaHandle. It returns 0 when the file cannot
// be stat'ed.
func (f FileHandle) Size() int64 {
	fi, err := os.Stat(string(f))
	if err != nil {
		return 0
	}
	return fi.Size()
}
