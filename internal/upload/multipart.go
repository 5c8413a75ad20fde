// Package upload assembles large recordings sent in parts. A finished upload
// is a file on disk the media library references by path.
package upload

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/vedit/internal/logging"
)

const (
	DefaultPartSize   = 5 * 1024 * 1024   // 5MB
	MaxPartSize       = 100 * 1024 * 1024 // 100MB
	DefaultExpiration = 24 * time.Hour

	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

var (
	ErrUploadNotFound = errors.New("upload not found")
	ErrNotActive      = errors.New("upload is not active")
	ErrExpired        = errors.New("upload has expired")
	ErrInvalidPart    = errors.New("invalid part")
	ErrIncomplete     = errors.New("upload is incomplete")
)

// Session is a snapshot of a multipart upload.
type Session struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	TotalSize   int64      `json:"total_size"`
	PartSize    int64      `json:"part_size"`
	TotalParts  int        `json:"total_parts"`
	Parts       []Part     `json:"parts"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Path        string     `json:"path,omitempty"`
}

// Part is one received part.
type Part struct {
	PartNumber int       `json:"part_number"`
	Size       int64     `json:"size"`
	ETag       string    `json:"etag"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type upload struct {
	mu sync.Mutex
	Session
	parts map[int]Part
}

func (u *upload) snapshot() *Session {
	s := u.Session
	s.Parts = make([]Part, 0, len(u.parts))
	for _, p := range u.parts {
		s.Parts = append(s.Parts, p)
	}
	sort.Slice(s.Parts, func(i, j int) bool { return s.Parts[i].PartNumber < s.Parts[j].PartNumber })
	return &s
}

// Service manages multipart uploads under one directory.
type Service struct {
	mu         sync.RWMutex
	uploads    map[string]*upload
	dir        string
	partSize   int64
	expiration time.Duration
	logger     *logging.Logger
	now        func() time.Time
}

// NewService creates a multipart upload service. Zero sizes use defaults.
func NewService(dir string, partSize int64, expiration time.Duration, logger *logging.Logger) *Service {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	if partSize > MaxPartSize {
		partSize = MaxPartSize
	}
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		uploads:    make(map[string]*upload),
		dir:        dir,
		partSize:   partSize,
		expiration: expiration,
		logger:     logger,
		now:        time.Now,
	}
}

// Initiate starts a new multipart upload
func (s *Service) Initiate(filename string, totalSize int64) (*Session, error) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidPart)
	}
	if totalSize <= 0 {
		return nil, fmt.Errorf("%w: total size must be positive", ErrInvalidPart)
	}

	id := uuid.New().String()
	if err := os.MkdirAll(s.uploadDir(id), 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	now := s.now()
	u := &upload{
		Session: Session{
			ID:         id,
			Filename:   name,
			TotalSize:  totalSize,
			PartSize:   s.partSize,
			TotalParts: int((totalSize + s.partSize - 1) / s.partSize),
			Status:     StatusActive,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.expiration),
		},
		parts: make(map[int]Part),
	}

	s.mu.Lock()
	s.uploads[id] = u
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"upload_id":   id,
		"filename":    name,
		"total_size":  totalSize,
		"total_parts": u.TotalParts,
	}).Info("Initiated multipart upload")
	return u.snapshot(), nil
}

// UploadPart stores one part. Parts may arrive in any order and a part
// sent twice replaces the earlier copy.
func (s *Service) UploadPart(id string, partNumber int, data io.Reader) (*Part, error) {
	u, err := s.get(id)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if err := s.checkActive(u); err != nil {
		return nil, err
	}
	if partNumber < 1 || partNumber > u.TotalParts {
		return nil, fmt.Errorf("%w: part number %d out of 1..%d", ErrInvalidPart, partNumber, u.TotalParts)
	}

	partPath := s.partPath(id, partNumber)
	file, err := os.Create(partPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create part file: %w", err)
	}
	defer file.Close()

	// Read one byte past the limit to detect oversized parts.
	hash := md5.New()
	size, err := io.Copy(io.MultiWriter(file, hash), io.LimitReader(data, u.PartSize+1))
	if err != nil {
		os.Remove(partPath)
		return nil, fmt.Errorf("failed to write part: %w", err)
	}
	if want := u.expectedSize(partNumber); size != want {
		os.Remove(partPath)
		return nil, fmt.Errorf("%w: part %d is %d bytes, expected %d", ErrInvalidPart, partNumber, size, want)
	}

	part := Part{
		PartNumber: partNumber,
		Size:       size,
		ETag:       hex.EncodeToString(hash.Sum(nil)),
		UploadedAt: s.now(),
	}
	u.parts[partNumber] = part

	s.logger.WithFields(map[string]interface{}{
		"upload_id": id,
		"part":      partNumber,
		"size":      size,
	}).Debug("Uploaded part")
	return &part, nil
}

// Complete concatenates the parts and returns the assembled file path.
func (s *Service) Complete(id string) (*Session, error) {
	u, err := s.get(id)
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if err := s.checkActive(u); err != nil {
		return nil, err
	}
	for i := 1; i <= u.TotalParts; i++ {
		if _, ok := u.parts[i]; !ok {
			return nil, fmt.Errorf("%w: missing part %d", ErrIncomplete, i)
		}
	}

	finalPath := filepath.Join(s.uploadDir(id), u.Filename)
	if err := s.assemble(u, finalPath); err != nil {
		os.Remove(finalPath)
		return nil, err
	}

	now := s.now()
	u.Status = StatusCompleted
	u.CompletedAt = &now
	u.Path = finalPath

	s.logger.WithFields(map[string]interface{}{
		"upload_id": id,
		"path":      finalPath,
	}).Info("Completed multipart upload")
	return u.snapshot(), nil
}

func (s *Service) assemble(u *upload, finalPath string) error {
	finalFile, err := os.Create(finalPath)
	if err != nil {
		return fmt.Errorf("failed to create final file: %w", err)
	}
	defer finalFile.Close()

	for i := 1; i <= u.TotalParts; i++ {
		partFile, err := os.Open(s.partPath(u.ID, i))
		if err != nil {
			return fmt.Errorf("failed to open part %d: %w", i, err)
		}
		_, err = io.Copy(finalFile, partFile)
		partFile.Close()
		if err != nil {
			return fmt.Errorf("failed to copy part %d: %w", i, err)
		}
	}
	if err := finalFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync final file: %w", err)
	}

	for i := 1; i <= u.TotalParts; i++ {
		os.Remove(s.partPath(u.ID, i))
	}
	return nil
}

// Abort cancels an upload and removes its files.
func (s *Service) Abort(id string) error {
	s.mu.Lock()
	u, ok := s.uploads[id]
	if ok {
		delete(s.uploads, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUploadNotFound, id)
	}

	u.mu.Lock()
	completed := u.Status == StatusCompleted
	u.Status = StatusAborted
	u.mu.Unlock()

	// A completed file may already be referenced by the media library.
	if !completed {
		s.removeDir(id)
	}
	s.logger.WithField("upload_id", id).Info("Aborted multipart upload")
	return nil
}

// Get returns the upload's current state.
func (s *Service) Get(id string) (*Session, error) {
	u, err := s.get(id)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.snapshot(), nil
}

// CleanupExpired removes expired uploads every interval until ctx ends.
func (s *Service) CleanupExpired(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

// cleanupExpired drops active uploads past their expiry. Completed uploads
// are forgotten but their files are kept.
func (s *Service) cleanupExpired() int {
	now := s.now()
	var expired []string

	s.mu.Lock()
	for id, u := range s.uploads {
		u.mu.Lock()
		if now.After(u.ExpiresAt) {
			if u.Status == StatusActive {
				expired = append(expired, id)
			}
			u.Status = StatusAborted
			delete(s.uploads, id)
		}
		u.mu.Unlock()
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.removeDir(id)
		s.logger.WithField("upload_id", id).Info("Cleaned up expired upload")
	}
	return len(expired)
}

func (s *Service) get(id string) (*upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.uploads[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, id)
	}
	return u, nil
}

func (s *Service) checkActive(u *upload) error {
	if u.Status != StatusActive {
		return ErrNotActive
	}
	if s.now().After(u.ExpiresAt) {
		return ErrExpired
	}
	return nil
}

// expectedSize is PartSize for every part but the last.
func (u *upload) expectedSize(partNumber int) int64 {
	if partNumber < u.TotalParts {
		return u.PartSize
	}
	return u.TotalSize - int64(u.TotalParts-1)*u.PartSize
}

func (s *Service) uploadDir(id string) string {
	return filepath.Join(s.dir, id)
}

func (s *Service) partPath(id string, n int) string {
	return filepath.Join(s.uploadDir(id), fmt.Sprintf("part_%d", n))
}

func (s *Service) removeDir(id string) {
	if err := os.RemoveAll(s.uploadDir(id)); err != nil {
		s.logger.WithField("upload_id", id).WarnWithErr("Failed to remove upload directory", err)
	}
}
