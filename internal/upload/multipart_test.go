package upload

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, partSize int64) *Service {
	t.Helper()
	return NewService(t.TempDir(), partSize, time.Hour, nil)
}

func TestNewServicePartSizeBounds(t *testing.T) {
	assert.Equal(t, int64(DefaultPartSize), NewService(t.TempDir(), 0, 0, nil).partSize)
	assert.Equal(t, int64(MaxPartSize), NewService(t.TempDir(), MaxPartSize*2, 0, nil).partSize)
}

func TestMultipartUpload(t *testing.T) {
	s := newTestService(t, 4)

	session, err := s.Initiate("../take1.webm", 10)
	require.NoError(t, err)
	assert.Equal(t, "take1.webm", session.Filename)
	assert.Equal(t, 3, session.TotalParts)
	assert.Equal(t, StatusActive, session.Status)

	// Out of order, with a resend.
	_, err = s.UploadPart(session.ID, 3, strings.NewReader("ij"))
	require.NoError(t, err)
	_, err = s.UploadPart(session.ID, 1, strings.NewReader("zzzz"))
	require.NoError(t, err)
	_, err = s.UploadPart(session.ID, 1, strings.NewReader("abcd"))
	require.NoError(t, err)

	_, err = s.Complete(session.ID)
	assert.True(t, errors.Is(err, ErrIncomplete))

	part, err := s.UploadPart(session.ID, 2, strings.NewReader("efgh"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), part.Size)
	assert.NotEmpty(t, part.ETag)

	got, err := s.Get(session.ID)
	require.NoError(t, err)
	require.Len(t, got.Parts, 3)
	assert.Equal(t, 1, got.Parts[0].PartNumber)

	done, err := s.Complete(session.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	data, err := os.ReadFile(done.Path)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij", string(data))

	_, err = os.Stat(filepath.Join(filepath.Dir(done.Path), "part_1"))
	assert.True(t, os.IsNotExist(err), "parts are removed after assembly")

	_, err = s.UploadPart(session.ID, 1, strings.NewReader("abcd"))
	assert.True(t, errors.Is(err, ErrNotActive))

	// Aborting a completed upload keeps the file.
	require.NoError(t, s.Abort(session.ID))
	_, err = os.Stat(done.Path)
	assert.NoError(t, err)
}

func TestUploadPartRejections(t *testing.T) {
	s := newTestService(t, 4)

	_, err := s.Initiate("", 10)
	assert.True(t, errors.Is(err, ErrInvalidPart))
	_, err = s.Initiate("a.webm", 0)
	assert.True(t, errors.Is(err, ErrInvalidPart))

	session, err := s.Initiate("a.webm", 10)
	require.NoError(t, err)

	_, err = s.UploadPart(session.ID, 0, strings.NewReader("abcd"))
	assert.True(t, errors.Is(err, ErrInvalidPart))
	_, err = s.UploadPart(session.ID, 4, strings.NewReader("abcd"))
	assert.True(t, errors.Is(err, ErrInvalidPart))
	_, err = s.UploadPart(session.ID, 1, strings.NewReader("abcdef"))
	assert.True(t, errors.Is(err, ErrInvalidPart), "oversized part")
	_, err = s.UploadPart(session.ID, 1, strings.NewReader("ab"))
	assert.True(t, errors.Is(err, ErrInvalidPart), "short part")
	_, err = s.UploadPart(session.ID, 3, bytes.NewReader([]byte("ijk")))
	assert.True(t, errors.Is(err, ErrInvalidPart), "last part carries the remainder")

	_, err = s.UploadPart("missing", 1, strings.NewReader("abcd"))
	assert.True(t, errors.Is(err, ErrUploadNotFound))
}

func TestAbort(t *testing.T) {
	s := newTestService(t, 4)
	session, err := s.Initiate("a.webm", 4)
	require.NoError(t, err)
	_, err = s.UploadPart(session.ID, 1, strings.NewReader("abcd"))
	require.NoError(t, err)

	require.NoError(t, s.Abort(session.ID))
	_, err = os.Stat(s.uploadDir(session.ID))
	assert.True(t, os.IsNotExist(err))

	_, err = s.Get(session.ID)
	assert.True(t, errors.Is(err, ErrUploadNotFound))
	assert.True(t, errors.Is(s.Abort(session.ID), ErrUploadNotFound))
}

func TestCleanupExpired(t *testing.T) {
	s := newTestService(t, 4)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	stale, err := s.Initiate("stale.webm", 4)
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	fresh, err := s.Initiate("fresh.webm", 4)
	require.NoError(t, err)

	now = now.Add(31 * time.Minute)
	_, err = s.UploadPart(stale.ID, 1, strings.NewReader("abcd"))
	assert.True(t, errors.Is(err, ErrExpired))

	assert.Equal(t, 1, s.cleanupExpired())
	_, err = s.Get(stale.ID)
	assert.True(t, errors.Is(err, ErrUploadNotFound))
	_, err = os.Stat(s.uploadDir(stale.ID))
	assert.True(t, os.IsNotExist(err))

	_, err = s.Get(fresh.ID)
	assert.NoError(t, err)
}
