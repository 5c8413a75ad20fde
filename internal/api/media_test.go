package api

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vedit/internal/upload"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

func uploadRequest(t *testing.T, field, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/v1/media/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestMediaByReference(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, "POST", "/api/v1/media", map[string]interface{}{"name": "nothing"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "POST", "/api/v1/media", map[string]interface{}{"name": "clip", "blob_url": "blob:abc"})
	require.Equal(t, http.StatusCreated, w.Code)
	var file models.MediaFile
	decode(t, w, &file)
	assert.Equal(t, "blob:abc", env.media.BlobURLs()[file.ID])

	w = env.do(t, "GET", "/api/v1/media", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Media []models.MediaFile `json:"media"`
	}
	decode(t, w, &list)
	require.Len(t, list.Media, 1)

	assert.Equal(t, http.StatusNoContent, env.do(t, "DELETE", "/api/v1/media/"+file.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "DELETE", "/api/v1/media/"+file.ID, nil).Code)
	assert.Empty(t, env.media.Files())
}

func TestMediaUpload(t *testing.T) {
	env := newTestEnv(t, nil)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, uploadRequest(t, "media", "take1.webm", []byte("webm bytes")))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var file models.MediaFile
	decode(t, w, &file)
	assert.Equal(t, "take1.webm", file.Name)
	assert.Equal(t, int64(len("webm bytes")), file.Size)

	h, ok := env.media.Handle(file.ID)
	require.True(t, ok)
	r, err := h.Open()
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "webm bytes", string(data))

	// Uploaded media resolves through its in-memory handle at export time.
	env.addClip(t, map[string]interface{}{"media_type": "video", "media_file_id": file.ID, "duration": 1})
	job := env.createExport(t, map[string]interface{}{"metadata": map[string]interface{}{"title": "Take"}})
	code, resp := env.wait(t, job.ID, "5s")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Result, resp.Error)

	env.transcoder.mu.Lock()
	defer env.transcoder.mu.Unlock()
	require.Len(t, env.transcoder.merges, 1)
	assert.Equal(t, models.SourceInMemory, env.transcoder.merges[0].Clips[0].Source.Kind)
}

func TestMediaUploadRejections(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.MaxUploadBytes = 4 })

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, uploadRequest(t, "media", "big.mp4", []byte("too large")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, uploadRequest(t, "file", "x.mp4", []byte("x")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func (e *testEnv) putPart(t *testing.T, id string, n int, data string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("PUT", "/api/v1/uploads/"+id+"/parts/"+strconv.Itoa(n), strings.NewReader(data))
	req.Header.Set("Content-Type", "application/octet-stream")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestChunkedUpload(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Uploads = upload.NewService(t.TempDir(), 4, time.Hour, nil)
	})

	w := env.do(t, "POST", "/api/v1/uploads", map[string]interface{}{
		"filename": "screen.webm", "total_size": 6, "mime_type": "video/webm",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var session upload.Session
	decode(t, w, &session)
	assert.Equal(t, 2, session.TotalParts)

	assert.Equal(t, http.StatusOK, env.putPart(t, session.ID, 1, "abcd").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, env.putPart(t, session.ID, 3, "ef").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, env.do(t, "POST", "/api/v1/uploads/"+session.ID+"/complete", nil).Code)
	assert.Equal(t, http.StatusOK, env.putPart(t, session.ID, 2, "ef").Code)

	w = env.do(t, "GET", "/api/v1/uploads/"+session.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &session)
	assert.Len(t, session.Parts, 2)

	w = env.do(t, "POST", "/api/v1/uploads/"+session.ID+"/complete", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var file models.MediaFile
	decode(t, w, &file)
	assert.Equal(t, "screen.webm", file.Name)
	assert.Equal(t, "video/webm", file.MimeType)
	assert.Equal(t, int64(6), file.Size)

	data, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))

	_, ok := env.media.File(file.ID)
	assert.True(t, ok)

	assert.Equal(t, http.StatusConflict, env.putPart(t, session.ID, 1, "abcd").Code)
	assert.Equal(t, http.StatusNoContent, env.do(t, "DELETE", "/api/v1/uploads/"+session.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/api/v1/uploads/"+session.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.putPart(t, "missing", 1, "abcd").Code)

	req := httptest.NewRequest("PUT", "/api/v1/uploads/"+session.ID+"/parts/first", strings.NewReader("abcd"))
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChunkedUploadDisabled(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, "POST", "/api/v1/uploads", map[string]interface{}{"filename": "a.webm", "total_size": 1})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
