package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/vedit/internal/timeline"
	"github.com/therealutkarshpriyadarshi/vedit/internal/upload"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

func (s *Server) listMedia(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"media": s.media.Files()})
}

// addMedia registers a media file by reference (path, blob URL or
// recorded base path). Nothing is read until an export runs.
func (s *Server) addMedia(c *gin.Context) {
	var req models.MediaFile
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Path == "" && req.BlobURL == "" && req.RecordedBasePath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "one of path, blob_url or recorded_base_path is required"})
		return
	}

	file := s.media.Add(req, nil)
	c.JSON(http.StatusCreated, file)
}

// uploadMedia keeps an uploaded file in memory and exports read it through
// its handle.
func (s *Server) uploadMedia(c *gin.Context) {
	fh, err := c.FormFile("media")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No media file provided"})
		return
	}
	if fh.Size > s.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("media is %s, the limit is %s", humanize.IBytes(uint64(fh.Size)), humanize.IBytes(uint64(s.maxUpload))),
		})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read upload"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.maxUpload))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read upload"})
		return
	}

	file := s.media.Add(models.MediaFile{
		Name:     fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
	}, timeline.BytesHandle(data))

	s.logger.WithFields(map[string]interface{}{
		"media_file_id": file.ID,
		"size":          humanize.IBytes(uint64(file.Size)),
	}).Info("Media uploaded")
	c.JSON(http.StatusCreated, file)
}

func (s *Server) removeMedia(c *gin.Context) {
	if !s.media.Remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Media file not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

type initiateUploadRequest struct {
	Filename  string `json:"filename" binding:"required"`
	TotalSize int64  `json:"total_size" binding:"required"`
	MimeType  string `json:"mime_type"`
}

// uploadService returns the upload service, answering 501 when it is not configured.
func (s *Server) uploadService(c *gin.Context) (*upload.Service, bool) {
	if s.uploads == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Chunked uploads are not enabled"})
		return nil, false
	}
	return s.uploads, true
}

// initiateUpload starts a chunked upload for recordings too large to send
// in one request.
func (s *Server) initiateUpload(c *gin.Context) {
	uploads, ok := s.uploadService(c)
	if !ok {
		return
	}
	var req initiateUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	session, err := uploads.Initiate(req.Filename, req.TotalSize)
	if err != nil {
		respondError(c, err)
		return
	}
	s.uploadTypesMu.Lock()
	s.uploadTypes[session.ID] = req.MimeType
	s.uploadTypesMu.Unlock()
	c.JSON(http.StatusCreated, session)
}

func (s *Server) getUpload(c *gin.Context) {
	uploads, ok := s.uploadService(c)
	if !ok {
		return
	}
	session, err := uploads.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// uploadPart takes the raw request body as the part's bytes.
func (s *Server) uploadPart(c *gin.Context) {
	uploads, ok := s.uploadService(c)
	if !ok {
		return
	}
	n, err := strconv.Atoi(c.Param("part"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "part must be a number"})
		return
	}
	part, err := uploads.UploadPart(c.Param("id"), n, c.Request.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, part)
}

// completeUpload assembles the parts and registers the file in the media
// library by path.
func (s *Server) completeUpload(c *gin.Context) {
	uploads, ok := s.uploadService(c)
	if !ok {
		return
	}
	id := c.Param("id")
	session, err := uploads.Complete(id)
	if err != nil {
		respondError(c, err)
		return
	}

	s.uploadTypesMu.Lock()
	mimeType := s.uploadTypes[id]
	delete(s.uploadTypes, id)
	s.uploadTypesMu.Unlock()

	file := s.media.Add(models.MediaFile{
		Name:     session.Filename,
		MimeType: mimeType,
		Path:     session.Path,
		Size:     session.TotalSize,
	}, nil)

	s.logger.WithFields(map[string]interface{}{
		"media_file_id": file.ID,
		"upload_id":     id,
		"size":          humanize.IBytes(uint64(file.Size)),
	}).Info("Chunked upload completed")
	c.JSON(http.StatusCreated, file)
}

func (s *Server) abortUpload(c *gin.Context) {
	uploads, ok := s.uploadService(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := uploads.Abort(id); err != nil {
		respondError(c, err)
		return
	}
	s.uploadTypesMu.Lock()
	delete(s.uploadTypes, id)
	s.uploadTypesMu.Unlock()
	c.Status(http.StatusNoContent)
}
