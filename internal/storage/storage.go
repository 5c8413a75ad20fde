package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/therealutkarshpriyadarshi/vedit/internal/config"
	"github.com/therealutkarshpriyadarshi/vedit/internal/logging"
	"github.com/therealutkarshpriyadarshi/vedit/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

const (
	// Files at least this large are uploaded in parallel parts (10MB)
	DefaultPartSize = 10 * 1024 * 1024

	// Maximum number of concurrent parts
	MaxConcurrentParts = 4
)

// uploader is the slice of the MinIO client the mirror uses.
type uploader interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Mirror copies finished exports to object storage. It observes the
// export queue and uploads in the background so progress delivery is
// never held up by the network.
type Mirror struct {
	client     uploader
	bucketName string
	prefix     string
	partSize   int64
	logger     *logging.Logger

	mu       sync.Mutex
	uploaded map[string]bool
	wg       sync.WaitGroup
}

// NewMirror connects to MinIO and ensures the bucket exists
func NewMirror(ctx context.Context, cfg config.StorageConfig, logger *logging.Logger) (*Mirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return newMirror(client, cfg.BucketName, cfg.Prefix, logger), nil
}

func newMirror(client uploader, bucket, prefix string, logger *logging.Logger) *Mirror {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Mirror{
		client:     client,
		bucketName: bucket,
		prefix:     prefix,
		partSize:   DefaultPartSize,
		logger:     logger,
		uploaded:   make(map[string]bool),
	}
}

// JobUpdated uploads the output of a job the first time it is seen
// completed.
func (m *Mirror) JobUpdated(job *models.ExportJob) {
	if job.Status != models.JobStatusCompleted || job.OutputPath == "" {
		return
	}
	m.mu.Lock()
	if m.uploaded[job.ID] {
		m.mu.Unlock()
		return
	}
	m.uploaded[job.ID] = true
	m.mu.Unlock()

	objectName := m.ObjectName(job.ID, job.OutputPath)
	filePath := job.OutputPath
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.UploadFile(context.Background(), objectName, filePath); err != nil {
			m.logger.WithJobID(job.ID).ErrorWithErr("Failed to mirror export", err)
		}
	}()
}

// ObjectName is the key a job's output is stored under.
func (m *Mirror) ObjectName(jobID, filePath string) string {
	return path.Join(strings.Trim(m.prefix, "/"), jobID, filepath.Base(filePath))
}

// UploadFile uploads a file from local filesystem. Large files go up in
// parallel parts.
func (m *Mirror) UploadFile(ctx context.Context, objectName, filePath string) (err error) {
	start := time.Now()
	var size int64
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RecordStorageOperation("upload", status, time.Since(start).Seconds(), size)
		m.logger.LogStorageOperation("upload", objectName, size, time.Since(start), err)
	}()

	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	size = info.Size()

	opts := minio.PutObjectOptions{
		ContentType: getContentType(filePath),
	}
	if size >= m.partSize {
		opts.PartSize = uint64(m.partSize)
		opts.NumThreads = MaxConcurrentParts
	}

	if _, err := m.client.FPutObject(ctx, m.bucketName, objectName, filePath, opts); err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}
	return nil
}

// Wait blocks until in-flight uploads finish or ctx ends.
func (m *Mirror) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// getContentType returns the content type based on file extension
func getContentType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	default:
		return "application/octet-stream"
	}
}
