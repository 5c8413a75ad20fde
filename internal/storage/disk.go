package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/vedit/internal/logging"
	"github.com/therealutkarshpriyadarshi/vedit/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// Chooser asks where to save an export. Returning ok=false means the user
// declined.
type Chooser func(ctx context.Context, suggested string) (path string, ok bool, err error)

// Disk persists finished exports on the local filesystem.
type Disk struct {
	outputDir string
	logger    *logging.Logger
	chooser   Chooser
	statfs    func(path string) (uint64, error)
}

// NewDisk creates a disk persistence rooted at outputDir. Relative save
// paths resolve inside it.
func NewDisk(outputDir string, logger *logging.Logger) *Disk {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if outputDir == "" {
		outputDir = "."
	}
	return &Disk{
		outputDir: outputDir,
		logger:    logger,
		statfs:    freeSpace,
	}
}

// SetChooser installs an interactive save-path prompt.
func (d *Disk) SetChooser(c Chooser) {
	d.chooser = c
}

// ResolveSavePath returns where the export should be written. Without a
// chooser the suggested name is placed in the output directory, suffixed
// with a counter when a file of that name already exists.
func (d *Disk) ResolveSavePath(ctx context.Context, suggested string) (string, bool, error) {
	if d.chooser != nil {
		path, ok, err := d.chooser(ctx, suggested)
		if err != nil || !ok {
			return "", ok, err
		}
		return filepath.Clean(path), true, nil
	}

	name := filepath.Base(strings.TrimSpace(suggested))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", false, nil
	}
	if err := os.MkdirAll(d.outputDir, 0755); err != nil {
		return "", false, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := checkWritable(d.outputDir); err != nil {
		return "", false, fmt.Errorf("output directory %s is not writable: %w", d.outputDir, err)
	}
	return uniquePath(filepath.Join(d.outputDir, name)), true, nil
}

func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := base + "-" + strconv.Itoa(i) + ext
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// FreeSpace reports bytes available to the caller on the filesystem that
// would hold path. Missing directories are walked up to the nearest
// existing one.
func (d *Disk) FreeSpace(ctx context.Context, path string) (uint64, error) {
	dir := filepath.Dir(path)
	for {
		if _, err := os.Stat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	free, err := d.statfs(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read free space of %s: %w", dir, err)
	}
	return free, nil
}

// WriteFile copies the artifact to path through a temporary file in the
// same directory, so a failed or cancelled write never leaves a partial
// export behind.
func (d *Disk) WriteFile(ctx context.Context, path string, a models.Artifact) (err error) {
	start := time.Now()
	var written int64
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RecordStorageOperation("write", status, time.Since(start).Seconds(), written)
		d.logger.LogStorageOperation("write", path, written, time.Since(start), err)
	}()

	if a.Path == "" {
		return fmt.Errorf("artifact has no file")
	}
	src, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".vedit-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	written, err = io.Copy(tmp, &ctxReader{ctx: ctx, r: src})
	if err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync export: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close export: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}
	return nil
}

// Stat reports whether path exists and its size.
func (d *Disk) Stat(ctx context.Context, path string) (bool, int64, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	if info.IsDir() {
		return false, 0, fmt.Errorf("%s is a directory", path)
	}
	return true, info.Size(), nil
}

// ctxReader stops a copy once the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
