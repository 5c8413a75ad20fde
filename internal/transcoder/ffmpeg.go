package transcoder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// FFmpeg wraps FFmpeg operations
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg instance
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// VideoMetadata holds video metadata extracted from ffprobe
type VideoMetadata struct {
	Format  FormatInfo   `json:"format"`
	Streams []StreamInfo `json:"streams"`
}

// FormatInfo holds format information
type FormatInfo struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// StreamInfo holds stream information
type StreamInfo struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	BitRate      string `json:"bit_rate"`
	FrameRate    string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

// HasStream reports whether any stream is of the given codec type
// ("video" or "audio").
func (m *VideoMetadata) HasStream(codecType string) bool {
	for _, s := range m.Streams {
		if s.CodecType == codecType {
			return true
		}
	}
	return false
}

// ProbeResult converts the raw ffprobe strings into the export pipeline's
// probe summary. Unparseable numbers are left at zero.
func (m *VideoMetadata) ProbeResult() models.ProbeResult {
	var r models.ProbeResult
	r.Format.FormatName = m.Format.FormatName
	if d, err := strconv.ParseFloat(m.Format.Duration, 64); err == nil {
		r.Format.DurationSeconds = d
	}
	if s, err := strconv.ParseInt(m.Format.Size, 10, 64); err == nil {
		r.Format.Size = s
	}
	if b, err := strconv.ParseInt(m.Format.BitRate, 10, 64); err == nil {
		r.Format.BitRate = b
	}
	return r
}

// ProbeVideo extracts metadata from a media file or URL
func (f *FFmpeg) ProbeVideo(ctx context.Context, inputPath string) (*VideoMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	return parseProbeOutput(stdout.Bytes())
}

func parseProbeOutput(data []byte) (*VideoMetadata, error) {
	var metadata VideoMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &metadata, nil
}

// Version returns the first line of `ffmpeg -version`.
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, f.ffmpegPath, "-hide_banner", "-version").Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg not available at %q: %w", f.ffmpegPath, err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

var progressRegex = regexp.MustCompile(`^out_time_(?:ms|us)=(\d+)$`)

// parseProgressLine reads one `-progress` key=value line and returns the
// encoded position in seconds.
func parseProgressLine(line string) (float64, bool) {
	matches := progressRegex.FindStringSubmatch(strings.TrimSpace(line))
	if len(matches) < 2 {
		return 0, false
	}
	us, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, false
	}
	// Both keys are microseconds despite the name.
	return us / 1000000.0, true
}

// stderrTail keeps the last lines ffmpeg wrote for error reporting.
type stderrTail struct {
	lines []string
	max   int
}

func (t *stderrTail) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *stderrTail) String() string {
	return strings.Join(t.lines, "\n")
}

// run executes ffmpeg, turning `-progress` output into 0..1 fractions of
// totalSeconds and forwarding warnings to the hooks.
func (f *FFmpeg) run(ctx context.Context, args []string, totalSeconds float64, hooks models.StageHooks) error {
	full := append([]string{"-hide_banner", "-nostats", "-v", "warning", "-progress", "pipe:1", "-y"}, args...)
	cmd := exec.CommandContext(ctx, f.ffmpegPath, full...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanProgress(stdout, totalSeconds, hooks)
	}()

	tail := &stderrTail{max: 20}
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			tail.add(line)
			hooks.Log(models.LogLevelWarn, line)
		}
	}()

	// Pipes must be drained before Wait closes them.
	wg.Wait()
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, tail.String())
	}

	hooks.Progress(1)
	return nil
}

func scanProgress(r io.Reader, totalSeconds float64, hooks models.StageHooks) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		seconds, ok := parseProgressLine(scanner.Text())
		if !ok || totalSeconds <= 0 {
			continue
		}
		hooks.Progress(seconds / totalSeconds)
	}
}
