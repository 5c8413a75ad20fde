package transcoder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// intermediateArgs encode the merged timeline losslessly enough to be
// re-encoded, or shipped as is if the final encode fails.
func intermediateArgs(fps int) []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-crf", "16",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
	}
}

// BuildEncodeArgs builds the final encode of a merged file for the given
// export options. The output container follows opts.Format.
func BuildEncodeArgs(inputPath, outputPath string, opts models.ExportOptions) ([]string, error) {
	width, height, err := models.ParseResolution(opts.Resolution)
	if err != nil {
		return nil, err
	}
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = models.FormatMP4
	}
	codec := opts.Codec
	if codec == "" {
		codec = models.CodecForFormat(format)
	}

	args := []string{
		"-i", inputPath,
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
			width, height, width, height),
	}
	if opts.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(opts.FPS))
	}

	args = append(args, "-c:v", codec)
	switch codec {
	case "libx264", "libx265":
		if opts.Preset != "" {
			args = append(args, "-preset", opts.Preset)
		}
		args = append(args, "-crf", strconv.Itoa(opts.CRF))
		if opts.Bitrate != "" {
			args = append(args, "-maxrate", opts.Bitrate, "-bufsize", doubleRate(opts.Bitrate))
		}
		args = append(args, "-pix_fmt", "yuv420p")
	case models.CodecVP9:
		// Constrained quality: crf with bitrate as the ceiling.
		bitrate := opts.Bitrate
		if bitrate == "" {
			bitrate = "0"
		}
		args = append(args, "-crf", strconv.Itoa(opts.CRF), "-b:v", bitrate,
			"-deadline", "good", "-row-mt", "1", "-pix_fmt", "yuv420p")
	case models.CodecProRes:
		args = append(args, "-profile:v", "3", "-pix_fmt", "yuv422p10le")
	default:
		if opts.Bitrate != "" {
			args = append(args, "-b:v", opts.Bitrate)
		}
	}

	audioCodec := models.AudioCodecForFormat(format)
	args = append(args, "-c:a", audioCodec)
	if !strings.HasPrefix(audioCodec, "pcm_") {
		args = append(args, "-b:a", "192k")
	}

	switch format {
	case models.FormatMP4, models.FormatMOV:
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, "-f", muxer(format), outputPath)
	return args, nil
}

func muxer(format string) string {
	switch format {
	case models.FormatWebM:
		return "webm"
	case models.FormatMOV:
		return "mov"
	default:
		return "mp4"
	}
}

// doubleRate returns twice a bitrate like "8000k", or the input unchanged
// when it cannot be parsed.
func doubleRate(rate string) string {
	r := strings.TrimSpace(rate)
	i := len(r)
	for i > 0 && (r[i-1] < '0' || r[i-1] > '9') {
		i--
	}
	n, err := strconv.Atoi(r[:i])
	if err != nil {
		return rate
	}
	return strconv.Itoa(n*2) + r[i:]
}
