package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Output format to default codec mapping.
const (
	FormatMP4  = "mp4"
	FormatWebM = "webm"
	FormatMOV  = "mov"

	CodecH264   = "libx264"
	CodecVP9    = "libvpx-vp9"
	CodecProRes = "prores_ks"
)

// CodecForFormat derives the video codec an output format needs.
func CodecForFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatWebM:
		return CodecVP9
	case FormatMOV:
		return CodecProRes
	default:
		return CodecH264
	}
}

// AudioCodecForFormat picks an audio codec compatible with the container.
func AudioCodecForFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatWebM:
		return "libopus"
	case FormatMOV:
		return "pcm_s16le"
	default:
		return "aac"
	}
}

// FileExtension returns the dotted extension for an output format.
func FileExtension(format string) string {
	f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	if f == "" {
		f = FormatMP4
	}
	return "." + f
}

// namedResolutions maps shorthand names onto pixel sizes.
var namedResolutions = map[string][2]int{
	"144p":  {256, 144},
	"240p":  {426, 240},
	"360p":  {640, 360},
	"480p":  {854, 480},
	"720p":  {1280, 720},
	"1080p": {1920, 1080},
	"1440p": {2560, 1440},
	"4k":    {3840, 2160},
	"2160p": {3840, 2160},
}

// ParseResolution accepts "WIDTHxHEIGHT" or a shorthand like "1080p".
func ParseResolution(resolution string) (width, height int, err error) {
	r := strings.ToLower(strings.TrimSpace(resolution))
	if res, ok := namedResolutions[r]; ok {
		return res[0], res[1], nil
	}

	parts := strings.Split(r, "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid resolution %q", resolution)
	}
	width, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution width %q: %w", parts[0], err)
	}
	height, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid resolution height %q: %w", parts[1], err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid resolution %q", resolution)
	}
	// Most encoders require even dimensions.
	return width &^ 1, height &^ 1, nil
}
