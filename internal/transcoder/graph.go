package transcoder

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/vedit/pkg/models"
)

// Input is one clip prepared for the merge graph.
type Input struct {
	Clip models.ClipData
	// Location is the path or URL ffmpeg opens. Empty for text-only clips.
	Location string
	HasVideo bool
	HasAudio bool
}

// MergeGraph is the input and filter part of a merge invocation. Codec
// and output arguments are appended by the caller.
type MergeGraph struct {
	Args     []string
	Filter   string
	Duration float64
}

// layer is one input's placement on the output timeline.
type layer struct {
	in      Input
	stream  int     // ffmpeg input index, -1 for text-only clips
	preroll float64 // seconds of source played before Start for a crossfade
	start   float64 // timeline second the layer appears
	into    *models.Transition
}

// BuildMergeGraph composes all clips over a black canvas of the requested
// size. Video clips are drawn first, then overlay clips, then text, each
// in start order. Audio from every audible clip is delayed into place and
// mixed.
func BuildMergeGraph(inputs []Input, width, height, fps int) (MergeGraph, error) {
	if width <= 0 || height <= 0 {
		return MergeGraph{}, fmt.Errorf("invalid canvas %dx%d", width, height)
	}
	if fps <= 0 {
		fps = 30
	}

	total := 0.0
	incoming := make(map[string]*models.Transition)
	for _, in := range inputs {
		total = math.Max(total, in.Clip.End)
		if t := in.Clip.TransitionOut; t != nil {
			incoming[t.ToClipID] = t
		}
	}
	if total <= 0 {
		return MergeGraph{}, fmt.Errorf("timeline has no duration")
	}

	var (
		args    []string
		layers  []layer
		streams int
	)
	for _, in := range inputs {
		l := layer{in: in, stream: -1, start: in.Clip.Start, into: incoming[in.Clip.ClipID]}
		if in.Location != "" {
			if l.into != nil && l.into.Type == models.TransitionCrossfade {
				l.preroll = math.Min(l.into.Duration, in.Clip.SourceIn)
				l.start = in.Clip.Start - l.preroll
			}
			l.stream = streams
			streams++
			args = append(args,
				"-ss", seconds(in.Clip.SourceIn-l.preroll),
				"-t", seconds(in.Clip.Duration+l.preroll),
				"-i", in.Location,
			)
		}
		layers = append(layers, l)
	}

	var chains []string
	chains = append(chains, fmt.Sprintf("color=c=black:s=%dx%d:r=%d:d=%s[base]", width, height, fps, seconds(total)))
	current := "base"
	n := 0

	for _, l := range visualOrder(layers) {
		label := fmt.Sprintf("v%d", n)
		next := fmt.Sprintf("c%d", n)
		chains = append(chains, fmt.Sprintf("[%d:v]%s[%s]", l.stream, videoFilters(l, width, height, fps), label))
		x, y := overlayPosition(l, width, height)
		chains = append(chains, fmt.Sprintf("[%s][%s]overlay=x=%s:y=%s:eof_action=pass:enable='between(t,%s,%s)'[%s]",
			current, label, x, y, seconds(l.start), seconds(l.in.Clip.End), next))
		current = next
		n++
	}

	for _, l := range layers {
		to := l.in.Clip.TextOverlay
		if to == nil || strings.TrimSpace(to.Text) == "" || !l.in.Clip.Visible {
			continue
		}
		next := fmt.Sprintf("t%d", n)
		chains = append(chains, fmt.Sprintf("[%s]%s[%s]", current, drawText(l.in.Clip), next))
		current = next
		n++
	}
	chains = append(chains, fmt.Sprintf("[%s]format=yuv420p,trim=duration=%s[vout]", current, seconds(total)))

	var audio []string
	for _, l := range layers {
		if l.stream < 0 || !l.in.HasAudio || l.in.Clip.VolumeScalar <= 0 {
			continue
		}
		label := fmt.Sprintf("a%d", len(audio))
		chains = append(chains, fmt.Sprintf("[%d:a]%s[%s]", l.stream, audioFilters(l), label))
		audio = append(audio, "["+label+"]")
	}
	switch len(audio) {
	case 0:
		chains = append(chains, fmt.Sprintf("anullsrc=r=48000:cl=stereo,atrim=duration=%s[aout]", seconds(total)))
	case 1:
		chains = append(chains, fmt.Sprintf("%sapad,atrim=duration=%s[aout]", audio[0], seconds(total)))
	default:
		chains = append(chains, fmt.Sprintf("%samix=inputs=%d:duration=longest:normalize=0,apad,atrim=duration=%s[aout]",
			strings.Join(audio, ""), len(audio), seconds(total)))
	}

	filter := strings.Join(chains, ";")
	args = append(args, "-filter_complex", filter, "-map", "[vout]", "-map", "[aout]")
	return MergeGraph{Args: args, Filter: filter, Duration: total}, nil
}

// visualOrder returns the layers that draw video: video clips below
// overlay clips, each group in start order.
func visualOrder(layers []layer) []layer {
	var out []layer
	for _, l := range layers {
		c := l.in.Clip
		if l.stream < 0 || !l.in.HasVideo || !c.Visible || c.MediaType == models.TrackTypeAudio {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi := out[i].in.Clip.MediaType == models.TrackTypeOverlay
		oj := out[j].in.Clip.MediaType == models.TrackTypeOverlay
		if oi != oj {
			return !oi
		}
		return out[i].in.Clip.Start < out[j].in.Clip.Start
	})
	return out
}

func videoFilters(l layer, width, height, fps int) string {
	c := l.in.Clip
	w, h := width, height
	if ot := c.OverlayTransform; ot != nil && c.MediaType == models.TrackTypeOverlay {
		w = even(float64(width) * models.Clamp(ot.Width, 0, 1))
		h = even(float64(height) * models.Clamp(ot.Height, 0, 1))
	}

	f := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", w, h),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black", w, h),
		"setsar=1",
		fmt.Sprintf("fps=%d", fps),
		"format=yuva420p",
	}

	length := c.Duration + l.preroll
	if t := l.into; t != nil {
		switch t.Type {
		case models.TransitionCrossfade:
			d := t.Duration
			if l.preroll > 0 {
				d = l.preroll
			}
			f = append(f, fmt.Sprintf("fade=t=in:st=0:d=%s:alpha=1", seconds(d)))
		case models.TransitionDipToBlack:
			f = append(f, fmt.Sprintf("fade=t=in:st=0:d=%s", seconds(t.Duration/2)))
		}
	}
	if t := c.TransitionOut; t != nil && t.Type == models.TransitionDipToBlack {
		f = append(f, fmt.Sprintf("fade=t=out:st=%s:d=%s", seconds(length-t.Duration/2), seconds(t.Duration/2)))
	}

	f = append(f, fmt.Sprintf("setpts=PTS-STARTPTS+%s/TB", seconds(l.start)))
	return strings.Join(f, ",")
}

// overlayPosition returns the overlay x/y expressions. Slide transitions
// move the incoming clip in from the right edge.
func overlayPosition(l layer, width, height int) (string, string) {
	x, y := "0", "0"
	c := l.in.Clip
	if ot := c.OverlayTransform; ot != nil && c.MediaType == models.TrackTypeOverlay {
		x = strconv.Itoa(int(math.Round(float64(width) * models.Clamp(ot.X, 0, 1))))
		y = strconv.Itoa(int(math.Round(float64(height) * models.Clamp(ot.Y, 0, 1))))
	}
	if t := l.into; t != nil && t.Type == models.TransitionSlide && t.Duration > 0 {
		p := fmt.Sprintf("(t-%s)/%s", seconds(l.start), seconds(t.Duration))
		x = fmt.Sprintf("'if(lt(t,%s),%s+W*(1-%s),%s)'", seconds(l.start+t.Duration), x, easing(t.Easing, p), x)
	}
	return x, y
}

// easing renders a 0..1 progress expression p through the curve.
func easing(e models.Easing, p string) string {
	switch e {
	case models.EasingEaseIn:
		return fmt.Sprintf("pow(%s,2)", p)
	case models.EasingEaseOut:
		return fmt.Sprintf("(1-pow(1-%s,2))", p)
	case models.EasingEaseInOut:
		return fmt.Sprintf("if(lt(%[1]s,0.5),2*pow(%[1]s,2),1-2*pow(1-%[1]s,2))", p)
	default:
		return p
	}
}

func audioFilters(l layer) string {
	c := l.in.Clip
	f := []string{
		"aresample=48000",
		"asetpts=PTS-STARTPTS",
		"volume=" + strconv.FormatFloat(c.VolumeScalar, 'f', 3, 64),
	}
	length := c.Duration + l.preroll
	if t := l.into; t != nil {
		switch {
		case t.Type == models.TransitionCrossfade && l.preroll > 0:
			f = append(f, fmt.Sprintf("afade=t=in:st=0:d=%s", seconds(l.preroll)))
		case t.Type == models.TransitionDipToBlack:
			f = append(f, fmt.Sprintf("afade=t=in:st=0:d=%s", seconds(t.Duration/2)))
		}
	}
	if t := c.TransitionOut; t != nil && t.Type == models.TransitionDipToBlack {
		f = append(f, fmt.Sprintf("afade=t=out:st=%s:d=%s", seconds(length-t.Duration/2), seconds(t.Duration/2)))
	}
	delay := int64(math.Round(math.Max(0, l.start) * 1000))
	f = append(f, fmt.Sprintf("adelay=%d:all=1", delay))
	return strings.Join(f, ",")
}

// drawText renders a clip's text overlay for its timeline window.
func drawText(c models.ClipData) string {
	to := c.TextOverlay
	size := styleValue(to.Style, "48", "fontSize", "font-size", "size")
	color := styleValue(to.Style, "white", "color", "fontColor")

	px, py := 0.5, 0.5
	if to.Position != nil {
		px, py = models.Clamp(to.Position.X, 0, 1), models.Clamp(to.Position.Y, 0, 1)
	}

	opts := []string{
		"text=" + escapeText(to.Text),
		"fontsize=" + escapeText(size),
		"fontcolor=" + escapeText(color),
		fmt.Sprintf("x=w*%s-text_w/2", strconv.FormatFloat(px, 'f', 3, 64)),
		fmt.Sprintf("y=h*%s-text_h/2", strconv.FormatFloat(py, 'f', 3, 64)),
	}
	if font := styleValue(to.Style, "", "fontFamily", "font-family", "font"); font != "" {
		opts = append(opts, "font="+escapeText(font))
	}
	if alpha := textAlpha(c); alpha != "" {
		opts = append(opts, "alpha='"+alpha+"'")
	}
	opts = append(opts, fmt.Sprintf("enable='between(t,%s,%s)'", seconds(c.Start), seconds(c.End)))
	return "drawtext=" + strings.Join(opts, ":")
}

// textAlpha builds an alpha expression from opacity keyframes, or a half
// second fade in and out for the "fade" preset.
func textAlpha(c models.ClipData) string {
	var kfs []models.Keyframe
	for _, k := range c.Keyframes {
		if k.Property == "opacity" {
			kfs = append(kfs, k)
		}
	}
	if len(kfs) > 0 {
		sort.SliceStable(kfs, func(i, j int) bool { return kfs[i].Time < kfs[j].Time })
		return keyframeExpr(kfs, c.Start)
	}

	if a := c.TextOverlay.Animation; a != nil && a.Preset == "fade" {
		ramp := math.Min(0.5, c.Duration/2)
		if ramp <= 0 {
			return ""
		}
		return fmt.Sprintf("if(lt(t,%[1]s),(t-%[2]s)/%[3]s,if(gt(t,%[4]s),(%[5]s-t)/%[3]s,1))",
			seconds(c.Start+ramp), seconds(c.Start), seconds(ramp), seconds(c.End-ramp), seconds(c.End))
	}
	return ""
}

// keyframeExpr interpolates linearly between sorted keyframes, holding the
// first and last values outside their range.
func keyframeExpr(kfs []models.Keyframe, offset float64) string {
	value := func(v float64) string { return strconv.FormatFloat(models.Clamp(v, 0, 1), 'f', 3, 64) }
	expr := value(kfs[len(kfs)-1].Value)
	for i := len(kfs) - 1; i > 0; i-- {
		a, b := kfs[i-1], kfs[i]
		span := b.Time - a.Time
		if span <= 0 {
			continue
		}
		seg := fmt.Sprintf("%s+(%s-%s)*(t-%s)/%s", value(a.Value), value(b.Value), value(a.Value),
			seconds(offset+a.Time), seconds(span))
		expr = fmt.Sprintf("if(lt(t,%s),%s,%s)", seconds(offset+b.Time), seg, expr)
	}
	return fmt.Sprintf("if(lt(t,%s),%s,%s)", seconds(offset+kfs[0].Time), value(kfs[0].Value), expr)
}

func styleValue(style map[string]string, fallback string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(style[k]); v != "" {
			return strings.TrimSuffix(v, "px")
		}
	}
	return fallback
}

var (
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`, `%`, `\%`)
	graphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// escapeText escapes a value for a filter option and then for the
// filtergraph around it.
func escapeText(s string) string {
	return graphEscaper.Replace(optionEscaper.Replace(s))
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func even(v float64) int {
	n := int(math.Round(v)) &^ 1
	if n < 2 {
		n = 2
	}
	return n
}
