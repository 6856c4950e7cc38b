package video

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"neuropeaks/domain/core"
	"neuropeaks/internal"
)

// Tools locates the ffmpeg binaries.
type Tools struct {
	FFprobe string
	FFmpeg  string
}

// DefaultTools finds ffprobe and ffmpeg on PATH.
var DefaultTools = Tools{FFprobe: "ffprobe", FFmpeg: "ffmpeg"}

// Info describes the first video stream of a file.
type Info struct {
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	FPS      float64       `json:"fps"`
	Frames   int           `json:"frames"`
	Duration time.Duration `json:"duration"`
}

// Probe reads the stream layout of a video with ffprobe.
func (t Tools) Probe(ctx context.Context, path string) (*Info, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, core.NewNotFoundError("video", path)
	}
	raw, err := run(ctx, t.FFprobe, "-v", "error", "-print_format", "json", "-show_streams", "-show_format", path)
	if err != nil {
		return nil, err
	}
	info, err := ParseProbe(raw)
	if err != nil {
		return nil, core.NewParseError(path, err)
	}
	internal.DefaultLogger.Info("[Video] %s: %dx%d, %.3f fps, %d frames", path, info.Width, info.Height, info.FPS, info.Frames)
	return info, nil
}

// ParseProbe reads ffprobe's JSON output. The frame count falls back to
// duration times frame rate when the container does not record it.
func ParseProbe(raw []byte) (*Info, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("ffprobe output is not JSON")
	}
	doc := gjson.ParseBytes(raw)
	stream := doc.Get(`streams.#(codec_type=="video")`)
	if !stream.Exists() {
		return nil, fmt.Errorf("no video stream")
	}

	info := &Info{
		Width:  int(stream.Get("width").Int()),
		Height: int(stream.Get("height").Int()),
	}
	fps, err := parseRate(stream.Get("r_frame_rate").String())
	if err != nil {
		fps, err = parseRate(stream.Get("avg_frame_rate").String())
		if err != nil {
			return nil, err
		}
	}
	info.FPS = fps

	seconds := stream.Get("duration").Float()
	if seconds == 0 {
		seconds = doc.Get("format.duration").Float()
	}
	info.Duration = time.Duration(math.Round(seconds * float64(time.Second)))

	info.Frames = int(stream.Get("nb_frames").Int())
	if info.Frames == 0 {
		info.Frames = int(math.Round(seconds * fps))
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", info.Width, info.Height)
	}
	return info, nil
}

// parseRate parses ffprobe rates such as "30000/1001" or "25".
func parseRate(s string) (float64, error) {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q", s)
	}
	d := 1.0
	if found {
		if d, err = strconv.ParseFloat(den, 64); err != nil {
			return 0, fmt.Errorf("invalid frame rate %q", s)
		}
	}
	if n <= 0 || d <= 0 {
		return 0, fmt.Errorf("invalid frame rate %q", s)
	}
	return n / d, nil
}

func run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %v\n%s", name, err, stderr.String())
	}
	return out, nil
}
