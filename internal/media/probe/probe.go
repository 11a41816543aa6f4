package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
	raw     []byte
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Profile is the read-only snapshot of probed attributes the pipeline
// consumes: dimensions and frame rate of the first video stream plus
// container duration.
type Profile struct {
	Width           int
	Height          int
	FrameRate       float64
	DurationSeconds float64
	HasVideo        bool
	HasAudio        bool
	VideoCodec      string
	BitRate         int64
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(output)))
	}

	return Parse(output)
}

// Parse decodes raw ffprobe JSON output.
func Parse(output []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	result.raw = append([]byte(nil), output...)
	return result, nil
}

// RawJSON returns the raw ffprobe JSON payload.
func (r Result) RawJSON() []byte {
	return append([]byte(nil), r.raw...)
}

// FirstVideoStream returns the first video stream, if any.
func (r Result) FirstVideoStream() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	duration := parseFloat(r.Format.Duration)
	if math.IsNaN(duration) || duration < 0 {
		return 0
	}
	return duration
}

// BitRate returns the container bitrate in bits per second, or 0 when unavailable.
func (r Result) BitRate() int64 {
	rate := parseFloat(r.Format.BitRate)
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	return int64(rate)
}

// Profile derives the pipeline snapshot from an inspection result. It fails
// when no video stream is present or the reported dimensions are not positive
// numbers, since later stages cannot size the ladder without them.
func (r Result) Profile() (Profile, error) {
	video, ok := r.FirstVideoStream()
	if !ok {
		return Profile{}, errors.New("no video stream present")
	}
	if video.Width <= 0 || video.Height <= 0 {
		return Profile{}, fmt.Errorf("malformed video dimensions %dx%d", video.Width, video.Height)
	}

	duration := r.DurationSeconds()
	if duration == 0 {
		if streamDuration := parseFloat(video.Duration); !math.IsNaN(streamDuration) && streamDuration > 0 {
			duration = streamDuration
		}
	}

	return Profile{
		Width:           video.Width,
		Height:          video.Height,
		FrameRate:       ParseFrameRate(video.RFrameRate),
		DurationSeconds: duration,
		HasVideo:        true,
		HasAudio:        r.AudioStreamCount() > 0,
		VideoCodec:      video.CodecName,
		BitRate:         r.BitRate(),
	}, nil
}

// ParseFrameRate converts an ffprobe rational frame rate ("30000/1001") into
// frames per second. Malformed or zero-denominator values yield 0.
func ParseFrameRate(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	num, den, found := strings.Cut(cleaned, "/")
	if !found {
		if fps, err := strconv.ParseFloat(cleaned, 64); err == nil && fps > 0 {
			return fps
		}
		return 0
	}
	numerator, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0
	}
	denominator, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
	if err != nil || denominator == 0 {
		return 0
	}
	fps := numerator / denominator
	if fps < 0 {
		return 0
	}
	return fps
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
