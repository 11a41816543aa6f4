package ffmpeg

import (
	"strconv"
	"strings"
)

// ProgressUpdate captures a parsed ffmpeg progress line.
type ProgressUpdate struct {
	FrameCount     int64
	OutTimeSeconds float64
	Speed          float64
	Raw            string
}

// ParseProgress interprets the key=value lines emitted when ffmpeg runs with
// "-progress pipe:2". It reports true only for keys the pipeline tracks.
func ParseProgress(line string) (ProgressUpdate, bool) {
	line = strings.TrimSpace(line)
	key, value, found := strings.Cut(line, "=")
	if !found {
		return ProgressUpdate{}, false
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	update := ProgressUpdate{Raw: line}
	switch key {
	case "frame":
		frames, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return ProgressUpdate{}, false
		}
		update.FrameCount = frames
	case "out_time_us", "out_time_ms":
		// ffmpeg historically labelled microseconds as out_time_ms.
		micros, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return ProgressUpdate{}, false
		}
		update.OutTimeSeconds = float64(micros) / 1e6
	case "speed":
		speed, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64)
		if err != nil {
			return ProgressUpdate{}, false
		}
		update.Speed = speed
	default:
		return ProgressUpdate{}, false
	}
	return update, true
}
