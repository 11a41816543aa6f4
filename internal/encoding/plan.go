package encoding

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"hlsforge/internal/media/ladder"
	"hlsforge/internal/media/probe"
)

// Plan is the fully resolved recipe for one ladder encode: which renditions
// to produce, the GOP length that pins segment boundaries to keyframes, and
// where the output tree lands.
type Plan struct {
	Renditions       []ladder.Rendition
	KeyframeInterval int
	SegmentSeconds   int
	AudioBitrateKbps int
	AudioChannels    int
	HasAudio         bool
	SourcePath       string
	OutputDir        string
}

// NewPlan derives a plan from the probed profile of the normalized file.
func NewPlan(profile probe.Profile, sourcePath, outputDir string, segmentSeconds, audioBitrateKbps, audioChannels int) (Plan, error) {
	renditions := ladder.Eligible(profile.Width, profile.Height)
	if len(renditions) == 0 {
		return Plan{}, fmt.Errorf("no eligible renditions for %dx%d source", profile.Width, profile.Height)
	}
	if profile.FrameRate <= 0 {
		return Plan{}, errors.New("source frame rate unknown")
	}
	if segmentSeconds <= 0 {
		return Plan{}, fmt.Errorf("segment duration %d invalid", segmentSeconds)
	}
	return Plan{
		Renditions:       renditions,
		KeyframeInterval: ladder.KeyframeInterval(segmentSeconds, profile.FrameRate),
		SegmentSeconds:   segmentSeconds,
		AudioBitrateKbps: audioBitrateKbps,
		AudioChannels:    audioChannels,
		HasAudio:         profile.HasAudio,
		SourcePath:       sourcePath,
		OutputDir:        outputDir,
	}, nil
}

// SegmentDir is where the MPEG-TS segments for every rendition land.
func (p Plan) SegmentDir() string {
	return filepath.Join(p.OutputDir, "segments")
}

// MasterPlaylistPath is the path ffmpeg writes the master playlist to.
func (p Plan) MasterPlaylistPath() string {
	return filepath.Join(p.OutputDir, "master.m3u8")
}

// RenditionPlaylistPath returns the media playlist path for one rendition.
func (p Plan) RenditionPlaylistPath(name string) string {
	return filepath.Join(p.OutputDir, name+".m3u8")
}

// Arguments builds the single ffmpeg invocation that produces every
// rendition in one pass. The video is split once, each branch scaled and
// padded to its exact target, and the HLS muxer fans the variant streams out
// into per-rendition playlists plus the master.
func (p Plan) Arguments() []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-i", p.SourcePath,
		"-filter_complex", p.filterGraph(),
	}

	for i, r := range p.Renditions {
		args = append(args,
			"-map", fmt.Sprintf("[v%s]", r.Name),
		)
		if p.HasAudio {
			args = append(args, "-map", "0:a:0")
		}
		args = append(args,
			fmt.Sprintf("-c:v:%d", i), "libx264",
			fmt.Sprintf("-b:v:%d", i), fmt.Sprintf("%dk", r.BitrateKbps),
			fmt.Sprintf("-maxrate:v:%d", i), fmt.Sprintf("%dk", r.MaxRateKbps()),
			fmt.Sprintf("-bufsize:v:%d", i), fmt.Sprintf("%dk", r.BufSizeKbps()),
		)
		if p.HasAudio {
			args = append(args,
				fmt.Sprintf("-c:a:%d", i), "aac",
				fmt.Sprintf("-b:a:%d", i), fmt.Sprintf("%dk", p.AudioBitrateKbps),
				fmt.Sprintf("-ac:%d", i), fmt.Sprintf("%d", p.AudioChannels),
			)
		}
	}

	args = append(args,
		"-g", fmt.Sprintf("%d", p.KeyframeInterval),
		"-keyint_min", fmt.Sprintf("%d", p.KeyframeInterval),
		"-sc_threshold", "0",
		"-threads", "0",
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", p.SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(p.SegmentDir(), "%v_%03d.ts"),
		"-master_pl_name", "master.m3u8",
		"-var_stream_map", p.varStreamMap(),
		"-progress", "pipe:2",
		"-y",
		filepath.Join(p.OutputDir, "%v.m3u8"),
	)
	return args
}

func (p Plan) filterGraph() string {
	var split strings.Builder
	split.WriteString(fmt.Sprintf("[0:v]split=%d", len(p.Renditions)))
	for i := range p.Renditions {
		split.WriteString(fmt.Sprintf("[s%d]", i))
	}

	branches := make([]string, 0, len(p.Renditions))
	for i, r := range p.Renditions {
		branches = append(branches, fmt.Sprintf(
			"[s%d]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2[v%s]",
			i, r.Width, r.Height, r.Width, r.Height, r.Name))
	}
	return split.String() + "; " + strings.Join(branches, "; ")
}

func (p Plan) varStreamMap() string {
	entries := make([]string, 0, len(p.Renditions))
	for i, r := range p.Renditions {
		if p.HasAudio {
			entries = append(entries, fmt.Sprintf("v:%d,a:%d,name:%s", i, i, r.Name))
		} else {
			entries = append(entries, fmt.Sprintf("v:%d,name:%s", i, r.Name))
		}
	}
	return strings.Join(entries, " ")
}
