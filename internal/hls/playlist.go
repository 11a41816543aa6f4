// Package hls parses the subset of M3U8 playlists the pipeline produces:
// master playlists referencing variant streams and media playlists listing
// MPEG-TS segments.
package hls

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Variant is one stream reference inside a master playlist.
type Variant struct {
	URI        string
	Bandwidth  int64
	Resolution string
	Codecs     string
}

// MasterPlaylist is a parsed master.m3u8.
type MasterPlaylist struct {
	Variants []Variant
}

// Segment is one media segment entry with its EXTINF duration.
type Segment struct {
	URI             string
	DurationSeconds float64
}

// MediaPlaylist is a parsed variant playlist.
type MediaPlaylist struct {
	TargetDuration int
	PlaylistType   string
	Segments       []Segment
	Ended          bool
}

// TotalDuration sums the EXTINF durations of every segment.
func (p MediaPlaylist) TotalDuration() float64 {
	var total float64
	for _, seg := range p.Segments {
		total += seg.DurationSeconds
	}
	return total
}

// ParseMaster reads a master playlist. Every EXT-X-STREAM-INF tag must be
// followed by a variant URI line.
func ParseMaster(r io.Reader) (MasterPlaylist, error) {
	scanner := bufio.NewScanner(r)
	var playlist MasterPlaylist
	var pending *Variant
	first := true

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			if line != "#EXTM3U" {
				return MasterPlaylist{}, errors.New("missing #EXTM3U header")
			}
			first = false
			continue
		}
		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			variant, err := parseStreamInf(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
			if err != nil {
				return MasterPlaylist{}, err
			}
			pending = &variant
		case strings.HasPrefix(line, "#"):
			// Other tags carry no state the verifier needs.
		default:
			if pending == nil {
				return MasterPlaylist{}, fmt.Errorf("variant URI %q without EXT-X-STREAM-INF", line)
			}
			pending.URI = line
			playlist.Variants = append(playlist.Variants, *pending)
			pending = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return MasterPlaylist{}, err
	}
	if first {
		return MasterPlaylist{}, errors.New("empty playlist")
	}
	if pending != nil {
		return MasterPlaylist{}, errors.New("EXT-X-STREAM-INF without variant URI")
	}
	return playlist, nil
}

// ParseMedia reads a variant playlist, collecting segment URIs and their
// EXTINF durations.
func ParseMedia(r io.Reader) (MediaPlaylist, error) {
	scanner := bufio.NewScanner(r)
	var playlist MediaPlaylist
	var pendingDuration float64
	var havePending bool
	first := true

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			if line != "#EXTM3U" {
				return MediaPlaylist{}, errors.New("missing #EXTM3U header")
			}
			first = false
			continue
		}
		switch {
		case strings.HasPrefix(line, "#EXTINF:"):
			payload := strings.TrimPrefix(line, "#EXTINF:")
			durationText, _, _ := strings.Cut(payload, ",")
			duration, err := strconv.ParseFloat(strings.TrimSpace(durationText), 64)
			if err != nil {
				return MediaPlaylist{}, fmt.Errorf("malformed EXTINF %q: %w", line, err)
			}
			pendingDuration = duration
			havePending = true
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			target, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"))
			if err != nil {
				return MediaPlaylist{}, fmt.Errorf("malformed EXT-X-TARGETDURATION: %w", err)
			}
			playlist.TargetDuration = target
		case strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:"):
			playlist.PlaylistType = strings.TrimPrefix(line, "#EXT-X-PLAYLIST-TYPE:")
		case line == "#EXT-X-ENDLIST":
			playlist.Ended = true
		case strings.HasPrefix(line, "#"):
			// Ignore remaining tags.
		default:
			if !havePending {
				return MediaPlaylist{}, fmt.Errorf("segment URI %q without EXTINF", line)
			}
			playlist.Segments = append(playlist.Segments, Segment{URI: line, DurationSeconds: pendingDuration})
			havePending = false
		}
	}
	if err := scanner.Err(); err != nil {
		return MediaPlaylist{}, err
	}
	if first {
		return MediaPlaylist{}, errors.New("empty playlist")
	}
	return playlist, nil
}

// ParseMasterFile parses a master playlist from disk.
func ParseMasterFile(path string) (MasterPlaylist, error) {
	file, err := os.Open(path)
	if err != nil {
		return MasterPlaylist{}, err
	}
	defer file.Close()
	playlist, err := ParseMaster(file)
	if err != nil {
		return MasterPlaylist{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return playlist, nil
}

// ParseMediaFile parses a variant playlist from disk.
func ParseMediaFile(path string) (MediaPlaylist, error) {
	file, err := os.Open(path)
	if err != nil {
		return MediaPlaylist{}, err
	}
	defer file.Close()
	playlist, err := ParseMedia(file)
	if err != nil {
		return MediaPlaylist{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return playlist, nil
}

func parseStreamInf(attrs string) (Variant, error) {
	var variant Variant
	for _, attr := range splitAttributes(attrs) {
		key, value, found := strings.Cut(attr, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch key {
		case "BANDWIDTH":
			bandwidth, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Variant{}, fmt.Errorf("malformed BANDWIDTH %q: %w", value, err)
			}
			variant.Bandwidth = bandwidth
		case "RESOLUTION":
			variant.Resolution = value
		case "CODECS":
			variant.Codecs = value
		}
	}
	if variant.Bandwidth <= 0 {
		return Variant{}, errors.New("EXT-X-STREAM-INF missing BANDWIDTH")
	}
	return variant, nil
}

// splitAttributes splits an attribute list on commas, respecting quoted
// values such as CODECS="avc1.64001f,mp4a.40.2".
func splitAttributes(input string) []string {
	var parts []string
	var builder strings.Builder
	inQuotes := false
	for _, r := range input {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			builder.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, builder.String())
			builder.Reset()
		default:
			builder.WriteRune(r)
		}
	}
	if builder.Len() > 0 {
		parts = append(parts, builder.String())
	}
	return parts
}
