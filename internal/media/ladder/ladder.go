// Package ladder defines the fixed resolution/bitrate catalog every stream is
// encoded against and the eligibility rule that trims it per source.
package ladder

import "fmt"

// Rendition is one entry in the encoding ladder.
type Rendition struct {
	Name        string
	Width       int
	Height      int
	BitrateKbps int
}

// The catalog is immutable. Sources at or above 1080p still top out at 720p.
var catalog = []Rendition{
	{Name: "240p", Width: 426, Height: 240, BitrateKbps: 400},
	{Name: "360p", Width: 640, Height: 360, BitrateKbps: 800},
	{Name: "480p", Width: 854, Height: 480, BitrateKbps: 1400},
	{Name: "720p", Width: 1280, Height: 720, BitrateKbps: 2800},
}

// Catalog returns the full ladder ordered lowest to highest.
func Catalog() []Rendition {
	cp := make([]Rendition, len(catalog))
	copy(cp, catalog)
	return cp
}

// Lowest returns the smallest rendition in the catalog.
func Lowest() Rendition {
	return catalog[0]
}

// Eligible returns the renditions the source resolution can feed, ordered
// lowest to highest. A rendition qualifies only when the source meets or
// exceeds its target in both dimensions; upscaling is never performed.
func Eligible(sourceWidth, sourceHeight int) []Rendition {
	var out []Rendition
	for _, r := range catalog {
		if sourceWidth >= r.Width && sourceHeight >= r.Height {
			out = append(out, r)
		}
	}
	return out
}

// MaxRateKbps is the encoder VBV ceiling for the rendition.
func (r Rendition) MaxRateKbps() int {
	return r.BitrateKbps * 3 / 2
}

// BufSizeKbps is the encoder VBV buffer size for the rendition.
func (r Rendition) BufSizeKbps() int {
	return r.BitrateKbps * 2
}

// Resolution renders the target as "WxH" for encoder arguments.
func (r Rendition) Resolution() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// KeyframeInterval computes the closed GOP length in frames so that segment
// boundaries land on keyframes: 2 × segment duration × frame rate, rounded to
// the nearest whole frame.
func KeyframeInterval(segmentSeconds int, frameRate float64) int {
	if segmentSeconds <= 0 || frameRate <= 0 {
		return 0
	}
	interval := 2 * float64(segmentSeconds) * frameRate
	return int(interval + 0.5)
}

// Names returns the rendition names in order, for playlists and logs.
func Names(renditions []Rendition) []string {
	out := make([]string, len(renditions))
	for i, r := range renditions {
		out[i] = r.Name
	}
	return out
}

// ByName looks up a catalog rendition.
func ByName(name string) (Rendition, bool) {
	for _, r := range catalog {
		if r.Name == name {
			return r, true
		}
	}
	return Rendition{}, false
}
