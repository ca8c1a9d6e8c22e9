// Package analysis summarizes the audio features of a playlist.
package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/desertthunder/tunedeck/internal/models"
	"github.com/desertthunder/tunedeck/internal/shared"
)

// DefaultBuckets is the histogram resolution used when none is given.
const DefaultBuckets = 5

// Feature names one numeric audio feature.
type Feature string

const (
	Danceability     Feature = "danceability"
	Energy           Feature = "energy"
	Valence          Feature = "valence"
	Acousticness     Feature = "acousticness"
	Instrumentalness Feature = "instrumentalness"
	Liveness         Feature = "liveness"
	Speechiness      Feature = "speechiness"
	Tempo            Feature = "tempo"
	Loudness         Feature = "loudness"
)

// Features lists every summarized feature in display order.
var Features = []Feature{
	Danceability, Energy, Valence, Acousticness, Instrumentalness,
	Liveness, Speechiness, Tempo, Loudness,
}

var pitchClasses = [12]string{"C", "C♯/D♭", "D", "D♯/E♭", "E", "F", "F♯/G♭", "G", "G♯/A♭", "A", "A♯/B♭", "B"}

// ParseFeature validates a feature name.
func ParseFeature(s string) (Feature, error) {
	for _, f := range Features {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: unknown feature %q", shared.ErrInvalidArgument, s)
}

// Value extracts f from a track's features.
func (f Feature) Value(af models.AudioFeatures) float64 {
	switch f {
	case Danceability:
		return af.Danceability
	case Energy:
		return af.Energy
	case Valence:
		return af.Valence
	case Acousticness:
		return af.Acousticness
	case Instrumentalness:
		return af.Instrumentalness
	case Liveness:
		return af.Liveness
	case Speechiness:
		return af.Speechiness
	case Tempo:
		return af.Tempo
	case Loudness:
		return af.Loudness
	default:
		return 0
	}
}

// Bucket is one histogram bin covering [Low, High).
// The last bucket also includes High.
type Bucket struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

// Stats describes the distribution of one feature.
type Stats struct {
	Feature   Feature  `json:"feature"`
	Count     int      `json:"count"`
	Mean      float64  `json:"mean"`
	Min       float64  `json:"min"`
	Max       float64  `json:"max"`
	StdDev    float64  `json:"std_dev"`
	Median    float64  `json:"median"`
	Histogram []Bucket `json:"histogram"`
}

// Summary is the statistics for a whole playlist.
type Summary struct {
	PlaylistID      string         `json:"playlist_id"`
	Tracks          int            `json:"tracks"`
	TotalDurationMS int            `json:"total_duration_ms"`
	MajorRatio      float64        `json:"major_ratio"`
	Keys            map[string]int `json:"keys"`
	Features        []Stats        `json:"features"`
}

// Feature returns the stats for f.
func (s *Summary) Feature(f Feature) (Stats, bool) {
	for _, st := range s.Features {
		if st.Feature == f {
			return st, true
		}
	}
	return Stats{}, false
}

// KeyName maps a pitch class (0-11) to its name. -1 means no key was detected.
func KeyName(key int) string {
	if key < 0 || key >= len(pitchClasses) {
		return "unknown"
	}
	return pitchClasses[key]
}

// Summarize computes per-feature statistics for a playlist analysis.
// buckets <= 0 uses [DefaultBuckets].
func Summarize(a *models.PlaylistAnalysis, buckets int) (*Summary, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil analysis", shared.ErrInvalidInput)
	}
	if buckets <= 0 {
		buckets = DefaultBuckets
	}

	s := &Summary{
		PlaylistID: a.PlaylistID,
		Tracks:     len(a.Features),
		Keys:       make(map[string]int),
		Features:   make([]Stats, 0, len(Features)),
	}

	major := 0
	for _, af := range a.Features {
		s.TotalDurationMS += af.DurationMS
		s.Keys[KeyName(af.Key)]++
		if af.Mode == 1 {
			major++
		}
	}
	if s.Tracks > 0 {
		s.MajorRatio = float64(major) / float64(s.Tracks)
	}

	values := make([]float64, len(a.Features))
	for _, f := range Features {
		for i, af := range a.Features {
			values[i] = f.Value(af)
		}
		st := Describe(values, buckets)
		st.Feature = f
		s.Features = append(s.Features, st)
	}
	return s, nil
}

// Describe computes distribution statistics for values. The input is not modified.
func Describe(values []float64, buckets int) Stats {
	st := Stats{Count: len(values)}
	if len(values) == 0 {
		return st
	}
	if buckets <= 0 {
		buckets = DefaultBuckets
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	st.Min = sorted[0]
	st.Max = sorted[len(sorted)-1]

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	st.Mean = sum / float64(len(sorted))

	variance := 0.0
	for _, v := range sorted {
		d := v - st.Mean
		variance += d * d
	}
	st.StdDev = math.Sqrt(variance / float64(len(sorted)))

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		st.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		st.Median = sorted[mid]
	}

	st.Histogram = histogram(sorted, st.Min, st.Max, buckets)
	return st
}

func histogram(values []float64, lo, hi float64, n int) []Bucket {
	if hi == lo {
		return []Bucket{{Low: lo, High: hi, Count: len(values)}}
	}

	width := (hi - lo) / float64(n)
	out := make([]Bucket, n)
	for i := range out {
		out[i].Low = lo + float64(i)*width
		out[i].High = lo + float64(i+1)*width
	}
	out[n-1].High = hi

	for _, v := range values {
		i := int((v - lo) / width)
		if i >= n {
			i = n - 1
		}
		out[i].Count++
	}
	return out
}
