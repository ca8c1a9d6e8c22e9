package analysis

import (
	"testing"

	"github.com/desertthunder/tunedeck/internal/models"
	"github.com/desertthunder/tunedeck/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		st := Describe(nil, 4)
		assert.Equal(t, 0, st.Count)
		assert.Empty(t, st.Histogram)
	})

	t.Run("odd count", func(t *testing.T) {
		st := Describe([]float64{5, 1, 3}, 2)
		assert.Equal(t, 3, st.Count)
		assert.InDelta(t, 3.0, st.Mean, 1e-9)
		assert.InDelta(t, 3.0, st.Median, 1e-9)
		assert.Equal(t, 1.0, st.Min)
		assert.Equal(t, 5.0, st.Max)
		assert.InDelta(t, 1.632993, st.StdDev, 1e-6)
	})

	t.Run("even count uses middle average", func(t *testing.T) {
		st := Describe([]float64{4, 1, 2, 3}, 2)
		assert.InDelta(t, 2.5, st.Median, 1e-9)
	})

	t.Run("does not reorder input", func(t *testing.T) {
		in := []float64{3, 1, 2}
		Describe(in, 2)
		assert.Equal(t, []float64{3, 1, 2}, in)
	})

	t.Run("histogram covers every value", func(t *testing.T) {
		st := Describe([]float64{0, 0.1, 0.5, 0.9, 1.0}, 2)
		require.Len(t, st.Histogram, 2)
		assert.Equal(t, 2, st.Histogram[0].Count)
		assert.Equal(t, 3, st.Histogram[1].Count)
		assert.Equal(t, 0.0, st.Histogram[0].Low)
		assert.Equal(t, 1.0, st.Histogram[1].High)
	})

	t.Run("constant values collapse to one bucket", func(t *testing.T) {
		st := Describe([]float64{0.4, 0.4, 0.4}, 5)
		require.Len(t, st.Histogram, 1)
		assert.Equal(t, 3, st.Histogram[0].Count)
		assert.Equal(t, 0.0, st.StdDev)
	})
}

func TestSummarize(t *testing.T) {
	t.Run("nil analysis", func(t *testing.T) {
		_, err := Summarize(nil, 0)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("playlist summary", func(t *testing.T) {
		a := &models.PlaylistAnalysis{
			PlaylistID: "P1",
			Features: []models.AudioFeatures{
				{TrackID: "T1", Danceability: 0.2, Energy: 0.9, Tempo: 120, Loudness: -5, Key: 0, Mode: 1, DurationMS: 180000},
				{TrackID: "T2", Danceability: 0.6, Energy: 0.5, Tempo: 100, Loudness: -7, Key: 0, Mode: 0, DurationMS: 200000},
				{TrackID: "T3", Danceability: 1.0, Energy: 0.1, Tempo: 140, Loudness: -9, Key: -1, Mode: 1, DurationMS: 220000},
			},
		}

		s, err := Summarize(a, 0)
		require.NoError(t, err)
		assert.Equal(t, "P1", s.PlaylistID)
		assert.Equal(t, 3, s.Tracks)
		assert.Equal(t, 600000, s.TotalDurationMS)
		assert.InDelta(t, 2.0/3.0, s.MajorRatio, 1e-9)
		assert.Equal(t, map[string]int{"C": 2, "unknown": 1}, s.Keys)
		assert.Len(t, s.Features, len(Features))

		dance, ok := s.Feature(Danceability)
		require.True(t, ok)
		assert.InDelta(t, 0.6, dance.Mean, 1e-9)
		assert.Len(t, dance.Histogram, DefaultBuckets)

		tempo, ok := s.Feature(Tempo)
		require.True(t, ok)
		assert.Equal(t, 100.0, tempo.Min)
		assert.Equal(t, 140.0, tempo.Max)
		assert.InDelta(t, 120.0, tempo.Median, 1e-9)
	})

	t.Run("no tracks", func(t *testing.T) {
		s, err := Summarize(&models.PlaylistAnalysis{PlaylistID: "P1"}, 3)
		require.NoError(t, err)
		assert.Equal(t, 0, s.Tracks)
		assert.Equal(t, 0.0, s.MajorRatio)
		for _, st := range s.Features {
			assert.Equal(t, 0, st.Count)
		}
	})
}

func TestParseFeature(t *testing.T) {
	f, err := ParseFeature("energy")
	require.NoError(t, err)
	assert.Equal(t, Energy, f)

	_, err = ParseFeature("bpm")
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestKeyName(t *testing.T) {
	assert.Equal(t, "C", KeyName(0))
	assert.Equal(t, "B", KeyName(11))
	assert.Equal(t, "unknown", KeyName(-1))
	assert.Equal(t, "unknown", KeyName(12))
}
