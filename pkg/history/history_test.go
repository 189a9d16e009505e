package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatdiff/pkg/visualtest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, equal := range []bool{true, false, true} {
		_, err := s.Record(ctx, Entry{
			RecordedAt:       base.Add(time.Duration(i) * time.Minute),
			Baseline:         "home.png",
			Candidate:        "out/home.png",
			Equal:            equal,
			DifferingPixels:  i * 10,
			TotalPixels:      100,
			DeviationPercent: float64(i * 10),
			SpotCount:        i,
		})
		require.NoError(t, err)
	}

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 20, got[0].DifferingPixels)
	assert.True(t, got[0].Equal)
	assert.Equal(t, 10, got[1].DifferingPixels)
	assert.False(t, got[1].Equal)
	assert.True(t, got[0].RecordedAt.Equal(base.Add(2*time.Minute)))

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFailureRate(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	rate, n, err := s.FailureRate(ctx, "none.png")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, rate)

	for _, equal := range []bool{true, false, false, true} {
		_, err := s.Record(ctx, Entry{Baseline: "a.png", Candidate: "b.png", Equal: equal})
		require.NoError(t, err)
	}
	rate, n, err = s.FailureRate(ctx, "a.png")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.InDelta(t, 0.5, rate, 1e-9)
}

func TestFromResult(t *testing.T) {
	res := &visualtest.Result{
		Equal:            false,
		TotalPixels:      200,
		DifferingPixels:  3,
		DeviationPercent: 1.5,
		SpotCount:        1,
		HeatmapPath:      "heatmap.jpg",
	}
	e := FromResult("a.png", "b.png", res)
	assert.Equal(t, "a.png", e.Baseline)
	assert.Equal(t, "b.png", e.Candidate)
	assert.Equal(t, 3, e.DifferingPixels)
	assert.Equal(t, "heatmap.jpg", e.HeatmapPath)
	assert.False(t, e.RecordedAt.IsZero())

	s := openTemp(t)
	id, err := s.Record(context.Background(), e)
	require.NoError(t, err)
	assert.Positive(t, id)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Record(context.Background(), Entry{Baseline: "a", Candidate: "b"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
