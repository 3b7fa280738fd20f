package audioprobe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	durations map[string]float64
	err       error
}

func (f *fakeProber) Duration(_ context.Context, path string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.durations[path], nil
}

func TestDurationsForPaths(t *testing.T) {
	prober := &fakeProber{durations: map[string]float64{"a.wav": 1.0, "b.wav": 1.2}}

	durations, err := DurationsForPaths(context.Background(), prober, []string{"a.wav", "b.wav"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1.0, 1.2}, durations)
}

func TestDurationsForPaths_PropagatesError(t *testing.T) {
	prober := &fakeProber{err: assert.AnError}

	_, err := DurationsForPaths(context.Background(), prober, []string{"a.wav"})
	require.Error(t, err)
}
