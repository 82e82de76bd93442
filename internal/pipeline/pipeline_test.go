package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingCache struct {
	invalidated []string
}

func (c *recordingCache) Invalidate(pattern string) {
	c.invalidated = append(c.invalidated, pattern)
}

func TestExecuteInvalidatesDeclaredFootprintOnSuccess(t *testing.T) {
	cache := &recordingCache{}
	p := New(cache, nil, nil)

	result, err := Execute(context.Background(), p, Operation[string]{
		Name:        "rule.create",
		Invalidates: []string{"forwardingRules", "stats"},
		Send: func(ctx context.Context) (string, error) {
			return "created", nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, "created", result)
	require.Equal(t, []string{"forwardingRules", "stats"}, cache.invalidated)
}

func TestExecuteTouchesNothingOnFailure(t *testing.T) {
	cache := &recordingCache{}
	p := New(cache, nil, nil)
	boom := errors.New("duplicate rule")

	_, err := Execute(context.Background(), p, Operation[string]{
		Name:        "rule.create",
		Invalidates: []string{"forwardingRules", "stats"},
		Send: func(ctx context.Context) (string, error) {
			return "", boom
		},
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, cache.invalidated, "a failed mutation performs no cache mutation")
}

func TestExecuteInvalidationFollowsCompletion(t *testing.T) {
	cache := &recordingCache{}
	p := New(cache, nil, nil)

	_, err := Execute(context.Background(), p, Operation[int]{
		Name:        "channel.create",
		Invalidates: []string{"channels"},
		Send: func(ctx context.Context) (int, error) {
			// The footprint must still be untouched while the write runs.
			require.Empty(t, cache.invalidated)
			return 7, nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"channels"}, cache.invalidated)
}
