package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanCreateRule(t *testing.T) {
	cases := []struct {
		name               string
		subscriptionActive bool
		currentRuleCount   int
		want               bool
	}{
		{"free tier under limit", false, 2, true},
		{"free tier at limit", false, 3, false},
		{"free tier over limit", false, 7, false},
		{"premium ignores count", true, 50, true},
		{"premium at zero", true, 0, true},
		{"free tier at zero", false, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, CanCreateRule(tc.subscriptionActive, tc.currentRuleCount))
		})
	}
}

func TestCanUsePrivateChannel(t *testing.T) {
	require.False(t, CanUsePrivateChannel(false))
	require.True(t, CanUsePrivateChannel(true))
}
