package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "certmanager", NormalizeName("  Cert \tManager\n"))
	require.True(t, MatchName("Red Panda Operator", []string{"redpanda"}))
	require.False(t, MatchName("flux", []string{"kserve"}))
}

func TestClosest(t *testing.T) {
	candidates := []string{"flux", "kserve", "redpanda"}

	match, ok := Closest("redpnda", candidates)
	require.True(t, ok)
	require.Equal(t, "redpanda", match)

	match, ok = Closest("Flux", candidates)
	require.True(t, ok)
	require.Equal(t, "flux", match)

	_, ok = Closest("zzzzzz", candidates)
	require.False(t, ok)

	_, ok = Closest("flux", nil)
	require.False(t, ok)
}
