package dashboard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelOrdering(t *testing.T) {
	require.True(t, LevelNone < LevelRead)
	require.True(t, LevelRead < LevelWrite)
	require.True(t, LevelWrite < LevelAdmin)

	require.True(t, LevelAdmin.Satisfies(LevelRead))
	require.True(t, LevelWrite.Satisfies(LevelWrite))
	require.False(t, LevelRead.Satisfies(LevelWrite))
	require.False(t, LevelNone.Satisfies(LevelRead))
}

func TestLevelStringRoundTrip(t *testing.T) {
	for _, level := range []Level{LevelNone, LevelRead, LevelWrite, LevelAdmin} {
		parsed, err := ParseLevel(level.String())
		require.NoError(t, err)
		require.Equal(t, level, parsed)
	}

	_, err := ParseLevel("owner")
	require.Error(t, err)
}

func TestLevelValid(t *testing.T) {
	require.True(t, LevelWrite.Valid())
	require.False(t, Level(15).Valid())
}

func TestMaxLevel(t *testing.T) {
	require.Equal(t, LevelWrite, MaxLevel(LevelRead, LevelWrite))
	require.Equal(t, LevelWrite, MaxLevel(LevelWrite, LevelRead))
	require.Equal(t, LevelNone, MaxLevel(LevelNone, LevelNone))
}
