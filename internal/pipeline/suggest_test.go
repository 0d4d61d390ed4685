package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarNames(t *testing.T) {
	names := []string{"Premier Healthcare Database", "Premier Healthcare Databases", "TriNetX", "Epic Cosmos"}
	got := SimilarNames(names, 0.72)
	require.Len(t, got, 1)
	assert.Equal(t, "Premier Healthcare Database", got[0].Name)
	assert.Equal(t, "Premier Healthcare Databases", got[0].Closest)
	assert.Greater(t, got[0].Score, 0.9)
}

func TestClosest(t *testing.T) {
	candidates := []string{"Optum Clinformatics Data Mart", "Epic Cosmos", "TriNetX"}
	s, ok := Closest("Optum Clinformatics", candidates, 0.5)
	require.True(t, ok)
	assert.Equal(t, "Optum Clinformatics Data Mart", s.Closest)

	_, ok = Closest("Completely Different", candidates, 0.72)
	assert.False(t, ok)
}
