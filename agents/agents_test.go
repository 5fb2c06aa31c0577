package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListIsACopy(t *testing.T) {
	list := List()
	require.NotEmpty(t, list)
	assert.Equal(t, Auto, list[0].Value, "auto leads the catalog")

	list[0].Name = "mutated"
	assert.Equal(t, "Auto", List()[0].Name)
}

func TestLookup(t *testing.T) {
	agent, ok := Lookup("graph_agent")
	require.True(t, ok)
	assert.Equal(t, "Graph Agent", agent.Name)

	_, ok = Lookup("nonexistent")
	assert.False(t, ok)
}

func TestDisplayNameFallsBackToValue(t *testing.T) {
	assert.Equal(t, "Hybrid Agent", DisplayName("hybrid_agent"))
	assert.Equal(t, "mystery_agent", DisplayName("mystery_agent"))
}
