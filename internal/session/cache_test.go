package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhands/ohc/internal/api"
)

func TestListingCacheEmpty(t *testing.T) {
	c := NewListingCache()

	assert.True(t, c.IsEmpty())
	assert.Equal(t, 0, c.Len())
	_, ok := c.ByPosition(1)
	assert.False(t, ok)
}

func TestListingCachePositions(t *testing.T) {
	c := cacheWith(idAlpha, idBeta, idGamma)

	conv, ok := c.ByPosition(1)
	require.True(t, ok)
	assert.Equal(t, idAlpha, conv.ID)

	conv, ok = c.ByPosition(3)
	require.True(t, ok)
	assert.Equal(t, idGamma, conv.ID)

	for _, pos := range []int{0, -1, 4} {
		_, ok := c.ByPosition(pos)
		assert.False(t, ok, "position %d", pos)
	}
}

func TestListingCacheReplace(t *testing.T) {
	c := cacheWith(idAlpha, idBeta)
	c.Replace(&api.ConversationPage{Results: summaries(idGamma), NextPageID: "tok"})

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "tok", c.NextPageID())
	_, ok := c.ByID(idAlpha)
	assert.False(t, ok)
	conv, ok := c.ByPosition(1)
	require.True(t, ok)
	assert.Equal(t, idGamma, conv.ID)
}

func TestListingCacheReplaceCopiesResults(t *testing.T) {
	page := &api.ConversationPage{Results: summaries(idAlpha)}
	c := NewListingCache()
	c.Replace(page)

	page.Results[0].ID = "mutated"
	conv, ok := c.ByPosition(1)
	require.True(t, ok)
	assert.Equal(t, idAlpha, conv.ID)
}

func TestListingCacheClear(t *testing.T) {
	c := cacheWith(idAlpha)
	c.Clear()

	assert.True(t, c.IsEmpty())
	assert.Equal(t, "", c.NextPageID())
}

func TestListingCachePrefixMatches(t *testing.T) {
	c := cacheWith(idAlpha, idBeta, idGamma)

	assert.Len(t, c.PrefixMatches("aaa"), 2)
	assert.Len(t, c.PrefixMatches("aaaa"), 1)
	assert.Empty(t, c.PrefixMatches("AAA"))
	assert.Empty(t, c.PrefixMatches("zz"))
}
