package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhands/ohc/internal/api"
)

func summaries(ids ...string) []api.ConversationSummary {
	out := make([]api.ConversationSummary, len(ids))
	for i, id := range ids {
		out[i] = api.ConversationSummary{ID: id, Title: "conv " + id[:4], Status: "STOPPED"}
	}
	return out
}

func cacheWith(ids ...string) *ListingCache {
	c := NewListingCache()
	c.Replace(&api.ConversationPage{Results: summaries(ids...)})
	return c
}

type fakeSearcher struct {
	results []api.ConversationSummary
	err     error
	calls   int
	lastArg string
}

func (f *fakeSearcher) SearchByPrefix(_ context.Context, prefix string) ([]api.ConversationSummary, error) {
	f.calls++
	f.lastArg = prefix
	return f.results, f.err
}

const (
	idAlpha = "aaaa1111-0000-0000-0000-000000000001"
	idBeta  = "aaab2222-0000-0000-0000-000000000002"
	idGamma = "bbbb3333-0000-0000-0000-000000000003"
	idDigit = "12345678-0000-0000-0000-000000000004"
)

func TestResolveEmptyToken(t *testing.T) {
	r := NewResolver(cacheWith(idAlpha), nil)

	for _, token := range []string{"", "   ", "\t"} {
		_, err := r.Resolve(context.Background(), token)
		var emptyErr *EmptyTokenError
		require.ErrorAs(t, err, &emptyErr, "token %q", token)
	}
}

func TestResolvePositionNumber(t *testing.T) {
	r := NewResolver(cacheWith(idAlpha, idBeta, idGamma), nil)

	ref, err := r.Resolve(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, idBeta, ref.ID)
	assert.Equal(t, MethodPosition, ref.Method)

	// Leading zeros are still a position number.
	ref, err = r.Resolve(context.Background(), "03")
	require.NoError(t, err)
	assert.Equal(t, idGamma, ref.ID)
}

func TestResolvePositionOutOfRange(t *testing.T) {
	r := NewResolver(cacheWith(idAlpha, idBeta, idGamma), nil)

	tests := []string{"0", "4", "100", "99999999999999999999"}
	for _, token := range tests {
		_, err := r.Resolve(context.Background(), token)
		var rangeErr *PositionOutOfRangeError
		require.ErrorAs(t, err, &rangeErr, "token %q", token)
		assert.Equal(t, 1, rangeErr.Min)
		assert.Equal(t, 3, rangeErr.Max)
		assert.Contains(t, err.Error(), "(1-3)")
	}
}

func TestResolvePositionWithoutListing(t *testing.T) {
	r := NewResolver(NewListingCache(), &fakeSearcher{})

	_, err := r.Resolve(context.Background(), "1")
	var noListing *NoActiveListingError
	require.ErrorAs(t, err, &noListing)
}

func TestResolveDigitPrecedence(t *testing.T) {
	// "1" is both a valid position and a unique prefix of idDigit.
	// Position must win.
	r := NewResolver(cacheWith(idAlpha, idDigit), nil)

	ref, err := r.Resolve(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, idAlpha, ref.ID)
	assert.Equal(t, MethodPosition, ref.Method)

	// Even when the position is invalid, a digit token never falls back
	// to prefix matching.
	_, err = r.Resolve(context.Background(), "12345678")
	var rangeErr *PositionOutOfRangeError
	require.ErrorAs(t, err, &rangeErr)
}

func TestResolveFullID(t *testing.T) {
	// Full-length identifiers pass through without touching the cache.
	r := NewResolver(NewListingCache(), nil)

	ref, err := r.Resolve(context.Background(), idGamma)
	require.NoError(t, err)
	assert.Equal(t, idGamma, ref.ID)
	assert.Equal(t, MethodExact, ref.Method)
}

func TestResolveUniquePrefix(t *testing.T) {
	r := NewResolver(cacheWith(idAlpha, idBeta, idGamma), nil)

	ref, err := r.Resolve(context.Background(), "bbbb")
	require.NoError(t, err)
	assert.Equal(t, idGamma, ref.ID)
	assert.Equal(t, MethodPrefix, ref.Method)
}

func TestResolvePrefixCaseSensitive(t *testing.T) {
	searcher := &fakeSearcher{}
	r := NewResolver(cacheWith(idGamma), searcher)

	_, err := r.Resolve(context.Background(), "BBBB")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestResolveAmbiguousPrefix(t *testing.T) {
	// Insert in non-sorted order to check candidate sorting.
	r := NewResolver(cacheWith(idBeta, idAlpha, idGamma), nil)

	_, err := r.Resolve(context.Background(), "aaa")
	var ambiguous *AmbiguousError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, "aaa", ambiguous.Token)
	require.Len(t, ambiguous.Candidates, 2)
	assert.Equal(t, idAlpha, ambiguous.Candidates[0].ID)
	assert.Equal(t, idBeta, ambiguous.Candidates[1].ID)
	assert.True(t, strings.Contains(err.Error(), idAlpha))
}

func TestResolveServerFallback(t *testing.T) {
	searcher := &fakeSearcher{results: summaries(idGamma)}
	r := NewResolver(cacheWith(idAlpha), searcher)

	ref, err := r.Resolve(context.Background(), "bbbb")
	require.NoError(t, err)
	assert.Equal(t, idGamma, ref.ID)
	assert.Equal(t, MethodPrefix, ref.Method)
	assert.Equal(t, 1, searcher.calls)
	assert.Equal(t, "bbbb", searcher.lastArg)
}

func TestResolveServerFallbackNotUsedOnCacheHit(t *testing.T) {
	searcher := &fakeSearcher{results: summaries(idGamma)}
	r := NewResolver(cacheWith(idAlpha, idGamma), searcher)

	_, err := r.Resolve(context.Background(), "aaaa")
	require.NoError(t, err)
	assert.Equal(t, 0, searcher.calls)
}

func TestResolveServerFallbackAmbiguous(t *testing.T) {
	searcher := &fakeSearcher{results: summaries(idBeta, idAlpha)}
	r := NewResolver(NewListingCache(), searcher)

	_, err := r.Resolve(context.Background(), "aaa")
	var ambiguous *AmbiguousError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, idAlpha, ambiguous.Candidates[0].ID)
}

func TestResolveServerFallbackError(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("boom")}
	r := NewResolver(NewListingCache(), searcher)

	_, err := r.Resolve(context.Background(), "aaaa")
	require.Error(t, err)
	assert.EqualError(t, err, "boom")
}

func TestResolveNotFoundWithoutSearcher(t *testing.T) {
	r := NewResolver(cacheWith(idAlpha), nil)

	_, err := r.Resolve(context.Background(), "zzzz")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "zzzz", notFound.Token)
}
