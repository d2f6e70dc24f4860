// Package session holds the per-invocation listing state: the cached
// listing page, the pagination driver over it, and conversation reference
// resolution (full id, unique prefix, or position number).
package session

import (
	"strings"

	"github.com/openhands/ohc/internal/api"
)

// ListingCache holds the single most recently displayed listing page.
// Position numbers are 1-based and follow display order. The cache is
// owned by one session and replaced wholesale on every successful page
// operation; it is never partially updated and needs no locking.
type ListingCache struct {
	conversations []api.ConversationSummary
	nextPageID    string
}

// NewListingCache returns an empty cache.
func NewListingCache() *ListingCache {
	return &ListingCache{}
}

// Replace swaps in a new page, discarding everything previously held.
func (c *ListingCache) Replace(page *api.ConversationPage) {
	c.conversations = make([]api.ConversationSummary, len(page.Results))
	copy(c.conversations, page.Results)
	c.nextPageID = page.NextPageID
}

// Clear empties the cache.
func (c *ListingCache) Clear() {
	c.conversations = nil
	c.nextPageID = ""
}

// Len returns the number of cached conversations.
func (c *ListingCache) Len() int {
	return len(c.conversations)
}

// IsEmpty reports whether no listing has been loaded.
func (c *ListingCache) IsEmpty() bool {
	return len(c.conversations) == 0
}

// NextPageID returns the continuation token of the cached page
// ("" when there is no following page).
func (c *ListingCache) NextPageID() string {
	return c.nextPageID
}

// Conversations returns the cached page in display order. The slice is
// shared; callers must not mutate it.
func (c *ListingCache) Conversations() []api.ConversationSummary {
	return c.conversations
}

// ByPosition returns the conversation at the 1-based position.
func (c *ListingCache) ByPosition(pos int) (*api.ConversationSummary, bool) {
	if pos < 1 || pos > len(c.conversations) {
		return nil, false
	}
	return &c.conversations[pos-1], true
}

// ByID returns the cached conversation with the exact identifier.
func (c *ListingCache) ByID(id string) (*api.ConversationSummary, bool) {
	for i := range c.conversations {
		if c.conversations[i].ID == id {
			return &c.conversations[i], true
		}
	}
	return nil, false
}

// PrefixMatches returns the cached conversations whose identifier starts
// with prefix. Matching is case-sensitive.
func (c *ListingCache) PrefixMatches(prefix string) []api.ConversationSummary {
	var matches []api.ConversationSummary
	for _, conv := range c.conversations {
		if strings.HasPrefix(conv.ID, prefix) {
			matches = append(matches, conv)
		}
	}
	return matches
}
