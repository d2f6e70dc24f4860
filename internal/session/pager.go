package session

import (
	"context"
	"errors"

	"github.com/openhands/ohc/internal/api"
)

// Terminal navigation signals. They mean "already at the boundary", not
// failure: the pager and cache are untouched when they are returned.
var (
	ErrNoMoreFollowing = errors.New("no more pages")
	ErrStartOfListing  = errors.New("already at the first page")
	ErrNoCurrentPage   = errors.New("no page loaded yet")
)

// ConversationLister is the slice of the API the pager needs.
type ConversationLister interface {
	List(ctx context.Context, params api.ListConversationsParams) (*api.ConversationPage, error)
}

// Pager drives forward/backward navigation through the conversation
// listing. Backward navigation replays previously seen page tokens from a
// stack (the service's tokens are forward-only). The page limit is fixed
// for the pager's lifetime. Every successful operation replaces the cache
// contents with the fetched page; on transport failure the pager stays
// positioned at the last good page.
type Pager struct {
	lister ConversationLister
	cache  *ListingCache
	limit  int

	// tokens[i] is the token that fetches page i; tokens[0] is "" (the
	// first page). current indexes the page the cache holds.
	tokens  []string
	current int
	loaded  bool
}

// NewPager creates a pager over the given lister, filling cache.
func NewPager(lister ConversationLister, cache *ListingCache, limit int) *Pager {
	if limit <= 0 {
		limit = api.DefaultListLimit
	}
	return &Pager{
		lister: lister,
		cache:  cache,
		limit:  limit,
		tokens: []string{""},
	}
}

// Limit returns the fixed page size.
func (p *Pager) Limit() int {
	return p.limit
}

// PageNumber returns the 1-based number of the current page, 0 before the
// first fetch.
func (p *Pager) PageNumber() int {
	if !p.loaded {
		return 0
	}
	return p.current + 1
}

// fetch loads the page for token and, on success, commits it to the cache.
func (p *Pager) fetch(ctx context.Context, token string) (*api.ConversationPage, error) {
	page, err := p.lister.List(ctx, api.ListConversationsParams{
		Limit:  p.limit,
		PageID: token,
	})
	if err != nil {
		return nil, err
	}
	p.cache.Replace(page)
	return page, nil
}

// First fetches page one, resetting navigation history.
func (p *Pager) First(ctx context.Context) error {
	if _, err := p.fetch(ctx, ""); err != nil {
		return err
	}
	p.tokens = []string{""}
	p.current = 0
	p.loaded = true
	return nil
}

// Next advances to the following page. Returns ErrNoMoreFollowing when the
// current page is the last one.
func (p *Pager) Next(ctx context.Context) error {
	if !p.loaded {
		return ErrNoCurrentPage
	}
	next := p.cache.NextPageID()
	if next == "" {
		return ErrNoMoreFollowing
	}
	if _, err := p.fetch(ctx, next); err != nil {
		return err
	}
	// Drop any stale forward history before recording the new position.
	p.tokens = append(p.tokens[:p.current+1], next)
	p.current++
	return nil
}

// Previous steps back to the page before the current one. Returns
// ErrStartOfListing on page one.
func (p *Pager) Previous(ctx context.Context) error {
	if !p.loaded {
		return ErrNoCurrentPage
	}
	if p.current == 0 {
		return ErrStartOfListing
	}
	if _, err := p.fetch(ctx, p.tokens[p.current-1]); err != nil {
		return err
	}
	p.current--
	return nil
}

// Refresh re-fetches the current page with its original token.
func (p *Pager) Refresh(ctx context.Context) error {
	if !p.loaded {
		return ErrNoCurrentPage
	}
	_, err := p.fetch(ctx, p.tokens[p.current])
	return err
}
