package session

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/openhands/ohc/internal/api"
)

// ResolutionMethod records how a reference token was resolved.
type ResolutionMethod string

const (
	// MethodExact means the token was a full identifier.
	MethodExact ResolutionMethod = "exact-match"
	// MethodPrefix means the token matched exactly one identifier prefix.
	MethodPrefix ResolutionMethod = "unique-prefix-match"
	// MethodPosition means the token was a position number in the listing.
	MethodPosition ResolutionMethod = "position-number-match"
)

// ResolvedReference is the outcome of resolving a user-supplied token.
type ResolvedReference struct {
	ID     string
	Method ResolutionMethod
}

// EmptyTokenError: the token was empty or whitespace.
type EmptyTokenError struct{}

func (e *EmptyTokenError) Error() string {
	return "empty conversation reference"
}

// NoActiveListingError: a position number was given but no listing has
// been displayed this session.
type NoActiveListingError struct{}

func (e *NoActiveListingError) Error() string {
	return "no active listing: position numbers require a prior listing"
}

// PositionOutOfRangeError: the position number falls outside the cached
// page. Min and Max are the valid bounds.
type PositionOutOfRangeError struct {
	Position int
	Min      int
	Max      int
}

func (e *PositionOutOfRangeError) Error() string {
	return fmt.Sprintf("position %d out of range (%d-%d)", e.Position, e.Min, e.Max)
}

// NotFoundError: nothing matched the token.
type NotFoundError struct {
	Token string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no conversation found with ID starting with %q", e.Token)
}

// AmbiguousError: more than one identifier starts with the token.
// Candidates are sorted ascending.
type AmbiguousError struct {
	Token      string
	Candidates []api.ConversationSummary
}

func (e *AmbiguousError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous reference %q matches %d conversations:", e.Token, len(e.Candidates))
	for _, c := range e.Candidates {
		fmt.Fprintf(&b, "\n  %s  %s", c.ID, c.DisplayTitle())
	}
	return b.String()
}

// PrefixSearcher is the server-side fallback used when the cached listing
// has no prefix match.
type PrefixSearcher interface {
	SearchByPrefix(ctx context.Context, prefix string) ([]api.ConversationSummary, error)
}

// Resolver turns user-supplied reference tokens into conversation
// identifiers against the session's listing cache.
type Resolver struct {
	cache    *ListingCache
	searcher PrefixSearcher // nil disables the server fallback
}

// NewResolver creates a resolver over cache with an optional server-side
// prefix searcher.
func NewResolver(cache *ListingCache, searcher PrefixSearcher) *Resolver {
	return &Resolver{cache: cache, searcher: searcher}
}

// Resolve maps a token to a conversation identifier.
//
// Decision order:
//  1. empty token is an error
//  2. an all-digit token is a position number, unconditionally; it is
//     never treated as an identifier prefix
//  3. a token of full identifier length passes through as-is
//  4. anything else is a case-sensitive identifier prefix, matched against
//     the cached listing first and the server's recent conversations as a
//     fallback
func (r *Resolver) Resolve(ctx context.Context, token string) (*ResolvedReference, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, &EmptyTokenError{}
	}

	if isAllDigits(token) {
		return r.resolvePosition(token)
	}

	if len(token) >= api.IDLength {
		return &ResolvedReference{ID: token, Method: MethodExact}, nil
	}

	return r.resolvePrefix(ctx, token)
}

func (r *Resolver) resolvePosition(token string) (*ResolvedReference, error) {
	if r.cache.IsEmpty() {
		return nil, &NoActiveListingError{}
	}
	// Atoi clamps on overflow, which still fails the range check below.
	pos, _ := strconv.Atoi(token)
	conv, ok := r.cache.ByPosition(pos)
	if !ok {
		return nil, &PositionOutOfRangeError{Position: pos, Min: 1, Max: r.cache.Len()}
	}
	return &ResolvedReference{ID: conv.ID, Method: MethodPosition}, nil
}

func (r *Resolver) resolvePrefix(ctx context.Context, token string) (*ResolvedReference, error) {
	matches := r.cache.PrefixMatches(token)

	if len(matches) == 0 && r.searcher != nil {
		found, err := r.searcher.SearchByPrefix(ctx, token)
		if err != nil {
			return nil, err
		}
		matches = found
	}

	switch len(matches) {
	case 0:
		return nil, &NotFoundError{Token: token}
	case 1:
		return &ResolvedReference{ID: matches[0].ID, Method: MethodPrefix}, nil
	default:
		sorted := make([]api.ConversationSummary, len(matches))
		copy(sorted, matches)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
		return nil, &AmbiguousError{Token: token, Candidates: sorted}
	}
}

func isAllDigits(s string) bool {
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(s) > 0
}
