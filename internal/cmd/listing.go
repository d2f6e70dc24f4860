package cmd

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openhands/ohc/internal/api"
	"github.com/openhands/ohc/internal/cache"
	"github.com/openhands/ohc/internal/resolve"
	"github.com/openhands/ohc/internal/session"
	"github.com/openhands/ohc/internal/urlparse"
)

const listingCacheKey = "listing"

func resolveCacheDir() string {
	if dir := os.Getenv("OHC_CACHE_DIR"); dir != "" {
		return dir
	}
	dir, err := cache.DefaultDir()
	if err != nil {
		return ""
	}
	return dir
}

func listingStore(baseURL string) cache.Store {
	dir := resolveCacheDir()
	if dir == "" {
		return nil
	}
	return cache.NewStore(dir, listingCacheKey, baseURL)
}

// loadListingCache hydrates the in-memory listing from the persisted
// snapshot, so position numbers keep working across invocations.
func loadListingCache(baseURL string) *session.ListingCache {
	listing := session.NewListingCache()
	store := listingStore(baseURL)
	if store == nil {
		return listing
	}
	var page api.ConversationPage
	if store.Get(&page) {
		listing.Replace(&page)
	}
	return listing
}

// persistListing snapshots the current listing for later invocations.
func persistListing(baseURL string, listing *session.ListingCache) {
	store := listingStore(baseURL)
	if store == nil {
		return
	}
	store.Put(api.ConversationPage{
		Results:    listing.Conversations(),
		NextPageID: listing.NextPageID(),
	})
}

// resolveConversation maps a user-supplied reference (full ID, unique ID
// prefix, position number, or pasted app URL) to the conversation it names
// and fetches its current state.
func resolveConversation(ctx context.Context, client *api.Client, token string) (*api.ConversationSummary, error) {
	token = urlparse.ConversationRef(token)

	listing := loadListingCache(client.BaseURL)
	resolver := session.NewResolver(listing, client.Conversations())
	ref, err := resolver.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return client.Conversations().Get(ctx, ref.ID)
}

// resolveByTitle finds a conversation by fuzzy title match against the
// persisted listing.
func resolveByTitle(ctx context.Context, client *api.Client, query string) (*api.ConversationSummary, error) {
	listing := loadListingCache(client.BaseURL)
	conversations := listing.Conversations()
	if len(conversations) == 0 {
		page, err := client.Conversations().List(ctx, api.ListConversationsParams{Limit: api.DefaultListLimit})
		if err != nil {
			return nil, err
		}
		listing.Replace(page)
		persistListing(client.BaseURL, listing)
		conversations = listing.Conversations()
	}

	items := make([]resolve.Named, 0, len(conversations))
	for _, c := range conversations {
		items = append(items, resolve.Named{ID: c.ID, Name: c.DisplayTitle()})
	}
	id, err := resolve.FuzzyMatch(query, items)
	if err != nil {
		var ae *resolve.AmbiguousError
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, &session.NotFoundError{Token: query}
	}
	return client.Conversations().Get(ctx, id)
}

// conversationArg joins positional args into one reference token so that
// titles with spaces survive shell splitting.
func conversationArg(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// refArgFromCmd resolves the positional REF argument for a conv subcommand.
func refArgFromCmd(cmd *cobra.Command, client *api.Client, args []string, byTitle bool) (*api.ConversationSummary, error) {
	token := conversationArg(args)
	if byTitle {
		return resolveByTitle(cmd.Context(), client, token)
	}
	return resolveConversation(cmd.Context(), client, token)
}
