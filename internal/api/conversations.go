package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// DefaultListLimit is the page size used when the caller doesn't specify one.
const DefaultListLimit = 20

// SearchWindow is the number of conversations scanned when resolving an id
// prefix that isn't in the cached listing.
const SearchWindow = 100

// ListConversationsParams are the query parameters for listing conversations.
type ListConversationsParams struct {
	Limit  int
	PageID string // opaque continuation token, empty for the first page
}

func (p ListConversationsParams) query() string {
	q := url.Values{}
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q.Set("limit", strconv.Itoa(limit))
	if p.PageID != "" {
		q.Set("page_id", p.PageID)
	}
	return q.Encode()
}

// ConversationsService provides conversation operations against the base API.
type ConversationsService struct {
	client Requester
}

// NewConversationsService creates a conversations service.
func NewConversationsService(client Requester) *ConversationsService {
	return &ConversationsService{client: client}
}

// List fetches one page of conversations.
func (s *ConversationsService) List(ctx context.Context, params ListConversationsParams) (*ConversationPage, error) {
	return ListConversations(ctx, s.client, params)
}

// Get fetches a single conversation by full identifier.
func (s *ConversationsService) Get(ctx context.Context, id string) (*ConversationSummary, error) {
	return GetConversation(ctx, s.client, id)
}

// Start wakes a stopped conversation.
func (s *ConversationsService) Start(ctx context.Context, id string, providers []string) (*ConversationSummary, error) {
	return StartConversation(ctx, s.client, id, providers)
}

// TestConnection probes the server with the options/models endpoint.
func (s *ConversationsService) TestConnection(ctx context.Context) error {
	return TestConnection(ctx, s.client)
}

// SearchByPrefix scans recent conversations for identifiers starting
// with prefix.
func (s *ConversationsService) SearchByPrefix(ctx context.Context, prefix string) ([]ConversationSummary, error) {
	return SearchByPrefix(ctx, s.client, prefix)
}

// ListConversations fetches one page of conversations.
func ListConversations(ctx context.Context, client Requester, params ListConversationsParams) (*ConversationPage, error) {
	reqURL := client.apiPath("/conversations") + "?" + params.query()

	var page ConversationPage
	if err := client.do(ctx, "GET", reqURL, nil, &page); err != nil {
		if IsAuthError(err) {
			return nil, &AuthError{Reason: "API key does not have permission to access conversations. " +
				"Ensure you're using a full API key from your account settings."}
		}
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return &page, nil
}

// GetConversation fetches a single conversation by full identifier.
func GetConversation(ctx context.Context, client Requester, id string) (*ConversationSummary, error) {
	reqURL := client.apiPath("/conversations/" + url.PathEscape(id))

	var conv ConversationSummary
	if err := client.do(ctx, "GET", reqURL, nil, &conv); err != nil {
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	// The detail endpoint omits conversation_id in some server versions.
	if conv.ID == "" {
		conv.ID = id
	}
	return &conv, nil
}

// StartConversation wakes a stopped conversation. providers defaults to
// ["github"] when empty, matching what the web UI sends.
func StartConversation(ctx context.Context, client Requester, id string, providers []string) (*ConversationSummary, error) {
	if len(providers) == 0 {
		providers = []string{"github"}
	}
	reqURL := client.apiPath("/conversations/" + url.PathEscape(id) + "/start")

	body := map[string]any{"providers_set": providers}
	var conv ConversationSummary
	if err := client.do(ctx, "POST", reqURL, body, &conv); err != nil {
		return nil, fmt.Errorf("failed to start conversation %s: %w", id, err)
	}
	if conv.ID == "" {
		conv.ID = id
	}
	return &conv, nil
}

// TestConnection probes the server with a cheap authenticated GET.
// A 200 from options/models means both the URL and the key are good.
func TestConnection(ctx context.Context, client Requester) error {
	reqURL := client.apiPath("/options/models")
	if err := client.do(ctx, "GET", reqURL, nil, nil); err != nil {
		if IsAuthError(err) {
			return &AuthError{Reason: "the server rejected the API key"}
		}
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// SearchByPrefix scans the first SearchWindow conversations for ids
// beginning with prefix. Used as the resolver's server-side fallback when
// the cached listing has no match.
func SearchByPrefix(ctx context.Context, client Requester, prefix string) ([]ConversationSummary, error) {
	page, err := ListConversations(ctx, client, ListConversationsParams{Limit: SearchWindow})
	if err != nil {
		return nil, err
	}
	var matches []ConversationSummary
	for _, conv := range page.Results {
		if len(conv.ID) >= len(prefix) && conv.ID[:len(prefix)] == prefix {
			matches = append(matches, conv)
		}
	}
	return matches, nil
}
