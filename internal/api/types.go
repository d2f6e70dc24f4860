package api

import (
	"strings"
	"time"

	"github.com/openhands/ohc/internal/urlparse"
)

// IDLength is the length of a full conversation identifier.
const IDLength = 36

// ConversationSummary is a single conversation as returned by the listing
// and detail endpoints. RuntimeURL and SessionAPIKey are only populated
// while the conversation is RUNNING.
type ConversationSummary struct {
	ID            string `json:"conversation_id"`
	Title         string `json:"title"`
	Status        string `json:"status"`
	RuntimeStatus string `json:"runtime_status,omitempty"`
	Repository    string `json:"selected_repository,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	LastUpdatedAt string `json:"last_updated_at,omitempty"`
	RuntimeURL    string `json:"url,omitempty"`
	SessionAPIKey string `json:"session_api_key,omitempty"`
	Trigger       string `json:"trigger,omitempty"`
}

// ConversationPage is one page of listing results with the opaque
// continuation token. An empty NextPageID means there is no following page.
type ConversationPage struct {
	Results    []ConversationSummary `json:"results"`
	NextPageID string                `json:"next_page_id,omitempty"`
}

// ShortID returns the first 8 characters of the identifier, the form used
// in filenames and table output.
func (c *ConversationSummary) ShortID() string {
	if len(c.ID) > 8 {
		return c.ID[:8]
	}
	return c.ID
}

// DisplayTitle returns the title or "Untitled" when blank.
func (c *ConversationSummary) DisplayTitle() string {
	if strings.TrimSpace(c.Title) == "" {
		return "Untitled"
	}
	return c.Title
}

// RuntimeID returns the first hostname label of the runtime URL, or ""
// when no runtime is attached.
func (c *ConversationSummary) RuntimeID() string {
	return urlparse.RuntimeID(c.RuntimeURL)
}

// IsRunning reports whether the conversation has a live runtime: status
// RUNNING with a runtime URL attached.
func (c *ConversationSummary) IsRunning() bool {
	return c.Status == "RUNNING" && c.RuntimeURL != ""
}

// CreatedTime parses CreatedAt, returning the zero time on failure.
func (c *ConversationSummary) CreatedTime() time.Time {
	return parseAPITime(c.CreatedAt)
}

// LastUpdatedTime parses LastUpdatedAt, returning the zero time on failure.
func (c *ConversationSummary) LastUpdatedTime() time.Time {
	return parseAPITime(c.LastUpdatedAt)
}

// parseAPITime accepts the timestamp shapes the service emits: RFC3339
// with or without sub-second precision, with or without zone.
func parseAPITime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// GitChange is one uncommitted file in a conversation workspace.
type GitChange struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

// FileContent is the select-file response envelope.
type FileContent struct {
	Code string `json:"code"`
}

// Trajectory is the recorded event list for a conversation.
type Trajectory struct {
	Trajectory []map[string]any `json:"trajectory"`
}
