package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openhands/ohc/internal/api"
	"github.com/openhands/ohc/internal/session"
)

// HandleError processes an error and returns a user-friendly message with suggestions
func HandleError(err error) string {
	if err == nil {
		return ""
	}

	var msg strings.Builder

	var apiErr *api.APIError
	var rateLimitErr *api.RateLimitError
	var circuitBreakerErr *api.CircuitBreakerError
	var authErr *api.AuthError
	var notRunningErr *api.NotRunningError
	var keyExpiredErr *api.SessionKeyExpiredError
	var noListingErr *session.NoActiveListingError
	var outOfRangeErr *session.PositionOutOfRangeError
	var ambiguousErr *session.AmbiguousError
	var notFoundErr *session.NotFoundError
	var emptyTokenErr *session.EmptyTokenError

	switch {
	case errors.As(err, &emptyTokenErr):
		msg.WriteString("Empty conversation reference.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Pass a conversation ID, ID prefix, or position number\n")
		msg.WriteString("  - Run: ohc conv list\n")

	case errors.As(err, &noListingErr):
		msg.WriteString("No active listing: position numbers refer to the last displayed listing.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Run: ohc conv list\n")
		msg.WriteString("  - Or reference the conversation by ID or unique ID prefix\n")

	case errors.As(err, &outOfRangeErr):
		fmt.Fprintf(&msg, "Position %d is out of range: the current listing has positions %d-%d.\n\n",
			outOfRangeErr.Position, outOfRangeErr.Min, outOfRangeErr.Max)
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Run: ohc conv list\n")
		msg.WriteString("  - Pick a position from the listing, or use an ID prefix\n")

	case errors.As(err, &ambiguousErr):
		fmt.Fprintf(&msg, "Reference %q is ambiguous. Candidates:\n", ambiguousErr.Token)
		for _, c := range ambiguousErr.Candidates {
			fmt.Fprintf(&msg, "  %s  %s\n", c.ID, c.DisplayTitle())
		}
		msg.WriteString("\nUse a longer prefix or the full ID.\n")

	case errors.As(err, &notFoundErr):
		fmt.Fprintf(&msg, "No conversation found matching %q.\n\n", notFoundErr.Token)
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Run: ohc conv list\n")
		msg.WriteString("  - Prefix matching is case-sensitive; check the exact ID\n")

	case errors.As(err, &notRunningErr):
		fmt.Fprintf(&msg, "Conversation %s is not running (status: %s).\n\n",
			notRunningErr.ConversationID, notRunningErr.Status)
		msg.WriteString("Suggestions:\n")
		fmt.Fprintf(&msg, "  - Wake it first: ohc conv wake %s\n", shortRef(notRunningErr.ConversationID))
		msg.WriteString("  - Then retry this command once it is RUNNING\n")

	case errors.As(err, &keyExpiredErr):
		fmt.Fprintf(&msg, "Runtime session key expired for conversation %s.\n\n", keyExpiredErr.ConversationID)
		msg.WriteString("Suggestions:\n")
		fmt.Fprintf(&msg, "  - Wake the conversation to refresh the key: ohc conv wake %s\n", shortRef(keyExpiredErr.ConversationID))

	case errors.As(err, &rateLimitErr):
		msg.WriteString("Rate limit exceeded.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Wait a few seconds and retry\n")
		msg.WriteString("  - Reduce request frequency\n")
		msg.WriteString("  - Use --dry-run to preview operations\n")

	case errors.As(err, &circuitBreakerErr):
		msg.WriteString("Service temporarily unavailable (circuit breaker open).\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - The API has had multiple failures recently\n")
		msg.WriteString("  - Wait 30 seconds and retry\n")
		msg.WriteString("  - Check if the server is healthy\n")

	case errors.As(err, &authErr):
		fmt.Fprintf(&msg, "Authentication failed: %s\n\n", authErr.Reason)
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Run: ohc server add\n")
		msg.WriteString("  - Verify your API key is valid\n")
		msg.WriteString("  - Check the key with: ohc server test\n")

	case errors.As(err, &apiErr):
		fmt.Fprintf(&msg, "API error (HTTP %d): %s\n\n", apiErr.StatusCode, apiErr.Body)
		msg.WriteString(suggestionsForStatusCode(apiErr.StatusCode, apiErr.Body))
		if apiErr.RequestID != "" {
			fmt.Fprintf(&msg, "\nRequest ID: %s\n", apiErr.RequestID)
		}

	case strings.Contains(err.Error(), "connection refused"):
		msg.WriteString("Connection refused.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Check if the server is reachable\n")
		msg.WriteString("  - Verify the URL: ohc server list\n")
		msg.WriteString("  - Check your network connection\n")

	case strings.Contains(err.Error(), "no such host"):
		msg.WriteString("DNS resolution failed.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Check the server URL spelling\n")
		msg.WriteString("  - Verify your DNS settings\n")

	case strings.Contains(err.Error(), "certificate"):
		msg.WriteString("TLS certificate error.\n\n")
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Verify the server's SSL certificate\n")
		msg.WriteString("  - Check if the certificate is expired\n")
		msg.WriteString("  - Ensure you're using https:// correctly\n")

	default:
		fmt.Fprintf(&msg, "Error: %s\n", err.Error())
	}

	return msg.String()
}

// shortRef truncates a full conversation ID to a usable 8-char prefix for
// suggested follow-up commands.
func shortRef(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func suggestionsForStatusCode(code int, body string) string {
	var suggestions strings.Builder
	suggestions.WriteString("Suggestions:\n")

	switch code {
	case 400:
		suggestions.WriteString("  - Check your request parameters\n")
		suggestions.WriteString("  - Use --debug to see the full request\n")
		if strings.Contains(body, "required") {
			suggestions.WriteString("  - A required field may be missing\n")
		}

	case 401:
		suggestions.WriteString("  - Your API key may be invalid or expired\n")
		suggestions.WriteString("  - Run: ohc server add\n")

	case 403:
		suggestions.WriteString("  - You don't have permission for this action\n")
		suggestions.WriteString("  - Check your account role and permissions\n")

	case 404:
		suggestions.WriteString("  - The conversation doesn't exist\n")
		suggestions.WriteString("  - Check the ID is correct\n")
		suggestions.WriteString("  - It may have been deleted\n")

	case 422:
		suggestions.WriteString("  - Validation failed\n")
		suggestions.WriteString("  - Check your input values\n")

	case 429:
		suggestions.WriteString("  - Too many requests\n")
		suggestions.WriteString("  - Wait and retry in a few seconds\n")

	case 500, 502, 503, 504:
		suggestions.WriteString("  - Server error - not your fault\n")
		suggestions.WriteString("  - Wait and retry\n")

	default:
		suggestions.WriteString("  - Use --debug for more details\n")
	}

	return suggestions.String()
}

// ExitWithError prints error with suggestions and exits
func ExitWithError(err error) {
	if err == nil {
		return
	}
	_, _ = fmt.Fprint(os.Stderr, HandleError(err))
	os.Exit(ExitCode(err))
}
