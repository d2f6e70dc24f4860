package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultDownloadConcurrency bounds parallel select-file fetches in
// DownloadChangedFiles.
const DefaultDownloadConcurrency = 4

// WorkspaceService provides operations against a conversation's runtime:
// git changes, file content, workspace archive, and trajectory. All of
// them require the conversation to be RUNNING; the guard runs before any
// network call.
type WorkspaceService struct {
	client Requester
}

// NewWorkspaceService creates a workspace service.
func NewWorkspaceService(client Requester) *WorkspaceService {
	return &WorkspaceService{client: client}
}

// runtimeEndpoint builds the runtime URL for a conversation-scoped path
// and returns the session key to authenticate with. Fails with
// NotRunningError when the conversation has no live runtime.
func runtimeEndpoint(conv *ConversationSummary, path string) (string, string, error) {
	if !conv.IsRunning() || conv.SessionAPIKey == "" {
		return "", "", &NotRunningError{ConversationID: conv.ID, Status: conv.Status}
	}
	base := strings.TrimRight(conv.RuntimeURL, "/")
	return base + "/api/conversations/" + url.PathEscape(conv.ID) + path, conv.SessionAPIKey, nil
}

// mapRuntimeErr rewrites a runtime 401 into SessionKeyExpiredError; other
// errors pass through.
func mapRuntimeErr(conv *ConversationSummary, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 401 {
		return &SessionKeyExpiredError{ConversationID: conv.ID}
	}
	return err
}

// GitChanges lists uncommitted files in the conversation workspace.
// A 404 from the runtime means no git repository or no changes, which is
// an empty list, not an error. A 500 means the repository is unavailable.
func (s *WorkspaceService) GitChanges(ctx context.Context, conv *ConversationSummary) ([]GitChange, error) {
	return GetGitChanges(ctx, s.client, conv)
}

// FileContent fetches one file's content from the workspace.
func (s *WorkspaceService) FileContent(ctx context.Context, conv *ConversationSummary, path string) (string, error) {
	return GetFileContent(ctx, s.client, conv, path)
}

// DownloadArchive fetches the workspace as a zip archive.
func (s *WorkspaceService) DownloadArchive(ctx context.Context, conv *ConversationSummary) ([]byte, error) {
	return DownloadWorkspaceArchive(ctx, s.client, conv)
}

// Trajectory fetches the conversation's recorded trajectory.
func (s *WorkspaceService) Trajectory(ctx context.Context, conv *ConversationSummary) (*Trajectory, error) {
	return GetTrajectory(ctx, s.client, conv)
}

// DownloadChangedFiles fetches the content of every changed file with
// bounded concurrency. Results preserve the order of changes.
func (s *WorkspaceService) DownloadChangedFiles(ctx context.Context, conv *ConversationSummary, changes []GitChange, concurrency int) ([]string, error) {
	return DownloadChangedFiles(ctx, s.client, conv, changes, concurrency)
}

// GetGitChanges lists uncommitted files in the conversation workspace.
func GetGitChanges(ctx context.Context, client Requester, conv *ConversationSummary) ([]GitChange, error) {
	endpoint, key, err := runtimeEndpoint(conv, "/git/changes")
	if err != nil {
		return nil, err
	}

	var changes []GitChange
	if err := client.doRuntime(ctx, "GET", endpoint, key, &changes); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.StatusCode == 404:
				// No git repository or no changes.
				return nil, nil
			case apiErr.StatusCode >= 500:
				return nil, NewStructuredErrorWithContext(ErrServerError,
					"git repository not available or corrupted",
					map[string]any{"conversation_id": conv.ID})
			}
		}
		return nil, mapRuntimeErr(conv, err)
	}
	return changes, nil
}

// GetFileContent fetches one file's content via select-file. The runtime
// wraps content in a {"code": ...} envelope.
func GetFileContent(ctx context.Context, client Requester, conv *ConversationSummary, path string) (string, error) {
	endpoint, key, err := runtimeEndpoint(conv, "/select-file")
	if err != nil {
		return "", err
	}
	endpoint += "?file=" + url.QueryEscape(path)

	var content FileContent
	if err := client.doRuntime(ctx, "GET", endpoint, key, &content); err != nil {
		if IsNotFoundError(err) {
			return "", NewStructuredErrorWithContext(ErrNotFound,
				fmt.Sprintf("file not found in workspace: %s", path),
				map[string]any{"conversation_id": conv.ID, "file": path})
		}
		return "", mapRuntimeErr(conv, err)
	}
	return content.Code, nil
}

// DownloadWorkspaceArchive fetches the workspace as a zip archive.
func DownloadWorkspaceArchive(ctx context.Context, client Requester, conv *ConversationSummary) ([]byte, error) {
	endpoint, key, err := runtimeEndpoint(conv, "/zip-directory")
	if err != nil {
		return nil, err
	}

	data, err := client.doRuntimeRaw(ctx, "GET", endpoint, key)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, NewStructuredErrorWithContext(ErrNotFound,
				fmt.Sprintf("workspace not found for conversation %s", conv.ID),
				map[string]any{"conversation_id": conv.ID})
		}
		return nil, mapRuntimeErr(conv, err)
	}
	return data, nil
}

// GetTrajectory fetches the conversation's recorded trajectory. Long
// conversations produce large trajectories, so the fetch goes through
// the raw download path and its extended timeout.
func GetTrajectory(ctx context.Context, client Requester, conv *ConversationSummary) (*Trajectory, error) {
	endpoint, key, err := runtimeEndpoint(conv, "/trajectory")
	if err != nil {
		return nil, err
	}

	data, err := client.doRuntimeRaw(ctx, "GET", endpoint, key)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, NewStructuredErrorWithContext(ErrNotFound,
				fmt.Sprintf("trajectory not found for conversation %s", conv.ID),
				map[string]any{"conversation_id": conv.ID})
		}
		return nil, mapRuntimeErr(conv, err)
	}

	var traj Trajectory
	if err := json.Unmarshal(data, &traj); err != nil {
		return nil, fmt.Errorf("unexpected runtime response format (JSON decode failed): %w", err)
	}
	return &traj, nil
}

// DownloadChangedFiles fetches every changed file's content with bounded
// concurrency. The returned slice is index-aligned with changes. The first
// failure cancels the remaining fetches.
func DownloadChangedFiles(ctx context.Context, client Requester, conv *ConversationSummary, changes []GitChange, concurrency int) ([]string, error) {
	if concurrency <= 0 {
		concurrency = DefaultDownloadConcurrency
	}
	contents := make([]string, len(changes))

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(concurrency))
	for i, change := range changes {
		i, change := i, change
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			content, err := GetFileContent(gctx, client, conv, change.Path)
			if err != nil {
				return fmt.Errorf("%s: %w", change.Path, err)
			}
			contents[i] = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return contents, nil
}
