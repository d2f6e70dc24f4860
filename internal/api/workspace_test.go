package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runtimeConv(runtimeURL string) *ConversationSummary {
	return &ConversationSummary{
		ID:            testID,
		Status:        "RUNNING",
		RuntimeURL:    runtimeURL,
		SessionAPIKey: "sess-key",
	}
}

func TestGitChanges(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conversations/"+testID+"/git/changes", r.URL.Path)
		assert.Equal(t, "sess-key", r.Header.Get("X-Session-API-Key"))
		json.NewEncoder(w).Encode([]GitChange{
			{Path: "main.go", Status: "M"},
			{Path: "README.md", Status: "A"},
		})
	}))
	defer server.Close()

	client := newTestClient("https://app.example.com/api", "api-key")
	changes, err := client.Workspace().GitChanges(context.Background(), runtimeConv(server.URL))
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "main.go", changes[0].Path)
}

func TestGitChangesNotFoundMeansEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "Not Found"}`))
	}))
	defer server.Close()

	client := newTestClient("https://app.example.com/api", "api-key")
	changes, err := client.Workspace().GitChanges(context.Background(), runtimeConv(server.URL))
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestGitChangesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "boom"}`))
	}))
	defer server.Close()

	client := newTestClient("https://app.example.com/api", "api-key")
	cfg := fastRetryConfig()
	cfg.Max5xxRetries = 0
	client.SetRetryConfig(cfg)

	_, err := client.Workspace().GitChanges(context.Background(), runtimeConv(server.URL))
	require.Error(t, err)

	var structured *StructuredError
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, ErrServerError, structured.Code)
	assert.Contains(t, structured.Message, "git repository not available or corrupted")
}

func TestDownloadArchiveOutlivesRequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		w.Write([]byte("PK\x03\x04archive"))
	}))
	defer server.Close()

	client := newTestClient("https://app.example.com/api", "api-key")
	client.HTTP.Timeout = 50 * time.Millisecond

	data, err := client.Workspace().DownloadArchive(context.Background(), runtimeConv(server.URL))
	require.NoError(t, err, "archive downloads run under the download budget, not the request timeout")
	assert.Equal(t, []byte("PK\x03\x04archive"), data)
}

func TestDownloadHTTPBudget(t *testing.T) {
	client := newTestClient("https://app.example.com/api", "api-key")

	dl := client.downloadHTTP()
	assert.Equal(t, DownloadTimeout, dl.Timeout)
	assert.Same(t, client.HTTP.Transport, dl.Transport)
	assert.Equal(t, DefaultTimeout, client.HTTP.Timeout, "regular requests keep the default timeout")
}

func TestWorkspaceGuardsStoppedConversation(t *testing.T) {
	conv := &ConversationSummary{ID: testID, Status: "STOPPED"}
	client := newTestClient("https://app.example.com/api", "api-key")
	ctx := context.Background()

	var notRunning *NotRunningError

	_, err := client.Workspace().GitChanges(ctx, conv)
	require.ErrorAs(t, err, &notRunning)
	assert.Equal(t, testID, notRunning.ConversationID)
	assert.Equal(t, "STOPPED", notRunning.Status)

	_, err = client.Workspace().FileContent(ctx, conv, "main.go")
	require.ErrorAs(t, err, &notRunning)

	_, err = client.Workspace().DownloadArchive(ctx, conv)
	require.ErrorAs(t, err, &notRunning)

	_, err = client.Workspace().Trajectory(ctx, conv)
	require.ErrorAs(t, err, &notRunning)
}

func TestWorkspaceGuardsMissingSessionKey(t *testing.T) {
	conv := &ConversationSummary{ID: testID, Status: "RUNNING", RuntimeURL: "https://runtime.example.com"}
	client := newTestClient("https://app.example.com/api", "api-key")

	var notRunning *NotRunningError
	_, err := client.Workspace().GitChanges(context.Background(), conv)
	require.ErrorAs(t, err, &notRunning)
}

func TestRuntimeExpiredSessionKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "invalid session"}`))
	}))
	defer server.Close()

	client := newTestClient("https://app.example.com/api", "api-key")
	_, err := client.Workspace().GitChanges(context.Background(), runtimeConv(server.URL))
	require.Error(t, err)

	var expired *SessionKeyExpiredError
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, testID, expired.ConversationID)
}

func TestFileContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conversations/"+testID+"/select-file", r.URL.Path)
		assert.Equal(t, "src/main.go", r.URL.Query().Get("file"))
		json.NewEncoder(w).Encode(FileContent{Code: "package main\n"})
	}))
	defer server.Close()

	client := newTestClient("https://app.example.com/api", "api-key")
	content, err := client.Workspace().FileContent(context.Background(), runtimeConv(server.URL), "src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", content)
}

func TestFileContentNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "Not Found"}`))
	}))
	defer server.Close()

	client := newTestClient("https://app.example.com/api", "api-key")
	_, err := client.Workspace().FileContent(context.Background(), runtimeConv(server.URL), "nope.go")
	require.Error(t, err)

	var structured *StructuredError
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, ErrNotFound, structured.Code)
	assert.Contains(t, structured.Message, "nope.go")
}

func TestDownloadArchive(t *testing.T) {
	payload := []byte("PK\x03\x04zipbytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conversations/"+testID+"/zip-directory", r.URL.Path)
		w.Write(payload)
	}))
	defer server.Close()

	client := newTestClient("https://app.example.com/api", "api-key")
	data, err := client.Workspace().DownloadArchive(context.Background(), runtimeConv(server.URL))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestTrajectory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conversations/"+testID+"/trajectory", r.URL.Path)
		w.Write([]byte(`{"trajectory": [{"action": "run", "args": {"command": "ls"}}, {"action": "finish"}]}`))
	}))
	defer server.Close()

	client := newTestClient("https://app.example.com/api", "api-key")
	traj, err := client.Workspace().Trajectory(context.Background(), runtimeConv(server.URL))
	require.NoError(t, err)
	require.Len(t, traj.Trajectory, 2)
	assert.Equal(t, "run", traj.Trajectory[0]["action"])
}

func TestDownloadChangedFilesPreservesOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file := r.URL.Query().Get("file")
		json.NewEncoder(w).Encode(FileContent{Code: "content of " + file})
	}))
	defer server.Close()

	changes := []GitChange{
		{Path: "a.go", Status: "M"},
		{Path: "b.go", Status: "A"},
		{Path: "c.go", Status: "M"},
	}

	client := newTestClient("https://app.example.com/api", "api-key")
	contents, err := client.Workspace().DownloadChangedFiles(context.Background(), runtimeConv(server.URL), changes, 2)
	require.NoError(t, err)
	require.Len(t, contents, 3)
	assert.Equal(t, "content of a.go", contents[0])
	assert.Equal(t, "content of b.go", contents[1])
	assert.Equal(t, "content of c.go", contents[2])
}

func TestDownloadChangedFilesBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer inFlight.Add(-1)
		json.NewEncoder(w).Encode(FileContent{Code: "x"})
	}))
	defer server.Close()

	changes := make([]GitChange, 12)
	for i := range changes {
		changes[i] = GitChange{Path: "f", Status: "M"}
	}

	client := newTestClient("https://app.example.com/api", "api-key")
	_, err := client.Workspace().DownloadChangedFiles(context.Background(), runtimeConv(server.URL), changes, 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestDownloadChangedFilesErrorNamesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("file") == "broken.go" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail": "Not Found"}`))
			return
		}
		json.NewEncoder(w).Encode(FileContent{Code: "ok"})
	}))
	defer server.Close()

	changes := []GitChange{
		{Path: "fine.go", Status: "M"},
		{Path: "broken.go", Status: "M"},
	}

	client := newTestClient("https://app.example.com/api", "api-key")
	_, err := client.Workspace().DownloadChangedFiles(context.Background(), runtimeConv(server.URL), changes, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.go")
}
