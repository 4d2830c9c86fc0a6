package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, Timeout: timeout})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestRequestSuccessReturnsBody(t *testing.T) {
	var gotRequestID string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get("X-Request-ID")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		writeJSON(w, http.StatusOK, `{"status":"healthy"}`)
	}), time.Second)

	raw, err := client.Request(context.Background(), http.MethodGet, "/api/system/health", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"healthy"}`, string(raw))
	assert.NotEmpty(t, gotRequestID)
}

func TestRequestRemoteErrorUsesDetail(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, `{"detail":"Orchestrateur non prêt"}`)
	}), time.Second)

	_, err := client.Request(context.Background(), http.MethodPost, "/api/task", map[string]string{"description": "x"})
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusServiceUnavailable, remote.Status)
	assert.Equal(t, "Orchestrateur non prêt", remote.Message)
	assert.Equal(t, "remote", ErrorKind(err))
}

func TestRequestRemoteErrorFallsBackToStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"error":"nope"}`)
	}), time.Second)

	_, err := client.Request(context.Background(), http.MethodGet, "/api/missing", nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "HTTP 404", remote.Message)
}

func TestRequestProtocolErrorKeepsPrefix(t *testing.T) {
	body := "<html>" + strings.Repeat("x", 200) + "</html>"
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, body)
	}), time.Second)

	_, err := client.Request(context.Background(), http.MethodGet, "/api/dashboard", nil)
	var protocol *ProtocolError
	require.ErrorAs(t, err, &protocol)
	assert.Len(t, protocol.RawPrefix, rawPrefixLimit)
	assert.True(t, strings.HasPrefix(protocol.RawPrefix, "<html>"))
}

func TestRawPrefixKeepsWholeRunes(t *testing.T) {
	prefix := rawPrefix([]byte("x" + strings.Repeat("é", 150)))
	assert.True(t, utf8.ValidString(prefix))
	assert.Equal(t, rawPrefixLimit, utf8.RuneCountInString(prefix))
	assert.Equal(t, "short", rawPrefix([]byte("short")))
}

func TestRequestTimeoutNeverHangs(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}), 50*time.Millisecond)

	started := time.Now()
	_, err := client.Request(context.Background(), http.MethodGet, "/api/dashboard", nil)
	require.Error(t, err)
	assert.True(t, IsTimeout(err), "expected TimeoutError, got %T: %v", err, err)
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestRequestConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client := New(Options{BaseURL: base, Timeout: time.Second})
	_, err := client.Request(context.Background(), http.MethodGet, "/api/system/health", nil)
	require.Error(t, err)
	assert.True(t, IsConnection(err), "expected ConnectionError, got %T: %v", err, err)
}

func TestCheckConnectionTracksState(t *testing.T) {
	var (
		mu     sync.Mutex
		status = "healthy"
	)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if status == "down" {
			writeJSON(w, http.StatusInternalServerError, `{"detail":"boom"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"status":"`+status+`"}`)
	}), time.Second)

	require.True(t, client.CheckConnection(context.Background()))
	assert.True(t, client.Connected())
	assert.Empty(t, client.LastError())

	mu.Lock()
	status = "initializing"
	mu.Unlock()
	assert.False(t, client.CheckConnection(context.Background()))
	assert.Empty(t, client.LastError())

	mu.Lock()
	status = "down"
	mu.Unlock()
	assert.False(t, client.CheckConnection(context.Background()))
	assert.Equal(t, "boom", client.LastError())
}

func TestOtherOperationsDoNotTouchConnectionState(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{}`)
	}), time.Second)

	client.mu.Lock()
	client.connected = true
	client.mu.Unlock()

	_, err := client.Agents(context.Background())
	require.Error(t, err)
	assert.True(t, client.Connected())
	assert.Empty(t, client.LastError())
}

func TestToggleAutoAcceptRoundTrip(t *testing.T) {
	var (
		mu      sync.Mutex
		enabled bool
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auto-accept/toggle", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		mu.Lock()
		enabled = !enabled
		current := enabled
		mu.Unlock()
		buf, _ := json.Marshal(map[string]any{"enabled": current, "message": "ok"})
		writeJSON(w, http.StatusOK, string(buf))
	})
	mux.HandleFunc("/api/auto-accept", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method == http.MethodPut {
			var body struct {
				Enabled bool `json:"enabled"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			enabled = body.Enabled
		}
		buf, _ := json.Marshal(map[string]any{
			"enabled":    enabled,
			"statistics": map[string]int{"total_processed": 3, "auto_accepted": 2, "rejected": 1},
		})
		writeJSON(w, http.StatusOK, string(buf))
	})
	client := newTestClient(t, mux, time.Second)
	ctx := context.Background()

	before, err := client.AutoAccept(ctx)
	require.NoError(t, err)
	_, err = client.ToggleAutoAccept(ctx)
	require.NoError(t, err)
	after, err := client.AutoAccept(ctx)
	require.NoError(t, err)
	assert.Equal(t, !before.Enabled, after.Enabled)
	require.NotNil(t, after.Statistics)
	assert.Equal(t, 2, after.Statistics.AutoAccepted)

	set, err := client.SetAutoAccept(ctx, false)
	require.NoError(t, err)
	assert.False(t, set.Enabled)
}

func TestPathsAndQueriesAreEscaped(t *testing.T) {
	var seen []string
	var mu sync.Mutex
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.EscapedPath()+"?"+r.URL.RawQuery)
		mu.Unlock()
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/cache/entries"):
			writeJSON(w, http.StatusOK, `[]`)
		case strings.HasPrefix(r.URL.Path, "/api/auto-accept/actions"):
			writeJSON(w, http.StatusOK, `[]`)
		default:
			writeJSON(w, http.StatusOK, `{"message":"ok"}`)
		}
	}), time.Second)
	ctx := context.Background()

	_, err := client.RestartAgent(ctx, "code r/1")
	require.NoError(t, err)
	_, err = client.CacheEntries(ctx, "a&b")
	require.NoError(t, err)
	_, err = client.RecentActions(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"POST /api/agents/code%20r%2F1/restart?",
		"GET /api/cache/entries?agent_type=a%26b",
		"GET /api/auto-accept/actions?limit=50",
	}, seen)
}

func TestExecuteTaskAppliesDefaults(t *testing.T) {
	var got TaskRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, `{"task_id":"task_1","status":"started"}`)
	}), time.Second)

	sub, err := client.ExecuteTask(context.Background(), "build a flask app", "", "")
	require.NoError(t, err)
	assert.Equal(t, "task_1", sub.TaskID)
	assert.Equal(t, TaskRequest{
		Description: "build a flask app",
		ProjectPath: DefaultProjectPath,
		ProjectName: DefaultProjectName,
	}, got)
}

func TestMalformedShapeIsProtocolError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"total_agents":"four"}`)
	}), time.Second)

	_, err := client.Agents(context.Background())
	assert.Equal(t, "protocol", ErrorKind(err))
}
