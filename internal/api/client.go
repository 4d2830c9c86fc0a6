// Package api talks to the Auto-Antigravity backend over its local JSON API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL      = "http://127.0.0.1:5555"
	DefaultTimeout      = 10 * time.Second
	DefaultActionsLimit = 50
	DefaultProjectPath  = "./workspace"
	DefaultProjectName  = "MyProject"

	rawPrefixLimit = 100
	healthyStatus  = "healthy"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *Metrics
}

// Client issues one request per logical operation. It is safe for
// concurrent use; only CheckConnection mutates the connection state.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
	metrics *Metrics

	mu        sync.RWMutex
	connected bool
	lastError string
}

func New(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Client{
		baseURL: base,
		timeout: timeout,
		http:    httpClient,
		logger:  logger.Named("api"),
		metrics: metrics,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Connected reports the result of the last CheckConnection.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// LastError is the failure text of the last CheckConnection, empty on success.
func (c *Client) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// Request performs method on path and returns the raw JSON body.
func (c *Client) Request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	route := path
	if idx := strings.IndexByte(route, '?'); idx >= 0 {
		route = route[:idx]
	}
	return c.do(ctx, method, route, path, body)
}

func (c *Client) do(ctx context.Context, method, route, path string, body any) (json.RawMessage, error) {
	started := time.Now()
	raw, err := c.roundTrip(ctx, method, path, body)
	outcome := "ok"
	if err != nil {
		outcome = ErrorKind(err)
		c.metrics.ErrorTotal.WithLabelValues(outcome).Inc()
		c.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("kind", outcome),
			zap.Error(err))
	}
	c.metrics.RequestDuration.WithLabelValues(method, route, outcome).Observe(time.Since(started).Seconds())
	return raw, err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, callCtx, method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, callCtx, method, path, err)
	}

	if !json.Valid(payload) {
		return nil, &ProtocolError{RawPrefix: rawPrefix(payload)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{Status: resp.StatusCode, Message: remoteMessage(payload, resp.StatusCode)}
	}
	return json.RawMessage(payload), nil
}

// transportError separates our own deadline from the caller's cancellation.
func (c *Client) transportError(parent, callCtx context.Context, method, path string, err error) error {
	if parent.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Method: method, Path: path, After: c.timeout}
	}
	return &ConnectionError{Cause: err}
}

// rawPrefix keeps the first rawPrefixLimit runes of the body.
func rawPrefix(payload []byte) string {
	runes := []rune(string(payload))
	if len(runes) > rawPrefixLimit {
		runes = runes[:rawPrefixLimit]
	}
	return string(runes)
}

func remoteMessage(payload []byte, status int) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	fallback := "HTTP " + strconv.Itoa(status)
	if err := json.Unmarshal(payload, &envelope); err != nil || len(envelope.Detail) == 0 {
		return fallback
	}
	var detail string
	if err := json.Unmarshal(envelope.Detail, &detail); err == nil {
		if strings.TrimSpace(detail) == "" {
			return fallback
		}
		return detail
	}
	if string(envelope.Detail) == "null" {
		return fallback
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, envelope.Detail); err != nil {
		return fallback
	}
	return compact.String()
}

func call[T any](ctx context.Context, c *Client, method, route, path string, body any) (T, error) {
	var out T
	raw, err := c.do(ctx, method, route, path, body)
	if err != nil {
		return out, err
	}
	out, err = Decode[T](raw)
	if err != nil {
		return out, &ProtocolError{RawPrefix: rawPrefix(raw), Cause: err}
	}
	return out, nil
}

// Health reads /api/system/health without touching the connection state.
func (c *Client) Health(ctx context.Context) (Health, error) {
	return call[Health](ctx, c, http.MethodGet, "/api/system/health", "/api/system/health", nil)
}

// CheckConnection runs a health check and records the outcome.
func (c *Client) CheckConnection(ctx context.Context) bool {
	health, err := c.Health(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.connected = false
		c.lastError = err.Error()
	} else {
		c.connected = health.Status == healthyStatus
		c.lastError = ""
	}
	if c.connected {
		c.metrics.Connected.Set(1)
	} else {
		c.metrics.Connected.Set(0)
	}
	return c.connected
}

func (c *Client) Dashboard(ctx context.Context) (DashboardPayload, error) {
	return call[DashboardPayload](ctx, c, http.MethodGet, "/api/dashboard", "/api/dashboard", nil)
}

func (c *Client) QuotaSummary(ctx context.Context) (QuotaSummary, error) {
	return call[QuotaSummary](ctx, c, http.MethodGet, "/api/dashboard/quota", "/api/dashboard/quota", nil)
}

func (c *Client) Agents(ctx context.Context) (AgentSummary, error) {
	return call[AgentSummary](ctx, c, http.MethodGet, "/api/agents", "/api/agents", nil)
}

func (c *Client) AgentDetail(ctx context.Context, name string) (Agent, error) {
	return call[Agent](ctx, c, http.MethodGet, "/api/agents/{name}", "/api/agents/"+url.PathEscape(name), nil)
}

func (c *Client) RestartAgent(ctx context.Context, name string) (ActionResult, error) {
	return call[ActionResult](ctx, c, http.MethodPost, "/api/agents/{name}/restart", "/api/agents/"+url.PathEscape(name)+"/restart", nil)
}

func (c *Client) Cache(ctx context.Context) (CacheSummary, error) {
	return call[CacheSummary](ctx, c, http.MethodGet, "/api/cache", "/api/cache", nil)
}

// CacheEntries lists entries, filtered by agentType when it is not empty.
func (c *Client) CacheEntries(ctx context.Context, agentType string) ([]CacheEntry, error) {
	path := "/api/cache/entries"
	if strings.TrimSpace(agentType) != "" {
		path += "?agent_type=" + url.QueryEscape(agentType)
	}
	return call[[]CacheEntry](ctx, c, http.MethodGet, "/api/cache/entries", path, nil)
}

func (c *Client) ClearCache(ctx context.Context) (ActionResult, error) {
	return call[ActionResult](ctx, c, http.MethodDelete, "/api/cache", "/api/cache", nil)
}

func (c *Client) AutoCleanCache(ctx context.Context) (ActionResult, error) {
	return call[ActionResult](ctx, c, http.MethodPost, "/api/cache/auto-clean", "/api/cache/auto-clean", nil)
}

func (c *Client) AutoAccept(ctx context.Context) (AutoAcceptStatus, error) {
	return call[AutoAcceptStatus](ctx, c, http.MethodGet, "/api/auto-accept", "/api/auto-accept", nil)
}

func (c *Client) ToggleAutoAccept(ctx context.Context) (AutoAcceptStatus, error) {
	return call[AutoAcceptStatus](ctx, c, http.MethodPost, "/api/auto-accept/toggle", "/api/auto-accept/toggle", nil)
}

func (c *Client) SetAutoAccept(ctx context.Context, enabled bool) (AutoAcceptStatus, error) {
	body := map[string]bool{"enabled": enabled}
	return call[AutoAcceptStatus](ctx, c, http.MethodPut, "/api/auto-accept", "/api/auto-accept", body)
}

// RecentActions returns auto-accept decisions newest-first; limit <= 0 means 50.
func (c *Client) RecentActions(ctx context.Context, limit int) ([]RecentAction, error) {
	if limit <= 0 {
		limit = DefaultActionsLimit
	}
	path := "/api/auto-accept/actions?limit=" + strconv.Itoa(limit)
	return call[[]RecentAction](ctx, c, http.MethodGet, "/api/auto-accept/actions", path, nil)
}

// ExecuteTask submits a task; empty projectPath/projectName take the defaults.
func (c *Client) ExecuteTask(ctx context.Context, description, projectPath, projectName string) (TaskSubmission, error) {
	body := TaskRequest{
		Description: description,
		ProjectPath: nullCoalesce(projectPath, DefaultProjectPath),
		ProjectName: nullCoalesce(projectName, DefaultProjectName),
	}
	return call[TaskSubmission](ctx, c, http.MethodPost, "/api/task", "/api/task", body)
}

func (c *Client) TaskStatus(ctx context.Context, id string) (Task, error) {
	return call[Task](ctx, c, http.MethodGet, "/api/task/{id}", "/api/task/"+url.PathEscape(id), nil)
}

func (c *Client) SystemMetrics(ctx context.Context) (SystemMetrics, error) {
	return call[SystemMetrics](ctx, c, http.MethodGet, "/api/system/metrics", "/api/system/metrics", nil)
}

// RunDiagnostics returns the backend's free-form diagnostic report.
func (c *Client) RunDiagnostics(ctx context.Context) (Object, error) {
	return call[Object](ctx, c, http.MethodPost, "/api/system/diagnostics", "/api/system/diagnostics", nil)
}

func nullCoalesce(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
