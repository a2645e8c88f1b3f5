package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

// Executor sequences the dependent calls that create and resolve run
// state. InitiateRun is the one call that creates state; everything
// else resolves state and is re-derived on every invocation rather
// than cached, so stale identifiers never survive a backend change.
type Executor struct {
	session *Session
	logger  *Logger
}

func NewExecutor(session *Session, logger *Logger) *Executor {
	return &Executor{session: session, logger: logger}
}

func (e *Executor) CheckHealth(ctx context.Context) (HealthStatus, error) {
	var health HealthStatus
	body, _, err := e.session.Request(ctx, http.MethodGet, "/api/health", nil, "")
	if err != nil {
		return health, err
	}
	if err := json.Unmarshal(body, &health); err != nil {
		return health, fmt.Errorf("malformed health response: %w", err)
	}
	return health, nil
}

// ListAccounts returns the caller's accounts. The first entry is
// treated as the active account; there is no disambiguation step.
func (e *Executor) ListAccounts(ctx context.Context) ([]Account, error) {
	body, err := e.session.AuthRequest(ctx, http.MethodPost, "/rest/v1/rpc/get_accounts", nil, map[string]any{})
	if err != nil {
		return nil, err
	}
	var accounts []Account
	if err := json.Unmarshal(body, &accounts); err != nil {
		return nil, fmt.Errorf("malformed accounts response: %w", err)
	}
	return accounts, nil
}

// InitiateRun submits the prompt as a multipart form. The backend
// allocates the project, thread and run.
func (e *Executor) InitiateRun(ctx context.Context, prompt string, opts ModelOptions) (InitiateResult, error) {
	var result InitiateResult

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	fields := map[string]string{
		"prompt":                 prompt,
		"model_name":             opts.ModelName,
		"enable_thinking":        strconv.FormatBool(opts.EnableThinking),
		"reasoning_effort":       opts.ReasoningEffort,
		"stream":                 strconv.FormatBool(opts.Stream),
		"enable_context_manager": strconv.FormatBool(opts.EnableContextManager),
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return result, err
		}
	}
	if err := form.Close(); err != nil {
		return result, err
	}

	body, _, err := e.session.Request(ctx, http.MethodPost, "/api/agent/initiate", &buf, form.FormDataContentType())
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return result, fmt.Errorf("malformed initiate response: %w", err)
	}
	e.logger.Info("agent initiated", map[string]any{
		"thread_id":    result.ThreadID,
		"agent_run_id": result.AgentRunID,
	})
	return result, nil
}

// ResolveThread fetches a single thread by id.
func (e *Executor) ResolveThread(ctx context.Context, threadID string) (Thread, error) {
	var thread Thread
	query := url.Values{
		"select":    {"*"},
		"thread_id": {"eq." + threadID},
	}
	body, err := e.session.AuthRequest(ctx, http.MethodGet, "/rest/v1/threads", query, nil)
	if err != nil {
		return thread, err
	}
	var threads []Thread
	if err := json.Unmarshal(body, &threads); err != nil {
		return thread, fmt.Errorf("malformed threads response: %w", err)
	}
	if len(threads) == 0 {
		return thread, &NotFoundError{Entity: "thread", ID: threadID}
	}
	return threads[0], nil
}

// ResolveProject fetches a single project by id.
func (e *Executor) ResolveProject(ctx context.Context, projectID string) (Project, error) {
	var project Project
	query := url.Values{
		"select":     {"*"},
		"project_id": {"eq." + projectID},
	}
	body, err := e.session.AuthRequest(ctx, http.MethodGet, "/rest/v1/projects", query, nil)
	if err != nil {
		return project, err
	}
	var projects []Project
	if err := json.Unmarshal(body, &projects); err != nil {
		return project, fmt.Errorf("malformed projects response: %w", err)
	}
	if len(projects) == 0 {
		return project, &NotFoundError{Entity: "project", ID: projectID}
	}
	return projects[0], nil
}

func (e *Executor) ListProjects(ctx context.Context, accountID string) ([]Project, error) {
	query := url.Values{
		"select":     {"*"},
		"account_id": {"eq." + accountID},
	}
	body, err := e.session.AuthRequest(ctx, http.MethodGet, "/rest/v1/projects", query, nil)
	if err != nil {
		return nil, err
	}
	var projects []Project
	if err := json.Unmarshal(body, &projects); err != nil {
		return nil, fmt.Errorf("malformed projects response: %w", err)
	}
	return projects, nil
}

func (e *Executor) ListThreads(ctx context.Context, accountID string) ([]Thread, error) {
	query := url.Values{
		"select":     {"*"},
		"account_id": {"eq." + accountID},
	}
	body, err := e.session.AuthRequest(ctx, http.MethodGet, "/rest/v1/threads", query, nil)
	if err != nil {
		return nil, err
	}
	var threads []Thread
	if err := json.Unmarshal(body, &threads); err != nil {
		return nil, fmt.Errorf("malformed threads response: %w", err)
	}
	return threads, nil
}

// ListMessages returns the complete message history of a thread in
// ascending creation order. Cost and summary bookkeeping entries are
// excluded server-side.
func (e *Executor) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	query := url.Values{
		"select":    {"*"},
		"thread_id": {"eq." + threadID},
		"type":      {"neq.cost", "neq.summary"},
		"order":     {"created_at.asc"},
	}
	body, err := e.session.AuthRequest(ctx, http.MethodGet, "/rest/v1/messages", query, nil)
	if err != nil {
		return nil, err
	}
	var messages []Message
	if err := json.Unmarshal(body, &messages); err != nil {
		return nil, fmt.Errorf("malformed messages response: %w", err)
	}
	return messages, nil
}

type agentRunsResponse struct {
	AgentRuns []AgentRun `json:"agent_runs"`
}

func (e *Executor) ListAgentRuns(ctx context.Context, threadID string) ([]AgentRun, error) {
	body, _, err := e.session.Request(ctx, http.MethodGet, "/api/thread/"+threadID+"/agent-runs", nil, "")
	if err != nil {
		return nil, err
	}
	var runs agentRunsResponse
	if err := json.Unmarshal(body, &runs); err != nil {
		return nil, fmt.Errorf("malformed agent runs response: %w", err)
	}
	return runs.AgentRuns, nil
}

// ResolveRunStatus fetches the current status of an agent run. The
// thread id is read from the immediate response under its known
// aliases; if absent, one follow-up fetch of the same endpoint is
// tried before giving up with a ResolutionError. ThreadID stays empty
// only when resolveThreadID is false.
func (e *Executor) ResolveRunStatus(ctx context.Context, agentRunID string, resolveThreadID bool) (RunStatus, error) {
	status, err := e.fetchRunStatus(ctx, agentRunID)
	if err != nil {
		return status, err
	}
	if !resolveThreadID || status.ThreadID != "" {
		return status, nil
	}

	// Two-tier lookup: one more read of the run-status endpoint, then
	// fail explicitly rather than guessing.
	retry, err := e.fetchRunStatus(ctx, agentRunID)
	if err != nil {
		return status, err
	}
	if retry.ThreadID == "" {
		return status, &ResolutionError{Field: "thread_id"}
	}
	return retry, nil
}

func (e *Executor) fetchRunStatus(ctx context.Context, agentRunID string) (RunStatus, error) {
	status := RunStatus{ID: agentRunID, Status: RunStatusUnknown}
	body, _, err := e.session.Request(ctx, http.MethodGet, "/api/agent-run/"+agentRunID, nil, "")
	if err != nil {
		return status, err
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return status, fmt.Errorf("malformed agent run response: %w", err)
	}
	if s := firstString(raw, "status"); s != "" {
		status.Status = s
	}
	status.ThreadID = firstString(raw, "thread_id", "threadId")
	status.Error = firstString(raw, "error")
	status.CompletedAt = firstString(raw, "completed_at", "completedAt")
	return status, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// StopRun asks the backend to stop an agent run. Stopping an already
// stopped run is not an error from the caller's perspective: the run's
// terminal effect is what matters, so backend complaints are logged
// and the returned status is "stopped" regardless.
func (e *Executor) StopRun(ctx context.Context, agentRunID string) RunStatus {
	status := RunStatus{ID: agentRunID, Status: RunStatusStopped}
	body, _, err := e.session.Request(ctx, http.MethodPost, "/api/agent-run/"+agentRunID+"/stop", nil, "")
	if err != nil {
		e.logger.Warn("stop run reported an error", map[string]any{
			"agent_run_id": agentRunID,
			"error":        err.Error(),
		})
		return status
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err == nil {
		if s := firstString(raw, "status"); s != "" {
			status.Status = s
		}
	}
	return status
}

// VNCURL builds the browser URL for the project's sandbox desktop.
func (e *Executor) VNCURL(project Project) (string, error) {
	sandboxID, err := project.SandboxID()
	if err != nil {
		return "", err
	}
	password, err := project.VNCPassword()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"https://6080-%s.h1099.daytona.work/vnc_lite.html?password=%s&autoconnect=true&scale=local&width=1024&height=768",
		sandboxID, password,
	), nil
}
