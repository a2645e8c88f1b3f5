package client

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client aggregates the session, executor and sandbox manager behind
// the workflow entry points the CLI calls. Orchestration here returns
// structured results only; rendering them is the report package's job.
type Client struct {
	Config   Config
	Logger   *Logger
	Session  *Session
	Executor *Executor
	Sandbox  *SandboxManager
}

func New(ctx context.Context, cfg Config, logger *Logger) (*Client, error) {
	session, err := NewSession(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Client{
		Config:   cfg,
		Logger:   logger,
		Session:  session,
		Executor: NewExecutor(session, logger),
		Sandbox:  NewSandboxManager(session, logger),
	}, nil
}

// Outcome distinguishes success, partial success (the primary effect
// landed but a follow-up step failed) and hard failure.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

type DownloadedFile struct {
	Name    string
	Path    string
	Content []byte
}

// WorkflowResult is the structured report of one workflow invocation.
// Identifiers are filled in as they are resolved so a failed run still
// tells the operator where to pick up manually.
type WorkflowResult struct {
	InvocationID string
	Operation    string
	Outcome      Outcome
	Err          string

	UserEmail   string
	AccountID   string
	ThreadID    string
	ProjectID   string
	ProjectName string
	AgentRunID  string
	SandboxID   string
	VNCURL      string

	RunStatus    string
	StopStatus   string
	DeleteStatus string

	Messages    []Message
	StreamState StreamState
	Events      []map[string]any
	Files       []DownloadedFile
	Artifact    map[string]any
}

func newResult(operation string) *WorkflowResult {
	return &WorkflowResult{
		InvocationID: uuid.NewString(),
		Operation:    operation,
		Outcome:      OutcomeSuccess,
	}
}

func (r *WorkflowResult) fail(err error) (*WorkflowResult, error) {
	r.Outcome = OutcomeFailure
	r.Err = err.Error()
	return r, err
}

// InitiateOnly submits the prompt and resolves the full identifier
// chain without waiting for the run to finish. The returned ids feed
// the poll and stop commands.
func (c *Client) InitiateOnly(ctx context.Context, prompt string, opts ModelOptions) (*WorkflowResult, error) {
	result := newResult("initiate")
	c.Logger.Info("initiating agent run", map[string]any{
		"invocation_id": result.InvocationID,
		"prompt_length": len(prompt),
	})

	if _, err := c.Executor.CheckHealth(ctx); err != nil {
		return result.fail(err)
	}

	accounts, err := c.Executor.ListAccounts(ctx)
	if err != nil {
		return result.fail(err)
	}
	if len(accounts) == 0 {
		return result.fail(&NotFoundError{Entity: "account", ID: "any"})
	}
	result.AccountID = accounts[0].AccountID

	initiated, err := c.Executor.InitiateRun(ctx, prompt, opts)
	if err != nil {
		return result.fail(err)
	}
	result.ThreadID = initiated.ThreadID
	result.AgentRunID = initiated.AgentRunID

	if user, err := c.Session.CurrentUser(ctx); err == nil {
		result.UserEmail = user.Email
	}

	thread, err := c.Executor.ResolveThread(ctx, initiated.ThreadID)
	if err != nil {
		return result.fail(err)
	}
	result.ProjectID = thread.ProjectID

	// Mirror the frontend's warm-up reads; failures here are not fatal
	// to the initiation itself.
	if _, err := c.Executor.ListProjects(ctx, result.AccountID); err != nil {
		c.Logger.Warn("project listing failed", map[string]any{"error": err.Error()})
	}
	if _, err := c.Executor.ListThreads(ctx, result.AccountID); err != nil {
		c.Logger.Warn("thread listing failed", map[string]any{"error": err.Error()})
	}
	if msgs, err := c.Executor.ListMessages(ctx, initiated.ThreadID); err == nil {
		result.Messages = msgs
	}

	project, err := c.Executor.ResolveProject(ctx, thread.ProjectID)
	if err != nil {
		return result.fail(err)
	}
	result.ProjectName = project.Name
	if vncURL, err := c.Executor.VNCURL(project); err == nil {
		result.VNCURL = vncURL
	}

	sandboxStatus, err := c.Sandbox.EnsureActive(ctx, project.ProjectID)
	if err != nil {
		return result.fail(err)
	}
	result.SandboxID = sandboxStatus.SandboxID
	if result.SandboxID == "" {
		if id, err := project.SandboxID(); err == nil {
			result.SandboxID = id
		}
	}
	return result, nil
}

// PollAndDownload re-derives the whole identifier chain from the agent
// run id and, when the run has completed, collects generated text
// files and the final transcript. Derived ids are never trusted from a
// previous invocation.
func (c *Client) PollAndDownload(ctx context.Context, agentRunID string) (*WorkflowResult, error) {
	result := newResult("poll")
	result.AgentRunID = agentRunID

	status, err := c.Executor.ResolveRunStatus(ctx, agentRunID, true)
	if err != nil {
		return result.fail(err)
	}
	result.RunStatus = status.Status
	result.ThreadID = status.ThreadID

	thread, err := c.Executor.ResolveThread(ctx, status.ThreadID)
	if err != nil {
		return result.fail(err)
	}
	result.ProjectID = thread.ProjectID

	project, err := c.Executor.ResolveProject(ctx, thread.ProjectID)
	if err != nil {
		return result.fail(err)
	}
	result.ProjectName = project.Name
	if vncURL, err := c.Executor.VNCURL(project); err == nil {
		result.VNCURL = vncURL
	}

	sandboxID, err := project.SandboxID()
	if err != nil {
		return result.fail(err)
	}
	result.SandboxID = sandboxID

	switch status.Status {
	case RunStatusCompleted:
		result.Files = c.collectTextFiles(ctx, sandboxID)
		messages, err := c.Executor.ListMessages(ctx, thread.ThreadID)
		if err != nil {
			result.Outcome = OutcomePartial
			result.Err = err.Error()
			return result, nil
		}
		result.Messages = messages
		result.Artifact, _ = FindArtifact(messages)
		return result, nil

	case RunStatusFailed:
		result.Outcome = OutcomeFailure
		result.Err = status.Error
		return result, nil

	default:
		// Still running (or an unrecognized status): report and let the
		// caller poll again.
		return result, nil
	}
}

// collectTextFiles downloads every .txt file in the workspace root.
// A reclaimed workspace simply yields nothing.
func (c *Client) collectTextFiles(ctx context.Context, sandboxID string) []DownloadedFile {
	entries, err := c.Sandbox.ListFiles(ctx, sandboxID, "/workspace")
	if err != nil {
		c.Logger.Warn("workspace listing failed", map[string]any{
			"sandbox_id": sandboxID,
			"error":      err.Error(),
		})
		return nil
	}

	var files []DownloadedFile
	for _, entry := range entries {
		if entry.IsDir || !strings.HasSuffix(entry.Name, ".txt") {
			continue
		}
		path := "/workspace/" + entry.Name
		content, err := c.Sandbox.DownloadFile(ctx, sandboxID, path)
		if err != nil {
			c.Logger.Warn("file download failed", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		if content == nil {
			continue
		}
		files = append(files, DownloadedFile{Name: entry.Name, Path: path, Content: content})
	}
	return files
}

// FindArtifact scans messages in order and returns the first embedded
// JSON artifact. Absence is a normal outcome.
func FindArtifact(messages []Message) (map[string]any, bool) {
	for i := range messages {
		if artifact, ok := ExtractArtifact(messages[i].ContentText()); ok {
			return artifact, true
		}
	}
	return nil, false
}

// StopAndCleanup stops an agent run. The thread id is reported when it
// can be derived, but stop succeeds regardless: a run that is already
// stopped is no longer active, which is the effect the caller wants.
func (c *Client) StopAndCleanup(ctx context.Context, agentRunID string) (*WorkflowResult, error) {
	result := newResult("stop")
	result.AgentRunID = agentRunID

	if status, err := c.Executor.ResolveRunStatus(ctx, agentRunID, false); err == nil {
		result.ThreadID = status.ThreadID
	} else {
		c.Logger.Warn("could not resolve run before stopping", map[string]any{
			"agent_run_id": agentRunID,
			"error":        err.Error(),
		})
	}

	stopped := c.Executor.StopRun(ctx, agentRunID)
	result.StopStatus = stopped.Status
	result.RunStatus = stopped.Status
	return result, nil
}

// StopAndDeleteSandbox stops the run and tears down the sandbox at the
// end of the derivation chain. A stop that lands while the delete
// fails is reported as partial success.
func (c *Client) StopAndDeleteSandbox(ctx context.Context, agentRunID string) (*WorkflowResult, error) {
	result := newResult("stop-sandbox")
	result.AgentRunID = agentRunID

	status, err := c.Executor.ResolveRunStatus(ctx, agentRunID, true)
	if err != nil {
		return result.fail(err)
	}
	result.ThreadID = status.ThreadID

	thread, err := c.Executor.ResolveThread(ctx, status.ThreadID)
	if err != nil {
		return result.fail(err)
	}
	result.ProjectID = thread.ProjectID

	project, err := c.Executor.ResolveProject(ctx, thread.ProjectID)
	if err != nil {
		return result.fail(err)
	}
	result.ProjectName = project.Name

	sandboxID, err := project.SandboxID()
	if err != nil {
		return result.fail(err)
	}
	result.SandboxID = sandboxID

	stopped := c.Executor.StopRun(ctx, agentRunID)
	result.StopStatus = stopped.Status

	deleted, err := c.Sandbox.Delete(ctx, sandboxID)
	if err != nil {
		result.Outcome = OutcomePartial
		result.Err = err.Error()
		result.DeleteStatus = "failed"
		return result, nil
	}
	result.DeleteStatus = deleted.Status
	return result, nil
}

// ExecutePrompt runs the full synchronous workflow: initiate, follow
// the live event stream to a terminal state, then gather the final
// transcript, generated files and any embedded artifact.
func (c *Client) ExecutePrompt(ctx context.Context, prompt string, opts ModelOptions, streamTimeout time.Duration) (*WorkflowResult, error) {
	result, err := c.InitiateOnly(ctx, prompt, opts)
	if err != nil {
		return result, err
	}
	result.Operation = "run"

	stream, err := c.Executor.ConsumeStream(ctx, result.AgentRunID, streamTimeout)
	if err != nil {
		return result.fail(err)
	}
	result.StreamState = stream.State
	result.Events = stream.Events

	switch stream.State {
	case StreamErrored:
		result.Outcome = OutcomeFailure
		result.Err = stream.ErrMessage
	case StreamTimedOut:
		result.Outcome = OutcomePartial
		result.Err = stream.ErrMessage
	}

	if status, err := c.Executor.ResolveRunStatus(ctx, result.AgentRunID, false); err == nil {
		result.RunStatus = status.Status
	}

	if messages, err := c.Executor.ListMessages(ctx, result.ThreadID); err == nil {
		result.Messages = messages
		result.Artifact, _ = FindArtifact(messages)
	}
	if result.SandboxID != "" {
		result.Files = c.collectTextFiles(ctx, result.SandboxID)
	}
	return result, nil
}
