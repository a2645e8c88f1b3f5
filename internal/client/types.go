package client

import "encoding/json"

// Run status values reported by the backend.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusStopped   = "stopped"
	RunStatusUnknown   = "unknown"
)

type Account struct {
	AccountID       string `json:"account_id"`
	AccountRole     string `json:"account_role"`
	IsPrimaryOwner  bool   `json:"is_primary_owner"`
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	PersonalAccount bool   `json:"personal_account"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// Project carries the sandbox descriptor as an opaque map because its
// field names vary across backend versions. Use SandboxID and
// VNCPassword to read it.
type Project struct {
	ProjectID   string         `json:"project_id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	AccountID   string         `json:"account_id"`
	Sandbox     map[string]any `json:"sandbox"`
	IsPublic    bool           `json:"is_public"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

var (
	sandboxIDAliases   = []string{"sandbox_id", "id", "sandboxId"}
	vncPasswordAliases = []string{"password", "pass", "vnc_password"}
	sandboxURLAliases  = []string{"sandbox_url", "url"}
)

func (p *Project) SandboxID() (string, error) {
	return resolveAlias(p.Sandbox, "sandbox_id", sandboxIDAliases)
}

func (p *Project) VNCPassword() (string, error) {
	return resolveAlias(p.Sandbox, "vnc_password", vncPasswordAliases)
}

// SandboxURL is informational only, so absence is not an error.
func (p *Project) SandboxURL() string {
	v, err := resolveAlias(p.Sandbox, "sandbox_url", sandboxURLAliases)
	if err != nil {
		return ""
	}
	return v
}

// resolveAlias tries each known alias in priority order and fails
// explicitly naming the field when none resolves to a non-empty string.
func resolveAlias(m map[string]any, field string, aliases []string) (string, error) {
	for _, key := range aliases {
		if v, ok := m[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", &ResolutionError{Field: field}
}

type Thread struct {
	ThreadID  string         `json:"thread_id"`
	AccountID string         `json:"account_id"`
	ProjectID string         `json:"project_id"`
	IsPublic  bool           `json:"is_public"`
	AgentID   string         `json:"agent_id"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

type AgentRun struct {
	ID          string           `json:"id"`
	ThreadID    string           `json:"thread_id"`
	Status      string           `json:"status"`
	StartedAt   string           `json:"started_at"`
	CompletedAt string           `json:"completed_at"`
	Error       string           `json:"error"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at"`
	Responses   []map[string]any `json:"responses"`
}

type Message struct {
	MessageID    string         `json:"message_id"`
	ThreadID     string         `json:"thread_id"`
	Type         string         `json:"type"`
	IsLLMMessage bool           `json:"is_llm_message"`
	Content      any            `json:"content"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
}

// ContentText flattens the opaque content field into text so it can be
// scanned for embedded artifacts.
func (m *Message) ContentText() string {
	switch v := m.Content.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type HealthStatus struct {
	Status     string `json:"status"`
	InstanceID string `json:"instance_id"`
	Timestamp  string `json:"timestamp"`
}

// RunStatus is the client's view of GET /api/agent-run/{id}. ThreadID
// may be empty when the backend omits it from the response.
type RunStatus struct {
	ID          string
	Status      string
	ThreadID    string
	Error       string
	CompletedAt string
}

type SandboxStatus struct {
	Status    string `json:"status"`
	SandboxID string `json:"sandbox_id"`
}

type InitiateResult struct {
	ThreadID   string `json:"thread_id"`
	AgentRunID string `json:"agent_run_id"`
}

type FileEntry struct {
	Name  string
	IsDir bool
}

// ModelOptions are the knobs the initiate form accepts.
type ModelOptions struct {
	ModelName            string
	EnableThinking       bool
	ReasoningEffort      string
	Stream               bool
	EnableContextManager bool
}

func DefaultModelOptions() ModelOptions {
	return ModelOptions{
		ModelName:       "claude-sonnet-4",
		EnableThinking:  false,
		ReasoningEffort: "low",
		Stream:          true,
	}
}
