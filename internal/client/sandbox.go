package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// SandboxManager drives the lifecycle of the ephemeral compute sandbox
// attached to a project. Sandbox identity is always derived from a
// Project, never persisted by the client.
type SandboxManager struct {
	session *Session
	logger  *Logger
}

func NewSandboxManager(session *Session, logger *Logger) *SandboxManager {
	return &SandboxManager{session: session, logger: logger}
}

// EnsureActive starts the project's sandbox if needed. Calling it on an
// already-active sandbox is a no-op success.
func (m *SandboxManager) EnsureActive(ctx context.Context, projectID string) (SandboxStatus, error) {
	var status SandboxStatus
	body, _, err := m.session.Request(ctx, http.MethodPost, "/api/project/"+projectID+"/sandbox/ensure-active", nil, "")
	if err != nil {
		return status, err
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return status, fmt.Errorf("malformed sandbox status response: %w", err)
	}
	return status, nil
}

// ListFiles lists a sandbox directory, normalizing both response
// shapes the backend is known to produce: a bare list, or a list under
// a "files" key. A reclaimed workspace yields an empty listing because
// teardown is expected to race with client polling.
func (m *SandboxManager) ListFiles(ctx context.Context, sandboxID, path string) ([]FileEntry, error) {
	endpoint := "/api/sandboxes/" + sandboxID + "/files?path=" + url.QueryEscape(path)
	body, _, err := m.session.Request(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		if isWorkspaceGone(err) {
			m.logger.Info("workspace no longer running, treating listing as empty", map[string]any{
				"sandbox_id": sandboxID,
			})
			return nil, nil
		}
		return nil, err
	}
	return normalizeFileListing(body)
}

func normalizeFileListing(body []byte) ([]FileEntry, error) {
	var wrapper struct {
		Files []map[string]any `json:"files"`
	}
	var items []map[string]any
	if err := json.Unmarshal(body, &wrapper); err == nil {
		items = wrapper.Files
	} else if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("malformed file listing: %w", err)
	}

	entries := make([]FileEntry, 0, len(items))
	for _, item := range items {
		name := firstString(item, "name", "filename", "path")
		if name == "" {
			continue
		}
		isDir, _ := item["is_dir"].(bool)
		if !isDir {
			isDir, _ = item["is_directory"].(bool)
		}
		entries = append(entries, FileEntry{Name: name, IsDir: isDir})
	}
	return entries, nil
}

// DownloadFile fetches a file's content from the sandbox. A reclaimed
// workspace yields nil content, not an error.
func (m *SandboxManager) DownloadFile(ctx context.Context, sandboxID, path string) ([]byte, error) {
	endpoint := "/api/sandboxes/" + sandboxID + "/files/content?path=" + url.QueryEscape(path)
	body, _, err := m.session.Request(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		if isWorkspaceGone(err) {
			m.logger.Info("workspace no longer running, skipping download", map[string]any{
				"sandbox_id": sandboxID,
				"path":       path,
			})
			return nil, nil
		}
		return nil, err
	}
	return body, nil
}

// Delete tears the sandbox down. Safe to re-invoke; the outcome, not
// the status code, is idempotent.
func (m *SandboxManager) Delete(ctx context.Context, sandboxID string) (SandboxStatus, error) {
	status := SandboxStatus{SandboxID: sandboxID}
	body, _, err := m.session.Request(ctx, http.MethodDelete, "/api/sandboxes/"+sandboxID, nil, "")
	if err != nil {
		return status, err
	}
	status.Status = "deleted"
	var raw map[string]any
	if json.Unmarshal(body, &raw) == nil {
		if s := firstString(raw, "status"); s != "" {
			status.Status = s
		}
	}
	return status, nil
}

// isWorkspaceGone recognizes the backend's "workspace is not running"
// error, which shows up when teardown races with polling.
func isWorkspaceGone(err error) bool {
	var backendErr *BackendError
	if !errors.As(err, &backendErr) {
		return false
	}
	return strings.Contains(strings.ToLower(backendErr.Body), "workspace is not running")
}
