package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeService wires a fake backend and a fake identity provider behind
// one Client, the way the CLI assembles it.
func fakeService(t *testing.T, backend, auth http.Handler) *Client {
	t.Helper()
	backendServer := httptest.NewServer(backend)
	t.Cleanup(backendServer.Close)
	authServer := httptest.NewServer(auth)
	t.Cleanup(authServer.Close)

	cfg := Config{
		BackendURL:  backendServer.URL,
		AuthURL:     authServer.URL,
		AuthAnonKey: "anon-key",
		AccessToken: "test-token",
	}
	c, err := New(context.Background(), cfg, NewLogger(io.Discard))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return c
}

func TestPollAndDownload_CompletedRunDerivesFullChain(t *testing.T) {
	t.Parallel()

	backend := http.NewServeMux()
	backend.HandleFunc("/api/agent-run/run-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "completed",
			"thread_id": "thread-1",
		})
	})
	backend.HandleFunc("/api/sandboxes/sb-1/files", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]any{
				{"name": "mock_report.txt", "is_dir": false},
				{"name": "index.html", "is_dir": false},
				{"name": "assets", "is_dir": true},
			},
		})
	})
	backend.HandleFunc("/api/sandboxes/sb-1/files/content", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "the report body")
	})

	auth := http.NewServeMux()
	auth.HandleFunc("/rest/v1/threads", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"thread_id": "thread-1", "project_id": "proj-1"},
		})
	})
	auth.HandleFunc("/rest/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"project_id": "proj-1",
				"name":       "mock report",
				"sandbox":    map[string]any{"id": "sb-1", "pass": "pw"},
			},
		})
	})
	auth.HandleFunc("/rest/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"message_id": "m1", "type": "user", "content": "a short mock report please"},
			{
				"message_id": "m2",
				"type":       "tool",
				"content":    "cat > mock_report.json << 'EOF'\n{\"total\": 7}\nEOF",
			},
		})
	})

	c := fakeService(t, backend, auth)
	result, err := c.PollAndDownload(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("PollAndDownload returned error: %v", err)
	}

	if result.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %q, want success (err: %s)", result.Outcome, result.Err)
	}
	if result.ThreadID != "thread-1" || result.ProjectID != "proj-1" || result.SandboxID != "sb-1" {
		t.Fatalf("derived ids = %s/%s/%s, want thread-1/proj-1/sb-1",
			result.ThreadID, result.ProjectID, result.SandboxID)
	}
	if result.RunStatus != RunStatusCompleted {
		t.Fatalf("RunStatus = %q, want completed", result.RunStatus)
	}
	if len(result.Files) != 1 || result.Files[0].Name != "mock_report.txt" {
		t.Fatalf("Files = %+v, want just mock_report.txt", result.Files)
	}
	if string(result.Files[0].Content) != "the report body" {
		t.Fatalf("file content = %q", result.Files[0].Content)
	}
	if result.Artifact == nil || result.Artifact["total"] != float64(7) {
		t.Fatalf("Artifact = %v, want total=7", result.Artifact)
	}
	if len(result.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(result.Messages))
	}
}

func TestPollAndDownload_RunningRunReportsAndStops(t *testing.T) {
	t.Parallel()

	backend := http.NewServeMux()
	backend.HandleFunc("/api/agent-run/run-2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "running",
			"thread_id": "thread-2",
		})
	})

	auth := http.NewServeMux()
	auth.HandleFunc("/rest/v1/threads", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"thread_id": "thread-2", "project_id": "proj-2"},
		})
	})
	auth.HandleFunc("/rest/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"project_id": "proj-2", "sandbox": map[string]any{"sandbox_id": "sb-2"}},
		})
	})

	c := fakeService(t, backend, auth)
	result, err := c.PollAndDownload(context.Background(), "run-2")
	if err != nil {
		t.Fatalf("PollAndDownload returned error: %v", err)
	}
	if result.RunStatus != RunStatusRunning {
		t.Fatalf("RunStatus = %q, want running", result.RunStatus)
	}
	if len(result.Files) != 0 {
		t.Fatalf("Files = %+v, want none while running", result.Files)
	}
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %q, want success", result.Outcome)
	}
}

func TestPollAndDownload_FailedRunCarriesBackendError(t *testing.T) {
	t.Parallel()

	backend := http.NewServeMux()
	backend.HandleFunc("/api/agent-run/run-3", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "failed",
			"thread_id": "thread-3",
			"error":     "sandbox crashed",
		})
	})

	auth := http.NewServeMux()
	auth.HandleFunc("/rest/v1/threads", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"thread_id": "thread-3", "project_id": "proj-3"},
		})
	})
	auth.HandleFunc("/rest/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"project_id": "proj-3", "sandbox": map[string]any{"id": "sb-3"}},
		})
	})

	c := fakeService(t, backend, auth)
	result, err := c.PollAndDownload(context.Background(), "run-3")
	if err != nil {
		t.Fatalf("PollAndDownload returned error: %v", err)
	}
	if result.Outcome != OutcomeFailure {
		t.Fatalf("Outcome = %q, want failure", result.Outcome)
	}
	if result.Err != "sandbox crashed" {
		t.Fatalf("Err = %q, want the run's error", result.Err)
	}
}

func TestStopAndDeleteSandbox_DeleteFailureIsPartialSuccess(t *testing.T) {
	t.Parallel()

	backend := http.NewServeMux()
	backend.HandleFunc("/api/agent-run/run-4", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "running",
			"thread_id": "thread-4",
		})
	})
	backend.HandleFunc("/api/agent-run/run-4/stop", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "stopped"})
	})
	backend.HandleFunc("/api/sandboxes/sb-4", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "delete failed", http.StatusInternalServerError)
	})

	auth := http.NewServeMux()
	auth.HandleFunc("/rest/v1/threads", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"thread_id": "thread-4", "project_id": "proj-4"},
		})
	})
	auth.HandleFunc("/rest/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"project_id": "proj-4", "sandbox": map[string]any{"id": "sb-4"}},
		})
	})

	c := fakeService(t, backend, auth)
	result, err := c.StopAndDeleteSandbox(context.Background(), "run-4")
	if err != nil {
		t.Fatalf("StopAndDeleteSandbox returned error: %v", err)
	}
	if result.Outcome != OutcomePartial {
		t.Fatalf("Outcome = %q, want partial", result.Outcome)
	}
	if result.StopStatus != "stopped" {
		t.Fatalf("StopStatus = %q, want stopped", result.StopStatus)
	}
	if result.DeleteStatus != "failed" {
		t.Fatalf("DeleteStatus = %q, want failed", result.DeleteStatus)
	}
	if result.SandboxID != "sb-4" {
		t.Fatalf("SandboxID = %q, want sb-4", result.SandboxID)
	}
}

func TestStopAndCleanup_SucceedsWhenRunLookupFails(t *testing.T) {
	t.Parallel()

	backend := http.NewServeMux()
	backend.HandleFunc("/api/agent-run/run-5", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	backend.HandleFunc("/api/agent-run/run-5/stop", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent run is not running", http.StatusBadRequest)
	})

	c := fakeService(t, backend, http.NewServeMux())
	result, err := c.StopAndCleanup(context.Background(), "run-5")
	if err != nil {
		t.Fatalf("StopAndCleanup returned error: %v", err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %q, want success", result.Outcome)
	}
	if result.StopStatus != RunStatusStopped {
		t.Fatalf("StopStatus = %q, want stopped", result.StopStatus)
	}
}

func TestInitiateOnly_FailureStillReportsResolvedIDs(t *testing.T) {
	t.Parallel()

	backend := http.NewServeMux()
	backend.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "instance_id": "i-1"})
	})
	backend.HandleFunc("/api/agent/initiate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"thread_id":    "thread-6",
			"agent_run_id": "run-6",
		})
	})

	auth := http.NewServeMux()
	auth.HandleFunc("/rest/v1/rpc/get_accounts", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"account_id": "acct-1", "account_role": "owner", "name": "Op"},
		})
	})
	auth.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "user-1", "email": "op@example.com"})
	})
	// Thread resolution returns nothing, so initiation fails there.
	auth.HandleFunc("/rest/v1/threads", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	})

	c := fakeService(t, backend, auth)
	result, err := c.InitiateOnly(context.Background(), "make a report", DefaultModelOptions())
	if err == nil {
		t.Fatal("InitiateOnly succeeded despite unresolvable thread")
	}
	if result.Outcome != OutcomeFailure {
		t.Fatalf("Outcome = %q, want failure", result.Outcome)
	}
	if result.ThreadID != "thread-6" || result.AgentRunID != "run-6" || result.AccountID != "acct-1" {
		t.Fatalf("resolved ids missing from failed result: %+v", result)
	}
}

func TestFindArtifact_ScansMessagesInOrder(t *testing.T) {
	t.Parallel()

	messages := []Message{
		{Type: "user", Content: "no artifact here"},
		{Type: "assistant", Content: "```json\n{\"first\": 1}\n```"},
		{Type: "assistant", Content: "```json\n{\"second\": 2}\n```"},
	}
	artifact, ok := FindArtifact(messages)
	if !ok {
		t.Fatal("FindArtifact found nothing")
	}
	if _, hasFirst := artifact["first"]; !hasFirst {
		t.Fatalf("artifact = %v, want the earliest message's artifact", artifact)
	}
}

func TestFindArtifact_AbsenceIsNormal(t *testing.T) {
	t.Parallel()

	messages := []Message{{Type: "assistant", Content: "plain prose only"}}
	if artifact, ok := FindArtifact(messages); ok {
		t.Fatalf("FindArtifact = %v, true; want not found", artifact)
	}
}
